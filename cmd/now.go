/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"strings"
	"text/template"
	"time"

	"github.com/mattn/go-runewidth"
	"github.com/spf13/cobra"

	"github.com/szclsya/mpdris2/internal/config"
	"github.com/szclsya/mpdris2/internal/mpd"
	"github.com/szclsya/mpdris2/internal/state"
)

// nowCmd represents the now command
var nowCmd = &cobra.Command{
	Use:   "now",
	Short: "Display the currently playing track",
	Long: `Query MPD and display the currently playing track.

The output format can be customized in ~/.config/mpdris2/config.yaml
using a Go template. Available fields: .Title, .Artist, .Album, .File

Exit codes:
  0 - Track is currently playing
  1 - Nothing playing, or MPD is unreachable`,
	RunE: runNow,
}

func init() {
	rootCmd.AddCommand(nowCmd)

	// Add format flag to override config
	nowCmd.Flags().StringP("format", "f", "", "Output format template (overrides config)")
	// Add width flag to set fixed output width
	nowCmd.Flags().IntP("width", "w", 0, "Fixed output width (0=disabled, overrides config)")
}

// nowTrack is the template context for the output format.
type nowTrack struct {
	Title  string
	Artist string
	Album  string
	File   string
}

func runNow(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	formatFlag, _ := cmd.Flags().GetString("format")
	if formatFlag != "" {
		cfg.OutputFormat = formatFlag
	}

	client, err := dialMPD(ctx)
	if err != nil {
		return err
	}
	defer client.Close()

	status, err := client.Execute(ctx, mpd.Cmd("status"))
	if err != nil {
		return fmt.Errorf("failed to query status: %w", err)
	}
	if st, _ := status.Get("state"); st != "play" {
		os.Exit(1)
		return nil
	}

	song, err := client.Execute(ctx, mpd.Cmd("currentsong"))
	if err != nil {
		return fmt.Errorf("failed to query current song: %w", err)
	}
	file, _ := song.Get("file")
	track := nowTrack{
		Title:  state.Track{URI: file}.DisplayTitle(),
		Artist: strings.Join(song.Values("Artist"), ", "),
		Album:  "",
		File:   file,
	}
	if title, ok := song.Get("Title"); ok && title != "" {
		track.Title = title
	}
	track.Album, _ = song.Get("Album")

	output, err := formatTrack(track, cfg.OutputFormat)
	if err != nil {
		return fmt.Errorf("failed to format output: %w", err)
	}

	width, _ := cmd.Flags().GetInt("width")
	if width == 0 {
		width = cfg.OutputWidth
	}
	if width > 0 {
		output = padToWidth(output, width)
	}

	fmt.Println(output)
	return nil
}

// formatTrack applies the template to the track data
func formatTrack(track nowTrack, templateStr string) (string, error) {
	tmpl, err := template.New("output").Parse(templateStr)
	if err != nil {
		return "", fmt.Errorf("invalid template: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, track); err != nil {
		return "", fmt.Errorf("template execution failed: %w", err)
	}

	return buf.String(), nil
}

// padToWidth pads or truncates text to a fixed display width, measured
// in display columns so wide characters count double. Text longer than
// width is truncated with a "..." suffix.
func padToWidth(text string, width int) string {
	if width <= 0 {
		return text
	}

	currentWidth := runewidth.StringWidth(text)
	switch {
	case currentWidth > width:
		ellipsis := "..."
		ellipsisWidth := runewidth.StringWidth(ellipsis)
		if width <= ellipsisWidth {
			return runewidth.Truncate(ellipsis, width, "")
		}
		result := runewidth.Truncate(text, width-ellipsisWidth, "") + ellipsis
		if got := runewidth.StringWidth(result); got < width {
			return result + strings.Repeat(" ", width-got)
		}
		return result
	case currentWidth < width:
		return text + strings.Repeat(" ", width-currentWidth)
	default:
		return text
	}
}
