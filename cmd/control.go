package cmd

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/szclsya/mpdris2/internal/config"
	"github.com/szclsya/mpdris2/internal/mpd"
)

// playCmd represents the play command
var playCmd = &cobra.Command{
	Use:   "play",
	Short: "Resume playback",
	Long:  `Resume playback. If stopped or paused, starts playing the current queue position.`,
	RunE:  runControl(mpd.Cmd("play")),
}

// pauseCmd represents the pause command
var pauseCmd = &cobra.Command{
	Use:   "pause",
	Short: "Pause playback",
	Long:  `Pause the currently playing track.`,
	RunE:  runControl(mpd.Cmd("pause", "1")),
}

// playpauseCmd represents the playpause command
var playpauseCmd = &cobra.Command{
	Use:   "playpause",
	Short: "Toggle play/pause",
	Long:  `Toggle between play and pause. A stopped player starts playing.`,
	RunE:  runPlayPause,
}

// nextCmd represents the next command
var nextCmd = &cobra.Command{
	Use:   "next",
	Short: "Skip to the next track",
	Long:  `Skip to the next track in the queue.`,
	RunE:  runControl(mpd.Cmd("next")),
}

// prevCmd represents the prev command
var prevCmd = &cobra.Command{
	Use:   "prev",
	Short: "Go to the previous track",
	Long:  `Go back to the previous track in the queue.`,
	RunE:  runControl(mpd.Cmd("previous")),
}

// shuffleCmd represents the shuffle command
var shuffleCmd = &cobra.Command{
	Use:   "shuffle [on|off]",
	Short: "Toggle or set random playback",
	Long: `Control MPD's random mode.

Without arguments, toggles random on/off.
With 'on' or 'off' argument, explicitly sets the state.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runShuffle,
}

// volumeCmd represents the volume command
var volumeCmd = &cobra.Command{
	Use:   "volume [0-100]",
	Short: "Show or set the playback volume",
	Long: `Set the playback volume, between 0 (muted) and 100 (maximum).

Without arguments, displays the current volume.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runVolume,
}

func init() {
	rootCmd.AddCommand(playCmd)
	rootCmd.AddCommand(pauseCmd)
	rootCmd.AddCommand(playpauseCmd)
	rootCmd.AddCommand(nextCmd)
	rootCmd.AddCommand(prevCmd)
	rootCmd.AddCommand(shuffleCmd)
	rootCmd.AddCommand(volumeCmd)
}

// dialMPD opens a short-lived connection for one-shot commands,
// authenticating when the config carries a password.
func dialMPD(ctx context.Context) (*mpd.Client, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	client, err := mpd.Connect(ctx, cfg.Addr(), zerolog.Nop())
	if err != nil {
		return nil, fmt.Errorf("failed to reach MPD: %w", err)
	}
	if cfg.Password != "" {
		if _, err := client.Execute(ctx, mpd.Cmd("password", cfg.Password)); err != nil {
			client.Close()
			return nil, fmt.Errorf("authentication failed: %w", err)
		}
	}
	return client, nil
}

// runControl builds a RunE that issues one fixed command.
func runControl(c mpd.Command) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		client, err := dialMPD(ctx)
		if err != nil {
			return err
		}
		defer client.Close()

		if _, err := client.Execute(ctx, c); err != nil {
			return fmt.Errorf("failed to %s: %w", c.Verb(), err)
		}
		return nil
	}
}

func runPlayPause(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	client, err := dialMPD(ctx)
	if err != nil {
		return err
	}
	defer client.Close()

	status, err := client.Execute(ctx, mpd.Cmd("status"))
	if err != nil {
		return fmt.Errorf("failed to query status: %w", err)
	}

	var toggle mpd.Command
	switch st, _ := status.Get("state"); st {
	case "play":
		toggle = mpd.Cmd("pause", "1")
	case "pause":
		toggle = mpd.Cmd("pause", "0")
	default:
		toggle = mpd.Cmd("play")
	}
	if _, err := client.Execute(ctx, toggle); err != nil {
		return fmt.Errorf("failed to toggle playback: %w", err)
	}
	return nil
}

func runShuffle(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	client, err := dialMPD(ctx)
	if err != nil {
		return err
	}
	defer client.Close()

	var enabled bool
	if len(args) == 0 {
		status, err := client.Execute(ctx, mpd.Cmd("status"))
		if err != nil {
			return fmt.Errorf("failed to query status: %w", err)
		}
		current, _ := status.GetBool("random")
		enabled = !current
	} else {
		switch args[0] {
		case "on":
			enabled = true
		case "off":
			enabled = false
		default:
			return fmt.Errorf("invalid shuffle argument: %s (must be 'on' or 'off')", args[0])
		}
	}

	arg := "0"
	if enabled {
		arg = "1"
	}
	if _, err := client.Execute(ctx, mpd.Cmd("random", arg)); err != nil {
		return fmt.Errorf("failed to set random mode: %w", err)
	}
	return nil
}

func runVolume(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	client, err := dialMPD(ctx)
	if err != nil {
		return err
	}
	defer client.Close()

	if len(args) == 0 {
		status, err := client.Execute(ctx, mpd.Cmd("status"))
		if err != nil {
			return fmt.Errorf("failed to query status: %w", err)
		}
		vol, ok := status.GetInt("volume")
		if !ok || vol < 0 {
			fmt.Println("Volume: n/a (no mixer)")
			return nil
		}
		fmt.Printf("Volume: %d%%\n", vol)
		return nil
	}

	level, err := strconv.Atoi(args[0])
	if err != nil || level < 0 || level > 100 {
		return fmt.Errorf("invalid volume level: %s (must be a number 0-100)", args[0])
	}
	if _, err := client.Execute(ctx, mpd.Cmd("setvol", strconv.Itoa(level))); err != nil {
		return fmt.Errorf("failed to set volume: %w", err)
	}
	return nil
}
