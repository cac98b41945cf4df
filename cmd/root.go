/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>

*/
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/godbus/dbus/v5"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/szclsya/mpdris2/internal/art"
	"github.com/szclsya/mpdris2/internal/bridge"
	"github.com/szclsya/mpdris2/internal/config"
	"github.com/szclsya/mpdris2/internal/mpris"
	"github.com/szclsya/mpdris2/internal/notify"
	"github.com/szclsya/mpdris2/internal/state"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

var (
	flagHost           string
	flagPort           int
	flagNoNotification bool
	flagLogFile        string
	flagVerbosity      int
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "mpdris2",
	Short: "MPRIS2 bridge for the Music Player Daemon",
	Long: `mpdris2 exposes a running MPD instance on the D-Bus session bus
using the MPRIS2 media player interface.

It connects to the daemon, mirrors playback and queue state, and lets
desktop environments, media key handlers and applets control MPD like
any other media player. Track changes are relayed as desktop
notifications unless disabled.

The bridge runs in the foreground and reconnects automatically when
the daemon goes away. MPD_HOST and MPD_PORT are honoured the same way
other MPD clients honour them.`,
	Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
	RunE:    runBridge,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.Flags().StringVar(&flagHost, "host", "", "MPD host or Unix socket path (default: localhost, or MPD_HOST)")
	rootCmd.Flags().IntVar(&flagPort, "port", 0, "MPD port (default: 6600, or MPD_PORT)")
	rootCmd.Flags().BoolVar(&flagNoNotification, "no-notification", false, "Disable desktop notifications")
	rootCmd.Flags().StringVar(&flagLogFile, "log-file", "", "Log file path (default: stderr)")
	rootCmd.PersistentFlags().CountVarP(&flagVerbosity, "verbose", "v", "Increase log verbosity (-v debug, -vv trace)")
}

func runBridge(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if flagHost != "" {
		cfg.Host = flagHost
	}
	if flagPort != 0 {
		cfg.Port = flagPort
	}
	if flagNoNotification {
		cfg.NoNotification = true
	}

	logger := setupLogger(flagLogFile, flagVerbosity)

	logger.Info().
		Str("version", version).
		Str("mpd_addr", cfg.Addr()).
		Msg("Starting mpdris2")

	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return fmt.Errorf("failed to connect to session bus: %w", err)
	}
	defer conn.Close()

	artCache, err := art.NewFetcher(cfg.ArtCacheDir, logger)
	if err != nil {
		logger.Warn().Err(err).Msg("Album art cache unavailable")
		artCache = nil
	}

	model := state.NewModel()
	b := bridge.New(bridge.Config{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
	}, model, artCache, logger)

	adapter, err := mpris.Start(conn, model, b, logger)
	if err != nil {
		return fmt.Errorf("failed to export MPRIS interface: %w", err)
	}
	b.AddListener(adapter)

	if !cfg.NoNotification {
		b.AddListener(notify.New(conn, logger))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// First signal asks for a graceful stop, second one forces exit.
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info().Msg("Shutting down")
		cancel()
		<-sigCh
		logger.Warn().Msg("Forced exit")
		os.Exit(1)
	}()

	if err := b.Run(ctx); err != nil {
		return fmt.Errorf("bridge error: %w", err)
	}

	logger.Info().Msg("Stopped")
	return nil
}

// setupLogger creates a logger with the specified configuration
func setupLogger(logFile string, verbosity int) zerolog.Logger {
	level := zerolog.InfoLevel
	switch {
	case verbosity == 1:
		level = zerolog.DebugLevel
	case verbosity >= 2:
		level = zerolog.TraceLevel
	}

	// Set up output
	var output *os.File
	if logFile != "" {
		f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open log file: %v\n", err)
			output = os.Stderr
		} else {
			output = f
		}
	} else {
		output = os.Stderr
	}

	logger := zerolog.New(output).
		Level(level).
		With().
		Timestamp().
		Logger()

	// Use pretty console output if logging to stderr
	if output == os.Stderr {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}

	return logger
}
