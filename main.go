package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime"
	"strings"

	"github.com/spf13/cobra"

	"markestedt/keyguard/config"
)

var (
	cfg    *config.Config
	logger *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "keyguard",
	Short: "Block system key combinations",
	Long: `Keyguard installs a low-level keyboard hook and swallows system key
combinations (Windows/Command key, task switching, Alt/Option, F3, F11,
the Fn key and function keys) while their rules are active.

Run the guard with "keyguard run"; the other commands talk to the
running guard over its loopback control API.`,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
}

func init() {
	// the tray menu must run on the main thread on macOS
	runtime.LockOSThread()

	rootCmd.PersistentFlags().String("config", "", "config file (default is <user config dir>/keyguard/config.toml)")
	rootCmd.PersistentFlags().String("log-level", "", "log level override (debug, info, warn, error)")
	rootCmd.PersistentFlags().Int("port", 0, "control API port (default from config)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// setup loads the configuration, applies flag overrides and installs the
// default logger
func setup(cmd *cobra.Command, args []string) error {
	path, _ := cmd.Flags().GetString("config")

	var err error
	if path != "" {
		cfg, err = config.LoadFrom(path)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if level, _ := cmd.Flags().GetString("log-level"); level != "" {
		cfg.Log.Level = level
	}
	if cmd.Flags().Changed("port") {
		cfg.Control.Port, _ = cmd.Flags().GetInt("port")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err = newLogger(cfg.Log, os.Stderr)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	if path == "" {
		path, _ = config.ConfigPath()
	}
	logger.Debug("Configuration loaded", "path", path)
	return nil
}

// newLogger builds a text or JSON slog logger. Logs go to stderr so command
// output on stdout stays clean.
func newLogger(lc config.LogConfig, w io.Writer) (*slog.Logger, error) {
	level, err := config.ParseLevel(lc.Level)
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}

	switch strings.ToLower(lc.Format) {
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	case "", "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("unknown log format: %s", lc.Format)
	}
}
