package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the keyboard guard",
	Long: `Run the keyboard guard in the foreground. The hook stays idle until a
rule is activated over the control API, from the tray menu, or with --lock.`,
	Args: cobra.NoArgs,
	RunE: runRun,
}

func init() {
	runCmd.Flags().Bool("lock", false, "Block all keys as soon as the guard starts")
	runCmd.Flags().Bool("tray", false, "Show the system tray menu")

	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	if cmd.Flags().Changed("lock") {
		cfg.Hook.LockOnStart, _ = cmd.Flags().GetBool("lock")
	}
	if cmd.Flags().Changed("tray") {
		cfg.Tray.Enabled, _ = cmd.Flags().GetBool("tray")
	}

	agent, err := NewAgent(cfg, logger)
	if err != nil {
		return err
	}

	// Setup signal handling for graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := agent.Run(ctx); err != nil {
		return err
	}

	logger.Info("Keyguard stopped")
	return nil
}
