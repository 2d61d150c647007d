// Package cli wires the cobra command tree for the seqstore binary: a
// persistent --log filter shared by every subcommand, and a serve
// subcommand that loads config and runs the daemon.
package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

var logLevel string

// NewRootCommand builds the root "seqstore" command.
func NewRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "seqstore",
		Short: "Embedded event-sourcing engine",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level, err := parseLogLevel(logLevel)
			if err != nil {
				return err
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})))
			return nil
		},
	}

	root.PersistentFlags().StringVar(&logLevel, "log", "info", "log filter: debug|info|warn|error")
	root.AddCommand(newServeCommand())
	return root
}

func parseLogLevel(level string) (slog.Level, error) {
	switch level {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("invalid --log value %q", level)
	}
}

// Execute runs the root command and maps an invalid --log value (or any
// other command error) to process exit code 1.
func Execute() {
	if err := NewRootCommand().Execute(); err != nil {
		slog.Error("seqstore exiting", "error", err)
		os.Exit(1)
	}
}
