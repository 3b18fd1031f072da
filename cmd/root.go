package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

var (
	logLevel string
	dataDir  string
	logger   *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "tilefit",
	Short: "Reassemble an image from its shuffled tiles",
	Long: `tilefit rebuilds a reference image from a directory of tile images.
Each round it scores every remaining tile against the canvas region under a
row-major cursor and commits the best match, either as a one-shot CLI run or
as jobs on an HTTP server with live progress.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		var level slog.Level
		switch logLevel {
		case "debug":
			level = slog.LevelDebug
		case "warn":
			level = slog.LevelWarn
		case "error":
			level = slog.LevelError
		default:
			level = slog.LevelInfo
		}

		// Logs go to stderr so stdout stays for command output
		handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})
		logger = slog.New(handler)
		slog.SetDefault(logger)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "./data", "Base directory for stored results")
}
