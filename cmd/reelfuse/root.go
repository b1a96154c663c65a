package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/therealutkarshpriyadarshi/reelfuse/internal/config"
	"github.com/therealutkarshpriyadarshi/reelfuse/internal/logging"
)

var (
	configPath string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "reelfuse",
	Short: "Compose short vertical videos from clips, narration and a script",
	Long: `Reelfuse lays clips end to end with overlapping transitions, syncs up to
four narration tracks to them, draws subtitles from a script, and exports the
result as a video container or a WAV narration mix. Projects are described in
a YAML manifest.`,
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (defaults apply when empty)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, error")

	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(previewCmd)
	rootCmd.AddCommand(timelineCmd)
}

// loadConfig returns the configured settings, or the defaults when no
// config file was given
func loadConfig() (*config.Config, error) {
	if configPath == "" {
		return config.Defaults(), nil
	}
	return config.Load(configPath)
}

func newLogger() (*logging.Logger, error) {
	return logging.NewLogger(logging.Config{Level: logLevel, Format: "console", Output: "stderr"})
}
