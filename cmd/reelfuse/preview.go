package main

import (
	"fmt"
	"image/png"
	"os"

	"github.com/spf13/cobra"

	"github.com/therealutkarshpriyadarshi/reelfuse/internal/jobs"
)

var (
	previewAt     float64
	previewOutput string
)

var previewCmd = &cobra.Command{
	Use:   "preview",
	Short: "Write the composited frame at a point on the timeline as PNG",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		logger, err := newLogger()
		if err != nil {
			return err
		}
		m, err := LoadManifest(manifestPath)
		if err != nil {
			return err
		}

		renderer := jobs.NewFFmpegRenderer(cfg.Composer, nil, logger.Component("renderer"))
		if err := m.FillDurations(cmd.Context(), renderer.FFmpeg()); err != nil {
			return err
		}

		frame, err := renderer.Preview(cmd.Context(), m.ComposeSpec, previewAt)
		if err != nil {
			return err
		}

		f, err := os.Create(previewOutput)
		if err != nil {
			return err
		}
		if err := png.Encode(f, frame); err != nil {
			f.Close()
			return fmt.Errorf("failed to encode frame: %w", err)
		}
		return f.Close()
	},
}

func init() {
	previewCmd.Flags().StringVarP(&manifestPath, "manifest", "m", "project.yaml", "project manifest")
	previewCmd.Flags().StringVarP(&previewOutput, "output", "o", "frame.png", "output PNG")
	previewCmd.Flags().Float64Var(&previewAt, "at", 0, "timeline position in seconds")
}
