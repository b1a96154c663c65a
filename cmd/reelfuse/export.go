package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/therealutkarshpriyadarshi/reelfuse/internal/composer"
	"github.com/therealutkarshpriyadarshi/reelfuse/internal/jobs"
	"github.com/therealutkarshpriyadarshi/reelfuse/pkg/models"
)

var (
	manifestPath string
	outputPath   string
	container    string
	realtime     bool
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export a project",
	Long:  "Render a project manifest to a video container or a WAV narration mix.",
}

var exportVideoCmd = &cobra.Command{
	Use:   "video",
	Short: "Record the composited video with the narration mix",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runExport(cmd.Context(), models.ExportVideo)
	},
}

var exportAudioCmd = &cobra.Command{
	Use:   "audio",
	Short: "Render the narration mix aligned to the timeline as WAV",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runExport(cmd.Context(), models.ExportAudio)
	},
}

var exportConcatCmd = &cobra.Command{
	Use:   "concat",
	Short: "Lay the narration segments end to end as WAV",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runExport(cmd.Context(), models.ExportAudioConcat)
	},
}

func init() {
	exportCmd.PersistentFlags().StringVarP(&manifestPath, "manifest", "m", "project.yaml", "project manifest")
	exportCmd.PersistentFlags().StringVarP(&outputPath, "output", "o", "", "output file (required)")
	exportCmd.MarkPersistentFlagRequired("output")

	exportVideoCmd.Flags().StringVar(&container, "container", "", "webm or mp4 (defaults to the output extension)")
	exportVideoCmd.Flags().BoolVar(&realtime, "realtime", false, "pace frames from the wall clock instead of stepping")

	exportCmd.AddCommand(exportVideoCmd)
	exportCmd.AddCommand(exportAudioCmd)
	exportCmd.AddCommand(exportConcatCmd)
}

// containerFor picks the container from the flag or the output extension
func containerFor(flag, output, fallback string) string {
	if flag != "" {
		return flag
	}
	switch filepath.Ext(output) {
	case ".mp4":
		return "mp4"
	case ".webm":
		return "webm"
	}
	return fallback
}

func runExport(ctx context.Context, kind models.ExportKind) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

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

	cfg.Composer.Container = containerFor(container, outputPath, cfg.Composer.Container)
	if realtime {
		cfg.Composer.Realtime = true
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	renderer := jobs.NewFFmpegRenderer(cfg.Composer, nil, logger.Component("renderer"))
	if err := m.FillDurations(ctx, renderer.FFmpeg()); err != nil {
		return err
	}

	out, err := filepath.Abs(outputPath)
	if err != nil {
		return err
	}

	name := m.Name
	if name == "" {
		name = filepath.Base(manifestPath)
	}
	last := -1
	progress := func(st composer.Status) {
		if pct := int(st.Progress) / 10; pct > last {
			last = pct
			logger.LogExportProgress(name, st.Progress, st.Global, st.Index)
		}
	}

	start := time.Now()
	logger.WithFields(map[string]interface{}{
		"kind":   string(kind),
		"clips":  len(m.Clips),
		"tracks": len(m.Narration),
		"output": out,
	}).Info("Export started")

	if err := renderer.Render(ctx, kind, m.ComposeSpec, out, progress); err != nil {
		return fmt.Errorf("export failed: %w", err)
	}

	info, err := os.Stat(out)
	if err != nil {
		return err
	}
	logger.WithFields(map[string]interface{}{
		"output":     out,
		"size_bytes": info.Size(),
		"duration":   time.Since(start).String(),
	}).Info("Export finished")
	return nil
}
