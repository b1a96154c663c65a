package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/therealutkarshpriyadarshi/reelfuse/internal/media"
	"github.com/therealutkarshpriyadarshi/reelfuse/internal/timeline"
	"github.com/therealutkarshpriyadarshi/reelfuse/pkg/models"
)

var timelineCmd = &cobra.Command{
	Use:   "timeline",
	Short: "Print where each clip and narration track sits on the timeline",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		m, err := LoadManifest(manifestPath)
		if err != nil {
			return err
		}
		ff := media.NewFFmpeg(cfg.Composer.FFmpegPath, cfg.Composer.FFprobePath)
		if err := m.FillDurations(cmd.Context(), ff); err != nil {
			return err
		}
		return printTimeline(cmd.OutOrStdout(), m.ComposeSpec)
	},
}

func init() {
	timelineCmd.Flags().StringVarP(&manifestPath, "manifest", "m", "project.yaml", "project manifest")
}

func printTimeline(w io.Writer, spec models.ComposeSpec) error {
	spec = spec.Normalized()
	tl := timeline.New(spec.Clips, spec.Overlap)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "total\t%.3fs\toverlap\t%.3fs\n\n", tl.Total(), tl.Overlap)
	fmt.Fprintln(tw, "#\tclip\tstart\tend\tduration\tnarration")
	for _, s := range tl.Spans() {
		narr := "-"
		if s.Index < len(spec.Narration) {
			narr = fmt.Sprintf("%.3f-%.3f", tl.Start(s.Index), tl.Stop(s.Index))
		}
		id := s.ClipID
		if s.Virtual {
			id += " (virtual)"
		}
		fmt.Fprintf(tw, "%d\t%s\t%.3f\t%.3f\t%.3f\t%s\n", s.Index, id, s.Start, s.End, s.Duration, narr)
	}
	return tw.Flush()
}
