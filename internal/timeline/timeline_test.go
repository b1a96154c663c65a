package timeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/therealutkarshpriyadarshi/reelfuse/pkg/models"
)

func clipsOf(durations ...float64) []models.Clip {
	clips := make([]models.Clip, len(durations))
	for i, d := range durations {
		clips[i] = models.Clip{ID: string(rune('a' + i)), Duration: d}
	}
	return clips
}

func TestTotalDuration(t *testing.T) {
	tests := []struct {
		name     string
		clips    []models.Clip
		overlap  float64
		expected float64
	}{
		{"three clips", clipsOf(6, 4, 5), 1, 13},
		{"two clips", clipsOf(10, 8), 1, 17},
		{"no overlap", clipsOf(3, 3), 0, 6},
		{"single clip", clipsOf(7.5), 1, 7.5},
		{"empty", nil, 1, FallbackDuration},
		{"floored", clipsOf(0.5, 0.5), 0.4, MinDuration},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.expected, TotalDuration(tt.clips, tt.overlap), 1e-9)
		})
	}
}

func TestLocate(t *testing.T) {
	clips := clipsOf(6, 4, 5)

	t.Run("InsideSecondClip", func(t *testing.T) {
		idx, local := Locate(clips, 1, 6.5)
		assert.Equal(t, 1, idx)
		assert.InDelta(t, 1.5, local, 1e-9)
	})

	t.Run("SpanBoundaryBelongsToNextClip", func(t *testing.T) {
		idx, local := Locate(clips, 1, 5)
		assert.Equal(t, 1, idx)
		assert.InDelta(t, 0, local, 1e-9)
	})

	t.Run("Start", func(t *testing.T) {
		idx, local := Locate(clips, 1, 0)
		assert.Equal(t, 0, idx)
		assert.Zero(t, local)
	})

	t.Run("NegativeClampsToStart", func(t *testing.T) {
		idx, local := Locate(clips, 1, -3)
		assert.Equal(t, 0, idx)
		assert.Zero(t, local)
	})

	t.Run("PastEndClampsToLastClip", func(t *testing.T) {
		idx, local := Locate(clips, 1, 100)
		assert.Equal(t, 2, idx)
		assert.InDelta(t, 5, local, 1e-9)
	})

	t.Run("Empty", func(t *testing.T) {
		idx, local := Locate(nil, 1, 4)
		assert.Equal(t, 0, idx)
		assert.Zero(t, local)
	})
}

func TestLocatePartitionsTotalDuration(t *testing.T) {
	clips := clipsOf(6, 4, 5)
	total := TotalDuration(clips, 1)

	prevIdx := 0
	for g := 0.0; g < total; g += 0.05 {
		idx, local := Locate(clips, 1, g)
		require.GreaterOrEqual(t, idx, prevIdx, "clip index must not go backwards at %v", g)
		assert.InDelta(t, g, TrackStart(clips, 1, idx)+local, 1e-9)
		prevIdx = idx
	}
}

func TestTrackStart(t *testing.T) {
	clips := clipsOf(5, 4, 9)

	assert.InDelta(t, 0, TrackStart(clips, 1, 0), 1e-9)
	assert.InDelta(t, 4, TrackStart(clips, 1, 1), 1e-9)
	assert.InDelta(t, 7, TrackStart(clips, 1, 2), 1e-9)

	// Tracks past the clip list stop accumulating
	assert.InDelta(t, 4+3+8, TrackStart(clips, 1, 3), 1e-9)
}

func TestTrackStop(t *testing.T) {
	clips := clipsOf(10, 8)

	assert.InDelta(t, 10, TrackStop(clips, 1, 0), 1e-9)
	assert.InDelta(t, 17, TrackStop(clips, 1, 1), 1e-9)
	assert.InDelta(t, TrackStart(clips, 1, 5), TrackStop(clips, 1, 5), 1e-9)
}

func TestTwoClipScenario(t *testing.T) {
	tl := New(clipsOf(10, 8), 1)

	assert.InDelta(t, 17, tl.Total(), 1e-9)
	assert.InDelta(t, 9, tl.Start(1), 1e-9)

	idx, local := tl.Locate(9)
	assert.Equal(t, 1, idx)
	assert.InDelta(t, 0, local, 1e-9)
}

func TestClampOverlap(t *testing.T) {
	assert.Zero(t, ClampOverlap(clipsOf(4, 4), -2))
	assert.InDelta(t, 1, ClampOverlap(clipsOf(4, 4), 1), 1e-9)
	assert.InDelta(t, 1.5, ClampOverlap(clipsOf(6, 3, 8), 2.5), 1e-9)
	assert.InDelta(t, 9, ClampOverlap(clipsOf(4), 9), 1e-9, "single clip has no neighbours to clamp against")
}

func TestNewCopiesClips(t *testing.T) {
	clips := clipsOf(3, -1)
	tl := New(clips, 0.5)

	clips[0].Duration = 99
	assert.InDelta(t, 3, tl.Clips[0].Duration, 1e-9)
	assert.Zero(t, tl.Clips[1].Duration)
	assert.Zero(t, tl.Overlap)
}

func TestSpans(t *testing.T) {
	tl := New([]models.Clip{
		{ID: "intro", URL: "a.mp4", Duration: 6},
		{ID: "card", Duration: 4, Label: "Solution"},
		{ID: "outro", URL: "c.mp4", Duration: 5},
	}, 1)

	spans := tl.Spans()
	require.Len(t, spans, 3)
	assert.Equal(t, Span{Index: 0, ClipID: "intro", Start: 0, End: 5, Duration: 6}, spans[0])
	assert.Equal(t, Span{Index: 1, ClipID: "card", Start: 5, End: 8, Duration: 4, Virtual: true}, spans[1])
	assert.InDelta(t, tl.Total(), spans[2].End, 1e-9)
}
