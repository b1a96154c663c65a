package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComposeSpecNormalized(t *testing.T) {
	spec := ComposeSpec{
		Clips:   []Clip{{ID: "a", Duration: 3}},
		Overlap: -2,
		Narration: []NarrationTrack{
			{Index: 7, URL: "n0"}, {URL: "n1"}, {URL: "n2"}, {URL: "n3"}, {URL: "n4"},
		},
	}

	n := spec.Normalized()

	assert.Equal(t, TransitionCrossFade, n.Transition)
	assert.Equal(t, SubtitleDynamic, n.Subtitles.Mode)
	assert.Equal(t, 0.0, n.Overlap)
	require.Len(t, n.Narration, MaxNarrationTracks)
	for i, track := range n.Narration {
		assert.Equal(t, i, track.Index)
	}
	assert.Equal(t, []string{"n0", "n1", "n2", "n3"}, n.NarrationURLs())

	// The input is left untouched.
	assert.Equal(t, 7, spec.Narration[0].Index)
	assert.Len(t, spec.Narration, 5)
}

func TestComposeSpecNormalizedKeepsChoices(t *testing.T) {
	n := ComposeSpec{
		Transition: TransitionFadeToBlack,
		Subtitles:  SubtitleOptions{Enabled: true, Mode: SubtitleStatic},
		Overlap:    0.5,
	}.Normalized()

	assert.Equal(t, TransitionFadeToBlack, n.Transition)
	assert.Equal(t, SubtitleStatic, n.Subtitles.Mode)
	assert.Equal(t, 0.5, n.Overlap)
	assert.Empty(t, n.Narration)
}

func TestComposeSpecScan(t *testing.T) {
	spec := ComposeSpec{Clips: []Clip{{ID: "a", URL: "a.mp4", Duration: 2}}, Script: "Hello there."}
	v, err := spec.Value()
	require.NoError(t, err)

	var fromBytes ComposeSpec
	require.NoError(t, fromBytes.Scan(v))
	assert.Equal(t, spec, fromBytes)

	var fromString ComposeSpec
	require.NoError(t, fromString.Scan(string(v.([]byte))))
	assert.Equal(t, spec, fromString)

	var fromNil ComposeSpec
	assert.NoError(t, fromNil.Scan(nil))

	assert.Error(t, fromNil.Scan(42))
}

func TestClipIsVirtual(t *testing.T) {
	assert.True(t, Clip{ID: "a", Duration: 1}.IsVirtual())
	assert.False(t, Clip{ID: "b", URL: "b.mp4", Duration: 1}.IsVirtual())
}

func TestExportJobJSON(t *testing.T) {
	job := ExportJob{ID: "j", Kind: ExportAudioConcat, Status: JobStatusQueued}
	data, err := json.Marshal(job)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"kind":"audio_concat"`)
	assert.NotContains(t, string(data), "artifact_url")

	assert.True(t, ExportVideo.Valid())
	assert.False(t, ExportKind("gif").Valid())
	assert.False(t, job.Terminal())
	job.Status = JobStatusCancelled
	assert.True(t, job.Terminal())
}
