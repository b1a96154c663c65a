package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/therealutkarshpriyadarshi/reelfuse/internal/logging"
	"github.com/therealutkarshpriyadarshi/reelfuse/pkg/models"
)

func TestContentType(t *testing.T) {
	tests := []struct {
		filePath string
		wantType string
	}{
		{"out.mp4", "video/mp4"},
		{"out.webm", "video/webm"},
		{"mix.wav", "audio/wav"},
		{"vo.mp3", "audio/mpeg"},
		{"frame.png", "image/png"},
		{"unknown.xyz", "application/octet-stream"},
	}

	for _, tt := range tests {
		t.Run(tt.filePath, func(t *testing.T) {
			assert.Equal(t, tt.wantType, ContentType(tt.filePath))
		})
	}
}

func TestArtifactKey(t *testing.T) {
	assert.Equal(t, "exports/job-1/mix.wav", ArtifactKey("job-1", "mix.wav"))
}

func TestMediaKey(t *testing.T) {
	assert.Equal(t, "media/abc/voice.mp3", MediaKey("abc", "voice.mp3"))
	assert.Equal(t, "media/abc/clip.mp4", MediaKey("abc", "../../clip.mp4"))
}

func TestObjectKey(t *testing.T) {
	key, ok := ObjectKey("storage://inputs/a.mp4")
	assert.True(t, ok)
	assert.Equal(t, "inputs/a.mp4", key)

	_, ok = ObjectKey("https://cdn.example.com/a.mp4")
	assert.False(t, ok)
	_, ok = ObjectKey("storage://")
	assert.False(t, ok)
}

type fakeDownloader struct {
	mu   sync.Mutex
	got  map[string]string
	fail string
}

func (d *fakeDownloader) DownloadFile(ctx context.Context, objectName, filePath string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if objectName == d.fail {
		return errors.New("no such key")
	}
	if d.got == nil {
		d.got = map[string]string{}
	}
	d.got[objectName] = filePath
	return nil
}

func TestFetchInputs(t *testing.T) {
	dir := t.TempDir()
	spec := models.ComposeSpec{
		Clips: []models.Clip{
			{ID: "a", URL: "storage://inputs/a.mp4", Duration: 3},
			{ID: "b", Duration: 2},
			{ID: "c", URL: "https://cdn.example.com/c.mp4", Duration: 2},
		},
		Narration: []models.NarrationTrack{{URL: "storage://vo/0.mp3"}},
	}

	dl := &fakeDownloader{}
	out, err := FetchInputs(context.Background(), dl, spec, dir, 2)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, "clip0.mp4"), out.Clips[0].URL)
	assert.Equal(t, "", out.Clips[1].URL, "virtual clips stay virtual")
	assert.Equal(t, "https://cdn.example.com/c.mp4", out.Clips[2].URL)
	assert.Equal(t, filepath.Join(dir, "narration0.mp3"), out.Narration[0].URL)
	assert.Len(t, dl.got, 2)

	assert.Equal(t, "storage://inputs/a.mp4", spec.Clips[0].URL, "input spec is not modified")
}

func TestFetchInputsFailure(t *testing.T) {
	spec := models.ComposeSpec{
		Clips: []models.Clip{{ID: "a", URL: "storage://inputs/a.mp4", Duration: 3}},
	}
	_, err := FetchInputs(context.Background(), &fakeDownloader{fail: "inputs/a.mp4"}, spec, t.TempDir(), 0)
	assert.Error(t, err)
}

func TestRecordLogsOperation(t *testing.T) {
	var buf bytes.Buffer
	s := &Storage{bucketName: "reelfuse", logger: logging.New(&buf, "info", "json")}

	s.record("upload", "exports/job-1/export.webm", time.Now(), 2048, nil)
	s.record("download", "media/a/clip.mp4", time.Now(), 0, errors.New("no such key"))

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 2)

	var first, second map[string]interface{}
	require.NoError(t, json.Unmarshal(lines[0], &first))
	require.NoError(t, json.Unmarshal(lines[1], &second))
	assert.Equal(t, "upload", first["operation"])
	assert.Equal(t, "reelfuse", first["bucket"])
	assert.Equal(t, "exports/job-1/export.webm", first["key"])
	assert.Equal(t, float64(2048), first["size_bytes"])
	assert.Equal(t, "info", first["level"])
	assert.Equal(t, "error", second["level"])
	assert.Equal(t, "no such key", second["error"])
}
