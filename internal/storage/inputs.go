package storage

import (
	"context"
	"fmt"
	"path"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/therealutkarshpriyadarshi/reelfuse/pkg/models"
)

// Scheme marks a media reference as an object key in the bucket
const Scheme = "storage://"

// Downloader fetches an object to a local path
type Downloader interface {
	DownloadFile(ctx context.Context, objectName, filePath string) error
}

// ObjectKey reports whether ref names a bucket object and returns its key
func ObjectKey(ref string) (string, bool) {
	if !strings.HasPrefix(ref, Scheme) {
		return "", false
	}
	key := strings.TrimPrefix(ref, Scheme)
	return key, key != ""
}

// FetchInputs downloads every storage:// clip and narration reference into
// dir and returns a copy of spec pointing at the local files. Other
// references are passed through for ffmpeg to read directly.
func FetchInputs(ctx context.Context, dl Downloader, spec models.ComposeSpec, dir string, limit int) (models.ComposeSpec, error) {
	out := spec
	out.Clips = append([]models.Clip(nil), spec.Clips...)
	out.Narration = append([]models.NarrationTrack(nil), spec.Narration...)

	g, ctx := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}

	fetch := func(prefix string, i int, ref *string) {
		key, ok := ObjectKey(*ref)
		if !ok {
			return
		}
		local := filepath.Join(dir, fmt.Sprintf("%s%d%s", prefix, i, path.Ext(key)))
		*ref = local
		g.Go(func() error {
			return dl.DownloadFile(ctx, key, local)
		})
	}

	for i := range out.Clips {
		fetch("clip", i, &out.Clips[i].URL)
	}
	for i := range out.Narration {
		fetch("narration", i, &out.Narration[i].URL)
	}

	if err := g.Wait(); err != nil {
		return spec, fmt.Errorf("failed to fetch inputs: %w", err)
	}
	return out, nil
}
