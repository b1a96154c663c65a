package main

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/therealutkarshpriyadarshi/reelfuse/internal/media"
	"github.com/therealutkarshpriyadarshi/reelfuse/pkg/models"
)

// Manifest is a project file. Relative media paths resolve against the
// manifest's directory.
type Manifest struct {
	Name       string `yaml:"name"`
	ScriptFile string `yaml:"script_file,omitempty"`

	models.ComposeSpec `yaml:",inline"`
}

// LoadManifest reads and resolves a manifest file
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse manifest %s: %w", path, err)
	}

	base := filepath.Dir(path)
	for i := range m.Clips {
		m.Clips[i].URL = resolve(base, m.Clips[i].URL)
		if m.Clips[i].ID == "" {
			m.Clips[i].ID = fmt.Sprintf("clip-%d", i+1)
		}
	}
	for i := range m.Narration {
		m.Narration[i].URL = resolve(base, m.Narration[i].URL)
	}

	if m.Script == "" && m.ScriptFile != "" {
		script, err := os.ReadFile(resolve(base, m.ScriptFile))
		if err != nil {
			return nil, fmt.Errorf("failed to read script: %w", err)
		}
		m.Script = string(script)
	}

	return &m, nil
}

// resolve joins relative local paths onto base and leaves URLs alone
func resolve(base, ref string) string {
	if ref == "" || filepath.IsAbs(ref) {
		return ref
	}
	if u, err := url.Parse(ref); err == nil && u.Scheme != "" {
		return ref
	}
	return filepath.Join(base, ref)
}

// FillDurations probes real clips that have no duration set
func (m *Manifest) FillDurations(ctx context.Context, prober media.Prober) error {
	for i, c := range m.Clips {
		if c.Duration > 0 {
			continue
		}
		if c.IsVirtual() {
			return fmt.Errorf("clip %d (%s): virtual clips need a duration", i, c.ID)
		}
		info, err := prober.ExtractClipInfo(ctx, c.URL)
		if err != nil {
			return fmt.Errorf("clip %d (%s): %w", i, c.ID, err)
		}
		if info.Duration <= 0 {
			return fmt.Errorf("clip %d (%s): could not determine duration", i, c.ID)
		}
		m.Clips[i].Duration = info.Duration
	}
	return nil
}
