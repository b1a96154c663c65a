package render

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/therealutkarshpriyadarshi/reelfuse/pkg/models"
)

func TestProgress(t *testing.T) {
	tests := []struct {
		name      string
		remaining float64
		overlap   float64
		want      float64
	}{
		{"start of overlap", 1, 1, 0},
		{"half way", 0.5, 1, 0.5},
		{"end", 0, 1, 1},
		{"before overlap", 2, 1, 0},
		{"past end", -0.2, 1, 1},
		{"no overlap", 0.3, 0, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, Progress(tt.remaining, tt.overlap), 1e-9)
		})
	}
}

func TestBlend_CrossFade(t *testing.T) {
	assert.Equal(t, Layers{Active: 1, Incoming: 0}, Blend(models.TransitionCrossFade, 0))
	assert.Equal(t, Layers{Active: 1, Incoming: 0.25}, Blend(models.TransitionCrossFade, 0.25))
	assert.Equal(t, Layers{Active: 1, Incoming: 1}, Blend(models.TransitionCrossFade, 1))
}

func TestBlend_FadeToBlack(t *testing.T) {
	tests := []struct {
		p    float64
		want Layers
	}{
		{0, Layers{Active: 1}},
		{0.25, Layers{Active: 0.5}},
		{0.5, Layers{Incoming: 0}},
		{0.75, Layers{Incoming: 0.5}},
		{1, Layers{Incoming: 1}},
	}

	for _, tt := range tests {
		got := Blend(models.TransitionFadeToBlack, tt.p)
		assert.InDelta(t, tt.want.Active, got.Active, 1e-9, "p=%v", tt.p)
		assert.InDelta(t, tt.want.Incoming, got.Incoming, 1e-9, "p=%v", tt.p)
	}
}

func TestCoverRect(t *testing.T) {
	// Landscape source into a portrait target scales by height.
	w, h := CoverRect(1920, 1080, 1080, 1920)
	assert.Equal(t, 1920, h)
	assert.GreaterOrEqual(t, w, 1080)
	assert.InDelta(t, 3414, w, 1)

	w, h = CoverRect(1080, 1920, 1080, 1920)
	assert.Equal(t, 1080, w)
	assert.Equal(t, 1920, h)

	w, h = CoverRect(0, 0, 10, 20)
	assert.Equal(t, 10, w)
	assert.Equal(t, 20, h)
}

func TestDrawCover_CentersAndCrops(t *testing.T) {
	// Left half red, right half blue; a square target shows the middle.
	src := image.NewRGBA(image.Rect(0, 0, 40, 20))
	for y := 0; y < 20; y++ {
		for x := 0; x < 40; x++ {
			if x < 20 {
				src.Set(x, y, color.RGBA{255, 0, 0, 255})
			} else {
				src.Set(x, y, color.RGBA{0, 0, 255, 255})
			}
		}
	}

	s := NewSurface(20, 20)
	s.DrawCover(src, 1)

	left := s.RGBAAt(1, 10)
	right := s.RGBAAt(18, 10)
	assert.Equal(t, uint8(255), left.R)
	assert.Equal(t, uint8(255), right.B)
}

func TestDrawCover_Alpha(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			img.Set(x, y, color.RGBA{200, 200, 200, 255})
		}
	}

	s := NewSurface(4, 4)
	s.Clear()
	s.DrawCover(img, 0.5)
	px := s.RGBAAt(2, 2)
	assert.InDelta(t, 100, int(px.R), 2)
	assert.Equal(t, uint8(255), px.A)

	// Zero opacity draws nothing.
	s.Clear()
	s.DrawCover(img, 0)
	assert.Equal(t, uint8(0), s.RGBAAt(2, 2).R)
}

func TestPaletteFor(t *testing.T) {
	assert.Equal(t, paletteProblem, PaletteFor("The Problem"))
	assert.Equal(t, paletteProblem, PaletteFor("masalah utama"))
	assert.Equal(t, paletteSolution, PaletteFor("Our SOLUTION"))
	assert.Equal(t, paletteSolution, PaletteFor("solusi"))
	assert.Equal(t, paletteDefault, PaletteFor("intro"))
}

func TestDrawPlaceholder(t *testing.T) {
	s := NewSurface(90, 160)
	s.Clear()
	s.DrawPlaceholder(0, "problem", 1)

	top := s.RGBAAt(2, 0)
	bottom := s.RGBAAt(2, 159)
	assert.Equal(t, paletteProblem.Top, top)
	assert.Equal(t, paletteProblem.Bottom, bottom)

	// Cached cards are reused.
	a := placeholderCard(0, "problem", 90, 160)
	b := placeholderCard(0, "problem", 90, 160)
	assert.Same(t, a, b)
}

func TestFace(t *testing.T) {
	f1, err := Face(24)
	require.NoError(t, err)
	f2, err := Face(24)
	require.NoError(t, err)
	assert.Same(t, f1, f2)
	assert.Greater(t, MeasureString(f1, "hello"), 0.0)
}
