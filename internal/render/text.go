package render

import (
	"image"
	"image/color"
	"math"
	"sync"

	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/gobolditalic"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"
)

type faceKey struct {
	italic bool
	size   float64
}

var (
	fontsOnce  sync.Once
	boldFont   *opentype.Font
	italicFont *opentype.Font
	fontsErr   error

	facesMu sync.Mutex
	faces   = make(map[faceKey]font.Face)

	// Faces carry scratch buffers and are shared, so glyph work is serialized.
	textMu sync.Mutex
)

// Face returns a bold face at size pixels. Faces are cached per size.
func Face(size float64) (font.Face, error) {
	return loadFace(faceKey{size: size})
}

// ItalicFace returns a bold italic face at size pixels
func ItalicFace(size float64) (font.Face, error) {
	return loadFace(faceKey{italic: true, size: size})
}

func loadFace(key faceKey) (font.Face, error) {
	fontsOnce.Do(func() {
		if boldFont, fontsErr = opentype.Parse(gobold.TTF); fontsErr != nil {
			return
		}
		italicFont, fontsErr = opentype.Parse(gobolditalic.TTF)
	})
	if fontsErr != nil {
		return nil, fontsErr
	}

	facesMu.Lock()
	defer facesMu.Unlock()
	if f, ok := faces[key]; ok {
		return f, nil
	}
	src := boldFont
	if key.italic {
		src = italicFont
	}
	f, err := opentype.NewFace(src, &opentype.FaceOptions{
		Size:    key.size,
		DPI:     72,
		Hinting: font.HintingFull,
	})
	if err != nil {
		return nil, err
	}
	faces[key] = f
	return f, nil
}

// MeasureString returns the advance width of s in pixels
func MeasureString(face font.Face, s string) float64 {
	textMu.Lock()
	defer textMu.Unlock()
	return fixedToFloat(font.MeasureString(face, s))
}

// DrawString draws s with its baseline origin at (x, y)
func (s *Surface) DrawString(face font.Face, text string, x, y float64, c color.Color) {
	d := &font.Drawer{
		Dst:  s.RGBA,
		Src:  image.NewUniform(c),
		Face: face,
		Dot:  fixed.Point26_6{X: floatToFixed(x), Y: floatToFixed(y)},
	}
	textMu.Lock()
	d.DrawString(text)
	textMu.Unlock()
}

// DrawStringCentered draws s horizontally centered on cx
func (s *Surface) DrawStringCentered(face font.Face, text string, cx, y float64, c color.Color) {
	s.DrawString(face, text, cx-MeasureString(face, text)/2, y, c)
}

// DrawOutlined draws text with an outline of the given width around each glyph
func (s *Surface) DrawOutlined(face font.Face, text string, x, y, width float64, fill, outline color.Color) {
	if width > 0 {
		steps := int(math.Max(8, math.Ceil(2*math.Pi*width/2)))
		for i := 0; i < steps; i++ {
			a := 2 * math.Pi * float64(i) / float64(steps)
			s.DrawString(face, text, x+width*math.Cos(a), y+width*math.Sin(a), outline)
		}
	}
	s.DrawString(face, text, x, y, fill)
}

func floatToFixed(v float64) fixed.Int26_6 {
	return fixed.Int26_6(math.Round(v * 64))
}

func fixedToFloat(v fixed.Int26_6) float64 {
	return float64(v) / 64
}
