package render

import (
	"image"
	"image/color"
	"strconv"
	"strings"
	"sync"
)

const maxCachedCards = 16

type cardKey struct {
	index  int
	label  string
	width  int
	height int
}

var (
	cardsMu sync.Mutex
	cards   = make(map[cardKey]*image.RGBA)
)

// Palette is the vertical gradient behind a clip without footage
type Palette struct {
	Top    color.RGBA
	Bottom color.RGBA
}

var (
	paletteProblem  = Palette{Top: color.RGBA{127, 29, 29, 255}, Bottom: color.RGBA{239, 68, 68, 255}}
	paletteSolution = Palette{Top: color.RGBA{20, 83, 45, 255}, Bottom: color.RGBA{34, 197, 94, 255}}
	paletteDefault  = Palette{Top: color.RGBA{30, 58, 138, 255}, Bottom: color.RGBA{59, 130, 246, 255}}
)

// PaletteFor picks a palette from keywords in the clip label
func PaletteFor(label string) Palette {
	l := strings.ToLower(label)
	switch {
	case strings.Contains(l, "problem"), strings.Contains(l, "masalah"):
		return paletteProblem
	case strings.Contains(l, "solution"), strings.Contains(l, "solusi"):
		return paletteSolution
	default:
		return paletteDefault
	}
}

// DrawPlaceholder paints a generated card for the clip at index: a gradient,
// a large faint clip number, and the label.
func (s *Surface) DrawPlaceholder(index int, label string, alpha float64) {
	if alpha <= 0 {
		return
	}

	card := placeholderCard(index, label, s.Bounds().Dx(), s.Bounds().Dy())
	s.drawAlpha(card, card.Bounds().Min, alpha)
}

func placeholderCard(index int, label string, width, height int) *image.RGBA {
	key := cardKey{index: index, label: label, width: width, height: height}

	cardsMu.Lock()
	defer cardsMu.Unlock()
	if c, ok := cards[key]; ok {
		return c
	}
	if len(cards) >= maxCachedCards {
		cards = make(map[cardKey]*image.RGBA)
	}

	card := NewSurface(width, height)
	card.gradient(PaletteFor(label))

	w := float64(card.Bounds().Dx())
	h := float64(card.Bounds().Dy())

	if face, err := Face(h / 4); err == nil {
		card.DrawStringCentered(face, strconv.Itoa(index+1), w/2, h/2+h/12, color.NRGBA{255, 255, 255, 38})
	}
	if label != "" {
		if face, err := Face(h / 30); err == nil {
			card.DrawOutlined(face, label, w/2-MeasureString(face, label)/2, h*0.7, h/600, color.White, color.NRGBA{0, 0, 0, 160})
		}
	}

	cards[key] = card.RGBA
	return card.RGBA
}

func (s *Surface) gradient(p Palette) {
	b := s.Bounds()
	h := b.Dy()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		t := 0.0
		if h > 1 {
			t = float64(y-b.Min.Y) / float64(h-1)
		}
		c := color.RGBA{
			R: lerp8(p.Top.R, p.Bottom.R, t),
			G: lerp8(p.Top.G, p.Bottom.G, t),
			B: lerp8(p.Top.B, p.Bottom.B, t),
			A: 255,
		}
		row := s.Pix[(y-b.Min.Y)*s.Stride : (y-b.Min.Y)*s.Stride+b.Dx()*4]
		for i := 0; i < len(row); i += 4 {
			row[i], row[i+1], row[i+2], row[i+3] = c.R, c.G, c.B, c.A
		}
	}
}

func lerp8(a, b uint8, t float64) uint8 {
	return uint8(float64(a) + (float64(b)-float64(a))*t + 0.5)
}
