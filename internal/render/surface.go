// Package render draws composited frames onto a fixed-size RGBA surface.
package render

import (
	"image"
	"image/color"
	"image/draw"
	"math"

	"github.com/nfnt/resize"
)

// Default output size of the vertical surface
const (
	Width  = 1080
	Height = 1920
)

// Surface is the drawing target for one composited frame
type Surface struct {
	*image.RGBA
}

// NewSurface allocates a surface of the given size
func NewSurface(width, height int) *Surface {
	return &Surface{RGBA: image.NewRGBA(image.Rect(0, 0, width, height))}
}

// Fill paints the whole surface with c
func (s *Surface) Fill(c color.Color) {
	draw.Draw(s.RGBA, s.Bounds(), image.NewUniform(c), image.Point{}, draw.Src)
}

// Clear paints the surface black
func (s *Surface) Clear() {
	s.Fill(color.Black)
}

// CoverRect returns the size src must be scaled to so that it covers a
// width x height target while keeping its aspect ratio.
func CoverRect(srcW, srcH, width, height int) (int, int) {
	if srcW <= 0 || srcH <= 0 {
		return width, height
	}
	scale := math.Max(float64(width)/float64(srcW), float64(height)/float64(srcH))
	w := int(math.Ceil(float64(srcW)*scale - 1e-6))
	h := int(math.Ceil(float64(srcH)*scale - 1e-6))
	if w < width {
		w = width
	}
	if h < height {
		h = height
	}
	return w, h
}

// DrawCover scales img to cover the surface, centers it, crops the overflow,
// and draws it with the given opacity.
func (s *Surface) DrawCover(img image.Image, alpha float64) {
	if img == nil || alpha <= 0 {
		return
	}

	b := s.Bounds()
	sb := img.Bounds()
	w, h := CoverRect(sb.Dx(), sb.Dy(), b.Dx(), b.Dy())

	scaled := img
	if w != sb.Dx() || h != sb.Dy() {
		scaled = resize.Resize(uint(w), uint(h), img, resize.Bilinear)
	}

	sb = scaled.Bounds()
	offset := image.Pt(sb.Min.X+(w-b.Dx())/2, sb.Min.Y+(h-b.Dy())/2)
	s.drawAlpha(scaled, offset, alpha)
}

func (s *Surface) drawAlpha(img image.Image, offset image.Point, alpha float64) {
	if alpha >= 1 {
		draw.Draw(s.RGBA, s.Bounds(), img, offset, draw.Over)
		return
	}
	mask := image.NewUniform(color.Alpha{A: uint8(math.Round(alpha * 255))})
	draw.DrawMask(s.RGBA, s.Bounds(), img, offset, mask, image.Point{}, draw.Over)
}
