package render

import "github.com/therealutkarshpriyadarshi/reelfuse/pkg/models"

// Layers holds the opacity of the two slots during a transition. A zero
// opacity means the slot is not drawn.
type Layers struct {
	Active   float64
	Incoming float64
}

// Progress maps the time left in the active clip to transition progress in
// [0, 1]. With no overlap the transition is already complete.
func Progress(remaining, overlap float64) float64 {
	if overlap <= 0 {
		return 1
	}
	p := 1 - remaining/overlap
	if p < 0 {
		return 0
	}
	if p > 1 {
		return 1
	}
	return p
}

// Blend returns the slot opacities for a transition at progress p
func Blend(mode models.TransitionMode, p float64) Layers {
	switch mode {
	case models.TransitionFadeToBlack:
		if p < 0.5 {
			return Layers{Active: 1 - 2*p}
		}
		return Layers{Incoming: 2*p - 1}
	default:
		return Layers{Active: 1, Incoming: p}
	}
}
