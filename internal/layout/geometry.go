package layout

import (
	"math"
	"math/rand/v2"
	"unicode/utf8"
)

// goldenAngle is π(3 − √5), the angular step of the placement spiral.
var goldenAngle = math.Pi * (3 - math.Sqrt(5))

const (
	jiggleSpan = 1e-6

	// label footprint of the default renderer font
	labelCharWidth = 7.0
	labelHeight    = 14.0
	labelPadding   = 8.0
)

// jiggle returns a tiny random offset in [-5e-7, 5e-7).
func jiggle(rng *rand.Rand) float64 {
	return (rng.Float64() - 0.5) * jiggleSpan
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// unplaced reports whether a position must be (re)initialized. The origin
// counts as unplaced: a node is never deliberately started there.
func unplaced(x, y float64) bool {
	return !finite(x) || !finite(y) || (x == 0 && y == 0)
}

// spiralPosition returns the starting point of the i-th node on a
// golden-angle spiral.
func spiralPosition(i int, baseRadius float64) (x, y float64) {
	r := baseRadius * math.Sqrt(0.5+float64(i))
	a := float64(i) * goldenAngle
	return r * math.Cos(a), r * math.Sin(a)
}

// LabelFootprint estimates the rendered bounding box of a node label.
func LabelFootprint(label string) (width, height float64) {
	n := utf8.RuneCountInString(label)
	if n == 0 {
		return 0, 0
	}
	return float64(n)*labelCharWidth + labelPadding, labelHeight
}
