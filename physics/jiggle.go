package physics

import (
	opensimplex "github.com/ojrac/opensimplex-go"
)

// Jiggler returns tiny non-zero offsets used to separate coincident nodes.
type Jiggler func() float64

// noiseJiggle walks a diagonal through 2D simplex noise. The sequence is
// fully determined by the seed, which keeps layouts reproducible.
func noiseJiggle(seed int64) Jiggler {
	noise := opensimplex.New(seed)
	step := 0.0
	return func() float64 {
		step++
		v := noise.Eval2(step*0.618034, step*0.414214) * 1e-6
		if v == 0 {
			return 1e-6
		}
		return v
	}
}
