package viewpoint

// Easing maps an elapsed fraction in [0,1] to an interpolation
// fraction in [0,1]. Implementations must map 0 to 0 and 1 to 1.
type Easing func(t float64) float64

// Linear is the identity curve.
func Linear(t float64) float64 {
	return clamp01(t)
}

// EaseInOutCubic accelerates through the first half of the transition
// and decelerates through the second.
func EaseInOutCubic(t float64) float64 {
	t = clamp01(t)
	if t < 0.5 {
		return 4 * t * t * t
	}
	d := -2*t + 2
	return 1 - d*d*d/2
}

func clamp01(t float64) float64 {
	if t < 0 {
		return 0
	}
	if t > 1 {
		return 1
	}
	return t
}
