package mathx

import "golang.org/x/exp/constraints"

// Clamp limits value to the inclusive range [min, max].
func Clamp[T constraints.Ordered](value, min, max T) T {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}

// AlignUp rounds size up to the next multiple of alignment. Alignment must
// be a power of two.
func AlignUp[T constraints.Integer](size, alignment T) T {
	return (size + alignment - 1) &^ (alignment - 1)
}
