package autograd

import "math"

// centralDifference estimates d(build(x))/dx at x0 via a central finite
// difference.
func centralDifference(build func(x float64) float64, x0, eps float64) float64 {
	return (build(x0+eps) - build(x0-eps)) / (2 * eps)
}

// relativeClose reports whether got is within tol of want, using a
// relative comparison when want is not near zero and an absolute one
// otherwise.
func relativeClose(got, want, tol float64) bool {
	if math.Abs(want) < 1e-8 {
		return math.Abs(got-want) < tol
	}
	return math.Abs(got-want)/math.Abs(want) < tol
}
