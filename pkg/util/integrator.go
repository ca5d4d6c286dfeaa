package util

import "golang.org/x/exp/constraints"

type IntegrationMethod int

const (
	EulerMethod IntegrationMethod = iota
	TrapezoidalMethod
)

func (m IntegrationMethod) String() string {
	switch m {
	case EulerMethod:
		return "euler"
	case TrapezoidalMethod:
		return "trapezoidal"
	default:
		return "unknown"
	}
}

// GetIntegratorWeights returns the weights applied to the derivatives at the
// start and end of a step of size dt.
func GetIntegratorWeights(method IntegrationMethod, dt float64) (w0, w1 float64) {
	switch method {
	case TrapezoidalMethod:
		return 0.5 * dt, 0.5 * dt
	default:
		return dt, 0
	}
}

func Clamp[T constraints.Ordered](v, lo, hi T) T {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// HoldAtLimit zeroes a derivative that would push x further past [lo, hi].
func HoldAtLimit[T constraints.Float](x, dx, lo, hi T) T {
	if x >= hi && dx > 0 {
		return 0
	}
	if x <= lo && dx < 0 {
		return 0
	}
	return dx
}
