// Package common holds the shared result and configuration shapes used by
// both solve/lm and solve/lbfgs, so the two solvers present one consistent
// convergence vocabulary to callers.
package common

import (
	"fmt"
	"time"
)

// ConvergenceReason names why a solver stopped.
type ConvergenceReason int

const (
	// NotConverged is the zero value: the solver is still running, or
	// stopped without ever reaching another reason (should not appear in
	// a finished Result).
	NotConverged ConvergenceReason = iota
	// GradientTol: the gradient norm fell below the configured tolerance.
	GradientTol
	// CostTol: successive cost values stopped changing meaningfully.
	CostTol
	// ParamTol: the step norm fell below the configured tolerance.
	ParamTol
	// MaxIter: the iteration budget was exhausted before converging.
	MaxIter
	// LineSearchFailed: no step satisfying the line search conditions
	// could be found.
	LineSearchFailed
	// Cancelled: the caller's CancelFunc returned true.
	Cancelled
	// InitialBelowTol: the starting point already satisfied the
	// convergence test, so zero iterations were run.
	InitialBelowTol
)

func (r ConvergenceReason) String() string {
	switch r {
	case NotConverged:
		return "NotConverged"
	case GradientTol:
		return "GradientTol"
	case CostTol:
		return "CostTol"
	case ParamTol:
		return "ParamTol"
	case MaxIter:
		return "MaxIter"
	case LineSearchFailed:
		return "LineSearchFailed"
	case Cancelled:
		return "Cancelled"
	case InitialBelowTol:
		return "InitialBelowTol"
	default:
		return fmt.Sprintf("ConvergenceReason(%d)", int(r))
	}
}

// Result is the shared return shape of both solve/lm.Solve and
// solve/lbfgs.Solve.
type Result struct {
	Params              []float64
	FinalCost           float64
	Converged           bool
	ConvergenceReason   ConvergenceReason
	Iterations          int
	FunctionEvaluations int
	ComputationTime     time.Duration
}

// CancelFunc lets a caller abort a solve early (e.g. from a UI cancel
// button or a deadline); checked once per iteration.
type CancelFunc func() bool

// ProgressFunc is called once per iteration with the current iterate and
// cost, for callers that want to log or plot convergence.
type ProgressFunc func(iteration int, params []float64, cost float64)
