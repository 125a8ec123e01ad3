// Package lbfgs implements L-BFGS (limited-memory BFGS) over a scalar
// objective with an analytic gradient, using the classic two-loop
// recursion (Nocedal & Wright, Numerical Optimization, Algorithm 7.4)
// to turn a bounded history of (s, y) pairs into a search direction,
// paired with a Strong-Wolfe backtracking line search. Gradients come
// from src/compiled's EvaluateSumWithGradient rather than finite
// differences.
package lbfgs

import (
	"fmt"
	"math"
	"time"

	"github.com/mfagerlund/scalarautograd/src/solve/common"
)

// Config holds the history size, line-search constants, and convergence
// tolerances for one Solve call.
type Config struct {
	MaxIterations      int
	GradientTol        float64
	CostTol            float64
	MemorySize         int // number of (s, y) pairs retained; default 10
	InitialStepSize    float64
	ArmijoC1           float64
	WolfeC2            float64
	MaxLineSearchSteps int
	Verbose            bool
}

// DefaultConfig returns the standard Nocedal & Wright parameters
// (MemorySize 10, ArmijoC1 1e-4, WolfeC2 0.9).
func DefaultConfig() Config {
	return Config{
		MaxIterations:      200,
		GradientTol:        1e-6,
		CostTol:            1e-12,
		MemorySize:         10,
		InitialStepSize:    1.0,
		ArmijoC1:           1e-4,
		WolfeC2:            0.9,
		MaxLineSearchSteps: 20,
		Verbose:            false,
	}
}

// ObjectiveFunc evaluates the scalar objective and its gradient at params.
// src/compiled.CompiledFunctions.EvaluateSumWithGradient satisfies this
// signature directly.
type ObjectiveFunc func(params []float64) (value float64, gradient []float64, err error)

// Solve minimizes objective starting from initial via limited-memory BFGS.
// initial is copied, never mutated.
func Solve(initial []float64, objective ObjectiveFunc, config Config, cancel common.CancelFunc, progress common.ProgressFunc) (common.Result, error) {
	start := time.Now()
	n := len(initial)
	if n == 0 {
		return common.Result{}, fmt.Errorf("lbfgs: empty parameter vector")
	}

	x := append([]float64(nil), initial...)
	value, gradient, err := objective(x)
	if err != nil {
		return common.Result{}, fmt.Errorf("lbfgs: initial evaluation: %w", err)
	}
	evalCount := 1
	gradNorm := infNorm(gradient)

	if config.Verbose {
		fmt.Printf("lbfgs: initial cost=%.6g ||grad||=%.6g\n", value, gradNorm)
	}

	if gradNorm < config.GradientTol {
		return common.Result{
			Params: x, FinalCost: value, Converged: true,
			ConvergenceReason: common.InitialBelowTol, FunctionEvaluations: evalCount,
			ComputationTime: time.Since(start),
		}, nil
	}

	s := make([][]float64, 0, config.MemorySize)
	y := make([][]float64, 0, config.MemorySize)
	rho := make([]float64, 0, config.MemorySize)

	result := common.Result{}
	for iter := 0; iter < config.MaxIterations; iter++ {
		result.Iterations = iter + 1

		if cancel != nil && cancel() {
			result.ConvergenceReason = common.Cancelled
			break
		}

		direction := twoLoopRecursion(gradient, s, y, rho)

		newX, newValue, newGradient, stepEvals, ok := lineSearch(x, value, gradient, direction, objective, config)
		evalCount += stepEvals
		if !ok {
			result.ConvergenceReason = common.LineSearchFailed
			break
		}

		sK := subtract(newX, x)
		yK := subtract(newGradient, gradient)
		sTy := dot(sK, yK)
		if sTy > 1e-10 {
			if len(s) >= config.MemorySize {
				s, y, rho = s[1:], y[1:], rho[1:]
			}
			s = append(s, sK)
			y = append(y, yK)
			rho = append(rho, 1.0/sTy)
		}

		costChange := value - newValue
		x, value, gradient = newX, newValue, newGradient
		gradNorm = infNorm(gradient)

		if progress != nil {
			progress(iter+1, x, value)
		}
		if config.Verbose && (iter%10 == 0) {
			fmt.Printf("lbfgs: iter=%d cost=%.6g ||grad||=%.6g\n", iter+1, value, gradNorm)
		}

		if gradNorm < config.GradientTol {
			result.Converged = true
			result.ConvergenceReason = common.GradientTol
			break
		}
		if math.Abs(costChange) < config.CostTol && iter > 0 {
			result.Converged = true
			result.ConvergenceReason = common.CostTol
			break
		}
	}

	if result.ConvergenceReason == common.NotConverged {
		result.ConvergenceReason = common.MaxIter
	}
	result.Params = x
	result.FinalCost = value
	result.FunctionEvaluations = evalCount
	result.ComputationTime = time.Since(start)
	return result, nil
}

// twoLoopRecursion computes the L-BFGS search direction -H_k * gradient
// from the bounded (s, y, rho) history, per Nocedal & Wright Algorithm 7.4.
func twoLoopRecursion(gradient []float64, s, y [][]float64, rho []float64) []float64 {
	n := len(gradient)
	q := append([]float64(nil), gradient...)
	m := len(s)

	if m == 0 {
		for i := range q {
			q[i] = -q[i]
		}
		return q
	}

	alpha := make([]float64, m)
	for i := m - 1; i >= 0; i-- {
		alpha[i] = rho[i] * dot(s[i], q)
		for j := range q {
			q[j] -= alpha[i] * y[i][j]
		}
	}

	sTy := dot(s[m-1], y[m-1])
	yTy := dot(y[m-1], y[m-1])
	gamma := sTy / yTy
	if math.IsNaN(gamma) || math.IsInf(gamma, 0) || gamma <= 0 {
		gamma = 1.0
	}

	r := make([]float64, n)
	for i := range r {
		r[i] = gamma * q[i]
	}

	for i := 0; i < m; i++ {
		beta := rho[i] * dot(y[i], r)
		for j := range r {
			r[j] += s[i][j] * (alpha[i] - beta)
		}
	}

	for i := range r {
		r[i] = -r[i]
	}
	return r
}

// lineSearch backtracks from config.InitialStepSize, checking the Armijo sufficient
// decrease condition and the strong-Wolfe curvature condition
// |∇f(p+αd)ᵀd| ≤ c₂|gᵀd|. Shrink factors: Armijo failure shrinks by 0.5;
// curvature failure with a positive new directional derivative (the
// trial point overshot into the next basin) shrinks by 0.5; any other
// curvature failure shrinks by 0.8; a non-finite trial point shrinks
// hard by 0.1 to recover quickly from an overshoot.
func lineSearch(x []float64, value float64, gradient, direction []float64, objective ObjectiveFunc, config Config) (newX []float64, newValue float64, newGradient []float64, evals int, ok bool) {
	gradDotDir := dot(gradient, direction)
	if gradDotDir >= 0 {
		// Not a descent direction; fall back to steepest descent.
		direction = make([]float64, len(gradient))
		for i := range direction {
			direction[i] = -gradient[i]
		}
		gradDotDir = dot(gradient, direction)
	}

	alpha := config.InitialStepSize
	for step := 0; step < config.MaxLineSearchSteps; step++ {
		trial := addScaled(x, direction, alpha)
		trialValue, trialGradient, err := objective(trial)
		evals++

		if err != nil || math.IsNaN(trialValue) || math.IsInf(trialValue, 0) {
			alpha *= 0.1
			continue
		}

		armijoOK := trialValue <= value+config.ArmijoC1*alpha*gradDotDir
		if !armijoOK {
			alpha *= 0.5
			continue
		}

		newDirDot := dot(trialGradient, direction)
		curvatureOK := math.Abs(newDirDot) <= config.WolfeC2*math.Abs(gradDotDir)
		if !curvatureOK {
			if newDirDot > 0 {
				alpha *= 0.5
			} else {
				alpha *= 0.8
			}
			continue
		}

		return trial, trialValue, trialGradient, evals, true
	}
	return nil, 0, nil, evals, false
}

// infNorm returns max_i |v[i]|, the ∞-norm used by every convergence test
// in this package (not a Euclidean norm).
func infNorm(v []float64) float64 {
	max := 0.0
	for _, x := range v {
		if a := math.Abs(x); a > max {
			max = a
		}
	}
	return max
}

func dot(a, b []float64) float64 {
	sum := 0.0
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

func subtract(a, b []float64) []float64 {
	out := make([]float64, len(a))
	for i := range a {
		out[i] = a[i] - b[i]
	}
	return out
}

func addScaled(x, direction []float64, alpha float64) []float64 {
	out := make([]float64, len(x))
	for i := range x {
		out[i] = x[i] + alpha*direction[i]
	}
	return out
}
