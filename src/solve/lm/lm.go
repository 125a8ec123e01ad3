// Package lm implements Levenberg–Marquardt: damped Gauss–Newton with
// adaptive damping over a least-squares residual vector. It consumes the
// Jacobian src/compiled.CompiledFunctions.Evaluate produces.
package lm

import (
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/mfagerlund/scalarautograd/src/solve/common"
)

// Config holds the damping schedule and convergence tolerances, following
// the Config/DefaultConfig naming convention used across src/solve.
type Config struct {
	MaxIterations         int
	GradientTol           float64
	CostTol               float64
	ParamTol              float64
	InitialDamping        float64
	DampingIncreaseFactor float64
	DampingDecreaseFactor float64
	MinDamping            float64
	MaxDamping            float64
	Verbose               bool
}

// DefaultConfig returns the standard Marquardt damping schedule: start
// small, grow ×10 on a rejected step, shrink ÷10 on an accepted one.
func DefaultConfig() Config {
	return Config{
		MaxIterations:         100,
		GradientTol:           1e-10,
		CostTol:               1e-14,
		ParamTol:              1e-12,
		InitialDamping:        1e-3,
		DampingIncreaseFactor: 10,
		DampingDecreaseFactor: 10,
		MinDamping:            1e-12,
		MaxDamping:            1e12,
		Verbose:               false,
	}
}

// ResidualFunc evaluates the residual vector and its Jacobian at params.
// src/compiled.CompiledFunctions.Evaluate's (values, Jacobian, Cost)
// return shape satisfies this when adapted by the caller.
type ResidualFunc func(params []float64) (values []float64, jacobian [][]float64, err error)

// paramTolEpsilon keeps the ParamTol relative step test well-defined at
// p == 0.
const paramTolEpsilon = 1e-12

// Solve minimizes Σ r_i(params)² starting from initial via
// Levenberg–Marquardt. initial is copied, never mutated.
func Solve(initial []float64, residualFn ResidualFunc, config Config, cancel common.CancelFunc, progress common.ProgressFunc) (common.Result, error) {
	start := time.Now()
	n := len(initial)
	if n == 0 {
		return common.Result{}, fmt.Errorf("lm: empty parameter vector")
	}

	x := append([]float64(nil), initial...)
	values, jacobian, err := residualFn(x)
	if err != nil {
		return common.Result{}, fmt.Errorf("lm: initial evaluation: %w", err)
	}
	evalCount := 1
	cost := sumSquares(values)

	gradient := jtr(jacobian, values, n)
	if infNorm(gradient) < config.GradientTol {
		return common.Result{
			Params: x, FinalCost: cost, Converged: true,
			ConvergenceReason: common.InitialBelowTol, FunctionEvaluations: evalCount,
			ComputationTime: time.Since(start),
		}, nil
	}

	damping := config.InitialDamping
	result := common.Result{}

	for iter := 0; iter < config.MaxIterations; iter++ {
		result.Iterations = iter + 1

		if cancel != nil && cancel() {
			result.ConvergenceReason = common.Cancelled
			break
		}

		jtj := jtj(jacobian, n)
		rhs := negate(gradient)

		accepted := false
		for attempt := 0; attempt < 30 && !accepted; attempt++ {
			damped := addDampingDiagonal(jtj, damping)
			step, ok := solveLinearSystem(damped, rhs)
			if !ok {
				damping = math.Min(damping*config.DampingIncreaseFactor, config.MaxDamping)
				continue
			}

			trialX := addVectors(x, step)
			trialValues, trialJacobian, err := residualFn(trialX)
			evalCount++
			if err != nil {
				return common.Result{}, fmt.Errorf("lm: residual evaluation at iteration %d: %w", iter, err)
			}
			trialCost := sumSquares(trialValues)

			if trialCost < cost || math.IsNaN(cost) {
				relStep := infNorm(step) / (infNorm(x) + paramTolEpsilon)
				costChange := cost - trialCost

				x = trialX
				values = trialValues
				jacobian = trialJacobian
				cost = trialCost
				gradient = jtr(jacobian, values, n)
				damping = math.Max(damping/config.DampingDecreaseFactor, config.MinDamping)
				accepted = true

				if progress != nil {
					progress(iter+1, x, cost)
				}
				if config.Verbose {
					fmt.Printf("lm: iter=%d cost=%.6g damping=%.3g\n", iter+1, cost, damping)
				}

				if infNorm(gradient) < config.GradientTol {
					result.Converged = true
					result.ConvergenceReason = common.GradientTol
				} else if math.Abs(costChange) < config.CostTol {
					result.Converged = true
					result.ConvergenceReason = common.CostTol
				} else if relStep < config.ParamTol {
					result.Converged = true
					result.ConvergenceReason = common.ParamTol
				}
			} else {
				damping = math.Min(damping*config.DampingIncreaseFactor, config.MaxDamping)
			}
		}

		if !accepted {
			result.ConvergenceReason = common.LineSearchFailed
			break
		}
		if result.Converged {
			break
		}
	}

	if result.ConvergenceReason == common.NotConverged {
		result.ConvergenceReason = common.MaxIter
	}
	result.Params = x
	result.FinalCost = cost
	result.FunctionEvaluations = evalCount
	result.ComputationTime = time.Since(start)
	return result, nil
}

// jtj computes JᵀJ for an m×n Jacobian.
func jtj(jacobian [][]float64, n int) [][]float64 {
	out := make([][]float64, n)
	for i := range out {
		out[i] = make([]float64, n)
	}
	for _, row := range jacobian {
		for i := 0; i < n; i++ {
			if row[i] == 0 {
				continue
			}
			for j := 0; j < n; j++ {
				out[i][j] += row[i] * row[j]
			}
		}
	}
	return out
}

// jtr computes Jᵀr.
func jtr(jacobian [][]float64, residuals []float64, n int) []float64 {
	out := make([]float64, n)
	for k, row := range jacobian {
		r := residuals[k]
		for i := 0; i < n; i++ {
			out[i] += row[i] * r
		}
	}
	return out
}

// addDampingDiagonal returns a copy of jtj with λ·diag(jtj) added to the
// diagonal — Marquardt's scale-invariant variant of Levenberg's λI.
func addDampingDiagonal(jtj [][]float64, damping float64) [][]float64 {
	n := len(jtj)
	out := make([][]float64, n)
	for i := range out {
		out[i] = append([]float64(nil), jtj[i]...)
		diag := out[i][i]
		if diag <= 0 {
			diag = 1
		}
		out[i][i] += damping * diag
	}
	return out
}

// solveLinearSystem solves the damped normal equations a·x = b. a is
// symmetric and, once damped, positive definite except in genuinely
// singular configurations (e.g. a Jacobian column of all zeros even after
// the diagonal ridge). Cholesky handles the common case; LU with a
// condition-number guard is the fallback for the rest, matching "via
// Cholesky or LU with a small ridge if singular".
func solveLinearSystem(a [][]float64, b []float64) ([]float64, bool) {
	n := len(b)
	flat := make([]float64, n*n)
	for i := 0; i < n; i++ {
		copy(flat[i*n:(i+1)*n], a[i])
	}
	rhs := mat.NewVecDense(n, append([]float64(nil), b...))

	var chol mat.Cholesky
	if chol.Factorize(mat.NewSymDense(n, flat)) {
		var x mat.VecDense
		if err := chol.SolveVecTo(&x, rhs); err == nil {
			return extract(&x, n), true
		}
	}

	var lu mat.LU
	lu.Factorize(mat.NewDense(n, n, flat))
	if lu.Cond() > 1e14 {
		return nil, false
	}
	var x mat.VecDense
	if err := lu.SolveVecTo(&x, false, rhs); err != nil {
		return nil, false
	}
	return extract(&x, n), true
}

func extract(v *mat.VecDense, n int) []float64 {
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		out[i] = v.AtVec(i)
	}
	return out
}

func sumSquares(v []float64) float64 {
	sum := 0.0
	for _, x := range v {
		sum += x * x
	}
	return sum
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

func negate(v []float64) []float64 {
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = -x
	}
	return out
}

func addVectors(a, b []float64) []float64 {
	out := make([]float64, len(a))
	for i := range a {
		out[i] = a[i] + b[i]
	}
	return out
}
