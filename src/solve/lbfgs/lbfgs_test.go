package lbfgs

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mfagerlund/scalarautograd/src/autograd"
	"github.com/mfagerlund/scalarautograd/src/compiled"
	"github.com/mfagerlund/scalarautograd/src/solve/common"
)

// rosenbrockObjective builds a CompiledFunctions-backed objective for the
// classic two-variable Rosenbrock function, whose minimum sits at (1, 1).
func rosenbrockObjective(t *testing.T) ObjectiveFunc {
	t.Helper()
	x := autograd.NewNamedParam("x", 0)
	yv := autograd.NewNamedParam("y", 0)
	params := []*autograd.Value{x, yv}

	cf, err := compiled.Compile(params, func(params []*autograd.Value) []*autograd.Value {
		x, y := params[0], params[1]
		// residual-style decomposition: (1-x) and 10*(y-x^2), summed as
		// squares via Square() so the L-BFGS objective is their sum.
		term1 := autograd.NewConstant(1).Sub(x).Square()
		term2 := y.Sub(x.Square()).MulScalar(10).Square()
		return []*autograd.Value{term1, term2}
	})
	require.NoError(t, err)

	return func(p []float64) (float64, []float64, error) {
		r, err := cf.EvaluateSumWithGradient(p)
		if err != nil {
			return 0, nil, err
		}
		return r.Value, r.Gradient, nil
	}
}

func TestSolveConvergesOnRosenbrock(t *testing.T) {
	objective := rosenbrockObjective(t)
	config := DefaultConfig()
	config.MaxIterations = 500

	result, err := Solve([]float64{-1.2, 1.0}, objective, config, nil, nil)
	require.NoError(t, err)

	assert.True(t, result.Converged, "reason: %s", result.ConvergenceReason)
	assert.InDelta(t, 1.0, result.Params[0], 1e-3)
	assert.InDelta(t, 1.0, result.Params[1], 1e-3)
	assert.Less(t, result.FinalCost, 1e-6)
}

func TestSolveReportsInitialBelowTolAtExactMinimum(t *testing.T) {
	objective := rosenbrockObjective(t)
	config := DefaultConfig()

	result, err := Solve([]float64{1.0, 1.0}, objective, config, nil, nil)
	require.NoError(t, err)

	assert.True(t, result.Converged)
	assert.Equal(t, common.InitialBelowTol, result.ConvergenceReason)
	assert.Equal(t, 0, result.Iterations)
}

func TestSolveHonorsMaxIterations(t *testing.T) {
	objective := rosenbrockObjective(t)
	config := DefaultConfig()
	config.MaxIterations = 1

	result, err := Solve([]float64{-1.2, 1.0}, objective, config, nil, nil)
	require.NoError(t, err)
	assert.LessOrEqual(t, result.Iterations, 1)
}

func TestSolveRespectsCancelFunc(t *testing.T) {
	objective := rosenbrockObjective(t)
	config := DefaultConfig()
	config.MaxIterations = 500

	calls := 0
	cancel := func() bool {
		calls++
		return calls > 2
	}

	result, err := Solve([]float64{-1.2, 1.0}, objective, config, cancel, nil)
	require.NoError(t, err)
	assert.Equal(t, common.Cancelled, result.ConvergenceReason)
}

func TestSolveCallsProgressEveryIteration(t *testing.T) {
	objective := rosenbrockObjective(t)
	config := DefaultConfig()
	config.MaxIterations = 5

	seen := 0
	progress := func(iteration int, params []float64, cost float64) {
		seen++
	}

	result, err := Solve([]float64{-1.2, 1.0}, objective, config, nil, progress)
	require.NoError(t, err)
	assert.Equal(t, result.Iterations, seen)
}

func TestSolveRejectsEmptyParams(t *testing.T) {
	objective := func(p []float64) (float64, []float64, error) { return 0, nil, nil }
	_, err := Solve(nil, objective, DefaultConfig(), nil, nil)
	assert.Error(t, err)
}

func TestSolveSurfacesObjectiveError(t *testing.T) {
	boom := fmt.Errorf("boom")
	objective := func(p []float64) (float64, []float64, error) { return 0, nil, boom }
	_, err := Solve([]float64{1}, objective, DefaultConfig(), nil, nil)
	assert.ErrorIs(t, err, boom)
}
