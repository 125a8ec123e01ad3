package compiled

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mfagerlund/scalarautograd/src/autograd"
)

func TestCompileRejectsEmptyParams(t *testing.T) {
	_, err := Compile(nil, func(params []*autograd.Value) []*autograd.Value {
		return []*autograd.Value{autograd.NewParam(1)}
	})
	assert.ErrorIs(t, err, ErrEmptyParams)
}

func TestCompileRejectsEmptyResiduals(t *testing.T) {
	params := []*autograd.Value{autograd.NewParam(1)}
	_, err := Compile(params, func(params []*autograd.Value) []*autograd.Value {
		return nil
	})
	assert.ErrorIs(t, err, ErrEmptyResidualList)
}

// buildQuadraticFit returns one residual p - target_i per target, so that
// a single scalar parameter p is fitted to minimize Σ(p - target_i)².
func buildQuadraticFit(targets []float64) ([]*autograd.Value, ResidualBuilder) {
	p := autograd.NewNamedParam("p", 0.0)
	params := []*autograd.Value{p}
	build := func(params []*autograd.Value) []*autograd.Value {
		p := params[0]
		residuals := make([]*autograd.Value, len(targets))
		for i, target := range targets {
			residuals[i] = p.Sub(autograd.NewConstant(target))
		}
		return residuals
	}
	return params, build
}

func TestEvaluateMatchesInterpretedResidualsAndCost(t *testing.T) {
	targets := []float64{1, 2, 3, 4}
	params, build := buildQuadraticFit(targets)

	cf, err := Compile(params, build)
	require.NoError(t, err)
	require.Equal(t, len(targets), cf.NumResiduals())

	result, err := cf.Evaluate([]float64{2.5})
	require.NoError(t, err)

	wantCost := 0.0
	for i, target := range targets {
		want := 2.5 - target
		assert.InDelta(t, want, result.ResidualValues[i], 1e-12)
		assert.InDelta(t, 1.0, result.Jacobian[i][0], 1e-12)
		wantCost += want * want
	}
	assert.InDelta(t, wantCost, result.Cost, 1e-10)
}

func TestPoolReuseAcrossIdenticalResidualShape(t *testing.T) {
	targets := make([]float64, 50)
	for i := range targets {
		targets[i] = float64(i)
	}
	params, build := buildQuadraticFit(targets)

	cf, err := Compile(params, build)
	require.NoError(t, err)

	assert.Equal(t, 1, cf.PoolSize(), "every residual has identical topology: p - const")
	assert.Equal(t, float64(len(targets)), cf.KernelReuseFactor())
}

func TestEvaluateSumWithGradientMatchesInterpretedBackward(t *testing.T) {
	a := autograd.NewNamedParam("a", -4.0)
	b := autograd.NewNamedParam("b", 2.0)
	params := []*autograd.Value{a, b}

	build := func(params []*autograd.Value) []*autograd.Value {
		a, b := params[0], params[1]
		return []*autograd.Value{a.Mul(b), b.PowInt(3)}
	}

	cf, err := Compile(params, build)
	require.NoError(t, err)

	result, err := cf.EvaluateSumWithGradient([]float64{-4.0, 2.0})
	require.NoError(t, err)

	// Reference via interpreted graph: (a*b) + b^3
	ra := autograd.NewParam(-4.0)
	rb := autograd.NewParam(2.0)
	ref := ra.Mul(rb).Add(rb.PowInt(3))
	ref.Backward()

	assert.InDelta(t, ref.Data, result.Value, 1e-10)
	assert.InDelta(t, ra.Grad, result.Gradient[0], 1e-10)
	assert.InDelta(t, rb.Grad, result.Gradient[1], 1e-10)
}

func TestEvaluateJacobianOmitsCost(t *testing.T) {
	targets := []float64{1, 2}
	params, build := buildQuadraticFit(targets)
	cf, err := Compile(params, build)
	require.NoError(t, err)

	jr, err := cf.EvaluateJacobian([]float64{0})
	require.NoError(t, err)
	assert.Len(t, jr.ResidualValues, 2)
	assert.Len(t, jr.Jacobian, 2)
}

func TestRepeatedEvaluateReflectsUpdatedParams(t *testing.T) {
	params, build := buildQuadraticFit([]float64{5})
	cf, err := Compile(params, build)
	require.NoError(t, err)

	r1, err := cf.Evaluate([]float64{0})
	require.NoError(t, err)
	assert.InDelta(t, -5, r1.ResidualValues[0], 1e-12)

	r2, err := cf.Evaluate([]float64{5})
	require.NoError(t, err)
	assert.InDelta(t, 0, r2.ResidualValues[0], 1e-12)
}

func TestGradientOfUnrelatedResidualIsZeroForOtherParam(t *testing.T) {
	a := autograd.NewNamedParam("a", 1.0)
	b := autograd.NewNamedParam("b", 2.0)
	params := []*autograd.Value{a, b}

	build := func(params []*autograd.Value) []*autograd.Value {
		a, b := params[0], params[1]
		return []*autograd.Value{a.Square(), b.Square()}
	}

	cf, err := Compile(params, build)
	require.NoError(t, err)

	result, err := cf.Evaluate([]float64{3, 5})
	require.NoError(t, err)

	assert.InDelta(t, 6, result.Jacobian[0][0], 1e-10)
	assert.InDelta(t, 0, result.Jacobian[0][1], 1e-10)
	assert.InDelta(t, 0, result.Jacobian[1][0], 1e-10)
	assert.InDelta(t, 10, result.Jacobian[1][1], 1e-10)
}

func TestEvaluateWrongParamCountIsError(t *testing.T) {
	params, build := buildQuadraticFit([]float64{1})
	cf, err := Compile(params, build)
	require.NoError(t, err)

	_, err = cf.Evaluate([]float64{1, 2})
	assert.Error(t, err)
}

func TestNonlinearResidualJacobianMatchesFiniteDifference(t *testing.T) {
	x := autograd.NewNamedParam("x", 0.0)
	params := []*autograd.Value{x}

	build := func(params []*autograd.Value) []*autograd.Value {
		x := params[0]
		return []*autograd.Value{x.Sin().Add(x.Square())}
	}

	cf, err := Compile(params, build)
	require.NoError(t, err)

	const h = 1e-6
	at := 0.7
	r0, err := cf.Evaluate([]float64{at})
	require.NoError(t, err)
	rp, err := cf.Evaluate([]float64{at + h})
	require.NoError(t, err)
	rm, err := cf.Evaluate([]float64{at - h})
	require.NoError(t, err)

	finiteDiff := (rp.ResidualValues[0] - rm.ResidualValues[0]) / (2 * h)
	assert.InDelta(t, finiteDiff, r0.Jacobian[0][0], 1e-6)
	assert.InDelta(t, math.Sin(at)+at*at, r0.ResidualValues[0], 1e-10)
}
