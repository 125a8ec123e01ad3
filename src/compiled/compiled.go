// Package compiled implements CompiledFunctions: the batch artifact that
// discovers a function's residuals, assigns each to a compiled kernel via
// a shared pool, and exposes the three evaluate* forms consumed by the LM
// and L-BFGS solvers.
package compiled

import (
	"errors"
	"fmt"

	"github.com/mfagerlund/scalarautograd/src/autograd"
	"github.com/mfagerlund/scalarautograd/src/kernel"
	"github.com/mfagerlund/scalarautograd/src/registry"
	"github.com/mfagerlund/scalarautograd/src/signature"
)

// ErrEmptyResidualList is returned by Compile when residualBuilder
// produces zero residuals.
var ErrEmptyResidualList = errors.New("compiled: residual builder returned no residuals")

// ErrEmptyParams is returned by Compile when params is empty.
var ErrEmptyParams = errors.New("compiled: no parameters given")

// ErrSignatureMismatch is returned by Compile when the number of leaf
// inputs collected for a residual differs from its kernel's NumInputs.
// The check runs once, inside Compile; Evaluate and its variants do not
// repeat it, so a *CompiledFunctions held across a topology change of the
// residual builder is not detected.
type ErrSignatureMismatch struct {
	ResidualIndex int
	Want, Got     int
}

func (e *ErrSignatureMismatch) Error() string {
	return fmt.Sprintf("compiled: residual %d: kernel expects %d inputs, got %d", e.ResidualIndex, e.Want, e.Got)
}

// ResidualBuilder materializes a sequence of residual root nodes from the
// current parameter Values. It is called exactly once, inside Compile.
type ResidualBuilder func(params []*autograd.Value) []*autograd.Value

// CompiledFunctions holds one registry, one kernel pool, and per-residual
// index tables. Not safe for concurrent mutation; distinct instances may
// run on distinct goroutines freely.
type CompiledFunctions struct {
	reg    *registry.Registry
	pool   *kernel.Pool
	params []*autograd.Value

	paramRegistryID []int       // paramRegistryID[k] = registry id of params[k]
	paramIndexByID  map[int]int // registry id -> index into params, for gradientIndices

	kernels         []*kernel.Descriptor
	inputIndices    [][]int // per residual: registry ids, in canonical leaf order
	gradientIndices [][]int // per residual: index into params, or -1

	allValues []float64 // reused scratch: registry.DataArray() snapshot
}

// Compile registers params, invokes build once, and compiles (or reuses
// from the pool) one kernel per distinct residual topology.
func Compile(params []*autograd.Value, build ResidualBuilder) (*CompiledFunctions, error) {
	if len(params) == 0 {
		return nil, ErrEmptyParams
	}

	reg := registry.New()
	paramRegistryID := make([]int, len(params))
	paramIndexByID := make(map[int]int, len(params))
	for i, p := range params {
		id, err := reg.Register(p)
		if err != nil {
			return nil, fmt.Errorf("compiled: registering param %d: %w", i, err)
		}
		paramRegistryID[i] = id
		paramIndexByID[id] = i
	}

	residuals := build(params)
	if len(residuals) == 0 {
		return nil, ErrEmptyResidualList
	}

	pool := kernel.NewPool()
	kernels := make([]*kernel.Descriptor, len(residuals))
	inputIndices := make([][]int, len(residuals))
	gradientIndices := make([][]int, len(residuals))

	for i, r := range residuals {
		sig, leaves := signature.Canonicalize(r)
		desc, err := pool.GetOrCompile(sig)
		if err != nil {
			return nil, fmt.Errorf("compiled: residual %d: %w", i, err)
		}

		inputIdx := make([]int, 0, desc.Program.NumInputs)
		gradIdx := make([]int, 0, desc.Program.NumInputs)
		for _, leaf := range leaves {
			if leaf == nil {
				continue
			}
			id, err := reg.Register(leaf)
			if err != nil {
				return nil, fmt.Errorf("compiled: residual %d: %w", i, err)
			}
			inputIdx = append(inputIdx, id)
			if pi, ok := paramIndexByID[id]; ok {
				gradIdx = append(gradIdx, pi)
			} else {
				gradIdx = append(gradIdx, -1)
			}
		}

		if len(inputIdx) != desc.Program.NumInputs {
			return nil, &ErrSignatureMismatch{ResidualIndex: i, Want: desc.Program.NumInputs, Got: len(inputIdx)}
		}

		kernels[i] = desc
		inputIndices[i] = inputIdx
		gradientIndices[i] = gradIdx
	}

	return &CompiledFunctions{
		reg:             reg,
		pool:            pool,
		params:          params,
		paramRegistryID: paramRegistryID,
		paramIndexByID:  paramIndexByID,
		kernels:         kernels,
		inputIndices:    inputIndices,
		gradientIndices: gradientIndices,
	}, nil
}

// NumResiduals returns the number of residuals discovered at Compile time.
func (cf *CompiledFunctions) NumResiduals() int { return len(cf.kernels) }

// NumParams returns the number of tracked parameters.
func (cf *CompiledFunctions) NumParams() int { return len(cf.params) }

// PoolSize returns the number of distinct compiled kernels backing this
// batch.
func (cf *CompiledFunctions) PoolSize() int { return cf.pool.Size() }

// KernelReuseFactor returns residual count / distinct kernel count.
func (cf *CompiledFunctions) KernelReuseFactor() float64 {
	if cf.pool.Size() == 0 {
		return 0
	}
	return float64(len(cf.kernels)) / float64(cf.pool.Size())
}

// refresh writes params into the registered parameter leaves and returns a
// reused snapshot of every registered leaf's data (constants included),
// indexed by registry id, so repeated evaluations at different parameter
// vectors don't reallocate the snapshot buffer.
func (cf *CompiledFunctions) refresh(params []float64) []float64 {
	for k, id := range cf.paramRegistryID {
		cf.reg.Leaf(id).Data = params[k]
	}
	cf.allValues = cf.reg.Refresh(cf.allValues)
	return cf.allValues
}

// EvalResult is the return shape of Evaluate: per-residual values, a dense
// Jacobian (row i is ∂r_i/∂p_j), and the least-squares cost Σ r_i².
type EvalResult struct {
	ResidualValues []float64
	Jacobian       [][]float64
	Cost           float64
}

// Evaluate refreshes leaf data from params, then for every residual zeroes
// a Jacobian row, runs its kernel (whose gradOut is this residual's own
// row — ∂r_i/∂p_j, not the sum-of-squares gradient), and accumulates cost.
// This is the form the LM solver (src/solve/lm) consumes.
func (cf *CompiledFunctions) Evaluate(params []float64) (EvalResult, error) {
	if len(params) != len(cf.params) {
		return EvalResult{}, fmt.Errorf("compiled: Evaluate: want %d params, got %d", len(cf.params), len(params))
	}
	allValues := cf.refresh(params)

	values := make([]float64, len(cf.kernels))
	jacobian := make([][]float64, len(cf.kernels))
	cost := 0.0

	for i, k := range cf.kernels {
		row := make([]float64, len(cf.params))
		v := k.Program.Run(allValues, cf.inputIndices[i], cf.gradientIndices[i], row)
		values[i] = v
		jacobian[i] = row
		cost += v * v
	}

	return EvalResult{ResidualValues: values, Jacobian: jacobian, Cost: cost}, nil
}

// JacobianResult is Evaluate without the squared-sum cost.
type JacobianResult struct {
	ResidualValues []float64
	Jacobian       [][]float64
}

// EvaluateJacobian is Evaluate without computing Cost.
func (cf *CompiledFunctions) EvaluateJacobian(params []float64) (JacobianResult, error) {
	r, err := cf.Evaluate(params)
	if err != nil {
		return JacobianResult{}, err
	}
	return JacobianResult{ResidualValues: r.ResidualValues, Jacobian: r.Jacobian}, nil
}

// GradientResult is the return shape of EvaluateSumWithGradient.
type GradientResult struct {
	Value    float64
	Gradient []float64
}

// EvaluateSumWithGradient refreshes leaf data, then accumulates every
// residual kernel's gradient contribution into one shared gradient vector
// (kernel writes add into it) and sums residual values. This is the form
// the L-BFGS solver (src/solve/lbfgs) consumes when the objective is the
// sum of per-residual scalars.
func (cf *CompiledFunctions) EvaluateSumWithGradient(params []float64) (GradientResult, error) {
	if len(params) != len(cf.params) {
		return GradientResult{}, fmt.Errorf("compiled: EvaluateSumWithGradient: want %d params, got %d", len(cf.params), len(params))
	}
	allValues := cf.refresh(params)

	gradient := make([]float64, len(cf.params))
	value := 0.0
	for i, k := range cf.kernels {
		value += k.Program.Run(allValues, cf.inputIndices[i], cf.gradientIndices[i], gradient)
	}
	return GradientResult{Value: value, Gradient: gradient}, nil
}
