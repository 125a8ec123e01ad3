// Package autograd implements the scalar reverse-mode autodiff core: a DAG
// of Value nodes built with overloaded arithmetic, interpreted forward eval,
// and one reverse-mode backward sweep. See src/kernel for the compiled
// execution path that shares Eval/Partials (rules.go) with this package so
// the two can never disagree.
package autograd

import "fmt"

// unregistered is the sentinel RegistryID for a leaf that has not yet been
// interned into a ValueRegistry.
const unregistered = -1

// Value is a node in a scalar expression DAG: forward data, a reverse-mode
// gradient accumulator, and enough structure (Op, Prev, IntK) for both
// interpreted Backward() and the kernel compiler to replay the same rule.
//
// A leaf (Prev == nil) is either a constant (RequiresGrad == false) or a
// parameter (RequiresGrad == true, optionally named via ParamName).
// Grad is only meaningful immediately after a Backward() call rooted at
// (or passing through) this node; it is otherwise left at whatever the last
// backward pass wrote, per spec — callers that need a clean read should
// call Backward again, which re-zeros the reachable subgraph first.
type Value struct {
	Data         float64
	Grad         float64
	RequiresGrad bool
	Op           OpTag
	Prev         []*Value
	ParamName    string
	IntK         int // exponent for OpPowInt

	RegistryID int // set by registry.Register; unregistered (-1) until then
}

// NewConstant creates a leaf node that never requires gradient.
func NewConstant(data float64) *Value {
	return &Value{Data: data, Op: OpLeaf, RegistryID: unregistered}
}

// NewParam creates an unnamed leaf node that requires gradient. Two
// unnamed parameters are never deduped by the registry (identity-based).
func NewParam(data float64) *Value {
	return &Value{Data: data, RequiresGrad: true, Op: OpLeaf, RegistryID: unregistered}
}

// NewNamedParam creates a leaf node that requires gradient and dedupes in
// the registry by name: two NewNamedParam calls with the same non-empty
// name must end up sharing one registry slot.
func NewNamedParam(name string, data float64) *Value {
	return &Value{Data: data, RequiresGrad: true, ParamName: name, Op: OpLeaf, RegistryID: unregistered}
}

// IsLeaf reports whether v has no parents.
func (v *Value) IsLeaf() bool { return len(v.Prev) == 0 }

func build(op OpTag, data float64, requiresGrad bool, prev ...*Value) *Value {
	return &Value{
		Data:         data,
		RequiresGrad: requiresGrad,
		Op:           op,
		Prev:         prev,
		RegistryID:   unregistered,
	}
}

func anyRequiresGrad(vs ...*Value) bool {
	for _, v := range vs {
		if v.RequiresGrad {
			return true
		}
	}
	return false
}

// Add returns v + other.
func (v *Value) Add(other *Value) *Value {
	data := Eval(OpAdd, []float64{v.Data, other.Data}, 0)
	return build(OpAdd, data, anyRequiresGrad(v, other), v, other)
}

// Sub returns v - other.
func (v *Value) Sub(other *Value) *Value {
	data := Eval(OpSub, []float64{v.Data, other.Data}, 0)
	return build(OpSub, data, anyRequiresGrad(v, other), v, other)
}

// Mul returns v * other.
func (v *Value) Mul(other *Value) *Value {
	data := Eval(OpMul, []float64{v.Data, other.Data}, 0)
	return build(OpMul, data, anyRequiresGrad(v, other), v, other)
}

// Div returns v / other.
func (v *Value) Div(other *Value) *Value {
	data := Eval(OpDiv, []float64{v.Data, other.Data}, 0)
	return build(OpDiv, data, anyRequiresGrad(v, other), v, other)
}

// Neg returns -v.
func (v *Value) Neg() *Value {
	data := Eval(OpNeg, []float64{v.Data}, 0)
	return build(OpNeg, data, v.RequiresGrad, v)
}

// AddScalar returns v + s as a fresh constant leaf plus Add node, a
// convenience wrapper for the common case of combining a traced value
// with a plain float.
func (v *Value) AddScalar(s float64) *Value { return v.Add(NewConstant(s)) }

// SubScalar returns v - s.
func (v *Value) SubScalar(s float64) *Value { return v.Sub(NewConstant(s)) }

// MulScalar returns v * s.
func (v *Value) MulScalar(s float64) *Value { return v.Mul(NewConstant(s)) }

// DivScalar returns v / s.
func (v *Value) DivScalar(s float64) *Value { return v.Div(NewConstant(s)) }

func (v *Value) String() string {
	return fmt.Sprintf("Value(data=%g, grad=%g, op=%s)", v.Data, v.Grad, v.Op)
}
