package autograd

// Abs returns |v|. Subgradient at v==0 is 0 (see rules.go Partials).
func (v *Value) Abs() *Value {
	return build(OpAbs, Eval(OpAbs, []float64{v.Data}, 0), v.RequiresGrad, v)
}

// Square returns v*v, kept distinct from PowInt(v,2) at construction time;
// GraphSignature normalizes pow-value/pow-int-by-2 onto this same op.
func (v *Value) Square() *Value {
	return build(OpSquare, Eval(OpSquare, []float64{v.Data}, 0), v.RequiresGrad, v)
}

// Sqrt returns sqrt(v). Domain (v>0) is the caller's responsibility.
func (v *Value) Sqrt() *Value {
	return build(OpSqrt, Eval(OpSqrt, []float64{v.Data}, 0), v.RequiresGrad, v)
}

// PowInt returns v^k for a compile-time-known integer exponent k.
func (v *Value) PowInt(k int) *Value {
	out := build(OpPowInt, Eval(OpPowInt, []float64{v.Data}, k), v.RequiresGrad, v)
	out.IntK = k
	return out
}

// PowValue returns v^exp where exp is itself a traced Value (both base and
// exponent may require gradient).
func (v *Value) PowValue(exp *Value) *Value {
	data := Eval(OpPowValue, []float64{v.Data, exp.Data}, 0)
	return build(OpPowValue, data, anyRequiresGrad(v, exp), v, exp)
}

// Exp returns e^v.
func (v *Value) Exp() *Value {
	return build(OpExp, Eval(OpExp, []float64{v.Data}, 0), v.RequiresGrad, v)
}

// Log returns ln(v). Domain (v>0) is the caller's responsibility.
func (v *Value) Log() *Value {
	return build(OpLog, Eval(OpLog, []float64{v.Data}, 0), v.RequiresGrad, v)
}

// Sin returns sin(v).
func (v *Value) Sin() *Value {
	return build(OpSin, Eval(OpSin, []float64{v.Data}, 0), v.RequiresGrad, v)
}

// Cos returns cos(v).
func (v *Value) Cos() *Value {
	return build(OpCos, Eval(OpCos, []float64{v.Data}, 0), v.RequiresGrad, v)
}

// Tan returns tan(v).
func (v *Value) Tan() *Value {
	return build(OpTan, Eval(OpTan, []float64{v.Data}, 0), v.RequiresGrad, v)
}

// Asin returns arcsin(v).
func (v *Value) Asin() *Value {
	return build(OpAsin, Eval(OpAsin, []float64{v.Data}, 0), v.RequiresGrad, v)
}

// Acos returns arccos(v).
func (v *Value) Acos() *Value {
	return build(OpAcos, Eval(OpAcos, []float64{v.Data}, 0), v.RequiresGrad, v)
}

// Atan returns arctan(v).
func (v *Value) Atan() *Value {
	return build(OpAtan, Eval(OpAtan, []float64{v.Data}, 0), v.RequiresGrad, v)
}

// Tanh returns tanh(v).
func (v *Value) Tanh() *Value {
	return build(OpTanh, Eval(OpTanh, []float64{v.Data}, 0), v.RequiresGrad, v)
}

// Sigmoid returns 1/(1+e^-v).
func (v *Value) Sigmoid() *Value {
	return build(OpSigmoid, Eval(OpSigmoid, []float64{v.Data}, 0), v.RequiresGrad, v)
}

// Relu returns max(0, v).
func (v *Value) Relu() *Value {
	return build(OpRelu, Eval(OpRelu, []float64{v.Data}, 0), v.RequiresGrad, v)
}

// Softplus returns log(1+e^v), numerically stabilized for large v.
func (v *Value) Softplus() *Value {
	return build(OpSoftplus, Eval(OpSoftplus, []float64{v.Data}, 0), v.RequiresGrad, v)
}

// Min returns the smaller of a, b. On ties the full gradient routes to a
// (the first argument), per spec.
func Min(a, b *Value) *Value {
	data := Eval(OpMin, []float64{a.Data, b.Data}, 0)
	return build(OpMin, data, anyRequiresGrad(a, b), a, b)
}

// Max returns the larger of a, b. On ties the full gradient routes to a
// (the first argument), per spec.
func Max(a, b *Value) *Value {
	data := Eval(OpMax, []float64{a.Data, b.Data}, 0)
	return build(OpMax, data, anyRequiresGrad(a, b), a, b)
}

// Clamp returns x restricted to [lo, hi]. Gradient is 1 in the interior, 0
// on either saturated side.
func Clamp(x, lo, hi *Value) *Value {
	data := Eval(OpClamp, []float64{x.Data, lo.Data, hi.Data}, 0)
	return build(OpClamp, data, anyRequiresGrad(x, lo, hi), x, lo, hi)
}
