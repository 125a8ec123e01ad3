package autograd

import "math"

// Eval computes the forward value of op given its children's data and,
// for OpPowInt, the integer exponent k. This is the single source of truth
// for forward evaluation: both the interpreted Value graph (value.go) and
// the compiled kernel program (src/kernel) call through here so that the
// two paths can never disagree bit-for-bit, per the engine's compiled-vs-
// interpreted equivalence contract.
func Eval(op OpTag, children []float64, k int) float64 {
	switch op {
	case OpAdd:
		return children[0] + children[1]
	case OpSub:
		return children[0] - children[1]
	case OpMul:
		return children[0] * children[1]
	case OpDiv:
		return children[0] / children[1]
	case OpNeg:
		return -children[0]
	case OpAbs:
		return math.Abs(children[0])
	case OpSquare:
		return children[0] * children[0]
	case OpSqrt:
		return math.Sqrt(children[0])
	case OpPowInt:
		return math.Pow(children[0], float64(k))
	case OpPowValue:
		return math.Pow(children[0], children[1])
	case OpExp:
		return math.Exp(children[0])
	case OpLog:
		return math.Log(children[0])
	case OpSin:
		return math.Sin(children[0])
	case OpCos:
		return math.Cos(children[0])
	case OpTan:
		return math.Tan(children[0])
	case OpAsin:
		return math.Asin(children[0])
	case OpAcos:
		return math.Acos(children[0])
	case OpAtan:
		return math.Atan(children[0])
	case OpTanh:
		return math.Tanh(children[0])
	case OpSigmoid:
		return 1 / (1 + math.Exp(-children[0]))
	case OpRelu:
		if children[0] > 0 {
			return children[0]
		}
		return 0
	case OpSoftplus:
		x := children[0]
		// numerically stable log(1+exp(x))
		if x > 20 {
			return x
		}
		return math.Log1p(math.Exp(x))
	case OpMin:
		if children[0] <= children[1] {
			return children[0]
		}
		return children[1]
	case OpMax:
		if children[0] >= children[1] {
			return children[0]
		}
		return children[1]
	case OpClamp:
		x, lo, hi := children[0], children[1], children[2]
		if x < lo {
			return lo
		}
		if x > hi {
			return hi
		}
		return x
	default:
		panic("autograd: Eval: unsupported op " + op.String())
	}
}

// Partials writes, for each child i, the local derivative d(out)/d(child_i)
// into dst[i] and returns dst. dst must have length Arity(op) (the caller
// owns its lifetime, so repeated calls in a hot loop can reuse one buffer
// instead of allocating). This is the single source of truth for the backward rule,
// mirrored by both interpreted Backward() and the compiled kernel's reverse
// sweep.
//
// Edge cases (spec-mandated):
//   - abs(0): subgradient 0.
//   - relu(x<=0): 0.
//   - min/max ties: full gradient routed to the first argument.
//   - div/sqrt/log/asin/acos/atan: domain correctness is the caller's
//     responsibility; these rules propagate NaN/Inf rather than panic.
func Partials(op OpTag, children []float64, out float64, k int, dst []float64) []float64 {
	switch op {
	case OpAdd:
		dst[0], dst[1] = 1, 1
	case OpSub:
		dst[0], dst[1] = 1, -1
	case OpMul:
		dst[0], dst[1] = children[1], children[0]
	case OpDiv:
		x, y := children[0], children[1]
		dst[0], dst[1] = 1/y, -x/(y*y)
	case OpNeg:
		dst[0] = -1
	case OpAbs:
		x := children[0]
		switch {
		case x > 0:
			dst[0] = 1
		case x < 0:
			dst[0] = -1
		default:
			dst[0] = 0
		}
	case OpSquare:
		dst[0] = 2 * children[0]
	case OpSqrt:
		dst[0] = 1 / (2 * out)
	case OpPowInt:
		x := children[0]
		dst[0] = float64(k) * math.Pow(x, float64(k-1))
	case OpPowValue:
		x, p := children[0], children[1]
		dst[0] = p * math.Pow(x, p-1)
		if x > 0 {
			dst[1] = math.Log(x) * out
		} else {
			dst[1] = 0
		}
	case OpExp:
		dst[0] = out
	case OpLog:
		dst[0] = 1 / children[0]
	case OpSin:
		dst[0] = math.Cos(children[0])
	case OpCos:
		dst[0] = -math.Sin(children[0])
	case OpTan:
		c := math.Cos(children[0])
		dst[0] = 1 / (c * c)
	case OpAsin:
		x := children[0]
		dst[0] = 1 / math.Sqrt(1-x*x)
	case OpAcos:
		x := children[0]
		dst[0] = -1 / math.Sqrt(1-x*x)
	case OpAtan:
		x := children[0]
		dst[0] = 1 / (1 + x*x)
	case OpTanh:
		dst[0] = 1 - out*out
	case OpSigmoid:
		dst[0] = out * (1 - out)
	case OpRelu:
		if children[0] > 0 {
			dst[0] = 1
		} else {
			dst[0] = 0
		}
	case OpSoftplus:
		dst[0] = 1 / (1 + math.Exp(-children[0]))
	case OpMin:
		if children[0] <= children[1] {
			dst[0], dst[1] = 1, 0
		} else {
			dst[0], dst[1] = 0, 1
		}
	case OpMax:
		if children[0] >= children[1] {
			dst[0], dst[1] = 1, 0
		} else {
			dst[0], dst[1] = 0, 1
		}
	case OpClamp:
		x, lo, hi := children[0], children[1], children[2]
		if x > lo && x < hi {
			dst[0], dst[1], dst[2] = 1, 0, 0
		} else {
			dst[0], dst[1], dst[2] = 0, 0, 0
		}
	default:
		panic("autograd: Partials: unsupported op " + op.String())
	}
	return dst
}
