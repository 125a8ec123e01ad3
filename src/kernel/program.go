// Package kernel implements the compiled execution path: a flat,
// straight-line instruction list compiled once per distinct
// signature.Signature and executed, by index, without any DAG
// pointer-chasing or map lookups. This stands in for literal source-code
// emission, which would require invoking a Go compiler at runtime; the
// instruction list gets the same straight-line forward/backward sweep
// without needing one.
package kernel

import (
	"fmt"
	"strings"

	"github.com/mfagerlund/scalarautograd/src/autograd"
	"github.com/mfagerlund/scalarautograd/src/signature"
)

// Instruction is one node of a compiled Program: either a leaf read (Op ==
// autograd.OpLeaf, InputSlot is its index in canonical leaf order) or a
// forward/backward computation over Children (local slot indices, always
// < this instruction's own index — the program is already topologically
// sorted by construction, since it mirrors signature.Signature.Ops).
type Instruction struct {
	Op       autograd.OpTag
	IntK     int
	Children []int
	GradMask bool
	IsLeaf   bool
	InputSlot int
}

// Program is the compiled form of one signature.Signature: NumInputs leaf
// reads plus one forward/backward instruction per non-leaf node. Its
// scratch buffers (locals, gradLocals, partialsBuf) are sized once at
// compile time and reused by every Run call to avoid a heap allocation
// per evaluation — which makes a *Program NOT safe for concurrent Run
// calls, matching CompiledFunctions' own single-goroutine ownership
// contract.
type Program struct {
	Sig          signature.Signature
	Instructions []Instruction
	NumInputs    int

	locals      []float64
	gradLocals  []float64
	childBuf    []float64
	partialsBuf []float64
}

// Compile turns a Signature into an executable Program. Emission order is
// exactly the signature's node order: forward sweep visits Instructions in
// increasing index (children always precede parents, since Signature's
// postorder assignment guarantees it); backward sweep visits the same
// slice in reverse. Panics on a Signature naming an unsupported op; use
// CompileChecked to handle that case without panicking.
func Compile(sig signature.Signature) *Program {
	p, err := CompileChecked(sig)
	if err != nil {
		panic(err)
	}
	return p
}

// ErrUnsupportedOp is returned by CompileChecked when a Signature names an
// OpTag this compiler has no forward/backward rule for. Every OpTag
// constructible by src/autograd has rules.go support, so this can only
// arise from a hand-built Signature naming an op outside that set.
type ErrUnsupportedOp struct {
	Op autograd.OpTag
}

func (e *ErrUnsupportedOp) Error() string {
	return fmt.Sprintf("kernel: unsupported op %s", e.Op)
}

var knownOps = map[autograd.OpTag]bool{
	autograd.OpLeaf: true, autograd.OpAdd: true, autograd.OpSub: true,
	autograd.OpMul: true, autograd.OpDiv: true, autograd.OpNeg: true,
	autograd.OpAbs: true, autograd.OpSquare: true, autograd.OpSqrt: true,
	autograd.OpPowInt: true, autograd.OpPowValue: true, autograd.OpExp: true,
	autograd.OpLog: true, autograd.OpSin: true, autograd.OpCos: true,
	autograd.OpTan: true, autograd.OpAsin: true, autograd.OpAcos: true,
	autograd.OpAtan: true, autograd.OpTanh: true, autograd.OpSigmoid: true,
	autograd.OpRelu: true, autograd.OpSoftplus: true, autograd.OpMin: true,
	autograd.OpMax: true, autograd.OpClamp: true,
}

// CompileChecked is Compile without the panic: it reports UnsupportedOp
// as an error. Pool.GetOrCompile uses it, and src/compiled's Compile
// returns that error to its caller; no interpreted fallback is attempted.
func CompileChecked(sig signature.Signature) (*Program, error) {
	instructions := make([]Instruction, len(sig.Ops))
	numInputs := 0
	for i, op := range sig.Ops {
		if !knownOps[op] {
			return nil, &ErrUnsupportedOp{Op: op}
		}
		inst := Instruction{
			Op:       op,
			IntK:     sig.IntK[i],
			Children: sig.Topology[i],
			GradMask: sig.GradMask[i],
		}
		if op == autograd.OpLeaf {
			inst.IsLeaf = true
			inst.InputSlot = numInputs
			numInputs++
		}
		instructions[i] = inst
	}

	maxArity := 0
	for _, inst := range instructions {
		if len(inst.Children) > maxArity {
			maxArity = len(inst.Children)
		}
	}

	n := len(instructions)
	return &Program{
		Sig: sig, Instructions: instructions, NumInputs: numInputs,
		locals: make([]float64, n), gradLocals: make([]float64, n),
		childBuf: make([]float64, maxArity), partialsBuf: make([]float64, maxArity),
	}, nil
}

// Run executes the program: allValues holds every registered leaf's
// current data (indexed by registry id); inputIndices[k] is the registry
// id feeding the k-th canonical leaf (k == Instruction.InputSlot);
// gradientIndices[k] is the output slot in gradOut for that leaf's
// gradient, or -1 to skip accumulation. Returns the root's forward value.
//
// Run reuses p's own preallocated scratch (locals, gradLocals, childBuf,
// partialsBuf) rather than allocating per call, so a *Program must not be
// Run from more than one goroutine at a time — see the type doc comment.
func (p *Program) Run(allValues []float64, inputIndices []int, gradientIndices []int, gradOut []float64) float64 {
	locals := p.locals
	gradLocals := p.gradLocals
	childData := p.childBuf

	for i, inst := range p.Instructions {
		if inst.IsLeaf {
			locals[i] = allValues[inputIndices[inst.InputSlot]]
			continue
		}
		childData = childData[:len(inst.Children)]
		for j, c := range inst.Children {
			childData[j] = locals[c]
		}
		locals[i] = autograd.Eval(inst.Op, childData, inst.IntK)
	}

	root := len(p.Instructions) - 1
	for i := range gradLocals {
		gradLocals[i] = 0
	}
	gradLocals[root] = 1

	for i := root; i >= 0; i-- {
		inst := p.Instructions[i]
		if inst.IsLeaf || gradLocals[i] == 0 {
			continue
		}
		childData = childData[:len(inst.Children)]
		for j, c := range inst.Children {
			childData[j] = locals[c]
		}
		partials := autograd.Partials(inst.Op, childData, locals[i], inst.IntK, p.partialsBuf[:len(inst.Children)])
		for j, c := range inst.Children {
			gradLocals[c] += partials[j] * gradLocals[i]
		}
	}

	for i, inst := range p.Instructions {
		if !inst.IsLeaf {
			continue
		}
		slot := gradientIndices[inst.InputSlot]
		if slot >= 0 {
			gradOut[slot] += gradLocals[i]
		}
	}

	return locals[root]
}

// Disassemble returns a human-readable dump of the program's instruction
// list, one line per node, useful for inspecting exactly what a compiled
// residual does without stepping through Run.
func (p *Program) Disassemble() string {
	var b strings.Builder
	for i, inst := range p.Instructions {
		if inst.IsLeaf {
			fmt.Fprintf(&b, "%%%d = input[%d]\n", i, inst.InputSlot)
			continue
		}
		fmt.Fprintf(&b, "%%%d = %s(%v)", i, inst.Op, inst.Children)
		if inst.Op == autograd.OpPowInt {
			fmt.Fprintf(&b, " k=%d", inst.IntK)
		}
		b.WriteString("\n")
	}
	return b.String()
}

// ForwardAssignmentCount returns the number of non-leaf nodes — exactly
// the number of forward assignments (and, symmetrically, backward update
// blocks) the program's Run emits, one per node of the compiled DAG.
func (p *Program) ForwardAssignmentCount() int {
	count := 0
	for _, inst := range p.Instructions {
		if !inst.IsLeaf {
			count++
		}
	}
	return count
}
