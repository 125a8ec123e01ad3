// Package signature implements a deterministic structural descriptor of
// a residual DAG such that two DAGs differing only
// by leaf data, by commutative-argument order, or by same-op associativity
// produce an identical signature, while any difference in topology, op set,
// or gradient requirements produces a different one.
package signature

import (
	"fmt"
	"hash/fnv"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/mfagerlund/scalarautograd/src/autograd"
)

// Signature is the canonical structural descriptor of a DAG, keyed for
// kernel-pool lookup by Hash. Equality of the raw arrays (Ops, Topology,
// GradMask, IntK) is the real semantic contract; Hash is a fast lookup key
// only — two signatures can collide on Hash, so callers needing a strict
// equality check should compare the arrays directly.
//
// IntK parallels Ops and carries the integer exponent for OpPowInt nodes
// (0 elsewhere), since the exponent selects a different forward/backward
// computation (unlike a generic constant, which is read from the value
// array at kernel-call time) yet is not itself a graph node.
type Signature struct {
	Ops      []autograd.OpTag
	Topology [][]int
	GradMask []bool
	IntK     []int
	Hash     uint64
}

// canonNode is one node of the canonicalized (flattened, normalized,
// commutative-sorted) copy of the input DAG. It is never written back onto
// the original Value graph; canonicalization must not mutate the DAG it
// reads, since the same nodes may be canonicalized again from a different
// root.
type canonNode struct {
	op       autograd.OpTag
	intK     int
	gradMask bool
	children []*canonNode
	key      string          // memoized canonical subexpression string, for sorting
	origLeaf *autograd.Value // set only for OpLeaf nodes
}

// Canonicalize walks root's reachable DAG and returns its GraphSignature
// plus a parallel Leaves slice (Leaves[i] is the concrete leaf Value at
// array position i when Ops[i] == OpLeaf, else nil). Leaves is
// residual-specific (which actual parameter/constant occupies each leaf
// slot) and is therefore kept out of Signature itself, which must depend
// only on structure so that two DAGs with different leaf data hash equal.
func Canonicalize(root *autograd.Value) (Signature, []*autograd.Value) {
	memo := make(map[*autograd.Value]*canonNode)
	canonRoot := build(root, memo)

	var ops []autograd.OpTag
	var topology [][]int
	var gradMask []bool
	var intK []int
	var leaves []*autograd.Value
	ids := make(map[*canonNode]int)

	var assign func(n *canonNode) int
	assign = func(n *canonNode) int {
		if id, ok := ids[n]; ok {
			return id
		}
		childIDs := make([]int, len(n.children))
		for i, c := range n.children {
			childIDs[i] = assign(c)
		}
		id := len(ops)
		ids[n] = id
		ops = append(ops, n.op)
		topology = append(topology, childIDs)
		gradMask = append(gradMask, n.gradMask)
		intK = append(intK, n.intK)
		leaves = append(leaves, n.origLeaf)
		return id
	}
	assign(canonRoot)

	sig := Signature{Ops: ops, Topology: topology, GradMask: gradMask, IntK: intK}
	sig.Hash = hashSignature(sig)
	return sig, leaves
}

// build returns the canonical node for v, memoized per *Value so that a
// node reachable via multiple paths is canonicalized once and shared (its
// id is later assigned once too, in Canonicalize's postorder walk).
func build(v *autograd.Value, memo map[*autograd.Value]*canonNode) *canonNode {
	if n, ok := memo[v]; ok {
		return n
	}
	n := buildUncached(v, memo)
	memo[v] = n
	return n
}

func buildUncached(v *autograd.Value, memo map[*autograd.Value]*canonNode) *canonNode {
	switch v.Op {
	case autograd.OpLeaf:
		return leafNode(v)

	case autograd.OpPowValue:
		if k, ok := asSmallInt(v.Prev[1]); ok {
			base := build(v.Prev[0], memo)
			return normalizedPow(base, k, v.RequiresGrad)
		}
		return plainNode(v, memo)

	case autograd.OpPowInt:
		base := build(v.Prev[0], memo)
		return normalizedPow(base, v.IntK, v.RequiresGrad)

	case autograd.OpAdd, autograd.OpMul:
		chain := flattenChain(v, v.Op, memo)
		sort.Slice(chain, func(i, j int) bool { return chain[i].key < chain[j].key })
		return makeNode(v.Op, 0, orGradMask(chain), chain)

	default:
		return plainNode(v, memo)
	}
}

func leafNode(v *autograd.Value) *canonNode {
	n := makeNode(autograd.OpLeaf, 0, v.RequiresGrad, nil)
	n.origLeaf = v
	return n
}

// plainNode canonicalizes an op whose children keep their source order
// (everything except the commutative/associative Add and Mul, and the
// pow normalizations handled in buildUncached).
func plainNode(v *autograd.Value, memo map[*autograd.Value]*canonNode) *canonNode {
	children := make([]*canonNode, len(v.Prev))
	for i, c := range v.Prev {
		children[i] = build(c, memo)
	}
	return makeNode(v.Op, v.IntK, orGradMask(children) || v.RequiresGrad, children)
}

func normalizedPow(base *canonNode, k int, requiresGrad bool) *canonNode {
	if k == 2 {
		return makeNode(autograd.OpSquare, 0, requiresGrad || base.gradMask, []*canonNode{base})
	}
	return makeNode(autograd.OpPowInt, k, requiresGrad || base.gradMask, []*canonNode{base})
}

// flattenChain gathers the children of a maximal run of same-op (Add/Mul)
// nodes starting at v, recursing through raw Value children (not through
// the canon-node memo) so that a node used elsewhere as a standalone
// expression is still canonicalized on its own terms where it is reached
// through a different, non-matching parent.
func flattenChain(v *autograd.Value, op autograd.OpTag, memo map[*autograd.Value]*canonNode) []*canonNode {
	var out []*canonNode
	for _, child := range v.Prev {
		if child.Op == op {
			out = append(out, flattenChain(child, op, memo)...)
		} else {
			out = append(out, build(child, memo))
		}
	}
	return out
}

func orGradMask(nodes []*canonNode) bool {
	for _, n := range nodes {
		if n.gradMask {
			return true
		}
	}
	return false
}

func makeNode(op autograd.OpTag, k int, gradMask bool, children []*canonNode) *canonNode {
	n := &canonNode{op: op, intK: k, gradMask: gradMask, children: children}
	n.key = computeKey(n)
	return n
}

func computeKey(n *canonNode) string {
	var b strings.Builder
	b.WriteString(n.op.String())
	if n.op == autograd.OpPowInt {
		b.WriteString(":")
		b.WriteString(strconv.Itoa(n.intK))
	}
	if n.gradMask {
		b.WriteString(":g")
	}
	b.WriteString("(")
	for i, c := range n.children {
		if i > 0 {
			b.WriteString(",")
		}
		b.WriteString(c.key)
	}
	b.WriteString(")")
	return b.String()
}

// asSmallInt reports whether leaf is a non-gradient constant whose data is
// (within floating tolerance) a small integer, and if so returns it. Used
// to normalize pow-value(x, const k) into pow-int(x, k), since an integer
// exponent has a cheaper, more numerically stable derivative rule than
// the general pow-value one.
func asSmallInt(leaf *autograd.Value) (int, bool) {
	if !leaf.IsLeaf() || leaf.RequiresGrad {
		return 0, false
	}
	const maxAbs = 1 << 16
	r := math.Round(leaf.Data)
	if math.Abs(leaf.Data-r) > 1e-9 || math.Abs(r) > maxAbs {
		return 0, false
	}
	return int(r), true
}

// DOT renders the signature as a Graphviz DOT digraph: one node per array
// position, edges from child to parent (the direction data flows forward
// through the program). Useful for visually inspecting kernel-reuse and
// canonicalization decisions; cmd/graphvis is its consumer.
func (s Signature) DOT() string {
	var b strings.Builder
	b.WriteString("digraph signature {\n")
	b.WriteString("  rankdir=BT;\n")

	for i, op := range s.Ops {
		label := op.String()
		if op == autograd.OpPowInt {
			label = fmt.Sprintf("%s^%d", label, s.IntK[i])
		}
		shape := "ellipse"
		if op == autograd.OpLeaf {
			shape = "box"
		}
		style := ""
		if s.GradMask[i] {
			style = ", style=filled, fillcolor=lightyellow"
		}
		fmt.Fprintf(&b, "  n%d [label=%q, shape=%s%s];\n", i, label, shape, style)
	}

	for i, children := range s.Topology {
		for _, c := range children {
			fmt.Fprintf(&b, "  n%d -> n%d;\n", c, i)
		}
	}

	b.WriteString("}\n")
	return b.String()
}

func hashSignature(sig Signature) uint64 {
	h := fnv.New64a()
	for i := range sig.Ops {
		fmt.Fprintf(h, "%d:%d:%v:%v|", sig.Ops[i], sig.IntK[i], sig.GradMask[i], sig.Topology[i])
	}
	return h.Sum64()
}
