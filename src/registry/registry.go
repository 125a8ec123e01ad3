// Package registry implements an append-only interning table that turns
// leaf autograd.Value nodes into a dense index space usable as kernel
// I/O. Constants dedupe by exact data equality; named parameters dedupe
// by name; unnamed parameters dedupe by identity.
package registry

import (
	"errors"
	"fmt"

	"github.com/mfagerlund/scalarautograd/src/autograd"
)

// ErrNotLeaf is returned by Register when asked to intern a non-leaf node.
var ErrNotLeaf = errors.New("registry: cannot register a non-leaf value")

// Registry interns leaf Values into a dense id space. Not safe for
// concurrent mutation: a single Registry is meant to be owned by one
// CompiledFunctions / one compilation on one goroutine.
type Registry struct {
	leaves        []*autograd.Value
	constantIndex map[float64]int
	namedIndex    map[string]int
	identityIndex map[*autograd.Value]int
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{
		constantIndex: make(map[float64]int),
		namedIndex:    make(map[string]int),
		identityIndex: make(map[*autograd.Value]int),
	}
}

// Register interns leaf and returns its dense id, reusing an existing slot
// per the dedup rules above. Registering the same *autograd.Value pointer
// twice always returns the same id; the id is also stamped onto the node's
// RegistryID field.
func (r *Registry) Register(leaf *autograd.Value) (int, error) {
	if !leaf.IsLeaf() {
		return 0, fmt.Errorf("%w: op=%s", ErrNotLeaf, leaf.Op)
	}

	if !leaf.RequiresGrad {
		if id, ok := r.constantIndex[leaf.Data]; ok {
			leaf.RegistryID = id
			return id, nil
		}
		id := r.append(leaf)
		r.constantIndex[leaf.Data] = id
		return id, nil
	}

	if leaf.ParamName != "" {
		if id, ok := r.namedIndex[leaf.ParamName]; ok {
			leaf.RegistryID = id
			return id, nil
		}
		id := r.append(leaf)
		r.namedIndex[leaf.ParamName] = id
		return id, nil
	}

	if id, ok := r.identityIndex[leaf]; ok {
		return id, nil
	}
	id := r.append(leaf)
	r.identityIndex[leaf] = id
	return id, nil
}

func (r *Registry) append(leaf *autograd.Value) int {
	id := len(r.leaves)
	leaf.RegistryID = id
	r.leaves = append(r.leaves, leaf)
	return id
}

// Len returns the number of distinct interned leaves.
func (r *Registry) Len() int { return len(r.leaves) }

// Leaf returns the leaf registered under id.
func (r *Registry) Leaf(id int) *autograd.Value { return r.leaves[id] }

// DataArray returns a dense snapshot of every registered leaf's current
// Data, indexed by registry id.
func (r *Registry) DataArray() []float64 {
	out := make([]float64, len(r.leaves))
	for i, leaf := range r.leaves {
		out[i] = leaf.Data
	}
	return out
}

// Refresh copies each leaf's current Data into dst, reusing dst's backing
// array when it is already the right length, so repeated evaluations
// don't reallocate the snapshot on every call.
func (r *Registry) Refresh(dst []float64) []float64 {
	if cap(dst) < len(r.leaves) {
		dst = make([]float64, len(r.leaves))
	}
	dst = dst[:len(r.leaves)]
	for i, leaf := range r.leaves {
		dst[i] = leaf.Data
	}
	return dst
}
