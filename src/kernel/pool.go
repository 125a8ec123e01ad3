package kernel

import "github.com/mfagerlund/scalarautograd/src/signature"

// Descriptor is the pool's cache entry: a compiled Program plus the
// signature it was compiled from.
type Descriptor struct {
	Signature signature.Signature
	Program   *Program
}

// Pool maps a signature hash to its compiled Descriptor, guaranteeing at
// most one compile per distinct topology for the pool's lifetime. Not
// safe for concurrent mutation — a Pool is owned by one CompiledFunctions
// instance.
type Pool struct {
	byHash map[uint64]*Descriptor
}

// NewPool returns an empty kernel pool.
func NewPool() *Pool {
	return &Pool{byHash: make(map[uint64]*Descriptor)}
}

// GetOrCompile returns the Descriptor for sig, compiling (and caching) one
// on first sight of this signature's hash. Returns ErrUnsupportedOp if sig
// names an operator with no compiler support.
func (p *Pool) GetOrCompile(sig signature.Signature) (*Descriptor, error) {
	if d, ok := p.byHash[sig.Hash]; ok {
		return d, nil
	}
	prog, err := CompileChecked(sig)
	if err != nil {
		return nil, err
	}
	d := &Descriptor{Signature: sig, Program: prog}
	p.byHash[sig.Hash] = d
	return d, nil
}

// Size returns the number of distinct compiled kernels currently pooled:
// a batch of N residuals over K distinct topologies pools exactly K
// kernels, however large N is.
func (p *Pool) Size() int { return len(p.byHash) }
