package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mfagerlund/scalarautograd/src/autograd"
)

func TestRegisterRejectsNonLeaf(t *testing.T) {
	r := New()
	a := autograd.NewParam(1)
	b := autograd.NewParam(2)
	sum := a.Add(b)

	_, err := r.Register(sum)
	assert.ErrorIs(t, err, ErrNotLeaf)
}

func TestConstantsDedupeByValue(t *testing.T) {
	r := New()
	c1 := autograd.NewConstant(3.14)
	c2 := autograd.NewConstant(3.14)
	c3 := autograd.NewConstant(2.71)

	id1, err := r.Register(c1)
	require.NoError(t, err)
	id2, err := r.Register(c2)
	require.NoError(t, err)
	id3, err := r.Register(c3)
	require.NoError(t, err)

	assert.Equal(t, id1, id2)
	assert.NotEqual(t, id1, id3)
	assert.Equal(t, 2, r.Len())
}

func TestNamedParamsDedupeByName(t *testing.T) {
	r := New()
	p1 := autograd.NewNamedParam("k", 1.0)
	p2 := autograd.NewNamedParam("k", 2.0) // same name, different initial data

	id1, err := r.Register(p1)
	require.NoError(t, err)
	id2, err := r.Register(p2)
	require.NoError(t, err)

	assert.Equal(t, id1, id2, "two leaves with the same non-empty name must share a registry slot")
	assert.Equal(t, 1, r.Len())
}

func TestUnnamedParamsDedupeByIdentity(t *testing.T) {
	r := New()
	p1 := autograd.NewParam(1.0)
	p2 := autograd.NewParam(1.0)

	id1, _ := r.Register(p1)
	id2, _ := r.Register(p2)
	assert.NotEqual(t, id1, id2, "unnamed params are distinct leaves even with equal data")
}

func TestRegisterIsIdempotentForSameLeaf(t *testing.T) {
	r := New()
	p := autograd.NewParam(5.0)
	id1, _ := r.Register(p)
	id2, _ := r.Register(p)
	assert.Equal(t, id1, id2)
	assert.Equal(t, 1, r.Len())
}

func TestDataArrayAndRefresh(t *testing.T) {
	r := New()
	p1 := autograd.NewParam(1.0)
	p2 := autograd.NewParam(2.0)
	r.Register(p1)
	r.Register(p2)

	assert.Equal(t, []float64{1.0, 2.0}, r.DataArray())

	p1.Data = 10.0
	out := r.Refresh(nil)
	assert.Equal(t, []float64{10.0, 2.0}, out)
}

func TestLeafRoundTrip(t *testing.T) {
	r := New()
	p := autograd.NewParam(7.0)
	id, _ := r.Register(p)
	assert.Same(t, p, r.Leaf(id))
}
