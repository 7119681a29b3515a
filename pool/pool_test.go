package pool_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skyter10086/u6a/bytecode"
	"github.com/skyter10086/u6a/pool"
	"github.com/skyter10086/u6a/stack"
)

func val(fn bytecode.Fn) bytecode.Value { return bytecode.Value{Tok: bytecode.Token{Fn: fn}} }

func TestAlloc1Get1(t *testing.T) {
	p := pool.New(16)
	idx, err := pool.Alloc1(p, val(bytecode.FnI))
	require.NoError(t, err)
	assert.Equal(t, bytecode.FnI, p.Get1(idx).Tok.Fn)
}

func TestAlloc2Get2(t *testing.T) {
	p := pool.New(16)
	idx, err := pool.Alloc2(p, val(bytecode.FnK), val(bytecode.FnS))
	require.NoError(t, err)
	v0, v1 := p.Get2(idx)
	assert.Equal(t, bytecode.FnK, v0.Tok.Fn)
	assert.Equal(t, bytecode.FnS, v1.Tok.Fn)
}

func TestFreeReclaimsCell(t *testing.T) {
	p := pool.New(1)
	idx, err := pool.Alloc1(p, val(bytecode.FnI))
	require.NoError(t, err)

	_, err = pool.Alloc1(p, val(bytecode.FnI))
	assert.ErrorIs(t, err, pool.ErrExhausted)

	s := stack.New(64)
	p.Free(s, idx)

	idx2, err := pool.Alloc1(p, val(bytecode.FnK))
	require.NoError(t, err)
	assert.Equal(t, idx, idx2)
}

func TestFreeReleasesChainedRefs(t *testing.T) {
	p := pool.New(4)
	s := stack.New(64)

	inner, err := pool.Alloc1(p, val(bytecode.FnI))
	require.NoError(t, err)
	innerRef := bytecode.Value{Tok: bytecode.Token{Fn: bytecode.FnK1, Ch: 0}, Ref: inner}
	outer, err := pool.Alloc1(p, innerRef)
	require.NoError(t, err)

	p.Free(s, outer)

	// Both cells should now be reusable: two fresh allocations land on
	// the freed indices (order from the free-list is LIFO).
	a, err := pool.Alloc1(p, val(bytecode.FnS))
	require.NoError(t, err)
	b, err := pool.Alloc1(p, val(bytecode.FnV))
	require.NoError(t, err)
	assert.ElementsMatch(t, []uint32{outer, inner}, []uint32{a, b})
}

func TestAddRefDelaysFree(t *testing.T) {
	p := pool.New(2)
	s := stack.New(64)

	idx, err := pool.Alloc1(p, val(bytecode.FnI))
	require.NoError(t, err)
	p.AddRef(idx)

	p.Free(s, idx)
	// Still referenced once: the cell must not be on the free list yet.
	_, err = pool.Alloc1(p, val(bytecode.FnI))
	require.NoError(t, err)
	_, err = pool.Alloc1(p, val(bytecode.FnI))
	assert.ErrorIs(t, err, pool.ErrExhausted)
}

func TestGet2SeparateDuplicatesSharedContinuation(t *testing.T) {
	p := pool.New(8)
	s := stack.New(64)
	s.Push1(val(bytecode.FnI))
	handle := s.Save()

	idx, err := pool.Alloc2Ptr(p, handle, 7)
	require.NoError(t, err)
	p.AddRef(idx) // refcount 2: simulate a multi-shot continuation

	seg1, ip1 := p.Get2Separate(s, idx)
	seg2, ip2 := p.Get2Separate(s, idx)
	assert.Equal(t, int32(7), ip1)
	assert.Equal(t, int32(7), ip2)
	assert.NotSame(t, seg1, seg2)
}
