// Package pool implements the VM's reference-counted object arena:
// runtime-synthesized values (k1, s1, s2, c1, the d1_* promises) live here
// as pool cells, addressed by index rather than pointer so that a
// bytecode Value.Ref can name them compactly.
package pool

import (
	"github.com/pkg/errors"

	"github.com/skyter10086/u6a/bytecode"
	"github.com/skyter10086/u6a/stack"
)

// ErrExhausted is returned when Alloc1/Alloc2 cannot grow the pool further.
var ErrExhausted = errors.New("object pool exhausted")

const (
	DefaultSize = 1024 * 1024
	MinSize     = 16
	MaxSize     = 16 * 1024 * 1024
)

// Cell is one pool slot. k1, s1 and d1_c cells hold one value in v0; s2
// cells hold two values in v0 and v1; a c1 cell holds a saved stack
// segment in stk plus a saved instruction pointer in ip and ignores v0;
// d1_d promises and the j and f stubs hold only ip.
type Cell struct {
	refcount uint32
	v0, v1   bytecode.Value
	stk      *stack.Segment // non-nil for cells that hold a saved continuation
	ip       int32          // saved instruction pointer, for c1, d1_d, j and f
	inUse    bool
}

// Pool is a bump-allocated, free-list-backed arena of Cells.
type Pool struct {
	cells   []Cell
	cursor  int
	holes   []uint32 // indices freed and available for reuse
	fstack  []uint32 // scratch space for Free's iterative traversal
}

// New creates a pool with room for size cells.
func New(size int) *Pool {
	return &Pool{
		cells:  make([]Cell, size),
		fstack: make([]uint32, 0, size),
	}
}

// alloc returns the index of a fresh, zeroed, refcount-1 cell.
func (p *Pool) alloc() (uint32, error) {
	if n := len(p.holes); n > 0 {
		idx := p.holes[n-1]
		p.holes = p.holes[:n-1]
		p.cells[idx] = Cell{refcount: 1, inUse: true}
		return idx, nil
	}
	if p.cursor >= len(p.cells) {
		return 0, ErrExhausted
	}
	idx := uint32(p.cursor)
	p.cursor++
	p.cells[idx] = Cell{refcount: 1, inUse: true}
	return idx, nil
}

// Alloc1 allocates a cell holding a single value (s1's stored argument).
func Alloc1(p *Pool, v0 bytecode.Value) (uint32, error) {
	idx, err := p.alloc()
	if err != nil {
		return 0, err
	}
	p.cells[idx].v0 = v0
	return idx, nil
}

// Alloc2 allocates a cell holding two values (s2's pair of stored
// arguments).
func Alloc2(p *Pool, v0, v1 bytecode.Value) (uint32, error) {
	idx, err := p.alloc()
	if err != nil {
		return 0, err
	}
	p.cells[idx].v0 = v0
	p.cells[idx].v1 = v1
	return idx, nil
}

// Alloc2Ptr allocates a cell holding a saved stack segment and saved
// instruction pointer: the representation of c1.
func Alloc2Ptr(p *Pool, seg *stack.Segment, ip int32) (uint32, error) {
	idx, err := p.alloc()
	if err != nil {
		return 0, err
	}
	p.cells[idx].stk = seg
	p.cells[idx].ip = ip
	return idx, nil
}

// AllocIP allocates a cell holding only a saved instruction pointer: the
// representation of a d1_d promise's delayed-body address and of the `f`
// finalizer stub's resume address.
func AllocIP(p *Pool, ip int32) (uint32, error) {
	idx, err := p.alloc()
	if err != nil {
		return 0, err
	}
	p.cells[idx].ip = ip
	return idx, nil
}

// GetIP returns the saved instruction pointer of an AllocIP-shaped cell.
func (p *Pool) GetIP(idx uint32) int32 { return p.cells[idx].ip }

// Get1 returns the single stored value of an s1-shaped cell.
func (p *Pool) Get1(idx uint32) bytecode.Value { return p.cells[idx].v0 }

// Get2 returns both stored values of an s2-shaped cell.
func (p *Pool) Get2(idx uint32) (bytecode.Value, bytecode.Value) {
	c := &p.cells[idx]
	return c.v0, c.v1
}

// Get2Separate returns the saved stack segment and instruction pointer of a
// c1-shaped cell. If the cell is itself shared (refcount > 1, i.e. a
// multi-shot continuation), the returned segment is a private duplicate so
// that reinstating it cannot mutate the pristine copy still owned by the
// cell; the caller is responsible for eventually releasing the duplicate.
func (p *Pool) Get2Separate(s *stack.Stack, idx uint32) (*stack.Segment, int32) {
	c := &p.cells[idx]
	if c.refcount > 1 {
		return s.Dup(c.stk), c.ip
	}
	return c.stk, c.ip
}

// AddRef increments idx's reference count. Called whenever a Value naming
// idx is duplicated onto the stack or into another cell.
func (p *Pool) AddRef(idx uint32) { p.cells[idx].refcount++ }

// Free decrements idx's reference count, releasing it (and transitively
// any cell it alone referenced) once it reaches zero. The traversal is
// iterative, using p.fstack as a worklist, so that a long chain of
// singly-referenced cells (e.g. a deeply nested s2 built by repeated
// self-application) cannot overflow the Go call stack the way a naive
// recursive decref would.
func (p *Pool) Free(s *stack.Stack, idx uint32) {
	p.fstack = append(p.fstack[:0], idx)
	for len(p.fstack) > 0 {
		n := len(p.fstack) - 1
		cur := p.fstack[n]
		p.fstack = p.fstack[:n]

		c := &p.cells[cur]
		if !c.inUse {
			continue
		}
		c.refcount--
		if c.refcount > 0 {
			continue
		}

		if c.stk != nil {
			s.Discard(c.stk)
			c.stk = nil
		} else {
			if c.v0.Tok.Fn.IsRef() {
				p.fstack = append(p.fstack, c.v0.Ref)
			}
			if c.v1.Tok.Fn.IsRef() {
				p.fstack = append(p.fstack, c.v1.Ref)
			}
		}
		*c = Cell{}
		p.holes = append(p.holes, cur)
	}
}
