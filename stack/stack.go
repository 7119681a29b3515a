// Package stack implements the VM's segmented, copy-on-write value stack.
package stack

import (
	"github.com/pkg/errors"

	"github.com/skyter10086/u6a/bytecode"
)

// ErrUnderflow is returned when Pop is called with no element left
// anywhere in the active chain.
var ErrUnderflow = errors.New("stack underflow")

// MinSegmentSize and MaxSegmentSize bound the configurable segment size.
const (
	DefaultSegmentSize = 256
	MinSegmentSize     = 64
	MaxSegmentSize     = 1024 * 1024
)

// Segment is one fixed-size run of stack elements. The stack is a linked
// list of segments; exactly one is ever "active".
// A segment whose Refcount is greater than one is shared by one or more
// saved continuations and must be treated as immutable.
type Segment struct {
	prev     *Segment
	top      int // -1 means this segment holds no elements
	refcount uint32
	elems    []bytecode.Value
}

// clone makes a private copy of seg: same elements and top, fresh
// refcount of 1, and prev chain shared via a refcount bump on prev. This
// is the COW primitive behind both Save and the duplicate-on-reinstate
// path in pool.Get2Separate.
func (seg *Segment) clone() *Segment {
	c := &Segment{
		prev:     seg.prev,
		top:      seg.top,
		refcount: 1,
		elems:    append([]bytecode.Value(nil), seg.elems...),
	}
	if c.prev != nil {
		c.prev.refcount++
	}
	return c
}

// release decrements seg's refcount and, if it and any ancestors along
// prev drop to zero, walks up the chain releasing them too. It stops as
// soon as a segment survives with a positive refcount, since anything
// above it is still reachable from whoever else shares that segment.
func release(seg *Segment) {
	for seg != nil {
		seg.refcount--
		if seg.refcount > 0 {
			return
		}
		seg = seg.prev
	}
}

// Stack is a growable, segmented value stack with O(1) save/restore.
type Stack struct {
	active *Segment
	segLen int
}

// New creates a stack with one empty segment of size segLen.
func New(segLen int) *Stack {
	return &Stack{
		active: &Segment{top: -1, refcount: 1, elems: make([]bytecode.Value, segLen)},
		segLen: segLen,
	}
}

// Len reports the number of live elements in the logical stack. It is
// provided for tests and debug dumps, not on the evaluator's hot path.
func (s *Stack) Len() int {
	n := 0
	for seg := s.active; seg != nil; seg = seg.prev {
		n += seg.top + 1
	}
	return n
}

func (s *Stack) newSegment(prev *Segment) *Segment {
	prev.refcount++
	return &Segment{prev: prev, top: -1, refcount: 1, elems: make([]bytecode.Value, s.segLen)}
}

// push appends vs, in order, to the active segment, rolling over to a
// fresh segment if the current one is full. The separate push1..push4
// entry points exist so the hot s2-reduction pattern (which pushes three
// or four values at once) stays on a single fast path even at a segment
// boundary.
func (s *Stack) push(vs ...bytecode.Value) {
	seg := s.active
	if seg.top+len(vs) < s.segLen {
		for _, v := range vs {
			seg.top++
			seg.elems[seg.top] = v
		}
		return
	}
	seg = s.newSegment(seg)
	s.active = seg
	for _, v := range vs {
		seg.top++
		seg.elems[seg.top] = v
	}
}

// Push1 pushes one value.
func (s *Stack) Push1(v0 bytecode.Value) { s.push(v0) }

// Push2 pushes two values, v0 then v1.
func (s *Stack) Push2(v0, v1 bytecode.Value) { s.push(v0, v1) }

// Push3 pushes three values, v0 then v1 then v2.
func (s *Stack) Push3(v0, v1, v2 bytecode.Value) { s.push(v0, v1, v2) }

// Push4 pushes four values, v0 then v1 then v2 then v3.
func (s *Stack) Push4(v0, v1, v2, v3 bytecode.Value) { s.push(v0, v1, v2, v3) }

// Top returns the top element without removing it, falling through to
// earlier segments if the active one is empty. It returns the zero-token
// sentinel if the whole stack is empty.
func (s *Stack) Top() bytecode.Value {
	for seg := s.active; seg != nil; seg = seg.prev {
		if seg.top >= 0 {
			return seg.elems[seg.top]
		}
	}
	return bytecode.Zero
}

// Pop removes and returns the top element. If that empties the active
// segment, the stack drops to prev, cloning it first if it is shared
// (copy-on-write) so that any continuation still holding it is unaffected.
func (s *Stack) Pop() (bytecode.Value, error) {
	for s.active.top < 0 {
		prev := s.active.prev
		if prev == nil {
			return bytecode.Value{}, ErrUnderflow
		}
		prev.refcount--
		if prev.refcount > 0 {
			s.active = prev.clone()
		} else {
			s.active = prev
		}
		// s.active's former value (the now-exhausted head segment) had
		// refcount 1 by construction: only the active pointer ever
		// references the literal head segment, so it is simply dropped.
	}
	seg := s.active
	v := seg.elems[seg.top]
	seg.elems[seg.top] = bytecode.Value{}
	seg.top--
	return v, nil
}

// Xch swaps v with the element one below the top of the active segment,
// returning the old value. The caller must ensure the active segment has
// at least two elements.
func (s *Stack) Xch(v bytecode.Value) bytecode.Value {
	seg := s.active
	old := seg.elems[seg.top-1]
	seg.elems[seg.top-1] = v
	return old
}

// Save returns a handle to a clone of the active segment, for a `c1` cell
// to store. The prev chain is shared via refcount bumps; once taken, no
// subsequent mutation of the running stack is visible through the handle.
func (s *Stack) Save() *Segment { return s.active.clone() }

// Resume makes handle the active stack, releasing the previously active
// chain.
func (s *Stack) Resume(handle *Segment) {
	release(s.active)
	s.active = handle
}

// Discard releases handle without reinstating it, used when the
// continuation cell that owned it is freed unused.
func (s *Stack) Discard(handle *Segment) { release(handle) }

// Dup deep-clones just the head segment of handle, sharing its prev
// chain. pool.Get2Separate calls this when a multi-shot continuation's
// cell has more than one reference, so that reinstating it does not
// disturb the copy still stored in the cell.
func (s *Stack) Dup(handle *Segment) *Segment { return handle.clone() }
