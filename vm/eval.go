package vm

import (
	"bufio"
	"io"

	"github.com/pkg/errors"

	"github.com/skyter10086/u6a/bytecode"
	"github.com/skyter10086/u6a/pool"
)

// Halted is the error apply returns when `e` is applied, carrying the value
// the program halted with. Run catches it and returns that value with a
// nil error.
type Halted struct {
	Value bytecode.Value
}

func (h Halted) Error() string { return "halted" }

// errJumped is an internal sentinel: it tells the dispatch loop that apply
// already set r.ip and r.acc itself (a continuation invocation, a forced
// delay, a finalizer return, or an s2 trampoline bounce through the
// bootstrap prologue) and must not be overwritten by the caller's usual
// "advance ip, store result in acc" bookkeeping.
var errJumped = errors.New("control transferred")

// resolve turns an instruction's operand token into a value, substituting
// the accumulator for the zero-kind "use acc" sentinel.
func resolve(tok bytecode.Token, acc bytecode.Value) bytecode.Value {
	if tok.Fn == bytecode.FnZero {
		return acc
	}
	return bytecode.Value{Tok: tok}
}

// Run executes the loaded program until it halts via `e`, its root
// reduction completes, or it hits a runtime error. It returns the halting
// value on a clean exit.
func (r *Runtime) Run() (bytecode.Value, error) {
	out := bufio.NewWriter(r.out)
	defer out.Flush()
	r.bufOut = out

	for {
		// Reaching exactly one past the last compiled instruction means the
		// root expression finished reducing without ever calling `e`: the
		// accumulator already holds its value, so this is a clean halt, not
		// a fault. Anything else out of range is a genuine bug (a bad
		// offset or a pool/jump miscomputation).
		if r.ip == len(r.text) {
			out.Flush()
			return r.acc, nil
		}
		if r.ip < 0 || r.ip > len(r.text) {
			return bytecode.Value{}, errors.Errorf("instruction pointer %d out of range", r.ip)
		}
		ins := r.text[r.ip]

		switch {
		case ins.Op == bytecode.OpApp:
			fn := resolve(ins.First, r.acc)
			arg := resolve(ins.Second, r.acc)
			r.ip++
			if err := r.stepApply(fn, arg); err != nil {
				if h, ok := err.(Halted); ok {
					out.Flush()
					return h.Value, nil
				}
				return bytecode.Value{}, err
			}

		case ins.Op == bytecode.OpLa:
			fn, err := r.stack.Pop()
			if err != nil {
				return bytecode.Value{}, errors.Wrap(err, "la")
			}
			r.ip++
			if err := r.stepApply(fn, r.acc); err != nil {
				if h, ok := err.(Halted); ok {
					out.Flush()
					return h.Value, nil
				}
				return bytecode.Value{}, err
			}

		case ins.Op == bytecode.OpSa:
			r.stack.Push1(r.acc)
			r.ip++

		case ins.Op == bytecode.OpDel:
			ref, err := pool.AllocIP(r.pool, int32(r.ip+1))
			if err != nil {
				return bytecode.Value{}, err
			}
			r.acc = bytecode.Value{Tok: bytecode.Token{Fn: bytecode.FnD1D}, Ref: ref}
			r.ip = int(ins.Offset)

		case ins.Op == bytecode.OpLc:
			if ins.OpEx == bytecode.OpExPrint {
				r.acc = bytecode.Value{Tok: bytecode.Token{Fn: bytecode.FnP}, Ref: uint32(ins.Offset)}
			}
			r.ip++

		case ins.Op == bytecode.OpXch:
			old := r.stack.Xch(r.acc)
			r.acc = old
			r.ip++

		default:
			return bytecode.Value{}, errors.Errorf("unrecognized opcode %v at ip %d", ins.Op, r.ip)
		}
	}
}

// stepApply evaluates apply(fn, arg) and installs the result as the new
// accumulator, advancing nothing further: r.ip was already advanced by the
// caller for the App/La cases, or was overwritten directly by apply for a
// jump.
func (r *Runtime) stepApply(fn, arg bytecode.Value) error {
	result, err := r.apply(fn, arg)
	if err == errJumped {
		return nil
	}
	if err != nil {
		return err
	}
	r.acc = result
	return nil
}

// apply performs one combinator reduction step, dispatching over the full
// apply table. Most reductions simply return a new accumulator value;
// captured continuations, forced delays, finalizer returns, and s2's
// three-way split instead jump by setting r.ip/r.acc directly and returning
// errJumped.
//
// s2 (`s x y` applied to `z`, reducing to `(x z)(y z)`) cannot resolve its
// two sub-applications with native Go recursion: either one may itself
// invoke a captured continuation, a forced delay, or a nested s2, all of
// which escape by overwriting r.ip/r.acc rather than returning - and a
// pending "then apply x z to y z" step held only in a Go call frame would
// be lost the moment that happens. So s2 pushes (j, z, fy, fx) and jumps to
// the bootstrap prologue (`bytecode.Bootstrap`, instruction 0) instead: its
// leading `la` pops fx and reduces `fx z`, `xch` swaps the result back
// against the stashed z, the next `la` pops fy and reduces `fy z`, the
// third `la` pops the first result and combines it with the second, and
// the final `la` pops the j stub and uses it to resume execution exactly
// where the s2 reduction was triggered. Every bounce through the prologue
// is ordinary dispatch-loop execution, so a nested s2 is handled by this
// same case firing again. When its return address is the prologue's final
// `la` (the combine step at bytecode.BootstrapS2IP reduced to another s2),
// only (z, fy, fx) are pushed: that final `la` already pops the enclosing
// j stub, so a fresh one would only bounce back to it.
func (r *Runtime) apply(f, x bytecode.Value) (bytecode.Value, error) {
	switch f.Tok.Fn {
	case bytecode.FnK:
		ref, err := pool.Alloc1(r.pool, x)
		if err != nil {
			return bytecode.Value{}, err
		}
		return bytecode.Value{Tok: bytecode.Token{Fn: bytecode.FnK1}, Ref: ref}, nil

	case bytecode.FnK1:
		v := r.pool.Get1(f.Ref)
		if v.Tok.Fn.IsRef() {
			r.pool.AddRef(v.Ref)
		}
		return v, nil

	case bytecode.FnS:
		ref, err := pool.Alloc1(r.pool, x)
		if err != nil {
			return bytecode.Value{}, err
		}
		return bytecode.Value{Tok: bytecode.Token{Fn: bytecode.FnS1}, Ref: ref}, nil

	case bytecode.FnS1:
		stored := r.pool.Get1(f.Ref)
		ref, err := pool.Alloc2(r.pool, stored, x)
		if err != nil {
			return bytecode.Value{}, err
		}
		return bytecode.Value{Tok: bytecode.Token{Fn: bytecode.FnS2}, Ref: ref}, nil

	case bytecode.FnS2:
		fx, fy := r.pool.Get2(f.Ref)
		if r.ip == bytecode.BootstrapS2IP+1 {
			r.stack.Push3(x, fy, fx)
		} else {
			jref, err := pool.AllocIP(r.pool, int32(r.ip))
			if err != nil {
				return bytecode.Value{}, err
			}
			j := bytecode.Value{Tok: bytecode.Token{Fn: bytecode.FnJ}, Ref: jref}
			r.stack.Push4(j, x, fy, fx)
		}
		r.acc = x
		r.ip = 0
		return bytecode.Value{}, errJumped

	case bytecode.FnI:
		return x, nil

	case bytecode.FnV:
		return f, nil

	case bytecode.FnC:
		seg := r.stack.Save()
		ref, err := pool.Alloc2Ptr(r.pool, seg, int32(r.ip))
		if err != nil {
			return bytecode.Value{}, err
		}
		c1 := bytecode.Value{Tok: bytecode.Token{Fn: bytecode.FnC1}, Ref: ref}
		return r.apply(x, c1)

	case bytecode.FnC1:
		seg, savedIP := r.pool.Get2Separate(r.stack, f.Ref)
		r.stack.Resume(seg)
		r.ip = int(savedIP)
		r.acc = x
		return bytecode.Value{}, errJumped

	case bytecode.FnD:
		ref, err := pool.Alloc1(r.pool, x)
		if err != nil {
			return bytecode.Value{}, err
		}
		return bytecode.Value{Tok: bytecode.Token{Fn: bytecode.FnD1C}, Ref: ref}, nil

	case bytecode.FnD1C, bytecode.FnD1S:
		stored := r.pool.Get1(f.Ref)
		return r.apply(stored, x)

	case bytecode.FnD1D:
		bodyIP := r.pool.GetIP(f.Ref)
		r.stack.Push1(x)
		fref, err := pool.AllocIP(r.pool, int32(r.ip))
		if err != nil {
			return bytecode.Value{}, err
		}
		r.stack.Push1(bytecode.Value{Tok: bytecode.Token{Fn: bytecode.FnF}, Ref: fref})
		r.ip = int(bodyIP)
		return bytecode.Value{}, errJumped

	case bytecode.FnF:
		resumeIP := r.pool.GetIP(f.Ref)
		y, err := r.stack.Pop()
		if err != nil {
			return bytecode.Value{}, errors.Wrap(err, "finalizer return")
		}
		r.ip = int(resumeIP)
		result, err := r.apply(x, y)
		if err == errJumped {
			return bytecode.Value{}, errJumped
		}
		if err != nil {
			return bytecode.Value{}, err
		}
		r.acc = result
		return bytecode.Value{}, errJumped

	case bytecode.FnJ:
		r.ip = int(r.pool.GetIP(f.Ref))
		r.acc = x
		return bytecode.Value{}, errJumped

	case bytecode.FnOut:
		r.bufOut.WriteByte(f.Tok.Ch)
		return x, nil

	case bytecode.FnP:
		r.writeRodataString(r.bufOut, int32(f.Ref))
		return x, nil

	case bytecode.FnCmp:
		if r.lastCharValid && r.lastChar == f.Tok.Ch {
			return x, nil
		}
		return bytecode.Value{Tok: bytecode.Token{Fn: bytecode.FnV}}, nil

	case bytecode.FnIn:
		r.readChar()
		return x, nil

	case bytecode.FnPipe:
		if r.lastCharValid {
			r.bufOut.WriteByte(r.lastChar)
		}
		return x, nil

	case bytecode.FnE:
		return bytecode.Value{}, Halted{Value: x}

	default:
		return bytecode.Value{}, errors.Errorf("%v is not applicable", f.Tok.Fn)
	}
}

func (r *Runtime) readChar() {
	var b [1]byte
	_, err := io.ReadFull(r.in, b[:])
	if err != nil {
		r.lastCharValid = false
		return
	}
	r.lastChar = b[0]
	r.lastCharValid = true
}

func (r *Runtime) writeRodataString(w *bufio.Writer, offset int32) {
	i := int(offset)
	for i < len(r.rodata) && r.rodata[i] != 0 {
		w.WriteByte(r.rodata[i])
		i++
	}
}
