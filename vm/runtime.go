// Package vm is the bytecode evaluator: it loads a compiled
// program, wires up an object pool and a segmented stack, and runs the
// combinator-reduction dispatch loop to either exhaustion (the `e`
// combinator) or a runtime error.
package vm

import (
	"bufio"
	"io"

	"github.com/pkg/errors"

	"github.com/skyter10086/u6a/bytecode"
	"github.com/skyter10086/u6a/pool"
	"github.com/skyter10086/u6a/stack"
)

// Config controls the sizes of the runtime's pool and stack and its
// tolerance for a mismatched bytecode version, mirroring u6a's
// -s/-p/-f flags.
type Config struct {
	StackSegmentSize int
	PoolSize         int
	Force            bool
}

// DefaultConfig returns u6a's compiled-in defaults.
func DefaultConfig() Config {
	return Config{
		StackSegmentSize: stack.DefaultSegmentSize,
		PoolSize:         pool.DefaultSize,
	}
}

// Info summarizes a loaded program's header, for the -i/--info flag.
type Info struct {
	VerMajor, VerMinor uint8
	TextInstrCount     int
	RodataSize         int
}

// Runtime holds every piece of mutable evaluator state in one value,
// rather than as package-level globals: the
// object pool, the value stack, the loaded program, and the registers
// (accumulator, instruction pointer, last-read-character).
type Runtime struct {
	cfg Config

	pool  *pool.Pool
	stack *stack.Stack

	text   []bytecode.Instr
	rodata []byte

	acc bytecode.Value
	ip  int

	lastChar      byte
	lastCharValid bool

	in     io.Reader
	out    io.Writer
	bufOut *bufio.Writer
}

// New constructs a Runtime with empty program state; call Load before Run.
func New(cfg Config, in io.Reader, out io.Writer) *Runtime {
	return &Runtime{
		cfg:   cfg,
		pool:  pool.New(cfg.PoolSize),
		stack: stack.New(cfg.StackSegmentSize),
		in:    in,
		out:   out,
	}
}

// Load reads a bytecode file from r, prepends the bootstrap prologue, and
// resolves every offset-carrying instruction's operand from a
// post-bootstrap-relative byte... instruction index into an absolute
// index into the in-memory text array.
func (r *Runtime) Load(rd io.Reader) (Info, error) {
	br := bufio.NewReader(rd)
	hdr, err := bytecode.ReadHeader(br, r.cfg.Force)
	if err != nil {
		return Info{}, errors.Wrap(err, "reading bytecode header")
	}

	instrCount := hdr.TextSize / bytecode.InstrSize
	body, err := bytecode.ReadText(br, instrCount)
	if err != nil {
		return Info{}, errors.Wrap(err, "reading .text")
	}
	rodata, err := bytecode.ReadRodata(br, hdr.RodataSize)
	if err != nil {
		return Info{}, errors.Wrap(err, "reading .rodata")
	}

	text := make([]bytecode.Instr, 0, bytecode.BootstrapLen+len(body))
	text = append(text, bytecode.Bootstrap...)
	text = append(text, body...)
	for i := bytecode.BootstrapLen; i < len(text); i++ {
		if text[i].Op.IsOffset() && !text[i].Op.IsExtended() {
			text[i].Offset += bytecode.BootstrapLen
		}
	}
	// lc/print offsets address .rodata, not .text, and are left untouched.

	r.text = text
	r.rodata = rodata
	r.ip = bytecode.BootstrapLen
	r.acc = bytecode.Value{Tok: bytecode.Token{Fn: bytecode.FnI}}

	return Info{
		VerMajor:       hdr.VerMajor,
		VerMinor:       hdr.VerMinor,
		TextInstrCount: len(body),
		RodataSize:     len(rodata),
	}, nil
}
