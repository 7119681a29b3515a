package vm_test

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skyter10086/u6a/bytecode"
	"github.com/skyter10086/u6a/compiler"
	"github.com/skyter10086/u6a/vm"
)

// compile lexes, parses and generates src, then frames it as a full
// bytecode file the way cmd/u6ac would, ready for vm.Runtime.Load.
func compile(t *testing.T, src string, optimize bool) []byte {
	t.Helper()
	toks, err := compiler.Lex([]byte(src))
	require.NoError(t, err)
	ast, err := compiler.Parse(toks)
	require.NoError(t, err)
	text, rodata, err := compiler.Generate(ast, optimize)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, bytecode.WriteHeader(&buf, uint32(len(text)*bytecode.InstrSize), uint32(len(rodata))))
	require.NoError(t, bytecode.WriteText(&buf, text))
	buf.Write(rodata)
	return buf.Bytes()
}

func runProgram(t *testing.T, src, stdin string, optimize bool) string {
	t.Helper()
	file := compile(t, src, optimize)

	var out bytes.Buffer
	rt := vm.New(vm.DefaultConfig(), strings.NewReader(stdin), &out)
	_, err := rt.Load(bytes.NewReader(file))
	require.NoError(t, err)

	_, err = rt.Run()
	require.NoError(t, err)
	return out.String()
}

// runRaw frames a hand-built, already post-bootstrap-relative instruction
// sequence and runs it, bypassing the compiler. Used where the scenario
// under test needs exact control over what ends up in the accumulator
// across a continuation jump, rather than whatever a parseable Unlambda
// expression happens to produce.
func runRaw(t *testing.T, text []bytecode.Instr) string {
	t.Helper()
	var file bytes.Buffer
	require.NoError(t, bytecode.WriteHeader(&file, uint32(len(text)*bytecode.InstrSize), 0))
	require.NoError(t, bytecode.WriteText(&file, text))

	var out bytes.Buffer
	rt := vm.New(vm.DefaultConfig(), strings.NewReader(""), &out)
	_, err := rt.Load(bytes.NewReader(file.Bytes()))
	require.NoError(t, err)

	_, err = rt.Run()
	require.NoError(t, err)
	return out.String()
}

// Scenario 1: print `*`, then apply to `i`.
func TestScenarioPrintStar(t *testing.T) {
	assert.Equal(t, "*", runProgram(t, "`.*i", "", false))
}

// Scenario 2: S-K encoding of the identity applied to `r` (print newline).
func TestScenarioSKIdentityNewline(t *testing.T) {
	assert.Equal(t, "\n", runProgram(t, "```s`kr``si`kii", "", false))
}

// Scenario 3: `c` given `i` as the continuation-taker; `i` returns the
// continuation, and applying it to `r` resumes at the capture point with
// `r` as the value of `` `ci ``, so `r` is applied to `r` and prints one
// newline.
func TestScenarioContinuationResumed(t *testing.T) {
	assert.Equal(t, "\n", runProgram(t, "``cir", "", false))
}

// Scenario 4: `d` delays `` `ri ``; applying `i` forces the thunk.
func TestScenarioDelayForced(t *testing.T) {
	assert.Equal(t, "\n", runProgram(t, "``d`rii", "", false))
}

// Scenario 5: the string-print peephole must not change observable output,
// with or without -O1.
func TestScenarioPrintPeepholeOutputStable(t *testing.T) {
	src := "````````.H.e.l.l.o.!.!.!i"
	withOpt := runProgram(t, src, "", true)
	withoutOpt := runProgram(t, src, "", false)
	assert.Equal(t, withoutOpt, withOpt)
	assert.Len(t, withOpt, 8)
}

func TestScenarioPrintPeepholeCollapsesToOneInstruction(t *testing.T) {
	toks, err := compiler.Lex([]byte("````````.H.e.l.l.o.!.!.!i"))
	require.NoError(t, err)
	ast, err := compiler.Parse(toks)
	require.NoError(t, err)

	text, _, err := compiler.Generate(ast, true)
	require.NoError(t, err)
	prints := 0
	outs := 0
	for _, ins := range text {
		if ins.Op == bytecode.OpLc && ins.OpEx == bytecode.OpExPrint {
			prints++
		}
		if ins.Op == bytecode.OpApp && (ins.First.Fn == bytecode.FnOut || ins.Second.Fn == bytecode.FnOut) {
			outs++
		}
	}
	assert.Equal(t, 1, prints)
	assert.Zero(t, outs)

	textNoOpt, _, err := compiler.Generate(ast, false)
	require.NoError(t, err)
	// Count out operands, not instructions: `.H.e` is a single app
	// instruction carrying two of the eight.
	outsNoOpt := 0
	for _, ins := range textNoOpt {
		if ins.Op == bytecode.OpApp && ins.First.Fn == bytecode.FnOut {
			outsNoOpt++
		}
		if ins.Op == bytecode.OpApp && ins.Second.Fn == bytecode.FnOut {
			outsNoOpt++
		}
	}
	assert.Equal(t, 8, outsNoOpt)
}

// Scenario 6: a single captured continuation, invoked twice from two
// separate call sites, must reinstate its saved stack/ip state both times
// and print exactly two newlines.
//
// `c`'s body is `i`, so the capture itself is silent: the accumulator just
// holds the continuation (c1) once control falls through normally. The
// instruction right after the capture is the continuation's resume point,
// so it runs once on that normal fallthrough and again, unwound back to
// the same point, on every later invocation - with whatever value was
// passed to c1 sitting in the accumulator instead of c1 itself. Each
// invocation stashes the live accumulator on the stack, wraps it in a
// fresh `k1` cell, then pops the stash back out and applies it to the
// wrapped cell:
//
//   - 1st pass (acc=c1): stash c1, wrap c1 into k1{c1}, apply the stashed
//     c1 to k1{c1} - this is the first invocation, passing k1{c1} forward
//     as the new acc.
//   - 2nd pass (acc=k1{c1}): stash k1{c1}, wrap it again, apply the
//     stashed k1{c1} to the new wrapper - k1 ignores its argument and
//     just returns its stored contents, so this is a plain (non-jumping)
//     reduction that hands c1 straight back into acc.
//   - with c1 back in hand, the next instruction applies it to `.`+newline
//     directly - the second invocation - landing a third time with
//     acc=`.`+newline.
//   - 3rd pass (acc=.\n): stash it, wrap it, apply the stash (.\n) to the
//     wrapper - `.` prints its newline here (print #1) and passes the
//     wrapper on. Unwrapping the wrapper just returns .\n again
//     (non-jumping), and the final instruction self-applies it, printing
//     a second newline (print #2) and falling off the end of the program.
func TestScenarioMultiShotContinuation(t *testing.T) {
	newline := bytecode.Token{Fn: bytecode.FnOut, Ch: '\n'}
	zero := bytecode.Token{Fn: bytecode.FnZero}

	text := []bytecode.Instr{
		bytecode.App(bytecode.Token{Fn: bytecode.FnC}, bytecode.Token{Fn: bytecode.FnI}), // 0: capture k, body i
		bytecode.Sa(),                                             // 1: resume point - stash acc
		bytecode.App(bytecode.Token{Fn: bytecode.FnK}, zero),      // 2: wrap acc into a fresh k1 cell
		bytecode.La(),                                             // 3: pop the stash, apply it to the wrapper
		bytecode.App(zero, newline),                               // 4: apply acc to `.`+newline
		bytecode.App(zero, zero),                                  // 5: self-apply acc
	}

	out := runRaw(t, text)
	assert.Equal(t, 2, strings.Count(out, "\n"))
}

func TestEmptyProgramIsParseError(t *testing.T) {
	toks, err := compiler.Lex([]byte(""))
	require.NoError(t, err)
	_, err = compiler.Parse(toks)
	assert.Error(t, err)
}

func TestInputOutputRoundTrip(t *testing.T) {
	// `|`@i reads one byte then echoes it back via `|`.
	out := runProgram(t, "`|`@i", "A", false)
	assert.Equal(t, "A", out)
}

func TestLoaderRejectsBadMagic(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteByte(0x00)
	rt := vm.New(vm.DefaultConfig(), strings.NewReader(""), &bytes.Buffer{})
	_, err := rt.Load(&buf)
	assert.Error(t, err)
}
