package bytecode

// Bootstrap is the fixed 5-instruction prologue prepended to every loaded
// program: `la, xch, la, la, la`. It is the implicit outer
// application context that makes the compiled program's root reduction
// return cleanly through `e`. Runtime-relative offsets stored in the
// bytecode (e.g. `del`'s operand) are relative to the instruction right
// after this prologue.
var Bootstrap = []Instr{
	La(),
	Xch(),
	La(),
	La(),
	La(),
}

// BootstrapLen is len(Bootstrap), named for readability at call sites that
// mirror the C source's text_subst_len.
const BootstrapLen = 5

// BootstrapS2IP is the instruction address of the third `la` slot, the
// combine step of the s2 trampoline. When an s2 reduction happens here (a
// nested s2 whose combine step reduces to another s2), its return address
// is the prologue's final `la`, which already pops the enclosing j stub,
// so the evaluator pushes no fresh j stub for it.
const BootstrapS2IP = 3
