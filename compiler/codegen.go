package compiler

import (
	"github.com/pkg/errors"

	"github.com/skyter10086/u6a/bytecode"
)

// MinPrintChainLen is the shortest run of consecutive print combinators
// that the code generator bothers to fold into a single bulk instruction;
// shorter runs are left as ordinary chained applications.
const MinPrintChainLen = 4

var zeroToken = bytecode.Token{Fn: bytecode.FnZero}

func kindToken(k Kind, ch byte) bytecode.Token {
	switch k {
	case KK:
		return bytecode.Token{Fn: bytecode.FnK}
	case KS:
		return bytecode.Token{Fn: bytecode.FnS}
	case KI:
		return bytecode.Token{Fn: bytecode.FnI}
	case KV:
		return bytecode.Token{Fn: bytecode.FnV}
	case KC:
		return bytecode.Token{Fn: bytecode.FnC}
	case KD:
		return bytecode.Token{Fn: bytecode.FnD}
	case KE:
		return bytecode.Token{Fn: bytecode.FnE}
	case KIn:
		return bytecode.Token{Fn: bytecode.FnIn}
	case KPipe:
		return bytecode.Token{Fn: bytecode.FnPipe}
	case KOut:
		return bytecode.Token{Fn: bytecode.FnOut, Ch: ch}
	case KCmp:
		return bytecode.Token{Fn: bytecode.FnCmp, Ch: ch}
	default:
		return bytecode.Token{}
	}
}

// printChain reports whether idx's subtree reduces, purely through
// print-on-apply combinators, to a known string: either idx is itself an
// atomic `.X` leaf, or idx is an application whose right child is a `.X`
// leaf and whose left child is itself such a chain. The string is
// returned base-first, i.e. in the order the characters would ultimately
// print.
func printChain(ast []Node, idx int) ([]byte, bool) {
	n := ast[idx]
	if n.Kind == KOut {
		return []byte{n.Ch}, true
	}
	if n.Kind != KApp {
		return nil, false
	}
	right := rightChild(ast, idx)
	if ast[right].Kind != KOut {
		return nil, false
	}
	left, ok := printChain(ast, leftChild(idx))
	if !ok {
		return nil, false
	}
	return append(left, ast[right].Ch), true
}

// gen accumulates the instruction stream and the rodata blob for one
// compilation unit.
type gen struct {
	ast      []Node
	text     []bytecode.Instr
	rodata   []byte
	optimize bool
}

func newGen(ast []Node, optimize bool) *gen { return &gen{ast: ast, optimize: optimize} }

func (g *gen) emitInstr(ins bytecode.Instr) int {
	g.text = append(g.text, ins)
	return len(g.text) - 1
}

func (g *gen) emitPrint(chars []byte) {
	offset := len(g.rodata)
	g.rodata = append(g.rodata, chars...)
	g.rodata = append(g.rodata, 0)
	g.emitInstr(bytecode.Print(int32(offset)))
}

// emitTail generates the code that applies the value left in acc by the
// folded chain (the print combinator, or for a compound operand the
// chain's final `.X`) to an application node's right-hand operand:
// an atomic operand is applied directly as the instruction's second
// token; a compound one is evaluated via the ordinary push-eval-apply
// sequence, since the value in acc must still be applied to it.
func (g *gen) emitTail(idx int) error {
	if g.ast[idx].Kind == KApp {
		g.emitInstr(bytecode.Sa())
		if err := g.emit(idx); err != nil {
			return err
		}
		g.emitInstr(bytecode.La())
		return nil
	}
	tok := kindToken(g.ast[idx].Kind, g.ast[idx].Ch)
	g.emitInstr(bytecode.App(zeroToken, tok))
	return nil
}

// emit generates code for AST node idx, an application node, leaving its
// value in the accumulator when it completes.
func (g *gen) emit(idx int) error {
	n := g.ast[idx]
	if n.Kind != KApp {
		return errors.Errorf("emit called on non-application node %d", idx)
	}
	left, right := leftChild(idx), rightChild(g.ast, idx)

	if g.optimize {
		if chars, ok := printChain(g.ast, left); ok && len(chars) >= MinPrintChainLen {
			if g.ast[right].Kind == KApp {
				// The chain's last character prints only after the right
				// operand has been evaluated, so it stays an ordinary `.X`.
				last := len(chars) - 1
				g.emitPrint(chars[:last])
				g.emitInstr(bytecode.App(zeroToken, kindToken(KOut, chars[last])))
			} else {
				g.emitPrint(chars)
			}
			return g.emitTail(right)
		}
	}

	leftAtomic := g.ast[left].Kind != KApp
	rightAtomic := g.ast[right].Kind != KApp

	switch {
	case leftAtomic && rightAtomic:
		g.emitInstr(bytecode.App(kindToken(g.ast[left].Kind, g.ast[left].Ch), kindToken(g.ast[right].Kind, g.ast[right].Ch)))

	case leftAtomic && g.ast[left].Kind == KD && !rightAtomic:
		delIdx := g.emitInstr(bytecode.Del(0))
		if err := g.emit(right); err != nil {
			return err
		}
		g.emitInstr(bytecode.La())
		g.text[delIdx].Offset = int32(len(g.text))

	case leftAtomic && !rightAtomic:
		if err := g.emit(right); err != nil {
			return err
		}
		g.emitInstr(bytecode.App(kindToken(g.ast[left].Kind, g.ast[left].Ch), zeroToken))

	case !leftAtomic && rightAtomic:
		if err := g.emit(left); err != nil {
			return err
		}
		g.emitInstr(bytecode.App(zeroToken, kindToken(g.ast[right].Kind, g.ast[right].Ch)))

	default:
		if err := g.emit(left); err != nil {
			return err
		}
		g.emitInstr(bytecode.Sa())
		if err := g.emit(right); err != nil {
			return err
		}
		g.emitInstr(bytecode.La())
	}
	return nil
}

// Generate compiles an AST (as produced by Parse) into a .text/.rodata
// pair ready for bytecode.WriteHeader/WriteText/etc. optimize enables the
// string-print peephole (the compiler's -O1 flag); disabling
// it must never change observable program output, only instruction count.
func Generate(ast []Node, optimize bool) ([]bytecode.Instr, []byte, error) {
	g := newGen(ast, optimize)
	if err := g.emit(0); err != nil {
		return nil, nil, err
	}
	return g.text, g.rodata, nil
}
