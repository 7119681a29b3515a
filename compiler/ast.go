// Package compiler turns Unlambda source into the bytecode format consumed
// by package vm: a lexer and an LL(1) parser build a flat
// pre-order AST, and a code generator walks it to emit instructions,
// folding runs of print combinators into a single bulk instruction.
package compiler

// Kind names a front-end token or AST node. Unlike bytecode.Fn, which also
// carries the runtime-only REF/PROMISE/INTERNAL token classes, Kind only
// ever names what the parser can produce directly from source text.
type Kind uint8

const (
	KOut Kind = iota // .X
	KCmp              // ?X
	KK
	KS
	KI
	KV
	KC
	KD
	KE
	KIn   // @
	KPipe // |
	KApp  // ` (backtick application)
)

// HasChar reports whether the node carries a meaningful payload character.
func (k Kind) HasChar() bool { return k == KOut || k == KCmp }

// Node is one entry in the flat, pre-order AST array. For a KApp node, its
// left child is always the very next entry; its right child's index is
// recorded in Sibling. Leaf nodes leave Sibling unused.
type Node struct {
	Kind    Kind
	Ch      byte
	Sibling int32
}

func leftChild(idx int) int { return idx + 1 }

func rightChild(ast []Node, idx int) int { return int(ast[idx].Sibling) }
