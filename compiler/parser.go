package compiler

import "github.com/pkg/errors"

type parser struct {
	toks  []Lexeme
	pos   int
	nodes []Node
}

func (p *parser) parseExpr() error {
	if p.pos >= len(p.toks) {
		return errors.New("unexpected end of input, expecting an expression")
	}
	tok := p.toks[p.pos]
	p.pos++

	if tok.Kind != KApp {
		p.nodes = append(p.nodes, Node{Kind: tok.Kind, Ch: tok.Ch})
		return nil
	}

	idx := len(p.nodes)
	p.nodes = append(p.nodes, Node{Kind: KApp})
	if err := p.parseExpr(); err != nil {
		return errors.Wrap(err, "parsing left operand of `")
	}
	rightIdx := len(p.nodes)
	if err := p.parseExpr(); err != nil {
		return errors.Wrap(err, "parsing right operand of `")
	}
	p.nodes[idx].Sibling = int32(rightIdx)
	return nil
}

// Parse builds the flat pre-order AST for a token stream, synthesizing the
// implicit outer `` `E <program> `` wrapper so that the
// compiled program always halts cleanly through `e`. An empty token
// stream is not special-cased: it still fails parseExpr's "unexpected end
// of input" check below, exactly as an empty program should be rejected
// as bad syntax rather than silently treated as `i`.
func Parse(toks []Lexeme) ([]Node, error) {
	p := &parser{toks: toks}
	p.nodes = append(p.nodes, Node{Kind: KApp})
	p.nodes = append(p.nodes, Node{Kind: KE})

	rightIdx := len(p.nodes)
	if err := p.parseExpr(); err != nil {
		return nil, errors.Wrap(err, "parsing program")
	}
	if p.pos != len(p.toks) {
		return nil, errors.Errorf("unexpected extra expression after the end of the program, starting at token %d of %d", p.pos, len(p.toks))
	}
	p.nodes[0].Sibling = int32(rightIdx)
	return p.nodes, nil
}
