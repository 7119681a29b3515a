package compiler

import "github.com/pkg/errors"

// Lexeme is one token produced by the lexer: either a leaf combinator, an
// application marker, or a character-carrying .X/?X operator.
type Lexeme struct {
	Kind Kind
	Ch   byte
}

func isPrintableOrNewline(b byte) bool {
	return b == '\n' || (b >= 0x20 && b < 0x7f)
}

func leafKind(c byte) (Kind, bool) {
	switch c {
	case 'k', 'K':
		return KK, true
	case 's', 'S':
		return KS, true
	case 'i', 'I':
		return KI, true
	case 'v', 'V':
		return KV, true
	case 'c', 'C':
		return KC, true
	case 'd', 'D':
		return KD, true
	case 'e', 'E':
		return KE, true
	case '@':
		return KIn, true
	case '|':
		return KPipe, true
	}
	return 0, false
}

// Lex tokenizes Unlambda source. A `#` runs to end of line as a comment
// (which, incidentally, also disposes of a leading `#!` shebang line);
// whitespace is otherwise insignificant. `.X` and `?X` consume the next
// byte as their payload; `r`/`R` is sugar for `.` followed by a newline.
func Lex(src []byte) ([]Lexeme, error) {
	var out []Lexeme
	for i := 0; i < len(src); {
		c := src[i]
		switch {
		case c == '#':
			for i < len(src) && src[i] != '\n' {
				i++
			}
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++
		case c == '`':
			out = append(out, Lexeme{Kind: KApp})
			i++
		case c == '.' || c == '?':
			if i+1 >= len(src) {
				return nil, errors.Errorf("unexpected end of input after %q", c)
			}
			payload := src[i+1]
			if !isPrintableOrNewline(payload) {
				return nil, errors.Errorf("unprintable payload %#x for %q operator", payload, c)
			}
			kind := KOut
			if c == '?' {
				kind = KCmp
			}
			out = append(out, Lexeme{Kind: kind, Ch: payload})
			i += 2
		case c == 'r' || c == 'R':
			out = append(out, Lexeme{Kind: KOut, Ch: '\n'})
			i++
		default:
			kind, ok := leafKind(c)
			if !ok {
				return nil, errors.Errorf("unexpected character %q", c)
			}
			out = append(out, Lexeme{Kind: kind})
			i++
		}
	}
	return out, nil
}
