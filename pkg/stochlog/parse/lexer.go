package parse

import (
	"fmt"
	"strings"
	"unicode"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokAtom
	tokVar
	tokQuoted
	tokLParen
	tokRParen
	tokComma
	tokDot
	tokNeck // :-
	tokColon
	tokLBrace
	tokRBrace
)

func (k tokenKind) String() string {
	switch k {
	case tokEOF:
		return "end of input"
	case tokAtom:
		return "atom"
	case tokVar:
		return "variable"
	case tokQuoted:
		return "quoted constant"
	case tokLParen:
		return "'('"
	case tokRParen:
		return "')'"
	case tokComma:
		return "','"
	case tokDot:
		return "'.'"
	case tokNeck:
		return "':-'"
	case tokColon:
		return "':'"
	case tokLBrace:
		return "'{'"
	case tokRBrace:
		return "'}'"
	}
	return "token"
}

type token struct {
	kind tokenKind
	text string
	line int
}

// lex splits source text into tokens. Lines whose first non-blank
// character is '#' are comments.
func lex(src string) ([]token, error) {
	var toks []token
	line := 1
	atLineStart := true
	rs := []rune(src)
	for i := 0; i < len(rs); {
		r := rs[i]
		switch {
		case r == '\n':
			line++
			atLineStart = true
			i++
			continue
		case unicode.IsSpace(r):
			i++
			continue
		case r == '#' && atLineStart:
			for i < len(rs) && rs[i] != '\n' {
				i++
			}
			continue
		}
		atLineStart = false

		switch {
		case r == '(':
			toks = append(toks, token{tokLParen, "(", line})
			i++
		case r == ')':
			toks = append(toks, token{tokRParen, ")", line})
			i++
		case r == ',':
			toks = append(toks, token{tokComma, ",", line})
			i++
		case r == '{':
			toks = append(toks, token{tokLBrace, "{", line})
			i++
		case r == '}':
			toks = append(toks, token{tokRBrace, "}", line})
			i++
		case r == ':':
			if i+1 < len(rs) && rs[i+1] == '-' {
				toks = append(toks, token{tokNeck, ":-", line})
				i += 2
			} else {
				toks = append(toks, token{tokColon, ":", line})
				i++
			}
		case r == '.':
			toks = append(toks, token{tokDot, ".", line})
			i++
		case r == '\'' || r == '"':
			j := i + 1
			var b strings.Builder
			for j < len(rs) && rs[j] != r {
				if rs[j] == '\\' && j+1 < len(rs) {
					j++
				}
				if rs[j] == '\n' {
					return nil, fmt.Errorf("line %d: unterminated quoted constant", line)
				}
				b.WriteRune(rs[j])
				j++
			}
			if j >= len(rs) {
				return nil, fmt.Errorf("line %d: unterminated quoted constant", line)
			}
			toks = append(toks, token{tokQuoted, b.String(), line})
			i = j + 1
		case isSymbolRune(r):
			j := i
			for j < len(rs) && (isSymbolRune(rs[j]) || isDecimalPoint(rs, j)) {
				j++
			}
			text := string(rs[i:j])
			kind := tokAtom
			if unicode.IsUpper(r) || r == '_' {
				kind = tokVar
			}
			toks = append(toks, token{kind, text, line})
			i = j
		default:
			return nil, fmt.Errorf("line %d: unexpected character %q", line, r)
		}
	}
	toks = append(toks, token{tokEOF, "", line})
	return toks, nil
}

func isSymbolRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || strings.ContainsRune("_-+#@/$*<>=!?~^&", r)
}

// isDecimalPoint reports a '.' between two digits, as in 0.5.
func isDecimalPoint(rs []rune, j int) bool {
	return rs[j] == '.' && j > 0 && j+1 < len(rs) && unicode.IsDigit(rs[j-1]) && unicode.IsDigit(rs[j+1])
}
