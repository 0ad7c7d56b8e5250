package mute

import (
	"fmt"
	"strconv"
	"unicode"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokInt
	tokIdent
	tokOp
	tokLParen
	tokRParen
	tokLBracket
	tokRBracket
	tokComma
	tokDot
)

type token struct {
	kind tokenKind
	text string
	num  int64
	pos  int
}

func (t token) String() string {
	if t.kind == tokEOF {
		return "end of expression"
	}
	return strconv.Quote(t.text)
}

// twoCharOps must be matched before their one-character prefixes.
var twoCharOps = []string{"<=", ">=", "==", "!=", "&&", "||"}

func lex(src string) ([]token, error) {
	var toks []token
	runes := []rune(src)
	for i := 0; i < len(runes); {
		r := runes[i]
		switch {
		case unicode.IsSpace(r):
			i++
		case unicode.IsDigit(r):
			start := i
			for i < len(runes) && unicode.IsDigit(runes[i]) {
				i++
			}
			text := string(runes[start:i])
			n, err := strconv.ParseInt(text, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("position %d: invalid number %q", start, text)
			}
			toks = append(toks, token{kind: tokInt, text: text, num: n, pos: start})
		case r == '_' || unicode.IsLetter(r):
			start := i
			for i < len(runes) && (runes[i] == '_' || unicode.IsLetter(runes[i]) || unicode.IsDigit(runes[i])) {
				i++
			}
			toks = append(toks, token{kind: tokIdent, text: string(runes[start:i]), pos: start})
		default:
			if i+1 < len(runes) {
				pair := string(runes[i : i+2])
				matched := false
				for _, op := range twoCharOps {
					if pair == op {
						toks = append(toks, token{kind: tokOp, text: op, pos: i})
						i += 2
						matched = true
						break
					}
				}
				if matched {
					continue
				}
			}
			kind, ok := singleChar[r]
			if !ok {
				return nil, fmt.Errorf("position %d: unexpected character %q", i, r)
			}
			toks = append(toks, token{kind: kind, text: string(r), pos: i})
			i++
		}
	}
	return append(toks, token{kind: tokEOF, pos: len(runes)}), nil
}

var singleChar = map[rune]tokenKind{
	'<': tokOp,
	'>': tokOp,
	'!': tokOp,
	'(': tokLParen,
	')': tokRParen,
	'[': tokLBracket,
	']': tokRBracket,
	',': tokComma,
	'.': tokDot,
}
