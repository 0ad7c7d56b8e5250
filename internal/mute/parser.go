package mute

import (
	"fmt"
	"strings"
)

type parser struct {
	toks []token
	pos  int
}

func (p *parser) peek() token {
	return p.toks[p.pos]
}

func (p *parser) next() token {
	tok := p.toks[p.pos]
	if tok.kind != tokEOF {
		p.pos++
	}
	return tok
}

func (p *parser) isWord(words ...string) bool {
	tok := p.peek()
	if tok.kind != tokIdent {
		return false
	}
	for _, w := range words {
		if tok.text == w {
			return true
		}
	}
	return false
}

func (p *parser) isOp(ops ...string) bool {
	tok := p.peek()
	if tok.kind != tokOp {
		return false
	}
	for _, op := range ops {
		if tok.text == op {
			return true
		}
	}
	return false
}

func (p *parser) expect(kind tokenKind, what string) (token, error) {
	tok := p.next()
	if tok.kind != kind {
		return tok, fmt.Errorf("position %d: expected %s, got %s", tok.pos, what, tok)
	}
	return tok, nil
}

func requireBool(n node, tok token, op string) error {
	if n.typ() != kindBool {
		return fmt.Errorf("position %d: %s needs boolean operands, got %s", tok.pos, op, n.typ())
	}
	return nil
}

func (p *parser) parseOr() (node, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.isWord("or") || p.isOp("||") {
		tok := p.next()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		if err := requireBool(left, tok, tok.text); err != nil {
			return nil, err
		}
		if err := requireBool(right, tok, tok.text); err != nil {
			return nil, err
		}
		left = logicalExpr{and: false, left: left, right: right}
	}
	return left, nil
}

func (p *parser) parseAnd() (node, error) {
	left, err := p.parseNot()
	if err != nil {
		return nil, err
	}
	for p.isWord("and") || p.isOp("&&") {
		tok := p.next()
		right, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		if err := requireBool(left, tok, tok.text); err != nil {
			return nil, err
		}
		if err := requireBool(right, tok, tok.text); err != nil {
			return nil, err
		}
		left = logicalExpr{and: true, left: left, right: right}
	}
	return left, nil
}

func (p *parser) parseNot() (node, error) {
	if p.isWord("not") || p.isOp("!") {
		tok := p.next()
		x, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		if err := requireBool(x, tok, tok.text); err != nil {
			return nil, err
		}
		return notExpr{x: x}, nil
	}
	return p.parseCompare()
}

var comparisonOps = []string{"<", "<=", ">", ">=", "==", "!="}

func (p *parser) parseCompare() (node, error) {
	first, err := p.parseOperand()
	if err != nil {
		return nil, err
	}

	if p.isWord("in") || (p.isWord("not") && p.toks[p.pos+1].kind == tokIdent && p.toks[p.pos+1].text == "in") {
		negate := p.next().text == "not"
		if negate {
			p.next()
		}
		if first.typ() != kindInt {
			return nil, fmt.Errorf("membership test needs an integer on the left, got %s", first.typ())
		}
		set, err := p.parseList()
		if err != nil {
			return nil, err
		}
		return memberExpr{x: first, set: set, negate: negate}, nil
	}

	if !p.isOp(comparisonOps...) {
		return first, nil
	}
	cmp := compareExpr{operands: []node{first}}
	for p.isOp(comparisonOps...) {
		tok := p.next()
		right, err := p.parseOperand()
		if err != nil {
			return nil, err
		}
		left := cmp.operands[len(cmp.operands)-1]
		if left.typ() != right.typ() {
			return nil, fmt.Errorf("position %d: cannot compare %s with %s", tok.pos, left.typ(), right.typ())
		}
		if left.typ() == kindBool && tok.text != "==" && tok.text != "!=" {
			return nil, fmt.Errorf("position %d: %s needs integer operands", tok.pos, tok.text)
		}
		cmp.operands = append(cmp.operands, right)
		cmp.ops = append(cmp.ops, tok.text)
	}
	return cmp, nil
}

func (p *parser) parseOperand() (node, error) {
	tok := p.next()
	switch tok.kind {
	case tokInt:
		return intLit(tok.num), nil
	case tokLParen:
		x, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(tokRParen, `")"`); err != nil {
			return nil, err
		}
		return x, nil
	case tokIdent:
		switch tok.text {
		case "true", "True":
			return boolLit(true), nil
		case "false", "False":
			return boolLit(false), nil
		case "now":
			if _, err := p.expect(tokDot, `"." after now`); err != nil {
				return nil, err
			}
			name, err := p.expect(tokIdent, "a field name")
			if err != nil {
				return nil, err
			}
			return p.parseField(name)
		case "and", "or", "not", "in":
			return nil, fmt.Errorf("position %d: unexpected keyword %q", tok.pos, tok.text)
		default:
			return p.parseField(tok)
		}
	default:
		return nil, fmt.Errorf("position %d: unexpected %s", tok.pos, tok)
	}
}

func (p *parser) parseField(name token) (node, error) {
	get, ok := fields[name.text]
	if !ok {
		return nil, fmt.Errorf("position %d: unknown field %q (allowed: %s)", name.pos, name.text, strings.Join(Fields(), ", "))
	}
	if p.peek().kind == tokLParen {
		p.next()
		if _, err := p.expect(tokRParen, `")"`); err != nil {
			return nil, err
		}
	}
	return fieldRef{name: name.text, get: get}, nil
}

func (p *parser) parseList() ([]int64, error) {
	open := p.next()
	var closer tokenKind
	switch open.kind {
	case tokLParen:
		closer = tokRParen
	case tokLBracket:
		closer = tokRBracket
	default:
		return nil, fmt.Errorf("position %d: expected a list, got %s", open.pos, open)
	}

	var set []int64
	for {
		if p.peek().kind == closer && len(set) > 0 {
			p.next()
			return set, nil
		}
		num, err := p.expect(tokInt, "an integer")
		if err != nil {
			return nil, err
		}
		set = append(set, num.num)
		switch p.peek().kind {
		case tokComma:
			p.next()
		case closer:
			p.next()
			return set, nil
		default:
			tok := p.peek()
			return nil, fmt.Errorf("position %d: expected \",\" or end of list, got %s", tok.pos, tok)
		}
	}
}
