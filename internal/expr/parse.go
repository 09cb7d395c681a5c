package expr

import (
	"fmt"
	"strconv"
	"strings"
)

// Parse lexes and parses one textual expression into its executable
// form. The expression terminator is appended when absent, so both
// `1+1` and `1+1.` are accepted.
func Parse(text string) (Form, error) {
	trimmed := strings.TrimSpace(text)
	if !strings.HasSuffix(trimmed, ".") {
		trimmed += "."
	}

	tokens, err := tokenize(trimmed)
	if err != nil {
		return Form{}, err
	}

	p := &parser{tokens: tokens}
	form, err := p.parseSequence()
	if err != nil {
		return Form{}, err
	}
	if err := p.expect(tokenDot, "expression terminator '.'"); err != nil {
		return Form{}, err
	}
	if p.current().typ != tokenEOF {
		return Form{}, p.errorf("trailing input after terminator")
	}
	return form, nil
}

// parser is a recursive descent parser over the token stream.
type parser struct {
	tokens []token
	pos    int
}

func (p *parser) current() token {
	if p.pos >= len(p.tokens) {
		return token{typ: tokenEOF}
	}
	return p.tokens[p.pos]
}

func (p *parser) advance() {
	if p.pos < len(p.tokens) {
		p.pos++
	}
}

func (p *parser) expect(typ tokenType, what string) error {
	if p.current().typ != typ {
		return p.errorf("expected %s", what)
	}
	p.advance()
	return nil
}

func (p *parser) errorf(format string, args ...any) error {
	tok := p.current()
	where := fmt.Sprintf("before %q", tok.value)
	if tok.typ == tokenEOF || tok.value == "" {
		where = "at end of input"
	}
	return &ParseError{
		Line: tok.line,
		Msg:  fmt.Sprintf(format, args...) + " " + where,
	}
}

// parseSequence handles comma-separated expression blocks; the value of
// a sequence is the value of its last expression.
func (p *parser) parseSequence() (Form, error) {
	first, err := p.parseExpr()
	if err != nil {
		return Form{}, err
	}
	items := []Form{first}
	for p.current().typ == tokenComma {
		p.advance()
		next, err := p.parseExpr()
		if err != nil {
			return Form{}, err
		}
		items = append(items, next)
	}
	if len(items) == 1 {
		return first, nil
	}
	return Form{Kind: KindSeq, Items: items}, nil
}

func (p *parser) parseExpr() (Form, error) {
	left, err := p.parseTerm()
	if err != nil {
		return Form{}, err
	}
	for {
		var op string
		switch p.current().typ {
		case tokenPlus:
			op = "+"
		case tokenMinus:
			op = "-"
		default:
			return left, nil
		}
		p.advance()
		right, err := p.parseTerm()
		if err != nil {
			return Form{}, err
		}
		left = Form{Kind: KindBinOp, Op: op, Items: []Form{left, right}}
	}
}

func (p *parser) parseTerm() (Form, error) {
	left, err := p.parseFactor()
	if err != nil {
		return Form{}, err
	}
	for {
		var op string
		switch p.current().typ {
		case tokenStar:
			op = "*"
		case tokenSlash:
			op = "/"
		default:
			return left, nil
		}
		p.advance()
		right, err := p.parseFactor()
		if err != nil {
			return Form{}, err
		}
		left = Form{Kind: KindBinOp, Op: op, Items: []Form{left, right}}
	}
}

func (p *parser) parseFactor() (Form, error) {
	tok := p.current()
	switch tok.typ {
	case tokenInt:
		n, err := strconv.ParseInt(tok.value, 10, 64)
		if err != nil {
			return Form{}, p.errorf("invalid integer %q", tok.value)
		}
		p.advance()
		return Form{Kind: KindInt, Int: n}, nil

	case tokenFloat:
		f, err := strconv.ParseFloat(tok.value, 64)
		if err != nil {
			return Form{}, p.errorf("invalid number %q", tok.value)
		}
		p.advance()
		return Form{Kind: KindFloat, Float: f}, nil

	case tokenString:
		p.advance()
		return Form{Kind: KindString, Str: tok.value}, nil

	case tokenMinus:
		p.advance()
		inner, err := p.parseFactor()
		if err != nil {
			return Form{}, err
		}
		return Form{Kind: KindNeg, Items: []Form{inner}}, nil

	case tokenLParen:
		p.advance()
		inner, err := p.parseSequence()
		if err != nil {
			return Form{}, err
		}
		if err := p.expect(tokenRParen, "')'"); err != nil {
			return Form{}, err
		}
		return inner, nil

	case tokenAtom:
		p.advance()
		if p.current().typ != tokenColon {
			return Form{Kind: KindAtom, Atom: tok.value}, nil
		}
		p.advance()
		fnTok := p.current()
		if fnTok.typ != tokenAtom {
			return Form{}, p.errorf("expected function name")
		}
		p.advance()
		args, err := p.parseArgs()
		if err != nil {
			return Form{}, err
		}
		return Form{Kind: KindCall, Module: tok.value, Function: fnTok.value, Args: args}, nil

	default:
		return Form{}, p.errorf("unexpected token")
	}
}

func (p *parser) parseArgs() ([]Form, error) {
	if err := p.expect(tokenLParen, "'('"); err != nil {
		return nil, err
	}
	args := []Form{}
	if p.current().typ == tokenRParen {
		p.advance()
		return args, nil
	}
	for {
		arg, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		args = append(args, arg)
		switch p.current().typ {
		case tokenComma:
			p.advance()
		case tokenRParen:
			p.advance()
			return args, nil
		default:
			return nil, p.errorf("expected ',' or ')'")
		}
	}
}
