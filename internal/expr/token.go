package expr

import "fmt"

type tokenType int

const (
	tokenEOF tokenType = iota
	tokenInt
	tokenFloat
	tokenString
	tokenAtom
	tokenComma
	tokenColon
	tokenLParen
	tokenRParen
	tokenPlus
	tokenMinus
	tokenStar
	tokenSlash
	tokenDot
)

type token struct {
	typ   tokenType
	value string
	line  int
}

// tokenize converts the expression text into tokens, tracking line
// numbers for error reporting.
func tokenize(text string) ([]token, error) {
	var tokens []token
	line := 1
	i := 0
	for i < len(text) {
		c := text[i]

		if c == '\n' {
			line++
			i++
			continue
		}
		if c == ' ' || c == '\t' || c == '\r' {
			i++
			continue
		}

		switch c {
		case ',':
			tokens = append(tokens, token{typ: tokenComma, value: ",", line: line})
			i++
			continue
		case ':':
			tokens = append(tokens, token{typ: tokenColon, value: ":", line: line})
			i++
			continue
		case '(':
			tokens = append(tokens, token{typ: tokenLParen, value: "(", line: line})
			i++
			continue
		case ')':
			tokens = append(tokens, token{typ: tokenRParen, value: ")", line: line})
			i++
			continue
		case '+':
			tokens = append(tokens, token{typ: tokenPlus, value: "+", line: line})
			i++
			continue
		case '-':
			tokens = append(tokens, token{typ: tokenMinus, value: "-", line: line})
			i++
			continue
		case '*':
			tokens = append(tokens, token{typ: tokenStar, value: "*", line: line})
			i++
			continue
		case '/':
			tokens = append(tokens, token{typ: tokenSlash, value: "/", line: line})
			i++
			continue
		case '.':
			tokens = append(tokens, token{typ: tokenDot, value: ".", line: line})
			i++
			continue
		}

		if c == '"' || c == '\'' {
			quote := c
			i++
			var value []byte
			for i < len(text) && text[i] != quote {
				if text[i] == '\\' && i+1 < len(text) {
					i++
					switch text[i] {
					case 'n':
						value = append(value, '\n')
					case 't':
						value = append(value, '\t')
					default:
						value = append(value, text[i])
					}
					i++
					continue
				}
				if text[i] == '\n' {
					line++
				}
				value = append(value, text[i])
				i++
			}
			if i >= len(text) {
				return nil, &ParseError{Line: line, Msg: "unterminated string"}
			}
			i++
			tokens = append(tokens, token{typ: tokenString, value: string(value), line: line})
			continue
		}

		if c >= '0' && c <= '9' {
			start := i
			isFloat := false
			for i < len(text) && text[i] >= '0' && text[i] <= '9' {
				i++
			}
			// A dot is part of the number only when digits follow;
			// otherwise it is the expression terminator.
			if i+1 < len(text) && text[i] == '.' && text[i+1] >= '0' && text[i+1] <= '9' {
				isFloat = true
				i++
				for i < len(text) && text[i] >= '0' && text[i] <= '9' {
					i++
				}
			}
			typ := tokenInt
			if isFloat {
				typ = tokenFloat
			}
			tokens = append(tokens, token{typ: typ, value: text[start:i], line: line})
			continue
		}

		if isAtomStart(c) {
			start := i
			for i < len(text) && isAtomChar(text[i]) {
				i++
			}
			tokens = append(tokens, token{typ: tokenAtom, value: text[start:i], line: line})
			continue
		}

		return nil, &ParseError{Line: line, Msg: fmt.Sprintf("unexpected character %q", string(c))}
	}

	tokens = append(tokens, token{typ: tokenEOF, line: line})
	return tokens, nil
}

func isAtomStart(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || c == '_'
}

func isAtomChar(c byte) bool {
	return isAtomStart(c) || (c >= '0' && c <= '9')
}
