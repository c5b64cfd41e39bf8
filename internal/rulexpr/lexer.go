package rulexpr

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

type tokenKind int

const (
	tokenEOF tokenKind = iota
	tokenNumber
	tokenString
	tokenIdent
	tokenTrue
	tokenFalse
	tokenAnd
	tokenOr
	tokenNot
	tokenEndsWith
	tokenStartsWith
	tokenContains
	tokenLT
	tokenLE
	tokenGT
	tokenGE
	tokenEQ
	tokenNE
	tokenPlus
	tokenMinus
	tokenStar
	tokenSlash
	tokenLParen
	tokenRParen
)

type token struct {
	kind tokenKind
	text string
	num  float64
	pos  int
}

// keywords maps word operators to their token kinds. Identifiers outside this
// map are field references, checked against the transaction field set by the
// parser.
var keywords = map[string]tokenKind{
	"true":       tokenTrue,
	"false":      tokenFalse,
	"and":        tokenAnd,
	"or":         tokenOr,
	"not":        tokenNot,
	"endswith":   tokenEndsWith,
	"startswith": tokenStartsWith,
	"contains":   tokenContains,
}

type lexer struct {
	input string
	pos   int
}

func (l *lexer) next() (token, error) {
	for l.pos < len(l.input) && isSpace(l.input[l.pos]) {
		l.pos++
	}
	if l.pos >= len(l.input) {
		return token{kind: tokenEOF, pos: l.pos}, nil
	}

	start := l.pos
	c := l.input[l.pos]

	switch {
	case c >= '0' && c <= '9' || c == '.':
		return l.lexNumber(start)
	case c == '\'' || c == '"':
		return l.lexString(start, c)
	case isIdentStart(rune(c)):
		return l.lexWord(start)
	}

	two := ""
	if l.pos+1 < len(l.input) {
		two = l.input[l.pos : l.pos+2]
	}
	switch two {
	case "<=":
		l.pos += 2
		return token{kind: tokenLE, text: two, pos: start}, nil
	case ">=":
		l.pos += 2
		return token{kind: tokenGE, text: two, pos: start}, nil
	case "==":
		l.pos += 2
		return token{kind: tokenEQ, text: two, pos: start}, nil
	case "!=":
		l.pos += 2
		return token{kind: tokenNE, text: two, pos: start}, nil
	case "&&":
		l.pos += 2
		return token{kind: tokenAnd, text: two, pos: start}, nil
	case "||":
		l.pos += 2
		return token{kind: tokenOr, text: two, pos: start}, nil
	}

	l.pos++
	switch c {
	case '<':
		return token{kind: tokenLT, text: "<", pos: start}, nil
	case '>':
		return token{kind: tokenGT, text: ">", pos: start}, nil
	case '!':
		return token{kind: tokenNot, text: "!", pos: start}, nil
	case '+':
		return token{kind: tokenPlus, text: "+", pos: start}, nil
	case '-':
		return token{kind: tokenMinus, text: "-", pos: start}, nil
	case '*':
		return token{kind: tokenStar, text: "*", pos: start}, nil
	case '/':
		return token{kind: tokenSlash, text: "/", pos: start}, nil
	case '(':
		return token{kind: tokenLParen, text: "(", pos: start}, nil
	case ')':
		return token{kind: tokenRParen, text: ")", pos: start}, nil
	}

	return token{}, fmt.Errorf("unexpected character %q at position %d", c, start)
}

func (l *lexer) lexNumber(start int) (token, error) {
	for l.pos < len(l.input) && (isDigit(l.input[l.pos]) || l.input[l.pos] == '.' || l.input[l.pos] == '_') {
		l.pos++
	}
	text := strings.ReplaceAll(l.input[start:l.pos], "_", "")
	n, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return token{}, fmt.Errorf("invalid number %q at position %d", l.input[start:l.pos], start)
	}
	return token{kind: tokenNumber, text: text, num: n, pos: start}, nil
}

func (l *lexer) lexString(start int, quote byte) (token, error) {
	l.pos++ // opening quote
	var sb strings.Builder
	for l.pos < len(l.input) {
		c := l.input[l.pos]
		if c == quote {
			l.pos++
			return token{kind: tokenString, text: sb.String(), pos: start}, nil
		}
		if c == '\\' && l.pos+1 < len(l.input) {
			l.pos++
			c = l.input[l.pos]
		}
		sb.WriteByte(c)
		l.pos++
	}
	return token{}, fmt.Errorf("unterminated string at position %d", start)
}

func (l *lexer) lexWord(start int) (token, error) {
	for l.pos < len(l.input) && isIdentPart(rune(l.input[l.pos])) {
		l.pos++
	}
	word := l.input[start:l.pos]
	if kind, ok := keywords[word]; ok {
		return token{kind: kind, text: word, pos: start}, nil
	}
	return token{kind: tokenIdent, text: word, pos: start}, nil
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

func isIdentStart(r rune) bool {
	return r == '_' || unicode.IsLetter(r)
}

func isIdentPart(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}
