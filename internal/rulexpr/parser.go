package rulexpr

import "fmt"

// Fields is the closed set of transaction fields an expression may reference.
// Any other identifier is rejected at parse time.
var Fields = map[string]bool{
	"transaction_id":     true,
	"transaction_amount": true,
	"merchant_id":        true,
	"client_id":          true,
	"phone_number":       true,
	"ip_address":         true,
	"email_address":      true,
	"amount":             true,
}

// builtins is the closed set of callable functions. Anything else used in call
// position is a parse error, so expressions cannot reach arbitrary code.
var builtins = map[string]bool{
	"lower": true,
	"upper": true,
}

type node interface{}

type numberLit float64

type stringLit string

type boolLit bool

type fieldRef string

type unaryExpr struct {
	op      tokenKind // tokenNot or tokenMinus
	operand node
}

type binaryExpr struct {
	op    tokenKind
	opTxt string
	left  node
	right node
}

type callExpr struct {
	fn  string // "lower" or "upper"
	arg node
}

// Expr is a parsed rule expression, ready for evaluation against a Binding.
type Expr struct {
	root   node
	source string
}

// Source returns the original expression text.
func (e *Expr) Source() string { return e.source }

// Parse compiles an expression into a typed tree. The grammar is closed: it
// has literals, transaction field references, arithmetic, comparisons, the
// string operators endswith/startswith/contains, the lower/upper builtins,
// and boolean combinators. There are no loops and no way to name anything
// outside the transaction field set.
func Parse(input string) (*Expr, error) {
	p := &parser{lex: &lexer{input: input}}
	if err := p.advance(); err != nil {
		return nil, err
	}
	root, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if p.tok.kind != tokenEOF {
		return nil, fmt.Errorf("unexpected %q at position %d", p.tok.text, p.tok.pos)
	}
	return &Expr{root: root, source: input}, nil
}

type parser struct {
	lex *lexer
	tok token
}

func (p *parser) advance() error {
	tok, err := p.lex.next()
	if err != nil {
		return err
	}
	p.tok = tok
	return nil
}

func (p *parser) parseOr() (node, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.tok.kind == tokenOr {
		op := p.tok
		if err := p.advance(); err != nil {
			return nil, err
		}
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = binaryExpr{op: tokenOr, opTxt: op.text, left: left, right: right}
	}
	return left, nil
}

func (p *parser) parseAnd() (node, error) {
	left, err := p.parseNot()
	if err != nil {
		return nil, err
	}
	for p.tok.kind == tokenAnd {
		op := p.tok
		if err := p.advance(); err != nil {
			return nil, err
		}
		right, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		left = binaryExpr{op: tokenAnd, opTxt: op.text, left: left, right: right}
	}
	return left, nil
}

func (p *parser) parseNot() (node, error) {
	if p.tok.kind == tokenNot {
		if err := p.advance(); err != nil {
			return nil, err
		}
		operand, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		return unaryExpr{op: tokenNot, operand: operand}, nil
	}
	return p.parseComparison()
}

func (p *parser) parseComparison() (node, error) {
	left, err := p.parseAdditive()
	if err != nil {
		return nil, err
	}
	switch p.tok.kind {
	case tokenLT, tokenLE, tokenGT, tokenGE, tokenEQ, tokenNE,
		tokenEndsWith, tokenStartsWith, tokenContains:
		op := p.tok
		if err := p.advance(); err != nil {
			return nil, err
		}
		right, err := p.parseAdditive()
		if err != nil {
			return nil, err
		}
		return binaryExpr{op: op.kind, opTxt: op.text, left: left, right: right}, nil
	}
	return left, nil
}

func (p *parser) parseAdditive() (node, error) {
	left, err := p.parseMultiplicative()
	if err != nil {
		return nil, err
	}
	for p.tok.kind == tokenPlus || p.tok.kind == tokenMinus {
		op := p.tok
		if err := p.advance(); err != nil {
			return nil, err
		}
		right, err := p.parseMultiplicative()
		if err != nil {
			return nil, err
		}
		left = binaryExpr{op: op.kind, opTxt: op.text, left: left, right: right}
	}
	return left, nil
}

func (p *parser) parseMultiplicative() (node, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for p.tok.kind == tokenStar || p.tok.kind == tokenSlash {
		op := p.tok
		if err := p.advance(); err != nil {
			return nil, err
		}
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = binaryExpr{op: op.kind, opTxt: op.text, left: left, right: right}
	}
	return left, nil
}

func (p *parser) parseUnary() (node, error) {
	if p.tok.kind == tokenMinus {
		if err := p.advance(); err != nil {
			return nil, err
		}
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return unaryExpr{op: tokenMinus, operand: operand}, nil
	}
	return p.parsePrimary()
}

func (p *parser) parsePrimary() (node, error) {
	tok := p.tok
	switch tok.kind {
	case tokenNumber:
		if err := p.advance(); err != nil {
			return nil, err
		}
		return numberLit(tok.num), nil
	case tokenString:
		if err := p.advance(); err != nil {
			return nil, err
		}
		return stringLit(tok.text), nil
	case tokenTrue:
		if err := p.advance(); err != nil {
			return nil, err
		}
		return boolLit(true), nil
	case tokenFalse:
		if err := p.advance(); err != nil {
			return nil, err
		}
		return boolLit(false), nil
	case tokenLParen:
		if err := p.advance(); err != nil {
			return nil, err
		}
		inner, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if p.tok.kind != tokenRParen {
			return nil, fmt.Errorf("expected ')' at position %d", p.tok.pos)
		}
		if err := p.advance(); err != nil {
			return nil, err
		}
		return inner, nil
	case tokenIdent:
		if err := p.advance(); err != nil {
			return nil, err
		}
		if p.tok.kind == tokenLParen {
			return p.parseCall(tok)
		}
		if !Fields[tok.text] {
			return nil, fmt.Errorf("unknown field %q at position %d", tok.text, tok.pos)
		}
		return fieldRef(tok.text), nil
	}
	return nil, fmt.Errorf("unexpected %q at position %d", tok.text, tok.pos)
}

func (p *parser) parseCall(name token) (node, error) {
	if !builtins[name.text] {
		return nil, fmt.Errorf("unknown function %q at position %d", name.text, name.pos)
	}
	if err := p.advance(); err != nil { // consume '('
		return nil, err
	}
	arg, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if p.tok.kind != tokenRParen {
		return nil, fmt.Errorf("expected ')' after %s argument at position %d", name.text, p.tok.pos)
	}
	if err := p.advance(); err != nil {
		return nil, err
	}
	return callExpr{fn: name.text, arg: arg}, nil
}
