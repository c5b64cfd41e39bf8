package rulexpr

import (
	"fmt"
	"strconv"
	"strings"
)

// EvalError reports a failure to evaluate an expression (type mismatch,
// division by zero, non-boolean result). Its message is suitable for a
// verdict's failure report.
type EvalError struct {
	Msg string
}

func (e *EvalError) Error() string { return e.Msg }

func evalErrorf(format string, args ...interface{}) error {
	return &EvalError{Msg: fmt.Sprintf(format, args...)}
}

type valueKind int

const (
	kindNumber valueKind = iota
	kindString
	kindBool
)

func (k valueKind) String() string {
	switch k {
	case kindNumber:
		return "number"
	case kindString:
		return "string"
	default:
		return "boolean"
	}
}

// Value is a typed expression value: a number, a string, or a boolean.
type Value struct {
	kind valueKind
	num  float64
	str  string
	b    bool
}

// Number wraps a float64 as a Value.
func Number(n float64) Value { return Value{kind: kindNumber, num: n} }

// String wraps a string as a Value.
func String(s string) Value { return Value{kind: kindString, str: s} }

// Bool wraps a bool as a Value.
func Bool(b bool) Value { return Value{kind: kindBool, b: b} }

func (v Value) describe() string {
	switch v.kind {
	case kindNumber:
		return strconv.FormatFloat(v.num, 'g', -1, 64)
	case kindString:
		return strconv.Quote(v.str)
	default:
		return strconv.FormatBool(v.b)
	}
}

// Binding maps transaction field names to their values for one evaluation.
type Binding map[string]Value

// Eval evaluates the expression against the binding. It is pure and always
// terminates; every fault comes back as *EvalError, nothing panics or escapes.
func (e *Expr) Eval(binding Binding) (bool, error) {
	v, err := eval(e.root, binding)
	if err != nil {
		return false, err
	}
	if v.kind != kindBool {
		return false, evalErrorf("expression evaluated to %s %s, expected a boolean", v.kind, v.describe())
	}
	return v.b, nil
}

func eval(n node, binding Binding) (Value, error) {
	switch n := n.(type) {
	case numberLit:
		return Number(float64(n)), nil
	case stringLit:
		return String(string(n)), nil
	case boolLit:
		return Bool(bool(n)), nil
	case fieldRef:
		v, ok := binding[string(n)]
		if !ok {
			return Value{}, evalErrorf("field %q is not bound", string(n))
		}
		return v, nil
	case unaryExpr:
		return evalUnary(n, binding)
	case binaryExpr:
		return evalBinary(n, binding)
	case callExpr:
		return evalCall(n, binding)
	}
	return Value{}, evalErrorf("internal: unknown expression node %T", n)
}

func evalUnary(n unaryExpr, binding Binding) (Value, error) {
	v, err := eval(n.operand, binding)
	if err != nil {
		return Value{}, err
	}
	switch n.op {
	case tokenNot:
		if v.kind != kindBool {
			return Value{}, evalErrorf("not requires a boolean, got %s %s", v.kind, v.describe())
		}
		return Bool(!v.b), nil
	case tokenMinus:
		if v.kind != kindNumber {
			return Value{}, evalErrorf("unary - requires a number, got %s %s", v.kind, v.describe())
		}
		return Number(-v.num), nil
	}
	return Value{}, evalErrorf("internal: unknown unary operator")
}

func evalBinary(n binaryExpr, binding Binding) (Value, error) {
	// and/or short-circuit so only the deciding operand is typed-checked.
	if n.op == tokenAnd || n.op == tokenOr {
		return evalLogical(n, binding)
	}

	left, err := eval(n.left, binding)
	if err != nil {
		return Value{}, err
	}
	right, err := eval(n.right, binding)
	if err != nil {
		return Value{}, err
	}

	switch n.op {
	case tokenPlus, tokenMinus, tokenStar, tokenSlash:
		return evalArithmetic(n, left, right)
	case tokenLT, tokenLE, tokenGT, tokenGE:
		return evalOrdering(n, left, right)
	case tokenEQ, tokenNE:
		return evalEquality(n, left, right)
	case tokenEndsWith, tokenStartsWith, tokenContains:
		return evalStringOp(n, left, right)
	}
	return Value{}, evalErrorf("internal: unknown binary operator %q", n.opTxt)
}

func evalLogical(n binaryExpr, binding Binding) (Value, error) {
	left, err := eval(n.left, binding)
	if err != nil {
		return Value{}, err
	}
	if left.kind != kindBool {
		return Value{}, evalErrorf("%s requires booleans, got %s %s", n.opTxt, left.kind, left.describe())
	}
	if n.op == tokenAnd && !left.b {
		return Bool(false), nil
	}
	if n.op == tokenOr && left.b {
		return Bool(true), nil
	}
	right, err := eval(n.right, binding)
	if err != nil {
		return Value{}, err
	}
	if right.kind != kindBool {
		return Value{}, evalErrorf("%s requires booleans, got %s %s", n.opTxt, right.kind, right.describe())
	}
	return Bool(right.b), nil
}

func evalArithmetic(n binaryExpr, left, right Value) (Value, error) {
	if left.kind != kindNumber || right.kind != kindNumber {
		return Value{}, evalErrorf("%s requires numbers, got %s %s and %s %s",
			n.opTxt, left.kind, left.describe(), right.kind, right.describe())
	}
	switch n.op {
	case tokenPlus:
		return Number(left.num + right.num), nil
	case tokenMinus:
		return Number(left.num - right.num), nil
	case tokenStar:
		return Number(left.num * right.num), nil
	default:
		if right.num == 0 {
			return Value{}, evalErrorf("division by zero")
		}
		return Number(left.num / right.num), nil
	}
}

func evalOrdering(n binaryExpr, left, right Value) (Value, error) {
	if left.kind != kindNumber || right.kind != kindNumber {
		return Value{}, evalErrorf("%s requires numbers, got %s %s and %s %s",
			n.opTxt, left.kind, left.describe(), right.kind, right.describe())
	}
	switch n.op {
	case tokenLT:
		return Bool(left.num < right.num), nil
	case tokenLE:
		return Bool(left.num <= right.num), nil
	case tokenGT:
		return Bool(left.num > right.num), nil
	default:
		return Bool(left.num >= right.num), nil
	}
}

func evalEquality(n binaryExpr, left, right Value) (Value, error) {
	if left.kind != right.kind {
		return Value{}, evalErrorf("cannot compare %s %s with %s %s",
			left.kind, left.describe(), right.kind, right.describe())
	}
	var eq bool
	switch left.kind {
	case kindNumber:
		eq = left.num == right.num
	case kindString:
		eq = left.str == right.str
	default:
		eq = left.b == right.b
	}
	if n.op == tokenNE {
		eq = !eq
	}
	return Bool(eq), nil
}

func evalStringOp(n binaryExpr, left, right Value) (Value, error) {
	if left.kind != kindString || right.kind != kindString {
		return Value{}, evalErrorf("%s requires strings, got %s %s and %s %s",
			n.opTxt, left.kind, left.describe(), right.kind, right.describe())
	}
	switch n.op {
	case tokenEndsWith:
		return Bool(strings.HasSuffix(left.str, right.str)), nil
	case tokenStartsWith:
		return Bool(strings.HasPrefix(left.str, right.str)), nil
	default:
		return Bool(strings.Contains(left.str, right.str)), nil
	}
}

func evalCall(n callExpr, binding Binding) (Value, error) {
	arg, err := eval(n.arg, binding)
	if err != nil {
		return Value{}, err
	}
	if arg.kind != kindString {
		return Value{}, evalErrorf("%s requires a string, got %s %s", n.fn, arg.kind, arg.describe())
	}
	if n.fn == "lower" {
		return String(strings.ToLower(arg.str)), nil
	}
	return String(strings.ToUpper(arg.str)), nil
}
