package dsl

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// Evaluator 条件表达式求值器
// Evaluator evaluates canvas condition expressions against run state.
//
// Grammar, lowest precedence first:
//
//	or    := and (("||" | "or") and)*
//	and   := cmp (("&&" | "and") cmp)*
//	cmp   := unary (("==" | "!=" | ">" | "<" | ">=" | "<=") unary)?
//	unary := ("!" | "not") unary | primary
//	primary := number | string | true | false | ident | "(" or ")"
//
// Identifiers resolve dot paths into the state map: "score" reads
// state["score"], "review.score" descends into nested maps. Unknown paths
// resolve to nil, which is falsy and never an error.
type Evaluator struct{}

// NewEvaluator creates a condition evaluator.
func NewEvaluator() *Evaluator {
	return &Evaluator{}
}

// Evaluate parses and evaluates the expression. An empty expression is false.
// The result of any expression is coerced to boolean by truthiness: nil,
// zero, the empty string, "false" and "0" are falsy, everything else truthy.
func (e *Evaluator) Evaluate(expression string, state map[string]any) (bool, error) {
	expression = strings.TrimSpace(expression)
	if expression == "" {
		return false, nil
	}

	lx := newLexer(expression)
	tokens, err := lx.lex()
	if err != nil {
		return false, err
	}
	if len(tokens) == 0 {
		return false, nil
	}

	p := &parser{tokens: tokens, state: state}
	value, err := p.parseOr()
	if err != nil {
		return false, err
	}
	if p.pos < len(p.tokens) {
		return false, fmt.Errorf("unexpected %q after expression", p.tokens[p.pos].text)
	}
	return truthy(value), nil
}

// ============================================================
// Lexer
// ============================================================

type tokenKind int

const (
	kindNumber tokenKind = iota // 42, 0.8, -3.14
	kindString                  // "high" or 'high'
	kindIdent                   // variable path, true/false, and/or/not
	kindOp                      // ==, !=, >, <, >=, <=, &&, ||, !
	kindLParen
	kindRParen
)

type token struct {
	kind tokenKind
	text string
}

type lexer struct {
	runes []rune
	pos   int
	out   []token
}

func newLexer(input string) *lexer {
	return &lexer{runes: []rune(input)}
}

func (l *lexer) lex() ([]token, error) {
	for l.pos < len(l.runes) {
		ch := l.runes[l.pos]

		switch {
		case unicode.IsSpace(ch):
			l.pos++

		case ch == '(':
			l.emit(kindLParen, "(")
			l.pos++
		case ch == ')':
			l.emit(kindRParen, ")")
			l.pos++

		case ch == '"' || ch == '\'':
			if err := l.lexString(ch); err != nil {
				return nil, err
			}

		case l.hasTwoCharOp():
			l.emit(kindOp, string(l.runes[l.pos:l.pos+2]))
			l.pos += 2

		case ch == '>' || ch == '<' || ch == '!':
			l.emit(kindOp, string(ch))
			l.pos++

		case isDigit(ch) || (ch == '-' && l.minusStartsNumber()):
			l.lexNumber()

		case isIdentStart(ch):
			l.lexIdent()

		default:
			return nil, fmt.Errorf("unexpected character %q at position %d", string(ch), l.pos)
		}
	}
	return l.out, nil
}

func (l *lexer) emit(kind tokenKind, text string) {
	l.out = append(l.out, token{kind: kind, text: text})
}

func (l *lexer) hasTwoCharOp() bool {
	if l.pos+1 >= len(l.runes) {
		return false
	}
	switch string(l.runes[l.pos : l.pos+2]) {
	case "==", "!=", ">=", "<=", "&&", "||":
		return true
	}
	return false
}

// minusStartsNumber decides whether '-' opens a negative literal. Only at the
// start of the expression or after an operator or opening parenthesis.
func (l *lexer) minusStartsNumber() bool {
	if l.pos+1 >= len(l.runes) || !isDigit(l.runes[l.pos+1]) {
		return false
	}
	if len(l.out) == 0 {
		return true
	}
	last := l.out[len(l.out)-1]
	return last.kind == kindOp || last.kind == kindLParen
}

func (l *lexer) lexString(quote rune) error {
	start := l.pos
	l.pos++ // opening quote
	var sb strings.Builder
	for l.pos < len(l.runes) {
		ch := l.runes[l.pos]
		if ch == '\\' && l.pos+1 < len(l.runes) {
			sb.WriteRune(l.runes[l.pos+1])
			l.pos += 2
			continue
		}
		if ch == quote {
			l.pos++
			l.emit(kindString, sb.String())
			return nil
		}
		sb.WriteRune(ch)
		l.pos++
	}
	return fmt.Errorf("unterminated string starting at position %d", start)
}

func (l *lexer) lexNumber() {
	start := l.pos
	if l.runes[l.pos] == '-' {
		l.pos++
	}
	for l.pos < len(l.runes) && isDigit(l.runes[l.pos]) {
		l.pos++
	}
	if l.pos < len(l.runes) && l.runes[l.pos] == '.' {
		l.pos++
		for l.pos < len(l.runes) && isDigit(l.runes[l.pos]) {
			l.pos++
		}
	}
	l.emit(kindNumber, string(l.runes[start:l.pos]))
}

func (l *lexer) lexIdent() {
	start := l.pos
	for l.pos < len(l.runes) && isIdentPart(l.runes[l.pos]) {
		l.pos++
	}
	l.emit(kindIdent, string(l.runes[start:l.pos]))
}

func isDigit(ch rune) bool      { return ch >= '0' && ch <= '9' }
func isIdentStart(ch rune) bool { return unicode.IsLetter(ch) || ch == '_' }
func isIdentPart(ch rune) bool {
	return unicode.IsLetter(ch) || unicode.IsDigit(ch) || ch == '_' || ch == '.'
}

// ============================================================
// Parser
// ============================================================

type parser struct {
	tokens []token
	pos    int
	state  map[string]any
}

func (p *parser) peek() *token {
	if p.pos < len(p.tokens) {
		return &p.tokens[p.pos]
	}
	return nil
}

func (p *parser) advance() token {
	t := p.tokens[p.pos]
	p.pos++
	return t
}

// isKeywordOp matches the word forms of the logical operators. Canvas
// editors frequently author conditions in the "and"/"or"/"not" spelling.
func isKeywordOp(t *token, word string) bool {
	return t != nil && t.kind == kindIdent && t.text == word
}

func isOp(t *token, op string) bool {
	return t != nil && t.kind == kindOp && t.text == op
}

func (p *parser) parseOr() (any, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for isOp(p.peek(), "||") || isKeywordOp(p.peek(), "or") {
		p.advance()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = truthy(left) || truthy(right)
	}
	return left, nil
}

func (p *parser) parseAnd() (any, error) {
	left, err := p.parseComparison()
	if err != nil {
		return nil, err
	}
	for isOp(p.peek(), "&&") || isKeywordOp(p.peek(), "and") {
		p.advance()
		right, err := p.parseComparison()
		if err != nil {
			return nil, err
		}
		left = truthy(left) && truthy(right)
	}
	return left, nil
}

func (p *parser) parseComparison() (any, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	t := p.peek()
	if t != nil && t.kind == kindOp {
		switch t.text {
		case "==", "!=", ">", "<", ">=", "<=":
			op := p.advance().text
			right, err := p.parseUnary()
			if err != nil {
				return nil, err
			}
			return compare(left, op, right), nil
		}
	}
	return left, nil
}

func (p *parser) parseUnary() (any, error) {
	if isOp(p.peek(), "!") || isKeywordOp(p.peek(), "not") {
		p.advance()
		value, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return !truthy(value), nil
	}
	return p.parsePrimary()
}

func (p *parser) parsePrimary() (any, error) {
	t := p.peek()
	if t == nil {
		return nil, fmt.Errorf("unexpected end of expression")
	}

	switch t.kind {
	case kindNumber:
		p.advance()
		return strconv.ParseFloat(t.text, 64)

	case kindString:
		p.advance()
		return t.text, nil

	case kindIdent:
		p.advance()
		switch t.text {
		case "true":
			return true, nil
		case "false":
			return false, nil
		default:
			return lookupPath(t.text, p.state), nil
		}

	case kindLParen:
		p.advance()
		value, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if p.peek() == nil || p.peek().kind != kindRParen {
			return nil, fmt.Errorf("expected closing parenthesis")
		}
		p.advance()
		return value, nil

	default:
		return nil, fmt.Errorf("unexpected token %q", t.text)
	}
}

// ============================================================
// Value semantics
// ============================================================

// lookupPath resolves a dot path through nested maps. Any miss along the
// path yields nil.
func lookupPath(path string, state map[string]any) any {
	var current any = state
	for _, part := range strings.Split(path, ".") {
		m, ok := current.(map[string]any)
		if !ok {
			return nil
		}
		current, ok = m[part]
		if !ok {
			return nil
		}
	}
	return current
}

// compare evaluates a binary comparison. Two nils are equal; nil orders
// below any non-nil value. Numeric comparison applies when both sides
// convert to float64, otherwise both sides compare as formatted strings.
func compare(left any, op string, right any) bool {
	if left == nil && right == nil {
		return op == "==" || op == ">=" || op == "<="
	}
	if left == nil || right == nil {
		switch op {
		case "!=":
			return true
		case "==":
			return false
		}
		if left == nil {
			return op == "<" || op == "<="
		}
		return op == ">" || op == ">="
	}

	lf, lok := asFloat(left)
	rf, rok := asFloat(right)
	if lok && rok {
		switch op {
		case "==":
			return lf == rf
		case "!=":
			return lf != rf
		case ">":
			return lf > rf
		case "<":
			return lf < rf
		case ">=":
			return lf >= rf
		case "<=":
			return lf <= rf
		}
	}

	ls := fmt.Sprintf("%v", left)
	rs := fmt.Sprintf("%v", right)
	switch op {
	case "==":
		return ls == rs
	case "!=":
		return ls != rs
	case ">":
		return ls > rs
	case "<":
		return ls < rs
	case ">=":
		return ls >= rs
	case "<=":
		return ls <= rs
	}
	return false
}

func truthy(v any) bool {
	if v == nil {
		return false
	}
	switch value := v.(type) {
	case bool:
		return value
	case float64:
		return value != 0
	case int:
		return value != 0
	case string:
		return value != "" && value != "false" && value != "0"
	default:
		return true
	}
}

func asFloat(v any) (float64, bool) {
	switch value := v.(type) {
	case float64:
		return value, true
	case float32:
		return float64(value), true
	case int:
		return float64(value), true
	case int64:
		return float64(value), true
	case string:
		f, err := strconv.ParseFloat(value, 64)
		return f, err == nil
	default:
		return 0, false
	}
}
