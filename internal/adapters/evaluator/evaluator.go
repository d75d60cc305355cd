// Package evaluator implements the condition-expression evaluator used at
// target- and task-level condition checks. The language is a small
// boolean grammar over property references:
//
//	'$(Configuration)' == 'Release' and ('$(Platform)' != 'arm64' or true)
//
// Property references expand from the current property state; an
// undefined property expands to the empty string. String comparison
// ignores case.
package evaluator

import (
	"fmt"
	"strings"

	"go.trai.ch/zerr"
)

// ErrInvalidCondition is returned for expressions that do not parse.
var ErrInvalidCondition = zerr.New("invalid condition expression")

// Evaluator implements ports.ConditionEvaluator.
type Evaluator struct{}

// New creates an Evaluator.
func New() *Evaluator {
	return &Evaluator{}
}

// Evaluate returns the truth value of the expression against the given
// property state. An empty or all-whitespace expression is true.
func (e *Evaluator) Evaluate(condition string, properties map[string]string) (bool, error) {
	if strings.TrimSpace(condition) == "" {
		return true, nil
	}

	p := &parser{
		tokens: lex(condition),
		props:  properties,
		src:    condition,
	}
	v, err := p.parseOr()
	if err != nil {
		return false, err
	}
	if p.peek().kind != tokEOF {
		return false, p.errorf("unexpected %q", p.peek().text)
	}
	return v, nil
}

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokWord
	tokString
	tokEq
	tokNeq
	tokBang
	tokLParen
	tokRParen
	tokInvalid
)

type token struct {
	kind tokenKind
	text string
}

func lex(s string) []token {
	var tokens []token
	i := 0
	for i < len(s) {
		c := s[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++
		case c == '(':
			tokens = append(tokens, token{tokLParen, "("})
			i++
		case c == ')':
			tokens = append(tokens, token{tokRParen, ")"})
			i++
		case c == '\'':
			j := i + 1
			for j < len(s) && s[j] != '\'' {
				j++
			}
			if j >= len(s) {
				tokens = append(tokens, token{tokInvalid, s[i:]})
				return tokens
			}
			tokens = append(tokens, token{tokString, s[i+1 : j]})
			i = j + 1
		case c == '=' && i+1 < len(s) && s[i+1] == '=':
			tokens = append(tokens, token{tokEq, "=="})
			i += 2
		case c == '!' && i+1 < len(s) && s[i+1] == '=':
			tokens = append(tokens, token{tokNeq, "!="})
			i += 2
		case c == '!':
			tokens = append(tokens, token{tokBang, "!"})
			i++
		default:
			j := i
			for j < len(s) {
				// A $(Name) reference is part of the word, parentheses
				// included.
				if s[j] == '$' && j+1 < len(s) && s[j+1] == '(' {
					end := strings.IndexByte(s[j+2:], ')')
					if end < 0 {
						tokens = append(tokens, token{tokInvalid, s[j:]})
						return tokens
					}
					j += end + 3
					continue
				}
				if strings.ContainsRune(" \t\n\r()'!=", rune(s[j])) {
					break
				}
				j++
			}
			if j == i {
				tokens = append(tokens, token{tokInvalid, string(c)})
				return tokens
			}
			tokens = append(tokens, token{tokWord, s[i:j]})
			i = j
		}
	}
	tokens = append(tokens, token{tokEOF, ""})
	return tokens
}

type parser struct {
	tokens []token
	pos    int
	props  map[string]string
	src    string
}

func (p *parser) peek() token {
	return p.tokens[p.pos]
}

func (p *parser) next() token {
	t := p.tokens[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

func (p *parser) errorf(format string, args ...any) error {
	return zerr.With(zerr.With(ErrInvalidCondition, "detail", fmt.Sprintf(format, args...)), "condition", p.src)
}

func (p *parser) parseOr() (bool, error) {
	v, err := p.parseAnd()
	if err != nil {
		return false, err
	}
	for isKeyword(p.peek(), "or") {
		p.next()
		rhs, err := p.parseAnd()
		if err != nil {
			return false, err
		}
		v = v || rhs
	}
	return v, nil
}

func (p *parser) parseAnd() (bool, error) {
	v, err := p.parseUnary()
	if err != nil {
		return false, err
	}
	for isKeyword(p.peek(), "and") {
		p.next()
		rhs, err := p.parseUnary()
		if err != nil {
			return false, err
		}
		v = v && rhs
	}
	return v, nil
}

func (p *parser) parseUnary() (bool, error) {
	switch t := p.peek(); t.kind {
	case tokBang:
		p.next()
		v, err := p.parseUnary()
		if err != nil {
			return false, err
		}
		return !v, nil
	case tokLParen:
		p.next()
		v, err := p.parseOr()
		if err != nil {
			return false, err
		}
		if p.next().kind != tokRParen {
			return false, p.errorf("missing closing parenthesis")
		}
		return v, nil
	default:
		return p.parseComparison()
	}
}

func (p *parser) parseComparison() (bool, error) {
	lhs, err := p.parseTerm()
	if err != nil {
		return false, err
	}

	switch p.peek().kind {
	case tokEq:
		p.next()
		rhs, err := p.parseTerm()
		if err != nil {
			return false, err
		}
		return strings.EqualFold(lhs, rhs), nil
	case tokNeq:
		p.next()
		rhs, err := p.parseTerm()
		if err != nil {
			return false, err
		}
		return !strings.EqualFold(lhs, rhs), nil
	default:
		// A bare term must be a boolean literal after expansion.
		switch strings.ToLower(lhs) {
		case "true":
			return true, nil
		case "false", "":
			return false, nil
		default:
			return false, p.errorf("expected boolean, got %q", lhs)
		}
	}
}

func (p *parser) parseTerm() (string, error) {
	switch t := p.next(); t.kind {
	case tokString, tokWord:
		return p.expand(t.text), nil
	case tokInvalid:
		return "", p.errorf("malformed token %q", t.text)
	default:
		return "", p.errorf("expected value, got %q", t.text)
	}
}

// expand replaces $(Name) references with property values. Undefined
// properties expand to the empty string.
func (p *parser) expand(s string) string {
	if !strings.Contains(s, "$(") {
		return s
	}
	var b strings.Builder
	for i := 0; i < len(s); {
		if s[i] == '$' && i+1 < len(s) && s[i+1] == '(' {
			if end := strings.IndexByte(s[i+2:], ')'); end >= 0 {
				name := s[i+2 : i+2+end]
				b.WriteString(p.props[name])
				i += end + 3
				continue
			}
		}
		b.WriteByte(s[i])
		i++
	}
	return b.String()
}

func isKeyword(t token, kw string) bool {
	return t.kind == tokWord && strings.EqualFold(t.text, kw)
}
