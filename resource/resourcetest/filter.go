package resourcetest

import (
	"strconv"
	"strings"
	"unicode"

	"github.com/nuvla/job-engine-sub001/errors"
	"github.com/nuvla/job-engine-sub001/resource"
)

// predicate matches a resource against a parsed filter.
type predicate func(resource.Resource) bool

func matchAll(resource.Resource) bool { return true }

// parseFilter supports the subset of the filter grammar the engine emits:
// comparisons (= != < > <= >=) on slash-separated attribute paths against quoted
// strings, numbers or null, combined with and, or and parentheses.
func parseFilter(filter string) (predicate, error) {
	if strings.TrimSpace(filter) == "" {
		return matchAll, nil
	}
	toks, err := tokenize(filter)
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks}
	pred, err := p.or()
	if err != nil {
		return nil, err
	}
	if p.pos != len(p.toks) {
		return nil, errors.Newf("unexpected token %q in filter %q", p.toks[p.pos].text, filter)
	}
	return pred, nil
}

type tokenKind int

const (
	tokIdent tokenKind = iota
	tokString
	tokNumber
	tokOp
	tokLParen
	tokRParen
)

type token struct {
	kind tokenKind
	text string
}

func tokenize(s string) ([]token, error) {
	var toks []token
	for i := 0; i < len(s); {
		c := s[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n':
			i++
		case c == '(':
			toks = append(toks, token{tokLParen, "("})
			i++
		case c == ')':
			toks = append(toks, token{tokRParen, ")"})
			i++
		case c == '\'' || c == '"':
			end := strings.IndexByte(s[i+1:], c)
			if end < 0 {
				return nil, errors.Newf("unterminated string in filter %q", s)
			}
			toks = append(toks, token{tokString, s[i+1 : i+1+end]})
			i += end + 2
		case c == '=' || c == '!' || c == '<' || c == '>':
			op := string(c)
			if i+1 < len(s) && s[i+1] == '=' {
				op += "="
			}
			if op == "!" {
				return nil, errors.Newf("invalid operator in filter %q", s)
			}
			toks = append(toks, token{tokOp, op})
			i += len(op)
		case c == '-' || unicode.IsDigit(rune(c)):
			j := i + 1
			for j < len(s) && (unicode.IsDigit(rune(s[j])) || s[j] == '.') {
				j++
			}
			toks = append(toks, token{tokNumber, s[i:j]})
			i = j
		case isIdentByte(c):
			j := i
			for j < len(s) && isIdentByte(s[j]) {
				j++
			}
			toks = append(toks, token{tokIdent, s[i:j]})
			i = j
		default:
			return nil, errors.Newf("unexpected character %q in filter %q", c, s)
		}
	}
	return toks, nil
}

func isIdentByte(c byte) bool {
	return c == '_' || c == '-' || c == '/' || c == '.' || c == ':' ||
		('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z') || ('0' <= c && c <= '9')
}

type parser struct {
	toks []token
	pos  int
}

func (p *parser) peekKeyword(word string) bool {
	return p.pos < len(p.toks) && p.toks[p.pos].kind == tokIdent && p.toks[p.pos].text == word
}

func (p *parser) or() (predicate, error) {
	left, err := p.and()
	if err != nil {
		return nil, err
	}
	for p.peekKeyword("or") {
		p.pos++
		right, err := p.and()
		if err != nil {
			return nil, err
		}
		l, r := left, right
		left = func(res resource.Resource) bool { return l(res) || r(res) }
	}
	return left, nil
}

func (p *parser) and() (predicate, error) {
	left, err := p.term()
	if err != nil {
		return nil, err
	}
	for p.peekKeyword("and") {
		p.pos++
		right, err := p.term()
		if err != nil {
			return nil, err
		}
		l, r := left, right
		left = func(res resource.Resource) bool { return l(res) && r(res) }
	}
	return left, nil
}

func (p *parser) term() (predicate, error) {
	if p.pos >= len(p.toks) {
		return nil, errors.New("unexpected end of filter")
	}
	if p.toks[p.pos].kind == tokLParen {
		p.pos++
		inner, err := p.or()
		if err != nil {
			return nil, err
		}
		if p.pos >= len(p.toks) || p.toks[p.pos].kind != tokRParen {
			return nil, errors.New("missing closing parenthesis in filter")
		}
		p.pos++
		return inner, nil
	}
	return p.comparison()
}

func (p *parser) comparison() (predicate, error) {
	if p.pos+3 > len(p.toks) {
		return nil, errors.New("incomplete comparison in filter")
	}
	attr, op, val := p.toks[p.pos], p.toks[p.pos+1], p.toks[p.pos+2]
	if attr.kind != tokIdent || op.kind != tokOp {
		return nil, errors.Newf("malformed comparison near %q", attr.text)
	}
	p.pos += 3

	path := strings.Split(attr.text, "/")
	switch {
	case val.kind == tokIdent && val.text == "null":
		return func(res resource.Resource) bool {
			_, present := lookup(res, path)
			return (op.text == "=") == !present
		}, nil
	case val.kind == tokString:
		want := val.text
		return func(res resource.Resource) bool {
			got, ok := lookup(res, path)
			if !ok {
				return op.text == "!="
			}
			s, isString := got.(string)
			if !isString {
				return op.text == "!="
			}
			return compare(strings.Compare(s, want), op.text)
		}, nil
	case val.kind == tokNumber:
		want, err := strconv.ParseFloat(val.text, 64)
		if err != nil {
			return nil, errors.Wrapf(err, "bad number %q in filter", val.text)
		}
		return func(res resource.Resource) bool {
			got, ok := lookup(res, path)
			if !ok {
				return op.text == "!="
			}
			n, isNumber := got.(float64)
			if !isNumber {
				return op.text == "!="
			}
			switch {
			case n < want:
				return compare(-1, op.text)
			case n > want:
				return compare(1, op.text)
			default:
				return compare(0, op.text)
			}
		}, nil
	default:
		return nil, errors.Newf("unsupported value %q in filter", val.text)
	}
}

func compare(cmp int, op string) bool {
	switch op {
	case "=":
		return cmp == 0
	case "!=":
		return cmp != 0
	case "<":
		return cmp < 0
	case "<=":
		return cmp <= 0
	case ">":
		return cmp > 0
	case ">=":
		return cmp >= 0
	default:
		return false
	}
}

func lookup(res resource.Resource, path []string) (any, bool) {
	var cur any = map[string]any(res)
	for _, key := range path {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[key]
		if !ok || cur == nil {
			return nil, false
		}
	}
	return cur, true
}
