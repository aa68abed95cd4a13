// Package docid parses documentation comment ids such as
//
//	T:System.Collections.Generic.List`1
//	M:System.String.Join(System.String,System.String[])
//	M:System.Linq.Enumerable.Select``2(System.Collections.Generic.IEnumerable{``0},System.Func{``0,``1})
//	P:System.Collections.Generic.List`1.Item(System.Int32)
//
// These ids identify a symbol independently of any compilation and are
// the bridge between a source-level symbol and its definition inside a
// compiled module.
package docid

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Kind is the one-letter id prefix.
type Kind byte

const (
	Namespace Kind = 'N'
	Type      Kind = 'T'
	Method    Kind = 'M'
	Field     Kind = 'F'
	Property  Kind = 'P'
	Event     Kind = 'E'
)

func (k Kind) String() string {
	switch k {
	case Namespace:
		return "namespace"
	case Type:
		return "type"
	case Method:
		return "method"
	case Field:
		return "field"
	case Property:
		return "property"
	case Event:
		return "event"
	default:
		return "kind(" + strconv.Itoa(int(k)) + ")"
	}
}

// ErrSyntax is wrapped by every parse error.
var ErrSyntax = errors.New("invalid documentation comment id")

// ID is a parsed documentation comment id.
type ID struct {
	Kind Kind

	// TypeName is the dotted name of the type for T ids and of the
	// declaring type for member ids. Nested types are separated by '.'
	// like namespaces; generic types keep their "`N" suffix.
	TypeName string

	// Member is the member name for member ids ("#ctor" for
	// constructors). Explicit interface implementations keep the '#'
	// separators of the id.
	Member string
	// MemberArity is the generic arity of a method ("``N" suffix).
	MemberArity int

	// Params are the parameter types of methods and indexers.
	Params []string
	// HasParams distinguishes "M()" style ids from ids without a list.
	HasParams bool
	// Return is the conversion operator return type after '~'.
	Return string
}

// Parse parses s.
func Parse(s string) (ID, error) {
	if len(s) < 3 || s[1] != ':' {
		return ID{}, fmt.Errorf("%w: %q", ErrSyntax, s)
	}
	id := ID{Kind: Kind(s[0])}
	body := s[2:]

	switch id.Kind {
	case Namespace, Type:
		if strings.ContainsAny(body, "(~") {
			return ID{}, fmt.Errorf("%w: %q: unexpected parameter list", ErrSyntax, s)
		}
		id.TypeName = body
		return id, nil
	case Method, Field, Property, Event:
	default:
		return ID{}, fmt.Errorf("%w: %q: unknown kind %q", ErrSyntax, s, s[0])
	}

	if i := strings.IndexByte(body, '~'); i >= 0 {
		id.Return = body[i+1:]
		body = body[:i]
	}
	if i := strings.IndexByte(body, '('); i >= 0 {
		if !strings.HasSuffix(body, ")") {
			return ID{}, fmt.Errorf("%w: %q: unterminated parameter list", ErrSyntax, s)
		}
		params, err := splitParams(body[i+1 : len(body)-1])
		if err != nil {
			return ID{}, fmt.Errorf("%w: %q: %v", ErrSyntax, s, err)
		}
		id.Params = params
		id.HasParams = true
		body = body[:i]
	}

	dot := strings.LastIndexByte(body, '.')
	if dot <= 0 || dot == len(body)-1 {
		return ID{}, fmt.Errorf("%w: %q: member id needs a declaring type", ErrSyntax, s)
	}
	id.TypeName = body[:dot]
	id.Member = body[dot+1:]

	if i := strings.Index(id.Member, "``"); i >= 0 {
		n, err := strconv.Atoi(id.Member[i+2:])
		if err != nil {
			return ID{}, fmt.Errorf("%w: %q: bad generic arity", ErrSyntax, s)
		}
		id.MemberArity = n
		id.Member = id.Member[:i]
	}
	return id, nil
}

// splitParams splits a parameter list on top-level commas.
func splitParams(list string) ([]string, error) {
	if list == "" {
		return nil, nil
	}
	var (
		params []string
		depth  int
		start  int
	)
	for i := 0; i < len(list); i++ {
		switch list[i] {
		case '{', '[', '(':
			depth++
		case '}', ']', ')':
			depth--
			if depth < 0 {
				return nil, errors.New("unbalanced brackets")
			}
		case ',':
			if depth == 0 {
				params = append(params, list[start:i])
				start = i + 1
			}
		}
	}
	if depth != 0 {
		return nil, errors.New("unbalanced brackets")
	}
	params = append(params, list[start:])
	for _, p := range params {
		if p == "" {
			return nil, errors.New("empty parameter")
		}
	}
	return params, nil
}

// String renders the id back to its canonical text.
func (id ID) String() string {
	var b strings.Builder
	b.WriteByte(byte(id.Kind))
	b.WriteByte(':')
	b.WriteString(id.TypeName)
	if id.Kind == Type || id.Kind == Namespace {
		return b.String()
	}
	b.WriteByte('.')
	b.WriteString(id.Member)
	if id.MemberArity > 0 {
		b.WriteString("``")
		b.WriteString(strconv.Itoa(id.MemberArity))
	}
	if id.HasParams {
		b.WriteByte('(')
		b.WriteString(strings.Join(id.Params, ","))
		b.WriteByte(')')
	}
	if id.Return != "" {
		b.WriteByte('~')
		b.WriteString(id.Return)
	}
	return b.String()
}

// Split is one reading of a dotted type name: a namespace and the chain
// of type names from the outermost type inwards.
type Split struct {
	Namespace string
	Types     []string
}

// TypeSplits lists every way TypeName can be read as a namespace plus a
// nested type chain, longest namespace first. Documentation ids do not
// distinguish the two separators, so callers try each in turn.
func (id ID) TypeSplits() []Split {
	if id.TypeName == "" {
		return nil
	}
	segments := strings.Split(id.TypeName, ".")
	splits := make([]Split, 0, len(segments))
	for n := len(segments) - 1; n >= 0; n-- {
		splits = append(splits, Split{
			Namespace: strings.Join(segments[:n], "."),
			Types:     segments[n:],
		})
	}
	return splits
}
