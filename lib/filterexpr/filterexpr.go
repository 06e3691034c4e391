// Package filterexpr models the boolean filter language: an immutable
// tree of field comparisons joined by $and/$or/$not combinators, with a
// JSON dict form such as
//
//	{"$and": [{"chr": "chr1"}, {"pos": {"$gt": 111}}]}
//
// Trees are never mutated after construction; every update operation
// returns a new tree sharing unchanged subtrees.
package filterexpr

import (
	"bytes"

	canonicaljson "github.com/gibson042/canonicaljson-go"
	"github.com/vardex/vardex/lib/varerror"
)

// Op is a comparison operator on a single field.
type Op string

const (
	OpEq    Op = "$eq"
	OpNe    Op = "$ne"
	OpGt    Op = "$gt"
	OpGte   Op = "$gte"
	OpLt    Op = "$lt"
	OpLte   Op = "$lte"
	OpIn    Op = "$in"
	OpNotIn Op = "$nin"
	OpHas   Op = "$has"
	OpRegex Op = "$regex"
)

// Comb is a boolean combinator joining child filters.
type Comb string

const (
	CombAnd Comb = "$and"
	CombOr  Comb = "$or"
	CombNot Comb = "$not"
)

// Wordset is a comparison value referring to a named word set stored in
// the database, usable with $in and $nin.
type Wordset string

// Filter is one node of a filter tree: either a comparison leaf (Field
// set, Comb empty) or a combinator (Comb set). A nil *Filter means no
// filtering at all; so does an empty root $and, but explicitly.
type Filter struct {
	Field string
	Op    Op
	Value interface{}

	Comb     Comb
	Children []*Filter
}

func (f *Filter) IsLeaf() bool {
	return f != nil && f.Comb == ""
}

// IsEmpty reports whether the filter places no restriction on rows.
func (f *Filter) IsEmpty() bool {
	if f == nil {
		return true
	}
	return f.Comb == CombAnd && len(f.Children) == 0
}

func Compare(field string, op Op, value interface{}) *Filter {
	return &Filter{Field: field, Op: op, Value: value}
}

func Eq(field string, value interface{}) *Filter  { return Compare(field, OpEq, value) }
func Ne(field string, value interface{}) *Filter  { return Compare(field, OpNe, value) }
func Gt(field string, value interface{}) *Filter  { return Compare(field, OpGt, value) }
func Gte(field string, value interface{}) *Filter { return Compare(field, OpGte, value) }
func Lt(field string, value interface{}) *Filter  { return Compare(field, OpLt, value) }
func Lte(field string, value interface{}) *Filter { return Compare(field, OpLte, value) }

func In(field string, values ...interface{}) *Filter {
	return Compare(field, OpIn, values)
}

func NotIn(field string, values ...interface{}) *Filter {
	return Compare(field, OpNotIn, values)
}

func InWordset(field string, wordset string) *Filter {
	return Compare(field, OpIn, Wordset(wordset))
}

func Has(field string, element interface{}) *Filter {
	return Compare(field, OpHas, element)
}

func Regex(field string, pattern string) *Filter {
	return Compare(field, OpRegex, pattern)
}

func And(children ...*Filter) *Filter {
	return &Filter{Comb: CombAnd, Children: children}
}

func Or(children ...*Filter) *Filter {
	return &Filter{Comb: CombOr, Children: children}
}

func Not(child *Filter) *Filter {
	return &Filter{Comb: CombNot, Children: []*Filter{child}}
}

// Empty returns the explicit match-all filter, an empty root $and.
func Empty() *Filter {
	return &Filter{Comb: CombAnd}
}

func malformed(message string) error {
	return varerror.New(
		varerror.WithKind(varerror.KindMalformedFilter),
		varerror.WithMessage(message),
	)
}

// Validate checks arity invariants: combinators need at least one child
// except the empty root $and, and $not takes exactly one. Field names
// are not resolved here; only translation does that.
func (f *Filter) Validate() error {
	return f.validate(true)
}

func (f *Filter) validate(root bool) error {
	if f == nil {
		return nil
	}

	if f.Comb == "" {
		if f.Field == "" {
			return malformed("comparison without a field name")
		}
		switch f.Op {
		case "", OpEq, OpNe, OpGt, OpGte, OpLt, OpLte, OpIn, OpNotIn, OpHas, OpRegex:
		default:
			return malformed("unknown operator: " + string(f.Op))
		}
		return nil
	}

	if f.Field != "" {
		return malformed("node is both a comparison and a combinator")
	}

	switch f.Comb {
	case CombAnd:
		if len(f.Children) == 0 && !root {
			return malformed("empty $and below the root")
		}
	case CombOr:
		if len(f.Children) == 0 {
			return malformed("$or requires at least one child")
		}
	case CombNot:
		if len(f.Children) != 1 {
			return malformed("$not requires exactly one child")
		}
	default:
		return malformed("unknown combinator: " + string(f.Comb))
	}

	for _, child := range f.Children {
		if err := child.validate(false); err != nil {
			return err
		}
	}

	return nil
}

// conditionKey mirrors the single-key dict form: for a leaf the key is
// its field name, for a combinator its operator.
func conditionKey(f *Filter) string {
	if f == nil {
		return ""
	}
	if f.IsLeaf() {
		return f.Field
	}
	return string(f.Comb)
}

// WithCondition returns a new tree with cond merged into the root $and
// list: the first child sharing cond's key is overwritten in place,
// preserving the order of the other children; otherwise cond is
// appended. Applying the same condition twice is a no-op the second
// time. A nil receiver starts from an empty root $and; a non-$and
// receiver is lifted in as the first child.
func (f *Filter) WithCondition(cond *Filter) *Filter {
	var children []*Filter
	switch {
	case f == nil:
	case f.Comb == CombAnd:
		children = f.Children
	default:
		children = []*Filter{f}
	}

	rv := &Filter{Comb: CombAnd, Children: make([]*Filter, len(children))}
	copy(rv.Children, children)

	key := conditionKey(cond)
	for i, child := range rv.Children {
		if conditionKey(child) == key {
			rv.Children[i] = cond
			return rv
		}
	}

	rv.Children = append(rv.Children, cond)
	return rv
}

// WithoutCondition returns a new tree with the root $and child matching
// key removed. Missing keys and non-$and receivers are left alone.
func (f *Filter) WithoutCondition(key string) *Filter {
	if f == nil || f.Comb != CombAnd {
		return f
	}

	rv := &Filter{Comb: CombAnd}
	for _, child := range f.Children {
		if conditionKey(child) == key {
			continue
		}
		rv.Children = append(rv.Children, child)
	}

	return rv
}

// Flatten returns the comparison leaves in depth-first order,
// deduplicated by structural equality.
func (f *Filter) Flatten() []*Filter {
	var rv []*Filter
	seen := map[string]bool{}

	var walk func(n *Filter)
	walk = func(n *Filter) {
		if n == nil {
			return
		}
		if n.IsLeaf() {
			key := string(canonicalOrEmpty(n))
			if !seen[key] {
				seen[key] = true
				rv = append(rv, n)
			}
			return
		}
		for _, child := range n.Children {
			walk(child)
		}
	}
	walk(f)

	return rv
}

// CanonicalJSON renders the filter in a canonical byte form, suitable
// for structural comparison and persistence.
func CanonicalJSON(f *Filter) ([]byte, error) {
	return canonicaljson.Marshal(f)
}

func canonicalOrEmpty(f *Filter) []byte {
	data, err := CanonicalJSON(f)
	if err != nil {
		return nil
	}
	return data
}

// Equal reports structural equality. Note that nil and the explicit
// empty filter are semantically equivalent but not structurally equal.
func Equal(a, b *Filter) bool {
	ja, err := CanonicalJSON(a)
	if err != nil {
		return false
	}
	jb, err := CanonicalJSON(b)
	if err != nil {
		return false
	}
	return bytes.Equal(ja, jb)
}

func (f *Filter) String() string {
	data, err := f.MarshalJSON()
	if err != nil {
		return "<invalid filter>"
	}
	return string(data)
}
