// Package vql renders query parameters back into VQL, the SELECT-like
// text form filters are displayed and persisted in. Rendering only;
// parsing VQL is out of scope.
package vql

import (
	"fmt"
	"strings"

	"github.com/vardex/vardex/lib/filterexpr"
	"github.com/vardex/vardex/lib/varapi"
)

var vqlOperators = map[filterexpr.Op]string{
	filterexpr.OpEq:    "=",
	filterexpr.OpNe:    "!=",
	filterexpr.OpGt:    ">",
	filterexpr.OpGte:   ">=",
	filterexpr.OpLt:    "<",
	filterexpr.OpLte:   "<=",
	filterexpr.OpIn:    "IN",
	filterexpr.OpNotIn: "NOT IN",
	filterexpr.OpHas:   "HAS",
	filterexpr.OpRegex: "~",
}

// FieldToVQL renders one dot-addressed field name. Sample fields use
// the bracketed sample form; everything else passes through.
func FieldToVQL(field string) string {
	if !strings.HasPrefix(field, "samples.") {
		return field
	}

	parts := strings.Split(field, ".")
	if len(parts) < 3 {
		return field
	}

	name := strings.Join(parts[1:len(parts)-1], ".")
	return fmt.Sprintf("samples['%s'].%s", name, parts[len(parts)-1])
}

// FieldsToVQL renders a field list.
func FieldsToVQL(fields []string) []string {
	rv := make([]string, 0, len(fields))
	for _, field := range fields {
		rv = append(rv, FieldToVQL(field))
	}
	return rv
}

func quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

func valueToVQL(value interface{}) string {
	switch v := value.(type) {
	case nil:
		return "NULL"
	case string:
		return quote(v)
	case bool:
		if v {
			return "1"
		}
		return "0"
	case filterexpr.Wordset:
		return fmt.Sprintf("WORDSET['%s']", string(v))
	case []interface{}:
		items := make([]string, 0, len(v))
		for _, item := range v {
			items = append(items, valueToVQL(item))
		}
		return "(" + strings.Join(items, ",") + ")"
	default:
		return fmt.Sprintf("%v", v)
	}
}

func conditionToVQL(f *filterexpr.Filter) string {
	op := f.Op
	if op == "" {
		op = filterexpr.OpEq
	}

	operator, ok := vqlOperators[op]
	if !ok {
		operator = string(op)
	}

	return FieldToVQL(f.Field) + " " + operator + " " + valueToVQL(f.Value)
}

func renderFilter(f *filterexpr.Filter) string {
	if f.IsLeaf() {
		return conditionToVQL(f)
	}

	switch f.Comb {
	case filterexpr.CombAnd, filterexpr.CombOr:
		joiner := " AND "
		if f.Comb == filterexpr.CombOr {
			joiner = " OR "
		}
		parts := make([]string, 0, len(f.Children))
		for _, child := range f.Children {
			parts = append(parts, renderFilter(child))
		}
		return "(" + strings.Join(parts, joiner) + ")"
	case filterexpr.CombNot:
		if len(f.Children) != 1 {
			return ""
		}
		child := renderFilter(f.Children[0])
		if !strings.HasPrefix(child, "(") {
			child = "(" + child + ")"
		}
		return "NOT " + child
	default:
		return ""
	}
}

// FiltersToVQL renders a filter tree as a VQL where expression. The
// root combinator's own parentheses are stripped, matching the
// display form; an empty filter renders as the empty string.
func FiltersToVQL(f *filterexpr.Filter) string {
	if f == nil || f.IsEmpty() {
		return ""
	}

	rendered := renderFilter(f)
	if strings.HasPrefix(rendered, "(") && strings.HasSuffix(rendered, ")") {
		rendered = rendered[1 : len(rendered)-1]
	}
	return rendered
}

// BuildVQLQuery renders a spec's fields, source, and filter as one
// VQL select statement. Ordering and pagination stay out of the text
// form.
func BuildVQLQuery(spec varapi.QuerySpec) string {
	query := "SELECT " + strings.Join(FieldsToVQL(spec.GetFields()), ",") +
		" FROM " + spec.GetSource()

	if where := FiltersToVQL(spec.Filter); where != "" {
		query += " WHERE " + where
	}

	return query
}
