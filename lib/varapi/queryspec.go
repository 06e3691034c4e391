package varapi

import (
	"github.com/vardex/vardex/lib/filterexpr"
)

const (
	// DefaultLimit is the page size used when none is set.
	DefaultLimit = 50

	// DefaultSource is the reserved selection enumerating every
	// variant.
	DefaultSource = "variants"
)

// DefaultFields is the field list used when none is set.
var DefaultFields = []string{"chr", "pos", "ref", "alt"}

// QuerySpec is one fully-specified query: which fields, from which
// source, under which filter, in which order, and which page. It is
// owned by a single query model and mutated only through its setters.
type QuerySpec struct {
	Fields  []string           `json:"fields,omitempty"`
	Source  string             `json:"source,omitempty"`
	Filter  *filterexpr.Filter `json:"filter,omitempty"`
	OrderBy *OrderBy           `json:"order_by,omitempty"`
	Limit   int                `json:"limit,omitempty"`
	Offset  int                `json:"offset,omitempty"`
}

func (q QuerySpec) GetFields() []string {
	if len(q.Fields) == 0 {
		return DefaultFields
	}
	return q.Fields
}

func (q QuerySpec) GetSource() string {
	if q.Source == "" {
		return DefaultSource
	}
	return q.Source
}

func (q QuerySpec) GetLimit() int {
	if q.Limit <= 0 {
		return DefaultLimit
	}
	return q.Limit
}
