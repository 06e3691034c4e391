package filterexpr

import (
	"bytes"
	"encoding/json"

	"github.com/vardex/vardex/lib/varerror"
)

func (f *Filter) MarshalJSON() ([]byte, error) {
	if f == nil {
		return []byte("null"), nil
	}

	if f.IsLeaf() {
		value, err := marshalValue(f.Value)
		if err != nil {
			return nil, err
		}
		inner := value
		if f.Op != "" && f.Op != OpEq {
			inner, err = json.Marshal(map[string]json.RawMessage{string(f.Op): value})
			if err != nil {
				return nil, err
			}
		}
		return json.Marshal(map[string]json.RawMessage{f.Field: inner})
	}

	if f.Comb == CombNot && len(f.Children) == 1 {
		return json.Marshal(map[string]*Filter{string(CombNot): f.Children[0]})
	}

	children := f.Children
	if children == nil {
		children = []*Filter{}
	}
	return json.Marshal(map[string][]*Filter{string(f.Comb): children})
}

func marshalValue(v interface{}) (json.RawMessage, error) {
	if ws, ok := v.(Wordset); ok {
		return json.Marshal(map[string]string{"$wordset": string(ws)})
	}
	return json.Marshal(v)
}

func (f *Filter) UnmarshalJSON(data []byte) error {
	node, err := parseNode(data)
	if err != nil {
		return err
	}
	*f = *node
	return nil
}

// Parse decodes the JSON dict form into a validated tree.
func Parse(data []byte) (*Filter, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || string(trimmed) == "null" {
		return nil, nil
	}

	node, err := parseNode(trimmed)
	if err != nil {
		return nil, err
	}
	if err := node.Validate(); err != nil {
		return nil, err
	}
	return node, nil
}

func parseNode(data []byte) (*Filter, error) {
	var m map[string]json.RawMessage
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, varerror.New(
			varerror.WithKind(varerror.KindMalformedFilter),
			varerror.WithMessage("filter node must be a JSON object"),
			varerror.WithCause(err),
		)
	}
	if len(m) != 1 {
		return nil, malformed("filter node must have exactly one key")
	}

	for key, raw := range m {
		switch key {
		case string(CombAnd), string(CombOr):
			children, err := parseChildren(raw)
			if err != nil {
				return nil, err
			}
			return &Filter{Comb: Comb(key), Children: children}, nil

		case string(CombNot):
			child, err := parseNotChild(raw)
			if err != nil {
				return nil, err
			}
			return &Filter{Comb: CombNot, Children: []*Filter{child}}, nil

		default:
			op, value, err := parseComparison(raw)
			if err != nil {
				return nil, err
			}
			return &Filter{Field: key, Op: op, Value: value}, nil
		}
	}

	return nil, malformed("empty filter node")
}

func parseChildren(raw json.RawMessage) ([]*Filter, error) {
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, malformed("combinator expects a list of filters")
	}

	children := make([]*Filter, 0, len(items))
	for _, item := range items {
		child, err := parseNode(item)
		if err != nil {
			return nil, err
		}
		children = append(children, child)
	}

	return children, nil
}

// $not is written with a single object child, but a one-element list is
// accepted too.
func parseNotChild(raw json.RawMessage) (*Filter, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		children, err := parseChildren(trimmed)
		if err != nil {
			return nil, err
		}
		if len(children) != 1 {
			return nil, malformed("$not requires exactly one child")
		}
		return children[0], nil
	}
	return parseNode(trimmed)
}

func parseComparison(raw json.RawMessage) (Op, interface{}, error) {
	trimmed := bytes.TrimSpace(raw)

	if len(trimmed) > 0 && trimmed[0] == '{' {
		var m map[string]json.RawMessage
		if err := json.Unmarshal(trimmed, &m); err != nil {
			return "", nil, malformed("bad comparison value")
		}
		if len(m) != 1 {
			return "", nil, malformed("comparison value must have exactly one operator key")
		}
		for key, inner := range m {
			switch Op(key) {
			case OpEq, OpNe, OpGt, OpGte, OpLt, OpLte, OpIn, OpNotIn, OpHas, OpRegex:
				value, err := parseValue(inner)
				if err != nil {
					return "", nil, err
				}
				return Op(key), value, nil
			default:
				if key == "$wordset" {
					return "", nil, malformed("wordset reference requires $in or $nin")
				}
				return "", nil, malformed("unknown operator: " + key)
			}
		}
	}

	value, err := parseValue(trimmed)
	if err != nil {
		return "", nil, err
	}
	return OpEq, value, nil
}

func parseValue(raw json.RawMessage) (interface{}, error) {
	trimmed := bytes.TrimSpace(raw)

	if len(trimmed) > 0 && trimmed[0] == '{' {
		var m map[string]json.RawMessage
		if err := json.Unmarshal(trimmed, &m); err != nil {
			return nil, malformed("bad comparison value")
		}
		name, ok := m["$wordset"]
		if !ok || len(m) != 1 {
			return nil, malformed("object values must be a wordset reference")
		}
		var s string
		if err := json.Unmarshal(name, &s); err != nil || s == "" {
			return nil, malformed("wordset name must be a non-empty string")
		}
		return Wordset(s), nil
	}

	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()
	var v interface{}
	if err := dec.Decode(&v); err != nil {
		return nil, malformed("bad comparison value")
	}
	return normalizeNumbers(v), nil
}

// JSON numbers arrive as json.Number; integral values become int64 so
// that equal filters encode to equal bytes regardless of how they were
// built.
func normalizeNumbers(v interface{}) interface{} {
	switch t := v.(type) {
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i
		}
		if fl, err := t.Float64(); err == nil {
			return fl
		}
		return t.String()
	case []interface{}:
		for i := range t {
			t[i] = normalizeNumbers(t[i])
		}
		return t
	}
	return v
}
