package varapi

import "encoding/json"

// OrderBy names the result ordering. The JSON form is a single string,
// with a leading "-" marking descending order ("-pos").
type OrderBy struct {
	Field      string
	Descending bool
}

func Ascending(field string) *OrderBy {
	return &OrderBy{Field: field}
}

func Descending(field string) *OrderBy {
	return &OrderBy{Field: field, Descending: true}
}

func (o *OrderBy) MarshalJSON() ([]byte, error) {
	prefix := ""
	if o.Descending {
		prefix = "-"
	}
	return json.Marshal(prefix + o.Field)
}

func (o *OrderBy) UnmarshalJSON(data []byte) error {
	if len(data) == 0 || string(data) == "null" {
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}

	if len(s) > 0 && s[0] == '-' {
		o.Descending = true
		s = s[1:]
	}
	o.Field = s

	return nil
}
