// Package varapi holds the data types shared between the readers, the
// store, and the query model: field descriptors, variant records, and
// query parameters.
package varapi

import (
	"encoding/json"
	"fmt"
)

// Field categories. Fields of category variant and info are stored as
// columns of the variants table; annotation fields as columns of the
// annotations table (one row per transcript per variant); sample fields
// as columns of the per-sample genotype table.
const (
	CategoryVariant    = "variant"
	CategoryInfo       = "info"
	CategorySample     = "sample"
	CategoryAnnotation = "annotation"
)

// Declared field types, as they appear in the fields table.
const (
	TypeString = "str"
	TypeInt    = "int"
	TypeFloat  = "float"
	TypeBool   = "bool"
)

// Field describes one queryable field of a source.
type Field struct {
	Name        string `json:"name" yaml:"name"`
	Category    string `json:"category" yaml:"category"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	Type        string `json:"type" yaml:"type"`
}

// SampleValues is the genotype data of one sample for one variant.
type SampleValues struct {
	Name   string
	Values map[string]interface{}
}

// Variant is one record on the ingestion side: a flat mapping of
// variant and info values, plus nested annotation records and
// per-sample genotype records.
type Variant struct {
	Values      map[string]interface{}
	Annotations []map[string]interface{}
	Samples     []SampleValues
}

// reservedVariantKeys are pulled out of the flat mapping on decode.
const (
	keyAnnotations = "annotations"
	keySamples     = "samples"
	keySampleName  = "name"
)

func (v Variant) MarshalJSON() ([]byte, error) {
	out := make(map[string]interface{}, len(v.Values)+2)
	for k, val := range v.Values {
		out[k] = val
	}
	if len(v.Annotations) > 0 {
		out[keyAnnotations] = v.Annotations
	}
	if len(v.Samples) > 0 {
		samples := make([]map[string]interface{}, 0, len(v.Samples))
		for _, s := range v.Samples {
			m := make(map[string]interface{}, len(s.Values)+1)
			for k, val := range s.Values {
				m[k] = val
			}
			m[keySampleName] = s.Name
			samples = append(samples, m)
		}
		out[keySamples] = samples
	}
	return json.Marshal(out)
}

func (v *Variant) UnmarshalJSON(data []byte) error {
	var raw map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	v.Values = make(map[string]interface{}, len(raw))
	v.Annotations = nil
	v.Samples = nil

	for k, val := range raw {
		switch k {
		case keyAnnotations:
			anns, err := decodeMapList(val)
			if err != nil {
				return fmt.Errorf("bad annotations value: %w", err)
			}
			v.Annotations = anns
		case keySamples:
			entries, err := decodeMapList(val)
			if err != nil {
				return fmt.Errorf("bad samples value: %w", err)
			}
			for _, entry := range entries {
				name, _ := entry[keySampleName].(string)
				if name == "" {
					return fmt.Errorf("sample entry without a name")
				}
				delete(entry, keySampleName)
				v.Samples = append(v.Samples, SampleValues{Name: name, Values: entry})
			}
		default:
			v.Values[k] = val
		}
	}

	return nil
}

func decodeMapList(val interface{}) ([]map[string]interface{}, error) {
	list, ok := val.([]interface{})
	if !ok {
		return nil, fmt.Errorf("expected a list, got %T", val)
	}
	var rv []map[string]interface{}
	for _, item := range list {
		m, ok := item.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("expected an object, got %T", item)
		}
		rv = append(rv, m)
	}
	return rv, nil
}

// Row is one result row, keyed by field name. Every row carries the
// synthetic id primary key.
type Row map[string]interface{}

// Page is one fetched page of results. Columns preserves the select
// ordering, which map-typed rows cannot.
type Page struct {
	Columns []string
	Rows    []Row
}
