// Package annparse decomposes pipe-delimited effect-prediction strings
// (SnpEff-style ANN entries) into structured sub-fields, driven by a
// schema mapping raw header tokens to catalog field descriptors.
package annparse

import (
	"strings"

	"github.com/vardex/vardex/lib/varapi"
)

// FieldSpec describes the catalog field a raw annotation token maps to.
type FieldSpec struct {
	OutputName  string `yaml:"name"`
	Category    string `yaml:"category"`
	Description string `yaml:"description"`
	Type        string `yaml:"type"`
}

// Schema maps a lower-cased raw header token to its field spec. Tokens
// absent from the schema are skipped silently during parsing; that is
// deliberate, to tolerate unknown annotation vocabularies.
type Schema map[string]FieldSpec

var snpEffSchema = Schema{
	"annotation": {
		OutputName:  "consequence",
		Category:    varapi.CategoryAnnotation,
		Description: "consequence",
		Type:        varapi.TypeString,
	},
	"annotation_impact": {
		OutputName:  "impact",
		Category:    varapi.CategoryAnnotation,
		Description: "impact of variant",
		Type:        varapi.TypeString,
	},
	"gene_name": {
		OutputName:  "gene",
		Category:    varapi.CategoryAnnotation,
		Description: "gene name",
		Type:        varapi.TypeString,
	},
	"gene_id": {
		OutputName:  "gene_id",
		Category:    varapi.CategoryAnnotation,
		Description: "gene id",
		Type:        varapi.TypeString,
	},
	"feature_id": {
		OutputName:  "transcript",
		Category:    varapi.CategoryAnnotation,
		Description: "transcript name",
		Type:        varapi.TypeString,
	},
	"transcript_biotype": {
		OutputName:  "biotype",
		Category:    varapi.CategoryAnnotation,
		Description: "biotype",
		Type:        varapi.TypeString,
	},
	"hgvs.p": {
		OutputName:  "hgvs_p",
		Category:    varapi.CategoryAnnotation,
		Description: "protein hgvs",
		Type:        varapi.TypeString,
	},
	"hgvs.c": {
		OutputName:  "hgvs_c",
		Category:    varapi.CategoryAnnotation,
		Description: "coding hgvs",
		Type:        varapi.TypeString,
	},
}

// SnpEffSchema returns the default SnpEff ANN schema. Callers must not
// mutate it; derive a new Schema instead.
func SnpEffSchema() Schema {
	return snpEffSchema
}

// Parser splits annotation headers and values. ParseFields must run
// before ParseVariant: it registers the positional layout that
// ParseVariant applies to each value string.
type Parser struct {
	schema        Schema
	outputByIndex map[int]string
}

// NewParser builds a parser over the given schema, defaulting to the
// SnpEff table when schema is nil.
func NewParser(schema Schema) *Parser {
	if schema == nil {
		schema = snpEffSchema
	}
	return &Parser{schema: schema}
}

// ParseFields splits a pipe-delimited header, trims and lower-cases
// each token, and yields the descriptors of the known tokens in header
// order. Unknown tokens are dropped without notice. The positional
// layout of the most recent call is retained for ParseVariant.
func (p *Parser) ParseFields(rawHeader string) []varapi.Field {
	p.outputByIndex = map[int]string{}

	var rv []varapi.Field
	for index, token := range strings.Split(rawHeader, "|") {
		key := strings.ToLower(strings.TrimSpace(token))

		spec, ok := p.schema[key]
		if !ok {
			continue
		}

		p.outputByIndex[index] = spec.OutputName
		rv = append(rv, varapi.Field{
			Name:        spec.OutputName,
			Category:    spec.Category,
			Description: spec.Description,
			Type:        spec.Type,
		})
	}

	return rv
}

// ParseVariant splits one pipe-delimited annotation value positionally,
// keeping only positions registered by the last ParseFields call. With
// no registered layout it returns an empty mapping, not an error.
func (p *Parser) ParseVariant(rawValue string) map[string]string {
	rv := map[string]string{}
	if len(p.outputByIndex) == 0 {
		return rv
	}

	for index, value := range strings.Split(rawValue, "|") {
		name, ok := p.outputByIndex[index]
		if !ok {
			continue
		}
		rv[name] = value
	}

	return rv
}
