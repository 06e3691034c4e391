package annparse

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vardex/vardex/lib/varapi"
)

func TestParseFieldsSkipsUnknownTokens(t *testing.T) {
	p := NewParser(nil)

	fields := p.ParseFields("Allele|Annotation|Gene_Name")

	require.Len(t, fields, 2)
	assert.Equal(t, "consequence", fields[0].Name)
	assert.Equal(t, "gene", fields[1].Name)
	assert.Equal(t, varapi.CategoryAnnotation, fields[0].Category)
	assert.Equal(t, varapi.TypeString, fields[0].Type)
}

func TestParseVariantPositional(t *testing.T) {
	p := NewParser(nil)
	p.ParseFields("Allele|Annotation|Gene_Name")

	ann := p.ParseVariant("A|missense|TP53")

	assert.Equal(t, map[string]string{
		"consequence": "missense",
		"gene":        "TP53",
	}, ann)
}

func TestParseVariantDropsUnregisteredPositions(t *testing.T) {
	p := NewParser(nil)
	p.ParseFields("Allele|Annotation|Gene_Name")

	// Longer value than the header: trailing positions are dropped.
	ann := p.ParseVariant("A|missense|TP53|extra|junk")

	assert.Equal(t, map[string]string{
		"consequence": "missense",
		"gene":        "TP53",
	}, ann)
}

func TestParseVariantWithoutHeader(t *testing.T) {
	p := NewParser(nil)

	ann := p.ParseVariant("A|missense|TP53")

	assert.Empty(t, ann)
}

func TestParseFieldsResetsLayout(t *testing.T) {
	p := NewParser(nil)

	p.ParseFields("Annotation|Gene_Name")
	p.ParseFields("Gene_Name")

	ann := p.ParseVariant("TP53")
	assert.Equal(t, map[string]string{"gene": "TP53"}, ann)
}

func TestParseFieldsTrimsAndLowercases(t *testing.T) {
	p := NewParser(nil)

	fields := p.ParseFields(" ANNOTATION | gene_name ")

	require.Len(t, fields, 2)
	assert.Equal(t, "consequence", fields[0].Name)
	assert.Equal(t, "gene", fields[1].Name)
}

func TestCustomSchema(t *testing.T) {
	schema := Schema{
		"consequence": {OutputName: "effect", Category: varapi.CategoryAnnotation, Type: varapi.TypeString},
	}
	p := NewParser(schema)

	fields := p.ParseFields("Consequence|IMPACT")
	require.Len(t, fields, 1)
	assert.Equal(t, "effect", fields[0].Name)

	ann := p.ParseVariant("stop_gained|HIGH")
	assert.Equal(t, map[string]string{"effect": "stop_gained"}, ann)
}
