package reader

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vardex/vardex/lib/varapi"
	"github.com/vardex/vardex/lib/varerror"
)

func scanAll(t *testing.T, r Reader) []varapi.Variant {
	t.Helper()
	var rv []varapi.Variant
	for r.Scan() {
		rv = append(rv, r.Variant())
	}
	require.NoError(t, r.Err())
	return rv
}

func TestJSONLCatalogSniffing(t *testing.T) {
	input := strings.Join([]string{
		`{"chr": "chr1", "pos": 100, "ref": "A", "alt": "G", "qual": 30.5,` +
			` "annotations": [{"gene": "CFTR", "impact": "HIGH"}],` +
			` "samples": [{"name": "boby", "gt": 1, "dp": 20}, {"name": "raymond", "gt": 0, "dp": 9}]}`,
		`{"chr": "chr1", "pos": 200, "ref": "C", "alt": "T", "qual": 12.0, "af": 0.01}`,
	}, "\n")

	r, err := NewJSONLReader(strings.NewReader(input), JSONLOptions{})
	require.NoError(t, err)

	var names []string
	for _, field := range r.Fields() {
		names = append(names, field.Category+"/"+field.Name)
	}
	assert.Equal(t, []string{
		"variant/chr", "variant/pos", "variant/ref", "variant/alt",
		"info/qual",
		"annotation/gene", "annotation/impact",
		"sample/dp", "sample/gt",
		"info/af",
	}, names)

	assert.Equal(t, []string{"boby", "raymond"}, r.Samples())

	variants := scanAll(t, r)
	require.Len(t, variants, 2)
	assert.Equal(t, "chr1", variants[0].Values["chr"])
	assert.Len(t, variants[0].Annotations, 1)
	assert.Len(t, variants[0].Samples, 2)
	assert.Equal(t, "boby", variants[0].Samples[0].Name)
}

func TestJSONLTypeSniffing(t *testing.T) {
	input := strings.Join([]string{
		`{"chr": "chr1", "pos": 1, "ref": "A", "alt": "G", "dp": 10, "af": 0.5, "ok": true, "note": "x", "maybe": null}`,
		`{"chr": "chr1", "pos": 2, "ref": "A", "alt": "G", "dp": 2.5, "note": 3, "maybe": 7}`,
	}, "\n")

	r, err := NewJSONLReader(strings.NewReader(input), JSONLOptions{})
	require.NoError(t, err)

	types := map[string]string{}
	for _, field := range r.Fields() {
		types[field.Name] = field.Type
	}

	assert.Equal(t, varapi.TypeInt, types["pos"])
	assert.Equal(t, varapi.TypeFloat, types["dp"], "int widened by a fractional value")
	assert.Equal(t, varapi.TypeFloat, types["af"])
	assert.Equal(t, varapi.TypeBool, types["ok"])
	assert.Equal(t, varapi.TypeString, types["note"], "mixed string and number widens to string")
	assert.Equal(t, varapi.TypeInt, types["maybe"], "null carries no type information")
}

func TestJSONLRawAnnotationExpansion(t *testing.T) {
	input := `{"chr": "chr7", "pos": 117, "ref": "A", "alt": "G",` +
		` "ann": "A|missense|TP53,G|stop_gained|BRCA2"}`

	r, err := NewJSONLReader(strings.NewReader(input), JSONLOptions{
		AnnotationHeader: "Allele|Annotation|Gene_Name",
	})
	require.NoError(t, err)

	var annotationFields []string
	for _, field := range r.Fields() {
		if field.Category == varapi.CategoryAnnotation {
			annotationFields = append(annotationFields, field.Name)
		}
	}
	assert.Equal(t, []string{"consequence", "gene"}, annotationFields)

	variants := scanAll(t, r)
	require.Len(t, variants, 1)

	variant := variants[0]
	_, stillThere := variant.Values["ann"]
	assert.False(t, stillThere, "raw ann value must be consumed")

	require.Len(t, variant.Annotations, 2)
	assert.Equal(t, "missense", variant.Annotations[0]["consequence"])
	assert.Equal(t, "TP53", variant.Annotations[0]["gene"])
	assert.Equal(t, "BRCA2", variant.Annotations[1]["gene"])
}

func TestJSONLMalformedPrefixFailsConstruction(t *testing.T) {
	input := "{\"chr\": \"chr1\", \"pos\": 1, \"ref\": \"A\", \"alt\": \"G\"}\nnot json\n"

	_, err := NewJSONLReader(strings.NewReader(input), JSONLOptions{})
	require.Error(t, err)
	assert.Equal(t, varerror.KindBadInput, varerror.KindOf(err))
	assert.Contains(t, err.Error(), "line 2")
}

func TestJSONLMalformedLineAfterPrefixFailsScan(t *testing.T) {
	input := "{\"chr\": \"chr1\", \"pos\": 1, \"ref\": \"A\", \"alt\": \"G\"}\nnot json\n"

	r, err := NewJSONLReader(strings.NewReader(input), JSONLOptions{SniffLimit: 1})
	require.NoError(t, err)

	assert.True(t, r.Scan(), "sniffed record replays")
	assert.False(t, r.Scan())
	require.Error(t, r.Err())
	assert.Equal(t, varerror.KindBadInput, varerror.KindOf(r.Err()))
}

func TestJSONLEmptyStream(t *testing.T) {
	r, err := NewJSONLReader(strings.NewReader(""), JSONLOptions{})
	require.NoError(t, err)

	assert.Len(t, r.Fields(), 4, "coordinate fields are always declared")
	assert.Empty(t, r.Samples())
	assert.False(t, r.Scan())
	assert.NoError(t, r.Err())
}

func TestJSONLLineLengthCap(t *testing.T) {
	long := `{"chr": "chr1", "pos": 1, "ref": "A", "alt": "` + strings.Repeat("G", 4096) + `"}`

	_, err := NewJSONLReader(strings.NewReader(long), JSONLOptions{MaxLineBytes: 128})
	require.Error(t, err)
	assert.Equal(t, varerror.KindBadInput, varerror.KindOf(err))
}

func TestJSONLSkipsBlankLines(t *testing.T) {
	input := "\n\n{\"chr\": \"chr1\", \"pos\": 1, \"ref\": \"A\", \"alt\": \"G\"}\n\n"

	r, err := NewJSONLReader(strings.NewReader(input), JSONLOptions{})
	require.NoError(t, err)
	assert.Len(t, scanAll(t, r), 1)
}

func TestMemReaderReplays(t *testing.T) {
	fields := []varapi.Field{
		{Name: "chr", Category: varapi.CategoryVariant, Type: varapi.TypeString},
	}
	variants := []varapi.Variant{
		{Values: map[string]interface{}{"chr": "chr1"}},
		{Values: map[string]interface{}{"chr": "chr2"}},
	}

	r := NewMemReader(fields, []string{"boby"}, variants).
		WithMetadata(map[string]string{"origin": "test"})

	assert.Equal(t, fields, r.Fields())
	assert.Equal(t, []string{"boby"}, r.Samples())
	assert.Equal(t, "test", r.Metadata()["origin"])

	got := scanAll(t, r)
	assert.Equal(t, variants, got)
	assert.False(t, r.Scan(), "exhausted reader stays exhausted")
}
