package reader

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"sort"
	"strings"

	"github.com/vardex/vardex/lib/annparse"
	"github.com/vardex/vardex/lib/varapi"
	"github.com/vardex/vardex/lib/varerror"
)

const (
	DefaultMaxLineBytes = 1 << 20
	DefaultSniffLimit   = 500

	// rawAnnotationKey is the flat key carrying unparsed SnpEff-style
	// annotation strings, expanded when an annotation header is
	// configured.
	rawAnnotationKey = "ann"
)

// JSONLOptions tune the JSON Lines reader. Zero values take the
// package defaults.
type JSONLOptions struct {
	MaxLineBytes int
	SniffLimit   int

	// AnnotationHeader, when non-empty, is the pipe-delimited header
	// raw ann values are parsed against.
	AnnotationHeader string
	AnnotationSchema annparse.Schema
}

// JSONLReader streams variant records from newline-delimited JSON, one
// object per line. The field catalog is discovered by sniffing keys
// and value types over a bounded prefix of the stream; the sniffed
// records are replayed, so nothing is lost.
type JSONLReader struct {
	scanner *bufio.Scanner
	parser  *annparse.Parser

	fields   []varapi.Field
	samples  []string
	metadata map[string]string

	buffered []varapi.Variant
	cur      varapi.Variant
	err      error
	line     int
}

// NewJSONLReader sniffs the stream prefix and returns a ready reader.
// It fails on malformed JSON inside the sniffed prefix; later lines
// fail the scan instead.
func NewJSONLReader(r io.Reader, opts JSONLOptions) (*JSONLReader, error) {
	if opts.MaxLineBytes <= 0 {
		opts.MaxLineBytes = DefaultMaxLineBytes
	}
	if opts.SniffLimit <= 0 {
		opts.SniffLimit = DefaultSniffLimit
	}

	// The scanner's max token size is the larger of the cap argument
	// and the initial buffer, so the initial buffer must not exceed
	// the configured line cap.
	initial := 64 * 1024
	if opts.MaxLineBytes < initial {
		initial = opts.MaxLineBytes
	}
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, initial), opts.MaxLineBytes)

	rv := &JSONLReader{
		scanner:  scanner,
		metadata: map[string]string{"reader": "jsonl"},
	}

	builder := newCatalogBuilder()

	if opts.AnnotationHeader != "" {
		rv.parser = annparse.NewParser(opts.AnnotationSchema)
		for _, field := range rv.parser.ParseFields(opts.AnnotationHeader) {
			builder.declare(field)
		}
	}

	for len(rv.buffered) < opts.SniffLimit {
		variant, ok := rv.readRecord()
		if !ok {
			break
		}
		rv.buffered = append(rv.buffered, variant)
		builder.observeVariant(variant)
	}
	if rv.err != nil {
		return nil, rv.err
	}

	rv.fields = builder.fields()
	rv.samples = builder.sampleNames
	return rv, nil
}

func (r *JSONLReader) Fields() []varapi.Field      { return r.fields }
func (r *JSONLReader) Samples() []string           { return r.samples }
func (r *JSONLReader) Metadata() map[string]string { return r.metadata }

func (r *JSONLReader) Scan() bool {
	if r.err != nil {
		return false
	}
	if len(r.buffered) > 0 {
		r.cur = r.buffered[0]
		r.buffered = r.buffered[1:]
		return true
	}

	variant, ok := r.readRecord()
	if !ok {
		return false
	}
	r.cur = variant
	return true
}

func (r *JSONLReader) Variant() varapi.Variant { return r.cur }

func (r *JSONLReader) Err() error { return r.err }

func (r *JSONLReader) readRecord() (varapi.Variant, bool) {
	for r.scanner.Scan() {
		r.line++
		line := strings.TrimSpace(r.scanner.Text())
		if line == "" {
			continue
		}

		var variant varapi.Variant
		if err := json.Unmarshal([]byte(line), &variant); err != nil {
			r.err = varerror.New(
				varerror.WithKind(varerror.KindBadInput),
				varerror.WithMessage(fmt.Sprintf("line %d: malformed record", r.line)),
				varerror.WithCause(err),
			)
			return varapi.Variant{}, false
		}

		if r.parser != nil {
			r.expandRawAnnotations(&variant)
		}

		return variant, true
	}

	if err := r.scanner.Err(); err != nil {
		r.err = varerror.New(
			varerror.WithKind(varerror.KindBadInput),
			varerror.WithMessage(fmt.Sprintf("line %d: unable to read input", r.line+1)),
			varerror.WithCause(err),
		)
	}
	return varapi.Variant{}, false
}

// expandRawAnnotations turns a raw ann value, either one
// comma-separated string or a list of strings, into structured
// annotation records.
func (r *JSONLReader) expandRawAnnotations(variant *varapi.Variant) {
	raw, ok := variant.Values[rawAnnotationKey]
	if !ok {
		return
	}
	delete(variant.Values, rawAnnotationKey)

	var entries []string
	switch value := raw.(type) {
	case string:
		entries = strings.Split(value, ",")
	case []interface{}:
		for _, item := range value {
			if s, ok := item.(string); ok {
				entries = append(entries, s)
			}
		}
	default:
		return
	}

	for _, entry := range entries {
		parsed := r.parser.ParseVariant(entry)
		if len(parsed) == 0 {
			continue
		}
		annotation := make(map[string]interface{}, len(parsed))
		for name, value := range parsed {
			annotation[name] = value
		}
		variant.Annotations = append(variant.Annotations, annotation)
	}
}

type fieldKey struct {
	category string
	name     string
}

// catalogBuilder accumulates the field catalog while sniffing: field
// names in first-seen order, value types widened across records.
type catalogBuilder struct {
	order       []fieldKey
	types       map[fieldKey]string
	descs       map[fieldKey]string
	locked      map[fieldKey]bool
	sampleNames []string
	seenSamples map[string]bool
}

func newCatalogBuilder() *catalogBuilder {
	b := &catalogBuilder{
		types:       map[fieldKey]string{},
		descs:       map[fieldKey]string{},
		locked:      map[fieldKey]bool{},
		seenSamples: map[string]bool{},
	}

	// The coordinate fields are always present, always first, and
	// their types are not subject to sniffing.
	core := []varapi.Field{
		{Name: "chr", Category: varapi.CategoryVariant, Description: "chromosome", Type: varapi.TypeString},
		{Name: "pos", Category: varapi.CategoryVariant, Description: "position", Type: varapi.TypeInt},
		{Name: "ref", Category: varapi.CategoryVariant, Description: "reference base", Type: varapi.TypeString},
		{Name: "alt", Category: varapi.CategoryVariant, Description: "alternative base", Type: varapi.TypeString},
	}
	for _, field := range core {
		b.declare(field)
	}

	return b
}

// declare registers a field with a fixed descriptor, exempt from type
// widening.
func (b *catalogBuilder) declare(field varapi.Field) {
	key := fieldKey{field.Category, field.Name}
	if _, ok := b.types[key]; ok {
		return
	}
	b.order = append(b.order, key)
	b.types[key] = field.Type
	b.descs[key] = field.Description
	b.locked[key] = true
}

// observeVariant walks one record's keys in sorted order, so the
// discovered catalog does not depend on map iteration order.
func (b *catalogBuilder) observeVariant(variant varapi.Variant) {
	for _, name := range sortedKeys(variant.Values) {
		category := varapi.CategoryInfo
		if b.locked[fieldKey{varapi.CategoryVariant, name}] {
			category = varapi.CategoryVariant
		}
		b.observe(category, name, variant.Values[name])
	}

	for _, annotation := range variant.Annotations {
		for _, name := range sortedKeys(annotation) {
			b.observe(varapi.CategoryAnnotation, name, annotation[name])
		}
	}

	for _, sample := range variant.Samples {
		if !b.seenSamples[sample.Name] {
			b.seenSamples[sample.Name] = true
			b.sampleNames = append(b.sampleNames, sample.Name)
		}
		for _, name := range sortedKeys(sample.Values) {
			b.observe(varapi.CategorySample, name, sample.Values[name])
		}
	}
}

func sortedKeys(m map[string]interface{}) []string {
	rv := make([]string, 0, len(m))
	for key := range m {
		rv = append(rv, key)
	}
	sort.Strings(rv)
	return rv
}

func (b *catalogBuilder) observe(category, name string, value interface{}) {
	key := fieldKey{category, name}
	if b.locked[key] {
		return
	}

	observed := sniffType(value)
	existing, ok := b.types[key]
	if !ok {
		b.order = append(b.order, key)
		b.types[key] = observed
		return
	}
	b.types[key] = widenType(existing, observed)
}

func (b *catalogBuilder) fields() []varapi.Field {
	rv := make([]varapi.Field, 0, len(b.order))
	for _, key := range b.order {
		fieldType := b.types[key]
		if fieldType == "" {
			fieldType = varapi.TypeString
		}
		rv = append(rv, varapi.Field{
			Name:        key.name,
			Category:    key.category,
			Description: b.descs[key],
			Type:        fieldType,
		})
	}
	return rv
}

// sniffType maps a decoded JSON value to a declared field type. JSON
// numbers arrive as float64; integral ones are reported as int. A
// null carries no type information and returns "".
func sniffType(value interface{}) string {
	switch v := value.(type) {
	case nil:
		return ""
	case bool:
		return varapi.TypeBool
	case string:
		return varapi.TypeString
	case float64:
		if v == math.Trunc(v) && !math.IsInf(v, 0) {
			return varapi.TypeInt
		}
		return varapi.TypeFloat
	default:
		return varapi.TypeString
	}
}

func widenType(a, b string) string {
	switch {
	case a == b:
		return a
	case a == "":
		return b
	case b == "":
		return a
	case (a == varapi.TypeInt || a == varapi.TypeFloat) &&
		(b == varapi.TypeInt || b == varapi.TypeFloat):
		return varapi.TypeFloat
	default:
		return varapi.TypeString
	}
}
