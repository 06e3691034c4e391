package variantdb

import (
	"context"

	"github.com/vardex/vardex/lib/varapi"
)

// Catalog is the field universe a query is compiled against: every
// declared field keyed by category and name, plus the known samples.
// Translation is a pure function of (spec, catalog) and never touches
// the store.
type Catalog struct {
	fields      map[string]map[string]varapi.Field
	samples     map[string]int64
	sampleNames []string
}

func NewCatalog(fields []varapi.Field, samples []Sample) *Catalog {
	c := &Catalog{
		fields:  map[string]map[string]varapi.Field{},
		samples: map[string]int64{},
	}

	for _, field := range fields {
		byName, ok := c.fields[field.Category]
		if !ok {
			byName = map[string]varapi.Field{}
			c.fields[field.Category] = byName
		}
		byName[field.Name] = field
	}

	for _, sample := range samples {
		if _, ok := c.samples[sample.Name]; ok {
			continue
		}
		c.samples[sample.Name] = sample.ID
		c.sampleNames = append(c.sampleNames, sample.Name)
	}

	return c
}

func (c *Catalog) field(category, name string) (varapi.Field, bool) {
	byName, ok := c.fields[category]
	if !ok {
		return varapi.Field{}, false
	}
	field, ok := byName[name]
	return field, ok
}

// VariantField resolves a plain field name; the variant and info
// categories share the variants table.
func (c *Catalog) VariantField(name string) (varapi.Field, bool) {
	if field, ok := c.field(varapi.CategoryVariant, name); ok {
		return field, true
	}
	return c.field(varapi.CategoryInfo, name)
}

func (c *Catalog) AnnotationField(name string) (varapi.Field, bool) {
	return c.field(varapi.CategoryAnnotation, name)
}

func (c *Catalog) SampleField(name string) (varapi.Field, bool) {
	return c.field(varapi.CategorySample, name)
}

func (c *Catalog) SampleID(name string) (int64, bool) {
	id, ok := c.samples[name]
	return id, ok
}

// SampleNames returns the known sample names in insertion order; this
// is the expansion order of wildcard sample fields.
func (c *Catalog) SampleNames() []string {
	return c.sampleNames
}

// Catalog loads the current field catalog and sample set.
func (d *DB) Catalog(ctx context.Context) (*Catalog, error) {
	fields, err := d.Fields(ctx)
	if err != nil {
		return nil, err
	}

	samples, err := d.Samples(ctx)
	if err != nil {
		return nil, err
	}

	return NewCatalog(fields, samples), nil
}
