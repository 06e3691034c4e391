package integrationtest

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vardex/vardex/lib/filterexpr"
	"github.com/vardex/vardex/lib/reader"
	"github.com/vardex/vardex/lib/varapi"
)

func TestImportBuildsCatalog(t *testing.T) {
	ctx, d := newProject(t)

	catalog, err := d.Catalog(ctx)
	require.NoError(t, err)

	af, ok := catalog.VariantField("af")
	require.True(t, ok)
	assert.Equal(t, varapi.CategoryInfo, af.Category)
	assert.Equal(t, varapi.TypeFloat, af.Type)

	gene, ok := catalog.AnnotationField("gene")
	require.True(t, ok)
	assert.Equal(t, varapi.TypeString, gene.Type)

	_, ok = catalog.AnnotationField("consequence")
	assert.True(t, ok)

	dp, ok := catalog.SampleField("dp")
	require.True(t, ok)
	assert.Equal(t, varapi.TypeInt, dp.Type)

	assert.Equal(t, []string{"alice", "bob", "charlie"}, catalog.SampleNames())

	total, err := d.Count(ctx, varapi.QuerySpec{})
	require.NoError(t, err)
	assert.Equal(t, cohortVariants, total)

	metadata, err := d.Metadata(ctx)
	require.NoError(t, err)
	assert.Equal(t, "8", metadata["variant_count"])
	assert.Equal(t, "3", metadata["sample_count"])
}

func TestFiltersAcrossCategories(t *testing.T) {
	ctx, d := newProject(t)

	cases := []struct {
		name   string
		filter *filterexpr.Filter
		want   int
	}{
		{
			"high impact",
			filterexpr.Eq("ann.impact", "HIGH"),
			2,
		},
		{
			"gene membership",
			filterexpr.In("ann.gene", "CFTR", "TP53"),
			4,
		},
		{
			"quality and impact",
			filterexpr.And(
				filterexpr.Gte("qual", 40.0),
				filterexpr.Eq("ann.impact", "MODERATE"),
			),
			3,
		},
		{
			"homozygous in one sample",
			filterexpr.Eq("samples.alice.gt", 2),
			2,
		},
		{
			"depth across all samples",
			filterexpr.Gte("samples.*.dp", 10),
			6,
		},
		{
			"gene prefix regex",
			filterexpr.Regex("ann.gene", "^BRCA"),
			2,
		},
		{
			"indels only",
			filterexpr.Eq("is_indel", true),
			1,
		},
		{
			"rare and damaging",
			filterexpr.And(
				filterexpr.Lt("af", 0.001),
				filterexpr.In("ann.impact", "HIGH", "MODERATE"),
			),
			3,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			n, err := d.Count(ctx, varapi.QuerySpec{Filter: tc.filter})
			require.NoError(t, err)
			assert.Equal(t, tc.want, n)
		})
	}
}

func TestOrderedQueryPages(t *testing.T) {
	ctx, d := newProject(t)

	spec := varapi.QuerySpec{
		Fields:  []string{"chr", "pos", "ann.gene", "qual"},
		OrderBy: varapi.Descending("qual"),
		Limit:   3,
	}

	page, err := d.Query(ctx, spec)
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "chr", "pos", "ann.gene", "qual"}, page.Columns)
	require.Len(t, page.Rows, 3)

	var genes []interface{}
	for _, row := range page.Rows {
		genes = append(genes, row["ann.gene"])
	}
	assert.Equal(t, []interface{}{"TP53", "EGFR", "CFTR"}, genes)

	spec.Offset = 3
	page, err = d.Query(ctx, spec)
	require.NoError(t, err)
	require.Len(t, page.Rows, 3)
	assert.Equal(t, "BRCA2", page.Rows[0]["ann.gene"])
	assert.Equal(t, "BRCA1", page.Rows[1]["ann.gene"])
}

func TestSelectionAndWordsetFlow(t *testing.T) {
	ctx, d := newProject(t)

	high, err := d.CreateSelectionFromSpec(ctx, "high_impact", varapi.QuerySpec{
		Filter: filterexpr.Eq("ann.impact", "HIGH"),
	})
	require.NoError(t, err)
	assert.Equal(t, 2, high.Count)

	n, err := d.Count(ctx, varapi.QuerySpec{Source: "high_impact"})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = d.Count(ctx, varapi.QuerySpec{
		Source: "high_impact",
		Filter: filterexpr.Eq("ann.gene", "TP53"),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	imported, err := d.ImportWordset(ctx, "panel", strings.NewReader("CFTR\nTP53\nBRCA1\n"))
	require.NoError(t, err)
	assert.Equal(t, 3, imported)

	panelFilter := filterexpr.InWordset("ann.gene", "panel")
	n, err = d.Count(ctx, varapi.QuerySpec{Filter: panelFilter})
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	hits, err := d.CreateSelectionFromSpec(ctx, "panel_hits", varapi.QuerySpec{Filter: panelFilter})
	require.NoError(t, err)
	assert.Equal(t, 5, hits.Count)

	rest, err := d.SubtractSelections(ctx, "panel_low", "panel_hits", "high_impact")
	require.NoError(t, err)
	assert.Equal(t, 3, rest.Count)

	selections, err := d.Selections(ctx)
	require.NoError(t, err)
	var names []string
	for _, sel := range selections {
		names = append(names, sel.Name)
	}
	assert.Equal(t, []string{"variants", "high_impact", "panel_hits", "panel_low"}, names)

	require.NoError(t, d.DeleteSelection(ctx, "panel_low"))
}

func TestBedSelection(t *testing.T) {
	ctx, d := newProject(t)

	bed := "chr7\t117550000\t117590000\tcftr_locus\nchr17\t7670000\t7680000\ttp53_locus\n"
	intervals, err := reader.ParseBed(strings.NewReader(bed))
	require.NoError(t, err)
	require.Len(t, intervals, 2)

	sel, err := d.CreateSelectionFromBed(ctx, "ontarget", "", intervals)
	require.NoError(t, err)
	assert.Equal(t, 4, sel.Count)

	n, err := d.Count(ctx, varapi.QuerySpec{
		Source: "ontarget",
		Filter: filterexpr.Eq("chr", "chr17"),
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}
