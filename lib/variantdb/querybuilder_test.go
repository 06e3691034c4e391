package variantdb

import (
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vardex/vardex/lib/filterexpr"
	"github.com/vardex/vardex/lib/varapi"
	"github.com/vardex/vardex/lib/varerror"
)

func testCatalog() *Catalog {
	fields := []varapi.Field{
		{Name: "chr", Category: varapi.CategoryVariant, Type: varapi.TypeString},
		{Name: "pos", Category: varapi.CategoryVariant, Type: varapi.TypeInt},
		{Name: "ref", Category: varapi.CategoryVariant, Type: varapi.TypeString},
		{Name: "alt", Category: varapi.CategoryVariant, Type: varapi.TypeString},
		{Name: "tags", Category: varapi.CategoryVariant, Type: varapi.TypeString},
		{Name: "favorite", Category: varapi.CategoryVariant, Type: varapi.TypeBool},
		{Name: "qual", Category: varapi.CategoryInfo, Type: varapi.TypeFloat},
		{Name: "gene", Category: varapi.CategoryAnnotation, Type: varapi.TypeString},
		{Name: "impact", Category: varapi.CategoryAnnotation, Type: varapi.TypeString},
		{Name: "gt", Category: varapi.CategorySample, Type: varapi.TypeInt},
		{Name: "dp", Category: varapi.CategorySample, Type: varapi.TypeInt},
	}
	samples := []Sample{
		{ID: 1, Name: "boby"},
		{ID: 2, Name: "raymond"},
		{ID: 3, Name: "charles.de.gaulle"},
	}
	return NewCatalog(fields, samples)
}

func TestTranslateDefaults(t *testing.T) {
	compiled, err := Translate(varapi.QuerySpec{}, testCatalog())
	require.NoError(t, err)

	assert.Equal(t,
		"SELECT DISTINCT `variants`.`id`,`variants`.`chr`,`variants`.`pos`,`variants`.`ref`,`variants`.`alt`"+
			" FROM variants LIMIT 50 OFFSET 0",
		compiled.SQL)
	assert.Empty(t, compiled.Args)
	assert.Equal(t, "SELECT COUNT(*) AS count FROM variants", compiled.CountSQL)
	assert.Empty(t, compiled.CountArgs)
	assert.Equal(t, []string{"id", "chr", "pos", "ref", "alt"}, compiled.Columns)
}

func TestTranslateAnnotationFieldJoin(t *testing.T) {
	compiled, err := Translate(varapi.QuerySpec{
		Fields: []string{"chr", "ann.gene"},
	}, testCatalog())
	require.NoError(t, err)

	assert.Equal(t,
		"SELECT DISTINCT `variants`.`id`,`variants`.`chr`,`annotations`.`gene` AS `ann.gene`"+
			" FROM variants LEFT JOIN annotations ON annotations.variant_id = variants.id"+
			" LIMIT 50 OFFSET 0",
		compiled.SQL)
	assert.Equal(t, []string{"id", "chr", "ann.gene"}, compiled.Columns)

	// The count does not depend on selected fields, so the fast path
	// still applies.
	assert.Equal(t, "SELECT COUNT(*) AS count FROM variants", compiled.CountSQL)
}

func TestTranslateSampleField(t *testing.T) {
	compiled, err := Translate(varapi.QuerySpec{
		Fields: []string{"chr", "samples.boby.gt"},
	}, testCatalog())
	require.NoError(t, err)

	assert.Equal(t,
		"SELECT DISTINCT `variants`.`id`,`variants`.`chr`,`sample_boby`.`gt` AS `samples.boby.gt`"+
			" FROM variants"+
			" INNER JOIN sample_has_variant `sample_boby` ON `sample_boby`.variant_id = variants.id"+
			" AND `sample_boby`.sample_id = ?"+
			" LIMIT 50 OFFSET 0",
		compiled.SQL)
	assert.Equal(t, []interface{}{int64(1)}, compiled.Args)
}

func TestTranslateDottedSampleName(t *testing.T) {
	compiled, err := Translate(varapi.QuerySpec{
		Fields: []string{"samples.charles.de.gaulle.dp"},
	}, testCatalog())
	require.NoError(t, err)

	assert.Contains(t, compiled.SQL, "`sample_charles.de.gaulle`.`dp` AS `samples.charles.de.gaulle.dp`")
	assert.Equal(t, []interface{}{int64(3)}, compiled.Args)
}

func TestTranslateSelectionSource(t *testing.T) {
	compiled, err := Translate(varapi.QuerySpec{
		Source: "rare",
	}, testCatalog())
	require.NoError(t, err)

	assert.Contains(t, compiled.SQL,
		" INNER JOIN selection_has_variant sv ON sv.variant_id = variants.id"+
			" INNER JOIN selections s ON s.id = sv.selection_id AND s.name = ?")
	assert.Equal(t, []interface{}{"rare"}, compiled.Args)

	assert.Equal(t,
		"SELECT COUNT(*) AS count FROM (SELECT DISTINCT `variants`.`id` FROM variants"+
			" INNER JOIN selection_has_variant sv ON sv.variant_id = variants.id"+
			" INNER JOIN selections s ON s.id = sv.selection_id AND s.name = ?)",
		compiled.CountSQL)
	assert.Equal(t, []interface{}{"rare"}, compiled.CountArgs)
}

func TestTranslateConditions(t *testing.T) {
	for _, tc := range []struct {
		name   string
		filter *filterexpr.Filter
		where  string
		args   []interface{}
	}{
		{
			name:   "implicit equality",
			filter: filterexpr.Eq("chr", "chr1"),
			where:  "`variants`.`chr` = ?",
			args:   []interface{}{"chr1"},
		},
		{
			name:   "not equal",
			filter: filterexpr.Ne("chr", "chrX"),
			where:  "`variants`.`chr` != ?",
			args:   []interface{}{"chrX"},
		},
		{
			name:   "null is null",
			filter: filterexpr.Eq("tags", nil),
			where:  "`variants`.`tags` IS NULL",
		},
		{
			name:   "not null",
			filter: filterexpr.Ne("tags", nil),
			where:  "`variants`.`tags` IS NOT NULL",
		},
		{
			name:   "greater than",
			filter: filterexpr.Gt("pos", 100),
			where:  "`variants`.`pos` > ?",
			args:   []interface{}{100},
		},
		{
			name:   "in list",
			filter: filterexpr.In("chr", "chr1", "chr2", "chr3"),
			where:  "`variants`.`chr` IN (?,?,?)",
			args:   []interface{}{"chr1", "chr2", "chr3"},
		},
		{
			name:   "in empty list never matches",
			filter: filterexpr.In("chr"),
			where:  "1 = 0",
		},
		{
			name:   "not in empty list always matches",
			filter: filterexpr.NotIn("chr"),
			where:  "1 = 1",
		},
		{
			name:   "in wordset",
			filter: filterexpr.InWordset("ann.gene", "mygenes"),
			where:  "`annotations`.`gene` IN (SELECT value FROM wordsets WHERE name = ?)",
			args:   []interface{}{"mygenes"},
		},
		{
			name:   "has element",
			filter: filterexpr.Has("tags", "exonic"),
			where:  "',' || `variants`.`tags` || ',' LIKE ?",
			args:   []interface{}{"%,exonic,%"},
		},
		{
			name:   "regex without metacharacters runs as like",
			filter: filterexpr.Regex("ref", "AAG"),
			where:  "`variants`.`ref` LIKE ?",
			args:   []interface{}{"%AAG%"},
		},
		{
			name:   "regex with metacharacters",
			filter: filterexpr.Regex("ref", "^A+G$"),
			where:  "`variants`.`ref` REGEXP ?",
			args:   []interface{}{"^A+G$"},
		},
		{
			name: "conjunction",
			filter: filterexpr.And(
				filterexpr.Eq("chr", "chr7"),
				filterexpr.Gt("pos", 10),
			),
			where: "(`variants`.`chr` = ? AND `variants`.`pos` > ?)",
			args:  []interface{}{"chr7", 10},
		},
		{
			name: "disjunction inside conjunction",
			filter: filterexpr.And(
				filterexpr.Eq("favorite", true),
				filterexpr.Or(
					filterexpr.Lt("pos", 5),
					filterexpr.Gt("pos", 500),
				),
			),
			where: "(`variants`.`favorite` = ? AND (`variants`.`pos` < ? OR `variants`.`pos` > ?))",
			args:  []interface{}{true, 5, 500},
		},
		{
			name:   "negation",
			filter: filterexpr.Not(filterexpr.Eq("chr", "chrM")),
			where:  "NOT (`variants`.`chr` = ?)",
			args:   []interface{}{"chrM"},
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			compiled, err := Translate(varapi.QuerySpec{
				Fields: []string{"chr"},
				Filter: tc.filter,
			}, testCatalog())
			require.NoError(t, err)

			assert.Equal(t,
				"SELECT DISTINCT `variants`.`id`,`variants`.`chr` FROM variants"+
					" WHERE "+tc.where+" LIMIT 50 OFFSET 0",
				compiled.SQL)
			if len(tc.args) == 0 {
				assert.Empty(t, compiled.Args)
			} else {
				assert.Equal(t, tc.args, compiled.Args)
			}
		})
	}
}

func TestTranslateAnnotationFilterJoinsCount(t *testing.T) {
	compiled, err := Translate(varapi.QuerySpec{
		Fields: []string{"chr"},
		Filter: filterexpr.Eq("ann.impact", "HIGH"),
	}, testCatalog())
	require.NoError(t, err)

	assert.Contains(t, compiled.SQL, "LEFT JOIN annotations")
	assert.Contains(t, compiled.CountSQL, "LEFT JOIN annotations")
	assert.Equal(t, []interface{}{"HIGH"}, compiled.CountArgs)
}

func TestTranslateEmptyFilterMatchesNoFilter(t *testing.T) {
	catalog := testCatalog()

	withEmpty, err := Translate(varapi.QuerySpec{Filter: filterexpr.And()}, catalog)
	require.NoError(t, err)

	without, err := Translate(varapi.QuerySpec{}, catalog)
	require.NoError(t, err)

	assert.Equal(t, without.SQL, withEmpty.SQL)
	assert.Equal(t, without.CountSQL, withEmpty.CountSQL)
}

func TestTranslateWildcardSampleFilter(t *testing.T) {
	compiled, err := Translate(varapi.QuerySpec{
		Fields: []string{"chr"},
		Filter: filterexpr.Gte("samples.*.gt", 1),
	}, testCatalog())
	require.NoError(t, err)

	assert.Contains(t, compiled.SQL,
		"WHERE (`sample_boby`.`gt` >= ? AND `sample_raymond`.`gt` >= ?"+
			" AND `sample_charles.de.gaulle`.`gt` >= ?)")

	// Join arguments (the three sample ids) bind before the filter
	// values.
	assert.Equal(t, []interface{}{
		int64(1), int64(2), int64(3),
		1, 1, 1,
	}, compiled.Args)
}

func TestTranslateWildcardSampleFieldExpansion(t *testing.T) {
	compiled, err := Translate(varapi.QuerySpec{
		Fields: []string{"chr", "samples.*.gt"},
	}, testCatalog())
	require.NoError(t, err)

	assert.Equal(t, []string{
		"id", "chr",
		"samples.boby.gt", "samples.raymond.gt", "samples.charles.de.gaulle.gt",
	}, compiled.Columns)
	assert.Equal(t, []interface{}{int64(1), int64(2), int64(3)}, compiled.Args)
}

func TestTranslateOrderBy(t *testing.T) {
	compiled, err := Translate(varapi.QuerySpec{
		OrderBy: varapi.Descending("pos"),
		Limit:   25,
		Offset:  50,
	}, testCatalog())
	require.NoError(t, err)

	assert.Contains(t, compiled.SQL, " ORDER BY `variants`.`pos` DESC LIMIT 25 OFFSET 50")
}

func TestTranslateOrderByAnnotationJoinsMainQueryOnly(t *testing.T) {
	compiled, err := Translate(varapi.QuerySpec{
		Filter:  filterexpr.Gt("pos", 5),
		OrderBy: varapi.Ascending("ann.gene"),
	}, testCatalog())
	require.NoError(t, err)

	assert.Contains(t, compiled.SQL, "LEFT JOIN annotations")
	assert.Contains(t, compiled.SQL, " ORDER BY `annotations`.`gene` ASC")

	// Ordering cannot change how many variants match.
	assert.NotContains(t, compiled.CountSQL, "LEFT JOIN annotations")
}

func TestTranslateResolutionErrors(t *testing.T) {
	catalog := testCatalog()

	for _, tc := range []struct {
		name string
		spec varapi.QuerySpec
		kind varerror.Kind
	}{
		{
			name: "unknown field in field list",
			spec: varapi.QuerySpec{Fields: []string{"nonsense"}},
			kind: varerror.KindFieldResolution,
		},
		{
			name: "unknown annotation field",
			spec: varapi.QuerySpec{Fields: []string{"ann.nonsense"}},
			kind: varerror.KindFieldResolution,
		},
		{
			name: "unknown sample",
			spec: varapi.QuerySpec{Fields: []string{"samples.nobody.gt"}},
			kind: varerror.KindFieldResolution,
		},
		{
			name: "unknown sample field",
			spec: varapi.QuerySpec{Fields: []string{"samples.boby.nonsense"}},
			kind: varerror.KindFieldResolution,
		},
		{
			name: "unknown field in filter",
			spec: varapi.QuerySpec{Filter: filterexpr.Eq("nonsense", 1)},
			kind: varerror.KindFieldResolution,
		},
		{
			name: "unknown order by field",
			spec: varapi.QuerySpec{OrderBy: varapi.Ascending("nonsense")},
			kind: varerror.KindFieldResolution,
		},
		{
			name: "duplicate field",
			spec: varapi.QuerySpec{Fields: []string{"chr", "chr"}},
			kind: varerror.KindBadInput,
		},
		{
			name: "not with sub-tree still resolves fields",
			spec: varapi.QuerySpec{Filter: filterexpr.Not(filterexpr.Eq("nonsense", 1))},
			kind: varerror.KindFieldResolution,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Translate(tc.spec, catalog)
			require.Error(t, err)
			assert.Equal(t, tc.kind, varerror.KindOf(err))
		})
	}
}

func TestTranslateMalformedFilter(t *testing.T) {
	_, err := Translate(varapi.QuerySpec{
		Filter: &filterexpr.Filter{Comb: filterexpr.CombNot},
	}, testCatalog())
	require.Error(t, err)
	assert.Equal(t, varerror.KindMalformedFilter, varerror.KindOf(err))
}

func TestTranslateIsDeterministic(t *testing.T) {
	catalog := testCatalog()
	spec := varapi.QuerySpec{
		Fields: []string{"chr", "ann.gene", "samples.boby.gt"},
		Source: "rare",
		Filter: filterexpr.And(
			filterexpr.Eq("ann.impact", "HIGH"),
			filterexpr.Gte("samples.raymond.gt", 1),
		),
		OrderBy: varapi.Descending("pos"),
	}

	first, err := Translate(spec, catalog)
	require.NoError(t, err)
	second, err := Translate(spec, catalog)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestTranslateVariantIDs(t *testing.T) {
	idSQL, args, err := TranslateVariantIDs(varapi.QuerySpec{
		Source: "rare",
		Filter: filterexpr.Eq("chr", "chr1"),
	}, testCatalog())
	require.NoError(t, err)

	assert.Equal(t,
		"SELECT DISTINCT `variants`.`id` FROM variants"+
			" INNER JOIN selection_has_variant sv ON sv.variant_id = variants.id"+
			" INNER JOIN selections s ON s.id = sv.selection_id AND s.name = ?"+
			" WHERE `variants`.`chr` = ?",
		idSQL)
	assert.Equal(t, []interface{}{"rare", "chr1"}, args)
}

func TestTranslateGroupedCounts(t *testing.T) {
	compiled, err := TranslateGroupedCounts(varapi.QuerySpec{
		Filter: filterexpr.Gt("pos", 10),
	}, testCatalog(), "chr")
	require.NoError(t, err)

	assert.Equal(t,
		"SELECT `value`, COUNT(*) AS count FROM ("+
			"SELECT DISTINCT `variants`.`id`,`variants`.`chr` AS `value` FROM variants"+
			" WHERE `variants`.`pos` > ?"+
			") GROUP BY `value` ORDER BY count DESC",
		compiled.SQL)
	assert.Equal(t, []interface{}{10}, compiled.Args)
	assert.Equal(t, []string{"value", "count"}, compiled.Columns)
}

func TestTranslateCompositeGolden(t *testing.T) {
	compiled, err := Translate(varapi.QuerySpec{
		Fields: []string{"chr", "pos", "ref", "alt", "ann.gene", "samples.boby.gt"},
		Source: "rare",
		Filter: filterexpr.And(
			filterexpr.Eq("ann.impact", "HIGH"),
			filterexpr.Or(
				filterexpr.Gt("pos", 100),
				filterexpr.Regex("ref", "A+"),
			),
		),
		OrderBy: varapi.Descending("pos"),
		Limit:   20,
		Offset:  40,
	}, testCatalog())
	require.NoError(t, err)

	g := goldie.New(t)
	g.Assert(t, "composite_query", []byte("main: "+compiled.SQL+"\ncount: "+compiled.CountSQL+"\n"))
}
