package integrationtest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vardex/vardex/lib/filterexpr"
	"github.com/vardex/vardex/lib/querymodel"
	"github.com/vardex/vardex/lib/varapi"
	"github.com/vardex/vardex/lib/vql"
)

func TestModelPagesThroughDatabase(t *testing.T) {
	ctx, d := newProject(t)

	model := querymodel.New(d)

	var resets int
	unsubscribe := model.Subscribe(querymodel.ObserverFuncs{
		OnReset: func() { resets++ },
	})
	defer unsubscribe()

	require.NoError(t, model.SetLimit(ctx, 3))
	require.NoError(t, model.SetOrderBy(ctx, varapi.Ascending("pos")))

	assert.Equal(t, querymodel.Loaded, model.State())
	assert.Equal(t, cohortVariants, model.Total())
	assert.Equal(t, 3, model.PageCount())
	assert.Equal(t, []string{"id", "chr", "pos", "ref", "alt"}, model.Headers())

	pagePositions := func() []interface{} {
		var rv []interface{}
		for i := 0; i < model.RowCount(); i++ {
			rv = append(rv, model.Cell(i, 2))
		}
		return rv
	}

	assert.Equal(t, []interface{}{
		int64(7674220), int64(7676154), int64(32340301),
	}, pagePositions())

	require.NoError(t, model.NextPage(ctx))
	assert.Equal(t, []interface{}{
		int64(32355250), int64(43093464), int64(55019278),
	}, pagePositions())

	require.NoError(t, model.LastPage(ctx))
	assert.Equal(t, 2, model.Page())
	assert.Equal(t, []interface{}{
		int64(117559590), int64(117587806),
	}, pagePositions())

	require.NoError(t, model.FirstPage(ctx))
	assert.Equal(t, 0, model.Page())
	assert.True(t, resets >= 4)
}

func TestModelFilterNarrowsAndRecovers(t *testing.T) {
	ctx, d := newProject(t)

	model := querymodel.New(d)
	require.NoError(t, model.Refresh(ctx))
	assert.Equal(t, cohortVariants, model.Total())

	require.NoError(t, model.SetFilter(ctx, filterexpr.Eq("ann.gene", "TP53")))
	assert.Equal(t, 2, model.Total())
	assert.Equal(t, 2, model.RowCount())

	// A bad field fails the load but keeps the previous rows visible.
	err := model.SetFields(ctx, []string{"chr", "no_such_field"})
	require.Error(t, err)
	assert.Equal(t, querymodel.Error, model.State())
	assert.Equal(t, 2, model.RowCount())

	require.NoError(t, model.SetFields(ctx, []string{"chr", "pos", "qual"}))
	assert.Equal(t, querymodel.Loaded, model.State())
	assert.Equal(t, []string{"id", "chr", "pos", "qual"}, model.Headers())
}

func TestLatestQuerySurvivesInProject(t *testing.T) {
	ctx, d := newProject(t)

	model := querymodel.New(d)
	require.NoError(t, model.SetFilter(ctx, filterexpr.And(
		filterexpr.Eq("ann.impact", "HIGH"),
		filterexpr.Lte("af", 0.001),
	)))

	text := vql.BuildVQLQuery(model.Spec())
	assert.Contains(t, text, "SELECT chr,pos,ref,alt FROM variants WHERE")
	assert.Contains(t, text, "ann.impact = 'HIGH'")

	require.NoError(t, d.UpdateProject(ctx, map[string]string{"latest_vql_query": text}))

	project, err := d.Project(ctx)
	require.NoError(t, err)
	assert.Equal(t, text, project["latest_vql_query"])
}
