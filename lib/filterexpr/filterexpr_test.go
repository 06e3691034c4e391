package filterexpr

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vardex/vardex/lib/varerror"
)

func TestParseRoundTrip(t *testing.T) {
	cases := []struct {
		name string
		in   string
	}{
		{"implicit eq", `{"$and":[{"chr":"chr1"}]}`},
		{"explicit op", `{"$and":[{"pos":{"$gt":111}}]}`},
		{"nested or", `{"$and":[{"chr":"chr1"},{"$or":[{"gene":"TP53"},{"gene":"BRCA1"}]}]}`},
		{"in list", `{"$and":[{"chr":{"$in":["chr1","chr2"]}}]}`},
		{"wordset", `{"$and":[{"ann.gene":{"$in":{"$wordset":"mygenes"}}}]}`},
		{"has", `{"$and":[{"consequence":{"$has":"missense"}}]}`},
		{"not", `{"$not":{"classification":3}}`},
		{"null value", `{"$and":[{"comment":null}]}`},
		{"empty root", `{"$and":[]}`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f, err := Parse([]byte(tc.in))
			require.NoError(t, err)

			out, err := json.Marshal(f)
			require.NoError(t, err)
			assert.JSONEq(t, tc.in, string(out))
		})
	}
}

func TestParseValues(t *testing.T) {
	f, err := Parse([]byte(`{"$and":[{"pos":{"$gt":111}},{"af":{"$lte":0.25}}]}`))
	require.NoError(t, err)

	require.Len(t, f.Children, 2)
	assert.Equal(t, int64(111), f.Children[0].Value)
	assert.Equal(t, OpGt, f.Children[0].Op)
	assert.Equal(t, 0.25, f.Children[1].Value)
}

func TestParseMalformed(t *testing.T) {
	cases := []struct {
		name string
		in   string
	}{
		{"not a dict", `["chr"]`},
		{"two keys", `{"chr":"chr1","pos":4}`},
		{"unknown operator", `{"pos":{"$almost":4}}`},
		{"empty nested and", `{"$or":[{"$and":[]}]}`},
		{"empty or", `{"$or":[]}`},
		{"not with two children", `{"$not":[{"chr":"chr1"},{"pos":4}]}`},
		{"bare wordset", `{"gene":{"$wordset":"mygenes"}}`},
		{"combinator scalar", `{"$and":3}`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse([]byte(tc.in))
			require.Error(t, err)
			assert.Equal(t, varerror.KindMalformedFilter, varerror.KindOf(err))
		})
	}
}

func TestValidateArity(t *testing.T) {
	assert.NoError(t, Empty().Validate())
	assert.NoError(t, (*Filter)(nil).Validate())
	assert.NoError(t, And(Eq("chr", "chr1")).Validate())

	assert.Error(t, Or().Validate())
	assert.Error(t, And(And()).Validate())
	assert.Error(t, (&Filter{Comb: CombNot}).Validate())
	assert.Error(t, (&Filter{Comb: CombNot, Children: []*Filter{Eq("a", 1), Eq("b", 2)}}).Validate())
	assert.Error(t, (&Filter{Field: "chr", Comb: CombAnd}).Validate())
	assert.Error(t, Compare("pos", "$almost", 4).Validate())
}

func TestWithConditionReplaceOrAppend(t *testing.T) {
	base := And(Eq("chr", "chr1"), Eq("classification", 3), Eq("favorite", true))

	updated := base.WithCondition(Eq("classification", 4))

	require.Len(t, updated.Children, 3)
	assert.Equal(t, "chr", updated.Children[0].Field)
	assert.Equal(t, "classification", updated.Children[1].Field)
	assert.Equal(t, 4, updated.Children[1].Value)
	assert.Equal(t, "favorite", updated.Children[2].Field)

	// The original tree is untouched.
	assert.Equal(t, 3, base.Children[1].Value)

	appended := base.WithCondition(Gt("pos", 100))
	require.Len(t, appended.Children, 4)
	assert.Equal(t, "pos", appended.Children[3].Field)
}

func TestWithConditionIdempotent(t *testing.T) {
	cond := Eq("classification", 4)

	once := Empty().WithCondition(cond)
	twice := once.WithCondition(cond)

	assert.True(t, Equal(once, twice))
}

func TestWithConditionCombinatorKey(t *testing.T) {
	tags := Or(Has("tags", "pathogenic"), Has("tags", "rare"))
	base := And(Eq("chr", "chr1")).WithCondition(tags)
	require.Len(t, base.Children, 2)

	replacement := Or(Has("tags", "benign"))
	updated := base.WithCondition(replacement)

	require.Len(t, updated.Children, 2)
	assert.Equal(t, CombOr, updated.Children[1].Comb)
	require.Len(t, updated.Children[1].Children, 1)
	assert.Equal(t, "benign", updated.Children[1].Children[0].Value)
}

func TestWithConditionLiftsNonAndRoot(t *testing.T) {
	root := Eq("chr", "chr1")
	updated := root.WithCondition(Gt("pos", 10))

	require.Equal(t, CombAnd, updated.Comb)
	require.Len(t, updated.Children, 2)
	assert.Equal(t, "chr", updated.Children[0].Field)
	assert.Equal(t, "pos", updated.Children[1].Field)
}

func TestWithoutCondition(t *testing.T) {
	base := And(Eq("chr", "chr1"), Eq("classification", 3))

	updated := base.WithoutCondition("classification")
	require.Len(t, updated.Children, 1)
	assert.Equal(t, "chr", updated.Children[0].Field)

	same := base.WithoutCondition("nonexistent")
	require.Len(t, same.Children, 2)
}

func TestFlattenDeduplicates(t *testing.T) {
	f := And(
		Eq("chr", "chr1"),
		Or(Eq("gene", "TP53"), Eq("chr", "chr1")),
		Not(Gt("pos", 100)),
	)

	leaves := f.Flatten()
	require.Len(t, leaves, 3)
	assert.Equal(t, "chr", leaves[0].Field)
	assert.Equal(t, "gene", leaves[1].Field)
	assert.Equal(t, "pos", leaves[2].Field)
}

func TestEqualStructural(t *testing.T) {
	a := And(Eq("chr", "chr1"), Gt("pos", 111))

	b, err := Parse([]byte(`{"$and":[{"chr":"chr1"},{"pos":{"$gt":111}}]}`))
	require.NoError(t, err)

	assert.True(t, Equal(a, b))
	assert.False(t, Equal(a, And(Eq("chr", "chr2"), Gt("pos", 111))))
	assert.False(t, Equal(nil, Empty()))
}

func TestIsEmpty(t *testing.T) {
	assert.True(t, (*Filter)(nil).IsEmpty())
	assert.True(t, Empty().IsEmpty())
	assert.False(t, And(Eq("chr", "chr1")).IsEmpty())
	assert.False(t, Eq("chr", "chr1").IsEmpty())
}

func TestParseNull(t *testing.T) {
	f, err := Parse([]byte("null"))
	require.NoError(t, err)
	assert.Nil(t, f)

	f, err = Parse(nil)
	require.NoError(t, err)
	assert.Nil(t, f)
}
