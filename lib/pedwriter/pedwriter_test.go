package pedwriter

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vardex/vardex/lib/variantdb"
)

func TestWrite(t *testing.T) {
	samples := []variantdb.Sample{
		{ID: 1, Name: "father", FamilyID: "fam", Sex: 1, Phenotype: 1},
		{ID: 2, Name: "mother", FamilyID: "fam", Sex: 2, Phenotype: 1},
		{ID: 3, Name: "child", FamilyID: "fam", FatherID: 1, MotherID: 2, Sex: 1, Phenotype: 2},
	}

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, samples))

	assert.Equal(t,
		"fam\tfather\t0\t0\t1\t1\n"+
			"fam\tmother\t0\t0\t2\t1\n"+
			"fam\tchild\tfather\tmother\t1\t2\n",
		buf.String())
}

func TestWriteUnknownParentRendersAsFounder(t *testing.T) {
	samples := []variantdb.Sample{
		{ID: 7, Name: "orphan", FamilyID: "fam", FatherID: 99, MotherID: 98},
	}

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, samples))

	assert.Equal(t, "fam\torphan\t0\t0\t0\t0\n", buf.String())
}

func TestWriteEmpty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, nil))
	assert.Empty(t, buf.String())
}
