package reader

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vardex/vardex/lib/varapi"
	"github.com/vardex/vardex/lib/varerror"
)

func TestParseBed(t *testing.T) {
	input := strings.Join([]string{
		`browser position chr7:127471196-127495720`,
		`track name="test track"`,
		`# a comment`,
		``,
		`chr7	127471196	127472363	Pos1`,
		`chr7 127472363 127473530`,
	}, "\n")

	intervals, err := ParseBed(strings.NewReader(input))
	require.NoError(t, err)

	assert.Equal(t, []varapi.BedInterval{
		{Chrom: "chr7", Start: 127471196, End: 127472363, Name: "Pos1"},
		{Chrom: "chr7", Start: 127472363, End: 127473530},
	}, intervals)
}

func TestParseBedErrors(t *testing.T) {
	for _, tc := range []struct {
		name    string
		input   string
		message string
	}{
		{"too few columns", "chr1 100", "needs chrom, start, and end"},
		{"bad start", "chr1 abc 200", "bad start position"},
		{"bad end", "chr1 100 abc", "bad end position"},
		{"inverted interval", "chr1 200 100", "ends before it starts"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseBed(strings.NewReader(tc.input))
			require.Error(t, err)
			assert.Equal(t, varerror.KindBadInput, varerror.KindOf(err))
			assert.Contains(t, err.Error(), tc.message)
			assert.Contains(t, err.Error(), "line 1")
		})
	}
}

func TestParseBedEmpty(t *testing.T) {
	intervals, err := ParseBed(strings.NewReader("# nothing but comments\n"))
	require.NoError(t, err)
	assert.Empty(t, intervals)
}
