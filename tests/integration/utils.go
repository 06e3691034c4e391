// Package integrationtest exercises the full import-to-query path the
// way the CLI drives it: a JSONL stream carrying raw snpEff annotation
// strings, expanded against a configured header, imported into a fresh
// database file on disk.
package integrationtest

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vardex/vardex/lib/config"
	"github.com/vardex/vardex/lib/reader"
	"github.com/vardex/vardex/lib/variantdb"
)

const annotationHeader = "Allele | Annotation | Annotation_Impact | Gene_Name"

// cohortJSONL is a small three-sample cohort. One record is an indel,
// one carries two annotations, one carries none.
const cohortJSONL = `{"chr":"chr7","pos":117559590,"ref":"G","alt":"A","qual":60.5,"af":0.0001,"ann":"A|missense_variant|MODERATE|CFTR","samples":[{"name":"alice","gt":1,"dp":35},{"name":"bob","gt":0,"dp":28},{"name":"charlie","gt":0,"dp":31}]}
{"chr":"chr7","pos":117587806,"ref":"C","alt":"T","qual":22.1,"af":0.01,"ann":"T|synonymous_variant|LOW|CFTR,T|intron_variant|MODIFIER|AC000111.5","samples":[{"name":"alice","gt":0,"dp":40},{"name":"bob","gt":1,"dp":22},{"name":"charlie","gt":0,"dp":18}]}
{"chr":"chr17","pos":7674220,"ref":"C","alt":"T","qual":88.2,"af":0.0002,"ann":"T|stop_gained|HIGH|TP53","samples":[{"name":"alice","gt":2,"dp":55},{"name":"bob","gt":1,"dp":47},{"name":"charlie","gt":0,"dp":52}]}
{"chr":"chr17","pos":43093464,"ref":"A","alt":"AG","qual":35.9,"af":0.001,"ann":"AG|frameshift_variant|HIGH|BRCA1","samples":[{"name":"alice","gt":0,"dp":30},{"name":"bob","gt":0,"dp":26},{"name":"charlie","gt":1,"dp":33}]}
{"chr":"chr13","pos":32340301,"ref":"T","alt":"C","qual":47.0,"af":0.005,"ann":"C|missense_variant|MODERATE|BRCA2","samples":[{"name":"alice","gt":1,"dp":38},{"name":"bob","gt":2,"dp":41},{"name":"charlie","gt":1,"dp":29}]}
{"chr":"chr13","pos":32355250,"ref":"G","alt":"C","qual":12.4,"af":0.08,"samples":[{"name":"alice","gt":0,"dp":12},{"name":"bob","gt":0,"dp":9},{"name":"charlie","gt":2,"dp":14}]}
{"chr":"chr7","pos":55019278,"ref":"A","alt":"T","qual":71.3,"af":0.0004,"ann":"T|missense_variant|MODERATE|EGFR","samples":[{"name":"alice","gt":1,"dp":44},{"name":"bob","gt":0,"dp":39},{"name":"charlie","gt":0,"dp":42}]}
{"chr":"chr17","pos":7676154,"ref":"G","alt":"C","qual":9.8,"af":0.2,"ann":"C|synonymous_variant|LOW|TP53","samples":[{"name":"alice","gt":2,"dp":8},{"name":"bob","gt":2,"dp":11},{"name":"charlie","gt":1,"dp":7}]}
`

const (
	cohortVariants    = 8
	cohortAnnotations = 8
	cohortGenotypes   = 24
)

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Import.BatchSize = 3
	cfg.Import.ParseWorkers = 2
	cfg.Annotations.Header = annotationHeader
	return cfg
}

// newProject opens a fresh database file and imports the cohort into
// it.
func newProject(t *testing.T) (context.Context, *variantdb.DB) {
	t.Helper()
	ctx := context.Background()
	cfg := testConfig()

	d, err := variantdb.Open(ctx, variantdb.Params{
		Path: filepath.Join(t.TempDir(), "cohort.db"),
	}, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { d.Close() })

	src, err := reader.NewJSONLReader(strings.NewReader(cohortJSONL), reader.JSONLOptions{
		AnnotationHeader: cfg.Annotations.Header,
		AnnotationSchema: cfg.AnnotationSchema(),
	})
	require.NoError(t, err)

	result, err := d.ImportReader(ctx, src)
	require.NoError(t, err)
	require.NoError(t, result.Failures)
	require.Equal(t, cohortVariants, result.NumVariants)
	require.Equal(t, cohortAnnotations, result.NumAnnotations)
	require.Equal(t, cohortGenotypes, result.NumGenotypes)

	return ctx, d
}
