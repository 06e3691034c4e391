package variantdb

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/vardex/vardex/lib/logging"
	"github.com/vardex/vardex/lib/varapi"
	"github.com/vardex/vardex/lib/varerror"
)

func backendError(err error, message, query string) error {
	return varerror.New(
		varerror.WithKind(varerror.KindBackendExecution),
		varerror.WithMessage(message),
		varerror.WithData("query", query),
		varerror.WithCause(err),
	)
}

// Query compiles and runs a query spec, returning one page of rows.
func (d *DB) Query(ctx context.Context, spec varapi.QuerySpec) (*varapi.Page, error) {
	catalog, err := d.Catalog(ctx)
	if err != nil {
		return nil, err
	}

	compiled, err := Translate(spec, catalog)
	if err != nil {
		return nil, err
	}

	return d.runPageQuery(ctx, compiled)
}

func (d *DB) runPageQuery(ctx context.Context, compiled *CompiledQuery) (*varapi.Page, error) {
	logger := logging.FromContext(ctx)
	t0 := time.Now()

	if d.verbosity > 1 {
		logger.Info("running query",
			zap.String("sql", compiled.SQL),
			zap.Any("args", compiled.Args),
		)
	}

	rows, err := d.db.QueryContext(ctx, compiled.SQL, compiled.Args...)
	if err != nil {
		return nil, backendError(err, "query failed", compiled.SQL)
	}
	defer rows.Close()

	page := &varapi.Page{
		Columns: compiled.Columns,
	}

	for rows.Next() {
		values := make([]interface{}, len(compiled.Columns))
		ptrs := make([]interface{}, len(values))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, backendError(err, "unable to scan row", compiled.SQL)
		}

		row := varapi.Row{}
		for i, column := range compiled.Columns {
			row[column] = normalizeValue(values[i])
		}
		page.Rows = append(page.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, backendError(err, "error iterating rows", compiled.SQL)
	}

	logger.Debug("query executed",
		zap.Duration("duration", time.Since(t0)),
		zap.Int("rows", len(page.Rows)),
	)

	return page, nil
}

// normalizeValue maps driver values onto the types pages carry: the
// sqlite driver hands TEXT back as []byte.
func normalizeValue(value interface{}) interface{} {
	if b, ok := value.([]byte); ok {
		return string(b)
	}
	return value
}

// Count compiles and runs the count query for a spec: the number of
// distinct variants its source and filter select, ignoring fields,
// ordering, and pagination.
func (d *DB) Count(ctx context.Context, spec varapi.QuerySpec) (int, error) {
	catalog, err := d.Catalog(ctx)
	if err != nil {
		return 0, err
	}

	compiled, err := Translate(spec, catalog)
	if err != nil {
		return 0, err
	}

	logger := logging.FromContext(ctx)
	t0 := time.Now()

	if d.verbosity > 1 {
		logger.Info("running count",
			zap.String("sql", compiled.CountSQL),
			zap.Any("args", compiled.CountArgs),
		)
	}

	var count int
	if err := d.db.QueryRowContext(ctx, compiled.CountSQL, compiled.CountArgs...).Scan(&count); err != nil {
		return 0, backendError(err, "count query failed", compiled.CountSQL)
	}

	logger.Debug("count executed",
		zap.Duration("duration", time.Since(t0)),
		zap.Int("count", count),
	)

	return count, nil
}

// GroupedCount is one bucket of a grouped count: a field value and the
// number of distinct variants carrying it.
type GroupedCount struct {
	Value interface{} `json:"value"`
	Count int         `json:"count"`
}

// GroupedCounts tallies distinct variants per value of groupBy, under
// the spec's source and filter, most frequent first.
func (d *DB) GroupedCounts(ctx context.Context, spec varapi.QuerySpec, groupBy string) ([]GroupedCount, error) {
	catalog, err := d.Catalog(ctx)
	if err != nil {
		return nil, err
	}

	compiled, err := TranslateGroupedCounts(spec, catalog, groupBy)
	if err != nil {
		return nil, err
	}

	rows, err := d.db.QueryContext(ctx, compiled.SQL, compiled.Args...)
	if err != nil {
		return nil, backendError(err, "grouped count failed", compiled.SQL)
	}
	defer rows.Close()

	var rv []GroupedCount
	for rows.Next() {
		var gc GroupedCount
		if err := rows.Scan(&gc.Value, &gc.Count); err != nil {
			return nil, backendError(err, "unable to scan grouped count", compiled.SQL)
		}
		gc.Value = normalizeValue(gc.Value)
		rv = append(rv, gc)
	}
	if err := rows.Err(); err != nil {
		return nil, backendError(err, "error iterating grouped counts", compiled.SQL)
	}

	return rv, nil
}
