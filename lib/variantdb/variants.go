package variantdb

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/vardex/vardex/lib/varapi"
	"github.com/vardex/vardex/lib/varerror"
)

func sqlTypeFor(fieldType string) string {
	switch fieldType {
	case varapi.TypeInt, varapi.TypeBool:
		return "INTEGER"
	case varapi.TypeFloat:
		return "REAL"
	default:
		return "TEXT"
	}
}

// createVariantTables creates the record tables whose columns depend
// on the imported fields: variants, annotations, and the per-sample
// genotype table.
func (d *DB) createVariantTables(ctx context.Context, fields []varapi.Field) error {
	var variantCols, annotationCols, sampleCols []string

	for _, field := range fields {
		if err := safeIdent(field.Name); err != nil {
			return err
		}
		col := "`" + field.Name + "` " + sqlTypeFor(field.Type)
		switch field.Category {
		case varapi.CategoryVariant, varapi.CategoryInfo:
			variantCols = append(variantCols, col)
		case varapi.CategoryAnnotation:
			annotationCols = append(annotationCols, col)
		case varapi.CategorySample:
			sampleCols = append(sampleCols, col)
		default:
			return varerror.New(
				varerror.WithKind(varerror.KindBadInput),
				varerror.WithMessage("unknown field category: "+field.Category),
				varerror.WithField(field.Name),
			)
		}
	}

	statements := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS variants (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			%s,
			UNIQUE (chr, pos, ref, alt)
		)`, strings.Join(variantCols, ",\n\t\t\t")),
	}

	if len(annotationCols) > 0 {
		statements = append(statements, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS annotations (
			variant_id INTEGER NOT NULL REFERENCES variants (id) ON DELETE CASCADE,
			%s
		)`, strings.Join(annotationCols, ",\n\t\t\t")))
		statements = append(statements,
			"CREATE INDEX IF NOT EXISTS annotations_variant ON annotations (variant_id)")
	}

	if len(sampleCols) > 0 {
		statements = append(statements, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS sample_has_variant (
			sample_id INTEGER NOT NULL REFERENCES samples (id) ON DELETE CASCADE,
			variant_id INTEGER NOT NULL REFERENCES variants (id) ON DELETE CASCADE,
			%s,
			PRIMARY KEY (sample_id, variant_id)
		)`, strings.Join(sampleCols, ",\n\t\t\t")))
	}

	for _, statement := range statements {
		if _, err := d.db.ExecContext(ctx, statement); err != nil {
			return wrapQueryError(err, "unable to create record tables")
		}
	}

	return nil
}

// GetVariant fetches one variant row by id, optionally with its
// annotation rows and per-sample genotype values.
func (d *DB) GetVariant(ctx context.Context, id int64, withAnnotations, withSamples bool) (*varapi.Variant, error) {
	values, err := d.queryDynamicRow(ctx, "SELECT * FROM variants WHERE id = ?", id)
	if err != nil {
		return nil, err
	}
	if values == nil {
		return nil, varerror.New(
			varerror.WithKind(varerror.KindBadInput),
			varerror.WithMessage(fmt.Sprintf("no variant with id %d", id)),
		)
	}

	variant := &varapi.Variant{
		Values: values,
	}

	if withAnnotations {
		annotations, err := d.queryDynamicRows(ctx, "SELECT * FROM annotations WHERE variant_id = ?", id)
		if err != nil {
			return nil, err
		}
		for _, row := range annotations {
			delete(row, "variant_id")
			variant.Annotations = append(variant.Annotations, row)
		}
	}

	if withSamples {
		rows, err := d.queryDynamicRows(ctx, `
			SELECT samples.name AS name, sv.*
			FROM sample_has_variant sv
			INNER JOIN samples ON samples.id = sv.sample_id
			WHERE sv.variant_id = ?
			ORDER BY sv.sample_id
		`, id)
		if err != nil {
			return nil, err
		}
		for _, row := range rows {
			name, _ := row["name"].(string)
			delete(row, "name")
			delete(row, "sample_id")
			delete(row, "variant_id")
			variant.Samples = append(variant.Samples, varapi.SampleValues{
				Name:   name,
				Values: row,
			})
		}
	}

	return variant, nil
}

// UpdateVariant rewrites editable columns of one variant row. Every
// key must name a declared variant field.
func (d *DB) UpdateVariant(ctx context.Context, id int64, values map[string]interface{}) error {
	if len(values) == 0 {
		return nil
	}

	catalog, err := d.Catalog(ctx)
	if err != nil {
		return err
	}

	keys := make([]string, 0, len(values))
	for key := range values {
		if key == "id" {
			return varerror.New(
				varerror.WithKind(varerror.KindBadInput),
				varerror.WithMessage("variant id is immutable"),
			)
		}
		if _, ok := catalog.VariantField(key); !ok {
			return varerror.New(
				varerror.WithKind(varerror.KindFieldResolution),
				varerror.WithMessage("unknown field"),
				varerror.WithField(key),
			)
		}
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var assignments []string
	var args []interface{}
	for _, key := range keys {
		assignments = append(assignments, "`"+key+"` = ?")
		args = append(args, values[key])
	}
	args = append(args, id)

	query := "UPDATE variants SET " + strings.Join(assignments, ", ") + " WHERE id = ?"
	if _, err := d.db.ExecContext(ctx, query, args...); err != nil {
		return wrapQueryError(err, "unable to update variant")
	}

	return nil
}

// queryDynamicRow runs a query whose columns are not known statically
// and returns the first row as a map, or nil when there is none.
func (d *DB) queryDynamicRow(ctx context.Context, query string, args ...interface{}) (map[string]interface{}, error) {
	rows, err := d.queryDynamicRows(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

func (d *DB) queryDynamicRows(ctx context.Context, query string, args ...interface{}) ([]map[string]interface{}, error) {
	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrapQueryError(err, "query failed")
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, wrapQueryError(err, "unable to read columns")
	}

	var rv []map[string]interface{}
	for rows.Next() {
		values := make([]interface{}, len(columns))
		ptrs := make([]interface{}, len(values))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, wrapQueryError(err, "unable to scan row")
		}

		row := map[string]interface{}{}
		for i, column := range columns {
			row[column] = normalizeValue(values[i])
		}
		rv = append(rv, row)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapQueryError(err, "error iterating rows")
	}

	return rv, nil
}
