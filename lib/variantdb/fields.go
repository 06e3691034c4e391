package variantdb

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/vardex/vardex/lib/varapi"
	"github.com/vardex/vardex/lib/varerror"
)

func wrapQueryError(err error, message string) error {
	return varerror.New(
		varerror.WithKind(varerror.KindBackendExecution),
		varerror.WithMessage(message),
		varerror.WithCause(err),
	)
}

// safeIdent rejects names that cannot be safely spliced into dynamic
// DDL or column lists. Field and sample names come from input files,
// not from code.
func safeIdent(name string) error {
	if name == "" {
		return varerror.New(
			varerror.WithKind(varerror.KindBadInput),
			varerror.WithMessage("empty identifier"),
		)
	}
	if strings.ContainsAny(name, "`'\";") {
		return varerror.New(
			varerror.WithKind(varerror.KindBadInput),
			varerror.WithMessage("invalid character in identifier"),
			varerror.WithField(name),
		)
	}
	return nil
}

// InsertFields registers field descriptors in the catalog table. It
// does not create any variant columns; that happens when records are
// imported.
func (d *DB) InsertFields(ctx context.Context, fields []varapi.Field) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return wrapQueryError(err, "unable to begin transaction")
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO fields (name, category, type, description)
		VALUES (?, ?, ?, ?)
	`)
	if err != nil {
		return wrapQueryError(err, "unable to prepare field insert")
	}
	defer stmt.Close()

	for _, field := range fields {
		if err := safeIdent(field.Name); err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx, field.Name, field.Category, field.Type, field.Description); err != nil {
			return wrapQueryError(err, "unable to insert field "+field.Name)
		}
	}

	return tx.Commit()
}

// Fields returns all registered field descriptors in insertion order.
func (d *DB) Fields(ctx context.Context) ([]varapi.Field, error) {
	return d.queryFields(ctx, `
		SELECT name, category, type, description
		FROM fields
		ORDER BY id
	`)
}

// FieldsByCategory returns the field descriptors of one category, in
// insertion order.
func (d *DB) FieldsByCategory(ctx context.Context, category string) ([]varapi.Field, error) {
	return d.queryFields(ctx, `
		SELECT name, category, type, description
		FROM fields
		WHERE category = ?
		ORDER BY id
	`, category)
}

func (d *DB) queryFields(ctx context.Context, query string, args ...interface{}) ([]varapi.Field, error) {
	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrapQueryError(err, "unable to query fields")
	}
	defer rows.Close()

	var rv []varapi.Field
	for rows.Next() {
		var field varapi.Field
		var description sql.NullString
		if err := rows.Scan(&field.Name, &field.Category, &field.Type, &description); err != nil {
			return nil, wrapQueryError(err, "unable to scan field row")
		}
		field.Description = description.String
		rv = append(rv, field)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapQueryError(err, "error iterating fields")
	}

	return rv, nil
}

// IndexedField names one user-created index by the category and field
// it covers.
type IndexedField struct {
	Category string `json:"category"`
	Name     string `json:"name"`
}

func indexTarget(category string) (table, prefix string, err error) {
	switch category {
	case varapi.CategoryVariant, varapi.CategoryInfo:
		return "variants", "idx_variants_", nil
	case varapi.CategoryAnnotation:
		return "annotations", "idx_annotations_", nil
	case varapi.CategorySample:
		return "sample_has_variant", "idx_samples_", nil
	default:
		return "", "", varerror.New(
			varerror.WithKind(varerror.KindBadInput),
			varerror.WithMessage("unknown field category: "+category),
		)
	}
}

// CreateIndex creates an index over one field's backing column.
// Creating an index that already exists is a no-op.
func (d *DB) CreateIndex(ctx context.Context, category, name string) error {
	if err := safeIdent(name); err != nil {
		return err
	}

	table, prefix, err := indexTarget(category)
	if err != nil {
		return err
	}

	query := fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s%s ON %s (`%s`)", prefix, name, table, name)
	if _, err := d.db.ExecContext(ctx, query); err != nil {
		return wrapQueryError(err, "unable to create index on "+name)
	}

	return nil
}

// CreateIndexes creates indexes over several fields at once.
func (d *DB) CreateIndexes(ctx context.Context, fields []IndexedField) error {
	for _, field := range fields {
		if err := d.CreateIndex(ctx, field.Category, field.Name); err != nil {
			return err
		}
	}
	return nil
}

// RemoveIndex drops the index over one field's backing column, if it
// exists.
func (d *DB) RemoveIndex(ctx context.Context, category, name string) error {
	if err := safeIdent(name); err != nil {
		return err
	}

	_, prefix, err := indexTarget(category)
	if err != nil {
		return err
	}

	query := fmt.Sprintf("DROP INDEX IF EXISTS %s%s", prefix, name)
	if _, err := d.db.ExecContext(ctx, query); err != nil {
		return wrapQueryError(err, "unable to remove index on "+name)
	}

	return nil
}

// IndexedFields lists the user-created field indexes by inspecting the
// schema catalog.
func (d *DB) IndexedFields(ctx context.Context) ([]IndexedField, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT name
		FROM sqlite_master
		WHERE type = 'index' AND name LIKE 'idx_%'
		ORDER BY name
	`)
	if err != nil {
		return nil, wrapQueryError(err, "unable to list indexes")
	}
	defer rows.Close()

	prefixes := []struct {
		prefix   string
		category string
	}{
		{"idx_variants_", varapi.CategoryVariant},
		{"idx_annotations_", varapi.CategoryAnnotation},
		{"idx_samples_", varapi.CategorySample},
	}

	var rv []IndexedField
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, wrapQueryError(err, "unable to scan index row")
		}
		for _, p := range prefixes {
			if strings.HasPrefix(name, p.prefix) {
				rv = append(rv, IndexedField{
					Category: p.category,
					Name:     strings.TrimPrefix(name, p.prefix),
				})
				break
			}
		}
	}
	if err := rows.Err(); err != nil {
		return nil, wrapQueryError(err, "error iterating indexes")
	}

	return rv, nil
}
