package variantdb

import (
	"context"
	"sort"
)

func (d *DB) setKeyValues(ctx context.Context, table string, values map[string]string) error {
	if len(values) == 0 {
		return nil
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return wrapQueryError(err, "unable to begin transaction")
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		"INSERT OR REPLACE INTO "+table+" (key, value) VALUES (?, ?)")
	if err != nil {
		return wrapQueryError(err, "unable to prepare "+table+" write")
	}
	defer stmt.Close()

	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		if _, err := stmt.ExecContext(ctx, key, values[key]); err != nil {
			return wrapQueryError(err, "unable to write "+table+" key "+key)
		}
	}

	return tx.Commit()
}

func (d *DB) getKeyValues(ctx context.Context, table string) (map[string]string, error) {
	rows, err := d.db.QueryContext(ctx, "SELECT key, value FROM "+table)
	if err != nil {
		return nil, wrapQueryError(err, "unable to query "+table)
	}
	defer rows.Close()

	rv := map[string]string{}
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, wrapQueryError(err, "unable to scan "+table+" row")
		}
		rv[key] = value
	}
	if err := rows.Err(); err != nil {
		return nil, wrapQueryError(err, "error iterating "+table)
	}

	return rv, nil
}

// UpdateProject writes project properties such as name and reference
// genome. Existing keys are overwritten, others left alone.
func (d *DB) UpdateProject(ctx context.Context, values map[string]string) error {
	return d.setKeyValues(ctx, "projects", values)
}

// Project returns all project properties.
func (d *DB) Project(ctx context.Context) (map[string]string, error) {
	return d.getKeyValues(ctx, "projects")
}

// SetMetadata writes store metadata, such as import provenance.
func (d *DB) SetMetadata(ctx context.Context, values map[string]string) error {
	return d.setKeyValues(ctx, "metadata", values)
}

// Metadata returns all store metadata.
func (d *DB) Metadata(ctx context.Context) (map[string]string, error) {
	return d.getKeyValues(ctx, "metadata")
}
