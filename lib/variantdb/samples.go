package variantdb

import (
	"context"
)

// Sample is one genotyped individual, with its pedigree record.
// Phenotype follows PED conventions: 1 unaffected (control), 2
// affected (case), 0 unknown.
type Sample struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	FamilyID  string `json:"family_id"`
	FatherID  int64  `json:"father_id"`
	MotherID  int64  `json:"mother_id"`
	Sex       int    `json:"sex"`
	Phenotype int    `json:"phenotype"`
}

// InsertSamples registers sample names. Pedigree columns take their
// defaults and can be filled in later with UpdateSample.
func (d *DB) InsertSamples(ctx context.Context, names []string) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return wrapQueryError(err, "unable to begin transaction")
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO samples (name) VALUES (?)`)
	if err != nil {
		return wrapQueryError(err, "unable to prepare sample insert")
	}
	defer stmt.Close()

	for _, name := range names {
		if err := safeIdent(name); err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx, name); err != nil {
			return wrapQueryError(err, "unable to insert sample "+name)
		}
	}

	if err := tx.Commit(); err != nil {
		return wrapQueryError(err, "unable to commit samples")
	}

	d.mu.Lock()
	d.sampleCache = nil
	d.mu.Unlock()

	return nil
}

// Samples returns all samples in insertion order.
func (d *DB) Samples(ctx context.Context) ([]Sample, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT id, name, family_id, father_id, mother_id, sex, phenotype
		FROM samples
		ORDER BY id
	`)
	if err != nil {
		return nil, wrapQueryError(err, "unable to query samples")
	}
	defer rows.Close()

	var rv []Sample
	for rows.Next() {
		var s Sample
		if err := rows.Scan(&s.ID, &s.Name, &s.FamilyID, &s.FatherID, &s.MotherID, &s.Sex, &s.Phenotype); err != nil {
			return nil, wrapQueryError(err, "unable to scan sample row")
		}
		rv = append(rv, s)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapQueryError(err, "error iterating samples")
	}

	return rv, nil
}

// UpdateSample rewrites a sample's pedigree record. The name is
// immutable; the row is addressed by id.
func (d *DB) UpdateSample(ctx context.Context, s Sample) error {
	_, err := d.db.ExecContext(ctx, `
		UPDATE samples
		SET family_id = ?, father_id = ?, mother_id = ?, sex = ?, phenotype = ?
		WHERE id = ?
	`, s.FamilyID, s.FatherID, s.MotherID, s.Sex, s.Phenotype, s.ID)
	if err != nil {
		return wrapQueryError(err, "unable to update sample")
	}
	return nil
}

// sampleIDs returns the name-to-id map, loading it once and caching
// until the sample set changes.
func (d *DB) sampleIDs(ctx context.Context) (map[string]int64, error) {
	d.mu.Lock()
	cached := d.sampleCache
	d.mu.Unlock()
	if cached != nil {
		return cached, nil
	}

	samples, err := d.Samples(ctx)
	if err != nil {
		return nil, err
	}

	ids := make(map[string]int64, len(samples))
	for _, s := range samples {
		ids[s.Name] = s.ID
	}

	d.mu.Lock()
	d.sampleCache = ids
	d.mu.Unlock()

	return ids, nil
}
