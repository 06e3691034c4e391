package variantdb

import (
	"bufio"
	"context"
	"io"
	"strings"

	"go.uber.org/zap"

	"github.com/vardex/vardex/lib/logging"
	"github.com/vardex/vardex/lib/varerror"
)

// WordsetInfo summarizes one named word list.
type WordsetInfo struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func validateWordsetName(name string) error {
	if strings.TrimSpace(name) == "" {
		return varerror.New(
			varerror.WithKind(varerror.KindBadInput),
			varerror.WithMessage("empty wordset name"),
		)
	}
	return nil
}

// ReadWords extracts the usable words from a word list: one word per
// line, surrounding whitespace trimmed. Empty lines and lines with
// embedded whitespace are dropped.
func ReadWords(r io.Reader) ([]string, error) {
	var rv []string

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		word := strings.TrimSpace(scanner.Text())
		if word == "" {
			continue
		}
		if strings.ContainsAny(word, " \t") {
			continue
		}
		rv = append(rv, word)
	}
	if err := scanner.Err(); err != nil {
		return nil, varerror.New(
			varerror.WithKind(varerror.KindBadInput),
			varerror.WithMessage("unable to read word list"),
			varerror.WithCause(err),
		)
	}

	return rv, nil
}

// ImportWordset reads a word list and stores it under the given name,
// merging with any words the set already holds. It returns the number
// of newly stored words.
func (d *DB) ImportWordset(ctx context.Context, name string, r io.Reader) (int, error) {
	if err := validateWordsetName(name); err != nil {
		return 0, err
	}

	words, err := ReadWords(r)
	if err != nil {
		return 0, err
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, wrapQueryError(err, "unable to begin transaction")
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR IGNORE INTO wordsets (name, value) VALUES (?, ?)
	`)
	if err != nil {
		return 0, wrapQueryError(err, "unable to prepare wordset insert")
	}
	defer stmt.Close()

	inserted := 0
	for _, word := range words {
		res, err := stmt.ExecContext(ctx, name, word)
		if err != nil {
			return 0, wrapQueryError(err, "unable to insert word "+word)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return 0, wrapQueryError(err, "unable to read insert result")
		}
		inserted += int(affected)
	}

	if err := tx.Commit(); err != nil {
		return 0, wrapQueryError(err, "unable to commit wordset")
	}

	logging.FromContext(ctx).Info("imported wordset",
		zap.String("name", name),
		zap.Int("words", inserted),
	)

	return inserted, nil
}

// Wordsets lists all wordsets with their sizes, by name.
func (d *DB) Wordsets(ctx context.Context) ([]WordsetInfo, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT name, COUNT(*) AS count
		FROM wordsets
		GROUP BY name
		ORDER BY name
	`)
	if err != nil {
		return nil, wrapQueryError(err, "unable to query wordsets")
	}
	defer rows.Close()

	var rv []WordsetInfo
	for rows.Next() {
		var info WordsetInfo
		if err := rows.Scan(&info.Name, &info.Count); err != nil {
			return nil, wrapQueryError(err, "unable to scan wordset row")
		}
		rv = append(rv, info)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapQueryError(err, "error iterating wordsets")
	}

	return rv, nil
}

// WordsetWords returns the words of one set, sorted.
func (d *DB) WordsetWords(ctx context.Context, name string) ([]string, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT value FROM wordsets WHERE name = ? ORDER BY value
	`, name)
	if err != nil {
		return nil, wrapQueryError(err, "unable to query wordset "+name)
	}
	defer rows.Close()

	var rv []string
	for rows.Next() {
		var word string
		if err := rows.Scan(&word); err != nil {
			return nil, wrapQueryError(err, "unable to scan word")
		}
		rv = append(rv, word)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapQueryError(err, "error iterating words")
	}

	return rv, nil
}

// DropWordset removes a wordset and all its words.
func (d *DB) DropWordset(ctx context.Context, name string) error {
	res, err := d.db.ExecContext(ctx, `DELETE FROM wordsets WHERE name = ?`, name)
	if err != nil {
		return wrapQueryError(err, "unable to drop wordset "+name)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return wrapQueryError(err, "unable to read delete result")
	}
	if affected == 0 {
		return varerror.New(
			varerror.WithKind(varerror.KindBadInput),
			varerror.WithMessage("no such wordset"),
			varerror.WithField(name),
		)
	}

	return nil
}

// wordsetSetOp rebuilds dest from a set operation over two existing
// wordsets, replacing any previous contents of dest.
func (d *DB) wordsetSetOp(ctx context.Context, dest, operator, a, b string) (int, error) {
	if err := validateWordsetName(dest); err != nil {
		return 0, err
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, wrapQueryError(err, "unable to begin transaction")
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM wordsets WHERE name = ?`, dest); err != nil {
		return 0, wrapQueryError(err, "unable to clear wordset "+dest)
	}

	query := "INSERT INTO wordsets (name, value)" +
		" SELECT ?, value FROM (" +
		"SELECT value FROM wordsets WHERE name = ? " + operator +
		" SELECT value FROM wordsets WHERE name = ?)"
	res, err := tx.ExecContext(ctx, query, dest, a, b)
	if err != nil {
		return 0, wrapQueryError(err, "unable to combine wordsets")
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, wrapQueryError(err, "unable to read insert result")
	}

	if err := tx.Commit(); err != nil {
		return 0, wrapQueryError(err, "unable to commit wordset")
	}

	return int(affected), nil
}

// UnionWordsets stores the union of two wordsets under dest.
func (d *DB) UnionWordsets(ctx context.Context, dest, a, b string) (int, error) {
	return d.wordsetSetOp(ctx, dest, "UNION", a, b)
}

// IntersectWordsets stores the intersection of two wordsets under
// dest.
func (d *DB) IntersectWordsets(ctx context.Context, dest, a, b string) (int, error) {
	return d.wordsetSetOp(ctx, dest, "INTERSECT", a, b)
}

// SubtractWordsets stores the words of a not present in b under dest.
func (d *DB) SubtractWordsets(ctx context.Context, dest, a, b string) (int, error) {
	return d.wordsetSetOp(ctx, dest, "EXCEPT", a, b)
}
