package variantdb

import (
	"context"
	"fmt"
	"strings"

	canonicaljson "github.com/gibson042/canonicaljson-go"
	"go.uber.org/zap"

	"github.com/vardex/vardex/lib/logging"
	"github.com/vardex/vardex/lib/varapi"
	"github.com/vardex/vardex/lib/varerror"
)

// Selection is a named, materialized set of variants. The built-in
// "variants" source is every imported variant and is not backed by a
// selection_has_variant row set.
type Selection struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Count int    `json:"count"`
	Query string `json:"query,omitempty"`
}

func validateSelectionName(name string) error {
	if err := safeIdent(name); err != nil {
		return err
	}
	if name == varapi.DefaultSource {
		return varerror.New(
			varerror.WithKind(varerror.KindBadInput),
			varerror.WithMessage("selection name is reserved"),
			varerror.WithField(name),
		)
	}
	return nil
}

// createSelectionFromIDs materializes a selection from an id query.
// The query must yield a single column named id; its placeholder
// arguments are passed in idArgs. queryText is stored verbatim as the
// selection's provenance.
func (d *DB) createSelectionFromIDs(ctx context.Context, name, idSQL string, idArgs []interface{}, queryText string) (*Selection, error) {
	logger := logging.FromContext(ctx)

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, wrapQueryError(err, "unable to begin transaction")
	}
	defer tx.Rollback()

	var count int
	countSQL := "SELECT COUNT(*) AS count FROM (" + idSQL + ")"
	if err := tx.QueryRowContext(ctx, countSQL, idArgs...).Scan(&count); err != nil {
		return nil, backendError(err, "unable to count selection", countSQL)
	}

	res, err := tx.ExecContext(ctx, `
		INSERT INTO selections (name, count, query) VALUES (?, ?, ?)
	`, name, count, queryText)
	if err != nil {
		return nil, wrapQueryError(err, "unable to insert selection "+name)
	}
	selectionID, err := res.LastInsertId()
	if err != nil {
		return nil, wrapQueryError(err, "unable to read selection id")
	}

	// The selection_id placeholder precedes the subquery in the text,
	// so it binds first.
	insertSQL := "INSERT INTO selection_has_variant (variant_id, selection_id)" +
		" SELECT DISTINCT ids.id, ? FROM (" + idSQL + ") AS ids"
	insertArgs := append([]interface{}{selectionID}, idArgs...)
	if _, err := tx.ExecContext(ctx, insertSQL, insertArgs...); err != nil {
		return nil, backendError(err, "unable to materialize selection", insertSQL)
	}

	if err := tx.Commit(); err != nil {
		return nil, wrapQueryError(err, "unable to commit selection")
	}

	logger.Info("created selection",
		zap.String("name", name),
		zap.Int("count", count),
	)

	return &Selection{ID: selectionID, Name: name, Count: count, Query: queryText}, nil
}

// CreateSelectionFromSpec materializes the variants a spec's source
// and filter select under a new name.
func (d *DB) CreateSelectionFromSpec(ctx context.Context, name string, spec varapi.QuerySpec) (*Selection, error) {
	if err := validateSelectionName(name); err != nil {
		return nil, err
	}

	catalog, err := d.Catalog(ctx)
	if err != nil {
		return nil, err
	}

	idSQL, idArgs, err := TranslateVariantIDs(spec, catalog)
	if err != nil {
		return nil, err
	}

	provenance, err := canonicaljson.Marshal(map[string]interface{}{
		"source": spec.GetSource(),
		"filter": spec.Filter,
	})
	if err != nil {
		return nil, wrapQueryError(err, "unable to encode selection provenance")
	}

	return d.createSelectionFromIDs(ctx, name, idSQL, idArgs, string(provenance))
}

// CreateSelectionFromSQL materializes a selection from a raw id
// query. The query must yield a column named id.
func (d *DB) CreateSelectionFromSQL(ctx context.Context, name, idSQL string) (*Selection, error) {
	if err := validateSelectionName(name); err != nil {
		return nil, err
	}
	return d.createSelectionFromIDs(ctx, name, idSQL, nil, idSQL)
}

// CreateSelectionFromBed materializes the variants of a source whose
// position falls inside any of the given intervals, both ends
// inclusive.
func (d *DB) CreateSelectionFromBed(ctx context.Context, name, source string, intervals []varapi.BedInterval) (*Selection, error) {
	if err := validateSelectionName(name); err != nil {
		return nil, err
	}
	if source == "" {
		source = varapi.DefaultSource
	}
	if len(intervals) == 0 {
		return nil, varerror.New(
			varerror.WithKind(varerror.KindBadInput),
			varerror.WithMessage("no intervals to select on"),
		)
	}

	var sb strings.Builder
	var args []interface{}

	sb.WriteString("SELECT DISTINCT `variants`.`id` FROM variants")
	if source != varapi.DefaultSource {
		sb.WriteString(selectionJoinSQL)
		args = append(args, source)
	}

	var conditions []string
	for _, interval := range intervals {
		conditions = append(conditions,
			"(`variants`.`chr` = ? AND `variants`.`pos` >= ? AND `variants`.`pos` <= ?)")
		args = append(args, interval.Chrom, interval.Start, interval.End)
	}
	sb.WriteString(" WHERE " + strings.Join(conditions, " OR "))

	queryText := fmt.Sprintf("bed:%d intervals on %s", len(intervals), source)
	return d.createSelectionFromIDs(ctx, name, sb.String(), args, queryText)
}

// operandIDs returns the id query of one set-operation operand: a
// named selection, or the built-in "variants" source.
func operandIDs(name string) (string, []interface{}) {
	if name == varapi.DefaultSource {
		return "SELECT id FROM variants", nil
	}
	return "SELECT sv.variant_id AS id FROM selection_has_variant sv" +
		" INNER JOIN selections s ON s.id = sv.selection_id AND s.name = ?", []interface{}{name}
}

func (d *DB) selectionSetOp(ctx context.Context, name, operator, a, b string) (*Selection, error) {
	if err := validateSelectionName(name); err != nil {
		return nil, err
	}

	leftSQL, leftArgs := operandIDs(a)
	rightSQL, rightArgs := operandIDs(b)

	idSQL := leftSQL + " " + operator + " " + rightSQL
	args := append(leftArgs, rightArgs...)

	queryText := fmt.Sprintf("%s %s %s", a, operator, b)
	return d.createSelectionFromIDs(ctx, name, idSQL, args, queryText)
}

// UnionSelections creates a selection holding the variants of either
// operand.
func (d *DB) UnionSelections(ctx context.Context, name, a, b string) (*Selection, error) {
	return d.selectionSetOp(ctx, name, "UNION", a, b)
}

// IntersectSelections creates a selection holding the variants common
// to both operands.
func (d *DB) IntersectSelections(ctx context.Context, name, a, b string) (*Selection, error) {
	return d.selectionSetOp(ctx, name, "INTERSECT", a, b)
}

// SubtractSelections creates a selection holding the variants of a
// that are not in b.
func (d *DB) SubtractSelections(ctx context.Context, name, a, b string) (*Selection, error) {
	return d.selectionSetOp(ctx, name, "EXCEPT", a, b)
}

// Selections lists all selections, the built-in "variants" row
// included, in creation order.
func (d *DB) Selections(ctx context.Context) ([]Selection, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT id, name, count, query FROM selections ORDER BY id
	`)
	if err != nil {
		return nil, wrapQueryError(err, "unable to query selections")
	}
	defer rows.Close()

	var rv []Selection
	for rows.Next() {
		var s Selection
		if err := rows.Scan(&s.ID, &s.Name, &s.Count, &s.Query); err != nil {
			return nil, wrapQueryError(err, "unable to scan selection row")
		}
		rv = append(rv, s)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapQueryError(err, "error iterating selections")
	}

	return rv, nil
}

// RenameSelection changes a selection's name. Neither side may be the
// built-in "variants" source.
func (d *DB) RenameSelection(ctx context.Context, oldName, newName string) error {
	if oldName == varapi.DefaultSource {
		return varerror.New(
			varerror.WithKind(varerror.KindBadInput),
			varerror.WithMessage("cannot rename the built-in source"),
			varerror.WithField(oldName),
		)
	}
	if err := validateSelectionName(newName); err != nil {
		return err
	}

	res, err := d.db.ExecContext(ctx, `
		UPDATE selections SET name = ? WHERE name = ?
	`, newName, oldName)
	if err != nil {
		return wrapQueryError(err, "unable to rename selection "+oldName)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return wrapQueryError(err, "unable to read rename result")
	}
	if affected == 0 {
		return varerror.New(
			varerror.WithKind(varerror.KindBadInput),
			varerror.WithMessage("no such selection"),
			varerror.WithField(oldName),
		)
	}

	return nil
}

// DeleteSelection removes a selection and its variant links. The
// built-in "variants" source cannot be deleted.
func (d *DB) DeleteSelection(ctx context.Context, name string) error {
	if name == varapi.DefaultSource {
		return varerror.New(
			varerror.WithKind(varerror.KindBadInput),
			varerror.WithMessage("cannot delete the built-in source"),
			varerror.WithField(name),
		)
	}

	res, err := d.db.ExecContext(ctx, `DELETE FROM selections WHERE name = ?`, name)
	if err != nil {
		return wrapQueryError(err, "unable to delete selection "+name)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return wrapQueryError(err, "unable to read delete result")
	}
	if affected == 0 {
		return varerror.New(
			varerror.WithKind(varerror.KindBadInput),
			varerror.WithMessage("no such selection"),
			varerror.WithField(name),
		)
	}

	return nil
}

// insertSelectionRecord registers a selection row without
// materializing links. The importer uses this for the built-in
// "variants" selection.
func (d *DB) insertSelectionRecord(ctx context.Context, name string, count int, queryText string) error {
	_, err := d.db.ExecContext(ctx, `
		INSERT INTO selections (name, count, query) VALUES (?, ?, ?)
	`, name, count, queryText)
	if err != nil {
		return wrapQueryError(err, "unable to insert selection "+name)
	}
	return nil
}
