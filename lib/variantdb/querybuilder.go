package variantdb

import (
	"fmt"
	"strings"

	"github.com/vardex/vardex/lib/filterexpr"
	"github.com/vardex/vardex/lib/varapi"
	"github.com/vardex/vardex/lib/varerror"
)

// CompiledQuery is the executable form of a QuerySpec: a row query, an
// independent count query, and the output column names in select
// order. All values are bound through placeholders.
type CompiledQuery struct {
	SQL       string
	Args      []interface{}
	CountSQL  string
	CountArgs []interface{}
	Columns   []string
}

// joinScope tracks which joins one part of the query (select list,
// where clause, order clause) pulls in. The count query only carries
// the filter's joins.
type joinScope struct {
	needAnnotations bool
	samples         []string
	seenSamples     map[string]bool
}

func (s *joinScope) addSample(name string) {
	if s.seenSamples == nil {
		s.seenSamples = map[string]bool{}
	}
	if s.seenSamples[name] {
		return
	}
	s.seenSamples[name] = true
	s.samples = append(s.samples, name)
}

type queryBuilder struct {
	catalog *Catalog
	source  string

	fieldScope  joinScope
	filterScope joinScope
	orderScope  joinScope

	selectCols []string
	columns    []string

	whereSQL  string
	whereArgs []interface{}

	orderSQL string

	limit  int
	offset int
}

// Translate compiles a query spec against a catalog. It is a pure
// function: no store access, and the same inputs always produce the
// same SQL and arguments.
func Translate(spec varapi.QuerySpec, catalog *Catalog) (*CompiledQuery, error) {
	if err := spec.Filter.Validate(); err != nil {
		return nil, err
	}

	b := &queryBuilder{
		catalog: catalog,
		source:  spec.GetSource(),
		limit:   spec.GetLimit(),
		offset:  spec.Offset,
	}

	if err := b.addFields(spec.GetFields()); err != nil {
		return nil, err
	}
	if err := b.setFilter(spec.Filter); err != nil {
		return nil, err
	}
	if err := b.setOrderBy(spec.OrderBy); err != nil {
		return nil, err
	}

	return b.build(), nil
}

func fieldResolutionError(message, field string) error {
	return varerror.New(
		varerror.WithKind(varerror.KindFieldResolution),
		varerror.WithMessage(message),
		varerror.WithField(field),
	)
}

// splitSampleField takes "samples.<name>.<field>" apart; sample names
// may themselves contain dots, so the field is the last segment.
func splitSampleField(name string) (sampleName, fieldName string, ok bool) {
	parts := strings.Split(name, ".")
	if len(parts) < 3 || parts[0] != "samples" {
		return "", "", false
	}
	return strings.Join(parts[1:len(parts)-1], "."), parts[len(parts)-1], true
}

func isWildcardSampleField(name string) bool {
	sampleName, _, ok := splitSampleField(name)
	return ok && sampleName == "*"
}

// resolveField resolves a dot-addressed field name against the catalog
// and returns its SQL expression, registering any join the reference
// needs in the given scope. Wildcard sample fields are expanded by the
// callers, never resolved here.
func (b *queryBuilder) resolveField(name string, scope *joinScope) (string, error) {
	if strings.ContainsAny(name, "`'\"") {
		return "", fieldResolutionError("invalid character in field name", name)
	}

	switch {
	case strings.HasPrefix(name, "ann."):
		bare := strings.TrimPrefix(name, "ann.")
		if _, ok := b.catalog.AnnotationField(bare); !ok {
			return "", fieldResolutionError("unknown annotation field", name)
		}
		scope.needAnnotations = true
		return "`annotations`.`" + bare + "`", nil

	case strings.HasPrefix(name, "samples."):
		sampleName, fieldName, ok := splitSampleField(name)
		if !ok {
			return "", fieldResolutionError("malformed sample field", name)
		}
		if _, ok := b.catalog.SampleField(fieldName); !ok {
			return "", fieldResolutionError("unknown sample field", name)
		}
		if sampleName == "*" {
			return "", fieldResolutionError("wildcard sample field not allowed here", name)
		}
		if _, ok := b.catalog.SampleID(sampleName); !ok {
			return "", fieldResolutionError("unknown sample", name)
		}
		scope.addSample(sampleName)
		return "`sample_" + sampleName + "`.`" + fieldName + "`", nil

	default:
		if _, ok := b.catalog.VariantField(name); !ok {
			return "", fieldResolutionError("unknown field", name)
		}
		return "`variants`.`" + name + "`", nil
	}
}

func (b *queryBuilder) addFields(fields []string) error {
	seen := map[string]bool{}

	for _, name := range fields {
		if seen[name] {
			return varerror.New(
				varerror.WithKind(varerror.KindBadInput),
				varerror.WithMessage("duplicate field in field list"),
				varerror.WithField(name),
			)
		}
		seen[name] = true

		if isWildcardSampleField(name) {
			_, fieldName, _ := splitSampleField(name)
			if _, ok := b.catalog.SampleField(fieldName); !ok {
				return fieldResolutionError("unknown sample field", name)
			}
			for _, sampleName := range b.catalog.SampleNames() {
				concrete := "samples." + sampleName + "." + fieldName
				expr, err := b.resolveField(concrete, &b.fieldScope)
				if err != nil {
					return err
				}
				b.selectCols = append(b.selectCols, expr+" AS `"+concrete+"`")
				b.columns = append(b.columns, concrete)
			}
			continue
		}

		expr, err := b.resolveField(name, &b.fieldScope)
		if err != nil {
			return err
		}

		// Annotation and sample columns carry their dot-addressed name
		// as an alias; plain variant columns do not need one.
		if strings.HasPrefix(name, "ann.") || strings.HasPrefix(name, "samples.") {
			expr += " AS `" + name + "`"
		}
		b.selectCols = append(b.selectCols, expr)
		b.columns = append(b.columns, name)
	}

	return nil
}

func (b *queryBuilder) setFilter(f *filterexpr.Filter) error {
	if f == nil || f.IsEmpty() {
		return nil
	}

	whereSQL, whereArgs, err := b.filterToSQL(f)
	if err != nil {
		return err
	}

	b.whereSQL = whereSQL
	b.whereArgs = whereArgs
	return nil
}

func (b *queryBuilder) filterToSQL(f *filterexpr.Filter) (string, []interface{}, error) {
	if f.IsLeaf() {
		return b.conditionToSQL(f)
	}

	switch f.Comb {
	case filterexpr.CombAnd, filterexpr.CombOr:
		joiner := " AND "
		if f.Comb == filterexpr.CombOr {
			joiner = " OR "
		}

		var parts []string
		var args []interface{}
		for _, child := range f.Children {
			childSQL, childArgs, err := b.filterToSQL(child)
			if err != nil {
				return "", nil, err
			}
			parts = append(parts, childSQL)
			args = append(args, childArgs...)
		}

		return "(" + strings.Join(parts, joiner) + ")", args, nil

	case filterexpr.CombNot:
		childSQL, childArgs, err := b.filterToSQL(f.Children[0])
		if err != nil {
			return "", nil, err
		}
		if !strings.HasPrefix(childSQL, "(") {
			childSQL = "(" + childSQL + ")"
		}
		return "NOT " + childSQL, childArgs, nil

	default:
		return "", nil, varerror.New(
			varerror.WithKind(varerror.KindMalformedFilter),
			varerror.WithMessage("unknown combinator: "+string(f.Comb)),
		)
	}
}

func (b *queryBuilder) conditionToSQL(f *filterexpr.Filter) (string, []interface{}, error) {
	op := f.Op
	if op == "" {
		op = filterexpr.OpEq
	}

	// A wildcard sample condition fans out into one condition per
	// known sample, joined by AND.
	if isWildcardSampleField(f.Field) {
		_, fieldName, _ := splitSampleField(f.Field)
		if _, ok := b.catalog.SampleField(fieldName); !ok {
			return "", nil, fieldResolutionError("unknown sample field", f.Field)
		}

		names := b.catalog.SampleNames()
		if len(names) == 0 {
			return "", nil, fieldResolutionError("no samples to expand wildcard against", f.Field)
		}

		var parts []string
		var args []interface{}
		for _, sampleName := range names {
			expr, err := b.resolveField("samples."+sampleName+"."+fieldName, &b.filterScope)
			if err != nil {
				return "", nil, err
			}
			condSQL, condArgs, err := renderComparison(expr, op, f.Value)
			if err != nil {
				return "", nil, err
			}
			parts = append(parts, condSQL)
			args = append(args, condArgs...)
		}

		return "(" + strings.Join(parts, " AND ") + ")", args, nil
	}

	expr, err := b.resolveField(f.Field, &b.filterScope)
	if err != nil {
		return "", nil, err
	}

	return renderComparison(expr, op, f.Value)
}

// regexSpecials are the pattern metacharacters whose absence lets a
// $regex run as a plain substring LIKE instead of the regexp function.
const regexSpecials = "[]+.?*()^$"

func renderComparison(expr string, op filterexpr.Op, value interface{}) (string, []interface{}, error) {
	malformed := func(message string) error {
		return varerror.New(
			varerror.WithKind(varerror.KindMalformedFilter),
			varerror.WithMessage(message),
		)
	}

	switch op {
	case filterexpr.OpEq, filterexpr.OpNe:
		if value == nil {
			if op == filterexpr.OpEq {
				return expr + " IS NULL", nil, nil
			}
			return expr + " IS NOT NULL", nil, nil
		}
		sqlOp := "="
		if op == filterexpr.OpNe {
			sqlOp = "!="
		}
		return expr + " " + sqlOp + " ?", []interface{}{value}, nil

	case filterexpr.OpGt:
		return expr + " > ?", []interface{}{value}, nil
	case filterexpr.OpGte:
		return expr + " >= ?", []interface{}{value}, nil
	case filterexpr.OpLt:
		return expr + " < ?", []interface{}{value}, nil
	case filterexpr.OpLte:
		return expr + " <= ?", []interface{}{value}, nil

	case filterexpr.OpIn, filterexpr.OpNotIn:
		keyword := "IN"
		if op == filterexpr.OpNotIn {
			keyword = "NOT IN"
		}

		if wordset, ok := value.(filterexpr.Wordset); ok {
			return expr + " " + keyword + " (SELECT value FROM wordsets WHERE name = ?)",
				[]interface{}{string(wordset)}, nil
		}

		list, ok := toInterfaceList(value)
		if !ok {
			return "", nil, malformed(string(op) + " requires a list or a wordset reference")
		}

		// Membership in an empty list is vacuously false, and
		// non-membership vacuously true.
		if len(list) == 0 {
			if op == filterexpr.OpIn {
				return "1 = 0", nil, nil
			}
			return "1 = 1", nil, nil
		}

		placeholders := strings.Repeat("?,", len(list))
		placeholders = placeholders[:len(placeholders)-1]
		return expr + " " + keyword + " (" + placeholders + ")", list, nil

	case filterexpr.OpHas:
		if value == nil {
			return "", nil, malformed("$has requires a value")
		}
		element := fmt.Sprintf("%v", value)
		return "',' || " + expr + " || ',' LIKE ?", []interface{}{"%," + element + ",%"}, nil

	case filterexpr.OpRegex:
		pattern, ok := value.(string)
		if !ok {
			return "", nil, malformed("$regex requires a string pattern")
		}
		if !strings.ContainsAny(pattern, regexSpecials) {
			return expr + " LIKE ?", []interface{}{"%" + pattern + "%"}, nil
		}
		return expr + " REGEXP ?", []interface{}{pattern}, nil

	default:
		return "", nil, malformed("unknown operator: " + string(op))
	}
}

func toInterfaceList(value interface{}) ([]interface{}, bool) {
	switch list := value.(type) {
	case []interface{}:
		return list, true
	case []string:
		rv := make([]interface{}, len(list))
		for i, v := range list {
			rv[i] = v
		}
		return rv, true
	case []int:
		rv := make([]interface{}, len(list))
		for i, v := range list {
			rv[i] = v
		}
		return rv, true
	case []int64:
		rv := make([]interface{}, len(list))
		for i, v := range list {
			rv[i] = v
		}
		return rv, true
	default:
		return nil, false
	}
}

func (b *queryBuilder) setOrderBy(orderBy *varapi.OrderBy) error {
	if orderBy == nil || orderBy.Field == "" {
		return nil
	}

	if isWildcardSampleField(orderBy.Field) {
		return fieldResolutionError("cannot order by a wildcard sample field", orderBy.Field)
	}

	expr, err := b.resolveField(orderBy.Field, &b.orderScope)
	if err != nil {
		return err
	}

	direction := "ASC"
	if orderBy.Descending {
		direction = "DESC"
	}
	b.orderSQL = " ORDER BY " + expr + " " + direction

	return nil
}

func sampleJoinSQL(name string) string {
	alias := "`sample_" + name + "`"
	return " INNER JOIN sample_has_variant " + alias +
		" ON " + alias + ".variant_id = variants.id AND " + alias + ".sample_id = ?"
}

const (
	annotationJoinSQL = " LEFT JOIN annotations ON annotations.variant_id = variants.id"
	selectionJoinSQL  = " INNER JOIN selection_has_variant sv ON sv.variant_id = variants.id" +
		" INNER JOIN selections s ON s.id = sv.selection_id AND s.name = ?"
)

// unionSamples merges the sample joins of several scopes, preserving
// first-reference order.
func unionSamples(scopes ...joinScope) []string {
	var rv []string
	seen := map[string]bool{}
	for _, scope := range scopes {
		for _, name := range scope.samples {
			if seen[name] {
				continue
			}
			seen[name] = true
			rv = append(rv, name)
		}
	}
	return rv
}

func (b *queryBuilder) build() *CompiledQuery {
	var sb strings.Builder
	var args []interface{}

	cols := append([]string{"`variants`.`id`"}, b.selectCols...)
	sb.WriteString("SELECT DISTINCT " + strings.Join(cols, ","))
	sb.WriteString(" FROM variants")

	if b.fieldScope.needAnnotations || b.filterScope.needAnnotations || b.orderScope.needAnnotations {
		sb.WriteString(annotationJoinSQL)
	}

	if b.source != varapi.DefaultSource {
		sb.WriteString(selectionJoinSQL)
		args = append(args, b.source)
	}

	for _, name := range unionSamples(b.fieldScope, b.filterScope, b.orderScope) {
		id, _ := b.catalog.SampleID(name)
		sb.WriteString(sampleJoinSQL(name))
		args = append(args, id)
	}

	if b.whereSQL != "" {
		sb.WriteString(" WHERE " + b.whereSQL)
		args = append(args, b.whereArgs...)
	}

	sb.WriteString(b.orderSQL)
	fmt.Fprintf(&sb, " LIMIT %d OFFSET %d", b.limit, b.offset)

	countSQL, countArgs := b.buildCount()

	return &CompiledQuery{
		SQL:       sb.String(),
		Args:      args,
		CountSQL:  countSQL,
		CountArgs: countArgs,
		Columns:   append([]string{"id"}, b.columns...),
	}
}

// buildIDs builds the query selecting the distinct ids of the
// variants the source and filter select. It only carries the joins
// the filter and source need; selected fields cannot change which
// variants match.
func (b *queryBuilder) buildIDs() (string, []interface{}) {
	var sb strings.Builder
	var args []interface{}

	sb.WriteString("SELECT DISTINCT `variants`.`id` FROM variants")

	if b.filterScope.needAnnotations {
		sb.WriteString(annotationJoinSQL)
	}

	if b.source != varapi.DefaultSource {
		sb.WriteString(selectionJoinSQL)
		args = append(args, b.source)
	}

	for _, name := range b.filterScope.samples {
		id, _ := b.catalog.SampleID(name)
		sb.WriteString(sampleJoinSQL(name))
		args = append(args, id)
	}

	if b.whereSQL != "" {
		sb.WriteString(" WHERE " + b.whereSQL)
		args = append(args, b.whereArgs...)
	}

	return sb.String(), args
}

func (b *queryBuilder) buildCount() (string, []interface{}) {
	if b.whereSQL == "" && b.source == varapi.DefaultSource {
		return "SELECT COUNT(*) AS count FROM variants", nil
	}

	inner, args := b.buildIDs()
	return "SELECT COUNT(*) AS count FROM (" + inner + ")", args
}

// TranslateVariantIDs compiles the id query for a spec's source and
// filter: one column named id, one row per matching variant.
func TranslateVariantIDs(spec varapi.QuerySpec, catalog *Catalog) (string, []interface{}, error) {
	if err := spec.Filter.Validate(); err != nil {
		return "", nil, err
	}

	b := &queryBuilder{
		catalog: catalog,
		source:  spec.GetSource(),
	}
	if err := b.setFilter(spec.Filter); err != nil {
		return "", nil, err
	}

	idSQL, args := b.buildIDs()
	return idSQL, args, nil
}

// TranslateGroupedCounts compiles a query counting distinct variants
// per value of groupBy, under the spec's source and filter.
func TranslateGroupedCounts(spec varapi.QuerySpec, catalog *Catalog, groupBy string) (*CompiledQuery, error) {
	if err := spec.Filter.Validate(); err != nil {
		return nil, err
	}

	b := &queryBuilder{
		catalog: catalog,
		source:  spec.GetSource(),
	}

	if isWildcardSampleField(groupBy) {
		return nil, fieldResolutionError("cannot group by a wildcard sample field", groupBy)
	}

	expr, err := b.resolveField(groupBy, &b.fieldScope)
	if err != nil {
		return nil, err
	}

	if err := b.setFilter(spec.Filter); err != nil {
		return nil, err
	}

	var sb strings.Builder
	var args []interface{}

	sb.WriteString("SELECT DISTINCT `variants`.`id`," + expr + " AS `value` FROM variants")

	if b.fieldScope.needAnnotations || b.filterScope.needAnnotations {
		sb.WriteString(annotationJoinSQL)
	}

	if b.source != varapi.DefaultSource {
		sb.WriteString(selectionJoinSQL)
		args = append(args, b.source)
	}

	for _, name := range unionSamples(b.fieldScope, b.filterScope) {
		id, _ := b.catalog.SampleID(name)
		sb.WriteString(sampleJoinSQL(name))
		args = append(args, id)
	}

	if b.whereSQL != "" {
		sb.WriteString(" WHERE " + b.whereSQL)
		args = append(args, b.whereArgs...)
	}

	outer := "SELECT `value`, COUNT(*) AS count FROM (" + sb.String() + ") GROUP BY `value` ORDER BY count DESC"

	return &CompiledQuery{
		SQL:     outer,
		Args:    args,
		Columns: []string{"value", "count"},
	}, nil
}
