// Package querymodel owns the current query parameters and one cached
// page of results: a paginated, sortable view over the variant store
// that UI layers can subscribe to. Fetches run synchronously on the
// calling goroutine; a fetch either fully replaces the cached page or
// fully fails and keeps the previous rows.
package querymodel

import (
	"context"

	"github.com/vardex/vardex/lib/filterexpr"
	"github.com/vardex/vardex/lib/varapi"
	"github.com/vardex/vardex/lib/varerror"
)

// State is the model's fetch state.
type State int

const (
	Idle State = iota
	Loading
	Loaded
	Error
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Loading:
		return "loading"
	case Loaded:
		return "loaded"
	case Error:
		return "error"
	default:
		return "unknown"
	}
}

// Store is the backing query executor. The model only ever hands it
// compiled-spec inputs; it never touches storage itself.
type Store interface {
	Query(ctx context.Context, spec varapi.QuerySpec) (*varapi.Page, error)
	Count(ctx context.Context, spec varapi.QuerySpec) (int, error)
}

// Observer receives model notifications, synchronously, on the
// goroutine that triggered the change. AboutToReset and Reset bracket
// an atomic replacement of the cached rows; Changed fires when query
// parameters are updated, independent of fetch completion.
type Observer interface {
	AboutToReset()
	Reset()
	Changed()
}

// ObserverFuncs adapts plain callbacks to the Observer interface. Nil
// callbacks are skipped.
type ObserverFuncs struct {
	OnAboutToReset func()
	OnReset        func()
	OnChanged      func()
}

func (o ObserverFuncs) AboutToReset() {
	if o.OnAboutToReset != nil {
		o.OnAboutToReset()
	}
}

func (o ObserverFuncs) Reset() {
	if o.OnReset != nil {
		o.OnReset()
	}
}

func (o ObserverFuncs) Changed() {
	if o.OnChanged != nil {
		o.OnChanged()
	}
}

// Model is the paginated result model. It is not safe for concurrent
// use; callers own the synchronization, as they own the store
// connection.
type Model struct {
	store Store

	fields  []string
	source  string
	filter  *filterexpr.Filter
	orderBy *varapi.OrderBy
	limit   int
	page    int

	state State
	err   error

	rows    []varapi.Row
	headers []string
	total   int

	observers map[int]Observer
	nextSub   int
}

// New builds an idle model with the default field list, source, and
// page size. Nothing is fetched until the first setter or Refresh.
func New(store Store) *Model {
	return &Model{
		store:     store,
		fields:    append([]string{}, varapi.DefaultFields...),
		source:    varapi.DefaultSource,
		limit:     varapi.DefaultLimit,
		observers: map[int]Observer{},
	}
}

// Subscribe registers an observer and returns its unsubscribe
// function.
func (m *Model) Subscribe(observer Observer) func() {
	id := m.nextSub
	m.nextSub++
	m.observers[id] = observer
	return func() {
		delete(m.observers, id)
	}
}

func (m *Model) notifyAboutToReset() {
	for _, observer := range m.observers {
		observer.AboutToReset()
	}
}

func (m *Model) notifyReset() {
	for _, observer := range m.observers {
		observer.Reset()
	}
}

func (m *Model) notifyChanged() {
	for _, observer := range m.observers {
		observer.Changed()
	}
}

// State reports the current fetch state.
func (m *Model) State() State { return m.state }

// Err returns the error of the last failed fetch, nil after a
// successful one.
func (m *Model) Err() error { return m.err }

// Total returns the row count of the current query, as of its last
// count fetch.
func (m *Model) Total() int { return m.total }

// Page returns the current zero-based page number.
func (m *Model) Page() int { return m.page }

// PageCount returns how many pages the current total spans.
func (m *Model) PageCount() int {
	if m.total <= 0 {
		return 0
	}
	return (m.total + m.limit - 1) / m.limit
}

// Displayed returns the one-based ordinals of the first and last rows
// on the cached page, plus the total row count. An empty page reports
// first and last as zero.
func (m *Model) Displayed() (first, last, total int) {
	if len(m.rows) == 0 {
		return 0, 0, m.total
	}
	first = m.page*m.limit + 1
	return first, first + len(m.rows) - 1, m.total
}

func (m *Model) Fields() []string           { return append([]string{}, m.fields...) }
func (m *Model) Source() string             { return m.source }
func (m *Model) Filter() *filterexpr.Filter { return m.filter }
func (m *Model) OrderBy() *varapi.OrderBy   { return m.orderBy }
func (m *Model) Limit() int                 { return m.limit }

// RowCount returns the number of rows in the cached page.
func (m *Model) RowCount() int { return len(m.rows) }

// ColumnCount returns the number of headers. Headers survive empty
// pages, so this can be non-zero while RowCount is zero.
func (m *Model) ColumnCount() int { return len(m.headers) }

// Header returns the column name at the given position.
func (m *Model) Header(col int) string {
	if col < 0 || col >= len(m.headers) {
		return ""
	}
	return m.headers[col]
}

// Headers returns all column names in select order.
func (m *Model) Headers() []string {
	return append([]string{}, m.headers...)
}

// Cell returns the value at the given row and column of the cached
// page, nil when out of range.
func (m *Model) Cell(row, col int) interface{} {
	if row < 0 || row >= len(m.rows) || col < 0 || col >= len(m.headers) {
		return nil
	}
	return m.rows[row][m.headers[col]]
}

// Row returns one cached row, nil when out of range.
func (m *Model) Row(row int) varapi.Row {
	if row < 0 || row >= len(m.rows) {
		return nil
	}
	return m.rows[row]
}

// Spec returns the model's current query parameters as a QuerySpec.
func (m *Model) Spec() varapi.QuerySpec {
	return varapi.QuerySpec{
		Fields:  append([]string{}, m.fields...),
		Source:  m.source,
		Filter:  m.filter,
		OrderBy: m.orderBy,
		Limit:   m.limit,
		Offset:  m.page * m.limit,
	}
}

func stringsEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func orderByEqual(a, b *varapi.OrderBy) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// SetFields replaces the selected field list and reloads. Setting the
// current value is a no-op.
func (m *Model) SetFields(ctx context.Context, fields []string) error {
	if stringsEqual(m.fields, fields) {
		return nil
	}
	m.fields = append([]string{}, fields...)
	m.notifyChanged()
	return m.load(ctx, true)
}

// SetSource changes the queried source and reloads from its first
// page.
func (m *Model) SetSource(ctx context.Context, source string) error {
	if source == "" {
		source = varapi.DefaultSource
	}
	if m.source == source {
		return nil
	}
	m.source = source
	m.page = 0
	m.notifyChanged()
	return m.load(ctx, true)
}

// SetFilter replaces the filter tree and reloads from the first page.
func (m *Model) SetFilter(ctx context.Context, filter *filterexpr.Filter) error {
	if filterexpr.Equal(m.filter, filter) {
		return nil
	}
	m.filter = filter
	m.page = 0
	m.notifyChanged()
	return m.load(ctx, true)
}

// SetOrderBy changes the ordering and reloads. A nil order restores
// the store's natural order.
func (m *Model) SetOrderBy(ctx context.Context, orderBy *varapi.OrderBy) error {
	if orderByEqual(m.orderBy, orderBy) {
		return nil
	}
	m.orderBy = orderBy
	m.notifyChanged()
	return m.load(ctx, true)
}

// SetLimit changes the page size and reloads from the first page.
func (m *Model) SetLimit(ctx context.Context, limit int) error {
	if limit <= 0 {
		err := varerror.New(
			varerror.WithKind(varerror.KindBadInput),
			varerror.WithMessage("page size must be positive"),
		)
		m.state = Error
		m.err = err
		return err
	}
	if m.limit == limit {
		return nil
	}
	m.limit = limit
	m.page = 0
	m.notifyChanged()
	return m.load(ctx, true)
}

// Refresh re-runs the current query and count against the store.
func (m *Model) Refresh(ctx context.Context) error {
	return m.load(ctx, true)
}

// HasPage reports whether a page number falls inside the current
// total. It is deliberately defensive: the total may be stale
// relative to the store.
func (m *Model) HasPage(page int) bool {
	return page >= 0 && page*m.limit < m.total
}

func (m *Model) lastPage() int {
	if m.total <= 0 {
		return 0
	}
	return (m.total - 1) / m.limit
}

// SetPage moves to a page. Out-of-bounds requests are silently
// rejected: no state change, no error. Page moves reuse the known
// total rather than re-counting.
func (m *Model) SetPage(ctx context.Context, page int) error {
	if page == m.page {
		return nil
	}
	if !m.HasPage(page) {
		return nil
	}
	m.page = page
	return m.load(ctx, false)
}

// FirstPage moves to page zero.
func (m *Model) FirstPage(ctx context.Context) error {
	return m.SetPage(ctx, 0)
}

// NextPage moves one page forward if there is one.
func (m *Model) NextPage(ctx context.Context) error {
	return m.SetPage(ctx, m.page+1)
}

// PreviousPage moves one page back if there is one.
func (m *Model) PreviousPage(ctx context.Context) error {
	return m.SetPage(ctx, m.page-1)
}

// LastPage moves to the final page of the current total.
func (m *Model) LastPage(ctx context.Context) error {
	return m.SetPage(ctx, m.lastPage())
}

// load fetches the current page, and the total when the query itself
// changed. On failure the model keeps its previous rows and surfaces
// the classified error through the Error state.
func (m *Model) load(ctx context.Context, refreshTotal bool) error {
	m.state = Loading

	spec := m.Spec()

	page, err := m.store.Query(ctx, spec)
	if err != nil {
		return m.fail(err)
	}

	if refreshTotal {
		total, err := m.store.Count(ctx, spec)
		if err != nil {
			return m.fail(err)
		}
		m.total = total
	}

	m.notifyAboutToReset()
	m.rows = page.Rows
	if len(page.Rows) > 0 {
		m.headers = page.Columns
	}
	m.err = nil
	m.state = Loaded
	m.notifyReset()

	return nil
}

func (m *Model) fail(err error) error {
	classified := varerror.AsVardexError(err)
	m.err = classified
	m.state = Error
	return classified
}
