package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/mitchellh/go-homedir"
	"github.com/peterh/liner"
	"github.com/spf13/cobra"
	"github.com/vardex/vardex/lib/filterexpr"
	"github.com/vardex/vardex/lib/querymodel"
	"github.com/vardex/vardex/lib/varapi"
	"github.com/vardex/vardex/lib/variantdb"
	"github.com/vardex/vardex/lib/vql"
)

const historyFile = "~/.vardex_history"

const shellHelp = `Commands:
  select <f1,f2,...>   choose the fields to show
  from <source>        read from a selection (default variants)
  where <filter-json>  set the filter; bare "where" clears it
  order [-]<field>     sort by a field; bare "order" clears it
  limit <n>            set the page size
  next, prev           move one page
  first, last          jump to the first or last page
  page <n>             jump to a page
  show                 print the current page again
  count                print the number of matching variants
  vql                  print the current query in VQL form
  save <name>          save the current query as a selection
  selections           list selections
  help                 show this help
  exit, quit           leave the shell
`

func mkShellCommand(ctx context.Context, app *appEnv) *cobra.Command {
	return &cobra.Command{
		Use:   "shell",
		Short: "Browse the database interactively",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := app.runContext(ctx)

			d, cfg, err := app.openDB(ctx)
			if err != nil {
				return err
			}
			defer d.Close()

			return runShell(ctx, d, cfg.Query.DefaultLimit)
		},
	}
}

type shellSession struct {
	db    *variantdb.DB
	model *querymodel.Model
	out   io.Writer
}

func runShell(ctx context.Context, d *variantdb.DB, defaultLimit int) error {
	s := &shellSession{
		db:    d,
		model: querymodel.New(d),
		out:   os.Stdout,
	}

	unsubscribe := s.model.Subscribe(querymodel.ObserverFuncs{
		OnReset: func() { s.renderCurrentPage() },
	})
	defer unsubscribe()

	// The first load happens through whichever call runs first; SetLimit
	// is a no-op when the configured page size is the built-in default.
	if defaultLimit > 0 && defaultLimit != s.model.Limit() {
		if err := s.model.SetLimit(ctx, defaultLimit); err != nil {
			return err
		}
	}
	if s.model.State() == querymodel.Idle {
		if err := s.model.Refresh(ctx); err != nil {
			return err
		}
	}

	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)

	var histPath string
	if expanded, err := homedir.Expand(historyFile); err == nil {
		histPath = expanded
		if f, err := os.Open(histPath); err == nil {
			line.ReadHistory(f)
			f.Close()
		}
	}

	fmt.Fprintf(s.out, "Type 'help' for commands, 'exit' to leave.\n")

	for {
		input, err := line.Prompt("vardex> ")
		if err == liner.ErrPromptAborted || err == io.EOF {
			break
		}
		if err != nil {
			return err
		}

		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		line.AppendHistory(input)

		if s.execute(ctx, input) {
			break
		}
	}

	if histPath != "" {
		if f, err := os.Create(histPath); err == nil {
			line.WriteHistory(f)
			f.Close()
		}
	}

	return nil
}

func splitCommand(input string) (string, string) {
	parts := strings.SplitN(input, " ", 2)
	if len(parts) == 1 {
		return parts[0], ""
	}
	return parts[0], strings.TrimSpace(parts[1])
}

// execute runs one shell command, returning true when the session is
// over.
func (s *shellSession) execute(ctx context.Context, input string) bool {
	verb, rest := splitCommand(input)

	var err error
	queryChanged := false

	switch strings.ToLower(verb) {
	case "exit", "quit":
		return true
	case "help":
		fmt.Fprint(s.out, shellHelp)
	case "select":
		err = s.setFields(ctx, rest)
		queryChanged = true
	case "from":
		err = s.setSource(ctx, rest)
		queryChanged = true
	case "where":
		err = s.setFilter(ctx, rest)
		queryChanged = true
	case "order":
		err = s.setOrder(ctx, rest)
	case "limit":
		err = s.setLimit(ctx, rest)
	case "page":
		err = s.setPage(ctx, rest)
	case "next":
		err = s.model.NextPage(ctx)
	case "prev":
		err = s.model.PreviousPage(ctx)
	case "first":
		err = s.model.FirstPage(ctx)
	case "last":
		err = s.model.LastPage(ctx)
	case "show":
		s.renderCurrentPage()
	case "count":
		fmt.Fprintf(s.out, "%s variants\n", humanize.Comma(int64(s.model.Total())))
	case "vql":
		fmt.Fprintln(s.out, vql.BuildVQLQuery(s.model.Spec()))
	case "save":
		err = s.saveSelection(ctx, rest)
	case "selections":
		err = s.listSelections(ctx)
	default:
		fmt.Fprintf(s.out, "unknown command %q; type 'help'\n", verb)
	}

	if err != nil {
		fmt.Fprintf(s.out, "error: %v\n", err)
	} else if queryChanged {
		saveLatestVQL(ctx, s.db, s.model.Spec())
	}
	return false
}

func (s *shellSession) setFields(ctx context.Context, rest string) error {
	if rest == "" {
		return fmt.Errorf("select needs a field list")
	}

	var fields []string
	for _, field := range strings.Split(rest, ",") {
		if field = strings.TrimSpace(field); field != "" {
			fields = append(fields, field)
		}
	}
	return s.model.SetFields(ctx, fields)
}

func (s *shellSession) setSource(ctx context.Context, rest string) error {
	if rest == "" {
		rest = varapi.DefaultSource
	}
	return s.model.SetSource(ctx, rest)
}

func (s *shellSession) setFilter(ctx context.Context, rest string) error {
	if rest == "" {
		return s.model.SetFilter(ctx, nil)
	}

	filter, err := filterexpr.Parse([]byte(rest))
	if err != nil {
		return err
	}
	return s.model.SetFilter(ctx, filter)
}

func (s *shellSession) setOrder(ctx context.Context, rest string) error {
	orderBy, err := parseOrderBy(rest)
	if err != nil {
		return err
	}
	return s.model.SetOrderBy(ctx, orderBy)
}

func (s *shellSession) setLimit(ctx context.Context, rest string) error {
	n, err := strconv.Atoi(rest)
	if err != nil {
		return fmt.Errorf("limit needs a number")
	}
	return s.model.SetLimit(ctx, n)
}

func (s *shellSession) setPage(ctx context.Context, rest string) error {
	n, err := strconv.Atoi(rest)
	if err != nil {
		return fmt.Errorf("page needs a number")
	}
	if !s.model.HasPage(n - 1) {
		return fmt.Errorf("no page %d", n)
	}
	return s.model.SetPage(ctx, n-1)
}

func (s *shellSession) saveSelection(ctx context.Context, rest string) error {
	if rest == "" {
		return fmt.Errorf("save needs a selection name")
	}

	sel, err := s.db.CreateSelectionFromSpec(ctx, rest, s.model.Spec())
	if err != nil {
		return err
	}

	fmt.Fprintf(s.out, "saved selection %q with %s variants\n",
		sel.Name, humanize.Comma(int64(sel.Count)))
	return nil
}

func (s *shellSession) listSelections(ctx context.Context) error {
	selections, err := s.db.Selections(ctx)
	if err != nil {
		return err
	}

	rows := make([][]string, 0, len(selections))
	for _, sel := range selections {
		rows = append(rows, []string{sel.Name, humanize.Comma(int64(sel.Count))})
	}
	renderTable(s.out, []string{"name", "variants"}, rows)
	return nil
}

func (s *shellSession) renderCurrentPage() {
	if s.model.State() == querymodel.Error {
		fmt.Fprintf(s.out, "error: %v\n", s.model.Err())
		return
	}

	headers := s.model.Headers()
	rows := make([][]string, 0, s.model.RowCount())
	for i := 0; i < s.model.RowCount(); i++ {
		row := make([]string, 0, len(headers))
		for j := range headers {
			row = append(row, formatCell(s.model.Cell(i, j)))
		}
		rows = append(rows, row)
	}
	renderTable(s.out, headers, rows)

	pages := s.model.PageCount()
	if pages == 0 {
		pages = 1
	}
	first, last, total := s.model.Displayed()
	fmt.Fprintf(s.out, "page %d of %d, rows %d-%d of %s\n",
		s.model.Page()+1, pages, first, last, humanize.Comma(int64(total)))
}
