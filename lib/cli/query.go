package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"github.com/vardex/vardex/lib/filterexpr"
	"github.com/vardex/vardex/lib/logging"
	"github.com/vardex/vardex/lib/varapi"
	"github.com/vardex/vardex/lib/variantdb"
	"github.com/vardex/vardex/lib/vql"
	"go.uber.org/zap"
)

// specFlags collects the flags that assemble a query spec. Commands
// register only the groups they accept.
type specFlags struct {
	fields  string
	source  string
	filter  string
	orderBy string
	limit   int
	offset  int
}

func (s *specFlags) registerFields(cmd *cobra.Command) {
	cmd.Flags().StringVar(&s.fields, "fields", "", "comma-separated fields to select")
}

func (s *specFlags) registerFilter(cmd *cobra.Command) {
	cmd.Flags().StringVar(&s.source, "source", "", "selection to read from (default variants)")
	cmd.Flags().StringVar(&s.filter, "filter", "", "filter expression as JSON")
}

func (s *specFlags) registerPage(cmd *cobra.Command) {
	cmd.Flags().StringVar(&s.orderBy, "order-by", "", "field to order by, prefix with - for descending")
	cmd.Flags().IntVar(&s.limit, "limit", 0, "page size")
	cmd.Flags().IntVar(&s.offset, "offset", 0, "number of rows to skip")
}

func (s *specFlags) spec() (varapi.QuerySpec, error) {
	rv := varapi.QuerySpec{
		Source: s.source,
		Limit:  s.limit,
		Offset: s.offset,
	}

	if s.fields != "" {
		for _, field := range strings.Split(s.fields, ",") {
			rv.Fields = append(rv.Fields, strings.TrimSpace(field))
		}
	}

	if s.filter != "" {
		filter, err := filterexpr.Parse([]byte(s.filter))
		if err != nil {
			return rv, err
		}
		rv.Filter = filter
	}

	if orderBy, err := parseOrderBy(s.orderBy); err != nil {
		return rv, err
	} else if orderBy != nil {
		rv.OrderBy = orderBy
	}

	return rv, nil
}

func parseOrderBy(s string) (*varapi.OrderBy, error) {
	if s == "" {
		return nil, nil
	}
	if field := strings.TrimPrefix(s, "-"); field != s {
		if field == "" {
			return nil, fmt.Errorf("empty order-by field")
		}
		return varapi.Descending(field), nil
	}
	return varapi.Ascending(s), nil
}

// saveLatestVQL records the VQL form of the last executed query in the
// project table, so the next session can pick up where this one ended.
func saveLatestVQL(ctx context.Context, d *variantdb.DB, spec varapi.QuerySpec) {
	text := vql.BuildVQLQuery(spec)
	if err := d.UpdateProject(ctx, map[string]string{"latest_vql_query": text}); err != nil {
		logging.FromContext(ctx).Warn("unable to record latest query", zap.Error(err))
	}
}

func mkQueryCommand(ctx context.Context, app *appEnv) *cobra.Command {
	var flags specFlags
	var asJSON bool
	var showVQL bool

	queryCmd := &cobra.Command{
		Use:   "query",
		Short: "Run a one-off variant query",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := app.runContext(ctx)

			spec, err := flags.spec()
			if err != nil {
				return err
			}

			if showVQL {
				fmt.Println(vql.BuildVQLQuery(spec))
				return nil
			}

			d, _, err := app.openDB(ctx)
			if err != nil {
				return err
			}
			defer d.Close()

			page, err := d.Query(ctx, spec)
			if err != nil {
				return err
			}
			saveLatestVQL(ctx, d, spec)

			if asJSON {
				enc := json.NewEncoder(os.Stdout)
				for _, row := range page.Rows {
					if err := enc.Encode(row); err != nil {
						return err
					}
				}
				return nil
			}

			renderPage(os.Stdout, page)
			fmt.Printf("%s rows\n", humanize.Comma(int64(len(page.Rows))))
			return nil
		},
	}
	flags.registerFields(queryCmd)
	flags.registerFilter(queryCmd)
	flags.registerPage(queryCmd)
	queryCmd.Flags().BoolVar(&asJSON, "json", false, "emit rows as JSON lines")
	queryCmd.Flags().BoolVar(&showVQL, "vql", false, "print the query in VQL form instead of running it")

	return queryCmd
}

func mkCountCommand(ctx context.Context, app *appEnv) *cobra.Command {
	var flags specFlags
	var groupBy string

	countCmd := &cobra.Command{
		Use:   "count",
		Short: "Count the variants matching a filter",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := app.runContext(ctx)

			spec, err := flags.spec()
			if err != nil {
				return err
			}

			d, _, err := app.openDB(ctx)
			if err != nil {
				return err
			}
			defer d.Close()

			if groupBy != "" {
				grouped, err := d.GroupedCounts(ctx, spec, groupBy)
				if err != nil {
					return err
				}
				rows := make([][]string, 0, len(grouped))
				for _, group := range grouped {
					rows = append(rows, []string{
						formatCell(group.Value),
						humanize.Comma(int64(group.Count)),
					})
				}
				renderTable(os.Stdout, []string{groupBy, "count"}, rows)
				return nil
			}

			n, err := d.Count(ctx, spec)
			if err != nil {
				return err
			}
			fmt.Println(humanize.Comma(int64(n)))
			return nil
		},
	}
	flags.registerFilter(countCmd)
	countCmd.Flags().StringVar(&groupBy, "group-by", "", "group counts by this field")

	return countCmd
}
