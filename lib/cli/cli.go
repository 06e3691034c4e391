// Package cli implements the vardex command line tool.
package cli

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/mitchellh/go-homedir"
	"github.com/sethvargo/go-envconfig"
	"github.com/spf13/cobra"
	"github.com/vardex/vardex/lib/config"
	"github.com/vardex/vardex/lib/logging"
	"github.com/vardex/vardex/lib/reader"
	"github.com/vardex/vardex/lib/varapi"
	"github.com/vardex/vardex/lib/variantdb"
	"github.com/vardex/vardex/lib/version"
	"go.uber.org/zap"
)

const defaultConfigPath = "~/.config/vardex/vardex.yaml"

// cliEnv holds the environment defaults for the persistent flags.
type cliEnv struct {
	Database  string `env:"VARDEX_DB"`
	Config    string `env:"VARDEX_CONFIG"`
	Verbosity int    `env:"VARDEX_VERBOSITY,default=0"`
}

// appEnv is the shared state of all subcommands: the persistent flag
// values, resolved against the environment.
type appEnv struct {
	dbPath     string
	configPath string
	verbosity  int
}

func (app *appEnv) runContext(ctx context.Context) context.Context {
	return logging.WithLogger(ctx, zap.L())
}

// loadConfig reads the configured config file, falling back to the
// well-known path when it exists and to built-in defaults otherwise.
func (app *appEnv) loadConfig() (*config.Config, error) {
	if app.configPath != "" {
		return config.Load(app.configPath)
	}

	expanded, err := homedir.Expand(defaultConfigPath)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(expanded); err == nil {
		return config.Load(expanded)
	}

	return config.Default(), nil
}

func (app *appEnv) openDB(ctx context.Context) (*variantdb.DB, *config.Config, error) {
	if app.dbPath == "" {
		return nil, nil, fmt.Errorf("no database selected (pass --db or set VARDEX_DB)")
	}

	cfg, err := app.loadConfig()
	if err != nil {
		return nil, nil, err
	}

	d, err := variantdb.Open(ctx, variantdb.Params{
		Path:      app.dbPath,
		Verbosity: app.verbosity,
	}, cfg)
	if err != nil {
		return nil, nil, err
	}

	return d, cfg, nil
}

func initLogging(verbosity int) error {
	zapconfig := zap.NewDevelopmentConfig()
	if verbosity > 0 {
		zapconfig.Level.SetLevel(zap.DebugLevel)
	} else {
		zapconfig.Level.SetLevel(zap.InfoLevel)
	}

	logger, err := zapconfig.Build()
	if err != nil {
		return err
	}

	zap.ReplaceGlobals(logger)
	return nil
}

func mkInitCommand(ctx context.Context, app *appEnv) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create an empty variant database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := app.runContext(ctx)

			d, _, err := app.openDB(ctx)
			if err != nil {
				return err
			}
			defer d.Close()

			fmt.Printf("Initialized variant database at %s\n", d.Path())
			return nil
		},
	}
}

func mkImportCommand(ctx context.Context, app *appEnv) *cobra.Command {
	return &cobra.Command{
		Use:   "import [file.jsonl]",
		Short: "Import variant records from a JSONL stream",
		Long: `Import variant records from a JSONL stream.

Each line is one JSON object with the variant's own values at the top
level plus optional "annotations" and "samples" arrays. With no file
argument (or with "-") records are read from stdin. Fields and samples
are discovered from a prefix of the stream.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := app.runContext(ctx)

			var in io.Reader = os.Stdin
			if len(args) == 1 && args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				in = f
			}

			d, cfg, err := app.openDB(ctx)
			if err != nil {
				return err
			}
			defer d.Close()

			src, err := reader.NewJSONLReader(in, reader.JSONLOptions{
				MaxLineBytes:     cfg.Import.MaxLineBytes,
				AnnotationHeader: cfg.Annotations.Header,
				AnnotationSchema: cfg.AnnotationSchema(),
			})
			if err != nil {
				return err
			}

			result, err := d.ImportReader(ctx, src)
			if err != nil {
				return err
			}

			fmt.Printf("Imported %s variants in %s\n",
				humanize.Comma(int64(result.NumVariants)),
				result.Duration.Round(time.Millisecond))
			fmt.Printf("Annotations:  %s\n", humanize.Comma(int64(result.NumAnnotations)))
			fmt.Printf("Genotypes:    %s\n", humanize.Comma(int64(result.NumGenotypes)))
			fmt.Printf("Duplicates:   %s\n", humanize.Comma(int64(result.NumDuplicates)))
			fmt.Printf("Skipped:      %s\n", humanize.Comma(int64(result.NumSkipped)))
			fmt.Printf("Import ID:    %s\n", result.ImportID)
			if result.Failures != nil {
				fmt.Printf("Skipped records:\n%v\n", result.Failures)
			}
			return nil
		},
	}
}

func mkFieldsCommand(ctx context.Context, app *appEnv) *cobra.Command {
	var category string

	fieldsCmd := &cobra.Command{
		Use:   "fields",
		Short: "List the queryable fields of the database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := app.runContext(ctx)

			d, _, err := app.openDB(ctx)
			if err != nil {
				return err
			}
			defer d.Close()

			var fields []varapi.Field
			if category != "" {
				fields, err = d.FieldsByCategory(ctx, category)
			} else {
				fields, err = d.Fields(ctx)
			}
			if err != nil {
				return err
			}

			rows := make([][]string, 0, len(fields))
			for _, field := range fields {
				rows = append(rows, []string{
					field.Category, field.Name, field.Type, field.Description,
				})
			}
			renderTable(os.Stdout, []string{"category", "name", "type", "description"}, rows)
			return nil
		},
	}
	fieldsCmd.Flags().StringVar(&category, "category", "", "only list fields of this category")

	return fieldsCmd
}

func mkStatsCommand(ctx context.Context, app *appEnv) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show database statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := app.runContext(ctx)

			d, _, err := app.openDB(ctx)
			if err != nil {
				return err
			}
			defer d.Close()

			total, err := d.Count(ctx, varapi.QuerySpec{})
			if err != nil {
				return err
			}
			samples, err := d.Samples(ctx)
			if err != nil {
				return err
			}
			fields, err := d.Fields(ctx)
			if err != nil {
				return err
			}
			selections, err := d.Selections(ctx)
			if err != nil {
				return err
			}
			wordsets, err := d.Wordsets(ctx)
			if err != nil {
				return err
			}
			indexed, err := d.IndexedFields(ctx)
			if err != nil {
				return err
			}

			fmt.Printf("Database:    %s", d.Path())
			if fi, err := os.Stat(d.Path()); err == nil {
				fmt.Printf(" (%s)", humanize.IBytes(uint64(fi.Size())))
			}
			fmt.Println()
			fmt.Printf("Variants:    %s\n", humanize.Comma(int64(total)))
			fmt.Printf("Samples:     %d\n", len(samples))
			fmt.Printf("Fields:      %d\n", len(fields))
			fmt.Printf("Selections:  %d\n", len(selections))
			fmt.Printf("Wordsets:    %d\n", len(wordsets))
			fmt.Printf("Indexes:     %d\n", len(indexed))

			metadata, err := d.Metadata(ctx)
			if err != nil {
				return err
			}
			if importedAt := metadata["imported_at"]; importedAt != "" {
				fmt.Printf("Imported:    %s\n", importedAt)
			}

			grouped, err := d.GroupedCounts(ctx, varapi.QuerySpec{}, "chr")
			if err != nil {
				return err
			}
			if len(grouped) > 0 {
				fmt.Println("Per chromosome:")
				for _, group := range grouped {
					fmt.Printf("  %-10v %s\n", group.Value, humanize.Comma(int64(group.Count)))
				}
			}
			return nil
		},
	}
}

func Main() {
	ctx := context.Background()

	var env cliEnv
	if err := envconfig.Process(ctx, &env); err != nil {
		log.Fatal(err)
	}

	if err := initLogging(env.Verbosity); err != nil {
		log.Fatal(err)
	}
	defer func() {
		_ = zap.L().Sync()
	}()

	app := &appEnv{}

	var rootCmd = &cobra.Command{
		Use:   "vardex",
		Short: "Import, query, and curate genetic variant databases",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if app.verbosity != env.Verbosity {
				return initLogging(app.verbosity)
			}
			return nil
		},
	}
	rootCmd.PersistentFlags().StringVar(&app.dbPath, "db", env.Database, "path to the variant database file")
	rootCmd.PersistentFlags().StringVar(&app.configPath, "config", env.Config, "path to the config file")
	rootCmd.PersistentFlags().IntVarP(&app.verbosity, "verbosity", "v", env.Verbosity, "log verbosity (0 info, 1 debug, 2 includes sql)")

	var versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			build, err := version.Current()
			if err != nil {
				return err
			}

			fmt.Printf("Version:    %s\n", build)
			if build.Revision != "" {
				modifiedFlag := ""
				if build.Modified {
					modifiedFlag = " (modified)"
				}
				fmt.Printf("Revision:   %s%s\n", build.Revision, modifiedFlag)
				fmt.Printf("Committed:  %s\n", build.RevisionTime)
			}
			if build.Checksum != "" {
				fmt.Printf("Checksum:   sha256:%s\n", build.Checksum)
			}
			fmt.Printf("Go:         %s\n", build.GoVersion)

			return nil
		},
	}

	rootCmd.AddCommand(
		mkInitCommand(ctx, app),
		mkImportCommand(ctx, app),
		mkFieldsCommand(ctx, app),
		mkQueryCommand(ctx, app),
		mkCountCommand(ctx, app),
		mkShellCommand(ctx, app),
		mkSelectionCommandGroup(ctx, app),
		mkWordsetCommandGroup(ctx, app),
		mkIndexCommandGroup(ctx, app),
		mkExportCommandGroup(ctx, app),
		mkStatsCommand(ctx, app),
		versionCmd,
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
