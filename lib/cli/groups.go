package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"github.com/vardex/vardex/lib/pedwriter"
	"github.com/vardex/vardex/lib/reader"
	"github.com/vardex/vardex/lib/variantdb"
)

func mkSelectionCommandGroup(ctx context.Context, app *appEnv) *cobra.Command {
	selectionCmds := &cobra.Command{
		Use:   "selection",
		Short: "Manage named selections of variants",
	}

	var createFlags specFlags
	var rawSQL string
	createCmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a selection from a filter",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := app.runContext(ctx)

			d, _, err := app.openDB(ctx)
			if err != nil {
				return err
			}
			defer d.Close()

			var sel *variantdb.Selection
			if rawSQL != "" {
				sel, err = d.CreateSelectionFromSQL(ctx, args[0], rawSQL)
			} else {
				spec, specErr := createFlags.spec()
				if specErr != nil {
					return specErr
				}
				sel, err = d.CreateSelectionFromSpec(ctx, args[0], spec)
			}
			if err != nil {
				return err
			}

			fmt.Printf("Created selection %q with %s variants\n",
				sel.Name, humanize.Comma(int64(sel.Count)))
			return nil
		},
	}
	createFlags.registerFilter(createCmd)
	createCmd.Flags().StringVar(&rawSQL, "sql", "", "SQL returning variant ids, instead of a filter")
	selectionCmds.AddCommand(createCmd)

	var bedSource string
	fromBedCmd := &cobra.Command{
		Use:   "from-bed <name> <file.bed>",
		Short: "Create a selection from the intervals of a BED file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := app.runContext(ctx)

			f, err := os.Open(args[1])
			if err != nil {
				return err
			}
			defer f.Close()

			intervals, err := reader.ParseBed(f)
			if err != nil {
				return err
			}

			d, _, err := app.openDB(ctx)
			if err != nil {
				return err
			}
			defer d.Close()

			sel, err := d.CreateSelectionFromBed(ctx, args[0], bedSource, intervals)
			if err != nil {
				return err
			}

			fmt.Printf("Created selection %q with %s variants from %d intervals\n",
				sel.Name, humanize.Comma(int64(sel.Count)), len(intervals))
			return nil
		},
	}
	fromBedCmd.Flags().StringVar(&bedSource, "source", "", "selection to intersect with (default variants)")
	selectionCmds.AddCommand(fromBedCmd)

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List selections",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := app.runContext(ctx)

			d, _, err := app.openDB(ctx)
			if err != nil {
				return err
			}
			defer d.Close()

			selections, err := d.Selections(ctx)
			if err != nil {
				return err
			}

			rows := make([][]string, 0, len(selections))
			for _, sel := range selections {
				rows = append(rows, []string{
					sel.Name,
					humanize.Comma(int64(sel.Count)),
					sel.Query,
				})
			}
			renderTable(os.Stdout, []string{"name", "variants", "query"}, rows)
			return nil
		},
	}
	selectionCmds.AddCommand(listCmd)

	renameCmd := &cobra.Command{
		Use:   "rename <old> <new>",
		Short: "Rename a selection",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := app.runContext(ctx)

			d, _, err := app.openDB(ctx)
			if err != nil {
				return err
			}
			defer d.Close()

			return d.RenameSelection(ctx, args[0], args[1])
		},
	}
	selectionCmds.AddCommand(renameCmd)

	deleteCmd := &cobra.Command{
		Use:   "delete <name>",
		Short: "Delete a selection",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := app.runContext(ctx)

			d, _, err := app.openDB(ctx)
			if err != nil {
				return err
			}
			defer d.Close()

			return d.DeleteSelection(ctx, args[0])
		},
	}
	selectionCmds.AddCommand(deleteCmd)

	type selectionSetOp struct {
		use   string
		short string
		run   func(d *variantdb.DB, ctx context.Context, name, a, b string) (*variantdb.Selection, error)
	}
	for _, op := range []selectionSetOp{
		{"union", "Create a selection holding the variants of either operand", (*variantdb.DB).UnionSelections},
		{"intersect", "Create a selection holding the variants of both operands", (*variantdb.DB).IntersectSelections},
		{"subtract", "Create a selection holding the first operand's variants minus the second's", (*variantdb.DB).SubtractSelections},
	} {
		op := op
		setOpCmd := &cobra.Command{
			Use:   fmt.Sprintf("%s <name> <a> <b>", op.use),
			Short: op.short,
			Args:  cobra.ExactArgs(3),
			RunE: func(cmd *cobra.Command, args []string) error {
				ctx := app.runContext(ctx)

				d, _, err := app.openDB(ctx)
				if err != nil {
					return err
				}
				defer d.Close()

				sel, err := op.run(d, ctx, args[0], args[1], args[2])
				if err != nil {
					return err
				}

				fmt.Printf("Created selection %q with %s variants\n",
					sel.Name, humanize.Comma(int64(sel.Count)))
				return nil
			},
		}
		selectionCmds.AddCommand(setOpCmd)
	}

	return selectionCmds
}

func mkWordsetCommandGroup(ctx context.Context, app *appEnv) *cobra.Command {
	wordsetCmds := &cobra.Command{
		Use:   "wordset",
		Short: "Manage wordsets for IN-wordset filters",
	}

	importCmd := &cobra.Command{
		Use:   "import <name> [file]",
		Short: "Import words from a file, one per line",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := app.runContext(ctx)

			var in io.Reader = os.Stdin
			if len(args) == 2 && args[1] != "-" {
				f, err := os.Open(args[1])
				if err != nil {
					return err
				}
				defer f.Close()
				in = f
			}

			d, _, err := app.openDB(ctx)
			if err != nil {
				return err
			}
			defer d.Close()

			n, err := d.ImportWordset(ctx, args[0], in)
			if err != nil {
				return err
			}

			fmt.Printf("Imported %s words into wordset %q\n",
				humanize.Comma(int64(n)), args[0])
			return nil
		},
	}
	wordsetCmds.AddCommand(importCmd)

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List wordsets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := app.runContext(ctx)

			d, _, err := app.openDB(ctx)
			if err != nil {
				return err
			}
			defer d.Close()

			wordsets, err := d.Wordsets(ctx)
			if err != nil {
				return err
			}

			rows := make([][]string, 0, len(wordsets))
			for _, ws := range wordsets {
				rows = append(rows, []string{ws.Name, humanize.Comma(int64(ws.Count))})
			}
			renderTable(os.Stdout, []string{"name", "words"}, rows)
			return nil
		},
	}
	wordsetCmds.AddCommand(listCmd)

	showCmd := &cobra.Command{
		Use:   "show <name>",
		Short: "Print the words of a wordset",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := app.runContext(ctx)

			d, _, err := app.openDB(ctx)
			if err != nil {
				return err
			}
			defer d.Close()

			words, err := d.WordsetWords(ctx, args[0])
			if err != nil {
				return err
			}

			for _, word := range words {
				fmt.Println(word)
			}
			return nil
		},
	}
	wordsetCmds.AddCommand(showCmd)

	deleteCmd := &cobra.Command{
		Use:   "delete <name>",
		Short: "Delete a wordset",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := app.runContext(ctx)

			d, _, err := app.openDB(ctx)
			if err != nil {
				return err
			}
			defer d.Close()

			return d.DropWordset(ctx, args[0])
		},
	}
	wordsetCmds.AddCommand(deleteCmd)

	type wordsetSetOp struct {
		use   string
		short string
		run   func(d *variantdb.DB, ctx context.Context, dest, a, b string) (int, error)
	}
	for _, op := range []wordsetSetOp{
		{"union", "Store the union of two wordsets", (*variantdb.DB).UnionWordsets},
		{"intersect", "Store the intersection of two wordsets", (*variantdb.DB).IntersectWordsets},
		{"subtract", "Store the difference of two wordsets", (*variantdb.DB).SubtractWordsets},
	} {
		op := op
		setOpCmd := &cobra.Command{
			Use:   fmt.Sprintf("%s <dest> <a> <b>", op.use),
			Short: op.short,
			Args:  cobra.ExactArgs(3),
			RunE: func(cmd *cobra.Command, args []string) error {
				ctx := app.runContext(ctx)

				d, _, err := app.openDB(ctx)
				if err != nil {
					return err
				}
				defer d.Close()

				n, err := op.run(d, ctx, args[0], args[1], args[2])
				if err != nil {
					return err
				}

				fmt.Printf("Wordset %q now has %s words\n",
					args[0], humanize.Comma(int64(n)))
				return nil
			},
		}
		wordsetCmds.AddCommand(setOpCmd)
	}

	return wordsetCmds
}

func mkIndexCommandGroup(ctx context.Context, app *appEnv) *cobra.Command {
	indexCmds := &cobra.Command{
		Use:   "index",
		Short: "Manage field indexes",
	}

	createCmd := &cobra.Command{
		Use:   "create <category> <field>",
		Short: "Index a field to speed up filters on it",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := app.runContext(ctx)

			d, _, err := app.openDB(ctx)
			if err != nil {
				return err
			}
			defer d.Close()

			if err := d.CreateIndex(ctx, args[0], args[1]); err != nil {
				return err
			}
			fmt.Printf("Indexed %s field %q\n", args[0], args[1])
			return nil
		},
	}
	indexCmds.AddCommand(createCmd)

	removeCmd := &cobra.Command{
		Use:   "remove <category> <field>",
		Short: "Drop a field index",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := app.runContext(ctx)

			d, _, err := app.openDB(ctx)
			if err != nil {
				return err
			}
			defer d.Close()

			return d.RemoveIndex(ctx, args[0], args[1])
		},
	}
	indexCmds.AddCommand(removeCmd)

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List indexed fields",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := app.runContext(ctx)

			d, _, err := app.openDB(ctx)
			if err != nil {
				return err
			}
			defer d.Close()

			indexed, err := d.IndexedFields(ctx)
			if err != nil {
				return err
			}

			rows := make([][]string, 0, len(indexed))
			for _, field := range indexed {
				rows = append(rows, []string{field.Category, field.Name})
			}
			renderTable(os.Stdout, []string{"category", "field"}, rows)
			return nil
		},
	}
	indexCmds.AddCommand(listCmd)

	return indexCmds
}

func mkExportCommandGroup(ctx context.Context, app *appEnv) *cobra.Command {
	exportCmds := &cobra.Command{
		Use:   "export",
		Short: "Export database contents",
	}

	var pedOut string
	pedCmd := &cobra.Command{
		Use:   "ped",
		Short: "Export the sample pedigree as a PED file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := app.runContext(ctx)

			d, _, err := app.openDB(ctx)
			if err != nil {
				return err
			}
			defer d.Close()

			samples, err := d.Samples(ctx)
			if err != nil {
				return err
			}

			var out io.Writer = os.Stdout
			if pedOut != "" && pedOut != "-" {
				f, err := os.Create(pedOut)
				if err != nil {
					return err
				}
				defer f.Close()
				out = f
			}

			return pedwriter.Write(out, samples)
		},
	}
	pedCmd.Flags().StringVar(&pedOut, "out", "", "output file (default stdout)")
	exportCmds.AddCommand(pedCmd)

	return exportCmds
}
