package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/sarchlab/circuitid/datarecording"
	"github.com/spf13/cobra"
)

var reportCmd = &cobra.Command{
	Use:   "report <recording.sqlite3>",
	Short: "Print what a recorded check found.",
	Long: "`report <recording.sqlite3>` reads a database written by " +
		"`check --record` and prints the population layout, the connection " +
		"rules and the diagnostics of that run.",
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		kind, _ := cmd.Flags().GetString("kind")

		return printRecording(cmd.Context(), cmd.OutOrStdout(), args[0], kind)
	},
}

func init() {
	rootCmd.AddCommand(reportCmd)
	reportCmd.Flags().String("kind", "",
		"Only print the diagnostics of this kind, such as ZeroWeightUnused")
}

func printRecording(
	ctx context.Context,
	out io.Writer,
	path string,
	kind string,
) error {
	// Opening a missing file would create an empty database.
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("reading the recording: %w", err)
	}

	reader, err := datarecording.NewReader(path)
	if err != nil {
		return err
	}
	defer reader.Close()

	reader.MapTable(datarecording.TableLayout, datarecording.LayoutRow{})
	reader.MapTable(datarecording.TableRules, datarecording.RuleRow{})
	reader.MapTable(datarecording.TableDiagnostics, datarecording.DiagnosticRow{})

	layout, _, err := reader.Query(ctx, datarecording.TableLayout,
		datarecording.QueryParams{OrderBy: "Offset"})
	if err != nil {
		return err
	}

	fmt.Fprintln(out, "Population layout:")
	for _, e := range layout {
		row := e.(*datarecording.LayoutRow)
		fmt.Fprintf(out, "%s::%d::%d\n", row.Population, row.Offset, row.MaxRawID)
	}

	rules, _, err := reader.Query(ctx, datarecording.TableRules,
		datarecording.QueryParams{})
	if err != nil {
		return err
	}

	fmt.Fprintln(out, "Connection rules:")
	for _, e := range rules {
		printRuleRow(out, e.(*datarecording.RuleRow))
	}

	params := datarecording.QueryParams{OrderBy: "Seq"}
	if kind != "" {
		params.Where = "Kind = ?"
		params.Args = []any{kind}
	}

	diagnostics, total, err := reader.Query(ctx,
		datarecording.TableDiagnostics, params)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "Diagnostics: %d\n", total)
	for _, e := range diagnostics {
		row := e.(*datarecording.DiagnosticRow)
		fmt.Fprintf(out, "  %s [%s] %s: %s\n",
			row.Level, row.Kind, row.Rule, row.Message)
	}

	return nil
}

func printRuleRow(out io.Writer, row *datarecording.RuleRow) {
	fmt.Fprintf(out, "  %s: %s -> %s, weight %g, delay %g",
		row.Name, row.Source, row.Destination, row.Weight, row.Delay)

	if row.Overrides != "" {
		fmt.Fprintf(out, ", overrides %s", row.Overrides)
	}

	if row.FullyOverridden {
		fmt.Fprint(out, ", fully overridden")
	}

	fmt.Fprintln(out)
}
