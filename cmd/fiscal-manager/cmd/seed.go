package cmd

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/rezonia/fiscal-manager/internal/seed"
)

var (
	seedSource string
	seedForce  bool
	seedTables []string
	csvLatin1  bool
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Load the reference tables",
	Long: `Load the reference tables (states, municipalities, CFOP, CST, CSOSN, NCM,
payment methods). Tables that already hold rows are skipped unless --force.

The source is the data embedded in the binary, a directory with one JSON file
per table, or an http(s) URL serving the same files.

Examples:
  fiscal-manager seed
  fiscal-manager seed --tables ncm,cfop --force
  fiscal-manager seed --source https://example.com/fiscal-reference`,
	Args: cobra.NoArgs,
	RunE: runSeed,
}

var seedMunicipalitiesCmd = &cobra.Command{
	Use:   "municipalities <file.csv>",
	Short: "Import the full IBGE municipality list from CSV",
	Long: `Import municipalities from a semicolon-separated file with a header row
holding code, name and uf. IBGE exports are Latin-1 encoded; pass --latin1.

Examples:
  fiscal-manager seed municipalities DTB_2024_Municipio.csv --latin1`,
	Args: cobra.ExactArgs(1),
	RunE: runSeedMunicipalities,
}

func init() {
	rootCmd.AddCommand(seedCmd)
	seedCmd.AddCommand(seedMunicipalitiesCmd)

	seedCmd.Flags().StringVar(&seedSource, "source", "", "Directory or URL with the table files (env: FISCAL_SEED_SOURCE_URL)")
	seedCmd.Flags().BoolVar(&seedForce, "force", false, "Reload tables that already have rows")
	seedCmd.Flags().StringSliceVar(&seedTables, "tables", nil, "Only these tables")
	seedMunicipalitiesCmd.Flags().BoolVar(&csvLatin1, "latin1", false, "Decode the file as ISO-8859-1")
}

func runSeed(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd.Context(), true)
	if err != nil {
		return err
	}
	defer a.Close()

	results, err := a.Seeder(seedSource, seedForce).Seed(cmd.Context(), seedTables...)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if outputFormat == "json" {
		return printJSON(out, results)
	}
	return printSeedTable(out, results)
}

func printSeedTable(w io.Writer, results []seed.Result) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TABLE\tROWS\tSTATUS")
	fmt.Fprintln(tw, "-----\t----\t------")
	for _, r := range results {
		status := "loaded"
		if r.Skipped {
			status = "skipped"
		}
		fmt.Fprintf(tw, "%s\t%d\t%s\n", r.Table, r.Loaded, status)
	}
	return tw.Flush()
}

func runSeedMunicipalities(cmd *cobra.Command, args []string) error {
	f, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer f.Close()

	a, err := openApp(cmd.Context(), true)
	if err != nil {
		return err
	}
	defer a.Close()

	n, err := seed.ImportMunicipalitiesCSV(cmd.Context(), a.DB, f, csvLatin1)
	if err != nil {
		return fmt.Errorf("import %s: %w", args[0], err)
	}
	if outputFormat == "json" {
		return printJSON(cmd.OutOrStdout(), seed.Result{Table: "municipality", Loaded: n})
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Imported %d municipalities from %s\n", n, args[0])
	return nil
}
