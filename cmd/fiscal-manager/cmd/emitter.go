package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/rezonia/fiscal-manager/internal/model"
	"github.com/rezonia/fiscal-manager/internal/repository"
)

var newEmitter model.Emitter

var emitterCmd = &cobra.Command{
	Use:   "emitter",
	Short: "Manage issuing companies",
}

var emitterListCmd = &cobra.Command{
	Use:   "list",
	Short: "List emitters",
	Args:  cobra.NoArgs,
	RunE:  runEmitterList,
}

var emitterCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Register an emitter",
	Long: `Register an issuing company. New emitters start in homologation.

Examples:
  fiscal-manager emitter create --cnpj 11.222.333/0001-81 --name "Comercial Exemplo LTDA" --uf SP --regime 3`,
	Args: cobra.NoArgs,
	RunE: runEmitterCreate,
}

var emitterEnvironmentCmd = &cobra.Command{
	Use:   "environment <emitter-id> <production|homologation>",
	Short: "Switch the active environment of an emitter",
	Args:  cobra.ExactArgs(2),
	RunE:  runEmitterEnvironment,
}

func init() {
	rootCmd.AddCommand(emitterCmd)
	emitterCmd.AddCommand(emitterListCmd, emitterCreateCmd, emitterEnvironmentCmd)

	f := emitterCreateCmd.Flags()
	f.StringVar(&newEmitter.CNPJ, "cnpj", "", "CNPJ")
	f.StringVar(&newEmitter.LegalName, "name", "", "Legal name (razão social)")
	f.StringVar(&newEmitter.TradeName, "trade-name", "", "Trade name")
	f.StringVar(&newEmitter.StateRegistration, "ie", "", "State registration")
	f.StringVar(&newEmitter.UF, "uf", "", "State")
	f.StringVar(&newEmitter.MunicipalityCode, "municipality", "", "IBGE municipality code")
	f.IntVar(&newEmitter.TaxRegime, "regime", model.RegimeSimplesNacional, "Tax regime (CRT) 1, 2 or 3")
	_ = emitterCreateCmd.MarkFlagRequired("cnpj")
	_ = emitterCreateCmd.MarkFlagRequired("name")
	_ = emitterCreateCmd.MarkFlagRequired("uf")
}

func runEmitterList(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd.Context(), false)
	if err != nil {
		return err
	}
	defer a.Close()

	page, err := a.Emitters.List(cmd.Context(), repository.ListQuery{PageSize: repository.MaxPageSize})
	if err != nil {
		return err
	}
	return printEmitters(cmd, page.Items)
}

func runEmitterCreate(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd.Context(), false)
	if err != nil {
		return err
	}
	defer a.Close()

	e := newEmitter
	if err := a.Emitters.Create(cmd.Context(), &e); err != nil {
		return err
	}
	return printEmitters(cmd, []model.Emitter{e})
}

func runEmitterEnvironment(cmd *cobra.Command, args []string) error {
	id, err := parseEmitterID(args[0])
	if err != nil {
		return err
	}
	env, err := parseEnvironment(args[1])
	if err != nil {
		return err
	}
	a, err := openApp(cmd.Context(), false)
	if err != nil {
		return err
	}
	defer a.Close()

	e, err := a.Emitters.SetEnvironment(cmd.Context(), id, env)
	if err != nil {
		return err
	}
	return printEmitters(cmd, []model.Emitter{*e})
}

func printEmitters(cmd *cobra.Command, emitters []model.Emitter) error {
	out := cmd.OutOrStdout()
	if outputFormat == "json" {
		return printJSON(out, emitters)
	}
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tCNPJ\tNAME\tUF\tENVIRONMENT")
	fmt.Fprintln(tw, "--\t----\t----\t--\t-----------")
	for _, e := range emitters {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", e.ID, e.CNPJ, e.LegalName, e.UF, e.Environment())
	}
	return tw.Flush()
}
