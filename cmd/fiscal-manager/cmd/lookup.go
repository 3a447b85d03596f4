package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/rezonia/fiscal-manager/internal/lookup"
	"github.com/rezonia/fiscal-manager/internal/model"
)

var saveAs string

var lookupCmd = &cobra.Command{
	Use:   "lookup",
	Short: "Look up CNPJ registrations and CEP addresses",
}

var lookupCNPJCmd = &cobra.Command{
	Use:   "cnpj <cnpj>",
	Short: "Fetch the registration of a CNPJ",
	Long: `Fetch the public registration of a CNPJ. With --save the company is
registered as a client or supplier.

Examples:
  fiscal-manager lookup cnpj 11.222.333/0001-81
  fiscal-manager lookup cnpj 11222333000181 --save client`,
	Args: cobra.ExactArgs(1),
	RunE: runLookupCNPJ,
}

var lookupCEPCmd = &cobra.Command{
	Use:   "cep <cep>",
	Short: "Resolve a CEP to an address",
	Args:  cobra.ExactArgs(1),
	RunE:  runLookupCEP,
}

func init() {
	rootCmd.AddCommand(lookupCmd)
	lookupCmd.AddCommand(lookupCNPJCmd, lookupCEPCmd)

	lookupCNPJCmd.Flags().StringVar(&saveAs, "save", "", "Register the company as client or supplier")
}

func runLookupCNPJ(cmd *cobra.Command, args []string) error {
	switch saveAs {
	case "", "client", "supplier":
	default:
		return fmt.Errorf("--save must be client or supplier, got %q", saveAs)
	}

	a, err := openApp(cmd.Context(), saveAs != "")
	if err != nil {
		return err
	}
	defer a.Close()

	company, err := a.Lookup.CNPJ(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	var saved interface{}
	switch saveAs {
	case "client":
		cl := &model.Client{Party: company.Party()}
		if err := a.Catalog.CreateClient(cmd.Context(), cl); err != nil {
			return err
		}
		saved = cl
		printVerbose("Registered client %d\n", cl.ID)
	case "supplier":
		sp := &model.Supplier{Party: company.Party()}
		if err := a.Catalog.CreateSupplier(cmd.Context(), sp); err != nil {
			return err
		}
		saved = sp
		printVerbose("Registered supplier %d\n", sp.ID)
	}

	out := cmd.OutOrStdout()
	if outputFormat == "json" {
		if saved != nil {
			return printJSON(out, saved)
		}
		return printJSON(out, company)
	}
	fmt.Fprintf(out, "CNPJ:       %s\n", company.CNPJ)
	fmt.Fprintf(out, "Legal name: %s\n", company.LegalName)
	if company.TradeName != "" {
		fmt.Fprintf(out, "Trade name: %s\n", company.TradeName)
	}
	if company.Status != "" {
		fmt.Fprintf(out, "Status:     %s\n", company.Status)
	}
	if company.SimplesNacional != nil {
		fmt.Fprintf(out, "Simples:    %t\n", *company.SimplesNacional)
	}
	printAddress(out, company.Address)
	if saved != nil {
		fmt.Fprintf(out, "Saved as %s\n", saveAs)
	}
	return nil
}

func runLookupCEP(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd.Context(), false)
	if err != nil {
		return err
	}
	defer a.Close()

	addr, err := a.Lookup.CEP(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	if outputFormat == "json" {
		return printJSON(cmd.OutOrStdout(), addr)
	}
	printAddress(cmd.OutOrStdout(), *addr)
	return nil
}

func printAddress(w io.Writer, a lookup.Address) {
	fmt.Fprintf(w, "CEP:        %s\n", a.CEP)
	if a.Street != "" {
		fmt.Fprintf(w, "Street:     %s %s %s\n", a.Street, a.Number, a.Complement)
	}
	if a.District != "" {
		fmt.Fprintf(w, "District:   %s\n", a.District)
	}
	fmt.Fprintf(w, "City:       %s/%s", a.City, a.UF)
	if a.MunicipalityCode != "" {
		fmt.Fprintf(w, " (IBGE %s)", a.MunicipalityCode)
	}
	fmt.Fprintln(w)
}
