package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	dec "github.com/rezonia/fiscal-manager/internal/decimal"
	"github.com/rezonia/fiscal-manager/internal/model"
	"github.com/rezonia/fiscal-manager/pkg/fiscaldoc"
)

var (
	xsdPath     string
	checkSigned bool
)

var accessKeyArg = regexp.MustCompile(`^[0-9 ]{44,55}$`)

var inspectCmd = &cobra.Command{
	Use:   "inspect <file.xml|access-key>...",
	Short: "Show what a fiscal XML or access key contains",
	Long: `Decode 44-digit access keys, or parse NF-e, NFC-e, CT-e and MDF-e XML files
and report their identification, totals and authorization. With --xsd the
files are also validated against the schema; with --signature their
signatures are checked.

Examples:
  fiscal-manager inspect 35240511222333000181550010000001001234567890
  fiscal-manager inspect --xsd schemas/procNFe_v4.00.xsd ./xml/
  fiscal-manager inspect --signature --format json nota.xml`,
	Args: cobra.MinimumNArgs(1),
	RunE: runInspect,
}

// InspectResult is the outcome for one argument
type InspectResult struct {
	Input      string                `json:"input"`
	AccessKey  *fiscaldoc.AccessKey      `json:"access_key,omitempty"`
	Inspection *fiscaldoc.Inspection `json:"inspection,omitempty"`
	Error      string                `json:"error,omitempty"`
}

func init() {
	rootCmd.AddCommand(inspectCmd)

	inspectCmd.Flags().StringVar(&xsdPath, "xsd", "", "XSD to validate against (env: FISCAL_XSD_SCHEMA_PATH)")
	inspectCmd.Flags().BoolVar(&checkSigned, "signature", false, "Also verify signatures")
}

func runInspect(cmd *cobra.Command, args []string) error {
	var keys, paths []string
	for _, arg := range args {
		if accessKeyArg.MatchString(arg) {
			keys = append(keys, arg)
		} else {
			paths = append(paths, arg)
		}
	}

	var results []InspectResult
	for _, k := range keys {
		r := InspectResult{Input: k}
		parts, err := fiscaldoc.ParseAccessKey(strings.ReplaceAll(k, " ", ""))
		if err != nil {
			r.Error = err.Error()
		}
		r.AccessKey = parts
		results = append(results, r)
	}

	if len(paths) > 0 {
		files, err := collectXMLFiles(paths)
		if err != nil {
			return err
		}
		if xsdPath == "" {
			xsdPath = cfg.XSDSchemaPath
		}
		logger, err := newLogger()
		if err != nil {
			return err
		}
		inspector, err := fiscaldoc.NewInspector(fiscaldoc.Options{
			TrustRootsPath:   cfg.TrustRootsPath,
			XSDPath:          xsdPath,
			VerifySignatures: checkSigned,
			OCSPSoftFail:     cfg.OCSPSoftFail,
			Logger:           logger,
		})
		if err != nil {
			return err
		}
		defer inspector.Close()

		for _, file := range files {
			printVerbose("Inspecting: %s\n", file)
			r := InspectResult{Input: file}
			r.Inspection, err = inspectFile(cmd.Context(), inspector, file)
			if err != nil {
				r.Error = err.Error()
			}
			results = append(results, r)
		}
	}

	out := cmd.OutOrStdout()
	if outputFormat == "json" {
		if err := printJSON(out, results); err != nil {
			return err
		}
	} else {
		printInspectTable(out, results)
	}

	for _, r := range results {
		if r.Error != "" {
			return errors.New("some inputs could not be inspected")
		}
	}
	return nil
}

func inspectFile(ctx context.Context, inspector *fiscaldoc.Inspector, path string) (*fiscaldoc.Inspection, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return inspector.Inspect(ctx, f)
}

func printInspectTable(w io.Writer, results []InspectResult) {
	for _, r := range results {
		if r.Error != "" {
			fmt.Fprintf(w, "✗ %s\n  %s\n", r.Input, r.Error)
			continue
		}
		fmt.Fprintf(w, "✓ %s\n", r.Input)
		if p := r.AccessKey; p != nil {
			dt, _ := model.ParseDocumentType(strconv.Itoa(p.Model))
			fmt.Fprintf(w, "  UF code:  %d\n", p.UFCode)
			fmt.Fprintf(w, "  Issued:   %s\n", p.IssuedAt.Format("2006-01"))
			fmt.Fprintf(w, "  CNPJ:     %s\n", p.CNPJ)
			fmt.Fprintf(w, "  Model:    %d %s\n", p.Model, dt)
			fmt.Fprintf(w, "  Series:   %d\n", p.Series)
			fmt.Fprintf(w, "  Number:   %d\n", p.Number)
			fmt.Fprintf(w, "  tpEmis:   %d\n", p.EmissionType)
		}
		if in := r.Inspection; in != nil {
			printInspection(w, in)
		}
	}
}

func printInspection(w io.Writer, in *fiscaldoc.Inspection) {
	d := in.Document
	fmt.Fprintf(w, "  Type:     %s series %d number %d\n", d.DocumentType, d.Series, d.Number)
	fmt.Fprintf(w, "  Key:      %s\n", d.AccessKey)
	if d.IssuedAt != nil {
		fmt.Fprintf(w, "  Issued:   %s\n", d.IssuedAt.Format("2006-01-02 15:04:05"))
	}
	fmt.Fprintf(w, "  Emitter:  %s %s\n", d.EmitterCNPJ, d.EmitterName)
	if d.RecipientDoc != "" {
		fmt.Fprintf(w, "  Recipient: %s %s\n", d.RecipientDoc, d.RecipientName)
	}
	fmt.Fprintf(w, "  Total:    %s\n", dec.FormatBRL(d.Total))
	if d.Authorized {
		fmt.Fprintf(w, "  Authorized: protocol %s\n", d.Protocol)
	} else if d.StatusCode != "" {
		fmt.Fprintf(w, "  Status:   %s %s\n", d.StatusCode, d.StatusText)
	}
	if in.SchemaValid != nil {
		fmt.Fprintf(w, "  Schema:   %s\n", mark(*in.SchemaValid))
		for _, e := range in.SchemaErrors {
			fmt.Fprintf(w, "    ✗ %s\n", e)
		}
	}
	if in.Signature != nil {
		fmt.Fprintf(w, "  Signature: %s\n", mark(in.Signature.Valid))
	}
	for _, warn := range in.Warnings {
		fmt.Fprintf(w, "  ⚠ %s\n", warn)
	}
}
