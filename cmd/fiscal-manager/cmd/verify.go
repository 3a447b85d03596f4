package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/rezonia/fiscal-manager/internal/signature"
	"github.com/rezonia/fiscal-manager/pkg/fiscaldoc"
)

var (
	rootsPath string
	softFail  bool
)

var verifyCmd = &cobra.Command{
	Use:   "verify <file.xml|dir|glob>...",
	Short: "Verify the XML-DSig signatures of fiscal documents",
	Long: `Verify the signatures of NF-e, NFC-e, CT-e and MDF-e XML files: the
signature itself, the ICP-Brasil certificate chain and the OCSP status.

Examples:
  fiscal-manager verify 35240511222333000181550010000001001234567890-procNFe.xml
  fiscal-manager verify --roots /etc/icp-brasil ./xml/
  fiscal-manager verify --soft-fail --format json "*.xml"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runVerify,
}

// VerifyResult is the outcome for one file
type VerifyResult struct {
	File string `json:"file"`
	*signature.Result
	Error string `json:"error,omitempty"`
}

func init() {
	rootCmd.AddCommand(verifyCmd)

	verifyCmd.Flags().StringVar(&rootsPath, "roots", "", "PEM file or directory with trusted CAs (env: FISCAL_TRUST_ROOTS)")
	verifyCmd.Flags().BoolVar(&softFail, "soft-fail", false, "Treat OCSP responder failures as warnings")
}

func runVerify(cmd *cobra.Command, args []string) error {
	files, err := collectXMLFiles(args)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return errors.New("no files found to verify")
	}

	if rootsPath == "" {
		rootsPath = cfg.TrustRootsPath
	}
	logger, err := newLogger()
	if err != nil {
		return err
	}
	inspector, err := fiscaldoc.NewInspector(fiscaldoc.Options{
		TrustRootsPath: rootsPath,
		OCSPSoftFail:   softFail || cfg.OCSPSoftFail,
		Logger:         logger,
	})
	if err != nil {
		return err
	}
	defer inspector.Close()

	results := make([]VerifyResult, 0, len(files))
	allValid := true
	for _, file := range files {
		printVerbose("Verifying: %s\n", file)

		r := VerifyResult{File: file}
		r.Result, err = verifyFile(cmd.Context(), inspector, file)
		if err != nil {
			r.Error = err.Error()
		}
		if r.Result == nil || !r.Valid {
			allValid = false
		}
		results = append(results, r)
	}

	out := cmd.OutOrStdout()
	if outputFormat == "json" {
		if err := printJSON(out, results); err != nil {
			return err
		}
	} else {
		printVerifyTable(out, results)
	}

	if !allValid {
		return errors.New("verification failed for some files")
	}
	return nil
}

func verifyFile(ctx context.Context, inspector *fiscaldoc.Inspector, path string) (*signature.Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return inspector.Verify(ctx, f)
}

func printVerifyTable(w io.Writer, results []VerifyResult) {
	for _, r := range results {
		if r.Result == nil {
			fmt.Fprintf(w, "✗ %s: ERROR\n  %s\n", r.File, r.Error)
			continue
		}
		status := "VALID"
		if !r.Valid {
			status = "INVALID"
		}
		fmt.Fprintf(w, "%s %s: %s\n", mark(r.Valid), r.File, status)

		if r.DocumentType != "" {
			fmt.Fprintf(w, "  Type:   %s\n", r.DocumentType)
		}
		if r.Reference != "" {
			fmt.Fprintf(w, "  Ref:    %s\n", r.Reference)
		}
		if r.Signer != nil {
			fmt.Fprintf(w, "  Signer: %s\n", r.Signer.Name)
			if r.Signer.Document != "" {
				fmt.Fprintf(w, "  Doc:    %s\n", r.Signer.Document)
			}
			if r.Signer.Issuer != "" {
				fmt.Fprintf(w, "  Issuer: %s\n", r.Signer.Issuer)
			}
		}
		if r.SignedAt != nil {
			fmt.Fprintf(w, "  Signed: %s\n", r.SignedAt.Format(time.RFC3339))
		}
		if r.SignatureFound {
			fmt.Fprintf(w, "  Signature:   %s\n", mark(r.SignatureValid))
			fmt.Fprintf(w, "  Cert Chain:  %s\n", mark(r.CertChainValid))
			fmt.Fprintf(w, "  Not Revoked: %s\n", mark(r.NotRevoked))
		}
		for _, e := range r.Errors {
			fmt.Fprintf(w, "  ✗ %s\n", e)
		}
		for _, warn := range r.Warnings {
			fmt.Fprintf(w, "  ⚠ %s\n", warn)
		}
	}
}
