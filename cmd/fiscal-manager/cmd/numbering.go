package cmd

import (
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/rezonia/fiscal-manager/internal/emitter"
	"github.com/rezonia/fiscal-manager/internal/model"
)

var (
	historyLimit int
	voidFrom     int64
	voidTo       int64
	voidReason   string
	issueSeries  int
	issueEnv     string
	issueTpEmis  int
)

var numberingCmd = &cobra.Command{
	Use:     "numbering",
	Aliases: []string{"seq"},
	Short:   "Manage document number sequences",
	Long: `Manage the number sequences of an emitter. A sequence is identified by
emitter, document type (nfe, nfce, cte, mdfe, nfse), environment (production
or homologation) and series. Numbers are never reused: once issued or voided
a number stays consumed.`,
}

var numberingListCmd = &cobra.Command{
	Use:   "list <emitter-id>",
	Short: "List the sequences of an emitter",
	Args:  cobra.ExactArgs(1),
	RunE:  runNumberingList,
}

var numberingConfigureCmd = &cobra.Command{
	Use:   "configure <emitter-id> <type> <environment> <series> <next-number>",
	Short: "Create a sequence or move it forward",
	Long: `Create a sequence starting at next-number, or move an existing one forward.
Moving a sequence backwards, or to a number already consumed, is rejected.

Examples:
  fiscal-manager numbering configure 1 nfe homologation 1 1
  fiscal-manager numbering configure 1 nfce production 2 1500`,
	Args: cobra.ExactArgs(5),
	RunE: runNumberingConfigure,
}

var numberingPeekCmd = &cobra.Command{
	Use:   "peek <emitter-id> <type> <environment> <series>",
	Short: "Show the next number without consuming it",
	Args:  cobra.ExactArgs(4),
	RunE:  runNumberingPeek,
}

var numberingHistoryCmd = &cobra.Command{
	Use:   "history <emitter-id> <type> <environment> <series>",
	Short: "Show the consumed numbers of a sequence, newest first",
	Args:  cobra.ExactArgs(4),
	RunE:  runNumberingHistory,
}

var numberingVoidCmd = &cobra.Command{
	Use:   "void <emitter-id> <type> <environment> <series>",
	Short: "Void (inutilizar) a range of unused numbers",
	Long: `Void a contiguous range of numbers that were never issued. The sequence
moves past the range when it reaches into the unused part.

Examples:
  fiscal-manager numbering void 1 nfe production 1 --from 120 --to 125 \
    --reason "falha no sistema emissor durante a emissao"`,
	Args: cobra.ExactArgs(4),
	RunE: runNumberingVoid,
}

var numberingIssueCmd = &cobra.Command{
	Use:   "issue <emitter-id> <type>",
	Short: "Reserve the next number and create the document",
	Long: `Reserve the next number of a sequence and create the reserved document with
its 44-digit access key. The environment defaults to the emitter's active one.

Examples:
  fiscal-manager numbering issue 1 nfe --series 1
  fiscal-manager numbering issue 1 nfce --series 2 --env homologation --emission-type 9`,
	Args: cobra.ExactArgs(2),
	RunE: runNumberingIssue,
}

func init() {
	rootCmd.AddCommand(numberingCmd)
	numberingCmd.AddCommand(numberingListCmd, numberingConfigureCmd, numberingPeekCmd,
		numberingHistoryCmd, numberingVoidCmd, numberingIssueCmd)

	numberingHistoryCmd.Flags().IntVar(&historyLimit, "limit", 50, "Maximum entries")

	numberingVoidCmd.Flags().Int64Var(&voidFrom, "from", 0, "First number of the range")
	numberingVoidCmd.Flags().Int64Var(&voidTo, "to", 0, "Last number of the range")
	numberingVoidCmd.Flags().StringVar(&voidReason, "reason", "", "Justification, 15 to 255 characters")
	_ = numberingVoidCmd.MarkFlagRequired("from")
	_ = numberingVoidCmd.MarkFlagRequired("to")
	_ = numberingVoidCmd.MarkFlagRequired("reason")

	numberingIssueCmd.Flags().IntVar(&issueSeries, "series", 1, "Series")
	numberingIssueCmd.Flags().StringVar(&issueEnv, "env", "", "Environment override")
	numberingIssueCmd.Flags().IntVar(&issueTpEmis, "emission-type", 0, "tpEmis, 1 (normal) when unset")
}

func parseEmitterID(raw string) (uint, error) {
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil || id == 0 {
		return 0, model.NewValidationError("emitter_id", raw, "numeric", "must be a positive number")
	}
	return uint(id), nil
}

func parseDocumentType(raw string) (model.DocumentType, error) {
	dt, ok := model.ParseDocumentType(raw)
	if !ok {
		return "", model.NewValidationError("document_type", raw, "oneof", "unknown document type")
	}
	return dt, nil
}

func parseEnvironment(raw string) (model.Environment, error) {
	env, ok := model.ParseEnvironment(raw)
	if !ok {
		return "", model.NewValidationError("environment", raw, "oneof", "must be production or homologation")
	}
	return env, nil
}

// parseSequenceKey reads <emitter-id> <type> <environment> <series>
func parseSequenceKey(args []string) (model.SequenceKey, error) {
	var key model.SequenceKey
	var err error
	if key.EmitterID, err = parseEmitterID(args[0]); err != nil {
		return key, err
	}
	if key.DocumentType, err = parseDocumentType(args[1]); err != nil {
		return key, err
	}
	if key.Environment, err = parseEnvironment(args[2]); err != nil {
		return key, err
	}
	if key.Series, err = strconv.Atoi(args[3]); err != nil {
		return key, model.NewValidationError("series", args[3], "numeric", "must be a number")
	}
	return key, key.Validate()
}

func runNumberingList(cmd *cobra.Command, args []string) error {
	id, err := parseEmitterID(args[0])
	if err != nil {
		return err
	}
	a, err := openApp(cmd.Context(), false)
	if err != nil {
		return err
	}
	defer a.Close()

	seqs, err := a.Emitters.Sequences(cmd.Context(), id)
	if err != nil {
		return err
	}
	return printSequences(cmd.OutOrStdout(), seqs)
}

func runNumberingConfigure(cmd *cobra.Command, args []string) error {
	key, err := parseSequenceKey(args[:4])
	if err != nil {
		return err
	}
	next, err := strconv.ParseInt(args[4], 10, 64)
	if err != nil {
		return model.NewValidationError("next_number", args[4], "numeric", "must be a number")
	}
	a, err := openApp(cmd.Context(), false)
	if err != nil {
		return err
	}
	defer a.Close()

	seq, err := a.Emitters.ConfigureSequence(cmd.Context(), key, next)
	if err != nil {
		return err
	}
	return printSequences(cmd.OutOrStdout(), []model.Sequence{*seq})
}

func runNumberingPeek(cmd *cobra.Command, args []string) error {
	key, err := parseSequenceKey(args)
	if err != nil {
		return err
	}
	a, err := openApp(cmd.Context(), false)
	if err != nil {
		return err
	}
	defer a.Close()

	seq, err := a.Emitters.Peek(cmd.Context(), key)
	if err != nil {
		return err
	}
	if outputFormat == "json" {
		return printJSON(cmd.OutOrStdout(), seq)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s next number: %d\n", key, seq.NextNumber)
	return nil
}

func runNumberingHistory(cmd *cobra.Command, args []string) error {
	key, err := parseSequenceKey(args)
	if err != nil {
		return err
	}
	a, err := openApp(cmd.Context(), false)
	if err != nil {
		return err
	}
	defer a.Close()

	entries, err := a.Emitters.History(cmd.Context(), key, historyLimit)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if outputFormat == "json" {
		return printJSON(out, entries)
	}
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NUMBER\tSTATUS\tWHEN\tREASON")
	fmt.Fprintln(tw, "------\t------\t----\t------")
	for _, e := range entries {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", e.Number, e.Status, e.CreatedAt.Format("2006-01-02 15:04:05"), e.Reason)
	}
	return tw.Flush()
}

func runNumberingVoid(cmd *cobra.Command, args []string) error {
	key, err := parseSequenceKey(args)
	if err != nil {
		return err
	}
	a, err := openApp(cmd.Context(), false)
	if err != nil {
		return err
	}
	defer a.Close()

	res, err := a.Emitters.Void(cmd.Context(), key, voidFrom, voidTo, voidReason)
	if err != nil {
		return err
	}
	if outputFormat == "json" {
		return printJSON(cmd.OutOrStdout(), res)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Voided %d number(s) %d-%d of %s; next number: %d\n",
		res.Count, res.From, res.To, res.Key, res.NextNumber)
	return nil
}

func runNumberingIssue(cmd *cobra.Command, args []string) error {
	id, err := parseEmitterID(args[0])
	if err != nil {
		return err
	}
	req := emitter.IssueRequest{Series: issueSeries, EmissionType: issueTpEmis}
	if req.DocumentType, err = parseDocumentType(args[1]); err != nil {
		return err
	}
	if issueEnv != "" {
		if req.Environment, err = parseEnvironment(issueEnv); err != nil {
			return err
		}
	}
	a, err := openApp(cmd.Context(), false)
	if err != nil {
		return err
	}
	defer a.Close()

	doc, err := a.Emitters.Issue(cmd.Context(), id, req)
	if err != nil {
		return err
	}
	if outputFormat == "json" {
		return printJSON(cmd.OutOrStdout(), doc)
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Document:   %s\n", doc.ID)
	fmt.Fprintf(out, "Type:       %s series %d (%s)\n", doc.DocumentType, doc.Series, doc.Environment)
	fmt.Fprintf(out, "Number:     %d\n", doc.Number)
	if doc.AccessKey != "" {
		fmt.Fprintf(out, "Access key: %s\n", doc.AccessKey)
	}
	fmt.Fprintf(out, "Status:     %s\n", doc.Status)
	return nil
}

func printSequences(w io.Writer, seqs []model.Sequence) error {
	if outputFormat == "json" {
		return printJSON(w, seqs)
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TYPE\tENVIRONMENT\tSERIES\tNEXT")
	fmt.Fprintln(tw, "----\t-----------\t------\t----")
	for _, s := range seqs {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\n", s.DocumentType, s.Environment, s.Series, s.NextNumber)
	}
	return tw.Flush()
}
