package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/mcclellann/fredBilling/pkg/logger"
	"github.com/mcclellann/fredBilling/pkg/message"
	"github.com/mcclellann/fredBilling/pkg/report"
	"github.com/spf13/cobra"
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Print the operational report",
	Long: `Aggregate every contract as of today: capital outstanding, pending
interest, overdue amounts and what was received in the period.`,
	Example: `  # Monthly contracts, January
  billingctl report --payment-type monthly --from 2026-01-01 --to 2026-01-31

  # Full report as a spreadsheet
  billingctl report --xlsx relatorio.xlsx`,
	RunE: runReport,
}

var reportOpts struct {
	paymentType string
	from        string
	to          string
	xlsx        string
	json        bool
}

func runReport(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("report")

	f, err := report.ParseFilter(reportOpts.paymentType, reportOpts.from, reportOpts.to)
	if err != nil {
		return err
	}

	l, s, err := openLedger()
	if err != nil {
		return err
	}
	defer s.Close()

	rep, err := l.Report(f)
	if err != nil {
		return err
	}

	if reportOpts.xlsx != "" {
		if err := writeXLSX(reportOpts.xlsx, rep); err != nil {
			return err
		}
		log.Info().Str("file", reportOpts.xlsx).Int("rows", len(rep.Rows)).Msg("Report exported")
	}

	out := cmd.OutOrStdout()
	if reportOpts.json {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(rep)
	}
	printTotals(out, rep.Totals)
	return nil
}

func writeXLSX(path string, rep *report.Report) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer file.Close()

	if err := (report.XLSXRenderer{}).Render(file, rep); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return file.Close()
}

func printTotals(w io.Writer, t report.Totals) {
	fmt.Fprintf(w, "Contracts:             %d\n", t.ContractsConsidered)
	fmt.Fprintf(w, "Overdue contracts:     %d\n", t.OverdueContracts)
	fmt.Fprintf(w, "Capital outstanding:   %s\n", message.FormatBRL(t.CapitalOutstanding))
	fmt.Fprintf(w, "Pending interest:      %s\n", message.FormatBRL(t.PendingInterest))
	fmt.Fprintf(w, "Due in period:         %s\n", message.FormatBRL(t.AmountDueInRange))
	fmt.Fprintf(w, "Overdue:               %s\n", message.FormatBRL(t.OverdueAmount))
	fmt.Fprintf(w, "Received in period:    %s\n", message.FormatBRL(t.TotalReceivedInRange))
	fmt.Fprintf(w, "Realized profit:       %s\n", message.FormatBRL(t.RealizedProfitInRange))
	for _, sk := range t.Skipped {
		fmt.Fprintf(w, "Skipped %s: %s\n", sk.ContractID, sk.Reason)
	}
}

func init() {
	f := reportCmd.Flags()
	f.StringVar(&reportOpts.paymentType, "payment-type", "", "Only contracts with this frequency")
	f.StringVar(&reportOpts.from, "from", "", "Period start (YYYY-MM-DD, inclusive)")
	f.StringVar(&reportOpts.to, "to", "", "Period end (YYYY-MM-DD, inclusive)")
	f.StringVar(&reportOpts.xlsx, "xlsx", "", "Also write the report to this XLSX file")
	f.BoolVar(&reportOpts.json, "json", false, "Print the full report as JSON")

	rootCmd.AddCommand(reportCmd)
}
