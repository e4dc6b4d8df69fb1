package main

import (
	"fmt"
	"io"
	"time"

	"github.com/mcclellann/fredBilling/pkg/ledger"
	"github.com/mcclellann/fredBilling/pkg/message"
	"github.com/mcclellann/fredBilling/pkg/models"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Preview the quote and due dates for a set of terms",
	Long: `Compute total interest, the installment value and every due date for
the given terms without creating a contract.`,
	Example: `  # Five monthly installments at 10% per installment
  billingctl schedule --principal 1000 --rate 10 --mode per_installment --count 5 --first 2026-01-31

  # Daily interest-only collection
  billingctl schedule --principal 2000 --frequency daily --count 20 --installment-amount 30 --first 2026-02-02`,
	RunE: runSchedule,
}

var scheduleOpts struct {
	principal         string
	rate              string
	mode              string
	count             int
	frequency         string
	first             string
	installmentAmount string
}

func runSchedule(cmd *cobra.Command, args []string) error {
	in, err := scheduleInput()
	if err != nil {
		return err
	}
	p, err := ledger.PreviewSchedule(in)
	if err != nil {
		return err
	}
	printPreview(cmd.OutOrStdout(), p)
	return nil
}

func scheduleInput() (ledger.ContractInput, error) {
	in := ledger.ContractInput{
		InterestMode:     models.InterestMode(scheduleOpts.mode),
		InstallmentCount: scheduleOpts.count,
		Frequency:        models.Frequency(scheduleOpts.frequency),
	}
	var err error
	if in.Principal, err = decimal.NewFromString(scheduleOpts.principal); err != nil {
		return in, fmt.Errorf("invalid --principal: %w", err)
	}
	if in.InterestRate, err = decimal.NewFromString(scheduleOpts.rate); err != nil {
		return in, fmt.Errorf("invalid --rate: %w", err)
	}
	if in.FirstDueDate, err = time.ParseInLocation("2006-01-02", scheduleOpts.first, time.Local); err != nil {
		return in, fmt.Errorf("invalid --first, expected YYYY-MM-DD: %w", err)
	}
	if scheduleOpts.installmentAmount != "" {
		v, err := decimal.NewFromString(scheduleOpts.installmentAmount)
		if err != nil {
			return in, fmt.Errorf("invalid --installment-amount: %w", err)
		}
		in.InstallmentAmount = &v
	}
	return in, nil
}

func printPreview(w io.Writer, p *ledger.Preview) {
	fmt.Fprintf(w, "Total interest:    %s\n", message.FormatBRL(p.Quote.TotalInterest))
	fmt.Fprintf(w, "Installment value: %s\n", message.FormatBRL(p.Quote.InstallmentValue))
	fmt.Fprintf(w, "  principal:       %s\n", message.FormatBRL(p.Quote.PrincipalShare))
	fmt.Fprintf(w, "  interest:        %s\n", message.FormatBRL(p.Quote.InterestShare))
	fmt.Fprintln(w)
	for i, d := range p.DueDates {
		fmt.Fprintf(w, "%3d  %s\n", i+1, d.Format("02/01/2006"))
	}
}

func init() {
	f := scheduleCmd.Flags()
	f.StringVar(&scheduleOpts.principal, "principal", "", "Principal amount")
	f.StringVar(&scheduleOpts.rate, "rate", "0", "Interest rate in percent")
	f.StringVar(&scheduleOpts.mode, "mode", string(models.InterestPerInstallment), "Interest mode: per_installment, on_total or compound")
	f.IntVar(&scheduleOpts.count, "count", 1, "Number of installments")
	f.StringVar(&scheduleOpts.frequency, "frequency", string(models.FrequencyMonthly), "daily, weekly, biweekly, monthly or single")
	f.StringVar(&scheduleOpts.first, "first", "", "First due date (YYYY-MM-DD)")
	f.StringVar(&scheduleOpts.installmentAmount, "installment-amount", "", "Fixed installment value (daily contracts)")
	_ = scheduleCmd.MarkFlagRequired("principal")
	_ = scheduleCmd.MarkFlagRequired("first")

	rootCmd.AddCommand(scheduleCmd)
}
