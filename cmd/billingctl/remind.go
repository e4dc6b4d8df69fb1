package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/mcclellann/fredBilling/pkg/notify"
	"github.com/spf13/cobra"
)

var remindCmd = &cobra.Command{
	Use:   "remind",
	Short: "Run one reminder pass now",
	Long: `Send collection reminders for every active contract that is overdue or
due within REMINDER_DAYS_BEFORE days. Messages go to WEBHOOK_URL; with
--dry-run, or when no webhook is configured, they are only logged.`,
	RunE: runRemind,
}

var remindOpts struct {
	dryRun     bool
	daysBefore int
}

func runRemind(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	l, s, err := openLedger()
	if err != nil {
		return err
	}
	defer s.Close()

	var sender notify.Sender = notify.LogSender{}
	if !remindOpts.dryRun && cfg.WebhookURL != "" {
		sender = notify.NewWebhookSender(cfg.WebhookURL)
	}

	days := cfg.ReminderDaysBefore
	if cmd.Flags().Changed("days-before") {
		days = remindOpts.daysBefore
	}

	d := notify.NewDispatcher(s, sender, cfg.MessageConfig(), days)
	res, err := d.RunOnce(ctx, l.Today())
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "considered %d, sent %d, failed %d, skipped %d\n",
		res.Considered, res.Sent, res.Failed, res.Skipped)
	if res.Failed > 0 {
		return fmt.Errorf("%d reminders failed", res.Failed)
	}
	return nil
}

func init() {
	remindCmd.Flags().BoolVar(&remindOpts.dryRun, "dry-run", false, "Log messages instead of sending them")
	remindCmd.Flags().IntVar(&remindOpts.daysBefore, "days-before", 0, "Override REMINDER_DAYS_BEFORE")

	rootCmd.AddCommand(remindCmd)
}
