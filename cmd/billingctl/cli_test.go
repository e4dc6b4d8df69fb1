package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mcclellann/fredBilling/pkg/ledger"
	"github.com/mcclellann/fredBilling/pkg/models"
	"github.com/mcclellann/fredBilling/pkg/store"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs(args)
	require.NoError(t, rootCmd.Execute())
	return out.String()
}

func seedDB(t *testing.T) string {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "billing.db")
	s, err := store.NewSQLiteStore(dbPath)
	require.NoError(t, err)
	defer s.Close()

	_, err = ledger.NewLedger(s).CreateContract(ledger.ContractInput{
		Kind:             models.KindLoan,
		ClientName:       "Ana",
		ClientPhone:      "5511999990000",
		Principal:        decimal.NewFromInt(1000),
		InterestRate:     decimal.NewFromInt(10),
		InterestMode:     models.InterestOnTotal,
		InstallmentCount: 2,
		Frequency:        models.FrequencyMonthly,
		FirstDueDate:     time.Date(2020, time.January, 10, 0, 0, 0, 0, time.Local),
	})
	require.NoError(t, err)
	return dbPath
}

func TestScheduleCommand(t *testing.T) {
	out := run(t, "schedule",
		"--principal", "1000", "--rate", "10", "--mode", "on_total",
		"--count", "2", "--first", "2026-01-31")

	assert.Contains(t, out, "Total interest:    R$ 100,00")
	assert.Contains(t, out, "Installment value: R$ 550,00")
	assert.Contains(t, out, "31/01/2026")
	assert.Contains(t, out, "28/02/2026")
}

func TestReportCommand(t *testing.T) {
	dbPath := seedDB(t)
	xlsxPath := filepath.Join(t.TempDir(), "report.xlsx")

	out := run(t, "report", "--db", dbPath, "--xlsx", xlsxPath)

	assert.Contains(t, out, "Contracts:             1")
	assert.Contains(t, out, "Capital outstanding:   R$ 1.000,00")
	assert.Contains(t, out, "Overdue:               R$ 1.100,00")
	info, err := os.Stat(xlsxPath)
	require.NoError(t, err)
	assert.Positive(t, info.Size())
}

func TestRemindCommandDryRun(t *testing.T) {
	dbPath := seedDB(t)

	out := run(t, "remind", "--db", dbPath, "--dry-run")

	assert.Contains(t, out, "considered 1, sent 1, failed 0, skipped 0")
}
