package store

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mcclellann/fredBilling/pkg/logger"
	"github.com/mcclellann/fredBilling/pkg/metrics"
	"github.com/mcclellann/fredBilling/pkg/models"
	"github.com/shopspring/decimal"

	_ "github.com/mattn/go-sqlite3"
)

const dateLayout = "2006-01-02"

// SQLiteStore manages the database connection and operations for SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLiteStore and initializes the database.
func NewSQLiteStore(dataSourceName string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("could not open database: %w", err)
	}

	if _, err = db.Exec("PRAGMA foreign_keys = ON;"); err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	if _, err = db.Exec("PRAGMA journal_mode = WAL;"); err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("could not connect to database: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		return nil, fmt.Errorf("could not initialize schema: %w", err)
	}
	log := logger.WithComponent("store")
	log.Info().Str("dsn", dataSourceName).Msg("Database connection established and schema initialized")
	return s, nil
}

// initSchema creates the database tables if they don't already exist.
// Decimal fields are TEXT so no precision is lost.
func (s *SQLiteStore) initSchema() error {
	const schema = `
	CREATE TABLE IF NOT EXISTS contracts (
		id TEXT PRIMARY KEY,
		kind TEXT NOT NULL,
		client_name TEXT NOT NULL DEFAULT '',
		client_phone TEXT NOT NULL DEFAULT '',
		principal TEXT NOT NULL,
		interest_rate TEXT NOT NULL,
		interest_mode TEXT NOT NULL,
		installment_count INTEGER NOT NULL,
		frequency TEXT NOT NULL,
		first_due_date TEXT NOT NULL,
		due_dates TEXT NOT NULL DEFAULT '',
		installment_amount TEXT,
		total_interest TEXT NOT NULL DEFAULT '0',
		total_paid TEXT NOT NULL DEFAULT '0',
		remaining_balance TEXT NOT NULL DEFAULT '0',
		status TEXT NOT NULL,
		notes TEXT NOT NULL DEFAULT '',
		version INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);
	CREATE TABLE IF NOT EXISTS installment_rows (
		contract_id TEXT NOT NULL,
		number INTEGER NOT NULL,
		due_date TEXT NOT NULL,
		amount TEXT NOT NULL,
		status TEXT NOT NULL,
		paid_amount TEXT NOT NULL DEFAULT '0',
		paid_at DATETIME,
		PRIMARY KEY (contract_id, number),
		FOREIGN KEY(contract_id) REFERENCES contracts(id)
	);
	CREATE TABLE IF NOT EXISTS payment_events (
		id TEXT PRIMARY KEY,
		contract_id TEXT NOT NULL,
		amount TEXT NOT NULL,
		principal_portion TEXT NOT NULL,
		interest_portion TEXT NOT NULL,
		installment_number INTEGER,
		paid_at DATETIME NOT NULL,
		FOREIGN KEY(contract_id) REFERENCES contracts(id)
	);
	CREATE INDEX IF NOT EXISTS idx_payment_events_contract ON payment_events(contract_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

const contractColumns = `id, kind, client_name, client_phone, principal, interest_rate, interest_mode, installment_count, frequency, first_due_date, due_dates, installment_amount, total_interest, total_paid, remaining_balance, status, notes, version, created_at, updated_at`

// CreateContract inserts a new contract and its installment rows.
func (s *SQLiteStore) CreateContract(c *models.Contract) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		`INSERT INTO contracts (`+contractColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID.String(), c.Kind, c.ClientName, c.ClientPhone, c.Principal, c.InterestRate, c.InterestMode,
		c.InstallmentCount, c.Frequency, c.FirstDueDate.Format(dateLayout), encodeDates(c.DueDates),
		nullDecimal(c.InstallmentAmount), c.TotalInterest, c.TotalPaid, c.RemainingBalance, c.Status, c.Notes,
		c.Version, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create contract: %w", err)
	}
	if err := insertRows(tx, c); err != nil {
		return err
	}
	return tx.Commit()
}

// GetContract retrieves a contract by its ID.
func (s *SQLiteStore) GetContract(id uuid.UUID) (*models.Contract, error) {
	row := s.db.QueryRow(`SELECT `+contractColumns+` FROM contracts WHERE id = ?`, id.String())
	c, err := scanContract(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get contract: %w", err)
	}

	rows, broken, err := s.loadRows(`WHERE contract_id = ?`, id.String())
	if err != nil {
		return nil, err
	}
	if err := broken[c.ID]; err != nil {
		return nil, fmt.Errorf("failed to get contract: %w", err)
	}
	c.Installments = rows[c.ID]
	return c, nil
}

// UpdateContract updates a contract if nobody else has written it since it was read.
func (s *SQLiteStore) UpdateContract(c *models.Contract) error {
	return s.writeContract(c, nil)
}

// ApplyPayment writes c under the same version check as UpdateContract and
// inserts ev in the same transaction. Either both are stored or neither is.
func (s *SQLiteStore) ApplyPayment(c *models.Contract, ev *models.PaymentEvent) error {
	return s.writeContract(c, ev)
}

func (s *SQLiteStore) writeContract(c *models.Contract, ev *models.PaymentEvent) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.Exec(
		`UPDATE contracts SET client_name = ?, client_phone = ?, principal = ?, interest_rate = ?, interest_mode = ?,
		installment_count = ?, frequency = ?, first_due_date = ?, due_dates = ?, installment_amount = ?,
		total_interest = ?, total_paid = ?, remaining_balance = ?, status = ?, notes = ?, updated_at = ?,
		version = version + 1
		WHERE id = ? AND version = ?`,
		c.ClientName, c.ClientPhone, c.Principal, c.InterestRate, c.InterestMode,
		c.InstallmentCount, c.Frequency, c.FirstDueDate.Format(dateLayout), encodeDates(c.DueDates), nullDecimal(c.InstallmentAmount),
		c.TotalInterest, c.TotalPaid, c.RemainingBalance, c.Status, c.Notes, c.UpdatedAt,
		c.ID.String(), c.Version,
	)
	if err != nil {
		return fmt.Errorf("failed to update contract: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		var exists int
		if err := tx.QueryRow(`SELECT COUNT(1) FROM contracts WHERE id = ?`, c.ID.String()).Scan(&exists); err != nil {
			return fmt.Errorf("failed to check contract: %w", err)
		}
		if exists == 0 {
			return ErrNotFound
		}
		return ErrConflict
	}

	if _, err := tx.Exec(`DELETE FROM installment_rows WHERE contract_id = ?`, c.ID.String()); err != nil {
		return fmt.Errorf("failed to replace installment rows: %w", err)
	}
	if err := insertRows(tx, c); err != nil {
		return err
	}
	if ev != nil {
		_, err := tx.Exec(
			`INSERT INTO payment_events (id, contract_id, amount, principal_portion, interest_portion, installment_number, paid_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			ev.ID.String(), ev.ContractID.String(), ev.Amount, ev.PrincipalPortion, ev.InterestPortion, ev.InstallmentNumber, ev.PaidAt,
		)
		if err != nil {
			return fmt.Errorf("failed to create payment event: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit contract update: %w", err)
	}
	c.Version++
	return nil
}

// DeleteContract removes a contract, its rows and its payment events within a transaction.
func (s *SQLiteStore) DeleteContract(id uuid.UUID) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err = tx.Exec(`DELETE FROM payment_events WHERE contract_id = ?`, id.String()); err != nil {
		return fmt.Errorf("failed to delete associated payment events: %w", err)
	}
	if _, err = tx.Exec(`DELETE FROM installment_rows WHERE contract_id = ?`, id.String()); err != nil {
		return fmt.Errorf("failed to delete associated installment rows: %w", err)
	}

	result, err := tx.Exec(`DELETE FROM contracts WHERE id = ?`, id.String())
	if err != nil {
		return fmt.Errorf("failed to delete contract: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}
	return tx.Commit()
}

// GetAllContracts retrieves all contracts.
func (s *SQLiteStore) GetAllContracts() ([]*models.Contract, error) {
	return s.queryContracts(``)
}

// GetAllActiveContracts retrieves contracts that are not paid off.
func (s *SQLiteStore) GetAllActiveContracts() ([]*models.Contract, error) {
	return s.queryContracts(`WHERE status = '` + models.StatusActive + `'`)
}

// queryContracts lists contracts. A row that cannot be decoded is logged and
// left out so one corrupt contract does not hide all the others.
func (s *SQLiteStore) queryContracts(where string) ([]*models.Contract, error) {
	rows, err := s.db.Query(`SELECT ` + contractColumns + ` FROM contracts ` + where + ` ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("failed to get contracts: %w", err)
	}
	defer rows.Close()

	log := logger.WithComponent("store")
	contracts := []*models.Contract{}
	for rows.Next() {
		c, err := scanContract(rows)
		if err != nil {
			log.Error().Err(err).Msg("Skipping unreadable contract row")
			metrics.ContractsSkipped.WithLabelValues("unreadable").Inc()
			continue
		}
		contracts = append(contracts, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration: %w", err)
	}

	byContract, broken, err := s.loadRows(``)
	if err != nil {
		return nil, err
	}
	out := contracts[:0]
	for _, c := range contracts {
		if err := broken[c.ID]; err != nil {
			log.Error().Err(err).Str("contract_id", c.ID.String()).Msg("Skipping contract with unreadable installment rows")
			metrics.ContractsSkipped.WithLabelValues("unreadable").Inc()
			continue
		}
		c.Installments = byContract[c.ID]
		out = append(out, c)
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanContract(row scanner) (*models.Contract, error) {
	var c models.Contract
	var idStr, firstDue, dueDates string
	var amount decimal.NullDecimal
	err := row.Scan(&idStr, &c.Kind, &c.ClientName, &c.ClientPhone, &c.Principal, &c.InterestRate, &c.InterestMode,
		&c.InstallmentCount, &c.Frequency, &firstDue, &dueDates, &amount, &c.TotalInterest, &c.TotalPaid,
		&c.RemainingBalance, &c.Status, &c.Notes, &c.Version, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if c.ID, err = uuid.Parse(idStr); err != nil {
		return nil, fmt.Errorf("invalid contract id %q: %w", idStr, err)
	}
	if c.FirstDueDate, err = parseDate(firstDue); err != nil {
		return nil, err
	}
	if c.DueDates, err = decodeDates(dueDates); err != nil {
		return nil, err
	}
	if amount.Valid {
		v := amount.Decimal
		c.InstallmentAmount = &v
	}
	return &c, nil
}

func insertRows(tx *sql.Tx, c *models.Contract) error {
	for _, r := range c.Installments {
		_, err := tx.Exec(
			`INSERT INTO installment_rows (contract_id, number, due_date, amount, status, paid_amount, paid_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			c.ID.String(), r.Number, r.DueDate.Format(dateLayout), r.Amount, r.Status, r.PaidAmount, r.PaidAt,
		)
		if err != nil {
			return fmt.Errorf("failed to store installment %d: %w", r.Number, err)
		}
	}
	return nil
}

// loadRows returns installment rows by contract. Contracts with a row that
// does not decode are reported in broken instead of failing the whole load.
func (s *SQLiteStore) loadRows(where string, args ...interface{}) (map[uuid.UUID][]models.InstallmentRow, map[uuid.UUID]error, error) {
	rows, err := s.db.Query(`SELECT contract_id, number, due_date, amount, status, paid_amount, paid_at FROM installment_rows `+where+` ORDER BY contract_id, number`, args...)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get installment rows: %w", err)
	}
	defer rows.Close()

	out := make(map[uuid.UUID][]models.InstallmentRow)
	broken := make(map[uuid.UUID]error)
	for rows.Next() {
		var r models.InstallmentRow
		var idStr, due string
		var amount, paidAmount string
		var paidAt sql.NullTime
		if err := rows.Scan(&idStr, &r.Number, &due, &amount, &r.Status, &paidAmount, &paidAt); err != nil {
			return nil, nil, fmt.Errorf("failed to scan installment row: %w", err)
		}
		id, err := uuid.Parse(idStr)
		if err != nil {
			log := logger.WithComponent("store")
			log.Error().Err(err).Str("contract_id", idStr).Msg("Skipping installment row with invalid contract id")
			continue
		}
		if err := decodeRow(&r, due, amount, paidAmount); err != nil {
			broken[id] = fmt.Errorf("installment %d: %w", r.Number, err)
			continue
		}
		if paidAt.Valid {
			t := paidAt.Time
			r.PaidAt = &t
		}
		out[id] = append(out[id], r)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("error during installment rows iteration: %w", err)
	}
	return out, broken, nil
}

func decodeRow(r *models.InstallmentRow, due, amount, paidAmount string) error {
	var err error
	if r.DueDate, err = parseDate(due); err != nil {
		return err
	}
	if r.Amount, err = decimal.NewFromString(amount); err != nil {
		return fmt.Errorf("invalid stored amount %q: %w", amount, err)
	}
	if r.PaidAmount, err = decimal.NewFromString(paidAmount); err != nil {
		return fmt.Errorf("invalid stored paid amount %q: %w", paidAmount, err)
	}
	return nil
}

// GetPaymentEventsForContract retrieves all payment events for a given contract ID.
func (s *SQLiteStore) GetPaymentEventsForContract(contractID uuid.UUID) ([]*models.PaymentEvent, error) {
	return s.queryEvents(`WHERE contract_id = ?`, contractID.String())
}

// GetAllPaymentEvents retrieves every payment event, oldest first.
func (s *SQLiteStore) GetAllPaymentEvents() ([]*models.PaymentEvent, error) {
	return s.queryEvents(``)
}

func (s *SQLiteStore) queryEvents(where string, args ...interface{}) ([]*models.PaymentEvent, error) {
	rows, err := s.db.Query(`SELECT id, contract_id, amount, principal_portion, interest_portion, installment_number, paid_at FROM payment_events `+where+` ORDER BY paid_at ASC`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get payment events: %w", err)
	}
	defer rows.Close()

	var events []*models.PaymentEvent
	for rows.Next() {
		var ev models.PaymentEvent
		var idStr, contractIDStr string
		var number sql.NullInt64
		if err := rows.Scan(&idStr, &contractIDStr, &ev.Amount, &ev.PrincipalPortion, &ev.InterestPortion, &number, &ev.PaidAt); err != nil {
			return nil, fmt.Errorf("failed to scan payment event row: %w", err)
		}
		if ev.ID, err = uuid.Parse(idStr); err != nil {
			return nil, fmt.Errorf("invalid payment event id %q: %w", idStr, err)
		}
		if ev.ContractID, err = uuid.Parse(contractIDStr); err != nil {
			return nil, fmt.Errorf("invalid contract id %q on payment event %s: %w", contractIDStr, ev.ID, err)
		}
		if number.Valid {
			n := int(number.Int64)
			ev.InstallmentNumber = &n
		}
		events = append(events, &ev)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration for payment events: %w", err)
	}
	return events, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func nullDecimal(d *decimal.Decimal) decimal.NullDecimal {
	if d == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(*d)
}

func encodeDates(dates []time.Time) string {
	parts := make([]string, len(dates))
	for i, d := range dates {
		parts[i] = d.Format(dateLayout)
	}
	return strings.Join(parts, ",")
}

func decodeDates(s string) ([]time.Time, error) {
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	dates := make([]time.Time, 0, len(parts))
	for _, p := range parts {
		d, err := parseDate(p)
		if err != nil {
			return nil, err
		}
		dates = append(dates, d)
	}
	return dates, nil
}

// parseDate reads a stored calendar date as local midnight.
func parseDate(s string) (time.Time, error) {
	d, err := time.ParseInLocation(dateLayout, strings.TrimSpace(s), time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid stored date %q: %w", s, err)
	}
	return d, nil
}
