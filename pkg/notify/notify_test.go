package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/mcclellann/fredBilling/pkg/markers"
	"github.com/mcclellann/fredBilling/pkg/message"
	"github.com/mcclellann/fredBilling/pkg/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockSender struct {
	mock.Mock
}

func (m *MockSender) Send(ctx context.Context, phone, text string) error {
	args := m.Called(ctx, phone, text)
	return args.Error(0)
}

type staticSource []*models.Contract

func (s staticSource) GetAllActiveContracts() ([]*models.Contract, error) {
	return s, nil
}

var today = time.Date(2026, time.March, 10, 0, 0, 0, 0, time.Local)

// contract is 1000 at 10% on the total, two monthly installments of 550
// starting at first.
func contract(name, phone string, first time.Time) *models.Contract {
	return &models.Contract{
		ID:               uuid.New(),
		Kind:             models.KindLoan,
		ClientName:       name,
		ClientPhone:      phone,
		Principal:        decimal.NewFromInt(1000),
		InterestRate:     decimal.NewFromInt(10),
		InterestMode:     models.InterestOnTotal,
		InstallmentCount: 2,
		Frequency:        models.FrequencyMonthly,
		FirstDueDate:     first,
		DueDates:         []time.Time{first, first.AddDate(0, 1, 0)},
		Status:           models.StatusActive,
	}
}

func TestWebhookSender_Send(t *testing.T) {
	var got webhookPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	s := NewWebhookSender(srv.URL)
	require.NoError(t, s.Send(context.Background(), "5511999990000", "Olá!"))
	assert.Equal(t, "5511999990000", got.Phone)
	assert.Equal(t, "Olá!", got.Message)
}

func TestWebhookSender_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gateway down", http.StatusBadGateway)
	}))
	defer srv.Close()

	err := NewWebhookSender(srv.URL).Send(context.Background(), "1", "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
	assert.Contains(t, err.Error(), "gateway down")
}

func TestDispatcher_RunOnce(t *testing.T) {
	overdue := contract("Ana", "5511000000001", time.Date(2026, time.March, 5, 0, 0, 0, 0, time.Local))
	dueSoon := contract("Bruno", "5511000000002", time.Date(2026, time.March, 12, 0, 0, 0, 0, time.Local))
	farAway := contract("Carla", "5511000000003", time.Date(2026, time.April, 20, 0, 0, 0, 0, time.Local))
	noPhone := contract("Davi", "", time.Date(2026, time.March, 1, 0, 0, 0, 0, time.Local))
	historical := contract("Eva", "5511000000005", time.Date(2026, time.March, 1, 0, 0, 0, 0, time.Local))
	historical.Notes = markers.MarkHistorical("")
	settledFirst := contract("Fábio", "5511000000006", time.Date(2026, time.March, 1, 0, 0, 0, 0, time.Local))
	settledFirst.TotalPaid = decimal.NewFromInt(550)

	sender := new(MockSender)
	sender.On("Send", mock.Anything, "5511000000001", mock.MatchedBy(func(text string) bool {
		return strings.Contains(text, "Ana") && strings.Contains(text, "em atraso")
	})).Return(nil).Once()
	sender.On("Send", mock.Anything, "5511000000002", mock.MatchedBy(func(text string) bool {
		return strings.Contains(text, "Lembrete da parcela 1 de 2")
	})).Return(errors.New("gateway down")).Once()

	src := staticSource{overdue, dueSoon, farAway, noPhone, historical, settledFirst}
	d := NewDispatcher(src, sender, message.DefaultConfig(), 3)

	res, err := d.RunOnce(context.Background(), today)
	require.NoError(t, err)

	assert.Equal(t, Result{Considered: 3, Sent: 1, Failed: 1, Skipped: 1}, res)
	sender.AssertExpectations(t)
}

func TestDispatcher_RunOnceCancelled(t *testing.T) {
	sender := new(MockSender)
	src := staticSource{contract("Ana", "1", time.Date(2026, time.March, 5, 0, 0, 0, 0, time.Local))}
	d := NewDispatcher(src, sender, message.DefaultConfig(), 0)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := d.RunOnce(ctx, today)
	assert.ErrorIs(t, err, context.Canceled)
	sender.AssertNotCalled(t, "Send", mock.Anything, mock.Anything, mock.Anything)
}

func TestDispatcher_StartRejectsBadSpec(t *testing.T) {
	d := NewDispatcher(staticSource{}, LogSender{}, message.DefaultConfig(), 0)
	_, err := d.Start("not a schedule")
	assert.Error(t, err)

	c, err := d.Start("@daily")
	require.NoError(t, err)
	c.Stop()
}
