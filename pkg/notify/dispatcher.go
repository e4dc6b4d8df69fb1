package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/mcclellann/fredBilling/pkg/installments"
	"github.com/mcclellann/fredBilling/pkg/logger"
	"github.com/mcclellann/fredBilling/pkg/message"
	"github.com/mcclellann/fredBilling/pkg/metrics"
	"github.com/mcclellann/fredBilling/pkg/models"
	"github.com/mcclellann/fredBilling/pkg/schedule"
	"github.com/robfig/cron/v3"
)

// ContractSource lists the contracts a reminder pass looks at.
type ContractSource interface {
	GetAllActiveContracts() ([]*models.Contract, error)
}

// Result counts the outcome of one reminder pass.
type Result struct {
	Considered int `json:"considered"`
	Sent       int `json:"sent"`
	Failed     int `json:"failed"`
	Skipped    int `json:"skipped"`
}

// Dispatcher selects contracts that need a reminder and sends one message
// per contract.
type Dispatcher struct {
	source  ContractSource
	sender  Sender
	message message.Config
	// DaysBefore is how many days ahead of a due date a reminder goes out.
	DaysBefore int
	now        func() time.Time
}

func NewDispatcher(source ContractSource, sender Sender, cfg message.Config, daysBefore int) *Dispatcher {
	return &Dispatcher{
		source:     source,
		sender:     sender,
		message:    cfg,
		DaysBefore: daysBefore,
		now:        time.Now,
	}
}

// RunOnce sends reminders for every active, non-historical contract whose
// focus installment is overdue or due within DaysBefore days of today. A
// failed delivery is counted and does not stop the pass.
func (d *Dispatcher) RunOnce(ctx context.Context, today time.Time) (Result, error) {
	log := logger.WithComponent("notify")
	contracts, err := d.source.GetAllActiveContracts()
	if err != nil {
		return Result{}, fmt.Errorf("failed to list active contracts: %w", err)
	}

	var res Result
	for _, c := range contracts {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		st := installments.Resolve(c, today)
		if st.Historical {
			continue
		}
		data, ok := message.FromState(c, st)
		if !ok || !d.due(data, today) {
			continue
		}
		res.Considered++

		if c.ClientPhone == "" {
			res.Skipped++
			metrics.RemindersSent.WithLabelValues("skipped").Inc()
			log.Warn().Str("contract_id", c.ID.String()).Msg("Reminder skipped, contract has no phone")
			continue
		}

		text := message.Compose(data, d.message)
		if err := d.sender.Send(ctx, c.ClientPhone, text); err != nil {
			res.Failed++
			metrics.RemindersSent.WithLabelValues("failed").Inc()
			log.Error().Err(err).Str("contract_id", c.ID.String()).Msg("Reminder delivery failed")
			continue
		}
		res.Sent++
		metrics.RemindersSent.WithLabelValues("sent").Inc()
		log.Debug().
			Str("contract_id", c.ID.String()).
			Int("installment", data.Installment).
			Bool("overdue", data.Overdue).
			Msg("Reminder sent")
	}

	log.Info().
		Int("considered", res.Considered).
		Int("sent", res.Sent).
		Int("failed", res.Failed).
		Int("skipped", res.Skipped).
		Msg("Reminder pass complete")
	return res, nil
}

func (d *Dispatcher) due(data message.Data, today time.Time) bool {
	if data.Overdue {
		return true
	}
	return schedule.DaysBetween(today, data.DueDate) <= d.DaysBefore
}

// Start runs a reminder pass on the given cron schedule. The returned cron is
// already running; callers may add further jobs and must Stop it.
func (d *Dispatcher) Start(spec string) (*cron.Cron, error) {
	c := cron.New()
	_, err := c.AddFunc(spec, func() {
		if _, err := d.RunOnce(context.Background(), schedule.DateOf(d.now())); err != nil {
			log := logger.WithComponent("notify")
			log.Error().Err(err).Msg("Scheduled reminder pass failed")
		}
	})
	if err != nil {
		return nil, fmt.Errorf("invalid reminder schedule %q: %w", spec, err)
	}
	c.Start()
	return c, nil
}
