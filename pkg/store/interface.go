package store

import (
	"errors"

	"github.com/google/uuid"
	"github.com/mcclellann/fredBilling/pkg/models"
)

var (
	// ErrNotFound is returned when a contract does not exist.
	ErrNotFound = errors.New("contract not found")
	// ErrConflict is returned by UpdateContract when the stored version no
	// longer matches the one the caller read.
	ErrConflict = errors.New("contract was modified concurrently")
)

// Storage defines the interface for database operations related to contracts and payments.
type Storage interface {
	CreateContract(c *models.Contract) error
	GetContract(id uuid.UUID) (*models.Contract, error)
	// UpdateContract writes c only if the stored version equals c.Version,
	// then increments c.Version.
	UpdateContract(c *models.Contract) error
	DeleteContract(id uuid.UUID) error
	GetAllContracts() ([]*models.Contract, error)
	GetAllActiveContracts() ([]*models.Contract, error)

	// ApplyPayment is UpdateContract plus the insert of ev, committed
	// atomically.
	ApplyPayment(c *models.Contract, ev *models.PaymentEvent) error
	GetPaymentEventsForContract(contractID uuid.UUID) ([]*models.PaymentEvent, error)
	GetAllPaymentEvents() ([]*models.PaymentEvent, error)

	Close() error
}
