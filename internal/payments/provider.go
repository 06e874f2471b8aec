package payments

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Status enumerates the normalised payment states recorded on orders.
type Status string

const (
	// StatusPending indicates the payment is awaiting confirmation.
	StatusPending Status = "PENDING"
	// StatusSucceeded indicates the charge was captured.
	StatusSucceeded Status = "SUCCEEDED"
	// StatusFailed indicates the charge was declined.
	StatusFailed Status = "FAILED"
)

// ErrInvalidRequest is returned when a charge request cannot be processed as submitted.
var ErrInvalidRequest = errors.New("payments: invalid request")

// ChargeRequest captures the payload required to charge a customer for an order.
type ChargeRequest struct {
	OrderID    string
	CustomerID string
	Amount     decimal.Decimal
	// PaymentID is the reference returned by a client-side checkout, when one exists.
	PaymentID string
}

// Charge is the processed result recorded on the order.
type Charge struct {
	PaymentID   string
	Status      Status
	ProcessedAt time.Time
}

// Processor settles charges for new orders.
type Processor interface {
	Charge(ctx context.Context, req ChargeRequest) (Charge, error)
}
