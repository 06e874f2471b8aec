package payments

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Simulator approves every charge without contacting a payment gateway.
type Simulator struct {
	clock func() time.Time
}

var _ Processor = (*Simulator)(nil)

// SimulatorOption customises the simulator.
type SimulatorOption func(*Simulator)

// WithClock overrides the time source used to mint payment ids.
func WithClock(clock func() time.Time) SimulatorOption {
	return func(s *Simulator) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// NewSimulator constructs a simulator.
func NewSimulator(opts ...SimulatorOption) *Simulator {
	s := &Simulator{clock: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Charge records a successful payment. The client supplied payment id is kept when present,
// otherwise a simulated_<unix-millis> id is generated.
func (s *Simulator) Charge(ctx context.Context, req ChargeRequest) (Charge, error) {
	if err := ctx.Err(); err != nil {
		return Charge{}, err
	}
	if req.Amount.IsNegative() {
		return Charge{}, fmt.Errorf("%w: amount must not be negative", ErrInvalidRequest)
	}
	now := s.clock().UTC()
	paymentID := strings.TrimSpace(req.PaymentID)
	if paymentID == "" {
		paymentID = fmt.Sprintf("simulated_%d", now.UnixMilli())
	}
	return Charge{
		PaymentID:   paymentID,
		Status:      StatusSucceeded,
		ProcessedAt: now,
	}, nil
}
