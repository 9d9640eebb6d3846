package payment

import (
	"context"
	"fmt"
	"sync"
)

// Fake is an in-memory Gateway for tests and local development.
type Fake struct {
	mu sync.Mutex

	Key       string
	CreateErr error
	VoidErr   error

	Created []CreateOrderRequest
	Voided  []string
	seq     int
}

// NewFake returns a Fake that issues ids "order_fake_1", "order_fake_2", ...
func NewFake() *Fake {
	return &Fake{Key: "rzp_test_fake"}
}

func (f *Fake) KeyID() string { return f.Key }

func (f *Fake) CreateOrder(ctx context.Context, req CreateOrderRequest) (*Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGateway, err)
	}
	if f.CreateErr != nil {
		return nil, fmt.Errorf("%w: %v", ErrGateway, f.CreateErr)
	}

	f.seq++
	f.Created = append(f.Created, req)
	return &Order{
		ID:       fmt.Sprintf("order_fake_%d", f.seq),
		Amount:   req.Amount,
		Currency: req.Currency,
		Receipt:  req.Receipt,
		Status:   "created",
	}, nil
}

func (f *Fake) VoidOrder(_ context.Context, gatewayOrderID, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.VoidErr != nil {
		return fmt.Errorf("%w: %v", ErrGateway, f.VoidErr)
	}
	f.Voided = append(f.Voided, gatewayOrderID)
	return nil
}

// CreatedCount returns how many gateway orders were issued.
func (f *Fake) CreatedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Created)
}

// VoidedIDs returns a copy of the voided gateway order ids.
func (f *Fake) VoidedIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.Voided...)
}
