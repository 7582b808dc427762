package order

import (
	"context"
	"sync"
	"time"

	sharederrors "github.com/sammy-9930/Microservice-Based-Order-And-User-Management/shared-libs/errors"
	"github.com/sammy-9930/Microservice-Based-Order-And-User-Management/shared-libs/events"
)

type memoryRepository struct {
	mu     sync.RWMutex
	orders map[string]*Order
	ids    []string
}

// NewMemoryRepository returns a process-local Repository for tests and local runs.
func NewMemoryRepository() Repository {
	return &memoryRepository{orders: make(map[string]*Order)}
}

func (r *memoryRepository) FindByID(_ context.Context, orderID string) (*Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	o, ok := r.orders[orderID]
	if !ok {
		return nil, sharederrors.NotFound("Order not found")
	}
	return o.clone(), nil
}

func (r *memoryRepository) FindByStatus(_ context.Context, s Status) ([]*Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := []*Order{}
	for _, id := range r.ids {
		if o := r.orders[id]; o.OrderStatus == s {
			out = append(out, o.clone())
		}
	}
	return out, nil
}

func (r *memoryRepository) Insert(_ context.Context, o *Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.orders[o.OrderID]; exists {
		return sharederrors.Conflict("orderId", "order already exists")
	}
	r.orders[o.OrderID] = o.clone()
	r.ids = append(r.ids, o.OrderID)
	return nil
}

func (r *memoryRepository) UpdateStatus(_ context.Context, orderID string, s Status, updatedAt time.Time) (*Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	o, ok := r.orders[orderID]
	if !ok {
		return nil, sharederrors.NotFound("Order not found")
	}
	o.OrderStatus = s
	o.UpdatedAt = updatedAt
	return o.clone(), nil
}

func (r *memoryRepository) UpdateDetails(_ context.Context, orderID string, fields events.UpdateFields, updatedAt time.Time) (*Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	o, ok := r.orders[orderID]
	if !ok {
		return nil, sharederrors.NotFound("Order not found")
	}
	applyFields(o, fields)
	o.UpdatedAt = updatedAt
	return o.clone(), nil
}

func (r *memoryRepository) UpdateManyByUser(_ context.Context, userID string, fields events.UpdateFields) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	matched := 0
	for _, o := range r.orders {
		if o.UserID != userID {
			continue
		}
		applyFields(o, fields)
		matched++
	}
	return matched, nil
}

func applyFields(o *Order, fields events.UpdateFields) {
	if fields.Emails.Set {
		o.Emails = append([]string{}, fields.Emails.Value...)
	}
	if fields.DeliveryAddress.Set {
		o.DeliveryAddress = fields.DeliveryAddress.Value
	}
}
