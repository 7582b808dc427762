package order

import (
	"context"
	"time"

	sharederrors "github.com/sammy-9930/Microservice-Based-Order-And-User-Management/shared-libs/errors"
	"github.com/sammy-9930/Microservice-Based-Order-And-User-Management/shared-libs/events"
)

// Status is the fulfilment state of an order.
type Status string

const (
	StatusUnderProcess Status = "under process"
	StatusShipping     Status = "shipping"
	StatusDelivered    Status = "delivered"
)

// ParseStatus accepts only the three known statuses, verbatim.
func ParseStatus(raw string) (Status, error) {
	switch s := Status(raw); s {
	case StatusUnderProcess, StatusShipping, StatusDelivered:
		return s, nil
	default:
		return "", sharederrors.Validation("orderStatus", "Invalid or missing orderStatus")
	}
}

// Item is one line of an order.
type Item struct {
	ItemID   string  `json:"itemId" firestore:"itemId" validate:"required"`
	Quantity int     `json:"quantity" firestore:"quantity" validate:"gte=1"`
	Price    float64 `json:"price" firestore:"price" validate:"gte=0"`
}

// Order is the persisted order document. Emails and DeliveryAddress are copies of the owning
// user's data at the time of the last applied user change.
type Order struct {
	OrderID         string         `json:"orderId" firestore:"orderId"`
	UserID          string         `json:"userId,omitempty" firestore:"userId"`
	Items           []Item         `json:"items" firestore:"items"`
	Emails          []string       `json:"emails" firestore:"emails"`
	DeliveryAddress events.Address `json:"deliveryAddress" firestore:"deliveryAddress"`
	OrderStatus     Status         `json:"orderStatus" firestore:"orderStatus"`
	CreatedAt       time.Time      `json:"createdAt" firestore:"createdAt"`
	UpdatedAt       time.Time      `json:"updatedAt" firestore:"updatedAt"`
}

func (o *Order) clone() *Order {
	if o == nil {
		return nil
	}
	out := *o
	out.Items = append([]Item(nil), o.Items...)
	out.Emails = append([]string(nil), o.Emails...)
	return &out
}

// CreateInput describes the fields accepted on creation.
type CreateInput struct {
	UserID          string         `json:"userId"`
	Items           []Item         `json:"items" validate:"required,min=1,dive"`
	Emails          []string       `json:"emails" validate:"dive,required"`
	DeliveryAddress events.Address `json:"deliveryAddress" validate:"required"`
	OrderStatus     string         `json:"orderStatus"`
}

// UpdateResult carries the record before and after a partial update.
type UpdateResult struct {
	Before *Order `json:"before"`
	After  *Order `json:"after"`
}

// Repository defines the interface for order data access.
type Repository interface {
	FindByID(ctx context.Context, orderID string) (*Order, error)
	FindByStatus(ctx context.Context, status Status) ([]*Order, error)
	Insert(ctx context.Context, o *Order) error
	UpdateStatus(ctx context.Context, orderID string, status Status, updatedAt time.Time) (*Order, error)
	UpdateDetails(ctx context.Context, orderID string, fields events.UpdateFields, updatedAt time.Time) (*Order, error)
	// UpdateManyByUser overwrites the present fields on every order of userID and reports how
	// many orders matched. Applying the same fields twice leaves the same stored state.
	UpdateManyByUser(ctx context.Context, userID string, fields events.UpdateFields) (int, error)
}

// Service defines the order service interface.
type Service interface {
	Create(ctx context.Context, input CreateInput) (*Order, error)
	Get(ctx context.Context, orderID string) (*Order, error)
	ListByStatus(ctx context.Context, status string) ([]*Order, error)
	UpdateStatus(ctx context.Context, orderID, status string) (*UpdateResult, error)
	UpdateDetails(ctx context.Context, orderID string, fields events.UpdateFields) (*UpdateResult, error)
	ApplyUserChange(ctx context.Context, userID string, fields events.UpdateFields) (int, error)
}
