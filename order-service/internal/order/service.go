package order

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	sharederrors "github.com/sammy-9930/Microservice-Based-Order-And-User-Management/shared-libs/errors"
	"github.com/sammy-9930/Microservice-Based-Order-And-User-Management/shared-libs/events"
)

var validate = validator.New()

type service struct {
	repo   Repository
	logger *slog.Logger

	now   func() time.Time
	newID func() string
}

// NewService creates a new order service.
func NewService(repo Repository, logger *slog.Logger) Service {
	return &service{
		repo:   repo,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
		newID:  uuid.NewString,
	}
}

func (s *service) Create(ctx context.Context, input CreateInput) (*Order, error) {
	status, err := ParseStatus(input.OrderStatus)
	if err != nil {
		return nil, err
	}
	if err := validate.Struct(input); err != nil {
		return nil, validationError(err)
	}

	now := s.now()
	o := &Order{
		OrderID:         s.newID(),
		UserID:          strings.TrimSpace(input.UserID),
		Items:           input.Items,
		Emails:          input.Emails,
		DeliveryAddress: input.DeliveryAddress,
		OrderStatus:     status,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if o.Emails == nil {
		o.Emails = []string{}
	}
	if err := s.repo.Insert(ctx, o); err != nil {
		return nil, fmt.Errorf("insert order: %w", err)
	}

	s.logger.Info("order created", slog.String("orderId", o.OrderID), slog.String("userId", o.UserID))
	return o, nil
}

func (s *service) Get(ctx context.Context, orderID string) (*Order, error) {
	if strings.TrimSpace(orderID) == "" {
		return nil, sharederrors.Validation("orderId", "missing order id")
	}
	return s.repo.FindByID(ctx, orderID)
}

func (s *service) ListByStatus(ctx context.Context, status string) ([]*Order, error) {
	parsed, err := ParseStatus(status)
	if err != nil {
		return nil, sharederrors.Validation("status", "Invalid status")
	}
	return s.repo.FindByStatus(ctx, parsed)
}

func (s *service) UpdateStatus(ctx context.Context, orderID, status string) (*UpdateResult, error) {
	parsed, err := ParseStatus(status)
	if err != nil {
		return nil, err
	}

	before, err := s.repo.FindByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	after, err := s.repo.UpdateStatus(ctx, orderID, parsed, s.now())
	if err != nil {
		return nil, err
	}

	s.logger.Info("order status updated",
		slog.String("orderId", orderID),
		slog.String("from", string(before.OrderStatus)),
		slog.String("to", string(parsed)),
	)
	return &UpdateResult{Before: before, After: after}, nil
}

func (s *service) UpdateDetails(ctx context.Context, orderID string, fields events.UpdateFields) (*UpdateResult, error) {
	if err := validateFields(fields); err != nil {
		return nil, err
	}

	before, err := s.repo.FindByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	after, err := s.repo.UpdateDetails(ctx, orderID, fields, s.now())
	if err != nil {
		return nil, err
	}

	s.logger.Info("order details updated", slog.String("orderId", orderID), slog.Any("fields", fields.Names()))
	return &UpdateResult{Before: before, After: after}, nil
}

// ApplyUserChange copies a user's new contact data onto all of that user's orders. Absent fields
// are left untouched. Zero matched orders is not an error.
func (s *service) ApplyUserChange(ctx context.Context, userID string, fields events.UpdateFields) (int, error) {
	if strings.TrimSpace(userID) == "" {
		return 0, sharederrors.Validation("userId", "missing user id")
	}
	if fields.Empty() {
		return 0, nil
	}
	matched, err := s.repo.UpdateManyByUser(ctx, userID, fields)
	if err != nil {
		return 0, fmt.Errorf("update orders of user %s: %w", userID, err)
	}
	return matched, nil
}

func validateFields(fields events.UpdateFields) error {
	if fields.Empty() {
		return sharederrors.Validation("", "Either 'emails' or 'deliveryAddress' is required")
	}
	if fields.Emails.Set {
		if len(fields.Emails.Value) == 0 {
			return sharederrors.Validation("emails", "emails must contain at least one address")
		}
		if err := validate.Var(fields.Emails.Value, "dive,required"); err != nil {
			return sharederrors.Validation("emails", "emails must not contain blank entries")
		}
	}
	if fields.DeliveryAddress.Set {
		if err := validate.Struct(fields.DeliveryAddress.Value); err != nil {
			return sharederrors.Validation("deliveryAddress", "deliveryAddress is incomplete")
		}
	}
	return nil
}

func validationError(err error) error {
	if verrs, ok := err.(validator.ValidationErrors); ok && len(verrs) > 0 {
		fe := verrs[0]
		field := fieldPath(fe.Namespace())
		return sharederrors.Validation(field, fmt.Sprintf("%s failed %q validation", field, fe.Tag()))
	}
	return sharederrors.Validation("", "invalid input")
}

// fieldPath turns "CreateInput.Items[0].Quantity" into "items[0].quantity".
func fieldPath(namespace string) string {
	parts := strings.Split(namespace, ".")
	if len(parts) > 1 {
		parts = parts[1:]
	}
	for i, p := range parts {
		if p != "" {
			parts[i] = strings.ToLower(p[:1]) + p[1:]
		}
	}
	return strings.Join(parts, ".")
}
