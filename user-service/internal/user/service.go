package user

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

// errEmailInUse is returned by the service pre-check and by repositories that enforce uniqueness
// atomically with the write.
var errEmailInUse = sharederrors.Conflict("emails", "One or more email addresses are already in use")

type service struct {
	repo      Repository
	publisher ChangePublisher
	version   Version
	logger    *slog.Logger

	now   func() time.Time
	newID func() string
}

// NewService creates a new user service running with the given version's validation rules.
func NewService(repo Repository, publisher ChangePublisher, version Version, logger *slog.Logger) Service {
	return &service{
		repo:      repo,
		publisher: publisher,
		version:   version,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
		newID:     uuid.NewString,
	}
}

func (s *service) Create(ctx context.Context, input CreateInput) (*User, error) {
	input.Emails = normalizeEmails(input.Emails)
	if err := validate.Struct(input); err != nil {
		return nil, validationError(err)
	}
	if err := s.checkEmailSyntax(input.Emails); err != nil {
		return nil, err
	}

	existing, err := s.repo.FindByAnyEmail(ctx, input.Emails, "")
	if err != nil {
		return nil, fmt.Errorf("check duplicate emails: %w", err)
	}
	if existing != nil {
		s.logger.Warn("user creation rejected, duplicate email", slog.Any("emails", input.Emails))
		return nil, errEmailInUse
	}

	now := s.now()
	u := &User{
		UserID:          s.newID(),
		FirstName:       strings.TrimSpace(input.FirstName),
		LastName:        strings.TrimSpace(input.LastName),
		PhoneNumber:     strings.TrimSpace(input.PhoneNumber),
		Emails:          input.Emails,
		DeliveryAddress: input.DeliveryAddress,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.repo.Insert(ctx, u); err != nil {
		return nil, fmt.Errorf("insert user: %w", err)
	}

	s.logger.Info("user created", slog.String("userId", u.UserID), slog.String("version", string(s.version)))
	return u, nil
}

func (s *service) Get(ctx context.Context, userID string) (*User, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, sharederrors.Validation("userId", "missing user id")
	}
	return s.repo.FindByID(ctx, userID)
}

func (s *service) Update(ctx context.Context, userID string, fields events.UpdateFields) (*UpdateResult, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, sharederrors.Validation("userId", "missing user id")
	}
	if fields.Empty() {
		return nil, sharederrors.Validation("", "Either 'emails' or 'deliveryAddress' is required")
	}
	if fields.Emails.Set {
		fields.Emails.Value = normalizeEmails(fields.Emails.Value)
		if len(fields.Emails.Value) == 0 {
			return nil, sharederrors.Validation("emails", "emails must contain at least one address")
		}
		if err := s.checkEmailSyntax(fields.Emails.Value); err != nil {
			return nil, err
		}
	}
	if fields.DeliveryAddress.Set {
		if err := validate.Struct(fields.DeliveryAddress.Value); err != nil {
			return nil, sharederrors.Validation("deliveryAddress", "deliveryAddress is incomplete")
		}
	}

	before, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	if fields.Emails.Set {
		owner, err := s.repo.FindByAnyEmail(ctx, fields.Emails.Value, userID)
		if err != nil {
			return nil, fmt.Errorf("check duplicate emails: %w", err)
		}
		if owner != nil {
			return nil, errEmailInUse
		}
	}

	after, err := s.repo.Update(ctx, userID, fields, s.now())
	if err != nil {
		return nil, err
	}

	s.logger.Info("user updated", slog.String("userId", userID), slog.Any("fields", fields.Names()))
	s.publisher.PublishUserChanged(ctx, userID, fields)

	return &UpdateResult{Before: before, After: after}, nil
}

func (s *service) checkEmailSyntax(emails []string) error {
	if s.version != VersionV2 {
		return nil
	}
	for _, email := range emails {
		if err := validate.Var(email, "email"); err != nil {
			return sharederrors.Validation("emails", "Invalid email address "+email)
		}
	}
	return nil
}

func normalizeEmails(emails []string) []string {
	out := make([]string, 0, len(emails))
	for _, e := range emails {
		out = append(out, strings.TrimSpace(e))
	}
	return out
}

func validationError(err error) error {
	if verrs, ok := err.(validator.ValidationErrors); ok && len(verrs) > 0 {
		fe := verrs[0]
		field := fieldPath(fe.Namespace())
		return sharederrors.Validation(field, fmt.Sprintf("%s failed %q validation", field, fe.Tag()))
	}
	return sharederrors.Validation("", "invalid input")
}

// fieldPath turns "CreateInput.DeliveryAddress.PostalCode" into "deliveryAddress.postalCode".
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
