package user

import (
	"context"
	"time"

	"github.com/sammy-9930/Microservice-Based-Order-And-User-Management/shared-libs/events"
)

// Version selects validation behaviour. Both versions share storage layout and API shape.
type Version string

const (
	VersionV1 Version = "v1"
	// VersionV2 additionally enforces email syntax.
	VersionV2 Version = "v2"
)

// User represents the persisted user document.
type User struct {
	UserID          string         `json:"userId" firestore:"userId"`
	FirstName       string         `json:"firstName,omitempty" firestore:"firstName,omitempty"`
	LastName        string         `json:"lastName,omitempty" firestore:"lastName,omitempty"`
	PhoneNumber     string         `json:"phoneNumber,omitempty" firestore:"phoneNumber,omitempty"`
	Emails          []string       `json:"emails" firestore:"emails"`
	DeliveryAddress events.Address `json:"deliveryAddress" firestore:"deliveryAddress"`
	CreatedAt       time.Time      `json:"createdAt" firestore:"createdAt"`
	UpdatedAt       time.Time      `json:"updatedAt" firestore:"updatedAt"`
}

func (u *User) clone() *User {
	if u == nil {
		return nil
	}
	out := *u
	out.Emails = append([]string(nil), u.Emails...)
	return &out
}

// CreateInput describes the fields accepted on creation.
type CreateInput struct {
	FirstName       string         `json:"firstName"`
	LastName        string         `json:"lastName"`
	PhoneNumber     string         `json:"phoneNumber"`
	Emails          []string       `json:"emails" validate:"required,min=1,dive,required"`
	DeliveryAddress events.Address `json:"deliveryAddress" validate:"required"`
}

// UpdateResult carries the record before and after a partial update.
type UpdateResult struct {
	Before *User `json:"before"`
	After  *User `json:"after"`
}

// Repository defines the interface for user data access.
type Repository interface {
	// FindByID returns a not-found domain error when no user matches.
	FindByID(ctx context.Context, userID string) (*User, error)
	// FindByAnyEmail returns a user other than excludeUserID owning any of emails, or nil.
	FindByAnyEmail(ctx context.Context, emails []string, excludeUserID string) (*User, error)
	Insert(ctx context.Context, u *User) error
	// Update sets the present fields and updatedAt on one user and returns the stored result.
	Update(ctx context.Context, userID string, fields events.UpdateFields, updatedAt time.Time) (*User, error)
}

// ChangePublisher announces committed user changes. It never fails the caller.
type ChangePublisher interface {
	PublishUserChanged(ctx context.Context, userID string, fields events.UpdateFields)
}

// Service defines the user service interface.
type Service interface {
	Create(ctx context.Context, input CreateInput) (*User, error)
	Get(ctx context.Context, userID string) (*User, error)
	Update(ctx context.Context, userID string, fields events.UpdateFields) (*UpdateResult, error)
}
