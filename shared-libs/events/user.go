package events

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Event names carried in the "event" attribute of a user change payload.
const (
	EventUserUpdated = "user.updated"
	// eventUserUpdatedLegacy is what older v2 builds emitted; still accepted on the consuming side.
	eventUserUpdatedLegacy = "user.update"
)

// ErrMalformedEvent marks payloads that can never be applied and must not be retried.
var ErrMalformedEvent = errors.New("malformed user change event")

var validate = validator.New()

// Address is the structured postal record owned by users and copied onto orders.
type Address struct {
	Street     string `json:"street" firestore:"street" validate:"required"`
	City       string `json:"city" firestore:"city" validate:"required"`
	Province   string `json:"province" firestore:"province" validate:"required"`
	PostalCode string `json:"postalCode" firestore:"postalCode" validate:"required"`
	Country    string `json:"country" firestore:"country" validate:"required"`
}

// Field differentiates between an omitted value and an explicitly supplied one (which may be empty).
type Field[T any] struct {
	Set   bool
	Value T
}

// Some returns a Field holding v.
func Some[T any](v T) Field[T] {
	return Field[T]{Set: true, Value: v}
}

// UpdateFields is a sparse update of the user contact data that orders denormalize.
type UpdateFields struct {
	Emails          Field[[]string]
	DeliveryAddress Field[Address]
}

// Empty reports whether no field is present.
func (u UpdateFields) Empty() bool {
	return !u.Emails.Set && !u.DeliveryAddress.Set
}

// Names lists the present fields using their wire names.
func (u UpdateFields) Names() []string {
	var names []string
	if u.Emails.Set {
		names = append(names, "emails")
	}
	if u.DeliveryAddress.Set {
		names = append(names, "deliveryAddress")
	}
	return names
}

// UserChanged is the broker payload describing a user mutation. Absent fields are omitted on the wire.
type UserChanged struct {
	Event           string    `json:"event"`
	UserID          string    `json:"userId"`
	Emails          *[]string `json:"emails,omitempty"`
	DeliveryAddress *Address  `json:"deliveryAddress,omitempty"`
}

// NewUserChanged builds the event for the fields present in fields and nothing else.
func NewUserChanged(userID string, fields UpdateFields) UserChanged {
	event := UserChanged{Event: EventUserUpdated, UserID: userID}
	if fields.Emails.Set {
		emails := append([]string{}, fields.Emails.Value...)
		event.Emails = &emails
	}
	if fields.DeliveryAddress.Set {
		addr := fields.DeliveryAddress.Value
		event.DeliveryAddress = &addr
	}
	return event
}

// Fields converts the wire representation back into tagged optional fields.
// A JSON null is treated the same as an absent field.
func (e UserChanged) Fields() UpdateFields {
	var fields UpdateFields
	if e.Emails != nil {
		fields.Emails = Some(append([]string{}, (*e.Emails)...))
	}
	if e.DeliveryAddress != nil {
		fields.DeliveryAddress = Some(*e.DeliveryAddress)
	}
	return fields
}

// DecodeUserChanged parses and validates a broker payload. Every failure wraps ErrMalformedEvent.
func DecodeUserChanged(body []byte) (UserChanged, error) {
	var event UserChanged
	if err := json.Unmarshal(body, &event); err != nil {
		return UserChanged{}, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}

	event.UserID = strings.TrimSpace(event.UserID)
	if event.UserID == "" {
		return UserChanged{}, fmt.Errorf("%w: missing userId", ErrMalformedEvent)
	}

	switch event.Event {
	case "", EventUserUpdated, eventUserUpdatedLegacy:
	default:
		return UserChanged{}, fmt.Errorf("%w: unsupported event %q", ErrMalformedEvent, event.Event)
	}

	if event.DeliveryAddress != nil {
		if err := validate.Struct(event.DeliveryAddress); err != nil {
			return UserChanged{}, fmt.Errorf("%w: incomplete deliveryAddress: %v", ErrMalformedEvent, err)
		}
	}

	return event, nil
}
