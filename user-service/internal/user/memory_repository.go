package user

import (
	"context"
	"slices"
	"sync"
	"time"

	sharederrors "github.com/sammy-9930/Microservice-Based-Order-And-User-Management/shared-libs/errors"
	"github.com/sammy-9930/Microservice-Based-Order-And-User-Management/shared-libs/events"
)

type memoryRepository struct {
	mu    sync.RWMutex
	users map[string]*User
	order []string
}

// NewMemoryRepository returns a process-local Repository for tests and local runs.
func NewMemoryRepository() Repository {
	return &memoryRepository{users: make(map[string]*User)}
}

func (r *memoryRepository) FindByID(_ context.Context, userID string) (*User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.users[userID]
	if !ok {
		return nil, sharederrors.NotFound("User not found")
	}
	return u.clone(), nil
}

func (r *memoryRepository) FindByAnyEmail(_ context.Context, emails []string, excludeUserID string) (*User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.emailOwner(emails, excludeUserID).clone(), nil
}

// emailOwner must be called with r.mu held.
func (r *memoryRepository) emailOwner(emails []string, excludeUserID string) *User {
	for _, id := range r.order {
		if id == excludeUserID {
			continue
		}
		u := r.users[id]
		for _, e := range emails {
			if slices.Contains(u.Emails, e) {
				return u
			}
		}
	}
	return nil
}

func (r *memoryRepository) Insert(_ context.Context, u *User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.users[u.UserID]; exists {
		return sharederrors.Conflict("userId", "user already exists")
	}
	if r.emailOwner(u.Emails, "") != nil {
		return errEmailInUse
	}
	r.users[u.UserID] = u.clone()
	r.order = append(r.order, u.UserID)
	return nil
}

func (r *memoryRepository) Update(_ context.Context, userID string, fields events.UpdateFields, updatedAt time.Time) (*User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[userID]
	if !ok {
		return nil, sharederrors.NotFound("User not found")
	}
	if fields.Emails.Set {
		if r.emailOwner(fields.Emails.Value, userID) != nil {
			return nil, errEmailInUse
		}
		u.Emails = append([]string(nil), fields.Emails.Value...)
	}
	if fields.DeliveryAddress.Set {
		u.DeliveryAddress = fields.DeliveryAddress.Value
	}
	u.UpdatedAt = updatedAt
	return u.clone(), nil
}
