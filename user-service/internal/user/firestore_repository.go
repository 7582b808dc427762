package user

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	sharederrors "github.com/sammy-9930/Microservice-Based-Order-And-User-Management/shared-libs/errors"
	"github.com/sammy-9930/Microservice-Based-Order-And-User-Management/shared-libs/events"
)

// DefaultCollection holds user documents keyed by userId.
const DefaultCollection = "users"

// Firestore caps array-contains-any at 30 comparison values.
const maxArrayContainsAny = 30

type firestoreRepository struct {
	client     *firestore.Client
	collection string
}

// NewFirestoreRepository creates a new Firestore repository. v1 and v2 deployments point at
// different projects or collections, so uniqueness is enforced per store only.
func NewFirestoreRepository(client *firestore.Client, collection string) Repository {
	if collection == "" {
		collection = DefaultCollection
	}
	return &firestoreRepository{client: client, collection: collection}
}

func (r *firestoreRepository) users() *firestore.CollectionRef {
	return r.client.Collection(r.collection)
}

func (r *firestoreRepository) FindByID(ctx context.Context, userID string) (*User, error) {
	doc, err := r.users().Doc(userID).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return nil, sharederrors.NotFound("User not found")
	}
	if err != nil {
		return nil, err
	}

	var u User
	if err := doc.DataTo(&u); err != nil {
		return nil, fmt.Errorf("unmarshal user: %w", err)
	}
	u.UserID = doc.Ref.ID
	return &u, nil
}

func (r *firestoreRepository) FindByAnyEmail(ctx context.Context, emails []string, excludeUserID string) (*User, error) {
	return r.emailOwner(func(q firestore.Query) *firestore.DocumentIterator { return q.Documents(ctx) }, emails, excludeUserID)
}

// emailOwner runs the array-contains-any lookup through documents so the same query can be issued
// inside a transaction.
func (r *firestoreRepository) emailOwner(documents func(firestore.Query) *firestore.DocumentIterator, emails []string, excludeUserID string) (*User, error) {
	for start := 0; start < len(emails); start += maxArrayContainsAny {
		end := min(start+maxArrayContainsAny, len(emails))
		values := make([]any, 0, end-start)
		for _, e := range emails[start:end] {
			values = append(values, e)
		}

		iter := documents(r.users().Where("emails", "array-contains-any", values).Limit(2))
		u, err := firstOtherUser(iter, excludeUserID)
		iter.Stop()
		if err != nil {
			return nil, err
		}
		if u != nil {
			return u, nil
		}
	}
	return nil, nil
}

func firstOtherUser(iter *firestore.DocumentIterator, excludeUserID string) (*User, error) {
	for {
		doc, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		if doc.Ref.ID == excludeUserID {
			continue
		}
		var u User
		if err := doc.DataTo(&u); err != nil {
			return nil, fmt.Errorf("decode user: %w", err)
		}
		u.UserID = doc.Ref.ID
		return &u, nil
	}
}

// Insert checks email ownership and creates the document in one transaction, so concurrent
// creates with the same address cannot both commit.
func (r *firestoreRepository) Insert(ctx context.Context, u *User) error {
	err := r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		owner, err := r.emailOwner(func(q firestore.Query) *firestore.DocumentIterator { return tx.Documents(q) }, u.Emails, "")
		if err != nil {
			return err
		}
		if owner != nil {
			return errEmailInUse
		}
		return tx.Create(r.users().Doc(u.UserID), u)
	})
	if status.Code(err) == codes.AlreadyExists {
		return sharederrors.Conflict("userId", "user already exists")
	}
	return err
}

func (r *firestoreRepository) Update(ctx context.Context, userID string, fields events.UpdateFields, updatedAt time.Time) (*User, error) {
	updates := []firestore.Update{{Path: "updatedAt", Value: updatedAt}}
	if fields.Emails.Set {
		updates = append(updates, firestore.Update{Path: "emails", Value: fields.Emails.Value})
	}
	if fields.DeliveryAddress.Set {
		updates = append(updates, firestore.Update{Path: "deliveryAddress", Value: fields.DeliveryAddress.Value})
	}

	ref := r.users().Doc(userID)
	err := r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		if _, err := tx.Get(ref); err != nil {
			return err
		}
		if fields.Emails.Set {
			owner, err := r.emailOwner(func(q firestore.Query) *firestore.DocumentIterator { return tx.Documents(q) }, fields.Emails.Value, userID)
			if err != nil {
				return err
			}
			if owner != nil {
				return errEmailInUse
			}
		}
		// Update fails with NotFound instead of creating a document.
		return tx.Update(ref, updates)
	})
	if status.Code(err) == codes.NotFound {
		return nil, sharederrors.NotFound("User not found")
	}
	if err != nil {
		return nil, err
	}
	return r.FindByID(ctx, userID)
}
