package order

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

// DefaultCollection holds order documents keyed by orderId.
const DefaultCollection = "orders"

type firestoreRepository struct {
	client     *firestore.Client
	collection string
}

// NewFirestoreRepository creates a new Firestore repository
func NewFirestoreRepository(client *firestore.Client, collection string) Repository {
	if collection == "" {
		collection = DefaultCollection
	}
	return &firestoreRepository{client: client, collection: collection}
}

func (r *firestoreRepository) orders() *firestore.CollectionRef {
	return r.client.Collection(r.collection)
}

func (r *firestoreRepository) FindByID(ctx context.Context, orderID string) (*Order, error) {
	doc, err := r.orders().Doc(orderID).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return nil, sharederrors.NotFound("Order not found")
	}
	if err != nil {
		return nil, err
	}
	return decodeOrder(doc)
}

func (r *firestoreRepository) FindByStatus(ctx context.Context, s Status) ([]*Order, error) {
	iter := r.orders().Where("orderStatus", "==", string(s)).Documents(ctx)
	defer iter.Stop()

	out := []*Order{}
	for {
		doc, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, err
		}
		o, err := decodeOrder(doc)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, nil
}

func (r *firestoreRepository) Insert(ctx context.Context, o *Order) error {
	_, err := r.orders().Doc(o.OrderID).Create(ctx, o)
	if status.Code(err) == codes.AlreadyExists {
		return sharederrors.Conflict("orderId", "order already exists")
	}
	return err
}

func (r *firestoreRepository) UpdateStatus(ctx context.Context, orderID string, s Status, updatedAt time.Time) (*Order, error) {
	return r.update(ctx, orderID, []firestore.Update{
		{Path: "orderStatus", Value: string(s)},
		{Path: "updatedAt", Value: updatedAt},
	})
}

func (r *firestoreRepository) UpdateDetails(ctx context.Context, orderID string, fields events.UpdateFields, updatedAt time.Time) (*Order, error) {
	updates := append(fieldUpdates(fields), firestore.Update{Path: "updatedAt", Value: updatedAt})
	return r.update(ctx, orderID, updates)
}

func (r *firestoreRepository) update(ctx context.Context, orderID string, updates []firestore.Update) (*Order, error) {
	_, err := r.orders().Doc(orderID).Update(ctx, updates)
	if status.Code(err) == codes.NotFound {
		return nil, sharederrors.NotFound("Order not found")
	}
	if err != nil {
		return nil, err
	}
	return r.FindByID(ctx, orderID)
}

func (r *firestoreRepository) UpdateManyByUser(ctx context.Context, userID string, fields events.UpdateFields) (int, error) {
	updates := fieldUpdates(fields)
	if len(updates) == 0 {
		return 0, nil
	}

	iter := r.orders().Where("userId", "==", userID).Select().Documents(ctx)
	defer iter.Stop()

	bw := r.client.BulkWriter(ctx)
	var jobs []*firestore.BulkWriterJob
	for {
		doc, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			bw.End()
			return 0, err
		}
		job, err := bw.Update(doc.Ref, updates)
		if err != nil {
			bw.End()
			return 0, fmt.Errorf("queue update for order %s: %w", doc.Ref.ID, err)
		}
		jobs = append(jobs, job)
	}
	bw.End()

	var errs []error
	for _, job := range jobs {
		if _, err := job.Results(); err != nil && status.Code(err) != codes.NotFound {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		// Partially applied writes are safe to repeat on redelivery.
		return 0, fmt.Errorf("update %d of %d orders failed: %w", len(errs), len(jobs), errors.Join(errs...))
	}
	return len(jobs), nil
}

func fieldUpdates(fields events.UpdateFields) []firestore.Update {
	var updates []firestore.Update
	if fields.Emails.Set {
		emails := fields.Emails.Value
		if emails == nil {
			emails = []string{}
		}
		updates = append(updates, firestore.Update{Path: "emails", Value: emails})
	}
	if fields.DeliveryAddress.Set {
		updates = append(updates, firestore.Update{Path: "deliveryAddress", Value: fields.DeliveryAddress.Value})
	}
	return updates
}

func decodeOrder(doc *firestore.DocumentSnapshot) (*Order, error) {
	var o Order
	if err := doc.DataTo(&o); err != nil {
		return nil, fmt.Errorf("unmarshal order: %w", err)
	}
	o.OrderID = doc.Ref.ID
	return &o, nil
}
