// Package docstore defines the remote document service that every store in
// the application reads from and writes to.
//
// A Service is collection oriented: documents are addressed by
// (collection, id) and carry a free-form field map. Two backends exist:
// mongodocs (MongoDB) and memdocs (in-process, used by tests and the
// "memory" backend).
package docstore

import (
	"context"
	"errors"
)

// Collection names shared by the stores.
const (
	Accounts       = "accounts"
	Profiles       = "profiles"
	PublicProfiles = "public_profiles"
	Communities    = "communities"
	Entries        = "entries"
	Comments       = "comments"
	Votes          = "votes"
	GratitudeVotes = "gratitude_votes"
	CheckIns       = "check_ins"
)

var (
	// ErrNotFound is returned by Get and Update when the document does not exist.
	ErrNotFound = errors.New("docstore: document not found")
	// ErrDuplicate is returned when a write violates a unique constraint.
	ErrDuplicate = errors.New("docstore: duplicate key")
)

// Document is the field map of a stored document. The id is not part of
// the map; it travels in Snapshot.ID.
type Document map[string]any

// Snapshot is the state of one document at a point in time.
type Snapshot struct {
	ID     string
	Exists bool
	Data   Document
}

// Filter is an equality condition on one field.
type Filter struct {
	Field string
	Value any
}

// Where builds an equality filter.
func Where(field string, value any) Filter {
	return Filter{Field: field, Value: value}
}

// ArrayUnionOp appends values to an array field, skipping values already
// present. Build it with ArrayUnion and pass it as a field value to Update.
type ArrayUnionOp struct {
	Values []any
}

// ArrayUnion returns an update operator that adds values to an array field
// without creating duplicates.
func ArrayUnion(values ...any) ArrayUnionOp {
	return ArrayUnionOp{Values: values}
}

// Subscription is a cancellable change feed registration.
type Subscription interface {
	Unsubscribe()
}

// SubscribeFunc receives document snapshots. A snapshot with Exists false
// means the document was deleted (or never existed).
type SubscribeFunc func(Snapshot)

// Service is the remote document service.
type Service interface {
	// Get returns the document or ErrNotFound.
	Get(ctx context.Context, collection, id string) (Snapshot, error)
	// Query returns all documents matching every filter.
	Query(ctx context.Context, collection string, filters ...Filter) ([]Snapshot, error)
	// Set creates or fully replaces a document.
	Set(ctx context.Context, collection, id string, data Document) error
	// Update merges fields into an existing document or returns ErrNotFound.
	// Field values of type ArrayUnionOp are applied as array unions.
	Update(ctx context.Context, collection, id string, fields Document) error
	// Add creates a document with a generated id.
	Add(ctx context.Context, collection string, data Document) (string, error)
	// Delete removes a document. Deleting a missing document is not an error.
	Delete(ctx context.Context, collection, id string) error
	// Subscribe delivers the current state of the document and then every
	// change until the subscription is cancelled or ctx is done.
	Subscribe(ctx context.Context, collection, id string, fn SubscribeFunc) (Subscription, error)
	// Ping checks connectivity.
	Ping(ctx context.Context) error
}

// SubscriptionFunc adapts a plain function to Subscription.
type SubscriptionFunc func()

// Unsubscribe calls f.
func (f SubscriptionFunc) Unsubscribe() { f() }
