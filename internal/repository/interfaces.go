package repository

import (
	"context"
	"errors"
	"fmt"

	"cardfolio-api/internal/model"
	"cardfolio-api/pkg/apierror"
)

// Collection paths.
const (
	UsersCollection     = "users"
	ValuationCollection = "collectionHistory"
	ActionLogCollection = "history"
)

// CardsCollection returns the per-user inventory subcollection.
func CardsCollection(userID string) string {
	return UsersCollection + "/" + userID + "/cards"
}

// ErrNotFound is wrapped by errors returned when a document is absent.
var ErrNotFound = errors.New("document not found")

// Op is a query filter operator.
type Op string

const (
	OpEqual         Op = "=="
	OpNotEqual      Op = "!="
	OpLess          Op = "<"
	OpLessEqual     Op = "<="
	OpGreater       Op = ">"
	OpGreaterEqual  Op = ">="
	OpArrayContains Op = "array-contains"
)

// Filter restricts a query to documents whose Field matches Value under Op.
type Filter struct {
	Field string
	Op    Op
	Value any
}

// Where builds a Filter.
func Where(field string, op Op, value any) Filter {
	return Filter{Field: field, Op: op, Value: value}
}

// Query describes an ordered, filtered read of a collection.
type Query struct {
	Filters    []Filter
	OrderBy    string
	Descending bool
	Limit      int
}

// Record is a document together with its id.
type Record struct {
	ID   string
	Data model.Document
}

// ArrayUnion, used as a value in Update, adds the elements not already
// present in the stored array.
type ArrayUnion []string

// ArrayRemove, used as a value in Update, removes every occurrence of the
// elements from the stored array.
type ArrayRemove []string

// DocumentStore is the remote document store the caches synchronize with.
type DocumentStore interface {
	// Create inserts doc under a store-assigned id and returns it.
	Create(ctx context.Context, collection string, doc model.Document) (string, error)

	// Put writes doc under id, replacing any existing document.
	Put(ctx context.Context, collection, id string, doc model.Document) error

	// Read returns the document, or nil without error when it is absent.
	Read(ctx context.Context, collection, id string) (model.Document, error)

	// Update merges partial into an existing document. Fields not named in
	// partial are untouched. Returns an error wrapping ErrNotFound if absent.
	Update(ctx context.Context, collection, id string, partial model.Document) error

	// Delete removes the document. Deleting an absent document is not an error.
	Delete(ctx context.Context, collection, id string) error

	// Query returns the matching documents in the requested order.
	Query(ctx context.Context, collection string, q Query) ([]Record, error)

	// Stats returns backend statistics for the admin surface.
	Stats(ctx context.Context) (map[string]interface{}, error)

	// Close releases the backend connection.
	Close() error
}

func notFound(collection, id string) error {
	e := apierror.RemoteStore(fmt.Sprintf("%s/%s not found", collection, id), false, ErrNotFound)
	e.StatusCode = 404
	e.Code = "NOT_FOUND"
	return e
}

// storeError wraps a backend error into the taxonomy. Deadline and
// connectivity failures are retryable, everything else is not.
func storeError(op string, err error) error {
	if err == nil {
		return nil
	}
	var apiErr *apierror.Error
	if errors.As(err, &apiErr) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return apierror.RemoteStore(op+" timed out", true, err)
	}
	classified := apierror.Classify(err)
	retryable := classified.Kind == apierror.KindNetwork || classified.Retryable
	return apierror.RemoteStore(op+" failed", retryable, err)
}
