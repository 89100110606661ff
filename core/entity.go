package core

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by stores when a document or blob does not exist.
var ErrNotFound = errors.New("not found")

// DefaultMaxRevisions is how many revisions a document keeps when the store
// is not configured otherwise.
const DefaultMaxRevisions = 50

type (
	// Document is the durable copy of a collaboratively edited document.
	Document struct {
		ID        string    `json:"id"`
		ProjectID string    `json:"projectId,omitempty"`
		Title     string    `json:"title"`
		Content   string    `json:"content"`
		CreatedAt time.Time `json:"createdAt"`
		UpdatedAt time.Time `json:"updatedAt"`
	}

	// Revision is a prior state of a document, recorded on every update.
	Revision struct {
		ID         string    `json:"id"`
		DocumentID string    `json:"documentId"`
		Title      string    `json:"title"`
		Content    string    `json:"content"`
		CreatedAt  time.Time `json:"createdAt"`
	}

	// DocumentStore persists documents and their revision history.
	DocumentStore interface {
		// FindID returns the document with id or ErrNotFound.
		FindID(ctx context.Context, id string) (*Document, error)

		// Create assigns an id and timestamps and stores the document.
		Create(ctx context.Context, document *Document) (string, error)

		// Update overwrites title and content, recording the previous state as
		// a revision. Only the newest revisions are kept.
		Update(ctx context.Context, document *Document) error

		// History returns the revisions of a document, newest first.
		History(ctx context.Context, id string) ([]Revision, error)
	}

	// BlobStore keeps opaque values under namespaced string keys.
	BlobStore interface {
		Get(ctx context.Context, key string) ([]byte, error)
		Put(ctx context.Context, key string, value []byte) error
		Delete(ctx context.Context, key string) error
	}
)
