package memory

import (
	"context"
	"fmt"
	"sparkpad-server/core"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"
)

// memStore implements DocumentStore and BlobStore in process memory.
type memStore struct {
	mu           sync.RWMutex
	documents    map[string]core.Document
	revisions    map[string][]core.Revision // newest last
	blobs        map[string][]byte
	maxRevisions int
}

// NewStore creates a new in-memory store keeping at most maxRevisions
// revisions per document.
func NewStore(maxRevisions int) *memStore {
	if maxRevisions < 1 {
		maxRevisions = core.DefaultMaxRevisions
	}
	return &memStore{
		documents:    make(map[string]core.Document),
		revisions:    make(map[string][]core.Revision),
		blobs:        make(map[string][]byte),
		maxRevisions: maxRevisions,
	}
}

func (s *memStore) FindID(ctx context.Context, id string) (*core.Document, error) {
	log := logrus.WithField("document_id", id)

	s.mu.RLock()
	doc, ok := s.documents[id]
	s.mu.RUnlock()

	if !ok {
		log.Warn("Document with specified ID not found")
		return nil, fmt.Errorf("document %s: %w", id, core.ErrNotFound)
	}

	log.Debug("Document retrieved successfully")
	return &doc, nil
}

func (s *memStore) Create(ctx context.Context, document *core.Document) (string, error) {
	now := time.Now()
	document.ID = ulid.Make().String()
	document.CreatedAt = now
	document.UpdatedAt = now

	s.mu.Lock()
	s.documents[document.ID] = *document
	s.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"document_id":    document.ID,
		"content_length": len(document.Content),
	}).Info("Document created successfully")
	return document.ID, nil
}

func (s *memStore) Update(ctx context.Context, document *core.Document) error {
	log := logrus.WithField("document_id", document.ID)

	s.mu.Lock()
	defer s.mu.Unlock()

	prev, ok := s.documents[document.ID]
	if !ok {
		log.Warn("Cannot update missing document")
		return fmt.Errorf("document %s: %w", document.ID, core.ErrNotFound)
	}

	now := time.Now()
	revs := append(s.revisions[document.ID], core.Revision{
		ID:         ulid.Make().String(),
		DocumentID: prev.ID,
		Title:      prev.Title,
		Content:    prev.Content,
		CreatedAt:  now,
	})
	if len(revs) > s.maxRevisions {
		revs = append([]core.Revision(nil), revs[len(revs)-s.maxRevisions:]...)
	}
	s.revisions[document.ID] = revs

	document.ProjectID = prev.ProjectID
	document.CreatedAt = prev.CreatedAt
	document.UpdatedAt = now
	s.documents[document.ID] = *document

	log.WithField("revisions", len(revs)).Info("Document updated successfully")
	return nil
}

func (s *memStore) History(ctx context.Context, id string) ([]core.Revision, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.documents[id]; !ok {
		return nil, fmt.Errorf("document %s: %w", id, core.ErrNotFound)
	}

	revs := s.revisions[id]
	out := make([]core.Revision, 0, len(revs))
	for i := len(revs) - 1; i >= 0; i-- {
		out = append(out, revs[i])
	}
	return out, nil
}

func (s *memStore) Get(ctx context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	value, ok := s.blobs[key]
	s.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("blob %s: %w", key, core.ErrNotFound)
	}
	return append([]byte(nil), value...), nil
}

func (s *memStore) Put(ctx context.Context, key string, value []byte) error {
	if key == "" {
		return fmt.Errorf("blob key cannot be empty")
	}

	s.mu.Lock()
	s.blobs[key] = append([]byte(nil), value...)
	s.mu.Unlock()

	logrus.WithFields(logrus.Fields{"key": key, "size": len(value)}).Debug("Blob stored")
	return nil
}

func (s *memStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.blobs[key]; !ok {
		return fmt.Errorf("blob %s: %w", key, core.ErrNotFound)
	}
	delete(s.blobs, key)
	return nil
}
