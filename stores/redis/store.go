package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sparkpad-server/core"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const (
	defaultPrefix = "sparkpad"
	updateRetries = 5
)

// redisStore keeps each document as a JSON string, its revisions as a list
// (newest first) and blobs as plain strings.
type redisStore struct {
	rdb          *redis.Client
	prefix       string
	maxRevisions int
}

// NewStore connects to the Redis server at address.
func NewStore(address, password string, db, maxRevisions int) *redisStore {
	rdb := redis.NewClient(&redis.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatalf("failed to connect to redis at %s: %v", address, err)
	}

	return newStore(rdb, defaultPrefix, maxRevisions)
}

func newStore(rdb *redis.Client, prefix string, maxRevisions int) *redisStore {
	if maxRevisions < 1 {
		maxRevisions = core.DefaultMaxRevisions
	}
	return &redisStore{rdb: rdb, prefix: prefix, maxRevisions: maxRevisions}
}

// Close closes the underlying client.
func (s *redisStore) Close() error {
	return s.rdb.Close()
}

func (s *redisStore) documentKey(id string) string { return s.prefix + ":document:" + id }
func (s *redisStore) revisionsKey(id string) string { return s.prefix + ":revisions:" + id }
func (s *redisStore) blobKey(key string) string     { return s.prefix + ":blob:" + key }

func decodeDocument(id string, data []byte) (*core.Document, error) {
	var doc core.Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to unmarshal document %s: %v", id, err)
	}
	return &doc, nil
}

func (s *redisStore) FindID(ctx context.Context, id string) (*core.Document, error) {
	data, err := s.rdb.Get(ctx, s.documentKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("document %s: %w", id, core.ErrNotFound)
		}
		logrus.WithError(err).WithField("document_id", id).Error("Failed to retrieve document")
		return nil, err
	}
	return decodeDocument(id, data)
}

func (s *redisStore) Create(ctx context.Context, document *core.Document) (string, error) {
	now := time.Now()
	document.ID = ulid.Make().String()
	document.CreatedAt = now
	document.UpdatedAt = now

	data, err := json.Marshal(document)
	if err != nil {
		return "", err
	}
	if err := s.rdb.Set(ctx, s.documentKey(document.ID), data, 0).Err(); err != nil {
		logrus.WithError(err).Error("Failed to create document")
		return "", err
	}

	logrus.WithField("document_id", document.ID).Info("Document created successfully")
	return document.ID, nil
}

// Update replaces the document and pushes its previous state onto the
// revision list inside one optimistic transaction.
func (s *redisStore) Update(ctx context.Context, document *core.Document) error {
	key := s.documentKey(document.ID)

	txf := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return fmt.Errorf("document %s: %w", document.ID, core.ErrNotFound)
			}
			return err
		}
		prev, err := decodeDocument(document.ID, data)
		if err != nil {
			return err
		}

		now := time.Now()
		rev, err := json.Marshal(core.Revision{
			ID:         ulid.Make().String(),
			DocumentID: prev.ID,
			Title:      prev.Title,
			Content:    prev.Content,
			CreatedAt:  now,
		})
		if err != nil {
			return err
		}

		next := *document
		next.ProjectID = prev.ProjectID
		next.CreatedAt = prev.CreatedAt
		next.UpdatedAt = now
		updated, err := json.Marshal(next)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, updated, 0)
			pipe.LPush(ctx, s.revisionsKey(document.ID), rev)
			pipe.LTrim(ctx, s.revisionsKey(document.ID), 0, int64(s.maxRevisions-1))
			return nil
		})
		if err == nil {
			*document = next
		}
		return err
	}

	for i := 0; i < updateRetries; i++ {
		err := s.rdb.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			logrus.WithError(err).WithField("document_id", document.ID).Warn("Failed to update document")
			return err
		}
		logrus.WithField("document_id", document.ID).Info("Document updated successfully")
		return nil
	}
	return fmt.Errorf("document %s: too much contention", document.ID)
}

func (s *redisStore) History(ctx context.Context, id string) ([]core.Revision, error) {
	if _, err := s.FindID(ctx, id); err != nil {
		return nil, err
	}

	items, err := s.rdb.LRange(ctx, s.revisionsKey(id), 0, -1).Result()
	if err != nil {
		return nil, err
	}

	revs := make([]core.Revision, 0, len(items))
	for _, item := range items {
		var rev core.Revision
		if err := json.Unmarshal([]byte(item), &rev); err != nil {
			logrus.WithError(err).WithField("document_id", id).Warn("Skipping malformed revision")
			continue
		}
		revs = append(revs, rev)
	}
	return revs, nil
}

func (s *redisStore) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := s.rdb.Get(ctx, s.blobKey(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("blob %s: %w", key, core.ErrNotFound)
		}
		return nil, err
	}
	return data, nil
}

func (s *redisStore) Put(ctx context.Context, key string, value []byte) error {
	if key == "" {
		return fmt.Errorf("blob key cannot be empty")
	}
	return s.rdb.Set(ctx, s.blobKey(key), value, 0).Err()
}

func (s *redisStore) Delete(ctx context.Context, key string) error {
	n, err := s.rdb.Del(ctx, s.blobKey(key)).Result()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("blob %s: %w", key, core.ErrNotFound)
	}
	return nil
}
