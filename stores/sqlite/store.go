package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	stdlog "log"
	"sparkpad-server/core"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS documents (
	id TEXT PRIMARY KEY,
	project_id TEXT NOT NULL DEFAULT '',
	title TEXT NOT NULL DEFAULT '',
	content TEXT NOT NULL DEFAULT '',
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS revisions (
	id TEXT PRIMARY KEY,
	document_id TEXT NOT NULL,
	title TEXT NOT NULL DEFAULT '',
	content TEXT NOT NULL DEFAULT '',
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS revisions_document ON revisions (document_id, id);
CREATE TABLE IF NOT EXISTS blobs (
	name TEXT PRIMARY KEY,
	value BLOB,
	updated_at INTEGER NOT NULL
);`

type sqliteStore struct {
	db           *sql.DB
	maxRevisions int
}

// NewStore opens (or creates) the database at dataSourceName.
func NewStore(dataSourceName string, maxRevisions int) *sqliteStore {
	db, err := sql.Open("sqlite", dataSourceName)
	if err != nil {
		stdlog.Fatalf("failed to open sqlite database: %v", err)
	}
	// A single connection serializes writers and avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		stdlog.Fatalf("failed to create tables: %v", err)
	}

	if maxRevisions < 1 {
		maxRevisions = core.DefaultMaxRevisions
	}
	return &sqliteStore{db: db, maxRevisions: maxRevisions}
}

// Close releases the database handle.
func (s *sqliteStore) Close() error {
	return s.db.Close()
}

func (s *sqliteStore) FindID(ctx context.Context, id string) (*core.Document, error) {
	log := logrus.WithField("document_id", id)
	log.Debug("Retrieving document by ID")

	var (
		doc                  core.Document
		createdAt, updatedAt int64
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT id, project_id, title, content, created_at, updated_at FROM documents WHERE id = ?", id).
		Scan(&doc.ID, &doc.ProjectID, &doc.Title, &doc.Content, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			log.Warn("Document with specified ID not found")
			return nil, fmt.Errorf("document %s: %w", id, core.ErrNotFound)
		}
		log.WithError(err).Error("Failed to retrieve document")
		return nil, err
	}
	doc.CreatedAt = time.UnixMilli(createdAt)
	doc.UpdatedAt = time.UnixMilli(updatedAt)

	log.Debug("Document retrieved successfully")
	return &doc, nil
}

func (s *sqliteStore) Create(ctx context.Context, document *core.Document) (string, error) {
	now := time.Now()
	document.ID = ulid.Make().String()
	document.CreatedAt = now
	document.UpdatedAt = now

	log := logrus.WithFields(logrus.Fields{
		"document_id":    document.ID,
		"content_length": len(document.Content),
	})

	_, err := s.db.ExecContext(ctx,
		"INSERT INTO documents (id, project_id, title, content, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)",
		document.ID, document.ProjectID, document.Title, document.Content, now.UnixMilli(), now.UnixMilli())
	if err != nil {
		log.WithError(err).Error("Failed to create document")
		return "", err
	}

	log.Info("Document created successfully")
	return document.ID, nil
}

func (s *sqliteStore) Update(ctx context.Context, document *core.Document) error {
	log := logrus.WithField("document_id", document.ID)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var (
		prev      core.Document
		createdAt int64
	)
	err = tx.QueryRowContext(ctx,
		"SELECT project_id, title, content, created_at FROM documents WHERE id = ?", document.ID).
		Scan(&prev.ProjectID, &prev.Title, &prev.Content, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			log.Warn("Cannot update missing document")
			return fmt.Errorf("document %s: %w", document.ID, core.ErrNotFound)
		}
		return err
	}

	now := time.Now()
	_, err = tx.ExecContext(ctx,
		"INSERT INTO revisions (id, document_id, title, content, created_at) VALUES (?, ?, ?, ?, ?)",
		ulid.Make().String(), document.ID, prev.Title, prev.Content, now.UnixMilli())
	if err != nil {
		log.WithError(err).Error("Failed to record revision")
		return err
	}

	_, err = tx.ExecContext(ctx,
		"UPDATE documents SET title = ?, content = ?, updated_at = ? WHERE id = ?",
		document.Title, document.Content, now.UnixMilli(), document.ID)
	if err != nil {
		log.WithError(err).Error("Failed to update document")
		return err
	}

	// Keep only the newest maxRevisions revisions.
	_, err = tx.ExecContext(ctx,
		`DELETE FROM revisions WHERE document_id = ? AND id NOT IN (
			SELECT id FROM revisions WHERE document_id = ? ORDER BY id DESC LIMIT ?)`,
		document.ID, document.ID, s.maxRevisions)
	if err != nil {
		log.WithError(err).Error("Failed to trim revisions")
		return err
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	document.ProjectID = prev.ProjectID
	document.CreatedAt = time.UnixMilli(createdAt)
	document.UpdatedAt = now
	log.Info("Document updated successfully")
	return nil
}

func (s *sqliteStore) History(ctx context.Context, id string) ([]core.Revision, error) {
	if _, err := s.FindID(ctx, id); err != nil {
		return nil, err
	}

	log := logrus.WithField("document_id", id)
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, document_id, title, content, created_at FROM revisions WHERE document_id = ? ORDER BY id DESC", id)
	if err != nil {
		log.WithError(err).Error("Failed to list revisions")
		return nil, err
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			log.WithError(cerr).Warn("Failed to close revision rows")
		}
	}()

	revs := []core.Revision{}
	for rows.Next() {
		var (
			rev       core.Revision
			createdAt int64
		)
		if err := rows.Scan(&rev.ID, &rev.DocumentID, &rev.Title, &rev.Content, &createdAt); err != nil {
			log.WithError(err).Error("Failed to scan revision")
			continue
		}
		rev.CreatedAt = time.UnixMilli(createdAt)
		revs = append(revs, rev)
	}
	return revs, rows.Err()
}

func (s *sqliteStore) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := s.db.QueryRowContext(ctx, "SELECT value FROM blobs WHERE name = ?", key).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("blob %s: %w", key, core.ErrNotFound)
		}
		logrus.WithError(err).WithField("key", key).Error("Failed to read blob")
		return nil, err
	}
	return value, nil
}

func (s *sqliteStore) Put(ctx context.Context, key string, value []byte) error {
	if key == "" {
		return fmt.Errorf("blob key cannot be empty")
	}
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO blobs (name, value, updated_at) VALUES (?, ?, ?) ON CONFLICT(name) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at",
		key, value, time.Now().UnixMilli())
	if err != nil {
		logrus.WithError(err).WithField("key", key).Error("Failed to write blob")
	}
	return err
}

func (s *sqliteStore) Delete(ctx context.Context, key string) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM blobs WHERE name = ?", key)
	if err != nil {
		return err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("blob %s: %w", key, core.ErrNotFound)
	}
	return nil
}
