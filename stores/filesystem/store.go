package filesystem

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/url"
	"os"
	"path/filepath"
	"sparkpad-server/core"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"
)

// fsStore keeps documents, revisions and blobs as files below basePath:
//
//	documents/<id>.json
//	revisions/<id>/<revision id>.json
//	blobs/<escaped key>
type fsStore struct {
	basePath     string
	maxRevisions int
}

// NewStore creates a new filesystem-based store.
func NewStore(basePath string, maxRevisions int) *fsStore {
	for _, dir := range []string{"documents", "revisions", "blobs"} {
		if err := os.MkdirAll(filepath.Join(basePath, dir), 0755); err != nil {
			log.Fatalf("failed to create storage directory: %v", err)
		}
	}
	if maxRevisions < 1 {
		maxRevisions = core.DefaultMaxRevisions
	}
	return &fsStore{basePath: basePath, maxRevisions: maxRevisions}
}

// resolve joins name below dir and makes sure the result does not escape it.
func (s *fsStore) resolve(dir, name string) (string, error) {
	if name == "" || name == "." || name == ".." {
		return "", fmt.Errorf("invalid name %q", name)
	}
	root, err := filepath.Abs(filepath.Join(s.basePath, dir))
	if err != nil {
		return "", err
	}
	path, err := filepath.Abs(filepath.Join(root, url.PathEscape(name)))
	if err != nil {
		return "", err
	}
	if !strings.HasPrefix(path, root+string(filepath.Separator)) {
		return "", fmt.Errorf("invalid path: access denied")
	}
	return path, nil
}

func (s *fsStore) documentPath(id string) (string, error) {
	path, err := s.resolve("documents", id)
	if err != nil {
		return "", err
	}
	return path + ".json", nil
}

func (s *fsStore) FindID(ctx context.Context, id string) (*core.Document, error) {
	log := logrus.WithField("document_id", id)

	path, err := s.documentPath(id)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			log.Warn("Document with specified ID not found")
			return nil, fmt.Errorf("document %s: %w", id, core.ErrNotFound)
		}
		log.WithError(err).Error("Failed to read document")
		return nil, err
	}

	var doc core.Document
	if err := json.Unmarshal(data, &doc); err != nil {
		log.WithError(err).Error("Failed to unmarshal document")
		return nil, err
	}

	log.Debug("Document retrieved successfully")
	return &doc, nil
}

func (s *fsStore) writeDocument(doc *core.Document) error {
	path, err := s.documentPath(doc.ID)
	if err != nil {
		return err
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func (s *fsStore) Create(ctx context.Context, document *core.Document) (string, error) {
	now := time.Now()
	document.ID = ulid.Make().String()
	document.CreatedAt = now
	document.UpdatedAt = now

	log := logrus.WithField("document_id", document.ID)
	if err := s.writeDocument(document); err != nil {
		log.WithError(err).Error("Failed to create document")
		return "", err
	}

	log.Info("Document created successfully")
	return document.ID, nil
}

func (s *fsStore) Update(ctx context.Context, document *core.Document) error {
	log := logrus.WithField("document_id", document.ID)

	prev, err := s.FindID(ctx, document.ID)
	if err != nil {
		return err
	}

	now := time.Now()
	rev := core.Revision{
		ID:         ulid.Make().String(),
		DocumentID: prev.ID,
		Title:      prev.Title,
		Content:    prev.Content,
		CreatedAt:  now,
	}
	if err := s.writeRevision(rev); err != nil {
		log.WithError(err).Error("Failed to record revision")
		return err
	}

	document.ProjectID = prev.ProjectID
	document.CreatedAt = prev.CreatedAt
	document.UpdatedAt = now
	if err := s.writeDocument(document); err != nil {
		log.WithError(err).Error("Failed to write document")
		return err
	}

	if err := s.trimRevisions(document.ID); err != nil {
		log.WithError(err).Warn("Failed to trim revisions")
	}

	log.Info("Document updated successfully")
	return nil
}

func (s *fsStore) revisionDir(id string) (string, error) {
	return s.resolve("revisions", id)
}

func (s *fsStore) writeRevision(rev core.Revision) error {
	dir, err := s.revisionDir(rev.DocumentID)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	data, err := json.Marshal(rev)
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, rev.ID+".json"), data, 0644)
}

// revisionFiles lists the revision files of a document, oldest first. ULID
// file names sort by creation time.
func (s *fsStore) revisionFiles(id string) ([]string, error) {
	dir, err := s.revisionDir(id)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	files := make([]string, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".json") {
			files = append(files, filepath.Join(dir, entry.Name()))
		}
	}
	return files, nil
}

func (s *fsStore) trimRevisions(id string) error {
	files, err := s.revisionFiles(id)
	if err != nil {
		return err
	}
	for len(files) > s.maxRevisions {
		if err := os.Remove(files[0]); err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
		files = files[1:]
	}
	return nil
}

func (s *fsStore) History(ctx context.Context, id string) ([]core.Revision, error) {
	if _, err := s.FindID(ctx, id); err != nil {
		return nil, err
	}

	files, err := s.revisionFiles(id)
	if err != nil {
		return nil, err
	}

	log := logrus.WithField("document_id", id)
	revs := make([]core.Revision, 0, len(files))
	for i := len(files) - 1; i >= 0; i-- {
		data, err := os.ReadFile(files[i])
		if err != nil {
			log.WithError(err).Warnf("Failed to read revision file %s, skipping", files[i])
			continue
		}
		var rev core.Revision
		if err := json.Unmarshal(data, &rev); err != nil {
			log.WithError(err).Warnf("Failed to unmarshal revision file %s, skipping", files[i])
			continue
		}
		revs = append(revs, rev)
	}
	return revs, nil
}

func (s *fsStore) Get(ctx context.Context, key string) ([]byte, error) {
	path, err := s.resolve("blobs", key)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("blob %s: %w", key, core.ErrNotFound)
		}
		logrus.WithError(err).WithField("key", key).Error("Failed to read blob")
		return nil, err
	}
	return data, nil
}

func (s *fsStore) Put(ctx context.Context, key string, value []byte) error {
	path, err := s.resolve("blobs", key)
	if err != nil {
		return err
	}

	if err := os.WriteFile(path, value, 0644); err != nil {
		logrus.WithError(err).WithField("key", key).Error("Failed to write blob")
		return err
	}
	return nil
}

func (s *fsStore) Delete(ctx context.Context, key string) error {
	path, err := s.resolve("blobs", key)
	if err != nil {
		return err
	}

	if err := os.Remove(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("blob %s: %w", key, core.ErrNotFound)
		}
		return err
	}
	return nil
}
