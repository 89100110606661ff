package aws

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/url"
	"path"
	"sort"
	"sparkpad-server/core"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"
)

// objectAPI is the part of *s3.Client the store relies on.
type objectAPI interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// s3Store lays objects out as
//
//	documents/<id>.json
//	revisions/<id>/<revision id>.json
//	blobs/<key>
type s3Store struct {
	s3Client     objectAPI
	bucket       string
	maxRevisions int
}

// NewStore creates a new S3-based store.
func NewStore(bucketName string, maxRevisions int) *s3Store {
	cfg, err := config.LoadDefaultConfig(context.TODO())
	if err != nil {
		log.Fatalf("unable to load SDK config, %v", err)
	}
	return newStore(s3.NewFromConfig(cfg), bucketName, maxRevisions)
}

func newStore(client objectAPI, bucketName string, maxRevisions int) *s3Store {
	if maxRevisions < 1 {
		maxRevisions = core.DefaultMaxRevisions
	}
	return &s3Store{s3Client: client, bucket: bucketName, maxRevisions: maxRevisions}
}

// objectKey joins name below prefix, rejecting names that are paths.
func objectKey(prefix, name string) (string, error) {
	if name == "" || name == "." || name == ".." {
		return "", fmt.Errorf("invalid id %q", name)
	}
	if path.Base(name) != name {
		return "", fmt.Errorf("invalid id %q: must not be a path", name)
	}
	return path.Join(prefix, name), nil
}

// blobKey escapes key so that slashes stay part of one object name.
func blobKey(key string) (string, error) {
	if key == "" {
		return "", fmt.Errorf("blob key cannot be empty")
	}
	return "blobs/" + url.PathEscape(key), nil
}

func isNotFound(err error) bool {
	var nsk *s3types.NoSuchKey
	var nf *s3types.NotFound
	return errors.As(err, &nsk) || errors.As(err, &nf)
}

func (s *s3Store) getObject(ctx context.Context, key string) ([]byte, error) {
	resp, err := s.s3Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	return io.ReadAll(resp.Body)
}

func (s *s3Store) putObject(ctx context.Context, key string, data []byte) error {
	_, err := s.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(data),
	})
	return err
}

func (s *s3Store) putJSON(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.putObject(ctx, key, data)
}

func (s *s3Store) FindID(ctx context.Context, id string) (*core.Document, error) {
	key, err := objectKey("documents", id)
	if err != nil {
		return nil, err
	}

	data, err := s.getObject(ctx, key+".json")
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("document %s: %w", id, core.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get document with id %s: %v", id, err)
	}

	var doc core.Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to unmarshal document %s: %v", id, err)
	}
	return &doc, nil
}

func (s *s3Store) Create(ctx context.Context, document *core.Document) (string, error) {
	now := time.Now()
	document.ID = ulid.Make().String()
	document.CreatedAt = now
	document.UpdatedAt = now

	if err := s.putJSON(ctx, path.Join("documents", document.ID+".json"), document); err != nil {
		return "", fmt.Errorf("failed to upload document: %v", err)
	}

	logrus.WithField("document_id", document.ID).Info("Document created successfully")
	return document.ID, nil
}

func (s *s3Store) Update(ctx context.Context, document *core.Document) error {
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
	if err := s.putJSON(ctx, path.Join("revisions", prev.ID, rev.ID+".json"), rev); err != nil {
		return fmt.Errorf("failed to upload revision: %v", err)
	}

	document.ProjectID = prev.ProjectID
	document.CreatedAt = prev.CreatedAt
	document.UpdatedAt = now
	if err := s.putJSON(ctx, path.Join("documents", document.ID+".json"), document); err != nil {
		return fmt.Errorf("failed to upload document: %v", err)
	}

	if err := s.trimRevisions(ctx, document.ID); err != nil {
		logrus.WithError(err).WithField("document_id", document.ID).Warn("Failed to trim revisions")
	}
	return nil
}

// revisionKeys lists the revision object keys of a document, oldest first.
func (s *s3Store) revisionKeys(ctx context.Context, id string) ([]string, error) {
	var keys []string
	paginator := s3.NewListObjectsV2Paginator(s.s3Client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(path.Join("revisions", id) + "/"),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list revisions for %s: %v", id, err)
		}
		for _, object := range page.Contents {
			keys = append(keys, aws.ToString(object.Key))
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *s3Store) trimRevisions(ctx context.Context, id string) error {
	keys, err := s.revisionKeys(ctx, id)
	if err != nil {
		return err
	}
	for len(keys) > s.maxRevisions {
		_, err := s.s3Client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(keys[0]),
		})
		if err != nil {
			return err
		}
		keys = keys[1:]
	}
	return nil
}

func (s *s3Store) History(ctx context.Context, id string) ([]core.Revision, error) {
	if _, err := s.FindID(ctx, id); err != nil {
		return nil, err
	}

	keys, err := s.revisionKeys(ctx, id)
	if err != nil {
		return nil, err
	}

	revs := make([]core.Revision, 0, len(keys))
	for i := len(keys) - 1; i >= 0; i-- {
		data, err := s.getObject(ctx, keys[i])
		if err != nil {
			log.Printf("warn: failed to get object %s: %v", keys[i], err)
			continue
		}
		var rev core.Revision
		if err := json.Unmarshal(data, &rev); err != nil {
			log.Printf("warn: failed to unmarshal revision %s: %v", keys[i], err)
			continue
		}
		revs = append(revs, rev)
	}
	return revs, nil
}

func (s *s3Store) Get(ctx context.Context, key string) ([]byte, error) {
	objKey, err := blobKey(key)
	if err != nil {
		return nil, err
	}
	data, err := s.getObject(ctx, objKey)
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("blob %s: %w", key, core.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get blob %s: %v", key, err)
	}
	return data, nil
}

func (s *s3Store) Put(ctx context.Context, key string, value []byte) error {
	objKey, err := blobKey(key)
	if err != nil {
		return err
	}
	if err := s.putObject(ctx, objKey, value); err != nil {
		return fmt.Errorf("failed to upload blob %s: %v", key, err)
	}
	return nil
}

func (s *s3Store) Delete(ctx context.Context, key string) error {
	objKey, err := blobKey(key)
	if err != nil {
		return err
	}

	// DeleteObject succeeds for missing keys, so check first.
	_, err = s.s3Client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(objKey),
	})
	if err != nil {
		if isNotFound(err) {
			return fmt.Errorf("blob %s: %w", key, core.ErrNotFound)
		}
		return fmt.Errorf("failed to stat blob %s: %v", key, err)
	}

	_, err = s.s3Client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(objKey),
	})
	if err != nil {
		return fmt.Errorf("failed to delete blob %s: %v", key, err)
	}
	return nil
}
