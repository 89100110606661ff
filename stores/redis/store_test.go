package redis

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sparkpad-server/core"
	"testing"

	"github.com/oklog/ulid/v2"
	"github.com/redis/go-redis/v9"
)

// newTestStore connects to SPARKPAD_TEST_REDIS_ADDRESS and isolates the test
// under a fresh key prefix.
func newTestStore(t *testing.T, maxRevisions int) *redisStore {
	t.Helper()
	address := os.Getenv("SPARKPAD_TEST_REDIS_ADDRESS")
	if address == "" {
		t.Skip("SPARKPAD_TEST_REDIS_ADDRESS not set")
	}

	rdb := redis.NewClient(&redis.Options{Addr: address})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		t.Skipf("redis not reachable at %s: %v", address, err)
	}

	prefix := "sparkpad-test-" + ulid.Make().String()
	t.Cleanup(func() {
		ctx := context.Background()
		keys, _ := rdb.Keys(ctx, prefix+":*").Result()
		if len(keys) > 0 {
			rdb.Del(ctx, keys...)
		}
		rdb.Close()
	})
	return newStore(rdb, prefix, maxRevisions)
}

func TestKeys(t *testing.T) {
	s := newStore(nil, "p", 0)
	if s.maxRevisions != core.DefaultMaxRevisions {
		t.Errorf("maxRevisions = %d, want default", s.maxRevisions)
	}
	if got := s.documentKey("d1"); got != "p:document:d1" {
		t.Errorf("documentKey() = %q", got)
	}
	if got := s.revisionsKey("d1"); got != "p:revisions:d1" {
		t.Errorf("revisionsKey() = %q", got)
	}
	if got := s.blobKey("a:b"); got != "p:blob:a:b" {
		t.Errorf("blobKey() = %q", got)
	}
}

func TestDocuments(t *testing.T) {
	store := newTestStore(t, 2)
	ctx := context.Background()

	id, err := store.Create(ctx, &core.Document{Title: "t", Content: "0", ProjectID: "p1"})
	if err != nil {
		t.Fatalf("Create() failed: %v", err)
	}
	for i := 1; i <= 3; i++ {
		if err := store.Update(ctx, &core.Document{ID: id, Content: fmt.Sprint(i)}); err != nil {
			t.Fatalf("Update(%d) failed: %v", i, err)
		}
	}

	doc, err := store.FindID(ctx, id)
	if err != nil {
		t.Fatalf("FindID() failed: %v", err)
	}
	if doc.Content != "3" || doc.ProjectID != "p1" {
		t.Errorf("FindID() = %+v", doc)
	}

	history, err := store.History(ctx, id)
	if err != nil {
		t.Fatalf("History() failed: %v", err)
	}
	if len(history) != 2 || history[0].Content != "2" || history[1].Content != "1" {
		t.Errorf("History() = %+v, want contents 2, 1", history)
	}

	if _, err := store.FindID(ctx, "missing"); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("FindID() error = %v, want ErrNotFound", err)
	}
	if err := store.Update(ctx, &core.Document{ID: "missing"}); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("Update() error = %v, want ErrNotFound", err)
	}
}

func TestBlobs(t *testing.T) {
	store := newTestStore(t, 2)
	ctx := context.Background()

	if err := store.Put(ctx, "k", []byte("v")); err != nil {
		t.Fatalf("Put() failed: %v", err)
	}
	if got, err := store.Get(ctx, "k"); err != nil || string(got) != "v" {
		t.Errorf("Get() = %q, %v", got, err)
	}
	if err := store.Delete(ctx, "k"); err != nil {
		t.Fatalf("Delete() failed: %v", err)
	}
	if err := store.Delete(ctx, "k"); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("Delete() of missing blob = %v, want ErrNotFound", err)
	}
}
