package rooms

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sparkpad-server/relay"
	"strings"
	"testing"
	"time"
)

type staticLister struct {
	rooms []relay.RoomInfo
	err   error
}

func (s staticLister) Rooms(ctx context.Context) ([]relay.RoomInfo, error) {
	return s.rooms, s.err
}

func TestHandleList_Empty(t *testing.T) {
	rec := httptest.NewRecorder()
	HandleList(staticLister{})(rec, httptest.NewRequest(http.MethodGet, "/api/rooms", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if body := strings.TrimSpace(rec.Body.String()); body != "[]" {
		t.Errorf("body = %q, want []", body)
	}
}

func TestHandleList_Stopped(t *testing.T) {
	rec := httptest.NewRecorder()
	HandleList(staticLister{err: relay.ErrStopped})(rec, httptest.NewRequest(http.MethodGet, "/api/rooms", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusServiceUnavailable)
	}
}

// noopSender discards relay output.
type noopSender struct{}

func (noopSender) Send(relay.ConnID, string, any) {}

func TestHandleList_LiveRelay(t *testing.T) {
	r := relay.New(relay.NewState(), noopSender{}, 16)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go r.Run(ctx)

	for _, conn := range []relay.ConnID{"a", "b", "c"} {
		r.Connect(conn)
	}
	join := func(conn relay.ConnID, doc string) {
		ev, err := relay.Parse(conn, relay.EventDocumentJoin, map[string]any{"documentId": doc})
		if err != nil {
			t.Fatal(err)
		}
		r.Submit(ev)
	}
	join("a", "busy")
	join("b", "busy")
	join("c", "quiet")

	// The room query is queued behind the joins, so it sees them.
	deadline, stop := context.WithTimeout(ctx, time.Second)
	defer stop()
	req := httptest.NewRequest(http.MethodGet, "/api/rooms", nil).WithContext(deadline)
	rec := httptest.NewRecorder()
	HandleList(r)(rec, req)

	var rooms []relay.RoomInfo
	if err := json.NewDecoder(rec.Body).Decode(&rooms); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if len(rooms) != 2 {
		t.Fatalf("Expected 2 rooms, got %+v", rooms)
	}
	if rooms[0].ID != "busy" || rooms[0].Users != 2 || rooms[1].ID != "quiet" {
		t.Errorf("rooms = %+v, want busy(2) before quiet(1)", rooms)
	}
	if rooms[0].LastActive == nil {
		t.Error("busy room should report lastActive")
	}
}
