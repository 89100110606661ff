package relay

import (
	"testing"
)

func contains(ids []ConnID, id ConnID) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

func TestRegistryJoinLeave(t *testing.T) {
	reg := NewRegistry()

	reg.Join("c1", "room-1")
	if !contains(reg.membersOf("room-1"), "c1") {
		t.Fatal("c1 should be a member of room-1 after Join")
	}

	reg.Leave("c1", "room-1")
	if contains(reg.membersOf("room-1"), "c1") {
		t.Error("c1 should not be a member of room-1 after Leave")
	}

	if _, ok := reg.Rooms()["room-1"]; ok {
		t.Error("empty room should be dropped")
	}
}

func TestRegistryJoinIdempotent(t *testing.T) {
	reg := NewRegistry()

	reg.Join("c1", "room-1")
	reg.Join("c1", "room-1")

	if got := len(reg.membersOf("room-1")); got != 1 {
		t.Errorf("Expected 1 member after double join, got %d", got)
	}
	if got := reg.Rooms()["room-1"]; got != 1 {
		t.Errorf("Expected room count 1, got %d", got)
	}
}

func TestRegistryLeaveUnknown(t *testing.T) {
	reg := NewRegistry()

	// Neither the connection nor the room exists.
	reg.Leave("ghost", "nowhere")

	reg.Join("c1", "room-1")
	reg.Leave("c1", "room-2")

	if !contains(reg.membersOf("room-1"), "c1") {
		t.Error("leaving an unrelated room must not affect other memberships")
	}
}

func TestRegistryDisconnectCleansEveryRoom(t *testing.T) {
	reg := NewRegistry()

	reg.Join("c1", "doc-1")
	reg.Join("c1", "doc-2")
	reg.Join("c1", "project-1")
	reg.Join("c2", "doc-1")

	left := reg.Disconnect("c1")
	if len(left) != 3 {
		t.Fatalf("Expected 3 rooms left, got %v", left)
	}

	for _, room := range []string{"doc-1", "doc-2", "project-1"} {
		if contains(reg.membersOf(room), "c1") {
			t.Errorf("c1 still a member of %s after Disconnect", room)
		}
	}

	if !contains(reg.membersOf("doc-1"), "c2") {
		t.Error("c2 should still be in doc-1")
	}
	if reg.Connected("c1") {
		t.Error("c1 should be forgotten after Disconnect")
	}

	rooms := reg.Rooms()
	if len(rooms) != 1 || rooms["doc-1"] != 1 {
		t.Errorf("Unexpected rooms after Disconnect: %v", rooms)
	}
}

func TestRegistryDisconnectUnknown(t *testing.T) {
	reg := NewRegistry()
	if left := reg.Disconnect("ghost"); left != nil {
		t.Errorf("Expected nil for unknown connection, got %v", left)
	}
}

func TestRegistryConnections(t *testing.T) {
	reg := NewRegistry()

	reg.Connect("b")
	reg.Connect("a")
	reg.Join("c", "room-1")

	got := reg.Connections()
	want := []ConnID{"a", "b", "c"}
	if len(got) != len(want) {
		t.Fatalf("Expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Connections()[%d] = %s, want %s", i, got[i], want[i])
		}
	}
}

func TestRegistryRoomsOf(t *testing.T) {
	reg := NewRegistry()

	reg.Join("c1", "b")
	reg.Join("c1", "a")

	rooms := reg.RoomsOf("c1")
	if len(rooms) != 2 || rooms[0] != "a" || rooms[1] != "b" {
		t.Errorf("RoomsOf() = %v, want [a b]", rooms)
	}
	if rooms := reg.RoomsOf("ghost"); len(rooms) != 0 {
		t.Errorf("RoomsOf(ghost) = %v, want empty", rooms)
	}
}
