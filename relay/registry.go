package relay

import "sort"

// ConnID identifies a live transport connection.
type ConnID string

// Registry maps room keys to the connections currently inside them. Rooms are
// created on first join and dropped once their last member leaves.
type Registry struct {
	rooms map[string]map[ConnID]struct{}
	conns map[ConnID]map[string]struct{}
}

func NewRegistry() *Registry {
	return &Registry{
		rooms: make(map[string]map[ConnID]struct{}),
		conns: make(map[ConnID]map[string]struct{}),
	}
}

// Connect registers a connection with no room memberships. Connecting an
// already known connection is a no-op.
func (r *Registry) Connect(conn ConnID) {
	if _, ok := r.conns[conn]; ok {
		return
	}
	r.conns[conn] = make(map[string]struct{})
}

// Join adds conn to room. Joining twice has no additional effect.
func (r *Registry) Join(conn ConnID, room string) {
	r.Connect(conn)

	members, ok := r.rooms[room]
	if !ok {
		members = make(map[ConnID]struct{})
		r.rooms[room] = members
	}
	members[conn] = struct{}{}
	r.conns[conn][room] = struct{}{}
}

// Leave removes conn from room. Leaving a room the connection is not in is
// not an error.
func (r *Registry) Leave(conn ConnID, room string) {
	if joined, ok := r.conns[conn]; ok {
		delete(joined, room)
	}

	members, ok := r.rooms[room]
	if !ok {
		return
	}
	delete(members, conn)
	if len(members) == 0 {
		delete(r.rooms, room)
	}
}

// Disconnect forgets conn entirely and removes it from every room it had
// joined. It returns the rooms that were left, sorted.
func (r *Registry) Disconnect(conn ConnID) []string {
	joined, ok := r.conns[conn]
	if !ok {
		return nil
	}

	left := make([]string, 0, len(joined))
	for room := range joined {
		left = append(left, room)
	}
	sort.Strings(left)

	for _, room := range left {
		r.Leave(conn, room)
	}
	delete(r.conns, conn)
	return left
}

// Connected reports whether conn is known to the registry.
func (r *Registry) Connected(conn ConnID) bool {
	_, ok := r.conns[conn]
	return ok
}

// RoomsOf returns the rooms conn has joined, sorted.
func (r *Registry) RoomsOf(conn ConnID) []string {
	joined := r.conns[conn]
	rooms := make([]string, 0, len(joined))
	for room := range joined {
		rooms = append(rooms, room)
	}
	sort.Strings(rooms)
	return rooms
}

// membersOf returns the members of room in a stable order. It backs fan-out
// and is never handed to callers outside the package.
func (r *Registry) membersOf(room string) []ConnID {
	return sortedIDs(r.rooms[room])
}

// Connections returns every live connection in a stable order.
func (r *Registry) Connections() []ConnID {
	ids := make([]ConnID, 0, len(r.conns))
	for id := range r.conns {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Rooms returns the member count of every non-empty room.
func (r *Registry) Rooms() map[string]int {
	rooms := make(map[string]int, len(r.rooms))
	for id, members := range r.rooms {
		rooms[id] = len(members)
	}
	return rooms
}

func sortedIDs(set map[ConnID]struct{}) []ConnID {
	ids := make([]ConnID, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func without(ids []ConnID, skip ConnID) []ConnID {
	out := make([]ConnID, 0, len(ids))
	for _, id := range ids {
		if id != skip {
			out = append(out, id)
		}
	}
	return out
}
