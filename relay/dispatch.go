package relay

import "time"

// Message is one outbound event with its recipients already resolved.
type Message struct {
	Event   string
	Payload any
	To      []ConnID
}

// State is everything the relay mutates: room membership, the snapshot
// cache, per-connection lifecycle and room activity. It is owned by a
// single dispatch loop and is not safe for concurrent use.
type State struct {
	Registry   *Registry
	Snapshots  *Snapshots
	lifecycle  map[ConnID]connState
	lastActive map[string]int64
	now        func() time.Time
}

func NewState() *State {
	return &State{
		Registry:   NewRegistry(),
		Snapshots:  NewSnapshots(),
		lifecycle:  make(map[ConnID]connState),
		lastActive: make(map[string]int64),
		now:        time.Now,
	}
}

type handler func(st *State, ev Event) []Message

var handlers = map[Kind]handler{
	KindConnect:        handleConnect,
	KindDisconnect:     handleDisconnect,
	KindJoin:           handleJoin,
	KindLeave:          handleLeave,
	KindContentEdit:    handleContentEdit,
	KindTitleEdit:      handleTitleEdit,
	KindRowAppend:      handleRowAppend,
	KindRowEdit:        handleRowEdit,
	KindRowDelete:      handleRowDelete,
	KindStructural:     handleStructural,
	KindPresenceUpdate: handlePresenceUpdate,
	KindPresenceLeave:  handlePresenceLeave,
	KindTyping:         handleTyping,
}

// Apply runs ev against st and returns the messages to deliver. Events from
// connections that are not live are dropped, as are events of unknown kind.
func Apply(st *State, ev Event) []Message {
	h, ok := handlers[ev.Kind]
	if !ok {
		return nil
	}
	if ev.Kind != KindConnect && !st.live(ev.Conn) {
		return nil
	}
	return h(st, ev)
}

// touch records activity in room. Rooms without members are not tracked.
func (st *State) touch(room string) {
	if _, ok := st.Registry.rooms[room]; ok {
		st.lastActive[room] = st.now().UnixMilli()
	}
}

// forget drops activity records of rooms that have emptied out.
func (st *State) forget(rooms ...string) {
	for _, room := range rooms {
		if _, ok := st.Registry.rooms[room]; !ok {
			delete(st.lastActive, room)
		}
	}
}

// toRoom addresses every member of room, the sender included.
func (st *State) toRoom(room, event string, payload any) []Message {
	members := st.Registry.membersOf(room)
	if len(members) == 0 {
		return nil
	}
	return []Message{{Event: event, Payload: payload, To: members}}
}

// toOthers addresses every member of room except the sender.
func (st *State) toOthers(room string, sender ConnID, event string, payload any) []Message {
	members := without(st.Registry.membersOf(room), sender)
	if len(members) == 0 {
		return nil
	}
	return []Message{{Event: event, Payload: payload, To: members}}
}

func handleJoin(st *State, ev Event) []Message {
	room := ev.Room()
	if room == "" {
		return nil
	}
	st.Registry.Join(ev.Conn, room)
	st.touch(room)

	if ev.Name != EventDocumentJoin {
		return nil
	}

	snap := st.Snapshots.Get(room)
	update := Payload{"documentId": room, "content": snap.Content}
	if len(snap.Rows) > 0 {
		update["rows"] = snap.Rows
	}
	self := []ConnID{ev.Conn}
	return []Message{
		{Event: EventDocumentUpdate, Payload: update, To: self},
		{Event: EventTitleUpdate, Payload: Payload{"documentId": room, "title": snap.Title}, To: self},
	}
}

func handleLeave(st *State, ev Event) []Message {
	room := ev.Room()
	st.Registry.Leave(ev.Conn, room)
	st.forget(room)
	return nil
}

func handleContentEdit(st *State, ev Event) []Message {
	id := ev.Payload.String("documentId")
	content := ev.Payload.String("content")
	st.Snapshots.SetContent(id, content)
	st.touch(id)

	return st.toOthers(id, ev.Conn, EventDocumentUpdate, Payload{"documentId": id, "content": content})
}

func handleTitleEdit(st *State, ev Event) []Message {
	id := ev.Payload.String("documentId")
	title := ev.Payload.String("title")
	st.Snapshots.SetTitle(id, title)
	st.touch(id)

	return st.toOthers(id, ev.Conn, EventTitleUpdate, Payload{"documentId": id, "title": title})
}

func handleRowAppend(st *State, ev Event) []Message {
	id := ev.Payload.String("documentId")
	idx := st.Snapshots.AppendRow(id, ev.Payload.String("value"))
	room := ev.Room()
	st.touch(room)

	out := ev.Payload.clone()
	out["index"] = idx
	return st.toRoom(room, EventRowAdded, out)
}

func handleRowEdit(st *State, ev Event) []Message {
	id := ev.Payload.String("documentId")
	// Out of range indexes are still relayed, just not cached.
	if idx, ok := ev.Payload.Int("index"); ok {
		st.Snapshots.SetRow(id, idx, ev.Payload.String("value"))
	}
	room := ev.Room()
	st.touch(room)

	return st.toRoom(room, EventRowUpdated, ev.Payload)
}

func handleRowDelete(st *State, ev Event) []Message {
	id := ev.Payload.String("documentId")
	if idx, ok := ev.Payload.Int("index"); ok {
		st.Snapshots.DeleteRow(id, idx)
	}
	room := ev.Room()
	st.touch(room)

	return st.toRoom(room, EventRowDeleted, ev.Payload)
}

// handleStructural fans document create/rename/delete out to every live
// connection regardless of room, so all document lists stay in step. Create
// skips its sender while rename and delete do not.
func handleStructural(st *State, ev Event) []Message {
	var (
		event = structuralEvents[ev.Name]
		to    = st.Registry.Connections()
	)
	if ev.Name == EventDocumentCreate {
		to = without(to, ev.Conn)
	}
	if len(to) == 0 {
		return nil
	}
	return []Message{{Event: event, Payload: ev.Payload, To: to}}
}

var structuralEvents = map[string]string{
	EventDocumentCreate: EventDocumentCreated,
	EventDocumentRename: EventDocumentRenamed,
	EventDocumentDelete: EventDocumentDeleted,
}

func handlePresenceUpdate(st *State, ev Event) []Message {
	return st.toOthers(ev.Room(), ev.Conn, EventCursorUpdate, ev.Payload)
}

func handlePresenceLeave(st *State, ev Event) []Message {
	return st.toOthers(ev.Room(), ev.Conn, EventCursorLeft, Payload{"userId": ev.Payload["userId"]})
}

func handleTyping(st *State, ev Event) []Message {
	return st.toOthers(ev.Room(), ev.Conn, ev.Name, ev.Payload)
}
