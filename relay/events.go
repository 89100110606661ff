package relay

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
)

// Kind tags an inbound event with its relay policy.
type Kind int

const (
	KindUnknown Kind = iota
	KindConnect
	KindDisconnect
	KindJoin
	KindLeave
	KindContentEdit
	KindTitleEdit
	KindRowAppend
	KindRowEdit
	KindRowDelete
	KindStructural
	KindPresenceUpdate
	KindPresenceLeave
	KindTyping
)

var kindNames = map[Kind]string{
	KindUnknown:        "unknown",
	KindConnect:        "connect",
	KindDisconnect:     "disconnect",
	KindJoin:           "join",
	KindLeave:          "leave",
	KindContentEdit:    "content-edit",
	KindTitleEdit:      "title-edit",
	KindRowAppend:      "row-append",
	KindRowEdit:        "row-edit",
	KindRowDelete:      "row-delete",
	KindStructural:     "structural",
	KindPresenceUpdate: "presence-update",
	KindPresenceLeave:  "presence-leave",
	KindTyping:         "typing",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "kind(" + strconv.Itoa(int(k)) + ")"
}

// Inbound wire event names.
const (
	EventProjectJoin    = "project:join"
	EventProjectLeave   = "project:leave"
	EventDocumentJoin   = "document:join"
	EventDocumentEdit   = "document:edit"
	EventDocumentCreate = "document:create"
	EventDocumentRename = "document:rename"
	EventDocumentDelete = "document:delete"
	EventRowAdd         = "row:add"
	EventRowUpdate      = "row:update"
	EventRowDelete      = "row:delete"
	EventCursorUpdate   = "cursor:update"
	EventCursorLeave    = "cursor:leave"
	EventTitleEdit      = "title:edit"
	EventUserTyping     = "user:typing"
	EventUserStopTyping = "user:stopTyping"
)

// Outbound wire event names.
const (
	EventDocumentUpdate  = "document:update"
	EventTitleUpdate     = "title:update"
	EventDocumentCreated = "document:created"
	EventDocumentRenamed = "document:renamed"
	EventDocumentDeleted = "document:deleted"
	EventRowAdded        = "row:added"
	EventRowUpdated      = "row:updated"
	EventRowDeleted      = "row:deleted"
	EventCursorLeft      = "cursor:left"
)

// ErrUnknownEvent is returned by Parse for names outside the wire contract.
var ErrUnknownEvent = errors.New("unknown event")

// inboundKinds is the wire contract: every event name a client may send.
var inboundKinds = map[string]Kind{
	EventProjectJoin:    KindJoin,
	EventProjectLeave:   KindLeave,
	EventDocumentJoin:   KindJoin,
	EventDocumentEdit:   KindContentEdit,
	EventDocumentCreate: KindStructural,
	EventDocumentRename: KindStructural,
	EventDocumentDelete: KindStructural,
	EventRowAdd:         KindRowAppend,
	EventRowUpdate:      KindRowEdit,
	EventRowDelete:      KindRowDelete,
	EventCursorUpdate:   KindPresenceUpdate,
	EventCursorLeave:    KindPresenceLeave,
	EventTitleEdit:      KindTitleEdit,
	EventUserTyping:     KindTyping,
	EventUserStopTyping: KindTyping,
}

// InboundEvents lists the event names a transport has to listen for.
func InboundEvents() []string {
	return []string{
		EventProjectJoin, EventProjectLeave,
		EventDocumentJoin, EventDocumentEdit,
		EventDocumentCreate, EventDocumentRename, EventDocumentDelete,
		EventRowAdd, EventRowUpdate, EventRowDelete,
		EventCursorUpdate, EventCursorLeave,
		EventTitleEdit,
		EventUserTyping, EventUserStopTyping,
	}
}

// Payload is the structured body of a wire event.
type Payload map[string]any

// String returns the field as a string. Absent fields yield "".
func (p Payload) String(key string) string {
	v, ok := p[key]
	if !ok || v == nil {
		return ""
	}
	return stringify(v)
}

// Int returns the field as an int. JSON numbers arrive as float64; numeric
// strings are accepted too. ok is false when the field is absent or not a
// number.
func (p Payload) Int(key string) (n int, ok bool) {
	switch v := p[key].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	case json.Number:
		i, err := v.Int64()
		return int(i), err == nil
	case string:
		i, err := strconv.Atoi(v)
		return i, err == nil
	}
	return 0, false
}

func (p Payload) clone() Payload {
	out := make(Payload, len(p)+1)
	for k, v := range p {
		out[k] = v
	}
	return out
}

// Event is one inbound message, tagged with its relay policy.
type Event struct {
	Kind    Kind
	Name    string
	Conn    ConnID
	Payload Payload
	// Arg holds a bare string argument, as sent by project:join and
	// project:leave.
	Arg string
}

// Room returns the room key the event is scoped to. Project membership
// events carry the key directly; row events prefer the project room and the
// rest are keyed by document.
func (e Event) Room() string {
	switch e.Kind {
	case KindJoin, KindLeave:
		if e.Name == EventDocumentJoin {
			return e.Payload.String("documentId")
		}
		if e.Arg != "" {
			return e.Arg
		}
		return e.Payload.String("projectId")
	case KindRowAppend, KindRowEdit, KindRowDelete:
		if project := e.Payload.String("projectId"); project != "" {
			return project
		}
	}
	return e.Payload.String("documentId")
}

// Parse converts a raw transport event into an Event. The relay trusts its
// callers: missing or mistyped fields are not rejected, they simply read as
// empty values.
func Parse(conn ConnID, name string, args ...any) (Event, error) {
	kind, ok := inboundKinds[name]
	if !ok {
		return Event{}, fmt.Errorf("%w: %q", ErrUnknownEvent, name)
	}

	ev := Event{Kind: kind, Name: name, Conn: conn, Payload: Payload{}}
	if len(args) == 0 {
		return ev, nil
	}

	switch v := args[0].(type) {
	case map[string]any:
		ev.Payload = Payload(v)
	case Payload:
		ev.Payload = v
	case string:
		ev.Arg = v
	case nil:
	default:
		ev.Arg = stringify(v)
	}
	return ev, nil
}

func stringify(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	case int:
		return strconv.Itoa(s)
	case bool:
		return strconv.FormatBool(s)
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}
