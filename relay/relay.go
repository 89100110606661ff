package relay

import (
	"context"
	"errors"
	"sort"

	"github.com/sirupsen/logrus"
)

// Sender delivers a message to a single connection. Delivery is best effort:
// a connection that has gone away simply does not receive it.
type Sender interface {
	Send(conn ConnID, event string, payload any)
}

// RoomInfo describes an active room.
type RoomInfo struct {
	ID         string `json:"id"`
	Users      int    `json:"users"`
	LastActive *int64 `json:"lastActive,omitempty"`
}

// ErrStopped is returned when the relay loop is no longer running.
var ErrStopped = errors.New("relay stopped")

type task struct {
	event Event
	query func(st *State)
}

// Relay serializes every event through a single loop, so State is only ever
// touched by one goroutine.
type Relay struct {
	state  *State
	sender Sender
	queue  chan task
	done   chan struct{}
	log    *logrus.Entry
}

// New creates a relay that owns st. queueSize bounds the number of pending
// events; Submit drops events once it is full.
func New(st *State, sender Sender, queueSize int) *Relay {
	if queueSize < 1 {
		queueSize = 1
	}
	return &Relay{
		state:  st,
		sender: sender,
		queue:  make(chan task, queueSize),
		done:   make(chan struct{}),
		log:    logrus.WithField("component", "relay"),
	}
}

// Run processes events until ctx is cancelled.
func (r *Relay) Run(ctx context.Context) {
	defer close(r.done)
	r.log.Info("relay started")

	for {
		select {
		case <-ctx.Done():
			r.log.Info("relay stopped")
			return
		case t := <-r.queue:
			if t.query != nil {
				t.query(r.state)
				continue
			}
			r.dispatch(t.event)
		}
	}
}

func (r *Relay) dispatch(ev Event) {
	msgs := Apply(r.state, ev)

	log := r.log.WithFields(logrus.Fields{
		"event": ev.Name,
		"kind":  ev.Kind.String(),
		"conn":  ev.Conn,
	})
	if room := ev.Room(); room != "" {
		log = log.WithField("room", room)
	}
	log.WithField("messages", len(msgs)).Debug("event applied")

	for _, m := range msgs {
		for _, to := range m.To {
			r.sender.Send(to, m.Event, m.Payload)
		}
	}
}

// Submit enqueues ev without blocking. It reports false if the event was
// dropped because the queue is full or the relay has stopped.
func (r *Relay) Submit(ev Event) bool {
	select {
	case <-r.done:
		return false
	default:
	}

	select {
	case r.queue <- task{event: ev}:
		return true
	default:
		r.log.WithFields(logrus.Fields{
			"event": ev.Name,
			"conn":  ev.Conn,
		}).Warn("relay queue full, dropping event")
		return false
	}
}

// Connect and Disconnect enqueue lifecycle events for conn. Unlike Submit
// they wait for room in the queue: losing a disconnect would leave a dead
// connection in its rooms. They report false once the relay has stopped.
func (r *Relay) Connect(conn ConnID) bool {
	return r.enqueue(Event{Kind: KindConnect, Name: "connect", Conn: conn})
}

func (r *Relay) Disconnect(conn ConnID) bool {
	return r.enqueue(Event{Kind: KindDisconnect, Name: "disconnect", Conn: conn})
}

func (r *Relay) enqueue(ev Event) bool {
	select {
	case <-r.done:
		return false
	default:
	}

	select {
	case r.queue <- task{event: ev}:
		return true
	case <-r.done:
		return false
	}
}

// Rooms returns the active rooms, most populated first, then most recently
// active, then by id.
func (r *Relay) Rooms(ctx context.Context) ([]RoomInfo, error) {
	result := make(chan []RoomInfo, 1)
	query := func(st *State) {
		result <- roomInfos(st)
	}

	select {
	case r.queue <- task{query: query}:
	case <-r.done:
		return nil, ErrStopped
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	select {
	case rooms := <-result:
		return rooms, nil
	case <-r.done:
		return nil, ErrStopped
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func roomInfos(st *State) []RoomInfo {
	counts := st.Registry.Rooms()
	rooms := make([]RoomInfo, 0, len(counts))
	for id, users := range counts {
		info := RoomInfo{ID: id, Users: users}
		if last, ok := st.lastActive[id]; ok {
			info.LastActive = &last
		}
		rooms = append(rooms, info)
	}

	sort.Slice(rooms, func(i, j int) bool {
		if rooms[i].Users != rooms[j].Users {
			return rooms[i].Users > rooms[j].Users
		}
		li, lj := lastActive(rooms[i]), lastActive(rooms[j])
		if li != lj {
			return li > lj
		}
		return rooms[i].ID < rooms[j].ID
	})
	return rooms
}

func lastActive(info RoomInfo) int64 {
	if info.LastActive == nil {
		return 0
	}
	return *info.LastActive
}
