package websocket

import (
	"errors"
	"sparkpad-server/relay"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/zishang520/engine.io/v2/types"
	socketio "github.com/zishang520/socket.io/v2/socket"
)

// Dispatcher is the part of the relay the transport feeds.
type Dispatcher interface {
	Connect(conn relay.ConnID) bool
	Disconnect(conn relay.ConnID) bool
	Submit(ev relay.Event) bool
}

type emitter interface {
	Emit(ev string, args ...any) error
}

// Sockets maps relay connection ids to live Socket.IO sockets and implements
// relay.Sender on top of them.
type Sockets struct {
	mu    sync.RWMutex
	conns map[relay.ConnID]emitter
}

func NewSockets() *Sockets {
	return &Sockets{conns: make(map[relay.ConnID]emitter)}
}

func (s *Sockets) add(conn relay.ConnID, e emitter) {
	s.mu.Lock()
	s.conns[conn] = e
	s.mu.Unlock()
}

func (s *Sockets) remove(conn relay.ConnID) {
	s.mu.Lock()
	delete(s.conns, conn)
	s.mu.Unlock()
}

// Len returns the number of live sockets.
func (s *Sockets) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.conns)
}

// Send emits event to conn. Unknown connections are skipped.
func (s *Sockets) Send(conn relay.ConnID, event string, payload any) {
	s.mu.RLock()
	e, ok := s.conns[conn]
	s.mu.RUnlock()
	if !ok {
		logrus.WithFields(logrus.Fields{"conn": conn, "event": event}).Debug("dropping message for closed connection")
		return
	}
	if err := e.Emit(event, payload); err != nil {
		logrus.WithError(err).WithFields(logrus.Fields{"conn": conn, "event": event}).Warn("emit failed")
	}
}

type Options struct {
	AllowedOrigins    []string
	MaxHTTPBufferSize int64
}

func SetupSocketIO(d Dispatcher, sockets *Sockets, options Options) *socketio.Server {
	opts := socketio.DefaultServerOptions()
	opts.SetMaxHttpBufferSize(options.MaxHTTPBufferSize)
	opts.SetPath("/socket.io")
	opts.SetAllowEIO3(true)
	origins := make([]any, 0, len(options.AllowedOrigins))
	for _, origin := range options.AllowedOrigins {
		origins = append(origins, origin)
	}
	opts.SetCors(&types.Cors{
		Origin:      origins,
		Credentials: true,
	})
	srv := socketio.NewServer(nil, opts)

	//nolint:errcheck // Socket.IO event handlers do not return useful errors
	srv.On("connection", func(clients ...any) {
		socket, ok := clients[0].(*socketio.Socket)
		if !ok {
			return
		}

		conn := relay.ConnID(socket.Id())
		sockets.add(conn, socket)
		d.Connect(conn)
		logrus.WithField("conn", conn).Debug("socket connected")

		for _, name := range relay.InboundEvents() {
			name := name
			//nolint:errcheck // Socket.IO event handlers do not return useful errors
			socket.On(name, func(datas ...any) {
				handleEvent(d, conn, name, datas)
			})
		}

		//nolint:errcheck // Socket.IO event handlers do not return useful errors
		socket.On("disconnect", func(datas ...any) {
			d.Disconnect(conn)
			sockets.remove(conn)
			socket.RemoveAllListeners("")
			logrus.WithField("conn", conn).Debug("socket disconnected")
		})
	})

	return srv
}

var errDropped = errors.New("event dropped")

func handleEvent(d Dispatcher, conn relay.ConnID, name string, datas []any) {
	args, ack := extractAck(datas)

	ev, err := relay.Parse(conn, name, args...)
	if err != nil {
		logrus.WithError(err).WithField("conn", conn).Warn("ignoring event")
		ack.respond(err)
		return
	}

	if !d.Submit(ev) {
		ack.respond(errDropped)
		return
	}
	ack.respond(nil)
}

// ackFunc acknowledges an event for clients that asked for it. A nil ackFunc
// does nothing.
type ackFunc func(status map[string]any)

func (a ackFunc) respond(err error) {
	if a == nil {
		return
	}
	status := map[string]any{"status": "ok"}
	if err != nil {
		status["status"] = "error"
		status["error"] = err.Error()
	}
	a(status)
}

// extractAck splits a trailing acknowledgement callback off the event
// arguments.
func extractAck(datas []any) ([]any, ackFunc) {
	if len(datas) == 0 {
		return datas, nil
	}

	args := datas[:len(datas)-1]
	switch fn := datas[len(datas)-1].(type) {
	case func([]any, error):
		return args, func(status map[string]any) { fn([]any{status}, nil) }
	case func(...any):
		return args, func(status map[string]any) { fn(status) }
	}
	return datas, nil
}
