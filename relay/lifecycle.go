package relay

type connState int

const (
	connUnknown connState = iota
	connConnected
)

// live reports whether conn has connected and not yet disconnected.
func (st *State) live(conn ConnID) bool {
	return st.lifecycle[conn] == connConnected
}

// Live reports whether conn is currently connected.
func (st *State) Live(conn ConnID) bool {
	return st.live(conn)
}

func handleConnect(st *State, ev Event) []Message {
	if st.live(ev.Conn) {
		return nil
	}
	st.lifecycle[ev.Conn] = connConnected
	st.Registry.Connect(ev.Conn)
	return nil
}

// handleDisconnect is terminal for the connection: it is dropped from every
// room it joined and forgotten. Events still queued behind it are discarded
// by Apply. A client coming back gets a fresh id from the transport and has
// to join its rooms again.
func handleDisconnect(st *State, ev Event) []Message {
	delete(st.lifecycle, ev.Conn)
	st.forget(st.Registry.Disconnect(ev.Conn)...)
	return nil
}
