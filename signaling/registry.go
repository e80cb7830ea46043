package signaling

import (
	"errors"
	"sync"
)

// ErrRegistryClosed is returned once the registry has been shut down
var ErrRegistryClosed = errors.New("signaling: registry closed")

// Conn is one participant connection as seen by the hub. Both the socket.io
// and the websocket transports satisfy it.
type Conn interface {
	ID() string
	Emit(event string, args ...interface{})
}

// Stats is a point-in-time view of the registry
type Stats struct {
	Rooms       int `json:"rooms"`
	Connections int `json:"connections"`
}

// Registry tracks which connections are in which room. Member order is join
// order. Rooms that empty out stay in the map.
type Registry struct {
	mu          sync.Mutex
	conns       map[string]Conn
	rooms       map[string][]string
	memberships map[string][]string
	closed      bool
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		conns:       map[string]Conn{},
		rooms:       map[string][]string{},
		memberships: map[string][]string{},
	}
}

// Register makes a connection addressable by its id
func (r *Registry) Register(conn Conn) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrRegistryClosed
	}
	r.conns[conn.ID()] = conn
	return nil
}

// Lookup finds a registered connection
func (r *Registry) Lookup(id string) (Conn, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	conn, ok := r.conns[id]
	return conn, ok
}

// Join adds the connection to the room and returns the first other member
// already present, if any.
func (r *Registry) Join(roomID, connID string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return "", ErrRegistryClosed
	}

	// Find the first existing member that isn't the joiner
	members := r.rooms[roomID]
	other := ""
	for _, id := range members {
		if id != connID {
			other = id
			break
		}
	}

	// Add the member unless it is already in the room
	if !contains(members, connID) {
		r.rooms[roomID] = append(members, connID)
		r.memberships[connID] = append(r.memberships[connID], roomID)
	}

	return other, nil
}

// Others returns the connections in the room, excluding the given id
func (r *Registry) Others(roomID, excludeID string) []Conn {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []Conn{}
	for _, id := range r.rooms[roomID] {
		if id == excludeID {
			continue
		}
		if conn, ok := r.conns[id]; ok {
			out = append(out, conn)
		}
	}
	return out
}

// Members returns a copy of the member ids of a room in join order
func (r *Registry) Members(roomID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.rooms[roomID]...)
}

// Remove drops the connection from every room it joined and forgets it. The
// result maps each of those rooms to the connections still in it.
func (r *Registry) Remove(connID string) map[string][]Conn {
	r.mu.Lock()
	defer r.mu.Unlock()

	remaining := map[string][]Conn{}
	for _, roomID := range r.memberships[connID] {
		members := without(r.rooms[roomID], connID)
		r.rooms[roomID] = members
		conns := []Conn{}
		for _, id := range members {
			if conn, ok := r.conns[id]; ok {
				conns = append(conns, conn)
			}
		}
		remaining[roomID] = conns
	}
	delete(r.memberships, connID)
	delete(r.conns, connID)
	return remaining
}

// Stats counts rooms with at least one member and registered connections
func (r *Registry) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	rooms := 0
	for _, members := range r.rooms {
		if len(members) > 0 {
			rooms++
		}
	}
	return Stats{Rooms: rooms, Connections: len(r.conns)}
}

// Close rejects any further joins and drops all state
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	r.conns = map[string]Conn{}
	r.rooms = map[string][]string{}
	r.memberships = map[string][]string{}
}

func contains(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

func without(ids []string, id string) []string {
	out := make([]string, 0, len(ids))
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}
