// Package registry tracks the live connections bound to each chat room.
package registry

import (
	"errors"
	"fmt"
	"sync"

	"github.com/example/roomchat/domain/chat"
	"github.com/samber/lo"
)

// ErrRoomMismatch is returned by Bind when a connection is offered to a
// room other than the one it was opened against.
var ErrRoomMismatch = errors.New("connection belongs to another room")

// Conn is one open duplex channel bound to a single room for its lifetime.
type Conn interface {
	// ID uniquely identifies the connection.
	ID() string
	// RoomID is the room the connection was opened against.
	RoomID() int64
	// Identity is the user resolved when the connection was bound.
	Identity() chat.Identity
	// Send queues one encoded frame for delivery.
	Send(payload []byte) error
}

// roomSet is the live connection set of one room. Once removed is set the
// entry is detached from the registry and must not receive new members.
type roomSet struct {
	mu      sync.Mutex
	conns   map[string]Conn
	removed bool
}

// Registry maps room identifiers to their live connection sets. Mutation and
// iteration of a single room are serialized on that room's own lock; the
// top-level lock only guards lookup, creation and removal of entries.
type Registry struct {
	mu    sync.RWMutex
	rooms map[int64]*roomSet
}

// Stats summarizes the registry for health reporting.
type Stats struct {
	Rooms       int `json:"rooms"`
	Connections int `json:"connections"`
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{
		rooms: make(map[int64]*roomSet),
	}
}

// Bind adds conn to roomID's live set, creating the set if needed.
// Binding an already bound connection is a no-op. A connection whose
// RoomID differs from roomID is rejected with ErrRoomMismatch.
func (r *Registry) Bind(conn Conn, roomID int64) error {
	if conn.RoomID() != roomID {
		return fmt.Errorf("%w: conn %s opened for room %d, bind to %d",
			ErrRoomMismatch, conn.ID(), conn.RoomID(), roomID)
	}
	for {
		set := r.getOrCreate(roomID)

		set.mu.Lock()
		if set.removed {
			// Lost a race with the last Unbind; retry on a fresh entry.
			set.mu.Unlock()
			continue
		}
		set.conns[conn.ID()] = conn
		set.mu.Unlock()
		return nil
	}
}

// Unbind removes conn from roomID's live set. When the set becomes empty
// the room entry is dropped and emptied is true. Unbinding a connection
// that was never bound is a no-op.
func (r *Registry) Unbind(conn Conn, roomID int64) (emptied bool) {
	r.mu.RLock()
	set, ok := r.rooms[roomID]
	r.mu.RUnlock()
	if !ok {
		return false
	}

	set.mu.Lock()
	if _, bound := set.conns[conn.ID()]; !bound || set.removed {
		set.mu.Unlock()
		return false
	}
	delete(set.conns, conn.ID())
	if len(set.conns) > 0 {
		set.mu.Unlock()
		return false
	}
	set.removed = true
	set.mu.Unlock()

	r.mu.Lock()
	if r.rooms[roomID] == set {
		delete(r.rooms, roomID)
	}
	r.mu.Unlock()
	return true
}

// Snapshot returns a copy of roomID's live set. The slice is owned by the
// caller and is unaffected by later binds and unbinds. A room without live
// connections yields an empty slice.
func (r *Registry) Snapshot(roomID int64) []Conn {
	r.mu.RLock()
	set, ok := r.rooms[roomID]
	r.mu.RUnlock()
	if !ok {
		return []Conn{}
	}

	set.mu.Lock()
	defer set.mu.Unlock()
	return lo.Values(set.conns)
}

// Count returns the number of live connections in roomID.
func (r *Registry) Count(roomID int64) int {
	r.mu.RLock()
	set, ok := r.rooms[roomID]
	r.mu.RUnlock()
	if !ok {
		return 0
	}

	set.mu.Lock()
	defer set.mu.Unlock()
	return len(set.conns)
}

// Stats returns the number of live rooms and connections.
func (r *Registry) Stats() Stats {
	r.mu.RLock()
	sets := lo.Values(r.rooms)
	r.mu.RUnlock()

	stats := Stats{}
	for _, set := range sets {
		set.mu.Lock()
		n := len(set.conns)
		set.mu.Unlock()
		if n > 0 {
			stats.Rooms++
			stats.Connections += n
		}
	}
	return stats
}

func (r *Registry) getOrCreate(roomID int64) *roomSet {
	r.mu.RLock()
	set, ok := r.rooms[roomID]
	r.mu.RUnlock()
	if ok {
		return set
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if set, ok := r.rooms[roomID]; ok {
		return set
	}
	set = &roomSet{conns: make(map[string]Conn)}
	r.rooms[roomID] = set
	return set
}
