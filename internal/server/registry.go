// Package server coordinates room membership, session state, and event
// fan-out for the relay via the Registry type.
package server

import (
	"context"
	"errors"
	"log"
	"strings"
	"sync"
	"time"
)

// ErrUsernameRequired is reported when a join event carries no username.
// The join performs no state change in that case.
var ErrUsernameRequired = errors.New("join requires a username")

// Conn is the capability the registry needs from a connection: an identity,
// a best-effort send, and a liveness check. Transport-specific wiring lives
// behind this interface so the relay core stays independent of framing.
type Conn interface {
	ID() string
	Send(event Outbound)
	IsOpen() bool
}

// session records a connection's current room and display name. It exists
// only while the connection is a member of a room.
type session struct {
	roomID   string
	username string
}

// room holds the authoritative member set for one room id.
type room struct {
	members map[Conn]struct{}
}

// notice is a pending user-left notification, captured under the registry
// lock and delivered after it is released.
type notice struct {
	event   UserLeft
	targets []Conn
}

// Registry owns the mapping of room ids to member sets plus per-connection
// session state. It is constructed once at process start and passed by
// reference into every connection handler; there is no package-level
// instance. All room and session mutations are serialized by its mutex, and
// fan-out targets are snapshotted before delivery so a leave landing
// mid-broadcast cannot corrupt iteration.
type Registry struct {
	mu       sync.RWMutex
	rooms    map[string]*room
	sessions map[Conn]*session
	clients  map[*Client]struct{}

	newRoomID func() string
	now       func() time.Time

	wg sync.WaitGroup
}

// NewRegistry creates an empty registry. Generated room ids use the length
// configured in cfg.
func NewRegistry(cfg Config) (*Registry, error) {
	cfg = cfg.sanitized()

	generate, err := newRoomIDGenerator(cfg.RoomIDLength)
	if err != nil {
		return nil, err
	}

	return &Registry{
		rooms:     make(map[string]*room),
		sessions:  make(map[Conn]*session),
		clients:   make(map[*Client]struct{}),
		newRoomID: generate,
		now:       time.Now,
	}, nil
}

// Join attaches a connection to a room, creating the room on first use. An
// empty or blank roomID yields a server-generated id. Existing members are
// notified with a user-joined event (the joiner excluded) and the joiner
// receives a room-info event with the post-join member count.
//
// A second join on an already-joined connection is treated as an implicit
// leave followed by a normal join: the old room is notified and deleted if
// it empties.
func (r *Registry) Join(conn Conn, roomID, username string) error {
	username = strings.TrimSpace(username)
	if username == "" {
		return ErrUsernameRequired
	}
	roomID = strings.TrimSpace(roomID)

	r.mu.Lock()

	var departed *notice
	if sess, ok := r.sessions[conn]; ok {
		departed = r.detachLocked(conn, sess)
	}

	if roomID == "" {
		roomID = r.generateRoomIDLocked()
	}

	rm := r.rooms[roomID]
	if rm == nil {
		rm = &room{members: make(map[Conn]struct{})}
		r.rooms[roomID] = rm
		roomsActive.Inc()
	}
	rm.members[conn] = struct{}{}
	r.sessions[conn] = &session{roomID: roomID, username: username}

	count := len(rm.members)
	others := snapshotExcept(rm.members, conn)

	r.mu.Unlock()

	if departed != nil {
		deliver(departed.event, departed.targets)
		eventsRelayed.WithLabelValues(eventUserLeft).Inc()
	}

	deliver(UserJoined{
		Username: username,
		Message:  username + " joined the room",
	}, others)
	eventsRelayed.WithLabelValues(eventUserJoined).Inc()

	if conn.IsOpen() {
		conn.Send(RoomInfo{RoomID: roomID, MemberCount: count})
	}
	eventsRelayed.WithLabelValues(eventRoomInfo).Inc()

	log.Printf("Connection %s joined room %s as %q (%d members)", conn.ID(), roomID, username, count)
	return nil
}

// Broadcast relays a chat line to every member of the sender's current room,
// including the sender. A connection with no active session has nowhere to
// send; the event is dropped without error, matching best-effort semantics.
func (r *Registry) Broadcast(conn Conn, text string) {
	r.mu.RLock()
	sess, ok := r.sessions[conn]
	var targets []Conn
	var username string
	if ok {
		username = sess.username
		if rm := r.rooms[sess.roomID]; rm != nil {
			targets = snapshotExcept(rm.members, nil)
		}
	}
	r.mu.RUnlock()

	if targets == nil {
		log.Printf("Dropping chat from %s: no active room", conn.ID())
		return
	}

	deliver(ChatMessage{
		Username:  username,
		Text:      text,
		Timestamp: localTimestamp(r.now()),
	}, targets)
	eventsRelayed.WithLabelValues(eventChat).Inc()
}

// Leave removes a connection from its room, deleting the room if it becomes
// empty and otherwise notifying the remaining members. It is idempotent: a
// connection with no active session is a silent no-op, which guards against
// duplicate disconnect signals and connections that never joined.
func (r *Registry) Leave(conn Conn) {
	r.mu.Lock()
	sess, ok := r.sessions[conn]
	if !ok {
		r.mu.Unlock()
		return
	}
	departed := r.detachLocked(conn, sess)
	r.mu.Unlock()

	if departed != nil {
		deliver(departed.event, departed.targets)
		eventsRelayed.WithLabelValues(eventUserLeft).Inc()
	}
	log.Printf("Connection %s left room %s", conn.ID(), sess.roomID)
}

// detachLocked removes conn from its room's member set and clears its
// session, deleting the room when the last member departs. It returns the
// user-left notification for the remaining members, or nil when the room was
// deleted. Callers must hold the write lock.
func (r *Registry) detachLocked(conn Conn, sess *session) *notice {
	delete(r.sessions, conn)

	rm := r.rooms[sess.roomID]
	if rm == nil {
		return nil
	}
	delete(rm.members, conn)

	if len(rm.members) == 0 {
		delete(r.rooms, sess.roomID)
		roomsActive.Dec()
		return nil
	}

	return &notice{
		event: UserLeft{
			Username: sess.username,
			Message:  sess.username + " left the room",
		},
		targets: snapshotExcept(rm.members, nil),
	}
}

// generateRoomIDLocked returns a fresh room id that does not collide with a
// live room. Callers must hold the write lock.
func (r *Registry) generateRoomIDLocked() string {
	for {
		id := r.newRoomID()
		if _, taken := r.rooms[id]; !taken {
			return id
		}
	}
}

// MemberCount returns the live size of a room's member set, or 0 for an
// unknown room.
func (r *Registry) MemberCount(roomID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rm := r.rooms[roomID]
	if rm == nil {
		return 0
	}
	return len(rm.members)
}

// RoomCount returns the number of rooms currently in the registry.
func (r *Registry) RoomCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.rooms)
}

// Attach registers a live client and starts its read/write pumps. The pumps
// are tracked so Shutdown can wait for them.
func (r *Registry) Attach(client *Client) {
	r.mu.Lock()
	r.clients[client] = struct{}{}
	r.mu.Unlock()
	connectionsOpen.Inc()

	r.wg.Add(2)
	go func() {
		defer r.wg.Done()
		client.writePump()
	}()
	go func() {
		defer r.wg.Done()
		client.readPump()
	}()

	log.Printf("Connection %s opened from %s", client.ID(), client.addr)
}

// detachClient runs the leave path for a closing client and drops it from
// the live set. Safe to call more than once; only the first call has effect.
func (r *Registry) detachClient(client *Client) {
	r.Leave(client)

	r.mu.Lock()
	_, tracked := r.clients[client]
	if tracked {
		delete(r.clients, client)
	}
	r.mu.Unlock()

	if tracked {
		connectionsOpen.Dec()
		log.Printf("Connection %s closed", client.ID())
	}
}

// Shutdown closes every live connection and waits for their pumps to finish,
// or until the timeout is reached.
func (r *Registry) Shutdown(timeout time.Duration) error {
	r.mu.Lock()
	clients := make([]*Client, 0, len(r.clients))
	for client := range r.clients {
		clients = append(clients, client)
	}
	r.mu.Unlock()

	log.Printf("Shutting down %d client connections...", len(clients))
	for _, client := range clients {
		client.shutdown()
	}

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Println("Registry shutdown completed")
		return nil
	case <-time.After(timeout):
		log.Println("Registry shutdown timeout reached, some goroutines may still be running")
		return context.DeadlineExceeded
	}
}

// snapshotExcept copies a member set, omitting the excluded connection, so
// delivery can proceed outside the registry lock.
func snapshotExcept(members map[Conn]struct{}, exclude Conn) []Conn {
	targets := make([]Conn, 0, len(members))
	for member := range members {
		if exclude != nil && member == exclude {
			continue
		}
		targets = append(targets, member)
	}
	return targets
}

// deliver sends an event to each target whose transport is still open.
// A closed or closing connection is skipped, never treated as an error.
func deliver(event Outbound, targets []Conn) {
	for _, target := range targets {
		if target.IsOpen() {
			target.Send(event)
		}
	}
}
