package app

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/deathboy20/stream-server/internal/core"
	"github.com/deathboy20/stream-server/internal/domain"
)

type connEntry struct {
	Conn      core.SignalConnection
	SessionID string
}

// Registry owns the session id → Session mapping and the connection
// bookkeeping. Sessions live only in this arena; delete means removal
// here, no dangling references are retained elsewhere.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*core.Session
	conns    map[core.ConnectionID]*connEntry
}

func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[string]*core.Session),
		conns:    make(map[core.ConnectionID]*connEntry),
	}
}

// Create registers a session under the requested id, minting one when
// absent. Create is idempotent: a second create with the same id returns
// the existing session, so a client retry never races itself into two
// sessions.
func (r *Registry) Create(requestedID string, creator core.ConnectionID, now time.Time, opt core.SessionOptions) (*core.Session, bool) {
	id := requestedID
	if id == "" {
		id = uuid.NewString()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[id]; ok {
		return s, false
	}
	s := core.NewSession(id, creator, now, opt)
	r.sessions[id] = s
	log.Info().Str("module", "app.registry").Str("session", id).Str("creator", string(creator)).Msg("session created")
	return s, true
}

// Resolve looks a session up by full id first; an input inside the
// short-id window (>=8 chars, shorter than a full id) falls back to a
// separator-stripped prefix scan over live sessions. More than one
// prefix match is an explicit ErrAmbiguousID, never a silent pick.
func (r *Registry) Resolve(idOrShort string) (*core.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if s, ok := r.sessions[idOrShort]; ok {
		return s, nil
	}
	if len(idOrShort) < domain.ShortIDMin || len(idOrShort) >= domain.FullIDLen {
		return nil, core.ErrNotFound
	}
	short := strings.ReplaceAll(idOrShort, "-", "")
	var found *core.Session
	for _, s := range r.sessions {
		if !s.ShortIDMatch(short) {
			continue
		}
		if found != nil {
			return nil, core.ErrAmbiguousID
		}
		found = s
	}
	if found == nil {
		return nil, core.ErrNotFound
	}
	return found, nil
}

// Delete removes the session and everything it owns: ledger, pending
// requests, chat log.
func (r *Registry) Delete(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return false
	}
	s.End()
	delete(r.sessions, id)
	for _, e := range r.conns {
		if e.SessionID == id {
			e.SessionID = ""
		}
	}
	log.Info().Str("module", "app.registry").Str("session", id).Msg("session deleted")
	return true
}

func (r *Registry) Get(id string) (*core.Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	return s, ok
}

func (r *Registry) Sessions() []*core.Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*core.Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	return out
}

func (r *Registry) SessionCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Expired returns every session past its TTL at the given instant.
func (r *Registry) Expired(now time.Time) []*core.Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*core.Session
	for _, s := range r.sessions {
		if now.After(s.ExpiresAt()) {
			out = append(out, s)
		}
	}
	return out
}

// SessionsOwnedBy lists active session ids created by a user id.
func (r *Registry) SessionsOwnedBy(userID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []string
	for id, s := range r.sessions {
		if s.OwnerUserID() == userID && s.Active() {
			out = append(out, id)
		}
	}
	return out
}

func (r *Registry) BindConnection(id core.ConnectionID, conn core.SignalConnection) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conns[id] = &connEntry{Conn: conn}
	log.Info().Str("module", "app.registry").Str("conn", string(id)).Msg("connection bound")
}

func (r *Registry) Unbind(id core.ConnectionID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.conns, id)
	log.Info().Str("module", "app.registry").Str("conn", string(id)).Msg("connection unbound")
}

func (r *Registry) Connection(id core.ConnectionID) (core.SignalConnection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.conns[id]
	if !ok || e.Conn == nil {
		return nil, false
	}
	return e.Conn, true
}

func (r *Registry) ConnectionCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// ConnectionIDs lists every bound connection, session member or not.
// Presence announcements go out server-wide through this list.
func (r *Registry) ConnectionIDs() []core.ConnectionID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]core.ConnectionID, 0, len(r.conns))
	for id := range r.conns {
		out = append(out, id)
	}
	return out
}

// SetSessionOf records which session a connection currently belongs to
// for membership bookkeeping. A connection belongs to at most one
// session at a time.
func (r *Registry) SetSessionOf(id core.ConnectionID, sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.conns[id]; ok {
		e.SessionID = sessionID
	}
}

func (r *Registry) SessionOf(id core.ConnectionID) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.conns[id]
	if !ok || e.SessionID == "" {
		return "", false
	}
	return e.SessionID, true
}

// ConnectionsInSession is the explicit room-membership primitive the
// relay routes through; there is no implicit room abstraction below it.
func (r *Registry) ConnectionsInSession(sessionID string) []core.ConnectionID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]core.ConnectionID, 0, len(r.conns))
	for id, e := range r.conns {
		if e.SessionID == sessionID {
			out = append(out, id)
		}
	}
	return out
}
