package app

import (
	"sync"

	"github.com/deathboy20/stream-server/internal/core"
	"github.com/deathboy20/stream-server/internal/domain"
)

// Presence tracks self-announced user profiles keyed by connection.
// A profile lives from register-user until the connection drops.
type Presence struct {
	mu    sync.RWMutex
	users map[core.ConnectionID]domain.UserProfile
}

func NewPresence() *Presence {
	return &Presence{users: make(map[core.ConnectionID]domain.UserProfile)}
}

func (p *Presence) Put(connID core.ConnectionID, profile domain.UserProfile) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.users[connID] = profile
}

// Remove drops the profile for a connection and reports whether one
// was registered.
func (p *Presence) Remove(connID core.ConnectionID) (domain.UserProfile, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	profile, ok := p.users[connID]
	if ok {
		delete(p.users, connID)
	}
	return profile, ok
}

func (p *Presence) Online() []domain.UserProfile {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]domain.UserProfile, 0, len(p.users))
	for _, profile := range p.users {
		out = append(out, profile)
	}
	return out
}
