// Package store is the durable session-document boundary. The in-memory
// registry stays the authority; documents written here outlive the
// process but carry no extra guarantees.
package store

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("session document not found")

// ParticipantDoc is one participant entry inside a session document.
type ParticipantDoc struct {
	ConnectionID string    `json:"connectionId"`
	Role         string    `json:"role"`
	DeviceType   string    `json:"deviceType"`
	JoinedAt     time.Time `json:"joinedAt"`
}

// SessionDoc is the persisted shape of a session.
type SessionDoc struct {
	ID            string           `json:"id"`
	HostID        string           `json:"hostId"`
	Title         string           `json:"title"`
	AdmissionMode string           `json:"admissionMode"`
	IsActive      bool             `json:"isActive"`
	CreatedAt     time.Time        `json:"createdAt"`
	ExpiresAt     time.Time        `json:"expiresAt"`
	Participants  []ParticipantDoc `json:"participants"`
}

// Store persists session documents keyed by session id.
type Store interface {
	SaveSession(ctx context.Context, doc SessionDoc) error
	GetSession(ctx context.Context, id string) (SessionDoc, error)
	UpdateParticipants(ctx context.Context, id string, participants []ParticipantDoc) error
	DeleteSession(ctx context.Context, id string) error
	Close() error
}
