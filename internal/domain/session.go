// Package domain contains entity without logic, just meta-data
package domain

import (
	"errors"
	"time"
)

const (
	MaxTitleLen  = 120
	MaxNameLen   = 36
	SessionTTL   = 24 * time.Hour
	FullIDLen    = 36
	ShortIDMin   = 8
	ChatLogLimit = 100
)

var (
	ErrTitleTooLong = errors.New("title too long")
	ErrNameTooLong  = errors.New("name too long")
	ErrNameEmpty    = errors.New("name empty")
)

// AdmissionMode governs whether joins are automatic or need host approval.
type AdmissionMode string

const (
	AdmissionAuto   AdmissionMode = "auto"
	AdmissionManual AdmissionMode = "manual"
)

// SessionMeta is the creator-mutated descriptive state of a session.
type SessionMeta struct {
	Title         string   `json:"title"`
	UserID        string   `json:"userId"`
	Layout        string   `json:"layout"`
	SourceCount   int      `json:"sourceCount"`
	SourceIDs     []string `json:"sourceIds,omitempty"`
	IsMultiSource bool     `json:"isMultiSource"`
	CurrentSource string   `json:"currentSource,omitempty"`
}

// MetaUpdate carries partial metadata changes; nil fields are untouched.
type MetaUpdate struct {
	Title         *string   `json:"title,omitempty"`
	Layout        *string   `json:"layout,omitempty"`
	SourceCount   *int      `json:"sourceCount,omitempty"`
	SourceIDs     *[]string `json:"sourceIds,omitempty"`
	IsMultiSource *bool     `json:"isMultiSource,omitempty"`
	CurrentSource *string   `json:"currentSource,omitempty"`
	IsActive      *bool     `json:"isActive,omitempty"`
}

// SessionSnapshot is a read-only view broadcast as "session-update".
type SessionSnapshot struct {
	SessionID         string        `json:"sessionId"`
	IsActive          bool          `json:"isActive"`
	Title             string        `json:"title"`
	UserID            string        `json:"userId"`
	Layout            string        `json:"layout"`
	SourceCount       int           `json:"sourceCount"`
	SourceIDs         []string      `json:"sourceIds,omitempty"`
	IsMultiSource     bool          `json:"isMultiSource"`
	CurrentSource     string        `json:"currentSource,omitempty"`
	AdmissionMode     AdmissionMode `json:"admissionMode"`
	CreatedAt         time.Time     `json:"createdAt"`
	LastUpdate        time.Time     `json:"lastUpdate"`
	ParticipantCount  int           `json:"participantCount"`
	ScreenShareActive bool          `json:"screenShareActive"`
}
