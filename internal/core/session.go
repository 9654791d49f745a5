package core

import (
	"strings"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/deathboy20/stream-server/internal/domain"
)

// Session is the authoritative in-memory state of one video session.
// All mutation happens under a single mutex so concurrent join/leave/
// admission/screen-share handling never loses updates.
type Session struct {
	mu sync.Mutex

	id              string
	creatorConn     ConnectionID
	active          bool
	admission       domain.AdmissionMode
	createdAt       time.Time
	expiresAt       time.Time
	meta            domain.SessionMeta
	lastUpdate      time.Time
	latestOffer     *webrtc.SessionDescription
	shareHolder     ConnectionID
	participants    map[ConnectionID]*domain.Participant
	pending         map[string]*domain.PendingJoinRequest
	chat            []domain.ChatMessage
	offerSent       map[ConnectionID]bool
	maxParticipants int
	chatLimit       int
}

type SessionOptions struct {
	Admission       domain.AdmissionMode
	TTL             time.Duration
	MaxParticipants int
	ChatLimit       int
	Meta            domain.SessionMeta
}

func NewSession(id string, creator ConnectionID, now time.Time, opt SessionOptions) *Session {
	if opt.Admission == "" {
		opt.Admission = domain.AdmissionAuto
	}
	if opt.TTL <= 0 {
		opt.TTL = domain.SessionTTL
	}
	if opt.ChatLimit <= 0 {
		opt.ChatLimit = domain.ChatLogLimit
	}
	if opt.Meta.Title == "" {
		opt.Meta.Title = "Stream " + now.Format(time.RFC1123)
	}
	if opt.Meta.Layout == "" {
		opt.Meta.Layout = "single"
	}
	if opt.Meta.SourceCount == 0 {
		opt.Meta.SourceCount = 1
	}
	return &Session{
		id:              id,
		creatorConn:     creator,
		active:          true,
		admission:       opt.Admission,
		createdAt:       now,
		expiresAt:       now.Add(opt.TTL),
		meta:            opt.Meta,
		lastUpdate:      now,
		participants:    make(map[ConnectionID]*domain.Participant),
		pending:         make(map[string]*domain.PendingJoinRequest),
		offerSent:       make(map[ConnectionID]bool),
		maxParticipants: opt.MaxParticipants,
		chatLimit:       opt.ChatLimit,
	}
}

func (s *Session) ID() string { return s.id }

func (s *Session) CreatedAt() time.Time { return s.createdAt }

func (s *Session) ExpiresAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.expiresAt
}

func (s *Session) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

func (s *Session) Admission() domain.AdmissionMode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.admission
}

// Creator returns the connection holding host authority, "" when the
// creator disconnected without transfer.
func (s *Session) Creator() ConnectionID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.creatorConn
}

func (s *Session) SetCreator(conn ConnectionID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creatorConn = conn
}

func (s *Session) IsCreator(conn ConnectionID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return conn != "" && conn == s.creatorConn
}

func (s *Session) End() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active = false
	s.latestOffer = nil
}

// AddParticipant is an idempotent ledger add. It returns the full
// participant list so the joining connection can bootstrap its view.
func (s *Session) AddParticipant(conn ConnectionID, role domain.Role, device domain.DeviceType, now time.Time) ([]domain.Participant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.active {
		return nil, ErrInactive
	}
	if _, ok := s.participants[conn]; !ok {
		if s.maxParticipants > 0 && len(s.participants) >= s.maxParticipants {
			return nil, ErrCapacity
		}
		if device == "" {
			device = domain.DeviceWebcam
		}
		s.participants[conn] = &domain.Participant{
			ConnectionID: string(conn),
			Role:         role,
			DeviceType:   device,
			JoinedAt:     now,
		}
		delete(s.offerSent, conn)
	}
	if role == domain.RoleCreator {
		s.creatorConn = conn
	}
	log.Debug().Str("module", "core.session").Str("session", s.id).Str("conn", string(conn)).Str("role", string(role)).Msg("participant added")
	return s.participantsLocked(), nil
}

// RemoveParticipant drops the connection from the ledger. It reports the
// remaining count and whether the screen-share lock was released.
func (s *Session) RemoveParticipant(conn ConnectionID) (remaining int, releasedShare bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.participants, conn)
	delete(s.offerSent, conn)
	if s.shareHolder == conn {
		s.shareHolder = ""
		releasedShare = true
	}
	if s.creatorConn == conn {
		s.creatorConn = ""
	}
	return len(s.participants), releasedShare
}

func (s *Session) HasParticipant(conn ConnectionID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.participants[conn]
	return ok
}

// ParticipantCount is the single source of truth for the empty-session
// deletion decision; there is no separately tracked counter.
func (s *Session) ParticipantCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.participants)
}

func (s *Session) Participants() []domain.Participant {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.participantsLocked()
}

func (s *Session) participantsLocked() []domain.Participant {
	out := make([]domain.Participant, 0, len(s.participants))
	for _, p := range s.participants {
		out = append(out, *p)
	}
	return out
}

// AddPending enqueues a join request for a moderated session. A repeat
// request from the same viewer overwrites the previous one, so a viewer
// rejected earlier can ask again.
func (s *Session) AddPending(req domain.PendingJoinRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.active {
		return ErrInactive
	}
	if s.maxParticipants > 0 && len(s.participants) >= s.maxParticipants {
		return ErrCapacity
	}
	s.pending[req.ViewerID] = &req
	return nil
}

// TakePending removes and returns the pending request; approve and
// reject are both terminal for the request either way.
func (s *Session) TakePending(viewerID string) (domain.PendingJoinRequest, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	req, ok := s.pending[viewerID]
	if !ok {
		return domain.PendingJoinRequest{}, false
	}
	delete(s.pending, viewerID)
	return *req, true
}

func (s *Session) PendingRequests() []domain.PendingJoinRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.PendingJoinRequest, 0, len(s.pending))
	for _, r := range s.pending {
		out = append(out, *r)
	}
	return out
}

// DropPendingByConn clears requests left behind by a disconnecting viewer.
func (s *Session) DropPendingByConn(conn ConnectionID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, r := range s.pending {
		if r.ConnectionID == string(conn) {
			delete(s.pending, id)
		}
	}
}

// StartScreenShare takes the exclusive screen-share lock. Re-entry by the
// current holder succeeds; any other holder means ErrResourceBusy and no
// state change.
func (s *Session) StartScreenShare(conn ConnectionID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.shareHolder != "" && s.shareHolder != conn {
		return ErrResourceBusy
	}
	p, ok := s.participants[conn]
	if !ok {
		return ErrNotFound
	}
	s.shareHolder = conn
	p.IsScreenSharing = true
	return nil
}

// StopScreenShare releases the lock. Only the holder may release it;
// the host may force-stop anyone.
func (s *Session) StopScreenShare(conn ConnectionID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.shareHolder == "" {
		return nil
	}
	if s.shareHolder != conn && s.creatorConn != conn {
		return ErrUnauthorized
	}
	if p, ok := s.participants[s.shareHolder]; ok {
		p.IsScreenSharing = false
	}
	s.shareHolder = ""
	return nil
}

func (s *Session) ScreenShare() (active bool, holder ConnectionID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.shareHolder != "", s.shareHolder
}

// AppendChat retains the message, evicting the oldest entry past the
// FIFO bound.
func (s *Session) AppendChat(msg domain.ChatMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chat = append(s.chat, msg)
	if len(s.chat) > s.chatLimit {
		s.chat = s.chat[len(s.chat)-s.chatLimit:]
	}
}

func (s *Session) ChatHistory() []domain.ChatMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.ChatMessage, len(s.chat))
	copy(out, s.chat)
	return out
}

// SetLatestOffer retains the creator's most recent broadcast offer for
// replay to late joiners. Cleared only when the session ends.
func (s *Session) SetLatestOffer(offer webrtc.SessionDescription) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.latestOffer = &offer
	// Everyone in the room receives the live broadcast, so they are
	// already served; only later joiners are owed a replay.
	s.offerSent = make(map[ConnectionID]bool, len(s.participants))
	for conn := range s.participants {
		s.offerSent[conn] = true
	}
}

// TakeOfferFor returns the cached offer for a viewer at most once per
// join; the delivery mark is cleared on rejoin so a reconnect gets a
// resend.
func (s *Session) TakeOfferFor(conn ConnectionID) (webrtc.SessionDescription, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.active || s.latestOffer == nil || s.offerSent[conn] {
		return webrtc.SessionDescription{}, false
	}
	if _, ok := s.participants[conn]; !ok {
		return webrtc.SessionDescription{}, false
	}
	s.offerSent[conn] = true
	return *s.latestOffer, true
}

// UpdateMeta applies a partial metadata change, versioned by lastUpdate.
func (s *Session) UpdateMeta(u domain.MetaUpdate, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u.Title != nil {
		if len(*u.Title) > domain.MaxTitleLen {
			return domain.ErrTitleTooLong
		}
		s.meta.Title = *u.Title
	}
	if u.Layout != nil {
		s.meta.Layout = *u.Layout
	}
	if u.SourceCount != nil {
		s.meta.SourceCount = *u.SourceCount
	}
	if u.SourceIDs != nil {
		s.meta.SourceIDs = *u.SourceIDs
	}
	if u.IsMultiSource != nil {
		s.meta.IsMultiSource = *u.IsMultiSource
	}
	if u.CurrentSource != nil {
		s.meta.CurrentSource = *u.CurrentSource
	}
	if u.IsActive != nil {
		s.active = *u.IsActive
	}
	s.lastUpdate = now
	return nil
}

// Snapshot is the read-only view broadcast as "session-update".
func (s *Session) Snapshot() domain.SessionSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return domain.SessionSnapshot{
		SessionID:         s.id,
		IsActive:          s.active,
		Title:             s.meta.Title,
		UserID:            s.meta.UserID,
		Layout:            s.meta.Layout,
		SourceCount:       s.meta.SourceCount,
		SourceIDs:         s.meta.SourceIDs,
		IsMultiSource:     s.meta.IsMultiSource,
		CurrentSource:     s.meta.CurrentSource,
		AdmissionMode:     s.admission,
		CreatedAt:         s.createdAt,
		LastUpdate:        s.lastUpdate,
		ParticipantCount:  len(s.participants),
		ScreenShareActive: s.shareHolder != "",
	}
}

// ShortIDMatch reports whether the separator-stripped session id starts
// with the supplied short form.
func (s *Session) ShortIDMatch(short string) bool {
	stripped := strings.ReplaceAll(s.id, "-", "")
	return strings.HasPrefix(stripped, short)
}

func (s *Session) OwnerUserID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.meta.UserID
}
