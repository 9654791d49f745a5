package protocol

import (
	"encoding/json"

	"github.com/pion/webrtc/v4"

	"github.com/deathboy20/stream-server/internal/domain"
)

// Outbound events mirror the inbound table. They are plain structs so
// every handler can marshal them without ad-hoc map literals.

type SessionCreated struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"sessionId"`
	Token     string      `json:"token"`
	ShareURL  string      `json:"shareUrl"`
}

type SessionJoined struct {
	Type              MessageType            `json:"type"`
	SessionID         string                 `json:"sessionId"`
	Participants      []domain.Participant   `json:"participants"`
	ScreenShareActive bool                   `json:"screenShareActive"`
	ScreenShareHolder string                 `json:"screenShareHolder,omitempty"`
	Session           domain.SessionSnapshot `json:"session"`
}

type JoinPending struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"sessionId"`
	ViewerID  string      `json:"viewerId"`
}

// SessionUpdate carries nil Session when the session no longer exists.
type SessionUpdate struct {
	Type    MessageType             `json:"type"`
	Session *domain.SessionSnapshot `json:"session"`
}

type ParticipantJoined struct {
	Type             MessageType       `json:"type"`
	ConnectionID     string            `json:"connectionId"`
	IsViewer         bool              `json:"isViewer"`
	DeviceType       domain.DeviceType `json:"deviceType"`
	ParticipantCount int               `json:"participantCount"`
}

type ParticipantLeft struct {
	Type             MessageType `json:"type"`
	ConnectionID     string      `json:"connectionId"`
	ParticipantCount int         `json:"participantCount"`
}

type PendingJoin struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"sessionId"`
	ViewerID  string      `json:"viewerId"`
	Name      string      `json:"name"`
}

type JoinApproved struct {
	Type      MessageType            `json:"type"`
	SessionID string                 `json:"sessionId"`
	ViewerID  string                 `json:"viewerId"`
	Session   domain.SessionSnapshot `json:"session"`
}

type JoinRejected struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"sessionId"`
	ViewerID  string      `json:"viewerId"`
}

type ViewerConnected struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"sessionId"`
	ViewerID  string      `json:"viewerId"`
}

type ScreenShareEvent struct {
	Type         MessageType `json:"type"`
	ConnectionID string      `json:"connectionId"`
}

type StreamEvent struct {
	Type         MessageType `json:"type"`
	ConnectionID string      `json:"connectionId"`
	StreamType   string      `json:"streamType,omitempty"`
}

type AnalyticsUpdate struct {
	Type         MessageType     `json:"type"`
	ConnectionID string          `json:"connectionId"`
	Data         json.RawMessage `json:"data"`
}

type UserJoinedChat struct {
	Type     MessageType `json:"type"`
	UserID   string      `json:"userId"`
	UserName string      `json:"userName"`
	Avatar   string      `json:"avatar,omitempty"`
}

// PresenceEvent announces user-online with the full profile and
// user-offline with only the userId.
type PresenceEvent struct {
	Type     MessageType `json:"type"`
	UserID   string      `json:"userId"`
	UserName string      `json:"userName,omitempty"`
	Avatar   string      `json:"avatar,omitempty"`
}

type UserList struct {
	Type  MessageType          `json:"type"`
	Users []domain.UserProfile `json:"users"`
}

type ChatHistory struct {
	Type     MessageType          `json:"type"`
	Messages []domain.ChatMessage `json:"messages"`
}

type NewChatMessage struct {
	Type    MessageType        `json:"type"`
	Message domain.ChatMessage `json:"message"`
}

type TypingEvent struct {
	Type     MessageType `json:"type"`
	UserID   string      `json:"userId"`
	UserName string      `json:"userName,omitempty"`
}

type SessionExpired struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"sessionId"`
}

type SessionDeleted struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"sessionId"`
}

type SessionExists struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"sessionId"`
	Exists    bool        `json:"exists"`
}

type UserStreams struct {
	Type     MessageType `json:"type"`
	UserID   string      `json:"userId"`
	Sessions []string    `json:"sessions"`
}

type OfferRelay struct {
	Type  MessageType               `json:"type"`
	From  string                    `json:"fromConnectionId"`
	Offer webrtc.SessionDescription `json:"offer"`
}

type AnswerRelay struct {
	Type   MessageType               `json:"type"`
	From   string                    `json:"fromConnectionId"`
	Answer webrtc.SessionDescription `json:"answer"`
}

type ICERelay struct {
	Type      MessageType             `json:"type"`
	From      string                  `json:"fromConnectionId"`
	Candidate webrtc.ICECandidateInit `json:"candidate"`
}

type SignalRelay struct {
	Type     MessageType     `json:"type"`
	Sender   string          `json:"sender"`
	Signal   json.RawMessage `json:"signal"`
	Metadata json.RawMessage `json:"metadata,omitempty"`
}

type WebRTCOfferEvent struct {
	Type      MessageType               `json:"type"`
	SessionID string                    `json:"sessionId"`
	Offer     webrtc.SessionDescription `json:"offer"`
}

type WebRTCAnswerEvent struct {
	Type      MessageType               `json:"type"`
	SessionID string                    `json:"sessionId"`
	Answer    webrtc.SessionDescription `json:"answer"`
}

type ErrorEvent struct {
	Type  MessageType `json:"type"`
	Code  string      `json:"code"`
	Error string      `json:"error"`
}

type Pong struct {
	Type MessageType `json:"type"`
}
