// Package protocol defines the wire messages exchanged over the
// signaling transport. Every inbound frame is normalized here into one
// typed command per event name before it reaches the core; the core
// never branches on payload shape.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/pion/webrtc/v4"

	"github.com/deathboy20/stream-server/internal/domain"
)

type MessageType string

// Inbound event names.
const (
	TypeCreateSession    MessageType = "create-session"
	TypeJoinSession      MessageType = "join-session"
	TypeJoinRequest      MessageType = "join-request"
	TypeApproveJoin      MessageType = "approve-join"
	TypeRejectJoin       MessageType = "reject-join"
	TypeOffer            MessageType = "offer"
	TypeAnswer           MessageType = "answer"
	TypeICECandidate     MessageType = "ice-candidate"
	TypeSignal           MessageType = "signal"
	TypeWebRTCOffer      MessageType = "webrtc-offer"
	TypeWebRTCAnswer     MessageType = "webrtc-answer"
	TypeViewerReady      MessageType = "viewer-ready"
	TypeStartScreenShare MessageType = "start-screen-share"
	TypeStopScreenShare  MessageType = "stop-screen-share"
	TypeStreamStarted    MessageType = "stream-started"
	TypeStreamStopped    MessageType = "stream-stopped"
	TypeAnalyticsData    MessageType = "analytics-data"
	TypeJoinChat         MessageType = "join-chat"
	TypeChatMessage      MessageType = "chat-message"
	TypeTypingStart      MessageType = "typing-start"
	TypeTypingStop       MessageType = "typing-stop"
	TypeUpdateSession    MessageType = "update-session"
	TypeDeleteSession    MessageType = "delete-session"
	TypeLeaveSession     MessageType = "leave-session"
	TypeCheckSession     MessageType = "check-session-exists"
	TypeGetUserStreams   MessageType = "get-user-streams"
	TypeRegisterUser     MessageType = "register-user"
	TypeGetUsers         MessageType = "get-users"
	TypeGetOnlineUsers   MessageType = "get-online-users"
	TypePing             MessageType = "ping"
)

// Outbound event names.
const (
	TypeSessionCreated     MessageType = "session-created"
	TypeSessionJoined      MessageType = "session-joined"
	TypeJoinPending        MessageType = "join-pending"
	TypeSessionUpdate      MessageType = "session-update"
	TypeParticipantJoined  MessageType = "participant-joined"
	TypeParticipantLeft    MessageType = "participant-left"
	TypePendingJoin        MessageType = "pending-join"
	TypeJoinApproved       MessageType = "join-approved"
	TypeJoinRejected       MessageType = "join-rejected"
	TypeViewerConnected    MessageType = "viewer-connected"
	TypeScreenShareStarted MessageType = "screen-share-started"
	TypeScreenShareStopped MessageType = "screen-share-stopped"
	TypeChatHistory        MessageType = "chat-history"
	TypeNewChatMessage     MessageType = "new-chat-message"
	TypeUserTyping         MessageType = "user-typing"
	TypeUserStoppedTyping  MessageType = "user-stopped-typing"
	TypeAnalyticsUpdate    MessageType = "analytics-update"
	TypeUserJoinedChat     MessageType = "user-joined-chat"
	TypeUserOnline         MessageType = "user-online"
	TypeUserOffline        MessageType = "user-offline"
	TypeUserList           MessageType = "user-list"
	TypeSessionExpired     MessageType = "session-expired"
	TypeSessionDeleted     MessageType = "session-deleted"
	TypeSessionExists      MessageType = "session-exists"
	TypeUserStreams        MessageType = "user-streams"
	TypeError              MessageType = "error"
	TypePong               MessageType = "pong"
)

var ErrUnsupportedType = errors.New("unsupported message type")

type Envelope struct {
	Type MessageType `json:"type"`
}

type CreateSession struct {
	Type          MessageType          `json:"type"`
	SessionID     string               `json:"sessionId,omitempty"`
	AdmissionMode domain.AdmissionMode `json:"admissionMode,omitempty"`
	Title         string               `json:"title,omitempty"`
	UserID        string               `json:"userId,omitempty"`
	Layout        string               `json:"layout,omitempty"`
	SourceCount   int                  `json:"sourceCount,omitempty"`
	SourceIDs     []string             `json:"sourceIds,omitempty"`
	IsMultiSource bool                 `json:"isMultiSource,omitempty"`
}

type JoinSession struct {
	Type       MessageType       `json:"type"`
	SessionID  string            `json:"sessionId"`
	Token      string            `json:"token,omitempty"`
	IsViewer   *bool             `json:"isViewer,omitempty"`
	DeviceType domain.DeviceType `json:"deviceType,omitempty"`
	ViewerID   string            `json:"viewerId,omitempty"`
	Name       string            `json:"name,omitempty"`
}

func (m JoinSession) Viewer() bool { return m.IsViewer == nil || *m.IsViewer }

type JoinRequest struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"sessionId"`
	ViewerID  string      `json:"viewerId"`
	Name      string      `json:"name"`
}

type AdmissionDecision struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"sessionId"`
	ViewerID  string      `json:"viewerId"`
}

type Offer struct {
	Type      MessageType               `json:"type"`
	SessionID string                    `json:"sessionId"`
	Target    string                    `json:"targetConnectionId"`
	Offer     webrtc.SessionDescription `json:"offer"`
}

type Answer struct {
	Type      MessageType               `json:"type"`
	SessionID string                    `json:"sessionId"`
	Target    string                    `json:"targetConnectionId"`
	Answer    webrtc.SessionDescription `json:"answer"`
}

type ICECandidate struct {
	Type      MessageType             `json:"type"`
	SessionID string                  `json:"sessionId"`
	Target    string                  `json:"targetConnectionId,omitempty"`
	Role      string                  `json:"role,omitempty"`
	Candidate webrtc.ICECandidateInit `json:"candidate"`
}

type Signal struct {
	Type      MessageType     `json:"type"`
	SessionID string          `json:"sessionId"`
	Target    string          `json:"target"`
	Signal    json.RawMessage `json:"signal"`
	Metadata  json.RawMessage `json:"metadata,omitempty"`
}

type WebRTCOffer struct {
	Type      MessageType               `json:"type"`
	SessionID string                    `json:"sessionId"`
	Offer     webrtc.SessionDescription `json:"offer"`
}

type WebRTCAnswer struct {
	Type      MessageType               `json:"type"`
	SessionID string                    `json:"sessionId"`
	Answer    webrtc.SessionDescription `json:"answer"`
}

type ViewerReady struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"sessionId"`
	ViewerID  string      `json:"viewerId,omitempty"`
}

type ScreenShare struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"sessionId"`
}

type Stream struct {
	Type       MessageType `json:"type"`
	SessionID  string      `json:"sessionId"`
	StreamType string      `json:"streamType,omitempty"`
}

type AnalyticsData struct {
	Type      MessageType     `json:"type"`
	SessionID string          `json:"sessionId"`
	Data      json.RawMessage `json:"data"`
}

type JoinChat struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"sessionId"`
	UserID    string      `json:"userId"`
	UserName  string      `json:"userName"`
	Avatar    string      `json:"avatar,omitempty"`
}

type ChatMessage struct {
	Type      MessageType     `json:"type"`
	SessionID string          `json:"sessionId"`
	UserID    string          `json:"userId"`
	UserName  string          `json:"userName"`
	Avatar    string          `json:"avatar,omitempty"`
	Content   string          `json:"content"`
	Kind      domain.ChatKind `json:"kind,omitempty"`
}

type Typing struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"sessionId"`
	UserID    string      `json:"userId"`
	UserName  string      `json:"userName,omitempty"`
}

type UpdateSession struct {
	Type      MessageType       `json:"type"`
	SessionID string            `json:"sessionId,omitempty"`
	Updates   domain.MetaUpdate `json:"updates"`
}

type DeleteSession struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"sessionId,omitempty"`
}

type LeaveSession struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"sessionId,omitempty"`
}

type CheckSession struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"sessionId"`
}

type GetUserStreams struct {
	Type   MessageType `json:"type"`
	UserID string      `json:"userId"`
}

type RegisterUser struct {
	Type     MessageType `json:"type"`
	UserID   string      `json:"userId"`
	UserName string      `json:"userName"`
	Avatar   string      `json:"avatar,omitempty"`
	Email    string      `json:"email,omitempty"`
}

type GetUsers struct {
	Type MessageType `json:"type"`
}

type Ping struct {
	Type MessageType `json:"type"`
}

// Decode normalizes a raw inbound frame into exactly one typed command.
func Decode(raw []byte) (any, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("invalid envelope: %w", err)
	}

	switch env.Type {
	case TypeCreateSession:
		return decodeInto[CreateSession](raw, nil)
	case TypeJoinSession:
		return decodeInto[JoinSession](raw, func(m JoinSession) error {
			return requireSession(m.SessionID)
		})
	case TypeJoinRequest:
		return decodeInto[JoinRequest](raw, func(m JoinRequest) error {
			if m.ViewerID == "" {
				return errors.New("join-request needs viewerId")
			}
			if err := domain.ValidateDisplayName(m.Name); err != nil {
				return err
			}
			return requireSession(m.SessionID)
		})
	case TypeApproveJoin, TypeRejectJoin:
		return decodeInto[AdmissionDecision](raw, func(m AdmissionDecision) error {
			if m.ViewerID == "" {
				return errors.New("admission decision needs viewerId")
			}
			return requireSession(m.SessionID)
		})
	case TypeOffer:
		return decodeInto[Offer](raw, func(m Offer) error {
			return requireTarget(m.Target)
		})
	case TypeAnswer:
		return decodeInto[Answer](raw, func(m Answer) error {
			return requireTarget(m.Target)
		})
	case TypeICECandidate:
		return decodeInto[ICECandidate](raw, func(m ICECandidate) error {
			return requireSession(m.SessionID)
		})
	case TypeSignal:
		return decodeInto[Signal](raw, func(m Signal) error {
			return requireTarget(m.Target)
		})
	case TypeWebRTCOffer:
		return decodeInto[WebRTCOffer](raw, func(m WebRTCOffer) error {
			return requireSession(m.SessionID)
		})
	case TypeWebRTCAnswer:
		return decodeInto[WebRTCAnswer](raw, func(m WebRTCAnswer) error {
			return requireSession(m.SessionID)
		})
	case TypeViewerReady:
		return decodeInto[ViewerReady](raw, func(m ViewerReady) error {
			return requireSession(m.SessionID)
		})
	case TypeStartScreenShare, TypeStopScreenShare:
		return decodeInto[ScreenShare](raw, func(m ScreenShare) error {
			return requireSession(m.SessionID)
		})
	case TypeStreamStarted, TypeStreamStopped:
		return decodeInto[Stream](raw, func(m Stream) error {
			return requireSession(m.SessionID)
		})
	case TypeAnalyticsData:
		return decodeInto[AnalyticsData](raw, func(m AnalyticsData) error {
			return requireSession(m.SessionID)
		})
	case TypeJoinChat:
		return decodeInto[JoinChat](raw, func(m JoinChat) error {
			return requireSession(m.SessionID)
		})
	case TypeChatMessage:
		return decodeInto[ChatMessage](raw, func(m ChatMessage) error {
			if m.Content == "" {
				return errors.New("chat message needs content")
			}
			return requireSession(m.SessionID)
		})
	case TypeTypingStart, TypeTypingStop:
		return decodeInto[Typing](raw, func(m Typing) error {
			return requireSession(m.SessionID)
		})
	case TypeUpdateSession:
		return decodeInto[UpdateSession](raw, nil)
	case TypeDeleteSession:
		return decodeInto[DeleteSession](raw, nil)
	case TypeLeaveSession:
		return decodeInto[LeaveSession](raw, nil)
	case TypeCheckSession:
		return decodeInto[CheckSession](raw, func(m CheckSession) error {
			return requireSession(m.SessionID)
		})
	case TypeGetUserStreams:
		return decodeInto[GetUserStreams](raw, func(m GetUserStreams) error {
			if m.UserID == "" {
				return errors.New("get-user-streams needs userId")
			}
			return nil
		})
	case TypeRegisterUser:
		return decodeInto[RegisterUser](raw, func(m RegisterUser) error {
			if m.UserID == "" {
				return errors.New("register-user needs userId")
			}
			return nil
		})
	case TypeGetUsers, TypeGetOnlineUsers:
		return decodeInto[GetUsers](raw, nil)
	case TypePing:
		return decodeInto[Ping](raw, nil)
	default:
		return nil, ErrUnsupportedType
	}
}

func decodeInto[T any](raw []byte, validate func(T) error) (T, error) {
	var m T
	if err := json.Unmarshal(raw, &m); err != nil {
		return m, err
	}
	if validate != nil {
		if err := validate(m); err != nil {
			return m, err
		}
	}
	return m, nil
}

func requireSession(id string) error {
	if id == "" {
		return errors.New("missing sessionId")
	}
	return nil
}

func requireTarget(target string) error {
	if target == "" {
		return errors.New("missing target")
	}
	return nil
}
