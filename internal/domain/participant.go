package domain

import "time"

type Role string

const (
	RoleCreator Role = "creator"
	RoleViewer  Role = "viewer"
)

type DeviceType string

const (
	DeviceWebcam DeviceType = "webcam"
	DeviceScreen DeviceType = "screen"
	DeviceMobile DeviceType = "mobile"
)

// Participant is a connected member of a session.
type Participant struct {
	ConnectionID    string     `json:"connectionId"`
	Role            Role       `json:"role"`
	DeviceType      DeviceType `json:"deviceType"`
	JoinedAt        time.Time  `json:"joinedAt"`
	IsScreenSharing bool       `json:"isScreenSharing"`
}

func (p Participant) IsCreator() bool { return p.Role == RoleCreator }

// ValidateDisplayName bounds the name a viewer announces itself with.
func ValidateDisplayName(name string) error {
	if len(name) == 0 {
		return ErrNameEmpty
	}
	if len(name) > MaxNameLen {
		return ErrNameTooLong
	}
	return nil
}

// PendingJoinRequest is a viewer waiting on host approval. It exists
// independently of Participant; a participant appears only after approve.
type PendingJoinRequest struct {
	ViewerID     string    `json:"viewerId"`
	DisplayName  string    `json:"displayName"`
	ConnectionID string    `json:"connectionId"`
	RequestedAt  time.Time `json:"requestedAt"`
}
