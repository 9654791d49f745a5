package domain

import "time"

// UserProfile is the self-announced identity of a connected client,
// independent of any session membership.
type UserProfile struct {
	UserID      string    `json:"userId"`
	UserName    string    `json:"userName"`
	Avatar      string    `json:"avatar,omitempty"`
	Email       string    `json:"email,omitempty"`
	ConnectedAt time.Time `json:"connectedAt"`
}
