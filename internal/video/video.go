// Package video defines the console's view of a video session provider and
// inspects the video tokens the backend hands out.
package video

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Status is the lifecycle state of a video session.
type Status string

const (
	StatusDisconnected Status = "disconnected"
	StatusInitializing Status = "initializing"
	StatusConnecting   Status = "connecting"
	StatusConnected    Status = "connected"
	StatusError        Status = "error"
)

// Participant is one user in a video session.
type Participant struct {
	UserID      int    `json:"userId"`
	DisplayName string `json:"displayName"`
	VideoOn     bool   `json:"videoOn"`
	AudioOn     bool   `json:"audioOn"`
	Sharing     bool   `json:"sharing"`
}

// SessionInfo describes a joined session.
type SessionInfo struct {
	Topic    string `json:"topic"`
	Password string `json:"password,omitempty"`
	UserName string `json:"userName"`
}

// Session is a live video session. Implementations wrap a provider SDK;
// the console only drives this surface and renders its snapshots.
type Session interface {
	Join(ctx context.Context, topic, token, userName, password string) error
	Leave(ctx context.Context) error
	Status() Status
	Info() SessionInfo
	Participants() []Participant
	SetVideo(ctx context.Context, on bool) error
	SetAudio(ctx context.Context, on bool) error
	StartScreenShare(ctx context.Context) error
	StopScreenShare(ctx context.Context) error
}

// TokenInfo is the decoded view of a video session token. Tokens are
// inspected for display only; the provider verifies the signature.
type TokenInfo struct {
	Topic     string    `json:"topic"`
	RoleType  int       `json:"roleType"`
	UserID    string    `json:"userId,omitempty"`
	IssuedAt  time.Time `json:"issuedAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// InspectToken decodes a video token without verifying it.
func InspectToken(raw string) (*TokenInfo, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
		return nil, fmt.Errorf("failed to decode video token: %w", err)
	}

	info := &TokenInfo{}
	if topic, ok := claims["tpc"].(string); ok {
		info.Topic = topic
	}
	if role, ok := claims["role_type"].(float64); ok {
		info.RoleType = int(role)
	}
	if id, ok := claims["user_identity"].(string); ok {
		info.UserID = id
	}
	if iat, ok := claims["iat"].(float64); ok {
		info.IssuedAt = time.Unix(int64(iat), 0)
	}
	if exp, ok := claims["exp"].(float64); ok {
		info.ExpiresAt = time.Unix(int64(exp), 0)
	}
	return info, nil
}

// Host reports whether the token grants the host role.
func (t *TokenInfo) Host() bool {
	return t.RoleType == 1
}
