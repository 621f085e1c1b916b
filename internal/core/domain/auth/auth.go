package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Token is a short-lived bearer token minted for a single channel.
type Token struct {
	ChannelID string    `json:"channel_id"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// ErrorKind classifies why token minting or lookup failed.
type ErrorKind int

const (
	// ErrorKindNoChannel means no channel ID is currently assigned.
	ErrorKindNoChannel ErrorKind = iota
	// ErrorKindRequest covers transport and crypto failures building or
	// issuing the token request.
	ErrorKindRequest
	// ErrorKindResponse covers non-success statuses and malformed bodies.
	ErrorKindResponse
)

// Error is the checked failure surfaced by the auth layer. Callers own any
// retry policy.
type Error struct {
	Kind ErrorKind
	Err  error
}

func (e *Error) Error() string {
	switch e.Kind {
	case ErrorKindNoChannel:
		return "auth: channel not registered"
	case ErrorKindRequest:
		return "auth: token request failed: " + e.Err.Error()
	default:
		return "auth: token response rejected: " + e.Err.Error()
	}
}

func (e *Error) Unwrap() error { return e.Err }

// LoginRequest is the operator login payload for the admin surface.
type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// AdminTokens is the admin login response.
type AdminTokens struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
}

// AdminClaims are the JWT claims carried by admin surface tokens.
type AdminClaims struct {
	Username string `json:"username"`

	jwt.RegisteredClaims
}
