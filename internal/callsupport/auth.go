package callsupport

import (
	"context"
	"net/http"

	"github.com/tariel-x/callsupport/internal/models"
)

// Session is what the service hands back after register or login.
type Session struct {
	Token string      `json:"token"`
	User  models.User `json:"user"`
}

type registerRequest struct {
	DisplayName string          `json:"displayName"`
	Role        models.UserRole `json:"role,omitempty"`
}

// Register creates a user and returns a session for it.
func Register(ctx context.Context, baseURL, displayName string, role models.UserRole, opts ...Option) (*Session, error) {
	var s Session
	c := New(baseURL, nil, opts...)
	if err := c.do(ctx, http.MethodPost, "/auth/register", registerRequest{DisplayName: displayName, Role: role}, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// Login returns a fresh session for an existing user.
func Login(ctx context.Context, baseURL, displayName string, opts ...Option) (*Session, error) {
	var s Session
	c := New(baseURL, nil, opts...)
	if err := c.do(ctx, http.MethodPost, "/auth/login", registerRequest{DisplayName: displayName}, &s); err != nil {
		return nil, err
	}
	return &s, nil
}
