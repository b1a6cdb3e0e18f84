// Package callsupport is the client of the call-support REST service.
package callsupport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tariel-x/callsupport/internal/models"
)

var (
	ErrUnauthorized = errors.New("call support: unauthorized")
	ErrForbidden    = errors.New("call support: forbidden")
	ErrRoomNotFound = errors.New("call support: room not found")
	ErrConflict     = errors.New("call support: room already resolved")
	ErrGone         = errors.New("call support: room no longer available")
)

// StatusError is returned for any non-2xx answer of the service.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("call support: status %d", e.StatusCode)
	}
	return fmt.Sprintf("call support: status %d: %s", e.StatusCode, e.Message)
}

func (e *StatusError) Unwrap() error {
	switch e.StatusCode {
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusForbidden:
		return ErrForbidden
	case http.StatusNotFound:
		return ErrRoomNotFound
	case http.StatusConflict:
		return ErrConflict
	case http.StatusGone:
		return ErrGone
	}
	return nil
}

// Authorizer attaches credentials to an outgoing request.
type Authorizer interface {
	Authorize(req *http.Request) error
}

// BearerToken authorizes requests with a fixed bearer token.
type BearerToken string

func (t BearerToken) Authorize(req *http.Request) error {
	if t == "" {
		return ErrUnauthorized
	}
	req.Header.Set("Authorization", "Bearer "+string(t))
	return nil
}

// Response is the envelope every call-support endpoint answers with.
type Response struct {
	StatusCode int              `json:"statusCode"`
	Message    string           `json:"message,omitempty"`
	Room       *models.CallRoom `json:"room,omitempty"`
	CallerName string           `json:"callerName,omitempty"`
}

type Client struct {
	baseURL    string
	httpClient *http.Client
	auth       Authorizer
	logger     *slog.Logger
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

func New(baseURL string, auth Authorizer, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 15 * time.Second},
		auth:       auth,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type createRoomRequest struct {
	UserID    string `json:"userId"`
	TrainerID string `json:"trainerId"`
}

type rejectCallRequest struct {
	RoomID     string `json:"roomId"`
	RejectorID string `json:"rejectorId"`
}

type acceptCallRequest struct {
	RoomID     string `json:"roomId"`
	AcceptorID string `json:"acceptorId"`
}

// CreateRoom asks the service to open a call room between userID and trainerID.
func (c *Client) CreateRoom(ctx context.Context, userID, trainerID string) (*models.CallRoom, error) {
	var resp Response
	if err := c.do(ctx, http.MethodPost, "/CallSupport/create-room", createRoomRequest{UserID: userID, TrainerID: trainerID}, &resp); err != nil {
		return nil, err
	}
	if resp.Room == nil {
		return nil, fmt.Errorf("call support: create-room returned no room")
	}
	return resp.Room, nil
}

// ValidateRoom checks a room for currentUserID. A room the service refuses is
// not an error: the refusal is reported through Response.StatusCode, which is
// taken from the body even on HTTP 200. Only transport failures and 401 come
// back as errors.
func (c *Client) ValidateRoom(ctx context.Context, roomID, currentUserID string) (*Response, error) {
	path := "/CallSupport/validate-room/" + url.PathEscape(roomID) + "?currentUserId=" + url.QueryEscape(currentUserID)

	var resp Response
	err := c.do(ctx, http.MethodGet, path, nil, &resp)
	var statusErr *StatusError
	if errors.As(err, &statusErr) && statusErr.StatusCode != http.StatusUnauthorized {
		return &Response{StatusCode: statusErr.StatusCode, Message: statusErr.Message}, nil
	}
	if err != nil {
		return nil, err
	}
	// The body decides: a reply without statusCode keeps 0 and is not valid.
	return &resp, nil
}

func (c *Client) RejectCall(ctx context.Context, roomID, rejectorID string) error {
	return c.do(ctx, http.MethodPost, "/CallSupport/reject-call", rejectCallRequest{RoomID: roomID, RejectorID: rejectorID}, nil)
}

func (c *Client) AcceptCall(ctx context.Context, roomID, acceptorID string) error {
	return c.do(ctx, http.MethodPost, "/CallSupport/accept-call", acceptCallRequest{RoomID: roomID, AcceptorID: acceptorID}, nil)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.auth != nil {
		if err := c.auth.Authorize(req); err != nil {
			return err
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	c.logger.Debug("call support request", "method", method, "path", path, "status", resp.StatusCode)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		statusErr := &StatusError{StatusCode: resp.StatusCode}
		var env Response
		if json.Unmarshal(data, &env) == nil {
			statusErr.Message = env.Message
		}
		return statusErr
	}

	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
