// internal/chat/client.go

// Package chat wraps the slice of the Matrix client-server API this
// system needs: long-polled /sync for inbound room messages, plain and
// reply messages, reaction events, and permalinks. The orchestrator
// only ever sees the narrow reply/react/notify surface.
package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

// Config holds what a Client needs to talk to one homeserver as one
// account watching one room.
type Config struct {
	// HomeserverURL is the base URL, e.g. "https://matrix.example.org".
	HomeserverURL string
	// AccessToken authenticates every request.
	AccessToken string
	// UserID is the bot's own Matrix user id; its own messages are
	// dropped from the inbound stream.
	UserID string
	// RoomID is the single room the bot acts on.
	RoomID string
	// HTTPClient defaults to http.DefaultClient.
	HTTPClient *http.Client
	// Logger defaults to slog.Default().
	Logger *slog.Logger
	// SendsPerSecond caps outbound messages and reactions so a burst
	// of acknowledgments cannot trip homeserver rate limits. Defaults
	// to 5.
	SendsPerSecond float64
}

// Client is an authenticated Matrix client scoped to one room.
type Client struct {
	baseURL    string
	token      string
	userID     string
	roomID     string
	httpClient *http.Client
	logger     *slog.Logger
	limiter    *rate.Limiter
}

func NewClient(config Config) (*Client, error) {
	if config.HomeserverURL == "" {
		return nil, fmt.Errorf("chat: HomeserverURL is required")
	}
	if config.AccessToken == "" {
		return nil, fmt.Errorf("chat: AccessToken is required")
	}
	if config.RoomID == "" {
		return nil, fmt.Errorf("chat: RoomID is required")
	}
	if _, err := url.Parse(config.HomeserverURL); err != nil {
		return nil, fmt.Errorf("chat: invalid HomeserverURL %q: %w", config.HomeserverURL, err)
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	sends := config.SendsPerSecond
	if sends <= 0 {
		sends = 5
	}

	return &Client{
		baseURL:    strings.TrimRight(config.HomeserverURL, "/"),
		token:      config.AccessToken,
		userID:     config.UserID,
		roomID:     config.RoomID,
		httpClient: httpClient,
		logger:     logger,
		limiter:    rate.NewLimiter(rate.Limit(sends), 1),
	}, nil
}

// matrixError is the standard Matrix error body plus the HTTP status.
type matrixError struct {
	Code       string `json:"errcode"`
	Message    string `json:"error"`
	StatusCode int    `json:"-"`
}

func (e *matrixError) Error() string {
	return fmt.Sprintf("chat: %s (%s, HTTP %d)", e.Message, e.Code, e.StatusCode)
}

// doRequest performs one authenticated request and returns the response
// body. Request URLs are built by concatenation; path segments are
// escaped by the callers.
func (c *Client) doRequest(ctx context.Context, method, path string, query url.Values, payload any) ([]byte, error) {
	requestURL := c.baseURL + path
	if len(query) > 0 {
		requestURL += "?" + query.Encode()
	}

	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("chat: marshal request body: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, requestURL, body)
	if err != nil {
		return nil, fmt.Errorf("chat: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("chat: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("chat: read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		mxErr := &matrixError{StatusCode: resp.StatusCode}
		if json.Unmarshal(data, mxErr) != nil || mxErr.Code == "" {
			return nil, fmt.Errorf("chat: %s %s: HTTP %d", method, path, resp.StatusCode)
		}
		return nil, mxErr
	}
	return data, nil
}

// send puts one event into the room. Each send gets a fresh transaction
// id, and outbound traffic passes the rate limiter first.
func (c *Client) send(ctx context.Context, eventType string, content any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("chat: rate limit wait: %w", err)
	}
	path := fmt.Sprintf("/_matrix/client/v3/rooms/%s/send/%s/%s",
		url.PathEscape(c.roomID), eventType, uuid.NewString())
	_, err := c.doRequest(ctx, http.MethodPut, path, nil, content)
	return err
}

// Notify posts a free-standing text message into the room. Used for
// overdue summaries.
func (c *Client) Notify(ctx context.Context, text string) error {
	return c.send(ctx, "m.room.message", map[string]any{
		"msgtype": "m.text",
		"body":    text,
	})
}

// Reply posts a text message related to an existing event.
func (c *Client) Reply(ctx context.Context, eventID, text string) error {
	return c.send(ctx, "m.room.message", map[string]any{
		"msgtype": "m.text",
		"body":    text,
		"m.relates_to": map[string]any{
			"m.in_reply_to": map[string]any{"event_id": eventID},
		},
	})
}

// React attaches an annotation (emoji reaction) to an existing event.
func (c *Client) React(ctx context.Context, eventID, key string) error {
	return c.send(ctx, "m.reaction", map[string]any{
		"m.relates_to": map[string]any{
			"rel_type": "m.annotation",
			"event_id": eventID,
			"key":      key,
		},
	})
}

// Permalink returns the matrix.to link for an event, recorded on loans
// as the borrow or return reference.
func (c *Client) Permalink(eventID string) string {
	return fmt.Sprintf("https://matrix.to/#/%s/%s", url.PathEscape(c.roomID), url.PathEscape(eventID))
}
