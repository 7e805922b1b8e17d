package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"sextant/internal/config"
	"sextant/internal/domain"
	"sextant/internal/domain/models/session"
	sessionsvc "sextant/internal/domain/services/session"
)

// Client talks to the agent server's REST surface. Safe for concurrent use.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// NewClient creates a REST client for the server at baseURL. An empty token
// sends unauthenticated requests; a non-positive timeout falls back to the
// configured default.
func NewClient(baseURL, token string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = config.DefaultRequestTimeout
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: timeout},
	}
}

// FetchSessions lists every session known to the server.
func (c *Client) FetchSessions(ctx context.Context) ([]*session.Session, error) {
	var sessions []*session.Session
	if err := c.do(ctx, "fetch sessions", http.MethodGet, "/session", nil, &sessions); err != nil {
		return nil, err
	}
	return sessions, nil
}

// FetchMessages returns one page of a session's messages with their parts.
// Before pages backwards: only messages with ids below it are returned.
func (c *Client) FetchMessages(ctx context.Context, sessionID string, opts sessionsvc.FetchOptions) ([]sessionsvc.MessageEnvelope, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = config.DefaultFetchLimit
	}
	q := url.Values{}
	q.Set("limit", strconv.Itoa(limit))
	if opts.Before != "" {
		q.Set("before", opts.Before)
	}
	path := fmt.Sprintf("/session/%s/message?%s", url.PathEscape(sessionID), q.Encode())

	var envelopes []sessionsvc.MessageEnvelope
	if err := c.do(ctx, "fetch messages", http.MethodGet, path, nil, &envelopes); err != nil {
		return nil, err
	}
	return envelopes, nil
}

// SendMessage submits a user prompt. The server answers with the confirmed
// message record under req.MessageID, which is what lets the state layer
// retire the optimistic placeholder in place.
func (c *Client) SendMessage(ctx context.Context, sessionID string, req *sessionsvc.SendMessageRequest) (*session.Message, error) {
	if err := validateSend(req); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}

	path := fmt.Sprintf("/session/%s/message", url.PathEscape(sessionID))
	var msg session.Message
	if err := c.do(ctx, "send message", http.MethodPost, path, req, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

func validateSend(req *sessionsvc.SendMessageRequest) error {
	return validation.ValidateStruct(req,
		validation.Field(&req.Text, validation.Required, validation.Length(1, config.MaxSendTextLength)),
	)
}

// do runs one JSON exchange. Connection failures, non-2xx statuses and
// undecodable bodies all come back as *domain.TransportError; a 404
// additionally unwraps to domain.ErrNotFound.
func (c *Client) do(ctx context.Context, op, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return &domain.TransportError{Op: op, Err: err}
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return &domain.TransportError{Op: op, Err: err}
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &domain.TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return &domain.TransportError{Op: op, Status: resp.StatusCode, Err: domain.ErrNotFound}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &domain.TransportError{Op: op, Status: resp.StatusCode}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &domain.TransportError{Op: op, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}
