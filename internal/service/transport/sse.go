package transport

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"sextant/internal/config"
	"sextant/internal/domain"
)

// Envelope is one raw server-sent event: the event name and its JSON
// payload, undecoded.
type Envelope struct {
	Type string
	Data []byte
}

// Stream reads the server's SSE event feed.
//
// One Listen call is one connection; reconnect policy lives in the
// Consumer. The underlying client carries no timeout, the feed is
// long-lived and its lifetime is bounded by the caller's context.
type Stream struct {
	baseURL string
	token   string
	http    *http.Client
	logger  *slog.Logger
}

// NewStream creates an event stream reader for the server at baseURL.
func NewStream(baseURL, token string, logger *slog.Logger) *Stream {
	if logger == nil {
		logger = slog.Default()
	}
	return &Stream{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{},
		logger:  logger,
	}
}

// Listen connects to the feed and calls handle synchronously for every
// complete event until the connection drops or ctx is cancelled. Events
// are "event:" name plus one or more "data:" lines, terminated by a blank
// line; comment lines are keepalives and are skipped.
func (s *Stream) Listen(ctx context.Context, handle func(Envelope)) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/event", nil)
	if err != nil {
		return &domain.TransportError{Op: "event stream", Err: err}
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}

	resp, err := s.http.Do(req)
	if err != nil {
		return &domain.TransportError{Op: "event stream", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &domain.TransportError{Op: "event stream", Status: resp.StatusCode}
	}
	s.logger.Debug("event stream connected", "url", req.URL.String())

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 64*1024), config.MaxEventSize)

	var eventType string
	var data []string
	for scanner.Scan() {
		line := scanner.Text()

		switch {
		case line == "":
			if eventType != "" && len(data) > 0 {
				handle(Envelope{Type: eventType, Data: []byte(strings.Join(data, "\n"))})
			}
			eventType = ""
			data = data[:0]
		case strings.HasPrefix(line, ":"):
			// Keepalive comment.
		case strings.HasPrefix(line, "event: "):
			eventType = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			data = append(data, strings.TrimPrefix(line, "data: "))
		}
	}

	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err := scanner.Err(); err != nil {
		return &domain.TransportError{Op: "event stream", Err: err}
	}
	return fmt.Errorf("server closed the feed: %w", domain.ErrStreamClosed)
}
