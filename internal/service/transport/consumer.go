package transport

import (
	"context"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/time/rate"

	"sextant/internal/config"
	"sextant/internal/domain/models/session"
	sessionsvc "sextant/internal/domain/services/session"
)

// Consumer owns the event-stream lifecycle: connect, decode, dispatch into
// the state layer, reconnect with exponential backoff on drops.
//
// Dispatch is deliberately forgiving: a malformed or unknown event is
// logged and skipped, never fatal, so the stream keeps flowing even when
// the server speaks a newer dialect than this build.
type Consumer struct {
	stream *Stream
	state  sessionsvc.State
	logger *slog.Logger
	warn   *rate.Limiter
}

// NewConsumer wires a stream to the state layer.
func NewConsumer(stream *Stream, state sessionsvc.State, logger *slog.Logger) *Consumer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Consumer{
		stream: stream,
		state:  state,
		logger: logger,
		// Skip warnings are sampled: a server streaming events this build
		// cannot decode would otherwise flood the log at token rate.
		warn: rate.NewLimiter(rate.Every(10*time.Second), 3),
	}
}

// Run listens until ctx is cancelled, reconnecting with exponential
// backoff. A connection that stayed up for a while resets the ladder.
func (c *Consumer) Run(ctx context.Context) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = config.StreamBackoffInitial
	b.MaxInterval = config.StreamBackoffMax
	b.MaxElapsedTime = 0

	for {
		start := time.Now()
		err := c.stream.Listen(ctx, c.dispatch)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if time.Since(start) > time.Minute {
			b.Reset()
		}

		wait := b.NextBackOff()
		c.logger.Warn("event stream disconnected", "error", err, "retry_in", wait)
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// dispatch decodes one envelope and routes it into the state layer.
func (c *Consumer) dispatch(env Envelope) {
	decoded, err := session.DecodeEvent(env.Type, env.Data)
	if err != nil {
		if c.warn.Allow() {
			c.logger.Warn("skipping event", "type", env.Type, "error", err)
		}
		return
	}

	switch ev := decoded.(type) {
	case *session.SessionUpdatedEvent:
		c.state.UpsertSession(&ev.Info)
	case *session.SessionDeletedEvent:
		c.state.RemoveSession(ev.SessionID)
	case *session.SessionIdleEvent:
		c.state.FlushStreaming()
	case *session.SessionErrorEvent:
		c.logger.Warn("session errored", "session_id", ev.SessionID, "error", ev.Error)
		c.state.FlushStreaming()
	case *session.MessageUpdatedEvent:
		c.state.UpsertMessage(&ev.Info)
		if ev.Info.IsCompleted() {
			c.state.FlushStreaming()
		}
	case *session.MessageRemovedEvent:
		c.state.RemoveMessage(ev.SessionID, ev.MessageID)
	case *session.PartUpdatedEvent:
		c.state.UpsertPart(&ev.Part)
	case *session.PartDelta:
		c.applyDelta(ev)
	case *session.PartRemovedEvent:
		c.state.RemovePart(ev.MessageID, ev.PartID)
	case *session.TodoUpdatedEvent:
		c.state.SetTodos(ev.SessionID, ev.Todos)
	}
}

// applyDelta feeds one stream fragment into the state layer. An unknown
// target part means its create event was lost (dropped connection, or the
// part was evicted): a text delta carries enough to materialize a minimal
// text part and resume accumulating, any other field is dropped.
func (c *Consumer) applyDelta(d *session.PartDelta) {
	if c.state.ApplyPartDelta(d.MessageID, d.PartID, d.Field, d.Delta) {
		return
	}
	if !d.IsText() {
		if c.warn.Allow() {
			c.logger.Warn("dropping delta for unknown part",
				"message_id", d.MessageID, "part_id", d.PartID, "field", string(d.Field))
		}
		return
	}

	c.state.UpsertPart(&session.Part{
		ID:        d.PartID,
		MessageID: d.MessageID,
		SessionID: d.SessionID,
		Type:      session.PartTypeText,
	})
	if !c.state.ApplyPartDelta(d.MessageID, d.PartID, d.Field, d.Delta) {
		// The owning message is gone too; nothing to attach the text to.
		if c.warn.Allow() {
			c.logger.Warn("dropping delta for unknown message",
				"message_id", d.MessageID, "part_id", d.PartID)
		}
	}
}
