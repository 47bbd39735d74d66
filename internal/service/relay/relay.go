package relay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/cloudwego/eino/schema"

	"github.com/zhouzirui/hirestream/backend/internal/model/chat"
	"github.com/zhouzirui/hirestream/backend/internal/observability"
	"github.com/zhouzirui/hirestream/backend/internal/service/ai"
	"github.com/zhouzirui/hirestream/backend/internal/service/session"
)

var (
	ErrInvalidInput   = errors.New("missing prompt")
	ErrInvalidSession = errors.New("invalid session ID")
	ErrMissingPayload = errors.New("session has no payload")
	ErrBackend        = errors.New("generation backend failed")
)

// LineBreak replaces newlines inside relayed chunks so each chunk fits in one
// event-stream data line.
const LineBreak = "<br>"

var lineBreaks = strings.NewReplacer("\r\n", LineBreak, "\n", LineBreak, "\r", LineBreak)

// EncodeLineBreaks swaps CRLF, LF and bare CR for LineBreak.
func EncodeLineBreaks(text string) string {
	return lineBreaks.Replace(text)
}

// Streamer opens an incremental backend response for a payload.
type Streamer interface {
	Stream(ctx context.Context, profile ai.Profile, payload chat.Payload) (*schema.StreamReader[*schema.Message], error)
}

// Chunk is one relayed unit. A chunk with Err set is always the last one.
type Chunk struct {
	Text string
	Err  error
}

// Option configures a Relay.
type Option func(*Relay)

// WithTimeout bounds each backend stream. Zero disables the bound.
func WithTimeout(d time.Duration) Option {
	return func(r *Relay) {
		r.timeout = d
	}
}

// Relay decouples prompt submission from streamed retrieval for one profile.
type Relay struct {
	store    session.Store
	streamer Streamer
	profile  ai.Profile
	timeout  time.Duration
}

// New builds a Relay over a session store and a backend streamer.
func New(store session.Store, streamer Streamer, profile ai.Profile, opts ...Option) *Relay {
	r := &Relay{
		store:    store,
		streamer: streamer,
		profile:  profile,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Profile returns the generation profile this relay serves.
func (r *Relay) Profile() ai.Profile {
	return r.profile
}

// Submit stores the payload and returns the session id to stream it with.
func (r *Relay) Submit(ctx context.Context, payload chat.Payload) (string, error) {
	created, err := r.store.Put(ctx, payload)
	if err != nil {
		if errors.Is(err, session.ErrEmptyPayload) {
			return "", ErrInvalidInput
		}
		return "", fmt.Errorf("store session: %w", err)
	}

	observability.LoggerFromContext(ctx).Info("session submitted",
		"profile", r.profile.Name, "session_id", created.ID)
	return created.ID, nil
}

// Open consumes the session and starts relaying the backend stream. Errors
// returned here happen before anything was relayed; later failures arrive as
// a final Chunk with Err set. Cancelling ctx stops the backend call and closes
// the channel.
func (r *Relay) Open(ctx context.Context, sessionID string) (<-chan Chunk, error) {
	if strings.TrimSpace(sessionID) == "" {
		return nil, ErrInvalidSession
	}

	taken, err := r.store.Take(ctx, sessionID)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) || errors.Is(err, session.ErrConsumed) {
			return nil, ErrInvalidSession
		}
		return nil, fmt.Errorf("take session: %w", err)
	}
	if taken.Payload.Empty() {
		return nil, ErrMissingPayload
	}

	streamCtx, cancel := r.withTimeout(ctx)
	stream, err := r.streamer.Stream(streamCtx, r.profile, taken.Payload)
	if err != nil {
		cancel()
		r.release(ctx, sessionID)
		return nil, fmt.Errorf("%w: %v", ErrBackend, err)
	}

	// unbuffered: a chunk counts as relayed only once the consumer has taken it
	out := make(chan Chunk)
	go r.produce(ctx, cancel, sessionID, stream, out)
	return out, nil
}

// Session states reported by Status.
const (
	StatusPending  = "pending"
	StatusConsumed = "consumed"
)

// Status reports whether a session is still waiting to be streamed.
func (r *Relay) Status(ctx context.Context, sessionID string) (string, error) {
	if _, err := r.store.Get(ctx, sessionID); err != nil {
		switch {
		case errors.Is(err, session.ErrConsumed):
			return StatusConsumed, nil
		case errors.Is(err, session.ErrNotFound):
			return "", ErrInvalidSession
		default:
			return "", fmt.Errorf("get session: %w", err)
		}
	}
	return StatusPending, nil
}

// Reset drops every stored session.
func (r *Relay) Reset(ctx context.Context) int {
	removed := r.store.Reset(ctx)
	observability.LoggerFromContext(ctx).Info("sessions reset",
		"profile", r.profile.Name, "removed", removed)
	return removed
}

func (r *Relay) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.timeout > 0 {
		return context.WithTimeout(ctx, r.timeout)
	}
	return context.WithCancel(ctx)
}

// produce delivers chunks until the backend finishes or the client context
// ends. cancel stops the backend call.
func (r *Relay) produce(ctx context.Context, cancel context.CancelFunc, sessionID string, stream *schema.StreamReader[*schema.Message], out chan<- Chunk) {
	defer close(out)
	defer cancel()
	defer stream.Close()

	logger := observability.LoggerFromContext(ctx).With("profile", r.profile.Name, "session_id", sessionID)
	relayed := 0

	for {
		if ctx.Err() != nil {
			r.abandon(ctx, logger, sessionID, relayed)
			return
		}

		msg, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			logger.Info("stream completed", "chunks", relayed)
			return
		}
		if err != nil {
			logger.Error("backend stream failed", "error", err, "chunks", relayed)
			if relayed == 0 {
				r.release(ctx, sessionID)
			}
			select {
			case out <- Chunk{Err: fmt.Errorf("%w: %v", ErrBackend, err)}:
			case <-ctx.Done():
			}
			return
		}
		if msg == nil || msg.Content == "" {
			continue
		}

		select {
		case out <- Chunk{Text: msg.Content}:
			relayed++
		case <-ctx.Done():
			r.abandon(ctx, logger, sessionID, relayed)
			return
		}
	}
}

func (r *Relay) abandon(ctx context.Context, logger *slog.Logger, sessionID string, relayed int) {
	logger.Warn("stream cancelled", "error", ctx.Err(), "chunks", relayed)
	if relayed == 0 {
		r.release(ctx, sessionID)
	}
}

// release lets the caller retry a session whose stream produced nothing.
func (r *Relay) release(ctx context.Context, sessionID string) {
	if err := r.store.Release(context.WithoutCancel(ctx), sessionID); err != nil {
		observability.LoggerFromContext(ctx).Warn("failed to release session",
			"session_id", sessionID, "error", err)
	}
}
