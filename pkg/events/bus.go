package events

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	// DefaultSubject is the subject accepted submissions are announced on.
	DefaultSubject = "appgrader.submissions.accepted"
	queueGroup     = "appgrader-evaluators"
)

// ErrNoTransport is returned by Subscribe when neither NATS nor Redis is configured.
var ErrNoTransport = errors.New("no event transport configured")

// SubmissionAccepted announces that the gate stored a submission.
type SubmissionAccepted struct {
	Email      string    `json:"email"`
	Task       string    `json:"task"`
	Round      int       `json:"round"`
	RepoURL    string    `json:"repo_url"`
	CommitSHA  string    `json:"commit_sha"`
	PagesURL   string    `json:"pages_url"`
	AcceptedAt time.Time `json:"accepted_at"`
}

// Handler consumes a decoded event.
type Handler func(ctx context.Context, event SubmissionAccepted)

// Bus fans submission events out over NATS and, when configured, a Redis channel.
type Bus struct {
	nats    *nats.Conn
	redis   *redis.Client
	subject string
	logger  zerolog.Logger
}

// NewBus builds a bus. Either transport may be nil; a bus with neither publishes nothing.
func NewBus(natsConn *nats.Conn, redisClient *redis.Client, subject string, logger zerolog.Logger) *Bus {
	if subject == "" {
		subject = DefaultSubject
	}
	return &Bus{
		nats:    natsConn,
		redis:   redisClient,
		subject: subject,
		logger:  logger.With().Str("component", "event_bus").Logger(),
	}
}

// Publish announces event on every configured transport.
func (b *Bus) Publish(ctx context.Context, event SubmissionAccepted) error {
	if b == nil {
		return nil
	}
	if event.AcceptedAt.IsZero() {
		event.AcceptedAt = time.Now().UTC()
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}

	if b.nats != nil {
		if err := b.nats.Publish(b.subject, payload); err != nil {
			return err
		}
	}

	if b.redis != nil {
		if err := b.redis.Publish(ctx, b.subject, payload).Err(); err != nil {
			return err
		}
	}

	return nil
}

// Subscribe delivers events to handler until ctx is cancelled. NATS is preferred and
// joins a queue group so several evaluators share the work; Redis is the fallback.
func (b *Bus) Subscribe(ctx context.Context, handler Handler) error {
	switch {
	case b.nats != nil:
		return b.consumeNATS(ctx, handler)
	case b.redis != nil:
		return b.consumeRedis(ctx, handler)
	default:
		return ErrNoTransport
	}
}

func (b *Bus) consumeNATS(ctx context.Context, handler Handler) error {
	sub, err := b.nats.QueueSubscribe(b.subject, queueGroup, func(msg *nats.Msg) {
		b.dispatch(ctx, msg.Data, handler)
	})
	if err != nil {
		return err
	}

	<-ctx.Done()
	if err := sub.Drain(); err != nil {
		b.logger.Warn().Err(err).Msg("failed to drain submission subscription")
	}
	return nil
}

func (b *Bus) consumeRedis(ctx context.Context, handler Handler) error {
	pubsub := b.redis.Subscribe(ctx, b.subject)
	defer func() { _ = pubsub.Close() }()

	if _, err := pubsub.Receive(ctx); err != nil {
		return err
	}

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			b.dispatch(ctx, []byte(msg.Payload), handler)
		}
	}
}

func (b *Bus) dispatch(ctx context.Context, payload []byte, handler Handler) {
	var event SubmissionAccepted
	if err := json.Unmarshal(payload, &event); err != nil {
		b.logger.Warn().Err(err).Msg("invalid submission event payload")
		return
	}
	handler(ctx, event)
}
