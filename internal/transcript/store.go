package transcript

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/wolfman30/studio-booking-assistant/internal/assistant"
)

const (
	keyPrefix          = "assistant_transcript:"
	defaultTTL         = 7 * 24 * time.Hour
	defaultMaxMessages = 250
)

// Entry is one archived turn.
type Entry struct {
	TurnID     string    `json:"turn_id"`
	Studio     string    `json:"studio"`
	Role       string    `json:"role"`
	Body       string    `json:"body"`
	Action     string    `json:"action,omitempty"`
	BookingRef string    `json:"booking_ref,omitempty"`
	Local      bool      `json:"local,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// Store archives finished turns in a capped Redis list per session for
// operator review. Sessions are never restored from it.
type Store struct {
	redis       *redis.Client
	tracer      trace.Tracer
	ttl         time.Duration
	maxMessages int64
}

// NewStore returns nil when no client is given; a nil Store is a no-op.
func NewStore(redisClient *redis.Client) *Store {
	if redisClient == nil {
		return nil
	}
	return &Store{
		redis:       redisClient,
		tracer:      otel.Tracer("studio.internal.transcript"),
		ttl:         defaultTTL,
		maxMessages: defaultMaxMessages,
	}
}

// ArchiveTurn implements assistant.TurnArchive.
func (s *Store) ArchiveTurn(ctx context.Context, sessionID, studio string, t assistant.Turn) error {
	return s.Append(ctx, sessionID, Entry{
		TurnID:     t.ID,
		Studio:     studio,
		Role:       string(t.Role),
		Body:       t.Content,
		Action:     string(t.Action),
		BookingRef: t.Payload.BookingRef,
		Local:      t.Local,
		Timestamp:  t.CreatedAt,
	})
}

func (s *Store) Append(ctx context.Context, sessionID string, entry Entry) error {
	if s == nil || s.redis == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if sessionID == "" {
		return errors.New("transcript: sessionID required")
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("transcript: marshal entry: %w", err)
	}

	ctx, span := s.tracer.Start(ctx, "transcript.append",
		trace.WithAttributes(attribute.String("studio", entry.Studio), attribute.String("role", entry.Role)))
	defer span.End()

	key := sessionKey(sessionID)
	pipe := s.redis.TxPipeline()
	pipe.RPush(ctx, key, data)
	pipe.Expire(ctx, key, s.ttl)
	if s.maxMessages > 0 {
		pipe.LTrim(ctx, key, -s.maxMessages, -1)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		span.RecordError(err)
		return fmt.Errorf("transcript: append entry: %w", err)
	}
	return nil
}

// List returns up to limit of the most recent entries; limit <= 0 returns all.
func (s *Store) List(ctx context.Context, sessionID string, limit int64) ([]Entry, error) {
	if s == nil || s.redis == nil {
		return nil, nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if sessionID == "" {
		return nil, errors.New("transcript: sessionID required")
	}

	ctx, span := s.tracer.Start(ctx, "transcript.list")
	defer span.End()

	start := int64(0)
	if limit > 0 {
		start = -limit
	}
	raw, err := s.redis.LRange(ctx, sessionKey(sessionID), start, -1).Result()
	if err != nil {
		span.RecordError(err)
		if errors.Is(err, redis.Nil) {
			return []Entry{}, nil
		}
		return nil, fmt.Errorf("transcript: list entries: %w", err)
	}

	out := make([]Entry, 0, len(raw))
	for _, item := range raw {
		var entry Entry
		if err := json.Unmarshal([]byte(item), &entry); err != nil {
			span.RecordError(err)
			continue
		}
		out = append(out, entry)
	}
	return out, nil
}

func sessionKey(sessionID string) string {
	return keyPrefix + sessionID
}
