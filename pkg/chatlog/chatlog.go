package chatlog

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Event is one answered chatbot turn, published for offline analytics.
// The assistant itself never reads the stream back. Route carries the
// orchestrator's label for how the reply was produced.
type Event struct {
	RequestID    string
	UserID       string
	Route        string
	ProductCount int
	DurationMS   int64
	OccurredAt   time.Time
}

// Recorder appends chat turn events somewhere durable.
type Recorder interface {
	Record(ctx context.Context, ev Event) error
}

// RedisRecorder appends events to a capped Redis stream.
type RedisRecorder struct {
	client *redis.Client
	stream string
	maxLen int64
}

// Config configures the Redis-backed recorder.
type Config struct {
	Addr     string
	Password string
	Stream   string
	MaxLen   int64
}

// NewRedisRecorder creates a recorder that publishes to a Redis stream.
func NewRedisRecorder(cfg Config) (*RedisRecorder, error) {
	addr := strings.TrimSpace(cfg.Addr)
	if addr == "" {
		return nil, errors.New("chatlog redis addr required")
	}
	stream := strings.TrimSpace(cfg.Stream)
	if stream == "" {
		stream = "classifieds:chatlog"
	}
	maxLen := cfg.MaxLen
	if maxLen <= 0 {
		maxLen = 10000
	}
	return &RedisRecorder{
		client: redis.NewClient(&redis.Options{Addr: addr, Password: cfg.Password}),
		stream: stream,
		maxLen: maxLen,
	}, nil
}

// Record appends one event. The stream is trimmed approximately to MaxLen.
func (r *RedisRecorder) Record(ctx context.Context, ev Event) error {
	occurred := ev.OccurredAt
	if occurred.IsZero() {
		occurred = time.Now().UTC()
	}
	return r.client.XAdd(ctx, &redis.XAddArgs{
		Stream: r.stream,
		MaxLen: r.maxLen,
		Approx: true,
		Values: map[string]any{
			"request_id":    ev.RequestID,
			"user_id":       ev.UserID,
			"route":         ev.Route,
			"product_count": strconv.Itoa(ev.ProductCount),
			"duration_ms":   strconv.FormatInt(ev.DurationMS, 10),
			"occurred_at":   occurred.Format(time.RFC3339Nano),
		},
	}).Err()
}
