package mirror

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/ppiankov/toolgate/internal/audit"
)

// DefaultStream is the Redis stream entries are added to.
const DefaultStream = "toolgate:audit"

// RedisSink appends every entry to a Redis stream so that downstream
// consumers can follow decisions in order.
type RedisSink struct {
	client *redis.Client
	stream string
	maxLen int64
}

// RedisOptions configures a RedisSink.
type RedisOptions struct {
	URL    string
	Stream string
	// MaxLen caps the stream length approximately; 0 keeps everything.
	MaxLen int64
}

// NewRedisSink parses opts.URL and returns a sink. The connection is lazy.
func NewRedisSink(opts RedisOptions) (*RedisSink, error) {
	ro, err := redis.ParseURL(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("mirror: redis url: %w", err)
	}
	return newRedisSink(redis.NewClient(ro), opts.Stream, opts.MaxLen), nil
}

func newRedisSink(client *redis.Client, stream string, maxLen int64) *RedisSink {
	if stream == "" {
		stream = DefaultStream
	}
	return &RedisSink{client: client, stream: stream, maxLen: maxLen}
}

// Ping checks connectivity.
func (s *RedisSink) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisSink) Publish(ctx context.Context, e audit.Entry) error {
	raw, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("mirror: marshal entry: %w", err)
	}
	args := &redis.XAddArgs{
		Stream: s.stream,
		Values: map[string]any{
			"id":        e.ID,
			"action_id": e.ActionID,
			"decision":  string(e.Decision),
			"entry":     string(raw),
		},
	}
	if s.maxLen > 0 {
		args.MaxLen = s.maxLen
		args.Approx = true
	}
	if err := s.client.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("mirror: redis xadd: %w", err)
	}
	return nil
}

func (s *RedisSink) Close() error {
	return s.client.Close()
}
