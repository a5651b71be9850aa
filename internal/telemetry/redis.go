package telemetry

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
)

// DefaultStream is the Redis stream committed levels are appended to.
const DefaultStream = "defcon:levels"

// RedisOptions configures the Redis stream sink.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	Stream   string
	// MaxLen caps the stream length; 0 keeps everything.
	MaxLen  int64
	Timeout time.Duration
}

// RedisStream appends committed levels to a Redis stream so other services
// can replay the level history.
type RedisStream struct {
	client  *redis.Client
	stream  string
	maxLen  int64
	timeout time.Duration
	now     func() time.Time
}

// NewRedisStream creates the sink. The connection is established lazily.
func NewRedisStream(opts RedisOptions) *RedisStream {
	stream := opts.Stream
	if stream == "" {
		stream = DefaultStream
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 500 * time.Millisecond
	}
	return &RedisStream{
		client: redis.NewClient(&redis.Options{
			Addr:     opts.Addr,
			Password: opts.Password,
			DB:       opts.DB,
		}),
		stream:  stream,
		maxLen:  opts.MaxLen,
		timeout: timeout,
		now:     time.Now,
	}
}

// Ping checks the connection.
func (r *RedisStream) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	return nil
}

// PublishLevel appends the level with XADD.
func (r *RedisStream) PublishLevel(level int) error {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	err := r.client.XAdd(ctx, &redis.XAddArgs{
		Stream: r.stream,
		MaxLen: r.maxLen,
		Values: levelValues(level, r.now()),
	}).Err()
	if err != nil {
		return fmt.Errorf("xadd %s: %w", r.stream, err)
	}
	return nil
}

// Close releases the connection pool.
func (r *RedisStream) Close() error {
	return r.client.Close()
}

func levelValues(level int, at time.Time) map[string]interface{} {
	return map[string]interface{}{
		"level":     strconv.Itoa(level),
		"timestamp": at.UTC().Format(time.RFC3339),
	}
}
