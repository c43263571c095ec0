package depthcache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/quantfabric/matchbook/pkg/core"
)

// RedisOptions represents configuration options for the Redis
// connection
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
}

var defaultOptions = &RedisOptions{
	Addr:     "localhost:6379",
	Password: "",
	DB:       0,
}

// SetDefaultRedisOptions sets the default options for Redis
// connections
func SetDefaultRedisOptions(options *RedisOptions) {
	defaultOptions = options
}

// GetRedisClient creates a new Redis client using the default options
func GetRedisClient() *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     defaultOptions.Addr,
		Password: defaultOptions.Password,
		DB:       defaultOptions.DB,
	})
}

// Publisher writes depth snapshots to Redis for external readers.
// Publishing is best effort: failures are logged and never surface to
// the book operation that triggered them.
type Publisher struct {
	client  redis.Cmdable
	logger  zerolog.Logger
	timeout time.Duration
}

// NewPublisher creates a Publisher on top of an existing client.
func NewPublisher(client redis.Cmdable, logger zerolog.Logger) *Publisher {
	return &Publisher{
		client:  client,
		logger:  logger,
		timeout: 2 * time.Second,
	}
}

func bookKey(book string) string {
	return fmt.Sprintf("book:%s", book)
}

// PublishDepth stores the snapshot under book:<name> as bids/asks JSON
// hash fields.
func (p *Publisher) PublishDepth(ctx context.Context, book string, depth core.DepthView) {
	bids, err := json.Marshal(depth.Bids)
	if err != nil {
		p.logger.Error().Err(err).Str("book", book).Msg("failed to marshal bids")
		return
	}
	asks, err := json.Marshal(depth.Asks)
	if err != nil {
		p.logger.Error().Err(err).Str("book", book).Msg("failed to marshal asks")
		return
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	if err := p.client.HSet(ctx, bookKey(book), "bids", bids, "asks", asks).Err(); err != nil {
		p.logger.Warn().Err(err).Str("book", book).Msg("failed to publish depth snapshot")
	}
}

// ReadDepth loads a previously published snapshot. Missing fields
// yield an empty view.
func (p *Publisher) ReadDepth(ctx context.Context, book string) (core.DepthView, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	fields, err := p.client.HGetAll(ctx, bookKey(book)).Result()
	if err != nil {
		return core.DepthView{}, fmt.Errorf("failed to read depth snapshot: %w", err)
	}

	var view core.DepthView
	if raw, ok := fields["bids"]; ok {
		if err := json.Unmarshal([]byte(raw), &view.Bids); err != nil {
			return core.DepthView{}, fmt.Errorf("failed to decode bids: %w", err)
		}
	}
	if raw, ok := fields["asks"]; ok {
		if err := json.Unmarshal([]byte(raw), &view.Asks); err != nil {
			return core.DepthView{}, fmt.Errorf("failed to decode asks: %w", err)
		}
	}
	return view, nil
}

// Delete removes a book's snapshot.
func (p *Publisher) Delete(ctx context.Context, book string) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	if err := p.client.Del(ctx, bookKey(book)).Err(); err != nil {
		p.logger.Warn().Err(err).Str("book", book).Msg("failed to delete depth snapshot")
	}
}
