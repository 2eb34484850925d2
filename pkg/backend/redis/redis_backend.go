package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"

	"github.com/erain9/exchange/pkg/messaging"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisOptions represents configuration options for Redis connection
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
}

// NewClient creates a Redis client from options
func NewClient(options *RedisOptions) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     options.Addr,
		Password: options.Password,
		DB:       options.DB,
	})
}

// RedisBackend is an event journal shared through Redis. Each symbol's
// events live in a sorted set scored by sequence, so late deliveries land
// in place and reads come back ordered.
type RedisBackend struct {
	client     *redis.Client
	prefix     string
	symbolsKey string
	marksKey   string
	logger     *zap.Logger
}

// NewRedisBackend creates a journal storing its keys under prefix
func NewRedisBackend(client *redis.Client, prefix string, logger *zap.Logger) *RedisBackend {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisBackend{
		client:     client,
		prefix:     prefix,
		symbolsKey: fmt.Sprintf("%s:symbols", prefix),
		marksKey:   fmt.Sprintf("%s:truncated", prefix),
		logger:     logger,
	}
}

// Ping checks the connection
func (b *RedisBackend) Ping(ctx context.Context) error {
	return b.client.Ping(ctx).Err()
}

// Publish stores event in its symbol's sorted set
func (b *RedisBackend) Publish(ctx context.Context, event *messaging.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	pipe := b.client.Pipeline()
	pipe.ZAdd(ctx, b.streamKey(event.Symbol), redis.Z{
		Score:  float64(event.Sequence),
		Member: data,
	})
	pipe.SAdd(ctx, b.symbolsKey, event.Symbol)

	if _, err := pipe.Exec(ctx); err != nil {
		b.logger.Error("failed to journal event",
			zap.String("symbol", event.Symbol),
			zap.Uint64("sequence", event.Sequence),
			zap.String("type", string(event.Type)),
			zap.Error(err))
		return err
	}
	return nil
}

// Events returns up to limit events of symbol after the given sequence
func (b *RedisBackend) Events(ctx context.Context, symbol string, after uint64, limit int) ([]*messaging.Event, error) {
	opt := &redis.ZRangeBy{
		Min: "(" + strconv.FormatUint(after, 10),
		Max: "+inf",
	}
	if limit > 0 {
		opt.Count = int64(limit)
	}

	members, err := b.client.ZRangeByScore(ctx, b.streamKey(symbol), opt).Result()
	if err != nil {
		return nil, err
	}

	events := make([]*messaging.Event, 0, len(members))
	for _, m := range members {
		var e messaging.Event
		if err := json.Unmarshal([]byte(m), &e); err != nil {
			b.logger.Error("failed to unmarshal event",
				zap.String("symbol", symbol),
				zap.Error(err))
			return nil, err
		}
		events = append(events, &e)
	}
	return events, nil
}

// Symbols returns the symbols with at least one event
func (b *RedisBackend) Symbols(ctx context.Context) ([]string, error) {
	symbols, err := b.client.SMembers(ctx, b.symbolsKey).Result()
	if err != nil {
		return nil, err
	}
	sort.Strings(symbols)
	return symbols, nil
}

// Len returns the number of events stored for symbol
func (b *RedisBackend) Len(ctx context.Context, symbol string) (int64, error) {
	return b.client.ZCard(ctx, b.streamKey(symbol)).Result()
}

// LastSequence returns the highest sequence ever stored for symbol, 0 if
// none. Truncated events still count.
func (b *RedisBackend) LastSequence(ctx context.Context, symbol string) (uint64, error) {
	mark, err := b.watermark(ctx, symbol)
	if err != nil {
		return 0, err
	}

	top, err := b.client.ZRevRangeWithScores(ctx, b.streamKey(symbol), 0, 0).Result()
	if err != nil {
		return 0, err
	}
	if len(top) == 0 {
		return mark, nil
	}
	return max(uint64(top[0].Score), mark), nil
}

// Truncate drops the events of symbol up to and including sequence
func (b *RedisBackend) Truncate(ctx context.Context, symbol string, upTo uint64) error {
	mark, err := b.watermark(ctx, symbol)
	if err != nil {
		return err
	}

	pipe := b.client.TxPipeline()
	pipe.ZRemRangeByScore(ctx, b.streamKey(symbol), "-inf", strconv.FormatUint(upTo, 10))
	if upTo > mark {
		pipe.HSet(ctx, b.marksKey, symbol, strconv.FormatUint(upTo, 10))
	}
	_, err = pipe.Exec(ctx)
	return err
}

func (b *RedisBackend) watermark(ctx context.Context, symbol string) (uint64, error) {
	raw, err := b.client.HGet(ctx, b.marksKey, symbol).Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return strconv.ParseUint(raw, 10, 64)
}

// Close closes the Redis client
func (b *RedisBackend) Close() error {
	return b.client.Close()
}

func (b *RedisBackend) streamKey(symbol string) string {
	return fmt.Sprintf("%s:journal:%s", b.prefix, symbol)
}
