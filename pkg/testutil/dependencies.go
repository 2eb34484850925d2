// Package testutil holds helpers for tests that need external services.
package testutil

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
)

// RedisAddr is the Redis used by integration tests, EXCHANGE_TEST_REDIS_ADDR
// or localhost:6379
func RedisAddr() string {
	if addr := os.Getenv("EXCHANGE_TEST_REDIS_ADDR"); addr != "" {
		return addr
	}
	return "localhost:6379"
}

// KafkaAddr is the broker used by integration tests, EXCHANGE_TEST_KAFKA_ADDR
// or localhost:9092
func KafkaAddr() string {
	if addr := os.Getenv("EXCHANGE_TEST_KAFKA_ADDR"); addr != "" {
		return addr
	}
	return "localhost:9092"
}

// SkipIfRedisUnavailable skips the test if Redis does not answer a PING on addr
func SkipIfRedisUnavailable(tb testing.TB, addr string) {
	tb.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close()

	if err := client.Ping(ctx).Err(); err != nil {
		tb.Skipf("Skipping test: Redis not available at %s - %v", addr, err)
	}
}

// SkipIfKafkaUnavailable skips the test if no Kafka broker answers on addr
func SkipIfKafkaUnavailable(tb testing.TB, addr string) {
	tb.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	conn, err := kafka.DialContext(ctx, "tcp", addr)
	if err != nil {
		tb.Skipf("Skipping test: Kafka not available at %s - %v", addr, err)
		return
	}
	defer conn.Close()

	if _, err := conn.Brokers(); err != nil {
		tb.Skipf("Skipping test: Kafka at %s is not responding correctly - %v", addr, err)
	}
}
