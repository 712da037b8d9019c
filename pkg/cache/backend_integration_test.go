//go:build integration

package cache

import (
	"context"
	"os"
	"testing"
	"time"
)

func TestRedisCache_Integration(t *testing.T) {
	addr := os.Getenv("WAKACARD_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("WAKACARD_TEST_REDIS_ADDR not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	c, err := NewRedisCache(ctx, RedisConfig{Addr: addr, Match: "*"})
	if err != nil {
		t.Fatalf("NewRedisCache() error: %v", err)
	}
	defer c.Close()
	exercise(t, c)
}

func TestMongoCache_Integration(t *testing.T) {
	uri := os.Getenv("WAKACARD_TEST_MONGO_URI")
	if uri == "" {
		t.Skip("WAKACARD_TEST_MONGO_URI not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	c, err := NewMongoCache(ctx, MongoConfig{URI: uri, Database: "wakacard_test", Collection: "cache"})
	if err != nil {
		t.Fatalf("NewMongoCache() error: %v", err)
	}
	defer c.Close()
	exercise(t, c)
}
