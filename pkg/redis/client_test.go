package redis

import (
	"testing"
	"time"

	"github.com/ticketloom/ticketloom-backend/pkg/config"
)

func TestOptionsFromConfigParsesURL(t *testing.T) {
	opts, err := optionsFromConfig(config.RedisConfig{
		URL:      "redis://:secret@cache.internal:6380/2",
		PoolSize: 10,
	})
	if err != nil {
		t.Fatalf("options from url: %v", err)
	}
	if opts.Addr != "cache.internal:6380" {
		t.Fatalf("unexpected addr %q", opts.Addr)
	}
	if opts.Password != "secret" {
		t.Fatal("expected password from url")
	}
	if opts.DB != 2 {
		t.Fatalf("unexpected db %d", opts.DB)
	}
}

func TestOptionsFromConfigFallsBackToAddress(t *testing.T) {
	opts, err := optionsFromConfig(config.RedisConfig{
		Address:      "localhost:6379",
		Password:     "secret",
		DB:           1,
		PoolSize:     5,
		MinIdleConns: 2,
		DialTimeout:  time.Second,
	})
	if err != nil {
		t.Fatalf("options from address: %v", err)
	}
	if opts.Addr != "localhost:6379" {
		t.Fatalf("unexpected addr %q", opts.Addr)
	}
	if opts.Password != "secret" || opts.DB != 1 {
		t.Fatal("address branch must carry password and db")
	}
	if opts.PoolSize != 5 || opts.MinIdleConns != 2 || opts.DialTimeout != time.Second {
		t.Fatal("pool settings not applied")
	}
}

func TestOptionsFromConfigRequiresEndpoint(t *testing.T) {
	if _, err := optionsFromConfig(config.RedisConfig{}); err == nil {
		t.Fatal("expected error when neither url nor address is set")
	}
}

func TestBuildKeySkipsEmptyParts(t *testing.T) {
	c := &Client{}
	if got := c.IdempotencyKey("orders", "abc"); got != "tl:idempotency:orders:abc" {
		t.Fatalf("unexpected key %q", got)
	}
	if got := c.buildKey("lock", "", "leader"); got != "tl:lock:leader" {
		t.Fatalf("unexpected key %q", got)
	}
}
