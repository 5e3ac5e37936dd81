//go:build integration
// +build integration

package test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/MrEthical07/kvauth/kv"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

// backend is one Redis target the suite runs against. fastForward is nil
// for real servers, where expiry cannot be simulated.
type backend struct {
	name        string
	store       kv.Store
	fastForward func(time.Duration)
}

// backends returns miniredis, plus a real Redis when KVAUTH_REDIS_ADDR is
// set (e.g. "127.0.0.1:6379").
func backends(t *testing.T) []backend {
	t.Helper()
	mr := miniredis.RunT(t)
	mini := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = mini.Close() })
	out := []backend{{name: "miniredis", store: kv.NewRedis(mini), fastForward: mr.FastForward}}

	if addr := os.Getenv("KVAUTH_REDIS_ADDR"); addr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: addr})
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := rdb.Ping(ctx).Err(); err != nil {
			t.Logf("skipping standalone redis at %s: %v", addr, err)
			_ = rdb.Close()
			return out
		}
		// Flush the test DB to avoid state leaking between runs.
		rdb.FlushDB(context.Background())
		t.Cleanup(func() { rdb.FlushDB(context.Background()); _ = rdb.Close() })
		out = append(out, backend{name: "standalone:" + addr, store: kv.NewRedis(rdb)})
	}
	return out
}

func forEachBackend(t *testing.T, fn func(t *testing.T, b backend)) {
	for _, b := range backends(t) {
		t.Run(b.name, func(t *testing.T) { fn(t, b) })
	}
}
