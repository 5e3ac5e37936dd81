package kv

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRedis(t *testing.T) (*Redis, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewRedis(rdb), mr
}

func TestRedisGetMissingReturnsNotFound(t *testing.T) {
	s, _ := newTestRedis(t)
	if _, err := s.Get(context.Background(), "absent"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRedisPutAppliesTTL(t *testing.T) {
	s, mr := newTestRedis(t)
	ctx := context.Background()

	if err := s.Put(ctx, "k", []byte("v"), 10*time.Second); err != nil {
		t.Fatalf("put: %v", err)
	}
	if ttl := mr.TTL("k"); ttl != 10*time.Second {
		t.Fatalf("expected 10s ttl, got %v", ttl)
	}

	mr.FastForward(11 * time.Second)
	if _, err := s.Get(ctx, "k"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected key to expire, got %v", err)
	}
}

func TestRedisDeleteIsIdempotent(t *testing.T) {
	s, _ := newTestRedis(t)
	ctx := context.Background()
	if err := s.Delete(ctx, "missing"); err != nil {
		t.Fatalf("delete missing: %v", err)
	}
	_ = s.Put(ctx, "k", []byte("v"), 0)
	if err := s.Delete(ctx, "k"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := s.Get(ctx, "k"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected deleted key to be absent, got %v", err)
	}
}

func TestRedisListByPrefix(t *testing.T) {
	s, _ := newTestRedis(t)
	ctx := context.Background()
	for _, k := range []string{"session:u1:a", "session:u1:b", "session:u2:c", "verification:x:email"} {
		if err := s.Put(ctx, k, []byte("{}"), time.Minute); err != nil {
			t.Fatalf("put %s: %v", k, err)
		}
	}

	keys, err := s.List(ctx, "session:u1:")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	sort.Strings(keys)
	if len(keys) != 2 || keys[0] != "session:u1:a" || keys[1] != "session:u1:b" {
		t.Fatalf("unexpected keys: %v", keys)
	}
}

func TestRedisListEscapesGlobCharacters(t *testing.T) {
	s, _ := newTestRedis(t)
	ctx := context.Background()
	_ = s.Put(ctx, "session:a*:1", []byte("{}"), 0)
	_ = s.Put(ctx, "session:ab:2", []byte("{}"), 0)

	keys, err := s.List(ctx, "session:a*:")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(keys) != 1 || keys[0] != "session:a*:1" {
		t.Fatalf("glob prefix leaked into pattern: %v", keys)
	}
}

func TestRedisUnavailableIsWrapped(t *testing.T) {
	s, mr := newTestRedis(t)
	mr.Close()

	_, err := s.Get(context.Background(), "k")
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

func TestJSONHelpers(t *testing.T) {
	s, _ := newTestRedis(t)
	ctx := context.Background()

	type rec struct {
		Name string `json:"name"`
	}
	var out rec
	ok, err := GetJSON(ctx, s, "j", &out)
	if err != nil || ok {
		t.Fatalf("expected missing json record, ok=%v err=%v", ok, err)
	}
	if err := PutJSON(ctx, s, "j", rec{Name: "x"}, time.Minute); err != nil {
		t.Fatalf("put json: %v", err)
	}
	ok, err = GetJSON(ctx, s, "j", &out)
	if err != nil || !ok || out.Name != "x" {
		t.Fatalf("unexpected json read: ok=%v err=%v out=%+v", ok, err, out)
	}

	_ = s.Put(ctx, "bad", []byte("{"), 0)
	if _, err := GetJSON(ctx, s, "bad", &out); !errors.Is(err, ErrCorrupt) {
		t.Fatalf("expected ErrCorrupt, got %v", err)
	}
}

func TestCeilSeconds(t *testing.T) {
	cases := map[time.Duration]time.Duration{
		0:                       time.Second,
		-5 * time.Second:        time.Second,
		500 * time.Millisecond:  time.Second,
		1500 * time.Millisecond: 2 * time.Second,
		3 * time.Second:         3 * time.Second,
	}
	for in, want := range cases {
		if got := CeilSeconds(in); got != want {
			t.Fatalf("CeilSeconds(%v) = %v, want %v", in, got, want)
		}
	}
}
