package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrEthical07/kvauth/kv"
	"github.com/MrEthical07/kvauth/session"
)

type seeded struct {
	userID    string
	sessionID string
}

type opFunc func(ctx context.Context, r *rand.Rand, target seeded, i int) error

func runBench(args []string) error {
	fs := flag.NewFlagSet("bench", flag.ContinueOnError)
	var (
		users       = fs.Int("users", 1000, "number of users to seed")
		perUser     = fs.Int("per-user", 5, "sessions per user")
		concurrency = fs.Int("concurrency", 64, "number of concurrent workers")
		ops         = fs.Int("ops", 100000, "operations per phase")
		fanout      = fs.Int("fanout", 16, "concurrent store calls when listing")
		redisAddr   = fs.String("redis-addr", "", "redis address; if empty, KVAUTH_REDIS_ADDR env or miniredis is used")
	)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *users <= 0 || *perUser <= 0 || *concurrency <= 0 || *ops <= 0 {
		return errors.New("users, per-user, concurrency, and ops must be > 0")
	}

	ctx := context.Background()

	client, cleanup, err := openRedis(*redisAddr)
	if err != nil {
		return err
	}
	defer cleanup()

	store := session.NewStore(kv.NewRedis(client), 24*time.Hour, session.WithFanout(*fanout))

	fmt.Printf("seeding %d sessions...\n", *users * *perUser)
	startSeed := time.Now()
	targets, err := seed(ctx, store, *users, *perUser)
	if err != nil {
		return fmt.Errorf("seed: %w", err)
	}
	fmt.Printf("seeded in %s\n", time.Since(startSeed).Round(time.Millisecond))

	get := func(ctx context.Context, _ *rand.Rand, t seeded, _ int) error {
		s, err := store.Get(ctx, t.userID, t.sessionID)
		if err == nil && s == nil {
			return fmt.Errorf("session %s missing", t.sessionID)
		}
		return err
	}
	update := func(ctx context.Context, _ *rand.Rand, t seeded, i int) error {
		ua := fmt.Sprintf("loadtest/%d", i)
		_, err := store.Update(ctx, t.userID, t.sessionID, session.Patch{UserAgent: &ua})
		return err
	}
	list := func(ctx context.Context, _ *rand.Rand, t seeded, _ int) error {
		_, err := store.ListByUser(ctx, t.userID)
		return err
	}

	getStats := runPhase(ctx, targets, *ops, *concurrency, get)
	updateStats := runPhase(ctx, targets, *ops, *concurrency, update)
	listStats := runPhase(ctx, targets, *ops/10+1, *concurrency, list)

	fmt.Println("---- results ----")
	printStats("get", getStats)
	printStats("update", updateStats)
	printStats("list", listStats)
	return nil
}

func seed(ctx context.Context, store *session.Store, users, perUser int) ([]seeded, error) {
	out := make([]seeded, 0, users*perUser)
	for u := 0; u < users; u++ {
		userID := fmt.Sprintf("user-%d", u)
		for i := 0; i < perUser; i++ {
			sid, err := store.Create(ctx, session.Params{
				UserID:    userID,
				UserAgent: "kvauth-sessions",
				IPAddress: fmt.Sprintf("10.0.%d.%d", u%256, i%256),
			})
			if err != nil {
				return nil, err
			}
			out = append(out, seeded{userID: userID, sessionID: sid})
		}
	}
	return out, nil
}

func runPhase(ctx context.Context, targets []seeded, ops, concurrency int, op opFunc) phaseStats {
	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		latencies = make([]time.Duration, 0, ops)
		mu        sync.Mutex
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(worker)*7919))
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return
				}
				t0 := time.Now()
				err := op(ctx, r, targets[r.Intn(len(targets))], i)
				d := time.Since(t0)
				if err != nil {
					atomic.AddInt64(&failures, 1)
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()
	return computeStats(time.Since(start), latencies, failures)
}

type phaseStats struct {
	total    time.Duration
	ops      int
	failures int64
	p50      time.Duration
	p95      time.Duration
	p99      time.Duration
	opsPerS  float64
}

func computeStats(total time.Duration, samples []time.Duration, failures int64) phaseStats {
	if len(samples) == 0 {
		return phaseStats{total: total}
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	return phaseStats{
		total:    total,
		ops:      len(samples),
		failures: failures,
		p50:      percentile(samples, 50),
		p95:      percentile(samples, 95),
		p99:      percentile(samples, 99),
		opsPerS:  float64(len(samples)) / total.Seconds(),
	}
}

func percentile(samples []time.Duration, p int) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	if p <= 0 {
		return samples[0]
	}
	if p >= 100 {
		return samples[len(samples)-1]
	}
	return samples[(len(samples)-1)*p/100]
}

func printStats(name string, s phaseStats) {
	fmt.Printf("%s: ops=%d failures=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
		name,
		s.ops,
		s.failures,
		s.total.Round(time.Millisecond),
		s.opsPerS,
		s.p50.Round(time.Microsecond),
		s.p95.Round(time.Microsecond),
		s.p99.Round(time.Microsecond),
	)
}
