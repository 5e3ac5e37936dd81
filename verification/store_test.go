package verification

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/kvauth/kv"
	"github.com/alicebob/miniredis/v2"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type testEnv struct {
	store *Store
	kv    *kv.Redis
	mr    *miniredis.Miniredis
	clock *fakeClock
}

func newTestEnv(t *testing.T, opts ...Option) testEnv {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	backend := kv.NewRedis(rdb)
	clock := newFakeClock()
	opts = append([]Option{WithClock(clock.Now)}, opts...)
	s, err := New(backend, DefaultConfig(), opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return testEnv{store: s, kv: backend, mr: mr, clock: clock}
}

const wrongCode = "000000"

func TestGenerateProducesCharsetCode(t *testing.T) {
	env := newTestEnv(t)
	code, err := env.store.Generate(context.Background(), TypeEmail, "alice@example.com")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(code) != 6 {
		t.Fatalf("expected 6 characters, got %q", code)
	}
	for _, r := range code {
		if !strings.ContainsRune(DefaultCharSet, r) {
			t.Fatalf("code %q contains %q outside the charset", code, r)
		}
	}

	key := Key(TypeEmail, "alice@example.com")
	if key != "verification:alice@example.com:email" {
		t.Fatalf("unexpected key %q", key)
	}
	if ttl := env.mr.TTL(key); ttl != 10*time.Minute {
		t.Fatalf("expected ttl of one period, got %v", ttl)
	}

	rec, err := env.store.Get(context.Background(), TypeEmail, "alice@example.com")
	if err != nil || rec == nil {
		t.Fatalf("Get: rec=%v err=%v", rec, err)
	}
	if rec.VerifyAttempts != 0 || rec.LastActivityAt != env.clock.Now().UnixMilli() {
		t.Fatalf("unexpected fresh record: %+v", rec)
	}
	if rec.Config.Algorithm != "SHA256" || rec.Config.Period != 600 {
		t.Fatalf("unexpected secret config: %+v", rec.Config)
	}
}

func TestGenerateEnforcesCooldown(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	if _, err := env.store.Generate(ctx, TypeEmail, "a@b.co"); err != nil {
		t.Fatalf("first Generate: %v", err)
	}

	env.clock.Advance(20 * time.Second)
	_, err := env.store.Generate(ctx, TypeEmail, "a@b.co")
	var cd *CooldownError
	if !errors.As(err, &cd) {
		t.Fatalf("expected CooldownError, got %v", err)
	}
	if cd.Seconds() != 40 {
		t.Fatalf("expected 40 seconds remaining, got %d", cd.Seconds())
	}
	if !strings.Contains(cd.Error(), "40 seconds") {
		t.Fatalf("message should carry the wait: %q", cd.Error())
	}

	env.clock.Advance(500 * time.Millisecond)
	_, err = env.store.Generate(ctx, TypeEmail, "a@b.co")
	if !errors.As(err, &cd) || cd.Seconds() != 40 {
		t.Fatalf("expected remaining to round up to 40, got %v", err)
	}

	env.clock.Advance(40 * time.Second)
	if _, err := env.store.Generate(ctx, TypeEmail, "a@b.co"); err != nil {
		t.Fatalf("Generate after cooldown: %v", err)
	}
}

func TestCooldownIsPerIdentifierAndType(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	if _, err := env.store.Generate(ctx, TypeEmail, "a@b.co"); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if _, err := env.store.Generate(ctx, TypeEmail, "c@d.co"); err != nil {
		t.Fatalf("other identifier should not be throttled: %v", err)
	}
	if _, err := env.store.Generate(ctx, TypePhone, "a@b.co"); err != nil {
		t.Fatalf("other type should not be throttled: %v", err)
	}
}

func TestVerifyIsOneTimeUse(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	code, err := env.store.Generate(ctx, TypeEmail, "a@b.co")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	ok, err := env.store.Verify(ctx, TypeEmail, "a@b.co", code)
	if err != nil || !ok {
		t.Fatalf("expected first verify to succeed, ok=%v err=%v", ok, err)
	}
	if exists, _ := env.store.Exists(ctx, TypeEmail, "a@b.co"); exists {
		t.Fatal("record must be deleted after successful verify")
	}

	if _, err := env.store.Verify(ctx, TypeEmail, "a@b.co", code); !errors.Is(err, ErrExpired) {
		t.Fatalf("expected ErrExpired on reuse, got %v", err)
	}
}

func TestVerifyWrongThenRight(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	code, _ := env.store.Generate(ctx, TypeEmail, "a@b.co")

	ok, err := env.store.Verify(ctx, TypeEmail, "a@b.co", wrongCode)
	if err != nil || ok {
		t.Fatalf("expected wrong code to fail softly, ok=%v err=%v", ok, err)
	}
	rec, _ := env.store.Get(ctx, TypeEmail, "a@b.co")
	if rec == nil || rec.VerifyAttempts != 1 {
		t.Fatalf("expected one recorded attempt, got %+v", rec)
	}

	ok, err = env.store.Verify(ctx, TypeEmail, "a@b.co", code)
	if err != nil || !ok {
		t.Fatalf("expected correct code to pass, ok=%v err=%v", ok, err)
	}
	if exists, _ := env.store.Exists(ctx, TypeEmail, "a@b.co"); exists {
		t.Fatal("record must be absent after success")
	}
}

func TestVerifyExhaustsAttempts(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	code, _ := env.store.Generate(ctx, TypeEmail, "a@b.co")
	for i := 0; i < 3; i++ {
		ok, err := env.store.Verify(ctx, TypeEmail, "a@b.co", wrongCode)
		if err != nil || ok {
			t.Fatalf("attempt %d: ok=%v err=%v", i+1, ok, err)
		}
	}

	if _, err := env.store.Verify(ctx, TypeEmail, "a@b.co", code); !errors.Is(err, ErrExpired) {
		t.Fatalf("expected ErrExpired once attempts are used up, got %v", err)
	}
	rec, _ := env.store.Get(ctx, TypeEmail, "a@b.co")
	if rec == nil || rec.VerifyAttempts != 3 {
		t.Fatalf("attempts must never exceed the cap, got %+v", rec)
	}
}

func TestVerifyMissingRecordIsExpired(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.store.Verify(context.Background(), TypeEmail, "nobody@b.co", "ABCDEF"); !errors.Is(err, ErrExpired) {
		t.Fatalf("expected ErrExpired, got %v", err)
	}
}

func TestVerifyPreservesRemainingTTL(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, _ = env.store.Generate(ctx, TypeEmail, "a@b.co")
	env.clock.Advance(4 * time.Minute)

	if _, err := env.store.Verify(ctx, TypeEmail, "a@b.co", wrongCode); err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if ttl := env.mr.TTL(Key(TypeEmail, "a@b.co")); ttl != 6*time.Minute {
		t.Fatalf("expected remaining ttl of 6m, got %v", ttl)
	}

	rec, _ := env.store.Get(ctx, TypeEmail, "a@b.co")
	if rec.LastActivityAt != env.clock.Now().UnixMilli() {
		t.Fatalf("verify must refresh lastActivityAt, got %d", rec.LastActivityAt)
	}
}

func TestVerifyRestartsSendCooldown(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, _ = env.store.Generate(ctx, TypeEmail, "a@b.co")
	env.clock.Advance(50 * time.Second)
	_, _ = env.store.Verify(ctx, TypeEmail, "a@b.co", wrongCode)
	env.clock.Advance(20 * time.Second)

	var cd *CooldownError
	if _, err := env.store.Generate(ctx, TypeEmail, "a@b.co"); !errors.As(err, &cd) || cd.Seconds() != 40 {
		t.Fatalf("expected cooldown measured from the verify attempt, got %v", err)
	}
}

func TestVerifyAcceptsAdjacentPeriod(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	code, _ := env.store.Generate(ctx, TypeEmail, "a@b.co")
	env.clock.Advance(10 * time.Minute)

	ok, err := env.store.Verify(ctx, TypeEmail, "a@b.co", code)
	if err != nil || !ok {
		t.Fatalf("code from the previous period should be accepted, ok=%v err=%v", ok, err)
	}
}

func TestVerifyRejectsCodeTwoPeriodsOld(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	code, _ := env.store.Generate(ctx, TypeEmail, "a@b.co")
	env.clock.Advance(20 * time.Minute)

	ok, err := env.store.Verify(ctx, TypeEmail, "a@b.co", code)
	if err != nil || ok {
		t.Fatalf("expected stale code to be rejected, ok=%v err=%v", ok, err)
	}
}

func TestVerifyIsCaseInsensitiveForUppercaseCharset(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	code, _ := env.store.Generate(ctx, TypeEmail, "a@b.co")
	ok, err := env.store.Verify(ctx, TypeEmail, "a@b.co", " "+strings.ToLower(code)+" ")
	if err != nil || !ok {
		t.Fatalf("expected normalized code to pass, ok=%v err=%v", ok, err)
	}
}

func TestGenerateOverwriteResetsAttempts(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, _ = env.store.Generate(ctx, TypeEmail, "a@b.co")
	_, _ = env.store.Verify(ctx, TypeEmail, "a@b.co", wrongCode)
	_, _ = env.store.Verify(ctx, TypeEmail, "a@b.co", wrongCode)

	env.clock.Advance(2 * time.Minute)
	if _, err := env.store.Generate(ctx, TypeEmail, "a@b.co"); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	rec, _ := env.store.Get(ctx, TypeEmail, "a@b.co")
	if rec.VerifyAttempts != 0 {
		t.Fatalf("expected attempts reset, got %d", rec.VerifyAttempts)
	}
}

type failingGetStore struct {
	kv.Store
}

func (failingGetStore) Get(context.Context, string) ([]byte, error) {
	return nil, kv.ErrUnavailable
}

func TestGenerateFailsOpenWhenCooldownCheckErrors(t *testing.T) {
	env := newTestEnv(t)
	core, logs := observer.New(zap.WarnLevel)

	s, err := New(failingGetStore{Store: env.kv}, DefaultConfig(), WithClock(env.clock.Now), WithLogger(zap.New(core)))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if _, err := s.Generate(context.Background(), TypeEmail, "a@b.co"); err != nil {
		t.Fatalf("expected fail-open generate, got %v", err)
	}
	if n := logs.FilterField(zap.String("event", "verification_cooldown_check_failed")).Len(); n != 1 {
		t.Fatalf("expected fail-open to be logged once, got %d entries", n)
	}
	if !env.mr.Exists(Key(TypeEmail, "a@b.co")) {
		t.Fatal("record should still be written")
	}
}

func TestVerifyPropagatesBackendError(t *testing.T) {
	env := newTestEnv(t)
	s, _ := New(failingGetStore{Store: env.kv}, DefaultConfig())
	if _, err := s.Verify(context.Background(), TypeEmail, "a@b.co", "ABCDEF"); !errors.Is(err, kv.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

func TestGenerateRequiresIdentifier(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.store.Generate(context.Background(), TypeEmail, ""); !errors.Is(err, ErrIdentifierRequired) {
		t.Fatalf("expected ErrIdentifierRequired, got %v", err)
	}
}

func TestCharsetCodeMatchesNumericTOTP(t *testing.T) {
	const secretB32 = "JBSWY3DPEHPK3PXP"
	secret, err := decodeSecret(secretB32)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	at := time.Unix(1_700_000_000, 0)

	for _, alg := range []otp.Algorithm{otp.AlgorithmSHA1, otp.AlgorithmSHA256, otp.AlgorithmSHA512} {
		want, err := totp.GenerateCodeCustom(secretB32, at, totp.ValidateOpts{
			Period:    30,
			Digits:    otp.DigitsSix,
			Algorithm: alg,
		})
		if err != nil {
			t.Fatalf("GenerateCodeCustom: %v", err)
		}
		got := charsetCode(secret, counterAt(at, 30*time.Second), 6, alg, "0123456789")
		if got != want {
			t.Fatalf("%s: charset code %q != numeric totp %q", alg, got, want)
		}
	}
}

func TestConfigValidate(t *testing.T) {
	mutate := []func(*Config){
		func(c *Config) { c.Period = 0 },
		func(c *Config) { c.MaxAttempts = 0 },
		func(c *Config) { c.Digits = 2 },
		func(c *Config) { c.CharSet = "A" },
		func(c *Config) { c.CharSet = "AAB" },
		func(c *Config) { c.Skew = 5 },
		func(c *Config) { c.Issuer = "a:b" },
		func(c *Config) { c.Algorithm = otp.AlgorithmMD5 },
	}
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	for i, m := range mutate {
		cfg := DefaultConfig()
		m(&cfg)
		if err := cfg.Validate(); !errors.Is(err, ErrInvalidConfig) {
			t.Fatalf("case %d: expected ErrInvalidConfig, got %v", i, err)
		}
	}
}

func TestParseAlgorithm(t *testing.T) {
	for in, want := range map[string]otp.Algorithm{
		"SHA-256": otp.AlgorithmSHA256,
		"sha512":  otp.AlgorithmSHA512,
		"":        otp.AlgorithmSHA1,
	} {
		got, err := ParseAlgorithm(in)
		if err != nil || got != want {
			t.Fatalf("ParseAlgorithm(%q) = %v, %v", in, got, err)
		}
	}
	if _, err := ParseAlgorithm("md4"); err == nil {
		t.Fatal("expected error for unknown algorithm")
	}
}
