package kvauth

import (
	"context"
	"errors"

	"github.com/MrEthical07/kvauth/verification"
)

// meteredCodes wraps the verification store with counters and audit
// events. The totp strategy talks to it instead of the bare store.
type meteredCodes struct {
	store *verification.Store
	svc   *Services
}

func (m meteredCodes) Generate(ctx context.Context, t verification.Type, identifier string) (string, error) {
	code, err := m.store.Generate(ctx, t, identifier)
	var cd *verification.CooldownError
	switch {
	case errors.As(err, &cd):
		m.svc.Metrics.Inc(MetricCodeCooldown)
	case err == nil:
		m.svc.Metrics.Inc(MetricCodeSent)
		m.svc.emit(ctx, AuditEvent{
			EventType: AuditCodeSent,
			Success:   true,
			Metadata:  map[string]string{"type": string(t)},
		})
	}
	return code, err
}

func (m meteredCodes) Verify(ctx context.Context, t verification.Type, identifier, code string) (bool, error) {
	ok, err := m.store.Verify(ctx, t, identifier, code)
	switch {
	case errors.Is(err, verification.ErrExpired):
		m.svc.Metrics.Inc(MetricCodeExpired)
	case err != nil:
	case ok:
		m.svc.Metrics.Inc(MetricCodeVerified)
		m.svc.emit(ctx, AuditEvent{EventType: AuditCodeVerified, Success: true})
	default:
		m.svc.Metrics.Inc(MetricCodeRejected)
		m.svc.emit(ctx, AuditEvent{EventType: AuditCodeRejected})
	}
	return ok, err
}
