package kvauth

import (
	"io"

	"github.com/MrEthical07/kvauth/internal/audit"
	"go.uber.org/zap"
)

type (
	// AuditEvent is one audit record.
	AuditEvent = audit.Event
	// AuditSink receives audit events off the request path.
	AuditSink  = audit.Sink
	NoOpSink   = audit.NoOpSink
)

// Audit event types.
const (
	AuditCodeSent       = audit.EventCodeSent
	AuditCodeVerified   = audit.EventCodeVerified
	AuditCodeRejected   = audit.EventCodeRejected
	AuditLoginSuccess   = audit.EventLoginSuccess
	AuditLoginFailure   = audit.EventLoginFailure
	AuditRateLimited    = audit.EventRateLimited
	AuditLogout         = audit.EventLogout
	AuditSessionRevoked = audit.EventSessionRevoked
	AuditOthersRevoked  = audit.EventOthersRevoked
	AuditAccountDeleted = audit.EventAccountDeleted
	AuditGuardRejected  = audit.EventGuardRejected
)

func NewChannelSink(buffer int) *audit.ChannelSink { return audit.NewChannelSink(buffer) }

func NewJSONWriterSink(w io.Writer) *audit.JSONWriterSink { return audit.NewJSONWriterSink(w) }

// NewZapSink logs audit events through logger.
func NewZapSink(logger *zap.Logger) *audit.ZapSink { return audit.NewZapSink(logger) }
