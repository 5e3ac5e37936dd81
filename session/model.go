package session

import "time"

// Session is one signed-in device. Timestamps are unix milliseconds.
type Session struct {
	UserID    string `json:"userId"`
	SessionID string `json:"sessionId"`
	UserAgent string `json:"userAgent,omitempty"`
	IPAddress string `json:"ipAddress,omitempty"`
	Country   string `json:"country,omitempty"`
	CreatedAt int64  `json:"createdAt"`
	ExpiresAt int64  `json:"expiresAt"`
}

// Valid reports whether the session has not reached ExpiresAt.
func (s *Session) Valid(now time.Time) bool {
	return s != nil && now.UnixMilli() < s.ExpiresAt
}

// CreatedTime returns CreatedAt as a time.Time.
func (s *Session) CreatedTime() time.Time { return time.UnixMilli(s.CreatedAt) }

// ExpiresTime returns ExpiresAt as a time.Time.
func (s *Session) ExpiresTime() time.Time { return time.UnixMilli(s.ExpiresAt) }

// Params describes a session to create. The id and timestamps are
// assigned by the store.
type Params struct {
	UserID    string
	UserAgent string
	IPAddress string
	Country   string
}

// Patch lists fields to merge into an existing session. Nil fields are
// left untouched.
type Patch struct {
	UserAgent *string
	IPAddress *string
	Country   *string
	ExpiresAt *time.Time
}

func (p Patch) apply(s *Session) {
	if p.UserAgent != nil {
		s.UserAgent = *p.UserAgent
	}
	if p.IPAddress != nil {
		s.IPAddress = *p.IPAddress
	}
	if p.Country != nil {
		s.Country = *p.Country
	}
	if p.ExpiresAt != nil {
		s.ExpiresAt = p.ExpiresAt.UnixMilli()
	}
}
