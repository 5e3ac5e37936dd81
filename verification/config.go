package verification

import (
	"fmt"
	"strings"
	"time"

	"github.com/pquerna/otp"
)

// DefaultCharSet omits characters that are easy to confuse (0, O, I).
const DefaultCharSet = "ABCDEFGHJKLMNPQRSTUVWXYZ123456789"

// Config controls code generation and verification.
type Config struct {
	// Period is both the code validity window and the record TTL.
	Period time.Duration
	// SendCooldown is the minimum spacing between sends for one identifier.
	SendCooldown time.Duration
	// MaxAttempts caps verify calls per record.
	MaxAttempts int
	Digits      int
	Algorithm   otp.Algorithm
	CharSet     string
	// Skew is the number of periods accepted on either side of now.
	Skew       int
	SecretSize uint
	Issuer     string
}

// DefaultConfig returns the production defaults: 10 minute codes of six
// characters, a 60 second send cooldown and three attempts.
func DefaultConfig() Config {
	return Config{
		Period:       10 * time.Minute,
		SendCooldown: 60 * time.Second,
		MaxAttempts:  3,
		Digits:       6,
		Algorithm:    otp.AlgorithmSHA256,
		CharSet:      DefaultCharSet,
		Skew:         1,
		SecretSize:   20,
		Issuer:       "kvauth",
	}
}

// Validate checks the config for values that cannot produce usable codes.
func (c Config) Validate() error {
	if c.Period < time.Second {
		return fmt.Errorf("%w: period must be at least 1s", ErrInvalidConfig)
	}
	if c.SendCooldown < 0 {
		return fmt.Errorf("%w: send cooldown must be >= 0", ErrInvalidConfig)
	}
	if c.MaxAttempts <= 0 {
		return fmt.Errorf("%w: max attempts must be > 0", ErrInvalidConfig)
	}
	if c.Digits < 4 || c.Digits > 10 {
		return fmt.Errorf("%w: digits must be in [4,10]", ErrInvalidConfig)
	}
	if len(c.CharSet) < 2 {
		return fmt.Errorf("%w: charset needs at least 2 characters", ErrInvalidConfig)
	}
	seen := make(map[byte]struct{}, len(c.CharSet))
	for i := 0; i < len(c.CharSet); i++ {
		ch := c.CharSet[i]
		if ch > 0x7f {
			return fmt.Errorf("%w: charset must be ASCII", ErrInvalidConfig)
		}
		if _, dup := seen[ch]; dup {
			return fmt.Errorf("%w: charset has duplicate %q", ErrInvalidConfig, ch)
		}
		seen[ch] = struct{}{}
	}
	if c.Skew < 0 || c.Skew > 2 {
		return fmt.Errorf("%w: skew must be in [0,2]", ErrInvalidConfig)
	}
	switch c.Algorithm {
	case otp.AlgorithmSHA1, otp.AlgorithmSHA256, otp.AlgorithmSHA512:
	default:
		return fmt.Errorf("%w: unsupported algorithm", ErrInvalidConfig)
	}
	if strings.TrimSpace(c.Issuer) == "" || strings.Contains(c.Issuer, ":") {
		return fmt.Errorf("%w: issuer must be non-empty and colon-free", ErrInvalidConfig)
	}
	return nil
}

// ParseAlgorithm maps SHA1, SHA256 and SHA512 (with or without a dash,
// any case) to the otp algorithm.
func ParseAlgorithm(name string) (otp.Algorithm, error) {
	switch strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(name), "-", "")) {
	case "", "SHA1":
		return otp.AlgorithmSHA1, nil
	case "SHA256":
		return otp.AlgorithmSHA256, nil
	case "SHA512":
		return otp.AlgorithmSHA512, nil
	default:
		return 0, fmt.Errorf("%w: unsupported algorithm %q", ErrInvalidConfig, name)
	}
}
