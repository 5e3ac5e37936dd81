package verification

import (
	"crypto/hmac"
	"crypto/subtle"
	"encoding/base32"
	"encoding/binary"
	"strings"
	"time"

	"github.com/pquerna/otp"
)

var b32NoPadding = base32.StdEncoding.WithPadding(base32.NoPadding)

// charsetCode renders the HOTP truncation value for counter using charset
// as the digit alphabet, most significant character first.
func charsetCode(secret []byte, counter int64, digits int, alg otp.Algorithm, charset string) string {
	var msg [8]byte
	binary.BigEndian.PutUint64(msg[:], uint64(counter))

	mac := hmac.New(alg.Hash, secret)
	_, _ = mac.Write(msg[:])
	sum := mac.Sum(nil)

	offset := sum[len(sum)-1] & 0x0f
	bin := (int(sum[offset])&0x7f)<<24 |
		(int(sum[offset+1])&0xff)<<16 |
		(int(sum[offset+2])&0xff)<<8 |
		(int(sum[offset+3]) & 0xff)

	base := len(charset)
	out := make([]byte, digits)
	for i := digits - 1; i >= 0; i-- {
		out[i] = charset[bin%base]
		bin /= base
	}
	return string(out)
}

func decodeSecret(secret string) ([]byte, error) {
	s := strings.ToUpper(strings.TrimRight(strings.TrimSpace(secret), "="))
	return b32NoPadding.DecodeString(s)
}

func counterAt(t time.Time, period time.Duration) int64 {
	return t.Unix() / int64(period/time.Second)
}

// matchWithin checks code against every counter in [now-skew, now+skew].
func matchWithin(secret []byte, code string, now time.Time, sc SecretConfig, skew int) bool {
	alg, err := ParseAlgorithm(sc.Algorithm)
	if err != nil || sc.Period <= 0 || len(sc.CharSet) < 2 {
		return false
	}
	if len(code) != sc.Digits {
		return false
	}

	base := counterAt(now, time.Duration(sc.Period)*time.Second)
	matched := 0
	for step := -skew; step <= skew; step++ {
		counter := base + int64(step)
		if counter < 0 {
			continue
		}
		want := charsetCode(secret, counter, sc.Digits, alg, sc.CharSet)
		matched |= subtle.ConstantTimeCompare([]byte(want), []byte(code))
	}
	return matched == 1
}
