package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/linhhnbkdn/brokerage/internal/domain"
)

// Validator resolves an auth token to a user id.
type Validator interface {
	Validate(token string) (int64, error)
}

// HMACValidator validates self-contained tokens of the form
// "<userID>.<expiryUnix>.<hex hmac-sha256>", signed with a shared secret.
type HMACValidator struct {
	secret []byte
	now    func() time.Time
}

// NewHMACValidator creates a validator over the shared secret.
func NewHMACValidator(secret string) *HMACValidator {
	return &HMACValidator{secret: []byte(secret), now: time.Now}
}

// Sign issues a token for the user, valid for ttl.
func (v *HMACValidator) Sign(userID int64, ttl time.Duration) string {
	payload := fmt.Sprintf("%d.%d", userID, v.now().Add(ttl).Unix())
	return payload + "." + v.signature(payload)
}

// Validate checks the token signature and expiry and returns the user id.
// All failures wrap domain.ErrAuth so callers can treat them uniformly.
func (v *HMACValidator) Validate(token string) (int64, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return 0, fmt.Errorf("malformed token: %w", domain.ErrAuth)
	}

	payload := parts[0] + "." + parts[1]
	if !hmac.Equal([]byte(v.signature(payload)), []byte(parts[2])) {
		return 0, fmt.Errorf("bad signature: %w", domain.ErrAuth)
	}

	expiry, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("bad expiry: %w", domain.ErrAuth)
	}
	if v.now().Unix() >= expiry {
		return 0, fmt.Errorf("token expired: %w", domain.ErrAuth)
	}

	userID, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil || userID <= 0 {
		return 0, fmt.Errorf("bad user id: %w", domain.ErrAuth)
	}
	return userID, nil
}

func (v *HMACValidator) signature(payload string) string {
	mac := hmac.New(sha256.New, v.secret)
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}

// StaticValidator maps fixed tokens to user ids. Useful in tests and for
// local development setups with pre-issued tokens.
type StaticValidator map[string]int64

func (v StaticValidator) Validate(token string) (int64, error) {
	userID, ok := v[token]
	if !ok {
		return 0, domain.ErrAuth
	}
	return userID, nil
}
