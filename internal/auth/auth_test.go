package auth

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/linhhnbkdn/brokerage/internal/domain"
)

func TestHMACValidator_RoundTrip(t *testing.T) {
	v := NewHMACValidator("test-secret")

	token := v.Sign(42, time.Hour)
	userID, err := v.Validate(token)
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if userID != 42 {
		t.Errorf("userID = %d, want 42", userID)
	}
}

func TestHMACValidator_Rejects(t *testing.T) {
	v := NewHMACValidator("test-secret")
	good := v.Sign(42, time.Hour)

	tests := []struct {
		name  string
		token string
	}{
		{"empty", ""},
		{"malformed", "not-a-token"},
		{"two parts", "42.12345"},
		{"tampered user", "43." + strings.SplitN(good, ".", 2)[1]},
		{"tampered signature", good[:len(good)-1] + "x"},
		{"wrong secret", NewHMACValidator("other-secret").Sign(42, time.Hour)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := v.Validate(tt.token); !errors.Is(err, domain.ErrAuth) {
				t.Errorf("Validate(%q) error = %v, want ErrAuth", tt.token, err)
			}
		})
	}
}

func TestHMACValidator_Expiry(t *testing.T) {
	v := NewHMACValidator("test-secret")
	token := v.Sign(7, time.Minute)

	v.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	if _, err := v.Validate(token); !errors.Is(err, domain.ErrAuth) {
		t.Errorf("Validate(expired) error = %v, want ErrAuth", err)
	}
}

func TestStaticValidator(t *testing.T) {
	v := StaticValidator{"alpha": 1, "beta": 2}

	userID, err := v.Validate("beta")
	if err != nil || userID != 2 {
		t.Errorf("Validate(beta) = %d, %v", userID, err)
	}
	if _, err := v.Validate("gamma"); !errors.Is(err, domain.ErrAuth) {
		t.Errorf("Validate(gamma) error = %v, want ErrAuth", err)
	}
}
