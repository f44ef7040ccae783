package session

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/linhhnbkdn/brokerage/internal/auth"
	"github.com/linhhnbkdn/brokerage/internal/domain"
)

func newTestRegistry(maxSubs int) *Registry {
	return NewRegistry(auth.StaticValidator{"tok-1": 1, "tok-2": 2}, maxSubs)
}

// register + accept + authenticate, returning the session id.
func authedSession(t *testing.T, r *Registry, token string) string {
	t.Helper()
	id := r.Register()
	if err := r.Accept(id); err != nil {
		t.Fatalf("Accept() error = %v", err)
	}
	if _, err := r.Authenticate(id, token); err != nil {
		t.Fatalf("Authenticate() error = %v", err)
	}
	return id
}

func TestRegistry_Lifecycle(t *testing.T) {
	r := newTestRegistry(50)

	id := r.Register()
	if !strings.HasPrefix(id, "sess_") {
		t.Fatalf("session id = %q", id)
	}
	s, ok := r.Get(id)
	if !ok || s.State != StateConnecting {
		t.Fatalf("state = %s, want connecting", s.State)
	}

	if err := r.Accept(id); err != nil {
		t.Fatalf("Accept() error = %v", err)
	}
	// Accepting twice is an invalid transition.
	if err := r.Accept(id); !errors.Is(err, domain.ErrSessionState) {
		t.Errorf("second Accept() error = %v, want ErrSessionState", err)
	}

	userID, err := r.Authenticate(id, "tok-2")
	if err != nil {
		t.Fatalf("Authenticate() error = %v", err)
	}
	if userID != 2 {
		t.Errorf("userID = %d, want 2", userID)
	}

	r.Disconnect(id)
	s, _ = r.Get(id)
	if s.State != StateDisconnected {
		t.Errorf("state = %s, want disconnected", s.State)
	}
	if len(s.Subscriptions) != 0 {
		t.Errorf("subscriptions survived disconnect: %v", s.Subscriptions)
	}
}

func TestRegistry_AuthenticateRejectsBadToken(t *testing.T) {
	r := newTestRegistry(50)
	id := r.Register()
	if err := r.Accept(id); err != nil {
		t.Fatal(err)
	}

	if _, err := r.Authenticate(id, "bogus"); !errors.Is(err, domain.ErrAuth) {
		t.Fatalf("Authenticate(bogus) error = %v, want ErrAuth", err)
	}
	// Failed auth leaves the session connected for a retry.
	s, _ := r.Get(id)
	if s.State != StateConnected {
		t.Errorf("state after failed auth = %s, want connected", s.State)
	}
	if _, err := r.Authenticate(id, "tok-1"); err != nil {
		t.Errorf("retry Authenticate() error = %v", err)
	}
}

func TestRegistry_SubscribeRequiresAuth(t *testing.T) {
	r := newTestRegistry(50)
	id := r.Register()
	if err := r.Accept(id); err != nil {
		t.Fatal(err)
	}

	if _, err := r.Subscribe(id, []string{"AAPL"}); !errors.Is(err, domain.ErrSessionState) {
		t.Errorf("Subscribe() before auth error = %v, want ErrSessionState", err)
	}
}

func TestRegistry_SubscribeNormalizesAndDedupes(t *testing.T) {
	r := newTestRegistry(50)
	id := authedSession(t, r, "tok-1")

	count, err := r.Subscribe(id, []string{"aapl", "AAPL", "tsla"})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	if count != 2 {
		t.Errorf("count = %d, want 2", count)
	}

	// Resubscribing is idempotent.
	count, err = r.Subscribe(id, []string{"AAPL"})
	if err != nil || count != 2 {
		t.Errorf("resubscribe = %d, %v", count, err)
	}

	got := r.SubscribedSymbols(id)
	want := []string{"AAPL", "TSLA"}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("symbols = %v, want %v", got, want)
	}
}

func TestRegistry_SubscriptionCap(t *testing.T) {
	r := newTestRegistry(50)
	id := authedSession(t, r, "tok-1")

	symbols := make([]string, 50)
	for i := range symbols {
		symbols[i] = fmt.Sprintf("SYM%02d", i)
	}
	count, err := r.Subscribe(id, symbols)
	if err != nil {
		t.Fatalf("Subscribe(50) error = %v", err)
	}
	if count != 50 {
		t.Fatalf("count = %d, want 50", count)
	}

	// The 51st is refused and the existing 50 stay intact.
	if _, err := r.Subscribe(id, []string{"SYM50"}); !errors.Is(err, domain.ErrLimitExceeded) {
		t.Fatalf("Subscribe(51st) error = %v, want ErrLimitExceeded", err)
	}
	if got := len(r.SubscribedSymbols(id)); got != 50 {
		t.Errorf("subscriptions after refusal = %d, want 50", got)
	}

	// A duplicate still succeeds at the cap.
	if _, err := r.Subscribe(id, []string{"SYM00"}); err != nil {
		t.Errorf("Subscribe(duplicate at cap) error = %v", err)
	}
}

func TestRegistry_UnsubscribeIsIdempotent(t *testing.T) {
	r := newTestRegistry(50)
	id := authedSession(t, r, "tok-1")

	if _, err := r.Subscribe(id, []string{"AAPL", "TSLA"}); err != nil {
		t.Fatal(err)
	}
	count, err := r.Unsubscribe(id, []string{"tsla", "NEVER-SUBSCRIBED"})
	if err != nil {
		t.Fatalf("Unsubscribe() error = %v", err)
	}
	if count != 1 {
		t.Errorf("count = %d, want 1", count)
	}
}

func TestRegistry_SessionsForSymbol(t *testing.T) {
	r := newTestRegistry(50)
	a := authedSession(t, r, "tok-1")
	b := authedSession(t, r, "tok-2")

	if _, err := r.Subscribe(a, []string{"AAPL"}); err != nil {
		t.Fatal(err)
	}
	if _, err := r.Subscribe(b, []string{"AAPL", "TSLA"}); err != nil {
		t.Fatal(err)
	}

	if got := r.SessionsForSymbol("aapl"); len(got) != 2 {
		t.Errorf("SessionsForSymbol(aapl) = %v", got)
	}
	got := r.SessionsForSymbol("TSLA")
	if len(got) != 1 || got[0] != b {
		t.Errorf("SessionsForSymbol(TSLA) = %v, want [%s]", got, b)
	}

	// Disconnected sessions drop out of routing.
	r.Disconnect(b)
	if got := r.SessionsForSymbol("AAPL"); len(got) != 1 || got[0] != a {
		t.Errorf("after disconnect = %v, want [%s]", got, a)
	}
}

func TestRegistry_SessionsForUser(t *testing.T) {
	r := newTestRegistry(50)
	a := authedSession(t, r, "tok-1")
	authedSession(t, r, "tok-2")

	got := r.SessionsForUser(1)
	if len(got) != 1 || got[0] != a {
		t.Errorf("SessionsForUser(1) = %v, want [%s]", got, a)
	}
	if got := r.SessionsForUser(99); len(got) != 0 {
		t.Errorf("SessionsForUser(99) = %v", got)
	}
}

func TestRegistry_Remove(t *testing.T) {
	r := newTestRegistry(50)
	id := r.Register()
	r.Remove(id)
	if _, ok := r.Get(id); ok {
		t.Error("session survived Remove()")
	}
	if r.Count() != 0 {
		t.Errorf("count = %d, want 0", r.Count())
	}
}
