package session

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/linhhnbkdn/brokerage/internal/auth"
	"github.com/linhhnbkdn/brokerage/internal/domain"
)

// Session lifecycle states.
const (
	StateConnecting    = "connecting"
	StateConnected     = "connected"
	StateAuthenticated = "authenticated"
	StateDisconnected  = "disconnected"
	StateError         = "error"
)

// Session is one client connection's registry record. All fields are
// owned by the registry; callers read them through snapshot copies.
type Session struct {
	ID             string
	UserID         int64
	State          string
	Subscriptions  map[string]struct{}
	ConnectedUnixM int64
	LastSeenUnixM  int64
}

// Registry tracks connection sessions, their auth state and their symbol
// subscriptions, and enforces the per-session subscription cap.
type Registry struct {
	mu        sync.RWMutex
	sessions  map[string]*Session
	validator auth.Validator
	maxSubs   int
}

// NewRegistry creates a registry enforcing maxSubs subscriptions per session.
func NewRegistry(validator auth.Validator, maxSubs int) *Registry {
	return &Registry{
		sessions:  make(map[string]*Session),
		validator: validator,
		maxSubs:   maxSubs,
	}
}

// Register records a new connecting session and returns its id.
func (r *Registry) Register() string {
	now := time.Now().UnixMicro()
	s := &Session{
		ID:             "sess_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12],
		State:          StateConnecting,
		Subscriptions:  make(map[string]struct{}),
		ConnectedUnixM: now,
		LastSeenUnixM:  now,
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.ID] = s
	return s.ID
}

// Accept moves a connecting session to connected, after the transport
// handshake completes.
func (r *Registry) Accept(sessionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[sessionID]
	if !ok {
		return fmt.Errorf("accept %s: unknown session", sessionID)
	}
	if s.State != StateConnecting {
		return fmt.Errorf("accept %s in state %s: %w", sessionID, s.State, domain.ErrSessionState)
	}
	s.State = StateConnected
	return nil
}

// Authenticate validates the token and binds the user to the session.
// Auth failures leave the session connected so the client may retry.
func (r *Registry) Authenticate(sessionID, token string) (int64, error) {
	userID, err := r.validator.Validate(token)
	if err != nil {
		return 0, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[sessionID]
	if !ok {
		return 0, fmt.Errorf("authenticate %s: unknown session", sessionID)
	}
	if s.State != StateConnected && s.State != StateAuthenticated {
		return 0, fmt.Errorf("authenticate %s in state %s: %w", sessionID, s.State, domain.ErrSessionState)
	}
	s.UserID = userID
	s.State = StateAuthenticated
	s.LastSeenUnixM = time.Now().UnixMicro()
	return userID, nil
}

// Subscribe adds symbols to the session's subscription set. Symbols are
// normalized to upper case and duplicates are free. When the batch would
// push the set past the cap, nothing is added and ErrLimitExceeded is
// returned: the existing subscriptions stay intact.
func (r *Registry) Subscribe(sessionID string, symbols []string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[sessionID]
	if !ok {
		return 0, fmt.Errorf("subscribe %s: unknown session", sessionID)
	}
	if s.State != StateAuthenticated {
		return 0, fmt.Errorf("subscribe %s in state %s: %w", sessionID, s.State, domain.ErrSessionState)
	}

	added := 0
	for _, symbol := range symbols {
		if _, exists := s.Subscriptions[strings.ToUpper(symbol)]; !exists {
			added++
		}
	}
	if len(s.Subscriptions)+added > r.maxSubs {
		return len(s.Subscriptions), fmt.Errorf("subscription cap is %d: %w", r.maxSubs, domain.ErrLimitExceeded)
	}

	for _, symbol := range symbols {
		s.Subscriptions[strings.ToUpper(symbol)] = struct{}{}
	}
	s.LastSeenUnixM = time.Now().UnixMicro()
	return len(s.Subscriptions), nil
}

// Unsubscribe removes symbols from the session's subscription set.
// Symbols never subscribed are a no-op.
func (r *Registry) Unsubscribe(sessionID string, symbols []string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[sessionID]
	if !ok {
		return 0, fmt.Errorf("unsubscribe %s: unknown session", sessionID)
	}
	if s.State != StateAuthenticated {
		return 0, fmt.Errorf("unsubscribe %s in state %s: %w", sessionID, s.State, domain.ErrSessionState)
	}

	for _, symbol := range symbols {
		delete(s.Subscriptions, strings.ToUpper(symbol))
	}
	s.LastSeenUnixM = time.Now().UnixMicro()
	return len(s.Subscriptions), nil
}

// Disconnect marks the session disconnected and clears its subscriptions.
// Valid from any state.
func (r *Registry) Disconnect(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[sessionID]
	if !ok {
		return
	}
	s.State = StateDisconnected
	s.Subscriptions = make(map[string]struct{})
}

// Fail marks the session errored and clears its subscriptions.
func (r *Registry) Fail(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[sessionID]
	if !ok {
		return
	}
	s.State = StateError
	s.Subscriptions = make(map[string]struct{})
}

// Remove drops the session record entirely.
func (r *Registry) Remove(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, sessionID)
}

// Touch refreshes the session's last-seen timestamp.
func (r *Registry) Touch(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.sessions[sessionID]; ok {
		s.LastSeenUnixM = time.Now().UnixMicro()
	}
}

// Get returns a snapshot copy of the session.
func (r *Registry) Get(sessionID string) (Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[sessionID]
	if !ok {
		return Session{}, false
	}
	return snapshot(s), true
}

// SessionsForSymbol lists authenticated session ids subscribed to the symbol.
func (r *Registry) SessionsForSymbol(symbol string) []string {
	symbol = strings.ToUpper(symbol)

	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []string
	for id, s := range r.sessions {
		if s.State != StateAuthenticated {
			continue
		}
		if _, ok := s.Subscriptions[symbol]; ok {
			out = append(out, id)
		}
	}
	return out
}

// SessionsForUser lists authenticated session ids bound to the user.
func (r *Registry) SessionsForUser(userID int64) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []string
	for id, s := range r.sessions {
		if s.State == StateAuthenticated && s.UserID == userID {
			out = append(out, id)
		}
	}
	return out
}

// Count returns the number of tracked sessions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

func snapshot(s *Session) Session {
	out := *s
	out.Subscriptions = make(map[string]struct{}, len(s.Subscriptions))
	for symbol := range s.Subscriptions {
		out.Subscriptions[symbol] = struct{}{}
	}
	return out
}

// SubscribedSymbols returns the session's subscriptions in sorted order.
func (r *Registry) SubscribedSymbols(sessionID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[sessionID]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(s.Subscriptions))
	for symbol := range s.Subscriptions {
		out = append(out, symbol)
	}
	sort.Strings(out)
	return out
}
