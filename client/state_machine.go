// Package client is the consumer side of the session lifecycle: a durable
// token slot, a gateway API client, and the state machine that keeps the
// in-memory session consistent with both.
package client

import (
	"context"
	"sync"

	"github.com/fieldware/sessiongate"
)

// State is the machine's authentication state. There is no error state:
// failures settle into StateUnauthenticated or leave the current state
// untouched, with the reason carried on the operation's AuthResult.
type State string

const (
	// StateLoading holds from construction until Restore settles. Consumers
	// should render neither the signed-in nor the signed-out surface yet.
	StateLoading State = "loading"

	StateAuthenticated   State = "authenticated"
	StateUnauthenticated State = "unauthenticated"
)

// Session is the in-memory snapshot of an established session.
type Session struct {
	Token string
	User  sessiongate.UserSummary
}

// Listener observes settled state transitions. Called outside the machine's
// lock, after the transition is visible.
type Listener func(state State, session Session)

// StateMachine serializes the session lifecycle. One operation runs at a
// time; an overlapping call is rejected with a busy failure rather than
// queued, so a stale queued transition can never clobber a newer one.
type StateMachine struct {
	provider sessiongate.IdentityProvider
	store    SessionStore
	logger   sessiongate.Logger

	op sync.Mutex

	mu        sync.RWMutex
	state     State
	session   Session
	listeners []Listener
}

type StateMachineOption func(*StateMachine)

func WithLogger(logger sessiongate.Logger) StateMachineOption {
	return func(m *StateMachine) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithListener registers a transition observer at construction time.
func WithListener(fn Listener) StateMachineOption {
	return func(m *StateMachine) {
		if fn != nil {
			m.listeners = append(m.listeners, fn)
		}
	}
}

func NewStateMachine(provider sessiongate.IdentityProvider, store SessionStore, opts ...StateMachineOption) *StateMachine {
	if provider == nil {
		panic("client: state machine requires an IdentityProvider")
	}
	if store == nil {
		panic("client: state machine requires a SessionStore")
	}

	m := &StateMachine{
		provider: provider,
		store:    store,
		logger:   sessiongate.DefaultLogger(),
		state:    StateLoading,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}

	return m
}

// State returns the current authentication state.
func (m *StateMachine) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Session returns the current session snapshot; zero unless authenticated.
func (m *StateMachine) Session() Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.session
}

// Authenticated reports whether a session is established.
func (m *StateMachine) Authenticated() bool {
	return m.State() == StateAuthenticated
}

// Subscribe registers a transition observer. Safe to call at any time.
func (m *StateMachine) Subscribe(fn Listener) {
	if fn == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, fn)
}

// Restore resolves the initial state from the stored token. A missing token,
// an unreadable slot, or a token the provider rejects all settle into
// unauthenticated; only the rejected-token case clears the slot, since an
// unreadable slot may still hold a valid token.
func (m *StateMachine) Restore(ctx context.Context) sessiongate.AuthResult {
	if !m.op.TryLock() {
		return sessiongate.Failure(sessiongate.ErrBusy)
	}
	defer m.op.Unlock()

	token, err := m.store.Get()
	if err != nil {
		m.logger.Warn("session restore: storage unreadable: %v", err)
		m.transition(StateUnauthenticated, Session{})
		return sessiongate.Failure(err)
	}

	if token == "" {
		m.transition(StateUnauthenticated, Session{})
		return sessiongate.AuthResult{}
	}

	user, err := m.provider.Validate(ctx, token)
	if err != nil {
		if sessiongate.IsNetworkError(err) {
			// Cannot tell a dead token from a dead network; keep the token
			// so the next restore can retry.
			m.logger.Warn("session restore: validation unreachable: %v", err)
		} else {
			if delErr := m.store.Delete(); delErr != nil {
				m.logger.Warn("session restore: failed to clear stale token: %v", delErr)
			}
		}
		m.transition(StateUnauthenticated, Session{})
		return sessiongate.Failure(err)
	}

	m.transition(StateAuthenticated, Session{Token: token, User: user})
	return sessiongate.Success(token, user)
}

// SignIn exchanges credentials for a session. On failure neither the state
// nor the stored token changes. A persistence failure is logged but does not
// fail the sign-in; the session is live for this process either way.
func (m *StateMachine) SignIn(ctx context.Context, email, password string) sessiongate.AuthResult {
	if !m.op.TryLock() {
		return sessiongate.Failure(sessiongate.ErrBusy)
	}
	defer m.op.Unlock()

	token, user, err := m.provider.Login(ctx, email, password)
	if err != nil {
		return sessiongate.Failure(err)
	}

	if err := m.store.Set(token); err != nil {
		m.logger.Warn("sign-in: failed to persist token, session will not survive restart: %v", err)
	}

	m.transition(StateAuthenticated, Session{Token: token, User: user})
	return sessiongate.Success(token, user)
}

// SignUp registers a new account. When the provider issues a token the
// machine signs straight in; when it withholds one (confirmation flow) the
// result is pending and the state stays unauthenticated.
func (m *StateMachine) SignUp(ctx context.Context, email, password string) sessiongate.AuthResult {
	if !m.op.TryLock() {
		return sessiongate.Failure(sessiongate.ErrBusy)
	}
	defer m.op.Unlock()

	token, user, err := m.provider.Register(ctx, email, password)
	if err != nil {
		return sessiongate.Failure(err)
	}

	if token == "" {
		m.transition(StateUnauthenticated, Session{})
		return sessiongate.PendingResult(user)
	}

	if err := m.store.Set(token); err != nil {
		m.logger.Warn("sign-up: failed to persist token, session will not survive restart: %v", err)
	}

	m.transition(StateAuthenticated, Session{Token: token, User: user})
	return sessiongate.Success(token, user)
}

// SignOut ends the session unconditionally: provider revocation and slot
// clearing are best-effort, the in-memory state always settles into
// unauthenticated. Signing out while signed out is a no-op success.
func (m *StateMachine) SignOut(ctx context.Context) sessiongate.AuthResult {
	if !m.op.TryLock() {
		return sessiongate.Failure(sessiongate.ErrBusy)
	}
	defer m.op.Unlock()

	m.mu.RLock()
	token := m.session.Token
	m.mu.RUnlock()

	if token != "" {
		if err := m.provider.Logout(ctx, token); err != nil {
			m.logger.Warn("sign-out: provider revocation failed: %v", err)
		}
	}

	if err := m.store.Delete(); err != nil {
		m.logger.Warn("sign-out: failed to clear stored token: %v", err)
	}

	m.transition(StateUnauthenticated, Session{})
	return sessiongate.AuthResult{}
}

// transition publishes the new state and notifies listeners outside the lock.
func (m *StateMachine) transition(state State, session Session) {
	m.mu.Lock()
	m.state = state
	m.session = session
	listeners := make([]Listener, len(m.listeners))
	copy(listeners, m.listeners)
	m.mu.Unlock()

	for _, fn := range listeners {
		fn(state, session)
	}
}
