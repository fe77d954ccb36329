// Package session owns the process-wide signed-in identity. Every cache reads
// the current user from the Manager instead of tracking its own copy.
package session

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"cardfolio-api/internal/logger"
	"cardfolio-api/internal/model"
	"cardfolio-api/internal/stream"
)

// State is one sign-in state change.
type State struct {
	SignedIn bool   `json:"signed_in"`
	UserID   string `json:"user_id,omitempty"`
}

// SignOutHook runs synchronously during SignOut, before the signed-out state
// is published, with the id of the user being signed out.
type SignOutHook func(userID string)

// Manager holds the single current session.
type Manager struct {
	mu       sync.Mutex
	identity *model.Identity
	hooks    map[uint64]SignOutHook
	nextHook uint64
	states   *stream.Subject[State]
	log      *zap.Logger
}

// NewManager creates a signed-out manager.
func NewManager(log *zap.Logger) *Manager {
	return &Manager{
		hooks:  make(map[uint64]SignOutHook),
		states: stream.New(State{}, stream.Comparable[State]()),
		log:    logger.Named(log, "session"),
	}
}

// CurrentUserID returns the signed-in user id, or "".
func (m *Manager) CurrentUserID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.identity == nil {
		return ""
	}
	return m.identity.UserID
}

// Identity returns the signed-in identity.
func (m *Manager) Identity() (model.Identity, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.identity == nil {
		return model.Identity{}, false
	}
	return *m.identity, true
}

// States streams sign-in state changes, replaying the current state.
func (m *Manager) States() *stream.Subject[State] {
	return m.states
}

// OnSignOut registers hook and returns a function that removes it.
func (m *Manager) OnSignOut(hook SignOutHook) (remove func()) {
	m.mu.Lock()
	id := m.nextHook
	m.nextHook++
	m.hooks[id] = hook
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		delete(m.hooks, id)
		m.mu.Unlock()
	}
}

// SignIn makes id the current session. Signing in as another user while a
// session exists signs the previous user out first.
func (m *Manager) SignIn(id model.Identity) {
	m.mu.Lock()
	prev := m.identity
	m.mu.Unlock()

	if prev != nil {
		if prev.UserID == id.UserID {
			m.mu.Lock()
			m.identity = &id
			m.mu.Unlock()
			return
		}
		m.SignOut(context.Background())
	}

	m.mu.Lock()
	m.identity = &id
	m.mu.Unlock()

	m.log.Info("signed in", zap.String("user_id", id.UserID))
	m.states.Publish(State{SignedIn: true, UserID: id.UserID})
}

// SignOut ends the current session. Sign-out hooks run before the state
// change is published. Signing out without a session does nothing.
func (m *Manager) SignOut(ctx context.Context) {
	m.mu.Lock()
	prev := m.identity
	m.identity = nil
	hooks := make([]SignOutHook, 0, len(m.hooks))
	for _, h := range m.hooks {
		hooks = append(hooks, h)
	}
	m.mu.Unlock()

	if prev == nil {
		return
	}

	for _, h := range hooks {
		h(prev.UserID)
	}

	m.log.Info("signed out", zap.String("user_id", prev.UserID))
	m.states.Publish(State{})
}

// Close ends every state subscription.
func (m *Manager) Close() {
	m.states.Close()
}
