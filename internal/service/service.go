// Package service holds the user-scoped caches the UI talks to and the jobs
// built on top of them.
package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"cardfolio-api/internal/cache"
	"cardfolio-api/internal/metrics"
	"cardfolio-api/internal/model"
	"cardfolio-api/internal/repository"
	"cardfolio-api/internal/session"
	"cardfolio-api/internal/stream"
	"cardfolio-api/internal/validate"
	"cardfolio-api/pkg/apierror"
)

// Session is the identity provider the caches follow.
type Session interface {
	CurrentUserID() string
	Identity() (model.Identity, bool)
	States() *stream.Subject[session.State]
	OnSignOut(hook session.SignOutHook) (remove func())
}

// Deps are the collaborators shared by every cache.
type Deps struct {
	Store     repository.DocumentStore
	Session   Session
	Validator *validate.Validator
	Logger    *zap.Logger
	Metrics   *metrics.Collector

	// FetchTimeout bounds a single cache fetch. Zero means no bound.
	FetchTimeout time.Duration

	// Now defaults to time.Now.
	Now func() time.Time
}

func (d Deps) withDefaults() Deps {
	if d.Validator == nil {
		d.Validator = validate.New()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	return d
}

// currentUser returns the signed-in user id or an authentication error.
func currentUser(s Session) (string, error) {
	uid := s.CurrentUserID()
	if uid == "" {
		return "", apierror.NotSignedIn()
	}
	return uid, nil
}

// activeOwner accepts only the signed-in user.
func activeOwner(s Session) func(string) bool {
	return func(owner string) bool {
		return owner != "" && s.CurrentUserID() == owner
	}
}

// binding ties a store to the session: sign-in loads, sign-out clears.
type binding struct {
	mu     sync.Mutex
	cancel context.CancelFunc
	remove func()
	done   chan struct{}
}

// start subscribes to the session. load runs for every signed-in state whose
// user is still the current one, so a queued event for a previous user is
// dropped. The sign-out hook clears the store before the signed-out state is
// published.
func (b *binding) start(ctx context.Context, sess Session, clear func(), load func(ctx context.Context, userID string)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	b.cancel = cancel
	b.remove = sess.OnSignOut(func(string) { clear() })
	b.done = make(chan struct{})

	states := sess.States().Subscribe(ctx)
	go func() {
		defer close(b.done)
		for st := range states {
			if !st.SignedIn {
				clear()
				continue
			}
			if st.UserID != sess.CurrentUserID() {
				continue
			}
			load(ctx, st.UserID)
		}
	}()
}

// stop ends the subscription and waits for the watcher to exit.
func (b *binding) stop() {
	b.mu.Lock()
	cancel, remove, done := b.cancel, b.remove, b.done
	b.cancel, b.remove, b.done = nil, nil, nil
	b.mu.Unlock()

	if cancel == nil {
		return
	}
	remove()
	cancel()
	<-done
}

// ensureLoaded makes sure store holds uid's data before a mutation reads it.
// Nothing is loaded once uid is no longer signed in.
func ensureLoaded[T any](ctx context.Context, sess Session, store *cache.Store[T], uid string) {
	if store.Owner() == uid && store.HasCachedData() {
		return
	}
	if sess.CurrentUserID() != uid {
		return
	}
	store.GetData(ctx, uid)
}

func isNotFound(err error) bool {
	return errors.Is(err, repository.ErrNotFound)
}
