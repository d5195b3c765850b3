// Package profilesync owns the signed-in identity and its profile for one
// client session and keeps the profile in step with the remote document.
//
// Rules:
//   - Establishing a session never fails: any error leaves user and
//     profile empty.
//   - The profile fetch is the only retried call (fixed attempts, fixed
//     delay), covering the window where a new account's profile document
//     has not been written yet.
//   - Only the newest establishment may write session state; slower,
//     older ones are discarded.
//   - Every remote profile change overwrites local state and the durable
//     cache mirror; a remote deletion clears both.
//   - No lock is held across a remote call.
package profilesync

import (
	"context"
	"errors"
	"sync"
	"time"

	profilestore "github.com/dalemusser/juntos/internal/app/store/profiles"
	"github.com/dalemusser/juntos/internal/app/system/apperr"
	"github.com/dalemusser/juntos/internal/app/system/docstore"
	"github.com/dalemusser/juntos/internal/app/system/generation"
	"github.com/dalemusser/juntos/internal/app/system/identity"
	"github.com/dalemusser/juntos/internal/app/system/localcache"
	"github.com/dalemusser/juntos/internal/app/system/timeouts"
	"github.com/dalemusser/juntos/internal/domain/models"
	"go.uber.org/zap"
)

const sessionKey = "session"

// Config tunes the initial profile fetch.
type Config struct {
	FetchAttempts int
	FetchDelay    time.Duration
}

// DefaultConfig matches the production defaults.
func DefaultConfig() Config {
	return Config{FetchAttempts: 3, FetchDelay: 500 * time.Millisecond}
}

// Manager is the session/profile state of one client session. It is safe
// for concurrent use.
type Manager struct {
	profiles *profilestore.Store
	provider identity.Provider
	cache    localcache.Cache
	log      *zap.Logger
	cfg      Config
	gens     generation.Counter

	// life bounds the profile subscription; cancelled by Close.
	life     context.Context
	stopLife context.CancelFunc

	mu           sync.RWMutex
	user         *models.Identity
	profile      *models.Profile
	sub          docstore.Subscription
	subSeq       uint64
	stopTracking func()
	closed       bool
}

// New builds a manager with an empty session.
func New(profiles *profilestore.Store, provider identity.Provider, cache localcache.Cache, cfg Config, logger *zap.Logger) *Manager {
	if cfg.FetchAttempts < 1 {
		cfg.FetchAttempts = 1
	}
	life, stop := context.WithCancel(context.Background())
	return &Manager{
		profiles: profiles,
		provider: provider,
		cache:    cache,
		log:      logger,
		cfg:      cfg,
		life:     life,
		stopLife: stop,
	}
}

// Identity returns a copy of the signed-in identity, or nil.
func (m *Manager) Identity() *models.Identity {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.user == nil {
		return nil
	}
	cp := *m.user
	return &cp
}

// Profile returns a copy of the current profile, or nil.
func (m *Manager) Profile() *models.Profile {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.profile.Clone()
}

// CommunityIDs returns the membership set of the current profile.
func (m *Manager) CommunityIDs() []string {
	if p := m.Profile(); p != nil {
		return p.CommunityIDs
	}
	return nil
}

// EstablishSession makes id the session's user and loads its profile.
// A nil id clears the session. It never returns an error: failures leave
// the session empty.
func (m *Manager) EstablishSession(ctx context.Context, id *models.Identity) {
	m.establish(ctx, id, m.gens.Begin(sessionKey))
}

// establish runs a session establishment tagged with gen.
func (m *Manager) establish(ctx context.Context, id *models.Identity, gen uint64) {
	isCurrent := func() bool { return m.gens.Current(sessionKey, gen) }

	if id == nil {
		m.clear(isCurrent)
		return
	}

	m.mu.Lock()
	if !isCurrent() || m.closed {
		m.mu.Unlock()
		return
	}
	if m.user == nil || m.user.ID != id.ID {
		m.profile = nil
	}
	u := *id
	m.user = &u
	m.mu.Unlock()

	if err := m.subscribe(ctx, id.ID, isCurrent); err != nil {
		m.log.Error("profile subscription failed", zap.String("user_id", id.ID), zap.Error(err))
		m.clear(isCurrent)
		return
	}
	if !isCurrent() {
		return
	}

	p, err := m.fetchProfileWithRetry(ctx, id.ID)
	if !isCurrent() {
		m.log.Debug("discarding superseded session establishment", zap.String("user_id", id.ID))
		return
	}
	switch {
	case errors.Is(err, docstore.ErrNotFound):
		m.log.Warn("profile not found after retries; continuing without profile",
			zap.String("user_id", id.ID),
			zap.Int("attempts", m.cfg.FetchAttempts))
		m.mu.Lock()
		if isCurrent() {
			m.profile = nil
		}
		m.mu.Unlock()
	case err != nil:
		m.log.Error("profile fetch failed; clearing session", zap.String("user_id", id.ID), zap.Error(err))
		m.clear(isCurrent)
	default:
		m.applyIf(ctx, p, isCurrent)
	}
}

// RefreshSessionFromProvider re-establishes the session for whatever
// identity the provider reports. It returns true when a signed-in user has
// no active community and should be sent to community setup.
func (m *Manager) RefreshSessionFromProvider(ctx context.Context) bool {
	id := m.provider.Current()
	m.EstablishSession(ctx, id)
	if id == nil {
		return false
	}
	p := m.Profile()
	if p == nil || !p.HasActiveCommunity() {
		m.log.Warn("signed-in user has no active community", zap.String("user_id", id.ID))
		return true
	}
	return false
}

// SubscribeProfileChanges (re)subscribes to the user's profile document.
// The previous subscription, if any, is disposed first.
func (m *Manager) SubscribeProfileChanges(ctx context.Context, userID string) error {
	return m.subscribe(ctx, userID, func() bool { return true })
}

// EndSession signs out at the provider and clears local state and the
// cache mirror regardless of the sign-out result.
func (m *Manager) EndSession(ctx context.Context) error {
	m.gens.Invalidate(sessionKey)
	signOutErr := m.provider.SignOut(ctx)

	m.mu.Lock()
	sub := m.sub
	m.sub = nil
	m.subSeq++
	m.user = nil
	m.profile = nil
	m.mu.Unlock()

	if sub != nil {
		sub.Unsubscribe()
	}
	m.removeMirror(ctx)

	if signOutErr != nil {
		m.log.Error("sign-out failed", zap.Error(signOutErr))
		return apperr.Remote("Unable to sign out. Please try again.", signOutErr)
	}
	return nil
}

// ApplyProfile replaces the local profile after a successful remote
// mutation and mirrors it into the durable cache. Profiles for a user
// other than the signed-in one are ignored.
func (m *Manager) ApplyProfile(ctx context.Context, p *models.Profile) {
	m.applyIf(ctx, p, func() bool { return true })
}

// CachedProfile reads the durable cache mirror. It is a cold-start hint,
// not the source of truth.
func (m *Manager) CachedProfile(ctx context.Context) (*models.Profile, bool) {
	ctx, cancel := context.WithTimeout(ctx, timeouts.Short())
	defer cancel()

	var p models.Profile
	ok, err := m.cache.Get(ctx, localcache.ProfileKey, &p)
	if err != nil {
		m.log.Warn("profile cache read failed", zap.Error(err))
		return nil, false
	}
	if !ok {
		return nil, false
	}
	return &p, true
}

// TrackIdentityChanges re-establishes the session whenever the provider
// reports a sign-in or sign-out. Each change is handled on its own
// goroutine, but its generation is taken when the change is reported, so
// an EstablishSession call made after the provider returns always wins.
func (m *Manager) TrackIdentityChanges() {
	unsubscribe := m.provider.OnIdentityChange(func(id *models.Identity) {
		gen := m.gens.Begin(sessionKey)
		go func() {
			ctx, cancel := timeouts.WithTimeout(m.life, timeouts.Long(), m.log, "establish session")
			defer cancel()
			m.establish(ctx, id, gen)
		}()
	})

	m.mu.Lock()
	prev := m.stopTracking
	m.stopTracking = unsubscribe
	m.mu.Unlock()
	if prev != nil {
		prev()
	}
}

// Close disposes the profile subscription and the identity-change
// registration. Local state is left as is.
func (m *Manager) Close() {
	m.gens.Invalidate(sessionKey)

	m.mu.Lock()
	m.closed = true
	sub, stop := m.sub, m.stopTracking
	m.sub, m.stopTracking = nil, nil
	m.subSeq++
	m.mu.Unlock()

	if stop != nil {
		stop()
	}
	if sub != nil {
		sub.Unsubscribe()
	}
	m.stopLife()
}

/*─────────────────────────────────────────────────────────────────────────────*
| internals                                                                   |
*─────────────────────────────────────────────────────────────────────────────*/

func (m *Manager) fetchProfileWithRetry(ctx context.Context, userID string) (*models.Profile, error) {
	var lastErr error
	for attempt := 1; attempt <= m.cfg.FetchAttempts; attempt++ {
		fctx, cancel := context.WithTimeout(ctx, timeouts.Short())
		p, err := m.profiles.Get(fctx, userID)
		cancel()
		if err == nil {
			return p, nil
		}
		if !errors.Is(err, docstore.ErrNotFound) {
			return nil, err
		}
		lastErr = err
		if attempt == m.cfg.FetchAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(m.cfg.FetchDelay):
		}
	}
	return nil, lastErr
}

// subscribe replaces the profile subscription. valid() is checked before
// the live subscription is disposed and again once the remote call
// returns; a caller that is no longer valid leaves the live one in place.
func (m *Manager) subscribe(ctx context.Context, userID string, valid func() bool) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return errors.New("profile manager closed")
	}
	if !valid() {
		m.mu.Unlock()
		return nil
	}
	old := m.sub
	m.sub = nil
	m.subSeq++
	seq := m.subSeq
	m.mu.Unlock()

	if old != nil {
		old.Unsubscribe()
	}

	sub, err := m.profiles.Subscribe(m.life, userID, func(snap docstore.Snapshot) {
		m.onProfileSnapshot(seq, snap)
	})
	if err != nil {
		return err
	}

	m.mu.Lock()
	if m.subSeq != seq || m.closed || !valid() {
		m.mu.Unlock()
		sub.Unsubscribe()
		return nil
	}
	m.sub = sub
	m.mu.Unlock()
	return nil
}

func (m *Manager) onProfileSnapshot(seq uint64, snap docstore.Snapshot) {
	ctx, cancel := context.WithTimeout(m.life, timeouts.Short())
	defer cancel()

	if !snap.Exists {
		m.mu.Lock()
		if m.subSeq != seq {
			m.mu.Unlock()
			return
		}
		m.profile = nil
		m.mu.Unlock()
		m.removeMirror(ctx)
		return
	}

	p, err := profilestore.Decode(snap)
	if err != nil {
		m.log.Error("profile update rejected", zap.String("user_id", snap.ID), zap.Error(err))
		return
	}
	m.applyIf(ctx, p, func() bool {
		return m.subSeq == seq
	})
}

// applyIf stores p as the current profile when cond holds (evaluated under
// the lock) and p belongs to the signed-in user, then mirrors it.
func (m *Manager) applyIf(ctx context.Context, p *models.Profile, cond func() bool) {
	if p == nil {
		return
	}
	if err := p.CheckInvariant(); err != nil {
		m.log.DPanic("profile invariant violated",
			zap.String("user_id", p.UserID),
			zap.String("current_community_id", p.CurrentCommunityID),
			zap.Strings("community_ids", p.CommunityIDs))
	}

	m.mu.Lock()
	if !cond() || m.user == nil || m.user.ID != p.UserID {
		m.mu.Unlock()
		return
	}
	m.profile = p.Clone()
	m.mu.Unlock()

	m.writeMirror(ctx, p)
}

func (m *Manager) clear(cond func() bool) {
	m.mu.Lock()
	if !cond() {
		m.mu.Unlock()
		return
	}
	sub := m.sub
	m.sub = nil
	m.subSeq++
	m.user = nil
	m.profile = nil
	m.mu.Unlock()

	if sub != nil {
		sub.Unsubscribe()
	}
	ctx, cancel := context.WithTimeout(m.life, timeouts.Short())
	defer cancel()
	m.removeMirror(ctx)
}

func (m *Manager) writeMirror(ctx context.Context, p *models.Profile) {
	if err := m.cache.Set(ctx, localcache.ProfileKey, p); err != nil {
		m.log.Warn("profile cache write failed", zap.String("user_id", p.UserID), zap.Error(err))
	}
}

func (m *Manager) removeMirror(ctx context.Context) {
	if err := m.cache.Remove(ctx, localcache.ProfileKey); err != nil {
		m.log.Warn("profile cache remove failed", zap.Error(err))
	}
}
