// Package clientsession keeps one set of session-scoped state objects per
// browser session: identity, profile manager, membership service and the
// content stores. Nothing here is a process-wide singleton; handlers look
// a Session up by id and work only with it.
package clientsession

import (
	"context"
	"sync/atomic"
	"time"

	communitystore "github.com/dalemusser/juntos/internal/app/store/communities"
	checkinstore "github.com/dalemusser/juntos/internal/app/store/checkins"
	commentstore "github.com/dalemusser/juntos/internal/app/store/comments"
	entrystore "github.com/dalemusser/juntos/internal/app/store/entries"
	gratitudestore "github.com/dalemusser/juntos/internal/app/store/gratitude"
	profilestore "github.com/dalemusser/juntos/internal/app/store/profiles"
	votestore "github.com/dalemusser/juntos/internal/app/store/votes"

	"github.com/dalemusser/juntos/internal/app/policy/membershippolicy"
	"github.com/dalemusser/juntos/internal/app/system/docstore"
	"github.com/dalemusser/juntos/internal/app/system/identity"
	"github.com/dalemusser/juntos/internal/app/system/localcache"
	"github.com/dalemusser/juntos/internal/app/system/profilesync"
	"github.com/dalemusser/juntos/internal/app/system/ratelimit"
	"github.com/dalemusser/juntos/internal/app/system/registration"
	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync"
	"go.uber.org/zap"
)

// Config is what every new Session is built with.
type Config struct {
	ProfileFetch profilesync.Config
	LatestLimit  int
	Location     *time.Location
	BcryptCost   int
}

// Session is the state of one signed-in (or signed-out) browser session.
type Session struct {
	ID           string
	Identity     *identity.Client
	Profiles     *profilestore.Store
	Communities  *communitystore.Store
	Manager      *profilesync.Manager
	Membership   *membershippolicy.Service
	Registration *registration.Service
	Entries      *entrystore.Store
	Comments     *commentstore.Store
	Votes        *votestore.Store
	Gratitude    *gratitudestore.Store
	CheckIns     *checkinstore.Store

	lastSeen atomic.Int64
}

// LastSeen is the time of the last Get or Touch.
func (s *Session) LastSeen() time.Time {
	return time.Unix(0, s.lastSeen.Load())
}

// Registry owns every live Session.
type Registry struct {
	docs    docstore.Service
	cache   localcache.Cache
	limiter *ratelimit.Limiter
	log     *zap.Logger
	cfg     Config
	now     func() time.Time

	sessions *xsync.MapOf[string, *Session]
}

// NewRegistry builds an empty registry. cache is shared; each session sees
// it under its own key prefix. limiter may be nil.
func NewRegistry(docs docstore.Service, cache localcache.Cache, limiter *ratelimit.Limiter, cfg Config, logger *zap.Logger) *Registry {
	return &Registry{
		docs:     docs,
		cache:    cache,
		limiter:  limiter,
		log:      logger,
		cfg:      cfg,
		now:      time.Now,
		sessions: xsync.NewMapOf[*Session](),
	}
}

// Create builds and registers a new signed-out Session.
func (r *Registry) Create() *Session {
	id := uuid.NewString()
	log := r.log.With(zap.String("session_id", id))

	opts := []identity.Option{}
	if r.limiter != nil {
		opts = append(opts, identity.WithLimiter(r.limiter))
	}
	if r.cfg.BcryptCost > 0 {
		opts = append(opts, identity.WithBcryptCost(r.cfg.BcryptCost))
	}
	ident := identity.NewClient(r.docs, log, opts...)
	profiles := profilestore.New(r.docs)
	communities := communitystore.New(r.docs)

	s := &Session{
		ID:           id,
		Identity:     ident,
		Profiles:     profiles,
		Communities:  communities,
		Manager:      profilesync.New(profiles, ident, localcache.Scoped(r.cache, id), r.cfg.ProfileFetch, log),
		Membership:   membershippolicy.New(communities, profiles, log),
		Registration: registration.New(ident, profiles, log),
		Entries:      entrystore.New(r.docs, log, r.cfg.LatestLimit),
		Comments:     commentstore.New(r.docs, profiles, log),
		Votes:        votestore.New(r.docs, log),
		Gratitude:    gratitudestore.New(r.docs, log, r.cfg.Location),
		CheckIns:     checkinstore.New(r.docs, log, r.cfg.Location),
	}
	s.lastSeen.Store(r.now().UnixNano())
	s.Manager.TrackIdentityChanges()

	r.sessions.Store(id, s)
	log.Debug("client session created")
	return s
}

// Get returns the session and marks it active.
func (r *Registry) Get(id string) (*Session, bool) {
	if id == "" {
		return nil, false
	}
	s, ok := r.sessions.Load(id)
	if ok {
		s.lastSeen.Store(r.now().UnixNano())
	}
	return s, ok
}

// Len is the number of live sessions.
func (r *Registry) Len() int {
	return r.sessions.Size()
}

// Close disposes and forgets one session.
func (r *Registry) Close(id string) {
	if s, ok := r.sessions.LoadAndDelete(id); ok {
		s.Manager.Close()
	}
}

// CloseIdle disposes every session not seen within idle and returns how
// many were closed.
func (r *Registry) CloseIdle(idle time.Duration) int {
	cutoff := r.now().Add(-idle).UnixNano()
	var stale []string
	r.sessions.Range(func(id string, s *Session) bool {
		if s.lastSeen.Load() < cutoff {
			stale = append(stale, id)
		}
		return true
	})
	for _, id := range stale {
		r.Close(id)
	}
	return len(stale)
}

// CloseAll disposes every session. Local cache mirrors are kept.
func (r *Registry) CloseAll(ctx context.Context) {
	var ids []string
	r.sessions.Range(func(id string, _ *Session) bool {
		ids = append(ids, id)
		return true
	})
	for _, id := range ids {
		if ctx.Err() != nil {
			return
		}
		r.Close(id)
	}
}
