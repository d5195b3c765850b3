package profilesync

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	profilestore "github.com/dalemusser/juntos/internal/app/store/profiles"
	"github.com/dalemusser/juntos/internal/app/system/docstore"
	"github.com/dalemusser/juntos/internal/app/system/docstore/memdocs"
	"github.com/dalemusser/juntos/internal/app/system/localcache"
	"github.com/dalemusser/juntos/internal/domain/models"
	"github.com/dalemusser/juntos/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubProvider struct {
	mu         sync.Mutex
	current    *models.Identity
	signOutErr error
	listeners  []func(*models.Identity)
}

func (p *stubProvider) CreateAccount(context.Context, string, string) (*models.Identity, error) {
	return nil, errors.New("not implemented")
}

func (p *stubProvider) SignIn(context.Context, string, string) (*models.Identity, error) {
	return nil, errors.New("not implemented")
}

func (p *stubProvider) SignOut(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.current = nil
	return p.signOutErr
}

func (p *stubProvider) Current() *models.Identity {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current
}

func (p *stubProvider) OnIdentityChange(fn func(*models.Identity)) func() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.listeners = append(p.listeners, fn)
	return func() {}
}

func (p *stubProvider) UpdateDisplayName(context.Context, string) error { return nil }

func (p *stubProvider) DeleteAccount(ctx context.Context) error { return p.SignOut(ctx) }

func (p *stubProvider) fire(id *models.Identity) {
	p.mu.Lock()
	p.current = id
	ls := append([]func(*models.Identity){}, p.listeners...)
	p.mu.Unlock()
	for _, fn := range ls {
		fn(id)
	}
}

type harness struct {
	docs     *memdocs.Store
	cache    *localcache.Memory
	provider *stubProvider
	mgr      *Manager
	fx       *testutil.Fixtures
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	docs := memdocs.New()
	return newHarnessWith(t, docs, docs)
}

func newHarnessWith(t *testing.T, mem *memdocs.Store, svc docstore.Service) *harness {
	t.Helper()
	h := &harness{
		docs:     mem,
		cache:    localcache.NewMemory(),
		provider: &stubProvider{},
		fx:       testutil.NewFixtures(t, mem),
	}
	h.mgr = New(profilestore.New(svc), h.provider, h.cache,
		Config{FetchAttempts: 3, FetchDelay: time.Millisecond}, zap.NewNop())
	t.Cleanup(h.mgr.Close)
	return h
}

func ident(id string) *models.Identity {
	return &models.Identity{ID: id, Email: id + "@test.com"}
}

func TestEstablishSession_LoadsProfileAndMirrors(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.fx.CreateProfile(ctx, "u1", "Ana Ruiz", "c1", "c2")

	h.mgr.EstablishSession(ctx, ident("u1"))

	require.NotNil(t, h.mgr.Identity())
	p := h.mgr.Profile()
	require.NotNil(t, p)
	assert.Equal(t, "c1", p.CurrentCommunityID)
	assert.Equal(t, []string{"c1", "c2"}, h.mgr.CommunityIDs())

	cached, ok := h.mgr.CachedProfile(ctx)
	require.True(t, ok)
	assert.Equal(t, "u1", cached.UserID)
	assert.Equal(t, 1, h.docs.Listeners(docstore.Profiles, "u1"))
}

func TestEstablishSession_ProfileMissingKeepsUser(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	h.mgr.EstablishSession(ctx, ident("u1"))

	require.NotNil(t, h.mgr.Identity())
	assert.Nil(t, h.mgr.Profile())
	assert.False(t, h.cache.Has(localcache.ProfileKey))
	assert.Equal(t, 1, h.docs.Listeners(docstore.Profiles, "u1"))
}

func TestEstablishSession_LateProfileArrivesBySubscription(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	h.mgr.EstablishSession(ctx, ident("u1"))
	require.Nil(t, h.mgr.Profile())

	h.fx.CreateProfile(ctx, "u1", "Ana Ruiz", "c1")

	p := h.mgr.Profile()
	require.NotNil(t, p)
	assert.Equal(t, "c1", p.CurrentCommunityID)
	assert.True(t, h.cache.Has(localcache.ProfileKey))
}

func TestEstablishSession_RemoteFailureClearsSession(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.fx.CreateProfile(ctx, "u1", "Ana Ruiz", "c1")
	h.docs.FailNext("get", errors.New("unavailable"))

	h.mgr.EstablishSession(ctx, ident("u1"))

	assert.Nil(t, h.mgr.Identity())
	assert.Nil(t, h.mgr.Profile())
	assert.False(t, h.cache.Has(localcache.ProfileKey))
	assert.Equal(t, 0, h.docs.Listeners(docstore.Profiles, "u1"))
}

func TestEstablishSession_SubscribeFailureClearsSession(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.docs.FailNext("subscribe", errors.New("unavailable"))

	h.mgr.EstablishSession(ctx, ident("u1"))

	assert.Nil(t, h.mgr.Identity())
	assert.Nil(t, h.mgr.Profile())
}

func TestEstablishSession_NilIdentityClears(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.fx.CreateProfile(ctx, "u1", "Ana Ruiz", "c1")
	h.mgr.EstablishSession(ctx, ident("u1"))
	require.NotNil(t, h.mgr.Profile())

	h.mgr.EstablishSession(ctx, nil)

	assert.Nil(t, h.mgr.Identity())
	assert.Nil(t, h.mgr.Profile())
	assert.False(t, h.cache.Has(localcache.ProfileKey))
	assert.Equal(t, 0, h.docs.Listeners(docstore.Profiles, "u1"))
}

func TestSubscription_RemoteChangesOverwriteLocal(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.fx.CreateProfile(ctx, "u1", "Ana Ruiz", "c1")
	h.mgr.EstablishSession(ctx, ident("u1"))

	require.NoError(t, h.docs.Update(ctx, docstore.Profiles, "u1", docstore.Document{
		"community_ids":        docstore.ArrayUnion("c9"),
		"current_community_id": "c9",
	}))

	assert.Equal(t, "c9", h.mgr.Profile().CurrentCommunityID)
	cached, ok := h.mgr.CachedProfile(ctx)
	require.True(t, ok)
	assert.Equal(t, "c9", cached.CurrentCommunityID)

	require.NoError(t, h.docs.Delete(ctx, docstore.Profiles, "u1"))
	assert.Nil(t, h.mgr.Profile())
	assert.NotNil(t, h.mgr.Identity())
	assert.False(t, h.cache.Has(localcache.ProfileKey))
}

// gatedDocs blocks profile reads for one user until released.
type gatedDocs struct {
	docstore.Service
	userID  string
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (g *gatedDocs) Get(ctx context.Context, coll, id string) (docstore.Snapshot, error) {
	if coll == docstore.Profiles && id == g.userID {
		g.once.Do(func() { close(g.entered) })
		<-g.release
	}
	return g.Service.Get(ctx, coll, id)
}

func TestEstablishSession_StaleResultDiscarded(t *testing.T) {
	ctx := context.Background()
	mem := memdocs.New()
	gate := &gatedDocs{Service: mem, userID: "slow", entered: make(chan struct{}), release: make(chan struct{})}
	h := newHarnessWith(t, mem, gate)
	h.fx.CreateProfile(ctx, "slow", "Slow User", "c1")
	h.fx.CreateProfile(ctx, "fast", "Fast User", "c2")

	done := make(chan struct{})
	go func() {
		defer close(done)
		h.mgr.EstablishSession(ctx, ident("slow"))
	}()
	<-gate.entered

	h.mgr.EstablishSession(ctx, ident("fast"))
	close(gate.release)
	<-done

	require.NotNil(t, h.mgr.Identity())
	assert.Equal(t, "fast", h.mgr.Identity().ID)
	assert.Equal(t, "c2", h.mgr.Profile().CurrentCommunityID)
	assert.Equal(t, 0, mem.Listeners(docstore.Profiles, "slow"))
	assert.Equal(t, 1, mem.Listeners(docstore.Profiles, "fast"))
}

func TestEndSession_ClearsEverything(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.fx.CreateProfile(ctx, "u1", "Ana Ruiz", "c1")
	h.provider.current = ident("u1")
	h.mgr.EstablishSession(ctx, ident("u1"))

	require.NoError(t, h.mgr.EndSession(ctx))

	assert.Nil(t, h.mgr.Identity())
	assert.Nil(t, h.mgr.Profile())
	assert.Nil(t, h.provider.Current())
	assert.False(t, h.cache.Has(localcache.ProfileKey))
	assert.Equal(t, 0, h.docs.Listeners(docstore.Profiles, "u1"))
}

func TestEndSession_SignOutFailureStillClears(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.fx.CreateProfile(ctx, "u1", "Ana Ruiz", "c1")
	h.mgr.EstablishSession(ctx, ident("u1"))
	h.provider.signOutErr = errors.New("network down")

	err := h.mgr.EndSession(ctx)

	require.Error(t, err)
	assert.Nil(t, h.mgr.Identity())
	assert.Nil(t, h.mgr.Profile())
	assert.False(t, h.cache.Has(localcache.ProfileKey))
}

func TestRefreshSessionFromProvider(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	assert.False(t, h.mgr.RefreshSessionFromProvider(ctx), "signed out")

	h.fx.CreateProfile(ctx, "u1", "Ana Ruiz")
	h.provider.current = ident("u1")
	assert.True(t, h.mgr.RefreshSessionFromProvider(ctx), "no active community")

	h.fx.CreateProfile(ctx, "u2", "Ben Ito", "c1")
	h.provider.current = ident("u2")
	assert.False(t, h.mgr.RefreshSessionFromProvider(ctx))
	assert.Equal(t, "u2", h.mgr.Profile().UserID)
}

func TestTrackIdentityChanges(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.fx.CreateProfile(ctx, "u1", "Ana Ruiz", "c1")
	h.mgr.TrackIdentityChanges()

	h.provider.fire(ident("u1"))
	assert.Eventually(t, func() bool {
		p := h.mgr.Profile()
		return p != nil && p.UserID == "u1"
	}, time.Second, 5*time.Millisecond)

	h.provider.fire(nil)
	assert.Eventually(t, func() bool {
		return h.mgr.Identity() == nil && h.mgr.Profile() == nil
	}, time.Second, 5*time.Millisecond)
}

func TestApplyProfile_IgnoresOtherUsers(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.fx.CreateProfile(ctx, "u1", "Ana Ruiz", "c1")
	h.mgr.EstablishSession(ctx, ident("u1"))

	h.mgr.ApplyProfile(ctx, &models.Profile{UserID: "intruder", Role: models.RoleMember})
	assert.Equal(t, "u1", h.mgr.Profile().UserID)

	h.mgr.ApplyProfile(ctx, &models.Profile{
		UserID: "u1", Role: models.RoleMember,
		CommunityIDs: []string{"c1", "c2"}, CurrentCommunityID: "c2",
	})
	assert.Equal(t, "c2", h.mgr.Profile().CurrentCommunityID)
}

func TestSubscribeProfileChanges_ReplacesPrevious(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.fx.CreateProfile(ctx, "u1", "Ana Ruiz", "c1")
	h.mgr.EstablishSession(ctx, ident("u1"))

	require.NoError(t, h.mgr.SubscribeProfileChanges(ctx, "u1"))
	require.NoError(t, h.mgr.SubscribeProfileChanges(ctx, "u1"))

	assert.Equal(t, 1, h.docs.Listeners(docstore.Profiles, "u1"))
}

func TestSubscribe_SupersededCallerKeepsLiveSubscription(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.fx.CreateProfile(ctx, "u1", "Ana Ruiz", "c1")

	stale := h.mgr.gens.Begin(sessionKey)
	h.mgr.EstablishSession(ctx, ident("u1"))
	require.Equal(t, 1, h.docs.Listeners(docstore.Profiles, "u1"))

	err := h.mgr.subscribe(ctx, "u1", func() bool { return h.mgr.gens.Current(sessionKey, stale) })
	require.NoError(t, err)
	assert.Equal(t, 1, h.docs.Listeners(docstore.Profiles, "u1"))

	require.NoError(t, h.docs.Update(ctx, docstore.Profiles, "u1", docstore.Document{"full_name": "Ana Lopez"}))
	assert.Equal(t, "Ana Lopez", h.mgr.Profile().FullName)
}

// gatedSubscribe blocks profile subscriptions for one user until released.
type gatedSubscribe struct {
	docstore.Service
	userID  string
	entered chan struct{}
	release chan struct{}
}

func (g *gatedSubscribe) Subscribe(ctx context.Context, coll, id string, fn docstore.SubscribeFunc) (docstore.Subscription, error) {
	if coll == docstore.Profiles && id == g.userID {
		close(g.entered)
		<-g.release
	}
	return g.Service.Subscribe(ctx, coll, id, fn)
}

func TestEstablishSession_NewUserDropsPreviousProfile(t *testing.T) {
	ctx := context.Background()
	mem := memdocs.New()
	gate := &gatedSubscribe{Service: mem, userID: "u2", entered: make(chan struct{}), release: make(chan struct{})}
	h := newHarnessWith(t, mem, gate)
	h.fx.CreateProfile(ctx, "u1", "Ana Ruiz", "c1")
	h.fx.CreateProfile(ctx, "u2", "Ben Soto", "c2")

	h.mgr.EstablishSession(ctx, ident("u1"))
	require.Equal(t, "u1", h.mgr.Profile().UserID)

	done := make(chan struct{})
	go func() {
		defer close(done)
		h.mgr.EstablishSession(ctx, ident("u2"))
	}()
	<-gate.entered

	assert.Equal(t, "u2", h.mgr.Identity().ID)
	assert.Nil(t, h.mgr.Profile())

	close(gate.release)
	<-done
	require.NotNil(t, h.mgr.Profile())
	assert.Equal(t, "u2", h.mgr.Profile().UserID)
}
