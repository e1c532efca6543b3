package lifecycle

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/freewebtopdf/redirector/internal/cache"
	"github.com/freewebtopdf/redirector/internal/domain"
	"github.com/freewebtopdf/redirector/internal/resolver"
	"github.com/freewebtopdf/redirector/internal/rules"
	"github.com/freewebtopdf/redirector/internal/storage"
)

type recorder struct {
	mu   sync.Mutex
	hits []domain.HitRecord
}

func (r *recorder) Record(_ context.Context, hit domain.HitRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hits = append(r.hits, hit)
}

type fixture struct {
	store    *storage.Store
	registry *storage.URIRegistry
	service  *rules.Service
	manager  *Manager
	recorder *recorder
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()
	ctx := context.Background()

	db, err := storage.Open(ctx, storage.Options{
		Driver: storage.DriverSQLite,
		DSN:    filepath.Join(t.TempDir(), "lifecycle.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = storage.Close(db) })

	store, err := storage.NewStore(db)
	require.NoError(t, err)
	registry, err := storage.NewURIRegistry(db)
	require.NoError(t, err)

	service := rules.NewService(store, cache.NewLRUCache(100, time.Minute), domain.NewValidator())
	rec := &recorder{}

	return &fixture{
		store:    store,
		registry: registry,
		service:  service,
		manager:  NewManager(registry, registry, store, service, rec, opts),
		recorder: rec,
	}
}

// save runs one host save cycle moving content to uri
func (f *fixture) save(t *testing.T, contentID, siteID uint64, uri string) (Result, error) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, f.manager.BeforeContentSave(ctx, contentID, siteID))
	return f.manager.AfterContentSave(ctx, contentID, siteID, uri)
}

func (f *fixture) autoRules(t *testing.T, contentID, siteID uint64) []domain.RedirectRule {
	t.Helper()
	found, err := f.store.FindByOrigin(context.Background(), contentID, siteID)
	require.NoError(t, err)
	return found
}

func TestManager_FirstSaveCreatesNothing(t *testing.T) {
	f := newFixture(t, Options{Enabled: true})

	result, err := f.save(t, 1, 0, "blog/first")
	require.NoError(t, err)
	assert.Equal(t, ActionNone, result.Action)

	uri, err := f.registry.PersistedURI(context.Background(), 1, 0)
	require.NoError(t, err)
	assert.Equal(t, "blog/first", uri)
}

func TestManager_ForwardMoveCreatesRule(t *testing.T) {
	f := newFixture(t, Options{Enabled: true})
	_, err := f.save(t, 1, 0, "blog/a")
	require.NoError(t, err)

	result, err := f.save(t, 1, 0, "blog/b")
	require.NoError(t, err)
	assert.Equal(t, ActionCreated, result.Action)
	require.NotNil(t, result.Rule)

	rule := result.Rule
	assert.Equal(t, "/blog/a", rule.SourceNormalized)
	assert.Equal(t, "/blog/b", rule.Destination)
	assert.Equal(t, domain.MatchExact, rule.MatchStrategy)
	assert.Equal(t, 301, rule.StatusCode)
	assert.Equal(t, domain.CreationAutoURIChange, rule.CreationType)
	assert.Equal(t, uint64(1), rule.OriginContentID)
	assert.True(t, rule.Enabled)
	assert.Zero(t, rule.Priority)

	require.Len(t, f.recorder.hits, 1)
	assert.Equal(t, SourceURIChange, f.recorder.hits[0].Source)
	assert.Zero(t, f.manager.Pending())
}

func TestManager_HomeURI(t *testing.T) {
	f := newFixture(t, Options{Enabled: true})
	_, err := f.save(t, 5, 0, "landing")
	require.NoError(t, err)

	result, err := f.save(t, 5, 0, "__home__")
	require.NoError(t, err)
	require.Equal(t, ActionCreated, result.Action)
	assert.Equal(t, "/landing", result.Rule.SourceNormalized)
	assert.Equal(t, "/", result.Rule.Destination)
}

func TestManager_UnchangedURIIsNoop(t *testing.T) {
	f := newFixture(t, Options{Enabled: true})
	_, err := f.save(t, 1, 0, "blog/a")
	require.NoError(t, err)

	result, err := f.save(t, 1, 0, "Blog/A")
	require.NoError(t, err)
	assert.Equal(t, ActionNone, result.Action)
	assert.Empty(t, f.autoRules(t, 1, 0))
}

func TestManager_EmptyNewURIIsNoop(t *testing.T) {
	f := newFixture(t, Options{Enabled: true})
	_, err := f.save(t, 1, 0, "blog/a")
	require.NoError(t, err)

	result, err := f.save(t, 1, 0, "")
	require.NoError(t, err)
	assert.Equal(t, ActionNone, result.Action)

	uri, _ := f.registry.PersistedURI(context.Background(), 1, 0)
	assert.Equal(t, "blog/a", uri)
}

func TestManager_ImmediateUndo(t *testing.T) {
	f := newFixture(t, Options{Enabled: true, UndoWindow: time.Hour})
	_, err := f.save(t, 1, 0, "a")
	require.NoError(t, err)
	moved, err := f.save(t, 1, 0, "b")
	require.NoError(t, err)
	require.Equal(t, ActionCreated, moved.Action)

	result, err := f.save(t, 1, 0, "a")
	require.NoError(t, err)
	assert.Equal(t, ActionUndo, result.Action)
	assert.Equal(t, []uint64{moved.Rule.ID}, result.DeletedRuleIDs)
	assert.Empty(t, f.autoRules(t, 1, 0), "A to B to A leaves no rules")
}

func TestManager_UndoOutsideWindowCollapses(t *testing.T) {
	f := newFixture(t, Options{Enabled: true, UndoWindow: time.Minute})
	_, err := f.save(t, 1, 0, "a")
	require.NoError(t, err)
	_, err = f.save(t, 1, 0, "b")
	require.NoError(t, err)

	f.manager.now = func() time.Time { return time.Now().Add(2 * time.Hour) }

	result, err := f.save(t, 1, 0, "a")
	require.NoError(t, err)
	assert.True(t, result.Collapsed)
	assert.Equal(t, ActionCreated, result.Action)

	remaining := f.autoRules(t, 1, 0)
	require.Len(t, remaining, 1)
	assert.Equal(t, "/b", remaining[0].SourceNormalized)
	assert.Equal(t, "/a", remaining[0].Destination)
}

func TestManager_BackwardsInChainCollapses(t *testing.T) {
	f := newFixture(t, Options{Enabled: true})
	for _, uri := range []string{"a", "b", "c"} {
		_, err := f.save(t, 1, 0, uri)
		require.NoError(t, err)
	}
	require.Len(t, f.autoRules(t, 1, 0), 2, "a->b and b->c")

	result, err := f.save(t, 1, 0, "a")
	require.NoError(t, err)
	assert.True(t, result.Collapsed)
	assert.Len(t, result.DeletedRuleIDs, 2)
	assert.Equal(t, ActionCreated, result.Action)

	remaining := f.autoRules(t, 1, 0)
	require.Len(t, remaining, 1)
	assert.Equal(t, "/c", remaining[0].SourceNormalized)
	assert.Equal(t, "/a", remaining[0].Destination)
}

func TestManager_ChainResolvesThroughMoves(t *testing.T) {
	f := newFixture(t, Options{Enabled: true})
	for _, uri := range []string{"a", "b", "c"} {
		_, err := f.save(t, 1, 0, uri)
		require.NoError(t, err)
	}

	r := resolver.New(f.store, cache.NewNoopCache(), nil, resolver.Options{})
	result, ok := r.Resolve(context.Background(), "", "/a", 0)
	require.True(t, ok)
	assert.Equal(t, "/c", result.Destination)
}

func TestManager_LoopBlockedKeepsSave(t *testing.T) {
	f := newFixture(t, Options{Enabled: true})
	ctx := context.Background()

	// a manual rule already sends /b back to /a
	_, err := f.service.Create(ctx, &domain.RedirectRule{
		SourcePattern: "/b",
		SourceScope:   domain.ScopePathOnly,
		MatchStrategy: domain.MatchExact,
		Destination:   "/a",
		StatusCode:    301,
		Enabled:       true,
	})
	require.NoError(t, err)

	_, err = f.save(t, 1, 0, "a")
	require.NoError(t, err)

	result, err := f.save(t, 1, 0, "b")
	require.Error(t, err)
	assert.True(t, domain.IsLoop(err))
	assert.Equal(t, ActionLoopBlocked, result.Action)
	assert.Empty(t, f.autoRules(t, 1, 0))

	uri, _ := f.registry.PersistedURI(ctx, 1, 0)
	assert.Equal(t, "b", uri, "the content save itself stands")
	assert.Zero(t, f.manager.Pending())
}

func TestManager_ConflictIsSkipped(t *testing.T) {
	f := newFixture(t, Options{Enabled: true})
	ctx := context.Background()

	_, err := f.service.Create(ctx, &domain.RedirectRule{
		SourcePattern: "/a",
		SourceScope:   domain.ScopePathOnly,
		MatchStrategy: domain.MatchExact,
		Destination:   "/elsewhere",
		StatusCode:    302,
		Enabled:       true,
	})
	require.NoError(t, err)

	_, err = f.save(t, 1, 0, "a")
	require.NoError(t, err)
	result, err := f.save(t, 1, 0, "b")
	require.NoError(t, err)
	assert.Equal(t, ActionSkipped, result.Action)
}

func TestManager_StateIsPerSite(t *testing.T) {
	f := newFixture(t, Options{Enabled: true})
	_, err := f.save(t, 1, 1, "a")
	require.NoError(t, err)
	_, err = f.save(t, 1, 2, "x")
	require.NoError(t, err)

	result, err := f.save(t, 1, 1, "b")
	require.NoError(t, err)
	require.Equal(t, ActionCreated, result.Action)
	assert.Equal(t, uint64(1), result.Rule.SiteID)
	assert.Empty(t, f.autoRules(t, 1, 2))
}

func TestManager_AfterWithoutBeforeIsNoop(t *testing.T) {
	f := newFixture(t, Options{Enabled: true})
	result, err := f.manager.AfterContentSave(context.Background(), 9, 0, "anything")
	require.NoError(t, err)
	assert.Equal(t, ActionNone, result.Action)
}

func TestManager_Disabled(t *testing.T) {
	f := newFixture(t, Options{Enabled: false})
	_, err := f.save(t, 1, 0, "a")
	require.NoError(t, err)
	result, err := f.save(t, 1, 0, "b")
	require.NoError(t, err)
	assert.Equal(t, ActionNone, result.Action)
	assert.False(t, f.manager.Enabled())
	assert.Empty(t, f.autoRules(t, 1, 0))
}
