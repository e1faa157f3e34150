package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/hitoshi/eventease/internal/metrics"
	"github.com/hitoshi/eventease/internal/model"
	"github.com/hitoshi/eventease/internal/repository"
)

// --- テスト用ヘルパー ---

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 5, 10, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func sequentialIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("session-%d", n)
	}
}

// mockSessionRepo はSessionRepositoryのモック。
type mockSessionRepo struct {
	loadFn   func(ctx context.Context) (*model.UserSession, error)
	saveFn   func(ctx context.Context, session *model.UserSession) error
	deleteFn func(ctx context.Context) error
}

func (m *mockSessionRepo) Load(ctx context.Context) (*model.UserSession, error) {
	if m.loadFn != nil {
		return m.loadFn(ctx)
	}
	return nil, nil
}

func (m *mockSessionRepo) Save(ctx context.Context, session *model.UserSession) error {
	if m.saveFn != nil {
		return m.saveFn(ctx, session)
	}
	return nil
}

func (m *mockSessionRepo) Delete(ctx context.Context) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx)
	}
	return nil
}

// recordingMetrics は記録内容を保持するMetricsCollector。
type recordingMetrics struct {
	metrics.Nop
	mu              sync.Mutex
	sessionEvents   []string
	storageFailures []string
}

func (r *recordingMetrics) RecordSessionEvent(kind string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessionEvents = append(r.sessionEvents, kind)
}

func (r *recordingMetrics) RecordStorageFailure(key, op string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.storageFailures = append(r.storageFailures, key+":"+op)
}

type testEnv struct {
	store   *Store
	repo    *repository.KVSessionRepo
	kv      *repository.MemoryKVStore
	clock   *fakeClock
	metrics *recordingMetrics
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	kv := repository.NewMemoryKVStore()
	return newTestEnvWithKV(t, kv, newFakeClock())
}

func newTestEnvWithKV(t *testing.T, kv *repository.MemoryKVStore, clock *fakeClock) *testEnv {
	t.Helper()
	repo := repository.NewKVSessionRepo(kv)
	rm := &recordingMetrics{}
	store := NewStore(repo, rm, nil, Config{Now: clock.Now, NewID: sequentialIDs()})
	return &testEnv{store: store, repo: repo, kv: kv, clock: clock, metrics: rm}
}

func mustLoad(t *testing.T, repo repository.SessionRepository) *model.UserSession {
	t.Helper()
	sess, err := repo.Load(context.Background())
	if err != nil {
		t.Fatalf("failed to load persisted session: %v", err)
	}
	if sess == nil {
		t.Fatal("expected persisted session")
	}
	return sess
}

// --- 初期化 ---

func TestInitialize_NoStoredSession_StartsNew(t *testing.T) {
	env := newTestEnv(t)

	var started []model.UserSession
	env.store.Started.Subscribe(func(s model.UserSession) { started = append(started, s) })

	sess := env.store.Initialize(context.Background())

	if sess.SessionID != "session-1" {
		t.Errorf("SessionID = %q, want %q", sess.SessionID, "session-1")
	}
	if sess.User.IsAuthenticated || sess.User.UserID != "" {
		t.Errorf("expected anonymous identity, got %+v", sess.User)
	}
	if sess.Preferences.Theme != "light" || sess.Preferences.PageSize != 10 {
		t.Errorf("expected default preferences, got %+v", sess.Preferences)
	}
	if len(started) != 1 {
		t.Errorf("Started published %d times, want 1", len(started))
	}
	if persisted := mustLoad(t, env.repo); persisted.SessionID != "session-1" {
		t.Errorf("persisted SessionID = %q, want %q", persisted.SessionID, "session-1")
	}
}

func TestInitialize_AdoptsUnexpiredSession(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	stored := model.NewUserSession("stored", env.clock.Now().Add(-20*time.Minute))
	stored.State.CurrentPage = "/events"
	if err := env.repo.Save(ctx, &stored); err != nil {
		t.Fatalf("Save returned error: %v", err)
	}

	sess := env.store.Initialize(ctx)

	if sess.SessionID != "stored" {
		t.Errorf("SessionID = %q, want %q", sess.SessionID, "stored")
	}
	if sess.State.CurrentPage != "/events" {
		t.Errorf("CurrentPage = %q, want %q", sess.State.CurrentPage, "/events")
	}
	if !sess.LastActivity.Equal(env.clock.Now()) {
		t.Errorf("LastActivity = %v, want %v", sess.LastActivity, env.clock.Now())
	}
	if persisted := mustLoad(t, env.repo); !persisted.LastActivity.Equal(env.clock.Now()) {
		t.Errorf("persisted LastActivity = %v, want refreshed", persisted.LastActivity)
	}
}

func TestInitialize_DiscardsExpiredSession(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	// ちょうど30分経過したセッションは失効扱い
	stored := model.NewUserSession("stale", env.clock.Now().Add(-Timeout))
	stored.User = model.UserInfo{UserID: "u-1", IsAuthenticated: true, Roles: []string{"admin"}}
	_ = env.repo.Save(ctx, &stored)

	sess := env.store.Initialize(ctx)

	if sess.SessionID == "stale" {
		t.Fatal("expected expired session to be replaced")
	}
	if sess.User.IsAuthenticated || len(sess.User.Roles) != 0 {
		t.Errorf("expected default identity, got %+v", sess.User)
	}
}

func TestInitialize_CorruptPayload_StartsNew(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	_ = env.kv.Set(ctx, repository.KeyUserSession, []byte("{broken"))

	sess := env.store.Initialize(ctx)

	if sess.SessionID != "session-1" {
		t.Errorf("SessionID = %q, want %q", sess.SessionID, "session-1")
	}
	if len(env.metrics.storageFailures) != 1 || env.metrics.storageFailures[0] != repository.KeyUserSession+":load" {
		t.Errorf("storageFailures = %v, want one load failure", env.metrics.storageFailures)
	}
}

func TestOperation_WithoutInitialize_LoadsLazily(t *testing.T) {
	env := newTestEnv(t)

	sess, err := env.store.TrackPageVisit(context.Background(), "/home")
	if err != nil {
		t.Fatalf("TrackPageVisit returned error: %v", err)
	}
	if sess.SessionID != "session-1" || sess.State.CurrentPage != "/home" {
		t.Errorf("unexpected session: id=%q page=%q", sess.SessionID, sess.State.CurrentPage)
	}
}

// --- 失効 ---

func TestCheckExpiry(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.store.Initialize(ctx)
	_, _ = env.store.Login(ctx, "u-1", "jane", "jane@example.com", []string{"admin"})

	var expired []model.UserSession
	var started []model.UserSession
	env.store.Expired.Subscribe(func(s model.UserSession) { expired = append(expired, s) })
	env.store.Started.Subscribe(func(s model.UserSession) { started = append(started, s) })

	if env.store.CheckExpiry(ctx, env.clock.Now().Add(Timeout-time.Second)) {
		t.Fatal("session should not expire before the timeout")
	}

	if !env.store.CheckExpiry(ctx, env.clock.Now().Add(Timeout)) {
		t.Fatal("session should expire at the timeout")
	}
	if len(expired) != 1 || expired[0].SessionID != "session-1" || expired[0].User.UserID != "u-1" {
		t.Fatalf("Expired notifications = %+v", expired)
	}
	if len(started) != 1 || started[0].SessionID != "session-2" {
		t.Fatalf("Started notifications = %+v", started)
	}

	current := env.store.Current(ctx)
	if current.SessionID != "session-2" {
		t.Errorf("current SessionID = %q, want %q", current.SessionID, "session-2")
	}
	if current.User.IsAuthenticated {
		t.Error("expected fresh session to be anonymous")
	}
	if persisted := mustLoad(t, env.repo); persisted.SessionID != "session-2" {
		t.Errorf("persisted SessionID = %q, want %q", persisted.SessionID, "session-2")
	}
}

func TestCheckExpiry_BeforeInitialize_DoesNothing(t *testing.T) {
	env := newTestEnv(t)

	if env.store.CheckExpiry(context.Background(), env.clock.Now().Add(time.Hour)) {
		t.Error("CheckExpiry should not expire an uninitialized store")
	}
}

func TestCurrent_ExpiresLazily(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	first := env.store.Initialize(ctx)

	env.clock.Advance(31 * time.Minute)
	current := env.store.Current(ctx)

	if current.SessionID == first.SessionID {
		t.Error("expected Current to replace the expired session")
	}
}

func TestActivityExtendsSession(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	first := env.store.Initialize(ctx)

	env.clock.Advance(20 * time.Minute)
	env.store.UpdateActivity(ctx)
	env.clock.Advance(20 * time.Minute)

	if got := env.store.Current(ctx).SessionID; got != first.SessionID {
		t.Errorf("SessionID = %q, want %q (activity should extend the session)", got, first.SessionID)
	}
}

// --- 認証 ---

func TestLogin_PublishesAuthenticatedThenChanged(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.store.Initialize(ctx)

	var order []string
	env.store.Authenticated.Subscribe(func(model.UserSession) { order = append(order, "authenticated") })
	env.store.Changed.Subscribe(func(c Change) { order = append(order, c.Kind) })

	sess, err := env.store.Login(ctx, "u-42", "jane", "jane@example.com", []string{"admin"})
	if err != nil {
		t.Fatalf("Login returned error: %v", err)
	}

	if !sess.User.IsAuthenticated || sess.User.UserID != "u-42" || !sess.User.HasRole("admin") {
		t.Errorf("unexpected user: %+v", sess.User)
	}
	if sess.User.LastLogin == nil || !sess.User.LastLogin.Equal(env.clock.Now()) {
		t.Errorf("LastLogin = %v, want %v", sess.User.LastLogin, env.clock.Now())
	}
	if len(order) != 2 || order[0] != "authenticated" || order[1] != ChangeUserLogin {
		t.Errorf("notification order = %v", order)
	}
}

func TestLogin_EmptyUserID(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.store.Login(context.Background(), "  ", "jane", "", nil)
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeValidationFailed {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestLogout_ResetsIdentity(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.store.Initialize(ctx)
	_, _ = env.store.Login(ctx, "u-1", "jane", "", []string{"admin"})

	var changes []Change
	env.store.Changed.Subscribe(func(c Change) { changes = append(changes, c) })

	sess, err := env.store.Logout(ctx)
	if err != nil {
		t.Fatalf("Logout returned error: %v", err)
	}
	if sess.User.IsAuthenticated || sess.User.UserID != "" || len(sess.User.Roles) != 0 {
		t.Errorf("expected anonymous user, got %+v", sess.User)
	}
	if len(changes) != 1 || changes[0].Kind != ChangeUserLogout {
		t.Fatalf("changes = %+v", changes)
	}
	if old, ok := changes[0].OldValue.(model.UserInfo); !ok || old.UserID != "u-1" {
		t.Errorf("OldValue = %+v, want previous user", changes[0].OldValue)
	}
}

// --- 新規・クリア ---

func TestClearSession(t *testing.T) {
	deleted := false
	var saved []string
	repo := &mockSessionRepo{
		saveFn: func(ctx context.Context, s *model.UserSession) error {
			saved = append(saved, s.SessionID)
			return nil
		},
		deleteFn: func(ctx context.Context) error {
			deleted = true
			return nil
		},
	}
	clock := newFakeClock()
	store := NewStore(repo, nil, nil, Config{Now: clock.Now, NewID: sequentialIDs()})
	ctx := context.Background()
	store.Initialize(ctx)

	var kinds []string
	store.Changed.Subscribe(func(c Change) { kinds = append(kinds, c.Kind) })

	sess := store.ClearSession(ctx)

	if !deleted {
		t.Error("expected stored session to be deleted")
	}
	if sess.SessionID != "session-2" {
		t.Errorf("SessionID = %q, want %q", sess.SessionID, "session-2")
	}
	if saved[len(saved)-1] != "session-2" {
		t.Errorf("last saved = %q, want session-2", saved[len(saved)-1])
	}
	if len(kinds) != 2 || kinds[0] != ChangeSessionStarted || kinds[1] != ChangeSessionCleared {
		t.Errorf("change kinds = %v", kinds)
	}
}

func TestStartNewSession_ResetsEverything(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.store.Initialize(ctx)
	_, _ = env.store.TrackPageVisit(ctx, "/events")
	_, _ = env.store.UpdatePreference(ctx, "theme", "dark")

	sess := env.store.StartNewSession(ctx)

	if sess.SessionID != "session-2" {
		t.Errorf("SessionID = %q, want %q", sess.SessionID, "session-2")
	}
	if len(sess.NavigationHistory) != 0 || sess.State.CurrentPage != "" {
		t.Errorf("expected empty state, got history=%v page=%q", sess.NavigationHistory, sess.State.CurrentPage)
	}
	if sess.Preferences.Theme != "light" {
		t.Errorf("Theme = %q, want light", sess.Preferences.Theme)
	}
}

// --- 永続化と通知順序 ---

func TestStorageFailure_IsSwallowed(t *testing.T) {
	repo := &mockSessionRepo{
		saveFn: func(ctx context.Context, s *model.UserSession) error {
			return errors.New("quota exceeded")
		},
	}
	rm := &recordingMetrics{}
	clock := newFakeClock()
	store := NewStore(repo, rm, nil, Config{Now: clock.Now, NewID: sequentialIDs()})
	ctx := context.Background()

	store.Initialize(ctx)
	sess, err := store.TrackPageVisit(ctx, "/events")
	if err != nil {
		t.Fatalf("TrackPageVisit returned error: %v", err)
	}
	if sess.State.CurrentPage != "/events" {
		t.Errorf("CurrentPage = %q, want /events (in-memory state should be kept)", sess.State.CurrentPage)
	}
	if len(rm.storageFailures) != 2 {
		t.Errorf("storageFailures = %v, want 2 save failures", rm.storageFailures)
	}
}

func TestChanged_PublishedAfterPersistence(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.store.Initialize(ctx)

	var persistedPage string
	env.store.Changed.Subscribe(func(c Change) {
		persistedPage = mustLoad(t, env.repo).State.CurrentPage
	})

	_, _ = env.store.TrackPageVisit(ctx, "/calendar")

	if persistedPage != "/calendar" {
		t.Errorf("persisted page at notification time = %q, want /calendar", persistedPage)
	}
}

func TestChanged_HandlerMayCallStore(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.store.Initialize(ctx)

	var seen string
	env.store.Changed.Subscribe(func(c Change) {
		seen = env.store.Current(ctx).State.CurrentPage
	})

	_, _ = env.store.TrackPageVisit(ctx, "/about")

	if seen != "/about" {
		t.Errorf("seen = %q, want /about", seen)
	}
}

func TestSnapshot_IsIsolatedFromStore(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.store.Initialize(ctx)
	_, _ = env.store.TrackEventView(ctx, 1)

	snapshot := env.store.Current(ctx)
	snapshot.State.ViewedEventIDs[0] = 99
	snapshot.State.ComponentStates["x"] = 1

	current := env.store.Current(ctx)
	if current.State.ViewedEventIDs[0] != 1 {
		t.Errorf("ViewedEventIDs[0] = %d, want 1", current.State.ViewedEventIDs[0])
	}
	if _, ok := current.State.ComponentStates["x"]; ok {
		t.Error("snapshot mutation leaked into the store")
	}
}
