package identity

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/citafacil/citafacil/internal/auth"
	"github.com/citafacil/citafacil/internal/metrics"
	"github.com/citafacil/citafacil/internal/model"
	"github.com/citafacil/citafacil/internal/notify"
	"github.com/citafacil/citafacil/internal/storage"
	"github.com/citafacil/citafacil/internal/testutil"
)

// flakyStore fails the operations whose flag is set.
type flakyStore struct {
	*storage.Memory
	failGet    bool
	failSet    bool
	failRemove bool
}

var errFlaky = errors.New("quota exceeded")

func (f *flakyStore) Get(ctx context.Context, key string) (string, bool, error) {
	if f.failGet {
		return "", false, errFlaky
	}
	return f.Memory.Get(ctx, key)
}

func (f *flakyStore) Set(ctx context.Context, key, value string) error {
	if f.failSet {
		return errFlaky
	}
	return f.Memory.Set(ctx, key, value)
}

func (f *flakyStore) Remove(ctx context.Context, key string) error {
	if f.failRemove {
		return errFlaky
	}
	return f.Memory.Remove(ctx, key)
}

type fixture struct {
	store   *Store
	backend *flakyStore
	outbox  *notify.Outbox
	metrics *metrics.InMemoryRecorder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	backend := &flakyStore{Memory: storage.NewMemory()}
	outbox := notify.NewOutbox(50)
	rec := metrics.NewInMemory()
	s := New(Config{
		Storage:  backend,
		Keys:     storage.NewKeys("test"),
		Hasher:   auth.NewHasher(auth.Params{Time: 1, Memory: 1024, Threads: 1, KeyLen: 16, SaltLen: 8}),
		Notifier: outbox,
		Metrics:  rec,
		Logger:   testutil.DiscardLogger(),
		Now:      func() time.Time { return time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC) },
	})
	s.Restore(context.Background())
	return &fixture{store: s, backend: backend, outbox: outbox, metrics: rec}
}

func TestStore_RegisterLoginScenario(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	user, err := f.store.Register(ctx, "a@x.com", "secret1")
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if user.ID == "" {
		t.Error("Register did not assign an id")
	}

	if _, err := f.store.Register(ctx, "a@x.com", "other-pass"); !errors.Is(err, ErrUserExists) {
		t.Errorf("second Register error = %v, want ErrUserExists", err)
	}
	if n := len(f.store.Users(ctx)); n != 1 {
		t.Errorf("user count = %d, want 1", n)
	}

	if _, err := f.store.Login(ctx, "a@x.com", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("Login(wrong) error = %v, want ErrInvalidCredentials", err)
	}
	if sess, _ := f.store.Current(); sess != nil {
		t.Error("failed login opened a session")
	}

	sess, err := f.store.Login(ctx, "a@x.com", "secret1")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if sess.UserID != user.ID || sess.Email != "a@x.com" {
		t.Errorf("session = %+v, want user %s", sess, user.ID)
	}

	current, state := f.store.Current()
	if state != StateReady || current == nil || current.ID != sess.ID {
		t.Errorf("Current() = %+v, %v", current, state)
	}

	snap := f.metrics.Snapshot()
	if snap.UsersRegistered != 1 || snap.LoginSuccesses != 1 || snap.LoginFailures != 1 {
		t.Errorf("metrics = %+v", snap)
	}
}

func TestStore_PasswordNotStoredInPlaintext(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.store.Register(ctx, "a@x.com", "secret1"); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	raw, _, _ := f.backend.Memory.Get(ctx, "test:users")
	if strings.Contains(raw, "secret1") {
		t.Error("persisted directory contains the plaintext password")
	}
	if !strings.Contains(raw, "$argon2id$") {
		t.Error("persisted directory lacks an argon2id hash")
	}
}

func TestStore_EmailIsCaseSensitive(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.store.Register(ctx, "a@x.com", "secret1"); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if _, err := f.store.Register(ctx, "A@x.com", "secret1"); err != nil {
		t.Errorf("Register with different case error = %v, want nil", err)
	}
	if _, err := f.store.Login(ctx, "A@X.COM", "secret1"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("Login with unregistered case error = %v, want ErrInvalidCredentials", err)
	}
}

func TestStore_LogoutClearsSession(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	f.store.Register(ctx, "a@x.com", "secret1")
	f.store.Login(ctx, "a@x.com", "secret1")
	f.outbox.Drain()

	if path := f.store.Logout(ctx); path != LoginPath {
		t.Errorf("Logout() = %s, want %s", path, LoginPath)
	}
	if sess, _ := f.store.Current(); sess != nil {
		t.Error("session still active after logout")
	}
	if _, ok, _ := f.backend.Memory.Get(ctx, "test:session"); ok {
		t.Error("persisted session still present after logout")
	}

	got := f.outbox.Drain()
	if len(got) != 1 || got[0].Kind != notify.KindLogout || got[0].Title != "Cierre de sesión exitoso" {
		t.Errorf("notifications = %+v, want one logout confirmation", got)
	}
}

func TestStore_RestoreAcrossInstances(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	f.store.Register(ctx, "a@x.com", "secret1")
	sess, _ := f.store.Login(ctx, "a@x.com", "secret1")

	again := New(Config{Storage: f.backend, Keys: storage.NewKeys("test"), Logger: testutil.DiscardLogger()})

	if got, state := again.Current(); got != nil || state != StateLoading {
		t.Errorf("before Restore: Current() = %+v, %v; want nil, loading", got, state)
	}
	select {
	case <-again.Ready():
		t.Fatal("Ready() closed before Restore")
	default:
	}

	again.Restore(ctx)

	got, state := again.Current()
	if state != StateReady || got == nil || got.ID != sess.ID || got.UserID != sess.UserID {
		t.Errorf("after Restore: Current() = %+v, %v", got, state)
	}
	select {
	case <-again.Ready():
	default:
		t.Error("Ready() not closed after Restore")
	}
}

func TestStore_RestoreDegrades(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		prepare func(*flakyStore)
	}{
		{"read failure", func(b *flakyStore) { b.failGet = true }},
		{"corrupt session", func(b *flakyStore) {
			b.Memory.Set(context.Background(), "test:session", `{"version":9,"data":{}}`)
		}},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			backend := &flakyStore{Memory: storage.NewMemory()}
			tt.prepare(backend)
			s := New(Config{Storage: backend, Keys: storage.NewKeys("test"), Logger: testutil.DiscardLogger()})
			s.Restore(context.Background())

			got, state := s.Current()
			if got != nil || state != StateReady {
				t.Errorf("Current() = %+v, %v; want nil, ready", got, state)
			}
		})
	}
}

func TestStore_LegacySessionRestores(t *testing.T) {
	t.Parallel()

	backend := &flakyStore{Memory: storage.NewMemory()}
	backend.Memory.Set(context.Background(), "test:session", `{"id":"user-1","email":"a@x.com","password":"secret1"}`)

	s := New(Config{Storage: backend, Keys: storage.NewKeys("test"), Logger: testutil.DiscardLogger()})
	s.Restore(context.Background())

	got, _ := s.Current()
	if got == nil || got.UserID != "user-1" {
		t.Errorf("Current() = %+v, want user-1", got)
	}
}

func TestStore_RegisterStorageFailure(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		prepare func(*flakyStore)
	}{
		{"write", func(b *flakyStore) { b.failSet = true }},
		{"read", func(b *flakyStore) { b.failGet = true }},
		{"corrupt directory", func(b *flakyStore) {
			b.Memory.Set(context.Background(), "test:users", "not json")
		}},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			f := newFixture(t)
			tt.prepare(f.backend)

			_, err := f.store.Register(context.Background(), "a@x.com", "secret1")
			if !errors.Is(err, ErrStorage) {
				t.Errorf("Register error = %v, want ErrStorage", err)
			}
			if f.metrics.Snapshot().UsersRegistered != 0 {
				t.Error("failed registration was counted")
			}
		})
	}
}

func TestStore_LoginSurvivesSessionWriteFailure(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	f.store.Register(ctx, "a@x.com", "secret1")

	f.backend.failSet = true
	sess, err := f.store.Login(ctx, "a@x.com", "secret1")
	if err != nil {
		t.Fatalf("Login error = %v, want nil", err)
	}
	if current, _ := f.store.Current(); current == nil || current.ID != sess.ID {
		t.Error("session not active in memory after persist failure")
	}
	if f.metrics.Snapshot().StorageErrors["session_set"] != 1 {
		t.Errorf("storage errors = %v, want session_set counted", f.metrics.Snapshot().StorageErrors)
	}
}

func TestStore_LoginReadFailureIsInvalidCredentials(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	f.store.Register(ctx, "a@x.com", "secret1")

	f.backend.failGet = true
	if _, err := f.store.Login(ctx, "a@x.com", "secret1"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("Login error = %v, want ErrInvalidCredentials", err)
	}
}

func TestStore_CurrentReturnsCopy(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	f.store.Register(ctx, "a@x.com", "secret1")
	f.store.Login(ctx, "a@x.com", "secret1")

	got, _ := f.store.Current()
	got.UserID = "tampered"

	again, _ := f.store.Current()
	if again.UserID == "tampered" {
		t.Error("Current() exposed internal session state")
	}
}

// gatedStore holds session reads until release is closed.
type gatedStore struct {
	*storage.Memory
	entered chan struct{}
	release chan struct{}
}

func (g *gatedStore) Get(ctx context.Context, key string) (string, bool, error) {
	if key == storage.NewKeys("test").Session() {
		close(g.entered)
		<-g.release
	}
	return g.Memory.Get(ctx, key)
}

func TestStore_LoginWaitsForRestore(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	f.store.Register(ctx, "a@x.com", "secret1")
	f.store.Register(ctx, "b@x.com", "secret2")
	persisted, err := f.store.Login(ctx, "a@x.com", "secret1")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	gate := &gatedStore{Memory: f.backend.Memory, entered: make(chan struct{}), release: make(chan struct{})}
	var restored []string
	var s *Store
	s = New(Config{
		Storage: gate,
		Keys:    storage.NewKeys("test"),
		Hasher:  auth.NewHasher(auth.Params{Time: 1, Memory: 1024, Threads: 1, KeyLen: 16, SaltLen: 8}),
		Logger:  testutil.DiscardLogger(),
		OnRestore: func(ctx context.Context, sess *model.Session) {
			if _, state := s.Current(); state != StateLoading {
				t.Errorf("OnRestore ran in state %v, want loading", state)
			}
			restored = append(restored, sess.UserID)
		},
	})

	done := make(chan struct{})
	go func() {
		s.Restore(ctx)
		close(done)
	}()
	<-gate.entered

	if _, err := s.Login(ctx, "b@x.com", "secret2"); !errors.Is(err, ErrLoading) {
		t.Errorf("Login during restore error = %v, want ErrLoading", err)
	}
	if _, err := s.Register(ctx, "c@x.com", "secret3"); !errors.Is(err, ErrLoading) {
		t.Errorf("Register during restore error = %v, want ErrLoading", err)
	}

	close(gate.release)
	<-done

	got, state := s.Current()
	if state != StateReady || got == nil || got.ID != persisted.ID {
		t.Fatalf("after Restore: Current() = %+v, %v; want session %s", got, state, persisted.ID)
	}
	if len(restored) != 1 || restored[0] != persisted.UserID {
		t.Errorf("OnRestore calls = %v, want [%s]", restored, persisted.UserID)
	}

	sess, err := s.Login(ctx, "b@x.com", "secret2")
	if err != nil {
		t.Fatalf("Login after restore failed: %v", err)
	}
	if current, _ := s.Current(); current == nil || current.ID != sess.ID {
		t.Errorf("Current() = %+v, want session %s", current, sess.ID)
	}

	s.Restore(ctx)
	if current, _ := s.Current(); current == nil || current.ID != sess.ID {
		t.Errorf("second Restore replaced the session: %+v", current)
	}
	if len(restored) != 1 {
		t.Errorf("OnRestore calls = %d after second Restore, want 1", len(restored))
	}
}
