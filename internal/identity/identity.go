// Package identity manages the registered user directory and the single
// active session of a profile.
package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"

	"github.com/citafacil/citafacil/internal/metrics"
	"github.com/citafacil/citafacil/internal/model"
	"github.com/citafacil/citafacil/internal/notify"
	"github.com/citafacil/citafacil/internal/storage"
)

// LoginPath is where clients navigate after logout.
const LoginPath = "/login"

// Identity errors.
var (
	ErrUserExists         = errors.New("user already exists")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrStorage            = errors.New("identity storage failure")
	ErrLoading            = errors.New("session is still loading")
)

// State reports whether the persisted session has been restored yet.
type State int

const (
	StateLoading State = iota
	StateReady
)

func (s State) String() string {
	if s == StateReady {
		return "ready"
	}
	return "loading"
}

// PasswordHasher hashes and verifies credentials.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(password, encodedHash string) (bool, error)
}

// Config configures a Store.
type Config struct {
	Storage  storage.Store
	Keys     storage.Keys
	Hasher   PasswordHasher
	Notifier notify.Notifier
	Metrics  metrics.Recorder
	Logger   *slog.Logger
	Now      func() time.Time

	// OnRestore runs with the restored session before the store becomes
	// ready, so no login can interleave with it.
	OnRestore func(ctx context.Context, sess *model.Session)
}

// Store is the identity store.
type Store struct {
	storage  storage.Store
	keys     storage.Keys
	hasher   PasswordHasher
	notifier notify.Notifier
	metrics  metrics.Recorder
	logger   *slog.Logger
	now      func() time.Time

	onRestore func(ctx context.Context, sess *model.Session)

	// mu serializes directory writes; sessMu guards the session fields.
	mu      sync.Mutex
	sessMu  sync.RWMutex
	state   State
	session *model.Session
	ready   chan struct{}
	once    sync.Once
}

// New creates a Store in the loading state. Call Restore to finish init.
func New(cfg Config) *Store {
	if cfg.Keys.Namespace == "" {
		cfg.Keys = storage.NewKeys("")
	}
	if cfg.Notifier == nil {
		cfg.Notifier = notify.Nop{}
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.NewNoop()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Store{
		storage:  cfg.Storage,
		keys:     cfg.Keys,
		hasher:   cfg.Hasher,
		notifier: cfg.Notifier,
		metrics:  cfg.Metrics,
		logger:   cfg.Logger.With("component", "identity"),
		now:      cfg.Now,
		state:    StateLoading,

		onRestore: cfg.OnRestore,
		ready:    make(chan struct{}),
	}
}

// Restore loads the persisted session and moves the store to StateReady.
// A missing or unreadable session leaves the profile logged out. Login
// and Register fail with ErrLoading until Restore returns.
func (s *Store) Restore(ctx context.Context) {
	if !s.loading() {
		return
	}

	var sess *model.Session

	key := s.keys.Session()
	raw, ok, err := s.storage.Get(ctx, key)
	switch {
	case err != nil:
		s.storageError(ctx, "session_get", err)
	case ok:
		sess, err = model.DecodeSession(key, raw)
		if err != nil {
			s.logger.WarnContext(ctx, "discarding unreadable session", slog.String("error", err.Error()))
			sess = nil
		}
	}

	if sess != nil && s.onRestore != nil {
		restored := *sess
		s.onRestore(ctx, &restored)
	}

	s.sessMu.Lock()
	s.session = sess
	s.state = StateReady
	s.sessMu.Unlock()
	s.once.Do(func() { close(s.ready) })

	if sess != nil {
		s.logger.InfoContext(ctx, "session restored", slog.String("user_id", sess.UserID))
	}
}

// Ready is closed once Restore has completed.
func (s *Store) Ready() <-chan struct{} {
	return s.ready
}

// Current returns the active session and the store state. While the
// state is StateLoading a nil session is not authoritative.
func (s *Store) Current() (*model.Session, State) {
	s.sessMu.RLock()
	defer s.sessMu.RUnlock()
	if s.session == nil {
		return nil, s.state
	}
	sess := *s.session
	return &sess, s.state
}

func (s *Store) loading() bool {
	s.sessMu.RLock()
	defer s.sessMu.RUnlock()
	return s.state == StateLoading
}

// Register adds a user with a fresh id. It fails with ErrUserExists, and
// changes nothing, when the email is already registered.
func (s *Store) Register(ctx context.Context, email, password string) (*model.User, error) {
	if s.loading() {
		return nil, ErrLoading
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	users, err := s.readUsers(ctx)
	if err != nil {
		// The directory is rewritten as a whole, so an unreadable one is not overwritten.
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}

	for _, u := range users {
		if u.Email == email {
			return nil, ErrUserExists
		}
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := model.User{
		ID:       uuid.NewString(),
		Email:    email,
		Password: hash,
	}

	raw, err := model.EncodeRecord(append(users, user))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	if err := s.storage.Set(ctx, s.keys.Users(), raw); err != nil {
		s.storageError(ctx, "users_set", err)
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}

	s.metrics.IncUserRegistered()
	s.logger.InfoContext(ctx, "user registered", slog.String("user_id", user.ID))
	return &user, nil
}

// Login opens a session when email and password match a registered user
// exactly. A failure to persist the session is logged and the session
// stays active for this process.
func (s *Store) Login(ctx context.Context, email, password string) (*model.Session, error) {
	if s.loading() {
		return nil, ErrLoading
	}

	users, err := s.readUsers(ctx)
	if err != nil {
		users = nil
	}

	var user *model.User
	for i := range users {
		if users[i].Email == email {
			user = &users[i]
			break
		}
	}

	if user == nil || !s.verify(ctx, password, user.Password) {
		s.metrics.IncLogin(metrics.LoginFailure)
		s.notifier.Notify(ctx, notify.Notification{
			Kind:        notify.KindLoginFailed,
			Title:       "Error de inicio de sesión",
			Message:     "El correo electrónico o la contraseña son incorrectos.",
			Destructive: true,
		})
		return nil, ErrInvalidCredentials
	}

	sess := model.NewSession(ulid.Make().String(), user, s.now())

	key := s.keys.Session()
	if raw, err := model.EncodeRecord(sess); err != nil {
		s.storageError(ctx, "session_encode", err)
	} else if err := s.storage.Set(ctx, key, raw); err != nil {
		s.storageError(ctx, "session_set", err)
	}

	s.sessMu.Lock()
	s.session = sess
	s.sessMu.Unlock()

	s.metrics.IncLogin(metrics.LoginSuccess)
	s.notifier.Notify(ctx, notify.Notification{
		Kind:    notify.KindLoginSucceeded,
		Title:   "Inicio de sesión exitoso",
		Message: "¡Bienvenido de nuevo!",
		UserID:  user.ID,
	})
	s.logger.InfoContext(ctx, "login", slog.String("user_id", user.ID), slog.String("session_id", sess.ID))

	out := *sess
	return &out, nil
}

// Logout clears the active session and returns the path clients should
// navigate to.
func (s *Store) Logout(ctx context.Context) string {
	s.sessMu.Lock()
	prev := s.session
	s.session = nil
	s.sessMu.Unlock()

	if err := s.storage.Remove(ctx, s.keys.Session()); err != nil {
		s.storageError(ctx, "session_remove", err)
	}

	n := notify.Notification{Kind: notify.KindLogout, Title: "Cierre de sesión exitoso"}
	if prev != nil {
		n.UserID = prev.UserID
	}
	s.notifier.Notify(ctx, n)
	s.metrics.IncLogout()
	s.logger.InfoContext(ctx, "logout")

	return LoginPath
}

// Users returns the registered users. Read failures yield an empty list.
func (s *Store) Users(ctx context.Context) []model.User {
	users, err := s.readUsers(ctx)
	if err != nil {
		return []model.User{}
	}
	return users
}

// readUsers loads the directory. An absent key is an empty directory;
// read and decode failures are logged and returned.
func (s *Store) readUsers(ctx context.Context) ([]model.User, error) {
	key := s.keys.Users()
	raw, ok, err := s.storage.Get(ctx, key)
	if err != nil {
		s.storageError(ctx, "users_get", err)
		return nil, err
	}
	if !ok {
		return []model.User{}, nil
	}
	users, err := model.DecodeUsers(key, raw)
	if err != nil {
		s.storageError(ctx, "users_decode", err)
		return nil, err
	}
	return users, nil
}

func (s *Store) verify(ctx context.Context, password, hash string) bool {
	ok, err := s.hasher.Verify(password, hash)
	if err != nil {
		s.logger.WarnContext(ctx, "stored credential unreadable", slog.String("error", err.Error()))
		return false
	}
	return ok
}

func (s *Store) storageError(ctx context.Context, op string, err error) {
	s.metrics.IncStorageError(op)
	s.logger.ErrorContext(ctx, "storage operation failed",
		slog.String("op", op),
		slog.String("error", err.Error()),
	)
}
