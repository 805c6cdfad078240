// Package session owns the auth state machine. The persisted token is the
// single source of truth: every operation re-reads it from the store instead
// of trusting state cached across operations.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/feedlens/relay/internal/api"
	"github.com/feedlens/relay/internal/infrastructure/logging"
	"github.com/feedlens/relay/internal/infrastructure/monitoring"
	"github.com/feedlens/relay/internal/store"
)

// State is the auth machine state.
type State string

const (
	StateUnauthenticated State = "unauthenticated"
	StateAuthenticating  State = "authenticating"
	StateAuthenticated   State = "authenticated"
	StateVerifying       State = "verifying"
)

// MinPasswordLength is enforced locally before any network call.
const MinPasswordLength = 6

// API is the subset of the remote client the session machine drives.
type API interface {
	Login(ctx context.Context, username, password string) (string, error)
	Register(ctx context.Context, username, email, password string) (string, error)
	Verify(ctx context.Context, token string) (bool, error)
	Logout(ctx context.Context, token string) error
	Profile(ctx context.Context, token string) (*api.Profile, error)
	DeleteAccount(ctx context.Context, token, password string) error
}

// Manager drives the auth state machine against the store and remote API.
type Manager struct {
	api     API
	store   *store.Store
	logger  *logging.Logger
	metrics *monitoring.Metrics

	mu    sync.RWMutex
	state State
}

// NewManager creates a session manager in the Unauthenticated state.
func NewManager(client API, st *store.Store, logger *logging.Logger, metrics *monitoring.Metrics) *Manager {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Manager{
		api:     client,
		store:   st,
		logger:  logger.Named("session"),
		metrics: metrics,
		state:   StateUnauthenticated,
	}
}

// State returns the current machine state.
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Token re-reads the persisted token. Present means the user believes they
// are authenticated; only Verify confirms it.
func (m *Manager) Token() (string, bool) {
	token, ok, err := m.store.Get(store.ScopeLocal, store.KeyAuthToken)
	if err != nil {
		m.logger.Warn("failed to read token", zap.Error(err))
		return "", false
	}
	return token, ok && token != ""
}

// Login authenticates and persists the returned token. Both fields are
// required; validation failures never reach the network.
func (m *Manager) Login(ctx context.Context, username, password string) error {
	if username == "" || password == "" {
		return fmt.Errorf("%w: please fill in all fields", api.ErrValidation)
	}

	m.setState(StateAuthenticating)
	token, err := m.api.Login(ctx, username, password)
	if err != nil {
		m.setState(StateUnauthenticated)
		return err
	}

	if err := m.persistToken(token); err != nil {
		m.setState(StateUnauthenticated)
		return err
	}
	m.setState(StateAuthenticated)
	if m.metrics != nil {
		m.metrics.Logins.Inc()
	}
	m.logger.Info("logged in", zap.String("username", username))
	return nil
}

// Register validates locally (all fields present, password length and
// confirmation) before any network call, then behaves like Login.
func (m *Manager) Register(ctx context.Context, username, email, password, confirmPassword string) error {
	if username == "" || email == "" || password == "" || confirmPassword == "" {
		return fmt.Errorf("%w: please fill in all fields", api.ErrValidation)
	}
	if password != confirmPassword {
		return fmt.Errorf("%w: passwords do not match", api.ErrValidation)
	}
	if len(password) < MinPasswordLength {
		return fmt.Errorf("%w: password must be at least %d characters long", api.ErrValidation, MinPasswordLength)
	}

	m.setState(StateAuthenticating)
	token, err := m.api.Register(ctx, username, email, password)
	if err != nil {
		m.setState(StateUnauthenticated)
		return err
	}

	if err := m.persistToken(token); err != nil {
		m.setState(StateUnauthenticated)
		return err
	}
	m.setState(StateAuthenticated)
	if m.metrics != nil {
		m.metrics.Logins.Inc()
	}
	m.logger.Info("registered", zap.String("username", username))
	return nil
}

// VerifyStored checks the persisted token against the server. A token that
// fails verification is removed from the store before this method returns;
// a held token that failed a check never remains persisted.
func (m *Manager) VerifyStored(ctx context.Context) (bool, error) {
	token, ok := m.Token()
	if !ok {
		m.setState(StateUnauthenticated)
		return false, nil
	}

	m.setState(StateVerifying)
	valid, err := m.api.Verify(ctx, token)
	if err != nil || !valid {
		if err != nil {
			m.logger.Warn("token verification failed", zap.Error(err))
		}
		if clearErr := m.clearToken(); clearErr != nil {
			m.setState(StateUnauthenticated)
			return false, clearErr
		}
		m.setState(StateUnauthenticated)
		return false, nil
	}

	m.setState(StateAuthenticated)
	return true, nil
}

// Logout notifies the server best-effort, then unconditionally clears the
// local token. The local clear is the authoritative step.
func (m *Manager) Logout(ctx context.Context) error {
	if token, ok := m.Token(); ok {
		if err := m.api.Logout(ctx, token); err != nil {
			// Swallowed: server-side invalidation is best-effort.
			m.logger.Warn("server logout failed", zap.Error(err))
		}
	}

	if err := m.clearToken(); err != nil {
		return err
	}
	m.setState(StateUnauthenticated)
	if m.metrics != nil {
		m.metrics.Logouts.Inc()
	}
	m.logger.Info("logged out")
	return nil
}

// DeleteAccount removes the account after password re-entry. On success the
// session ends like a logout; on failure local state is untouched.
func (m *Manager) DeleteAccount(ctx context.Context, password string) error {
	if password == "" {
		return fmt.Errorf("%w: please enter your password", api.ErrValidation)
	}
	token, ok := m.Token()
	if !ok {
		return api.ErrUnauthorized
	}

	if err := m.api.DeleteAccount(ctx, token, password); err != nil {
		return err
	}

	if err := m.clearToken(); err != nil {
		return err
	}
	m.setState(StateUnauthenticated)
	m.logger.Info("account deleted")
	return nil
}

// Profile fetches the current user's profile.
func (m *Manager) Profile(ctx context.Context) (*api.Profile, error) {
	token, ok := m.Token()
	if !ok {
		return nil, api.ErrUnauthorized
	}
	return m.api.Profile(ctx, token)
}

// IsAuthErr reports whether err blocks an operation for lack of a session.
func IsAuthErr(err error) bool {
	return errors.Is(err, api.ErrUnauthorized)
}

func (m *Manager) persistToken(token string) error {
	if token == "" {
		return fmt.Errorf("server returned an empty token")
	}
	// A new token invalidates trust in anything derived from the old one;
	// authorization lists are re-fetched on the next refresh.
	return m.store.Set(store.ScopeLocal, store.KeyAuthToken, token)
}

func (m *Manager) clearToken() error {
	return m.store.Remove(store.ScopeLocal, store.KeyAuthToken)
}

func (m *Manager) setState(s State) {
	m.mu.Lock()
	m.state = s
	m.mu.Unlock()
}
