// Package sharing manages the bidirectional feed-sharing authorization
// lists. List state is never assumed fresh across context restarts: callers
// re-fetch both views after every mutation and on every transition into the
// authenticated state. A failed re-fetch never undoes a committed mutation;
// the caller keeps its previous lists.
package sharing

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/feedlens/relay/internal/api"
	"github.com/feedlens/relay/internal/infrastructure/logging"
)

// ErrConfirmationRequired blocks an unshare until the caller confirms the
// irrecoverable revocation.
var ErrConfirmationRequired = errors.New("confirmation required")

// API is the subset of the remote client the sharing manager drives.
type API interface {
	ShareFeed(ctx context.Context, token, username string) (string, error)
	UnshareFeed(ctx context.Context, token, username string) (string, error)
	SharedUsers(ctx context.Context, token string) ([]api.User, error)
	FetchUsers(ctx context.Context, token string) ([]api.User, error)
}

// TokenSource re-reads the session token at the start of each operation.
type TokenSource interface {
	Token() (string, bool)
}

// Lists materializes the two server-side views of the authorization edges.
type Lists struct {
	// GrantedByMe are grantees: users allowed to view my feed.
	GrantedByMe []api.User
	// GrantedToMe are grantors: users whose feeds I may load.
	GrantedToMe []api.User
}

// Contains reports whether username appears in the given view.
func Contains(users []api.User, username string) bool {
	for _, u := range users {
		if u.Username == username {
			return true
		}
	}
	return false
}

// Manager drives authorization-list operations.
type Manager struct {
	api    API
	tokens TokenSource
	logger *logging.Logger
}

// NewManager creates a sharing manager.
func NewManager(client API, tokens TokenSource, logger *logging.Logger) *Manager {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Manager{api: client, tokens: tokens, logger: logger.Named("sharing")}
}

// Share grants username access to the caller's feed and returns the
// server's confirmation message. Duplicate shares are idempotent from the
// caller's perspective; the server decides. Callers refresh the list views
// afterwards.
func (m *Manager) Share(ctx context.Context, username string) (string, error) {
	if username == "" {
		return "", fmt.Errorf("%w: please enter a username", api.ErrValidation)
	}
	token, ok := m.tokens.Token()
	if !ok {
		return "", api.ErrUnauthorized
	}

	message, err := m.api.ShareFeed(ctx, token, username)
	if err != nil {
		return "", err
	}
	m.logger.Info("shared feed", zap.String("with", username))
	return message, nil
}

// Unshare revokes username's access. The confirmation gesture is required
// before the call is issued: revocation is irrecoverable.
func (m *Manager) Unshare(ctx context.Context, username string, confirmed bool) (string, error) {
	if username == "" {
		return "", fmt.Errorf("%w: please enter a username", api.ErrValidation)
	}
	if !confirmed {
		return "", ErrConfirmationRequired
	}
	token, ok := m.tokens.Token()
	if !ok {
		return "", api.ErrUnauthorized
	}

	message, err := m.api.UnshareFeed(ctx, token, username)
	if err != nil {
		return "", err
	}
	m.logger.Info("unshared feed", zap.String("from", username))
	return message, nil
}

// Refresh re-fetches both authorization views from the server.
func (m *Manager) Refresh(ctx context.Context) (Lists, error) {
	token, ok := m.tokens.Token()
	if !ok {
		return Lists{}, api.ErrUnauthorized
	}
	return m.refresh(ctx, token)
}

func (m *Manager) refresh(ctx context.Context, token string) (Lists, error) {
	var lists Lists

	grantees, err := m.api.SharedUsers(ctx, token)
	if err != nil {
		return lists, fmt.Errorf("failed to load shared users: %w", err)
	}
	lists.GrantedByMe = grantees

	grantors, err := m.api.FetchUsers(ctx, token)
	if err != nil {
		return lists, fmt.Errorf("failed to load fetch users: %w", err)
	}
	lists.GrantedToMe = grantors

	return lists, nil
}
