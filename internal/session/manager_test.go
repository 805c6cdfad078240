package session

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feedlens/relay/internal/api"
	"github.com/feedlens/relay/internal/store"
)

type fakeAPI struct {
	loginToken    string
	loginErr      error
	registerToken string
	registerErr   error
	verifyValid   bool
	verifyErr     error
	logoutErr     error
	deleteErr     error

	loginCalls    int
	registerCalls int
	verifyCalls   int
	logoutCalls   int
}

func (f *fakeAPI) Login(ctx context.Context, username, password string) (string, error) {
	f.loginCalls++
	return f.loginToken, f.loginErr
}

func (f *fakeAPI) Register(ctx context.Context, username, email, password string) (string, error) {
	f.registerCalls++
	return f.registerToken, f.registerErr
}

func (f *fakeAPI) Verify(ctx context.Context, token string) (bool, error) {
	f.verifyCalls++
	return f.verifyValid, f.verifyErr
}

func (f *fakeAPI) Logout(ctx context.Context, token string) error {
	f.logoutCalls++
	return f.logoutErr
}

func (f *fakeAPI) Profile(ctx context.Context, token string) (*api.Profile, error) {
	return &api.Profile{Username: "alice"}, nil
}

func (f *fakeAPI) DeleteAccount(ctx context.Context, token, password string) error {
	return f.deleteErr
}

func newTestManager(t *testing.T, f *fakeAPI) (*Manager, *store.Store) {
	t.Helper()
	st, err := store.Open(t.TempDir(), nil)
	require.NoError(t, err)
	return NewManager(f, st, nil, nil), st
}

func storedToken(t *testing.T, st *store.Store) (string, bool) {
	t.Helper()
	token, ok, err := st.Get(store.ScopeLocal, store.KeyAuthToken)
	require.NoError(t, err)
	return token, ok
}

func TestLoginPersistsToken(t *testing.T) {
	f := &fakeAPI{loginToken: "tok-1"}
	m, st := newTestManager(t, f)

	require.NoError(t, m.Login(context.Background(), "alice", "hunter2"))
	assert.Equal(t, StateAuthenticated, m.State())

	token, ok := storedToken(t, st)
	assert.True(t, ok)
	assert.Equal(t, "tok-1", token)
}

func TestLoginValidationSkipsNetwork(t *testing.T) {
	f := &fakeAPI{}
	m, _ := newTestManager(t, f)

	err := m.Login(context.Background(), "", "hunter2")
	assert.ErrorIs(t, err, api.ErrValidation)
	assert.Zero(t, f.loginCalls, "validation failures must not reach the network")
	assert.Equal(t, StateUnauthenticated, m.State())
}

func TestRegisterValidation(t *testing.T) {
	tests := []struct {
		name     string
		username string
		email    string
		password string
		confirm  string
	}{
		{"missing fields", "", "a@b.c", "secret1", "secret1"},
		{"mismatch", "alice", "a@b.c", "secret1", "secret2"},
		{"too short", "alice", "a@b.c", "abc", "abc"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &fakeAPI{}
			m, _ := newTestManager(t, f)

			err := m.Register(context.Background(), tt.username, tt.email, tt.password, tt.confirm)
			assert.ErrorIs(t, err, api.ErrValidation)
			assert.Zero(t, f.registerCalls)
		})
	}
}

func TestRegisterSuccessBehavesLikeLogin(t *testing.T) {
	f := &fakeAPI{registerToken: "tok-new"}
	m, st := newTestManager(t, f)

	require.NoError(t, m.Register(context.Background(), "alice", "a@b.c", "secret1", "secret1"))
	assert.Equal(t, StateAuthenticated, m.State())

	token, ok := storedToken(t, st)
	assert.True(t, ok)
	assert.Equal(t, "tok-new", token)
}

func TestVerifyStoredClearsInvalidToken(t *testing.T) {
	f := &fakeAPI{verifyValid: false}
	m, st := newTestManager(t, f)
	require.NoError(t, st.Set(store.ScopeLocal, store.KeyAuthToken, "dead-token"))

	valid, err := m.VerifyStored(context.Background())
	require.NoError(t, err)
	assert.False(t, valid)

	_, ok := storedToken(t, st)
	assert.False(t, ok, "a token that failed verification must not remain persisted")
	assert.Equal(t, StateUnauthenticated, m.State())
}

func TestVerifyStoredClearsTokenOnError(t *testing.T) {
	f := &fakeAPI{verifyErr: errors.New("boom")}
	m, st := newTestManager(t, f)
	require.NoError(t, st.Set(store.ScopeLocal, store.KeyAuthToken, "tok"))

	valid, err := m.VerifyStored(context.Background())
	require.NoError(t, err)
	assert.False(t, valid)

	_, ok := storedToken(t, st)
	assert.False(t, ok)
}

func TestVerifyStoredWithoutToken(t *testing.T) {
	f := &fakeAPI{}
	m, _ := newTestManager(t, f)

	valid, err := m.VerifyStored(context.Background())
	require.NoError(t, err)
	assert.False(t, valid)
	assert.Zero(t, f.verifyCalls)
}

func TestLogoutClearsTokenDespiteServerError(t *testing.T) {
	f := &fakeAPI{logoutErr: errors.New("500")}
	m, st := newTestManager(t, f)
	require.NoError(t, st.Set(store.ScopeLocal, store.KeyAuthToken, "tok"))

	require.NoError(t, m.Logout(context.Background()))
	assert.Equal(t, 1, f.logoutCalls)

	_, ok := storedToken(t, st)
	assert.False(t, ok, "local clear is authoritative regardless of the server")
	assert.Equal(t, StateUnauthenticated, m.State())
}

func TestDeleteAccountRequiresPassword(t *testing.T) {
	f := &fakeAPI{}
	m, _ := newTestManager(t, f)

	err := m.DeleteAccount(context.Background(), "")
	assert.ErrorIs(t, err, api.ErrValidation)
}

func TestDeleteAccountFailureKeepsToken(t *testing.T) {
	f := &fakeAPI{deleteErr: &api.ServerError{Status: 401, Message: "Invalid password"}}
	m, st := newTestManager(t, f)
	require.NoError(t, st.Set(store.ScopeLocal, store.KeyAuthToken, "tok"))

	err := m.DeleteAccount(context.Background(), "wrong")
	require.Error(t, err)

	_, ok := storedToken(t, st)
	assert.True(t, ok, "a failed deletion must not end the session")
}

func TestDeleteAccountSuccessEndsSession(t *testing.T) {
	f := &fakeAPI{}
	m, st := newTestManager(t, f)
	require.NoError(t, st.Set(store.ScopeLocal, store.KeyAuthToken, "tok"))

	require.NoError(t, m.DeleteAccount(context.Background(), "hunter2"))
	_, ok := storedToken(t, st)
	assert.False(t, ok)
}
