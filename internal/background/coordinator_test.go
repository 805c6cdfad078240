package background

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feedlens/relay/internal/bus"
	"github.com/feedlens/relay/internal/store"
)

type fakeVerifier struct {
	valid bool
	err   error
	calls int
}

func (f *fakeVerifier) Verify(ctx context.Context, token string) (bool, error) {
	f.calls++
	return f.valid, f.err
}

func newTestCoordinator(t *testing.T, v Verifier) (*Coordinator, *store.Store, *bus.Dispatcher) {
	t.Helper()
	st, err := store.Open(t.TempDir(), nil)
	require.NoError(t, err)
	d := bus.NewDispatcher(nil, nil)
	c := New(st, d, v, "https://default.example.com", nil, nil)
	c.Register()
	return c, st, d
}

func TestCheckAuth(t *testing.T) {
	_, st, d := newTestCoordinator(t, nil)

	res, err := d.Request(context.Background(), bus.ActionCheckAuth, nil)
	require.NoError(t, err)
	require.True(t, res.OK)

	var status bus.AuthStatus
	require.NoError(t, res.Decode(&status))
	assert.False(t, status.IsAuthenticated)

	require.NoError(t, st.Set(store.ScopeLocal, store.KeyAuthToken, "tok-1"))

	res, err = d.Request(context.Background(), bus.ActionCheckAuth, nil)
	require.NoError(t, err)
	require.NoError(t, res.Decode(&status))
	assert.True(t, status.IsAuthenticated)
	assert.Equal(t, "tok-1", status.Token)
}

func TestLogoutHandler(t *testing.T) {
	_, st, d := newTestCoordinator(t, nil)
	require.NoError(t, st.Set(store.ScopeLocal, store.KeyAuthToken, "tok-1"))

	res, err := d.Request(context.Background(), bus.ActionLogout, nil)
	require.NoError(t, err)
	require.True(t, res.OK)

	var result bus.LogoutResult
	require.NoError(t, res.Decode(&result))
	assert.True(t, result.Success)

	_, ok, err := st.Get(store.ScopeLocal, store.KeyAuthToken)
	require.NoError(t, err)
	assert.False(t, ok)

	// Logging out while already signed out still succeeds.
	res, err = d.Request(context.Background(), bus.ActionLogout, nil)
	require.NoError(t, err)
	assert.True(t, res.OK)
}

func TestGetConfig(t *testing.T) {
	_, st, d := newTestCoordinator(t, nil)

	res, err := d.Request(context.Background(), bus.ActionGetConfig, nil)
	require.NoError(t, err)
	require.True(t, res.OK)

	var cfg bus.ConfigPayload
	require.NoError(t, res.Decode(&cfg))
	assert.Equal(t, "https://default.example.com", cfg.APIURL, "falls back to the built-in default")

	require.NoError(t, st.Set(store.ScopeSync, store.KeyAPIURL, "https://custom.example.com"))

	res, err = d.Request(context.Background(), bus.ActionGetConfig, nil)
	require.NoError(t, err)
	require.NoError(t, res.Decode(&cfg))
	assert.Equal(t, "https://custom.example.com", cfg.APIURL, "the persisted value wins")
}

func TestInstallSeedsAPIURLOnce(t *testing.T) {
	c, st, _ := newTestCoordinator(t, nil)

	require.NoError(t, c.Install(context.Background()))
	got, ok, err := st.Get(store.ScopeSync, store.KeyAPIURL)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "https://default.example.com", got)

	// A user override must survive reinstall events.
	require.NoError(t, st.Set(store.ScopeSync, store.KeyAPIURL, "https://mine.example.com"))
	require.NoError(t, c.Install(context.Background()))
	got, _, err = st.Get(store.ScopeSync, store.KeyAPIURL)
	require.NoError(t, err)
	assert.Equal(t, "https://mine.example.com", got)
}

func TestValidateStoredTokenClearsInvalid(t *testing.T) {
	v := &fakeVerifier{valid: false}
	c, st, _ := newTestCoordinator(t, v)
	require.NoError(t, st.Set(store.ScopeLocal, store.KeyAuthToken, "dead"))

	c.ValidateStoredToken(context.Background())

	assert.Equal(t, 1, v.calls)
	_, ok, err := st.Get(store.ScopeLocal, store.KeyAuthToken)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestValidateStoredTokenKeepsValidToken(t *testing.T) {
	v := &fakeVerifier{valid: true}
	c, st, _ := newTestCoordinator(t, v)
	require.NoError(t, st.Set(store.ScopeLocal, store.KeyAuthToken, "alive"))

	c.ValidateStoredToken(context.Background())

	got, ok, err := st.Get(store.ScopeLocal, store.KeyAuthToken)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "alive", got)
}

func TestValidateStoredTokenKeepsTokenOnNetworkError(t *testing.T) {
	v := &fakeVerifier{err: errors.New("offline")}
	c, st, _ := newTestCoordinator(t, v)
	require.NoError(t, st.Set(store.ScopeLocal, store.KeyAuthToken, "tok"))

	c.ValidateStoredToken(context.Background())

	_, ok, err := st.Get(store.ScopeLocal, store.KeyAuthToken)
	require.NoError(t, err)
	assert.True(t, ok, "an unreachable server must not end the session at startup")
}

func TestValidateStoredTokenNoToken(t *testing.T) {
	v := &fakeVerifier{}
	c, _, _ := newTestCoordinator(t, v)

	c.ValidateStoredToken(context.Background())
	assert.Zero(t, v.calls)
}
