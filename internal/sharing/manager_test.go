package sharing

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feedlens/relay/internal/api"
)

// fakeServer keeps the authorization edges in memory so the manager's
// refresh-after-mutation behavior can be observed end to end.
type fakeServer struct {
	grantees []api.User
	grantors []api.User

	shareCalls   int
	unshareCalls int
}

func (f *fakeServer) ShareFeed(ctx context.Context, token, username string) (string, error) {
	f.shareCalls++
	f.grantees = append(f.grantees, api.User{Username: username})
	return fmt.Sprintf("Feed shared with %s", username), nil
}

func (f *fakeServer) UnshareFeed(ctx context.Context, token, username string) (string, error) {
	f.unshareCalls++
	kept := f.grantees[:0]
	for _, u := range f.grantees {
		if u.Username != username {
			kept = append(kept, u)
		}
	}
	f.grantees = kept
	return fmt.Sprintf("Feed unshared with %s", username), nil
}

func (f *fakeServer) SharedUsers(ctx context.Context, token string) ([]api.User, error) {
	return append([]api.User(nil), f.grantees...), nil
}

func (f *fakeServer) FetchUsers(ctx context.Context, token string) ([]api.User, error) {
	return append([]api.User(nil), f.grantors...), nil
}

type staticToken string

func (s staticToken) Token() (string, bool) { return string(s), s != "" }

func TestShareThenUnshare(t *testing.T) {
	srv := &fakeServer{grantors: []api.User{{Username: "carol"}}}
	m := NewManager(srv, staticToken("tok"), nil)

	msg, err := m.Share(context.Background(), "bob")
	require.NoError(t, err)
	assert.Equal(t, "Feed shared with bob", msg)

	lists, err := m.Refresh(context.Background())
	require.NoError(t, err)
	assert.True(t, Contains(lists.GrantedByMe, "bob"))
	assert.True(t, Contains(lists.GrantedToMe, "carol"), "the other direction is untouched")

	msg, err = m.Unshare(context.Background(), "bob", true)
	require.NoError(t, err)
	assert.Equal(t, "Feed unshared with bob", msg)

	lists, err = m.Refresh(context.Background())
	require.NoError(t, err)
	assert.False(t, Contains(lists.GrantedByMe, "bob"))
}

func TestUnshareRequiresConfirmation(t *testing.T) {
	srv := &fakeServer{grantees: []api.User{{Username: "bob"}}}
	m := NewManager(srv, staticToken("tok"), nil)

	_, err := m.Unshare(context.Background(), "bob", false)
	assert.ErrorIs(t, err, ErrConfirmationRequired)
	assert.Zero(t, srv.unshareCalls, "an unconfirmed revocation must not reach the server")
}

func TestShareValidation(t *testing.T) {
	srv := &fakeServer{}
	m := NewManager(srv, staticToken("tok"), nil)

	_, err := m.Share(context.Background(), "")
	assert.ErrorIs(t, err, api.ErrValidation)
	assert.Zero(t, srv.shareCalls)
}

func TestOperationsRequireSession(t *testing.T) {
	srv := &fakeServer{}
	m := NewManager(srv, staticToken(""), nil)

	_, err := m.Share(context.Background(), "bob")
	assert.ErrorIs(t, err, api.ErrUnauthorized)

	_, err = m.Unshare(context.Background(), "bob", true)
	assert.ErrorIs(t, err, api.ErrUnauthorized)

	_, err = m.Refresh(context.Background())
	assert.ErrorIs(t, err, api.ErrUnauthorized)
}

func TestRefreshReturnsBothViews(t *testing.T) {
	srv := &fakeServer{
		grantees: []api.User{{Username: "bob"}},
		grantors: []api.User{{Username: "carol"}, {Username: "dave"}},
	}
	m := NewManager(srv, staticToken("tok"), nil)

	lists, err := m.Refresh(context.Background())
	require.NoError(t, err)
	assert.Len(t, lists.GrantedByMe, 1)
	assert.Len(t, lists.GrantedToMe, 2)
}

func TestContains(t *testing.T) {
	users := []api.User{{Username: "bob"}, {Username: "carol"}}
	assert.True(t, Contains(users, "bob"))
	assert.False(t, Contains(users, "dave"))
	assert.False(t, Contains(nil, "bob"))
}
