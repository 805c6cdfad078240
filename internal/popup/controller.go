// Package popup implements the user-facing controller context: the view
// state machine, the operation surface behind the popup's forms and
// buttons, and the transient notice banner.
package popup

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"go.uber.org/zap"

	"github.com/feedlens/relay/internal/api"
	"github.com/feedlens/relay/internal/bus"
	"github.com/feedlens/relay/internal/cookies"
	"github.com/feedlens/relay/internal/feed"
	"github.com/feedlens/relay/internal/infrastructure/logging"
	"github.com/feedlens/relay/internal/infrastructure/monitoring"
	"github.com/feedlens/relay/internal/session"
	"github.com/feedlens/relay/internal/sharing"
)

// View names the popup's exclusive panels.
type View string

const (
	ViewLogin    View = "login"
	ViewRegister View = "register"
	ViewMain     View = "main"
)

// Feed is the subset of the remote client the controller uses directly;
// session and sharing concerns go through their managers.
type Feed interface {
	FetchFeed(ctx context.Context, token, username string) (*feed.Snapshot, int, error)
	SaveCookies(ctx context.Context, token string, cookies map[string]string) error
}

// Controller drives the popup. Every open starts from persisted state, not
// from the previous open's in-memory state: the popup context is torn down
// whenever it closes.
type Controller struct {
	session    *session.Manager
	sharing    *sharing.Manager
	feed       Feed
	dispatcher *bus.Dispatcher
	notices    *NoticeCenter
	logger     *logging.Logger
	metrics    *monitoring.Metrics

	mu           sync.Mutex
	view         View
	lists        sharing.Lists
	activeSource string
}

// NewController wires a controller. It starts on the login view; Open
// decides the real initial view from the stored session.
func NewController(sess *session.Manager, shr *sharing.Manager, remote Feed, dispatcher *bus.Dispatcher, logger *logging.Logger, metrics *monitoring.Metrics) *Controller {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Controller{
		session:    sess,
		sharing:    shr,
		feed:       remote,
		dispatcher: dispatcher,
		notices:    NewNoticeCenter(),
		logger:     logger.Named("popup"),
		metrics:    metrics,
	}
}

// Notices exposes the banner slot for the rendering layer.
func (c *Controller) Notices() *NoticeCenter { return c.notices }

// View returns the active panel.
func (c *Controller) View() View {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.view
}

// Lists returns the last fetched authorization views.
func (c *Controller) Lists() sharing.Lists {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lists
}

// ActiveSource returns the username whose feed is currently injected, if
// any.
func (c *Controller) ActiveSource() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.activeSource
}

// ShowRegister switches to the registration panel.
func (c *Controller) ShowRegister() { c.setView(ViewRegister) }

// ShowLogin switches to the login panel.
func (c *Controller) ShowLogin() { c.setView(ViewLogin) }

// Open runs the popup-open sequence: verify any stored token against the
// server, land on the main view with fresh lists when it holds, land on the
// login view otherwise. A dead token never yields the main view.
func (c *Controller) Open(ctx context.Context) error {
	c.notices.SetLoading(true)
	defer c.notices.SetLoading(false)

	valid, err := c.session.VerifyStored(ctx)
	if err != nil {
		c.logger.Warn("token verification failed on open", zap.Error(err))
		c.setView(ViewLogin)
		return err
	}
	if !valid {
		c.setView(ViewLogin)
		return nil
	}

	c.refreshLists(ctx)
	c.setView(ViewMain)
	return nil
}

// Login authenticates and, on success, lands on the main view with fresh
// lists.
func (c *Controller) Login(ctx context.Context, username, password string) error {
	c.notices.SetLoading(true)
	defer c.notices.SetLoading(false)

	if err := c.session.Login(ctx, username, password); err != nil {
		return c.fail(err)
	}

	c.refreshLists(ctx)
	c.setView(ViewMain)
	c.notices.Success("Logged in successfully!")
	return nil
}

// Register creates an account and treats success as a login.
func (c *Controller) Register(ctx context.Context, username, email, password, confirmPassword string) error {
	c.notices.SetLoading(true)
	defer c.notices.SetLoading(false)

	if err := c.session.Register(ctx, username, email, password, confirmPassword); err != nil {
		return c.fail(err)
	}

	c.refreshLists(ctx)
	c.setView(ViewMain)
	c.notices.Success("Account created successfully!")
	return nil
}

// Logout ends the session. The stored token is cleared even when the
// server call fails, any injected feed is torn down, and the popup lands
// on the login view.
func (c *Controller) Logout(ctx context.Context) error {
	err := c.session.Logout(ctx)

	c.RestoreFeed()
	c.mu.Lock()
	c.lists = sharing.Lists{}
	c.mu.Unlock()
	c.setView(ViewLogin)

	if err != nil {
		return c.fail(err)
	}
	c.notices.Success("Logged out")
	return nil
}

// DeleteAccount permanently removes the account after password
// re-authentication, then behaves like a logout.
func (c *Controller) DeleteAccount(ctx context.Context, password string) error {
	c.notices.SetLoading(true)
	defer c.notices.SetLoading(false)

	if err := c.session.DeleteAccount(ctx, password); err != nil {
		return c.fail(err)
	}

	c.RestoreFeed()
	c.mu.Lock()
	c.lists = sharing.Lists{}
	c.mu.Unlock()
	c.setView(ViewLogin)
	c.notices.Success("Account deleted")
	return nil
}

// Profile fetches the signed-in user's profile.
func (c *Controller) Profile(ctx context.Context) (*api.Profile, error) {
	profile, err := c.session.Profile(ctx)
	if err != nil {
		return nil, c.fail(err)
	}
	return profile, nil
}

// ShareFeed grants username access to the caller's feed and refreshes both
// list views. A refresh failure after the grant committed is logged, not
// surfaced: the share succeeded and the user is told so.
func (c *Controller) ShareFeed(ctx context.Context, username string) error {
	c.notices.SetLoading(true)
	defer c.notices.SetLoading(false)

	msg, err := c.sharing.Share(ctx, username)
	if err != nil {
		return c.fail(err)
	}

	c.refreshLists(ctx)
	c.notices.Success(msg)
	return nil
}

// UnshareFeed revokes username's access. The revocation is irrecoverable
// from this side, so it requires explicit confirmation; an unconfirmed call
// returns sharing.ErrConfirmationRequired without touching the network.
func (c *Controller) UnshareFeed(ctx context.Context, username string, confirmed bool) error {
	msg, err := c.sharing.Unshare(ctx, username, confirmed)
	if errors.Is(err, sharing.ErrConfirmationRequired) {
		return err
	}
	if err != nil {
		return c.fail(err)
	}

	c.refreshLists(ctx)
	c.notices.Success(msg)
	return nil
}

// LoadFeed fetches username's feed snapshot and hands it to the page
// context as a one-way directive. The directive carries no acknowledgment,
// so success is reported optimistically once the snapshot is dispatched.
func (c *Controller) LoadFeed(ctx context.Context, username string) error {
	token, ok := c.session.Token()
	if !ok {
		return c.fail(api.ErrUnauthorized)
	}

	c.notices.SetLoading(true)
	defer c.notices.SetLoading(false)

	snap, count, err := c.feed.FetchFeed(ctx, token, username)
	if err != nil {
		return c.fail(err)
	}

	payload := bus.LoadFeedPayload{Tweets: snap.Tweets, Source: snap.SourceUser}
	if err := c.dispatcher.Publish(bus.ActionLoadFeed, payload); err != nil {
		return c.fail(err)
	}

	c.mu.Lock()
	c.activeSource = snap.SourceUser
	c.mu.Unlock()
	c.notices.Success(fmt.Sprintf("Loaded %d tweets from @%s", count, snap.SourceUser))
	return nil
}

// RestoreFeed directs the page context to remove any injected content and
// show the host page's own feed again. Restoring with nothing injected is
// harmless.
func (c *Controller) RestoreFeed() {
	if err := c.dispatcher.Publish(bus.ActionRestoreFeed, bus.RestoreFeedPayload{Disable: true}); err != nil {
		c.logger.Warn("restore directive dropped", zap.Error(err))
	}
	c.mu.Lock()
	c.activeSource = ""
	c.mu.Unlock()
}

// PushCookies harvests the site credential cookies from jar and uploads
// them. An incomplete bundle is rejected before any network attempt.
func (c *Controller) PushCookies(ctx context.Context, jar http.CookieJar) error {
	token, ok := c.session.Token()
	if !ok {
		return c.fail(api.ErrUnauthorized)
	}

	bundle, err := cookies.Extract(jar)
	if err != nil {
		return c.fail(err)
	}

	c.notices.SetLoading(true)
	defer c.notices.SetLoading(false)

	if err := c.feed.SaveCookies(ctx, token, bundle); err != nil {
		return c.fail(err)
	}
	c.notices.Success("Cookies saved successfully!")
	return nil
}

// RefreshLists re-fetches both authorization views. On failure the previous
// lists are kept; stale data beats an empty panel.
func (c *Controller) RefreshLists(ctx context.Context) {
	c.refreshLists(ctx)
}

func (c *Controller) refreshLists(ctx context.Context) {
	lists, err := c.sharing.Refresh(ctx)
	if err != nil {
		c.logger.Warn("list refresh failed, keeping previous lists", zap.Error(err))
		return
	}
	c.mu.Lock()
	c.lists = lists
	c.mu.Unlock()
}

func (c *Controller) setView(v View) {
	c.mu.Lock()
	c.view = v
	c.mu.Unlock()
}

// fail maps an operation error onto the banner: structured server errors
// surface their message verbatim, transport failures surface a generic
// connectivity message, local validation errors surface as written.
func (c *Controller) fail(err error) error {
	if se, ok := api.IsServerError(err); ok {
		c.notices.Error(se.Message)
		return err
	}
	if errors.Is(err, api.ErrNetwork) {
		c.notices.Error("Network error. Please try again.")
		return err
	}
	c.notices.Error(err.Error())
	return err
}
