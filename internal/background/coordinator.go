// Package background implements the long-lived coordinator context. It owns
// lifecycle events, answers session queries from the other contexts, and
// hosts the bus endpoint. It has no UI.
package background

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/feedlens/relay/internal/bus"
	"github.com/feedlens/relay/internal/infrastructure/logging"
	"github.com/feedlens/relay/internal/infrastructure/monitoring"
	"github.com/feedlens/relay/internal/store"
)

// Verifier checks a token against the remote API.
type Verifier interface {
	Verify(ctx context.Context, token string) (bool, error)
}

// Coordinator is the background context. It is a secondary reader/writer of
// the session store, exposed to any context that needs session facts
// without re-deriving them.
type Coordinator struct {
	store      *store.Store
	dispatcher *bus.Dispatcher
	verifier   Verifier
	defaultURL string
	logger     *logging.Logger
	metrics    *monitoring.Metrics

	server *http.Server
}

// New creates a coordinator. defaultURL seeds the synced apiUrl key on
// first install and backs getConfig when the key is absent.
func New(st *store.Store, dispatcher *bus.Dispatcher, verifier Verifier, defaultURL string, logger *logging.Logger, metrics *monitoring.Metrics) *Coordinator {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Coordinator{
		store:      st,
		dispatcher: dispatcher,
		verifier:   verifier,
		defaultURL: defaultURL,
		logger:     logger.Named("background"),
		metrics:    metrics,
	}
}

// Register installs the coordinator's request handlers on the dispatcher.
func (c *Coordinator) Register() {
	c.dispatcher.Handle(bus.ActionCheckAuth, c.handleCheckAuth)
	c.dispatcher.Handle(bus.ActionLogout, c.handleLogout)
	c.dispatcher.Handle(bus.ActionGetConfig, c.handleGetConfig)
}

// Install runs first-install setup: it seeds the default API base URL into
// the synced scope when unset.
func (c *Coordinator) Install(ctx context.Context) error {
	_, ok, err := c.store.Get(store.ScopeSync, store.KeyAPIURL)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}
	c.logger.Info("seeding default configuration", zap.String("api_url", c.defaultURL))
	return c.store.Set(store.ScopeSync, store.KeyAPIURL, c.defaultURL)
}

// ValidateStoredToken is the startup check: if a token is persisted, verify
// it against the server and clear it when invalid. A token that fails
// verification never remains in the store. Network failures leave the token
// in place; the popup re-verifies on open.
func (c *Coordinator) ValidateStoredToken(ctx context.Context) {
	token, ok, err := c.store.Get(store.ScopeLocal, store.KeyAuthToken)
	if err != nil || !ok || token == "" {
		return
	}
	if c.verifier == nil {
		return
	}

	valid, err := c.verifier.Verify(ctx, token)
	if err != nil {
		c.logger.Warn("startup token validation failed", zap.Error(err))
		return
	}
	if !valid {
		c.logger.Info("stored token is invalid, logging out user")
		if err := c.store.Remove(store.ScopeLocal, store.KeyAuthToken); err != nil {
			c.logger.Error("failed to clear invalid token", zap.Error(err))
		}
	}
}

// Serve hosts the bus websocket endpoint plus health and metrics, blocking
// until ctx ends.
func (c *Coordinator) Serve(ctx context.Context, addr string) error {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	wsServer := bus.NewWSServer(c.dispatcher, c.logger, c.metrics)
	router.GET("/ws", wsServer.HandleConnection)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/health", func(gc *gin.Context) {
		gc.JSON(http.StatusOK, gin.H{"status": "ok", "uptime": c.metrics.Uptime().String()})
	})

	c.server = &http.Server{Addr: addr, Handler: router}

	errCh := make(chan error, 1)
	go func() {
		c.logger.Info("bus endpoint listening", zap.String("addr", addr))
		if err := c.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return c.server.Shutdown(shutdownCtx)
	}
}

func (c *Coordinator) handleCheckAuth(ctx context.Context, msg bus.Message) (any, error) {
	token, ok, err := c.store.Get(store.ScopeLocal, store.KeyAuthToken)
	if err != nil {
		return nil, err
	}
	return bus.AuthStatus{IsAuthenticated: ok && token != "", Token: token}, nil
}

func (c *Coordinator) handleLogout(ctx context.Context, msg bus.Message) (any, error) {
	if err := c.store.Remove(store.ScopeLocal, store.KeyAuthToken); err != nil {
		return nil, err
	}
	c.logger.Info("user logged out from background")
	return bus.LogoutResult{Success: true}, nil
}

func (c *Coordinator) handleGetConfig(ctx context.Context, msg bus.Message) (any, error) {
	apiURL, ok, err := c.store.Get(store.ScopeSync, store.KeyAPIURL)
	if err != nil {
		return nil, err
	}
	if !ok || apiURL == "" {
		apiURL = c.defaultURL
	}
	return bus.ConfigPayload{APIURL: apiURL}, nil
}
