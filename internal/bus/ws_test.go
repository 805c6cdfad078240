package bus

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBusEndpoint(t *testing.T, d *Dispatcher) *WSClient {
	t.Helper()
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/ws", NewWSServer(d, nil, nil).HandleConnection)

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	client, err := DialWS(context.Background(), url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	return client
}

func TestWSRequestRoundtrip(t *testing.T) {
	d := NewDispatcher(nil, nil)
	d.Handle(ActionGetConfig, func(ctx context.Context, msg Message) (any, error) {
		return ConfigPayload{APIURL: "https://api.example.com"}, nil
	})
	client := newBusEndpoint(t, d)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	res, err := client.Request(ctx, ActionGetConfig, nil)
	require.NoError(t, err)
	require.True(t, res.OK)

	var cfg ConfigPayload
	require.NoError(t, res.Decode(&cfg))
	assert.Equal(t, "https://api.example.com", cfg.APIURL)
}

func TestWSUnknownActionRoundtrip(t *testing.T) {
	d := NewDispatcher(nil, nil)
	client := newBusEndpoint(t, d)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	res, err := client.Request(ctx, Action("bogus"), nil)
	require.NoError(t, err)
	assert.False(t, res.OK)
	assert.Equal(t, UnknownActionError, res.Error)
}

func TestWSDirectiveReachesSubscribers(t *testing.T) {
	d := NewDispatcher(nil, nil)
	sub := d.Subscribe(4, ActionRestoreFeed)
	defer sub.Close()
	client := newBusEndpoint(t, d)

	require.NoError(t, client.Publish(ActionRestoreFeed, RestoreFeedPayload{Disable: true}))

	select {
	case msg := <-sub.C():
		var payload RestoreFeedPayload
		require.NoError(t, msg.Decode(&payload))
		assert.True(t, payload.Disable)
	case <-time.After(5 * time.Second):
		t.Fatal("directive should fan out through the endpoint")
	}
}

func TestWSConcurrentRequests(t *testing.T) {
	d := NewDispatcher(nil, nil)
	d.Handle(ActionCheckAuth, func(ctx context.Context, msg Message) (any, error) {
		time.Sleep(10 * time.Millisecond)
		return AuthStatus{IsAuthenticated: false}, nil
	})
	d.Handle(ActionGetConfig, func(ctx context.Context, msg Message) (any, error) {
		return ConfigPayload{APIURL: "x"}, nil
	})
	client := newBusEndpoint(t, d)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// The slow checkAuth must not serialize the fast getConfig behind it.
	errs := make(chan error, 2)
	go func() {
		_, err := client.Request(ctx, ActionCheckAuth, nil)
		errs <- err
	}()
	go func() {
		_, err := client.Request(ctx, ActionGetConfig, nil)
		errs <- err
	}()
	for i := 0; i < 2; i++ {
		require.NoError(t, <-errs)
	}
}

func TestWSHandlerSurvivesPeerDisconnect(t *testing.T) {
	d := NewDispatcher(nil, nil)
	ctxErrs := make(chan error, 1)
	d.Handle(ActionLogout, func(ctx context.Context, msg Message) (any, error) {
		time.Sleep(50 * time.Millisecond)
		ctxErrs <- ctx.Err()
		return LogoutResult{Success: true}, nil
	})
	client := newBusEndpoint(t, d)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	go client.Request(ctx, ActionLogout, nil)

	// Drop the connection while the handler is still running.
	time.Sleep(10 * time.Millisecond)
	client.Close()

	select {
	case err := <-ctxErrs:
		assert.NoError(t, err, "an in-flight handler runs to completion after the peer disconnects")
	case <-time.After(5 * time.Second):
		t.Fatal("handler should still run after the peer disconnects")
	}
}

func TestWSCloseFailsPendingRequests(t *testing.T) {
	d := NewDispatcher(nil, nil)
	d.Handle(ActionCheckAuth, func(ctx context.Context, msg Message) (any, error) {
		time.Sleep(time.Second)
		return AuthStatus{}, nil
	})
	client := newBusEndpoint(t, d)

	errs := make(chan error, 1)
	go func() {
		_, err := client.Request(context.Background(), ActionCheckAuth, nil)
		errs <- err
	}()
	time.Sleep(20 * time.Millisecond)

	start := time.Now()
	require.NoError(t, client.Close())

	select {
	case err := <-errs:
		require.Error(t, err)
		assert.Contains(t, err.Error(), "bus connection closed")
		assert.Less(t, time.Since(start), 500*time.Millisecond,
			"pending requests fail when the connection closes, not when the handler finishes")
	case <-time.After(5 * time.Second):
		t.Fatal("pending request should fail once the connection closes")
	}
}
