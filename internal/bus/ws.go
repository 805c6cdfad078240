package bus

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/feedlens/relay/internal/infrastructure/logging"
	"github.com/feedlens/relay/internal/infrastructure/monitoring"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// The endpoint binds to loopback; contexts on this machine only.
		return true
	},
}

// WSServer exposes a dispatcher over a websocket endpoint so contexts
// running in other processes attach to the same bus as in-process ones.
type WSServer struct {
	dispatcher *Dispatcher
	logger     *logging.Logger
	metrics    *monitoring.Metrics
}

// NewWSServer creates a websocket bus endpoint backed by dispatcher.
func NewWSServer(dispatcher *Dispatcher, logger *logging.Logger, metrics *monitoring.Metrics) *WSServer {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &WSServer{dispatcher: dispatcher, logger: logger.Named("bus.ws"), metrics: metrics}
}

// HandleConnection upgrades the request and services bus frames until the
// peer disconnects. Requests are answered on the same connection;
// directives are published with no acknowledgment.
func (s *WSServer) HandleConnection(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	if s.metrics != nil {
		s.metrics.BusConns.Inc()
		defer s.metrics.BusConns.Dec()
	}

	var writeMu sync.Mutex
	// Handlers run to completion even if the peer disconnects mid-flight;
	// only the response is discarded. Same contract as the in-process path.
	reqCtx := context.WithoutCancel(c.Request.Context())

	for {
		var msg Message
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Warn("websocket read error", zap.Error(err))
			}
			return
		}

		if msg.Action.IsDirective() {
			if err := s.dispatcher.Publish(msg.Action, msg.Payload); err != nil {
				s.logger.Warn("failed to publish directive", zap.Error(err))
			}
			continue
		}

		// Each request is independent; answer concurrently so one slow
		// handler does not serialize the connection.
		go func(msg Message) {
			res := s.dispatcher.Deliver(reqCtx, msg)
			writeMu.Lock()
			defer writeMu.Unlock()
			if err := conn.WriteJSON(res); err != nil {
				// Peer gone mid-flight; response is discarded.
				s.logger.Debug("discarding response for closed connection",
					zap.String("action", string(msg.Action)))
			}
		}(msg)
	}
}

// WSClient is a remote context's handle on the bus.
type WSClient struct {
	conn    *websocket.Conn
	logger  *logging.Logger
	writeMu sync.Mutex

	done chan struct{} // closed once the connection is torn down

	mu      sync.Mutex
	pending map[string]chan Response
	closed  bool
}

// DialWS connects to a websocket bus endpoint.
func DialWS(ctx context.Context, url string, logger *logging.Logger) (*WSClient, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to dial bus: %w", err)
	}
	c := &WSClient{
		conn:    conn,
		logger:  logger.Named("bus.client"),
		done:    make(chan struct{}),
		pending: make(map[string]chan Response),
	}
	go c.readLoop()
	return c, nil
}

// Request sends a request frame and waits for the correlated response. If
// ctx ends first the eventual response is dropped on arrival.
func (c *WSClient) Request(ctx context.Context, action Action, payload any) (Response, error) {
	msg, err := NewMessage(action, payload)
	if err != nil {
		return Response{}, err
	}

	resCh := make(chan Response, 1)
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return Response{}, fmt.Errorf("bus connection closed")
	}
	c.pending[msg.ID] = resCh
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, msg.ID)
		c.mu.Unlock()
	}()

	if err := c.write(msg); err != nil {
		return Response{}, err
	}

	select {
	case res := <-resCh:
		return res, nil
	case <-c.done:
		return Response{}, fmt.Errorf("bus connection closed")
	case <-ctx.Done():
		return Response{}, ctx.Err()
	}
}

// Publish sends a one-way directive. No response is expected.
func (c *WSClient) Publish(action Action, payload any) error {
	msg, err := NewMessage(action, payload)
	if err != nil {
		return err
	}
	return c.write(msg)
}

// Close tears the connection down and fails any pending requests.
func (c *WSClient) Close() error {
	c.markClosed()
	return c.conn.Close()
}

// markClosed flips the closed flag and releases every pending waiter.
func (c *WSClient) markClosed() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.done)
	}
}

func (c *WSClient) write(msg Message) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteJSON(msg)
}

func (c *WSClient) readLoop() {
	for {
		var res Response
		if err := c.conn.ReadJSON(&res); err != nil {
			c.markClosed()
			return
		}
		c.mu.Lock()
		ch, ok := c.pending[res.ID]
		c.mu.Unlock()
		if ok {
			select {
			case ch <- res:
			default:
			}
		} else {
			c.logger.Debug("dropping uncorrelated response", zap.String("id", res.ID))
		}
	}
}
