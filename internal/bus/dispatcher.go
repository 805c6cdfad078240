package bus

import (
	"context"
	"fmt"
	"sync"

	"github.com/bytedance/sonic"
	"go.uber.org/zap"

	"github.com/feedlens/relay/internal/infrastructure/logging"
	"github.com/feedlens/relay/internal/infrastructure/monitoring"
)

// HandlerFunc services one request message and returns the response data.
type HandlerFunc func(ctx context.Context, msg Message) (any, error)

// Dispatcher routes messages between contexts. Request actions run a
// registered handler to completion; one-way directives fan out to
// subscribers with no acknowledgment. There is no ordering guarantee
// across concurrent messages.
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[Action]HandlerFunc
	subs     map[*Subscription]struct{}
	logger   *logging.Logger
	metrics  *monitoring.Metrics
}

// NewDispatcher creates an empty dispatcher.
func NewDispatcher(logger *logging.Logger, metrics *monitoring.Metrics) *Dispatcher {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Dispatcher{
		handlers: make(map[Action]HandlerFunc),
		subs:     make(map[*Subscription]struct{}),
		logger:   logger.Named("bus"),
		metrics:  metrics,
	}
}

// Handle registers the handler for a request action, replacing any previous one.
func (d *Dispatcher) Handle(action Action, fn HandlerFunc) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[action] = fn
}

// Request sends a request message and waits for its response. The handler
// always runs to completion: if ctx is cancelled first, the response is
// discarded and the callee never notices (fire-and-forget from its side).
func (d *Dispatcher) Request(ctx context.Context, action Action, payload any) (Response, error) {
	msg, err := NewMessage(action, payload)
	if err != nil {
		return Response{}, err
	}

	resCh := make(chan Response, 1)
	go func() {
		resCh <- d.Deliver(context.WithoutCancel(ctx), msg)
	}()

	select {
	case res := <-resCh:
		return res, nil
	case <-ctx.Done():
		return Response{}, ctx.Err()
	}
}

// Deliver runs the handler for msg synchronously and builds the response.
// Unrecognized actions get an explicit error response rather than being
// silently dropped.
func (d *Dispatcher) Deliver(ctx context.Context, msg Message) Response {
	if _, ok := ParseAction(string(msg.Action)); !ok {
		d.logger.Warn("unknown action", zap.String("action", string(msg.Action)))
		if d.metrics != nil {
			d.metrics.BusUnknown.Inc()
		}
		return Response{ID: msg.ID, OK: false, Error: UnknownActionError}
	}

	d.mu.RLock()
	fn, ok := d.handlers[msg.Action]
	d.mu.RUnlock()
	if !ok {
		return Response{ID: msg.ID, OK: false, Error: fmt.Sprintf("no handler for action %q", msg.Action)}
	}

	if d.metrics != nil {
		d.metrics.BusMessages.WithLabelValues(string(msg.Action)).Inc()
	}

	data, err := fn(ctx, msg)
	if err != nil {
		return Response{ID: msg.ID, OK: false, Error: err.Error()}
	}

	res := Response{ID: msg.ID, OK: true}
	if data != nil {
		encoded, err := sonic.Marshal(data)
		if err != nil {
			return Response{ID: msg.ID, OK: false, Error: fmt.Sprintf("failed to encode response: %v", err)}
		}
		res.Data = encoded
	}
	return res
}

// Publish fans a one-way directive out to every matching subscriber. Slow
// subscribers drop the message; consumers are required to be idempotent
// against duplicated or missing directives, so delivery is best-effort.
func (d *Dispatcher) Publish(action Action, payload any) error {
	msg, err := NewMessage(action, payload)
	if err != nil {
		return err
	}

	if d.metrics != nil {
		d.metrics.BusDirective.WithLabelValues(string(action)).Inc()
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	for sub := range d.subs {
		if !sub.wants(action) {
			continue
		}
		select {
		case sub.ch <- msg:
		default:
			d.logger.Warn("dropping directive for slow subscriber",
				zap.String("action", string(action)))
		}
	}
	return nil
}

// Subscribe registers interest in a set of directive actions. The returned
// subscription's channel closes when Close is called.
func (d *Dispatcher) Subscribe(buffer int, actions ...Action) *Subscription {
	if buffer <= 0 {
		buffer = 16
	}
	sub := &Subscription{
		ch:      make(chan Message, buffer),
		actions: make(map[Action]struct{}, len(actions)),
		d:       d,
	}
	for _, a := range actions {
		sub.actions[a] = struct{}{}
	}

	d.mu.Lock()
	d.subs[sub] = struct{}{}
	d.mu.Unlock()
	return sub
}

// Subscription is one consumer's view of the directive stream.
type Subscription struct {
	ch      chan Message
	actions map[Action]struct{}
	d       *Dispatcher
	once    sync.Once
}

// C returns the message channel.
func (s *Subscription) C() <-chan Message {
	return s.ch
}

// Close detaches the subscription and closes its channel.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.d.mu.Lock()
		delete(s.d.subs, s)
		s.d.mu.Unlock()
		close(s.ch)
	})
}

func (s *Subscription) wants(action Action) bool {
	_, ok := s.actions[action]
	return ok
}
