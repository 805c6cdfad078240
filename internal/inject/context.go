package inject

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/feedlens/relay/internal/bus"
	"github.com/feedlens/relay/internal/infrastructure/logging"
)

// PageContext is the content-script side of the bus: it consumes one-way
// loadFeed/restoreFeed directives and drives the injector. Directives carry
// no acknowledgment, so handling is idempotent: duplicate restores are
// no-ops and duplicate loads supersede each other.
type PageContext struct {
	injector *Injector
	sub      *bus.Subscription
	logger   *logging.Logger
	wg       sync.WaitGroup
}

// NewPageContext subscribes a page context to the dispatcher's directives.
func NewPageContext(d *bus.Dispatcher, injector *Injector, logger *logging.Logger) *PageContext {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &PageContext{
		injector: injector,
		sub:      d.Subscribe(16, bus.ActionLoadFeed, bus.ActionRestoreFeed),
		logger:   logger.Named("page"),
	}
}

// Run consumes directives until ctx ends. Teardown cancels any in-flight
// probe loop: the retry task is bound to this context's lifetime and cannot
// outlive it.
func (p *PageContext) Run(ctx context.Context) {
	defer p.sub.Close()
	defer p.wg.Wait()

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-p.sub.C():
			if !ok {
				return
			}
			p.handle(ctx, msg)
		}
	}
}

func (p *PageContext) handle(ctx context.Context, msg bus.Message) {
	switch msg.Action {
	case bus.ActionLoadFeed:
		var payload bus.LoadFeedPayload
		if err := msg.Decode(&payload); err != nil {
			p.logger.Warn("malformed loadFeed directive", zap.Error(err))
			return
		}
		// The probe loop may outlast this directive; run it without
		// blocking the directive stream.
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			err := p.injector.Load(ctx, payload.Snapshot())
			switch {
			case err == nil:
			case errors.Is(err, ErrSuperseded), errors.Is(err, context.Canceled):
				// A newer load or teardown won; nothing to report.
			default:
				p.logger.Warn("feed injection failed",
					zap.String("source", payload.Source), zap.Error(err))
			}
		}()

	case bus.ActionRestoreFeed:
		var payload bus.RestoreFeedPayload
		if err := msg.Decode(&payload); err != nil {
			p.logger.Warn("malformed restoreFeed directive", zap.Error(err))
			return
		}
		if !payload.Disable {
			return
		}
		if err := p.injector.Restore(); err != nil {
			p.logger.Warn("restore failed", zap.Error(err))
		}
	}
}
