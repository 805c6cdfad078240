// Package inject implements the page-injection pipeline: it renders a
// remote feed snapshot into a host page the system does not control, and
// tears it down again on restore.
package inject

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/feedlens/relay/internal/feed"
	"github.com/feedlens/relay/internal/infrastructure/logging"
	"github.com/feedlens/relay/internal/infrastructure/monitoring"
)

var (
	// ErrContainerNotFound means the bounded probe loop exhausted its
	// attempts without the host container appearing.
	ErrContainerNotFound = errors.New("host feed container not found")
	// ErrSuperseded means a newer load or a restore won the race; the
	// stale snapshot was discarded at apply time.
	ErrSuperseded = errors.New("snapshot superseded")
)

// Config tunes the probe loop. A zero MaxPollAttempts polls until the page
// context is torn down, preserving the eventual-success trade-off; the
// bound exists so deployments can opt out of unbounded polling.
type Config struct {
	PollInterval    time.Duration
	MaxPollAttempts int
}

// DefaultConfig matches the original fixed 1s probe with no bound.
func DefaultConfig() Config {
	return Config{PollInterval: time.Second, MaxPollAttempts: 0}
}

// Injector owns the injection pipeline for one page. It holds at most one
// live snapshot; a new load supersedes the old display state and tears the
// previous container down before injecting.
type Injector struct {
	page     Page
	cfg      Config
	renderer *Renderer
	logger   *logging.Logger
	metrics  *monitoring.Metrics

	mu      sync.Mutex // held across DOM mutation
	gen     uint64     // load generation; stale snapshots fail the apply-time check
	current *feed.Snapshot
}

// New creates an injector for page.
func New(page Page, cfg Config, logger *logging.Logger, metrics *monitoring.Metrics) *Injector {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Injector{
		page:     page,
		cfg:      cfg,
		renderer: NewRenderer(),
		logger:   logger.Named("inject"),
		metrics:  metrics,
	}
}

// Renderer exposes the injector's renderer, letting callers fix its clock.
func (inj *Injector) Renderer() *Renderer {
	return inj.renderer
}

// Load renders snap into the host page. If the host container has not been
// rendered yet it retries on the configured interval until the container
// appears, the bound (if any) is exhausted, or ctx ends. The operation is
// idempotent: re-running a load replaces the container wholesale.
func (inj *Injector) Load(ctx context.Context, snap *feed.Snapshot) error {
	if snap == nil {
		return errors.New("nil snapshot")
	}

	gen := inj.beginLoad(snap)

	attempts := 0
	for {
		attempts++
		if inj.metrics != nil {
			inj.metrics.PollAttempts.Inc()
		}

		if err := inj.tryApply(gen, snap); err == nil {
			return nil
		} else if !errors.Is(err, errNotReady) {
			return err
		}

		if inj.cfg.MaxPollAttempts > 0 && attempts >= inj.cfg.MaxPollAttempts {
			inj.logger.Warn("giving up on host container",
				zap.Int("attempts", attempts), zap.String("source", snap.SourceUser))
			return ErrContainerNotFound
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(inj.cfg.PollInterval):
		}
	}
}

// Restore removes the injected container as a single atomic operation.
// With nothing injected it is a no-op, not an error. Any in-flight load is
// superseded so its snapshot cannot apply afterwards.
func (inj *Injector) Restore() error {
	inj.mu.Lock()
	defer inj.mu.Unlock()

	inj.gen++
	inj.current = nil

	doc := inj.page.Document()
	container := doc.Find("#" + ContainerID)
	if container.Length() == 0 {
		return nil
	}

	container.Remove()
	if inj.metrics != nil {
		inj.metrics.Restores.Inc()
	}
	inj.logger.Info("restored host page")
	return nil
}

// Snapshot returns the injector's cache of the last loaded snapshot, or nil
// after a restore.
func (inj *Injector) Snapshot() *feed.Snapshot {
	inj.mu.Lock()
	defer inj.mu.Unlock()
	return inj.current
}

// errNotReady signals the probe loop to retry.
var errNotReady = errors.New("host container not ready")

func (inj *Injector) beginLoad(snap *feed.Snapshot) uint64 {
	inj.mu.Lock()
	defer inj.mu.Unlock()
	inj.gen++
	inj.current = snap
	return inj.gen
}

// tryApply probes for the host container and, when present, replaces any
// previous injected container with snap's blocks. The generation check runs
// at apply time: last-started is not guaranteed to be last-applied unless
// superseded snapshots are rejected here.
func (inj *Injector) tryApply(gen uint64, snap *feed.Snapshot) error {
	inj.mu.Lock()
	defer inj.mu.Unlock()

	if gen != inj.gen {
		if inj.metrics != nil {
			inj.metrics.StaleDrops.Inc()
		}
		return ErrSuperseded
	}

	doc := inj.page.Document()
	target := findFeed(doc)
	if target == nil {
		return errNotReady
	}

	// Exactly one container at a time: tear down the previous one first.
	doc.Find("#" + ContainerID).Remove()

	target.PrependHtml(inj.renderer.Container(snap))

	if inj.metrics != nil {
		inj.metrics.Injections.Inc()
	}
	inj.logger.Info("injected feed snapshot",
		zap.String("source", snap.SourceUser), zap.Int("tweets", len(snap.Tweets)))
	return nil
}
