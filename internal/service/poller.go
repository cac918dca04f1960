package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/navikt/roomwait/internal/source"
)

// SnapshotSource provides the externally observed occupancy state
type SnapshotSource interface {
	FetchSnapshot(ctx context.Context) ([]source.RoomReport, error)
}

// Poller drives the reconcile-then-dispatch sequence at a fixed interval.
// The next tick is armed only after the previous one completes, so two
// ticks can never overlap and a waitlist entry is processed at most once
// per tick.
type Poller struct {
	source     SnapshotSource
	reconciler *Reconciler
	dispatcher *Dispatcher
	interval   time.Duration
	logger     *zap.Logger
	onTick     func(context.Context)
}

// NewPoller creates a Poller over the given source and tick components
func NewPoller(src SnapshotSource, reconciler *Reconciler, dispatcher *Dispatcher, interval time.Duration, logger *zap.Logger) *Poller {
	return &Poller{
		source:     src,
		reconciler: reconciler,
		dispatcher: dispatcher,
		interval:   interval,
		logger:     logger,
	}
}

// OnTick registers a callback invoked after every completed tick, e.g. to
// publish the refreshed room status to stream subscribers
func (p *Poller) OnTick(fn func(context.Context)) {
	p.onTick = fn
}

// Run executes ticks until ctx is cancelled
func (p *Poller) Run(ctx context.Context) {
	p.logger.Info("starting poll loop", zap.Duration("interval", p.interval))

	timer := time.NewTimer(p.interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("poll loop stopped")
			return
		case <-timer.C:
			p.Tick(ctx)
			// re-arm only after the tick has fully completed
			timer.Reset(p.interval)
		}
	}
}

// Tick runs one reconcile-then-dispatch pass. A failed snapshot fetch
// skips reconciliation for this tick; dispatch still runs against the
// last-known persisted state.
func (p *Poller) Tick(ctx context.Context) {
	snapshot, err := p.source.FetchSnapshot(ctx)
	if err != nil {
		p.logger.Warn("snapshot unavailable, skipping reconciliation", zap.Error(err))
	} else {
		applied := p.reconciler.Reconcile(ctx, snapshot)
		p.logger.Debug("reconciliation complete",
			zap.Int("reported", len(snapshot)),
			zap.Int("applied", applied))
	}

	issued := p.dispatcher.Dispatch(ctx)
	if issued > 0 {
		p.logger.Info("waitlist dispatch complete", zap.Int("notifications", issued))
	}

	if p.onTick != nil {
		p.onTick(ctx)
	}
}
