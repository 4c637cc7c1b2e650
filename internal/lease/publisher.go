package lease

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/kneutral-org/checkconfig/internal/metrics"
)

// Publisher keeps competing for a lease and reports whether this instance
// may publish. Renewal should happen well within the lease TTL.
type Publisher struct {
	lease  Lease
	logger zerolog.Logger

	active     atomic.Bool
	renewEvery time.Duration

	onActive   func()
	onInactive func()

	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// PublisherOption configures a Publisher.
type PublisherOption func(*Publisher)

// WithRenewInterval sets how often the lease is renewed or retried.
func WithRenewInterval(d time.Duration) PublisherOption {
	return func(p *Publisher) {
		p.renewEvery = d
	}
}

// WithOnActive sets a callback run when this instance starts publishing.
func WithOnActive(fn func()) PublisherOption {
	return func(p *Publisher) {
		p.onActive = fn
	}
}

// WithOnInactive sets a callback run when this instance stops publishing.
func WithOnInactive(fn func()) PublisherOption {
	return func(p *Publisher) {
		p.onInactive = fn
	}
}

// NewPublisher creates a publisher competing for lease.
func NewPublisher(lease Lease, logger zerolog.Logger, opts ...PublisherOption) *Publisher {
	p := &Publisher{
		lease:      lease,
		logger:     logger.With().Str("component", "publisher-lease").Logger(),
		renewEvery: 10 * time.Second,
		stopCh:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Start runs the election loop until ctx is done or Stop is called.
func (p *Publisher) Start(ctx context.Context) {
	p.wg.Add(1)
	go p.run(ctx)
}

// Stop ends the loop and releases the lease if held.
func (p *Publisher) Stop(ctx context.Context) {
	p.stopOnce.Do(func() { close(p.stopCh) })
	p.wg.Wait()

	if !p.active.Load() {
		return
	}
	if err := p.lease.Release(ctx); err != nil {
		p.logger.Error().Err(err).Msg("failed to release lease on shutdown")
	} else {
		p.logger.Info().Msg("released lease on shutdown")
	}
	p.setActive(false)
}

// Active reports whether this instance currently publishes.
func (p *Publisher) Active() bool {
	return p.active.Load()
}

func (p *Publisher) run(ctx context.Context) {
	defer p.wg.Done()

	ticker := time.NewTicker(p.renewEvery)
	defer ticker.Stop()

	p.step(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stopCh:
			return
		case <-ticker.C:
			p.step(ctx)
		}
	}
}

func (p *Publisher) step(ctx context.Context) {
	if p.active.Load() {
		err := p.lease.Renew(ctx)
		if err == nil {
			p.logger.Debug().Msg("lease renewed")
			return
		}
		p.logger.Warn().Err(err).Msg("lease lost, no longer publishing")
		p.setActive(false)
	}

	ok, err := p.lease.TryAcquire(ctx)
	if err != nil {
		p.logger.Error().Err(err).Msg("failed to acquire lease")
		return
	}
	if !ok {
		p.logger.Debug().Msg("another instance is publishing")
		return
	}
	p.logger.Info().Msg("lease acquired, publishing")
	p.setActive(true)
}

func (p *Publisher) setActive(active bool) {
	if p.active.Swap(active) == active {
		return
	}
	metrics.SetPublisherActive(active)
	if active && p.onActive != nil {
		p.onActive()
	}
	if !active && p.onInactive != nil {
		p.onInactive()
	}
}
