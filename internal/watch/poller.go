package watch

import (
	"context"
	"log/slog"
	"math/rand"
	"time"
)

// TickFunc performs one refresh
type TickFunc func(ctx context.Context) error

// Config holds poller settings
type Config struct {
	Interval   time.Duration
	MaxRetries int
	// BaseBackoff is the first retry delay, doubled per attempt and
	// capped at Interval. Default: 1s
	BaseBackoff time.Duration
	// IsFatal stops the poller when it returns true for a tick error
	IsFatal func(error) bool
	// OnTick is called after every cycle with its final error
	OnTick func(err error)
}

// Poller refreshes a view on a fixed interval. A failed tick is retried
// with jittered exponential backoff up to MaxRetries times before the
// poller waits for the next interval.
type Poller struct {
	cfg    Config
	tick   TickFunc
	logger *slog.Logger
	rand   *rand.Rand
	sleep  func(ctx context.Context, d time.Duration) bool
}

// New creates a poller
func New(cfg Config, tick TickFunc, logger *slog.Logger) *Poller {
	if cfg.Interval <= 0 {
		cfg.Interval = 15 * time.Second
	}
	if cfg.BaseBackoff <= 0 {
		cfg.BaseBackoff = time.Second
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	return &Poller{
		cfg:    cfg,
		tick:   tick,
		logger: logger.With("component", "watch"),
		rand:   rand.New(rand.NewSource(time.Now().UnixNano())),
		sleep:  sleepCtx,
	}
}

// Run ticks immediately and then every interval until ctx is done or a
// tick fails fatally. It returns ctx.Err() or the fatal error.
func (p *Poller) Run(ctx context.Context) error {
	p.logger.Info("watch started", "interval", p.cfg.Interval, "max_retries", p.cfg.MaxRetries)
	defer p.logger.Info("watch stopped")

	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	for {
		err := p.cycle(ctx)
		if p.cfg.OnTick != nil && ctx.Err() == nil {
			p.cfg.OnTick(err)
		}
		if err != nil && p.fatal(err) {
			return err
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// cycle runs one tick with retries and returns the last error
func (p *Poller) cycle(ctx context.Context) error {
	var err error
	for attempt := 0; attempt <= p.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			d := p.backoff(attempt)
			p.logger.Debug("retrying refresh", "attempt", attempt, "delay", d, "error", err)
			if !p.sleep(ctx, d) {
				return ctx.Err()
			}
		}

		err = p.tick(ctx)
		if err == nil || p.fatal(err) || ctx.Err() != nil {
			return err
		}
	}

	p.logger.Warn("refresh failed", "attempts", p.cfg.MaxRetries+1, "error", err)
	return err
}

func (p *Poller) fatal(err error) bool {
	return p.cfg.IsFatal != nil && p.cfg.IsFatal(err)
}

// backoff returns the delay before retry attempt (1-based): half of the
// capped exponential delay plus up to the other half at random
func (p *Poller) backoff(attempt int) time.Duration {
	d := p.cfg.BaseBackoff
	for i := 1; i < attempt && d < p.cfg.Interval; i++ {
		d *= 2
	}
	if d > p.cfg.Interval {
		d = p.cfg.Interval
	}
	half := d / 2
	if half <= 0 {
		return d
	}
	return half + time.Duration(p.rand.Int63n(int64(half)+1))
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
