package mirror

import (
	"context"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"
)

// Prober periodically checks that the upstream answers and publishes the
// result as a liveness flag.
type Prober struct {
	fetcher  *Fetcher
	url      string
	interval time.Duration
	timeout  time.Duration
	logger   *slog.Logger
	onProbe func(alive bool)

	alive atomic.Bool
}

// NewProber constructs a Prober for url. The flag starts false until the first probe.
func NewProber(fetcher *Fetcher, url string, interval, timeout time.Duration, logger *slog.Logger) *Prober {
	return &Prober{
		fetcher:  fetcher,
		url:      url,
		interval: interval,
		timeout:  timeout,
		logger:   logger,
	}
}

// OnProbe registers a callback invoked after every probe with its outcome.
func (p *Prober) OnProbe(fn func(alive bool)) {
	p.onProbe = fn
}

// Alive reports the outcome of the latest probe.
func (p *Prober) Alive() bool {
	return p.alive.Load()
}

// Run probes immediately and then on every interval until ctx is done.
func (p *Prober) Run(ctx context.Context) {
	p.Probe(ctx)
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.fetcher.RefreshDNS()
			p.Probe(ctx)
		}
	}
}

// Probe performs one HEAD request bounded by the probe timeout. Any 2xx or
// 3xx status marks the upstream reachable; everything else marks it down.
func (p *Prober) Probe(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	status, err := p.fetcher.Probe(ctx, p.url)
	alive := err == nil && status >= http.StatusOK && status < http.StatusBadRequest
	was := p.alive.Swap(alive)
	if p.logger != nil && was != alive {
		if alive {
			p.logger.Info("upstream reachable", slog.String("url", p.url), slog.Int("status", status))
		} else {
			p.logger.Warn("upstream unreachable", slog.String("url", p.url), slog.Int("status", status), slog.Any("error", err))
		}
	}
	if p.onProbe != nil {
		p.onProbe(alive)
	}
	return alive
}
