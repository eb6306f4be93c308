package mirror

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/depot-pkg/depot/internal/catalog"
	"github.com/depot-pkg/depot/internal/observability"
)

var (
	// ErrDisabled is returned when mirroring is switched off.
	ErrDisabled = errors.New("mirror: mirroring disabled")
	// ErrUnreachable is returned while the upstream is considered down.
	ErrUnreachable = errors.New("mirror: upstream unreachable")
	// ErrNotFound is returned when the upstream does not have the artifact.
	ErrNotFound = errors.New("mirror: artifact not found upstream")
	// ErrUpstream wraps every other upstream-side failure: timeouts, dial
	// errors, unexpected statuses and interrupted bodies.
	ErrUpstream = errors.New("mirror: upstream failure")
)

// Writer persists a downloaded artifact. catalog.Storage satisfies it.
type Writer interface {
	Write(c catalog.Coordinate, r io.Reader) (string, int64, error)
}

// Options configures a Mirror.
type Options struct {
	Enabled          bool
	Upstream         string
	ProbeInterval    time.Duration
	ProbeTimeout     time.Duration
	FetchTimeout     time.Duration
	MaxRetries       int
	BreakerThreshold int64
}

// Mirror resolves cache misses against the upstream repository.
type Mirror struct {
	opts    Options
	base    string
	fetcher *Fetcher
	breaker *Breaker
	prober  *Prober
	storage Writer
	metrics *observability.Metrics
	logger  *slog.Logger
}

// New constructs a Mirror writing into storage. Zero durations take the defaults
// of a 5 minute probe interval, 5 second probe timeout and 2 minute fetch timeout.
func New(opts Options, storage Writer, metrics *observability.Metrics, logger *slog.Logger, fetcherOpts ...FetcherOption) *Mirror {
	if opts.ProbeInterval <= 0 {
		opts.ProbeInterval = 5 * time.Minute
	}
	if opts.ProbeTimeout <= 0 {
		opts.ProbeTimeout = 5 * time.Second
	}
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = 2 * time.Minute
	}
	if opts.BreakerThreshold <= 0 {
		opts.BreakerThreshold = 5
	}
	base := strings.TrimRight(strings.TrimSpace(opts.Upstream), "/") + "/"
	fetcher := NewFetcher(append([]FetcherOption{WithMaxRetries(opts.MaxRetries)}, fetcherOpts...)...)
	m := &Mirror{
		opts:    opts,
		base:    base,
		fetcher: fetcher,
		breaker: NewBreaker(opts.BreakerThreshold, 30*time.Second),
		prober:  NewProber(fetcher, base, opts.ProbeInterval, opts.ProbeTimeout, logger),
		storage: storage,
		metrics: metrics,
		logger:  logger,
	}
	m.prober.OnProbe(func(alive bool) {
		metrics.SetUpstreamUp(alive)
		if alive && m.breaker.Tripped() {
			m.breaker.Reset()
		}
	})
	return m
}

// Enabled reports whether mirroring is switched on.
func (m *Mirror) Enabled() bool {
	return m.opts.Enabled
}

// Alive reports the latest upstream liveness.
func (m *Mirror) Alive() bool {
	return m.opts.Enabled && m.prober.Alive()
}

// Upstream returns the normalised upstream base URL.
func (m *Mirror) Upstream() string {
	return m.base
}

// URL returns the upstream location of a coordinate.
func (m *Mirror) URL(c catalog.Coordinate) string {
	return m.base + c.Path()
}

// Run drives the liveness prober until ctx is done. It returns at once when
// mirroring is disabled.
func (m *Mirror) Run(ctx context.Context) {
	if !m.opts.Enabled {
		return
	}
	m.prober.Run(ctx)
}

// Probe runs one liveness check immediately.
func (m *Mirror) Probe(ctx context.Context) bool {
	return m.prober.Probe(ctx)
}

// Fetch downloads c from the upstream into local storage and returns the
// written path. It never touches the index; the caller registers the file.
func (m *Mirror) Fetch(ctx context.Context, c catalog.Coordinate) (string, error) {
	if !m.opts.Enabled {
		return "", ErrDisabled
	}
	if !m.prober.Alive() {
		m.metrics.ObserveMirrorFetch(observability.FetchUnreachable)
		return "", ErrUnreachable
	}
	ctx, cancel := context.WithTimeout(ctx, m.opts.FetchTimeout)
	defer cancel()

	url := m.URL(c)
	var download *Download
	err := m.breaker.Do(func() error {
		var err error
		download, err = m.fetcher.Fetch(ctx, url)
		return err
	})
	switch {
	case errors.Is(err, ErrNotFound):
		m.metrics.ObserveMirrorFetch(observability.FetchMiss)
		return "", fmt.Errorf("mirror: %s: %w", c, ErrNotFound)
	case errors.Is(err, ErrUnreachable):
		m.metrics.ObserveMirrorFetch(observability.FetchUnreachable)
		return "", err
	case err != nil:
		m.metrics.ObserveMirrorFetch(observability.FetchError)
		if m.logger != nil {
			m.logger.Warn("upstream fetch failed", slog.String("url", url), slog.Any("error", err))
		}
		return "", fmt.Errorf("%w: fetch %s: %w", ErrUpstream, url, err)
	}
	defer download.Body.Close()

	body := &bodyReader{r: download.Body}
	path, n, err := m.storage.Write(c, body)
	if err != nil {
		m.metrics.ObserveMirrorFetch(observability.FetchError)
		if body.err != nil {
			return "", fmt.Errorf("%w: read %s: %w", ErrUpstream, url, body.err)
		}
		return "", fmt.Errorf("mirror: store %s: %w", c, err)
	}
	m.metrics.ObserveMirrorFetch(observability.FetchHit)
	if m.logger != nil {
		m.logger.Info("artifact mirrored",
			slog.String("coordinate", c.String()),
			slog.String("url", url),
			slog.Int64("bytes", n))
	}
	return path, nil
}

// bodyReader remembers a read failure so that an interrupted upstream body
// is told apart from a local write failure.
type bodyReader struct {
	r   io.Reader
	err error
}

func (b *bodyReader) Read(p []byte) (int, error) {
	n, err := b.r.Read(p)
	if err != nil && err != io.EOF {
		b.err = err
	}
	return n, err
}
