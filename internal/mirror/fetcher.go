// Package mirror downloads artifacts that are missing locally from an
// upstream repository and tracks whether that upstream is reachable.
package mirror

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/cenk/backoff"
	"github.com/rs/dnscache"
)

var (
	errRateLimited  = errors.New("mirror: rate limited by upstream")
	errUpstreamDown = errors.New("mirror: upstream server error")
)

// Download is an upstream response body. The caller must close Body.
type Download struct {
	Body io.ReadCloser
}

// Fetcher performs upstream HTTP requests through a cached DNS resolver.
type Fetcher struct {
	client     *http.Client
	probe      *http.Client
	resolver   *dnscache.Resolver
	userAgent  string
	maxRetries int
	baseDelay  time.Duration
}

// FetcherOption configures a Fetcher.
type FetcherOption func(*Fetcher)

// WithHTTPClient replaces the download client. Probes reuse its transport.
func WithHTTPClient(c *http.Client) FetcherOption {
	return func(f *Fetcher) {
		f.client = c
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) FetcherOption {
	return func(f *Fetcher) {
		f.userAgent = ua
	}
}

// WithMaxRetries sets the retry budget for rate limits and server errors.
func WithMaxRetries(n int) FetcherOption {
	return func(f *Fetcher) {
		if n >= 0 {
			f.maxRetries = n
		}
	}
}

// WithBaseDelay sets the first retry delay.
func WithBaseDelay(d time.Duration) FetcherOption {
	return func(f *Fetcher) {
		if d > 0 {
			f.baseDelay = d
		}
	}
}

// NewFetcher creates a Fetcher. The DNS cache is refreshed by RefreshDNS,
// which the prober calls on every tick.
func NewFetcher(opts ...FetcherOption) *Fetcher {
	resolver := &dnscache.Resolver{}
	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	f := &Fetcher{
		resolver: resolver,
		client: &http.Client{
			Transport: &http.Transport{
				DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
					host, port, err := net.SplitHostPort(addr)
					if err != nil {
						return nil, err
					}
					ips, err := resolver.LookupHost(ctx, host)
					if err != nil {
						return nil, err
					}
					for _, ip := range ips {
						conn, err := dialer.DialContext(ctx, network, net.JoinHostPort(ip, port))
						if err == nil {
							return conn, nil
						}
					}
					return nil, fmt.Errorf("mirror: failed to dial any resolved address of %s", host)
				},
				MaxIdleConns:          100,
				MaxIdleConnsPerHost:   10,
				IdleConnTimeout:       90 * time.Second,
				TLSHandshakeTimeout:   10 * time.Second,
				ExpectContinueTimeout: 1 * time.Second,
			},
		},
		userAgent:  "depot-mirror/1.0",
		maxRetries: 2,
		baseDelay:  500 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(f)
	}
	f.probe = &http.Client{
		Transport: f.client.Transport,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	return f
}

// RefreshDNS drops stale entries from the resolver cache.
func (f *Fetcher) RefreshDNS() {
	f.resolver.Refresh(true)
}

// Fetch downloads url, retrying rate limits and server errors with
// exponential backoff. A 404 is returned as ErrNotFound without retrying.
func (f *Fetcher) Fetch(ctx context.Context, url string) (*Download, error) {
	delays := backoff.NewExponentialBackOff()
	delays.InitialInterval = f.baseDelay
	delays.MaxElapsedTime = 0
	delays.Reset()

	var lastErr error
	for attempt := 0; attempt <= f.maxRetries; attempt++ {
		if attempt > 0 {
			wait := delays.NextBackOff()
			if wait == backoff.Stop {
				break
			}
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(wait):
			}
		}

		download, err := f.doFetch(ctx, url)
		if err == nil {
			return download, nil
		}
		lastErr = err
		if errors.Is(err, errRateLimited) || errors.Is(err, errUpstreamDown) {
			continue
		}
		return nil, err
	}
	return nil, lastErr
}

func (f *Fetcher) doFetch(ctx context.Context, url string) (*Download, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("mirror: creating request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "*/*")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("mirror: fetching %s: %w", url, err)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		return &Download{Body: resp.Body}, nil
	case resp.StatusCode == http.StatusNotFound:
		_ = resp.Body.Close()
		return nil, ErrNotFound
	case resp.StatusCode == http.StatusTooManyRequests:
		_ = resp.Body.Close()
		return nil, errRateLimited
	case resp.StatusCode >= 500:
		_ = resp.Body.Close()
		return nil, fmt.Errorf("%w: status %d", errUpstreamDown, resp.StatusCode)
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		_ = resp.Body.Close()
		return nil, fmt.Errorf("mirror: unexpected status %d: %s", resp.StatusCode, string(body))
	}
}

// Probe issues a HEAD request without following redirects and returns the status code.
func (f *Fetcher) Probe(ctx context.Context, url string) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return 0, fmt.Errorf("mirror: creating probe: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.probe.Do(req)
	if err != nil {
		return 0, fmt.Errorf("mirror: probe %s: %w", url, err)
	}
	_ = resp.Body.Close()
	return resp.StatusCode, nil
}
