package fetcher

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"os"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/windrose-labs/wxbench/internal/resilience"
)

// HTTPOptions configures the HTTP fetcher.
type HTTPOptions struct {
	UserAgent      string
	Timeout        time.Duration
	RatePerSecond  float64 // per-host request rate, 0 uses the default
	MaxRetries     int
	InitialBackoff time.Duration
}

const defaultHostRate = 2

// HTTPFetcher downloads over HTTP with a rate limiter and circuit breaker
// per host and transient-failure retries.
type HTTPFetcher struct {
	client *http.Client
	opts   HTTPOptions

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	breakers map[string]*resilience.CircuitBreaker
}

// NewHTTPFetcher creates an HTTPFetcher with the given options.
func NewHTTPFetcher(opts HTTPOptions) *HTTPFetcher {
	if opts.Timeout == 0 {
		opts.Timeout = 2 * time.Minute
	}
	if opts.MaxRetries == 0 {
		opts.MaxRetries = 3
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "wxbench/1.0"
	}
	if opts.RatePerSecond <= 0 {
		opts.RatePerSecond = defaultHostRate
	}
	return &HTTPFetcher{
		client: &http.Client{
			Timeout: opts.Timeout,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 4,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		opts:     opts,
		limiters: make(map[string]*rate.Limiter),
		breakers: make(map[string]*resilience.CircuitBreaker),
	}
}

func (f *HTTPFetcher) limiterFor(host string) *rate.Limiter {
	f.mu.Lock()
	defer f.mu.Unlock()
	lim, ok := f.limiters[host]
	if !ok {
		lim = rate.NewLimiter(rate.Limit(f.opts.RatePerSecond), 1)
		f.limiters[host] = lim
	}
	return lim
}

func (f *HTTPFetcher) breakerFor(host string) *resilience.CircuitBreaker {
	f.mu.Lock()
	defer f.mu.Unlock()
	cb, ok := f.breakers[host]
	if !ok {
		cb = resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
			ShouldTrip: resilience.IsTransient,
			OnStateChange: func(from, to resilience.CircuitState) {
				zap.L().Warn("fetcher: circuit state change",
					zap.String("host", host),
					zap.String("from", from.String()),
					zap.String("to", to.String()))
			},
		})
		f.breakers[host] = cb
	}
	return cb
}

// get performs one rate-limited, breaker-guarded, retried GET and hands back
// the open response. Statuses worth retrying come back as TransientError so
// the retry loop and the breaker agree on what counts as a failure.
func (f *HTTPFetcher) get(ctx context.Context, rawURL string) (*http.Response, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, eris.Wrapf(err, "fetcher: parse url %s", rawURL)
	}
	lim := f.limiterFor(u.Host)
	cb := f.breakerFor(u.Host)

	cfg := resilience.RetryConfig{
		MaxAttempts:    f.opts.MaxRetries,
		InitialBackoff: f.opts.InitialBackoff,
		OnRetry:        resilience.RetryLogger(u.Host, "download"),
	}

	return resilience.DoVal(ctx, cfg, func(ctx context.Context) (*http.Response, error) {
		return resilience.ExecuteVal(ctx, cb, func(ctx context.Context) (*http.Response, error) {
			if err := lim.Wait(ctx); err != nil {
				return nil, eris.Wrap(err, "fetcher: rate limiter wait")
			}

			req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
			if err != nil {
				return nil, eris.Wrap(err, "fetcher: create request")
			}
			req.Header.Set("User-Agent", f.opts.UserAgent)

			resp, err := f.client.Do(req)
			if err != nil {
				return nil, eris.Wrapf(err, "fetcher: get %s", rawURL)
			}
			if resp.StatusCode != http.StatusOK {
				_ = resp.Body.Close()
				err := eris.Errorf("fetcher: unexpected status %d from %s", resp.StatusCode, rawURL)
				if resilience.IsTransientHTTPStatus(resp.StatusCode) {
					return nil, resilience.NewTransientError(err, resp.StatusCode)
				}
				return nil, err
			}
			return resp, nil
		})
	})
}

// Download fetches the URL and returns the response body.
func (f *HTTPFetcher) Download(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	resp, err := f.get(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

// DownloadToFile fetches the URL into path via a temp file so a failed
// download never leaves a truncated target behind.
func (f *HTTPFetcher) DownloadToFile(ctx context.Context, rawURL, path string) (int64, error) {
	body, err := f.Download(ctx, rawURL)
	if err != nil {
		return 0, err
	}
	defer body.Close() //nolint:errcheck

	tmp, err := os.CreateTemp("", "wxbench-fetch-*")
	if err != nil {
		return 0, eris.Wrap(err, "fetcher: create temp file")
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck

	n, err := io.Copy(tmp, body)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return n, eris.Wrapf(err, "fetcher: write %s", path)
	}

	if err := os.Rename(tmp.Name(), path); err != nil {
		return n, eris.Wrapf(err, "fetcher: move into place %s", path)
	}

	zap.L().Info("fetcher: downloaded",
		zap.String("url", rawURL),
		zap.String("path", path),
		zap.Int64("bytes", n))
	return n, nil
}

// HeadETag performs a HEAD request and returns the ETag header value.
func (f *HTTPFetcher) HeadETag(ctx context.Context, rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", eris.Wrapf(err, "fetcher: parse url %s", rawURL)
	}
	if err := f.limiterFor(u.Host).Wait(ctx); err != nil {
		return "", eris.Wrap(err, "fetcher: rate limiter wait")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, rawURL, nil)
	if err != nil {
		return "", eris.Wrap(err, "fetcher: create head request")
	}
	req.Header.Set("User-Agent", f.opts.UserAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return "", eris.Wrap(err, "fetcher: head request")
	}
	defer resp.Body.Close() //nolint:errcheck

	return resp.Header.Get("ETag"), nil
}

// DownloadIfChanged re-fetches only when the server's ETag differs from the
// one seen last time. Returns (body, newETag, changed, error); body is nil
// when the content is unchanged.
func (f *HTTPFetcher) DownloadIfChanged(ctx context.Context, rawURL, etag string) (io.ReadCloser, string, bool, error) {
	current, err := f.HeadETag(ctx, rawURL)
	if err != nil {
		return nil, "", false, err
	}
	if current != "" && current == etag {
		return nil, current, false, nil
	}

	body, err := f.Download(ctx, rawURL)
	if err != nil {
		return nil, "", false, err
	}
	return body, current, true, nil
}
