// Package tunnelhttp implements device.Adapter against the local HTTP
// tunnel an external pairing component exposes once a device connection
// is established. It wraps every call in a circuit breaker so a device
// that starts timing out mid-merge fails fast instead of hanging the
// worker, and throttles uploads with a token-bucket limiter so a large
// batch doesn't saturate the tunnel.
package tunnelhttp

import (
	"context"
	"fmt"
	"net/url"

	"github.com/go-resty/resty/v2"
	"github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"
)

// Config controls the tunnel client's endpoint and resilience knobs.
type Config struct {
	// BaseURL is the tunnel's local endpoint, e.g. "http://127.0.0.1:9100".
	BaseURL string
	// UploadBytesPerSecond caps write throughput; zero disables limiting.
	UploadBytesPerSecond int
	// BreakerName labels the circuit breaker for logging/metrics.
	BreakerName string
}

// Adapter implements device.Adapter over HTTP against a local tunnel
// process. Every method name in the file-service contract maps to
// one REST call; list/read/write responses are whole-body, matching the
// core's "transfer the whole file" usage pattern.
type Adapter struct {
	client  *resty.Client
	breaker *gobreaker.CircuitBreaker[*resty.Response]
	limiter *rate.Limiter
}

// New constructs an Adapter. A zero UploadBytesPerSecond means uploads are
// not throttled client-side.
func New(cfg Config) *Adapter {
	client := resty.New().SetBaseURL(cfg.BaseURL)

	settings := gobreaker.Settings{
		Name:        cfg.BreakerName,
		MaxRequests: 1,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
	}

	var limiter *rate.Limiter
	if cfg.UploadBytesPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.UploadBytesPerSecond), cfg.UploadBytesPerSecond)
	}

	return &Adapter{
		client:  client,
		breaker: gobreaker.NewCircuitBreaker[*resty.Response](settings),
		limiter: limiter,
	}
}

func (a *Adapter) do(ctx context.Context, fn func() (*resty.Response, error)) (*resty.Response, error) {
	resp, err := a.breaker.Execute(func() (*resty.Response, error) {
		resp, err := fn()
		if err == nil && resp.IsError() {
			return nil, fmt.Errorf("device returned %s", resp.Status())
		}
		return resp, err
	})
	if err != nil {
		return nil, fmt.Errorf("tunnelhttp: %w", err)
	}
	return resp, nil
}

// List returns the base names of entries directly under path.
func (a *Adapter) List(ctx context.Context, path string) ([]string, error) {
	var names []string
	_, err := a.do(ctx, func() (*resty.Response, error) {
		return a.client.R().
			SetContext(ctx).
			SetQueryParam("path", path).
			SetResult(&names).
			Get("/list")
	})
	return names, err
}

// MakeDir creates path and any missing parents.
func (a *Adapter) MakeDir(ctx context.Context, path string) error {
	_, err := a.do(ctx, func() (*resty.Response, error) {
		return a.client.R().SetContext(ctx).SetQueryParam("path", path).Post("/mkdir")
	})
	return err
}

// ReadAll returns the full contents of the file at path.
func (a *Adapter) ReadAll(ctx context.Context, path string) ([]byte, error) {
	resp, err := a.do(ctx, func() (*resty.Response, error) {
		return a.client.R().SetContext(ctx).SetQueryParam("path", path).Get("/read")
	})
	if err != nil {
		return nil, err
	}
	return resp.Body(), nil
}

// WriteAll writes data to path, honoring the configured upload rate limit.
func (a *Adapter) WriteAll(ctx context.Context, path string, data []byte) error {
	if a.limiter != nil {
		if err := a.limiter.WaitN(ctx, len(data)); err != nil {
			return fmt.Errorf("tunnelhttp: rate limit wait: %w", err)
		}
	}
	_, err := a.do(ctx, func() (*resty.Response, error) {
		return a.client.R().
			SetContext(ctx).
			SetQueryParam("path", path).
			SetBody(data).
			Post("/write")
	})
	return err
}

// Remove deletes a single file.
func (a *Adapter) Remove(ctx context.Context, path string) error {
	_, err := a.do(ctx, func() (*resty.Response, error) {
		return a.client.R().SetContext(ctx).SetQueryParam("path", path).Delete("/remove")
	})
	return err
}

// RemoveTree recursively deletes path and its contents.
func (a *Adapter) RemoveTree(ctx context.Context, path string) error {
	_, err := a.do(ctx, func() (*resty.Response, error) {
		return a.client.R().SetContext(ctx).SetQueryParam("path", path).Delete("/remove-tree")
	})
	return err
}

// Rename atomically replaces dst with src.
func (a *Adapter) Rename(ctx context.Context, src, dst string) error {
	_, err := a.do(ctx, func() (*resty.Response, error) {
		return a.client.R().
			SetContext(ctx).
			SetQueryParam("src", src).
			SetQueryParam("dst", dst).
			Post("/rename")
	})
	return err
}

// NotifySyncFinished tells the device's media service to rescan.
func (a *Adapter) NotifySyncFinished(ctx context.Context) error {
	_, err := a.do(ctx, func() (*resty.Response, error) {
		return a.client.R().SetContext(ctx).Post("/notify-sync-finished")
	})
	return err
}

// validatePath reports whether path is a non-empty, device-relative path
// with no URL scheme. None of the Adapter methods call it.
func validatePath(path string) error {
	if path == "" {
		return fmt.Errorf("tunnelhttp: empty path")
	}
	if u, err := url.Parse(path); err != nil || u.Scheme != "" {
		return fmt.Errorf("tunnelhttp: path must be a plain device-relative path, got %q", path)
	}
	return nil
}
