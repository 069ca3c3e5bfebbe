package connection

import (
	"context"
	"log/slog"
	"time"
)

// Probe defaults.
const (
	DefaultProbeTimeout = 2 * time.Second
	DefaultProbeDelay   = 500 * time.Millisecond
)

// Probe returns the first endpoint in urls that accepts a connection. Each
// attempt is bounded by timeout, and a failed attempt is followed by delay
// before the next one. Probe connections are closed immediately.
func Probe(ctx context.Context, d Dialer, urls []string, timeout, delay time.Duration, logger *slog.Logger) (string, error) {
	if len(urls) == 0 {
		return "", ErrNoEndpoints
	}
	if logger == nil {
		logger = slog.Default()
	}

	for i, url := range urls {
		if err := probeOne(ctx, d, url, timeout); err != nil {
			logger.Debug("endpoint unreachable", "url", url, "error", err)
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			if i < len(urls)-1 {
				if err := sleep(ctx, delay); err != nil {
					return "", err
				}
			}
			continue
		}
		return url, nil
	}
	return "", ErrNoReachableEndpoint
}

func probeOne(ctx context.Context, d Dialer, url string, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	t, err := d.Dial(ctx, url)
	if err != nil {
		return err
	}
	_ = t.Close(ctx, CloseNormal, "probe")
	_ = t.Release()
	return nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
