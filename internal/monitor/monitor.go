// Package monitor periodically checks that the shared link still answers.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"portshare/internal/logging"
)

const (
	DefaultInterval = 30 * time.Second
	defaultTimeout  = 10 * time.Second
)

// Monitor GETs one link on a ticker and logs transitions between healthy
// and degraded.
type Monitor struct {
	link     string
	interval time.Duration
	client   *http.Client
	logger   logrus.FieldLogger

	healthy atomic.Bool
	checked bool
}

// StatusError is a reply from the relay that means the tunnel is down.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d", e.Code)
}

// New returns a monitor for link. logger may be nil.
func New(link string, interval time.Duration, logger logrus.FieldLogger) *Monitor {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &Monitor{
		link:     link,
		interval: interval,
		client:   &http.Client{Timeout: defaultTimeout},
		logger:   logger.WithField("link", link),
	}
}

// Run checks once immediately, then on every tick, until ctx is done.
func (m *Monitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.observe(m.Check(ctx))
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			m.observe(m.Check(ctx))
		}
	}
}

// Check reports whether the link answered below 500. Relays answer 502 or 504
// when the process behind them is gone.
func (m *Monitor) Check(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.link, nil)
	if err != nil {
		return err
	}
	// localtunnel shows an interstitial page unless this header is present.
	req.Header.Set("Bypass-Tunnel-Reminder", "portshare")

	res, err := m.client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(res.Body, 64<<10))

	if res.StatusCode >= http.StatusInternalServerError {
		return &StatusError{Code: res.StatusCode}
	}
	return nil
}

// Healthy is the result of the last check.
func (m *Monitor) Healthy() bool { return m.healthy.Load() }

func (m *Monitor) observe(err error) {
	if errors.Is(err, context.Canceled) {
		return
	}
	ok := err == nil
	healthy := m.healthy.Load()
	switch {
	case !m.checked && ok:
		m.logger.Info("link reachable")
	case !m.checked:
		m.logger.WithError(err).Warn("link degraded")
	case healthy && !ok:
		m.logger.WithError(err).Warn("link degraded")
	case !healthy && ok:
		m.logger.Info("link recovered")
	default:
		m.logger.WithError(err).Debug("link check")
	}
	m.checked = true
	m.healthy.Store(ok)
}
