package monitor

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) Bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]byte(nil), b.buf.Bytes()...)
}

func TestCheck_StatusClassification(t *testing.T) {
	t.Parallel()

	var status atomic.Int32
	status.Store(http.StatusNotFound)
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "portshare", r.Header.Get("Bypass-Tunnel-Reminder"))
		w.WriteHeader(int(status.Load()))
	}))
	defer s.Close()

	m := New(s.URL+"/login", time.Second, nil)
	require.NoError(t, m.Check(context.Background()))

	status.Store(http.StatusBadGateway)
	err := m.Check(context.Background())
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusBadGateway, se.Code)
}

func TestCheck_Unreachable(t *testing.T) {
	t.Parallel()

	s := httptest.NewServer(http.NotFoundHandler())
	url := s.URL
	s.Close()

	require.Error(t, New(url, time.Second, nil).Check(context.Background()))
}

func TestRun_LogsDegradedThenRecovered(t *testing.T) {
	t.Parallel()

	var down atomic.Bool
	down.Store(true)
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if down.Load() {
			w.WriteHeader(http.StatusGatewayTimeout)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer s.Close()

	var buf syncBuffer
	logger := logrus.New()
	logger.SetOutput(&buf)
	logger.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})

	m := New(s.URL, 20*time.Millisecond, logger)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()

	require.Eventually(t, func() bool { return bytes.Contains(buf.Bytes(), []byte("link degraded")) }, 2*time.Second, 10*time.Millisecond)
	assert.False(t, m.Healthy())

	down.Store(false)
	require.Eventually(t, func() bool { return bytes.Contains(buf.Bytes(), []byte("link recovered")) }, 2*time.Second, 10*time.Millisecond)
	assert.True(t, m.Healthy())

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("monitor did not stop")
	}
}
