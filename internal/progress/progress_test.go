package progress

import (
	"bytes"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
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

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestIndicator_NonTerminalTracksStateSilently(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	ind := New(&buf, "Establishing tunnels...")

	ind.Start()
	assert.True(t, ind.Running())
	ind.Start()
	ind.Stop()
	assert.False(t, ind.Running())
	ind.Stop()
	assert.Empty(t, buf.String())
}

func TestIndicator_DrawsAndClearsOnStop(t *testing.T) {
	t.Parallel()

	buf := &syncBuffer{}
	ind := newIndicator(buf, "Establishing tunnels...", true)

	ind.Start()
	time.Sleep(3 * ind.fps)
	ind.Stop()
	assert.False(t, ind.Running())

	out := buf.String()
	assert.Contains(t, out, "Establishing tunnels...")
	assert.True(t, strings.HasSuffix(out, clearLine), "line cleared after stop")

	// Restartable after a stop.
	ind.Start()
	assert.True(t, ind.Running())
	ind.Stop()
}
