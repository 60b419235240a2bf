package tunnel

import (
	"strings"
	"sync"
	"testing"

	mapset "github.com/deckarep/golang-set"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"portshare/internal/relay"
)

func cloudflaredScanner(t *testing.T, seen mapset.Set) *Scanner {
	t.Helper()
	s, ok := relay.Lookup("cloudflared")
	require.True(t, ok)
	return NewScanner(s.Kind, s.Pattern, seen)
}

func TestScanner_SplitLineDiscoveredOnce(t *testing.T) {
	t.Parallel()

	s := cloudflaredScanner(t, nil)

	assert.Empty(t, s.Feed([]byte("INF starting\nINF |  https://quiet-")))
	assert.Greater(t, s.Pending(), 0)

	got := s.Feed([]byte("river.trycloudflare.com  |\nINF registered\n"))
	require.Len(t, got, 1)
	assert.Equal(t, Discovery{Kind: relay.Cloudflared, Address: "https://quiet-river.trycloudflare.com"}, got[0])
	assert.Equal(t, 0, s.Pending())

	assert.Empty(t, s.Feed([]byte("again https://quiet-river.trycloudflare.com\n")))
}

func TestScanner_MultipleLinesInOneChunk(t *testing.T) {
	t.Parallel()

	s := cloudflaredScanner(t, nil)
	got := s.Feed([]byte("noise\r\nhttps://a.trycloudflare.com\r\nhttps://b.trycloudflare.com\r\n"))
	require.Len(t, got, 2)
	assert.Equal(t, "https://a.trycloudflare.com", got[0].Address)
	assert.Equal(t, "https://b.trycloudflare.com", got[1].Address)
}

func TestScanner_FlushMatchesTrailingFragment(t *testing.T) {
	t.Parallel()

	s := cloudflaredScanner(t, nil)
	assert.Empty(t, s.Feed([]byte("https://tail.trycloudflare.com")))

	got := s.Flush()
	require.Len(t, got, 1)
	assert.Equal(t, "https://tail.trycloudflare.com", got[0].Address)
	assert.Empty(t, s.Flush())
}

func TestScanner_NonMatchingAndEmptyInput(t *testing.T) {
	t.Parallel()

	s := cloudflaredScanner(t, nil)
	assert.Empty(t, s.Feed(nil))
	assert.Empty(t, s.Feed([]byte("\n\n\nerror: failed to connect\n")))
	assert.Empty(t, s.Feed([]byte(strings.Repeat("x", 1<<16)+"\n")))
}

func TestScanner_SharedSeenSetAcrossStreams(t *testing.T) {
	t.Parallel()

	seen := mapset.NewSet()
	stdout := cloudflaredScanner(t, seen)
	stderr := cloudflaredScanner(t, seen)

	var wg sync.WaitGroup
	results := make([][]Discovery, 2)
	for i, s := range []*Scanner{stdout, stderr} {
		wg.Add(1)
		go func(i int, s *Scanner) {
			defer wg.Done()
			results[i] = s.Feed([]byte("https://same.trycloudflare.com\n"))
		}(i, s)
	}
	wg.Wait()

	assert.Equal(t, 1, len(results[0])+len(results[1]))
}
