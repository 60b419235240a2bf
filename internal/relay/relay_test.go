package relay

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookup(t *testing.T) {
	t.Parallel()

	s, ok := Lookup(" Cloudflared ")
	require.True(t, ok)
	assert.Equal(t, Cloudflared, s.Kind)

	_, ok = Lookup("ngrok")
	assert.False(t, ok)

	_, ok = Lookup(string(Local))
	assert.False(t, ok, "the local kind is never launched")
}

func TestPatterns(t *testing.T) {
	t.Parallel()

	cases := []struct {
		kind Kind
		line string
		want string
	}{
		{LocalTunnel, "your url is: https://bright-owl-42.loca.lt", "https://bright-owl-42.loca.lt"},
		{Cloudflared, "2024-01-01T00:00:00Z INF |  https://alpha-beta-gamma.trycloudflare.com  |", "https://alpha-beta-gamma.trycloudflare.com"},
		{LocalhostRun, "abc123.lhr.life tunneled with tls termination, https://abc123.lhr.life", "https://abc123.lhr.life"},
		{Cloudflared, "Requesting new quick Tunnel on trycloudflare.com...", ""},
	}
	for _, tc := range cases {
		s, ok := Lookup(string(tc.kind))
		require.True(t, ok)
		assert.Equal(t, tc.want, s.Pattern.FindString(tc.line), tc.line)
	}
}

func TestArgv(t *testing.T) {
	t.Parallel()

	s, _ := Lookup("localtunnel")
	argv, err := s.Argv(3000)
	require.NoError(t, err)
	assert.Equal(t, []string{"npx", "localtunnel", "--port", "3000"}, argv)

	argv, err = s.WithCommand("lt -p {port}").Argv(8080)
	require.NoError(t, err)
	assert.Equal(t, []string{"lt", "-p", "8080"}, argv)

	_, err = Spec{Kind: "x", Command: "   "}.Argv(1)
	require.Error(t, err)
}

func TestWithPattern(t *testing.T) {
	t.Parallel()

	s, _ := Lookup("localtunnel")
	kept, err := s.WithPattern("  ")
	require.NoError(t, err)
	assert.Same(t, s.Pattern, kept.Pattern)

	custom, err := s.WithPattern(`https://[a-z]+\.example\.test`)
	require.NoError(t, err)
	assert.Equal(t, "https://shared.example.test", custom.Pattern.FindString("url: https://shared.example.test"))
	assert.Empty(t, s.Pattern.FindString("url: https://shared.example.test"), "the built-in spec is unchanged")

	_, err = s.WithPattern(`https://(`)
	require.Error(t, err)
}

func TestSupported_ReturnsCopy(t *testing.T) {
	t.Parallel()

	specs := Supported()
	require.Len(t, specs, 3)
	assert.Equal(t, []Kind{LocalTunnel, Cloudflared, LocalhostRun}, []Kind{specs[0].Kind, specs[1].Kind, specs[2].Kind})

	specs[0].Command = "changed"
	s, _ := Lookup("localtunnel")
	assert.NotEqual(t, "changed", s.Command)
}

func TestLabel(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "Localhost", Label(Local))
	assert.Equal(t, "Cloudflare", Label(Cloudflared))
	assert.Equal(t, "mystery", Label("mystery"))
}
