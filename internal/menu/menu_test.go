package menu

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"portshare/internal/relay"
	"portshare/internal/tunnel"
)

var testAddresses = []tunnel.Address{
	{URL: "http://localhost:3000", Kind: relay.Local},
	{URL: "https://calm-sea.trycloudflare.com", Kind: relay.Cloudflared, Seq: 1},
}

func TestStep_InvalidResourceInputIsRejected(t *testing.T) {
	t.Parallel()

	m := New([]string{"docs", "status"}, testAddresses)
	s := State{Stage: ChooseResource}

	for _, in := range []string{"0", "abc"} {
		next := m.Step(s, in)
		assert.Equal(t, s, next, "input %q", in)
	}

	s = m.Step(s, "2")
	assert.Equal(t, State{Stage: ChooseAddress, Resource: "status"}, s)
}

func TestStep_AddressSelectionFinalizes(t *testing.T) {
	t.Parallel()

	m := New([]string{"docs"}, testAddresses)
	s := State{Stage: ChooseAddress, Resource: "docs"}

	for _, in := range []string{"", "-1", "3", "1.5"} {
		assert.Equal(t, s, m.Step(s, in), "input %q", in)
	}

	s = m.Step(s, " 2 ")
	assert.Equal(t, Finalized, s.Stage)
	assert.Equal(t, "https://calm-sea.trycloudflare.com", s.Address)
	assert.Equal(t, "https://calm-sea.trycloudflare.com/docs", s.Link)

	assert.Equal(t, s, m.Step(s, "1"), "finalized is terminal")
}

func TestRun_ScriptedInput(t *testing.T) {
	t.Parallel()

	m := New([]string{"docs", "status"}, testAddresses)
	var out bytes.Buffer
	link, err := m.Run(strings.NewReader("0\nabc\n2\n9\n1\n"), &out)
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:3000/status", link)

	text := out.String()
	assert.Equal(t, 3, strings.Count(text, "RESOURCES"), "resource table shown once per attempt")
	assert.Equal(t, 2, strings.Count(text, "DEPLOY • status"))
	assert.Contains(t, text, "Cloudflare")
	assert.Contains(t, text, "FINAL LINK")
}

func TestRunState_CarriesSelection(t *testing.T) {
	t.Parallel()

	m := New([]string{"docs", "status"}, testAddresses)
	s, err := m.RunState(strings.NewReader("1\n2\n"), io.Discard)
	require.NoError(t, err)
	assert.Equal(t, Finalized, s.Stage)
	assert.Equal(t, "docs", s.Resource)
	assert.Equal(t, testAddresses[1].URL, s.Address)
	assert.Equal(t, testAddresses[1].URL+"/docs", s.Link)
}

func TestRun_QRRendered(t *testing.T) {
	t.Parallel()

	m := New([]string{"docs"}, testAddresses).WithQR(true)
	var out bytes.Buffer
	_, err := m.Run(strings.NewReader("1\n1\n"), &out)
	require.NoError(t, err)
	assert.True(t, strings.ContainsAny(out.String(), "▀▄█"), "qr blocks rendered")
}

func TestRun_NoResources(t *testing.T) {
	t.Parallel()

	_, err := New(nil, testAddresses).Run(strings.NewReader("1\n"), &bytes.Buffer{})
	require.ErrorIs(t, err, ErrNoResources)
}

func TestRun_InputClosed(t *testing.T) {
	t.Parallel()

	_, err := New([]string{"docs"}, testAddresses).Run(strings.NewReader("7\n"), &bytes.Buffer{})
	require.ErrorIs(t, err, ErrInputClosed)
}

func TestRun_ReadError(t *testing.T) {
	t.Parallel()

	boom := errors.New("tty gone")
	_, err := New([]string{"docs"}, testAddresses).Run(iotest.ErrReader(boom), &bytes.Buffer{})
	require.ErrorIs(t, err, boom)
}

func TestStageString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "choose-resource", ChooseResource.String())
	assert.Equal(t, "finalized", Finalized.String())
	assert.Equal(t, "stage(9)", Stage(9).String())
}

func TestRenderQR(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	RenderQR(&out, "https://calm-sea.trycloudflare.com")
	assert.True(t, strings.ContainsAny(out.String(), "▀▄█"), "qr blocks rendered")
	assert.Greater(t, strings.Count(out.String(), "\n"), 10)
}
