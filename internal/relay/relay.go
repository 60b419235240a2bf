// Package relay describes the tunnel relay tools portshare knows how to
// drive: how to launch each one and how to recognise the public address it
// prints once the tunnel is up.
package relay

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Kind identifies a relay tool.
type Kind string

const (
	LocalTunnel  Kind = "localtunnel"
	Cloudflared  Kind = "cloudflared"
	LocalhostRun Kind = "localhostrun"

	// Local is the synthetic kind of the loopback address. It is never launched.
	Local Kind = "local"
)

// Spec is the launch and discovery description of one relay kind.
type Spec struct {
	Kind    Kind
	Name    string
	Command string
	Pattern *regexp.Regexp
}

var supported = []Spec{
	{
		Kind:    LocalTunnel,
		Name:    "LocalTunnel",
		Command: "npx localtunnel --port {port}",
		Pattern: regexp.MustCompile(`https?://[a-z0-9-]+\.loca\.lt`),
	},
	{
		Kind:    Cloudflared,
		Name:    "Cloudflare",
		Command: "npx cloudflared tunnel --url http://localhost:{port}",
		Pattern: regexp.MustCompile(`https?://[a-z0-9-]+(\.[a-z0-9-]+)*\.trycloudflare\.com`),
	},
	{
		Kind:    LocalhostRun,
		Name:    "localhost.run",
		Command: "ssh -o StrictHostKeyChecking=accept-new -R 80:localhost:{port} nokey@localhost.run",
		Pattern: regexp.MustCompile(`https://[a-z0-9-]+\.lhr\.life`),
	},
}

// Supported returns the built-in relay specs in their fixed order.
func Supported() []Spec {
	return append([]Spec(nil), supported...)
}

// Lookup returns the launch description for a kind name. Unknown kinds report false.
func Lookup(name string) (Spec, bool) {
	k := Kind(strings.ToLower(strings.TrimSpace(name)))
	for _, s := range supported {
		if s.Kind == k {
			return s, true
		}
	}
	return Spec{}, false
}

// WithCommand returns a copy of s launching command instead of the default.
func (s Spec) WithCommand(command string) Spec {
	if strings.TrimSpace(command) != "" {
		s.Command = command
	}
	return s
}

// WithPattern returns a copy of s recognising addresses with expr instead
// of the default pattern. An empty expr keeps the default.
func (s Spec) WithPattern(expr string) (Spec, error) {
	if strings.TrimSpace(expr) == "" {
		return s, nil
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		return s, fmt.Errorf("relay %s: pattern: %w", s.Kind, err)
	}
	s.Pattern = re
	return s, nil
}

// Argv expands the command template for port and splits it into argv.
// Templates are whitespace separated; quoting is not interpreted.
func (s Spec) Argv(port int) ([]string, error) {
	expanded := strings.ReplaceAll(s.Command, "{port}", strconv.Itoa(port))
	argv := strings.Fields(expanded)
	if len(argv) == 0 {
		return nil, fmt.Errorf("relay %s: empty command", s.Kind)
	}
	return argv, nil
}

// Label is the operator-facing name of a kind.
func Label(k Kind) string {
	if k == Local {
		return "Localhost"
	}
	for _, s := range supported {
		if s.Kind == k {
			return s.Name
		}
	}
	return string(k)
}
