// Package menu is the interactive resource/address picker that produces the
// shareable link once tunnel discovery has finished.
package menu

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"portshare/internal/addrutil"
	"portshare/internal/tunnel"
)

var (
	// ErrNoResources means there is nothing to select, so no link can be built.
	ErrNoResources = errors.New("no servable resources found")
	// ErrInputClosed means operator input ended before a link was chosen.
	ErrInputClosed = errors.New("input closed before a selection was made")
)

type Stage int

const (
	ChooseResource Stage = iota
	ChooseAddress
	Finalized
)

func (s Stage) String() string {
	switch s {
	case ChooseResource:
		return "choose-resource"
	case ChooseAddress:
		return "choose-address"
	case Finalized:
		return "finalized"
	}
	return fmt.Sprintf("stage(%d)", int(s))
}

// State is the menu position plus the selections made so far.
type State struct {
	Stage    Stage
	Resource string
	Address  string
	Link     string
}

// Menu holds the immutable choices of one selection session.
type Menu struct {
	resources []string
	addresses []tunnel.Address
	qr        bool
}

func New(resources []string, addresses []tunnel.Address) *Menu {
	return &Menu{
		resources: append([]string(nil), resources...),
		addresses: append([]tunnel.Address(nil), addresses...),
	}
}

// WithQR renders the final link as a terminal QR code.
func (m *Menu) WithQR(on bool) *Menu {
	m.qr = on
	return m
}

// Step is the pure transition function. Invalid input leaves the state as is.
func (m *Menu) Step(s State, input string) State {
	switch s.Stage {
	case ChooseResource:
		i, ok := pick(input, len(m.resources))
		if !ok {
			return s
		}
		return State{Stage: ChooseAddress, Resource: m.resources[i]}
	case ChooseAddress:
		i, ok := pick(input, len(m.addresses))
		if !ok {
			return s
		}
		addr := m.addresses[i].URL
		return State{
			Stage:    Finalized,
			Resource: s.Resource,
			Address:  addr,
			Link:     addrutil.JoinLink(addr, s.Resource),
		}
	}
	return s
}

// pick parses a 1-based selection into an index.
func pick(input string, n int) (int, bool) {
	v, err := strconv.Atoi(strings.TrimSpace(input))
	if err != nil || v < 1 || v > n {
		return 0, false
	}
	return v - 1, true
}

// Run drives the menu from in until a link is finalized. It blocks on input
// and never times out.
func (m *Menu) Run(in io.Reader, out io.Writer) (string, error) {
	s, err := m.RunState(in, out)
	if err != nil {
		return "", err
	}
	return s.Link, nil
}

// RunState is Run returning the whole finalized state.
func (m *Menu) RunState(in io.Reader, out io.Writer) (State, error) {
	if len(m.resources) == 0 {
		return State{}, ErrNoResources
	}

	lines := bufio.NewScanner(in)
	s := State{Stage: ChooseResource}
	for s.Stage != Finalized {
		m.render(out, s)
		fmt.Fprint(out, promptStyle.Render("\n Select: "))
		if !lines.Scan() {
			if err := lines.Err(); err != nil {
				return State{}, fmt.Errorf("read selection: %w", err)
			}
			return State{}, ErrInputClosed
		}
		s = m.Step(s, lines.Text())
	}

	m.renderFinal(out, s.Link)
	return s, nil
}
