// Package tunnel launches relay processes and collects the public addresses
// they report within a fixed discovery window.
package tunnel

import (
	"context"
	"io"
	"sync"
	"time"

	mapset "github.com/deckarep/golang-set"
	"github.com/sirupsen/logrus"

	"portshare/internal/addrutil"
	"portshare/internal/execx"
	"portshare/internal/logging"
	"portshare/internal/relay"
)

// DefaultDeadline bounds the discovery phase.
const DefaultDeadline = 6 * time.Second

const readChunk = 4096

// Address is one entry of the final address list.
type Address struct {
	URL  string     `json:"url" yaml:"url"`
	Kind relay.Kind `json:"kind" yaml:"kind"`
	// Seq is the discovery order, starting at 1. The local address has 0.
	Seq int `json:"seq" yaml:"seq"`
}

// Progress is told when discovery is in flight. See progress.Indicator.
type Progress interface {
	Start()
	Stop()
}

// Options controls one launch.
type Options struct {
	Port     int
	Scheme   string
	Kinds    []string
	Deadline time.Duration
	// Commands overrides relay command templates by kind name.
	Commands map[string]string
	// Patterns overrides relay address patterns by kind name.
	Patterns map[string]string
}

// Launcher starts relays and gathers their addresses.
type Launcher struct {
	starter  execx.Starter
	logger   logrus.FieldLogger
	progress Progress
	announce func(Address)
}

// NewLauncher returns a launcher using starter for processes. logger may be nil.
func NewLauncher(starter execx.Starter, logger logrus.FieldLogger) *Launcher {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Launcher{starter: starter, logger: logger}
}

// WithProgress sets the liveness indicator toggled during discovery.
func (l *Launcher) WithProgress(p Progress) *Launcher {
	l.progress = p
	return l
}

// OnDiscover registers a callback run (with progress stopped) for each new address.
func (l *Launcher) OnDiscover(fn func(Address)) *Launcher {
	l.announce = fn
	return l
}

// Session holds the outcome of a launch and owns the relay processes, which
// keep serving the tunnels after discovery ends.
type Session struct {
	addresses []Address
	procs     []execx.Process
	consumers sync.WaitGroup
	closeOnce sync.Once
}

// Addresses is the final list: the local address first, then discoveries in order.
func (s *Session) Addresses() []Address {
	return append([]Address(nil), s.addresses...)
}

// URLs returns just the address values.
func (s *Session) URLs() []string {
	out := make([]string, len(s.addresses))
	for i, a := range s.addresses {
		out[i] = a.URL
	}
	return out
}

// Close terminates every relay process and waits for output consumers to finish.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		var wg sync.WaitGroup
		for _, p := range s.procs {
			wg.Add(1)
			go func(p execx.Process) {
				defer wg.Done()
				_ = p.Stop()
			}(p)
		}
		wg.Wait()
		s.consumers.Wait()
	})
}

type relayProcess struct {
	spec relay.Spec
	proc execx.Process
}

// Start launches one process per distinct supported kind and returns once
// the deadline passes, every output stream has ended, or ctx is cancelled.
// It never fails: relays that cannot start or never report simply
// contribute no address.
func (l *Launcher) Start(ctx context.Context, opts Options) *Session {
	if opts.Deadline <= 0 {
		opts.Deadline = DefaultDeadline
	}
	if opts.Scheme == "" {
		opts.Scheme = "http"
	}

	session := &Session{}
	waitCtx, cancel := context.WithTimeout(ctx, opts.Deadline)
	defer cancel()

	found := make(chan Discovery)
	seen := mapset.NewSet()
	var streams sync.WaitGroup

	procs := l.launch(opts)
	for _, rp := range procs {
		session.procs = append(session.procs, rp.proc)
		for _, stream := range []struct {
			name string
			r    io.Reader
		}{{"stdout", rp.proc.Stdout()}, {"stderr", rp.proc.Stderr()}} {
			scanner := NewScanner(rp.spec.Kind, rp.spec.Pattern, seen)
			streams.Add(1)
			session.consumers.Add(1)
			go func(kind relay.Kind, name string, r io.Reader) {
				defer session.consumers.Done()
				defer streams.Done()
				l.consume(waitCtx, r, scanner, found)
				l.logger.WithFields(logrus.Fields{"relay": kind, "stream": name}).Debug("relay stream closed")
			}(rp.spec.Kind, stream.name, stream.r)
		}
	}

	drained := make(chan struct{})
	go func() {
		streams.Wait()
		close(drained)
	}()

	discovered := l.collect(waitCtx, found, drained, len(procs))
	l.stopProgress()

	local := addrutil.LocalAddress(opts.Scheme, opts.Port)
	session.addresses = append(session.addresses, Address{URL: local, Kind: relay.Local})
	for _, a := range discovered {
		if a.URL == local {
			continue
		}
		session.addresses = append(session.addresses, a)
	}

	l.logger.WithFields(logrus.Fields{
		"relays":     len(procs),
		"discovered": len(session.addresses) - 1,
	}).Info("tunnel discovery finished")
	return session
}

func (l *Launcher) launch(opts Options) []relayProcess {
	launched := map[relay.Kind]bool{}
	var out []relayProcess
	for _, name := range opts.Kinds {
		spec, ok := relay.Lookup(name)
		if !ok {
			l.logger.WithField("relay", name).Debug("unsupported relay kind ignored")
			continue
		}
		if launched[spec.Kind] {
			continue
		}
		launched[spec.Kind] = true

		spec = spec.WithCommand(opts.Commands[string(spec.Kind)])
		spec, err := spec.WithPattern(opts.Patterns[string(spec.Kind)])
		if err != nil {
			l.logger.WithError(err).WithField("relay", spec.Kind).Warn("relay pattern invalid")
			continue
		}
		argv, err := spec.Argv(opts.Port)
		if err != nil {
			l.logger.WithError(err).WithField("relay", spec.Kind).Warn("relay command invalid")
			continue
		}
		// Relays outlive the discovery window, so they are not bound to its context.
		proc, err := l.starter.Start(context.Background(), argv[0], argv[1:]...)
		if err != nil {
			l.logger.WithError(err).WithField("relay", spec.Kind).Warn("relay failed to start")
			continue
		}
		l.logger.WithFields(logrus.Fields{"relay": spec.Kind, "argv": argv}).Debug("relay started")
		out = append(out, relayProcess{spec: spec, proc: proc})
	}
	return out
}

// consume reads r until EOF. Discoveries are forwarded only while ctx is
// live; afterwards output is still drained so the relay never blocks on a
// full pipe.
func (l *Launcher) consume(ctx context.Context, r io.Reader, scanner *Scanner, found chan<- Discovery) {
	forward := func(ds []Discovery) {
		for _, d := range ds {
			select {
			case found <- d:
			case <-ctx.Done():
				return
			}
		}
	}

	buf := make([]byte, readChunk)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			forward(scanner.Feed(buf[:n]))
		}
		if err != nil {
			forward(scanner.Flush())
			return
		}
	}
}

// collect keeps at most one address per relay kind, in discovery order.
func (l *Launcher) collect(ctx context.Context, found <-chan Discovery, drained <-chan struct{}, expected int) []Address {
	var addrs []Address
	if expected == 0 {
		return addrs
	}

	byKind := map[relay.Kind]bool{}
	l.startProgress()
	for {
		select {
		case <-ctx.Done():
			return addrs
		case <-drained:
			return addrs
		case d := <-found:
			if byKind[d.Kind] {
				continue
			}
			byKind[d.Kind] = true
			a := Address{URL: d.Address, Kind: d.Kind, Seq: len(addrs) + 1}
			addrs = append(addrs, a)

			l.stopProgress()
			l.logger.WithFields(logrus.Fields{"relay": d.Kind, "url": d.Address}).Info("relay connected")
			if l.announce != nil {
				l.announce(a)
			}
			if len(addrs) < expected {
				l.startProgress()
			}
		}
	}
}

func (l *Launcher) startProgress() {
	if l.progress != nil {
		l.progress.Start()
	}
}

func (l *Launcher) stopProgress() {
	if l.progress != nil {
		l.progress.Stop()
	}
}
