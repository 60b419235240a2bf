package tunnel

import (
	"bytes"
	"regexp"

	mapset "github.com/deckarep/golang-set"

	"portshare/internal/relay"
)

// Discovery is emitted the first time a public address is seen in relay output.
type Discovery struct {
	Kind    relay.Kind
	Address string
}

// Scanner turns one relay output stream into discoveries. It buffers the
// trailing partial line between Feed calls, so a match split across chunks
// is still found once the rest of the line arrives.
//
// A Scanner is owned by a single consuming goroutine. The seen set is shared
// across all scanners of one launch and is safe for concurrent use.
type Scanner struct {
	kind    relay.Kind
	pattern *regexp.Regexp
	seen    mapset.Set
	buf     []byte
}

// NewScanner creates a scanner for one stream. seen may be shared; nil gets a
// private set.
func NewScanner(kind relay.Kind, pattern *regexp.Regexp, seen mapset.Set) *Scanner {
	if seen == nil {
		seen = mapset.NewSet()
	}
	return &Scanner{kind: kind, pattern: pattern, seen: seen}
}

// Feed consumes an arbitrary chunk and returns the new discoveries found in
// the complete lines it finishes.
func (s *Scanner) Feed(chunk []byte) []Discovery {
	s.buf = append(s.buf, chunk...)

	var found []Discovery
	for {
		i := bytes.IndexByte(s.buf, '\n')
		if i < 0 {
			break
		}
		line := s.buf[:i]
		s.buf = s.buf[i+1:]
		if d, ok := s.match(line); ok {
			found = append(found, d)
		}
	}

	// Compact so a long-lived stream does not pin every byte it ever produced.
	if len(s.buf) == 0 {
		s.buf = nil
	} else if cap(s.buf) > 4*len(s.buf)+4096 {
		s.buf = append([]byte(nil), s.buf...)
	}
	return found
}

// Flush treats the retained fragment as a final line. Called at EOF.
func (s *Scanner) Flush() []Discovery {
	line := s.buf
	s.buf = nil
	if d, ok := s.match(line); ok {
		return []Discovery{d}
	}
	return nil
}

// Pending is the size of the retained partial line.
func (s *Scanner) Pending() int {
	return len(s.buf)
}

func (s *Scanner) match(line []byte) (Discovery, bool) {
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return Discovery{}, false
	}
	m := s.pattern.Find(line)
	if m == nil {
		return Discovery{}, false
	}
	addr := string(m)
	// Add reports false when another stream already claimed this address.
	if !s.seen.Add(addr) {
		return Discovery{}, false
	}
	return Discovery{Kind: s.kind, Address: addr}, true
}
