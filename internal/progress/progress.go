// Package progress draws a single-line spinner while tunnels are being
// established.
package progress

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"
)

const clearLine = "\r\x1b[K"

var (
	frameStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("6"))
	labelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

// Indicator is a cosmetic liveness signal. Start and Stop are idempotent and
// safe to call from any goroutine.
type Indicator struct {
	w      io.Writer
	label  string
	frames []string
	fps    time.Duration
	draw   bool

	mu      sync.Mutex
	running bool
	stop    chan struct{}
	done    chan struct{}
}

// New returns an indicator writing to w. Nothing is drawn unless w is a terminal.
func New(w io.Writer, label string) *Indicator {
	draw := false
	if f, ok := w.(*os.File); ok {
		draw = term.IsTerminal(int(f.Fd()))
	}
	return newIndicator(w, label, draw)
}

func newIndicator(w io.Writer, label string, draw bool) *Indicator {
	return &Indicator{
		w:      w,
		label:  label,
		frames: spinner.Dot.Frames,
		fps:    spinner.Dot.FPS,
		draw:   draw,
	}
}

func (i *Indicator) Start() {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.running {
		return
	}
	i.running = true
	if !i.draw {
		return
	}
	i.stop = make(chan struct{})
	i.done = make(chan struct{})
	go i.loop(i.stop, i.done)
}

// Stop halts the animation and clears the line before returning, so the
// caller can print immediately afterwards.
func (i *Indicator) Stop() {
	i.mu.Lock()
	defer i.mu.Unlock()
	if !i.running {
		return
	}
	i.running = false
	if !i.draw {
		return
	}
	close(i.stop)
	<-i.done
	fmt.Fprint(i.w, clearLine)
}

func (i *Indicator) Running() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.running
}

func (i *Indicator) loop(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(i.fps)
	defer ticker.Stop()

	frame := 0
	for {
		fmt.Fprintf(i.w, "\r %s %s", frameStyle.Render(i.frames[frame]), labelStyle.Render(i.label))
		frame = (frame + 1) % len(i.frames)
		select {
		case <-stop:
			return
		case <-ticker.C:
		}
	}
}
