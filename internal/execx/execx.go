package execx

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"
)

// Runner abstracts short-lived command execution so callers can be
// unit-tested without real relay binaries on the host.
type Runner interface {
	Output(name string, args ...string) (string, error)
}

// Starter launches long-lived processes whose output is consumed as it is
// produced.
type Starter interface {
	Start(ctx context.Context, name string, args ...string) (Process, error)
}

// Process is a running child. Stdout and Stderr must both be drained by the
// caller or the child may block on a full pipe.
type Process interface {
	Stdout() io.Reader
	Stderr() io.Reader
	Wait() error
	Stop() error
}

// OSRunner executes commands on the host via os/exec.
type OSRunner struct {
	// StopGrace is how long Stop waits after SIGTERM before killing.
	StopGrace time.Duration
}

func NewOSRunner() *OSRunner {
	return &OSRunner{StopGrace: 2 * time.Second}
}

func (r *OSRunner) Output(name string, args ...string) (string, error) {
	cmd := exec.Command(name, args...)
	var buf bytes.Buffer
	cmd.Stdout = &buf
	cmd.Stderr = &buf
	err := cmd.Run()
	if err != nil {
		msg := strings.TrimSpace(buf.String())
		if msg != "" {
			return "", fmt.Errorf("%s: %s", err.Error(), msg)
		}
		return "", err
	}
	return strings.TrimSpace(buf.String()), nil
}

func (r *OSRunner) Start(ctx context.Context, name string, args ...string) (Process, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, err
	}

	p := &osProcess{cmd: cmd, stdout: stdout, stderr: stderr, grace: r.StopGrace, exited: make(chan struct{})}
	return p, nil
}

type osProcess struct {
	cmd    *exec.Cmd
	stdout io.Reader
	stderr io.Reader
	grace  time.Duration

	waitOnce sync.Once
	waitErr  error
	exited   chan struct{}
}

func (p *osProcess) Stdout() io.Reader { return p.stdout }
func (p *osProcess) Stderr() io.Reader { return p.stderr }

// Wait may be called from several goroutines; the child is reaped once.
func (p *osProcess) Wait() error {
	p.waitOnce.Do(func() {
		p.waitErr = p.cmd.Wait()
		close(p.exited)
	})
	<-p.exited
	return p.waitErr
}

// Stop asks the child to exit, escalating to SIGKILL after the grace period.
func (p *osProcess) Stop() error {
	if p.cmd.Process == nil {
		return nil
	}
	select {
	case <-p.exited:
		return nil
	default:
	}

	if err := p.cmd.Process.Signal(syscall.SIGTERM); err != nil && !errors.Is(err, os.ErrProcessDone) {
		_ = p.cmd.Process.Kill()
	}

	go func() { _ = p.Wait() }()
	select {
	case <-p.exited:
	case <-time.After(p.grace):
		_ = p.cmd.Process.Kill()
		<-p.exited
	}
	return nil
}
