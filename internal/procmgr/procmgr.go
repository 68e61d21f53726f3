// Package procmgr manages the lifecycle of the service under test: starting
// it as a child process, probing it for readiness, and stopping it.
package procmgr

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"
)

var (
	// ErrNotStarted is returned by Stop when Start never succeeded.
	ErrNotStarted = errors.New("process not started")
	// ErrKilled is returned by Stop when the process ignored SIGTERM and had to be killed.
	ErrKilled = errors.New("process killed after grace period")
	// ErrNotReady is returned by WaitReady when the probe never succeeded.
	ErrNotReady = errors.New("service not ready")
)

// DefaultGracePeriod is how long Stop waits after SIGTERM before sending SIGKILL.
const DefaultGracePeriod = 5 * time.Second

// Service is the capability the harness needs from the system under test.
type Service interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	IsRunning() bool
}

// Process runs a binary as a child process with stdout and stderr redirected
// to OutputLog.
type Process struct {
	Binary      string
	Args        []string
	Dir         string
	Env         map[string]string
	OutputLog   string
	GracePeriod time.Duration
	Logger      *slog.Logger

	mu      sync.Mutex
	cmd     *exec.Cmd
	done    chan struct{}
	waitErr error
}

var _ Service = (*Process)(nil)

// Start launches the binary. It returns once the process has been spawned;
// use WaitReady to wait for the service to accept requests.
func (p *Process) Start(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cmd != nil && !p.exited() {
		return fmt.Errorf("%s already running (pid %d)", p.Binary, p.cmd.Process.Pid)
	}

	binary, err := resolveBinary(p.Binary)
	if err != nil {
		return err
	}

	cmd := exec.Command(binary, p.Args...)
	cmd.Dir = p.Dir

	// Inherit env and add service-specific vars
	cmd.Env = os.Environ()
	for k, v := range p.Env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}

	var out io.WriteCloser = nopCloser{io.Discard}
	if p.OutputLog != "" {
		if err := os.MkdirAll(filepath.Dir(p.OutputLog), 0o755); err != nil {
			return fmt.Errorf("creating output log dir: %w", err)
		}
		f, err := os.OpenFile(p.OutputLog, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
		if err != nil {
			return fmt.Errorf("creating output log: %w", err)
		}
		out = f
	}
	cmd.Stdout = out
	cmd.Stderr = out

	setProcessGroup(cmd)

	if err := cmd.Start(); err != nil {
		out.Close()
		return fmt.Errorf("starting %s: %w", binary, err)
	}

	done := make(chan struct{})
	p.cmd = cmd
	p.done = done
	p.waitErr = nil
	go func() {
		err := cmd.Wait()
		out.Close()
		p.mu.Lock()
		p.waitErr = err
		p.mu.Unlock()
		close(done)
	}()

	p.logger().Info("service started", "binary", binary, "pid", cmd.Process.Pid, "args", p.Args)
	return nil
}

// Stop sends SIGTERM to the child's process group and blocks until the child
// exits. If it is still alive after GracePeriod the group is killed and
// ErrKilled is returned. A process that already exited with a failure status
// is reported as an error.
func (p *Process) Stop(ctx context.Context) error {
	p.mu.Lock()
	cmd, done := p.cmd, p.done
	p.mu.Unlock()
	if cmd == nil {
		return ErrNotStarted
	}

	select {
	case <-done:
		p.mu.Lock()
		defer p.mu.Unlock()
		if p.waitErr != nil {
			return fmt.Errorf("service exited before stop: %w", p.waitErr)
		}
		return nil
	default:
	}

	pid := cmd.Process.Pid
	if err := signalGroup(pid, syscall.SIGTERM); err != nil {
		return fmt.Errorf("sending SIGTERM to pid %d: %w", pid, err)
	}

	grace := p.GracePeriod
	if grace <= 0 {
		grace = DefaultGracePeriod
	}
	timer := time.NewTimer(grace)
	defer timer.Stop()

	select {
	case <-done:
		p.logger().Info("service stopped", "pid", pid)
		return nil
	case <-timer.C:
		p.kill(cmd, done)
		return fmt.Errorf("pid %d: %w", pid, ErrKilled)
	case <-ctx.Done():
		p.kill(cmd, done)
		return fmt.Errorf("stopping pid %d: %w", pid, ctx.Err())
	}
}

// IsRunning reports whether the child process is alive.
func (p *Process) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cmd != nil && !p.exited()
}

// Pid returns the child's process ID, or 0 if it was never started.
func (p *Process) Pid() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cmd == nil || p.cmd.Process == nil {
		return 0
	}
	return p.cmd.Process.Pid
}

func (p *Process) kill(cmd *exec.Cmd, done <-chan struct{}) {
	p.logger().Warn("service ignored SIGTERM, killing", "pid", cmd.Process.Pid)
	signalGroup(cmd.Process.Pid, syscall.SIGKILL)
	<-done
}

// exited must be called with p.mu held.
func (p *Process) exited() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

func (p *Process) logger() *slog.Logger {
	if p.Logger != nil {
		return p.Logger
	}
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// resolveBinary turns a path into an absolute one and checks it is a regular
// file. Bare names are looked up on PATH.
func resolveBinary(binary string) (string, error) {
	if binary == "" {
		return "", errors.New("binary path is required")
	}
	if !strings.ContainsRune(binary, filepath.Separator) {
		path, err := exec.LookPath(binary)
		if err != nil {
			return "", fmt.Errorf("binary not found: %w", err)
		}
		return path, nil
	}

	abs, err := filepath.Abs(binary)
	if err != nil {
		return "", fmt.Errorf("resolving binary path: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("binary not found: %s", abs)
	}
	if info.IsDir() {
		return "", fmt.Errorf("binary path is a directory: %s", abs)
	}
	return abs, nil
}

// Probe reports nil once the service accepts requests.
type Probe func(ctx context.Context) error

// WaitReady polls probe every interval until it succeeds or ctx is done.
// On timeout the last probe error is wrapped together with ErrNotReady.
func WaitReady(ctx context.Context, probe Probe, interval time.Duration) error {
	if interval <= 0 {
		interval = 200 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var last error
	for {
		if last = probe(ctx); last == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %w", ErrNotReady, last)
		case <-ticker.C:
		}
	}
}

type nopCloser struct{ io.Writer }

func (nopCloser) Close() error { return nil }
