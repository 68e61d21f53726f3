// Package lifecycle brackets a test run: it points the service configuration
// at the test settings, launches the service and waits for it, and on the way
// out stops it, restores the production settings and deletes run artifacts.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/afero"

	"github.com/wess-dev/wess-e2e/internal/procmgr"
	"github.com/wess-dev/wess-e2e/internal/wessconf"
)

// Manager owns the service process for the duration of one run.
type Manager struct {
	Service    procmgr.Service
	Fs         afero.Fs
	ConfigPath string
	Test       wessconf.Settings
	Prod       wessconf.Settings

	// Run artifacts removed by Stop.
	AuditLog   string
	StorageDir string

	// Probe is polled every ReadyInterval until it succeeds or ReadyTimeout
	// elapses. A nil Probe skips polling.
	Probe         procmgr.Probe
	ReadyTimeout  time.Duration
	ReadyInterval time.Duration
	// Settle is an extra fixed wait after readiness. Zero disables it.
	Settle time.Duration

	Logger *slog.Logger
}

// Start applies the test settings, spawns the service and blocks until it is
// ready. Any failure after the test settings were written is rolled back: a
// spawned service is stopped, the production settings are restored and run
// artifacts are removed. A service that never becomes ready yields an error
// wrapping procmgr.ErrNotReady.
func (m *Manager) Start(ctx context.Context) error {
	log := m.logger()

	if err := wessconf.Set(m.Fs, m.ConfigPath, m.Test); err != nil {
		return fmt.Errorf("applying test config: %w", err)
	}
	log.Info("test config applied", "path", m.ConfigPath, "settings", m.Test.String())

	if err := m.Service.Start(ctx); err != nil {
		return m.rollback(ctx, false, fmt.Errorf("starting service: %w", err))
	}

	if m.Probe != nil {
		readyCtx, cancel := context.WithTimeout(ctx, m.ReadyTimeout)
		err := procmgr.WaitReady(readyCtx, m.Probe, m.ReadyInterval)
		cancel()
		if err != nil {
			return m.rollback(ctx, true, fmt.Errorf("waiting for service: %w", err))
		}
		log.Info("service ready")
	}

	if m.Settle > 0 {
		log.Debug("settling", "delay", m.Settle)
		select {
		case <-time.After(m.Settle):
		case <-ctx.Done():
			return m.rollback(ctx, true, ctx.Err())
		}
	}
	return nil
}

// rollback undoes a partial Start. It runs on a context detached from ctx's
// cancellation so an interrupted start still terminates the child.
func (m *Manager) rollback(ctx context.Context, started bool, cause error) error {
	m.logger().Warn("start failed, rolling back", "err", cause)
	ctx = context.WithoutCancel(ctx)
	if started {
		return errors.Join(cause, m.Stop(ctx))
	}
	return errors.Join(cause, m.restore())
}

// Stop terminates the service, restores the production settings and removes
// the audit log and the storage directory. Every step runs even when an
// earlier one fails; all failures are returned joined.
func (m *Manager) Stop(ctx context.Context) error {
	var errs []error

	if err := m.Service.Stop(ctx); err != nil {
		errs = append(errs, fmt.Errorf("stopping service: %w", err))
	}

	if err := m.restore(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// restore writes the production settings back and removes run artifacts.
func (m *Manager) restore() error {
	log := m.logger()
	var errs []error

	if err := wessconf.Set(m.Fs, m.ConfigPath, m.Prod); err != nil {
		errs = append(errs, fmt.Errorf("restoring prod config: %w", err))
	} else {
		log.Info("prod config restored", "path", m.ConfigPath, "settings", m.Prod.String())
	}

	if m.AuditLog != "" {
		if err := m.Fs.Remove(m.AuditLog); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, fmt.Errorf("removing audit log: %w", err))
		}
	}
	if m.StorageDir != "" {
		if err := m.Fs.RemoveAll(m.StorageDir); err != nil {
			errs = append(errs, fmt.Errorf("removing storage dir: %w", err))
		}
	}

	if len(errs) == 0 {
		log.Info("run artifacts cleaned", "audit_log", m.AuditLog, "storage_dir", m.StorageDir)
	}
	return errors.Join(errs...)
}

func (m *Manager) logger() *slog.Logger {
	if m.Logger != nil {
		return m.Logger
	}
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
