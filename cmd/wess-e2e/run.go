package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cucumber/godog"
	"github.com/spf13/cobra"

	"github.com/wess-dev/wess-e2e/internal/auditlog"
	"github.com/wess-dev/wess-e2e/internal/client"
	"github.com/wess-dev/wess-e2e/internal/config"
	"github.com/wess-dev/wess-e2e/internal/fixture"
	"github.com/wess-dev/wess-e2e/internal/lifecycle"
	"github.com/wess-dev/wess-e2e/internal/procmgr"
	"github.com/wess-dev/wess-e2e/internal/steps"
)

type runOptions struct {
	*rootOptions
	Tags      string
	Format    string
	NoService bool
	Strict    bool
	NoColors  bool
}

func newRunCommand(root *rootOptions) *cobra.Command {
	opts := &runOptions{rootOptions: root}

	cmd := &cobra.Command{
		Use:   "run [paths...]",
		Short: "Run the feature files against the service",
		Long: `Apply the test settings to wess.toml, start the service, wait until it
answers on the readiness path, run every scenario in the given feature paths
(or the configured ones) and tear everything down again.

Example:
  wess-e2e run
  wess-e2e run features/modules.feature --tags @smoke
  wess-e2e run --no-service --format progress`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, args)
		},
	}

	cmd.Flags().StringVarP(&opts.Tags, "tags", "t", "", "tag expression filtering scenarios (overrides config)")
	cmd.Flags().StringVarP(&opts.Format, "format", "f", "pretty", "godog formatter (pretty|progress|cucumber|junit)")
	cmd.Flags().BoolVar(&opts.NoService, "no-service", false, "do not manage the service; it must already be running")
	cmd.Flags().BoolVar(&opts.Strict, "strict", true, "fail on undefined or pending steps")
	cmd.Flags().BoolVar(&opts.NoColors, "no-colors", false, "disable ANSI colours in the formatter output")

	return cmd
}

func (o *runOptions) run(cmd *cobra.Command, paths []string) (err error) {
	cfg := o.cfg
	if len(paths) == 0 {
		paths = cfg.Features
	}
	tags := o.Tags
	if tags == "" {
		tags = cfg.Tags
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c := client.New(cfg.BaseURL(), cfg.RequestTimeout)

	if !o.NoService {
		if err := cfg.Service.Validate(); err != nil {
			return err
		}
		mgr := newManager(cfg, o.rootOptions, c)
		if err := mgr.Start(ctx); err != nil {
			return fmt.Errorf("starting run: %w", err)
		}
		defer func() {
			stopCtx, cancel := context.WithTimeout(context.Background(), cfg.Service.GracePeriod+5*time.Second)
			defer cancel()
			if stopErr := mgr.Stop(stopCtx); stopErr != nil {
				err = errors.Join(err, fmt.Errorf("tearing down run: %w", stopErr))
			}
		}()
	}

	state := steps.NewState(
		c,
		fixture.NewRegistry(o.fs, cfg.Fixtures.PathTemplate, cfg.Fixtures.Placeholder),
		auditlog.NewOracle(auditlog.FileReader{Fs: o.fs, Path: cfg.Service.AuditLog}, o.logger),
		o.logger,
	)

	o.logger.Info("running features", "paths", paths, "tags", tags, "base_url", c.BaseURL())
	status := godog.TestSuite{
		Name:                "wess-e2e",
		ScenarioInitializer: state.InitializeScenario,
		Options: &godog.Options{
			Format:      o.Format,
			Paths:       paths,
			Tags:        tags,
			Strict:      o.Strict,
			NoColors:    o.NoColors,
			Concurrency: 1,
			Output:      cmd.OutOrStdout(),
		},
	}.Run()

	if status != 0 {
		return errScenariosFailed
	}
	return nil
}

func newManager(cfg *config.Config, root *rootOptions, c *client.Client) *lifecycle.Manager {
	svc := cfg.Service
	m := &lifecycle.Manager{
		Service: &procmgr.Process{
			Binary:      svc.Binary,
			Args:        svc.Args,
			Dir:         svc.Dir,
			Env:         svc.Env,
			OutputLog:   svc.OutputLog,
			GracePeriod: svc.GracePeriod,
			Logger:      root.logger,
		},
		Fs:            root.fs,
		ConfigPath:    svc.ConfigFile,
		Test:          cfg.Test,
		Prod:          cfg.Prod,
		AuditLog:      svc.AuditLog,
		StorageDir:    svc.StorageDir,
		ReadyTimeout:  cfg.Readiness.Timeout,
		ReadyInterval: cfg.Readiness.Interval,
		Settle:        cfg.Readiness.Settle,
		Logger:        root.logger,
	}
	if !cfg.Readiness.Disabled {
		path := cfg.Readiness.Path
		m.Probe = func(ctx context.Context) error { return c.Probe(ctx, path) }
	}
	return m
}
