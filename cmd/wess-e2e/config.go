package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wess-dev/wess-e2e/internal/fixture"
	"github.com/wess-dev/wess-e2e/internal/wessconf"
)

func newConfigCommand(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect or rewrite the service configuration file",
	}

	cmd.AddCommand(&cobra.Command{
		Use:       "apply test|prod",
		Short:     "Write the test or prod settings into the service config",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"test", "prod"},
		RunE: func(cmd *cobra.Command, args []string) error {
			s := root.cfg.Test
			if args[0] == "prod" {
				s = root.cfg.Prod
			}
			path := root.cfg.Service.ConfigFile
			if err := wessconf.Set(root.fs, path, s); err != nil {
				return err
			}
			root.logger.Info("config applied", "path", path, "settings", s.String())
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", path, s)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the settings currently in the service config",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := wessconf.Load(root.fs, root.cfg.Service.ConfigFile)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), s)
			return nil
		},
	})

	return cmd
}

func newFixturesCommand(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fixtures",
		Short: "Work with the module fixture files",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "check <name>...",
		Short: "Parse fixture byte files and report their sizes",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reg := fixture.NewRegistry(root.fs, root.cfg.Fixtures.PathTemplate, root.cfg.Fixtures.Placeholder)
			var errs []error
			for _, name := range args {
				b, err := reg.Bytes(name)
				if err != nil {
					fmt.Fprintf(cmd.OutOrStdout(), "FAIL %s: %v\n", name, err)
					errs = append(errs, err)
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "ok   %s: %d bytes (%s)\n", name, len(b), reg.Path(name))
			}
			if len(errs) > 0 {
				return fmt.Errorf("%d of %d fixtures invalid: %w", len(errs), len(args), errors.Join(errs...))
			}
			return nil
		},
	})

	return cmd
}
