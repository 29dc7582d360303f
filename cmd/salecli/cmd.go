package main

import (
	"github.com/cockroachdb/errors"
	"github.com/ligun0805/tier-sale/internal/config"
	"github.com/ligun0805/tier-sale/pkg/automaxprocs"
	"github.com/ligun0805/tier-sale/pkg/logger"
	"github.com/ligun0805/tier-sale/pkg/logger/slogx"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

type rootOptions struct {
	ConfigFile string
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "salecli",
		Short:         "Buy tiered sale allocations for a list of wallets",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&opts.ConfigFile, "config", "", "config file, E.g. `./config.yaml`")
	flags.String("wallets", "", "wallet list, one `key;tier;amount` per line (default wallets.txt)")

	cmd.AddCommand(
		newRunCommand(opts),
		newCheckCommand(opts),
		newTiersCommand(),
		newVersionCommand(),
	)
	return cmd
}

// setup loads settings and initializes logging; every network-facing command starts here.
func setup(cmd *cobra.Command, opts *rootOptions) (config.Settings, error) {
	s, err := config.Load(opts.ConfigFile, map[string]*pflag.Flag{
		"wallets_file": cmd.Flag("wallets"),
	})
	if err != nil {
		return config.Settings{}, err
	}
	if err := logger.Init(s.Logger); err != nil {
		return config.Settings{}, errors.Wrap(err, "init logger")
	}
	if err := automaxprocs.Init(); err != nil {
		logger.Error("Failed to set GOMAXPROCS", slogx.Error(err))
	}
	return s, nil
}
