package main

import (
	"context"
	"fmt"
	"io"

	"github.com/cockroachdb/errors"
	"github.com/ligun0805/tier-sale/internal/chain"
	"github.com/ligun0805/tier-sale/internal/config"
	"github.com/ligun0805/tier-sale/internal/sale"
	"github.com/ligun0805/tier-sale/internal/tiers"
	"github.com/ligun0805/tier-sale/internal/units"
	"github.com/ligun0805/tier-sale/internal/wallets"
	"github.com/ligun0805/tier-sale/pkg/logger"
	"github.com/ligun0805/tier-sale/pkg/logger/slogx"
	"github.com/spf13/cobra"
)

func newRunCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Check funding, approve USDC, wait for the sale and buy",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runHandler(cmd, opts)
		},
	}
}

func runHandler(cmd *cobra.Command, opts *rootOptions) error {
	ctx := cmd.Context()
	s, err := setup(cmd, opts)
	if err != nil {
		return err
	}
	printConfig(cmd.OutOrStdout(), s)

	participants, err := wallets.LoadFile(ctx, tiers.Default(), s.WalletsFile)
	if err != nil {
		return err
	}

	q, closeAll, err := connect(ctx, s)
	if err != nil {
		return err
	}
	defer closeAll()

	orch := sale.NewOrchestrator(q, sale.ParamsFromSettings(s))
	summary := sale.NewRunner(orch).Run(ctx, participants)
	printSummary(cmd.OutOrStdout(), summary)
	return nil
}

func connect(ctx context.Context, s config.Settings) (*chain.Quorum, func(), error) {
	endpoints, closeAll, err := chain.Dial(ctx, s.RPCURLs, s.ChainIDBig(), s.RPCRateLimit)
	if err != nil {
		return nil, nil, err
	}
	q, err := chain.NewQuorum(endpoints,
		chain.WithQuorum(s.Quorum),
		chain.WithStallTimeout(s.StallTimeout),
		chain.WithPollInterval(s.PollInterval),
		chain.WithCallTimeout(s.CallTimeout),
	)
	if err != nil {
		closeAll()
		return nil, nil, errors.WithStack(err)
	}
	logger.InfoContext(ctx, "Connected", slogx.Int("endpoints", q.Len()), slogx.Int("quorum", s.Quorum))
	return q, closeAll, nil
}

func printSummary(w io.Writer, s sale.Summary) {
	fmt.Fprintln(w, "=== SUMMARY ===")
	for _, r := range s.Reports {
		line := fmt.Sprintf("%-4d %s  %-11s", r.Participant.Line, r.Participant.Address.Hex(), r.Result.Outcome)
		switch {
		case r.Result.Outcome == sale.OutcomePurchased:
			line += fmt.Sprintf(" %s x%d  tx %s", r.Result.Tier.ID, r.Participant.Amount, r.Result.TxHash.Hex())
		case r.Result.Outcome == sale.OutcomeUnderfunded:
			line += fmt.Sprintf(" missing %s USDC", units.FormatUSDC(r.Result.Shortfall))
		case r.Err != nil:
			line += " " + r.Err.Error()
		}
		fmt.Fprintln(w, line)
	}
	fmt.Fprintf(w, "purchased %d / underfunded %d / failed %d\n",
		s.Count(sale.OutcomePurchased), s.Count(sale.OutcomeUnderfunded), s.Failed())
}
