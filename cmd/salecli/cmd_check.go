package main

import (
	"fmt"
	"io"

	"github.com/ligun0805/tier-sale/internal/sale"
	"github.com/ligun0805/tier-sale/internal/tiers"
	"github.com/ligun0805/tier-sale/internal/units"
	"github.com/ligun0805/tier-sale/internal/wallets"
	"github.com/ligun0805/tier-sale/pkg/logger"
	"github.com/ligun0805/tier-sale/pkg/logger/slogx"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const checkConcurrency = 8

func newCheckCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Report balances and allowances of every wallet without sending anything",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return checkHandler(cmd, opts)
		},
	}
}

func checkHandler(cmd *cobra.Command, opts *rootOptions) error {
	ctx := cmd.Context()
	s, err := setup(cmd, opts)
	if err != nil {
		return err
	}
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
	results := make([]*sale.Inspection, len(participants))

	var g errgroup.Group
	g.SetLimit(checkConcurrency)
	for i, p := range participants {
		g.Go(func() error {
			in, err := orch.Inspect(ctx, p)
			if err != nil {
				logger.ErrorContext(ctx, "Check failed", err, slogx.Stringer("wallet", p.Address))
				return nil
			}
			results[i] = &in
			return nil
		})
	}
	_ = g.Wait()

	printInspections(cmd.OutOrStdout(), participants, results)
	return nil
}

func mark(ok bool) string {
	if ok {
		return "ok"
	}
	return "LOW"
}

func printInspections(w io.Writer, ps []*wallets.Participant, results []*sale.Inspection) {
	fmt.Fprintf(w, "%-4s %-42s %-7s %14s %14s %14s %10s\n", "LINE", "WALLET", "TIERS", "COST", "USDC", "ALLOWANCE", "ETH")
	for i, p := range ps {
		in := results[i]
		if in == nil {
			fmt.Fprintf(w, "%-4d %-42s unavailable\n", p.Line, p.Address.Hex())
			continue
		}
		fmt.Fprintf(w, "%-4d %-42s %-7s %14s %14s %14s %10s  funds:%s gas:%s approved:%v\n",
			p.Line, p.Address.Hex(), fmt.Sprintf("%d-%d", p.MinTier, p.MaxTier),
			units.FormatUSDC(in.Cost), units.FormatUSDC(in.USDC), units.FormatUSDC(in.Allowance), units.FormatETH(in.ETH),
			mark(in.Funded()), mark(in.GasOK()), in.Approved(),
		)
	}
}
