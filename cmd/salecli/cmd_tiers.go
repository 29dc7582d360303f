package main

import (
	"fmt"
	"math/big"

	"github.com/ligun0805/tier-sale/internal/tiers"
	"github.com/ligun0805/tier-sale/internal/units"
	"github.com/spf13/cobra"
)

func newTiersCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "tiers",
		Short: "Print the tier catalog",
		Run: func(cmd *cobra.Command, _ []string) {
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "%-3s %-22s %10s %10s %9s %9s\n", "#", "ID", "PRICE", "DISCOUNTED", "PER-WALLET", "TOTAL")
			for i, t := range tiers.Default().All() {
				fmt.Fprintf(w, "%-3d %-22s %10s %10s %9d %9d\n", i+1, t.ID,
					units.FormatUSDC(big.NewInt(t.Price)), units.FormatUSDC(big.NewInt(t.PriceWithDiscount)),
					t.MaxAllocationPerWallet, t.MaxTotalPurchasable)
			}
		},
	}
}
