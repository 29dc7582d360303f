package sale

import (
	"context"
	"math/big"

	"github.com/cockroachdb/errors"
	"github.com/ligun0805/tier-sale/internal/wallets"
)

// Inspection is a read-only view of a wallet's readiness.
type Inspection struct {
	Participant *wallets.Participant
	Cost        *big.Int
	USDC        *big.Int
	Allowance   *big.Int
	ETH         *big.Int
	GasBudget   *big.Int
}

func (i Inspection) Funded() bool   { return i.USDC.Cmp(i.Cost) >= 0 }
func (i Inspection) Approved() bool { return i.Allowance.Cmp(i.Cost) >= 0 }
func (i Inspection) GasOK() bool    { return i.ETH.Cmp(i.GasBudget) >= 0 }

// Inspect reads balances and allowance without sending anything.
func (o *Orchestrator) Inspect(ctx context.Context, p *wallets.Participant) (Inspection, error) {
	in := Inspection{
		Participant: p,
		Cost:        p.WorstCaseCost(),
		GasBudget:   new(big.Int).Mul(new(big.Int).SetUint64(o.params.GasLimitEstimate), o.params.MaxFeePerGas),
	}
	var err error
	if in.USDC, err = o.token.BalanceOf(ctx, p.Address); err != nil {
		return in, errors.Wrap(err, "read USDC balance")
	}
	if in.Allowance, err = o.token.Allowance(ctx, p.Address, o.params.Sale); err != nil {
		return in, errors.Wrap(err, "read allowance")
	}
	if in.ETH, err = o.net.BalanceAt(ctx, p.Address, nil); err != nil {
		return in, errors.Wrap(err, "read ETH balance")
	}
	return in, nil
}
