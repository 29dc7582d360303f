package sale

import (
	"context"
	"math/big"

	"github.com/cockroachdb/errors"
	"github.com/ligun0805/tier-sale/internal/erc20"
	"github.com/ligun0805/tier-sale/internal/errs"
	"github.com/ligun0805/tier-sale/internal/units"
	"github.com/ligun0805/tier-sale/internal/wallets"
	"github.com/ligun0805/tier-sale/pkg/logger"
	"github.com/ligun0805/tier-sale/pkg/logger/slogx"
)

// approve grants the sale contract exactly cost unless the current allowance already covers it.
func (o *Orchestrator) approve(ctx context.Context, p *wallets.Participant, cost *big.Int) error {
	allowance, err := o.token.Allowance(ctx, p.Address, o.params.Sale)
	if err != nil {
		return errors.Mark(errors.Wrap(err, "read allowance"), errs.ApprovalFailed)
	}
	if allowance.Cmp(cost) >= 0 {
		logger.DebugContext(ctx, "Allowance already covers the purchase", slogx.String("allowance_usdc", units.FormatUSDC(allowance)))
		return nil
	}

	logger.InfoContext(ctx, "Approving USDC", slogx.String("amount_usdc", units.FormatUSDC(cost)))
	data, err := erc20.PackApprove(o.params.Sale, cost)
	if err != nil {
		return errors.Mark(err, errs.ApprovalFailed)
	}
	tx, err := o.populateAndSign(ctx, p, o.params.Token, data)
	if err != nil {
		return errors.Mark(errors.Wrap(err, "build approval"), errs.ApprovalFailed)
	}
	if err := o.net.SendTransaction(ctx, tx); err != nil {
		return errors.Mark(errors.Wrap(err, "broadcast approval"), errs.ApprovalFailed)
	}
	if _, err := o.net.WaitMined(ctx, tx.Hash(), 1, o.params.ApprovalTimeout); err != nil {
		return errors.Mark(errors.Wrapf(err, "confirm approval %s", tx.Hash().Hex()), errs.ApprovalFailed)
	}
	logger.InfoContext(ctx, "USDC approved", slogx.Stringer("tx", tx.Hash()))
	return nil
}
