package sale

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ligun0805/tier-sale/internal/errs"
	"github.com/ligun0805/tier-sale/internal/tiers"
	"github.com/ligun0805/tier-sale/internal/wallets"
	"github.com/ligun0805/tier-sale/pkg/logger"
	"github.com/ligun0805/tier-sale/pkg/logger/slogx"
)

// purchaseTier tries one tier 1+AttemptsPerTier times. The transaction is signed on the first
// attempt that gets that far and the same bytes are rebroadcast on every later attempt.
func (o *Orchestrator) purchaseTier(ctx context.Context, p *wallets.Participant, tier tiers.Tier) (common.Hash, error) {
	data, err := packPurchase(tier.ID, p.Amount, o.params.PromoCode)
	if err != nil {
		return common.Hash{}, err
	}

	var (
		signed  *types.Transaction
		lastErr error
		budget  = 1 + o.params.AttemptsPerTier
	)
	for attempt := 1; attempt <= budget; attempt++ {
		if attempt > 1 {
			if err := o.clock.Sleep(ctx, o.params.RetryDelay); err != nil {
				return common.Hash{}, err
			}
		}
		if err := o.attempt(ctx, p, &signed, data); err != nil {
			lastErr = err
			logger.DebugContext(ctx, "Purchase attempt failed",
				slogx.String("tier", tier.ID),
				slogx.Int("attempt", attempt),
				slogx.Int("budget", budget),
				slogx.Error(err),
			)
			if ctx.Err() != nil {
				return common.Hash{}, errors.WithStack(ctx.Err())
			}
			continue
		}
		return signed.Hash(), nil
	}
	return common.Hash{}, errors.Mark(errors.Wrapf(lastErr, "tier %s: %d attempts", tier.ID, budget), errs.AttemptsExhausted)
}

func (o *Orchestrator) attempt(ctx context.Context, p *wallets.Participant, signed **types.Transaction, data []byte) error {
	if *signed == nil {
		tx, err := o.populateAndSign(ctx, p, o.params.Sale, data)
		if err != nil {
			return err
		}
		*signed = tx
	}
	tx := *signed
	if err := o.net.SendTransaction(ctx, tx); err != nil {
		return errors.Wrap(err, "broadcast purchase")
	}
	if _, err := o.net.WaitMined(ctx, tx.Hash(), 1, o.params.PurchaseTimeout); err != nil {
		return errors.Wrapf(err, "confirm purchase %s", tx.Hash().Hex())
	}
	return nil
}
