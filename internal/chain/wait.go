package chain

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ligun0805/tier-sale/internal/errs"
	"github.com/ligun0805/tier-sale/pkg/logger"
	"github.com/ligun0805/tier-sale/pkg/logger/slogx"
)

// WaitMined polls until txHash has the given number of confirmations (1 = included).
// A reverted receipt is errs.Reverted, running past timeout is errs.ConfirmationTimeout.
func (q *Quorum) WaitMined(ctx context.Context, txHash common.Hash, confirmations uint64, timeout time.Duration) (*types.Receipt, error) {
	if confirmations == 0 {
		confirmations = 1
	}
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(q.pollInterval)
	defer ticker.Stop()

	for {
		rec, err := q.TransactionReceipt(waitCtx, txHash)
		switch {
		case err != nil && waitCtx.Err() == nil:
			logger.DebugContext(ctx, "Receipt lookup failed, polling again", slogx.Stringer("tx", txHash), slogx.Error(err))
		case rec != nil && rec.Status == types.ReceiptStatusFailed:
			return rec, errors.Wrapf(errs.Reverted, "tx %s in block %s", txHash.Hex(), rec.BlockNumber)
		case rec != nil && confirmations == 1:
			return rec, nil
		case rec != nil:
			head, err := q.BlockNumber(waitCtx)
			if err == nil && head >= rec.BlockNumber.Uint64()+confirmations-1 {
				return rec, nil
			}
		}

		select {
		case <-waitCtx.Done():
			if ctx.Err() != nil {
				return nil, errors.WithStack(ctx.Err())
			}
			return nil, errors.Wrapf(errs.ConfirmationTimeout, "tx %s not confirmed within %s", txHash.Hex(), timeout)
		case <-ticker.C:
		}
	}
}
