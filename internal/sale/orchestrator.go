// Package sale drives wallets through funding checks, USDC approval, start synchronization
// and tiered purchase attempts.
package sale

import (
	"context"
	"math/big"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ligun0805/tier-sale/internal/erc20"
	"github.com/ligun0805/tier-sale/internal/errs"
	"github.com/ligun0805/tier-sale/internal/units"
	"github.com/ligun0805/tier-sale/internal/wallets"
	"github.com/ligun0805/tier-sale/pkg/logger"
	"github.com/ligun0805/tier-sale/pkg/logger/slogx"
)

// MaxWaitStep bounds a single sleep while waiting for the sale to open.
const MaxWaitStep = 10 * time.Second

// Network is the chain access the orchestrator needs; *chain.Quorum implements it.
type Network interface {
	ethereum.ContractCaller
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	WaitMined(ctx context.Context, txHash common.Hash, confirmations uint64, timeout time.Duration) (*types.Receipt, error)
}

type Orchestrator struct {
	net    Network
	token  *erc20.Token
	params Params
	clock  Clock
}

type Option func(*Orchestrator)

func WithClock(c Clock) Option {
	return func(o *Orchestrator) { o.clock = c }
}

func NewOrchestrator(net Network, params Params, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		net:    net,
		token:  erc20.New(params.Token, net),
		params: params,
		clock:  systemClock{},
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Prepare runs one wallet from funding check to purchase. An underfunded wallet is not an error.
func (o *Orchestrator) Prepare(ctx context.Context, p *wallets.Participant) (Result, error) {
	ctx = logger.WithContext(ctx, slogx.Stringer("wallet", p.Address))

	cost := p.WorstCaseCost()
	balance, err := o.token.BalanceOf(ctx, p.Address)
	if err != nil {
		return Result{}, errors.Wrap(err, "read USDC balance")
	}
	if cost.Cmp(balance) > 0 {
		shortfall := new(big.Int).Sub(cost, balance)
		logger.WarnContext(ctx, "Not enough USDC for the selected tiers, edit the amount or tier range and restart",
			slogx.String("missing_usdc", units.FormatUSDC(shortfall)),
			slogx.Int64("amount", p.Amount),
		)
		return Result{Outcome: OutcomeUnderfunded, Shortfall: shortfall}, nil
	}

	if err := o.approve(ctx, p, cost); err != nil {
		return Result{}, err
	}

	o.warnOnLowGas(ctx, p)

	if err := o.waitForStart(ctx); err != nil {
		return Result{}, errors.Wrap(err, "wait for sale start")
	}

	var lastErr error
	for _, tier := range p.Tiers {
		logger.InfoContext(ctx, "Trying tier", slogx.String("tier", tier.ID))
		hash, err := o.purchaseTier(ctx, p, tier)
		if err == nil {
			logger.InfoContext(ctx, "Purchase confirmed",
				slogx.String("tier", tier.ID),
				slogx.Int64("amount", p.Amount),
				slogx.String("unit_price_usdc", units.FormatUSDC(big.NewInt(tier.PriceWithDiscount))),
				slogx.Stringer("tx", hash),
			)
			return Result{Outcome: OutcomePurchased, Tier: tier, TxHash: hash}, nil
		}
		logger.ErrorContext(ctx, "Could not buy tier", err, slogx.String("tier", tier.ID))
		lastErr = err
		if ctx.Err() != nil {
			return Result{Outcome: OutcomeExhausted}, errors.WithStack(ctx.Err())
		}
	}
	return Result{Outcome: OutcomeExhausted}, errors.Mark(errors.Wrapf(lastErr, "%d tiers tried", len(p.Tiers)), errs.TiersExhausted)
}

// warnOnLowGas compares the native balance to GasLimitEstimate × MaxFeePerGas. It never blocks the wallet.
func (o *Orchestrator) warnOnLowGas(ctx context.Context, p *wallets.Participant) {
	need := new(big.Int).Mul(new(big.Int).SetUint64(o.params.GasLimitEstimate), o.params.MaxFeePerGas)
	have, err := o.net.BalanceAt(ctx, p.Address, nil)
	if err != nil {
		logger.WarnContext(ctx, "Could not read ETH balance", slogx.Error(err))
		return
	}
	if need.Cmp(have) > 0 {
		logger.WarnContext(ctx, "ETH balance may not cover the configured fee, top up recommended",
			slogx.String("top_up_eth", units.FormatETH(new(big.Int).Sub(need, have))),
		)
	}
}

// waitForStart sleeps in steps of at most MaxWaitStep until SaleStart.
func (o *Orchestrator) waitForStart(ctx context.Context) error {
	start := o.params.SaleStart
	if !o.clock.Now().Before(start) {
		return nil
	}
	logger.InfoContext(ctx, "Ready, waiting for the sale to start", slogx.Time("sale_start", start))
	for {
		remaining := start.Sub(o.clock.Now())
		if remaining <= 0 {
			return nil
		}
		if err := o.clock.Sleep(ctx, min(MaxWaitStep, remaining)); err != nil {
			return err
		}
	}
}
