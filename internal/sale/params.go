package sale

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ligun0805/tier-sale/internal/config"
	"github.com/ligun0805/tier-sale/internal/tiers"
)

// Params is the read-only sale setup shared by every wallet.
type Params struct {
	ChainID *big.Int
	Token   common.Address
	Sale    common.Address

	PromoCode string

	MaxFeePerGas         *big.Int
	MaxPriorityFeePerGas *big.Int
	// GasLimitEstimate only sizes the native balance warning; real limits are estimated.
	GasLimitEstimate uint64

	AttemptsPerTier int
	RetryDelay      time.Duration
	ApprovalTimeout time.Duration
	PurchaseTimeout time.Duration

	SaleStart time.Time
}

func ParamsFromSettings(s config.Settings) Params {
	return Params{
		ChainID:              s.ChainIDBig(),
		Token:                s.TokenAddress,
		Sale:                 s.SaleAddress,
		PromoCode:            s.PromoCode,
		MaxFeePerGas:         s.MaxFeePerGas(),
		MaxPriorityFeePerGas: s.MaxPriorityFeePerGas(),
		GasLimitEstimate:     s.GasLimitEstimate,
		AttemptsPerTier:      s.AttemptsPerTier,
		RetryDelay:           s.RetryDelay,
		ApprovalTimeout:      s.ApprovalTimeout,
		PurchaseTimeout:      s.PurchaseTimeout,
		SaleStart:            s.SaleStart,
	}
}

type Outcome int

const (
	// OutcomeFailed means the wallet stopped on an error before or outside the tier loop.
	OutcomeFailed Outcome = iota
	OutcomeUnderfunded
	OutcomePurchased
	OutcomeExhausted
)

func (o Outcome) String() string {
	switch o {
	case OutcomeUnderfunded:
		return "underfunded"
	case OutcomePurchased:
		return "purchased"
	case OutcomeExhausted:
		return "exhausted"
	default:
		return "failed"
	}
}

// Result is what Prepare reports for one wallet.
type Result struct {
	Outcome Outcome
	// Tier and TxHash are set for OutcomePurchased.
	Tier   tiers.Tier
	TxHash common.Hash
	// Shortfall is set for OutcomeUnderfunded.
	Shortfall *big.Int
}
