package sale

import (
	"bytes"
	"context"
	"log/slog"
	"math/big"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ligun0805/tier-sale/internal/errs"
	"github.com/ligun0805/tier-sale/internal/units"
	"github.com/ligun0805/tier-sale/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestOrchestrator(net *fakeNet, params Params) (*Orchestrator, *manualClock) {
	clock := &manualClock{now: t0}
	return NewOrchestrator(net, params, WithClock(clock)), clock
}

func TestPrepareFundingBoundary(t *testing.T) {
	ctx := context.Background()

	t.Run("exact balance proceeds", func(t *testing.T) {
		net := newFakeNet()
		p, _ := newParticipant(t, "1-3", "2")
		require.Equal(t, "577800000", p.WorstCaseCost().String())
		net.usdc[p.Address] = big.NewInt(577_800_000)

		o, _ := newTestOrchestrator(net, testParams())
		res, err := o.Prepare(ctx, p)
		require.NoError(t, err)
		assert.Equal(t, OutcomePurchased, res.Outcome)
	})

	t.Run("one unit short aborts", func(t *testing.T) {
		net := newFakeNet()
		p, signer := newParticipant(t, "1-3", "2")
		net.usdc[p.Address] = big.NewInt(577_799_999)

		o, _ := newTestOrchestrator(net, testParams())
		res, err := o.Prepare(ctx, p)
		require.NoError(t, err)
		assert.Equal(t, OutcomeUnderfunded, res.Outcome)
		assert.Equal(t, int64(1), res.Shortfall.Int64())
		assert.Empty(t, net.sent)
		assert.Zero(t, signer.signs.Load())
	})
}

func TestPrepareApproval(t *testing.T) {
	ctx := context.Background()

	t.Run("sufficient allowance sends no approval", func(t *testing.T) {
		net := newFakeNet()
		p, _ := newParticipant(t, "1-3", "2")
		net.usdc[p.Address] = big.NewInt(1_000_000_000)
		net.allowance[p.Address] = p.WorstCaseCost()

		o, _ := newTestOrchestrator(net, testParams())
		_, err := o.Prepare(ctx, p)
		require.NoError(t, err)
		assert.Empty(t, net.sentTo(tokenAddr))
		assert.Len(t, net.sentTo(saleAddr), 1)
	})

	t.Run("approves exactly the worst case cost", func(t *testing.T) {
		net := newFakeNet()
		p, _ := newParticipant(t, "1-3", "2")
		net.usdc[p.Address] = big.NewInt(1_000_000_000)
		net.allowance[p.Address] = big.NewInt(5)

		o, _ := newTestOrchestrator(net, testParams())
		_, err := o.Prepare(ctx, p)
		require.NoError(t, err)

		approvals := net.sentTo(tokenAddr)
		require.Len(t, approvals, 1)
		tx := approvals[0]
		assert.Equal(t, saleAddr.Bytes(), tx.Data()[16:36])
		assert.Equal(t, p.WorstCaseCost(), new(big.Int).SetBytes(tx.Data()[36:68]))
		assert.Equal(t, uint8(types.DynamicFeeTxType), tx.Type())
		assert.Equal(t, testParams().MaxFeePerGas, tx.GasFeeCap())
		assert.Equal(t, testParams().MaxPriorityFeePerGas, tx.GasTipCap())

		// purchase comes after the approval nonce
		purchases := net.sentTo(saleAddr)
		require.Len(t, purchases, 1)
		assert.Equal(t, tx.Nonce()+1, purchases[0].Nonce())
	})

	t.Run("failed approval stops the wallet", func(t *testing.T) {
		net := newFakeNet()
		p, _ := newParticipant(t, "1-3", "2")
		net.usdc[p.Address] = big.NewInt(1_000_000_000)
		net.mined = func(tx *types.Transaction) error {
			if *tx.To() == tokenAddr {
				return errors.Wrap(errs.ConfirmationTimeout, "approval")
			}
			return nil
		}

		o, _ := newTestOrchestrator(net, testParams())
		res, err := o.Prepare(ctx, p)
		require.Error(t, err)
		assert.True(t, errors.Is(err, errs.ApprovalFailed))
		assert.True(t, errors.Is(err, errs.ConfirmationTimeout))
		assert.Equal(t, OutcomeFailed, res.Outcome)
		assert.Empty(t, net.sentTo(saleAddr))
	})
}

func TestPurchaseSignsOnce(t *testing.T) {
	net := newFakeNet()
	p, signer := newParticipant(t, "1", "1")
	net.usdc[p.Address] = big.NewInt(1_000_000_000)
	net.allowance[p.Address] = big.NewInt(1_000_000_000)

	failures := 5
	net.mined = func(*types.Transaction) error {
		if failures > 0 {
			failures--
			return errs.ConfirmationTimeout
		}
		return nil
	}

	o, clock := newTestOrchestrator(net, testParams())
	res, err := o.Prepare(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, OutcomePurchased, res.Outcome)
	assert.Equal(t, "PublicTier1Arbitrum", res.Tier.ID)

	assert.Equal(t, int32(1), signer.signs.Load())
	require.Len(t, net.sent, 6)
	for _, tx := range net.sent {
		assert.Equal(t, net.sent[0].Hash(), tx.Hash())
	}
	assert.Equal(t, res.TxHash, net.sent[0].Hash())
	assert.Equal(t, []time.Duration{
		200 * time.Millisecond, 200 * time.Millisecond, 200 * time.Millisecond,
		200 * time.Millisecond, 200 * time.Millisecond,
	}, clock.sleeps)
}

func TestPurchasePayload(t *testing.T) {
	net := newFakeNet()
	p, _ := newParticipant(t, "2", "3")
	net.usdc[p.Address] = big.NewInt(1_000_000_000)
	net.allowance[p.Address] = big.NewInt(1_000_000_000)

	o, _ := newTestOrchestrator(net, testParams())
	_, err := o.Prepare(context.Background(), p)
	require.NoError(t, err)

	require.Len(t, net.sent, 1)
	args, err := parsedSaleABI.Methods[purchaseMethod].Inputs.Unpack(net.sent[0].Data()[4:])
	require.NoError(t, err)
	assert.Equal(t, "PublicTier2Arbitrum", args[0])
	assert.Equal(t, int64(3), args[1].(*big.Int).Int64())
	assert.Empty(t, args[2])
	assert.Equal(t, "oduvanchik", args[3])
	assert.Equal(t, int64(3), args[4].(*big.Int).Int64())
	assert.Equal(t, uint64(300_000), net.sent[0].Gas())
}

func TestPopulateFailureLeavesNothingCached(t *testing.T) {
	net := newFakeNet()
	p, signer := newParticipant(t, "1", "1")
	net.usdc[p.Address] = big.NewInt(1_000_000_000)
	net.allowance[p.Address] = big.NewInt(1_000_000_000)
	net.estimateFailures = 2

	o, _ := newTestOrchestrator(net, testParams())
	res, err := o.Prepare(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, OutcomePurchased, res.Outcome)
	assert.Equal(t, int32(1), signer.signs.Load())
	assert.Len(t, net.sent, 1)
}

func TestTierFallback(t *testing.T) {
	net := newFakeNet()
	p, signer := newParticipant(t, "1-3", "1")
	net.usdc[p.Address] = big.NewInt(1_000_000_000)
	net.allowance[p.Address] = big.NewInt(1_000_000_000)
	net.mined = func(tx *types.Transaction) error {
		if tierOf(t, tx) != "PublicTier3Arbitrum" {
			return errors.Wrap(errs.Reverted, "sold out")
		}
		return nil
	}

	o, _ := newTestOrchestrator(net, testParams())
	res, err := o.Prepare(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, OutcomePurchased, res.Outcome)
	assert.Equal(t, "PublicTier3Arbitrum", res.Tier.ID)

	perTier := map[string]int{}
	for _, tx := range net.sent {
		perTier[tierOf(t, tx)]++
	}
	assert.Equal(t, map[string]int{
		"PublicTier1Arbitrum": 6,
		"PublicTier2Arbitrum": 6,
		"PublicTier3Arbitrum": 1,
	}, perTier)
	assert.Equal(t, int32(3), signer.signs.Load())
	assert.Equal(t, "PublicTier1Arbitrum", tierOf(t, net.sent[0]))
	assert.Equal(t, "PublicTier3Arbitrum", tierOf(t, net.sent[len(net.sent)-1]))
}

func TestAllTiersExhausted(t *testing.T) {
	net := newFakeNet()
	p, _ := newParticipant(t, "1-2", "1")
	net.usdc[p.Address] = big.NewInt(1_000_000_000)
	net.allowance[p.Address] = big.NewInt(1_000_000_000)
	net.mined = func(*types.Transaction) error { return errs.Reverted }

	params := testParams()
	params.AttemptsPerTier = 2
	o, _ := newTestOrchestrator(net, params)
	res, err := o.Prepare(context.Background(), p)
	require.Error(t, err)
	assert.Equal(t, OutcomeExhausted, res.Outcome)
	assert.True(t, errors.Is(err, errs.TiersExhausted))
	assert.True(t, errors.Is(err, errs.AttemptsExhausted))
	assert.Len(t, net.sent, 6)
}

func TestGasWarningDoesNotBlock(t *testing.T) {
	run := func(t *testing.T, eth *big.Int) string {
		t.Helper()
		net := newFakeNet()
		p, _ := newParticipant(t, "1", "1")
		net.usdc[p.Address] = big.NewInt(1_000_000_000)
		net.allowance[p.Address] = big.NewInt(1_000_000_000)
		net.eth[p.Address] = eth

		var buf bytes.Buffer
		ctx := logger.NewContext(context.Background(), slog.New(slog.NewTextHandler(&buf, nil)))
		o, _ := newTestOrchestrator(net, testParams())
		res, err := o.Prepare(ctx, p)
		require.NoError(t, err)
		assert.Equal(t, OutcomePurchased, res.Outcome)
		return buf.String()
	}

	t.Run("low balance warns", func(t *testing.T) {
		out := run(t, big.NewInt(1))
		assert.Contains(t, out, "level=WARN")
		assert.Contains(t, out, "top_up_eth=")
	})

	t.Run("enough balance stays quiet", func(t *testing.T) {
		// 500000 gas at 10 gwei
		out := run(t, units.GweiToWei(5_000_000))
		assert.NotContains(t, out, "top_up_eth=")
	})
}

func TestWaitForStart(t *testing.T) {
	t.Run("bounded steps", func(t *testing.T) {
		params := testParams()
		params.SaleStart = t0.Add(25*time.Second + 300*time.Millisecond)
		o, clock := newTestOrchestrator(newFakeNet(), params)

		require.NoError(t, o.waitForStart(context.Background()))
		assert.Equal(t, []time.Duration{10 * time.Second, 10 * time.Second, 5*time.Second + 300*time.Millisecond}, clock.sleeps)
		for _, d := range clock.sleeps {
			assert.LessOrEqual(t, d, MaxWaitStep)
		}
		assert.False(t, clock.Now().Before(params.SaleStart))
	})

	t.Run("already started", func(t *testing.T) {
		o, clock := newTestOrchestrator(newFakeNet(), testParams())
		require.NoError(t, o.waitForStart(context.Background()))
		assert.Empty(t, clock.sleeps)
	})

	t.Run("cancelled", func(t *testing.T) {
		params := testParams()
		params.SaleStart = t0.Add(time.Hour)
		o, _ := newTestOrchestrator(newFakeNet(), params)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		assert.ErrorIs(t, o.waitForStart(ctx), context.Canceled)
	})

	t.Run("purchase happens after start", func(t *testing.T) {
		net := newFakeNet()
		p, _ := newParticipant(t, "1", "1")
		net.usdc[p.Address] = big.NewInt(1_000_000_000)
		net.allowance[p.Address] = big.NewInt(1_000_000_000)

		params := testParams()
		params.SaleStart = t0.Add(time.Minute)
		o, clock := newTestOrchestrator(net, params)
		_, err := o.Prepare(context.Background(), p)
		require.NoError(t, err)
		assert.Len(t, clock.sleeps, 6)
		assert.Len(t, net.sent, 1)
	})
}

func TestSystemClockSleep(t *testing.T) {
	c := systemClock{}
	assert.NoError(t, c.Sleep(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, c.Sleep(ctx, time.Hour), context.Canceled)
}

func TestInspect(t *testing.T) {
	net := newFakeNet()
	p, _ := newParticipant(t, "4-6", "2")
	net.usdc[p.Address] = big.NewInt(800_000_000)
	net.allowance[p.Address] = big.NewInt(1)
	net.eth[p.Address] = big.NewInt(5_000_000_000_000_000)

	o, _ := newTestOrchestrator(net, testParams())
	in, err := o.Inspect(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, "727200000", in.Cost.String())
	assert.True(t, in.Funded())
	assert.False(t, in.Approved())
	assert.True(t, in.GasOK())
	assert.Empty(t, net.sent)
}
