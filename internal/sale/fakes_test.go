package sale

import (
	"context"
	"encoding/hex"
	"math/big"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ligun0805/tier-sale/internal/tiers"
	"github.com/ligun0805/tier-sale/internal/units"
	"github.com/ligun0805/tier-sale/internal/wallets"
	"github.com/stretchr/testify/require"
)

var (
	testChainID = big.NewInt(42161)
	tokenAddr   = common.HexToAddress("0xaf88d065e77c8cC2239327C5EDb3A432268e5831")
	saleAddr    = common.HexToAddress("0xbB8f1675A371262e9909c6A3BC7d4bf98AE5f47D")
	t0          = time.Date(2024, 10, 24, 9, 0, 0, 0, time.UTC)
)

func testParams() Params {
	return Params{
		ChainID:              testChainID,
		Token:                tokenAddr,
		Sale:                 saleAddr,
		PromoCode:            "oduvanchik",
		MaxFeePerGas:         units.GweiToWei(10),
		MaxPriorityFeePerGas: units.GweiToWei(6),
		GasLimitEstimate:     500_000,
		AttemptsPerTier:      5,
		RetryDelay:           200 * time.Millisecond,
		ApprovalTimeout:      300 * time.Second,
		PurchaseTimeout:      30 * time.Second,
		SaleStart:            t0.Add(-time.Minute),
	}
}

type manualClock struct {
	mu     sync.Mutex
	now    time.Time
	sleeps []time.Duration
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sleeps = append(c.sleeps, d)
	c.now = c.now.Add(d)
	return nil
}

type countingSigner struct {
	wallets.Signer
	signs atomic.Int32
}

func (s *countingSigner) SignTx(tx *types.Transaction, chainID *big.Int) (*types.Transaction, error) {
	s.signs.Add(1)
	return s.Signer.SignTx(tx, chainID)
}

// newParticipant resolves a fresh wallet for tierRange and wraps its signer with a counter.
func newParticipant(t *testing.T, tierRange, amount string) (*wallets.Participant, *countingSigner) {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	line := hex.EncodeToString(crypto.FromECDSA(key)) + ";" + tierRange + ";" + amount
	p, err := wallets.ParseLine(context.Background(), tiers.Default(), 1, line)
	require.NoError(t, err)
	cs := &countingSigner{Signer: p.Signer}
	p.Signer = cs
	return p, cs
}

type fakeNet struct {
	mu sync.Mutex

	usdc      map[common.Address]*big.Int
	allowance map[common.Address]*big.Int
	eth       map[common.Address]*big.Int
	nonces    map[common.Address]uint64

	estimateFailures int
	// mined decides the fate of a broadcast transaction, nil means confirmed.
	mined func(tx *types.Transaction) error

	sent  []*types.Transaction
	calls int
}

func newFakeNet() *fakeNet {
	return &fakeNet{
		usdc:      map[common.Address]*big.Int{},
		allowance: map[common.Address]*big.Int{},
		eth:       map[common.Address]*big.Int{},
		nonces:    map[common.Address]uint64{},
	}
}

func word(v *big.Int) []byte {
	if v == nil {
		v = new(big.Int)
	}
	return common.LeftPadBytes(v.Bytes(), 32)
}

func (f *fakeNet) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	owner := common.BytesToAddress(msg.Data[4:36])
	switch hex.EncodeToString(msg.Data[:4]) {
	case "70a08231":
		return word(f.usdc[owner]), nil
	case "dd62ed3e":
		return word(f.allowance[owner]), nil
	}
	return nil, errors.New("unknown selector")
}

func (f *fakeNet) BalanceAt(_ context.Context, account common.Address, _ *big.Int) (*big.Int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if v, ok := f.eth[account]; ok {
		return v, nil
	}
	return new(big.Int), nil
}

func (f *fakeNet) PendingNonceAt(_ context.Context, account common.Address) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.nonces[account], nil
}

func (f *fakeNet) EstimateGas(context.Context, ethereum.CallMsg) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.estimateFailures > 0 {
		f.estimateFailures--
		return 0, errors.New("execution reverted: sale not active")
	}
	return 300_000, nil
}

func (f *fakeNet) SendTransaction(_ context.Context, tx *types.Transaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.sent = append(f.sent, tx)
	return nil
}

func (f *fakeNet) WaitMined(_ context.Context, hash common.Hash, _ uint64, _ time.Duration) (*types.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	var tx *types.Transaction
	for _, s := range f.sent {
		if s.Hash() == hash {
			tx = s
		}
	}
	if tx == nil {
		return nil, errors.New("unknown transaction")
	}
	if f.mined != nil {
		if err := f.mined(tx); err != nil {
			return nil, err
		}
	}
	from, err := types.Sender(types.LatestSignerForChainID(testChainID), tx)
	if err != nil {
		return nil, err
	}
	f.nonces[from] = tx.Nonce() + 1
	if *tx.To() == tokenAddr {
		f.allowance[from] = new(big.Int).SetBytes(tx.Data()[36:68])
	}
	return &types.Receipt{Status: types.ReceiptStatusSuccessful, TxHash: hash, BlockNumber: big.NewInt(1)}, nil
}

func (f *fakeNet) sentTo(addr common.Address) []*types.Transaction {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*types.Transaction
	for _, tx := range f.sent {
		if *tx.To() == addr {
			out = append(out, tx)
		}
	}
	return out
}

func tierOf(t *testing.T, tx *types.Transaction) string {
	t.Helper()
	args, err := parsedSaleABI.Methods[purchaseMethod].Inputs.Unpack(tx.Data()[4:])
	require.NoError(t, err)
	return args[0].(string)
}
