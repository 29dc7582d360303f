package sale

import (
	"context"
	"math/big"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ligun0805/tier-sale/internal/wallets"
)

const saleABI = `[{
	"type":"function","name":"whitelistedPurchaseInTierWithCode","stateMutability":"payable",
	"inputs":[
		{"name":"tierId","type":"string"},
		{"name":"amount","type":"uint256"},
		{"name":"merkleProof","type":"bytes32[]"},
		{"name":"code","type":"string"},
		{"name":"allowance","type":"uint256"}
	],
	"outputs":[]
}]`

const purchaseMethod = "whitelistedPurchaseInTierWithCode"

var parsedSaleABI = func() abi.ABI {
	a, err := abi.JSON(strings.NewReader(saleABI))
	if err != nil {
		panic(err)
	}
	return a
}()

// packPurchase encodes the whitelisted purchase; the wallet allowance equals the amount and the proof is empty.
func packPurchase(tierID string, amount int64, code string) ([]byte, error) {
	n := big.NewInt(amount)
	data, err := parsedSaleABI.Pack(purchaseMethod, tierID, n, [][32]byte{}, code, n)
	return data, errors.Wrap(err, "pack purchase")
}

// Build EIP-1559 transaction.
func buildDynamicTx(chain *big.Int, nonce uint64, to *common.Address, value *big.Int, gasLimit uint64, tip, feeCap *big.Int, data []byte) *types.Transaction {
	df := &types.DynamicFeeTx{
		ChainID:   chain,
		Nonce:     nonce,
		Gas:       gasLimit,
		GasTipCap: new(big.Int).Set(tip),
		GasFeeCap: new(big.Int).Set(feeCap),
		To:        to,
		Value:     new(big.Int).Set(value),
		Data:      data,
	}
	return types.NewTx(df)
}

// populateAndSign fills nonce and gas from the network, applies the fixed fee caps and signs.
func (o *Orchestrator) populateAndSign(ctx context.Context, p *wallets.Participant, to common.Address, data []byte) (*types.Transaction, error) {
	nonce, err := o.net.PendingNonceAt(ctx, p.Address)
	if err != nil {
		return nil, errors.Wrap(err, "pending nonce")
	}
	gas, err := o.net.EstimateGas(ctx, ethereum.CallMsg{
		From:      p.Address,
		To:        &to,
		GasFeeCap: o.params.MaxFeePerGas,
		GasTipCap: o.params.MaxPriorityFeePerGas,
		Value:     new(big.Int),
		Data:      data,
	})
	if err != nil {
		return nil, errors.Wrap(err, "estimate gas")
	}
	tx := buildDynamicTx(o.params.ChainID, nonce, &to, new(big.Int), gas, o.params.MaxPriorityFeePerGas, o.params.MaxFeePerGas, data)
	signed, err := p.Signer.SignTx(tx, o.params.ChainID)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return signed, nil
}
