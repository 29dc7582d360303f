// Package erc20 reads balances and allowances of an ERC-20 token and encodes approve calls.
package erc20

import (
	"context"
	"math/big"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

const erc20ABI = `[
	{"type":"function","name":"balanceOf","stateMutability":"view","inputs":[{"name":"owner","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"allowance","stateMutability":"view","inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"approve","stateMutability":"nonpayable","inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]}
]`

var parsed = func() abi.ABI {
	a, err := abi.JSON(strings.NewReader(erc20ABI))
	if err != nil {
		panic(err)
	}
	return a
}()

// Token binds one token contract to a reader.
type Token struct {
	Address common.Address
	caller  ethereum.ContractCaller
}

func New(address common.Address, caller ethereum.ContractCaller) *Token {
	return &Token{Address: address, caller: caller}
}

// BalanceOf returns the token balance of owner at the latest block.
func (t *Token) BalanceOf(ctx context.Context, owner common.Address) (*big.Int, error) {
	out, err := t.call(ctx, "balanceOf", owner)
	if err != nil {
		return nil, errors.Wrapf(err, "balanceOf(%s)", owner.Hex())
	}
	return out, nil
}

// Allowance returns how much spender may move on behalf of owner.
func (t *Token) Allowance(ctx context.Context, owner, spender common.Address) (*big.Int, error) {
	out, err := t.call(ctx, "allowance", owner, spender)
	if err != nil {
		return nil, errors.Wrapf(err, "allowance(%s, %s)", owner.Hex(), spender.Hex())
	}
	return out, nil
}

// PackApprove encodes approve(spender, amount).
func PackApprove(spender common.Address, amount *big.Int) ([]byte, error) {
	data, err := parsed.Pack("approve", spender, amount)
	return data, errors.WithStack(err)
}

func (t *Token) call(ctx context.Context, method string, args ...any) (*big.Int, error) {
	data, err := parsed.Pack(method, args...)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	to := t.Address
	ret, err := t.caller.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
	if err != nil {
		return nil, errors.Wrap(err, RevertReason(err))
	}
	if len(ret) == 0 {
		return nil, errors.Newf("empty return from %s, is %s a token contract?", method, t.Address.Hex())
	}
	values, err := parsed.Unpack(method, ret)
	if err != nil {
		return nil, errors.Wrapf(err, "decode %s", method)
	}
	v, ok := values[0].(*big.Int)
	if !ok {
		return nil, errors.Newf("unexpected %s return type %T", method, values[0])
	}
	return v, nil
}

// RevertReason trims an RPC error down to its "execution reverted" part when present.
func RevertReason(e error) string {
	s := e.Error()
	if i := strings.Index(s, "execution reverted"); i >= 0 {
		return s[i:]
	}
	return "eth_call"
}
