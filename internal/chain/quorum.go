// Package chain is the network access facade: several RPC endpoints behind one client
// that starts them one after another and accepts a value once enough of them agree.
package chain

import (
	"context"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ligun0805/tier-sale/internal/errs"
	"github.com/ligun0805/tier-sale/pkg/logger"
	"github.com/ligun0805/tier-sale/pkg/logger/slogx"
)

const (
	DefaultQuorum       = 1
	DefaultStallTimeout = 500 * time.Millisecond
	DefaultPollInterval = time.Second
	DefaultCallTimeout  = 10 * time.Second
)

// Quorum is safe for concurrent use and immutable after construction.
type Quorum struct {
	endpoints    []Endpoint
	quorum       int
	stallTimeout time.Duration
	pollInterval time.Duration
	callTimeout  time.Duration
}

type Option func(*Quorum)

func WithQuorum(n int) Option {
	return func(q *Quorum) { q.quorum = n }
}

func WithStallTimeout(d time.Duration) Option {
	return func(q *Quorum) { q.stallTimeout = d }
}

func WithPollInterval(d time.Duration) Option {
	return func(q *Quorum) { q.pollInterval = d }
}

// WithCallTimeout bounds every single endpoint call, so a fully stalled endpoint set fails instead of hanging.
func WithCallTimeout(d time.Duration) Option {
	return func(q *Quorum) { q.callTimeout = d }
}

func NewQuorum(endpoints []Endpoint, opts ...Option) (*Quorum, error) {
	q := &Quorum{
		endpoints:    append([]Endpoint(nil), endpoints...),
		quorum:       DefaultQuorum,
		stallTimeout: DefaultStallTimeout,
		pollInterval: DefaultPollInterval,
		callTimeout:  DefaultCallTimeout,
	}
	for _, opt := range opts {
		opt(q)
	}
	switch {
	case len(q.endpoints) == 0:
		return nil, errors.Wrap(errs.ConfigDefect, "at least one RPC endpoint is required")
	case q.quorum < 1 || q.quorum > len(q.endpoints):
		return nil, errors.Wrapf(errs.ConfigDefect, "quorum %d is out of range for %d endpoints", q.quorum, len(q.endpoints))
	case q.stallTimeout <= 0:
		return nil, errors.Wrap(errs.ConfigDefect, "stall timeout must be positive")
	case q.pollInterval <= 0:
		return nil, errors.Wrap(errs.ConfigDefect, "poll interval must be positive")
	case q.callTimeout <= 0:
		return nil, errors.Wrap(errs.ConfigDefect, "call timeout must be positive")
	}
	return q, nil
}

func (q *Quorum) Len() int { return len(q.endpoints) }

type answer[T any] struct {
	endpoint int
	value    T
	err      error
}

// read starts endpoints one at a time. Another one is started whenever the running ones stall
// for stallTimeout or an answer arrives without reaching quorum.
func read[T any](ctx context.Context, q *Quorum, op string, call func(context.Context, Endpoint) (T, error), key func(T) string) (T, error) {
	var zero T

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	answers := make(chan answer[T], len(q.endpoints))
	started := 0
	startNext := func() bool {
		if started >= len(q.endpoints) {
			return false
		}
		i, ep := started, q.endpoints[started]
		started++
		if i > 0 {
			logger.DebugContext(ctx, "Starting fallback RPC endpoint", slogx.String("op", op), slogx.Int("endpoint", i))
		}
		go func() {
			callCtx, cancel := context.WithTimeout(ctx, q.callTimeout)
			defer cancel()
			v, err := call(callCtx, ep)
			answers <- answer[T]{endpoint: i, value: v, err: err}
		}()
		return true
	}
	startNext()

	stall := time.NewTimer(q.stallTimeout)
	defer stall.Stop()

	var (
		votes    = make(map[string]int)
		failures error
		answered int
	)
	for {
		select {
		case <-ctx.Done():
			return zero, errors.WithStack(ctx.Err())
		case <-stall.C:
			if startNext() {
				stall.Reset(q.stallTimeout)
			}
		case a := <-answers:
			if ctx.Err() != nil {
				return zero, errors.WithStack(ctx.Err())
			}
			answered++
			if a.err != nil {
				failures = errors.CombineErrors(failures, errors.Wrapf(a.err, "endpoint #%d", a.endpoint))
			} else {
				k := key(a.value)
				votes[k]++
				if votes[k] >= q.quorum {
					return a.value, nil
				}
			}
			if startNext() {
				if !stall.Stop() {
					select {
					case <-stall.C:
					default:
					}
				}
				stall.Reset(q.stallTimeout)
			}
			if answered == len(q.endpoints) {
				if failures == nil {
					failures = errors.Newf("%d endpoints answered without agreement", answered)
				}
				return zero, errors.Mark(errors.Wrapf(failures, "%s: no quorum of %d", op, q.quorum), errs.NoQuorum)
			}
		}
	}
}

func bigKey(v *big.Int) string {
	if v == nil {
		return "<nil>"
	}
	return v.String()
}

func uintKey(v uint64) string { return strconv.FormatUint(v, 10) }

func (q *Quorum) BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error) {
	return read(ctx, q, "eth_getBalance", func(ctx context.Context, ep Endpoint) (*big.Int, error) {
		return ep.BalanceAt(ctx, account, blockNumber)
	}, bigKey)
}

func (q *Quorum) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	return read(ctx, q, "eth_call", func(ctx context.Context, ep Endpoint) ([]byte, error) {
		return ep.CallContract(ctx, msg, blockNumber)
	}, func(b []byte) string { return hexutil.Encode(b) })
}

func (q *Quorum) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	return read(ctx, q, "eth_getTransactionCount", func(ctx context.Context, ep Endpoint) (uint64, error) {
		return ep.PendingNonceAt(ctx, account)
	}, uintKey)
}

func (q *Quorum) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	return read(ctx, q, "eth_estimateGas", func(ctx context.Context, ep Endpoint) (uint64, error) {
		return ep.EstimateGas(ctx, msg)
	}, uintKey)
}

func (q *Quorum) BlockNumber(ctx context.Context) (uint64, error) {
	return read(ctx, q, "eth_blockNumber", func(ctx context.Context, ep Endpoint) (uint64, error) {
		return ep.BlockNumber(ctx)
	}, uintKey)
}

// TransactionReceipt returns nil, nil while the transaction is not mined.
func (q *Quorum) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	return read(ctx, q, "eth_getTransactionReceipt", func(ctx context.Context, ep Endpoint) (*types.Receipt, error) {
		r, err := ep.TransactionReceipt(ctx, txHash)
		if errors.Is(err, ethereum.NotFound) {
			return nil, nil
		}
		return r, err
	}, func(r *types.Receipt) string {
		if r == nil {
			return "pending"
		}
		return r.BlockHash.Hex() + "/" + uintKey(r.Status)
	})
}

// SendTransaction broadcasts tx to every endpoint and succeeds as soon as one accepts it.
func (q *Quorum) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make(chan error, len(q.endpoints))
	for i, ep := range q.endpoints {
		go func(i int, ep Endpoint) {
			callCtx, cancel := context.WithTimeout(ctx, q.callTimeout)
			defer cancel()
			err := ep.SendTransaction(callCtx, tx)
			if err != nil && !isAlreadyKnown(err) {
				results <- errors.Wrapf(err, "endpoint #%d", i)
				return
			}
			results <- nil
		}(i, ep)
	}

	var failures error
	for range q.endpoints {
		select {
		case <-ctx.Done():
			return errors.WithStack(ctx.Err())
		case err := <-results:
			if err == nil {
				return nil
			}
			failures = errors.CombineErrors(failures, err)
		}
	}
	return errors.Wrapf(failures, "broadcast %s", tx.Hash().Hex())
}

func isAlreadyKnown(err error) bool {
	s := strings.ToLower(err.Error())
	return strings.Contains(s, "already known") || strings.Contains(s, "known transaction")
}
