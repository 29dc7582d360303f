package chain

import (
	"context"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/ligun0805/tier-sale/internal/errs"
	"github.com/ligun0805/tier-sale/pkg/logger"
	"github.com/ligun0805/tier-sale/pkg/logger/slogx"
	"github.com/samber/lo"
	"golang.org/x/time/rate"
)

// Endpoint is the subset of *ethclient.Client the runner needs.
type Endpoint interface {
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	BlockNumber(ctx context.Context) (uint64, error)
}

var _ Endpoint = (*ethclient.Client)(nil)

// Dial connects to every URL and checks it serves chainID. ratePerSecond <= 0 disables throttling.
// The returned func closes all clients.
func Dial(ctx context.Context, urls []string, chainID *big.Int, ratePerSecond float64) ([]Endpoint, func(), error) {
	urls = lo.Uniq(lo.Compact(lo.Map(urls, func(u string, _ int) string { return strings.TrimSpace(u) })))
	if len(urls) == 0 {
		return nil, func() {}, errors.Wrap(errs.ConfigDefect, "no RPC endpoints configured")
	}

	var clients []*ethclient.Client
	closeAll := func() {
		for _, c := range clients {
			c.Close()
		}
	}

	endpoints := make([]Endpoint, 0, len(urls))
	for i, u := range urls {
		c, err := dialOne(ctx, u)
		if err != nil {
			closeAll()
			return nil, func() {}, errors.Wrapf(err, "dial rpc #%d", i)
		}
		clients = append(clients, c)

		got, err := c.ChainID(ctx)
		if err != nil {
			closeAll()
			return nil, func() {}, errors.Wrapf(err, "chain id of rpc #%d", i)
		}
		if got.Cmp(chainID) != 0 {
			closeAll()
			return nil, func() {}, errors.Wrapf(errs.ConfigDefect, "rpc #%d serves chain %s, want %s", i, got, chainID)
		}

		var ep Endpoint = c
		if ratePerSecond > 0 {
			ep = Limit(ep, ratePerSecond)
		}
		logger.DebugContext(ctx, "RPC endpoint ready", slogx.Int("endpoint", i), slogx.String("host", hostOf(u)))
		endpoints = append(endpoints, ep)
	}
	return endpoints, closeAll, nil
}

// httpRequestTimeout caps a single HTTP round trip below any per-call deadline the caller sets.
const httpRequestTimeout = 30 * time.Second

// dialOne uses an HTTP client with a request timeout for http(s) URLs; other schemes go through ethclient.
func dialOne(ctx context.Context, u string) (*ethclient.Client, error) {
	if !strings.HasPrefix(u, "http://") && !strings.HasPrefix(u, "https://") {
		return ethclient.DialContext(ctx, u)
	}
	httpClient := &http.Client{
		Timeout: httpRequestTimeout,
		Transport: &http.Transport{
			MaxIdleConns:    100,
			IdleConnTimeout: 90 * time.Second,
		},
	}
	rpcClient, err := rpc.DialHTTPWithClient(u, httpClient)
	if err != nil {
		return nil, err
	}
	return ethclient.NewClient(rpcClient), nil
}

// hostOf drops paths and query strings, which often carry API keys.
func hostOf(u string) string {
	s := u
	if i := strings.Index(s, "://"); i >= 0 {
		s = s[i+3:]
	}
	if i := strings.IndexAny(s, "/?"); i >= 0 {
		s = s[:i]
	}
	return s
}

type limitedEndpoint struct {
	Endpoint
	limiter *rate.Limiter
}

// Limit throttles every call to ep to perSecond.
func Limit(ep Endpoint, perSecond float64) Endpoint {
	burst := int(perSecond)
	if burst < 1 {
		burst = 1
	}
	return &limitedEndpoint{Endpoint: ep, limiter: rate.NewLimiter(rate.Limit(perSecond), burst)}
}

func (l *limitedEndpoint) BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error) {
	if err := l.limiter.Wait(ctx); err != nil {
		return nil, errors.WithStack(err)
	}
	return l.Endpoint.BalanceAt(ctx, account, blockNumber)
}

func (l *limitedEndpoint) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	if err := l.limiter.Wait(ctx); err != nil {
		return nil, errors.WithStack(err)
	}
	return l.Endpoint.CallContract(ctx, msg, blockNumber)
}

func (l *limitedEndpoint) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	if err := l.limiter.Wait(ctx); err != nil {
		return 0, errors.WithStack(err)
	}
	return l.Endpoint.PendingNonceAt(ctx, account)
}

func (l *limitedEndpoint) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	if err := l.limiter.Wait(ctx); err != nil {
		return 0, errors.WithStack(err)
	}
	return l.Endpoint.EstimateGas(ctx, msg)
}

func (l *limitedEndpoint) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	if err := l.limiter.Wait(ctx); err != nil {
		return errors.WithStack(err)
	}
	return l.Endpoint.SendTransaction(ctx, tx)
}

func (l *limitedEndpoint) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	if err := l.limiter.Wait(ctx); err != nil {
		return nil, errors.WithStack(err)
	}
	return l.Endpoint.TransactionReceipt(ctx, txHash)
}

func (l *limitedEndpoint) BlockNumber(ctx context.Context) (uint64, error) {
	if err := l.limiter.Wait(ctx); err != nil {
		return 0, errors.WithStack(err)
	}
	return l.Endpoint.BlockNumber(ctx)
}
