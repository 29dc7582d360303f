// Package wallets turns the wallet list into validated sale participants.
package wallets

import (
	"bufio"
	"context"
	"io"
	"log/slog"
	"math"
	"math/big"
	"os"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ligun0805/tier-sale/internal/errs"
	"github.com/ligun0805/tier-sale/internal/tiers"
	"github.com/ligun0805/tier-sale/pkg/logger"
	"github.com/ligun0805/tier-sale/pkg/logger/slogx"
)

// Participant is one wallet ready for the sale.
type Participant struct {
	Line    int
	Signer  Signer
	Address common.Address
	MinTier int
	MaxTier int
	// Tiers is cheapest first and never empty.
	Tiers  []tiers.Tier
	Amount int64
}

// HighestTier is the most expensive tier the wallet may buy.
func (p *Participant) HighestTier() tiers.Tier { return tiers.Highest(p.Tiers) }

// WorstCaseCost sizes the funding and allowance checks.
func (p *Participant) WorstCaseCost() *big.Int { return p.HighestTier().Cost(p.Amount) }

func (p *Participant) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("address", p.Address.Hex()),
		slog.Int("line", p.Line),
		slog.Int("min_tier", p.MinTier),
		slog.Int("max_tier", p.MaxTier),
		slog.Int64("amount", p.Amount),
	)
}

// ParseLine parses `secretKey;tierRange;amount`. It returns nil, nil for blank and comment lines.
// Key and tier range defects are errs.ConfigDefect; amount defects are fixed up with a warning.
func ParseLine(ctx context.Context, catalog *tiers.Catalog, lineNo int, line string) (*Participant, error) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return nil, nil
	}
	ctx = logger.WithContext(ctx, slogx.Int("line", lineNo))

	fields := strings.Split(line, ";")
	rawKey := fields[0]
	rawRange, rawAmount := "", ""
	if len(fields) > 1 {
		rawRange = strings.TrimSpace(fields[1])
	}
	if len(fields) > 2 {
		rawAmount = strings.TrimSpace(fields[2])
	}

	signer, err := NewKeySigner(rawKey)
	if err != nil {
		return nil, errors.Wrapf(errs.ConfigDefect, "line %d: invalid private key", lineNo)
	}

	minTier, maxTier, err := parseTierRange(rawRange)
	if err != nil {
		return nil, errors.Wrapf(errs.ConfigDefect, "line %d: can't parse tier range %q, check the format and restart", lineNo, rawRange)
	}
	resolved, err := catalog.Range(minTier, maxTier)
	if err != nil {
		return nil, errors.Wrapf(err, "line %d", lineNo)
	}

	amount, err := strconv.ParseInt(rawAmount, 10, 64)
	if errors.Is(err, strconv.ErrRange) && !strings.HasPrefix(rawAmount, "-") {
		// too large for int64, the allocation clamp below still applies
		amount, err = math.MaxInt64, nil
	}
	if err != nil || amount < 1 {
		shown := rawAmount
		if shown == "" {
			shown = "<empty>"
		}
		logger.WarnContext(ctx, "Invalid amount, using 1. Edit the wallet list and restart if you need another amount",
			slogx.String("amount", shown))
		amount = 1
	}

	if limit := tiers.MinAllocation(resolved); amount > limit {
		logger.WarnContext(ctx, "Amount exceeds the per-wallet allocation of the selected tiers, clamping",
			slogx.Int64("amount", amount),
			slogx.Int64("max_allocation", limit),
		)
		amount = limit
	}

	return &Participant{
		Line:    lineNo,
		Signer:  signer,
		Address: signer.Address(),
		MinTier: minTier,
		MaxTier: maxTier,
		Tiers:   resolved,
		Amount:  amount,
	}, nil
}

// parseTierRange accepts "N" or "N-M".
func parseTierRange(s string) (int, int, error) {
	first, last, isRange := strings.Cut(s, "-")
	lower, err := strconv.Atoi(strings.TrimSpace(first))
	if err != nil {
		return 0, 0, errors.WithStack(err)
	}
	if !isRange {
		return lower, lower, nil
	}
	upper, err := strconv.Atoi(strings.TrimSpace(last))
	if err != nil {
		return 0, 0, errors.WithStack(err)
	}
	return lower, upper, nil
}

// Load parses every line of r. An input without participants is errs.ConfigDefect.
func Load(ctx context.Context, catalog *tiers.Catalog, r io.Reader) ([]*Participant, error) {
	var (
		out     []*Participant
		seen    = make(map[common.Address]int)
		scanner = bufio.NewScanner(r)
		lineNo  = 0
	)
	for scanner.Scan() {
		lineNo++
		p, err := ParseLine(ctx, catalog, lineNo, scanner.Text())
		if err != nil {
			return nil, err
		}
		if p == nil {
			continue
		}
		if first, ok := seen[p.Address]; ok {
			logger.WarnContext(ctx, "Wallet is listed more than once",
				slogx.Stringer("wallet", p.Address),
				slogx.Int("line", lineNo),
				slogx.Int("first_line", first),
			)
		} else {
			seen[p.Address] = lineNo
		}
		logger.DebugContext(ctx, "Wallet loaded", slogx.Any("participant", p))
		out = append(out, p)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "read wallet list")
	}
	if len(out) == 0 {
		return nil, errors.Wrap(errs.ConfigDefect, "wallet list is empty, fill it in and restart")
	}
	return out, nil
}

// LoadFile opens path and calls Load.
func LoadFile(ctx context.Context, catalog *tiers.Catalog, path string) ([]*Participant, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open wallet list %q", path)
	}
	defer f.Close()
	return Load(ctx, catalog, f)
}
