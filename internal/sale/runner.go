package sale

import (
	"context"
	"fmt"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/ligun0805/tier-sale/internal/wallets"
	"github.com/ligun0805/tier-sale/pkg/logger"
	"github.com/ligun0805/tier-sale/pkg/logger/slogx"
	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"
)

// Preparer is satisfied by *Orchestrator.
type Preparer interface {
	Prepare(ctx context.Context, p *wallets.Participant) (Result, error)
}

type Report struct {
	Participant *wallets.Participant
	Result      Result
	Err         error
	Elapsed     time.Duration
}

type Summary struct {
	Reports []Report
}

func (s Summary) Count(o Outcome) int {
	return lo.CountBy(s.Reports, func(r Report) bool { return r.Result.Outcome == o })
}

// Failed counts wallets that ended with an error.
func (s Summary) Failed() int {
	return lo.CountBy(s.Reports, func(r Report) bool { return r.Err != nil })
}

type Runner struct {
	preparer Preparer
}

func NewRunner(p Preparer) *Runner {
	return &Runner{preparer: p}
}

// Run prepares every participant concurrently and returns once all of them have settled.
// One wallet's error or panic never stops the others.
func (r *Runner) Run(ctx context.Context, participants []*wallets.Participant) Summary {
	reports := make([]Report, len(participants))
	if len(participants) == 0 {
		return Summary{}
	}

	logger.InfoContext(ctx, "Checking balances and approvals", slogx.Int("wallets", len(participants)))

	var g errgroup.Group
	for i, p := range participants {
		g.Go(func() error {
			reports[i] = r.runOne(ctx, p)
			return nil
		})
	}
	_ = g.Wait()

	s := Summary{Reports: reports}
	logger.InfoContext(ctx, "Run completed",
		slogx.Int("wallets", len(reports)),
		slogx.Int("purchased", s.Count(OutcomePurchased)),
		slogx.Int("underfunded", s.Count(OutcomeUnderfunded)),
		slogx.Int("failed", s.Failed()),
	)
	return s
}

func (r *Runner) runOne(ctx context.Context, p *wallets.Participant) (rep Report) {
	start := time.Now()
	rep.Participant = p
	defer func() {
		if v := recover(); v != nil {
			rep.Err = errors.WithStack(fmt.Errorf("panic: %v", v))
			rep.Result = Result{Outcome: OutcomeFailed}
		}
		rep.Elapsed = time.Since(start)
		if rep.Err != nil {
			logger.ErrorContext(ctx, "Wallet preparation failed", rep.Err,
				slogx.Stringer("wallet", p.Address),
				slogx.String("outcome", rep.Result.Outcome.String()),
			)
		}
	}()
	rep.Result, rep.Err = r.preparer.Prepare(ctx, p)
	return rep
}
