package sale

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
)

// Clock is the time source for start synchronization and retry delays.
type Clock interface {
	Now() time.Time
	// Sleep returns early with ctx's error when ctx is done.
	Sleep(ctx context.Context, d time.Duration) error
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

func (systemClock) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return errors.WithStack(ctx.Err())
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return errors.WithStack(ctx.Err())
	case <-t.C:
		return nil
	}
}
