package pharmacy

import (
	"context"
	"errors"
	"log"
	"time"
)

// Option configures the services of this package.
type Option func(*unit)

// WithClock replaces time.Now (tests).
func WithClock(now func() time.Time) Option {
	return func(u *unit) { u.now = now }
}

// WithLockTimeout bounds one atomic unit, lock waits included. Zero means the
// caller's context alone decides.
func WithLockTimeout(d time.Duration) Option {
	return func(u *unit) { u.timeout = d }
}

// unit runs closures as atomic units against a Store.
type unit struct {
	store   Store
	now     func() time.Time
	timeout time.Duration
}

func newUnit(store Store, opts []Option) unit {
	u := unit{store: store, now: time.Now}
	for _, opt := range opts {
		opt(&u)
	}
	return u
}

func (u unit) clock() time.Time {
	return u.now().UTC()
}

// run executes fn inside one atomic unit. No retries: Conflict and
// StorageFailure go back to the caller.
func (u unit) run(ctx context.Context, op string, fn func(ctx context.Context, tx Tx) error) error {
	if u.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, u.timeout)
		defer cancel()
	}

	err := u.store.WithTx(ctx, func(tx Tx) error {
		return fn(ctx, tx)
	})
	switch {
	case err == nil:
	case errors.Is(err, ErrConflict):
		log.Printf("[Ledger] %s: conflict, rolled back: %v", op, err)
	case errors.Is(err, ErrStorageFailure):
		log.Printf("[Ledger] %s: storage failure, rolled back: %v", op, err)
	}
	return err
}
