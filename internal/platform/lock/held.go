package lock

import (
	"context"
	"errors"

	"github.com/ehr/hms-scheduler/internal/platform/apperr"
)

type heldKey struct{}

// Acquire locks the keys ctx does not already hold and returns a context
// that records them, so nested service calls on the same keys do not block
// on themselves. A wait timeout is reported as apperr.KindUnavailable.
//
// A unit of work must take all of its keys in a single Acquire call so they
// are locked in sorted order; nested calls may only re-request held keys.
func Acquire(ctx context.Context, l Locker, keys ...string) (context.Context, func(), error) {
	held, _ := ctx.Value(heldKey{}).(map[string]struct{})

	var missing []string
	for _, k := range normalize(keys) {
		if _, ok := held[k]; !ok {
			missing = append(missing, k)
		}
	}
	if len(missing) == 0 {
		return ctx, func() {}, nil
	}

	unlock, err := l.Lock(ctx, missing...)
	if err != nil {
		if errors.Is(err, ErrTimeout) {
			return ctx, nil, apperr.Wrap(apperr.KindUnavailable, err, "timed out waiting for %v", missing)
		}
		return ctx, nil, err
	}

	next := make(map[string]struct{}, len(held)+len(missing))
	for k := range held {
		next[k] = struct{}{}
	}
	for _, k := range missing {
		next[k] = struct{}{}
	}
	return context.WithValue(ctx, heldKey{}, next), unlock, nil
}

// Holds reports whether ctx was returned by an Acquire that took key.
func Holds(ctx context.Context, key string) bool {
	held, _ := ctx.Value(heldKey{}).(map[string]struct{})
	_, ok := held[key]
	return ok
}
