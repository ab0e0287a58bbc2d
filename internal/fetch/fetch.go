// Package fetch defines the gear fetch capability the daily cron drives.
//
// A capability has a single method returning a Completion. Immediate work
// resolves the completion before returning; deferred work resolves it later.
// Callers always Await, so they never need to know which kind they hold.
package fetch

import (
	"context"
	"io"
)

// Completion yields exactly one error (nil on success) and is then closed.
type Completion <-chan error

// Capability fetches gear data for one YYYY-MM-DD date, writing anything it
// prints to out.
type Capability interface {
	FetchGearForDate(ctx context.Context, date string, out io.Writer) Completion
}

// Func adapts a blocking function into a Capability.
type Func func(ctx context.Context, date string, out io.Writer) error

// FetchGearForDate runs f inline and returns an already resolved completion.
func (f Func) FetchGearForDate(ctx context.Context, date string, out io.Writer) Completion {
	return Done(f(ctx, date, out))
}

// AsyncFunc adapts a function that starts work and reports through a channel.
type AsyncFunc func(ctx context.Context, date string, out io.Writer) <-chan error

// FetchGearForDate starts f and hands back its channel.
func (f AsyncFunc) FetchGearForDate(ctx context.Context, date string, out io.Writer) Completion {
	return Completion(f(ctx, date, out))
}

// Done returns a completion that has already resolved with err.
func Done(err error) Completion {
	ch := make(chan error, 1)
	ch <- err
	close(ch)
	return ch
}

// Await blocks until c resolves. A nil completion counts as success and a
// channel closed without a value counts as success.
func Await(c Completion) error {
	if c == nil {
		return nil
	}
	return <-c
}
