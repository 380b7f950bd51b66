// Package fetch tracks the lifecycle of one asynchronous backend operation.
//
// A Fetcher runs a caller-supplied operation, keeps the last result, the last
// failure message and a loading flag, and lets callers run the operation again
// with new parameters. Failures never escape as errors: they become state and
// trigger a one-shot notification.
//
// Overlapping invocations are not queued or coalesced. Each one commits its
// outcome when it settles, so the last one to settle wins unless the Fetcher
// was built WithLatestOnly, in which case only the most recently started
// invocation may commit.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/truehome/estate/internal/metrics"
)

// UnknownErrorMessage is stored when a failure carries no message of its own.
const UnknownErrorMessage = "An unknown error occurred"

// AlertTitle is the title passed to the Notifier on failure.
const AlertTitle = "Error"

// Func is an operation the Fetcher can run.
type Func[T any] func(ctx context.Context, params Params) (T, error)

// State is a snapshot of a Fetcher. The zero value of T stands for "no data";
// an empty Error means the last settled invocation succeeded (or none has).
type State[T any] struct {
	Data    T
	Loading bool
	Error   string
}

// Fetcher runs one operation and tracks its data, loading and error state.
type Fetcher[T any] struct {
	fn   Func[T]
	opts options

	mu       sync.Mutex
	state    State[T]
	gen      uint64
	inflight int
	idle     chan struct{}
	closed   bool
}

// New creates a Fetcher for fn. Unless WithSkip(true) is given, fn is invoked
// once with the initial parameters before New returns, and Loading is already
// true in the returned Fetcher. The mount invocation runs with ctx.
func New[T any](ctx context.Context, fn Func[T], opts ...Option) *Fetcher[T] {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	f := &Fetcher[T]{
		fn:   fn,
		opts: o,
		idle: closedChan(),
	}

	if !o.skip {
		gen := f.begin()
		go f.finish(ctx, gen, o.params.Clone())
	}
	return f
}

// Refetch runs the operation with params and blocks until that invocation has
// settled. It runs even when the Fetcher was built with WithSkip. The outcome
// is reported through State, never as a return value. A nil params map is
// passed to the operation as an empty one.
func (f *Fetcher[T]) Refetch(ctx context.Context, params Params) {
	gen := f.begin()
	f.finish(ctx, gen, params.Clone())
}

// State returns a snapshot of the current state.
func (f *Fetcher[T]) State() State[T] {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// Wait blocks until no invocation is in flight or ctx is done.
func (f *Fetcher[T]) Wait(ctx context.Context) error {
	for {
		f.mu.Lock()
		if f.inflight == 0 {
			f.mu.Unlock()
			return nil
		}
		idle := f.idle
		f.mu.Unlock()

		select {
		case <-idle:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Close detaches the Fetcher from its owner. Invocations already running are
// not aborted, but their results are dropped instead of being written to state.
func (f *Fetcher[T]) Close() {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
}

// begin registers a new invocation and flips Loading on.
func (f *Fetcher[T]) begin() uint64 {
	f.mu.Lock()
	f.gen++
	gen := f.gen
	if f.inflight == 0 {
		f.idle = make(chan struct{})
	}
	f.inflight++
	if !f.closed {
		f.state.Loading = true
		f.state.Error = ""
	}
	f.mu.Unlock()

	metrics.FetchStarted(f.opts.name)
	f.changed()
	return gen
}

func (f *Fetcher[T]) finish(ctx context.Context, gen uint64, params Params) {
	start := time.Now()
	result, err := f.call(ctx, params)
	elapsed := time.Since(start)

	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	metrics.RecordFetch(f.opts.name, outcome, elapsed)

	f.mu.Lock()
	f.inflight--
	if f.inflight == 0 {
		close(f.idle)
	}

	if f.closed {
		f.mu.Unlock()
		metrics.RecordFetchDiscarded(f.opts.name, "closed")
		f.opts.log.WithField("operation", f.opts.name).Debug("dropping result for closed fetcher")
		return
	}
	if f.opts.latestOnly && gen != f.gen {
		f.mu.Unlock()
		metrics.RecordFetchDiscarded(f.opts.name, "superseded")
		f.opts.log.WithField("operation", f.opts.name).
			WithField("generation", gen).
			Debug("dropping superseded result")
		return
	}

	var msg string
	if err != nil {
		msg = Message(err)
		f.state.Error = msg
	} else {
		f.state.Data = result
		f.state.Error = ""
	}
	f.state.Loading = false
	f.mu.Unlock()

	if err != nil {
		f.opts.log.WithField("operation", f.opts.name).
			WithError(err).
			Warn("fetch failed")
		f.opts.notifier.Notify(AlertTitle, msg)
	}
	f.changed()
}

// call runs fn, turning a panic into an error so a misbehaving operation is
// reported like any other failure.
func (f *Fetcher[T]) call(ctx context.Context, params Params) (result T, err error) {
	defer func() {
		if r := recover(); r != nil {
			if perr, ok := r.(error); ok {
				err = fmt.Errorf("operation panicked: %w", perr)
				return
			}
			err = errNoMessage
		}
	}()
	return f.fn(ctx, params)
}

func (f *Fetcher[T]) changed() {
	if f.opts.onChange != nil {
		f.opts.onChange()
	}
}

var errNoMessage = errors.New("")

// Message returns the human-readable text stored for a failure.
func Message(err error) string {
	if err == nil {
		return ""
	}
	msg := strings.TrimSpace(err.Error())
	if msg == "" {
		return UnknownErrorMessage
	}
	return msg
}

func closedChan() chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
