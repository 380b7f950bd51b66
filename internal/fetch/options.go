package fetch

import (
	"github.com/truehome/estate/pkg/logger"
)

// Option configures a Fetcher.
type Option func(*options)

type options struct {
	name       string
	params     Params
	skip       bool
	latestOnly bool
	log        *logger.Logger
	notifier   Notifier
	onChange   func()
}

func defaultOptions() options {
	log := logger.Discard()
	return options{
		name:     "operation",
		params:   Params{},
		log:      log,
		notifier: LogNotifier{Log: log},
	}
}

// WithName labels the operation in logs and metrics.
func WithName(name string) Option {
	return func(o *options) {
		if name != "" {
			o.name = name
		}
	}
}

// WithParams sets the parameters of the mount invocation.
func WithParams(p Params) Option {
	return func(o *options) {
		o.params = p
	}
}

// WithSkip suppresses the mount invocation. Loading then starts false.
func WithSkip(skip bool) Option {
	return func(o *options) {
		o.skip = skip
	}
}

// WithLatestOnly makes the Fetcher commit only the result of the most recently
// started invocation. Older results that settle later are dropped.
func WithLatestOnly() Option {
	return func(o *options) {
		o.latestOnly = true
	}
}

// WithLogger sets the logger. The default notifier follows it unless
// WithNotifier is also given.
func WithLogger(l *logger.Logger) Option {
	return func(o *options) {
		if l == nil {
			return
		}
		if ln, ok := o.notifier.(LogNotifier); ok && ln.Log == o.log {
			o.notifier = LogNotifier{Log: l}
		}
		o.log = l
	}
}

// WithNotifier sets the sink for failure alerts.
func WithNotifier(n Notifier) Option {
	return func(o *options) {
		if n != nil {
			o.notifier = n
		}
	}
}

// WithOnChange registers a callback run after every state change, outside
// the Fetcher's lock. Read the new state with Fetcher.State.
func WithOnChange(fn func()) Option {
	return func(o *options) {
		o.onChange = fn
	}
}
