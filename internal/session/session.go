// Package session holds the signed-in user for the whole application.
//
// A Provider is built once by the composition root, which triggers a single
// "get current user" lookup, and is handed to the rest of the program through
// a context.Context. Whether someone is logged in is always derived from the
// user record; it is never stored on its own.
package session

import (
	"context"
	"errors"

	"github.com/truehome/estate/internal/estate"
	"github.com/truehome/estate/internal/fetch"
	"github.com/truehome/estate/pkg/logger"
)

// ErrOutsideProvider is raised when session state is requested from a context
// that no Provider was attached to. It signals a wiring mistake.
var ErrOutsideProvider = errors.New("session: context used outside its provider")

// CurrentUserFunc looks up the signed-in user. It returns (nil, nil) when
// nobody is signed in.
type CurrentUserFunc func(ctx context.Context) (*estate.User, error)

// Status is the lifecycle position of a Provider.
type Status int

const (
	Uninitialized Status = iota
	Loading
	Authenticated
	Unauthenticated
)

func (s Status) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Loading:
		return "loading"
	case Authenticated:
		return "authenticated"
	case Unauthenticated:
		return "unauthenticated"
	default:
		return "unknown"
	}
}

// Snapshot is a consistent view of the session at one instant.
type Snapshot struct {
	User    *estate.User
	Loading bool
}

// IsLoggedIn reports whether the snapshot holds a user.
func (s Snapshot) IsLoggedIn() bool {
	return s.User != nil
}

// Option configures a Provider.
type Option func(*config)

type config struct {
	log      *logger.Logger
	onChange func()
	notifier fetch.Notifier
}

// WithLogger sets the provider's logger.
func WithLogger(l *logger.Logger) Option {
	return func(c *config) { c.log = l }
}

// WithOnChange registers a callback run after every session state change.
func WithOnChange(fn func()) Option {
	return func(c *config) { c.onChange = fn }
}

// WithNotifier routes alerts raised by the underlying fetcher.
func WithNotifier(n fetch.Notifier) Option {
	return func(c *config) { c.notifier = n }
}

// Provider owns the current-user state.
type Provider struct {
	hook *fetch.Fetcher[*estate.User]
	log  *logger.Logger
}

// New creates a Provider and starts the initial current-user lookup with ctx.
// A failed lookup leaves the session signed out; the failure is logged and
// is otherwise indistinguishable from having no session.
func New(ctx context.Context, getUser CurrentUserFunc, opts ...Option) *Provider {
	var cfg config
	for _, opt := range opts {
		opt(&cfg)
	}
	log := logger.OrDiscard(cfg.log).Named("session")

	p := &Provider{log: log}
	lookup := func(ctx context.Context, _ fetch.Params) (*estate.User, error) {
		u, err := getUser(ctx)
		if err != nil {
			log.WithError(err).Warn("current user lookup failed, treating as signed out")
			return nil, nil
		}
		return u, nil
	}

	fetchOpts := []fetch.Option{
		fetch.WithName("current_user"),
		fetch.WithLogger(log),
		fetch.WithOnChange(cfg.onChange),
	}
	if cfg.notifier != nil {
		fetchOpts = append(fetchOpts, fetch.WithNotifier(cfg.notifier))
	}
	p.hook = fetch.New(ctx, lookup, fetchOpts...)
	return p
}

// Snapshot returns the user and loading flag read together.
func (p *Provider) Snapshot() Snapshot {
	if p == nil || p.hook == nil {
		return Snapshot{}
	}
	st := p.hook.State()
	return Snapshot{User: st.Data, Loading: st.Loading}
}

// User returns the signed-in user, or nil.
func (p *Provider) User() *estate.User {
	return p.Snapshot().User
}

// IsLoggedIn reports whether a user is signed in.
func (p *Provider) IsLoggedIn() bool {
	return p.Snapshot().IsLoggedIn()
}

// Loading reports whether a lookup is in flight.
func (p *Provider) Loading() bool {
	return p.Snapshot().Loading
}

// Status returns where the provider is in its lifecycle.
func (p *Provider) Status() Status {
	if p == nil || p.hook == nil {
		return Uninitialized
	}
	snap := p.Snapshot()
	switch {
	case snap.Loading:
		return Loading
	case snap.IsLoggedIn():
		return Authenticated
	default:
		return Unauthenticated
	}
}

// Refetch repeats the current-user lookup and blocks until it settles.
// nil params are sent as an empty map. It does nothing on a Provider not
// built with New.
func (p *Provider) Refetch(ctx context.Context, params fetch.Params) {
	if p == nil || p.hook == nil {
		return
	}
	if params == nil {
		params = fetch.Params{}
	}
	p.hook.Refetch(ctx, params)
	p.log.WithField("status", p.Status().String()).Debug("session refreshed")
}

// Wait blocks until no lookup is in flight.
func (p *Provider) Wait(ctx context.Context) error {
	if p == nil || p.hook == nil {
		return nil
	}
	return p.hook.Wait(ctx)
}

// Close stops in-flight lookups from updating the provider.
func (p *Provider) Close() {
	if p == nil || p.hook == nil {
		return
	}
	p.hook.Close()
}

type providerKey struct{}

// NewContext returns a copy of ctx carrying p.
func NewContext(ctx context.Context, p *Provider) context.Context {
	return context.WithValue(ctx, providerKey{}, p)
}

// FromContext returns the Provider attached to ctx, or ErrOutsideProvider.
func FromContext(ctx context.Context) (*Provider, error) {
	p, ok := ctx.Value(providerKey{}).(*Provider)
	if !ok || p == nil {
		return nil, ErrOutsideProvider
	}
	return p, nil
}

// MustFromContext is like FromContext but panics with ErrOutsideProvider.
func MustFromContext(ctx context.Context) *Provider {
	p, err := FromContext(ctx)
	if err != nil {
		panic(err)
	}
	return p
}
