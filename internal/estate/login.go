package estate

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/mux"

	"github.com/truehome/estate/internal/backend"
)

// ErrLoginFailed is returned when the OAuth callback carries no auth code.
var ErrLoginFailed = errors.New("failed to login")

// Opener presents the sign-in URL to the user, usually by opening a browser.
type Opener func(authURL string) error

// LoginOptions configures the OAuth sign-in flow.
type LoginOptions struct {
	Provider     backend.OAuthProvider
	ListenAddr   string // loopback address for the callback; default 127.0.0.1:0
	CallbackPath string // default /callback
}

type callbackResult struct {
	code string
	err  error
}

// Login runs a PKCE OAuth sign-in: it serves a loopback callback, hands the
// authorize URL to open, waits for the backend to redirect back with an auth
// code, and exchanges it with the local verifier for a stored session.
func (s *Service) Login(ctx context.Context, open Opener, opts LoginOptions) error {
	if opts.Provider == "" {
		opts.Provider = backend.ProviderGoogle
	}
	if opts.ListenAddr == "" {
		opts.ListenAddr = "127.0.0.1:0"
	}
	if opts.CallbackPath == "" {
		opts.CallbackPath = "/callback"
	}

	ln, err := net.Listen("tcp", opts.ListenAddr)
	if err != nil {
		return fmt.Errorf("listen for callback: %w", err)
	}

	results := make(chan callbackResult, 1)
	router := mux.NewRouter()
	router.HandleFunc(opts.CallbackPath, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		res := callbackResult{code: q.Get("code")}
		switch {
		case q.Get("error") != "":
			res.err = fmt.Errorf("%w: %s", ErrLoginFailed, callbackError(q))
			http.Error(w, res.err.Error(), http.StatusBadRequest)
		case res.code == "":
			res.err = ErrLoginFailed
			http.Error(w, ErrLoginFailed.Error(), http.StatusBadRequest)
		default:
			fmt.Fprintln(w, "Signed in. You can close this window.")
		}
		select {
		case results <- res:
		default:
		}
	}).Methods(http.MethodGet)

	srv := &http.Server{Handler: router, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.WithError(err).Warn("login callback server stopped")
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	pkce, err := backend.NewPKCE()
	if err != nil {
		return err
	}
	redirect := fmt.Sprintf("http://%s%s", ln.Addr().String(), opts.CallbackPath)
	authURL, err := s.client.Auth().AuthorizeURL(opts.Provider, redirect, pkce)
	if err != nil {
		return err
	}

	s.log.WithField("provider", opts.Provider).
		WithField("redirect", redirect).
		Info("waiting for sign-in callback")
	if err := open(authURL); err != nil {
		return fmt.Errorf("open sign-in page: %w", err)
	}

	var res callbackResult
	select {
	case res = <-results:
	case <-ctx.Done():
		return ctx.Err()
	}
	if res.err != nil {
		return res.err
	}

	auth, err := s.client.Auth().ExchangeCode(ctx, res.code, pkce.Verifier)
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	entry := s.log.WithField("provider", opts.Provider)
	if auth.User != nil {
		entry = entry.WithField("user_id", auth.User.ID)
	}
	entry.Info("signed in")
	return nil
}

// callbackError picks the most readable reason from an OAuth error redirect.
func callbackError(q url.Values) string {
	if d := q.Get("error_description"); d != "" {
		return d
	}
	return q.Get("error")
}
