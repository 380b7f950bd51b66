// Package cmd wires the estate command line: configuration, logging, the
// backend client, the listing service and the session provider.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/gorilla/mux"
	"github.com/pkg/browser"
	"github.com/spf13/cobra"

	"github.com/truehome/estate/internal/backend"
	"github.com/truehome/estate/internal/cli"
	"github.com/truehome/estate/internal/config"
	"github.com/truehome/estate/internal/estate"
	"github.com/truehome/estate/internal/metrics"
	"github.com/truehome/estate/internal/session"
	"github.com/truehome/estate/internal/tokenstore"
	"github.com/truehome/estate/pkg/logger"
)

// ErrReported marks a failure that was already shown to the user as an alert.
// Callers should exit non-zero without printing it again.
var ErrReported = errors.New("failure already reported")

type globalOptions struct {
	configFile  string
	envFile     string
	metricsAddr string
	output      string
	logLevel    string
}

// app carries what the subcommands share for one invocation.
type app struct {
	opts globalOptions

	cfg      *config.Config
	log      *logger.Logger
	client   *backend.Client
	svc      *estate.Service
	provider *session.Provider
	out      *cli.Printer
	errOut   *cli.Printer

	// open presents the sign-in page; tests replace it.
	open estate.Opener

	closers []func()
}

func newRootCommand(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "estate",
		Short: "Browse property listings from the terminal",
		Long: `estate browses the property listings of a hosted real-estate project.

Configuration is read from an optional YAML file, a .env file and ESTATE_*
environment variables. ESTATE_BACKEND_URL and ESTATE_API_KEY are required.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.opts.configFile, "config", "", "path to a YAML config file")
	flags.StringVar(&a.opts.envFile, "env-file", "", "path to a .env file (default ./.env when present)")
	flags.StringVar(&a.opts.metricsAddr, "metrics-addr", "", "serve prometheus metrics on this address")
	flags.StringVarP(&a.opts.output, "output", "o", "text", "output format: text or json")
	flags.StringVar(&a.opts.logLevel, "log-level", "", "override the configured log level")

	root.AddCommand(
		newWhoamiCommand(a),
		newLatestCommand(a),
		newSearchCommand(a),
		newPropertyCommand(a),
		newLoginCommand(a),
		newLogoutCommand(a),
	)
	return root
}

// ExecuteContext runs the CLI with ctx, which is cancelled on interrupt.
func ExecuteContext(ctx context.Context) error {
	a := &app{}
	defer a.teardown()
	return newRootCommand(a).ExecuteContext(ctx)
}

func (a *app) setup(cmd *cobra.Command) error {
	if a.opts.output != "text" && a.opts.output != "json" {
		return fmt.Errorf("unknown output format %q", a.opts.output)
	}

	cfg, err := config.Load(config.Options{File: a.opts.configFile, EnvFile: a.opts.envFile})
	if err != nil {
		return err
	}
	if a.opts.metricsAddr != "" {
		cfg.Metrics.Addr = a.opts.metricsAddr
	}
	if a.opts.logLevel != "" {
		cfg.Log.Level = a.opts.logLevel
	}
	a.cfg = cfg

	a.out = cli.NewPrinter(cmd.OutOrStdout())
	a.errOut = cli.NewPrinter(cmd.ErrOrStderr())
	a.log = logger.New("estate", logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cmd.ErrOrStderr(),
	})

	tokens, err := a.tokenStore(cmd.Context())
	if err != nil {
		return err
	}

	a.client, err = backend.New(backend.Config{
		URL:               cfg.Backend.URL,
		APIKey:            cfg.Backend.APIKey,
		HTTPClient:        &http.Client{Timeout: cfg.Backend.Timeout},
		RequestsPerSecond: cfg.Backend.RequestsPerSecond,
		Burst:             cfg.Backend.Burst,
		Tokens:            tokens,
		Logger:            a.log.Named("backend"),
	})
	if err != nil {
		return fmt.Errorf("create backend client: %w", err)
	}

	a.svc = estate.NewService(a.client, estate.Config{
		Tables: estate.Tables{
			Properties: cfg.Tables.Properties,
			Agents:     cfg.Tables.Agents,
			Reviews:    cfg.Tables.Reviews,
			Galleries:  cfg.Tables.Galleries,
		},
		ImageBucket: cfg.Backend.ImageBucket,
		Logger:      a.log,
	})

	if cfg.Metrics.Addr != "" {
		if err := a.serveMetrics(cfg.Metrics.Addr); err != nil {
			return err
		}
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	a.provider = session.New(ctx, a.svc.CurrentUser,
		session.WithLogger(a.log),
		session.WithNotifier(cli.AlertNotifier{P: a.errOut}),
	)
	a.closers = append(a.closers, a.provider.Close)
	cmd.SetContext(session.NewContext(ctx, a.provider))
	return nil
}

func (a *app) tokenStore(ctx context.Context) (tokenstore.Store, error) {
	sc := a.cfg.Session
	if sc.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     sc.RedisAddr,
			Password: sc.RedisPassword,
			DB:       sc.RedisDB,
		})
		if ctx == nil {
			ctx = context.Background()
		}
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := rdb.Ping(pingCtx).Err(); err != nil {
			_ = rdb.Close()
			return nil, fmt.Errorf("connect to redis %s: %w", sc.RedisAddr, err)
		}
		a.closers = append(a.closers, func() { _ = rdb.Close() })
		return tokenstore.NewRedisStore(rdb, sc.Profile), nil
	}

	path := sc.TokenFile
	if path == "" {
		var err error
		path, err = tokenstore.DefaultFilePath(sc.Profile)
		if err != nil {
			return nil, err
		}
	}
	return tokenstore.NewFileStore(path), nil
}

func (a *app) serveMetrics(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen for metrics: %w", err)
	}

	router := mux.NewRouter()
	router.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)
	srv := &http.Server{Handler: router, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.WithError(err).Warn("metrics server stopped")
		}
	}()
	a.log.WithField("addr", ln.Addr().String()).Info("serving metrics")

	a.closers = append(a.closers, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	})
	return nil
}

func (a *app) teardown() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func (a *app) opener() estate.Opener {
	if a.open != nil {
		return a.open
	}
	return func(authURL string) error {
		if err := browser.OpenURL(authURL); err != nil {
			a.log.WithError(err).Debug("could not open a browser")
		}
		a.errOut.Info("Sign in at " + authURL)
		return nil
	}
}
