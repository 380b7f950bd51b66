package cmd

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/truehome/estate/internal/cli"
	"github.com/truehome/estate/internal/estate"
	"github.com/truehome/estate/internal/fetch"
)

func newLatestCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "latest",
		Short: "Show the featured listings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := mount(cmd, a, "latest_properties", a.svc.LatestProperties, nil)
			if err != nil {
				return err
			}
			defer f.Close()

			props, err := settled(f)
			if err != nil {
				return err
			}
			return a.printProperties(props)
		},
	}
}

type searchOptions struct {
	filter      string
	query       string
	limit       int
	interactive bool
}

func newSearchCommand(a *app) *cobra.Command {
	var opts searchOptions
	cmd := &cobra.Command{
		Use:   "search",
		Short: "Search listings by type and free text",
		Long: `Search listings, newest first.

With --interactive every line read from stdin replaces the query and the
search is run again, the way the explore screen refreshes as you type.`,
		Example: `  estate search --filter Villa
  estate search --query "lake view" --limit 10
  estate search --interactive`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runSearch(cmd, opts)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.filter, "filter", "All", "property type: "+strings.Join(estate.PropertyTypes, ", "))
	flags.StringVarP(&opts.query, "query", "q", "", "text matched against name, address and type")
	flags.IntVar(&opts.limit, "limit", 0, "maximum number of results (0 for no limit)")
	flags.BoolVarP(&opts.interactive, "interactive", "i", false, "read new queries from stdin")
	return cmd
}

func (a *app) runSearch(cmd *cobra.Command, opts searchOptions) error {
	params := fetch.Params{"filter": opts.filter, "query": opts.query}
	if opts.limit > 0 {
		params["limit"] = opts.limit
	}

	f, err := mount(cmd, a, "properties", a.svc.Properties, params)
	if err != nil {
		return err
	}
	defer f.Close()

	props, err := settled(f)
	if err != nil {
		return err
	}
	if err := a.printProperties(props); err != nil {
		return err
	}
	if !opts.interactive {
		return nil
	}

	scanner := bufio.NewScanner(cmd.InOrStdin())
	for scanner.Scan() {
		if err := cmd.Context().Err(); err != nil {
			return err
		}
		next := params.Clone()
		next["query"] = strings.TrimSpace(scanner.Text())
		f.Refetch(cmd.Context(), next)

		if props, err := settled(f); err == nil {
			if err := a.printProperties(props); err != nil {
				return err
			}
		}
	}
	return scanner.Err()
}

func newPropertyCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "property <id>",
		Short: "Show one listing with its agent, reviews and gallery",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := mount(cmd, a, "property", a.svc.PropertyByID, fetch.Params{"id": args[0]})
			if err != nil {
				return err
			}
			defer f.Close()

			prop, err := settled(f)
			if err != nil {
				return err
			}
			return a.printProperty(prop)
		},
	}
}

// mount starts a fetcher for fn and waits for its first invocation to settle.
// A spinner runs on the error stream meanwhile, and failures are shown as
// alerts there.
func mount[T any](cmd *cobra.Command, a *app, name string, fn fetch.Func[T], params fetch.Params) (*fetch.Fetcher[T], error) {
	ctx := cmd.Context()
	spin := cli.NewSpinner(cmd.ErrOrStderr(), "Loading")
	spin.Start()
	defer spin.Stop()

	alert := cli.AlertNotifier{P: a.errOut}
	f := fetch.New(ctx, fn,
		fetch.WithName(name),
		fetch.WithParams(params),
		fetch.WithLatestOnly(),
		fetch.WithLogger(a.log),
		fetch.WithNotifier(fetch.NotifierFunc(func(title, message string) {
			spin.Stop()
			alert.Notify(title, message)
		})),
	)
	if err := f.Wait(ctx); err != nil {
		f.Close()
		return nil, err
	}
	return f, nil
}

// settled returns the fetched data, or ErrReported when the last invocation
// failed and its alert has been shown.
func settled[T any](f *fetch.Fetcher[T]) (T, error) {
	st := f.State()
	if st.Error != "" {
		var zero T
		return zero, fmt.Errorf("%w: %s", ErrReported, st.Error)
	}
	return st.Data, nil
}
