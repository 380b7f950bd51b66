package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/truehome/estate/internal/backend"
	"github.com/truehome/estate/internal/estate"
	"github.com/truehome/estate/internal/session"
)

func newWhoamiCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p := session.MustFromContext(cmd.Context())
			if err := p.Wait(cmd.Context()); err != nil {
				return err
			}
			return a.printUser(p.User())
		},
	}
}

func newLoginCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Sign in through the configured OAuth provider",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			p := session.MustFromContext(ctx)

			err := a.svc.Login(ctx, a.opener(), estate.LoginOptions{
				Provider:   backend.OAuthProvider(a.cfg.Login.Provider),
				ListenAddr: a.cfg.Login.ListenAddr,
			})
			if err != nil {
				a.log.WithError(err).Warn("login failed")
				a.errOut.Error("Failed to login")
				return fmt.Errorf("%w: %v", ErrReported, err)
			}

			p.Refetch(ctx, nil)
			if !p.IsLoggedIn() {
				a.errOut.Warning("Signed in, but the account could not be loaded")
				return nil
			}
			a.out.Success(fmt.Sprintf("Signed in as %s", p.User().Name))
			return nil
		},
	}
}

func newLogoutCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out and forget the stored session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			p := session.MustFromContext(ctx)

			if err := a.svc.Logout(ctx); err != nil {
				a.log.WithError(err).Warn("logout failed")
				a.errOut.Error("An error occurred while logging out")
				return fmt.Errorf("%w: %v", ErrReported, err)
			}
			p.Refetch(ctx, nil)
			a.out.Success("Logged out successfully")
			return nil
		},
	}
}
