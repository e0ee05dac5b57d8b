package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/FairVenturesLab/implicit-auth/implicit"
	"github.com/FairVenturesLab/implicit-auth/implicit/browser"
	"github.com/FairVenturesLab/implicit-auth/implicit/callback"
	"github.com/spf13/cobra"
)

func newLoginCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Log in through the system browser",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := getRuntime(cmd)
			if err != nil {
				return err
			}
			l, err := callback.NewListener(rt.cfg.RedirectURI, callback.WithLogger(rt.logger.Named("callback")))
			if err != nil {
				return err
			}
			defer l.Close()
			d, err := rt.driver(l)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), rt.timeout)
			defer cancel()
			fmt.Fprintln(cmd.ErrOrStderr(), "Complete the login in your browser.")
			if err := d.Login(ctx, false); err != nil {
				return err
			}
			if err := d.Init(ctx, logHost{rt.logger}); err != nil {
				return err
			}
			if !d.LoggedIn() {
				return errors.New("the provider did not return a token")
			}
			fmt.Fprintln(rt.writer, "Logged in.")
			return nil
		},
	}
}

func newRenewCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "renew",
		Short: "Renew the token without prompting, logging in again if the provider requires it",
		Long: `Renew asks the provider for a new token using a headless frame and prompt=none.

The frame starts with an empty cookie jar in every run. The provider session
created by "login" lives in the system browser, so most providers answer with
login_required and renewal ends in an interactive browser login.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := getRuntime(cmd)
			if err != nil {
				return err
			}
			opener, err := browser.NewOpener(rt.cfg.RedirectURI, browser.WithLogger(rt.logger.Named("frame")))
			if err != nil {
				return err
			}
			l, err := callback.NewListener(rt.cfg.RedirectURI, callback.WithLogger(rt.logger.Named("callback")))
			if err != nil {
				return err
			}
			defer l.Close()
			d, err := rt.driver(l, implicit.WithFrameOpener(opener))
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), rt.timeout)
			defer cancel()
			tk, err := d.BackgroundLogin(ctx)
			if err != nil {
				return err
			}
			if tk == "" {
				// the renewal fell back to an interactive login
				fmt.Fprintln(cmd.ErrOrStderr(), "Silent renewal failed, complete the login in your browser.")
				if err := d.Init(ctx, logHost{rt.logger}); err != nil {
					return err
				}
			}
			if !d.LoggedIn() {
				return errors.New("the provider did not return a token")
			}
			fmt.Fprintln(rt.writer, "Token renewed.")
			return nil
		},
	}
}

func newLogoutCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored session and log out at the provider",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := getRuntime(cmd)
			if err != nil {
				return err
			}
			d, err := rt.driver(rt.navigator(rt.cfg.RedirectURI))
			if err != nil {
				return err
			}
			if err := d.Logout(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(rt.writer, "Logged out.")
			return nil
		},
	}
}

func newTokenCommand() *cobra.Command {
	var raw bool
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Print the stored token, decoded unless --raw is given",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := getRuntime(cmd)
			if err != nil {
				return err
			}
			d, err := rt.driver(rt.navigator(rt.cfg.RedirectURI))
			if err != nil {
				return err
			}
			if err := d.Init(cmd.Context(), nil); err != nil {
				return err
			}
			if !d.LoggedIn() {
				return errors.New("not logged in")
			}
			if raw {
				fmt.Fprintln(rt.writer, d.IDToken())
				return nil
			}
			decoded, err := d.DecodedToken()
			if err != nil {
				return err
			}
			out, err := json.MarshalIndent(decoded, "", "    ")
			if err != nil {
				return err
			}
			fmt.Fprintln(rt.writer, string(out))
			return nil
		},
	}
	cmd.Flags().BoolVar(&raw, "raw", false, "print the raw token")
	return cmd
}
