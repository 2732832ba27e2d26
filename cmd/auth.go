package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/desertthunder/mixtape/internal/server"
	"github.com/desertthunder/mixtape/internal/services"
	"github.com/desertthunder/mixtape/internal/shared"
	"github.com/urfave/cli/v3"
)

const authTimeout = 2 * time.Minute

// Auth runs the Spotify authorization code flow and stores the refresh token
// in the config file so generate --publish can create playlists.
//
// Starts a local HTTP server on the redirect URI's host and port, opens the
// browser for user authorization and waits for the callback.
func (r *Runner) Auth(ctx context.Context, cmd *cli.Command) error {
	creds := r.config.Credentials.Spotify
	if !creds.Configured() {
		return fmt.Errorf("%w: Spotify client_id and client_secret must be set in %s", shared.ErrMissingCredentials, r.configName())
	}

	svc, err := services.NewSpotifyService(creds.Map())
	if err != nil {
		return fmt.Errorf("failed to create Spotify service: %w", err)
	}
	oauthConfig := svc.OAuthConfig()

	redirect, err := url.Parse(oauthConfig.RedirectURL)
	if err != nil || redirect.Host == "" {
		return fmt.Errorf("%w: invalid redirect_uri %q", shared.ErrInvalidConfig, oauthConfig.RedirectURL)
	}

	state, err := server.NewState()
	if err != nil {
		return err
	}
	handler := server.NewOAuthHandler(oauthConfig, state)
	router := server.NewBasicRouter()
	router.Use(server.Recover(r.logger))
	router.Handler(handler)

	httpServer := server.NewHTTPServer(redirect.Host, router)
	serverErrors := make(chan error, 1)
	go func() {
		r.logger.Info("starting OAuth callback server", "addr", redirect.Host)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrors <- err
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			r.logger.Warn("error shutting down server", "error", err)
		}
	}()

	authURL := handler.AuthCodeURL()
	if cmd.Bool("no-browser") {
		r.writePlain("Open this URL in your browser:\n%s\n\n", authURL)
	} else {
		r.writePlain("→ Opening browser for Spotify authorization...\n")
		if err := shared.OpenBrowser(authURL); err != nil {
			r.logger.Warn("failed to open browser automatically", "error", err)
			r.writePlain("Please open this URL in your browser:\n%s\n\n", authURL)
		}
	}
	r.writePlain("→ Waiting for authorization (%s timeout)...\n", authTimeout)

	waitCtx, cancel := context.WithTimeout(ctx, authTimeout)
	defer cancel()

	type outcome struct {
		refresh string
		err     error
	}
	done := make(chan outcome, 1)
	go func() {
		token, err := handler.Wait(waitCtx)
		if err != nil {
			done <- outcome{err: err}
			return
		}
		done <- outcome{refresh: token.RefreshToken}
	}()

	var out outcome
	select {
	case out = <-done:
	case err := <-serverErrors:
		return fmt.Errorf("callback server error: %w", err)
	}
	if out.err != nil {
		if errors.Is(out.err, context.DeadlineExceeded) {
			return fmt.Errorf("%w: authorization timed out after %s", shared.ErrTimeout, authTimeout)
		}
		return fmt.Errorf("%w: %w", shared.ErrAuthFailed, out.err)
	}
	if out.refresh == "" {
		return fmt.Errorf("%w: Spotify returned no refresh token", shared.ErrAuthFailed)
	}

	r.config.Credentials.Spotify.RefreshToken = out.refresh
	if err := shared.SaveConfig(r.configName(), r.config); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}

	r.writePlainln("✓ Authorization successful")
	return r.writePlain("✓ Refresh token saved to %s\n", r.configName())
}
