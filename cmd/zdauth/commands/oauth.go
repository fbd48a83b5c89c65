package commands

import (
	"context"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/florianilch/zdauth/internal/credentials"
)

func loginOAuthCommand() *cli.Command {
	return &cli.Command{
		Name:  "login-oauth",
		Usage: "Authenticate with OAuth 2.0 Authorization Code + PKCE",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "manual",
				Usage: "print the authorization URL and prompt for a pasted code instead of running a local callback listener",
			},
			&cli.StringFlag{
				Name:  "client-id",
				Usage: "OAuth client ID (overrides env and config)",
			},
			&cli.StringFlag{
				Name:  "client-secret",
				Usage: "OAuth client secret (overrides env and config)",
			},
			&cli.StringFlag{
				Name:    "subdomain",
				Aliases: []string{"s"},
				Usage:   "Zendesk subdomain (overrides env and config)",
			},
			&cli.DurationFlag{
				Name:  "timeout",
				Usage: "how long to wait for the authorization callback",
				Value: credentials.DefaultFlowTimeout,
			},
		},
		Action: loginOAuthAction,
	}
}

func loginOAuthAction(ctx context.Context, cmd *cli.Command) error {
	cfg, err := setup(cmd)
	if err != nil {
		return err
	}

	if s := cmd.String("subdomain"); s != "" {
		cfg.Subdomain = s
	}
	clientID := cmd.String("client-id")
	if clientID == "" {
		clientID = cfg.OAuthClientID
	}
	clientSecret := cmd.String("client-secret")
	if clientSecret == "" {
		clientSecret = cfg.OAuthClientSecret
	}

	backend, err := cfg.NewOAuthBackend(clientID, clientSecret)
	if err != nil {
		return err
	}

	mode := credentials.FlowModeLoopback
	if cmd.Bool("manual") {
		mode = credentials.FlowModeManual
	}

	result, err := backend.RunFlow(ctx, credentials.FlowOptions{
		Mode:    mode,
		Timeout: cmd.Duration("timeout"),
	})
	if err != nil {
		return err
	}

	// Persist the client credentials used so token refresh works without env
	// vars, mirroring the subdomain alongside them.
	configPath := resolveConfigPath(cmd.String("config"))
	if err := saveConfigValues(configPath, map[string]any{
		"subdomain":           cfg.Subdomain,
		"oauth_client_id":     clientID,
		"oauth_client_secret": clientSecret,
	}); err != nil {
		return err
	}

	return printJSON(map[string]any{
		"success":        true,
		"token_location": result.Location,
		"scope":          result.Scope,
	})
}

func logoutOAuthCommand() *cli.Command {
	return &cli.Command{
		Name:   "logout-oauth",
		Usage:  "Remove the persisted OAuth token",
		Action: logoutOAuthAction,
	}
}

func logoutOAuthAction(ctx context.Context, cmd *cli.Command) error {
	cfg, err := setup(cmd)
	if err != nil {
		return err
	}

	store, err := cfg.Auth.NewTokenStore()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	removed, err := store.Delete(ctx)
	if err != nil {
		return err
	}

	output := map[string]any{
		"deleted":  removed,
		"location": store.Location(),
	}
	if removed {
		output["message"] = "OAuth token removed."
	} else {
		output["message"] = "No OAuth token to remove."
	}

	return printJSON(output)
}
