package commands

import (
	"context"
	"errors"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/florianilch/zdauth/internal/credentials"
)

func statusCommand() *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "Report combined OAuth and API token credential status",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "validate",
				Usage: "validate the resolved credentials against the identity endpoint",
			},
		},
		Action: statusAction,
	}
}

type oauthStatus struct {
	Configured bool   `json:"configured"`
	Location   string `json:"location"`
}

type staticStatus struct {
	Configured bool   `json:"configured"`
	Source     string `json:"source"`
}

type statusOutput struct {
	Subdomain     string                    `json:"subdomain,omitempty"`
	OAuth         oauthStatus               `json:"oauth"`
	Static        staticStatus              `json:"api_token"`
	Authenticated *bool                     `json:"authenticated,omitempty"`
	User          *credentials.UserIdentity `json:"user,omitempty"`
	Error         string                    `json:"error,omitempty"`
	Guidance      string                    `json:"guidance,omitempty"`
}

func statusAction(ctx context.Context, cmd *cli.Command) error {
	cfg, err := setup(cmd)
	if err != nil {
		return err
	}

	store, err := cfg.Auth.NewTokenStore()
	if err != nil {
		return err
	}

	record, err := store.Load(ctx)
	oauthConfigured := err == nil && record.Valid()

	out := statusOutput{
		Subdomain: cfg.Subdomain,
		OAuth: oauthStatus{
			Configured: oauthConfigured,
			Location:   store.Location(),
		},
		Static: staticStatus{
			Configured: cfg.Email != "" && cfg.Token != "" && cfg.Subdomain != "",
			Source:     staticSource(cfg.Email, cfg.Token),
		},
	}

	if cmd.Bool("validate") {
		rcfg, err := cfg.ResolverConfig()
		if err != nil {
			return err
		}

		authenticated := false
		out.Authenticated = &authenticated

		backend, err := credentials.Resolve(ctx, rcfg)
		var noCreds *credentials.NoCredentialsError
		switch {
		case errors.As(err, &noCreds):
			out.Guidance = noCreds.Error()
		case err != nil:
			out.Error = err.Error()
		default:
			identity, err := backend.Validate(ctx)
			if err != nil {
				out.Error = err.Error()
			} else {
				authenticated = true
				out.User = identity
			}
		}
	}

	return printJSON(out)
}

// staticSource reports where static credentials come from: env vars win over
// the config file.
func staticSource(email, token string) string {
	switch {
	case os.Getenv("ZENDESK_EMAIL") != "" && os.Getenv("ZENDESK_TOKEN") != "":
		return "env"
	case email != "" && token != "":
		return "config"
	default:
		return "none"
	}
}

func whoamiCommand() *cli.Command {
	return &cli.Command{
		Name:   "whoami",
		Usage:  "Resolve a credential backend and print the validated identity",
		Action: whoamiAction,
	}
}

func whoamiAction(ctx context.Context, cmd *cli.Command) error {
	cfg, err := setup(cmd)
	if err != nil {
		return err
	}

	rcfg, err := cfg.ResolverConfig()
	if err != nil {
		return err
	}

	backend, err := credentials.Resolve(ctx, rcfg)
	if err != nil {
		return err
	}

	identity, err := backend.Validate(ctx)
	if err != nil {
		return err
	}

	return printJSON(map[string]any{
		"subdomain": backend.Subdomain(),
		"method":    backendMethod(backend),
		"user":      identity,
	})
}

func backendMethod(backend credentials.Backend) string {
	switch backend.(type) {
	case *credentials.OAuthBackend:
		return "oauth"
	case *credentials.StaticBackend:
		return "api_token"
	default:
		return "unknown"
	}
}
