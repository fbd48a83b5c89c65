package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/urfave/cli/v3"
	"golang.org/x/term"

	"github.com/florianilch/zdauth/internal/credentials"
)

func loginCommand() *cli.Command {
	return &cli.Command{
		Name:  "login",
		Usage: "Configure API token authentication",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "email",
				Aliases: []string{"e"},
				Usage:   "Zendesk email address",
			},
			&cli.StringFlag{
				Name:    "api-token",
				Aliases: []string{"t"},
				Usage:   "Zendesk API token",
			},
			&cli.StringFlag{
				Name:    "subdomain",
				Aliases: []string{"s"},
				Usage:   "Zendesk subdomain (e.g. 'company' for company.zendesk.com)",
			},
		},
		Action: loginAction,
	}
}

func loginAction(ctx context.Context, cmd *cli.Command) error {
	if _, err := setup(cmd); err != nil {
		return err
	}

	email := cmd.String("email")
	token := cmd.String("api-token")
	subdomain := cmd.String("subdomain")

	allProvided := email != "" && token != "" && subdomain != ""
	noneProvided := email == "" && token == "" && subdomain == ""
	if !allProvided && !noneProvided {
		return errors.New("provide all of --email, --api-token and --subdomain, or none for interactive mode")
	}

	if noneProvided {
		var err error
		if email, token, subdomain, err = promptCredentials(); err != nil {
			return err
		}
	}

	backend, err := credentials.NewStaticBackend(email, token, subdomain)
	if err != nil {
		return err
	}

	fmt.Fprintln(os.Stderr, "Validating credentials...")
	identity, err := backend.Validate(ctx)
	if err != nil {
		return fmt.Errorf("authentication failed: %w", err)
	}

	configPath := resolveConfigPath(cmd.String("config"))
	if err := saveConfigValues(configPath, map[string]any{
		"email":     email,
		"token":     token,
		"subdomain": subdomain,
	}); err != nil {
		return err
	}

	return printJSON(map[string]any{
		"success":     true,
		"message":     fmt.Sprintf("Authenticated as %s (%s)", identity.Name, identity.Email),
		"user":        identity,
		"config_path": configPath,
	})
}

// promptCredentials interactively collects the static credentials, hiding the
// token input.
func promptCredentials() (email, token, subdomain string, err error) {
	stdin := int(os.Stdin.Fd())
	if !term.IsTerminal(stdin) {
		return "", "", "", errors.New("stdin is not a terminal; pass --email, --api-token and --subdomain")
	}

	fmt.Fprintln(os.Stderr, "Configure Zendesk authentication")

	if email, err = promptLine("Email: "); err != nil {
		return "", "", "", err
	}

	fmt.Fprint(os.Stderr, "API token: ")
	secret, err := term.ReadPassword(stdin)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", "", "", fmt.Errorf("reading API token: %w", err)
	}
	token = strings.TrimSpace(string(secret))

	if subdomain, err = promptLine("Subdomain (e.g. 'company' for company.zendesk.com): "); err != nil {
		return "", "", "", err
	}

	return email, token, subdomain, nil
}

func promptLine(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	var value string
	if _, err := fmt.Fscanln(os.Stdin, &value); err != nil {
		return "", fmt.Errorf("reading input: %w", err)
	}
	return strings.TrimSpace(value), nil
}

func logoutCommand() *cli.Command {
	return &cli.Command{
		Name:   "logout",
		Usage:  "Remove saved API token credentials from the config file",
		Action: logoutAction,
	}
}

func logoutAction(ctx context.Context, cmd *cli.Command) error {
	if _, err := setup(cmd); err != nil {
		return err
	}

	configPath := resolveConfigPath(cmd.String("config"))
	removed, err := deleteConfigValues(configPath, "email", "token")
	if err != nil {
		return err
	}

	output := map[string]any{
		"deleted":     removed,
		"config_path": configPath,
	}
	if removed {
		output["message"] = "Credentials removed from config file."
	} else {
		output["message"] = "No saved credentials to remove."
	}
	if os.Getenv("ZENDESK_EMAIL") != "" || os.Getenv("ZENDESK_TOKEN") != "" {
		output["warning"] = "ZENDESK_EMAIL/ZENDESK_TOKEN environment variables are still set."
	}

	return printJSON(output)
}
