package credentials

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
)

const (
	// DefaultFlowTimeout bounds the wait for the authorization callback.
	DefaultFlowTimeout = 5 * time.Minute

	// oobRedirectURI is the out-of-band redirect target for manual paste mode.
	oobRedirectURI = "urn:ietf:wg:oauth:2.0:oob"
)

// FlowMode selects how the authorization redirect is captured.
type FlowMode string

const (
	// FlowModeLoopback captures the redirect with a local one-shot listener.
	FlowModeLoopback FlowMode = "loopback"

	// FlowModeManual prints the URL and prompts for a pasted code, for
	// headless environments.
	FlowModeManual FlowMode = "manual"
)

// FlowOptions configures one authorization flow attempt.
type FlowOptions struct {
	Mode FlowMode

	// Timeout bounds the loopback callback wait. Defaults to DefaultFlowTimeout.
	Timeout time.Duration

	// Output receives user-facing prompts. Defaults to os.Stderr.
	Output io.Writer

	// Input supplies the pasted code in manual mode. Defaults to os.Stdin.
	Input io.Reader

	// OpenBrowser launches the authorization URL. Defaults to OpenBrowser;
	// failures fall back to printing the URL.
	OpenBrowser func(url string) error

	// ListenPorts overrides the candidate loopback ports (tests).
	ListenPorts []int
}

func (o FlowOptions) withDefaults() FlowOptions {
	if o.Mode == "" {
		o.Mode = FlowModeLoopback
	}
	if o.Timeout <= 0 {
		o.Timeout = DefaultFlowTimeout
	}
	if o.Output == nil {
		o.Output = os.Stderr
	}
	if o.Input == nil {
		o.Input = os.Stdin
	}
	if o.OpenBrowser == nil {
		o.OpenBrowser = OpenBrowser
	}
	return o
}

// FlowResult summarizes a successful authorization flow.
type FlowResult struct {
	// Location is where the token record was persisted.
	Location string `json:"location"`

	// Scope is the granted scope.
	Scope string `json:"scope"`
}

// RunFlow runs the full authorization flow: PKCE and state generation,
// authorization URL construction, redirect capture, code exchange, and record
// persistence. It is a blocking, user-driven foreground operation not meant to
// run concurrently with itself.
func (b *OAuthBackend) RunFlow(ctx context.Context, opts FlowOptions) (*FlowResult, error) {
	if b.clientID == "" || b.clientSecret == "" {
		return nil, &ConfigurationError{Subdomain: b.subdomain}
	}
	opts = opts.withDefaults()

	pkce := GeneratePKCE()
	state, err := GenerateState()
	if err != nil {
		return nil, err
	}

	flowID := uuid.NewString()
	slog.DebugContext(ctx, "starting authorization flow",
		"flow_id", flowID,
		"mode", string(opts.Mode),
		"subdomain", b.subdomain,
	)

	var result *FlowResult
	switch opts.Mode {
	case FlowModeLoopback:
		result, err = b.loopbackFlow(ctx, opts, pkce, state)
	case FlowModeManual:
		result, err = b.manualFlow(ctx, opts, pkce, state)
	default:
		return nil, fmt.Errorf("unknown flow mode: %q", opts.Mode)
	}
	if err != nil {
		slog.DebugContext(ctx, "authorization flow failed", "flow_id", flowID, "error", err)
		return nil, err
	}

	slog.DebugContext(ctx, "authorization flow complete", "flow_id", flowID, "scope", result.Scope)
	return result, nil
}

// loopbackFlow captures the redirect with a local listener bound to the first
// free candidate port. The port is released on every exit path.
func (b *OAuthBackend) loopbackFlow(ctx context.Context, opts FlowOptions, pkce PKCEPair, state string) (*FlowResult, error) {
	listener, err := NewCallbackListener(opts.ListenPorts...)
	if err != nil {
		return nil, err
	}
	defer listener.Close()

	cfg := b.oauth2Config(listener.RedirectURI())
	authURL := cfg.AuthCodeURL(state, oauth2.S256ChallengeOption(pkce.Verifier))

	if err := opts.OpenBrowser(authURL); err != nil {
		fmt.Fprintf(opts.Output, "Open this URL in your browser:\n\n%s\n\n", authURL)
	} else {
		fmt.Fprintln(opts.Output, "Opening browser for Zendesk authorization...")
	}
	fmt.Fprintf(opts.Output, "Waiting for authorization callback on port %d...\n", listener.Port())

	result, err := listener.Wait(ctx, opts.Timeout)
	if err != nil {
		return nil, err
	}

	if result.Error != "" {
		return nil, &AuthorizationDeniedError{Code: result.Error, Description: result.ErrorDescription}
	}
	if result.Code == "" {
		return nil, errors.New("authorization callback carried no code")
	}
	if result.State != state {
		return nil, &CsrfMismatchError{}
	}

	return b.completeFlow(ctx, cfg, result.Code, pkce.Verifier)
}

// manualFlow prints the authorization URL and prompts for a pasted code.
func (b *OAuthBackend) manualFlow(ctx context.Context, opts FlowOptions, pkce PKCEPair, state string) (*FlowResult, error) {
	cfg := b.oauth2Config(oobRedirectURI)
	authURL := cfg.AuthCodeURL(state, oauth2.S256ChallengeOption(pkce.Verifier))

	fmt.Fprintf(opts.Output, "Open this URL in your browser:\n\n%s\n\n", authURL)
	fmt.Fprintln(opts.Output, "After authorizing, paste the authorization code (or the full redirect URL) below.")
	fmt.Fprint(opts.Output, "Authorization code: ")

	scanner := bufio.NewScanner(opts.Input)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return nil, fmt.Errorf("reading authorization code: %w", err)
		}
		return nil, errors.New("no authorization code provided")
	}
	pasted := strings.TrimSpace(scanner.Text())
	if pasted == "" {
		return nil, errors.New("no authorization code provided")
	}

	code, err := parsePastedCode(pasted, state)
	if err != nil {
		return nil, err
	}

	return b.completeFlow(ctx, cfg, code, pkce.Verifier)
}

// parsePastedCode accepts either a bare authorization code or a full redirect
// URL. A full URL has its state verified exactly as in loopback mode; a bare
// code cannot carry state, an accepted CSRF-verification gap for headless use.
func parsePastedCode(pasted, state string) (string, error) {
	if !strings.Contains(pasted, "://") {
		return pasted, nil
	}

	u, err := url.Parse(pasted)
	if err != nil {
		return "", fmt.Errorf("parsing pasted redirect URL: %w", err)
	}
	query := u.Query()

	if errCode := query.Get("error"); errCode != "" {
		return "", &AuthorizationDeniedError{Code: errCode, Description: query.Get("error_description")}
	}
	code := query.Get("code")
	if code == "" {
		return "", errors.New("pasted URL carries no authorization code")
	}
	if query.Get("state") != state {
		return "", &CsrfMismatchError{}
	}

	return code, nil
}

// completeFlow exchanges the code for tokens and persists the record.
func (b *OAuthBackend) completeFlow(ctx context.Context, cfg *oauth2.Config, code, verifier string) (*FlowResult, error) {
	token, err := cfg.Exchange(b.tokenEndpointContext(ctx), code, oauth2.VerifierOption(verifier))
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) {
			return nil, &TokenExchangeFailedError{
				StatusCode: retrieveErr.Response.StatusCode,
				Detail:     strings.TrimSpace(string(retrieveErr.Body)),
				Err:        err,
			}
		}
		return nil, &TokenExchangeFailedError{Detail: err.Error(), Err: err}
	}

	record := b.recordFromToken(token, nil)
	if err := b.store.Save(ctx, record); err != nil {
		return nil, fmt.Errorf("persisting token record: %w", err)
	}

	b.mu.Lock()
	b.record = record
	b.mu.Unlock()

	return &FlowResult{
		Location: b.store.Location(),
		Scope:    record.Scope,
	}, nil
}
