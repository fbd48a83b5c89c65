package credentials

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"
)

const (
	callbackPath = "/callback"

	// loopbackHost keeps the listener unreachable from other machines.
	loopbackHost = "127.0.0.1"

	// Candidate port range for the loopback redirect. OAuth clients register a
	// fixed set of redirect URIs, so the scan is bounded rather than ephemeral.
	firstListenPort = 8080
	lastListenPort  = 8089
)

const callbackSuccessHTML = `<!DOCTYPE html>
<html><head><title>Authorization Successful</title></head>
<body><h1>Authorization Successful</h1><p>You can close this window and return to the CLI.</p></body></html>`

const callbackFailureHTML = `<!DOCTYPE html>
<html><head><title>Authorization Failed</title></head>
<body><h1>Authorization Failed</h1><p>You can close this window.</p></body></html>`

// CallbackResult holds the query parameters captured from the OAuth redirect.
type CallbackResult struct {
	Code             string
	State            string
	Error            string
	ErrorDescription string
}

// CallbackListener is a single-use local HTTP responder that captures one OAuth
// redirect. It binds a loopback-only address, serves exactly one callback with
// a static confirmation page, and releases the port on Close.
type CallbackListener struct {
	listener net.Listener
	server   *http.Server
	port     int

	resultCh   chan CallbackResult
	serveErrCh chan error

	handleOnce sync.Once
	closeOnce  sync.Once
}

// NewCallbackListener binds the first free port among the candidates (the fixed
// 8080-8089 range when none are given) and starts serving. Callers must Close
// the listener on every exit path.
func NewCallbackListener(ports ...int) (*CallbackListener, error) {
	if len(ports) == 0 {
		for port := firstListenPort; port <= lastListenPort; port++ {
			ports = append(ports, port)
		}
	}

	var listener net.Listener
	for _, port := range ports {
		l, err := net.Listen("tcp", net.JoinHostPort(loopbackHost, strconv.Itoa(port)))
		if err == nil {
			listener = l
			break
		}
	}
	if listener == nil {
		return nil, &PortUnavailableError{First: ports[0], Last: ports[len(ports)-1]}
	}

	s := &CallbackListener{
		listener:   listener,
		port:       listener.Addr().(*net.TCPAddr).Port,
		resultCh:   make(chan CallbackResult, 1),
		serveErrCh: make(chan error, 1),
	}

	mux := http.NewServeMux()
	mux.HandleFunc(callbackPath, s.handleCallback)

	s.server = &http.Server{
		Handler:           recoverPanics(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			select {
			case s.serveErrCh <- err:
			default:
			}
		}
	}()

	return s, nil
}

// RedirectURI returns the redirect target to register in the authorization request.
func (s *CallbackListener) RedirectURI() string {
	return fmt.Sprintf("http://%s:%d%s", loopbackHost, s.port, callbackPath)
}

// Port returns the bound port.
func (s *CallbackListener) Port() int {
	return s.port
}

// Wait blocks until the callback arrives, the timeout fires, or the context is
// cancelled. Timing out never triggers a retry.
func (s *CallbackListener) Wait(ctx context.Context, timeout time.Duration) (*CallbackResult, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case result := <-s.resultCh:
		return &result, nil
	case err := <-s.serveErrCh:
		return nil, fmt.Errorf("callback listener failed: %w", err)
	case <-timer.C:
		return nil, &AuthorizationTimeoutError{Timeout: timeout}
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close shuts the listener down and releases the port. Idempotent.
func (s *CallbackListener) Close() {
	s.closeOnce.Do(func() {
		_ = s.server.Close()
		_ = s.listener.Close()
	})
}

// handleCallback captures the first request's query parameters and serves a
// static confirmation page. Later requests get a 409.
func (s *CallbackListener) handleCallback(w http.ResponseWriter, r *http.Request) {
	handled := false
	s.handleOnce.Do(func() {
		handled = true

		query := r.URL.Query()
		result := CallbackResult{
			Code:             query.Get("code"),
			State:            query.Get("state"),
			Error:            query.Get("error"),
			ErrorDescription: query.Get("error_description"),
		}

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Cache-Control", "no-store")
		if result.Error != "" {
			_, _ = io.WriteString(w, callbackFailureHTML)
		} else {
			_, _ = io.WriteString(w, callbackSuccessHTML)
		}

		// The query string carries the authorization code; log only the port.
		slog.Debug("authorization callback received", "port", s.port)

		s.resultCh <- result
	})

	if !handled {
		http.Error(w, "callback already processed", http.StatusConflict)
	}
}

// recoverPanics turns handler panics into HTTP 500s so a malformed callback
// cannot wedge the one-shot listener.
func recoverPanics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if recover() != nil {
				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			}
		}()

		next.ServeHTTP(w, r)
	})
}
