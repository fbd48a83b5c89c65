package credentials

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
)

// jsonTokenTransport rewrites oauth2's form-encoded token endpoint requests to
// the JSON format Zendesk expects. The oauth2 package guarantees this transport
// only receives token endpoint requests.
type jsonTokenTransport struct {
	base http.RoundTripper
}

// Compile-time check that jsonTokenTransport implements http.RoundTripper.
var _ http.RoundTripper = (*jsonTokenTransport)(nil)

// RoundTrip consumes the form-encoded body and re-issues the request with an
// equivalent JSON body.
func (t *jsonTokenTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	// The original body is consumed here, not forwarded, so close it ourselves.
	defer func() { _ = req.Body.Close() }()
	body, err := io.ReadAll(req.Body)
	if err != nil {
		return nil, fmt.Errorf("reading token request body: %w", err)
	}

	form, err := url.ParseQuery(string(body))
	if err != nil {
		return nil, fmt.Errorf("parsing token request form: %w", err)
	}

	fields := make(map[string]string, len(form))
	for key, values := range form {
		fields[key] = values[0] // OAuth2 parameters are single-valued
	}

	jsonBody, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("encoding token request: %w", err)
	}

	out := req.Clone(req.Context())
	out.Body = io.NopCloser(bytes.NewReader(jsonBody))
	out.ContentLength = int64(len(jsonBody))
	out.Header.Set("Content-Type", "application/json")

	return t.base.RoundTrip(out)
}
