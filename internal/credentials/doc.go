// Package credentials produces request-authorization material for the Zendesk API.
//
// Two backends implement the Backend contract:
//   - StaticBackend: Basic auth from an email + API token pair, no state.
//   - OAuthBackend: OAuth 2.0 Authorization Code + PKCE with a persisted token
//     record and expiry-aware, single-flighted refresh.
//
// Resolve picks one backend by precedence: a structurally valid persisted OAuth
// record wins over static credentials, because OAuth tokens are rotatable and
// independently revocable. Freshness is not assessed at resolution time; the
// first AuthHeader call refreshes if needed.
//
// Zendesk's token endpoint deviates from standard OAuth2 in that it expects
// JSON-encoded requests. The package routes all token endpoint traffic through
// a transport that rewrites golang.org/x/oauth2's form-encoded requests to JSON.
package credentials
