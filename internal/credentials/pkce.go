package credentials

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"golang.org/x/oauth2"
)

// stateBytes is the number of random bytes for the OAuth state parameter.
// 32 bytes encode to 43 base64url characters.
const stateBytes = 32

// PKCEPair holds a PKCE code verifier and its S256 challenge. A pair is scoped
// to a single flow attempt; the verifier is never transmitted before the
// back-channel exchange.
type PKCEPair struct {
	// Verifier is the cryptographically random secret (43-128 URL-safe chars).
	Verifier string

	// Challenge is base64url(sha256(Verifier)) without padding, sent in the
	// authorization request with method S256.
	Challenge string
}

// GeneratePKCE generates a fresh PKCE verifier and its S256 challenge.
func GeneratePKCE() PKCEPair {
	verifier := oauth2.GenerateVerifier()
	return PKCEPair{
		Verifier:  verifier,
		Challenge: oauth2.S256ChallengeFromVerifier(verifier),
	}
}

// GenerateState generates a single-use random state parameter linking the
// authorization callback to this flow attempt.
func GenerateState() (string, error) {
	buf := make([]byte, stateBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating state: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
