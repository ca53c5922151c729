package moderation

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

const (
	SecretHeader = "X-Admin-Secret"
	bearerPrefix = "Bearer "
)

// Gate authorizes administrative actions with a single shared secret.
type Gate struct {
	secret string
}

func NewGate(secret string) *Gate {
	return &Gate{secret: secret}
}

// Authorize reports whether credential equals the configured secret. An unset
// secret authorizes nobody.
func (g *Gate) Authorize(credential string) bool {
	if g == nil || g.secret == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(credential), []byte(g.secret)) == 1
}

// Configured reports whether an admin secret has been set at all.
func (g *Gate) Configured() bool {
	return g != nil && g.secret != ""
}

// CredentialFromRequest reads the admin secret header, falling back to a
// bearer token.
func CredentialFromRequest(r *http.Request) string {
	if v := r.Header.Get(SecretHeader); v != "" {
		return v
	}
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, bearerPrefix) {
		return strings.TrimSpace(strings.TrimPrefix(auth, bearerPrefix))
	}
	return ""
}
