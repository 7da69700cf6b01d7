package server

import (
	"crypto/sha256"
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"

	"github.com/54b3r/pharmabot/internal/logging"
)

const authRealm = `Bearer realm="pharmabot"`

// authMiddleware requires "Authorization: Bearer <apiKey>" on next. An empty
// apiKey returns next unchanged. Tokens are compared by SHA-256 digest in
// constant time and never logged.
func authMiddleware(apiKey string, next http.Handler) http.Handler {
	if apiKey == "" {
		return next
	}
	want := sha256.Sum256([]byte(apiKey))

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		switch {
		case token == "":
			reject(w, r, authRealm, "Authorization required.", "missing bearer token")
		case subtle.ConstantTimeCompare(digest(token), want[:]) != 1:
			reject(w, r, authRealm+` error="invalid_token"`, "Invalid token.", "invalid bearer token")
		default:
			next.ServeHTTP(w, r)
		}
	})
}

func digest(token string) []byte {
	sum := sha256.Sum256([]byte(token))
	return sum[:]
}

// reject answers 401 with a WWW-Authenticate challenge.
func reject(w http.ResponseWriter, r *http.Request, challenge, detail, reason string) {
	logging.FromContext(r.Context()).Warn("auth: "+reason, slog.String("ip", clientIP(r)))
	w.Header().Set("WWW-Authenticate", challenge)
	writeError(r.Context(), w, http.StatusUnauthorized, detail)
}

// bearerToken returns the token of a Bearer Authorization header, or "" when
// the header is absent or uses another scheme.
func bearerToken(r *http.Request) string {
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
