package auth

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// QueryParam is the query parameter checked when the header is absent.
const QueryParam = "api_key"

// Policy decides whether a presented API key is acceptable.
type Policy struct {
	mode   string
	header string
	key    string
}

// NewPolicy returns a Policy. header defaults to "x-api-key".
func NewPolicy(mode, header, key string) Policy {
	if header == "" {
		header = "x-api-key"
	}
	return Policy{mode: mode, header: strings.ToLower(header), key: key}
}

// Enabled reports whether requests must present the key.
func (p Policy) Enabled() bool {
	return p.mode == "apikey" && p.key != ""
}

// Header returns the lowercase header / metadata name the key is read from.
func (p Policy) Header() string { return p.header }

// Allow reports whether presented satisfies the policy.
func (p Policy) Allow(presented string) bool {
	if !p.Enabled() {
		return true
	}
	if presented == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(presented), []byte(p.key)) == 1
}

// Middleware rejects requests without a valid key with 401. The key is read
// from the policy header, then from the api_key query parameter.
func (p Policy) Middleware(next http.Handler) http.Handler {
	if !p.Enabled() {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		presented := r.Header.Get(p.header)
		if presented == "" {
			presented = r.URL.Query().Get(QueryParam)
		}
		if !p.Allow(presented) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"invalid api key"}` + "\n"))
			return
		}
		next.ServeHTTP(w, r)
	})
}
