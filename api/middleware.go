package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/mwalcott/keystep/identity"
)

type contextKey int

const identityKey contextKey = iota

// RequireIdentity resolves the base identity from the external provider and
// stores it on the request context. MFA endpoints never run without one.
func (a *API) RequireIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ident, err := a.idp.FromRequest(r)
		if err != nil {
			mapError(w, err)
			return
		}
		ctx := context.WithValue(r.Context(), identityKey, ident)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func identityFromContext(ctx context.Context) *identity.Identity {
	ident, _ := ctx.Value(identityKey).(*identity.Identity)
	return ident
}

func requestIsSecure(r *http.Request) bool {
	if r.TLS != nil {
		return true
	}
	if strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https") {
		return true
	}
	return strings.Contains(strings.ToLower(r.Header.Get("Forwarded")), "proto=https")
}
