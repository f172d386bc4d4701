// Package identity models the external identity/session collaborator. MFA
// requests arrive already carrying an authenticated base identity; this
// package only resolves it from the request, it performs no authentication
// of its own.
package identity

import (
	"errors"
	"net/http"
)

// ErrUnauthenticated indicates no base identity accompanies the request.
var ErrUnauthenticated = errors.New("no authenticated identity")

// Identity is the authenticated base identity resolved by the upstream
// provider before MFA runs.
type Identity struct {
	ID    string
	Email string
}

// Provider resolves the base identity from an incoming request.
type Provider interface {
	FromRequest(r *http.Request) (*Identity, error)
}

// Header names populated by the fronting identity proxy.
const (
	HeaderUserID    = "X-Auth-User-Id"
	HeaderUserEmail = "X-Auth-User-Email"
)

// HeaderProvider trusts identity headers injected by a fronting
// authentication proxy. Deployments must strip these headers from client
// traffic at the edge.
type HeaderProvider struct{}

var _ Provider = HeaderProvider{}

func (HeaderProvider) FromRequest(r *http.Request) (*Identity, error) {
	id := r.Header.Get(HeaderUserID)
	email := r.Header.Get(HeaderUserEmail)
	if id == "" || email == "" {
		return nil, ErrUnauthenticated
	}
	return &Identity{ID: id, Email: email}, nil
}
