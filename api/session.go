package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	// markerCookieName holds the MFA session marker: its presence (and
	// validity) means this browser session has passed MFA for the current
	// login.
	markerCookieName = "keystep_mfa"
	// markerTTL bounds how long a verification is honoured before the user
	// is challenged again.
	markerTTL = 24 * time.Hour

	markerIssuerName = "keystep"
)

// markerIssuer signs and validates the MFA session-marker cookie. The marker
// is a short-lived HS256 JWT bound to the user ID, so a marker lifted from
// one account cannot satisfy a challenge for another.
type markerIssuer struct {
	secret []byte
}

func newMarkerIssuer(secret []byte) *markerIssuer {
	return &markerIssuer{secret: secret}
}

func (m *markerIssuer) issue(w http.ResponseWriter, r *http.Request, userID string) error {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Issuer:    markerIssuerName,
		Subject:   userID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(markerTTL)),
	})
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     markerCookieName,
		Value:    signed,
		Path:     "/",
		HttpOnly: true,
		Secure:   requestIsSecure(r),
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(markerTTL.Seconds()),
	})
	return nil
}

// valid reports whether the request carries an unexpired marker for userID.
func (m *markerIssuer) valid(r *http.Request, userID string) bool {
	cookie, err := r.Cookie(markerCookieName)
	if err != nil || cookie.Value == "" {
		return false
	}

	claims := &jwt.RegisteredClaims{}
	_, err = jwt.ParseWithClaims(cookie.Value, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return m.secret, nil
	}, jwt.WithIssuer(markerIssuerName), jwt.WithExpirationRequired())
	if err != nil {
		return false
	}
	return claims.Subject == userID
}

func clearMarker(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     markerCookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   requestIsSecure(r),
		SameSite: http.SameSiteLaxMode,
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
	})
}
