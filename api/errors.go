package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/mwalcott/keystep/identity"
	"github.com/mwalcott/keystep/mfa"
	"github.com/mwalcott/keystep/notify"
	"github.com/mwalcott/keystep/storage"
)

// Stable machine-readable error kinds. Clients branch on these, never on the
// human message.
const (
	KindUnauthenticated      = "unauthenticated"
	KindInvalidCode          = "invalid_code"
	KindAuthenticationFailed = "authentication_failed"
	KindAlreadyEnrolled      = "already_enrolled"
	KindNotEnrolled          = "not_enrolled"
	KindIntegrityFault       = "integrity_fault"
	KindDeviceNotFound       = "device_not_found"
	KindDeliveryFailed       = "delivery_failed"
	KindNotConfigured        = "delivery_not_configured"
	KindRateLimited          = "rate_limited"
	KindBadRequest           = "bad_request"
	KindInternal             = "internal"
)

// maxBodySize bounds request bodies; every payload here is small JSON.
const maxBodySize = 64 * 1024

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, kind, msg string) {
	writeJSON(w, status, ErrorResponse{Kind: kind, Error: msg})
}

// mapError translates core errors into HTTP responses. Error bodies carry no
// secret material, encryption details, or full device identifiers.
func mapError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, identity.ErrUnauthenticated):
		writeError(w, http.StatusUnauthorized, KindUnauthenticated, "authentication required")
	case errors.Is(err, mfa.ErrInvalidCode):
		writeError(w, http.StatusBadRequest, KindInvalidCode, "invalid verification code")
	case errors.Is(err, mfa.ErrAuthenticationFailed):
		writeError(w, http.StatusUnauthorized, KindAuthenticationFailed, "verification failed")
	case errors.Is(err, mfa.ErrAlreadyEnrolled):
		writeError(w, http.StatusConflict, KindAlreadyEnrolled, "MFA is already enabled; disable it first to reconfigure")
	case errors.Is(err, mfa.ErrNotEnrolled):
		writeError(w, http.StatusConflict, KindNotEnrolled, "MFA is not enabled")
	case errors.Is(err, mfa.ErrDecryption):
		// Integrity fault: distinct from a wrong code so clients don't
		// prompt the user to retry a corrupted secret indefinitely.
		writeError(w, http.StatusInternalServerError, KindIntegrityFault, "stored MFA state could not be read")
	case errors.Is(err, mfa.ErrDeviceNotFound):
		writeError(w, http.StatusNotFound, KindDeviceNotFound, "no trusted device matched")
	case errors.Is(err, notify.ErrNotConfigured):
		writeError(w, http.StatusInternalServerError, KindNotConfigured, "code delivery is not configured")
	case errors.Is(err, notify.ErrDelivery):
		writeError(w, http.StatusBadGateway, KindDeliveryFailed, "code could not be delivered; the code remains valid, retry sending")
	case errors.Is(err, storage.ErrNotFound):
		writeError(w, http.StatusNotFound, KindInternal, "record not found")
	default:
		writeError(w, http.StatusInternalServerError, KindInternal, "internal error")
	}
}

// decodeJSON reads and decodes a JSON request body, writing a 400 on failure.
func decodeJSON[T any](w http.ResponseWriter, r *http.Request) (T, bool) {
	var v T
	body := io.LimitReader(r.Body, maxBodySize)
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&v); err != nil {
		writeError(w, http.StatusBadRequest, KindBadRequest, "invalid JSON body")
		return v, false
	}
	return v, true
}
