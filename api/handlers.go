package api

import (
	"encoding/base64"
	"errors"
	"log/slog"
	"net/http"

	"github.com/mwalcott/keystep/mfa"
)

// handleSetupStart begins TOTP enrollment. The generated secret is returned
// to the caller and echoed back on setup-verify; nothing is persisted yet.
func (a *API) handleSetupStart(w http.ResponseWriter, r *http.Request) {
	ident := identityFromContext(r.Context())

	if blocked, retryAfter := a.setupLimiter.check(ident.ID); blocked {
		a.audit.logUser(AuditRateLimited, r, ident.ID, slog.String("endpoint", "setup"))
		writeRateLimited(w, retryAfter)
		return
	}
	a.setupLimiter.record(ident.ID)

	challenge, err := a.ctrl.BeginSetup(r.Context(), ident.ID, ident.Email)
	if err != nil {
		mapError(w, err)
		return
	}

	a.audit.logUser(AuditSetupInitiated, r, ident.ID)
	writeJSON(w, http.StatusOK, SetupStartResponse{
		QRCodeImage:    "data:image/png;base64," + base64.StdEncoding.EncodeToString(challenge.QRImage),
		ManualEntryKey: challenge.Secret,
		PendingSecret:  challenge.Secret,
	})
}

// handleSetupVerify confirms enrollment with a code from the authenticator.
// On success the recovery codes are returned — the only time they ever are —
// and the session marker is issued so the user is not immediately
// re-challenged.
func (a *API) handleSetupVerify(w http.ResponseWriter, r *http.Request) {
	ident := identityFromContext(r.Context())

	req, ok := decodeJSON[SetupVerifyRequest](w, r)
	if !ok {
		return
	}

	if blocked, retryAfter := a.setupLimiter.check(ident.ID); blocked {
		a.audit.logUser(AuditRateLimited, r, ident.ID, slog.String("endpoint", "setup_verify"))
		writeRateLimited(w, retryAfter)
		return
	}

	codes, err := a.ctrl.ConfirmSetup(r.Context(), ident.ID, ident.Email, req.PendingSecret, req.Code)
	if err != nil {
		a.setupLimiter.record(ident.ID)
		a.audit.logFailure(AuditSetupVerifyFailed, r, ident.ID, err.Error())
		mapError(w, err)
		return
	}
	a.setupLimiter.clear(ident.ID)

	if err := a.marker.issue(w, r, ident.ID); err != nil {
		mapError(w, err)
		return
	}
	a.audit.logUser(AuditEnabled, r, ident.ID)
	writeJSON(w, http.StatusOK, SetupVerifyResponse{RecoveryCodes: codes})
}

// handleVerify resolves a login challenge with a TOTP code, a recovery code,
// or a standing trusted-device exemption.
func (a *API) handleVerify(w http.ResponseWriter, r *http.Request) {
	ident := identityFromContext(r.Context())

	req, ok := decodeJSON[VerifyRequest](w, r)
	if !ok {
		return
	}

	if blocked, retryAfter := a.verifyLimiter.check(ident.ID); blocked {
		a.audit.logUser(AuditRateLimited, r, ident.ID, slog.String("endpoint", "verify"))
		writeRateLimited(w, retryAfter)
		return
	}

	deviceID := deviceIDFromRequest(r)
	result, err := a.ctrl.VerifyLogin(r.Context(), ident.ID, req.Code, req.RecoveryCode, mfa.DeviceContext{
		DeviceID:   deviceID,
		DeviceName: req.DeviceName,
		Trust:      req.TrustDevice,
	})
	if err != nil {
		// A decryption fault is an integrity event, not a failed guess; it
		// burns no rate-limit attempt, so the recovery-code path stays open.
		if errors.Is(err, mfa.ErrDecryption) {
			a.audit.logUser(AuditIntegrityFault, r, ident.ID)
		} else {
			a.verifyLimiter.record(ident.ID)
			a.audit.logFailure(AuditLoginFailed, r, ident.ID, err.Error())
		}
		mapError(w, err)
		return
	}
	a.verifyLimiter.clear(ident.ID)
	a.sendLimiter.clear(ident.ID)

	if err := a.marker.issue(w, r, ident.ID); err != nil {
		mapError(w, err)
		return
	}

	a.audit.logUser(AuditLoginVerified, r, ident.ID, slog.String("method", result.Method))
	if result.DeviceTrusted && result.Method != mfa.MethodTrustedDevice {
		a.audit.logUser(AuditDeviceTrusted, r, ident.ID,
			slog.String("device_prefix", mfa.DeviceIDPrefix(deviceID)))
	}

	writeJSON(w, http.StatusOK, VerifyResponse{
		Verified:               true,
		Method:                 result.Method,
		DeviceTrusted:          result.DeviceTrusted,
		RecoveryCodesRemaining: result.RecoveryCodesRemaining,
	})
}

// handleStatus reports the MFA state for the current session. Unlike the
// other endpoints it does not require an identity: an unauthenticated caller
// gets a definite "not authenticated" answer, never an error.
func (a *API) handleStatus(w http.ResponseWriter, r *http.Request) {
	ident, err := a.idp.FromRequest(r)
	if err != nil {
		writeJSON(w, http.StatusOK, StatusResponse{Authenticated: false})
		return
	}

	markerValid := a.marker.valid(r, ident.ID)
	status, err := a.ctrl.Status(r.Context(), ident.ID, deviceIDFromRequest(r), markerValid)
	if err != nil {
		mapError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, StatusResponse{
		Authenticated: true,
		MFAEnabled:    status.MFAEnabled,
		MFAVerified:   status.MFAVerified,
		State:         string(status.State),
	})
}

// handleDisable turns MFA off: secret and recovery codes are destroyed.
// Trusted-device history is kept so re-enrollment restores prior exemptions.
func (a *API) handleDisable(w http.ResponseWriter, r *http.Request) {
	ident := identityFromContext(r.Context())

	if err := a.ctrl.Disable(r.Context(), ident.ID); err != nil {
		mapError(w, err)
		return
	}
	a.audit.logUser(AuditDisabled, r, ident.ID)
	writeJSON(w, http.StatusOK, SuccessResponse{Success: true})
}

// handleListDevices returns the user's active trusted devices, identified
// only by prefix.
func (a *API) handleListDevices(w http.ResponseWriter, r *http.Request) {
	ident := identityFromContext(r.Context())

	devices, err := a.ctrl.ListDevices(r.Context(), ident.ID)
	if err != nil {
		mapError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, DevicesResponse{Devices: devices})
}

// handleRevokeDevice removes every trusted device matching the given prefix.
func (a *API) handleRevokeDevice(w http.ResponseWriter, r *http.Request) {
	ident := identityFromContext(r.Context())

	req, ok := decodeJSON[RevokeDeviceRequest](w, r)
	if !ok {
		return
	}

	revoked, err := a.ctrl.RevokeDevice(r.Context(), ident.ID, req.IDPrefix)
	if err != nil {
		mapError(w, err)
		return
	}
	a.audit.logUser(AuditDeviceRevoked, r, ident.ID,
		slog.String("device_prefix", req.IDPrefix),
		slog.Int("revoked", revoked))
	writeJSON(w, http.StatusOK, RevokeDeviceResponse{Success: true, Revoked: revoked})
}

// handleSendChallenge delivers the current code out of band. Repeated calls
// within the same step resend the same code.
func (a *API) handleSendChallenge(w http.ResponseWriter, r *http.Request) {
	ident := identityFromContext(r.Context())

	if blocked, retryAfter := a.sendLimiter.check(ident.ID); blocked {
		a.audit.logUser(AuditRateLimited, r, ident.ID, slog.String("endpoint", "challenge_send"))
		writeRateLimited(w, retryAfter)
		return
	}
	a.sendLimiter.record(ident.ID)

	if err := a.ctrl.SendChallenge(r.Context(), ident.ID); err != nil {
		if errors.Is(err, mfa.ErrDecryption) {
			a.audit.logUser(AuditIntegrityFault, r, ident.ID)
		}
		mapError(w, err)
		return
	}
	a.audit.logUser(AuditCodeSent, r, ident.ID)
	writeJSON(w, http.StatusOK, SendChallengeResponse{Sent: true})
}

// handleLogout clears the session marker. It is deliberately tolerant:
// no identity is required and a missing marker is still a success.
func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	clearMarker(w, r)
	a.audit.log(AuditLogout, r)
	writeJSON(w, http.StatusOK, SuccessResponse{Success: true})
}
