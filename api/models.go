package api

import "github.com/mwalcott/keystep/mfa"

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Kind  string `json:"kind"`
	Error string `json:"error"`
}

// SetupStartResponse is returned from POST /mfa/setup. The pending secret is
// echoed back on setup-verify; it is never persisted server-side.
type SetupStartResponse struct {
	QRCodeImage    string `json:"qrCodeImage"`
	ManualEntryKey string `json:"manualEntryKey"`
	PendingSecret  string `json:"pendingSecret"`
}

// SetupVerifyRequest is the JSON body for POST /mfa/setup/verify.
type SetupVerifyRequest struct {
	Code          string `json:"code"`
	PendingSecret string `json:"pendingSecret"`
}

// SetupVerifyResponse carries the raw recovery codes — the only time they
// are ever returned.
type SetupVerifyResponse struct {
	RecoveryCodes []string `json:"recoveryCodes"`
}

// VerifyRequest is the JSON body for POST /mfa/verify. Exactly one of Code
// or RecoveryCode is expected; TrustDevice requests a 30-day exemption for
// the presenting device.
type VerifyRequest struct {
	Code         string `json:"code,omitempty"`
	RecoveryCode string `json:"recoveryCode,omitempty"`
	TrustDevice  bool   `json:"trustDevice,omitempty"`
	DeviceName   string `json:"deviceName,omitempty"`
}

// VerifyResponse is returned from POST /mfa/verify.
type VerifyResponse struct {
	Verified               bool   `json:"verified"`
	Method                 string `json:"method"`
	DeviceTrusted          bool   `json:"deviceTrusted,omitempty"`
	RecoveryCodesRemaining int    `json:"recoveryCodesRemaining"`
}

// StatusResponse is the deterministic session contract from GET /mfa/status.
type StatusResponse struct {
	Authenticated bool   `json:"authenticated"`
	MFAEnabled    bool   `json:"mfaEnabled"`
	MFAVerified   bool   `json:"mfaVerified"`
	State         string `json:"state,omitempty"`
}

// DevicesResponse is returned from GET /mfa/devices.
type DevicesResponse struct {
	Devices []mfa.DeviceView `json:"devices"`
}

// RevokeDeviceRequest is the JSON body for POST /mfa/devices/revoke.
type RevokeDeviceRequest struct {
	IDPrefix string `json:"idPrefix"`
}

// RevokeDeviceResponse is returned from POST /mfa/devices/revoke.
type RevokeDeviceResponse struct {
	Success bool `json:"success"`
	Revoked int  `json:"revoked"`
}

// SendChallengeResponse is returned from POST /mfa/challenge/send.
type SendChallengeResponse struct {
	Sent bool `json:"sent"`
}

// SuccessResponse is the generic acknowledgement body.
type SuccessResponse struct {
	Success bool `json:"success"`
}
