package mfa

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mwalcott/keystep/notify"
	"github.com/mwalcott/keystep/storage"
)

// State describes where a user's session sits in the MFA state machine.
type State string

const (
	// StateNoMFA: the user has never enrolled (or has disabled MFA).
	StateNoMFA State = "no_mfa"
	// StatePendingSetup: a secret has been generated but not yet confirmed.
	// With stateless setup this state lives only on the client, between
	// BeginSetup and ConfirmSetup.
	StatePendingSetup State = "pending_setup"
	// StateEnrolledUnchallenged: enrolled, current session not yet verified.
	StateEnrolledUnchallenged State = "enrolled_unchallenged"
	// StateEnrolledVerified: the current session passed a challenge.
	StateEnrolledVerified State = "enrolled_verified"
	// StateDeviceExempt: the current session skipped the challenge via a
	// trusted device.
	StateDeviceExempt State = "device_exempt"
)

// Verification methods reported by VerifyLogin.
const (
	MethodTOTP          = "totp"
	MethodRecoveryCode  = "recovery_code"
	MethodTrustedDevice = "trusted_device"
)

// Controller orchestrates enrollment, verification, device-trust decisions
// and disablement. It holds no mutable state of its own; every operation
// reads the user's record fresh and writes back through the store's
// per-record atomic update.
type Controller struct {
	store  storage.Store
	vault  *Vault
	sender notify.Sender
	issuer string
	now    func() time.Time
}

// Option configures a Controller.
type Option func(*Controller)

// WithClock overrides the time source. Tests use this to pin verification
// windows and device expiries.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

// WithSender enables out-of-band code delivery.
func WithSender(s notify.Sender) Option {
	return func(c *Controller) { c.sender = s }
}

// NewController creates a Controller. The issuer names this service in
// provisioning URIs shown by authenticator apps.
func NewController(store storage.Store, vault *Vault, issuer string, opts ...Option) *Controller {
	c := &Controller{
		store:  store,
		vault:  vault,
		issuer: issuer,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetupChallenge is handed to the caller for exactly one round trip. The
// secret is not persisted; an abandoned setup leaves no orphaned state.
type SetupChallenge struct {
	Secret          string
	ProvisioningURI string
	QRImage         []byte
}

// BeginSetup starts enrollment: NO_MFA -> PENDING_SETUP. Fails with
// ErrAlreadyEnrolled if an active secret exists.
func (c *Controller) BeginSetup(ctx context.Context, userID, email string) (*SetupChallenge, error) {
	record, err := c.readRecord(ctx, userID)
	if err != nil {
		return nil, err
	}
	if record.MFAEnabled {
		return nil, ErrAlreadyEnrolled
	}

	secret, uri, err := GenerateSecret(c.issuer, email)
	if err != nil {
		return nil, err
	}
	qr, err := RenderProvisioningImage(uri)
	if err != nil {
		return nil, err
	}
	return &SetupChallenge{Secret: secret, ProvisioningURI: uri, QRImage: qr}, nil
}

// ConfirmSetup completes enrollment: PENDING_SETUP -> ENROLLED_VERIFIED.
// The caller echoes back the secret from BeginSetup together with a live
// code. On success the secret is encrypted and persisted alongside freshly
// generated recovery-code hashes, and the raw recovery codes are returned —
// the only time they are ever visible. On a wrong code nothing was persisted,
// so the caller may simply retry with the same secret. The email is recorded
// as the delivery destination for out-of-band codes.
func (c *Controller) ConfirmSetup(ctx context.Context, userID, email, pendingSecret, code string) ([]string, error) {
	if !ValidSecret(pendingSecret) {
		return nil, ErrInvalidCode
	}
	if !VerifyCode(pendingSecret, code, c.now()) {
		return nil, ErrInvalidCode
	}

	rawCodes, hashes, err := GenerateRecoveryCodes(RecoveryCodeCount)
	if err != nil {
		return nil, err
	}
	encrypted, err := c.vault.Encrypt([]byte(pendingSecret), []byte(userID))
	if err != nil {
		return nil, err
	}

	err = c.store.AtomicUpdate(ctx, userID, func(r *storage.Record) error {
		if r.MFAEnabled {
			return ErrAlreadyEnrolled
		}
		r.MFAEnabled = true
		r.Email = email
		r.MFASecretEncrypted = encrypted
		r.MFARecoveryCodeHashes = hashes
		r.MFAEnabledAt = c.now().UTC()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rawCodes, nil
}

// DeviceContext carries the presented device identity on a login challenge.
type DeviceContext struct {
	DeviceID   string
	DeviceName string
	// Trust requests a 30-day exemption for this device after a successful
	// challenge.
	Trust bool
}

// VerifyResult reports how a login challenge was satisfied.
type VerifyResult struct {
	Method                 string
	DeviceTrusted          bool
	RecoveryCodesRemaining int
}

// VerifyLogin resolves a login challenge: ENROLLED_UNCHALLENGED ->
// ENROLLED_VERIFIED (code or recovery code) or -> DEVICE_EXEMPT (trusted
// device, no code required). Both factors failing leaves all state unchanged
// and returns ErrAuthenticationFailed. A decryption failure of the stored
// secret is ErrDecryption — fatal for the request, never retryable as a
// wrong code.
func (c *Controller) VerifyLogin(ctx context.Context, userID, code, recoveryCode string, device DeviceContext) (*VerifyResult, error) {
	record, err := c.readRecord(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !record.MFAEnabled {
		return nil, ErrNotEnrolled
	}
	now := c.now()

	if IsTrusted(record.TrustedDevices, device.DeviceID, now) {
		// Refresh last-used; best effort, a write failure must not block the
		// (read-only) trust decision.
		_ = c.store.AtomicUpdate(ctx, userID, func(r *storage.Record) error {
			r.TrustedDevices, _ = Touch(r.TrustedDevices, device.DeviceID, now)
			return nil
		})
		return &VerifyResult{
			Method:                 MethodTrustedDevice,
			DeviceTrusted:          true,
			RecoveryCodesRemaining: len(record.MFARecoveryCodeHashes),
		}, nil
	}

	result := &VerifyResult{RecoveryCodesRemaining: len(record.MFARecoveryCodeHashes)}

	if code != "" {
		secret, err := c.vault.Decrypt(record.MFASecretEncrypted, []byte(userID))
		if err != nil {
			return nil, err
		}
		if VerifyCode(string(secret), code, now) {
			result.Method = MethodTOTP
		}
	}

	if result.Method == "" && recoveryCode != "" {
		// Consume under the store's atomicity so two concurrent uses of the
		// same code cannot both succeed against a stale list.
		err := c.store.AtomicUpdate(ctx, userID, func(r *storage.Record) error {
			matched, remaining := ConsumeRecoveryCode(r.MFARecoveryCodeHashes, recoveryCode)
			if !matched {
				return ErrAuthenticationFailed
			}
			r.MFARecoveryCodeHashes = remaining
			result.RecoveryCodesRemaining = len(remaining)
			return nil
		})
		if err != nil && !errors.Is(err, ErrAuthenticationFailed) {
			return nil, err
		}
		if err == nil {
			result.Method = MethodRecoveryCode
		}
	}

	if result.Method == "" {
		return nil, ErrAuthenticationFailed
	}

	if device.Trust && device.DeviceID != "" {
		err := c.store.AtomicUpdate(ctx, userID, func(r *storage.Record) error {
			r.TrustedDevices = Issue(r.TrustedDevices, device.DeviceID, device.DeviceName, now)
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("issuing device trust: %w", err)
		}
		result.DeviceTrusted = true
	}
	return result, nil
}

// StatusResult is the deterministic session contract consumed by clients.
type StatusResult struct {
	MFAEnabled  bool
	MFAVerified bool
	State       State
}

// Status reports the MFA state for the current session. markerValid is
// whether the caller presented a valid session marker; deviceID is the
// presented device fingerprint. A trusted-device hit refreshes the device's
// last-used timestamp (best effort).
func (c *Controller) Status(ctx context.Context, userID, deviceID string, markerValid bool) (*StatusResult, error) {
	record, err := c.readRecord(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !record.MFAEnabled {
		// No second factor configured: the session is as verified as it can be.
		return &StatusResult{MFAEnabled: false, MFAVerified: true, State: StateNoMFA}, nil
	}

	now := c.now()
	if markerValid {
		return &StatusResult{MFAEnabled: true, MFAVerified: true, State: StateEnrolledVerified}, nil
	}
	if IsTrusted(record.TrustedDevices, deviceID, now) {
		_ = c.store.AtomicUpdate(ctx, userID, func(r *storage.Record) error {
			r.TrustedDevices, _ = Touch(r.TrustedDevices, deviceID, now)
			return nil
		})
		return &StatusResult{MFAEnabled: true, MFAVerified: true, State: StateDeviceExempt}, nil
	}
	return &StatusResult{MFAEnabled: true, MFAVerified: false, State: StateEnrolledUnchallenged}, nil
}

// Disable drops back to NO_MFA: clears the enabled flag, the encrypted
// secret and the recovery hashes. The trusted-device list is deliberately
// untouched — standing device trust is only destroyed by explicit revocation.
func (c *Controller) Disable(ctx context.Context, userID string) error {
	return c.store.AtomicUpdate(ctx, userID, func(r *storage.Record) error {
		if !r.MFAEnabled {
			return ErrNotEnrolled
		}
		r.MFAEnabled = false
		r.MFASecretEncrypted = nil
		r.MFARecoveryCodeHashes = nil
		r.MFAEnabledAt = time.Time{}
		return nil
	})
}

// ListDevices returns the active trusted devices in their external,
// partial-identifier form.
func (c *Controller) ListDevices(ctx context.Context, userID string) ([]DeviceView, error) {
	record, err := c.readRecord(ctx, userID)
	if err != nil {
		return nil, err
	}
	return ProjectDevices(record.TrustedDevices, c.now()), nil
}

// RevokeDevice removes every trusted device whose identifier starts with
// idPrefix, returning how many were removed. No match is ErrDeviceNotFound
// and writes nothing.
func (c *Controller) RevokeDevice(ctx context.Context, userID, idPrefix string) (int, error) {
	removed := 0
	err := c.store.AtomicUpdate(ctx, userID, func(r *storage.Record) error {
		remaining, n := Revoke(r.TrustedDevices, idPrefix)
		if n == 0 {
			return ErrDeviceNotFound
		}
		r.TrustedDevices = remaining
		removed = n
		return nil
	})
	if err != nil {
		return 0, err
	}
	return removed, nil
}

// SendChallenge computes the current code for the user's secret and hands it
// to the delivery collaborator. Delivery failure does not invalidate the
// code: a retry within the same time step re-sends the identical code.
func (c *Controller) SendChallenge(ctx context.Context, userID string) error {
	if c.sender == nil {
		return notify.ErrNotConfigured
	}
	record, err := c.readRecord(ctx, userID)
	if err != nil {
		return err
	}
	if !record.MFAEnabled {
		return ErrNotEnrolled
	}

	secret, err := c.vault.Decrypt(record.MFASecretEncrypted, []byte(userID))
	if err != nil {
		return err
	}
	code, err := CodeAt(string(secret), c.now())
	if err != nil {
		return err
	}
	return c.sender.SendCode(ctx, record.Email, code)
}

// readRecord loads the user's record, mapping an absent record to the empty
// NO_MFA record. Requests carry an authenticated identity, so a user the
// store has never seen is simply a user who never enrolled.
func (c *Controller) readRecord(ctx context.Context, userID string) (*storage.Record, error) {
	record, err := c.store.Read(ctx, userID)
	if errors.Is(err, storage.ErrNotFound) {
		return &storage.Record{UserID: userID}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading record: %w", err)
	}
	return record, nil
}
