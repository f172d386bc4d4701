package mfa

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mwalcott/keystep/internal/util"
	"github.com/mwalcott/keystep/notify"
	"github.com/mwalcott/keystep/storage"
	"github.com/mwalcott/keystep/storage/memory"
)

const testUser = "user-1"

// ctrlNow sits 5 seconds into a TOTP step so window tests are deterministic.
var ctrlNow = time.Unix(1699999980, 0).Add(5 * time.Second).UTC()

type fixture struct {
	store *memory.Store
	ctrl  *Controller
	now   time.Time
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	key, err := util.RandomBytes(util.AESKeySize)
	require.NoError(t, err)
	vault, err := NewVault(key)
	require.NoError(t, err)

	f := &fixture{store: memory.NewStore(), now: ctrlNow}
	opts = append([]Option{WithClock(func() time.Time { return f.now })}, opts...)
	f.ctrl = NewController(f.store, vault, "Keystep", opts...)
	return f
}

// enroll drives a full setup round trip and returns the secret and the raw
// recovery codes.
func (f *fixture) enroll(t *testing.T) (string, []string) {
	t.Helper()
	challenge, err := f.ctrl.BeginSetup(context.Background(), testUser, "user@example.com")
	require.NoError(t, err)

	code, err := CodeAt(challenge.Secret, f.now)
	require.NoError(t, err)
	recoveryCodes, err := f.ctrl.ConfirmSetup(context.Background(), testUser, "user@example.com", challenge.Secret, code)
	require.NoError(t, err)
	return challenge.Secret, recoveryCodes
}

func TestBeginSetup(t *testing.T) {
	f := newFixture(t)

	challenge, err := f.ctrl.BeginSetup(context.Background(), testUser, "user@example.com")
	require.NoError(t, err)
	assert.True(t, ValidSecret(challenge.Secret))
	assert.Contains(t, challenge.ProvisioningURI, "issuer=Keystep")
	assert.Contains(t, challenge.ProvisioningURI, "example.com")
	assert.NotEmpty(t, challenge.QRImage)

	// The pending secret must not be persisted: an abandoned setup leaves
	// no state behind.
	_, err = f.store.Read(context.Background(), testUser)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestBeginSetupAlreadyEnrolled(t *testing.T) {
	f := newFixture(t)
	f.enroll(t)

	_, err := f.ctrl.BeginSetup(context.Background(), testUser, "user@example.com")
	assert.ErrorIs(t, err, ErrAlreadyEnrolled)
}

func TestConfirmSetup(t *testing.T) {
	f := newFixture(t)
	secret, recoveryCodes := f.enroll(t)

	assert.Len(t, recoveryCodes, RecoveryCodeCount)

	rec, err := f.store.Read(context.Background(), testUser)
	require.NoError(t, err)
	assert.True(t, rec.MFAEnabled)
	assert.Len(t, rec.MFARecoveryCodeHashes, RecoveryCodeCount)
	assert.NotContains(t, string(rec.MFASecretEncrypted), secret,
		"secret must not be stored in plaintext")
	assert.False(t, rec.MFAEnabledAt.IsZero())
}

func TestConfirmSetupWrongCode(t *testing.T) {
	f := newFixture(t)
	challenge, err := f.ctrl.BeginSetup(context.Background(), testUser, "user@example.com")
	require.NoError(t, err)

	_, err = f.ctrl.ConfirmSetup(context.Background(), testUser, "user@example.com", challenge.Secret, "000000")
	assert.ErrorIs(t, err, ErrInvalidCode)

	// Nothing was persisted; the caller may retry with the same secret.
	_, err = f.store.Read(context.Background(), testUser)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	code, err := CodeAt(challenge.Secret, f.now)
	require.NoError(t, err)
	_, err = f.ctrl.ConfirmSetup(context.Background(), testUser, "user@example.com", challenge.Secret, code)
	assert.NoError(t, err, "retry with the same echoed secret should succeed")
}

func TestConfirmSetupMalformedSecret(t *testing.T) {
	f := newFixture(t)
	_, err := f.ctrl.ConfirmSetup(context.Background(), testUser, "user@example.com", "garbage!!", "123456")
	assert.ErrorIs(t, err, ErrInvalidCode)
}

func TestVerifyLoginTOTP(t *testing.T) {
	f := newFixture(t)
	secret, _ := f.enroll(t)

	code, err := CodeAt(secret, f.now)
	require.NoError(t, err)
	result, err := f.ctrl.VerifyLogin(context.Background(), testUser, code, "", DeviceContext{})
	require.NoError(t, err)
	assert.Equal(t, MethodTOTP, result.Method)
	assert.False(t, result.DeviceTrusted)
}

func TestVerifyLoginWrongCode(t *testing.T) {
	f := newFixture(t)
	f.enroll(t)

	_, err := f.ctrl.VerifyLogin(context.Background(), testUser, "000001", "", DeviceContext{})
	assert.ErrorIs(t, err, ErrAuthenticationFailed)
}

func TestVerifyLoginNotEnrolled(t *testing.T) {
	f := newFixture(t)
	_, err := f.ctrl.VerifyLogin(context.Background(), testUser, "123456", "", DeviceContext{})
	assert.ErrorIs(t, err, ErrNotEnrolled)
}

func TestVerifyLoginRecoveryCode(t *testing.T) {
	f := newFixture(t)
	_, recoveryCodes := f.enroll(t)

	result, err := f.ctrl.VerifyLogin(context.Background(), testUser, "", recoveryCodes[0], DeviceContext{})
	require.NoError(t, err)
	assert.Equal(t, MethodRecoveryCode, result.Method)
	assert.Equal(t, RecoveryCodeCount-1, result.RecoveryCodesRemaining)

	// One-time use: the same code fails on the second attempt.
	_, err = f.ctrl.VerifyLogin(context.Background(), testUser, "", recoveryCodes[0], DeviceContext{})
	assert.ErrorIs(t, err, ErrAuthenticationFailed)

	rec, err := f.store.Read(context.Background(), testUser)
	require.NoError(t, err)
	assert.Len(t, rec.MFARecoveryCodeHashes, RecoveryCodeCount-1)
}

func TestVerifyLoginCorruptedSecret(t *testing.T) {
	f := newFixture(t)
	f.enroll(t)

	require.NoError(t, f.store.AtomicUpdate(context.Background(), testUser, func(r *storage.Record) error {
		r.MFASecretEncrypted[len(r.MFASecretEncrypted)-1] ^= 0x01
		return nil
	}))

	// An integrity fault must be distinguishable from a wrong code.
	_, err := f.ctrl.VerifyLogin(context.Background(), testUser, "123456", "", DeviceContext{})
	assert.ErrorIs(t, err, ErrDecryption)
	assert.NotErrorIs(t, err, ErrAuthenticationFailed)
}

func TestVerifyLoginTrustedDeviceBypass(t *testing.T) {
	f := newFixture(t)
	f.enroll(t)

	require.NoError(t, f.store.AtomicUpdate(context.Background(), testUser, func(r *storage.Record) error {
		r.TrustedDevices = Issue(r.TrustedDevices, "dev-abc12345", "Laptop", f.now.Add(-time.Hour))
		return nil
	}))

	// No code required when the presented device is trusted.
	result, err := f.ctrl.VerifyLogin(context.Background(), testUser, "", "", DeviceContext{DeviceID: "dev-abc12345"})
	require.NoError(t, err)
	assert.Equal(t, MethodTrustedDevice, result.Method)

	rec, err := f.store.Read(context.Background(), testUser)
	require.NoError(t, err)
	assert.True(t, rec.TrustedDevices[0].LastUsedAt.Equal(f.now), "bypass refreshes last-used")
}

func TestVerifyLoginExpiredDeviceRequiresCode(t *testing.T) {
	f := newFixture(t)
	f.enroll(t)

	require.NoError(t, f.store.AtomicUpdate(context.Background(), testUser, func(r *storage.Record) error {
		r.TrustedDevices = Issue(r.TrustedDevices, "dev-old", "Old laptop", f.now.Add(-31*24*time.Hour))
		return nil
	}))

	_, err := f.ctrl.VerifyLogin(context.Background(), testUser, "", "", DeviceContext{DeviceID: "dev-old"})
	assert.ErrorIs(t, err, ErrAuthenticationFailed)
}

func TestVerifyLoginIssuesTrust(t *testing.T) {
	f := newFixture(t)
	secret, _ := f.enroll(t)

	code, err := CodeAt(secret, f.now)
	require.NoError(t, err)
	result, err := f.ctrl.VerifyLogin(context.Background(), testUser, code, "", DeviceContext{
		DeviceID:   "dev-new123",
		DeviceName: "Phone",
		Trust:      true,
	})
	require.NoError(t, err)
	assert.True(t, result.DeviceTrusted)

	rec, err := f.store.Read(context.Background(), testUser)
	require.NoError(t, err)
	require.Len(t, rec.TrustedDevices, 1)
	assert.True(t, rec.TrustedDevices[0].ExpiresAt.Equal(f.now.Add(TrustDuration)))
}

func TestDisable(t *testing.T) {
	f := newFixture(t)
	f.enroll(t)

	require.NoError(t, f.store.AtomicUpdate(context.Background(), testUser, func(r *storage.Record) error {
		r.TrustedDevices = Issue(r.TrustedDevices, "dev-keep", "Laptop", f.now)
		return nil
	}))

	require.NoError(t, f.ctrl.Disable(context.Background(), testUser))

	rec, err := f.store.Read(context.Background(), testUser)
	require.NoError(t, err)
	assert.False(t, rec.MFAEnabled)
	assert.Empty(t, rec.MFASecretEncrypted)
	assert.Empty(t, rec.MFARecoveryCodeHashes)
	// Disabling MFA does not destroy standing device trust.
	require.Len(t, rec.TrustedDevices, 1)
	assert.Equal(t, "dev-keep", rec.TrustedDevices[0].DeviceID)

	assert.ErrorIs(t, f.ctrl.Disable(context.Background(), testUser), ErrNotEnrolled)
}

func TestRevokeDevice(t *testing.T) {
	f := newFixture(t)
	f.enroll(t)

	require.NoError(t, f.store.AtomicUpdate(context.Background(), testUser, func(r *storage.Record) error {
		r.TrustedDevices = Issue(r.TrustedDevices, "abc123deadbeef", "Laptop", f.now)
		r.TrustedDevices = Issue(r.TrustedDevices, "abc124cafebabe", "Tablet", f.now)
		return nil
	}))

	removed, err := f.ctrl.RevokeDevice(context.Background(), testUser, "abc12")
	require.NoError(t, err)
	assert.Equal(t, 2, removed, "prefix revocation removes every match")

	views, err := f.ctrl.ListDevices(context.Background(), testUser)
	require.NoError(t, err)
	assert.Empty(t, views)

	_, err = f.ctrl.RevokeDevice(context.Background(), testUser, "abc12")
	assert.ErrorIs(t, err, ErrDeviceNotFound)
}

func TestListDevices(t *testing.T) {
	f := newFixture(t)
	f.enroll(t)

	require.NoError(t, f.store.AtomicUpdate(context.Background(), testUser, func(r *storage.Record) error {
		r.TrustedDevices = Issue(r.TrustedDevices, "abc123deadbeef", "Laptop", f.now)
		r.TrustedDevices = Issue(r.TrustedDevices, "old999deadbeef", "Old", f.now.Add(-31*24*time.Hour))
		return nil
	}))

	views, err := f.ctrl.ListDevices(context.Background(), testUser)
	require.NoError(t, err)
	require.Len(t, views, 1, "expired devices are not listed")
	assert.Equal(t, "abc123de", views[0].IDPrefix)
}

func TestStatus(t *testing.T) {
	t.Run("no mfa", func(t *testing.T) {
		f := newFixture(t)
		status, err := f.ctrl.Status(context.Background(), testUser, "", false)
		require.NoError(t, err)
		assert.False(t, status.MFAEnabled)
		assert.True(t, status.MFAVerified)
		assert.Equal(t, StateNoMFA, status.State)
	})

	t.Run("enrolled, unchallenged", func(t *testing.T) {
		f := newFixture(t)
		f.enroll(t)
		status, err := f.ctrl.Status(context.Background(), testUser, "", false)
		require.NoError(t, err)
		assert.True(t, status.MFAEnabled)
		assert.False(t, status.MFAVerified)
		assert.Equal(t, StateEnrolledUnchallenged, status.State)
	})

	t.Run("session marker", func(t *testing.T) {
		f := newFixture(t)
		f.enroll(t)
		status, err := f.ctrl.Status(context.Background(), testUser, "", true)
		require.NoError(t, err)
		assert.True(t, status.MFAVerified)
		assert.Equal(t, StateEnrolledVerified, status.State)
	})

	t.Run("trusted device", func(t *testing.T) {
		f := newFixture(t)
		f.enroll(t)
		require.NoError(t, f.store.AtomicUpdate(context.Background(), testUser, func(r *storage.Record) error {
			r.TrustedDevices = Issue(r.TrustedDevices, "dev-abc", "Laptop", f.now.Add(-time.Hour))
			return nil
		}))

		status, err := f.ctrl.Status(context.Background(), testUser, "dev-abc", false)
		require.NoError(t, err)
		assert.True(t, status.MFAVerified)
		assert.Equal(t, StateDeviceExempt, status.State)

		rec, err := f.store.Read(context.Background(), testUser)
		require.NoError(t, err)
		assert.True(t, rec.TrustedDevices[0].LastUsedAt.Equal(f.now))
	})
}

type captureSender struct {
	destination string
	code        string
	err         error
}

func (s *captureSender) SendCode(ctx context.Context, destination, code string) error {
	if s.err != nil {
		return s.err
	}
	s.destination = destination
	s.code = code
	return nil
}

func TestSendChallenge(t *testing.T) {
	sender := &captureSender{}
	f := newFixture(t, WithSender(sender))
	secret, _ := f.enroll(t)

	require.NoError(t, f.ctrl.SendChallenge(context.Background(), testUser))
	assert.Equal(t, "user@example.com", sender.destination)

	expected, err := CodeAt(secret, f.now)
	require.NoError(t, err)
	assert.Equal(t, expected, sender.code)

	// Resend within the same step reuses the identical code.
	first := sender.code
	require.NoError(t, f.ctrl.SendChallenge(context.Background(), testUser))
	assert.Equal(t, first, sender.code)
}

func TestSendChallengeNotConfigured(t *testing.T) {
	f := newFixture(t)
	f.enroll(t)
	err := f.ctrl.SendChallenge(context.Background(), testUser)
	assert.ErrorIs(t, err, notify.ErrNotConfigured)
}

func TestSendChallengeDeliveryFailure(t *testing.T) {
	deliveryErr := errors.New("smtp timeout")
	sender := &captureSender{err: deliveryErr}
	f := newFixture(t, WithSender(sender))
	f.enroll(t)

	err := f.ctrl.SendChallenge(context.Background(), testUser)
	assert.ErrorIs(t, err, deliveryErr)
}

func TestSendChallengeNotEnrolled(t *testing.T) {
	f := newFixture(t, WithSender(&captureSender{}))
	err := f.ctrl.SendChallenge(context.Background(), testUser)
	assert.ErrorIs(t, err, ErrNotEnrolled)
}
