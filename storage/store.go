// Package storage defines the record store abstraction the MFA core depends
// on. The core never assumes a concrete engine; it reads a user's record and
// writes changes back through a single per-record atomic update.
package storage

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when no record exists for the given user ID.
var ErrNotFound = errors.New("record not found")

// TrustedDevice is one entry in a user's trusted-device list. The record owns
// the full list; device-registry logic only computes derived views over it.
type TrustedDevice struct {
	DeviceID   string    `json:"deviceId"`
	DeviceName string    `json:"deviceName"`
	GrantedAt  time.Time `json:"grantedAt"`
	ExpiresAt  time.Time `json:"expiresAt"`
	LastUsedAt time.Time `json:"lastUsedAt"`
}

// Record is the subset of a user's identity record relevant to MFA.
// The TOTP secret is never stored in plaintext; MFASecretEncrypted holds
// the AES-GCM sealed form and MFARecoveryCodeHashes hold bcrypt hashes.
type Record struct {
	UserID                string          `json:"userId"`
	Email                 string          `json:"email"`
	MFAEnabled            bool            `json:"mfaEnabled"`
	MFASecretEncrypted    []byte          `json:"mfaSecretEncrypted,omitempty"`
	MFARecoveryCodeHashes []string        `json:"mfaRecoveryCodeHashes,omitempty"`
	MFAEnabledAt          time.Time       `json:"mfaEnabledAt,omitzero"`
	TrustedDevices        []TrustedDevice `json:"trustedDevices,omitempty"`
}

// Clone returns a deep copy so callers can mutate freely.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	out := *r
	out.MFASecretEncrypted = append([]byte(nil), r.MFASecretEncrypted...)
	out.MFARecoveryCodeHashes = append([]string(nil), r.MFARecoveryCodeHashes...)
	out.TrustedDevices = append([]TrustedDevice(nil), r.TrustedDevices...)
	return &out
}

// Store is the external record store collaborator. AtomicUpdate runs fn on
// the current record under the backend's per-record atomicity (transaction
// or lock), so concurrent read-modify-write sequences — recovery-code
// consumption, device issuance and revocation — cannot interleave against a
// stale list.
type Store interface {
	// Read returns the record for userID, or ErrNotFound.
	Read(ctx context.Context, userID string) (*Record, error)
	// AtomicUpdate loads the record for userID (creating an empty one if
	// absent), applies fn, and persists the result. If fn returns an error
	// nothing is written and the error is returned unchanged.
	AtomicUpdate(ctx context.Context, userID string, fn func(*Record) error) error
}
