package mfa

import (
	"strings"
	"time"

	"github.com/mwalcott/keystep/storage"
)

const (
	// TrustDuration is how long a trusted-device grant remains valid.
	TrustDuration = 30 * 24 * time.Hour
	// deviceIDPrefixLen is how much of a device identifier is exposed
	// externally. The full identifier never leaves the server.
	deviceIDPrefixLen = 8
)

// DeviceView is the external projection of a trusted device. Only a short
// prefix of the identifier is revealed.
type DeviceView struct {
	Name       string    `json:"name"`
	GrantedAt  time.Time `json:"grantedAt"`
	ExpiresAt  time.Time `json:"expiresAt"`
	LastUsedAt time.Time `json:"lastUsedAt"`
	IDPrefix   string    `json:"idPrefix"`
}

// ListActive filters out entries whose expiry is at or before now. Expired
// entries still present in storage must never be treated as valid.
func ListActive(devices []storage.TrustedDevice, now time.Time) []storage.TrustedDevice {
	active := make([]storage.TrustedDevice, 0, len(devices))
	for _, d := range devices {
		if d.ExpiresAt.After(now) {
			active = append(active, d)
		}
	}
	return active
}

// ProjectDevices returns the active entries in their external form.
func ProjectDevices(devices []storage.TrustedDevice, now time.Time) []DeviceView {
	active := ListActive(devices, now)
	views := make([]DeviceView, len(active))
	for i, d := range active {
		views[i] = DeviceView{
			Name:       d.DeviceName,
			GrantedAt:  d.GrantedAt,
			ExpiresAt:  d.ExpiresAt,
			LastUsedAt: d.LastUsedAt,
			IDPrefix:   DeviceIDPrefix(d.DeviceID),
		}
	}
	return views
}

// Issue grants trust to deviceID until now+TrustDuration. An existing entry
// for the same id is replaced in place (extending trust), never duplicated.
func Issue(devices []storage.TrustedDevice, deviceID, deviceName string, now time.Time) []storage.TrustedDevice {
	entry := storage.TrustedDevice{
		DeviceID:   deviceID,
		DeviceName: deviceName,
		GrantedAt:  now,
		ExpiresAt:  now.Add(TrustDuration),
		LastUsedAt: now,
	}
	for i, d := range devices {
		if d.DeviceID == deviceID {
			out := append([]storage.TrustedDevice(nil), devices...)
			out[i] = entry
			return out
		}
	}
	return append(append([]storage.TrustedDevice(nil), devices...), entry)
}

// Revoke removes every entry whose identifier starts with idPrefix and
// reports how many were removed. The external identifier shown to users is
// already truncated, so a prefix may match several devices; all matches are
// removed to avoid partial revocation. An empty prefix matches nothing.
func Revoke(devices []storage.TrustedDevice, idPrefix string) ([]storage.TrustedDevice, int) {
	if idPrefix == "" {
		return devices, 0
	}
	remaining := make([]storage.TrustedDevice, 0, len(devices))
	removed := 0
	for _, d := range devices {
		if strings.HasPrefix(d.DeviceID, idPrefix) {
			removed++
			continue
		}
		remaining = append(remaining, d)
	}
	return remaining, removed
}

// IsTrusted reports whether an unexpired entry with exactly deviceID exists.
func IsTrusted(devices []storage.TrustedDevice, deviceID string, now time.Time) bool {
	if deviceID == "" {
		return false
	}
	for _, d := range devices {
		if d.DeviceID == deviceID && d.ExpiresAt.After(now) {
			return true
		}
	}
	return false
}

// Touch updates LastUsedAt for deviceID, reporting whether it was present.
func Touch(devices []storage.TrustedDevice, deviceID string, now time.Time) ([]storage.TrustedDevice, bool) {
	for i, d := range devices {
		if d.DeviceID == deviceID {
			out := append([]storage.TrustedDevice(nil), devices...)
			out[i].LastUsedAt = now
			return out, true
		}
	}
	return devices, false
}

// DeviceIDPrefix truncates a device identifier to its externally visible form.
func DeviceIDPrefix(deviceID string) string {
	if len(deviceID) <= deviceIDPrefixLen {
		return deviceID
	}
	return deviceID[:deviceIDPrefixLen]
}
