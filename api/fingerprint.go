package api

import (
	"crypto/sha256"
	"encoding/hex"
	"net"
	"net/http"
	"strings"
)

const (
	// deviceIDHeader lets a client present a stable device identifier of its
	// own. Absent that, a fingerprint is derived from request attributes.
	deviceIDHeader = "X-Device-Id"
	maxDeviceIDLen = 64
)

// deviceIDFromRequest resolves the opaque device identifier used for
// trusted-device decisions. The identifier never leaves the server in full;
// clients only ever see its prefix.
func deviceIDFromRequest(r *http.Request) string {
	if v := strings.TrimSpace(r.Header.Get(deviceIDHeader)); v != "" {
		if len(v) > maxDeviceIDLen {
			v = v[:maxDeviceIDLen]
		}
		// Hash client-chosen values so a crafted id cannot collide with a
		// prefix shown for another device.
		sum := sha256.Sum256([]byte("header:" + v))
		return hex.EncodeToString(sum[:])
	}

	fingerprint := strings.Join([]string{
		r.UserAgent(),
		r.Header.Get("Accept-Language"),
		clientIP(r),
	}, "|")
	sum := sha256.Sum256([]byte("derived:" + fingerprint))
	return hex.EncodeToString(sum[:])
}

// clientIP extracts the originating client address, honouring the first
// entry of X-Forwarded-For when a proxy fronts the service.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		return strings.TrimSpace(first)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
