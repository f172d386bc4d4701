package api

import (
	"net/http/httptest"
	"strings"
	"testing"
)

func TestDeviceIDPrefersHeader(t *testing.T) {
	r1 := httptest.NewRequest("GET", "/", nil)
	r1.Header.Set(deviceIDHeader, "laptop-1")
	r1.RemoteAddr = "10.0.0.1:1234"

	r2 := httptest.NewRequest("GET", "/", nil)
	r2.Header.Set(deviceIDHeader, "laptop-1")
	r2.RemoteAddr = "10.0.0.2:9999"
	r2.Header.Set("User-Agent", "something else entirely")

	// Same declared device is stable across networks and browsers.
	if deviceIDFromRequest(r1) != deviceIDFromRequest(r2) {
		t.Fatal("header-derived device ID should ignore other request attributes")
	}
}

func TestDeviceIDDerivedFingerprint(t *testing.T) {
	r1 := httptest.NewRequest("GET", "/", nil)
	r1.Header.Set("User-Agent", "Mozilla/5.0")
	r1.Header.Set("Accept-Language", "en-US")
	r1.RemoteAddr = "10.0.0.1:1234"

	r2 := httptest.NewRequest("GET", "/", nil)
	r2.Header.Set("User-Agent", "Mozilla/5.0")
	r2.Header.Set("Accept-Language", "en-US")
	r2.RemoteAddr = "10.0.0.1:5678"

	if deviceIDFromRequest(r1) != deviceIDFromRequest(r2) {
		t.Fatal("source port must not change the fingerprint")
	}

	r2.Header.Set("User-Agent", "curl/8.0")
	if deviceIDFromRequest(r1) == deviceIDFromRequest(r2) {
		t.Fatal("different user agent should change the fingerprint")
	}
}

func TestDeviceIDHeaderCannotForgeDerivedID(t *testing.T) {
	derived := httptest.NewRequest("GET", "/", nil)
	derived.Header.Set("User-Agent", "Mozilla/5.0")
	derived.RemoteAddr = "10.0.0.1:1234"
	id := deviceIDFromRequest(derived)

	forged := httptest.NewRequest("GET", "/", nil)
	forged.Header.Set(deviceIDHeader, id)
	if deviceIDFromRequest(forged) == id {
		t.Fatal("declared header value must be hashed into a distinct namespace")
	}
}

func TestDeviceIDHexEncoded(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	id := deviceIDFromRequest(r)
	if len(id) != 64 {
		t.Fatalf("expected sha256 hex, got %d chars", len(id))
	}
	if strings.ToLower(id) != id {
		t.Fatal("device ID should be lowercase hex")
	}
}

func TestClientIPForwardedFor(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	r.RemoteAddr = "10.0.0.1:1234"
	r.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	if got := clientIP(r); got != "203.0.113.7" {
		t.Fatalf("clientIP = %q", got)
	}
}

func TestClientIPRemoteAddr(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	r.RemoteAddr = "192.0.2.9:4321"
	if got := clientIP(r); got != "192.0.2.9" {
		t.Fatalf("clientIP = %q", got)
	}
}
