// Package config loads service configuration from the environment. Key
// material is supplied externally and is never hard-coded, defaulted, or
// logged.
package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"strconv"

	"github.com/mwalcott/keystep/internal/util"
)

// Environment variable names.
const (
	EnvEncryptionKey = "KEYSTEP_ENCRYPTION_KEY"
	EnvCookieSecret  = "KEYSTEP_COOKIE_SECRET"
	EnvIssuer        = "KEYSTEP_ISSUER"
	EnvPort          = "KEYSTEP_PORT"
	EnvDataDir       = "KEYSTEP_DATA_DIR"
	EnvSMTPHost      = "KEYSTEP_SMTP_HOST"
	EnvSMTPPort      = "KEYSTEP_SMTP_PORT"
	EnvSMTPUsername  = "KEYSTEP_SMTP_USERNAME"
	EnvSMTPPassword  = "KEYSTEP_SMTP_PASSWORD"
	EnvSMTPFrom      = "KEYSTEP_SMTP_FROM"
)

const (
	defaultIssuer  = "Keystep"
	defaultPort    = 8080
	defaultDataDir = "./data"
	// minCookieSecretLen guards against trivially brute-forceable HMAC keys.
	minCookieSecretLen = 32
)

// Config holds everything the server needs at startup.
type Config struct {
	Port    int
	DataDir string
	Issuer  string

	// EncryptionKey is the 32-byte AES key sealing TOTP secrets at rest.
	EncryptionKey []byte
	// CookieSecret signs the MFA session-marker cookie.
	CookieSecret []byte

	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	SMTPFrom     string
}

// FromEnv builds a Config from environment variables. The encryption key and
// cookie secret are required; everything else has defaults or is optional.
func FromEnv() (*Config, error) {
	cfg := &Config{
		Port:         defaultPort,
		DataDir:      defaultDataDir,
		Issuer:       defaultIssuer,
		SMTPHost:     os.Getenv(EnvSMTPHost),
		SMTPUsername: os.Getenv(EnvSMTPUsername),
		SMTPPassword: os.Getenv(EnvSMTPPassword),
		SMTPFrom:     os.Getenv(EnvSMTPFrom),
	}

	keyHex := os.Getenv(EnvEncryptionKey)
	if keyHex == "" {
		return nil, fmt.Errorf("%s is required (64 hex characters)", EnvEncryptionKey)
	}
	key, err := hex.DecodeString(keyHex)
	if err != nil {
		return nil, fmt.Errorf("%s must be hex-encoded: %w", EnvEncryptionKey, err)
	}
	if len(key) != util.AESKeySize {
		return nil, fmt.Errorf("%s must decode to %d bytes, got %d", EnvEncryptionKey, util.AESKeySize, len(key))
	}
	cfg.EncryptionKey = key

	cookieSecret := os.Getenv(EnvCookieSecret)
	if cookieSecret == "" {
		return nil, fmt.Errorf("%s is required", EnvCookieSecret)
	}
	if len(cookieSecret) < minCookieSecretLen {
		return nil, fmt.Errorf("%s must be at least %d bytes", EnvCookieSecret, minCookieSecretLen)
	}
	cfg.CookieSecret = []byte(cookieSecret)

	if v := os.Getenv(EnvIssuer); v != "" {
		cfg.Issuer = v
	}
	if v := os.Getenv(EnvDataDir); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv(EnvPort); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil || port <= 0 || port > 65535 {
			return nil, fmt.Errorf("%s must be a valid port number, got %q", EnvPort, v)
		}
		cfg.Port = port
	}
	if v := os.Getenv(EnvSMTPPort); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil || port <= 0 || port > 65535 {
			return nil, fmt.Errorf("%s must be a valid port number, got %q", EnvSMTPPort, v)
		}
		cfg.SMTPPort = port
	}

	return cfg, nil
}
