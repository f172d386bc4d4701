package mfa

import (
	"encoding/base32"
	"fmt"
	"strings"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	qrcode "github.com/skip2/go-qrcode"
)

// Protocol constants shared with authenticator apps. Changing them after
// secrets exist breaks every already-enrolled secret.
const (
	totpDigits = otp.DigitsSix
	totpPeriod = 30
	// totpSkew is the number of adjacent time steps accepted on either side
	// of the current one, absorbing client clock drift.
	totpSkew = 1
	// totpSecretBytes gives 160 bits of secret entropy (RFC 4226 minimum).
	totpSecretBytes = 20
	// qrImageSize is the pixel width/height of the provisioning QR code.
	qrImageSize = 300
)

func totpValidateOpts() totp.ValidateOpts {
	return totp.ValidateOpts{
		Period:    totpPeriod,
		Skew:      totpSkew,
		Digits:    totpDigits,
		Algorithm: otp.AlgorithmSHA1,
	}
}

// GenerateSecret produces a fresh random TOTP secret and the otpauth
// provisioning URI embedding issuer and account label. Pure; nothing is
// persisted.
func GenerateSecret(issuer, accountLabel string) (secret, provisioningURI string, err error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      issuer,
		AccountName: accountLabel,
		SecretSize:  totpSecretBytes,
		Period:      totpPeriod,
		Digits:      totpDigits,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return "", "", fmt.Errorf("generating totp secret: %w", err)
	}
	return key.Secret(), key.URL(), nil
}

// RenderProvisioningImage encodes the provisioning URI as a scannable PNG
// QR code. Fails with ErrEncoding on malformed input.
func RenderProvisioningImage(provisioningURI string) ([]byte, error) {
	if _, err := otp.NewKeyFromURL(provisioningURI); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncoding, err)
	}
	png, err := qrcode.Encode(provisioningURI, qrcode.Medium, qrImageSize)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncoding, err)
	}
	return png, nil
}

// VerifyCode reports whether candidate matches the expected code for secret
// at the current step or an immediately adjacent one. Comparison inside the
// otp library is constant-time per candidate step.
func VerifyCode(secret, candidate string, at time.Time) bool {
	candidate = normalizeCode(candidate)
	if !wellFormedCode(candidate) {
		return false
	}
	ok, err := totp.ValidateCustom(candidate, secret, at, totpValidateOpts())
	return err == nil && ok
}

// CodeAt computes the expected code for secret at the given time. Used for
// out-of-band delivery: resending within the same step reuses the identical
// code rather than invalidating the first.
func CodeAt(secret string, at time.Time) (string, error) {
	code, err := totp.GenerateCodeCustom(secret, at, totpValidateOpts())
	if err != nil {
		return "", fmt.Errorf("computing totp code: %w", err)
	}
	return code, nil
}

// ValidSecret reports whether s is a well-formed base32 secret with enough
// entropy to enroll. Guards the setup-verify path, where the secret is
// echoed back by the client.
func ValidSecret(s string) bool {
	raw, err := base32.StdEncoding.WithPadding(base32.NoPadding).DecodeString(strings.ToUpper(s))
	if err != nil {
		return false
	}
	return len(raw) >= totpSecretBytes
}

func normalizeCode(code string) string {
	return strings.TrimSpace(strings.ReplaceAll(code, " ", ""))
}

func wellFormedCode(code string) bool {
	if len(code) != totpDigits.Length() {
		return false
	}
	for _, r := range code {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
