package mfa

import (
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/mwalcott/keystep/internal/util"
)

const (
	// RecoveryCodeCount is the number of codes generated per enrollment.
	RecoveryCodeCount = 10
	// recoveryCodeBytes is the random entropy per code (80 bits).
	recoveryCodeBytes = 10
	// recoveryCodeSegmentLen splits the hex form into dash-separated groups
	// for human transcription: XXXXX-XXXXX-XXXXX-XXXXX.
	recoveryCodeSegmentLen = 5
)

// GenerateRecoveryCodes creates a batch of single-use recovery codes. It
// returns the plaintext codes (shown to the user exactly once) and their
// bcrypt hashes (the only form that is persisted). bcrypt embeds a unique
// salt per hash.
func GenerateRecoveryCodes(count int) (plaintext, hashed []string, err error) {
	plaintext = make([]string, count)
	hashed = make([]string, count)

	for i := 0; i < count; i++ {
		buf, err := util.RandomBytes(recoveryCodeBytes)
		if err != nil {
			return nil, nil, fmt.Errorf("generating recovery code: %w", err)
		}
		code := formatRecoveryCode(hex.EncodeToString(buf))
		hash, err := bcrypt.GenerateFromPassword([]byte(normalizeRecoveryCode(code)), bcrypt.DefaultCost)
		if err != nil {
			return nil, nil, fmt.Errorf("hashing recovery code: %w", err)
		}
		plaintext[i] = code
		hashed[i] = string(hash)
	}
	return plaintext, hashed, nil
}

// ConsumeRecoveryCode checks candidate against the stored hashes. On a match
// it returns true and the list with that entry removed, enforcing one-time
// use. On no match the list is returned unchanged; the caller decides
// whether to rate-limit.
func ConsumeRecoveryCode(hashed []string, candidate string) (bool, []string) {
	normalized := []byte(normalizeRecoveryCode(candidate))
	for i, hash := range hashed {
		if bcrypt.CompareHashAndPassword([]byte(hash), normalized) == nil {
			remaining := make([]string, 0, len(hashed)-1)
			remaining = append(remaining, hashed[:i]...)
			remaining = append(remaining, hashed[i+1:]...)
			return true, remaining
		}
	}
	return false, hashed
}

// formatRecoveryCode inserts dashes every recoveryCodeSegmentLen characters.
func formatRecoveryCode(hexStr string) string {
	var sb strings.Builder
	for i := 0; i < len(hexStr); i += recoveryCodeSegmentLen {
		if i > 0 {
			sb.WriteByte('-')
		}
		sb.WriteString(hexStr[i : i+recoveryCodeSegmentLen])
	}
	return sb.String()
}

// normalizeRecoveryCode canonicalises user-typed input: NFKD normalization,
// lowercase, dashes and spaces stripped.
func normalizeRecoveryCode(code string) string {
	code = util.Normalize(code)
	code = strings.ToLower(code)
	code = strings.ReplaceAll(code, "-", "")
	return strings.ReplaceAll(code, " ", "")
}
