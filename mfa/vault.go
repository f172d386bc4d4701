package mfa

import (
	"fmt"

	"github.com/awnumar/memguard"

	"github.com/mwalcott/keystep/internal/util"
)

// Vault performs authenticated encryption of TOTP secrets for storage.
// The process-wide key is held in a memguard Enclave (encrypted at rest in
// memory) and opened only for the duration of a single call; no derived key
// outlives the operation.
type Vault struct {
	key *memguard.Enclave
}

// NewVault wraps the given 32-byte key. The caller's copy of the key is
// wiped; the Enclave becomes the only holder.
func NewVault(key []byte) (*Vault, error) {
	if len(key) != util.AESKeySize {
		return nil, fmt.Errorf("vault key must be %d bytes, got %d", util.AESKeySize, len(key))
	}
	return &Vault{key: memguard.NewEnclave(key)}, nil
}

// Encrypt seals the secret with AES-256-GCM. The aad (typically the owning
// user ID) binds the ciphertext to its record, so a ciphertext copied onto
// another user's record fails to decrypt.
func (v *Vault) Encrypt(secret, aad []byte) ([]byte, error) {
	buf, err := v.key.Open()
	if err != nil {
		return nil, fmt.Errorf("opening vault key: %w", err)
	}
	defer buf.Destroy()

	ciphertext, err := util.EncryptAES(secret, buf.Bytes(), aad)
	if err != nil {
		return nil, fmt.Errorf("encrypting secret: %w", err)
	}
	return ciphertext, nil
}

// Decrypt opens a ciphertext produced by Encrypt. Tampering, corruption, a
// wrong key, or mismatched aad all surface as ErrDecryption — an integrity
// fault the caller must not treat as a wrong code.
func (v *Vault) Decrypt(ciphertext, aad []byte) ([]byte, error) {
	buf, err := v.key.Open()
	if err != nil {
		return nil, fmt.Errorf("opening vault key: %w", err)
	}
	defer buf.Destroy()

	secret, err := util.DecryptAES(ciphertext, buf.Bytes(), aad)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecryption, err)
	}
	return secret, nil
}
