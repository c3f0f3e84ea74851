// ABOUTME: Passphrase armor for recovery phrases written to out-of-band backups.
// ABOUTME: argon2id stretches the passphrase; XChaCha20-Poly1305 seals the phrase.
package vault

import (
	"fmt"
	"io"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
)

const (
	armorSaltSize = 16
	armorTime     = 2
	armorMemoryKB = 64 * 1024
	armorThreads  = 1
)

// EncryptPhrase seals a recovery phrase under a passphrase so it can be
// backed up outside the secure storage. The blob layout is
// salt || nonce || ciphertext, with a fresh argon2id salt and XChaCha20
// nonce drawn from rand on every call.
func EncryptPhrase(rand io.Reader, passphrase, phrase string) ([]byte, error) {
	salt := make([]byte, armorSaltSize)
	if _, err := io.ReadFull(rand, salt); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEntropyFailure, err)
	}
	nonce := make([]byte, chacha20poly1305.NonceSizeX)
	if _, err := io.ReadFull(rand, nonce); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEntropyFailure, err)
	}
	aead, err := chacha20poly1305.NewX(armorKey(passphrase, salt))
	if err != nil {
		return nil, err
	}
	blob := make([]byte, 0, armorSaltSize+chacha20poly1305.NonceSizeX+len(phrase)+chacha20poly1305.Overhead)
	blob = append(blob, salt...)
	blob = append(blob, nonce...)
	return aead.Seal(blob, nonce, []byte(phrase), nil), nil
}

// DecryptPhrase reverses EncryptPhrase. A blob too short to hold the salt
// and nonce is ErrArmorInvalid; a wrong passphrase or tampered ciphertext
// is ErrArmorAuthFailed.
func DecryptPhrase(passphrase string, blob []byte) (string, error) {
	if len(blob) < armorSaltSize+chacha20poly1305.NonceSizeX+chacha20poly1305.Overhead {
		return "", ErrArmorInvalid
	}
	salt := blob[:armorSaltSize]
	nonce := blob[armorSaltSize : armorSaltSize+chacha20poly1305.NonceSizeX]
	ct := blob[armorSaltSize+chacha20poly1305.NonceSizeX:]
	aead, err := chacha20poly1305.NewX(armorKey(passphrase, salt))
	if err != nil {
		return "", err
	}
	phrase, err := aead.Open(nil, nonce, ct, nil)
	if err != nil {
		return "", ErrArmorAuthFailed
	}
	return string(phrase), nil
}

func armorKey(passphrase string, salt []byte) []byte {
	return argon2.IDKey([]byte(passphrase), salt, armorTime, armorMemoryKB, armorThreads, chacha20poly1305.KeySize)
}
