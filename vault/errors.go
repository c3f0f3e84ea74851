// ABOUTME: Typed errors for key lifecycle and hybrid encryption operations.
// ABOUTME: Enables programmatic error handling with errors.Is() and errors.As().
package vault

import "errors"

// Mnemonic and seed errors.
var (
	// ErrInvalidMnemonic indicates a phrase that is not 24 wordlist members.
	ErrInvalidMnemonic = errors.New("invalid mnemonic phrase")

	// ErrEntropyFailure indicates the injected entropy source failed.
	ErrEntropyFailure = errors.New("entropy source failure")
)

// Key generation errors.
var (
	// ErrKeySizeTooSmall indicates a requested modulus below the 2048-bit minimum.
	ErrKeySizeTooSmall = errors.New("key size below minimum")

	// ErrKeyValidation indicates a generated key pair failed its structural checks.
	// Such a key is discarded and never persisted or returned.
	ErrKeyValidation = errors.New("generated key failed validation")
)

// Encryption errors.
var (
	// ErrInvalidPublicKey indicates a structurally unusable public key.
	ErrInvalidPublicKey = errors.New("invalid public key")

	// ErrInvalidPrivateKey indicates a structurally unusable private key.
	ErrInvalidPrivateKey = errors.New("invalid private key")

	// ErrDecryptFailed covers every decryption failure: malformed frames and
	// envelopes, wrong keys, corrupted ciphertext, padding mismatches. Callers
	// cannot distinguish why decryption failed, which keeps failure handling
	// uniform and avoids acting as a padding oracle.
	ErrDecryptFailed = errors.New("decrypt failed")
)

// Lifecycle and storage errors.
var (
	// ErrNotReady indicates an operation that needs loaded key material was
	// called before the manager reached the Ready state.
	ErrNotReady = errors.New("no key material loaded")

	// ErrNotFound indicates an absent storage key. Storage backends return it
	// from Get; backend faults are deliberately surfaced the same way by the
	// manager, since callers cannot meaningfully tell "absent" from
	// "unreachable".
	ErrNotFound = errors.New("not found in storage")
)

// Phrase armor errors.
var (
	// ErrArmorInvalid indicates armored phrase data too short or malformed.
	ErrArmorInvalid = errors.New("armored phrase data is invalid")

	// ErrArmorAuthFailed indicates a wrong passphrase or tampered armor.
	ErrArmorAuthFailed = errors.New("armored phrase authentication failed")
)
