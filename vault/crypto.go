package vault

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
	"strings"
)

// Ciphersuite identifies the hybrid construction carried in transmission
// payloads.
const Ciphersuite = "RSA-OAEP-SHA256:AES-256-CBC"

// HybridPrefix tags text envelopes that use the hybrid construction. Bare
// base64 without the tag is a direct RSA ciphertext.
const HybridPrefix = "HYBRID:"

// sessionKeySize is the AES-256 key length for the hybrid data layer.
const sessionKeySize = 32

// EncryptString produces the text envelope for s under pub. Data within the
// OAEP capacity of the key is encrypted directly with RSA and emitted as
// bare base64; anything larger uses the hybrid construction and is emitted
// as "HYBRID:" + base64(wrapped key) + ":" + base64(iv || ciphertext).
// DecryptString dispatches on the tag, so both forms round-trip. A key with
// no modulus is ErrInvalidPublicKey.
func EncryptString(rand io.Reader, pub *rsa.PublicKey, s string) (string, error) {
	if invalidPub(pub) {
		return "", fmt.Errorf("%w: missing modulus", ErrInvalidPublicKey)
	}
	if len(s) <= maxDirect(pub) {
		ct, err := EncryptAsymmetric(rand, pub, []byte(s))
		if err != nil {
			return "", err
		}
		return base64.StdEncoding.EncodeToString(ct), nil
	}
	wrappedKey, sealed, err := hybridSeal(rand, pub, []byte(s))
	if err != nil {
		return "", err
	}
	return HybridPrefix +
		base64.StdEncoding.EncodeToString(wrappedKey) + ":" +
		base64.StdEncoding.EncodeToString(sealed), nil
}

// DecryptString reverses EncryptString. Every failure mode (wrong key,
// malformed base64, a mangled envelope, bad padding) reports the same
// ErrDecryptFailed.
func DecryptString(priv *rsa.PrivateKey, in string) (string, error) {
	if rest, ok := strings.CutPrefix(in, HybridPrefix); ok {
		keyB64, dataB64, ok := strings.Cut(rest, ":")
		if !ok {
			return "", ErrDecryptFailed
		}
		wrappedKey, err := base64.StdEncoding.DecodeString(keyB64)
		if err != nil {
			return "", ErrDecryptFailed
		}
		sealed, err := base64.StdEncoding.DecodeString(dataB64)
		if err != nil {
			return "", ErrDecryptFailed
		}
		data, err := hybridOpen(priv, wrappedKey, sealed)
		if err != nil {
			return "", err
		}
		return string(data), nil
	}
	ct, err := base64.StdEncoding.DecodeString(in)
	if err != nil {
		return "", ErrDecryptFailed
	}
	pt, err := DecryptAsymmetric(priv, ct)
	if err != nil {
		return "", err
	}
	return string(pt), nil
}

// EncryptAsymmetric encrypts plain directly with RSA-OAEP-SHA256. plain must
// fit the OAEP capacity of pub; larger data goes through the hybrid paths. A
// key with no modulus is ErrInvalidPublicKey, not a panic.
func EncryptAsymmetric(rand io.Reader, pub *rsa.PublicKey, plain []byte) ([]byte, error) {
	if invalidPub(pub) {
		return nil, fmt.Errorf("%w: missing modulus", ErrInvalidPublicKey)
	}
	return rsa.EncryptOAEP(sha256.New(), rand, pub, plain, nil)
}

// DecryptAsymmetric reverses EncryptAsymmetric. A key with no modulus fails
// like any other decrypt failure.
func DecryptAsymmetric(priv *rsa.PrivateKey, ct []byte) ([]byte, error) {
	if priv == nil || invalidPub(&priv.PublicKey) {
		return nil, ErrDecryptFailed
	}
	pt, err := rsa.DecryptOAEP(sha256.New(), nil, priv, ct, nil)
	if err != nil {
		return nil, ErrDecryptFailed
	}
	return pt, nil
}

// invalidPub reports a key that cannot size the OAEP computation. The rsa
// package rejects such keys itself, but only after maxDirect would have
// dereferenced the missing modulus.
func invalidPub(pub *rsa.PublicKey) bool {
	return pub == nil || pub.N == nil
}

// maxDirect is the largest plaintext RSA-OAEP-SHA256 can hold under pub.
func maxDirect(pub *rsa.PublicKey) int {
	return pub.Size() - 2*sha256.Size - 2
}

// hybridSeal wraps a fresh AES-256 session key for pub and encrypts data
// under it. The returned sealed slice is iv || ciphertext.
func hybridSeal(rand io.Reader, pub *rsa.PublicKey, data []byte) (wrappedKey, sealed []byte, err error) {
	session := make([]byte, sessionKeySize)
	if _, err := io.ReadFull(rand, session); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrEntropyFailure, err)
	}
	wrappedKey, err = EncryptAsymmetric(rand, pub, session)
	if err != nil {
		return nil, nil, err
	}
	sealed, err = aesEncrypt(rand, session, data)
	if err != nil {
		return nil, nil, err
	}
	return wrappedKey, sealed, nil
}

// hybridOpen unwraps the session key and decrypts sealed.
func hybridOpen(priv *rsa.PrivateKey, wrappedKey, sealed []byte) ([]byte, error) {
	session, err := DecryptAsymmetric(priv, wrappedKey)
	if err != nil {
		return nil, ErrDecryptFailed
	}
	if len(session) != sessionKeySize {
		return nil, ErrDecryptFailed
	}
	return aesDecrypt(session, sealed)
}

// aesEncrypt encrypts plaintext with AES-256-CBC under a fresh IV, which is
// prepended to the ciphertext. Plaintext is PKCS#7 padded, so zero-length
// input still produces a full block.
func aesEncrypt(rand io.Reader, key, plaintext []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	padded := pkcs7Pad(plaintext, aes.BlockSize)
	out := make([]byte, aes.BlockSize+len(padded))
	if _, err := io.ReadFull(rand, out[:aes.BlockSize]); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEntropyFailure, err)
	}
	cipher.NewCBCEncrypter(block, out[:aes.BlockSize]).CryptBlocks(out[aes.BlockSize:], padded)
	return out, nil
}

// aesDecrypt reverses aesEncrypt on sealed (iv || ciphertext).
func aesDecrypt(key, sealed []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, ErrDecryptFailed
	}
	if len(sealed) < 2*aes.BlockSize || len(sealed)%aes.BlockSize != 0 {
		return nil, ErrDecryptFailed
	}
	pt := make([]byte, len(sealed)-aes.BlockSize)
	cipher.NewCBCDecrypter(block, sealed[:aes.BlockSize]).CryptBlocks(pt, sealed[aes.BlockSize:])
	return pkcs7Unpad(pt, aes.BlockSize)
}

func pkcs7Pad(data []byte, size int) []byte {
	n := size - len(data)%size
	return append(append([]byte{}, data...), bytes.Repeat([]byte{byte(n)}, n)...)
}

func pkcs7Unpad(data []byte, size int) ([]byte, error) {
	if len(data) == 0 || len(data)%size != 0 {
		return nil, ErrDecryptFailed
	}
	n := int(data[len(data)-1])
	if n == 0 || n > size {
		return nil, ErrDecryptFailed
	}
	for _, b := range data[len(data)-n:] {
		if int(b) != n {
			return nil, ErrDecryptFailed
		}
	}
	return data[:len(data)-n], nil
}
