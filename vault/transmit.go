package vault

import (
	"crypto/rsa"
	"encoding/base64"
	"io"
	"time"
)

// Transmission is the JSON payload for sending encrypted data to a peer.
// The key and data layers travel as separate base64 fields rather than a
// packed frame so receivers can unwrap the session key independently. The
// algorithm and timestamp fields describe the payload; decryption does not
// depend on them.
type Transmission struct {
	EncryptedKey  string `json:"encrypted_key"`
	EncryptedData string `json:"encrypted_data"`
	Algorithm     string `json:"algorithm"`
	Timestamp     string `json:"timestamp"`
}

// PrepareForTransmission encrypts data for pub as a transmission payload
// labeled with the ciphersuite and an RFC3339 creation time.
func PrepareForTransmission(rand io.Reader, pub *rsa.PublicKey, data []byte) (Transmission, error) {
	wrappedKey, sealed, err := hybridSeal(rand, pub, data)
	if err != nil {
		return Transmission{}, err
	}
	return Transmission{
		EncryptedKey:  base64.StdEncoding.EncodeToString(wrappedKey),
		EncryptedData: base64.StdEncoding.EncodeToString(sealed),
		Algorithm:     Ciphersuite,
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
	}, nil
}

// DecryptTransmission reverses PrepareForTransmission using the two
// encrypted fields of t.
func DecryptTransmission(priv *rsa.PrivateKey, t Transmission) ([]byte, error) {
	wrappedKey, err := base64.StdEncoding.DecodeString(t.EncryptedKey)
	if err != nil {
		return nil, ErrDecryptFailed
	}
	sealed, err := base64.StdEncoding.DecodeString(t.EncryptedData)
	if err != nil {
		return nil, ErrDecryptFailed
	}
	return hybridOpen(priv, wrappedKey, sealed)
}
