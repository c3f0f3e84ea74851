package vault

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
)

const (
	pemTypePrivate = "RSA PRIVATE KEY"
	pemTypePublic  = "PUBLIC KEY"
)

// EncodePrivateKey renders key as a PKCS#1 PEM string, the format persisted
// to storage.
func EncodePrivateKey(key *rsa.PrivateKey) string {
	block := &pem.Block{
		Type:  pemTypePrivate,
		Bytes: x509.MarshalPKCS1PrivateKey(key),
	}
	return string(pem.EncodeToMemory(block))
}

// EncodePublicKey renders key as a PKIX (SubjectPublicKeyInfo) PEM string,
// the format persisted to storage and shared with encrypting peers.
func EncodePublicKey(key *rsa.PublicKey) (string, error) {
	der, err := x509.MarshalPKIXPublicKey(key)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidPublicKey, err)
	}
	block := &pem.Block{
		Type:  pemTypePublic,
		Bytes: der,
	}
	return string(pem.EncodeToMemory(block)), nil
}

// DecodePrivateKey parses a PKCS#1 PEM private key. Anything that is not a
// single well-formed block of the right type fails with ErrInvalidPrivateKey,
// which is how corrupted storage is distinguished from an absent key.
func DecodePrivateKey(text string) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode([]byte(text))
	if block == nil || block.Type != pemTypePrivate {
		return nil, fmt.Errorf("%w: missing %q PEM block", ErrInvalidPrivateKey, pemTypePrivate)
	}
	key, err := x509.ParsePKCS1PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPrivateKey, err)
	}
	return key, nil
}

// DecodePublicKey parses a PKIX PEM public key, requiring RSA.
func DecodePublicKey(text string) (*rsa.PublicKey, error) {
	block, _ := pem.Decode([]byte(text))
	if block == nil || block.Type != pemTypePublic {
		return nil, fmt.Errorf("%w: missing %q PEM block", ErrInvalidPublicKey, pemTypePublic)
	}
	pub, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPublicKey, err)
	}
	rsaPub, ok := pub.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("%w: not an RSA key", ErrInvalidPublicKey)
	}
	return rsaPub, nil
}
