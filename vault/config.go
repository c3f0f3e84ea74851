package vault

import (
	"crypto/rand"
	"io"
)

// Key size limits in bits. Smaller moduli are rejected outright; the default
// follows current guidance of at least 3072 bits for new keys.
const (
	MinKeySize     = 2048
	DefaultKeySize = 3072
)

// Config controls a Manager instance.
//
// The zero value is usable: it selects the default namespace, the default key
// size, the Other platform, and the operating system entropy source.
type Config struct {
	// Namespace prefixes every storage key so that multiple bundles can
	// coexist in one backend. Empty selects DefaultNamespace.
	Namespace Namespace

	// KeySize is the modulus size in bits used by Generate and Recover.
	// Zero selects DefaultKeySize. Recovering a bundle generated under a
	// different size produces different keys, so the size is part of a
	// deployment's identity.
	KeySize int

	// Platform labels the bundle metadata. Zero value is PlatformOther.
	Platform Platform

	// Rand supplies cryptographically secure random bytes for mnemonic
	// generation, symmetric keys, and IVs. Nil selects crypto/rand.Reader.
	Rand io.Reader
}

func (c Config) namespace() Namespace {
	if c.Namespace == "" {
		return DefaultNamespace
	}
	return c.Namespace
}

func (c Config) keySize() int {
	if c.KeySize == 0 {
		return DefaultKeySize
	}
	return c.KeySize
}

func (c Config) rand() io.Reader {
	if c.Rand == nil {
		return rand.Reader
	}
	return c.Rand
}
