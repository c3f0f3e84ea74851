package vault

import "github.com/tyler-smith/go-bip39"

// SeedSize is the byte length of a derived seed.
const SeedSize = 64

// Seed is the fixed-length secret stretched from a phrase. It exists only in
// memory: the phrase is what gets persisted, and the seed is recomputed from
// it on demand.
type Seed []byte

// DeriveSeed stretches a phrase plus optional passphrase into a 64-byte seed
// using PBKDF2-HMAC-SHA512 over 2048 iterations (the BIP39 construction).
// Equal inputs always yield equal seeds. The passphrase participates in the
// PBKDF2 salt, so changing it changes the seed, even between empty and
// non-empty.
//
// DeriveSeed performs no phrase validation; recovery callers run
// ValidateMnemonic first, and derivation stays usable on arbitrary text.
func DeriveSeed(phrase, passphrase string) Seed {
	return Seed(bip39.NewSeed(phrase, passphrase))
}
