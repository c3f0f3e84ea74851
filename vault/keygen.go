// ABOUTME: Deterministic RSA key generation from a seed.
// ABOUTME: HKDF-SHA512 keys an HMAC-DRBG whose byte stream drives the prime search.
package vault

import (
	"crypto/rsa"
	"crypto/sha512"
	"fmt"
	"io"
	"math/big"

	"github.com/cruxic/go-hmac-drbg/hmacdrbg"
	"golang.org/x/crypto/hkdf"
)

// PublicExponent is the RSA public exponent for every generated key.
const PublicExponent = 65537

// keySizeTolerance is the allowed drift, in bits, between the requested and
// generated modulus size.
const keySizeTolerance = 10

// keygenLabel and keygenPersonalization domain-separate the key generation
// stream from any other use of the seed. Changing either would change every
// key derived from existing phrases, so both are effectively part of the
// persisted format.
const (
	keygenLabel           = "phrasekey/keygen/v1"
	keygenPersonalization = "phrasekey/rsa"
)

// GenerateEvents provides hooks for observability during key generation.
type GenerateEvents struct {
	OnSeedDerived  func()              // seed stretched from the phrase
	OnPrimeFound   func(found, of int) // one prime of the modulus found
	OnKeyAssembled func(bits int)      // assembled key passed validation
	OnPersisted    func()              // bundle written to storage
	OnComplete     func()              // whole operation finished
	OnWarning      func(msg string)    // non-fatal validation findings
}

// GenerateKeyPair derives an RSA private key from seed. The derivation is
// deterministic: equal seeds and equal bit sizes produce the identical key on
// every platform, which is what makes phrase-based recovery possible.
//
// Candidates are drawn from a DRBG keyed off the seed in a fixed order, and
// each is tested with a deterministic primality check, so the search always
// accepts the same primes. bits below MinKeySize is rejected.
func GenerateKeyPair(seed Seed, bits int, events ...*GenerateEvents) (*rsa.PrivateKey, error) {
	var ev *GenerateEvents
	if len(events) > 0 {
		ev = events[0]
	}
	if bits < MinKeySize {
		return nil, fmt.Errorf("%w: %d bits (minimum %d)", ErrKeySizeTooSmall, bits, MinKeySize)
	}

	rng, err := keygenStream(seed)
	if err != nil {
		return nil, err
	}
	key, err := assembleKey(rng, bits, ev)
	if err != nil {
		return nil, err
	}
	if err := checkKey(key, bits, ev); err != nil {
		return nil, err
	}
	if ev != nil && ev.OnKeyAssembled != nil {
		ev.OnKeyAssembled(key.N.BitLen())
	}
	return key, nil
}

// keygenStream expands the seed into the byte stream that drives the prime
// search. HKDF-SHA512 compresses the seed into DRBG entropy; the HMAC-DRBG
// then supplies the stream itself, since HKDF output is capped at 255 blocks
// and a prime search consumes far more than that.
func keygenStream(seed Seed) (io.Reader, error) {
	entropy := make([]byte, 64)
	if _, err := io.ReadFull(hkdf.New(sha512.New, seed, nil, []byte(keygenLabel)), entropy); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEntropyFailure, err)
	}
	return hmacdrbg.NewHmacDrbgReader(hmacdrbg.NewHmacDrbg(256, entropy, []byte(keygenPersonalization))), nil
}

// assembleKey finds two primes and builds the CRT-precomputed private key.
func assembleKey(rng io.Reader, bits int, ev *GenerateEvents) (*rsa.PrivateKey, error) {
	e := big.NewInt(PublicExponent)
	one := big.NewInt(1)
	pBits := bits / 2
	qBits := bits - pBits

	p, err := findPrime(rng, pBits, e)
	if err != nil {
		return nil, err
	}
	if ev != nil && ev.OnPrimeFound != nil {
		ev.OnPrimeFound(1, 2)
	}
	q, err := findPrime(rng, qBits, e)
	if err != nil {
		return nil, err
	}
	for p.Cmp(q) == 0 {
		q, err = findPrime(rng, qBits, e)
		if err != nil {
			return nil, err
		}
	}
	if ev != nil && ev.OnPrimeFound != nil {
		ev.OnPrimeFound(2, 2)
	}

	totient := new(big.Int).Mul(new(big.Int).Sub(p, one), new(big.Int).Sub(q, one))
	d := new(big.Int).ModInverse(e, totient)
	if d == nil {
		// Cannot happen: findPrime rejects primes sharing a factor with e.
		return nil, fmt.Errorf("%w: public exponent not invertible", ErrKeyValidation)
	}

	key := &rsa.PrivateKey{
		PublicKey: rsa.PublicKey{N: new(big.Int).Mul(p, q), E: PublicExponent},
		D:         d,
		Primes:    []*big.Int{p, q},
	}
	key.Precompute()
	if err := key.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeyValidation, err)
	}
	return key, nil
}

// findPrime draws fixed-width candidates from rng until one is prime and
// compatible with the public exponent. The top two bits of every candidate
// are forced so the product of two primes always fills the full modulus
// width; the low bit is forced so candidates are odd.
func findPrime(rng io.Reader, bits int, e *big.Int) (*big.Int, error) {
	one := big.NewInt(1)
	mask := new(big.Int).Sub(new(big.Int).Lsh(one, uint(bits)), one)
	buf := make([]byte, (bits+7)/8)
	for {
		if _, err := io.ReadFull(rng, buf); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrEntropyFailure, err)
		}
		cand := new(big.Int).SetBytes(buf)
		cand.And(cand, mask)
		cand.SetBit(cand, bits-1, 1)
		cand.SetBit(cand, bits-2, 1)
		cand.SetBit(cand, 0, 1)
		if !cand.ProbablyPrime(64) {
			continue
		}
		pm1 := new(big.Int).Sub(cand, one)
		if new(big.Int).GCD(nil, nil, e, pm1).Cmp(one) != 0 {
			continue
		}
		return cand, nil
	}
}

// checkKey verifies the assembled key against the requested parameters. A
// wrong-size or prime modulus is an error; a nonstandard exponent is only
// reported, since such a key still encrypts and decrypts correctly.
func checkKey(key *rsa.PrivateKey, bits int, ev *GenerateEvents) error {
	if got := key.N.BitLen(); got < bits-keySizeTolerance || got > bits+keySizeTolerance {
		return fmt.Errorf("%w: modulus is %d bits, requested %d", ErrKeyValidation, got, bits)
	}
	if key.N.ProbablyPrime(0) {
		return fmt.Errorf("%w: modulus is prime", ErrKeyValidation)
	}
	if key.E != PublicExponent {
		if ev != nil && ev.OnWarning != nil {
			ev.OnWarning(fmt.Sprintf("public exponent is %d, expected %d", key.E, PublicExponent))
		}
	}
	return nil
}
