// ABOUTME: Generates and validates 24-word recovery phrases over the BIP39 wordlist.
// ABOUTME: Users store the phrase in a password manager for key recovery.
package vault

import (
	"encoding/binary"
	"fmt"
	"io"
	"strings"

	"github.com/tyler-smith/go-bip39"
)

// MnemonicWords is the number of words in a recovery phrase.
const MnemonicWords = 24

// GenerateMnemonic draws entropy from rand and returns a phrase of 24
// independently chosen words from the 2048-entry English wordlist. It fails
// only when the entropy source fails.
func GenerateMnemonic(rand io.Reader) (string, error) {
	words := bip39.GetWordList()
	buf := make([]byte, 2*MnemonicWords)
	if _, err := io.ReadFull(rand, buf); err != nil {
		return "", fmt.Errorf("%w: %v", ErrEntropyFailure, err)
	}
	picked := make([]string, MnemonicWords)
	for i := range picked {
		// 2048 divides 1<<16, so the modulo is unbiased.
		idx := binary.BigEndian.Uint16(buf[2*i:]) % uint16(len(words))
		picked[i] = words[idx]
	}
	return strings.Join(picked, " "), nil
}

// ValidateMnemonic reports whether text splits into exactly 24 words that are
// all case-sensitive members of the wordlist. Leading, trailing, and repeated
// interior whitespace are tolerated.
//
// The BIP39 checksum bits are NOT verified: any 24 wordlist members pass, so a
// syntactically valid phrase is necessary but not sufficient proof that it
// encodes honest entropy. Phrases produced by GenerateMnemonic do not carry a
// checksum, so stricter validation would reject our own output.
func ValidateMnemonic(text string) bool {
	words := strings.Fields(text)
	if len(words) != MnemonicWords {
		return false
	}
	for _, w := range words {
		if _, ok := bip39.GetWordIndex(w); !ok {
			return false
		}
	}
	return true
}
