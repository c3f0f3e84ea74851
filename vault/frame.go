// ABOUTME: Binary frame format for locally stored ciphertext.
// ABOUTME: Layout is [4-byte big-endian key length][wrapped key][iv || ciphertext].
package vault

import (
	"crypto/rsa"
	"encoding/binary"
	"io"
)

// maxWrappedKeyBytes caps the declared wrapped-key length when parsing a
// frame. A real wrapped key is one modulus wide (512 bytes for RSA-4096);
// anything approaching the cap is a corrupt or hostile frame.
const maxWrappedKeyBytes = 10000

// EncryptForStorage encrypts data for pub in the binary frame format used
// for local storage. Unlike the text envelope there is no direct-RSA
// shortcut for small data: the frame is always hybrid.
func EncryptForStorage(rand io.Reader, pub *rsa.PublicKey, data []byte) ([]byte, error) {
	wrappedKey, sealed, err := hybridSeal(rand, pub, data)
	if err != nil {
		return nil, err
	}
	return EncodeFrame(wrappedKey, sealed), nil
}

// DecryptFromStorage reverses EncryptForStorage. As with DecryptString,
// every failure mode reports the same ErrDecryptFailed.
func DecryptFromStorage(priv *rsa.PrivateKey, frame []byte) ([]byte, error) {
	wrappedKey, sealed, err := DecodeFrame(frame)
	if err != nil {
		return nil, err
	}
	return hybridOpen(priv, wrappedKey, sealed)
}

// EncodeFrame packs a wrapped session key and sealed payload into the
// length-prefixed binary frame.
func EncodeFrame(wrappedKey, sealed []byte) []byte {
	frame := make([]byte, 4+len(wrappedKey)+len(sealed))
	binary.BigEndian.PutUint32(frame, uint32(len(wrappedKey)))
	copy(frame[4:], wrappedKey)
	copy(frame[4+len(wrappedKey):], sealed)
	return frame
}

// DecodeFrame splits a frame back into wrapped key and sealed payload. The
// declared key length is bounds-checked before any slicing, so arbitrary
// input bytes cannot panic the parser.
func DecodeFrame(frame []byte) (wrappedKey, sealed []byte, err error) {
	if len(frame) < 8 {
		return nil, nil, ErrDecryptFailed
	}
	keyLen := binary.BigEndian.Uint32(frame)
	if keyLen == 0 || keyLen > maxWrappedKeyBytes {
		return nil, nil, ErrDecryptFailed
	}
	rest := frame[4:]
	if len(rest) < int(keyLen) {
		return nil, nil, ErrDecryptFailed
	}
	return rest[:keyLen], rest[keyLen:], nil
}
