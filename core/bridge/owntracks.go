package bridge

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"golang.org/x/crypto/nacl/secretbox"
)

// encryptLocation seals a location record with the pre-shared key, the
// way OwnTracks expects it: NaCl secretbox, key zero-padded to 32
// bytes, random nonce prepended to the ciphertext, base64 overall.
func encryptLocation(plaintext []byte, key string) (string, error) {
	var boxKey [32]byte
	copy(boxKey[:], key)

	var nonce [24]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return "", fmt.Errorf("nonce: %w", err)
	}
	sealed := secretbox.Seal(nonce[:], plaintext, &nonce, &boxKey)
	return base64.StdEncoding.EncodeToString(sealed), nil
}
