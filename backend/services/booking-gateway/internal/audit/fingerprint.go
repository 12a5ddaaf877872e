package audit

import (
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/blake2b"
)

// Fingerprinter derives a stable, keyed identifier for a card number so repeated use of a card
// can be correlated in the transition log without storing the number.
type Fingerprinter struct {
	key []byte
}

// NewFingerprinter accepts keys of up to 64 bytes.
func NewFingerprinter(key string) (*Fingerprinter, error) {
	if len(key) > blake2b.Size {
		return nil, fmt.Errorf("audit: fingerprint key longer than %d bytes", blake2b.Size)
	}
	return &Fingerprinter{key: []byte(key)}, nil
}

// Fingerprint returns the hex BLAKE2b-256 MAC of the card digits.
func (f *Fingerprinter) Fingerprint(cardDigits string) string {
	h, err := blake2b.New256(f.key)
	if err != nil {
		// key length is checked by NewFingerprinter
		panic(err)
	}
	_, _ = h.Write([]byte(cardDigits))
	return hex.EncodeToString(h.Sum(nil))
}
