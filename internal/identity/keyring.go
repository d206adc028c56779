package identity

import (
	"crypto/ecdsa"
	"crypto/sha256"
	"errors"
	"fmt"
	"github.com/ethereum/go-ethereum/crypto"
	"golang.org/x/crypto/hkdf"
	"io"
)

const minSecretLen = 16

var ErrWeakSecret = errors.New("ledger identity secret must be at least 16 bytes")

// Keyring derives one secp256k1 key per user from a server secret. The same secret and user id always give the same key.
type Keyring struct{ secret []byte }

func NewKeyring(secret string) (*Keyring, error) {
	if len(secret) < minSecretLen {
		return nil, ErrWeakSecret
	}
	return &Keyring{secret: []byte(secret)}, nil
}

func (k *Keyring) Derive(userID int64) (*ecdsa.PrivateKey, error) {
	r := hkdf.New(sha256.New, k.secret, nil, []byte(fmt.Sprintf("woodchain/ledger-identity/%d", userID)))
	buf := make([]byte, 32)
	// a 32-byte candidate is outside the curve order with negligible probability; take the next block then
	for i := 0; i < 8; i++ {
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, fmt.Errorf("derive key for user %d: %w", userID, err)
		}
		if key, err := crypto.ToECDSA(buf); err == nil {
			return key, nil
		}
	}
	return nil, fmt.Errorf("derive key for user %d: no valid candidate", userID)
}
