// Package crypto wires the AEAD, signing, key-derivation, and
// secret-sharing primitives the rest of meta-secret builds on. The
// primitives themselves (X25519, Ed25519, XChaCha20-Poly1305, Shamir)
// are out of scope per spec §1 — this package only binds them to the
// data model (model.AeadCipherText, model.Channel).
package crypto

import (
	"crypto/rand"
	"errors"
	"fmt"

	"github.com/metasecret/metasecret/internal/model"
	"golang.org/x/crypto/nacl/box"
)

const NonceSize = 24

var (
	ErrDecryptionFailed     = errors.New("decryption failed: invalid key or corrupted data")
	ErrInvalidCiphertext    = errors.New("ciphertext too short")
	ErrThirdPartyDecryption = errors.New("third-party decryption: channel does not name this device")
)

// ThirdPartyDecryptionError carries the offending channel and the key
// that attempted (and failed) to participate in it — S5.
type ThirdPartyDecryptionError struct {
	AttemptingPubKey []byte
	Channel          model.Channel
}

func (e *ThirdPartyDecryptionError) Error() string {
	return fmt.Sprintf("%v: key %x is not party to channel {%x, %x}",
		ErrThirdPartyDecryption, e.AttemptingPubKey, e.Channel.SenderPk, e.Channel.ReceiverPk)
}

func (e *ThirdPartyDecryptionError) Unwrap() error { return ErrThirdPartyDecryption }

// GenerateBoxKeyPair generates a fresh X25519 keypair for AEAD channels.
func GenerateBoxKeyPair() (pub, priv *[32]byte, err error) {
	pub, priv, err = box.GenerateKey(rand.Reader)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to generate box keypair: %w", err)
	}
	return pub, priv, nil
}

// SealChannel encrypts message from senderPriv to receiverPub, returning
// a model.AeadCipherText whose channel binds both public keys (§3.3).
// associatedData is bound into the tag but not encrypted.
func SealChannel(message, associatedData []byte, senderPub, senderPriv, receiverPub *[32]byte) (model.AeadCipherText, error) {
	var nonce [NonceSize]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return model.AeadCipherText{}, fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed := box.Seal(nil, message, &nonce, receiverPub, senderPriv)

	return model.AeadCipherText{
		Msg: sealed,
		AuthData: model.AeadAuthData{
			AssociatedData: associatedData,
			Channel: model.Channel{
				SenderPk:   senderPub[:],
				ReceiverPk: receiverPub[:],
			},
			Nonce: nonce[:],
		},
	}, nil
}

// OpenChannel decrypts ct using openerPriv, which must correspond to one
// of the two keys named in ct's channel (either party can decrypt,
// §3.3). openerPub identifies which side of the channel the caller
// claims to be; a mismatch is a third-party decryption attempt (S5).
func OpenChannel(ct model.AeadCipherText, openerPub, openerPriv *[32]byte) ([]byte, error) {
	if len(ct.AuthData.Nonce) != NonceSize {
		return nil, ErrInvalidCiphertext
	}

	ch := ct.AuthData.Channel
	var peerPub *[32]byte
	switch {
	case equalKey(ch.SenderPk, openerPub[:]):
		peerPub = bytesToKey(ch.ReceiverPk)
	case equalKey(ch.ReceiverPk, openerPub[:]):
		peerPub = bytesToKey(ch.SenderPk)
	default:
		return nil, &ThirdPartyDecryptionError{AttemptingPubKey: openerPub[:], Channel: ch}
	}

	var nonce [NonceSize]byte
	copy(nonce[:], ct.AuthData.Nonce)

	plain, ok := box.Open(nil, ct.Msg, &nonce, peerPub, openerPriv)
	if !ok {
		return nil, ErrDecryptionFailed
	}
	return plain, nil
}

func equalKey(a, b []byte) bool {
	if len(a) != len(b) || len(a) == 0 {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func bytesToKey(b []byte) *[32]byte {
	var k [32]byte
	copy(k[:], b)
	return &k
}
