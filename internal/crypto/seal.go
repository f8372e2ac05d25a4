package crypto

import (
	"crypto/ed25519"
	"crypto/rand"
	"fmt"

	"github.com/metasecret/metasecret/internal/model"
	"golang.org/x/crypto/chacha20poly1305"
)

// sealBytes wraps plaintext under key with XChaCha20-Poly1305 — the
// primitive SealDeviceSecretBox/OpenDeviceSecretBox bind to
// model.DeviceSecretBox below.
func sealBytes(key, plaintext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	nonce := make([]byte, NonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	return aead.Seal(nonce, nonce, plaintext, nil), nil
}

func openBytes(key, ciphertext []byte) ([]byte, error) {
	if len(ciphertext) < NonceSize {
		return nil, ErrInvalidCiphertext
	}

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	nonce := ciphertext[:NonceSize]
	encrypted := ciphertext[NonceSize:]

	plaintext, err := aead.Open(nil, nonce, encrypted, nil)
	if err != nil {
		return nil, ErrDecryptionFailed
	}
	return plaintext, nil
}

// SealDeviceSecretBox seals a freshly minted device's signing and
// transport private keys under masterKey into the model.DeviceSecretBox
// persisted alongside DeviceCreds (§4.2).
func SealDeviceSecretBox(masterKey []byte, dsaPriv ed25519.PrivateKey, transportPriv *[32]byte) (model.DeviceSecretBox, error) {
	dsaSealed, err := sealBytes(masterKey, dsaPriv)
	if err != nil {
		return model.DeviceSecretBox{}, fmt.Errorf("failed to seal signing key: %w", err)
	}
	transportSealed, err := sealBytes(masterKey, transportPriv[:])
	if err != nil {
		return model.DeviceSecretBox{}, fmt.Errorf("failed to seal transport key: %w", err)
	}
	return model.DeviceSecretBox{
		DsaSkSealed:       dsaSealed,
		TransportSkSealed: transportSealed,
	}, nil
}

// OpenDeviceSecretBox reverses SealDeviceSecretBox, unwrapping a
// device's private key material for the duration of one logical
// operation (§5: credentials held in memory only as long as needed).
func OpenDeviceSecretBox(masterKey []byte, box model.DeviceSecretBox) (dsaPriv []byte, transportPriv [32]byte, err error) {
	dsaPriv, err = openBytes(masterKey, box.DsaSkSealed)
	if err != nil {
		return nil, transportPriv, fmt.Errorf("failed to unseal signing key: %w", err)
	}
	plain, err := openBytes(masterKey, box.TransportSkSealed)
	if err != nil {
		return nil, transportPriv, fmt.Errorf("failed to unseal transport key: %w", err)
	}
	copy(transportPriv[:], plain)
	return dsaPriv, transportPriv, nil
}
