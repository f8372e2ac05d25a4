package crypto

import (
	"testing"

	"github.com/metasecret/metasecret/internal/model"
	"github.com/stretchr/testify/require"
)

func TestSealOpenChannelEitherEndpointDecrypts(t *testing.T) {
	aPub, aPriv, err := GenerateBoxKeyPair()
	require.NoError(t, err)
	bPub, bPriv, err := GenerateBoxKeyPair()
	require.NoError(t, err)

	plaintext := []byte("2bee|~")

	ct, err := SealChannel(plaintext, nil, aPub, aPriv, bPub)
	require.NoError(t, err)

	// Receiver decrypts.
	got, err := OpenChannel(ct, bPub, bPriv)
	require.NoError(t, err)
	require.Equal(t, plaintext, got)

	// Sender can also decrypt its own channel.
	got2, err := OpenChannel(ct, aPub, aPriv)
	require.NoError(t, err)
	require.Equal(t, plaintext, got2)
}

func TestOpenChannelThirdPartyFails(t *testing.T) {
	aPub, aPriv, err := GenerateBoxKeyPair()
	require.NoError(t, err)
	bPub, bPriv, err := GenerateBoxKeyPair()
	require.NoError(t, err)
	cPub, cPriv, err := GenerateBoxKeyPair()
	require.NoError(t, err)
	_ = bPriv

	// Loopback share owned by A: channel {A.pk, A.pk}.
	ct, err := SealChannel([]byte("share"), nil, aPub, aPriv, aPub)
	require.NoError(t, err)

	_, err = OpenChannel(ct, cPub, cPriv)
	require.Error(t, err)
	var tpErr *ThirdPartyDecryptionError
	require.ErrorAs(t, err, &tpErr)
	require.Equal(t, model.Channel{SenderPk: aPub[:], ReceiverPk: aPub[:]}, tpErr.Channel)
	_ = bPub
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i)
	}
	ct, err := Encrypt(key, []byte("hunter2"))
	require.NoError(t, err)
	pt, err := Decrypt(key, ct)
	require.NoError(t, err)
	require.Equal(t, []byte("hunter2"), pt)
}

func TestDecryptRejectsCorruptCiphertext(t *testing.T) {
	key := make([]byte, 32)
	_, err := Decrypt(key, []byte("short"))
	require.ErrorIs(t, err, ErrInvalidCiphertext)
}

func TestShamirSplitCombine(t *testing.T) {
	cases := []struct {
		shares, threshold int
	}{
		{1, 1},
		{2, 1},
		{3, 2},
		{5, 3},
	}
	for _, tc := range cases {
		shares, err := SplitSecret([]byte("2bee|~"), tc.shares, tc.threshold)
		require.NoError(t, err)
		require.Len(t, shares, tc.shares)

		combined, err := CombineShares(shares[:tc.threshold])
		require.NoError(t, err)
		require.Equal(t, []byte("2bee|~"), combined)
	}
}

func TestSignVerify(t *testing.T) {
	pub, priv, err := GenerateSignKeyPair()
	require.NoError(t, err)
	msg := []byte("device-bundle")
	sig := Sign(priv, msg)
	require.True(t, Verify(pub, msg, sig))
	require.False(t, Verify(pub, []byte("tampered"), sig))
}
