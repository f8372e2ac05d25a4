package model

import (
	"crypto/ed25519"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDeriveDeviceIdDeterministic(t *testing.T) {
	seed1 := make([]byte, ed25519.SeedSize)
	seed1[0] = 1
	seed2 := make([]byte, ed25519.SeedSize)
	seed2[0] = 2

	pub1 := ed25519.NewKeyFromSeed(seed1).Public().(ed25519.PublicKey)
	pub2 := ed25519.NewKeyFromSeed(seed1).Public().(ed25519.PublicKey)
	pub3 := ed25519.NewKeyFromSeed(seed2).Public().(ed25519.PublicKey)

	id1 := DeriveDeviceId(pub1)
	id2 := DeriveDeviceId(pub2)
	id3 := DeriveDeviceId(pub3)

	require.Equal(t, id1, id2)
	require.NotEqual(t, id1, id3)
}

func TestMetaPasswordIdDeterministicFromNameAndSalt(t *testing.T) {
	id1 := MetaPasswordIdFromSalt("test_pass", "abc12345")
	id2 := MetaPasswordIdFromSalt("test_pass", "abc12345")
	id3 := MetaPasswordIdFromSalt("test_pass", "zzz99999")

	require.Equal(t, id1.Id, id2.Id)
	require.NotEqual(t, id1.Id, id3.Id)
}

func TestNewMetaPasswordIdRandomSalt(t *testing.T) {
	id1, err := NewMetaPasswordId("test_pass")
	require.NoError(t, err)
	id2, err := NewMetaPasswordId("test_pass")
	require.NoError(t, err)

	require.Len(t, id1.Salt, 8)
	require.NotEqual(t, id1.Salt, id2.Salt)
	require.NotEqual(t, id1.Id, id2.Id)
}

func TestArtifactIdChain(t *testing.T) {
	unit := UnitId(ObjVault, "my-vault")
	require.Equal(t, uint64(0), unit.Counter)

	genesis := unit.Next()
	require.Equal(t, uint64(1), genesis.Counter)
	require.Equal(t, unit.Fqdn, genesis.Fqdn)
}
