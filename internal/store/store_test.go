package store

import (
	"path/filepath"
	"testing"

	"github.com/metasecret/metasecret/internal/model"
	"github.com/stretchr/testify/require"
)

func sampleEvent(counter uint64, payload string) model.GenericKvLogEvent {
	id := model.ArtifactId{Fqdn: model.FQDN{ObjType: model.ObjVault, ObjInstance: "q"}, Counter: counter}
	return model.GenericKvLogEvent{
		Key:  model.KvKey{ObjId: id, ObjDesc: model.ObjVault},
		Kind: model.EventVault,
		Vault: &model.VaultPayload{
			Data: model.VaultData{VaultName: model.VaultName(payload)},
		},
	}
}

func testStores(t *testing.T) map[string]Store {
	mem := NewMemoryStore()

	dbPath := filepath.Join(t.TempDir(), "events.db")
	bolt, err := OpenBoltStore(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { bolt.Close() })

	return map[string]Store{"memory": mem, "bolt": bolt}
}

func TestSaveFindOneDelete(t *testing.T) {
	for name, s := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			event := sampleEvent(0, "q")
			id, err := s.Save(event)
			require.NoError(t, err)

			got, err := s.FindOne(id)
			require.NoError(t, err)
			require.Equal(t, "q", string(got.Vault.Data.VaultName))

			require.NoError(t, s.Delete(id))
			_, err = s.FindOne(id)
			require.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestSaveIdempotentOnIdenticalBytes(t *testing.T) {
	for name, s := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			event := sampleEvent(0, "q")
			_, err := s.Save(event)
			require.NoError(t, err)
			_, err = s.Save(event)
			require.NoError(t, err, "re-saving byte-identical content must be a no-op, not an error")
		})
	}
}

func TestSaveRejectsChainCollision(t *testing.T) {
	for name, s := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			event := sampleEvent(0, "q")
			_, err := s.Save(event)
			require.NoError(t, err)

			conflicting := sampleEvent(0, "different-vault")
			_, err = s.Save(conflicting)
			require.ErrorIs(t, err, ErrChainCollision)
		})
	}
}

func TestFindOneMissing(t *testing.T) {
	for name, s := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			_, err := s.FindOne(model.ArtifactId{Fqdn: model.FQDN{ObjType: model.ObjVault, ObjInstance: "nope"}})
			require.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestDBCleanUp(t *testing.T) {
	for name, s := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			event := sampleEvent(0, "q")
			id, err := s.Save(event)
			require.NoError(t, err)

			require.NoError(t, s.DBCleanUp())
			_, err = s.FindOne(id)
			require.ErrorIs(t, err, ErrNotFound)
		})
	}
}
