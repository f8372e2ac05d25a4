package store

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/metasecret/metasecret/internal/model"
	bolt "go.etcd.io/bbolt"
)

// commitLogBucket is the single bucket backing the whole event log,
// matching §6's recommended "db_commit_log(key_id TEXT PRIMARY KEY,
// value JSON)" shape collapsed onto bbolt's key/value model — adapted
// from forgor/internal/storage.go's bucket-per-concern layout, which
// this repo instead keys entirely by ArtifactId.
var commitLogBucket = []byte("db_commit_log")

// BoltStore is the embedded-KV-backed implementation of Store.
type BoltStore struct {
	db     *bolt.DB
	dbPath string
}

// OpenBoltStore opens (creating if needed) a bbolt-backed event store at
// dbPath.
func OpenBoltStore(dbPath string) (*BoltStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create db directory: %w", err)
	}

	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s := &BoltStore{db: db, dbPath: dbPath}
	if err := s.db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(commitLogBucket)
		return err
	}); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to init commit log bucket: %w", err)
	}

	return s, nil
}

// Close releases the underlying bbolt handle.
func (s *BoltStore) Close() error { return s.db.Close() }

// GetDB exposes the underlying *bolt.DB for debug/test inspection
// (§6's get_db()).
func (s *BoltStore) GetDB() *bolt.DB { return s.db }

func (s *BoltStore) Save(event model.GenericKvLogEvent) (model.ArtifactId, error) {
	id := event.ArtifactId()
	data, err := encodeEvent(event)
	if err != nil {
		return id, err
	}

	err = s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(commitLogBucket)
		key := []byte(keyString(id))
		existing := bucket.Get(key)
		if existing != nil && !bytes.Equal(existing, data) {
			return ErrChainCollision
		}
		return bucket.Put(key, data)
	})
	if err != nil {
		return id, err
	}
	return id, nil
}

func (s *BoltStore) FindOne(id model.ArtifactId) (*model.GenericKvLogEvent, error) {
	var data []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(commitLogBucket)
		v := bucket.Get([]byte(keyString(id)))
		if v == nil {
			return nil
		}
		data = make([]byte, len(v))
		copy(data, v)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if data == nil {
		return nil, ErrNotFound
	}

	event, err := decodeEvent(data)
	if err != nil {
		return nil, err
	}
	return &event, nil
}

func (s *BoltStore) Delete(id model.ArtifactId) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(commitLogBucket)
		return bucket.Delete([]byte(keyString(id)))
	})
}

func (s *BoltStore) DBCleanUp() error {
	return s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.DeleteBucket(commitLogBucket); err != nil {
			return err
		}
		_, err := tx.CreateBucket(commitLogBucket)
		return err
	})
}
