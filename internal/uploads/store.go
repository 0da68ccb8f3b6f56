package uploads

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"
)

var bucketUploads = []byte("uploads")

// Store persists staged uploads in BoltDB until the recipient data is
// attached to a campaign or expires.
type Store struct {
	db *bolt.DB
}

// NewStore opens (creating if needed) the uploads database at path.
func NewStore(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create uploads directory: %w", err)
	}

	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open uploads database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketUploads)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create uploads bucket: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Save assigns an ID and stores the upload.
func (s *Store) Save(u *Upload) error {
	if u.ID == "" {
		u.ID = uuid.New().String()
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now()
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(u)
		if err != nil {
			return fmt.Errorf("failed to marshal upload: %w", err)
		}
		return tx.Bucket(bucketUploads).Put([]byte(u.ID), data)
	})
}

// Get returns an upload by ID, or nil if absent.
func (s *Store) Get(id string) (*Upload, error) {
	var u *Upload

	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketUploads).Get([]byte(id))
		if data == nil {
			return nil
		}
		u = &Upload{}
		return json.Unmarshal(data, u)
	})
	if err != nil {
		return nil, err
	}
	return u, nil
}

// Delete removes an upload.
func (s *Store) Delete(id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketUploads).Delete([]byte(id))
	})
}

// Cleanup removes uploads older than maxAge and returns how many were
// deleted.
func (s *Store) Cleanup(maxAge time.Duration) (int, error) {
	cutoff := time.Now().Add(-maxAge)
	deleted := 0

	err := s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketUploads)
		c := bucket.Cursor()

		for k, v := c.First(); k != nil; k, v = c.Next() {
			var u Upload
			if err := json.Unmarshal(v, &u); err != nil {
				// Unreadable entry, drop it
				if err := c.Delete(); err != nil {
					return err
				}
				deleted++
				continue
			}
			if u.CreatedAt.Before(cutoff) {
				if err := c.Delete(); err != nil {
					return err
				}
				deleted++
			}
		}
		return nil
	})
	if err != nil {
		return deleted, err
	}
	return deleted, nil
}
