package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"

	"offline-chat/internal/message"
)

// Fixed keys for the durable string-keyed collections.
const (
	KeyPending   = "pendingMessages"
	KeyFailed    = "failedMessages"
	KeyScheduled = "scheduledMessages"
	KeyMedia     = "mediaCatalog"
)

const (
	kvBucket       = "kv"
	timelineBucket = "timeline"
)

// Store is the durable local store backing the delivery queues, the
// scheduled-message list, the media catalog, and the conversation
// timeline. It is a thin string-keyed get/set surface over BoltDB plus
// an ordered timeline bucket.
type Store struct {
	db *bbolt.DB
}

// Open creates or opens the store at path, preparing all buckets.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, err
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range []string{kvBucket, timelineBucket} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Get reads the raw value stored under key; ok is false when absent.
func (s *Store) Get(key string) (value string, ok bool, err error) {
	if s == nil || s.db == nil {
		return "", false, nil
	}
	err = s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket([]byte(kvBucket)).Get([]byte(key))
		if data != nil {
			value = string(data)
			ok = true
		}
		return nil
	})
	return value, ok, err
}

// Set writes value under key.
func (s *Store) Set(key, value string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("store not initialized")
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(kvBucket)).Put([]byte(key), []byte(value))
	})
}

// Delete removes key; deleting an absent key is not an error.
func (s *Store) Delete(key string) error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(kvBucket)).Delete([]byte(key))
	})
}

// LoadQueue decodes the JSON message array stored under key. A missing
// key decodes as an empty queue.
func (s *Store) LoadQueue(key string) ([]message.Message, error) {
	raw, ok, err := s.Get(key)
	if err != nil || !ok {
		return nil, err
	}
	var msgs []message.Message
	if err := json.Unmarshal([]byte(raw), &msgs); err != nil {
		return nil, fmt.Errorf("corrupt queue %s: %w", key, err)
	}
	return msgs, nil
}

// SaveQueue encodes and stores the message array under key.
func (s *Store) SaveQueue(key string, msgs []message.Message) error {
	if msgs == nil {
		msgs = []message.Message{}
	}
	data, err := json.Marshal(msgs)
	if err != nil {
		return err
	}
	return s.Set(key, string(data))
}

// UpdateQueue applies fn to the queue under key inside a single write
// transaction, so the read-modify-write sequence cannot interleave with
// another mutation of the same queue.
func (s *Store) UpdateQueue(key string, fn func([]message.Message) []message.Message) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("store not initialized")
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(kvBucket))
		var msgs []message.Message
		if data := bucket.Get([]byte(key)); data != nil {
			if err := json.Unmarshal(data, &msgs); err != nil {
				return fmt.Errorf("corrupt queue %s: %w", key, err)
			}
		}
		msgs = fn(msgs)
		if msgs == nil {
			msgs = []message.Message{}
		}
		data, err := json.Marshal(msgs)
		if err != nil {
			return err
		}
		return bucket.Put([]byte(key), data)
	})
}
