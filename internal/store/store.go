package store

import (
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/pnordin/assistant-chat/internal/chat"
)

const userIDKey = "user_id"

var (
	settingsBucket = []byte("settings")
	handlesBucket  = []byte("handles")
)

// Store is the durable key/value store backing the per-installation user id
// and the conversation-handle cache.
type Store struct {
	db *bolt.DB
}

func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening store %s: %w", path, err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{settingsBucket, handlesBucket} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing store %s: %w", path, err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Get(key string) (string, bool, error) {
	var value string
	var ok bool
	err := s.db.View(func(tx *bolt.Tx) error {
		if v := tx.Bucket(settingsBucket).Get([]byte(key)); v != nil {
			value = string(v)
			ok = true
		}
		return nil
	})
	return value, ok, err
}

func (s *Store) Set(key, value string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(settingsBucket).Put([]byte(key), []byte(value))
	})
}

func (s *Store) Delete(key string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(settingsBucket).Delete([]byte(key))
	})
}

// UserID returns the stable per-installation user identifier, generating
// and persisting one on first use.
func (s *Store) UserID() (string, error) {
	if id, ok, err := s.Get(userIDKey); err != nil {
		return "", err
	} else if ok {
		return id, nil
	}

	id := fmt.Sprintf("user_%d", time.Now().UnixMilli())
	if err := s.Set(userIDKey, id); err != nil {
		return "", err
	}
	return id, nil
}

// LoadHandle implements chat.HandleStore.
func (s *Store) LoadHandle(fingerprint, userID string) (chat.ConversationHandle, bool, error) {
	var handle chat.ConversationHandle
	var ok bool
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(handlesBucket).Get(handleKey(fingerprint, userID))
		if v == nil {
			return nil
		}
		if err := json.Unmarshal(v, &handle); err != nil {
			return fmt.Errorf("decoding conversation handle: %w", err)
		}
		ok = true
		return nil
	})
	if err != nil {
		return chat.ConversationHandle{}, false, err
	}
	return handle, ok, nil
}

// SaveHandle implements chat.HandleStore.
func (s *Store) SaveHandle(fingerprint string, handle chat.ConversationHandle) error {
	data, err := json.Marshal(handle)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(handlesBucket).Put(handleKey(fingerprint, handle.UserID), data)
	})
}

func handleKey(fingerprint, userID string) []byte {
	return []byte(fingerprint + "/" + userID)
}
