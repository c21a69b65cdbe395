package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/mmcdole/romdl/internal/domain"
	bolt "go.etcd.io/bbolt"
)

const dbFile = "romdl.db"

var bucketInstalls = []byte("installs")

// HistoryStore implements domain.HistoryStore using BoltDB.
type HistoryStore struct {
	db *bolt.DB

	// Memory-only mode
	mu  sync.RWMutex
	mem map[string][]byte
}

var _ domain.HistoryStore = (*HistoryStore)(nil)

// NewHistoryStore opens the history database in dir. An empty dir keeps the
// history in memory only.
func NewHistoryStore(dir string) (*HistoryStore, error) {
	if dir == "" {
		return &HistoryStore{mem: make(map[string][]byte)}, nil
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	db, err := bolt.Open(filepath.Join(dir, dbFile), 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt db: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketInstalls)
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &HistoryStore{db: db}, nil
}

func (s *HistoryStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func systemPrefix(folder string) string {
	return "sys:" + folder + ":item:"
}

func installKey(folder, item string) string {
	return systemPrefix(folder) + item
}

// RecordInstall stores record under the system folder, replacing any earlier
// record for the same item.
func (s *HistoryStore) RecordInstall(folder string, record domain.InstallRecord) error {
	return s.set(installKey(folder, record.Item), record)
}

// InstalledItems returns the install records of a system keyed by item name.
func (s *HistoryStore) InstalledItems(folder string) (map[string]domain.InstallRecord, error) {
	records := make(map[string]domain.InstallRecord)
	err := s.scan(systemPrefix(folder), func(data []byte) error {
		var rec domain.InstallRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			return err
		}
		records[rec.Item] = rec
		return nil
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

// Forget removes the record of one item.
func (s *HistoryStore) Forget(folder, item string) error {
	key := installKey(folder, item)

	if s.db == nil {
		s.mu.Lock()
		delete(s.mem, key)
		s.mu.Unlock()
		return nil
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketInstalls).Delete([]byte(key))
	})
}

// === Generic helpers ===

func (s *HistoryStore) set(key string, value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}

	if s.db == nil {
		s.mu.Lock()
		s.mem[key] = data
		s.mu.Unlock()
		return nil
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketInstalls).Put([]byte(key), data)
	})
}

func (s *HistoryStore) scan(prefix string, fn func(data []byte) error) error {
	if s.db == nil {
		s.mu.RLock()
		defer s.mu.RUnlock()
		for k, v := range s.mem {
			if strings.HasPrefix(k, prefix) {
				if err := fn(v); err != nil {
					return err
				}
			}
		}
		return nil
	}

	return s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketInstalls)
		if b == nil {
			return nil
		}
		c := b.Cursor()
		prefixBytes := []byte(prefix)
		for k, v := c.Seek(prefixBytes); k != nil && strings.HasPrefix(string(k), prefix); k, v = c.Next() {
			if err := fn(v); err != nil {
				return err
			}
		}
		return nil
	})
}
