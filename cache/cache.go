// Package cache provides a persistent response cache backed by Badger.
// Entries expire via TTL so stale transform results age out on their own.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	badger "github.com/dgraph-io/badger/v4"
)

// DefaultTTL is how long cached responses stay valid.
const DefaultTTL = 7 * 24 * time.Hour

// Usage mirrors token accounting for a cached response.
type Usage struct {
	PromptTokens     int `json:"promptTokens"`
	CompletionTokens int `json:"completionTokens"`
	TotalTokens      int `json:"totalTokens"`
}

// Entry is a cached completion result.
type Entry struct {
	Text      string    `json:"text"`
	Usage     Usage     `json:"usage"`
	CreatedAt time.Time `json:"createdAt"`
}

// Cache wraps a Badger key-value store.
type Cache struct {
	db *badger.DB
}

// New opens (or creates) a cache at the given directory.
func New(path string) (*Cache, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open cache: %w", err)
	}

	return &Cache{db: db}, nil
}

// Get returns the cached entry for key. A corrupted or expired entry
// reads as a miss.
func (c *Cache) Get(key string) (Entry, bool) {
	var entry Entry
	found := false

	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}

		val, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}

		if err := json.Unmarshal(val, &entry); err != nil {
			return err
		}
		found = true
		return nil
	})
	if err != nil {
		return Entry{}, false
	}

	return entry, found
}

// Set stores an entry under key with the given TTL.
func (c *Cache) Set(key string, entry *Entry, ttl time.Duration) error {
	val, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal entry: %w", err)
	}

	return c.db.Update(func(txn *badger.Txn) error {
		e := badger.NewEntry([]byte(key), val).WithTTL(ttl)
		return txn.SetEntry(e)
	})
}

// Close flushes and closes the underlying store.
func (c *Cache) Close() error {
	if c.db == nil {
		return nil
	}
	return c.db.Close()
}

// GenerateKey derives a stable cache key from the given parts.
// Parts are NUL-joined before hashing so boundaries stay unambiguous.
func GenerateKey(parts ...string) string {
	sum := sha256.Sum256([]byte(strings.Join(parts, "\x00")))
	return hex.EncodeToString(sum[:])
}
