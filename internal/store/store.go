// Package store is the durable state of the bot: users and ratings,
// topic packages, played bitmaps, ban lists, recent opponents, game
// snapshots and the play-room registry. Everything lives in a single
// bbolt bucket under prefix-namespaced keys; values are JSON.
//
// A store I/O failure leaves the process with state it cannot trust, so
// all helpers panic on database errors. Domain-level outcomes (missing
// record, list full) are ordinary return values.
package store

import (
	"encoding/json"
	"fmt"
	"strconv"
	"sync"

	"github.com/rs/zerolog"
	bolt "go.etcd.io/bbolt"

	"github.com/EgorKulikov/svoyak-bot/internal/pack"
)

const (
	keyNextReset     = "next-reset"
	keyUserData      = "user-data"
	keySets          = "sets"
	keyActiveSets    = "active-sets"
	keyWasActiveSets = "was-active-sets"
	keyPlayed        = "played"
	keyCountPlayed   = "count-played"
	keyGameState     = "game-state"
	keyGameChats     = "game-chats"
	keyBlockedSet    = "blocked_set"
	keyBanList       = "ban-list"
	keyLastPlayed    = "last-played"

	sizeSuffix = "size"

	// StartRating is the rating assigned on first interaction; stored
	// ratings are ten times the displayed value.
	StartRating = 15000

	maxBanList     = 50
	maxLastPlayed  = 10
	minFloorRating = 10
)

var bucketName = []byte("svoyak")

// User is the persisted per-player record.
type User struct {
	DisplayName string `json:"display_name"`
	Rating      int64  `json:"rating"`
}

// EscapedName returns the display name ready for HTML parse mode.
func (u User) EscapedName() string {
	return pack.Escape(u.DisplayName)
}

// DisplayRating converts a stored rating to its displayed value.
func DisplayRating(rating int64) int64 {
	return (rating + 5) / 10
}

// Store wraps the bbolt database plus an in-memory cache of decoded
// topic sets (packages are immutable once uploaded).
type Store struct {
	db     *bolt.DB
	logger zerolog.Logger

	mu   sync.RWMutex
	sets map[string]*pack.Set
}

// Open opens (creating if necessary) the database file and loads the
// topic-set cache.
func Open(path string, logger zerolog.Logger) (*Store, error) {
	db, err := bolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("open store %s: %w", path, err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketName)
		return err
	}); err != nil {
		return nil, fmt.Errorf("init store %s: %w", path, err)
	}
	s := &Store{
		db:     db,
		logger: logger.With().Str("component", "store").Logger(),
		sets:   make(map[string]*pack.Set),
	}
	s.loadSets()
	return s, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Wipe removes every key. Test and migration helper.
func (s *Store) Wipe() {
	s.update(func(b *bolt.Bucket) error {
		c := b.Cursor()
		for k, _ := c.First(); k != nil; k, _ = c.Next() {
			if err := c.Delete(); err != nil {
				return err
			}
		}
		return nil
	})
	s.mu.Lock()
	s.sets = make(map[string]*pack.Set)
	s.mu.Unlock()
}

// update runs fn in a write transaction and panics on failure; the
// process cannot continue with corrupt state.
func (s *Store) update(fn func(b *bolt.Bucket) error) {
	if err := s.db.Update(func(tx *bolt.Tx) error {
		return fn(tx.Bucket(bucketName))
	}); err != nil {
		panic(fmt.Sprintf("store: write transaction failed: %v", err))
	}
}

// view runs fn in a read transaction and panics on failure.
func (s *Store) view(fn func(b *bolt.Bucket) error) {
	if err := s.db.View(func(tx *bolt.Tx) error {
		return fn(tx.Bucket(bucketName))
	}); err != nil {
		panic(fmt.Sprintf("store: read transaction failed: %v", err))
	}
}

func uidKey(prefix string, id int64) string {
	return prefix + "#" + strconv.FormatInt(id, 10)
}

// getJSON decodes the value at key into out, reporting presence.
func getJSON(b *bolt.Bucket, key string, out any) bool {
	raw := b.Get([]byte(key))
	if raw == nil {
		return false
	}
	if err := json.Unmarshal(raw, out); err != nil {
		panic(fmt.Sprintf("store: corrupt value at %s: %v", key, err))
	}
	return true
}

func putJSON(b *bolt.Bucket, key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		panic(fmt.Sprintf("store: marshal %s: %v", key, err))
	}
	return b.Put([]byte(key), raw)
}

// Persisted lists are a size key plus one key per index, mirroring the
// on-disk layout: <key>#size, <key>#0, <key>#1, ...

func listSize(b *bolt.Bucket, key string) int {
	var size int
	getJSON(b, key+"#"+sizeSuffix, &size)
	return size
}

func listGet[T any](b *bolt.Bucket, key string) []T {
	size := listSize(b, key)
	res := make([]T, 0, size)
	for i := 0; i < size; i++ {
		var item T
		if !getJSON(b, key+"#"+strconv.Itoa(i), &item) {
			panic(fmt.Sprintf("store: list %s missing index %d", key, i))
		}
		res = append(res, item)
	}
	return res
}

func listAdd[T any](b *bolt.Bucket, key string, item T) error {
	size := listSize(b, key)
	if err := putJSON(b, key+"#"+strconv.Itoa(size), item); err != nil {
		return err
	}
	return putJSON(b, key+"#"+sizeSuffix, size+1)
}

func listRemoveAt[T any](b *bolt.Bucket, key string, at int) error {
	size := listSize(b, key) - 1
	for i := at; i < size; i++ {
		var next T
		if !getJSON(b, key+"#"+strconv.Itoa(i+1), &next) {
			panic(fmt.Sprintf("store: list %s missing index %d", key, i+1))
		}
		if err := putJSON(b, key+"#"+strconv.Itoa(i), next); err != nil {
			return err
		}
	}
	if err := b.Delete([]byte(key + "#" + strconv.Itoa(size))); err != nil {
		return err
	}
	return putJSON(b, key+"#"+sizeSuffix, size)
}

func listRemove[T comparable](b *bolt.Bucket, key string, item T) (bool, error) {
	size := listSize(b, key)
	for i := 0; i < size; i++ {
		var cur T
		if !getJSON(b, key+"#"+strconv.Itoa(i), &cur) {
			panic(fmt.Sprintf("store: list %s missing index %d", key, i))
		}
		if cur == item {
			return true, listRemoveAt[T](b, key, i)
		}
	}
	return false, nil
}

func listContains[T comparable](b *bolt.Bucket, key string, item T) bool {
	size := listSize(b, key)
	for i := 0; i < size; i++ {
		var cur T
		if !getJSON(b, key+"#"+strconv.Itoa(i), &cur) {
			panic(fmt.Sprintf("store: list %s missing index %d", key, i))
		}
		if cur == item {
			return true
		}
	}
	return false
}
