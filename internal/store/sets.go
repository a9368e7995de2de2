package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"

	bolt "go.etcd.io/bbolt"

	"github.com/EgorKulikov/svoyak-bot/internal/pack"
)

func playedKey(prefix string, user int64, setID string) string {
	return prefix + "#" + strconv.FormatInt(user, 10) + "#" + setID
}

// AddSet stores a topic package. Re-uploading a package that has ever
// been active is accepted only if the topic count matches the stored
// one.
func (s *Store) AddSet(set *pack.Set) bool {
	if s.WasActive(set.ID) {
		if existing, ok := s.GetSet(set.ID); ok && len(existing.Topics) != len(set.Topics) {
			return false
		}
	}
	s.update(func(b *bolt.Bucket) error {
		return putJSON(b, keySets+"#"+set.ID, set)
	})
	s.mu.Lock()
	s.sets[set.ID] = set
	s.mu.Unlock()
	return true
}

// GetSet returns a cached package by id.
func (s *Store) GetSet(id string) (*pack.Set, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	set, ok := s.sets[id]
	return set, ok
}

// loadSets fills the in-memory cache at startup.
func (s *Store) loadSets() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.view(func(b *bolt.Bucket) error {
		c := b.Cursor()
		prefix := []byte(keySets + "#")
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			var set pack.Set
			if err := json.Unmarshal(v, &set); err != nil {
				panic(fmt.Sprintf("store: corrupt package at %s: %v", k, err))
			}
			s.sets[set.ID] = &set
		}
		return nil
	})
}

// ActiveSetIDs lists packages currently offered for games, in registry
// order.
func (s *Store) ActiveSetIDs() []string {
	var ids []string
	s.view(func(b *bolt.Bucket) error {
		ids = listGet[string](b, keyActiveSets)
		return nil
	})
	return ids
}

// WasActiveSetIDs lists every package that has ever been active.
func (s *Store) WasActiveSetIDs() []string {
	var ids []string
	s.view(func(b *bolt.Bucket) error {
		ids = listGet[string](b, keyWasActiveSets)
		return nil
	})
	return ids
}

// IsActive reports whether a package is currently active.
func (s *Store) IsActive(setID string) bool {
	var active bool
	s.view(func(b *bolt.Bucket) error {
		active = listContains(b, keyActiveSets, setID)
		return nil
	})
	return active
}

// WasActive reports whether a package has ever been active.
func (s *Store) WasActive(setID string) bool {
	var was bool
	s.view(func(b *bolt.Bucket) error {
		was = listContains(b, keyWasActiveSets, setID)
		return nil
	})
	return was
}

// AddActive activates a package, recording it in the was-active history.
func (s *Store) AddActive(setID string) {
	s.update(func(b *bolt.Bucket) error {
		if !listContains(b, keyWasActiveSets, setID) {
			if err := listAdd(b, keyWasActiveSets, setID); err != nil {
				return err
			}
		}
		return listAdd(b, keyActiveSets, setID)
	})
}

// RemoveActive deactivates a package. Was-active history is kept.
func (s *Store) RemoveActive(setID string) {
	s.update(func(b *bolt.Bucket) error {
		_, err := listRemove(b, keyActiveSets, setID)
		return err
	})
}

// MarkPlayed sets the given topic indices in every user's bitmap for the
// package, atomically, and refreshes the count keys.
func (s *Store) MarkPlayed(users []int64, setID string, topics []int) {
	set, ok := s.GetSet(setID)
	if !ok {
		panic(fmt.Sprintf("store: mark played for unknown package %s", setID))
	}
	s.update(func(b *bolt.Bucket) error {
		for _, user := range users {
			played := NewBitSet(len(set.Topics))
			getJSON(b, playedKey(keyPlayed, user, setID), played)
			for _, topic := range topics {
				played.Set(topic)
			}
			if err := putJSON(b, playedKey(keyPlayed, user, setID), played); err != nil {
				return err
			}
			if err := putJSON(b, playedKey(keyCountPlayed, user, setID), played.Size); err != nil {
				return err
			}
		}
		return nil
	})
}

// Played returns a user's bitmap for a package, if any.
func (s *Store) Played(user int64, setID string) (*BitSet, bool) {
	played := &BitSet{}
	var found bool
	s.view(func(b *bolt.Bucket) error {
		found = getJSON(b, playedKey(keyPlayed, user, setID), played)
		return nil
	})
	return played, found
}

// CountPlayed returns how many topics of the package the user has
// played.
func (s *Store) CountPlayed(user int64, setID string) int {
	var count int
	s.view(func(b *bolt.Bucket) error {
		getJSON(b, playedKey(keyCountPlayed, user, setID), &count)
		return nil
	})
	return count
}

// TopicsRemaining returns how many topics of the package the user has
// left. A package the user has blocked counts as exhausted.
func (s *Store) TopicsRemaining(user int64, setID string) int {
	if s.IsBlocked(user, setID) {
		return 0
	}
	set, ok := s.GetSet(setID)
	if !ok {
		return 0
	}
	return len(set.Topics) - s.CountPlayed(user, setID)
}

// IsBlocked reports whether the user has opted out of the package.
func (s *Store) IsBlocked(user int64, setID string) bool {
	var blocked bool
	s.view(func(b *bolt.Bucket) error {
		var v bool
		blocked = getJSON(b, playedKey(keyBlockedSet, user, setID), &v)
		return nil
	})
	return blocked
}

// SetBlocked toggles the opt-out flag, reporting whether the state
// changed.
func (s *Store) SetBlocked(user int64, setID string, block bool) bool {
	if s.IsBlocked(user, setID) == block {
		return false
	}
	s.update(func(b *bolt.Bucket) error {
		key := playedKey(keyBlockedSet, user, setID)
		if block {
			return putJSON(b, key, true)
		}
		return b.Delete([]byte(key))
	})
	return true
}
