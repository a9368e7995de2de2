package store

import (
	"bytes"
	"strconv"

	bolt "go.etcd.io/bbolt"
)

// SaveSnapshot persists a game snapshot blob keyed by its play chat.
// Called on every FSM mutation; the snapshot is what survives a crash.
func (s *Store) SaveSnapshot(playChat int64, blob []byte) {
	s.update(func(b *bolt.Bucket) error {
		return b.Put([]byte(uidKey(keyGameState, playChat)), blob)
	})
}

// Snapshots returns every persisted game snapshot keyed by play chat.
func (s *Store) Snapshots() map[int64][]byte {
	res := make(map[int64][]byte)
	s.view(func(b *bolt.Bucket) error {
		c := b.Cursor()
		prefix := []byte(keyGameState + "#")
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			chat, err := strconv.ParseInt(string(k[len(prefix):]), 10, 64)
			if err != nil {
				panic("store: bad snapshot key " + string(k))
			}
			res[chat] = append([]byte(nil), v...)
		}
		return nil
	})
	return res
}

// DeleteSnapshot removes a finished game's snapshot.
func (s *Store) DeleteSnapshot(playChat int64) {
	s.update(func(b *bolt.Bucket) error {
		return b.Delete([]byte(uidKey(keyGameState, playChat)))
	})
}

// AddGameChat enrolls a play room.
func (s *Store) AddGameChat(chat int64) {
	s.update(func(b *bolt.Bucket) error {
		return listAdd(b, keyGameChats, chat)
	})
}

// RemoveGameChat unenrolls a play room.
func (s *Store) RemoveGameChat(chat int64) {
	s.update(func(b *bolt.Bucket) error {
		_, err := listRemove(b, keyGameChats, chat)
		return err
	})
}

// GameChats lists the enrolled play rooms in registry order.
func (s *Store) GameChats() []int64 {
	var chats []int64
	s.view(func(b *bolt.Bucket) error {
		chats = listGet[int64](b, keyGameChats)
		return nil
	})
	return chats
}
