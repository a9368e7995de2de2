package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/EgorKulikov/svoyak-bot/internal/pack"
)

// eloDivisor deliberately flattens the classical curve (400 would be
// the textbook value); it is the production contract.
const eloDivisor = 4000

// GetUser returns the stored record for a user, if any.
func (s *Store) GetUser(id int64) (User, bool) {
	var user User
	var found bool
	s.view(func(b *bolt.Bucket) error {
		found = getJSON(b, uidKey(keyUserData, id), &user)
		return nil
	})
	return user, found
}

// SetUser persists a user record.
func (s *Store) SetUser(id int64, user User) {
	s.update(func(b *bolt.Bucket) error {
		return putJSON(b, uidKey(keyUserData, id), user)
	})
}

// UpsertUser refreshes the display name, keeping any existing rating and
// assigning the start rating on first interaction.
func (s *Store) UpsertUser(id int64, displayName string) User {
	user := User{DisplayName: displayName, Rating: StartRating}
	s.update(func(b *bolt.Bucket) error {
		var old User
		if getJSON(b, uidKey(keyUserData, id), &old) {
			user.Rating = old.Rating
		}
		return putJSON(b, uidKey(keyUserData, id), user)
	})
	return user
}

// RatingEntry is one row of the rating table.
type RatingEntry struct {
	Place       int
	DisplayName string
	Rating      int64
}

// RatingList returns users sorted by rating descending. Equal ratings
// share a place; listing stops once the place passes top.
func (s *Store) RatingList(top int) []RatingEntry {
	var users []User
	s.view(func(b *bolt.Bucket) error {
		c := b.Cursor()
		prefix := []byte(keyUserData + "#")
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			var user User
			if err := json.Unmarshal(v, &user); err != nil {
				panic(fmt.Sprintf("store: corrupt user at %s: %v", k, err))
			}
			users = append(users, user)
		}
		return nil
	})
	sort.SliceStable(users, func(i, j int) bool {
		return users[i].Rating > users[j].Rating
	})
	var res []RatingEntry
	place := 1
	lastRating := int64(-1)
	sharing := 0
	for _, user := range users {
		if user.Rating != lastRating {
			lastRating = user.Rating
			place += sharing
			if place > top {
				break
			}
			sharing = 0
		}
		sharing++
		res = append(res, RatingEntry{Place: place, DisplayName: user.DisplayName, Rating: user.Rating})
	}
	return res
}

// CommitGameResults settles a finished game: every participant's delta
// is the summed pairwise expectation against every other participant,
// clamped so the post-update rating stays at or above the floor. All
// deltas are read and applied in a single transaction.
func (s *Store) CommitGameResults(scores map[int64]int) {
	ids := make([]int64, 0, len(scores))
	for id := range scores {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	s.update(func(b *bolt.Bucket) error {
		ratings := make(map[int64]User, len(ids))
		for _, id := range ids {
			var user User
			if !getJSON(b, uidKey(keyUserData, id), &user) {
				panic(fmt.Sprintf("store: game result for unknown user %d", id))
			}
			ratings[id] = user
		}
		for _, id := range ids {
			user := ratings[id]
			ra := user.Rating
			var delta int64
			for _, other := range ids {
				if other == id {
					continue
				}
				rb := ratings[other].Rating
				ea := 1 / (1 + math.Pow(10, float64(rb-ra)/eloDivisor))
				var sa float64
				switch {
				case scores[id] > scores[other]:
					sa = 1
				case scores[id] < scores[other]:
					sa = 0
				default:
					sa = 0.5
				}
				delta += int64(math.Round(100 * (sa - ea)))
			}
			if delta < minFloorRating-ra {
				delta = minFloorRating - ra
			}
			user.Rating = ra + delta
			if err := putJSON(b, uidKey(keyUserData, id), user); err != nil {
				return err
			}
		}
		return nil
	})
}

// Decay walks every user and pulls the rating 1% toward the baseline,
// truncating the scaled difference. The walk is a single transaction so
// no reader observes a partial decay.
func (s *Store) Decay() {
	s.update(func(b *bolt.Bucket) error {
		c := b.Cursor()
		prefix := []byte(keyUserData + "#")
		type pending struct {
			key  []byte
			user User
		}
		var updates []pending
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			var user User
			if err := json.Unmarshal(v, &user); err != nil {
				panic(fmt.Sprintf("store: corrupt user at %s: %v", k, err))
			}
			user.Rating = StartRating + (user.Rating-StartRating)*99/100
			updates = append(updates, pending{key: append([]byte(nil), k...), user: user})
		}
		for _, u := range updates {
			raw, err := json.Marshal(u.user)
			if err != nil {
				panic(fmt.Sprintf("store: marshal user: %v", err))
			}
			if err := b.Put(u.key, raw); err != nil {
				return err
			}
		}
		return nil
	})
}

// NextDecay returns the instant the next decay walk is due; now if the
// key has never been written.
func (s *Store) NextDecay() time.Time {
	var millis int64
	found := false
	s.view(func(b *bolt.Bucket) error {
		found = getJSON(b, keyNextReset, &millis)
		return nil
	})
	if !found {
		return time.Now()
	}
	return time.UnixMilli(millis)
}

// SetNextDecay persists the next decay instant.
func (s *Store) SetNextDecay(t time.Time) {
	s.update(func(b *bolt.Bucket) error {
		return putJSON(b, keyNextReset, t.UnixMilli())
	})
}

// RenderRatingList renders the rating table rows for the chat.
func RenderRatingList(entries []RatingEntry) string {
	var b strings.Builder
	for _, e := range entries {
		fmt.Fprintf(&b, "<b>%d.</b> %s %d\n",
			e.Place, pack.Escape(e.DisplayName), DisplayRating(e.Rating))
	}
	return b.String()
}
