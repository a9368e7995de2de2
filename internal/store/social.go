package store

import (
	bolt "go.etcd.io/bbolt"
)

// BanResult is the outcome of a ban-list insertion.
type BanResult int

const (
	BanAdded BanResult = iota
	BanAlreadyPresent
	BanAtLimit
)

// InBanList reports whether other is on user's ban list.
func (s *Store) InBanList(user, other int64) bool {
	var banned bool
	s.view(func(b *bolt.Bucket) error {
		banned = listContains(b, uidKey(keyBanList, user), other)
		return nil
	})
	return banned
}

// AddBan puts other on user's ban list, enforcing the 50-entry cap.
func (s *Store) AddBan(user, other int64) BanResult {
	res := BanAdded
	s.update(func(b *bolt.Bucket) error {
		key := uidKey(keyBanList, user)
		if listContains(b, key, other) {
			res = BanAlreadyPresent
			return nil
		}
		if listSize(b, key) >= maxBanList {
			res = BanAtLimit
			return nil
		}
		return listAdd(b, key, other)
	})
	return res
}

// RemoveBan removes other from user's ban list, reporting whether it was
// present.
func (s *Store) RemoveBan(user, other int64) bool {
	var removed bool
	s.update(func(b *bolt.Bucket) error {
		var err error
		removed, err = listRemove(b, uidKey(keyBanList, user), other)
		return err
	})
	return removed
}

// BanList returns user's ban list in insertion order.
func (s *Store) BanList(user int64) []int64 {
	var banned []int64
	s.view(func(b *bolt.Bucket) error {
		banned = listGet[int64](b, uidKey(keyBanList, user))
		return nil
	})
	return banned
}

// PushOpponents records that all given users played together: each
// participant gets every other participant pushed onto their
// recent-opponents list.
func (s *Store) PushOpponents(users []int64) {
	for _, user := range users {
		for _, other := range users {
			if user != other {
				s.pushOpponent(user, other)
			}
		}
	}
}

// pushOpponent appends other to user's recent-opponents list; a
// duplicate moves to the tail, and the oldest entry is evicted at
// capacity.
func (s *Store) pushOpponent(user, other int64) {
	s.update(func(b *bolt.Bucket) error {
		key := uidKey(keyLastPlayed, user)
		removed, err := listRemove(b, key, other)
		if err != nil {
			return err
		}
		if !removed && listSize(b, key) >= maxLastPlayed {
			if err := listRemoveAt[int64](b, key, 0); err != nil {
				return err
			}
		}
		return listAdd(b, key, other)
	})
}

// RecentOpponents returns user's recent opponents, oldest first.
func (s *Store) RecentOpponents(user int64) []int64 {
	var opponents []int64
	s.view(func(b *bolt.Bucket) error {
		opponents = listGet[int64](b, uidKey(keyLastPlayed, user))
		return nil
	})
	return opponents
}
