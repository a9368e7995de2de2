// Package match holds the matchmaking queue and the topic selection
// shared by the queue and explicitly started games.
package match

import (
	"github.com/EgorKulikov/svoyak-bot/internal/store"
)

// StartData describes a game about to be created: where to announce it
// and who takes part.
type StartData struct {
	SourceChats []int64
	SetID       string // preferred package; empty means any active one
	TopicCount  int
	Players     map[int64]store.User
	Spectators  map[int64]store.User
}

// Match is a game the queue has assembled, with its package and topics
// already chosen.
type Match struct {
	Data   StartData
	SetID  string
	Topics []int
}

// FindTopics picks a package and fresh topics for the given party.
// Candidates are the preferred package if set, otherwise the active
// packages in registry order. A package fits when every player has
// enough topics left in it and the union of their played bitmaps still
// leaves enough unset; the selected topics are the first unset indices
// of the union.
func FindTopics(st *store.Store, data *StartData) (string, []int, bool) {
	candidates := st.ActiveSetIDs()
	if data.SetID != "" {
		candidates = []string{data.SetID}
	}
	for _, setID := range candidates {
		set, ok := st.GetSet(setID)
		if !ok {
			continue
		}
		if !feasible(st, data, setID) {
			continue
		}
		union := store.NewBitSet(len(set.Topics))
		for user := range data.Players {
			if played, ok := st.Played(user, setID); ok {
				union.Union(played)
			}
		}
		if union.Size+data.TopicCount > len(set.Topics) {
			continue
		}
		topics := make([]int, 0, data.TopicCount)
		for i := 0; i < len(set.Topics) && len(topics) < data.TopicCount; i++ {
			if !union.IsSet(i) {
				topics = append(topics, i)
			}
		}
		return setID, topics, true
	}
	return "", nil, false
}

func feasible(st *store.Store, data *StartData, setID string) bool {
	for user := range data.Players {
		if st.TopicsRemaining(user, setID) < data.TopicCount {
			return false
		}
	}
	return true
}
