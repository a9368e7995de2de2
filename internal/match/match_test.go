package match

import (
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"github.com/EgorKulikov/svoyak-bot/internal/pack"
	"github.com/EgorKulikov/svoyak-bot/internal/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"), zerolog.Nop())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func addSet(t *testing.T, s *store.Store, id string, topicCount int) {
	t.Helper()
	set := &pack.Set{ID: id, Title: id, Description: "d"}
	for i := 0; i < topicCount; i++ {
		topic := pack.Topic{Name: "topic"}
		for q := 1; q <= 5; q++ {
			topic.Questions = append(topic.Questions,
				pack.NewQuestion(q*10, "q", []string{"a"}, ""))
		}
		set.Topics = append(set.Topics, topic)
	}
	if !s.AddSet(set) {
		t.Fatalf("add set %s", id)
	}
	s.AddActive(id)
}

func startData(users []int64, topicCount int) *StartData {
	players := make(map[int64]store.User, len(users))
	for _, u := range users {
		players[u] = store.User{DisplayName: "U", Rating: store.StartRating}
	}
	return &StartData{TopicCount: topicCount, Players: players}
}

func TestFindTopicsRegistryOrder(t *testing.T) {
	s := newTestStore(t)
	addSet(t, s, "first", 8)
	addSet(t, s, "second", 8)
	setID, topics, ok := FindTopics(s, startData([]int64{1, 2}, 6))
	if !ok || setID != "first" {
		t.Fatalf("selected %q, want first", setID)
	}
	want := []int{0, 1, 2, 3, 4, 5}
	if len(topics) != len(want) {
		t.Fatalf("topics = %v", topics)
	}
	for i, topic := range topics {
		if topic != want[i] {
			t.Errorf("topics = %v, want first unset ascending", topics)
			break
		}
	}
}

func TestFindTopicsPreferredPackage(t *testing.T) {
	s := newTestStore(t)
	addSet(t, s, "first", 8)
	addSet(t, s, "second", 8)
	data := startData([]int64{1}, 6)
	data.SetID = "second"
	setID, _, ok := FindTopics(s, data)
	if !ok || setID != "second" {
		t.Errorf("selected %q, want the preferred package", setID)
	}
}

func TestFindTopicsSkipsPlayedTopics(t *testing.T) {
	s := newTestStore(t)
	addSet(t, s, "p", 8)
	s.MarkPlayed([]int64{1}, "p", []int{0, 2})
	s.MarkPlayed([]int64{2}, "p", []int{1})
	_, topics, ok := FindTopics(s, startData([]int64{1, 2}, 5))
	if !ok {
		t.Fatal("expected a fit")
	}
	want := []int{3, 4, 5, 6, 7}
	for i, topic := range topics {
		if topic != want[i] {
			t.Fatalf("topics = %v, want %v (union of played skipped)", topics, want)
		}
	}
}

func TestFindTopicsInfeasibleUnion(t *testing.T) {
	s := newTestStore(t)
	addSet(t, s, "p", 8)
	// Each player individually has 6 topics left, but their played
	// sets are disjoint and the union leaves only 4.
	s.MarkPlayed([]int64{1}, "p", []int{0, 1})
	s.MarkPlayed([]int64{2}, "p", []int{2, 3})
	if _, _, ok := FindTopics(s, startData([]int64{1, 2}, 6)); ok {
		t.Error("union feasibility must be enforced")
	}
	if _, _, ok := FindTopics(s, startData([]int64{1, 2}, 4)); !ok {
		t.Error("4 topics still fit")
	}
}

func TestFindTopicsBlockedPackage(t *testing.T) {
	s := newTestStore(t)
	addSet(t, s, "p", 8)
	addSet(t, s, "q", 8)
	s.SetBlocked(1, "p", true)
	setID, _, ok := FindTopics(s, startData([]int64{1, 2}, 6))
	if !ok || setID != "q" {
		t.Errorf("selected %q, want the unblocked package", setID)
	}
	data := startData([]int64{1}, 6)
	data.SetID = "p"
	if _, _, ok := FindTopics(s, data); ok {
		t.Error("a blocked preferred package must not fit")
	}
}

func newCandidate(user, rating, delta int64, three bool) candidate {
	return candidate{
		user:              user,
		rating:            rating,
		minRating:         rating - delta,
		maxRating:         rating + delta,
		willPlayWithThree: three,
	}
}

func TestFindPartyFour(t *testing.T) {
	s := newTestStore(t)
	addSet(t, s, "p", 8)
	var candidates []candidate
	for id := int64(1); id <= 4; id++ {
		s.UpsertUser(id, "U")
		candidates = append(candidates, newCandidate(id, store.StartRating, 100, false))
	}
	m := &Matcher{store: s}
	match, ok := m.findParty(candidates, 4)
	if !ok {
		t.Fatal("expected a 4-player party")
	}
	if len(match.Data.Players) != 4 || match.SetID != "p" || len(match.Topics) != queueTopicCount {
		t.Errorf("match = %+v", match)
	}
}

func TestFindPartyToleranceIsMutual(t *testing.T) {
	s := newTestStore(t)
	addSet(t, s, "p", 8)
	for id := int64(1); id <= 4; id++ {
		s.UpsertUser(id, "U")
	}
	candidates := []candidate{
		newCandidate(1, 15000, 100, false),
		newCandidate(2, 15000, 100, false),
		newCandidate(3, 15000, 100, false),
		// Covers the others but is not covered by their windows.
		newCandidate(4, 15500, 1000, false),
	}
	m := &Matcher{store: s}
	if _, ok := m.findParty(candidates, 4); ok {
		t.Error("one-sided tolerance must not match")
	}
	for i := 0; i < 3; i++ {
		candidates[i] = newCandidate(int64(i+1), 15000, 600, false)
	}
	if _, ok := m.findParty(candidates, 4); !ok {
		t.Error("mutually covering windows should match")
	}
}

func TestFindPartyRespectsBans(t *testing.T) {
	s := newTestStore(t)
	addSet(t, s, "p", 8)
	for id := int64(1); id <= 4; id++ {
		s.UpsertUser(id, "U")
	}
	s.AddBan(2, 4)
	var candidates []candidate
	for id := int64(1); id <= 4; id++ {
		candidates = append(candidates, newCandidate(id, store.StartRating, 100, true))
	}
	m := &Matcher{store: s}
	if _, ok := m.findParty(candidates, 4); ok {
		t.Error("banned pair must not share a party")
	}
	// A 3-subset without the banned pair works.
	match, ok := m.findParty(candidates, 3)
	if !ok {
		t.Fatal("expected a 3-player party")
	}
	if _, has2 := match.Data.Players[2]; has2 {
		if _, has4 := match.Data.Players[4]; has4 {
			t.Error("party contains the banned pair")
		}
	}
}

func TestFindPartyThreeNeedsPatience(t *testing.T) {
	s := newTestStore(t)
	addSet(t, s, "p", 8)
	for id := int64(1); id <= 3; id++ {
		s.UpsertUser(id, "U")
	}
	candidates := []candidate{
		newCandidate(1, store.StartRating, 1000, true),
		newCandidate(2, store.StartRating, 1000, true),
		newCandidate(3, store.StartRating, 1000, false),
	}
	m := &Matcher{store: s}
	if _, ok := m.findParty(candidates, 3); ok {
		t.Error("an impatient player must not be pulled into a 3-player game")
	}
	candidates[2].willPlayWithThree = true
	if _, ok := m.findParty(candidates, 3); !ok {
		t.Error("three patient players should match")
	}
}

func TestQueueMessageText(t *testing.T) {
	if got := queueMessageText(3); got != "Ищем игру. Всего игроков в очереди <b>3</b>" {
		t.Errorf("text = %q", got)
	}
}
