package store

import (
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"github.com/EgorKulikov/svoyak-bot/internal/pack"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"), zerolog.Nop())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testSet(id string, topicCount int) *pack.Set {
	set := &pack.Set{ID: id, Title: "t-" + id, Description: "d"}
	for i := 0; i < topicCount; i++ {
		topic := pack.Topic{Name: "topic"}
		for q := 1; q <= 5; q++ {
			topic.Questions = append(topic.Questions,
				pack.NewQuestion(q*10, "q", []string{"a"}, ""))
		}
		set.Topics = append(set.Topics, topic)
	}
	return set
}

func TestUpsertUserKeepsRating(t *testing.T) {
	s := newTestStore(t)
	u := s.UpsertUser(1, "Alice")
	if u.Rating != StartRating {
		t.Fatalf("initial rating = %d", u.Rating)
	}
	s.SetUser(1, User{DisplayName: "Alice", Rating: 14000})
	u = s.UpsertUser(1, "Alice Renamed")
	if u.Rating != 14000 {
		t.Errorf("rating not preserved: %d", u.Rating)
	}
	if u.DisplayName != "Alice Renamed" {
		t.Errorf("name not refreshed: %q", u.DisplayName)
	}
}

func TestCommitGameResults(t *testing.T) {
	s := newTestStore(t)
	s.SetUser(1, User{DisplayName: "A", Rating: 15000})
	s.SetUser(2, User{DisplayName: "B", Rating: 15200})
	s.CommitGameResults(map[int64]int{1: 100, 2: 0})
	// ea = 1/(1+10^(200/4000)) = 0.47125, delta = round(52.875) = 53.
	a, _ := s.GetUser(1)
	b, _ := s.GetUser(2)
	if a.Rating != 15053 {
		t.Errorf("winner rating = %d, want 15053", a.Rating)
	}
	if b.Rating != 15147 {
		t.Errorf("loser rating = %d, want 15147", b.Rating)
	}
}

func TestCommitGameResultsFloor(t *testing.T) {
	s := newTestStore(t)
	s.SetUser(1, User{DisplayName: "A", Rating: 40})
	s.SetUser(2, User{DisplayName: "B", Rating: 15000})
	s.CommitGameResults(map[int64]int{1: 0, 2: 100})
	a, _ := s.GetUser(1)
	if a.Rating < 10 {
		t.Errorf("rating below floor: %d", a.Rating)
	}
	if a.Rating != 10 {
		t.Errorf("clamp should land exactly on floor, got %d", a.Rating)
	}
}

func TestCommitGameResultsEqualScores(t *testing.T) {
	s := newTestStore(t)
	s.SetUser(1, User{DisplayName: "A", Rating: 15000})
	s.SetUser(2, User{DisplayName: "B", Rating: 15000})
	s.CommitGameResults(map[int64]int{1: 50, 2: 50})
	a, _ := s.GetUser(1)
	b, _ := s.GetUser(2)
	if a.Rating != 15000 || b.Rating != 15000 {
		t.Errorf("equal game should not move equal ratings: %d %d", a.Rating, b.Rating)
	}
}

func TestDecay(t *testing.T) {
	s := newTestStore(t)
	s.SetUser(1, User{DisplayName: "A", Rating: 16000})
	s.SetUser(2, User{DisplayName: "B", Rating: 14000})
	s.SetUser(3, User{DisplayName: "C", Rating: 15000})
	s.Decay()
	a, _ := s.GetUser(1)
	b, _ := s.GetUser(2)
	c, _ := s.GetUser(3)
	if a.Rating != 15990 {
		t.Errorf("above baseline: %d, want 15990", a.Rating)
	}
	if b.Rating != 14010 {
		t.Errorf("below baseline: %d, want 14010", b.Rating)
	}
	if c.Rating != 15000 {
		t.Errorf("baseline must stay put: %d", c.Rating)
	}
}

func TestRatingListRanking(t *testing.T) {
	s := newTestStore(t)
	s.SetUser(1, User{DisplayName: "A", Rating: 16000})
	s.SetUser(2, User{DisplayName: "B", Rating: 16000})
	s.SetUser(3, User{DisplayName: "C", Rating: 15000})
	entries := s.RatingList(20)
	if len(entries) != 3 {
		t.Fatalf("entries = %d", len(entries))
	}
	if entries[0].Place != 1 || entries[1].Place != 1 {
		t.Errorf("tied users must share first place: %d %d", entries[0].Place, entries[1].Place)
	}
	if entries[2].Place != 3 {
		t.Errorf("next distinct rating place = %d, want 3", entries[2].Place)
	}
}

func TestRatingListTopCut(t *testing.T) {
	s := newTestStore(t)
	for i := int64(1); i <= 5; i++ {
		s.SetUser(i, User{DisplayName: "U", Rating: 15000 + 10*i})
	}
	entries := s.RatingList(3)
	if len(entries) != 3 {
		t.Errorf("top cut = %d entries, want 3", len(entries))
	}
}

func TestBanList(t *testing.T) {
	s := newTestStore(t)
	if res := s.AddBan(1, 2); res != BanAdded {
		t.Errorf("first add = %v", res)
	}
	if res := s.AddBan(1, 2); res != BanAlreadyPresent {
		t.Errorf("duplicate add = %v", res)
	}
	if !s.InBanList(1, 2) {
		t.Error("2 should be banned")
	}
	if s.InBanList(2, 1) {
		t.Error("ban is one-directional")
	}
	for i := int64(3); i < 3+49; i++ {
		if res := s.AddBan(1, i); res != BanAdded {
			t.Fatalf("add %d = %v", i, res)
		}
	}
	if res := s.AddBan(1, 1000); res != BanAtLimit {
		t.Errorf("over-cap add = %v", res)
	}
	if got := len(s.BanList(1)); got != 50 {
		t.Errorf("ban list size = %d, want 50", got)
	}
	if !s.RemoveBan(1, 2) {
		t.Error("remove should report presence")
	}
	if s.RemoveBan(1, 2) {
		t.Error("second remove should report absence")
	}
	if got := len(s.BanList(1)); got != 49 {
		t.Errorf("ban list size after remove = %d", got)
	}
}

func TestRecentOpponents(t *testing.T) {
	s := newTestStore(t)
	s.PushOpponents([]int64{1, 2, 3})
	got := s.RecentOpponents(1)
	if len(got) != 2 {
		t.Fatalf("opponents = %v", got)
	}
	// A repeat opponent moves to the tail.
	s.PushOpponents([]int64{1, 2})
	got = s.RecentOpponents(1)
	if len(got) != 2 || got[len(got)-1] != 2 {
		t.Errorf("repeat should move to tail: %v", got)
	}
	// Capacity 10, oldest evicted from the front.
	for other := int64(100); other < 111; other++ {
		s.PushOpponents([]int64{1, other})
	}
	got = s.RecentOpponents(1)
	if len(got) != 10 {
		t.Errorf("capacity = %d, want 10", len(got))
	}
	for _, id := range got {
		if id == 3 {
			t.Error("oldest entry should have been evicted")
		}
	}
}

func TestPlayedBitmap(t *testing.T) {
	s := newTestStore(t)
	set := testSet("p1", 8)
	s.AddSet(set)
	s.AddActive("p1")
	s.MarkPlayed([]int64{1, 2}, "p1", []int{0, 3})
	if got := s.CountPlayed(1, "p1"); got != 2 {
		t.Errorf("count = %d", got)
	}
	played, ok := s.Played(1, "p1")
	if !ok {
		t.Fatal("bitmap missing")
	}
	if !played.IsSet(0) || !played.IsSet(3) || played.IsSet(1) {
		t.Errorf("wrong bits: %+v", played)
	}
	// Re-marking the same topic never shrinks the bitmap.
	s.MarkPlayed([]int64{1}, "p1", []int{3, 4})
	if got := s.CountPlayed(1, "p1"); got != 3 {
		t.Errorf("count after overlap = %d", got)
	}
	if got := s.TopicsRemaining(1, "p1"); got != 5 {
		t.Errorf("remaining = %d", got)
	}
}

func TestBlockedSetExhaustsPackage(t *testing.T) {
	s := newTestStore(t)
	s.AddSet(testSet("p1", 8))
	s.AddActive("p1")
	if !s.SetBlocked(1, "p1", true) {
		t.Error("block should change state")
	}
	if s.SetBlocked(1, "p1", true) {
		t.Error("double block should be a no-op")
	}
	if got := s.TopicsRemaining(1, "p1"); got != 0 {
		t.Errorf("blocked package remaining = %d, want 0", got)
	}
	if !s.SetBlocked(1, "p1", false) {
		t.Error("unblock should change state")
	}
	if got := s.TopicsRemaining(1, "p1"); got != 8 {
		t.Errorf("remaining after unblock = %d", got)
	}
}

func TestActiveSets(t *testing.T) {
	s := newTestStore(t)
	s.AddSet(testSet("a", 6))
	s.AddSet(testSet("b", 6))
	s.AddActive("a")
	s.AddActive("b")
	if got := s.ActiveSetIDs(); len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Errorf("active = %v", got)
	}
	s.RemoveActive("a")
	if s.IsActive("a") {
		t.Error("a should be inactive")
	}
	if !s.WasActive("a") {
		t.Error("was-active history must be kept")
	}
	// Every active id is also in the was-active history.
	for _, id := range s.ActiveSetIDs() {
		if !s.WasActive(id) {
			t.Errorf("active %s missing from was-active", id)
		}
	}
}

func TestReuploadTopicCountGuard(t *testing.T) {
	s := newTestStore(t)
	s.AddSet(testSet("x", 10))
	s.AddActive("x")
	if s.AddSet(testSet("x", 11)) {
		t.Error("re-upload with different topic count must be rejected")
	}
	if !s.AddSet(testSet("x", 10)) {
		t.Error("re-upload with matching topic count must be accepted")
	}
	// Never-active packages can change shape freely.
	s.AddSet(testSet("y", 10))
	if !s.AddSet(testSet("y", 12)) {
		t.Error("inactive package re-upload should be accepted")
	}
}

func TestSnapshots(t *testing.T) {
	s := newTestStore(t)
	s.SaveSnapshot(-100, []byte(`{"phase":"Question"}`))
	s.SaveSnapshot(-200, []byte(`{"phase":"AfterGame"}`))
	snaps := s.Snapshots()
	if len(snaps) != 2 {
		t.Fatalf("snapshots = %d", len(snaps))
	}
	if string(snaps[-100]) != `{"phase":"Question"}` {
		t.Errorf("snapshot blob = %s", snaps[-100])
	}
	s.DeleteSnapshot(-100)
	if len(s.Snapshots()) != 1 {
		t.Error("delete should remove exactly one snapshot")
	}
}

func TestGameChats(t *testing.T) {
	s := newTestStore(t)
	s.AddGameChat(-1)
	s.AddGameChat(-2)
	if got := s.GameChats(); len(got) != 2 {
		t.Errorf("chats = %v", got)
	}
	s.RemoveGameChat(-1)
	if got := s.GameChats(); len(got) != 1 || got[0] != -2 {
		t.Errorf("chats after remove = %v", got)
	}
}

func TestSetsSurviveReopen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.db")
	s, err := Open(path, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	s.AddSet(testSet("persisted", 7))
	s.Close()
	s2, err := Open(path, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	defer s2.Close()
	set, ok := s2.GetSet("persisted")
	if !ok || len(set.Topics) != 7 {
		t.Error("package cache not reloaded from disk")
	}
}
