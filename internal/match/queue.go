package match

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/EgorKulikov/svoyak-bot/internal/metrics"
	"github.com/EgorKulikov/svoyak-bot/internal/store"
	"github.com/EgorKulikov/svoyak-bot/internal/telegram"
)

const (
	tickInterval        = time.Second
	threePlayerPatience = 60 * time.Second
	queueExpiry         = 10 * time.Minute
	queueTopicCount     = 6
)

type matcherMsgKind int

const (
	matcherEnter matcherMsgKind = iota
	matcherLeave
	matcherShutdown
)

type matcherMsg struct {
	kind matcherMsgKind
	user int64
}

type queueEntry struct {
	user      int64
	messageID int64
	enteredAt time.Time
	activeAt  time.Time
}

// candidate is a queue entry with its tolerance window computed for the
// current tick. The window widens by one rating point per 100 ms
// waited.
type candidate struct {
	user              int64
	rating            int64
	minRating         int64
	maxRating         int64
	willPlayWithThree bool
}

// Matcher is the matchmaking queue actor. It owns the waiting list,
// drives a one second tick that searches for compatible parties, and
// emits assembled matches on Out.
type Matcher struct {
	store  *store.Store
	bot    *telegram.Bot
	logger zerolog.Logger
	inbox  chan matcherMsg
	out    chan Match
	queue  []queueEntry
}

func NewMatcher(st *store.Store, bot *telegram.Bot, logger zerolog.Logger) *Matcher {
	return &Matcher{
		store:  st,
		bot:    bot,
		logger: logger.With().Str("component", "matcher").Logger(),
		inbox:  make(chan matcherMsg, 16),
		out:    make(chan Match),
	}
}

// Out delivers assembled matches. It is closed on shutdown.
func (m *Matcher) Out() <-chan Match {
	return m.out
}

// Enqueue adds the user to the queue; re-entry refreshes the activity
// stamp but keeps the original enter time, so the tolerance keeps
// growing.
func (m *Matcher) Enqueue(user int64) {
	m.inbox <- matcherMsg{kind: matcherEnter, user: user}
}

// Dequeue removes the user from the queue. Idempotent.
func (m *Matcher) Dequeue(user int64) {
	m.inbox <- matcherMsg{kind: matcherLeave, user: user}
}

// Shutdown stops the actor; Out is closed once the loop drains.
func (m *Matcher) Shutdown() {
	m.inbox <- matcherMsg{kind: matcherShutdown}
}

// Run processes queue commands and the periodic tick until Shutdown or
// ctx cancellation.
func (m *Matcher) Run(ctx context.Context) {
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()
	defer close(m.out)
	for {
		select {
		case msg := <-m.inbox:
			switch msg.kind {
			case matcherEnter:
				m.userEntered(ctx, msg.user)
			case matcherLeave:
				m.userLeft(msg.user)
			case matcherShutdown:
				return
			}
		case <-ticker.C:
			m.findGames(ctx)
			m.expireStale()
		case <-ctx.Done():
			return
		}
	}
}

func queueMessageText(inQueue int) string {
	return fmt.Sprintf("Ищем игру. Всего игроков в очереди <b>%d</b>", inQueue)
}

func (m *Matcher) userEntered(ctx context.Context, user int64) {
	now := time.Now()
	if at, ok := m.findInQueue(user); ok {
		m.queue[at].activeAt = now
		if id, ok := m.bot.Send(ctx, user, queueMessageText(len(m.queue)), telegram.KeyboardNone); ok {
			m.queue[at].messageID = id
		}
		return
	}
	id, ok := m.bot.Send(ctx, user, "Вы добавлены в очередь", telegram.KeyboardNone)
	if !ok {
		return
	}
	m.queue = append(m.queue, queueEntry{user: user, messageID: id, enteredAt: now, activeAt: now})
	m.updateMessages()
	metrics.SetQueueWaiting(len(m.queue))
}

func (m *Matcher) userLeft(user int64) {
	at, ok := m.findInQueue(user)
	if !ok {
		m.bot.TrySend(user, "Вы не находились в очереди")
		return
	}
	m.queue = append(m.queue[:at], m.queue[at+1:]...)
	m.bot.TrySend(user, "Вы вышли из очереди")
	m.updateMessages()
	metrics.SetQueueWaiting(len(m.queue))
}

func (m *Matcher) findInQueue(user int64) (int, bool) {
	for i, entry := range m.queue {
		if entry.user == user {
			return i, true
		}
	}
	return 0, false
}

// updateMessages refreshes every waiter's queue message with the
// current queue size.
func (m *Matcher) updateMessages() {
	for _, entry := range m.queue {
		m.bot.TryEdit(entry.user, entry.messageID, queueMessageText(len(m.queue)))
	}
}

// findGames tries to assemble at most one match per tick: a 4-player
// party first, then 3-player once nobody in the queue is fresh.
func (m *Matcher) findGames(ctx context.Context) {
	if len(m.queue) < 3 {
		return
	}
	now := time.Now()
	candidates := make([]candidate, len(m.queue))
	minPartySize := 3
	for i, entry := range m.queue {
		waited := now.Sub(entry.enteredAt)
		user, ok := m.store.GetUser(entry.user)
		if !ok {
			panic(fmt.Sprintf("match: queued user %d has no record", entry.user))
		}
		delta := int64(waited / (100 * time.Millisecond))
		candidates[i] = candidate{
			user:              entry.user,
			rating:            user.Rating,
			minRating:         user.Rating - delta,
			maxRating:         user.Rating + delta,
			willPlayWithThree: waited >= threePlayerPatience,
		}
		if waited < threePlayerPatience {
			minPartySize = 4
		}
	}
	for size := 4; size >= minPartySize; size-- {
		match, ok := m.findParty(candidates, size)
		if !ok {
			continue
		}
		for user := range match.Data.Players {
			if at, found := m.findInQueue(user); found {
				m.queue = append(m.queue[:at], m.queue[at+1:]...)
			}
		}
		m.updateMessages()
		metrics.SetQueueWaiting(len(m.queue))
		select {
		case m.out <- match:
		case <-ctx.Done():
		}
		return
	}
}

// expireStale drops entries inactive for over ten minutes.
func (m *Matcher) expireStale() {
	now := time.Now()
	kept := m.queue[:0]
	removed := false
	for _, entry := range m.queue {
		if now.Sub(entry.activeAt) > queueExpiry {
			m.bot.TrySend(entry.user, "Игра не найдена за 10 минут")
			removed = true
			continue
		}
		kept = append(kept, entry)
	}
	m.queue = kept
	if removed {
		m.updateMessages()
		metrics.SetQueueWaiting(len(m.queue))
	}
}

// partyFinder searches for a party of the wanted size by depth-first
// enumeration in ascending queue order.
type partyFinder struct {
	store      *store.Store
	candidates []candidate
	partySize  int
	chosen     []*candidate
}

func (m *Matcher) findParty(candidates []candidate, size int) (Match, bool) {
	finder := &partyFinder{store: m.store, candidates: candidates, partySize: size}
	return finder.search(size, len(candidates))
}

// compatible requires the mutual tolerance windows to cover both
// ratings and neither side to have the other ban-listed.
func (f *partyFinder) compatible(a, b *candidate) bool {
	return a.minRating <= b.rating && b.rating <= a.maxRating &&
		b.minRating <= a.rating && a.rating <= b.maxRating &&
		!f.store.InBanList(a.user, b.user) &&
		!f.store.InBanList(b.user, a.user)
}

func (f *partyFinder) search(left, limit int) (Match, bool) {
	if left == 0 {
		return f.assemble()
	}
	if left > limit {
		return Match{}, false
	}
	for next := left - 1; next < limit; next++ {
		entry := &f.candidates[next]
		if f.partySize == 3 && !entry.willPlayWithThree {
			continue
		}
		good := true
		for _, chosen := range f.chosen {
			if !f.compatible(chosen, entry) {
				good = false
				break
			}
		}
		if !good {
			continue
		}
		f.chosen = append(f.chosen, entry)
		if match, ok := f.search(left-1, next); ok {
			return match, true
		}
		f.chosen = f.chosen[:len(f.chosen)-1]
	}
	return Match{}, false
}

// assemble checks that some package can serve the chosen party.
func (f *partyFinder) assemble() (Match, bool) {
	data := StartData{
		TopicCount: queueTopicCount,
		Players:    make(map[int64]store.User, len(f.chosen)),
		Spectators: make(map[int64]store.User),
	}
	for _, entry := range f.chosen {
		user, ok := f.store.GetUser(entry.user)
		if !ok {
			return Match{}, false
		}
		data.SourceChats = append(data.SourceChats, entry.user)
		data.Players[entry.user] = user
	}
	setID, topics, ok := FindTopics(f.store, &data)
	if !ok {
		return Match{}, false
	}
	return Match{Data: data, SetID: setID, Topics: topics}, true
}
