package supervisor

import (
	"fmt"
	"time"

	"github.com/EgorKulikov/svoyak-bot/internal/game"
	"github.com/EgorKulikov/svoyak-bot/internal/match"
	"github.com/EgorKulikov/svoyak-bot/internal/store"
)

const (
	proposalTimeout   = 5 * time.Minute
	defaultTopicCount = 6
	defaultMinPlayers = 3
	defaultMaxPlayers = 4
	maxTopicCount     = 20
	maxPartySize      = 20
)

// proposalExpiry fires when a proposal has seen no activity for five
// minutes. The version lets the supervisor ignore fires that raced with
// a later mutation.
type proposalExpiry struct {
	chat    int64
	version uint64
}

// Proposal is the pre-game configuration a group chat builds up before
// starting a match. Every mutation bumps the version and rearms the
// inactivity timer.
type Proposal struct {
	chatID     int64
	setID      string
	topicCount int
	minPlayers int
	maxPlayers int
	players    map[int64]store.User
	spectators map[int64]store.User

	version uint64
	timer   *time.Timer
	expired chan<- proposalExpiry
}

func newProposal(chat int64, expired chan<- proposalExpiry) *Proposal {
	p := &Proposal{
		chatID:     chat,
		topicCount: defaultTopicCount,
		minPlayers: defaultMinPlayers,
		maxPlayers: defaultMaxPlayers,
		players:    make(map[int64]store.User),
		spectators: make(map[int64]store.User),
		expired:    expired,
	}
	p.touch()
	return p
}

func (p *Proposal) cancelTimer() {
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
}

// touch rearms the inactivity timer under a fresh version.
func (p *Proposal) touch() {
	p.cancelTimer()
	p.version++
	expiry := proposalExpiry{chat: p.chatID, version: p.version}
	expired := p.expired
	p.timer = time.AfterFunc(proposalTimeout, func() {
		expired <- expiry
	})
}

func (p *Proposal) SetPackage(setID string) {
	p.setID = setID
	p.touch()
}

func (p *Proposal) SetTopicCount(count int) {
	p.topicCount = count
	p.touch()
}

func (p *Proposal) SetMinPlayers(minPlayers int) {
	p.minPlayers = minPlayers
	p.touch()
}

func (p *Proposal) SetMaxPlayers(maxPlayers int) {
	p.maxPlayers = maxPlayers
	p.touch()
}

// AddPlayer registers a player; a spectator entry for the same user is
// dropped.
func (p *Proposal) AddPlayer(user int64, data store.User) {
	delete(p.spectators, user)
	p.players[user] = data
	p.touch()
}

// AddSpectator registers a spectator; a player entry for the same user
// is dropped.
func (p *Proposal) AddSpectator(user int64, data store.User) {
	delete(p.players, user)
	p.spectators[user] = data
	p.touch()
}

func (p *Proposal) Remove(user int64) {
	delete(p.players, user)
	delete(p.spectators, user)
	p.touch()
}

// startData snapshots the proposal for the topic-selection step.
func (p *Proposal) startData() *match.StartData {
	players := make(map[int64]store.User, len(p.players))
	for id, user := range p.players {
		players[id] = user
	}
	spectators := make(map[int64]store.User, len(p.spectators))
	for id, user := range p.spectators {
		spectators[id] = user
	}
	return &match.StartData{
		SourceChats: []int64{p.chatID},
		SetID:       p.setID,
		TopicCount:  p.topicCount,
		Players:     players,
		Spectators:  spectators,
	}
}

// render shows the proposal state, refreshing names and ratings from
// the store first.
func (p *Proposal) render(st *store.Store) string {
	for id := range p.players {
		if user, ok := st.GetUser(id); ok {
			p.players[id] = user
		}
	}
	for id := range p.spectators {
		if user, ok := st.GetUser(id); ok {
			p.spectators[id] = user
		}
	}
	header := "Стандартная игра"
	if p.setID != "" {
		header = fmt.Sprintf("Игра по пакету %s", p.setID)
	}
	return fmt.Sprintf("%s\nТем - %d\nИгроков - %d-%d\nИгроки: %s\nЗрители: %s",
		header, p.topicCount, p.minPlayers, p.maxPlayers,
		game.PlayerList(userList(p.players)), game.PlayerList(userList(p.spectators)))
}

func userList(users map[int64]store.User) []store.User {
	ids := make([]int64, 0, len(users))
	for id := range users {
		ids = append(ids, id)
	}
	sortIDs(ids)
	res := make([]store.User, 0, len(ids))
	for _, id := range ids {
		res = append(res, users[id])
	}
	return res
}
