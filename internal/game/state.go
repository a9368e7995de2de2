// Package game runs one quiz match per actor: phase machine, timers,
// scoring and the persisted snapshot that survives a restart.
package game

import (
	"encoding/json"

	"github.com/EgorKulikov/svoyak-bot/internal/store"
	"github.com/EgorKulikov/svoyak-bot/internal/telegram"
)

// PhaseKind enumerates the match phases.
type PhaseKind string

const (
	PhaseBeforeGame          PhaseKind = "before_game"
	PhaseBeforeTopic         PhaseKind = "before_topic"
	PhaseBeforeFirstQuestion PhaseKind = "before_first_question"
	PhaseBeforeQuestion      PhaseKind = "before_question"
	PhaseQuestion            PhaseKind = "question"
	PhaseAnswer              PhaseKind = "answer"
	PhaseAfterQuestion       PhaseKind = "after_question"
	PhaseSpecialScore        PhaseKind = "special_score"
	PhaseAfterGame           PhaseKind = "after_game"
)

// Phase is the current state of the match plus its payload. Which
// fields are meaningful depends on Kind: MinutesLeft belongs to
// BeforeGame, MessageID and Answered to Question and Answer, Current
// to Answer, Correct to AfterQuestion.
type Phase struct {
	Kind        PhaseKind `json:"kind"`
	Paused      bool      `json:"paused,omitempty"`
	MinutesLeft int       `json:"minutes_left,omitempty"`
	MessageID   int64     `json:"message_id,omitempty"`
	Answered    []int64   `json:"answered,omitempty"`
	Current     int64     `json:"current,omitempty"`
	Correct     *int64    `json:"correct,omitempty"`
}

func (p Phase) keyboard() telegram.Keyboard {
	switch p.Kind {
	case PhaseBeforeQuestion:
		return telegram.KeyboardPlus
	case PhaseQuestion:
		return telegram.KeyboardNone
	case PhaseAfterQuestion:
		if p.Paused {
			return telegram.KeyboardYesNoContinue
		}
		return telegram.KeyboardYesNoPause
	default:
		return telegram.KeyboardRemove
	}
}

func (p Phase) pausable() bool {
	switch p.Kind {
	case PhaseQuestion, PhaseAnswer, PhaseAfterGame:
		return false
	default:
		return true
	}
}

// setPause flips the pause flag on a pausable phase and reports the
// previous value.
func (p *Phase) setPause(to bool) bool {
	if !p.pausable() {
		return false
	}
	was := p.Paused
	p.Paused = to
	return was
}

func (p Phase) answeredBy(user int64) bool {
	for _, id := range p.Answered {
		if id == user {
			return true
		}
	}
	return false
}

// Player is one participant's in-game record.
type Player struct {
	User    store.User `json:"user"`
	Score   int        `json:"score"`
	Present bool       `json:"present"`
}

// Game is the persisted match snapshot. Every mutation is written back
// to the store so a crashed process can resume it.
type Game struct {
	ChatID          int64             `json:"chat_id"`
	SourceChats     []int64           `json:"source_chats"`
	Phase           Phase             `json:"phase"`
	SetID           string            `json:"set_id"`
	Topics          []int             `json:"topics"`
	CurrentTopic    int               `json:"current_topic"`
	CurrentQuestion int               `json:"current_question"`
	Players         map[int64]*Player `json:"players"`
	Spectators      []int64           `json:"spectators"`
	InviteLink      string            `json:"invite_link"`
}

// NewGame builds a fresh match waiting for its players to join the
// play room.
func NewGame(chatID int64, sourceChats []int64, setID string, topics []int,
	players map[int64]store.User, spectators []int64, inviteLink string) *Game {
	g := &Game{
		ChatID:      chatID,
		SourceChats: sourceChats,
		Phase:       Phase{Kind: PhaseBeforeGame, MinutesLeft: 5},
		SetID:       setID,
		Topics:      topics,
		Players:     make(map[int64]*Player, len(players)),
		Spectators:  spectators,
		InviteLink:  inviteLink,
	}
	for id, user := range players {
		g.Players[id] = &Player{User: user}
	}
	return g
}

func (g *Game) isPlayer(user int64) bool {
	_, ok := g.Players[user]
	return ok
}

func (g *Game) isSpectator(user int64) bool {
	for _, id := range g.Spectators {
		if id == user {
			return true
		}
	}
	return false
}

// EncodeSnapshot serializes the game for the store.
func (g *Game) EncodeSnapshot() []byte {
	blob, err := json.Marshal(g)
	if err != nil {
		panic("game: marshal snapshot: " + err.Error())
	}
	return blob
}

// DecodeSnapshot restores a game from a stored blob.
func DecodeSnapshot(blob []byte) (*Game, error) {
	var g Game
	if err := json.Unmarshal(blob, &g); err != nil {
		return nil, err
	}
	return &g, nil
}
