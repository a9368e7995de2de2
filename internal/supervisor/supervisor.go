// Package supervisor multiplexes both bot update streams, the
// matchmaking queue, proposal expiries and per-game status reports, and
// owns the play-room registry plus the live game map.
package supervisor

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/EgorKulikov/svoyak-bot/internal/events"
	"github.com/EgorKulikov/svoyak-bot/internal/game"
	"github.com/EgorKulikov/svoyak-bot/internal/match"
	"github.com/EgorKulikov/svoyak-bot/internal/metrics"
	"github.com/EgorKulikov/svoyak-bot/internal/store"
	"github.com/EgorKulikov/svoyak-bot/internal/telegram"
)

// Bot is the outbound surface the supervisor and its games need;
// *telegram.Bot implements it.
type Bot interface {
	game.Messenger
	CreateInviteLink(ctx context.Context, chat int64) (string, bool)
	DownloadDocument(ctx context.Context, doc telegram.Document) (string, string, bool)
}

// Config carries the deployment identities the routing rules key on.
type Config struct {
	ManagerID  int64
	DummyID    int64
	MainChatID int64
}

type runningGame struct {
	fsm    *game.FSM
	status string
}

// Supervisor is the sole mutator of the room registry, the game map and
// the proposal map; everything runs on the Run goroutine.
type Supervisor struct {
	cfg      Config
	store    *store.Store
	schedBot Bot
	playBot  Bot
	matcher  *match.Matcher
	events   *events.Publisher
	logger   zerolog.Logger

	status       chan game.StatusUpdate
	expiries     chan proposalExpiry
	shutdownCh   chan struct{}
	shutdownOnce sync.Once

	playChats    []int64
	games        map[int64]*runningGame
	proposals    map[int64]*Proposal
	shuttingDown bool
}

func New(cfg Config, st *store.Store, schedBot, playBot Bot, matcher *match.Matcher,
	pub *events.Publisher, logger zerolog.Logger) *Supervisor {
	return &Supervisor{
		cfg:       cfg,
		store:     st,
		schedBot:  schedBot,
		playBot:   playBot,
		matcher:   matcher,
		events:    pub,
		logger:    logger.With().Str("component", "supervisor").Logger(),
		status:     make(chan game.StatusUpdate, 64),
		expiries:   make(chan proposalExpiry, 16),
		shutdownCh: make(chan struct{}),
		games:      make(map[int64]*runningGame),
		proposals:  make(map[int64]*Proposal),
	}
}

// Shutdown asks the supervisor to refuse new games and drain, same as
// the manager's shutdown command. Safe to call from any goroutine.
func (s *Supervisor) Shutdown() {
	s.shutdownOnce.Do(func() { close(s.shutdownCh) })
}

// Run loads the room registry, resumes persisted games and serves the
// five event streams until shutdown completes.
func (s *Supervisor) Run(ctx context.Context, schedMsgs, playMsgs <-chan telegram.Message) {
	s.playChats = s.store.GameChats()
	for chat, blob := range s.store.Snapshots() {
		g, err := game.DecodeSnapshot(blob)
		if err != nil {
			panic(fmt.Sprintf("supervisor: corrupt snapshot for chat %d: %v", chat, err))
		}
		s.logger.Info().Int64("chat", chat).Str("set", g.SetID).Msg("resuming game")
		s.spawnGame(ctx, g)
	}
	matches := s.matcher.Out()
	shutdownCh := s.shutdownCh
	for {
		select {
		case <-shutdownCh:
			shutdownCh = nil
			s.beginShutdown()
		case msg, ok := <-schedMsgs:
			if !ok {
				schedMsgs = nil
				continue
			}
			s.processSchedulerMessage(ctx, msg)
		case msg, ok := <-playMsgs:
			if !ok {
				playMsgs = nil
				continue
			}
			s.processPlayMessage(ctx, msg)
		case update := <-s.status:
			s.processStatusUpdate(update)
		case expiry := <-s.expiries:
			s.processProposalExpiry(expiry)
		case m, ok := <-matches:
			if !ok {
				matches = nil
				continue
			}
			s.startGameWithTopics(ctx, &m.Data, m.SetID, m.Topics, true)
		case <-ctx.Done():
			return
		}
		if s.shuttingDown && len(s.games) == 0 {
			break
		}
	}
	s.schedBot.Send(ctx, s.cfg.ManagerID, "Бот выключен", telegram.KeyboardRemove)
}

func (s *Supervisor) processStatusUpdate(update game.StatusUpdate) {
	running, ok := s.games[update.ChatID]
	if !ok {
		return
	}
	if !update.Ended {
		running.status = update.Status
		return
	}
	delete(s.games, update.ChatID)
	metrics.SetGamesActive(len(s.games))
	if update.Aborted {
		metrics.IncGameAborted()
		s.events.GameAborted(update.ChatID)
	} else {
		metrics.IncGameFinished()
		s.events.GameFinished(update.ChatID)
	}
}

func (s *Supervisor) processProposalExpiry(expiry proposalExpiry) {
	proposal, ok := s.proposals[expiry.chat]
	if !ok || proposal.version != expiry.version {
		return
	}
	delete(s.proposals, expiry.chat)
	s.schedBot.TrySend(expiry.chat, "Игра отменена из-за отсутствия активности")
}

func (s *Supervisor) processSchedulerMessage(ctx context.Context, msg telegram.Message) {
	switch {
	case msg.Chat.IsPrivate():
		s.processPrivateMessage(ctx, msg)
	case msg.Chat.Type == "group" || msg.Chat.Type == "supergroup":
		s.processGroupMessage(ctx, msg)
	}
}

// processPlayMessage handles play-bot traffic: room enrollment from the
// dummy admin account, forwarding into live games, and evicting
// strangers from idle rooms.
func (s *Supervisor) processPlayMessage(ctx context.Context, msg telegram.Message) {
	chat := msg.Chat.ID
	if msg.From != nil && msg.From.ID == s.cfg.DummyID {
		switch strings.TrimSpace(msg.Text) {
		case "добавить":
			if s.enrolled(chat) {
				s.playBot.Send(ctx, chat, "Чат уже добавлен", telegram.KeyboardNone)
				return
			}
			s.playChats = append(s.playChats, chat)
			s.store.AddGameChat(chat)
			s.playBot.Send(ctx, chat, "Чат добавлен", telegram.KeyboardNone)
		case "удалить":
			if !s.unenroll(chat) {
				s.playBot.Send(ctx, chat, "Чат не в списке", telegram.KeyboardNone)
				return
			}
			s.store.RemoveGameChat(chat)
			s.playBot.Send(ctx, chat, "Чат удален", telegram.KeyboardNone)
		}
		return
	}
	if msg.Chat.IsPrivate() {
		s.playBot.TrySend(chat, "Если вы хотите играть в свою игру, добавьте @SvoyakSchedulerBot")
		return
	}
	if msg.Chat.Type != "group" && msg.Chat.Type != "supergroup" {
		return
	}
	if !s.enrolled(chat) {
		s.playBot.TrySend(chat, "Если вы хотите играть в свою игру, добавьте @SvoyakSchedulerBot")
		return
	}
	if running, ok := s.games[chat]; ok {
		running.fsm.Deliver(msg)
		return
	}
	// Idle room: nobody belongs here.
	if len(msg.NewChatMembers) > 0 {
		for _, user := range msg.NewChatMembers {
			s.playBot.Kick(ctx, chat, user.ID)
		}
		return
	}
	if msg.From != nil && msg.Text != "" {
		s.playBot.Kick(ctx, chat, msg.From.ID)
	}
}

func (s *Supervisor) enrolled(chat int64) bool {
	for _, id := range s.playChats {
		if id == chat {
			return true
		}
	}
	return false
}

func (s *Supervisor) unenroll(chat int64) bool {
	for i, id := range s.playChats {
		if id == chat {
			s.playChats = append(s.playChats[:i], s.playChats[i+1:]...)
			return true
		}
	}
	return false
}

func (s *Supervisor) freeRoom() (int64, bool) {
	for _, chat := range s.playChats {
		if _, busy := s.games[chat]; !busy {
			return chat, true
		}
	}
	return 0, false
}

func (s *Supervisor) beginShutdown() {
	if s.shuttingDown {
		return
	}
	s.shuttingDown = true
	s.sendShuttingDown(s.cfg.MainChatID)
	s.matcher.Shutdown()
}

func (s *Supervisor) sendShuttingDown(chat int64) {
	s.schedBot.TrySend(chat,
		"Бот в ближайшее время будет перезагружен. Создание новых игр временно отключено.")
}

// tryStartGame runs topic selection for an explicit proposal start and
// refuses when no package fits the party.
func (s *Supervisor) tryStartGame(ctx context.Context, data *match.StartData) {
	setID, topics, ok := match.FindTopics(s.store, data)
	if !ok {
		for _, chat := range data.SourceChats {
			s.schedBot.TrySend(chat, "Недостаточно тем, которые бы не играли все игроки")
		}
		return
	}
	s.startGameWithTopics(ctx, data, setID, topics, false)
}

// startGameWithTopics binds the party to a free play room, persists the
// played topics and opponent history, fans out the invite link and
// spawns the game actor.
func (s *Supervisor) startGameWithTopics(ctx context.Context, data *match.StartData,
	setID string, topics []int, fromQueue bool) {
	room, ok := s.freeRoom()
	if !ok {
		for _, chat := range data.SourceChats {
			s.schedBot.TrySend(chat, "На текущий момент свободных комнат нет")
		}
		return
	}
	participants := make([]int64, 0, len(data.Players)+len(data.Spectators))
	playerIDs := make([]int64, 0, len(data.Players))
	for id := range data.Players {
		participants = append(participants, id)
		playerIDs = append(playerIDs, id)
	}
	for id := range data.Spectators {
		participants = append(participants, id)
	}
	sortIDs(participants)
	sortIDs(playerIDs)
	s.store.MarkPlayed(participants, setID, topics)
	s.store.PushOpponents(playerIDs)

	invite, ok := s.playBot.CreateInviteLink(ctx, room)
	if !ok {
		s.logger.Error().Int64("room", room).Msg("invite link refused")
		for _, chat := range data.SourceChats {
			s.schedBot.TrySend(chat, "Не удалось создать игровую комнату")
		}
		return
	}
	var mentions strings.Builder
	for _, id := range playerIDs {
		if mentions.Len() > 0 {
			mentions.WriteString(", ")
		}
		fmt.Fprintf(&mentions, "<a href=\"tg://user?id=%d\">%s</a>", id, data.Players[id].EscapedName())
	}
	for _, chat := range data.SourceChats {
		if fromQueue {
			s.schedBot.TrySend(chat, fmt.Sprintf(
				"Игра найдена! Для игры пройдите по ссылке: %s", invite))
		} else {
			s.schedBot.TrySend(chat, fmt.Sprintf(
				"%s - для игры пройдите по ссылке: %s", mentions.String(), invite))
		}
	}
	spectators := make([]int64, 0, len(data.Spectators))
	for id := range data.Spectators {
		spectators = append(spectators, id)
	}
	sortIDs(spectators)
	g := game.NewGame(room, data.SourceChats, setID, topics, data.Players, spectators, invite)
	s.store.SaveSnapshot(room, g.EncodeSnapshot())
	s.spawnGame(ctx, g)
	metrics.IncGameStarted()
	s.events.GameStarted(room, setID, playerIDs)
}

func (s *Supervisor) spawnGame(ctx context.Context, g *game.Game) {
	set, ok := s.store.GetSet(g.SetID)
	if !ok {
		panic(fmt.Sprintf("supervisor: game references unknown package %s", g.SetID))
	}
	fsm := game.NewFSM(g, set, s.store, s.playBot, s.schedBot, s.status, s.logger)
	s.games[g.ChatID] = &runningGame{fsm: fsm, status: fsm.Status()}
	metrics.SetGamesActive(len(s.games))
	go fsm.Run(ctx)
}

func sortIDs(ids []int64) {
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
}
