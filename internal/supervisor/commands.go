package supervisor

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/EgorKulikov/svoyak-bot/internal/pack"
	"github.com/EgorKulikov/svoyak-bot/internal/store"
	"github.com/EgorKulikov/svoyak-bot/internal/telegram"
)

const (
	defaultRatingTop = 20
	maxRatingTop     = 200
)

// splitCommand normalizes a chat message into a command word and its
// arguments: lowercased, optional leading slash and @botname suffix
// stripped.
func splitCommand(text string) (string, []string, bool) {
	tokens := strings.Fields(strings.TrimSpace(text))
	if len(tokens) == 0 {
		return "", nil, false
	}
	command := strings.ToLower(tokens[0])
	if pos := strings.Index(command, "@"); pos >= 0 {
		command = command[:pos]
	}
	command = strings.TrimPrefix(command, "/")
	return command, tokens[1:], true
}

// processManagerMessage handles the privileged surface. It reports
// whether the message was consumed; unrecognized commands fall through
// to the regular private handler.
func (s *Supervisor) processManagerMessage(ctx context.Context, msg telegram.Message) bool {
	chat := msg.Chat.ID
	if msg.Document != nil {
		s.uploadPackage(ctx, chat, *msg.Document)
		return true
	}
	command, args, ok := splitCommand(msg.Text)
	if !ok {
		return false
	}
	switch command {
	case "выключение":
		s.beginShutdown()
		return true
	case "включить":
		s.togglePackage(chat, args, true)
		return true
	case "выключить":
		s.togglePackage(chat, args, false)
		return true
	case "темы":
		if len(args) == 0 {
			s.schedBot.TrySend(chat, "Пакет не указан")
			return true
		}
		set, ok := s.store.GetSet(args[0])
		if !ok {
			s.schedBot.TrySend(chat, fmt.Sprintf("Неизвестный пакет - %s", args[0]))
			return true
		}
		var list strings.Builder
		list.WriteString("<b>Список тем:</b>")
		for i, topic := range set.Topics {
			fmt.Fprintf(&list, "\n<b>%d.</b> %s", i+1, topic.Name)
		}
		s.schedBot.TrySend(chat, list.String())
		return true
	}
	return false
}

func (s *Supervisor) togglePackage(chat int64, args []string, activate bool) {
	if len(args) == 0 {
		s.schedBot.TrySend(chat, "Пакет не указан")
		return
	}
	setID := args[0]
	if _, ok := s.store.GetSet(setID); !ok {
		s.schedBot.TrySend(chat, fmt.Sprintf("Неизвестный пакет - %s", setID))
		return
	}
	active := s.store.IsActive(setID)
	switch {
	case activate && active:
		s.schedBot.TrySend(chat, "Пакет уже включен")
	case activate:
		s.store.AddActive(setID)
		s.schedBot.TrySend(chat, fmt.Sprintf("Пакет включен - %s", setID))
	case !active:
		s.schedBot.TrySend(chat, "Пакет уже выключен")
	default:
		s.store.RemoveActive(setID)
		s.schedBot.TrySend(chat, fmt.Sprintf("Пакет выключен - %s", setID))
	}
}

func (s *Supervisor) uploadPackage(ctx context.Context, chat int64, doc telegram.Document) {
	fileName, content, ok := s.schedBot.DownloadDocument(ctx, doc)
	if !ok {
		s.schedBot.TrySend(chat, "Не удалось скачать")
		return
	}
	set, err := pack.Parse(fileName, content)
	if err != nil {
		s.logger.Warn().Err(err).Str("file", fileName).Msg("package rejected")
		s.schedBot.TrySend(chat, "Не удалось распарсить")
		return
	}
	if !s.store.AddSet(set) {
		s.schedBot.TrySend(chat, "Пакет уже был активным с другим числом тем")
		return
	}
	s.schedBot.TrySend(chat, "Пакет загружен")
}

func (s *Supervisor) processPrivateMessage(ctx context.Context, msg telegram.Message) {
	if msg.From == nil {
		return
	}
	if msg.From.ID == s.cfg.ManagerID && s.processManagerMessage(ctx, msg) {
		return
	}
	user := msg.From.ID
	command, args, ok := splitCommand(msg.Text)
	if !ok {
		return
	}
	switch command {
	case "help", "помощь", "start":
		s.schedBot.TrySend(user, privateHelp)
	case "register", "+":
		s.store.UpsertUser(user, msg.From.DisplayName())
		s.matcher.Enqueue(user)
	case "unregister", "-":
		s.matcher.Dequeue(user)
	case "list", "список":
		s.sendSetList(user)
	case "status", "статус":
		s.sendStatus(user, false)
	case "rating", "рейтинг":
		s.sendRating(user, args)
	case "block":
		s.blockSet(user, *msg.From, args, true)
	case "unblock":
		s.blockSet(user, *msg.From, args, false)
	case "played":
		s.sendPlayedWith(user)
	case "banlist":
		s.sendBanList(user)
	case "ban":
		s.banByIndex(user, args)
	case "unban":
		s.unbanByIndex(user, args)
	}
}

func (s *Supervisor) processGroupMessage(ctx context.Context, msg telegram.Message) {
	chat := msg.Chat.ID
	if chat == s.cfg.MainChatID || msg.From == nil {
		return
	}
	user := msg.From.ID
	command, args, ok := splitCommand(msg.Text)
	if !ok {
		return
	}
	proposal := s.proposals[chat]
	switch command {
	case "help", "помощь":
		s.schedBot.TrySend(chat, groupHelp)
	case "game", "игра":
		if s.shuttingDown {
			s.sendShuttingDown(chat)
			return
		}
		if proposal != nil {
			s.schedBot.TrySend(chat, "Существует активная игра")
			return
		}
		proposal = newProposal(chat, s.expiries)
		s.proposals[chat] = proposal
		s.schedBot.TrySend(chat, proposal.render(s.store))
	case "set", "пакет":
		if proposal == nil {
			s.schedBot.TrySend(chat, "Игра не начата")
			return
		}
		if len(args) == 0 {
			s.schedBot.TrySend(chat, "Укажите пакет")
			return
		}
		if !s.store.IsActive(args[0]) {
			s.schedBot.TrySend(chat, fmt.Sprintf("Пакет не обнаружен - %s", args[0]))
			return
		}
		proposal.SetPackage(args[0])
		s.schedBot.TrySend(chat, proposal.render(s.store))
	case "topics", "темы":
		s.setProposalNumber(chat, proposal, args, 1, maxTopicCount, (*Proposal).SetTopicCount)
	case "minplayers", "минигроков":
		if proposal == nil {
			s.schedBot.TrySend(chat, "Игра не начата")
			return
		}
		s.setProposalNumber(chat, proposal, args, 1, proposal.maxPlayers, (*Proposal).SetMinPlayers)
	case "maxplayers", "максигроков":
		if proposal == nil {
			s.schedBot.TrySend(chat, "Игра не начата")
			return
		}
		s.setProposalNumber(chat, proposal, args,
			max(proposal.minPlayers, len(proposal.players)), maxPartySize, (*Proposal).SetMaxPlayers)
	case "register", "+":
		if s.shuttingDown {
			s.sendShuttingDown(chat)
			return
		}
		if proposal == nil {
			proposal = newProposal(chat, s.expiries)
			s.proposals[chat] = proposal
		}
		if _, in := proposal.players[user]; !in && len(proposal.players) == proposal.maxPlayers {
			s.schedBot.TrySend(chat, "Все места заняты")
			return
		}
		proposal.AddPlayer(user, s.store.UpsertUser(user, msg.From.DisplayName()))
		s.schedBot.TrySend(chat, proposal.render(s.store))
	case "spectator", "зритель":
		if s.shuttingDown {
			s.sendShuttingDown(chat)
			return
		}
		if proposal == nil {
			s.schedBot.TrySend(chat, "Игра не начата")
			return
		}
		proposal.AddSpectator(user, s.store.UpsertUser(user, msg.From.DisplayName()))
		s.schedBot.TrySend(chat, proposal.render(s.store))
	case "unregister", "-":
		if proposal == nil {
			s.schedBot.TrySend(chat, "Игра не начата")
			return
		}
		proposal.Remove(user)
		s.schedBot.TrySend(chat, proposal.render(s.store))
	case "abort":
		if proposal == nil {
			s.schedBot.TrySend(chat, "Игра не начата")
			return
		}
		proposal.cancelTimer()
		delete(s.proposals, chat)
		s.schedBot.TrySend(chat, "Игра отменена")
	case "start", "старт":
		if s.shuttingDown {
			s.sendShuttingDown(chat)
			return
		}
		if proposal == nil {
			s.schedBot.TrySend(chat, "Игра не начата")
			return
		}
		if len(proposal.players) < proposal.minPlayers {
			s.schedBot.TrySend(chat, "Недостаточно игроков")
			return
		}
		proposal.cancelTimer()
		delete(s.proposals, chat)
		s.tryStartGame(ctx, proposal.startData())
	case "list", "список":
		s.sendSetList(chat)
	case "status", "статус":
		s.sendStatus(chat, proposal != nil)
	case "rating", "рейтинг":
		s.sendRating(chat, args)
	case "block":
		s.blockSet(chat, *msg.From, args, true)
	case "unblock":
		s.blockSet(chat, *msg.From, args, false)
	}
}

// setProposalNumber validates a bounded numeric argument and applies it
// through the given mutator.
func (s *Supervisor) setProposalNumber(chat int64, proposal *Proposal, args []string,
	low, high int, set func(*Proposal, int)) {
	if proposal == nil {
		s.schedBot.TrySend(chat, "Игра не начата")
		return
	}
	if len(args) == 0 {
		s.schedBot.TrySend(chat, "Укажите число")
		return
	}
	number, err := strconv.Atoi(args[0])
	if err != nil || number < low || number > high {
		s.schedBot.TrySend(chat, fmt.Sprintf("Некорректное число - %s", args[0]))
		return
	}
	set(proposal, number)
	s.schedBot.TrySend(chat, proposal.render(s.store))
}

func (s *Supervisor) sendSetList(chat int64) {
	var b strings.Builder
	b.WriteString("<b>Список пакетов:</b>\n")
	for _, id := range s.store.ActiveSetIDs() {
		if set, ok := s.store.GetSet(id); ok {
			fmt.Fprintf(&b, "<b>%s</b> - %s\n", id, set.Title)
		}
	}
	s.schedBot.TrySend(chat, b.String())
}

func (s *Supervisor) sendStatus(chat int64, proposalOpen bool) {
	var b strings.Builder
	if proposalOpen {
		b.WriteString("Открыта регистрация\n")
	}
	if len(s.games) == 0 {
		b.WriteString("Игр не идет")
	} else {
		rooms := make([]int64, 0, len(s.games))
		for room := range s.games {
			rooms = append(rooms, room)
		}
		sortIDs(rooms)
		for _, room := range rooms {
			b.WriteString(s.games[room].status)
		}
	}
	s.schedBot.TrySend(chat, b.String())
}

func (s *Supervisor) sendRating(chat int64, args []string) {
	top := defaultRatingTop
	if len(args) > 0 {
		if n, err := strconv.Atoi(args[0]); err == nil {
			top = min(n, maxRatingTop)
		}
	}
	s.schedBot.TrySend(chat, fmt.Sprintf("<b>Рейтинг игроков:</b>\n%s",
		store.RenderRatingList(s.store.RatingList(top))))
}

func (s *Supervisor) blockSet(chat int64, from telegram.User, args []string, block bool) {
	if len(args) == 0 {
		s.schedBot.TrySend(chat, "Укажите пакет")
		return
	}
	setID := args[0]
	if !s.store.IsActive(setID) {
		s.schedBot.TrySend(chat, fmt.Sprintf("Пакет не обнаружен - %s", setID))
		return
	}
	name := pack.Escape(from.DisplayName())
	changed := s.store.SetBlocked(from.ID, setID, block)
	switch {
	case block && changed:
		s.schedBot.TrySend(chat, fmt.Sprintf(
			"Пакет %s заблокирован для пользователя %s", setID, name))
	case block:
		s.schedBot.TrySend(chat, fmt.Sprintf(
			"Пакет %s уже был заблокирован для пользователя %s", setID, name))
	case changed:
		s.schedBot.TrySend(chat, fmt.Sprintf(
			"Пакет %s разблокирован для пользователя %s", setID, name))
	default:
		s.schedBot.TrySend(chat, fmt.Sprintf(
			"Пакет %s не был заблокирован для пользователя %s", setID, name))
	}
}

// sendPlayedWith lists recent opponents, most recent first; the shown
// index is what the ban command takes.
func (s *Supervisor) sendPlayedWith(user int64) {
	opponents := s.store.RecentOpponents(user)
	if len(opponents) == 0 {
		s.schedBot.TrySend(user, "Вы ни с кем не играли")
		return
	}
	var b strings.Builder
	b.WriteString("Вы играли с:")
	for i := len(opponents) - 1; i >= 0; i-- {
		fmt.Fprintf(&b, "\n<b>%d</b>. %s", len(opponents)-i, s.displayName(opponents[i]))
	}
	s.schedBot.TrySend(user, b.String())
}

func (s *Supervisor) sendBanList(user int64) {
	banned := s.store.BanList(user)
	if len(banned) == 0 {
		s.schedBot.TrySend(user, "Список заблокированных пуст")
		return
	}
	var b strings.Builder
	b.WriteString("Вы заблокировали:")
	for i, id := range banned {
		fmt.Fprintf(&b, "\n<b>%d</b>. %s", i+1, s.displayName(id))
	}
	s.schedBot.TrySend(user, b.String())
}

func (s *Supervisor) banByIndex(user int64, args []string) {
	if len(args) == 0 {
		s.schedBot.TrySend(user, "Укажите номер в списке игроков, с которыми вы недавно играли")
		return
	}
	opponents := s.store.RecentOpponents(user)
	number, err := strconv.Atoi(args[0])
	if err != nil || number < 1 || number > len(opponents) {
		s.schedBot.TrySend(user, fmt.Sprintf("Некорректное число - %s", args[0]))
		return
	}
	toBan := opponents[len(opponents)-number]
	switch s.store.AddBan(user, toBan) {
	case store.BanAdded:
		s.schedBot.TrySend(user, fmt.Sprintf(
			"Пользователь %s заблокирован", s.displayName(toBan)))
	case store.BanAlreadyPresent:
		s.schedBot.TrySend(user, fmt.Sprintf(
			"Пользователь %s уже находится в вашем бан-листе", s.displayName(toBan)))
	case store.BanAtLimit:
		s.schedBot.TrySend(user, "Вы достигли лимита на размер бан-листа")
	}
}

func (s *Supervisor) unbanByIndex(user int64, args []string) {
	if len(args) == 0 {
		s.schedBot.TrySend(user, "Укажите номер в списке игроков, которых вы заблокировали")
		return
	}
	banned := s.store.BanList(user)
	number, err := strconv.Atoi(args[0])
	if err != nil || number < 1 || number > len(banned) {
		s.schedBot.TrySend(user, fmt.Sprintf("Некорректное число - %s", args[0]))
		return
	}
	toUnban := banned[number-1]
	s.store.RemoveBan(user, toUnban)
	s.schedBot.TrySend(user, fmt.Sprintf(
		"Пользователь %s разблокирован", s.displayName(toUnban)))
}

func (s *Supervisor) displayName(user int64) string {
	if data, ok := s.store.GetUser(user); ok {
		return data.EscapedName()
	}
	return strconv.FormatInt(user, 10)
}
