package game

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/EgorKulikov/svoyak-bot/internal/pack"
	"github.com/EgorKulikov/svoyak-bot/internal/store"
	"github.com/EgorKulikov/svoyak-bot/internal/telegram"
)

const (
	pauseTimeout       = 600 * time.Second
	afterGameTimeout   = 60 * time.Second
	intermission       = 8 * time.Second
	preGameStep        = 60 * time.Second
	firstThinking      = 15 * time.Second
	successiveThinking = 10 * time.Second
	preGame            = 15 * time.Second
	answerTimeout      = 30 * time.Second
)

// Messenger is the outbound surface the match needs; *telegram.Bot
// implements it, tests substitute a fake.
type Messenger interface {
	Send(ctx context.Context, chat int64, text string, keyboard telegram.Keyboard) (int64, bool)
	TrySend(chat int64, text string)
	Edit(ctx context.Context, chat, messageID int64, text string)
	Kick(ctx context.Context, chat, user int64)
	RevokeInviteLink(ctx context.Context, chat int64, link string)
	AllPresent(ctx context.Context, chat int64, users []int64) bool
}

// StatusUpdate is what a match reports back to the supervisor.
type StatusUpdate struct {
	ChatID  int64
	Status  string
	Ended   bool
	Aborted bool
}

type event struct {
	msg     *telegram.Message
	timerID uint64
}

// FSM runs one match. All state mutation happens on the Run goroutine;
// the mailbox is an unbounded FIFO carrying both routed chat messages
// and timer fires, so producers never block on a busy match. A
// monotonically increasing stateID gates stale timer fires.
type FSM struct {
	game     *Game
	set      *pack.Set
	store    *store.Store
	playBot  Messenger
	schedBot Messenger
	status   chan<- StatusUpdate
	logger   zerolog.Logger

	mu    sync.Mutex
	queue []event
	wake  chan struct{}

	timer   *time.Timer
	stateID uint64
	aborted bool
}

func NewFSM(g *Game, set *pack.Set, st *store.Store, playBot, schedBot Messenger,
	status chan<- StatusUpdate, logger zerolog.Logger) *FSM {
	return &FSM{
		game:     g,
		set:      set,
		store:    st,
		playBot:  playBot,
		schedBot: schedBot,
		status:   status,
		logger:   logger.With().Str("component", "game").Int64("chat", g.ChatID).Logger(),
		wake:     make(chan struct{}, 1),
	}
}

// Deliver routes a play-chat message into the match. It never blocks.
func (f *FSM) Deliver(msg telegram.Message) {
	f.push(event{msg: &msg})
}

// push appends to the mailbox and wakes the Run loop.
func (f *FSM) push(ev event) {
	f.mu.Lock()
	f.queue = append(f.queue, ev)
	f.mu.Unlock()
	select {
	case f.wake <- struct{}{}:
	default:
	}
}

func (f *FSM) pop() (event, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.queue) == 0 {
		return event{}, false
	}
	ev := f.queue[0]
	f.queue = f.queue[1:]
	return ev, true
}

// Run drives the match until its epilogue completes. It first rewrites
// a restored phase into its paused counterpart, then serves the mailbox.
func (f *FSM) Run(ctx context.Context) {
	f.processStartingState(ctx)
	f.save()
	for {
		ev, ok := f.pop()
		if !ok {
			select {
			case <-f.wake:
			case <-ctx.Done():
				return
			}
			continue
		}
		if ev.msg != nil {
			f.processMessage(ctx, *ev.msg)
			continue
		}
		if ev.timerID != f.stateID {
			continue
		}
		if f.advance(ctx) {
			f.status <- StatusUpdate{ChatID: f.game.ChatID, Ended: true, Aborted: f.aborted}
			return
		}
		f.save()
	}
}

func (f *FSM) save() {
	f.store.SaveSnapshot(f.game.ChatID, f.game.EncodeSnapshot())
}

func (f *FSM) scheduleTimeout(d time.Duration) {
	if f.timer != nil {
		f.timer.Stop()
	}
	f.stateID++
	id := f.stateID
	f.timer = time.AfterFunc(d, func() {
		f.push(event{timerID: id})
	})
}

// fireTimer queues an immediate fire for the current state id.
func (f *FSM) fireTimer() {
	f.push(event{timerID: f.stateID})
}

func (f *FSM) send(ctx context.Context, text string) int64 {
	return f.sendWith(ctx, text, f.game.Phase.keyboard())
}

func (f *FSM) sendWith(ctx context.Context, text string, keyboard telegram.Keyboard) int64 {
	id, _ := f.playBot.Send(ctx, f.game.ChatID, text, keyboard)
	return id
}

func (f *FSM) currentTopic() *pack.Topic {
	return &f.set.Topics[f.game.Topics[f.game.CurrentTopic]]
}

func (f *FSM) currentQuestion() *pack.Question {
	return &f.currentTopic().Questions[f.game.CurrentQuestion]
}

func (f *FSM) questionText() string {
	return f.currentQuestion().DisplayQuestion(f.currentTopic().Name)
}

func (f *FSM) isLastTopic() bool {
	return f.game.CurrentTopic+1 == len(f.game.Topics)
}

func (f *FSM) userName(id int64) string {
	return f.game.Players[id].User.EscapedName()
}

func (f *FSM) playerIDs() []int64 {
	ids := make([]int64, 0, len(f.game.Players))
	for id := range f.game.Players {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (f *FSM) playerUsers() []store.User {
	users := make([]store.User, 0, len(f.game.Players))
	for _, id := range f.playerIDs() {
		users = append(users, f.game.Players[id].User)
	}
	return users
}

// Status renders the line shown by the scheduler's status command.
func (f *FSM) Status() string {
	progress := fmt.Sprintf("Тема %d/%d\n",
		min(f.game.CurrentTopic+1, len(f.game.Topics)), len(f.game.Topics))
	if f.game.Phase.Kind == PhaseAfterGame {
		progress = "\nИгра окончена\n"
	}
	return fmt.Sprintf("\nИгра по пакету %s\nИгроки: %s\n%s",
		f.set.Title, PlayerList(f.playerUsers()), progress)
}

func (f *FSM) updateStatus() {
	f.status <- StatusUpdate{ChatID: f.game.ChatID, Status: f.Status()}
}

// processStartingState rewrites a restored phase into its paused
// counterpart with a fresh timer. Fresh games start here too, in
// BeforeGame, without the restart notice.
func (f *FSM) processStartingState(ctx context.Context) {
	switch f.game.Phase.Kind {
	case PhaseBeforeGame:
		f.game.Phase.Paused = false
		f.scheduleTimeout(preGameStep)
	case PhaseQuestion:
		f.endQuestion(ctx, true)
	case PhaseAnswer:
		f.incorrectAnswer(ctx, false, true)
	case PhaseAfterGame:
		f.scheduleTimeout(afterGameTimeout)
	default:
		f.game.Phase.Paused = true
		f.scheduleTimeout(pauseTimeout)
	}
	if f.game.Phase.Kind != PhaseBeforeGame {
		f.send(ctx, "Бот восстановлен после перезапуска. Он находится на паузе.")
	}
}

func (f *FSM) processMessage(ctx context.Context, msg telegram.Message) {
	if len(msg.NewChatMembers) > 0 {
		f.newChatMembers(ctx, msg.NewChatMembers)
		f.save()
		return
	}
	if msg.From == nil {
		return
	}
	from := msg.From.ID
	text := strings.TrimSpace(msg.Text)
	tokens := strings.Fields(text)
	if len(tokens) == 0 {
		return
	}
	command := strings.TrimPrefix(strings.ToLower(tokens[0]), "/")
	args := tokens[1:]

	if command == "abort" {
		f.endGame(ctx, true)
		f.save()
		return
	}
	if f.game.Phase.pausable() {
		switch {
		case (command == "pause" || command == "пауза") && !f.game.Phase.setPause(true):
			f.send(ctx, "Игра приостановлена")
			f.scheduleTimeout(pauseTimeout)
			f.save()
			return
		case (command == "continue" || command == "продолжить") && f.game.Phase.setPause(false):
			f.send(ctx, "Игра возобновлена")
			f.scheduleTimeout(intermission)
			f.save()
			return
		case f.game.Phase.Paused && (command == "adjust" || command == "исправить"):
			f.adjustScore(ctx, from, args)
			f.save()
			return
		}
	}

	switch f.game.Phase.Kind {
	case PhaseQuestion:
		if command == "+" && !f.game.Phase.answeredBy(from) && f.game.isPlayer(from) {
			messageID := f.game.Phase.MessageID
			f.game.Phase = Phase{
				Kind:      PhaseAnswer,
				MessageID: messageID,
				Answered:  f.game.Phase.Answered,
				Current:   from,
			}
			f.playBot.Edit(ctx, f.game.ChatID, messageID, fmt.Sprintf(
				"<b>Тема</b> %s\n<b>%d.</b> Вопрос скрыт",
				f.currentTopic().Name, f.currentQuestion().Cost))
			f.send(ctx, fmt.Sprintf("Ваш ответ, %s?", f.userName(from)))
			f.scheduleTimeout(answerTimeout)
		}
	case PhaseAnswer:
		if from != f.game.Phase.Current {
			break
		}
		if text == "+" {
			return
		}
		if f.currentQuestion().CheckAnswer(text) {
			current := f.game.Phase.Current
			messageID := f.game.Phase.MessageID
			f.game.Phase = Phase{
				Kind:     PhaseAfterQuestion,
				Answered: append(f.game.Phase.Answered, current),
				Correct:  &current,
			}
			f.playBot.Edit(ctx, f.game.ChatID, messageID, f.questionText())
			f.send(ctx, fmt.Sprintf("Это правильный ответ, %s\n%s",
				f.userName(current), f.currentQuestion().DisplayAnswers(true)))
			f.scheduleTimeout(intermission)
		} else {
			f.incorrectAnswer(ctx, false, false)
		}
	case PhaseAfterQuestion:
		if len(args) != 0 {
			break
		}
		correct := f.game.Phase.Correct
		switch {
		case (command == "yes" || command == "да") && f.game.Phase.answeredBy(from) &&
			(correct == nil || *correct != from):
			user := from
			f.game.Phase.Correct = &user
		case (command == "no" || command == "нет") && correct != nil && *correct == from:
			f.game.Phase.Correct = nil
		default:
			f.save()
			return
		}
		f.send(ctx, fmt.Sprintf("Принято, %s", f.userName(from)))
		if f.game.Phase.Paused {
			f.scheduleTimeout(pauseTimeout)
		} else {
			f.scheduleTimeout(intermission)
		}
	case PhaseAfterGame:
		f.scheduleTimeout(afterGameTimeout)
	}
	f.save()
}

func (f *FSM) adjustScore(ctx context.Context, from int64, args []string) {
	if len(args) != 1 {
		f.send(ctx, "Неверное число аргументов")
		return
	}
	by, err := strconv.Atoi(args[0])
	if err != nil || by > 10000 || by < -10000 || by%10 != 0 {
		f.send(ctx, "Некорректное число очков")
		return
	}
	player, ok := f.game.Players[from]
	if !ok {
		return
	}
	player.Score += by
	f.send(ctx, fmt.Sprintf("Новое количество очков у %s - %d", f.userName(from), player.Score))
	f.updateStatus()
}

func (f *FSM) newChatMembers(ctx context.Context, users []telegram.User) {
	if f.game.Phase.Kind != PhaseBeforeGame {
		for _, user := range users {
			if !f.game.isPlayer(user.ID) && !f.game.isSpectator(user.ID) {
				f.playBot.Kick(ctx, f.game.ChatID, user.ID)
			}
		}
		return
	}
	for _, user := range users {
		if player, ok := f.game.Players[user.ID]; ok {
			player.Present = true
			continue
		}
		if !f.game.isSpectator(user.ID) {
			f.playBot.Kick(ctx, f.game.ChatID, user.ID)
		}
	}
	for _, player := range f.game.Players {
		if !player.Present {
			return
		}
	}
	paused := f.game.Phase.Paused
	f.game.Phase = Phase{Kind: PhaseBeforeGame, Paused: paused, MinutesLeft: 1}
	f.send(ctx, "Игра скоро начнется")
	if paused {
		f.scheduleTimeout(pauseTimeout)
	} else {
		f.scheduleTimeout(preGame)
	}
}

// endQuestion closes the open question and reveals the answer with no
// one acknowledged.
func (f *FSM) endQuestion(ctx context.Context, pause bool) {
	f.game.Phase = Phase{Kind: PhaseAfterQuestion, Paused: pause, Answered: f.game.Phase.Answered}
	f.send(ctx, f.currentQuestion().DisplayAnswers(false))
	if pause {
		f.scheduleTimeout(pauseTimeout)
	} else {
		f.scheduleTimeout(intermission)
	}
}

// incorrectAnswer records a failed attempt and either reopens the
// question for the remaining players or closes it when everyone has
// tried (or a forced stop was requested).
func (f *FSM) incorrectAnswer(ctx context.Context, timeout, forceStop bool) {
	messageID := f.game.Phase.MessageID
	current := f.game.Phase.Current
	answered := append(f.game.Phase.Answered, current)
	restart := !forceStop && len(answered) != len(f.game.Players)
	f.game.Phase = Phase{Kind: PhaseQuestion, MessageID: messageID, Answered: answered}
	f.playBot.Edit(ctx, f.game.ChatID, messageID, f.questionText())
	reason := "Это неправильный ответ"
	if timeout {
		reason = "Время вышло"
	}
	f.sendWith(ctx, fmt.Sprintf("%s, %s", reason, f.userName(current)), telegram.KeyboardPlus)
	if restart {
		f.scheduleTimeout(successiveThinking)
	} else {
		f.fireTimer()
	}
}

func (f *FSM) askQuestion(ctx context.Context) {
	f.game.Phase = Phase{Kind: PhaseBeforeQuestion}
	f.send(ctx, "Внимание, вопрос")
	f.scheduleTimeout(time.Second)
}

func (f *FSM) showScore(ctx context.Context) {
	header := "Текущий"
	if f.game.CurrentTopic == len(f.game.Topics) {
		header = "Финальный"
	}
	f.send(ctx, fmt.Sprintf("<b>%s счёт:</b>\n%s", header, scoreTable(f.game.Players)))
	f.scheduleTimeout(intermission)
}

// endGame enters the terminal phase: settle ratings (unless aborted),
// announce the outcome to every source chat and start the grace timer.
func (f *FSM) endGame(ctx context.Context, aborted bool) {
	f.aborted = aborted
	f.game.Phase = Phase{Kind: PhaseAfterGame}
	f.send(ctx, "Игра окончена!")
	outcome := "Игра отменена"
	if !aborted {
		outcome = f.settle()
	}
	f.scheduleTimeout(afterGameTimeout)
	for _, source := range f.game.SourceChats {
		f.schedBot.TrySend(source, fmt.Sprintf(
			"<b>Игра завершена.</b>\nПакет: %s\n%s", f.set.Title, outcome))
	}
}

// settle commits the scores to the rating system and renders the final
// table: score, new displayed rating and its signed change.
func (f *FSM) settle() string {
	scores := make(map[int64]int, len(f.game.Players))
	oldRatings := make(map[int64]int64, len(f.game.Players))
	for id, player := range f.game.Players {
		scores[id] = player.Score
		user, ok := f.store.GetUser(id)
		if !ok {
			panic(fmt.Sprintf("game: player %d has no record", id))
		}
		oldRatings[id] = user.Rating
	}
	f.store.CommitGameResults(scores)
	type row struct {
		name      string
		score     int
		newRating int64
		delta     int64
	}
	rows := make([]row, 0, len(f.game.Players))
	for id, player := range f.game.Players {
		user, _ := f.store.GetUser(id)
		rows = append(rows, row{
			name:      player.User.EscapedName(),
			score:     player.Score,
			newRating: store.DisplayRating(user.Rating),
			delta:     store.DisplayRating(user.Rating) - store.DisplayRating(oldRatings[id]),
		})
	}
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].score > rows[j].score })
	var b strings.Builder
	for _, r := range rows {
		fmt.Fprintf(&b, "%s %d %d (%+d)\n", r.name, r.score, r.newRating, r.delta)
	}
	return b.String()
}

// advance handles a timer fire for the current phase. It reports true
// once the epilogue has run and the actor should stop.
func (f *FSM) advance(ctx context.Context) bool {
	if f.game.Phase.setPause(false) {
		f.send(ctx, "Игра возобновлена")
		f.scheduleTimeout(intermission)
		return false
	}
	switch f.game.Phase.Kind {
	case PhaseBeforeGame:
		f.advanceBeforeGame(ctx)
	case PhaseBeforeTopic:
		f.advanceBeforeTopic(ctx)
	case PhaseBeforeFirstQuestion:
		f.askQuestion(ctx)
	case PhaseBeforeQuestion:
		id := f.sendWith(ctx, f.questionText(), telegram.KeyboardNone)
		f.game.Phase = Phase{Kind: PhaseQuestion, MessageID: id, Answered: []int64{}}
		f.scheduleTimeout(firstThinking)
	case PhaseQuestion:
		f.endQuestion(ctx, false)
	case PhaseAnswer:
		f.incorrectAnswer(ctx, true, false)
	case PhaseAfterQuestion:
		f.settleQuestion(ctx)
	case PhaseSpecialScore:
		f.askQuestion(ctx)
	case PhaseAfterGame:
		f.epilogue(ctx)
		return true
	}
	return false
}

func (f *FSM) advanceBeforeGame(ctx context.Context) {
	minutes := f.game.Phase.MinutesLeft
	if !f.playBot.AllPresent(ctx, f.game.ChatID, f.playerIDs()) {
		// The countdown never opens the game while someone is absent;
		// it holds at one minute until everyone joins.
		if minutes > 1 {
			minutes--
		}
		f.game.Phase = Phase{Kind: PhaseBeforeGame, MinutesLeft: minutes}
		f.send(ctx, fmt.Sprintf(
			"Некоторые игроки всё еще не зашли в чат. Через %d %s игра начнется автоматически",
			minutes, minuteWord(minutes)))
		f.scheduleTimeout(preGameStep)
		return
	}
	f.game.Phase = Phase{Kind: PhaseBeforeTopic}
	var list strings.Builder
	list.WriteString("<b>Список тем:</b>\n")
	for _, topic := range f.game.Topics {
		fmt.Fprintf(&list, "%d. %s\n", topic+1, f.set.Topics[topic].Name)
	}
	f.send(ctx, fmt.Sprintf("Игра началась. Игроки:\n%s\n\n%s\n%s\n%s\n\n",
		PlayerList(f.playerUsers()), f.set.Title, f.set.Description, list.String()))
	f.scheduleTimeout(intermission)
}

func (f *FSM) advanceBeforeTopic(ctx context.Context) {
	if f.game.CurrentTopic == len(f.game.Topics) {
		f.endGame(ctx, false)
		return
	}
	f.game.Phase = Phase{Kind: PhaseBeforeFirstQuestion}
	remaining := len(f.game.Topics) - f.game.CurrentTopic
	header := "Последняя тема"
	if remaining != 1 {
		header = "Осталось " + pack.TopicWord(remaining)
	}
	f.send(ctx, fmt.Sprintf("%s\n<b>Тема %d:</b> %s",
		header, f.game.Topics[f.game.CurrentTopic]+1, f.currentTopic().Name))
	f.scheduleTimeout(intermission)
}

// settleQuestion applies the question's cost: the acknowledged player
// gains it and ends the walk, everyone before them in answer order
// loses it. Then the cursor moves on.
func (f *FSM) settleQuestion(ctx context.Context) {
	cost := f.currentQuestion().Cost
	correct := f.game.Phase.Correct
	for _, id := range f.game.Phase.Answered {
		if correct != nil && *correct == id {
			f.game.Players[id].Score += cost
			break
		}
		f.game.Players[id].Score -= cost
	}
	f.updateStatus()
	questionsInTopic := len(f.currentTopic().Questions)
	f.game.CurrentQuestion++
	switch {
	case f.game.CurrentQuestion == questionsInTopic:
		f.game.CurrentQuestion = 0
		f.game.CurrentTopic++
		f.updateStatus()
		f.game.Phase = Phase{Kind: PhaseBeforeTopic}
		f.showScore(ctx)
	case f.isLastTopic() && f.game.CurrentQuestion+2 >= questionsInTopic:
		f.game.Phase = Phase{Kind: PhaseSpecialScore}
		f.showScore(ctx)
	default:
		f.askQuestion(ctx)
	}
}

// epilogue cleans up the finished match: drop the snapshot, invalidate
// the invite link, clear the room.
func (f *FSM) epilogue(ctx context.Context) {
	f.store.DeleteSnapshot(f.game.ChatID)
	f.playBot.RevokeInviteLink(ctx, f.game.ChatID, f.game.InviteLink)
	for _, id := range f.playerIDs() {
		f.playBot.Kick(ctx, f.game.ChatID, id)
	}
	for _, id := range f.game.Spectators {
		f.playBot.Kick(ctx, f.game.ChatID, id)
	}
}
