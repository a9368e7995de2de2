package telegram

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/EgorKulikov/svoyak-bot/internal/metrics"
)

const (
	maxMessageLen = 4096
	sendTries     = 20
	retryGap      = time.Second
)

// Bot wraps a Client with the delivery policy: per-chat pacing, long
// message segmentation and retry with permanent-error classification.
type Bot struct {
	client *Client
	slots  *ChatLimiter
	logger zerolog.Logger
}

func NewBot(client *Client, logger zerolog.Logger) *Bot {
	return &Bot{
		client: client,
		slots:  NewChatLimiter(),
		logger: logger.With().Str("component", "bot").Logger(),
	}
}

// retry runs call up to sendTries times with a one second gap. A
// permanent error aborts immediately; exhausting the retries on a
// transient error is a protocol violation and panics.
func (b *Bot) retry(ctx context.Context, op string, call func() error) bool {
	for try := 0; try < sendTries; try++ {
		err := call()
		if err == nil {
			return true
		}
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Permanent() {
			b.logger.Error().Err(err).Str("op", op).Msg("permanent error, giving up")
			metrics.IncSendGaveUp()
			return false
		}
		b.logger.Error().Err(err).Str("op", op).Msg("request failed")
		metrics.IncSendRetry()
		select {
		case <-time.After(retryGap):
		case <-ctx.Done():
			return false
		}
	}
	panic("telegram: retries exhausted for " + op)
}

// splitMessage cuts text at the last newline within the length budget,
// falling back to a hard cut. split is false when the text fits whole.
func splitMessage(text string) (head, tail string, split bool) {
	runes := []rune(text)
	if len(runes) <= maxMessageLen {
		return text, "", false
	}
	for i := maxMessageLen - 1; i >= 0; i-- {
		if runes[i] == '\n' {
			return string(runes[:i]), string(runes[i+1:]), true
		}
	}
	return string(runes[:maxMessageLen]), string(runes[maxMessageLen:]), true
}

// Send delivers text to the chat, splitting long messages, and returns
// the message id. A split send reports id 0. ok is false when the
// platform rejected the message permanently.
func (b *Bot) Send(ctx context.Context, chat int64, text string, keyboard Keyboard) (int64, bool) {
	head, tail, split := splitMessage(text)
	if split {
		if _, ok := b.Send(ctx, chat, head, keyboard); !ok {
			return 0, false
		}
		_, ok := b.Send(ctx, chat, tail, keyboard)
		return 0, ok
	}
	b.slots.Wait(chat)
	b.slots.Block(chat)
	defer b.slots.Release(chat)
	var msg Message
	ok := b.retry(ctx, "sendMessage", func() error {
		var err error
		msg, err = b.client.SendMessage(ctx, chat, text, keyboard)
		return err
	})
	if !ok {
		return 0, false
	}
	metrics.IncMessageSent()
	return msg.MessageID, true
}

// TrySend delivers text on a best-effort basis from its own goroutine.
// It bypasses the per-chat pacing, so the caller accepts reordering
// against other traffic. Failures are logged and dropped.
func (b *Bot) TrySend(chat int64, text string) {
	go func() {
		remaining := text
		for remaining != "" {
			chunk := remaining
			head, tail, split := splitMessage(remaining)
			if split {
				chunk, remaining = head, tail
			} else {
				remaining = ""
			}
			for try := 0; try < sendTries; try++ {
				_, err := b.client.SendMessage(context.Background(), chat, chunk, KeyboardNone)
				if err == nil {
					metrics.IncMessageSent()
					break
				}
				var apiErr *APIError
				if errors.As(err, &apiErr) && apiErr.Permanent() {
					b.logger.Error().Err(err).Msg("dropping optional message")
					metrics.IncSendGaveUp()
					break
				}
				b.logger.Error().Err(err).Msg("optional send failed")
				metrics.IncSendRetry()
				time.Sleep(retryGap)
			}
			time.Sleep(retryGap)
		}
	}()
}

// TryEdit replaces a message's text on a best-effort basis from its own
// goroutine, bypassing the per-chat pacing.
func (b *Bot) TryEdit(chat, messageID int64, text string) {
	go func() {
		for try := 0; try < sendTries; try++ {
			err := b.client.EditMessageText(context.Background(), chat, messageID, text)
			if err == nil {
				return
			}
			var apiErr *APIError
			if errors.As(err, &apiErr) && apiErr.Permanent() {
				b.logger.Error().Err(err).Msg("dropping optional edit")
				metrics.IncSendGaveUp()
				return
			}
			b.logger.Error().Err(err).Msg("optional edit failed")
			metrics.IncSendRetry()
			time.Sleep(retryGap)
		}
	}()
}

// Edit replaces the text of a previously sent message.
func (b *Bot) Edit(ctx context.Context, chat, messageID int64, text string) {
	b.slots.Wait(chat)
	b.slots.Block(chat)
	defer b.slots.Release(chat)
	b.retry(ctx, "editMessageText", func() error {
		return b.client.EditMessageText(ctx, chat, messageID, text)
	})
}

// Kick removes the user from the chat, but only while their member
// status is plain "member". Admins and already-departed users are left
// alone.
func (b *Bot) Kick(ctx context.Context, chat, user int64) {
	b.slots.Wait(chat)
	b.slots.Block(chat)
	defer b.slots.Release(chat)
	var member ChatMember
	ok := b.retry(ctx, "getChatMember", func() error {
		var err error
		member, err = b.client.GetChatMember(ctx, chat, user)
		return err
	})
	if !ok || member.Status != "member" {
		return
	}
	b.retry(ctx, "banChatMember", func() error {
		return b.client.BanChatMember(ctx, chat, user)
	})
}

// CreateInviteLink makes a fresh invite link for the chat.
func (b *Bot) CreateInviteLink(ctx context.Context, chat int64) (string, bool) {
	b.slots.Wait(chat)
	b.slots.Block(chat)
	defer b.slots.Release(chat)
	var link ChatInviteLink
	ok := b.retry(ctx, "createChatInviteLink", func() error {
		var err error
		link, err = b.client.CreateChatInviteLink(ctx, chat)
		return err
	})
	return link.InviteLink, ok
}

// RevokeInviteLink invalidates a previously created invite link.
func (b *Bot) RevokeInviteLink(ctx context.Context, chat int64, link string) {
	b.slots.Wait(chat)
	b.slots.Block(chat)
	defer b.slots.Release(chat)
	b.retry(ctx, "revokeChatInviteLink", func() error {
		return b.client.RevokeChatInviteLink(ctx, chat, link)
	})
}

// AllPresent reports whether every listed user is a plain member of the
// chat.
func (b *Bot) AllPresent(ctx context.Context, chat int64, users []int64) bool {
	b.slots.Wait(chat)
	b.slots.Block(chat)
	defer b.slots.Release(chat)
	for _, user := range users {
		var member ChatMember
		ok := b.retry(ctx, "getChatMember", func() error {
			var err error
			member, err = b.client.GetChatMember(ctx, chat, user)
			return err
		})
		if !ok || member.Status != "member" {
			return false
		}
	}
	return true
}

// DownloadDocument fetches an uploaded document's contents. Documents
// without a file name or with a text mime type are refused.
func (b *Bot) DownloadDocument(ctx context.Context, doc Document) (string, string, bool) {
	if doc.FileName == "" || strings.HasPrefix(doc.MimeType, "text") {
		return "", "", false
	}
	var file File
	ok := b.retry(ctx, "getFile", func() error {
		var err error
		file, err = b.client.GetFile(ctx, doc.FileID)
		return err
	})
	if !ok {
		return "", "", false
	}
	content, err := b.client.DownloadFile(ctx, file.FilePath)
	if err != nil {
		b.logger.Error().Err(err).Str("file", doc.FileName).Msg("download failed")
		return "", "", false
	}
	return doc.FileName, content, true
}
