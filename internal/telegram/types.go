// Package telegram implements a minimal Bot API client: long-poll
// update stream, a handful of request builders dispatched by method
// name, per-chat send pacing and retrying high-level operations.
package telegram

import "strings"

// Update is one element of a getUpdates response.
type Update struct {
	UpdateID int64    `json:"update_id"`
	Message  *Message `json:"message"`
}

// Message is an incoming or just-sent chat message.
type Message struct {
	MessageID      int64     `json:"message_id"`
	From           *User     `json:"from"`
	Chat           Chat      `json:"chat"`
	Text           string    `json:"text"`
	Document       *Document `json:"document"`
	NewChatMembers []User    `json:"new_chat_members"`
}

type Chat struct {
	ID    int64  `json:"id"`
	Type  string `json:"type"`
	Title string `json:"title"`
}

// IsPrivate reports whether the chat is a one-on-one conversation.
func (c Chat) IsPrivate() bool {
	return c.Type == "private"
}

type User struct {
	ID        int64  `json:"id"`
	IsBot     bool   `json:"is_bot"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Username  string `json:"username"`
}

// DisplayName joins first and last name the way Telegram shows them.
func (u User) DisplayName() string {
	if u.LastName == "" {
		return u.FirstName
	}
	return u.FirstName + " " + u.LastName
}

type Document struct {
	FileID   string `json:"file_id"`
	FileName string `json:"file_name"`
	MimeType string `json:"mime_type"`
}

type ChatMember struct {
	Status string `json:"status"`
}

type ChatInviteLink struct {
	InviteLink string `json:"invite_link"`
}

type File struct {
	FileID   string `json:"file_id"`
	FilePath string `json:"file_path"`
}

// Keyboard selects one of the fixed reply-keyboard presets.
type Keyboard int

const (
	KeyboardNone Keyboard = iota
	KeyboardRemove
	KeyboardPlus
	KeyboardYesNoPause
	KeyboardYesNoContinue
)

type keyboardButton struct {
	Text string `json:"text"`
}

type replyKeyboardMarkup struct {
	Keyboard       [][]keyboardButton `json:"keyboard"`
	ResizeKeyboard bool               `json:"resize_keyboard"`
}

type replyKeyboardRemove struct {
	RemoveKeyboard bool `json:"remove_keyboard"`
}

var (
	plusRow          = []string{"+"}
	yesNoPauseRow    = []string{"да", "нет", "пауза"}
	yesNoContinueRow = []string{"да", "нет", "продолжить"}
)

// replyMarkup returns the JSON-serializable markup for the preset, nil
// for KeyboardNone.
func (k Keyboard) replyMarkup() any {
	switch k {
	case KeyboardRemove:
		return replyKeyboardRemove{RemoveKeyboard: true}
	case KeyboardPlus:
		return singleRowKeyboard(plusRow)
	case KeyboardYesNoPause:
		return singleRowKeyboard(yesNoPauseRow)
	case KeyboardYesNoContinue:
		return singleRowKeyboard(yesNoContinueRow)
	default:
		return nil
	}
}

func singleRowKeyboard(keys []string) replyKeyboardMarkup {
	row := make([]keyboardButton, len(keys))
	for i, key := range keys {
		row[i] = keyboardButton{Text: key}
	}
	return replyKeyboardMarkup{Keyboard: [][]keyboardButton{row}, ResizeKeyboard: true}
}

// APIError is a Bot API failure, either a transport error or an "ok":
// false response.
type APIError struct {
	Method      string
	Description string
}

func (e *APIError) Error() string {
	return "telegram: " + e.Method + ": " + e.Description
}

// Permanent reports whether retrying cannot help.
func (e *APIError) Permanent() bool {
	return strings.Contains(e.Description, "Bad Request")
}
