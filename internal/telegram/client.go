package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/EgorKulikov/svoyak-bot/internal/metrics"
)

const (
	defaultAPIBase = "https://api.telegram.org"
	longPollSec    = 50

	// Bot API global ceiling is 30 messages per second across chats.
	globalRateLimit = 30
)

// Client is a low-level Bot API client. It serializes request bodies,
// unwraps the common response envelope and paces all calls under the
// global Bot API rate limit. Retrying is the caller's concern.
type Client struct {
	token   string
	base    string
	httpc   *http.Client
	limiter *rate.Limiter
	logger  zerolog.Logger
}

func NewClient(token string, logger zerolog.Logger) *Client {
	return &Client{
		token:   token,
		base:    defaultAPIBase,
		httpc:   &http.Client{Timeout: (longPollSec + 10) * time.Second},
		limiter: rate.NewLimiter(rate.Limit(globalRateLimit), globalRateLimit),
		logger:  logger.With().Str("component", "telegram").Logger(),
	}
}

type apiResponse struct {
	OK          bool            `json:"ok"`
	Result      json.RawMessage `json:"result"`
	Description string          `json:"description"`
}

// call posts payload to the named Bot API method and unmarshals the
// result envelope into out (which may be nil).
func (c *Client) call(ctx context.Context, method string, payload any, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return &APIError{Method: method, Description: err.Error()}
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return &APIError{Method: method, Description: err.Error()}
	}
	url := c.base + "/bot" + c.token + "/" + method
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return &APIError{Method: method, Description: err.Error()}
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.httpc.Do(req)
	if err != nil {
		return &APIError{Method: method, Description: err.Error()}
	}
	defer resp.Body.Close()
	var envelope apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return &APIError{Method: method, Description: err.Error()}
	}
	if !envelope.OK {
		return &APIError{Method: method, Description: envelope.Description}
	}
	if out != nil {
		if err := json.Unmarshal(envelope.Result, out); err != nil {
			return &APIError{Method: method, Description: err.Error()}
		}
	}
	return nil
}

type getUpdatesRequest struct {
	Offset         int64    `json:"offset"`
	Timeout        int      `json:"timeout"`
	AllowedUpdates []string `json:"allowed_updates"`
}

// Updates long-polls getUpdates and streams incoming messages until ctx
// is cancelled. Non-message updates are skipped; poll errors are logged
// and retried after a short pause.
func (c *Client) Updates(ctx context.Context) <-chan Message {
	out := make(chan Message)
	go func() {
		defer close(out)
		var offset int64
		for {
			var updates []Update
			err := c.call(ctx, "getUpdates", getUpdatesRequest{
				Offset:         offset,
				Timeout:        longPollSec,
				AllowedUpdates: []string{"message"},
			}, &updates)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				c.logger.Error().Err(err).Msg("poll failed")
				select {
				case <-time.After(time.Second):
				case <-ctx.Done():
					return
				}
				continue
			}
			for _, update := range updates {
				offset = update.UpdateID + 1
				if update.Message == nil {
					continue
				}
				metrics.IncUpdateReceived()
				select {
				case out <- *update.Message:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out
}

type sendMessageRequest struct {
	ChatID      int64  `json:"chat_id"`
	Text        string `json:"text"`
	ParseMode   string `json:"parse_mode"`
	ReplyMarkup any    `json:"reply_markup,omitempty"`
}

func (c *Client) SendMessage(ctx context.Context, chat int64, text string, keyboard Keyboard) (Message, error) {
	var msg Message
	err := c.call(ctx, "sendMessage", sendMessageRequest{
		ChatID:      chat,
		Text:        text,
		ParseMode:   "HTML",
		ReplyMarkup: keyboard.replyMarkup(),
	}, &msg)
	return msg, err
}

type editMessageTextRequest struct {
	ChatID    int64  `json:"chat_id"`
	MessageID int64  `json:"message_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode"`
}

func (c *Client) EditMessageText(ctx context.Context, chat, messageID int64, text string) error {
	return c.call(ctx, "editMessageText", editMessageTextRequest{
		ChatID:    chat,
		MessageID: messageID,
		Text:      text,
		ParseMode: "HTML",
	}, nil)
}

type chatMemberRequest struct {
	ChatID int64 `json:"chat_id"`
	UserID int64 `json:"user_id"`
}

func (c *Client) GetChatMember(ctx context.Context, chat, user int64) (ChatMember, error) {
	var member ChatMember
	err := c.call(ctx, "getChatMember", chatMemberRequest{ChatID: chat, UserID: user}, &member)
	return member, err
}

func (c *Client) BanChatMember(ctx context.Context, chat, user int64) error {
	return c.call(ctx, "banChatMember", chatMemberRequest{ChatID: chat, UserID: user}, nil)
}

type chatRequest struct {
	ChatID int64 `json:"chat_id"`
}

func (c *Client) CreateChatInviteLink(ctx context.Context, chat int64) (ChatInviteLink, error) {
	var link ChatInviteLink
	err := c.call(ctx, "createChatInviteLink", chatRequest{ChatID: chat}, &link)
	return link, err
}

type revokeInviteLinkRequest struct {
	ChatID     int64  `json:"chat_id"`
	InviteLink string `json:"invite_link"`
}

func (c *Client) RevokeChatInviteLink(ctx context.Context, chat int64, link string) error {
	return c.call(ctx, "revokeChatInviteLink", revokeInviteLinkRequest{
		ChatID:     chat,
		InviteLink: link,
	}, nil)
}

type getFileRequest struct {
	FileID string `json:"file_id"`
}

func (c *Client) GetFile(ctx context.Context, fileID string) (File, error) {
	var file File
	err := c.call(ctx, "getFile", getFileRequest{FileID: fileID}, &file)
	return file, err
}

// DownloadFile fetches the contents of a file previously resolved via
// GetFile.
func (c *Client) DownloadFile(ctx context.Context, filePath string) (string, error) {
	if filePath == "" {
		return "", errors.New("telegram: empty file path")
	}
	url := c.base + "/file/bot" + c.token + "/" + filePath
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	resp, err := c.httpc.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", &APIError{Method: "downloadFile", Description: resp.Status}
	}
	content, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	return string(content), nil
}
