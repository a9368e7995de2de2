package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
)

func testClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c := NewClient("TOKEN", zerolog.Nop())
	c.base = srv.URL
	return c
}

func TestClientCallEnvelope(t *testing.T) {
	var gotPath string
	var gotBody sendMessageRequest
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Write([]byte(`{"ok":true,"result":{"message_id":42,"chat":{"id":7,"type":"private"}}}`))
	})
	msg, err := c.SendMessage(context.Background(), 7, "<b>привет</b>", KeyboardPlus)
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if gotPath != "/botTOKEN/sendMessage" {
		t.Errorf("path = %q", gotPath)
	}
	if gotBody.ChatID != 7 || gotBody.Text != "<b>привет</b>" || gotBody.ParseMode != "HTML" {
		t.Errorf("request body = %+v", gotBody)
	}
	if gotBody.ReplyMarkup == nil {
		t.Error("keyboard markup missing from request")
	}
	if msg.MessageID != 42 {
		t.Errorf("message id = %d", msg.MessageID)
	}
}

func TestClientCallFailure(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"ok":false,"description":"Bad Request: chat not found"}`))
	})
	_, err := c.SendMessage(context.Background(), 7, "hi", KeyboardNone)
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error type = %T", err)
	}
	if !apiErr.Permanent() {
		t.Error("chat-not-found should classify permanent")
	}
	if apiErr.Method != "sendMessage" {
		t.Errorf("method = %q", apiErr.Method)
	}
}

func TestBotSendGivesUpOnPermanentError(t *testing.T) {
	calls := 0
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Write([]byte(`{"ok":false,"description":"Bad Request: not enough rights"}`))
	})
	bot := NewBot(c, zerolog.Nop())
	id, ok := bot.Send(context.Background(), 7, "hi", KeyboardNone)
	if ok || id != 0 {
		t.Errorf("send = (%d, %v), want gave-up", id, ok)
	}
	if calls != 1 {
		t.Errorf("permanent error retried %d times", calls)
	}
}

func TestBotKickSkipsNonMembers(t *testing.T) {
	var methods []string
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		methods = append(methods, r.URL.Path)
		w.Write([]byte(`{"ok":true,"result":{"status":"left"}}`))
	})
	bot := NewBot(c, zerolog.Nop())
	bot.Kick(context.Background(), -100, 7)
	if len(methods) != 1 || methods[0] != "/botTOKEN/getChatMember" {
		t.Errorf("calls = %v, want a single member probe", methods)
	}
}

func TestDownloadDocumentRefusesTextFiles(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected for a refused document")
	})
	bot := NewBot(c, zerolog.Nop())
	if _, _, ok := bot.DownloadDocument(context.Background(), Document{
		FileID:   "f",
		FileName: "notes.txt",
		MimeType: "text/plain",
	}); ok {
		t.Error("text documents must be refused")
	}
	if _, _, ok := bot.DownloadDocument(context.Background(), Document{
		FileID:   "f",
		MimeType: "application/json",
	}); ok {
		t.Error("nameless documents must be refused")
	}
}

func TestDownloadDocument(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/botTOKEN/getFile":
			w.Write([]byte(`{"ok":true,"result":{"file_id":"f","file_path":"documents/pack.json"}}`))
		case "/file/botTOKEN/documents/pack.json":
			w.Write([]byte(`{"id":"x"}`))
		default:
			t.Errorf("unexpected path %q", r.URL.Path)
		}
	})
	bot := NewBot(c, zerolog.Nop())
	name, content, ok := bot.DownloadDocument(context.Background(), Document{
		FileID:   "f",
		FileName: "pack.json",
		MimeType: "application/json",
	})
	if !ok || name != "pack.json" || content != `{"id":"x"}` {
		t.Errorf("download = (%q, %q, %v)", name, content, ok)
	}
}
