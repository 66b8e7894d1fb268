package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
)

type fakeSender struct {
	name string
	err  error

	mu     sync.Mutex
	titles []string
}

func (f *fakeSender) Send(_ context.Context, title, _ string) error {
	f.mu.Lock()
	f.titles = append(f.titles, title)
	f.mu.Unlock()
	return f.err
}

func (f *fakeSender) Name() string { return f.name }

func (f *fakeSender) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.titles)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNotifier_FiltersTopics(t *testing.T) {
	s := &fakeSender{name: "fake"}
	n := NewNotifier([]Sender{s}, []string{"market_resolved", " position_settled "}, testLogger())

	ctx := context.Background()
	if err := n.Notify(ctx, "collateral_deposited", "t", "m"); err != nil {
		t.Fatal(err)
	}
	if err := n.Notify(ctx, "position_settled", "t", "m"); err != nil {
		t.Fatal(err)
	}
	if err := n.NotifyAll(ctx, "t", "m"); err != nil {
		t.Fatal(err)
	}
	if got := s.count(); got != 2 {
		t.Errorf("deliveries = %d, want 2", got)
	}
}

func TestNotifier_EmptyFilterAllowsAll(t *testing.T) {
	n := NewNotifier(nil, nil, testLogger())
	if !n.Wants("anything") {
		t.Error("empty filter should allow every topic")
	}
	if n.Enabled() {
		t.Error("notifier without senders reports enabled")
	}
}

func TestNotifier_OneFailureDoesNotStopOthers(t *testing.T) {
	boom := errors.New("boom")
	bad := &fakeSender{name: "bad", err: boom}
	good := &fakeSender{name: "good"}
	n := NewNotifier([]Sender{bad, good}, nil, testLogger())

	err := n.NotifyAll(context.Background(), "t", "m")
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want wrapped boom", err)
	}
	if good.count() != 1 {
		t.Error("good sender was skipped after a failure")
	}
}

func TestDiscordSender_Send(t *testing.T) {
	var got discordMessage
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	t.Cleanup(srv.Close)

	d := NewDiscordSender(srv.URL, "predictd")
	if err := d.Send(context.Background(), "Market resolved", "market 1: YES"); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if got.Content != "**Market resolved**\nmarket 1: YES" || got.Username != "predictd" {
		t.Errorf("payload = %+v", got)
	}
}

func TestDiscordSender_TruncatesAndReportsStatus(t *testing.T) {
	var length int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var m discordMessage
		_ = json.NewDecoder(r.Body).Decode(&m)
		length = len([]rune(m.Content))
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	t.Cleanup(srv.Close)

	err := NewDiscordSender(srv.URL, "").Send(context.Background(), "t", strings.Repeat("x", 3000))
	if err == nil || !strings.Contains(err.Error(), "429") {
		t.Errorf("err = %v, want status 429", err)
	}
	if length != discordContentLimit {
		t.Errorf("content length = %d, want %d", length, discordContentLimit)
	}
}

// fakeBotAPI serves the two Bot API methods the sender uses.
func fakeBotAPI(t *testing.T, failSends bool) (endpoint string, sent *[]map[string]string) {
	t.Helper()
	var mu sync.Mutex
	var msgs []map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case strings.HasSuffix(r.URL.Path, "/getMe"):
			_, _ = io.WriteString(w, `{"ok":true,"result":{"id":1,"is_bot":true,"first_name":"ledger","username":"ledger_bot"}}`)
		case strings.HasSuffix(r.URL.Path, "/sendMessage"):
			_ = r.ParseForm()
			mu.Lock()
			msgs = append(msgs, map[string]string{
				"chat_id":    r.PostForm.Get("chat_id"),
				"text":       r.PostForm.Get("text"),
				"parse_mode": r.PostForm.Get("parse_mode"),
			})
			mu.Unlock()
			if failSends {
				_, _ = io.WriteString(w, `{"ok":false,"error_code":400,"description":"Bad Request"}`)
				return
			}
			_, _ = io.WriteString(w, `{"ok":true,"result":{"message_id":7,"date":0,"chat":{"id":42,"type":"private"},"text":"ok"}}`)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv.URL + "/bot%s/%s", &msgs
}

func TestTelegramSender_Send(t *testing.T) {
	endpoint, sent := fakeBotAPI(t, false)
	s, err := NewTelegramSender(TelegramConfig{Token: "token", ChatID: "42", APIEndpoint: endpoint})
	if err != nil {
		t.Fatalf("NewTelegramSender: %v", err)
	}
	if err := s.Send(context.Background(), "Market 1 resolved", "outcome: YES"); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if len(*sent) != 1 {
		t.Fatalf("sent %d messages, want 1", len(*sent))
	}
	msg := (*sent)[0]
	if msg["chat_id"] != "42" || msg["parse_mode"] != "MarkdownV2" {
		t.Errorf("message = %v", msg)
	}
	if msg["text"] != "*Market 1 resolved*\noutcome: YES" {
		t.Errorf("text = %q", msg["text"])
	}
}

func TestTelegramSender_Retries(t *testing.T) {
	endpoint, sent := fakeBotAPI(t, true)
	s, err := NewTelegramSender(TelegramConfig{
		Token:       "token",
		ChatID:      "42",
		APIEndpoint: endpoint,
		MaxRetries:  2,
		RetryDelay:  time.Millisecond,
	})
	if err != nil {
		t.Fatalf("NewTelegramSender: %v", err)
	}
	if err := s.Send(context.Background(), "t", "m"); err == nil {
		t.Fatal("expected an error")
	}
	if len(*sent) != 2 {
		t.Errorf("attempts = %d, want 2", len(*sent))
	}
}

func TestNewTelegramSender_BadChatID(t *testing.T) {
	if _, err := NewTelegramSender(TelegramConfig{Token: "x", ChatID: "not-a-number"}); err == nil {
		t.Error("expected an error for a non-numeric chat id")
	}
}

func TestEscapeMarkdownV2(t *testing.T) {
	got := escapeMarkdownV2("payout 1.5 (yes) - done!")
	want := `payout 1\.5 \(yes\) \- done\!`
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}
