package alerting

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

func sampleNote() Notification {
	return Notification{
		AssetID:     "bitcoin",
		Symbol:      "btc",
		Name:        "Bitcoin",
		Price:       decimal.NewFromInt(70100),
		TargetPrice: decimal.NewFromInt(70000),
		Direction:   "above",
		TriggeredAt: time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC),
	}
}

func TestTelegramNotifierSuccess(t *testing.T) {
	received := make(map[string]string)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, "sendMessage") {
			t.Errorf("路径应包含 sendMessage, 实际 %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Errorf("解析请求体失败: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true})
	}))
	defer srv.Close()

	notifier := NewTelegramNotifier("token", "chat", srv.URL, time.Second, testLogger())
	if err := notifier.Notify(context.Background(), sampleNote()); err != nil {
		t.Fatalf("Telegram Notify 应成功: %v", err)
	}

	if received["chat_id"] != "chat" {
		t.Fatalf("chat_id 不正确: %#v", received)
	}
	text := received["text"]
	for _, want := range []string{"Bitcoin (BTC)", "$70100", "above $70000"} {
		if !strings.Contains(text, want) {
			t.Fatalf("text 缺少 %q: %s", want, text)
		}
	}
}

func TestTelegramNotifierError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": false})
	}))
	defer srv.Close()

	notifier := NewTelegramNotifier("token", "chat", srv.URL, time.Second, testLogger())
	if err := notifier.Notify(context.Background(), sampleNote()); err == nil {
		t.Fatal("ok=false 应报错")
	}
}

type failing struct{ calls int }

func (f *failing) Notify(context.Context, Notification) error {
	f.calls++
	return errors.New("boom")
}

func TestMultiNotifiesEveryone(t *testing.T) {
	a, b := &failing{}, &failing{}
	m := Multi{a, NewLogNotifier(testLogger()), b}
	if err := m.Notify(context.Background(), sampleNote()); err == nil {
		t.Fatal("first error should propagate")
	}
	if a.calls != 1 || b.calls != 1 {
		t.Fatalf("every notifier should be called, got %d/%d", a.calls, b.calls)
	}
}

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}
