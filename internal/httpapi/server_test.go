package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"agentdash/internal/chat"
	"agentdash/internal/config"
	"agentdash/internal/market"
	"agentdash/internal/prefs"
	"agentdash/internal/service"
	"agentdash/internal/storage"
)

type staticFetcher struct {
	snap market.Snapshot
}

func (f staticFetcher) FetchSnapshot(context.Context) (market.Snapshot, error) {
	f.snap.CapturedAt = time.Now().UTC()
	return f.snap, nil
}

func asset(id, name string, rank int, price, change string) market.Asset {
	r := rank
	return market.Asset{
		ID:            id,
		Symbol:        id[:3],
		Name:          name,
		MarketCapRank: &r,
		CurrentPrice:  decimal.NewNullDecimal(decimal.RequireFromString(price)),
		Change24h:     decimal.NewNullDecimal(decimal.RequireFromString(change)),
		MarketCap:     decimal.NewNullDecimal(decimal.NewFromInt(int64(1000 / rank))),
	}
}

type fixture struct {
	srv   *httptest.Server
	dash  *service.Dashboard
	prefs *prefs.Preferences
	agent *httptest.Server
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	backend := storage.NewMemory()
	logger := zerolog.Nop()

	p, err := prefs.Load(ctx, backend, logger)
	if err != nil {
		t.Fatalf("load prefs: %v", err)
	}
	conv, err := chat.LoadConversation(ctx, backend, 0, logger)
	if err != nil {
		t.Fatalf("load conversation: %v", err)
	}

	agent := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"reply":"BTC looks strong today."}`))
	}))
	relay := chat.NewRelay(chat.RelayOptions{Endpoint: agent.URL, Timeout: time.Second}, conv, logger)

	fetcher := staticFetcher{snap: market.Snapshot{Assets: []market.Asset{
		market.NewSynthetic(market.TokenInfo{ID: "agent-token", Symbol: "AGT", Name: "Agent Token"}),
		asset("bitcoin", "Bitcoin", 1, "70000", "2.1"),
		asset("ethereum", "Ethereum", 2, "3000", "-1.4"),
		asset("solana", "Solana", 5, "150", "6.3"),
	}}}
	cfg := &config.Config{Refresh: config.RefreshConfig{Interval: time.Hour, StaleAfter: 5 * time.Minute}}
	dash := service.New(cfg, nil, fetcher, backend, p, nil, logger)
	if err := dash.Refresh(ctx); err != nil {
		t.Fatalf("refresh: %v", err)
	}

	api := NewServer(config.HTTPConfig{}, dash, p, relay, logger)
	srv := httptest.NewServer(api.Handler())
	t.Cleanup(func() {
		srv.Close()
		agent.Close()
	})
	return &fixture{srv: srv, dash: dash, prefs: p, agent: agent}
}

func (f *fixture) do(t *testing.T, method, path, body string, out any) int {
	t.Helper()
	req, err := http.NewRequest(method, f.srv.URL+path, strings.NewReader(body))
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	if out != nil && resp.StatusCode < 300 && resp.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s: %v", path, err)
		}
	}
	return resp.StatusCode
}

func TestMarketEndpoint(t *testing.T) {
	f := newFixture(t)

	var view service.View
	if code := f.do(t, http.MethodGet, "/api/market?category=gainers&sort=change", "", &view); code != http.StatusOK {
		t.Fatalf("status %d", code)
	}
	got := make([]string, 0, len(view.Assets))
	for _, a := range view.Assets {
		got = append(got, a.ID)
	}
	if strings.Join(got, ",") != "solana,bitcoin" {
		t.Fatalf("gainers sorted by change = %v", got)
	}
	if view.Stats.Count != 3 {
		t.Fatalf("stats count = %d", view.Stats.Count)
	}

	view = service.View{}
	f.do(t, http.MethodGet, "/api/market?search=ETH", "", &view)
	if len(view.Assets) != 1 || view.Assets[0].ID != "ethereum" {
		t.Fatalf("search by symbol failed: %+v", view.Assets)
	}

	view = service.View{}
	f.do(t, http.MethodGet, "/api/market?sort=price", "", &view)
	if len(view.Assets) != 4 || !view.Assets[0].ComingSoon || view.Assets[1].ID != "bitcoin" {
		t.Fatalf("synthetic should lead the price sort: %+v", view.Assets)
	}

	if code := f.do(t, http.MethodGet, "/api/market?favorites=maybe", "", nil); code != http.StatusBadRequest {
		t.Fatalf("bad favorites flag should be rejected, got %d", code)
	}
}

func TestAssetEndpoint(t *testing.T) {
	f := newFixture(t)

	var body struct {
		Asset    market.Asset `json:"asset"`
		Favorite bool         `json:"favorite"`
	}
	if code := f.do(t, http.MethodGet, "/api/market/bitcoin", "", &body); code != http.StatusOK {
		t.Fatalf("status %d", code)
	}
	if body.Asset.Name != "Bitcoin" || body.Favorite {
		t.Fatalf("unexpected asset payload %+v", body)
	}
	if code := f.do(t, http.MethodGet, "/api/market/dogecoin", "", nil); code != http.StatusNotFound {
		t.Fatalf("unknown asset should 404, got %d", code)
	}
}

func TestPreferenceEndpoints(t *testing.T) {
	f := newFixture(t)

	var toggled map[string]any
	f.do(t, http.MethodPost, "/api/prefs/favorites/solana", "", &toggled)
	if toggled["favorite"] != true {
		t.Fatalf("favorite toggle = %v", toggled)
	}
	f.do(t, http.MethodPost, "/api/prefs/watchlist/ethereum", "", nil)

	if code := f.do(t, http.MethodPut, "/api/prefs/theme", `{"theme":"light"}`, nil); code != http.StatusOK {
		t.Fatalf("set theme status %d", code)
	}
	if code := f.do(t, http.MethodPut, "/api/prefs/theme", `{"theme":"neon"}`, nil); code != http.StatusBadRequest {
		t.Fatalf("invalid theme should 400, got %d", code)
	}

	if code := f.do(t, http.MethodPut, "/api/prefs/alerts/bitcoin", `{"target_price":"80000","direction":"above"}`, nil); code != http.StatusOK {
		t.Fatalf("set alert status %d", code)
	}
	if code := f.do(t, http.MethodPut, "/api/prefs/alerts/bitcoin", `{"target_price":-1,"direction":"above"}`, nil); code != http.StatusBadRequest {
		t.Fatalf("negative target should 400, got %d", code)
	}

	var state prefsResponse
	f.do(t, http.MethodGet, "/api/prefs", "", &state)
	if state.Theme != prefs.ThemeLight {
		t.Fatalf("theme = %s", state.Theme)
	}
	if len(state.Favorites) != 1 || state.Favorites[0] != "solana" {
		t.Fatalf("favorites = %v", state.Favorites)
	}
	if len(state.Watchlist) != 1 || state.Watchlist[0] != "ethereum" {
		t.Fatalf("watchlist = %v", state.Watchlist)
	}
	if alert, ok := state.Alerts["bitcoin"]; !ok || !alert.TargetPrice.Equal(decimal.NewFromInt(80000)) {
		t.Fatalf("alerts = %+v", state.Alerts)
	}

	var view service.View
	f.do(t, http.MethodGet, "/api/market?favorites=true", "", &view)
	if len(view.Assets) != 1 || view.Assets[0].ID != "solana" {
		t.Fatalf("favorites-only view = %+v", view.Assets)
	}

	if code := f.do(t, http.MethodDelete, "/api/prefs/alerts/bitcoin", "", nil); code != http.StatusNoContent {
		t.Fatalf("remove alert status %d", code)
	}
	if code := f.do(t, http.MethodDelete, "/api/prefs/alerts/bitcoin", "", nil); code != http.StatusNotFound {
		t.Fatalf("second remove should 404, got %d", code)
	}
}

func TestChatEndpoints(t *testing.T) {
	f := newFixture(t)

	var sent struct {
		Reply chat.Message `json:"reply"`
	}
	code := f.do(t, http.MethodPost, "/api/chat", `{"message":"How is bitcoin doing?","asset_id":"bitcoin"}`, &sent)
	if code != http.StatusOK {
		t.Fatalf("chat status %d", code)
	}
	if sent.Reply.Role != chat.RoleAssistant || sent.Reply.Content != "BTC looks strong today." {
		t.Fatalf("unexpected reply %+v", sent.Reply)
	}

	if code := f.do(t, http.MethodPost, "/api/chat", `{"message":"  "}`, nil); code != http.StatusBadRequest {
		t.Fatalf("empty message should 400, got %d", code)
	}

	var log chatLogResponse
	f.do(t, http.MethodGet, "/api/chat", "", &log)
	if len(log.Messages) != 2 || log.Typing {
		t.Fatalf("chat log = %+v", log)
	}
	if log.Messages[0].AssetID != "bitcoin" {
		t.Fatalf("asset reference lost: %+v", log.Messages[0])
	}
}

func TestHealthz(t *testing.T) {
	f := newFixture(t)
	var body map[string]any
	if code := f.do(t, http.MethodGet, "/healthz", "", &body); code != http.StatusOK || body["status"] != "ok" {
		t.Fatalf("healthz = %d %v", code, body)
	}
}

func TestMarketStream(t *testing.T) {
	f := newFixture(t)

	url := strings.Replace(f.srv.URL, "http://", "ws://", 1) + "/ws/market"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	var first service.Update
	if err := conn.ReadJSON(&first); err != nil {
		t.Fatalf("read initial update: %v", err)
	}
	if len(first.Snapshot.Assets) != 4 || first.Stats.Count != 3 {
		t.Fatalf("initial update = %+v", first.Stats)
	}

	if err := f.dash.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	var next service.Update
	if err := conn.ReadJSON(&next); err != nil {
		t.Fatalf("read pushed update: %v", err)
	}
	if len(next.Snapshot.Assets) != 4 || next.Snapshot.CapturedAt.Before(first.Snapshot.CapturedAt) {
		t.Fatal("pushed update should carry the refreshed snapshot")
	}
}
