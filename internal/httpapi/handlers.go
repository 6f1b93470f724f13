package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"agentdash/internal/chat"
	"agentdash/internal/market"
	"agentdash/internal/prefs"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	snap, _ := s.dash.Current()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"captured_at": snap.CapturedAt,
		"assets":      len(snap.Assets),
		"loading":     s.dash.Loading(),
	})
}

func (s *Server) handleMarket(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	favoritesOnly := false
	if raw := q.Get("favorites"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "favorites must be a boolean")
			return
		}
		favoritesOnly = v
	}

	view := s.dash.View(market.Criteria{
		Search:        q.Get("search"),
		Category:      market.ParseCategory(q.Get("category")),
		FavoritesOnly: favoritesOnly,
		Sort:          market.ParseSortKey(q.Get("sort")),
	})
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleAsset(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	asset, ok := s.dash.Asset(id)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown asset "+id)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"asset":     asset,
		"favorite":  s.prefs.IsFavorite(id),
		"watchlist": s.inWatchlist(id),
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	snap, stats := s.dash.Current()
	writeJSON(w, http.StatusOK, map[string]any{
		"stats":       stats,
		"captured_at": snap.CapturedAt,
	})
}

type prefsResponse struct {
	Theme     prefs.Theme                 `json:"theme"`
	Favorites []string                    `json:"favorites"`
	Watchlist []string                    `json:"watchlist"`
	Alerts    map[string]prefs.PriceAlert `json:"alerts"`
}

func (s *Server) handlePrefs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, prefsResponse{
		Theme:     s.prefs.Theme(),
		Favorites: s.prefs.Favorites(),
		Watchlist: s.prefs.Watchlist(),
		Alerts:    s.prefs.Alerts(),
	})
}

func (s *Server) handleTheme(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Theme string `json:"theme"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	if err := s.prefs.SetTheme(r.Context(), prefs.Theme(body.Theme)); err != nil {
		s.writePrefsError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"theme": s.prefs.Theme()})
}

func (s *Server) handleFavorite(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	on, err := s.prefs.ToggleFavorite(r.Context(), id)
	if err != nil {
		s.writePrefsError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "favorite": on})
}

func (s *Server) handleWatchlist(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	on, err := s.prefs.ToggleWatchlist(r.Context(), id)
	if err != nil {
		s.writePrefsError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "watchlist": on})
}

func (s *Server) handleSetAlert(w http.ResponseWriter, r *http.Request) {
	var body struct {
		TargetPrice decimal.Decimal `json:"target_price"`
		Direction   string          `json:"direction"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	id := r.PathValue("id")
	alert, err := s.prefs.SetAlert(r.Context(), id, body.TargetPrice, prefs.Direction(body.Direction))
	if err != nil {
		s.writePrefsError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "alert": alert})
}

func (s *Server) handleRemoveAlert(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	removed, err := s.prefs.RemoveAlert(r.Context(), id)
	if err != nil {
		s.writePrefsError(w, err)
		return
	}
	if !removed {
		writeError(w, http.StatusNotFound, "no alert for "+id)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) writePrefsError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, prefs.ErrInvalidTheme),
		errors.Is(err, prefs.ErrInvalidDirection),
		errors.Is(err, prefs.ErrInvalidTarget),
		errors.Is(err, prefs.ErrEmptyAssetID):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		s.logger.Error().Err(err).Msg("preference update failed")
		writeError(w, http.StatusInternalServerError, "preference update failed")
	}
}

func (s *Server) inWatchlist(id string) bool {
	_, watchlist := s.prefs.Sets()
	return watchlist.Has(id)
}

type chatLogResponse struct {
	Messages []chat.Message `json:"messages"`
	Typing   bool           `json:"typing"`
}

func (s *Server) handleChatLog(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, chatLogResponse{
		Messages: s.relay.Conversation().Messages(),
		Typing:   s.relay.Typing(),
	})
}

func (s *Server) handleChatSend(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Message string `json:"message"`
		AssetID string `json:"asset_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}

	var selected *market.Asset
	if body.AssetID != "" {
		if asset, ok := s.dash.Asset(body.AssetID); ok {
			selected = &asset
		}
	}

	start := time.Now()
	reply, err := s.relay.Send(r.Context(), body.Message, selected)
	switch {
	case errors.Is(err, chat.ErrEmptyMessage):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, chat.ErrBusy):
		writeError(w, http.StatusConflict, err.Error())
		return
	case err != nil:
		s.logger.Error().Err(err).Msg("chat relay failed")
		writeError(w, http.StatusInternalServerError, "chat unavailable")
		return
	}

	s.logger.Debug().Dur("elapsed", time.Since(start)).Str("asset", body.AssetID).Msg("chat reply recorded")
	writeJSON(w, http.StatusOK, map[string]any{"reply": reply})
}
