package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"slices"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"agentdash/internal/chat"
	"agentdash/internal/config"
	"agentdash/internal/prefs"
	"agentdash/internal/service"
)

// Server exposes the dashboard, preferences and chat relay over HTTP.
type Server struct {
	cfg      config.HTTPConfig
	dash     *service.Dashboard
	prefs    *prefs.Preferences
	relay    *chat.Relay
	logger   zerolog.Logger
	upgrader websocket.Upgrader
	srv      *http.Server
}

// NewServer wires the HTTP surface.
func NewServer(cfg config.HTTPConfig, dash *service.Dashboard, preferences *prefs.Preferences, relay *chat.Relay, logger zerolog.Logger) *Server {
	s := &Server{
		cfg:    cfg,
		dash:   dash,
		prefs:  preferences,
		relay:  relay,
		logger: logger.With().Str("component", "http").Logger(),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin:     func(r *http.Request) bool { return s.originAllowed(r.Header.Get("Origin")) },
	}
	return s
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)

	mux.HandleFunc("GET /api/market", s.handleMarket)
	mux.HandleFunc("GET /api/market/{id}", s.handleAsset)
	mux.HandleFunc("GET /api/stats", s.handleStats)

	mux.HandleFunc("GET /api/prefs", s.handlePrefs)
	mux.HandleFunc("PUT /api/prefs/theme", s.handleTheme)
	mux.HandleFunc("POST /api/prefs/favorites/{id}", s.handleFavorite)
	mux.HandleFunc("POST /api/prefs/watchlist/{id}", s.handleWatchlist)
	mux.HandleFunc("PUT /api/prefs/alerts/{id}", s.handleSetAlert)
	mux.HandleFunc("DELETE /api/prefs/alerts/{id}", s.handleRemoveAlert)

	mux.HandleFunc("GET /api/chat", s.handleChatLog)
	mux.HandleFunc("POST /api/chat", s.handleChatSend)

	mux.HandleFunc("GET /ws/market", s.handleStream)

	return s.withCORS(s.withLogging(mux))
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	s.srv = &http.Server{
		Addr:         s.cfg.Addr,
		Handler:      s.Handler(),
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}

	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return err
	}

	go func() {
		<-ctx.Done()
		timeout := s.cfg.ShutdownTimeout
		if timeout <= 0 {
			timeout = 5 * time.Second
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := s.srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Warn().Err(err).Msg("http shutdown incomplete")
		}
	}()

	s.logger.Info().Str("addr", ln.Addr().String()).Msg("http server starting")
	if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) originAllowed(origin string) bool {
	if origin == "" || len(s.cfg.AllowedOrigins) == 0 {
		return true
	}
	return slices.Contains(s.cfg.AllowedOrigins, "*") || slices.Contains(s.cfg.AllowedOrigins, origin)
}

func (s *Server) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && s.originAllowed(origin) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Vary", "Origin")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// upgrades need the raw writer to hijack the connection
		if r.URL.Path == "/ws/market" {
			next.ServeHTTP(w, r)
			return
		}
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Dur("elapsed", time.Since(start)).
			Msg("request served")
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
