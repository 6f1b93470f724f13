package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"agentdash/internal/market"
)

// FallbackReply is appended whenever the agent endpoint cannot answer.
const FallbackReply = "Sorry, the AI agent is unavailable right now. Please try again later or reach the team through our community channels."

// DefaultHistoryWindow is the number of prior turns forwarded with each message.
const DefaultHistoryWindow = 5

const persistTimeout = 5 * time.Second

var (
	// ErrBusy indicates a message is already in flight.
	ErrBusy = errors.New("chat: a message is already being sent")
	// ErrEmptyMessage rejects blank submissions.
	ErrEmptyMessage = errors.New("chat: message is empty")
)

// RelayOptions parameterise the chat relay.
type RelayOptions struct {
	Endpoint      string
	Timeout       time.Duration
	HistoryWindow int
	UserAgent     string
}

// Relay forwards user messages to the agent endpoint and records the reply.
type Relay struct {
	opts    RelayOptions
	conv    *Conversation
	client  *http.Client
	logger  zerolog.Logger
	sending atomic.Bool
}

// NewRelay constructs a relay writing into conv.
func NewRelay(opts RelayOptions, conv *Conversation, logger zerolog.Logger) *Relay {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.HistoryWindow <= 0 {
		opts.HistoryWindow = DefaultHistoryWindow
	}
	return &Relay{
		opts:   opts,
		conv:   conv,
		client: &http.Client{Timeout: opts.Timeout},
		logger: logger.With().Str("component", "chat_relay").Logger(),
	}
}

// Conversation exposes the log the relay writes into.
func (r *Relay) Conversation() *Conversation {
	return r.conv
}

// Typing reports whether a message is currently being sent.
func (r *Relay) Typing() bool {
	return r.sending.Load()
}

// Send appends the user message, asks the agent for a reply and appends it.
// Endpoint failures never surface as errors: the fallback reply is recorded
// instead and nothing is retried.
func (r *Relay) Send(ctx context.Context, text string, asset *market.Asset) (Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Message{}, ErrEmptyMessage
	}
	if !r.sending.CompareAndSwap(false, true) {
		return Message{}, ErrBusy
	}
	defer r.sending.Store(false)

	assetID := ""
	if asset != nil {
		assetID = asset.ID
	}

	// the log is written even if the caller goes away mid-request
	persistCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()

	history := r.conv.Recent(r.opts.HistoryWindow)
	if _, err := r.conv.Append(persistCtx, RoleUser, text, assetID); err != nil {
		return Message{}, fmt.Errorf("record user message: %w", err)
	}

	turns := make([]turn, 0, len(history)+2)
	turns = append(turns, turn{Role: RoleSystem, Content: BuildSystemPrompt(asset)})
	for _, m := range history {
		turns = append(turns, turn{Role: m.Role, Content: m.Content})
	}
	turns = append(turns, turn{Role: RoleUser, Content: text})

	reply, err := r.request(ctx, turns)
	if err != nil {
		r.logger.Warn().Err(err).Str("endpoint", r.opts.Endpoint).Msg("agent request failed; using fallback reply")
		reply = FallbackReply
	}

	msg, err := r.conv.Append(persistCtx, RoleAssistant, reply, assetID)
	if err != nil {
		return Message{}, fmt.Errorf("record assistant message: %w", err)
	}
	return msg, nil
}

type turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

type agentRequest struct {
	Messages []turn `json:"messages"`
}

type agentResponse struct {
	Reply *string `json:"reply"`
}

func (r *Relay) request(ctx context.Context, turns []turn) (string, error) {
	body, err := json.Marshal(agentRequest{Messages: turns})
	if err != nil {
		return "", fmt.Errorf("encode agent request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.opts.Endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create agent request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if ua := strings.TrimSpace(r.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("send agent request: %w", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("read agent response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("agent endpoint status %d: %s", resp.StatusCode, strings.TrimSpace(string(payload)))
	}

	var decoded agentResponse
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return "", fmt.Errorf("decode agent response: %w", err)
	}
	if decoded.Reply == nil || strings.TrimSpace(*decoded.Reply) == "" {
		return "", errors.New("agent response missing reply")
	}
	return *decoded.Reply, nil
}
