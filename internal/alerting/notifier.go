package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Notification 封装价格提醒触发上下文。
type Notification struct {
	AssetID     string
	Symbol      string
	Name        string
	Price       decimal.Decimal
	TargetPrice decimal.Decimal
	Direction   string
	SetAt       time.Time
	TriggeredAt time.Time
}

// Notifier 定义告警输送接口。
type Notifier interface {
	Notify(ctx context.Context, notification Notification) error
}

// LogNotifier 仅记录日志，用于未配置外部通道时。
type LogNotifier struct {
	logger zerolog.Logger
}

// NewLogNotifier 构造日志告警器。
func NewLogNotifier(logger zerolog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.With().Str("component", "alert_log").Logger()}
}

// Notify writes the trigger to the log.
func (n *LogNotifier) Notify(_ context.Context, note Notification) error {
	n.logger.Info().
		Str("asset", note.AssetID).
		Str("direction", note.Direction).
		Str("price", note.Price.String()).
		Str("target", note.TargetPrice.String()).
		Msg("价格提醒已触发")
	return nil
}

// TelegramNotifier 通过 Telegram Bot API 推送消息。
type TelegramNotifier struct {
	botToken string
	chatID   string
	baseURL  string
	client   *http.Client
	logger   zerolog.Logger
}

// NewTelegramNotifier 构造 Telegram 告警器。
func NewTelegramNotifier(botToken, chatID, baseURL string, timeout time.Duration, logger zerolog.Logger) *TelegramNotifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if baseURL == "" {
		baseURL = "https://api.telegram.org"
	}

	return &TelegramNotifier{
		botToken: botToken,
		chatID:   chatID,
		baseURL:  strings.TrimRight(baseURL, "/"),
		client:   &http.Client{Timeout: timeout},
		logger:   logger.With().Str("component", "alert_telegram").Logger(),
	}
}

// Notify 调用 sendMessage API 推送文本。
func (n *TelegramNotifier) Notify(ctx context.Context, note Notification) error {
	payload := map[string]string{
		"chat_id": n.chatID,
		"text":    renderMessage(note),
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal telegram payload: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", n.baseURL, n.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send telegram request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("telegram 响应码异常: %d", resp.StatusCode)
	}

	var result struct {
		OK bool `json:"ok"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err == nil {
		if !result.OK {
			return fmt.Errorf("telegram 返回 ok=false")
		}
	}

	n.logger.Info().Str("asset", note.AssetID).
		Str("direction", note.Direction).
		Msg("告警已发送 (Telegram)")
	return nil
}

// Multi fans a notification out to every notifier, returning the first error.
type Multi []Notifier

// Notify implements Notifier.
func (m Multi) Notify(ctx context.Context, note Notification) error {
	var first error
	for _, n := range m {
		if err := n.Notify(ctx, note); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func renderMessage(note Notification) string {
	builder := strings.Builder{}
	builder.WriteString("[Price Alert]\n")
	name := note.Name
	if name == "" {
		name = note.AssetID
	}
	if note.Symbol != "" {
		name = fmt.Sprintf("%s (%s)", name, strings.ToUpper(note.Symbol))
	}
	builder.WriteString(fmt.Sprintf("Asset: %s\n", name))
	builder.WriteString(fmt.Sprintf("Price: $%s\n", note.Price.String()))
	builder.WriteString(fmt.Sprintf("Target: %s $%s\n", note.Direction, note.TargetPrice.String()))
	builder.WriteString(fmt.Sprintf("Triggered: %s UTC\n", note.TriggeredAt.UTC().Format(time.RFC3339)))
	if !note.SetAt.IsZero() {
		builder.WriteString(fmt.Sprintf("Set: %s UTC\n", note.SetAt.UTC().Format(time.RFC3339)))
	}
	return builder.String()
}

var (
	_ Notifier = (*TelegramNotifier)(nil)
	_ Notifier = (*LogNotifier)(nil)
	_ Notifier = Multi(nil)
)
