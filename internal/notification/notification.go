package notification

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/ln9swrd/coinpulse-sub000/internal/scoring"
)

// AlertType represents the type of alert
type AlertType string

const (
	AlertSurge          AlertType = "surge"
	AlertPositionOpen   AlertType = "position_open"
	AlertPositionClosed AlertType = "position_closed"
	AlertError          AlertType = "error"
)

// Alert is the structured payload handed to providers. The contract with a
// provider is this object; how it renders is the provider's business.
type Alert struct {
	Type           AlertType           `json:"type"`
	Title          string              `json:"title"`
	Message        string              `json:"message"`
	Symbol         string              `json:"symbol"`
	Price          float64             `json:"price"`
	Score          float64             `json:"score"`
	Pattern        string              `json:"pattern"`
	Timing         string              `json:"timing"`
	Recommendation string              `json:"recommendation"`
	Breakdown      []scoring.SubSignal `json:"breakdown,omitempty"`
	PnL            float64             `json:"pnl"`
	PnLPercent     float64             `json:"pnl_percent"`
	Timestamp      time.Time           `json:"timestamp"`
}

// Notifier is a single delivery channel
type Notifier interface {
	Send(alert *Alert) error
	Name() string
	IsEnabled() bool
}

// Manager fans alerts out to every enabled provider
type Manager struct {
	notifiers []Notifier
	enabled   bool
}

// NewManager creates a notification manager
func NewManager(enabled bool) *Manager {
	return &Manager{enabled: enabled}
}

// AddNotifier registers a delivery channel
func (m *Manager) AddNotifier(n Notifier) {
	m.notifiers = append(m.notifiers, n)
}

// Send delivers to all enabled providers, returning the last failure
func (m *Manager) Send(alert *Alert) error {
	if !m.enabled {
		return nil
	}

	var lastErr error
	for _, n := range m.notifiers {
		if n.IsEnabled() {
			if err := n.Send(alert); err != nil {
				lastErr = fmt.Errorf("%s: %w", n.Name(), err)
			}
		}
	}
	return lastErr
}

// SendSurgeAlert sends a freshly detected surge signal
func (m *Manager) SendSurgeAlert(result *scoring.ScoreResult, targetPrice, stopLossPrice float64) error {
	var lines []string
	lines = append(lines, fmt.Sprintf("Score %.0f/100 (%s, timing %s)", result.Score, result.Pattern, result.Timing))
	lines = append(lines, fmt.Sprintf("Price: %s | Target: %s | Stop: %s",
		formatKRW(result.CurrentPrice), formatKRW(targetPrice), formatKRW(stopLossPrice)))
	for _, s := range result.Signals {
		if s.Score > 0 {
			lines = append(lines, fmt.Sprintf("- %s %.0f/%.0f: %s", s.Name, s.Score, s.Max, s.Description))
		}
	}

	return m.Send(&Alert{
		Type:           AlertSurge,
		Title:          fmt.Sprintf("🚀 Surge signal: %s (%s)", result.Symbol, result.Recommendation),
		Message:        strings.Join(lines, "\n"),
		Symbol:         result.Symbol,
		Price:          result.CurrentPrice,
		Score:          result.Score,
		Pattern:        result.Pattern,
		Timing:         result.Timing,
		Recommendation: result.Recommendation,
		Breakdown:      result.Signals,
		Timestamp:      time.Now(),
	})
}

// SendPositionOpened sends an auto-trade fill notice
func (m *Manager) SendPositionOpened(symbol string, price, volume, amount float64) error {
	return m.Send(&Alert{
		Type:      AlertPositionOpen,
		Title:     fmt.Sprintf("📈 Position opened: %s", symbol),
		Message:   fmt.Sprintf("Filled %.8f @ %s (%s KRW)", volume, formatKRW(price), formatKRW(amount)),
		Symbol:    symbol,
		Price:     price,
		Timestamp: time.Now(),
	})
}

// SendPositionClosed sends a closure notice with realized P/L
func (m *Manager) SendPositionClosed(symbol string, entryPrice, exitPrice, pnl, pnlPercent float64, reason string) error {
	emoji := "✅"
	if pnl < 0 {
		emoji = "❌"
	}

	return m.Send(&Alert{
		Type:       AlertPositionClosed,
		Title:      fmt.Sprintf("%s Closed: %s", emoji, symbol),
		Message:    fmt.Sprintf("Entry %s → Exit %s\nP/L: %s KRW (%.2f%%)\nReason: %s", formatKRW(entryPrice), formatKRW(exitPrice), formatKRW(pnl), pnlPercent, reason),
		Symbol:     symbol,
		Price:      exitPrice,
		PnL:        pnl,
		PnLPercent: pnlPercent,
		Timestamp:  time.Now(),
	})
}

func formatKRW(v float64) string {
	if v >= 100 {
		return fmt.Sprintf("%.0f", v)
	}
	return fmt.Sprintf("%.2f", v)
}

// =============================================================================
// TELEGRAM NOTIFIER
// =============================================================================

// TelegramNotifier delivers alerts through a Telegram bot
type TelegramNotifier struct {
	botToken string
	chatID   string
	enabled  bool
	client   *http.Client
}

// TelegramConfig holds Telegram settings
type TelegramConfig struct {
	BotToken string
	ChatID   string
	Enabled  bool
}

// NewTelegramNotifier creates a Telegram notifier
func NewTelegramNotifier(cfg TelegramConfig) *TelegramNotifier {
	return &TelegramNotifier{
		botToken: cfg.BotToken,
		chatID:   cfg.ChatID,
		enabled:  cfg.Enabled && cfg.BotToken != "" && cfg.ChatID != "",
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

func (t *TelegramNotifier) Name() string { return "telegram" }

func (t *TelegramNotifier) IsEnabled() bool { return t.enabled }

func (t *TelegramNotifier) Send(alert *Alert) error {
	if !t.enabled {
		return nil
	}

	payload := map[string]interface{}{
		"chat_id":    t.chatID,
		"text":       fmt.Sprintf("*%s*\n\n%s", alert.Title, alert.Message),
		"parse_mode": "Markdown",
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal telegram payload: %w", err)
	}

	url := fmt.Sprintf("https://api.telegram.org/bot%s/sendMessage", t.botToken)
	resp, err := t.client.Post(url, "application/json", bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to send telegram message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("telegram API returned status %d", resp.StatusCode)
	}
	return nil
}

// =============================================================================
// DISCORD NOTIFIER
// =============================================================================

// DiscordNotifier delivers alerts through a Discord webhook
type DiscordNotifier struct {
	webhookURL string
	enabled    bool
	client     *http.Client
}

// DiscordConfig holds Discord settings
type DiscordConfig struct {
	WebhookURL string
	Enabled    bool
}

// NewDiscordNotifier creates a Discord notifier
func NewDiscordNotifier(cfg DiscordConfig) *DiscordNotifier {
	return &DiscordNotifier{
		webhookURL: cfg.WebhookURL,
		enabled:    cfg.Enabled && cfg.WebhookURL != "",
		client:     &http.Client{Timeout: 10 * time.Second},
	}
}

func (d *DiscordNotifier) Name() string { return "discord" }

func (d *DiscordNotifier) IsEnabled() bool { return d.enabled }

func (d *DiscordNotifier) Send(alert *Alert) error {
	if !d.enabled {
		return nil
	}

	color := 0x00C853
	if alert.Type == AlertError || (alert.Type == AlertPositionClosed && alert.PnL < 0) {
		color = 0xD50000
	}

	embed := map[string]interface{}{
		"title":       alert.Title,
		"description": alert.Message,
		"color":       color,
		"timestamp":   alert.Timestamp.Format(time.RFC3339),
	}

	if alert.Symbol != "" {
		fields := []map[string]interface{}{
			{"name": "Symbol", "value": alert.Symbol, "inline": true},
		}
		if alert.Score > 0 {
			fields = append(fields, map[string]interface{}{
				"name": "Score", "value": fmt.Sprintf("%.0f", alert.Score), "inline": true,
			})
		}
		if alert.Price > 0 {
			fields = append(fields, map[string]interface{}{
				"name": "Price", "value": formatKRW(alert.Price), "inline": true,
			})
		}
		embed["fields"] = fields
	}

	payload := map[string]interface{}{
		"embeds": []map[string]interface{}{embed},
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal discord payload: %w", err)
	}

	resp, err := d.client.Post(d.webhookURL, "application/json", bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to send discord message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("discord API returned status %d", resp.StatusCode)
	}
	return nil
}
