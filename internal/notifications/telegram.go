package notifications

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ducminhle1904/crypto-trade-gate/internal/safety"
)

const defaultTelegramURL = "https://api.telegram.org"

// TelegramNotifier posts alerts to one or more Telegram chats. Messages are
// throttled to one per second across all chats.
type TelegramNotifier struct {
	token   string
	chatIDs []string
	baseURL string
	client  *http.Client
	limiter *safety.RateLimiter
	title   string
}

// NewTelegramNotifier creates a notifier for the given bot token and chats
func NewTelegramNotifier(token string, chatIDs []string) *TelegramNotifier {
	ids := make([]string, 0, len(chatIDs))
	for _, id := range chatIDs {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	return &TelegramNotifier{
		token:   token,
		chatIDs: ids,
		baseURL: defaultTelegramURL,
		client:  &http.Client{Timeout: 10 * time.Second},
		limiter: safety.NewRateLimiter("telegram", 1, 1),
		title:   "Trade Gate",
	}
}

// WithBaseURL points the notifier at another API host
func (t *TelegramNotifier) WithBaseURL(baseURL string) *TelegramNotifier {
	t.baseURL = strings.TrimRight(baseURL, "/")
	return t
}

func levelEmoji(level string) string {
	switch level {
	case LevelWarning:
		return "⚠️"
	case LevelError:
		return "🚨"
	case LevelEmergency:
		return "🛑"
	case LevelSuccess:
		return "✅"
	}
	return "ℹ️"
}

// SendAlert delivers message to every chat. Delivery continues past a failed
// chat; the first error is returned.
func (t *TelegramNotifier) SendAlert(level, message string) error {
	if t.token == "" || len(t.chatIDs) == 0 {
		return fmt.Errorf("telegram notifier is not configured")
	}

	text := fmt.Sprintf("%s *%s*\n\n%s", levelEmoji(level), t.title, message)
	if level == LevelEmergency {
		text = fmt.Sprintf("%s *%s EMERGENCY STOP*\n\n%s", levelEmoji(level), t.title, message)
	}
	apiURL := fmt.Sprintf("%s/bot%s/sendMessage", t.baseURL, t.token)

	var firstErr error
	for _, chatID := range t.chatIDs {
		if err := t.send(apiURL, chatID, text); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (t *TelegramNotifier) send(apiURL, chatID, text string) error {
	ctx, cancel := context.WithTimeout(context.Background(), t.client.Timeout)
	defer cancel()
	if err := t.limiter.Wait(ctx); err != nil {
		return err
	}

	data := url.Values{}
	data.Set("chat_id", chatID)
	data.Set("text", text)
	data.Set("parse_mode", "Markdown")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, apiURL, strings.NewReader(data.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := t.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("telegram API returned status %d for chat %s", resp.StatusCode, chatID)
	}
	return nil
}
