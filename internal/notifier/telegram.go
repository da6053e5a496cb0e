package notifier

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/jorgeroden/plc-alarm-watcher/internal/config"
	alarm "github.com/jorgeroden/plc-alarm-watcher/internal/domain/alarm"
)

var (
	// ErrRateLimited is returned when Telegram answers 429. The orchestrator
	// retries the alarm on the next cycle.
	ErrRateLimited = errors.New("notification rate limited")
	// ErrRejected is returned for any other non-success Telegram response.
	ErrRejected = errors.New("notification rejected")
)

// defaultAPIBase is the Telegram Bot API endpoint.
const defaultAPIBase = "https://api.telegram.org"

// maxErrorBody caps how much of an error response is quoted in the error.
const maxErrorBody = 256

// Telegram sends one message per alarm through the Bot API. It performs a
// single attempt per call; retry policy lives in the orchestrator.
type Telegram struct {
	// apiBase is the Bot API root, overridable for tests.
	apiBase string
	// token is the bot token.
	token string
	// chatID is the destination chat.
	chatID string
	// subjectPrefix opens every message header.
	subjectPrefix string
	// alarmsURL is appended to alarm messages so the operator can jump
	// to the PLC page. Optional.
	alarmsURL string
	// httpClient bounds the request.
	httpClient *http.Client
}

// Option configures the notifier.
type Option func(*Telegram)

// WithAPIBase overrides the Bot API endpoint.
func WithAPIBase(base string) Option {
	return func(t *Telegram) {
		if base != "" {
			t.apiBase = strings.TrimRight(base, "/")
		}
	}
}

// WithTimeout bounds the send request.
func WithTimeout(timeout time.Duration) Option {
	return func(t *Telegram) {
		if timeout > 0 {
			t.httpClient.Timeout = timeout
		}
	}
}

// WithAlarmsURL adds a link to the PLC alarms page to every alarm message.
func WithAlarmsURL(pageURL string) Option {
	return func(t *Telegram) {
		t.alarmsURL = pageURL
	}
}

// NewTelegram creates a notifier for the provided bot and chat.
func NewTelegram(token, chatID, subjectPrefix string, opts ...Option) *Telegram {
	notifier := &Telegram{
		apiBase:       defaultAPIBase,
		token:         token,
		chatID:        chatID,
		subjectPrefix: subjectPrefix,
		httpClient: &http.Client{
			Timeout: config.DefaultRequestTimeout,
		},
	}

	for _, opt := range opts {
		opt(notifier)
	}

	return notifier
}

// Send delivers one message for the alarm record.
func (t *Telegram) Send(ctx context.Context, record alarm.Record) error {
	return t.SendText(ctx, t.formatRecord(record))
}

// SendText delivers a raw text message, used for cycle summaries.
func (t *Telegram) SendText(ctx context.Context, text string) error {
	endpoint := t.apiBase + "/bot" + t.token + "/sendMessage"

	form := url.Values{
		"chat_id": {t.chatID},
		"text":    {text},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("build send request: %w", err)
	}

	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send message: %w", err)
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode == http.StatusOK {
		return nil
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	if resp.StatusCode == http.StatusTooManyRequests {
		return fmt.Errorf("telegram api status %d: %s: %w", resp.StatusCode, body, ErrRateLimited)
	}

	return fmt.Errorf("telegram api status %d: %s: %w", resp.StatusCode, body, ErrRejected)
}

// formatRecord renders the human-readable alarm message. The header reflects
// the PLC transition column: a new occurrence, a cleared alarm, or anything
// else as a generic update.
func (t *Telegram) formatRecord(record alarm.Record) string {
	var header string

	switch strings.ToLower(strings.TrimSpace(record.Field(alarm.FieldTransition))) {
	case "ocurrido":
		header = "🚨 " + t.subjectPrefix + " ALARM OCCURRED"
	case "eliminado":
		header = "✅ " + t.subjectPrefix + " ALARM CLEARED"
	default:
		header = "ℹ️ " + t.subjectPrefix + " ALARM UPDATE"
	}

	lines := []string{
		header,
		record.Field(alarm.FieldRef) + " - " + record.Description,
		"🕒 " + record.Timestamp,
		"🔁 " + record.Field(alarm.FieldTransition) + " | 📌 " + record.Field(alarm.FieldState),
		"🔢 Value: " + record.Field(alarm.FieldValue),
	}

	if t.alarmsURL != "" {
		lines = append(lines, "🌐 "+t.alarmsURL)
	}

	return strings.Join(lines, "\n")
}
