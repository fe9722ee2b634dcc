package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/rezoningwatch/rezoningwatch/pkg/types"
)

// Supported webhook types.
const (
	TypeSlack = "slack"
	TypeTeams = "teams"
	TypeHTTP  = "http"
)

// DefaultWebhookTimeout bounds a single webhook post.
const DefaultWebhookTimeout = 10 * time.Second

// Webhook posts reports to a single URL in the payload shape of Type.
type Webhook struct {
	Type   string
	URL    string
	client *http.Client
	logger *slog.Logger
}

// NewWebhook returns a Webhook. A nil client gets a default client with a
// 10s timeout.
func NewWebhook(kind, url string, client *http.Client, logger *slog.Logger) (*Webhook, error) {
	switch kind {
	case TypeSlack, TypeTeams, TypeHTTP:
	case "":
		kind = TypeSlack
	default:
		return nil, fmt.Errorf("notify: unknown webhook type %q", kind)
	}
	if url == "" {
		return nil, fmt.Errorf("notify: %s webhook: url is required", kind)
	}
	if client == nil {
		client = &http.Client{Timeout: DefaultWebhookTimeout}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Webhook{Type: kind, URL: url, client: client, logger: logger}, nil
}

func (w *Webhook) Notify(ctx context.Context, r types.Report) error {
	if r.Empty() {
		return nil
	}

	var payload any
	switch w.Type {
	case TypeSlack:
		payload = map[string]string{"text": SlackText(r)}
	case TypeTeams:
		payload = map[string]any{
			"@type":      "MessageCard",
			"@context":   "http://schema.org/extensions",
			"themeColor": "00D4FF",
			"summary":    summary(r),
			"title":      "Rezoning watch: " + summary(r),
			"text":       SlackText(r),
		}
	default:
		payload = map[string]any{"report": r}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("notify: %s webhook: encode: %w", w.Type, err)
	}
	if err := w.post(ctx, body); err != nil {
		w.logger.Error("notify: webhook delivery failed", "type", w.Type, "err", err)
		return fmt.Errorf("notify: %s webhook: %w", w.Type, err)
	}
	w.logger.Debug("notify: webhook delivered", "type", w.Type, "new", len(r.New), "changed", len(r.Changed))
	return nil
}

func (w *Webhook) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("http post: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook returned HTTP %d", resp.StatusCode)
	}
	return nil
}
