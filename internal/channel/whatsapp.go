package channel

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/lalithlochan/crmflow/internal/notify"
)

type WhatsAppConfig struct {
	URL     string
	Token   string
	Timeout time.Duration
}

// WhatsAppAdapter posts messages to a WhatsApp Business HTTP gateway.
type WhatsAppAdapter struct {
	client *http.Client
	url    string
	token  string
	logger *zap.Logger
}

func NewWhatsAppAdapter(cfg WhatsAppConfig, logger *zap.Logger) *WhatsAppAdapter {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	return &WhatsAppAdapter{
		client: &http.Client{Timeout: timeout},
		url:    cfg.URL,
		token:  cfg.Token,
		logger: logger,
	}
}

func (a *WhatsAppAdapter) Channel() notify.Channel      { return notify.ChannelWhatsApp }
func (a *WhatsAppAdapter) Requires() notify.ContactKind { return notify.ContactPhone }

type whatsAppMessage struct {
	To   string `json:"to"`
	Type string `json:"type"`
	Text struct {
		Body       string `json:"body"`
		PreviewURL bool   `json:"preview_url"`
	} `json:"text"`
}

func (a *WhatsAppAdapter) Deliver(ctx context.Context, to notify.Recipient, msg notify.Message) error {
	if a.url == "" {
		return errors.New("whatsapp api url not configured")
	}

	var body whatsAppMessage
	body.To = to.Contact
	body.Type = "text"
	body.Text.Body = whatsAppText(msg)
	body.Text.PreviewURL = msg.Link != ""

	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode whatsapp message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create whatsapp request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "crmflow/1.0.0")
	if a.token != "" {
		req.Header.Set("Authorization", "Bearer "+a.token)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("whatsapp request failed: %w", err)
	}
	defer resp.Body.Close()

	preview, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("whatsapp returned non-2xx status: %d, body: %s", resp.StatusCode, string(preview))
	}

	a.logger.Info("whatsapp message sent",
		zap.String("recipient_id", to.ID),
		zap.String("notification_type", msg.Type),
		zap.Int("status_code", resp.StatusCode),
	)
	return nil
}

func whatsAppText(msg notify.Message) string {
	text := msg.Body
	if msg.Title != "" && msg.Title != msg.Body {
		text = "*" + msg.Title + "*\n" + text
	}
	if msg.Link != "" {
		text += "\n" + msg.Link
	}
	return text
}
