package messaging

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"lead_automation_backend/platform/config"
	"lead_automation_backend/platform/logger"
	"lead_automation_backend/platform/phone"
)

// WhatsAppClient sends messages through a gowa gateway.
type WhatsAppClient struct {
	baseURL   string
	apiKey    string
	deviceID  string
	http      *http.Client
	templates *Templates
	log       *logger.Logger
}

type gowaRequest struct {
	Phone   string `json:"phone"`
	Message string `json:"message"`
}

// NewWhatsAppSender returns a gowa-backed Sender, or Disabled when no gateway URL is configured.
func NewWhatsAppSender(cfg config.WhatsAppConfig, templates *Templates, log *logger.Logger) Sender {
	if !cfg.IsWhatsAppEnabled() {
		return Disabled{Channel: ChannelWhatsApp}
	}
	return NewWhatsAppClient(cfg.GetWhatsAppURL(), cfg.GetWhatsAppKey(), cfg.GetWhatsAppDeviceID(), templates, log)
}

// NewWhatsAppClient builds a gowa client for baseURL.
func NewWhatsAppClient(baseURL, apiKey, deviceID string, templates *Templates, log *logger.Logger) *WhatsAppClient {
	return &WhatsAppClient{
		baseURL:   strings.TrimRight(baseURL, "/"),
		apiKey:    apiKey,
		deviceID:  deviceID,
		http:      &http.Client{Timeout: 10 * time.Second},
		templates: templates,
		log:       log,
	}
}

func (c *WhatsAppClient) SendTemplate(ctx context.Context, msg TemplateMessage) error {
	rendered, err := c.templates.Render(ChannelWhatsApp, msg)
	if err != nil {
		return err
	}
	return c.SendMessage(ctx, rendered)
}

func (c *WhatsAppClient) SendMessage(ctx context.Context, msg Message) error {
	normalized, err := phone.ParseE164(msg.Recipient, phone.DefaultRegion)
	if err != nil {
		return newError(ChannelWhatsApp, CodeInvalidRecipient, "recipient is not a valid phone number", err)
	}
	if strings.TrimSpace(msg.Body) == "" {
		return newError(ChannelWhatsApp, CodeRender, "message body is empty", nil)
	}

	payload := gowaRequest{
		Phone:   strings.TrimPrefix(normalized, "+"),
		Message: msg.Body,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return newError(ChannelWhatsApp, CodeRender, "marshal payload", err)
	}

	url := fmt.Sprintf("%s/send/message", c.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(body))
	if err != nil {
		return newError(ChannelWhatsApp, CodeTransport, "build request", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", formatAuthHeader(c.apiKey))
	}
	if c.deviceID != "" {
		req.Header.Set("X-Device-Id", c.deviceID)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return newError(ChannelWhatsApp, CodeTransport, "request failed", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode >= http.StatusBadRequest {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		cause := errors.New(strings.TrimSpace(string(data)))
		if resp.StatusCode >= http.StatusInternalServerError || resp.StatusCode == http.StatusTooManyRequests {
			return newError(ChannelWhatsApp, CodeTransport, fmt.Sprintf("gateway returned %d", resp.StatusCode), cause)
		}
		return newError(ChannelWhatsApp, CodeRejected, fmt.Sprintf("gateway returned %d", resp.StatusCode), cause)
	}

	c.log.Info("whatsapp sent via gowa", "phone", payload.Phone)
	return nil
}

func formatAuthHeader(apiKey string) string {
	if strings.HasPrefix(strings.ToLower(apiKey), "basic ") {
		return apiKey
	}

	encoded := base64.StdEncoding.EncodeToString([]byte(apiKey))
	return "Basic " + encoded
}
