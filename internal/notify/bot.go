package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// BotClient posts notifications to the messaging bot over HTTP.
type BotClient struct {
	baseURL     string
	messagePath string
	paymentPath string
	token       string
	httpClient  *http.Client
}

// BotOptions configures a BotClient.
type BotOptions struct {
	BaseURL     string
	MessagePath string
	PaymentPath string
	Token       string
	Timeout     time.Duration
}

func NewBotClient(opts BotOptions) *BotClient {
	return &BotClient{
		baseURL:     strings.TrimRight(opts.BaseURL, "/"),
		messagePath: opts.MessagePath,
		paymentPath: opts.PaymentPath,
		token:       opts.Token,
		httpClient:  &http.Client{Timeout: opts.Timeout},
	}
}

func (c *BotClient) NotifyFamily(ctx context.Context, msg FamilyMessage) error {
	if msg.Phone == "" {
		return fmt.Errorf("bot: no phone for %s", msg.Name)
	}
	return c.post(ctx, c.messagePath, msg)
}

func (c *BotClient) NotifyPayment(ctx context.Context, msg PaymentMessage) error {
	return c.post(ctx, c.paymentPath, msg)
}

func (c *BotClient) post(ctx context.Context, path string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("bot: encode payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("bot: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("X-Bot-Token", c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("bot: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		text, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("bot: status %d: %s", resp.StatusCode, strings.TrimSpace(string(text)))
	}
	return nil
}
