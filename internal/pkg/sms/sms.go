package sms

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/qs3c/calmness_server/config"
)

var ErrNotConfigured = errors.New("sms gateway is not configured")

// Client 通用 HTTP 短信网关：POST JSON {to, from, message}，Bearer 鉴权
type Client struct {
	gatewayURL string
	apiToken   string
	sender     string
	httpClient *http.Client
}

func NewClient(cfg *config.SMSConfig) *Client {
	return &Client{
		gatewayURL: cfg.GatewayURL,
		apiToken:   cfg.APIToken,
		sender:     cfg.Sender,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

type sendRequest struct {
	To      string `json:"to"`
	From    string `json:"from,omitempty"`
	Message string `json:"message"`
}

func (c *Client) Send(ctx context.Context, to, message string) error {
	if c.gatewayURL == "" {
		return ErrNotConfigured
	}

	payload, err := json.Marshal(sendRequest{To: to, From: c.sender, Message: message})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.gatewayURL, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("sms request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("sms gateway error (%d): %s", resp.StatusCode, string(body))
	}
	return nil
}

// SendCode 发送二次验证码短信
func (c *Client) SendCode(ctx context.Context, to, code string) error {
	return c.Send(ctx, to, fmt.Sprintf("Your Calmness FI verification code is %s. It expires in 10 minutes.", code))
}
