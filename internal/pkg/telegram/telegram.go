package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/qs3c/calmness_server/config"
)

var ErrNotConfigured = errors.New("telegram bot is not configured")

// Client 通过 Bot API 管理付费频道成员
type Client struct {
	apiBase    string
	botToken   string
	channelID  string
	httpClient *http.Client
}

func NewClient(cfg *config.TelegramConfig) *Client {
	base := cfg.APIBase
	if base == "" {
		base = "https://api.telegram.org"
	}
	return &Client{
		apiBase:    strings.TrimRight(base, "/"),
		botToken:   cfg.BotToken,
		channelID:  cfg.ChannelID,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

type apiResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

// RemoveMember 将用户移出频道并撤回其消息
func (c *Client) RemoveMember(ctx context.Context, telegramUserID string) error {
	if c.botToken == "" || c.channelID == "" {
		return ErrNotConfigured
	}
	if telegramUserID == "" {
		return errors.New("empty telegram user id")
	}

	form := url.Values{}
	form.Set("chat_id", c.channelID)
	form.Set("user_id", telegramUserID)
	form.Set("revoke_messages", "true")

	endpoint := fmt.Sprintf("%s/bot%s/banChatMember", c.apiBase, c.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("telegram request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read telegram response: %w", err)
	}

	var result apiResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return fmt.Errorf("decode telegram response: %w", err)
	}
	if resp.StatusCode != http.StatusOK || !result.OK {
		return fmt.Errorf("telegram api error (%d): %s", resp.StatusCode, result.Description)
	}

	return nil
}
