package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"stockwatch/internal/models"
)

// ChatResolver looks up the active Telegram link for a user. Implemented by
// services.TelegramServicer.
type ChatResolver interface {
	GetActiveLink(userID uint) (*models.TelegramLink, error)
	RecordDelivery(userID uint) error
}

// TelegramSink delivers alerts through the Telegram Bot API sendMessage
// endpoint. Users without an active link are a silent no-op: the alert is
// still considered delivered because there is no channel to fail on.
type TelegramSink struct {
	httpClient *http.Client
	baseURL    string // overridable for tests
	botToken   string
	links      ChatResolver
}

// NewTelegramSink creates a Telegram delivery sink.
func NewTelegramSink(httpClient *http.Client, baseURL, botToken string, links ChatResolver) *TelegramSink {
	return &TelegramSink{httpClient: httpClient, baseURL: baseURL, botToken: botToken, links: links}
}

// Name returns the sink's identifier.
func (s *TelegramSink) Name() string { return "telegram" }

type sendMessageRequest struct {
	ChatID int64  `json:"chat_id"`
	Text   string `json:"text"`
}

type sendMessageResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

// Dispatch sends the event text to the user's linked chat.
func (s *TelegramSink) Dispatch(ctx context.Context, event Event) error {
	link, err := s.links.GetActiveLink(event.UserID)
	if err != nil {
		// No active link means nothing to deliver, not a failure.
		return nil
	}

	payload, err := json.Marshal(sendMessageRequest{ChatID: link.ChatID, Text: event.Message()})
	if err != nil {
		return fmt.Errorf("encoding sendMessage payload: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", s.baseURL, s.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("building sendMessage request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("sendMessage request: %w", err)
	}
	defer resp.Body.Close()

	var result sendMessageResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&result); err != nil {
		return fmt.Errorf("decoding sendMessage response: %w", err)
	}
	if !result.OK {
		return fmt.Errorf("sendMessage rejected: %s", result.Description)
	}

	if err := s.links.RecordDelivery(event.UserID); err != nil {
		// Bookkeeping only; the message is already out.
		return nil
	}
	return nil
}
