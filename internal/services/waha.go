package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"andaman_booking_echo/internal/config"
)

type WahaService struct {
	baseURL string
	apiKey  string
	session string
	client  *http.Client
	log     *logrus.Logger

	// pauses between seen, typing and send
	pace [3]time.Duration
}

func NewWahaService(cfg config.WahaConfig, log *logrus.Logger) *WahaService {
	session := cfg.Session
	if session == "" {
		session = "default"
	}
	return &WahaService{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		session: session,
		client:  &http.Client{Timeout: 15 * time.Second},
		log:     log,
		pace:    [3]time.Duration{100 * time.Millisecond, 150 * time.Millisecond, 50 * time.Millisecond},
	}
}

func (s *WahaService) makeRequest(ctx context.Context, method, endpoint string, payload interface{}) error {
	var bodyReader io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal payload: %w", err)
		}
		bodyReader = bytes.NewBuffer(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+endpoint, bodyReader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Api-Key", s.apiKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("request failed with status %d: %s", resp.StatusCode, string(body))
	}

	return nil
}

func (s *WahaService) chatAction(ctx context.Context, endpoint, chatID string) error {
	return s.makeRequest(ctx, http.MethodPost, endpoint, map[string]string{
		"chatId":  chatID,
		"session": s.session,
	})
}

// NormalizeChatID turns a phone number into a WhatsApp chat id. Local Indian
// numbers (leading 0 or a bare ten digits) get the 91 country code.
func NormalizeChatID(chatID string) string {
	chatID = strings.TrimSpace(chatID)

	if strings.HasSuffix(chatID, "@g.us") {
		return chatID
	}

	chatID = strings.TrimSuffix(chatID, "@c.us")
	chatID = strings.NewReplacer("+", "", " ", "", "-", "").Replace(chatID)

	switch {
	case strings.HasPrefix(chatID, "0"):
		chatID = "91" + strings.TrimLeft(chatID, "0")
	case len(chatID) == 10:
		chatID = "91" + chatID
	}

	return chatID + "@c.us"
}

func (s *WahaService) pause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// SendMessage mimics a person: seen, typing, stop typing, then the text.
func (s *WahaService) SendMessage(ctx context.Context, chatID, text string) error {
	chatID = NormalizeChatID(chatID)

	steps := []struct {
		endpoint string
		label    string
	}{
		{"/api/sendSeen", "send seen"},
		{"/api/startTyping", "start typing"},
		{"/api/stopTyping", "stop typing"},
	}
	for i, step := range steps {
		if err := s.chatAction(ctx, step.endpoint, chatID); err != nil {
			return fmt.Errorf("failed to %s: %w", step.label, err)
		}
		if err := s.pause(ctx, s.pace[i]); err != nil {
			return err
		}
	}

	if err := s.makeRequest(ctx, http.MethodPost, "/api/sendText", map[string]string{
		"chatId":  chatID,
		"text":    text,
		"session": s.session,
	}); err != nil {
		return fmt.Errorf("failed to send text: %w", err)
	}

	s.log.WithField("chat_id", chatID).Debug("whatsapp message sent")
	return nil
}
