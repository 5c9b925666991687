// Package notify pushes assistant replies back out through messaging
// connectors.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/natthamonpisit/PARA-Brain-sub001/internal/retry"
)

// Sender delivers one reply to a chat. replyTo is the provider message id to
// thread under; zero means no threading.
type Sender interface {
	SendReply(ctx context.Context, chatID int64, replyTo int, text string) error
}

// TelegramSender sends replies through the Telegram Bot API. When the
// original message can no longer be referenced the send degrades to an
// unthreaded message instead of failing.
type TelegramSender struct {
	client  *http.Client
	baseURL string
	token   string
}

// NewTelegramSender creates a sender for the given bot token.
func NewTelegramSender(token string) *TelegramSender {
	return &TelegramSender{
		client:  &http.Client{Timeout: 10 * time.Second},
		baseURL: "https://api.telegram.org",
		token:   token,
	}
}

// NewTelegramSenderWithBaseURL overrides the API host, for tests.
func NewTelegramSenderWithBaseURL(token, baseURL string) *TelegramSender {
	s := NewTelegramSender(token)
	s.baseURL = baseURL
	return s
}

type sendMessagePayload struct {
	ChatID           int64  `json:"chat_id"`
	Text             string `json:"text"`
	ReplyToMessageID int    `json:"reply_to_message_id,omitempty"`
}

// SendReply posts the text, threaded under replyTo when possible. A 400 on
// the threaded attempt (message deleted or too old) retries unthreaded;
// transport failures would fail the unthreaded resend identically and are
// surfaced as is.
func (s *TelegramSender) SendReply(ctx context.Context, chatID int64, replyTo int, text string) error {
	err := s.send(ctx, sendMessagePayload{ChatID: chatID, Text: text, ReplyToMessageID: replyTo})
	if err == nil || replyTo == 0 || !isBadRequest(err) {
		return err
	}
	log.Warn().Err(err).Int64("chat_id", chatID).Msg("telegram_reply_degraded")
	return s.send(ctx, sendMessagePayload{ChatID: chatID, Text: text})
}

func isBadRequest(err error) bool {
	var statusErr *retry.HTTPStatusError
	return errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusBadRequest
}

func (s *TelegramSender) send(ctx context.Context, payload sendMessagePayload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("telegram send: %w", err)
	}
	url := fmt.Sprintf("%s/bot%s/sendMessage", s.baseURL, s.token)

	_, err = retry.Do(ctx, retry.DefaultPolicy, func(ctx context.Context) (struct{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return struct{}{}, err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := s.client.Do(req)
		if err != nil {
			return struct{}{}, err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			return struct{}{}, &retry.HTTPStatusError{StatusCode: resp.StatusCode, Body: string(data)}
		}
		return struct{}{}, nil
	})
	if err != nil {
		return fmt.Errorf("telegram send: %w", err)
	}
	return nil
}

// PhotoFetcher downloads a photo payload by provider file id.
type PhotoFetcher interface {
	DownloadPhoto(ctx context.Context, fileID string) (data []byte, mimeType string, err error)
}

type getFileResponse struct {
	OK     bool `json:"ok"`
	Result struct {
		FilePath string `json:"file_path"`
	} `json:"result"`
}

// DownloadPhoto resolves the file path via getFile and fetches the bytes.
func (s *TelegramSender) DownloadPhoto(ctx context.Context, fileID string) ([]byte, string, error) {
	url := fmt.Sprintf("%s/bot%s/getFile?file_id=%s", s.baseURL, s.token, fileID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", fmt.Errorf("telegram getFile: %w", err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("telegram getFile: %w", err)
	}
	defer resp.Body.Close()

	var meta getFileResponse
	if err := json.NewDecoder(resp.Body).Decode(&meta); err != nil || !meta.OK || meta.Result.FilePath == "" {
		return nil, "", fmt.Errorf("telegram getFile: unusable response")
	}

	fileURL := fmt.Sprintf("%s/file/bot%s/%s", s.baseURL, s.token, meta.Result.FilePath)
	fileReq, err := http.NewRequestWithContext(ctx, http.MethodGet, fileURL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("telegram file fetch: %w", err)
	}
	fileResp, err := s.client.Do(fileReq)
	if err != nil {
		return nil, "", fmt.Errorf("telegram file fetch: %w", err)
	}
	defer fileResp.Body.Close()
	if fileResp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("telegram file fetch: status %d", fileResp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(fileResp.Body, 8<<20))
	if err != nil {
		return nil, "", fmt.Errorf("telegram file fetch: %w", err)
	}
	mimeType := fileResp.Header.Get("Content-Type")
	if mimeType == "" {
		mimeType = "image/jpeg"
	}
	return data, mimeType, nil
}

// NoopSender discards replies. Used when no messaging connector is
// configured.
type NoopSender struct{}

func (NoopSender) SendReply(context.Context, int64, int, string) error { return nil }
