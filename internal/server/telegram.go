package server

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/natthamonpisit/PARA-Brain-sub001/internal/capture"
	"github.com/natthamonpisit/PARA-Brain-sub001/internal/notify"
	"github.com/natthamonpisit/PARA-Brain-sub001/internal/para"
)

// telegramUpdate is the subset of the Bot API update payload we consume.
type telegramUpdate struct {
	UpdateID int64 `json:"update_id"`
	Message  *struct {
		MessageID int `json:"message_id"`
		Chat      struct {
			ID int64 `json:"id"`
		} `json:"chat"`
		Text    string `json:"text,omitempty"`
		Caption string `json:"caption,omitempty"`
		Photo   []struct {
			FileID   string `json:"file_id"`
			FileSize int64  `json:"file_size,omitempty"`
		} `json:"photo,omitempty"`
	} `json:"message"`
}

// handleTelegramWebhook drives the pipeline from a Telegram update: shared
// secret check, chat allow-list, text or largest-photo extraction, reply
// push with degradation. Always answers 200 so Telegram stops redelivering;
// idempotency is handled by the capture log claim.
func (s *Server) handleTelegramWebhook(w http.ResponseWriter, r *http.Request) {
	if s.webhookSecret != "" {
		got := r.Header.Get("X-Telegram-Bot-Api-Secret-Token")
		if subtle.ConstantTimeCompare([]byte(got), []byte(s.webhookSecret)) != 1 {
			writeError(w, http.StatusUnauthorized, "unauthorized", "bad webhook secret")
			return
		}
	}

	var update telegramUpdate
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&update); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid update payload")
		return
	}
	if update.Message == nil {
		writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
		return
	}
	msg := update.Message

	if len(s.allowedChatIDs) > 0 && !s.allowedChatIDs[msg.Chat.ID] {
		log.Warn().Int64("chat_id", msg.Chat.ID).Msg("webhook_chat_rejected")
		writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
		return
	}

	eventID := fmt.Sprintf("tg-%d", update.UpdateID)
	ctx := r.Context()

	var env *capture.Envelope
	var err error
	switch {
	case len(msg.Photo) > 0:
		env, err = s.captureWebhookPhoto(ctx, eventID, msg.Photo[len(msg.Photo)-1].FileID, msg.Caption)
	case msg.Text != "":
		env, err = s.pipeline.Capture(ctx, &capture.CaptureRequest{
			Message: msg.Text,
			Channel: capture.ChannelTelegram,
			EventID: eventID,
		})
	default:
		writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
		return
	}
	if err != nil {
		log.Error().Err(err).Int64("chat_id", msg.Chat.ID).Msg("webhook_capture_failed")
		writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
		return
	}

	if env.Reply != "" {
		if err := s.sender.SendReply(ctx, msg.Chat.ID, msg.MessageID, env.Reply); err != nil {
			log.Error().Err(err).Int64("chat_id", msg.Chat.ID).Msg("webhook_reply_failed")
		}
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// captureWebhookPhoto downloads the referenced photo and runs the image
// pipeline; when the connector cannot fetch files the caption alone is
// captured as text.
func (s *Server) captureWebhookPhoto(ctx context.Context, eventID, fileID, caption string) (*capture.Envelope, error) {
	fetcher, ok := s.sender.(notify.PhotoFetcher)
	if ok {
		data, mimeType, err := fetcher.DownloadPhoto(ctx, fileID)
		if err == nil {
			if int64(len(data)) > s.imageMaxBytes {
				return &capture.Envelope{
					Contract:   capture.EnvelopeContract,
					Success:    false,
					Status:     para.StatusFailed,
					ActionType: para.ActionChat,
					Reply:      "That image is too large for me to process.",
				}, nil
			}
			return s.pipeline.CaptureImage(ctx, &capture.ImageRequest{
				Image:    data,
				MimeType: mimeType,
				Caption:  caption,
				Channel:  capture.ChannelTelegram,
				EventID:  eventID,
			})
		}
		log.Warn().Err(err).Msg("webhook_photo_download_failed")
	}

	if caption == "" {
		return &capture.Envelope{
			Contract:   capture.EnvelopeContract,
			Success:    false,
			Status:     para.StatusFailed,
			ActionType: para.ActionChat,
			Reply:      "I couldn't fetch that image. A caption would help.",
		}, nil
	}
	return s.pipeline.Capture(ctx, &capture.CaptureRequest{
		Message: caption,
		Channel: capture.ChannelTelegram,
		EventID: eventID,
	})
}
