package server

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/natthamonpisit/PARA-Brain-sub001/internal/capture"
)

type captureBody struct {
	Message  string `json:"message"`
	Channel  string `json:"channel,omitempty"`
	EventID  string `json:"event_id,omitempty"`
	Timezone string `json:"timezone,omitempty"`
}

func (s *Server) handleCapture(w http.ResponseWriter, r *http.Request) {
	var body captureBody
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid JSON body")
		return
	}
	if body.Message == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "message is required")
		return
	}
	if body.Channel == "" {
		body.Channel = capture.ChannelAPI
	}

	env, err := s.pipeline.Capture(r.Context(), &capture.CaptureRequest{
		Message:  body.Message,
		Channel:  body.Channel,
		EventID:  body.EventID,
		Timezone: body.Timezone,
	})
	if err != nil {
		log.Error().Err(err).Msg("capture_request_failed")
		writeError(w, http.StatusInternalServerError, "internal", "capture failed")
		return
	}
	writeJSON(w, http.StatusOK, env)
}

type imageBody struct {
	ImageBase64 string `json:"image_base64"`
	MimeType    string `json:"mime_type"`
	Caption     string `json:"caption,omitempty"`
	Channel     string `json:"channel,omitempty"`
	EventID     string `json:"event_id,omitempty"`
	Timezone    string `json:"timezone,omitempty"`
}

func (s *Server) handleCaptureImage(w http.ResponseWriter, r *http.Request) {
	// The base64 body is ~4/3 the image size; bound the reader accordingly.
	var body imageBody
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, s.imageMaxBytes*2)).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid JSON body")
		return
	}
	if body.ImageBase64 == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "image_base64 is required")
		return
	}
	if body.Channel == "" {
		body.Channel = capture.ChannelAPI
	}
	if body.MimeType == "" {
		body.MimeType = "image/jpeg"
	}

	image, err := base64.StdEncoding.DecodeString(body.ImageBase64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "image_base64 is not valid base64")
		return
	}
	if int64(len(image)) > s.imageMaxBytes {
		writeError(w, http.StatusRequestEntityTooLarge, "image_too_large",
			"image exceeds the configured byte ceiling")
		return
	}

	env, err := s.pipeline.CaptureImage(r.Context(), &capture.ImageRequest{
		Image:    image,
		MimeType: body.MimeType,
		Caption:  body.Caption,
		Channel:  body.Channel,
		EventID:  body.EventID,
		Timezone: body.Timezone,
	})
	if err != nil {
		log.Error().Err(err).Msg("image_capture_failed")
		writeError(w, http.StatusInternalServerError, "internal", "image capture failed")
		return
	}
	writeJSON(w, http.StatusOK, env)
}

func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}
	rows, err := s.store.RecentLogs(r.Context(), limit)
	if err != nil {
		log.Error().Err(err).Msg("log_list_failed")
		writeError(w, http.StatusInternalServerError, "internal", "could not list logs")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"logs": rows})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":         "ok",
		"uptime_seconds": int(time.Since(s.startTime).Seconds()),
	})
}
