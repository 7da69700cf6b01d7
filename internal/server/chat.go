package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/54b3r/pharmabot/internal/chat"
	"github.com/54b3r/pharmabot/internal/logging"
)

// Validation messages returned as 400 details by POST /chat.
const (
	detailNoUser       = "user_id is required."
	detailImageMissing = "Image is required if 'is_image' is set to true."
	detailNoInput      = "Please provide either a question or an image."
	detailBadIsImage   = "is_image must be a boolean."
	detailBadForm      = "Invalid form body."
	detailTooLarge     = "Request body too large."
)

// multipartMemory is the part of a multipart body kept in memory; the rest
// spills to temporary files.
const multipartMemory = 8 << 20

// formError is a client error carrying the HTTP status to reply with.
type formError struct {
	status int
	detail string
}

func (e *formError) Error() string { return e.detail }

func badRequest(detail string) *formError {
	return &formError{status: http.StatusBadRequest, detail: detail}
}

// handleChat handles POST /chat. The body is a multipart or urlencoded form
// with user_id, question, is_image and an optional image file. Pipeline
// failures are reported in-band as the response text, so every request that
// passes form validation gets a 200.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	log := logging.FromContext(r.Context())

	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)
	in, ferr := parseChatForm(r)
	if ferr != nil {
		s.metrics.chatRequestsTotal.WithLabelValues("invalid").Inc()
		log.Info("chat: rejected request", slog.String("reason", ferr.detail))
		writeError(r.Context(), w, ferr.status, ferr.detail)
		return
	}
	if r.MultipartForm != nil {
		defer func() { _ = r.MultipartForm.RemoveAll() }()
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.ChatTimeout)
	defer cancel()

	res := s.answerer.Answer(ctx, in)

	outcome := string(res.Status)
	s.metrics.chatRequestsTotal.WithLabelValues(outcome).Inc()
	s.metrics.chatDurationSeconds.WithLabelValues(outcome).Observe(time.Since(start).Seconds())

	log.Info("chat: request complete",
		slog.String("user_id", in.UserID),
		slog.String("session_id", res.SessionID),
		slog.Bool("is_image", in.IsImage),
		slog.String("status", outcome),
		slog.Duration("duration", time.Since(start)),
	)

	writeJSON(r.Context(), w, http.StatusOK, chatResponse{
		SessionID: res.SessionID,
		Response:  res.Reply,
	})
}

// parseChatForm extracts chat.Input from the request form and applies the
// request-level validation rules.
func parseChatForm(r *http.Request) (chat.Input, *formError) {
	var err error
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		err = r.ParseMultipartForm(multipartMemory)
	} else {
		err = r.ParseForm()
	}
	if err != nil {
		return chat.Input{}, formErr(err)
	}

	in := chat.Input{
		UserID:   strings.TrimSpace(r.FormValue("user_id")),
		Question: r.FormValue("question"),
	}
	if in.UserID == "" {
		return chat.Input{}, badRequest(detailNoUser)
	}
	if v := r.FormValue("is_image"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return chat.Input{}, badRequest(detailBadIsImage)
		}
		in.IsImage = b
	}

	if r.MultipartForm != nil {
		image, err := readImage(r)
		if err != nil {
			return chat.Input{}, formErr(err)
		}
		in.Image = image
	}

	switch {
	case in.IsImage && len(in.Image) == 0:
		return chat.Input{}, badRequest(detailImageMissing)
	case !in.IsImage && strings.TrimSpace(in.Question) == "":
		return chat.Input{}, badRequest(detailNoInput)
	}
	return in, nil
}

// readImage returns the uploaded image bytes, or nil when no file was sent.
func readImage(r *http.Request) ([]byte, error) {
	f, _, err := r.FormFile("image")
	if errors.Is(err, http.ErrMissingFile) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("reading image: %w", err)
	}
	return data, nil
}

// formErr maps a body parsing error to 413 or 400.
func formErr(err error) *formError {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return &formError{status: http.StatusRequestEntityTooLarge, detail: detailTooLarge}
	}
	return badRequest(detailBadForm)
}

// handleChatHistory handles GET /chat_history?user_id=.
func (s *Server) handleChatHistory(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())
	userID := strings.TrimSpace(r.URL.Query().Get("user_id"))
	if userID == "" {
		writeError(r.Context(), w, http.StatusBadRequest, detailNoUser)
		return
	}

	turns, err := s.history.History(r.Context(), userID)
	if err != nil {
		log.Error("history: retrieve failed", slog.String("user_id", userID), slog.Any("error", err))
		writeError(r.Context(), w, http.StatusInternalServerError, "Error retrieving chat history")
		return
	}

	resp := historyResponse{ChatHistory: make([]historyEntry, 0, len(turns))}
	for _, t := range turns {
		resp.ChatHistory = append(resp.ChatHistory, historyEntry{
			UserMessage:       t.Question,
			AssistantResponse: t.Answer,
			Timestamp:         t.CreatedAt,
		})
	}
	log.Info("history: retrieved", slog.String("user_id", userID), slog.Int("turns", len(turns)))
	writeJSON(r.Context(), w, http.StatusOK, resp)
}

// handleClearHistory handles DELETE /clear_chat_history?user_id=. The user's
// session is expired as well so the next chat starts a new one.
func (s *Server) handleClearHistory(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())
	userID := strings.TrimSpace(r.URL.Query().Get("user_id"))
	if userID == "" {
		writeError(r.Context(), w, http.StatusBadRequest, detailNoUser)
		return
	}

	if err := s.history.Clear(r.Context(), userID); err != nil {
		log.Error("history: clear failed", slog.String("user_id", userID), slog.Any("error", err))
		writeError(r.Context(), w, http.StatusInternalServerError, "Error clearing chat history")
		return
	}
	if s.sessions != nil {
		if err := s.sessions.Expire(r.Context(), userID); err != nil {
			log.Warn("history: session not expired", slog.String("user_id", userID), slog.Any("error", err))
		}
	}

	msg := fmt.Sprintf("Chat history for user %s has been cleared.", userID)
	log.Info("history: cleared", slog.String("user_id", userID))
	writeJSON(r.Context(), w, http.StatusOK, messageResponse{Message: msg})
}
