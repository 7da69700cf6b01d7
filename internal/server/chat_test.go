package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/54b3r/pharmabot/internal/chat"
	"github.com/54b3r/pharmabot/internal/store"
)

// ---------------------------------------------------------------------------
// Fakes
// ---------------------------------------------------------------------------

// fakeAnswerer records the input it was given and returns a fixed result.
type fakeAnswerer struct {
	result chat.Result
	got    chat.Input
	calls  int
}

func (f *fakeAnswerer) Answer(_ context.Context, in chat.Input) chat.Result {
	f.calls++
	f.got = in
	return f.result
}

type fakeHistory struct {
	turns    []store.Turn
	err      error
	clearErr error
	cleared  []string
}

func (f *fakeHistory) History(context.Context, string) ([]store.Turn, error) {
	return f.turns, f.err
}

func (f *fakeHistory) Clear(_ context.Context, userID string) error {
	if f.clearErr != nil {
		return f.clearErr
	}
	f.cleared = append(f.cleared, userID)
	return nil
}

type fakeSessions struct {
	expired []string
	err     error
}

func (f *fakeSessions) Expire(_ context.Context, userID string) error {
	f.expired = append(f.expired, userID)
	return f.err
}

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// newTestServer builds a *Server with fakes and an isolated registry, without
// going through New.
func newTestServer() *Server {
	return &Server{
		answerer: &fakeAnswerer{},
		history:  &fakeHistory{},
		cfg:      &Config{ChatTimeout: time.Minute, MaxUploadBytes: 1 << 20},
		log:      discardLogger(),
		metrics:  NewMetrics(prometheus.NewRegistry()),
	}
}

func newFormRequest(t *testing.T, body string) *http.Request {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func newMultipartRequest(t *testing.T, fields map[string]string, image []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatal(err)
		}
	}
	if image != nil {
		fw, err := mw.CreateFormFile("image", "prescription.png")
		if err != nil {
			t.Fatal(err)
		}
		if _, err := fw.Write(image); err != nil {
			t.Fatal(err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest(http.MethodPost, "/chat", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func decode[T any](t *testing.T, body io.Reader) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(body).Decode(&v); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return v
}

// ---------------------------------------------------------------------------
// POST /chat: validation
// ---------------------------------------------------------------------------

func TestHandleChat_Validation(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		req  func(t *testing.T) *http.Request
		want string
	}{
		{"missing user", func(t *testing.T) *http.Request {
			return newFormRequest(t, "question=hi")
		}, detailNoUser},
		{"no question no image", func(t *testing.T) *http.Request {
			return newFormRequest(t, "user_id=1")
		}, detailNoInput},
		{"blank question", func(t *testing.T) *http.Request {
			return newFormRequest(t, "user_id=1&question=%20%20")
		}, detailNoInput},
		{"is_image without image", func(t *testing.T) *http.Request {
			return newMultipartRequest(t, map[string]string{"user_id": "1", "is_image": "true"}, nil)
		}, detailImageMissing},
		{"is_image urlencoded", func(t *testing.T) *http.Request {
			return newFormRequest(t, "user_id=1&is_image=true&question=hi")
		}, detailImageMissing},
		{"bad is_image", func(t *testing.T) *http.Request {
			return newFormRequest(t, "user_id=1&is_image=maybe&question=hi")
		}, detailBadIsImage},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			s := newTestServer()
			a := s.answerer.(*fakeAnswerer)
			w := httptest.NewRecorder()

			s.handleChat(w, tc.req(t))

			if w.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d", w.Code)
			}
			if got := decode[errorResponse](t, w.Body); got.Detail != tc.want {
				t.Errorf("detail: expected %q, got %q", tc.want, got.Detail)
			}
			if a.calls != 0 {
				t.Errorf("answerer must not run on invalid input, ran %d times", a.calls)
			}
		})
	}
}

func TestHandleChat_BodyTooLarge(t *testing.T) {
	t.Parallel()

	s := newTestServer()
	s.cfg.MaxUploadBytes = 64
	req := newMultipartRequest(t, map[string]string{"user_id": "1", "is_image": "true"}, bytes.Repeat([]byte{0x89}, 1024))
	w := httptest.NewRecorder()

	s.handleChat(w, req)

	if w.Code != http.StatusRequestEntityTooLarge && w.Code != http.StatusBadRequest {
		t.Fatalf("expected 413 or 400, got %d", w.Code)
	}
}

// ---------------------------------------------------------------------------
// POST /chat: pipeline results
// ---------------------------------------------------------------------------

func TestHandleChat_Question(t *testing.T) {
	t.Parallel()

	s := newTestServer()
	a := s.answerer.(*fakeAnswerer)
	a.result = chat.Result{SessionID: "sess-1", Reply: "Aspirin costs $4.99.", Status: chat.StatusOK}
	w := httptest.NewRecorder()

	s.handleChat(w, newFormRequest(t, "user_id=42&question=How+much+is+aspirin%3F"))

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d, body: %s", w.Code, w.Body.String())
	}
	got := decode[chatResponse](t, w.Body)
	if got.SessionID != "sess-1" || got.Response != "Aspirin costs $4.99." {
		t.Errorf("unexpected response: %+v", got)
	}
	if a.got.UserID != "42" || a.got.Question != "How much is aspirin?" || a.got.IsImage {
		t.Errorf("unexpected input: %+v", a.got)
	}
}

func TestHandleChat_Image(t *testing.T) {
	t.Parallel()

	s := newTestServer()
	a := s.answerer.(*fakeAnswerer)
	a.result = chat.Result{SessionID: "s", Reply: "Yes, loratadine is in stock.", Status: chat.StatusOK}
	img := []byte("\x89PNG\r\n\x1a\nfake")
	w := httptest.NewRecorder()

	s.handleChat(w, newMultipartRequest(t, map[string]string{"user_id": "3", "is_image": "true"}, img))

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d, body: %s", w.Code, w.Body.String())
	}
	if !a.got.IsImage || !bytes.Equal(a.got.Image, img) {
		t.Errorf("image not forwarded: is_image=%v len=%d", a.got.IsImage, len(a.got.Image))
	}
}

// TestHandleChat_StageFailureInBand verifies that pipeline failures are
// delivered as the response text with a 200, not as an HTTP error.
func TestHandleChat_StageFailureInBand(t *testing.T) {
	t.Parallel()

	s := newTestServer()
	a := s.answerer.(*fakeAnswerer)
	a.result = chat.Result{
		SessionID: "s",
		Reply:     chat.FailureMessage(chat.StageRetrieveDocument),
		Status:    chat.StatusFailed,
		Stage:     chat.StageRetrieveDocument,
		Err:       errors.New("qdrant unavailable"),
	}
	w := httptest.NewRecorder()

	s.handleChat(w, newFormRequest(t, "user_id=1&question=hi"))

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if got := decode[chatResponse](t, w.Body); got.Response != "Error retrieving relevant documents." {
		t.Errorf("response: got %q", got.Response)
	}
	if strings.Contains(w.Body.String(), "qdrant unavailable") {
		t.Error("internal error text must not reach the client")
	}
}

// ---------------------------------------------------------------------------
// GET /chat_history and DELETE /clear_chat_history
// ---------------------------------------------------------------------------

func TestHandleChatHistory(t *testing.T) {
	t.Parallel()

	s := newTestServer()
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.history = &fakeHistory{turns: []store.Turn{
		{UserID: "1", Question: "hi", Answer: "Hello! How can I help?", CreatedAt: ts},
		{UserID: "1", Question: "aspirin price?", Answer: "$4.99", CreatedAt: ts.Add(time.Minute)},
	}}
	req := httptest.NewRequest(http.MethodGet, "/chat_history?user_id=1", nil)
	w := httptest.NewRecorder()

	s.handleChatHistory(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	got := decode[historyResponse](t, w.Body)
	if len(got.ChatHistory) != 2 {
		t.Fatalf("expected 2 turns, got %d", len(got.ChatHistory))
	}
	first := got.ChatHistory[0]
	if first.UserMessage != "hi" || first.AssistantResponse != "Hello! How can I help?" || !first.Timestamp.Equal(ts) {
		t.Errorf("unexpected first turn: %+v", first)
	}
}

func TestHandleChatHistory_EmptyIsArray(t *testing.T) {
	t.Parallel()

	s := newTestServer()
	req := httptest.NewRequest(http.MethodGet, "/chat_history?user_id=9", nil)
	w := httptest.NewRecorder()

	s.handleChatHistory(w, req)

	if !strings.Contains(w.Body.String(), `"chat_history":[]`) {
		t.Errorf("expected empty array, got %s", w.Body.String())
	}
}

func TestHandleChatHistory_Errors(t *testing.T) {
	t.Parallel()

	s := newTestServer()
	w := httptest.NewRecorder()
	s.handleChatHistory(w, httptest.NewRequest(http.MethodGet, "/chat_history", nil))
	if w.Code != http.StatusBadRequest {
		t.Errorf("missing user_id: expected 400, got %d", w.Code)
	}

	s.history = &fakeHistory{err: errors.New("disk I/O error")}
	w = httptest.NewRecorder()
	s.handleChatHistory(w, httptest.NewRequest(http.MethodGet, "/chat_history?user_id=1", nil))
	if w.Code != http.StatusInternalServerError {
		t.Errorf("store failure: expected 500, got %d", w.Code)
	}
	if got := decode[errorResponse](t, w.Body); got.Detail != "Error retrieving chat history" {
		t.Errorf("detail: got %q", got.Detail)
	}
}

func TestHandleClearHistory(t *testing.T) {
	t.Parallel()

	s := newTestServer()
	h := &fakeHistory{}
	sess := &fakeSessions{}
	s.history, s.sessions = h, sess
	req := httptest.NewRequest(http.MethodDelete, "/clear_chat_history?user_id=5", nil)
	w := httptest.NewRecorder()

	s.handleClearHistory(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if got := decode[messageResponse](t, w.Body); got.Message != "Chat history for user 5 has been cleared." {
		t.Errorf("message: got %q", got.Message)
	}
	if len(h.cleared) != 1 || h.cleared[0] != "5" {
		t.Errorf("cleared: got %v", h.cleared)
	}
	if len(sess.expired) != 1 || sess.expired[0] != "5" {
		t.Errorf("expired: got %v", sess.expired)
	}
}

func TestHandleClearHistory_Failures(t *testing.T) {
	t.Parallel()

	s := newTestServer()
	s.history = &fakeHistory{clearErr: errors.New("locked")}
	sess := &fakeSessions{}
	s.sessions = sess
	w := httptest.NewRecorder()
	s.handleClearHistory(w, httptest.NewRequest(http.MethodDelete, "/clear_chat_history?user_id=5", nil))
	if w.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", w.Code)
	}
	if len(sess.expired) != 0 {
		t.Error("session must survive a failed clear")
	}

	// A session store failure does not fail the request.
	s.history = &fakeHistory{}
	s.sessions = &fakeSessions{err: errors.New("redis down")}
	w = httptest.NewRecorder()
	s.handleClearHistory(w, httptest.NewRequest(http.MethodDelete, "/clear_chat_history?user_id=5", nil))
	if w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}
}

// ---------------------------------------------------------------------------
// Full routing through New
// ---------------------------------------------------------------------------

func TestNew_Validation(t *testing.T) {
	t.Parallel()

	if _, err := New(nil, &fakeHistory{}, nil, nil); err == nil {
		t.Error("expected error for nil answerer")
	}
	if _, err := New(&fakeAnswerer{}, nil, nil, nil); err == nil {
		t.Error("expected error for nil history")
	}
}

func TestRoutes_AuthAndMethods(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	a := &fakeAnswerer{result: chat.Result{SessionID: "s", Reply: "r", Status: chat.StatusOK}}
	s, err := New(a, &fakeHistory{}, nil, &Config{
		APIKey:          "secret",
		Logger:          discardLogger(),
		MetricsRegistry: reg,
		MetricsGatherer: reg,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(s.stopRL)
	h := s.Handler()

	cases := []struct {
		name   string
		req    *http.Request
		auth   bool
		status int
	}{
		{"chat without token", newFormRequest(t, "user_id=1&question=hi"), false, http.StatusUnauthorized},
		{"chat with token", newFormRequest(t, "user_id=1&question=hi"), true, http.StatusOK},
		{"history with token", httptest.NewRequest(http.MethodGet, "/chat_history?user_id=1", nil), true, http.StatusOK},
		{"clear wrong method", httptest.NewRequest(http.MethodGet, "/clear_chat_history?user_id=1", nil), true, http.StatusMethodNotAllowed},
		{"health is open", httptest.NewRequest(http.MethodGet, "/api/health", nil), false, http.StatusOK},
		{"ready is open", httptest.NewRequest(http.MethodGet, "/api/ready", nil), false, http.StatusOK},
	}
	for _, tc := range cases {
		if tc.auth {
			tc.req.Header.Set("Authorization", "Bearer secret")
		}
		w := httptest.NewRecorder()
		h.ServeHTTP(w, tc.req)
		if w.Code != tc.status {
			t.Errorf("%s: expected %d, got %d", tc.name, tc.status, w.Code)
		}
	}
}
