package server

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/go-logr/logr"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KANCHARLABRUNDARIKA/KnowledgeBased-MindQuery/internal/apperr"
	"github.com/KANCHARLABRUNDARIKA/KnowledgeBased-MindQuery/internal/models"
	"github.com/KANCHARLABRUNDARIKA/KnowledgeBased-MindQuery/internal/types"
)

type fakeService struct {
	mu       sync.Mutex
	uploads  []string
	lastMode models.Mode
	askErr   error
	crawled  []string
}

func (f *fakeService) UploadDocument(_ context.Context, userID, fileName string, fileBytes []byte, documentType string) (*models.UploadResult, error) {
	if fileName == "bad.png" {
		return nil, apperr.Newf(apperr.KindExtraction, "extract", "unsupported file type")
	}
	f.uploads = append(f.uploads, userID+"/"+fileName+"/"+documentType+"/"+string(fileBytes))
	return &models.UploadResult{DocumentName: fileName, ChunksCreated: 2, UserID: userID}, nil
}

func (f *fakeService) ListDocuments(_ context.Context, userID string) (*models.ListResult, error) {
	docs := []models.DocumentInfo{{Name: "cv.pdf", Chunks: 3, DocumentType: "cv"}}
	return &models.ListResult{Documents: docs, TotalDocuments: len(docs)}, nil
}

func (f *fakeService) DeleteDocument(_ context.Context, userID, documentName string) (*models.DeleteResult, error) {
	if documentName != "cv.pdf" {
		return nil, apperr.Newf(apperr.KindNotFound, "delete", "document %q not found", documentName)
	}
	return &models.DeleteResult{DeletedChunks: 3}, nil
}

func (f *fakeService) ClearKnowledgeBase(_ context.Context, userID string) (*models.ClearResult, error) {
	return &models.ClearResult{ClearedChunks: 7}, nil
}

func (f *fakeService) GetStats(_ context.Context, userID string) (*models.StatsResult, error) {
	return &models.StatsResult{UserID: userID, Status: models.StatusAbsent}, nil
}

func (f *fakeService) mode() models.Mode {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastMode
}

func (f *fakeService) AskQuestion(_ context.Context, userID, question string, mode models.Mode) (*models.Answer, error) {
	f.mu.Lock()
	f.lastMode = mode
	f.mu.Unlock()
	if f.askErr != nil {
		return nil, f.askErr
	}
	return &models.Answer{
		Question: question,
		Answer:   "Paris.",
		Sources:  []models.Source{{DocumentName: "geo.md", ChunkID: 0, Preview: "The capital...", Score: 0.9, KnowledgeBase: "default"}},
		Mode:     mode,
		Status:   models.AnswerOK,
	}, nil
}

func (f *fakeService) IngestURL(_ context.Context, userID, rawURL string, progress types.Progress) (*models.IngestResult, error) {
	f.mu.Lock()
	f.crawled = append(f.crawled, rawURL)
	f.mu.Unlock()
	progress(1, -1, rawURL)
	return &models.IngestResult{KnowledgeBase: userID, Documents: 1, Chunks: 4}, nil
}

func newTestServer(svc Service) *Server {
	gin.SetMode(gin.TestMode)
	return New(Config{}, svc, logr.Discard())
}

func do(t *testing.T, s *Server, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v))
}

func multipartUpload(t *testing.T, target, fileName, content string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", fileName)
	require.NoError(t, err)
	_, err = part.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, target, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestHealth(t *testing.T) {
	s := newTestServer(&fakeService{})
	w := do(t, s, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get(requestIDHeader))
}

func TestRequestIDIsEchoed(t *testing.T) {
	s := newTestServer(&fakeService{})
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(requestIDHeader, "abc-123")
	w := do(t, s, req)
	assert.Equal(t, "abc-123", w.Header().Get(requestIDHeader))
}

func TestUploadDocument(t *testing.T) {
	svc := &fakeService{}
	s := newTestServer(svc)

	w := do(t, s, multipartUpload(t, "/documents/upload?user_id=alice&document_type=cv", "cv.txt", "Go developer"))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var result models.UploadResult
	decode(t, w, &result)
	assert.Equal(t, models.UploadResult{DocumentName: "cv.txt", ChunksCreated: 2, UserID: "alice"}, result)
	assert.Equal(t, []string{"alice/cv.txt/cv/Go developer"}, svc.uploads)
}

func TestUploadErrors(t *testing.T) {
	s := newTestServer(&fakeService{})

	w := do(t, s, multipartUpload(t, "/documents/upload?user_id=alice", "bad.png", "x"))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	var resp ErrorResponse
	decode(t, w, &resp)
	assert.Equal(t, "extraction", resp.Code)

	w = do(t, s, httptest.NewRequest(http.MethodPost, "/documents/upload?user_id=alice", strings.NewReader("")))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDocumentRoutes(t *testing.T) {
	s := newTestServer(&fakeService{})

	w := do(t, s, httptest.NewRequest(http.MethodGet, "/documents/list/alice", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var list models.ListResult
	decode(t, w, &list)
	assert.Equal(t, 1, list.TotalDocuments)
	assert.Equal(t, "cv", list.Documents[0].DocumentType)

	w = do(t, s, httptest.NewRequest(http.MethodDelete, "/documents/alice/cv.pdf", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"deleted_chunks":3}`, w.Body.String())

	w = do(t, s, httptest.NewRequest(http.MethodDelete, "/documents/alice/other.pdf", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(t, s, httptest.NewRequest(http.MethodPost, "/documents/clear/alice", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"cleared_chunks":7}`, w.Body.String())

	w = do(t, s, httptest.NewRequest(http.MethodGet, "/documents/vectorstore/info/alice", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"user_id":"alice","total_documents":0,"total_chunks":0,"status":"absent"}`, w.Body.String())
}

func TestGenerateAnswer(t *testing.T) {
	svc := &fakeService{}
	s := newTestServer(svc)

	req := httptest.NewRequest(http.MethodPost, "/generate-answer",
		strings.NewReader(`{"question":"capital of France?","user_id":"alice","mode":"combined"}`))
	req.Header.Set("Content-Type", "application/json")
	w := do(t, s, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var answer models.Answer
	decode(t, w, &answer)
	assert.Equal(t, "Paris.", answer.Answer)
	assert.Equal(t, models.ModeCombined, answer.Mode)
	require.Len(t, answer.Sources, 1)
	assert.Equal(t, "geo.md", answer.Sources[0].DocumentName)

	// Mode defaults to personal.
	req = httptest.NewRequest(http.MethodPost, "/generate-answer", strings.NewReader(`{"question":"hi","user_id":"alice"}`))
	req.Header.Set("Content-Type", "application/json")
	w = do(t, s, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, models.ModePersonal, svc.mode())
}

func TestGenerateAnswerErrors(t *testing.T) {
	svc := &fakeService{}
	s := newTestServer(svc)

	for _, body := range []string{`{"user_id":"alice"}`, `{"question":"q","mode":"everything"}`, `not json`} {
		req := httptest.NewRequest(http.MethodPost, "/generate-answer", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		w := do(t, s, req)
		assert.Equal(t, http.StatusBadRequest, w.Code, body)
	}

	svc.askErr = apperr.Newf(apperr.KindEmbeddingService, "embed", "connection refused")
	req := httptest.NewRequest(http.MethodPost, "/generate-answer", strings.NewReader(`{"question":"q","user_id":"alice"}`))
	req.Header.Set("Content-Type", "application/json")
	w := do(t, s, req)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestStatusOf(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{apperr.NotFound, http.StatusNotFound},
		{apperr.Extraction, http.StatusBadRequest},
		{apperr.InvalidInput, http.StatusBadRequest},
		{apperr.Configuration, http.StatusInternalServerError},
		{apperr.EmbeddingService, http.StatusServiceUnavailable},
		{apperr.Generation, http.StatusServiceUnavailable},
		{assert.AnError, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		status, _ := statusOf(tc.err)
		assert.Equal(t, tc.status, status, tc.err.Error())
	}
}

func TestWebSocketChat(t *testing.T) {
	svc := &fakeService{}
	ts := httptest.NewServer(newTestServer(svc).Handler())
	defer ts.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(Message{Type: "question", Content: "capital of France?", UserID: "alice", Mode: "default"}))

	var status, response Message
	require.NoError(t, conn.ReadJSON(&status))
	assert.Equal(t, "status", status.Type)
	require.NoError(t, conn.ReadJSON(&response))
	assert.Equal(t, "response", response.Type)
	assert.Equal(t, "Paris.", response.Content)
	assert.Equal(t, models.ModeDefault, svc.mode())

	// A bare link is crawled and not asked about.
	require.NoError(t, conn.WriteJSON(Message{Type: "question", Content: "https://docs.example.com", UserID: "alice"}))
	var kinds []string
	for i := 0; i < 3; i++ {
		var m Message
		require.NoError(t, conn.ReadJSON(&m))
		kinds = append(kinds, m.Type)
	}
	assert.Equal(t, []string{"status", "progress", "status"}, kinds)
	svc.mu.Lock()
	assert.Equal(t, []string{"https://docs.example.com"}, svc.crawled)
	svc.mu.Unlock()

	require.NoError(t, conn.WriteJSON(Message{Type: "question", Content: "hi", Mode: "bogus"}))
	var bad Message
	require.NoError(t, conn.ReadJSON(&bad))
	assert.Equal(t, "error", bad.Type)
}
