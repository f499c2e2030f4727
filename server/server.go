// Package server exposes the knowledge base operations over HTTP and a chat
// websocket.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-logr/logr"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/KANCHARLABRUNDARIKA/KnowledgeBased-MindQuery/internal/apperr"
	"github.com/KANCHARLABRUNDARIKA/KnowledgeBased-MindQuery/internal/models"
	"github.com/KANCHARLABRUNDARIKA/KnowledgeBased-MindQuery/internal/types"
)

const requestIDHeader = "X-Request-ID"

// Service is the set of operations the server exposes.
type Service interface {
	UploadDocument(ctx context.Context, userID, fileName string, fileBytes []byte, documentType string) (*models.UploadResult, error)
	ListDocuments(ctx context.Context, userID string) (*models.ListResult, error)
	DeleteDocument(ctx context.Context, userID, documentName string) (*models.DeleteResult, error)
	ClearKnowledgeBase(ctx context.Context, userID string) (*models.ClearResult, error)
	GetStats(ctx context.Context, userID string) (*models.StatsResult, error)
	AskQuestion(ctx context.Context, userID, question string, mode models.Mode) (*models.Answer, error)
	IngestURL(ctx context.Context, userID, rawURL string, progress types.Progress) (*models.IngestResult, error)
}

type Config struct {
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	MaxUploadBytes  int64
}

type Server struct {
	config   Config
	svc      Service
	log      logr.Logger
	router   *gin.Engine
	upgrader websocket.Upgrader
}

func New(config Config, svc Service, log logr.Logger) *Server {
	if config.Port == "" {
		config.Port = "8082"
	}
	if config.ShutdownTimeout == 0 {
		config.ShutdownTimeout = 10 * time.Second
	}
	if config.MaxUploadBytes == 0 {
		config.MaxUploadBytes = 32 << 20
	}

	s := &Server{
		config: config,
		svc:    svc,
		log:    log.WithName("server"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}

	r := gin.New()
	r.Use(gin.Recovery(), s.requestID(), s.accessLog())
	s.registerRoutes(r)
	s.router = r
	return s
}

func (s *Server) registerRoutes(r *gin.Engine) {
	docs := r.Group("/documents")
	docs.POST("/upload", s.uploadDocument)
	docs.GET("/list/:user_id", s.listDocuments)
	docs.DELETE("/:user_id/:name", s.deleteDocument)
	docs.POST("/clear/:user_id", s.clearKnowledgeBase)
	docs.GET("/vectorstore/info/:user_id", s.getStats)

	r.POST("/generate-answer", s.generateAnswer)
	r.GET("/ws", s.handleWebSocket)
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         ":" + s.config.Port,
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("listening", "port", s.config.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func (s *Server) requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("request_id", id)
		c.Header(requestIDHeader, id)
		c.Next()
	}
}

func (s *Server) accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.V(1).Info("request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"elapsed", time.Since(start),
			"request_id", c.GetString("request_id"),
		)
	}
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// statusOf maps an error kind to the HTTP status reported for it.
func statusOf(err error) (int, string) {
	switch kind := apperr.KindOf(err); kind {
	case apperr.KindNotFound:
		return http.StatusNotFound, string(kind)
	case apperr.KindExtraction, apperr.KindInvalidInput:
		return http.StatusBadRequest, string(kind)
	case apperr.KindEmbeddingService, apperr.KindGeneration:
		return http.StatusServiceUnavailable, string(kind)
	case apperr.KindConfiguration:
		return http.StatusInternalServerError, string(kind)
	}
	return http.StatusInternalServerError, "internal"
}

func (s *Server) sendError(c *gin.Context, err error) {
	status, code := statusOf(err)
	if status >= http.StatusInternalServerError {
		s.log.Error(err, "request failed", "path", c.FullPath(), "request_id", c.GetString("request_id"))
	}
	c.AbortWithStatusJSON(status, ErrorResponse{Code: code, Message: err.Error()})
}

func (s *Server) uploadDocument(c *gin.Context) {
	userID := c.Query("user_id")
	header, err := c.FormFile("file")
	if err != nil {
		s.sendError(c, apperr.Newf(apperr.KindInvalidInput, "upload", "multipart field \"file\" is required"))
		return
	}
	if header.Size > s.config.MaxUploadBytes {
		s.sendError(c, apperr.Newf(apperr.KindInvalidInput, "upload", "file is larger than %d bytes", s.config.MaxUploadBytes))
		return
	}

	f, err := header.Open()
	if err != nil {
		s.sendError(c, fmt.Errorf("open upload: %w", err))
		return
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		s.sendError(c, fmt.Errorf("read upload: %w", err))
		return
	}

	result, err := s.svc.UploadDocument(c.Request.Context(), userID, header.Filename, data, c.Query("document_type"))
	if err != nil {
		s.sendError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) listDocuments(c *gin.Context) {
	result, err := s.svc.ListDocuments(c.Request.Context(), c.Param("user_id"))
	if err != nil {
		s.sendError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) deleteDocument(c *gin.Context) {
	result, err := s.svc.DeleteDocument(c.Request.Context(), c.Param("user_id"), c.Param("name"))
	if err != nil {
		s.sendError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) clearKnowledgeBase(c *gin.Context) {
	result, err := s.svc.ClearKnowledgeBase(c.Request.Context(), c.Param("user_id"))
	if err != nil {
		s.sendError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) getStats(c *gin.Context) {
	result, err := s.svc.GetStats(c.Request.Context(), c.Param("user_id"))
	if err != nil {
		s.sendError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

type questionRequest struct {
	Question string `json:"question" binding:"required"`
	UserID   string `json:"user_id"`
	Mode     string `json:"mode"`
}

func (s *Server) generateAnswer(c *gin.Context) {
	var req questionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.sendError(c, apperr.New(apperr.KindInvalidInput, "generate-answer", err))
		return
	}
	mode, err := models.ParseMode(req.Mode)
	if err != nil {
		s.sendError(c, apperr.New(apperr.KindInvalidInput, "generate-answer", err))
		return
	}

	answer, err := s.svc.AskQuestion(c.Request.Context(), req.UserID, req.Question, mode)
	if err != nil {
		s.sendError(c, err)
		return
	}
	c.JSON(http.StatusOK, answer)
}

// Message is the websocket frame in both directions. Clients send type
// "question"; the server answers with "status", "progress", "response" or
// "error".
type Message struct {
	Type    string      `json:"type"`
	Content string      `json:"content"`
	UserID  string      `json:"user_id,omitempty"`
	Mode    string      `json:"mode,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

var urlPattern = regexp.MustCompile(`https?://[^\s]+`)

func (s *Server) handleWebSocket(c *gin.Context) {
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.log.Error(err, "websocket upgrade failed")
		return
	}
	defer conn.Close()

	ctx := c.Request.Context()
	for {
		var msg Message
		if err := conn.ReadJSON(&msg); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.log.V(1).Info("websocket closed", "reason", err.Error())
			}
			return
		}
		// Frames are handled in order; a connection has one writer.
		s.handleMessage(ctx, conn, msg)
	}
}

func (s *Server) handleMessage(ctx context.Context, conn *websocket.Conn, msg Message) {
	mode, err := models.ParseMode(msg.Mode)
	if err != nil {
		s.send(conn, Message{Type: "error", Content: err.Error()})
		return
	}
	query := strings.TrimSpace(msg.Content)

	// A link in the message is crawled into the user's knowledge base first.
	if link := urlPattern.FindString(query); link != "" {
		s.send(conn, Message{Type: "status", Content: fmt.Sprintf("Processing URL: %s", link)})
		result, err := s.svc.IngestURL(ctx, msg.UserID, link, func(done, total int, item string) {
			if total < 0 {
				s.send(conn, Message{Type: "progress", Content: fmt.Sprintf("Scraped %d pages", done)})
			}
		})
		if err != nil {
			s.send(conn, Message{Type: "error", Content: err.Error()})
			return
		}
		s.send(conn, Message{
			Type:    "status",
			Content: fmt.Sprintf("Stored %d pages as %d chunks", result.Documents, result.Chunks),
			Data:    result,
		})
		if query == link {
			return
		}
	}

	s.send(conn, Message{Type: "status", Content: "Searching knowledge base..."})
	answer, err := s.svc.AskQuestion(ctx, msg.UserID, query, mode)
	if err != nil {
		s.send(conn, Message{Type: "error", Content: err.Error()})
		return
	}
	s.send(conn, Message{Type: "response", Content: answer.Answer, Data: answer})
}

func (s *Server) send(conn *websocket.Conn, msg Message) {
	if err := conn.WriteJSON(msg); err != nil {
		s.log.Error(err, "websocket write failed", "type", msg.Type)
	}
}
