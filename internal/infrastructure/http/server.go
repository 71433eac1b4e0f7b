// Package http exposes the answering pipeline over a REST API.
package http

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/erkebulan/ustazai/internal/domain/usecases"
)

// Server wires the HTTP routes to the engine.
type Server struct {
	engine   *usecases.Engine
	ingestor *usecases.Ingestor
	cache    *usecases.CacheGate
	reload   func(ctx context.Context) (int, error)
	log      *zap.Logger
	srv      *http.Server
}

// New builds the server. reload re-reads the knowledge directory and returns
// how many documents were written; it may be nil when loading is not wired.
func New(
	engine *usecases.Engine,
	ingestor *usecases.Ingestor,
	cache *usecases.CacheGate,
	reload func(ctx context.Context) (int, error),
	log *zap.Logger,
) *Server {
	return &Server{
		engine:   engine,
		ingestor: ingestor,
		cache:    cache,
		reload:   reload,
		log:      log,
	}
}

// Run starts the server on addr and blocks until the listener fails or the
// server is shut down.
func (s *Server) Run(addr string) error {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), s.requestLogger())

	router.GET("/api/health", s.handleHealth)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("/api")
	{
		api.POST("/ask", s.handleAsk)
		api.GET("/search", s.handleSearch)
		api.POST("/history/clear", s.handleClearHistory)
	}

	admin := router.Group("/api/admin")
	{
		admin.POST("/knowledge/reload", s.handleReload)
		admin.POST("/cache/clear", s.handleClearCache)
		admin.GET("/stats", s.handleStats)
	}

	s.srv = &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.log.Info("http server listening", zap.String("addr", addr))
	if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Header("X-Request-ID", requestID)
		c.Request = c.Request.WithContext(usecases.WithRequestID(c.Request.Context(), requestID))

		start := time.Now()
		c.Next()

		s.log.Info("request",
			zap.String("request_id", requestID),
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", time.Since(start)))
	}
}

type askRequest struct {
	UserID   int64  `json:"user_id" binding:"required"`
	Question string `json:"question" binding:"required"`
	Lang     string `json:"lang"`
}

func (s *Server) handleAsk(c *gin.Context) {
	var req askRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Lang == "" {
		req.Lang = "kk"
	}

	result, err := s.engine.Answer(c.Request.Context(), req.UserID, req.Question, req.Lang)
	if err != nil {
		s.log.Error("answer failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"answer":      result.Answer,
		"answered":    result.Answered(),
		"sources":     result.Sources,
		"source_urls": result.SourceURLs,
		"off_topic":   result.OffTopic,
		"uncertain":   result.Uncertain,
		"suggestions": result.Suggestions,
		"from_cache":  result.FromCache,
		"similarity":  result.Similarity,
	})
}

func (s *Server) handleSearch(c *gin.Context) {
	query := c.Query("q")
	if query == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing query parameter q"})
		return
	}

	results, err := s.engine.SearchContext(c.Request.Context(), query, 0)
	if err != nil {
		s.log.Error("search failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"results": results})
}

type clearHistoryRequest struct {
	UserID int64 `json:"user_id" binding:"required"`
}

func (s *Server) handleClearHistory(c *gin.Context) {
	var req clearHistoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.engine.ClearHistory(c.Request.Context(), req.UserID); err != nil {
		s.log.Error("history clear failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleReload(c *gin.Context) {
	if s.reload == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "knowledge loading not configured"})
		return
	}
	written, err := s.reload(c.Request.Context())
	if err != nil {
		s.log.Error("knowledge reload failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"documents_written": written})
}

func (s *Server) handleClearCache(c *gin.Context) {
	if err := s.cache.Clear(c.Request.Context()); err != nil {
		s.log.Error("cache clear failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleStats(c *gin.Context) {
	ctx := c.Request.Context()
	knowledge, err := s.ingestor.Count(ctx)
	if err != nil {
		s.log.Error("knowledge count failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	cached, err := s.cache.Count(ctx)
	if err != nil {
		s.log.Error("cache count failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"knowledge_documents": knowledge,
		"cached_answers":      cached,
	})
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "time": time.Now().UTC()})
}
