// Package httpapi is the peripheral HTTP surface over an EventStore: a
// health check and thin append/page endpoints for manual exercise and
// smoke-testing the core.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"go-seqstore/internal/store"
)

type Server struct {
	Engine *gin.Engine
	Addr   string
	store  *store.EventStore
}

func New(addr string, es *store.EventStore, mode string) *Server {
	if mode == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.Default()
	s := &Server{Engine: r, Addr: addr, store: es}

	r.GET("/health", s.health)
	r.POST("/aggregates/:aggregate/events", s.appendEvent)
	r.GET("/events", s.page)

	return s
}

func (s *Server) health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	if err := s.store.Pool().Ping(ctx); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "error": "database unreachable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}

type appendEventRequest struct {
	TypeName        string `json:"type_name" binding:"required"`
	Data            any    `json:"data" binding:"required"`
	Topic           string `json:"topic"`
	Tenant          string `json:"tenant"`
	OriginalVersion uint16 `json:"original_version"`
}

func (s *Server) appendEvent(c *gin.Context) {
	aggregate := c.Param("aggregate")

	var req appendEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	producer := store.NewProducer(aggregate).
		Topic(req.Topic).
		Tenant(req.Tenant).
		OriginalVersion(req.OriginalVersion).
		Event(req.TypeName, req.Data)

	events, err := s.store.Publish(c.Request.Context(), producer)
	if err != nil {
		writeStoreError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"events": events})
}

func (s *Server) page(c *gin.Context) {
	topic := c.Query("topic")
	tenant := c.Query("tenant")
	after := c.Query("after")

	page, err := s.store.Page(c.Request.Context(), topic, tenant, 0, after, false)
	if err != nil {
		writeStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func writeStoreError(c *gin.Context, err error) {
	switch {
	case store.IsValidationError(err), store.IsBadCursorError(err), store.IsBadSchemeError(err):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case store.IsConcurrencyError(err):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

// Run serves until ctx is canceled, then drains in-flight requests before
// returning.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{Addr: s.Addr, Handler: s.Engine}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
