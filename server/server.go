// Package server exposes the tracker over HTTP.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/letulabs/livetracker/models"
	"github.com/letulabs/livetracker/tracker"
)

// Tracker is the controller surface the handlers depend on.
type Tracker interface {
	Start(sessionID, sheetURL string) error
	Stop(sessionID string) error
	Status(sessionID string) tracker.Status
	Preview(ctx context.Context, sessionID string) ([]models.ProductRecord, error)
	Snapshot(sessionID string) (models.Snapshot, bool)
}

// Server wires the boundary routes to a session controller.
type Server struct {
	tracker Tracker
	router  *gin.Engine
}

// New builds the HTTP surface. registry may be nil to disable /metrics.
func New(t Tracker, registry *prometheus.Registry, allowedOrigins []string) *Server {
	gin.SetMode(gin.ReleaseMode)

	s := &Server{tracker: t}

	router := gin.New()
	router.Use(gin.Recovery(), requestLogger())
	if len(allowedOrigins) > 0 {
		router.Use(cors.New(cors.Config{
			AllowOrigins: allowedOrigins,
			AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowHeaders: []string{"Origin", "Content-Type"},
			MaxAge:       12 * time.Hour,
		}))
	}

	api := router.Group("/api")
	{
		api.GET("/health", s.health)
		api.POST("/start-tracking", s.startTracking)
		api.POST("/stop-tracking", s.stopTracking)
		api.GET("/status/:sessionId", s.status)
		api.GET("/preview/:sessionId", s.preview)
		api.GET("/snapshot/:sessionId", s.snapshot)
	}

	if registry != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))
	}

	s.router = router
	return s
}

// Router returns the configured handler, for mounting on an http.Server.
func (s *Server) Router() http.Handler {
	return s.router
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := uuid.NewString()
		c.Header("X-Request-ID", requestID)

		start := time.Now()
		c.Next()

		slog.Info("request",
			slog.String("request_id", requestID),
			slog.String("method", c.Request.Method),
			slog.String("path", c.Request.URL.Path),
			slog.Int("status", c.Writer.Status()),
			slog.Duration("duration", time.Since(start)),
		)
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "message": "Server is running"})
}

type startRequest struct {
	SessionID string `json:"sessionId"`
	SheetURL  string `json:"sheetUrl"`
}

func (s *Server) startTracking(c *gin.Context) {
	var req startRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.SessionID == "" || req.SheetURL == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing sessionId or sheetUrl"})
		return
	}

	switch err := s.tracker.Start(req.SessionID, req.SheetURL); {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{
			"message":   "Tracking started successfully",
			"sessionId": req.SessionID,
		})
	case errors.Is(err, tracker.ErrAlreadyTracking):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Already tracking this session"})
	case errors.Is(err, tracker.ErrTooManySessions):
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "Maximum concurrent sessions reached"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

type stopRequest struct {
	SessionID string `json:"sessionId"`
}

func (s *Server) stopTracking(c *gin.Context) {
	var req stopRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.SessionID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing sessionId"})
		return
	}

	switch err := s.tracker.Stop(req.SessionID); {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"message": "Tracking stopped successfully"})
	case errors.Is(err, tracker.ErrNotTracking):
		c.JSON(http.StatusNotFound, gin.H{"error": "Session not being tracked"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

func (s *Server) status(c *gin.Context) {
	st := s.tracker.Status(c.Param("sessionId"))
	if !st.Tracking {
		c.JSON(http.StatusOK, gin.H{"tracking": false})
		return
	}

	var lastUpdate interface{}
	if !st.LastUpdate.IsZero() {
		lastUpdate = st.LastUpdate.Format(time.RFC3339)
	}
	c.JSON(http.StatusOK, gin.H{
		"tracking":   true,
		"running":    st.Running,
		"lastUpdate": lastUpdate,
	})
}

func (s *Server) preview(c *gin.Context) {
	records, err := s.tracker.Preview(c.Request.Context(), c.Param("sessionId"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if records == nil {
		records = []models.ProductRecord{}
	}
	c.JSON(http.StatusOK, gin.H{"products": records, "count": len(records)})
}

func (s *Server) snapshot(c *gin.Context) {
	snap, ok := s.tracker.Snapshot(c.Param("sessionId"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "No snapshot for this session"})
		return
	}
	if snap.Records == nil {
		snap.Records = []models.ProductRecord{}
	}
	c.JSON(http.StatusOK, gin.H{
		"sessionId":  snap.SessionID,
		"products":   snap.Records,
		"count":      len(snap.Records),
		"strategy":   snap.Strategy,
		"capturedAt": snap.CapturedAt.Format(time.RFC3339),
	})
}
