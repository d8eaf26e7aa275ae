// Package api exposes the HTTP surface: reading ingestion, forecast and
// timeline queries, alert listing, and lifecycle actions.
package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/coastsense/floodwatch/internal/alerting"
	"github.com/coastsense/floodwatch/internal/alerting/database"
	"github.com/coastsense/floodwatch/internal/engine"
	"github.com/coastsense/floodwatch/internal/model"
	"github.com/coastsense/floodwatch/internal/timeline"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

// Server bundles the HTTP handlers with their collaborators.
type Server struct {
	engine   *engine.Engine
	manager  *alerting.Manager
	store    database.Store
	timeline *timeline.Builder
}

func NewServer(e *engine.Engine, m *alerting.Manager, s database.Store, tl *timeline.Builder) *Server {
	return &Server{engine: e, manager: m, store: s, timeline: tl}
}

// Router builds the gin engine with all routes mounted.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger())

	v1 := r.Group("/v1")
	{
		v1.POST("/readings", s.postReading)
		v1.GET("/stations/:id/forecast", s.getForecast)
		v1.GET("/stations/:id/forecasts", s.getForecastHistory)
		v1.GET("/stations/:id/timeline", s.getTimeline)
		v1.GET("/alerts", s.listAlerts)
		v1.GET("/alerts/:id", s.getAlert)
		v1.GET("/alerts/:id/events", s.getAlertEvents)
		v1.POST("/alerts/:id/acknowledge", s.acknowledgeAlert)
		v1.POST("/alerts/:id/resolve", s.resolveAlert)
	}

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	return r
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Debug().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Msg("request")
	}
}

func (s *Server) postReading(c *gin.Context) {
	var r model.StationReading
	if err := c.ShouldBindJSON(&r); err != nil {
		writeError(c, &model.ValidationError{Field: "body", Reason: err.Error()})
		return
	}
	if err := s.engine.IngestReading(c.Request.Context(), r); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "accepted"})
}

func (s *Server) getForecast(c *gin.Context) {
	stationID := c.Param("id")
	f, err := s.engine.ForecastNow(c.Request.Context(), stationID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, f)
}

func (s *Server) getForecastHistory(c *gin.Context) {
	forecasts, err := s.store.ForecastHistory(c.Request.Context(), c.Param("id"), intQuery(c, "limit", 50))
	if err != nil {
		writeError(c, err)
		return
	}
	if forecasts == nil {
		forecasts = []model.Forecast{}
	}
	c.JSON(http.StatusOK, gin.H{"forecasts": forecasts, "count": len(forecasts)})
}

func (s *Server) getTimeline(c *gin.Context) {
	stationID := c.Param("id")
	steps := intQuery(c, "steps", 24)
	stepMinutes := intQuery(c, "step_minutes", 120)
	tl, err := s.timeline.Build(c.Request.Context(), stationID, steps, time.Duration(stepMinutes)*time.Minute)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, tl)
}

func (s *Server) listAlerts(c *gin.Context) {
	filter := database.AlertFilter{
		Status:   model.AlertStatus(c.Query("status")),
		Severity: model.Severity(c.Query("severity")),
		Type:     model.AlertType(c.Query("type")),
		Station:  c.Query("station"),
		Limit:    intQuery(c, "limit", 0),
	}
	alerts, err := s.store.ListAlerts(c.Request.Context(), filter)
	if err != nil {
		writeError(c, err)
		return
	}
	if alerts == nil {
		alerts = []model.Alert{}
	}
	c.JSON(http.StatusOK, gin.H{"alerts": alerts, "count": len(alerts)})
}

func (s *Server) getAlert(c *gin.Context) {
	a, err := s.store.GetAlert(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	if a == nil {
		writeError(c, &model.NotFoundError{Kind: "alert", ID: c.Param("id")})
		return
	}
	c.JSON(http.StatusOK, a)
}

func (s *Server) getAlertEvents(c *gin.Context) {
	events, err := s.manager.Events(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	if events == nil {
		events = []model.AlertEvent{}
	}
	c.JSON(http.StatusOK, gin.H{"events": events})
}

func (s *Server) acknowledgeAlert(c *gin.Context) {
	a, err := s.manager.Acknowledge(c.Request.Context(), c.Param("id"), actor(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, a)
}

type resolveRequest struct {
	Reason string `json:"reason"`
}

func (s *Server) resolveAlert(c *gin.Context) {
	var req resolveRequest
	// body is optional; a bare POST resolves with a default reason
	_ = c.ShouldBindJSON(&req)
	if req.Reason == "" {
		req.Reason = "resolved by operator"
	}
	a, err := s.manager.Resolve(c.Request.Context(), c.Param("id"), actor(c), req.Reason)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, a)
}

// actor identifies the operator behind a lifecycle action.
func actor(c *gin.Context) string {
	if a := c.GetHeader("X-Actor"); a != "" {
		return a
	}
	return "anonymous"
}

func intQuery(c *gin.Context, name string, def int) int {
	v := c.Query(name)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return def
	}
	return n
}

// writeError maps domain errors onto the HTTP error envelope.
func writeError(c *gin.Context, err error) {
	code := "internal_error"
	status := http.StatusInternalServerError
	switch {
	case model.IsValidation(err):
		code, status = "validation_error", http.StatusBadRequest
	case model.IsNotFound(err):
		code, status = "not_found", http.StatusNotFound
	case model.IsConflict(err):
		code, status = "conflict", http.StatusConflict
	case model.IsScoring(err):
		code, status = "insufficient_data", http.StatusUnprocessableEntity
	default:
		log.Error().Err(err).Str("path", c.Request.URL.Path).Msg("request failed")
	}
	c.JSON(status, gin.H{"error": gin.H{"code": code, "message": err.Error()}})
}
