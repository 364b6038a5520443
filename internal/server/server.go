// Package server exposes the functions and the dashboard API over HTTP.
package server

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/yuin/goldmark"

	"github.com/TobiSchelling/AIVisibility/internal/analytics"
	"github.com/TobiSchelling/AIVisibility/internal/auth"
	"github.com/TobiSchelling/AIVisibility/internal/database"
	"github.com/TobiSchelling/AIVisibility/internal/executor"
	"github.com/TobiSchelling/AIVisibility/internal/functions"
	"github.com/TobiSchelling/AIVisibility/internal/logger"
)

var md = goldmark.New()

// Deps are the services the server routes to. Executor should be the one
// the analytics service runs on so both share one activity clock; nil
// creates one refreshing DB.
type Deps struct {
	DB          *database.DB
	Executor    *executor.Executor
	Functions   *functions.Service
	Analytics   *analytics.Service
	Issuer      *auth.Issuer
	CORSOrigins []string
	Log         *logger.Logger
}

// Server is the HTTP API server.
type Server struct {
	db        *database.DB
	exec      *executor.Executor
	functions *functions.Service
	analytics *analytics.Service
	issuer    *auth.Issuer
	log       *logger.Logger
	router    *gin.Engine
}

// New creates a new Server.
func New(d Deps) *Server {
	log := d.Log
	if log == nil {
		log = logger.Nop()
	}
	exec := d.Executor
	if exec == nil {
		exec = executor.New(d.DB, executor.Options{Logger: log.With("component", "executor")})
	}
	s := &Server{
		db:        d.DB,
		exec:      exec,
		functions: d.Functions,
		analytics: d.Analytics,
		issuer:    d.Issuer,
		log:       log.With("component", "server"),
		router:    gin.New(),
	}
	s.router.Use(gin.Recovery(), s.requestLogger(), corsMiddleware(d.CORSOrigins))
	s.routes()
	return s
}

// Handler returns the HTTP handler for the server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() {
	s.router.GET("/healthz", s.handleHealth)

	fn := s.router.Group("/functions/v1")
	fn.OPTIONS("/:name", func(c *gin.Context) { c.Status(http.StatusOK) })
	fn.Use(s.requireAuth(), s.activity())
	fn.POST("/create-company", s.handleCreateCompany)
	fn.POST("/generate-prompts", s.handleGeneratePrompts)
	fn.POST("/analyze-prompts", s.handleAnalyzePrompts)
	fn.POST("/analyze-responses", s.handleAnalyzeResponses)

	api := s.router.Group("/api")
	api.Use(s.requireAuth(), s.activity())
	api.GET("/profile", s.handleGetProfile)
	api.PATCH("/profile", s.handleUpdateProfile)
	api.GET("/countries", s.handleCountries)
	api.GET("/companies", s.handleCompanies)

	company := api.Group("/companies/:companyID")
	company.Use(s.requireMember())
	company.GET("", s.handleCompany)
	company.GET("/dashboard", s.handleDashboard)
	company.GET("/prompts", s.handlePromptMetrics)
	company.GET("/prompts/visibility", s.handlePromptVisibility)
	company.GET("/sources", s.handleSources)
	company.GET("/competitors", s.handleCompetitors)
	company.GET("/responses/:id", s.handleResponse)

	admin := company.Group("")
	admin.Use(requireAdmin())
	admin.POST("/prompts", s.handleAddPrompt)
	admin.PUT("/prompts/:id", s.handleUpdatePrompt)
	admin.DELETE("/prompts/:id", s.handleDeletePrompt)
	admin.POST("/competitors", s.handleAddCompetitor)
	admin.POST("/competitors/:id/approve", s.handleApproveCompetitor)
	admin.PUT("/competitors/:id", s.handleUpdateCompetitor)
	admin.DELETE("/competitors/:id", s.handleDeleteCompetitor)
}

func corsMiddleware(origins []string) gin.HandlerFunc {
	cfg := cors.Config{
		AllowMethods:              []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:              []string{"Authorization", "Content-Type"},
		MaxAge:                    12 * time.Hour,
		OptionsResponseStatusCode: http.StatusOK,
	}
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
	}
	return cors.New(cfg)
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.Debug("request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"elapsed", time.Since(start).String(),
		)
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()
	if err := s.db.Refresh(ctx); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "dialect": s.db.Dialect()})
}

func abortError(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, gin.H{"error": msg})
}

// internalError logs err and answers 500. A functions.Failure supplies the
// client message.
func (s *Server) internalError(c *gin.Context, err error) {
	s.log.Error("request failed", "path", c.FullPath(), "error", err)
	var f *functions.Failure
	if errors.As(err, &f) {
		body := gin.H{"error": f.Message}
		if f.Err != nil {
			body["details"] = f.Err.Error()
		}
		c.AbortWithStatusJSON(http.StatusInternalServerError, body)
		return
	}
	c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Internal server error", "details": err.Error()})
}

func renderMarkdown(text string) string {
	var buf bytes.Buffer
	if err := md.Convert([]byte(text), &buf); err != nil {
		return ""
	}
	return buf.String()
}

// Serve runs the server on addr until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("server listening", "addr", fmt.Sprintf("http://%s", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.log.Info("server shutting down")
		return srv.Shutdown(shutdownCtx)
	}
}
