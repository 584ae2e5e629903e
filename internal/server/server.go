// Package server exposes the escalation service over HTTP.
package server

import (
	"context"
	"embed"
	"fmt"
	"html/template"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/zulandar/switchboard/internal/escalation"
	"github.com/zulandar/switchboard/internal/models"
)

//go:embed templates/*.html
var templatesFS embed.FS

const (
	defaultPollInterval      = 3 * time.Second
	defaultHeartbeatInterval = 15 * time.Second
	shutdownTimeout          = 10 * time.Second
)

// Service is the part of escalation.Service the HTTP layer uses.
type Service interface {
	ClassifyAndEscalate(ctx context.Context, req escalation.Request) escalation.EscalateResult
	Escalate(ctx context.Context, customerID, query string, reason models.Reason, priority int, language string) escalation.EscalateResult
	Resolve(ctx context.Context, queryID, response string) escalation.Result
	Close(ctx context.Context, queryID string) escalation.Result
	SetAgentStatus(ctx context.Context, agentID, status string) escalation.Result
	GetAgentResponse(queryID string) *escalation.AgentResponse
	Get(queryID string) (models.EscalatedQuery, error)
	Dashboard() escalation.Snapshot
	EstimateWait() string
	Version() uint64
}

// History reads the lifecycle journal. *journal.Journal satisfies it.
type History interface {
	Recent(ctx context.Context, limit int) ([]models.EscalationEvent, error)
	ForQuery(ctx context.Context, queryID string) ([]models.EscalationEvent, error)
}

// Opts configures the router.
type Opts struct {
	Service Service
	History History // optional

	// SSE cadence; zero uses the defaults.
	PollInterval      time.Duration
	HeartbeatInterval time.Duration
}

// StartOpts holds configuration for the HTTP server.
type StartOpts struct {
	Opts
	Port int
	Out  io.Writer
}

// NewRouter builds the gin engine with every route registered.
func NewRouter(opts Opts) (*gin.Engine, error) {
	if opts.Service == nil {
		return nil, fmt.Errorf("server: service is required")
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = defaultPollInterval
	}
	if opts.HeartbeatInterval <= 0 {
		opts.HeartbeatInterval = defaultHeartbeatInterval
	}

	router := gin.New()
	router.Use(gin.Recovery())

	tmpl, err := parseTemplates()
	if err != nil {
		return nil, fmt.Errorf("server: %w", err)
	}
	router.SetHTMLTemplate(tmpl)

	registerRoutes(router, opts)
	return router, nil
}

// Start launches the HTTP server. It blocks until ctx is cancelled, then
// shuts down gracefully.
func Start(ctx context.Context, opts StartOpts) error {
	gin.SetMode(gin.ReleaseMode)
	router, err := NewRouter(opts.Opts)
	if err != nil {
		return err
	}
	if opts.Port <= 0 {
		opts.Port = 8080
	}

	// Request contexts derive from ctx so open SSE streams end on shutdown.
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", opts.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	if opts.Out != nil {
		fmt.Fprintf(opts.Out, "Switchboard API running at http://localhost:%d\n", opts.Port)
	}

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: %w", err)
	}
	return nil
}

// parseTemplates loads the embedded HTML templates.
func parseTemplates() (*template.Template, error) {
	funcs := template.FuncMap{
		"join": func(s []string) string { return strings.Join(s, ", ") },
	}
	tmpl, err := template.New("").Funcs(funcs).ParseFS(templatesFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}
	return tmpl, nil
}
