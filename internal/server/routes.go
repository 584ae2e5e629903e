package server

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/zulandar/switchboard/internal/escalation"
	"github.com/zulandar/switchboard/internal/models"
)

const apiPrefix = "/api/human-agent"

// registerRoutes sets up all API routes on the Gin router.
func registerRoutes(router *gin.Engine, opts Opts) {
	svc := opts.Service

	router.GET("/", handleIndex(svc))
	router.GET("/health", handleHealth())

	api := router.Group(apiPrefix)
	api.POST("/escalate", handleEscalate(svc))
	api.POST("/classify", handleClassify(svc))
	api.GET("/response/:id", handleResponse(svc))
	api.GET("/query/:id", handleQuery(svc))
	api.GET("/dashboard", handleDashboard(svc))
	api.GET("/wait-time", handleWaitTime(svc))
	api.POST("/status/:agent_id", handleStatus(svc))
	api.POST("/resolve/:id", handleResolve(svc))
	api.POST("/close/:id", handleClose(svc))
	api.GET("/history", handleHistory(opts.History))
	api.GET("/events", handleSSE(svc, opts.PollInterval, opts.HeartbeatInterval))
}

type escalateRequest struct {
	CustomerID string `json:"customer_id"`
	Query      string `json:"query"`
	Reason     string `json:"reason"`
	Priority   int    `json:"priority"`
	Language   string `json:"language"`
}

type classifyRequest struct {
	CustomerID     string  `json:"customer_id"`
	Query          string  `json:"query"`
	Language       string  `json:"language"`
	Priority       int     `json:"priority"`
	Confidence     float64 `json:"confidence"`
	LatencySeconds float64 `json:"latency_seconds"`
}

type statusRequest struct {
	Status string `json:"status"`
}

type resolveRequest struct {
	Response string `json:"response"`
}

func ok(c *gin.Context, data any) {
	c.JSON(http.StatusOK, gin.H{"success": true, "data": data})
}

func fail(c *gin.Context, code int, msg string) {
	c.JSON(code, gin.H{"success": false, "error": msg})
}

// statusFor maps a core error kind to an HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrInvalidTransition), errors.Is(err, models.ErrCapacityExceeded):
		return http.StatusConflict
	default:
		return http.StatusBadRequest
	}
}

func writeResult(c *gin.Context, res escalation.Result) {
	if !res.Success {
		fail(c, statusFor(res.Err()), res.Message)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": res.Message})
}

func writeEscalation(c *gin.Context, res escalation.EscalateResult) {
	if !res.Success {
		fail(c, http.StatusBadRequest, res.Message)
		return
	}
	ok(c, res)
}

func handleIndex(svc Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.HTML(http.StatusOK, "index.html", gin.H{
			"snapshot": svc.Dashboard(),
			"events":   apiPrefix + "/events",
		})
	}
}

func handleHealth() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}

func handleEscalate(svc Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req escalateRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			fail(c, http.StatusBadRequest, "invalid request body: "+err.Error())
			return
		}
		res := svc.Escalate(c.Request.Context(), req.CustomerID, req.Query, models.Reason(req.Reason), req.Priority, req.Language)
		writeEscalation(c, res)
	}
}

func handleClassify(svc Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req classifyRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			fail(c, http.StatusBadRequest, "invalid request body: "+err.Error())
			return
		}
		if req.Query == "" {
			fail(c, http.StatusBadRequest, "query is required")
			return
		}
		res := svc.ClassifyAndEscalate(c.Request.Context(), escalation.Request{
			CustomerID: req.CustomerID,
			Query:      req.Query,
			Language:   req.Language,
			Priority:   req.Priority,
			Confidence: req.Confidence,
			Latency:    time.Duration(req.LatencySeconds * float64(time.Second)),
		})
		writeEscalation(c, res)
	}
}

func handleResponse(svc Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		resp := svc.GetAgentResponse(c.Param("id"))
		if resp == nil {
			c.JSON(http.StatusOK, gin.H{"success": false, "message": "No response available yet"})
			return
		}
		ok(c, resp)
	}
}

func handleQuery(svc Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		q, err := svc.Get(c.Param("id"))
		if err != nil {
			fail(c, statusFor(err), err.Error())
			return
		}
		ok(c, q)
	}
}

func handleDashboard(svc Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		ok(c, svc.Dashboard())
	}
}

func handleWaitTime(svc Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		ok(c, gin.H{"estimated_wait_time": svc.EstimateWait()})
	}
}

func handleStatus(svc Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req statusRequest
		if err := c.ShouldBindJSON(&req); err != nil || req.Status == "" {
			fail(c, http.StatusBadRequest, "status is required")
			return
		}
		writeResult(c, svc.SetAgentStatus(c.Request.Context(), c.Param("agent_id"), req.Status))
	}
}

func handleResolve(svc Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req resolveRequest
		if err := c.ShouldBindJSON(&req); err != nil || req.Response == "" {
			fail(c, http.StatusBadRequest, "response is required")
			return
		}
		writeResult(c, svc.Resolve(c.Request.Context(), c.Param("id"), req.Response))
	}
}

func handleClose(svc Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		writeResult(c, svc.Close(c.Request.Context(), c.Param("id")))
	}
}

// handleHistory serves journal events, newest first, or the events of one
// query when query_id is set.
func handleHistory(h History) gin.HandlerFunc {
	return func(c *gin.Context) {
		if h == nil {
			fail(c, http.StatusServiceUnavailable, "journal is disabled")
			return
		}
		ctx := c.Request.Context()

		var (
			events []models.EscalationEvent
			err    error
		)
		if id := c.Query("query_id"); id != "" {
			events, err = h.ForQuery(ctx, id)
		} else {
			limit, convErr := strconv.Atoi(c.DefaultQuery("limit", "50"))
			if convErr != nil || limit < 1 {
				fail(c, http.StatusBadRequest, "limit must be a positive integer")
				return
			}
			events, err = h.Recent(ctx, limit)
		}
		if err != nil {
			fail(c, http.StatusInternalServerError, err.Error())
			return
		}
		if events == nil {
			events = []models.EscalationEvent{}
		}
		ok(c, events)
	}
}
