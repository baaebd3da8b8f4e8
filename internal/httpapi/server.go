// Package httpapi is the operator HTTP surface over the attendance service.
package httpapi

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"meetingsattendance/internal/attendance"
	"meetingsattendance/internal/audit"
	"meetingsattendance/internal/auth"
	"meetingsattendance/internal/httpmiddleware"
	"meetingsattendance/internal/logging"
	"meetingsattendance/internal/metrics"
	"meetingsattendance/internal/queue"
)

// UserCreator adds local accounts to the user directory.
type UserCreator interface {
	CreateUser(ctx context.Context, email string) (int64, error)
}

// AuditReader lists recorded audit events.
type AuditReader interface {
	Recent(ctx context.Context, sessionID int64, limit int) ([]audit.Event, error)
}

// HealthCheck reports whether one dependency is reachable.
type HealthCheck func(ctx context.Context) bool

// Options wires the server. Queue, Users and Audit are optional; the routes that need
// them answer 503 when they are nil.
type Options struct {
	Service     *attendance.Service
	Queue       queue.Queue
	Users       UserCreator
	Audit       AuditReader
	Issuer      auth.Issuer
	OperatorKey string
	RatePerMin  int
	Health      map[string]HealthCheck
}

// Server holds the handler dependencies.
type Server struct {
	opts Options
}

func New(opts Options) *Server {
	return &Server{opts: opts}
}

// Router builds the gin engine with middleware and every route.
func (s *Server) Router() *gin.Engine {
	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(httpmiddleware.RequestID())
	r.Use(accessLog("/healthz", "/metrics"))
	r.Use(corsMiddleware())
	r.Use(securityHeaders())
	r.Use(httpmiddleware.NewIPLimiter(s.opts.RatePerMin).GinMiddleware())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/healthz", s.healthz)

	r.POST("/v1/auth/token", s.issueToken)
	r.POST("/v1/auth/refresh", s.refreshToken)

	v1 := r.Group("/v1", auth.RequireBearer(s.opts.Issuer, auth.RoleOperator))
	v1.GET("/platforms", s.listPlatforms)

	v1.POST("/sessions", s.createSession)
	v1.GET("/sessions", s.listSessions)
	v1.GET("/sessions/:id", s.getSession)
	v1.PUT("/sessions/:id", s.updateSession)
	v1.DELETE("/sessions/:id", s.deleteSession)
	v1.POST("/sessions/:id/close", s.closeSession)
	v1.POST("/sessions/:id/reopen", s.reopenSession)

	v1.POST("/sessions/:id/sync", s.syncSession)
	v1.GET("/sessions/:id/unassigned", s.listUnassigned)
	v1.POST("/sessions/:id/completion", s.checkAllCompletions)
	v1.POST("/sessions/:id/completion/:user_id", s.checkCompletion)
	v1.GET("/sessions/:id/report", s.report)
	v1.GET("/sessions/:id/summary", s.summary)
	v1.GET("/sessions/:id/audit", s.auditEvents)

	v1.POST("/records/:id/assign", s.manualAssign)
	v1.POST("/users", s.createUser)

	return r
}

func (s *Server) healthz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	body := gin.H{"status": "ok"}
	status := http.StatusOK
	for name, check := range s.opts.Health {
		ok := check(ctx)
		body[name] = ok
		if !ok {
			status = http.StatusServiceUnavailable
			body["status"] = "degraded"
		}
	}
	c.JSON(status, body)
}

// accessLog writes one zerolog line per request and counts it by route.
func accessLog(skip ...string) gin.HandlerFunc {
	skipped := make(map[string]bool, len(skip))
	for _, p := range skip {
		skipped[p] = true
	}
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()
		metrics.HTTPRequests.WithLabelValues(c.Request.Method, route, strconv.Itoa(status)).Inc()
		if skipped[c.Request.URL.Path] {
			return
		}
		ev := logging.Ctx(c.Request.Context()).Info()
		if status >= http.StatusInternalServerError {
			ev = logging.Ctx(c.Request.Context()).Error()
		}
		ev.Str("method", c.Request.Method).
			Str("route", route).
			Int("status", status).
			Dur("latency", time.Since(start)).
			Str("client_ip", c.ClientIP()).
			Msg("request")
	}
}

// corsMiddleware admits browser clients from any origin; auth is by bearer token,
// never cookies.
func corsMiddleware() gin.HandlerFunc {
	return cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:    []string{"Origin", "Content-Type", "Accept", "Authorization", httpmiddleware.RequestIDHeader},
		ExposeHeaders:   []string{httpmiddleware.RequestIDHeader},
		MaxAge:          24 * time.Hour,
	})
}

// securityHeaders sets the browser hardening headers on every response.
func securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")

		// Only add HSTS in production
		if gin.Mode() == gin.ReleaseMode {
			c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		c.Next()
	}
}
