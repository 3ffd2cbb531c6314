package api

import (
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"runtime/debug"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/bavena95/portal-creditos/internal/metrics"
	"github.com/bavena95/portal-creditos/internal/ratelimit"
	"github.com/bavena95/portal-creditos/internal/session"
)

const adminContextKey = "portal.admin"

// Recovery turns a panic into a logged stack trace and a JSON 500.
func Recovery(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				logger.ErrorContext(c.Request.Context(), "panic recovered",
					"panic", r,
					"stack", string(debug.Stack()),
					"method", c.Request.Method,
					"path", c.Request.URL.Path,
				)
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"message": "Erro interno no servidor."})
			}
		}()
		c.Next()
	}
}

// OTEL starts a server span per request.
func OTEL(serviceName string) gin.HandlerFunc {
	return otelgin.Middleware(serviceName)
}

// RequestLogger emits one structured line per request.
func RequestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.InfoContext(c.Request.Context(), "request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"route", c.FullPath(),
			"status", c.Writer.Status(),
			"latency_ms", time.Since(start).Milliseconds(),
			"client_ip", c.ClientIP(),
		)
	}
}

// Metrics records request counts and latency by route template.
func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		metrics.RecordHTTPRequest(c.Request.Method, c.FullPath(), c.Writer.Status(), time.Since(start))
	}
}

// CORS allows cross-origin API calls from origins. Nil when origins is empty,
// since the pages are served from the same origin.
func CORS(origins []string) gin.HandlerFunc {
	if len(origins) == 0 {
		return nil
	}
	return cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPatch},
		AllowHeaders:     []string{"Origin", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	})
}

// RateLimit rejects requests once the client IP has spent its tokens.
func RateLimit(l *ratelimit.Limiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !l.Allow(c.ClientIP(), time.Now()) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"message": "Muitas requisições. Aguarde alguns instantes e tente novamente.",
			})
			return
		}
		c.Next()
	}
}

// RequireAdminPage redirects requests without a valid session to the login
// page, remembering where they were going.
func RequireAdminPage(sessions *session.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		admin, err := sessions.Current(c)
		if err != nil {
			if !errors.Is(err, session.ErrNoSession) {
				sessions.Clear(c)
			}
			target := "/admin/login?from=" + url.QueryEscape(c.Request.URL.RequestURI())
			c.Redirect(http.StatusFound, target)
			c.Abort()
			return
		}
		c.Set(adminContextKey, admin)
		c.Next()
	}
}

// RequireAdminAPI answers 401 to requests without a valid session.
func RequireAdminAPI(sessions *session.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		admin, err := sessions.Current(c)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "Autenticação necessária."})
			return
		}
		c.Set(adminContextKey, admin)
		c.Next()
	}
}

// RedirectAuthenticated sends admins who already hold a valid session from
// the login page to the dashboard.
func RedirectAuthenticated(sessions *session.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, err := sessions.Current(c); err == nil {
			c.Redirect(http.StatusFound, "/admin/dashboard")
			c.Abort()
			return
		}
		c.Next()
	}
}

func currentAdmin(c *gin.Context) session.Admin {
	if v, ok := c.Get(adminContextKey); ok {
		if admin, ok := v.(session.Admin); ok {
			return admin
		}
	}
	return session.Admin{}
}

// safeRedirect keeps post-login redirects on this site's admin area.
func safeRedirect(from string) string {
	if strings.HasPrefix(from, "/admin/") && !strings.HasPrefix(from, "//") && !strings.HasPrefix(from, "/admin/login") {
		return from
	}
	return "/admin/dashboard"
}
