package api

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bavena95/portal-creditos/internal/ratelimit"
	"github.com/bavena95/portal-creditos/internal/session"
)

// Deps collects everything the router needs. Orchestrator, Offers, Review and
// Sessions are required.
type Deps struct {
	Orchestrator orchestratorService
	Offers       offerService
	Review       reviewService
	Sessions     *session.Manager

	// SearchLimiter throttles the public offer search per client IP. Nil
	// disables throttling.
	SearchLimiter *ratelimit.Limiter

	Logger           *slog.Logger
	ServiceName      string
	CORSOrigins      []string
	MaxUploadBytes   int64
	RequireBootstrap bool
}

// Router wraps a configured Gin engine and exposes it as an http.Handler.
type Router struct {
	engine *gin.Engine
}

// NewRouter builds the engine with the full middleware chain and all routes.
// Middleware order:
//  1. Recovery: panic to JSON 500
//  2. OTEL: trace context per request
//  3. RequestLogger: one structured line per request
//  4. Metrics: request counters and latency
//  5. CORS, only when origins are configured
func NewRouter(d Deps) (*Router, error) {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	serviceName := d.ServiceName
	if serviceName == "" {
		serviceName = "portal-creditos"
	}

	tmpl, err := loadTemplates()
	if err != nil {
		return nil, fmt.Errorf("parsing templates: %w", err)
	}
	static, err := staticFiles()
	if err != nil {
		return nil, fmt.Errorf("loading static files: %w", err)
	}

	engine := gin.New()
	engine.HandleMethodNotAllowed = true
	engine.MaxMultipartMemory = 8 << 20
	engine.SetHTMLTemplate(tmpl)

	engine.Use(Recovery(logger))
	engine.Use(OTEL(serviceName))
	engine.Use(RequestLogger(logger))
	engine.Use(Metrics())
	if cors := CORS(d.CORSOrigins); cors != nil {
		engine.Use(cors)
	}

	engine.NoMethod(func(c *gin.Context) {
		errorJSON(c, http.StatusMethodNotAllowed, fmt.Sprintf("Método %s não permitido.", c.Request.Method))
	})
	h := &Handler{
		orchestrator:     d.Orchestrator,
		offers:           d.Offers,
		review:           d.Review,
		sessions:         d.Sessions,
		maxUploadBytes:   d.MaxUploadBytes,
		requireBootstrap: d.RequireBootstrap,
	}

	// Unknown admin pages go through the page gate before the 404 page.
	pageGate := RequireAdminPage(d.Sessions)
	engine.NoRoute(func(c *gin.Context) {
		if strings.HasPrefix(c.Request.URL.Path, "/admin/") {
			pageGate(c)
			if c.IsAborted() {
				return
			}
			h.errorPage(c, http.StatusNotFound, "Página não encontrada.")
			return
		}
		errorJSON(c, http.StatusNotFound, "Recurso não encontrado.")
	})

	engine.StaticFS("/static", static)

	// Pages
	engine.GET("/", h.IndexPage)
	engine.GET("/admin/login", RedirectAuthenticated(d.Sessions), h.LoginPage)
	pages := engine.Group("/admin", RequireAdminPage(d.Sessions))
	pages.GET("", h.AdminIndex)
	pages.GET("/dashboard", h.DashboardPage)
	pages.GET("/applications/:id", h.ApplicationPage)

	// Public API
	api := engine.Group("/api")
	api.POST("/offers/search", RateLimit(d.SearchLimiter), h.SearchOffers)
	api.POST("/applications", h.SubmitApplication)
	api.POST("/auth/login", h.Login)
	api.POST("/auth/logout", h.Logout)

	// Admin API
	admin := api.Group("/admin", RequireAdminAPI(d.Sessions))
	admin.GET("/applications", h.ListApplications)
	admin.GET("/applications/:id", h.GetApplication)
	admin.PATCH("/applications/:id", h.UpdateApplicationStatus)
	admin.GET("/files/:fileId/download", h.DownloadFile)
	admin.POST("/bootstrap", h.Bootstrap)

	// Operations
	engine.GET("/health", h.Health)
	engine.GET("/health/deep", h.DeepHealth)
	engine.GET("/ready", h.Ready)
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return &Router{engine: engine}, nil
}

// Handler returns the underlying http.Handler for use with net/http servers.
func (r *Router) Handler() http.Handler {
	return r.engine
}
