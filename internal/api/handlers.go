package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/bavena95/portal-creditos/internal/intake"
	"github.com/bavena95/portal-creditos/internal/orchestrator"
	"github.com/bavena95/portal-creditos/internal/session"
	"github.com/bavena95/portal-creditos/internal/store"
)

// orchestratorService is the subset of *orchestrator.Orchestrator used by the
// HTTP handlers.
type orchestratorService interface {
	StartBootstrap(ctx context.Context) bool
	RunDeepHealth(ctx context.Context) map[string]orchestrator.ProbeResult
	Probe(ctx context.Context, name string) orchestrator.ProbeResult
	IsReady() bool
}

// offerService is satisfied by *intake.Service.
type offerService interface {
	SearchOffer(ctx context.Context, searchType, term string) (*intake.OfferSummary, error)
	Submit(ctx context.Context, sub intake.Submission) (*store.Application, error)
}

// reviewService is satisfied by *review.Service.
type reviewService interface {
	Login(ctx context.Context, email, password string) (session.Admin, error)
	List(ctx context.Context) ([]store.Application, error)
	Get(ctx context.Context, id string) (*store.Application, error)
	UpdateStatus(ctx context.Context, id, status string, actor session.Admin) (*store.Application, error)
	DownloadURL(ctx context.Context, fileID string) (string, error)
}

// Handler holds the dependencies shared across all HTTP handlers.
type Handler struct {
	orchestrator orchestratorService
	offers       offerService
	review       reviewService
	sessions     *session.Manager

	// maxUploadBytes caps the whole multipart body of a submission.
	maxUploadBytes int64
	// requireBootstrap makes /ready wait for a successful bootstrap instead
	// of only checking Postgres.
	requireBootstrap bool
}

func errorJSON(c *gin.Context, code int, message string) {
	c.JSON(code, gin.H{"message": message})
}

// Bootstrap handles POST /api/admin/bootstrap. It answers 202 and runs the
// bootstrap in the background, or 409 if one is already running.
func (h *Handler) Bootstrap(c *gin.Context) {
	if !h.orchestrator.StartBootstrap(context.WithoutCancel(c.Request.Context())) {
		c.JSON(http.StatusConflict, gin.H{"status": orchestrator.StatusInProgress})
		return
	}
	slog.InfoContext(c.Request.Context(), "bootstrap requested", "admin_id", currentAdmin(c).ID)
	c.JSON(http.StatusAccepted, gin.H{"status": "accepted"})
}

// Health handles GET /health. It always returns 200.
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy", "mode": "shallow"})
}

// DeepHealth handles GET /health/deep: 200 only when every configured
// dependency answers its probe.
func (h *Handler) DeepHealth(c *gin.Context) {
	probes := h.orchestrator.RunDeepHealth(c.Request.Context())

	status, code := "healthy", http.StatusOK
	if !orchestrator.Healthy(probes) {
		status, code = "unhealthy", http.StatusServiceUnavailable
	}
	c.JSON(code, gin.H{"status": status, "dependencies": probes})
}

// Ready handles GET /ready.
func (h *Handler) Ready(c *gin.Context) {
	if h.orchestrator.IsReady() {
		c.JSON(http.StatusOK, gin.H{"ready": true})
		return
	}
	if !h.requireBootstrap {
		if p := h.orchestrator.Probe(c.Request.Context(), orchestrator.NamePostgres); p.OK && !p.Skipped {
			c.JSON(http.StatusOK, gin.H{"ready": true})
			return
		}
	}
	c.JSON(http.StatusServiceUnavailable, gin.H{"ready": false})
}
