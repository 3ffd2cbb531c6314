package api

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/bavena95/portal-creditos/internal/review"
	"github.com/bavena95/portal-creditos/internal/store"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Login handles POST /api/auth/login.
func (h *Handler) Login(c *gin.Context) {
	var req loginRequest
	_ = c.ShouldBindJSON(&req)
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		errorJSON(c, http.StatusBadRequest, "Email e senha são obrigatórios.")
		return
	}

	admin, err := h.review.Login(c.Request.Context(), req.Email, req.Password)
	switch {
	case errors.Is(err, review.ErrInvalidCredentials):
		errorJSON(c, http.StatusUnauthorized, "Credenciais inválidas.")
		return
	case errors.Is(err, review.ErrThrottled):
		errorJSON(c, http.StatusTooManyRequests, "Muitas tentativas de login. Tente novamente mais tarde.")
		return
	case err != nil:
		slog.ErrorContext(c.Request.Context(), "login failed", "error", err)
		errorJSON(c, http.StatusInternalServerError, "Erro interno no servidor.")
		return
	}

	if err := h.sessions.Issue(c, admin); err != nil {
		slog.ErrorContext(c.Request.Context(), "issuing session", "error", err)
		errorJSON(c, http.StatusInternalServerError, "Erro interno no servidor.")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"isLoggedIn": true,
		"id":         admin.ID,
		"email":      admin.Email,
		"name":       admin.Name,
	})
}

// Logout handles POST /api/auth/logout.
func (h *Handler) Logout(c *gin.Context) {
	h.sessions.Clear(c)
	c.JSON(http.StatusOK, gin.H{"isLoggedIn": false})
}

// ListApplications handles GET /api/admin/applications.
func (h *Handler) ListApplications(c *gin.Context) {
	apps, err := h.review.List(c.Request.Context())
	if err != nil {
		slog.ErrorContext(c.Request.Context(), "listing applications", "error", err)
		errorJSON(c, http.StatusInternalServerError, "Erro interno no servidor ao buscar aplicações.")
		return
	}
	c.JSON(http.StatusOK, apps)
}

// GetApplication handles GET /api/admin/applications/:id.
func (h *Handler) GetApplication(c *gin.Context) {
	id := c.Param("id")
	app, err := h.review.Get(c.Request.Context(), id)
	switch {
	case errors.Is(err, store.ErrNotFound):
		errorJSON(c, http.StatusNotFound, fmt.Sprintf("Aplicação com ID %s não encontrada.", id))
	case err != nil:
		slog.ErrorContext(c.Request.Context(), "getting application", "application_id", id, "error", err)
		errorJSON(c, http.StatusInternalServerError, "Erro interno no servidor ao buscar detalhes.")
	default:
		c.JSON(http.StatusOK, app)
	}
}

type statusRequest struct {
	Status string `json:"status"`
}

// UpdateApplicationStatus handles PATCH /api/admin/applications/:id.
func (h *Handler) UpdateApplicationStatus(c *gin.Context) {
	id := c.Param("id")
	var req statusRequest
	_ = c.ShouldBindJSON(&req)
	if req.Status == "" {
		errorJSON(c, http.StatusBadRequest, "Novo status (status) é obrigatório.")
		return
	}

	app, err := h.review.UpdateStatus(c.Request.Context(), id, req.Status, currentAdmin(c))
	switch {
	case errors.Is(err, review.ErrInvalidStatus):
		errorJSON(c, http.StatusBadRequest, fmt.Sprintf("Status inválido: '%s'.", req.Status))
	case errors.Is(err, store.ErrNotFound):
		errorJSON(c, http.StatusNotFound, fmt.Sprintf("Aplicação com ID %s não encontrada.", id))
	case err != nil:
		slog.ErrorContext(c.Request.Context(), "updating application status", "application_id", id, "error", err)
		errorJSON(c, http.StatusInternalServerError, "Erro interno no servidor ao atualizar status.")
	default:
		c.JSON(http.StatusOK, app)
	}
}

// DownloadFile handles GET /api/admin/files/:fileId/download.
func (h *Handler) DownloadFile(c *gin.Context) {
	id := c.Param("fileId")
	url, err := h.review.DownloadURL(c.Request.Context(), id)
	switch {
	case errors.Is(err, review.ErrStorageNotConfigured):
		errorJSON(c, http.StatusInternalServerError, "Erro de configuração do servidor [Bucket].")
	case errors.Is(err, store.ErrNotFound):
		errorJSON(c, http.StatusNotFound, fmt.Sprintf("Arquivo com ID %s não encontrado ou inválido.", id))
	case err != nil:
		slog.ErrorContext(c.Request.Context(), "presigning download", "file_id", id, "error", err)
		errorJSON(c, http.StatusInternalServerError, "Erro interno no servidor ao gerar link de download.")
	default:
		c.JSON(http.StatusOK, gin.H{"downloadUrl": url})
	}
}
