package api

import (
	"errors"
	"log/slog"
	"mime/multipart"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/bavena95/portal-creditos/internal/intake"
	"github.com/bavena95/portal-creditos/internal/store"
)

type searchRequest struct {
	SearchType string `json:"searchType"`
	SearchTerm string `json:"searchTerm"`
}

// SearchOffers handles POST /api/offers/search.
func (h *Handler) SearchOffers(c *gin.Context) {
	var req searchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorJSON(c, http.StatusBadRequest, "Corpo da requisição inválido.")
		return
	}

	offer, err := h.offers.SearchOffer(c.Request.Context(), req.SearchType, req.SearchTerm)
	var verr *intake.ValidationError
	switch {
	case errors.As(err, &verr):
		errorJSON(c, http.StatusBadRequest, verr.Message)
	case errors.Is(err, intake.ErrOfferNotFound):
		errorJSON(c, http.StatusNotFound, "Nenhuma oferta disponível encontrada para os dados informados.")
	case err != nil:
		slog.ErrorContext(c.Request.Context(), "offer search failed", "type", req.SearchType, "error", err)
		errorJSON(c, http.StatusInternalServerError, "Erro interno no servidor ao buscar oferta.")
	default:
		c.JSON(http.StatusOK, offer)
	}
}

// SubmitApplication handles POST /api/applications (multipart/form-data).
func (h *Handler) SubmitApplication(c *gin.Context) {
	if h.maxUploadBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadBytes)
	}
	form, err := c.MultipartForm()
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			errorJSON(c, http.StatusRequestEntityTooLarge, "Os arquivos enviados excedem o tamanho máximo permitido.")
			return
		}
		errorJSON(c, http.StatusBadRequest, "Erro ao processar formulário.")
		return
	}
	defer func() {
		if err := form.RemoveAll(); err != nil {
			slog.WarnContext(c.Request.Context(), "removing temporary uploads", "error", err)
		}
	}()

	_, err = h.offers.Submit(c.Request.Context(), submissionFromForm(form))

	var (
		verr       *intake.ValidationError
		constraint *store.ConstraintError
	)
	switch {
	case err == nil:
		c.JSON(http.StatusCreated, gin.H{"message": "Aplicação recebida com sucesso! Seus dados estão em análise."})
	case errors.As(err, &verr):
		errorJSON(c, http.StatusBadRequest, verr.Message)
	case errors.Is(err, intake.ErrStorageNotConfigured):
		slog.ErrorContext(c.Request.Context(), "application rejected: bucket not configured")
		errorJSON(c, http.StatusInternalServerError, "Erro de configuração do servidor [Bucket].")
	case errors.As(err, &constraint):
		slog.WarnContext(c.Request.Context(), "application violates constraint", "target", constraint.Target, "error", err)
		errorJSON(c, http.StatusBadRequest, "Erro ao salvar dados: "+constraint.Target)
	default:
		slog.ErrorContext(c.Request.Context(), "application submission failed", "error", err)
		errorJSON(c, http.StatusInternalServerError, "Erro interno no servidor ao processar a aplicação.")
	}
}

// submissionFromForm keeps the first value of each text field and the first
// file of each document field.
func submissionFromForm(form *multipart.Form) intake.Submission {
	sub := intake.Submission{
		Fields:    make(map[string]string, len(form.Value)),
		Documents: make(map[string]intake.Document, len(intake.RequiredDocuments)),
	}
	for name, values := range form.Value {
		if len(values) > 0 {
			sub.Fields[name] = values[0]
		}
	}
	for _, name := range intake.RequiredDocuments {
		headers := form.File[name]
		if len(headers) == 0 {
			continue
		}
		fh := headers[0]
		sub.Documents[name] = intake.Document{
			Filename:    fh.Filename,
			ContentType: fh.Header.Get("Content-Type"),
			Size:        fh.Size,
			Open:        func() (intake.File, error) { return fh.Open() },
		}
	}
	return sub
}
