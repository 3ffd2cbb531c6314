package api

import (
	"bytes"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bavena95/portal-creditos/internal/intake"
	"github.com/bavena95/portal-creditos/internal/ratelimit"
	"github.com/bavena95/portal-creditos/internal/store"
)

func TestSearchOffers(t *testing.T) {
	t.Parallel()

	offer := &intake.OfferSummary{ID: "o-1", CaseNumber: "0001234-56.2020.5.02.0001", Name: "Maria Souza", OfferAmount: "15000.50", Status: store.OfferAvailable}

	tests := []struct {
		name        string
		body        string
		offers      *fakeOffers
		wantCode    int
		wantMessage string
	}{
		{
			name:     "found",
			body:     `{"searchType":"caseNumber","searchTerm":"0001234-56.2020.5.02.0001"}`,
			offers:   &fakeOffers{offer: offer},
			wantCode: http.StatusOK,
		},
		{
			name:        "malformed body",
			body:        `{"searchType":`,
			offers:      &fakeOffers{offer: offer},
			wantCode:    http.StatusBadRequest,
			wantMessage: "Corpo da requisição inválido.",
		},
		{
			name:        "validation error",
			body:        `{"searchType":"cpf","searchTerm":"x"}`,
			offers:      &fakeOffers{searchErr: &intake.ValidationError{Message: `Tipo de busca inválido. Use "caseNumber" ou "name".`}},
			wantCode:    http.StatusBadRequest,
			wantMessage: `Tipo de busca inválido. Use "caseNumber" ou "name".`,
		},
		{
			name:        "not found",
			body:        `{"searchType":"name","searchTerm":"Fulano"}`,
			offers:      &fakeOffers{searchErr: intake.ErrOfferNotFound},
			wantCode:    http.StatusNotFound,
			wantMessage: "Nenhuma oferta disponível encontrada para os dados informados.",
		},
		{
			name:        "store failure",
			body:        `{"searchType":"name","searchTerm":"Fulano"}`,
			offers:      &fakeOffers{searchErr: errors.New("pool closed")},
			wantCode:    http.StatusInternalServerError,
			wantMessage: "Erro interno no servidor ao buscar oferta.",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			handler := &Handler{offers: tc.offers}
			engine := newTestEngine(http.MethodPost, "/api/offers/search", handler.SearchOffers)

			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/api/offers/search", strings.NewReader(tc.body))
			req.Header.Set("Content-Type", "application/json")
			engine.ServeHTTP(w, req)

			assert.Equal(t, tc.wantCode, w.Code)
			body := decodeBody(t, w)
			if tc.wantMessage != "" {
				assert.Equal(t, tc.wantMessage, body["message"])
				return
			}
			assert.Equal(t, "o-1", body["id"])
			assert.Equal(t, "15000.50", body["offerAmount"])
			assert.Equal(t, "caseNumber", tc.offers.searchType)
		})
	}
}

func TestSearchOffers_RateLimited(t *testing.T) {
	t.Parallel()

	offers := &fakeOffers{offer: &intake.OfferSummary{ID: "o-1"}}
	router, err := NewRouter(Deps{
		Orchestrator:  &fakeOrchestrator{},
		Offers:        offers,
		Review:        &fakeReview{},
		Sessions:      newSessions(t),
		SearchLimiter: ratelimit.New(0.001, 2, 0),
		Logger:        noopLogger(),
	})
	require.NoError(t, err)

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/offers/search", strings.NewReader(`{"searchType":"name","searchTerm":"Ana"}`))
		req.Header.Set("Content-Type", "application/json")
		router.Handler().ServeHTTP(w, req)
		codes = append(codes, w.Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
}

type formFile struct {
	field, name, content string
}

func multipartBody(t *testing.T, fields map[string]string, files []formFile) (io.Reader, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	for _, f := range files {
		part, err := mw.CreateFormFile(f.field, f.name)
		require.NoError(t, err)
		_, err = part.Write([]byte(f.content))
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func TestSubmitApplication(t *testing.T) {
	t.Parallel()

	fields := map[string]string{"fullName": "Maria Souza", "offerId": "o-1", "email": "maria@example.com"}
	files := []formFile{
		{field: "idDocument", name: "rg.pdf", content: "%PDF-1.4 rg"},
		{field: "taxClearance", name: "cnd.pdf", content: "%PDF-1.4 cnd"},
		{field: "notADocument", name: "x.pdf", content: "ignored"},
	}

	tests := []struct {
		name        string
		submitErr   error
		wantCode    int
		wantMessage string
	}{
		{name: "accepted", wantCode: http.StatusCreated, wantMessage: "Aplicação recebida com sucesso! Seus dados estão em análise."},
		{name: "validation", submitErr: &intake.ValidationError{Message: "Documento obrigatório não enviado: residenceProof"}, wantCode: http.StatusBadRequest, wantMessage: "Documento obrigatório não enviado: residenceProof"},
		{name: "bucket missing", submitErr: intake.ErrStorageNotConfigured, wantCode: http.StatusInternalServerError, wantMessage: "Erro de configuração do servidor [Bucket]."},
		{name: "constraint", submitErr: &store.ConstraintError{Code: "23503", Target: "applications_offer_id_fkey"}, wantCode: http.StatusBadRequest, wantMessage: "Erro ao salvar dados: applications_offer_id_fkey"},
		{name: "unexpected", submitErr: errors.New("boom"), wantCode: http.StatusInternalServerError, wantMessage: "Erro interno no servidor ao processar a aplicação."},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			offers := &fakeOffers{submitErr: tc.submitErr}
			handler := &Handler{offers: offers, maxUploadBytes: 1 << 20}
			engine := newTestEngine(http.MethodPost, "/api/applications", handler.SubmitApplication)

			body, contentType := multipartBody(t, fields, files)
			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/api/applications", body)
			req.Header.Set("Content-Type", contentType)
			engine.ServeHTTP(w, req)

			assert.Equal(t, tc.wantCode, w.Code)
			assert.Equal(t, tc.wantMessage, decodeBody(t, w)["message"])

			require.NotNil(t, offers.submitted)
			sub := offers.submitted
			assert.Equal(t, "Maria Souza", sub.Fields["fullName"])
			assert.Equal(t, "o-1", sub.Fields["offerId"])
			require.Len(t, sub.Documents, 2)
			assert.NotContains(t, sub.Documents, "notADocument")

			doc := sub.Documents["idDocument"]
			assert.Equal(t, "rg.pdf", doc.Filename)
			assert.Equal(t, int64(len("%PDF-1.4 rg")), doc.Size)
		})
	}
}

func TestSubmitApplication_DocumentsAreReadable(t *testing.T) {
	t.Parallel()

	offers := &fakeOffers{}
	handler := &Handler{offers: offers}
	engine := newTestEngine(http.MethodPost, "/api/applications", handler.SubmitApplication)

	body, contentType := multipartBody(t, nil, []formFile{{field: "residenceProof", name: "conta.png", content: "png-bytes"}})
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/applications", body)
	req.Header.Set("Content-Type", contentType)
	engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, map[string]string{"residenceProof": "png-bytes"}, offers.contents)
}

func TestSubmitApplication_BadForm(t *testing.T) {
	t.Parallel()

	offers := &fakeOffers{}
	handler := &Handler{offers: offers}
	engine := newTestEngine(http.MethodPost, "/api/applications", handler.SubmitApplication)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/applications", strings.NewReader(`{"fullName":"x"}`))
	req.Header.Set("Content-Type", "application/json")
	engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Erro ao processar formulário.", decodeBody(t, w)["message"])
	assert.Nil(t, offers.submitted)
}

func TestSubmitApplication_TooLarge(t *testing.T) {
	t.Parallel()

	offers := &fakeOffers{}
	handler := &Handler{offers: offers, maxUploadBytes: 512}
	engine := newTestEngine(http.MethodPost, "/api/applications", handler.SubmitApplication)

	body, contentType := multipartBody(t, nil, []formFile{{field: "idDocument", name: "rg.pdf", content: strings.Repeat("x", 4096)}})
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/applications", body)
	req.Header.Set("Content-Type", contentType)
	engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	assert.Nil(t, offers.submitted)
}
