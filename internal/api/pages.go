package api

import (
	"embed"
	"errors"
	"html/template"
	"io/fs"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"

	"github.com/bavena95/portal-creditos/internal/intake"
	"github.com/bavena95/portal-creditos/internal/store"
)

//go:embed web/templates/*.html web/static/*
var webFS embed.FS

// brasilia is fixed at UTC-3; Brazil dropped daylight saving in 2019.
var brasilia = time.FixedZone("BRT", -3*60*60)

var brl = message.NewPrinter(language.BrazilianPortuguese)

var statusLabels = map[string]string{
	store.StatusPendingAnalysis: "Em análise",
	store.StatusApproved:        "Aprovado",
	store.StatusRejected:        "Rejeitado",
}

var maritalLabels = map[string]string{
	"solteiro":      "Solteiro(a)",
	"casado":        "Casado(a)",
	"divorciado":    "Divorciado(a)",
	"viuvo":         "Viúvo(a)",
	"uniao_estavel": "União estável",
}

var accountLabels = map[string]string{
	"corrente": "Conta corrente",
	"poupanca": "Conta poupança",
}

var documentLabels = map[string]string{
	"residenceProof":      "Comprovante de residência",
	"idDocument":          "Documento de identidade (RG/CNH)",
	"taxClearance":        "Certidão negativa de débitos fiscais",
	"laborDebtsClearance": "Certidão negativa de débitos trabalhistas",
	"tstCertificate":      "Certidão do TST",
}

// formatBRL renders a decimal amount as "R$ 1.234,56". Unparseable input is
// returned unchanged.
func formatBRL(amount string) string {
	v, err := strconv.ParseFloat(amount, 64)
	if err != nil {
		return amount
	}
	return brl.Sprintf("R$ %v", number.Decimal(v, number.MinFractionDigits(2), number.MaxFractionDigits(2)))
}

func formatDateTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.In(brasilia).Format("02/01/2006 15:04")
}

func formatSize(n int64) string {
	switch {
	case n >= 1<<20:
		return brl.Sprintf("%.1f MB", float64(n)/(1<<20))
	case n >= 1<<10:
		return brl.Sprintf("%.0f KB", float64(n)/(1<<10))
	default:
		return strconv.FormatInt(n, 10) + " B"
	}
}

func label(labels map[string]string) func(string) string {
	return func(v string) string {
		if l, ok := labels[v]; ok {
			return l
		}
		return v
	}
}

func templateFuncs() template.FuncMap {
	return template.FuncMap{
		"brl":           formatBRL,
		"datetime":      formatDateTime,
		"filesize":      formatSize,
		"statusLabel":   label(statusLabels),
		"maritalLabel":  label(maritalLabels),
		"accountLabel":  label(accountLabels),
		"documentLabel": label(documentLabels),
		"isPending":     func(s string) bool { return s == store.StatusPendingAnalysis },
	}
}

func loadTemplates() (*template.Template, error) {
	return template.New("").Funcs(templateFuncs()).ParseFS(webFS, "web/templates/*.html")
}

func staticFiles() (http.FileSystem, error) {
	sub, err := fs.Sub(webFS, "web/static")
	if err != nil {
		return nil, err
	}
	return http.FS(sub), nil
}

type option struct {
	Value string
	Label string
}

func options(values []string, labels map[string]string) []option {
	out := make([]option, 0, len(values))
	for _, v := range values {
		out = append(out, option{Value: v, Label: labels[v]})
	}
	return out
}

// IndexPage renders the public offer wizard.
func (h *Handler) IndexPage(c *gin.Context) {
	c.HTML(http.StatusOK, "index.html", gin.H{
		"Title":           "Portal de Créditos",
		"MaritalStatuses": options(intake.MaritalStatuses, maritalLabels),
		"AccountTypes":    options(intake.AccountTypes, accountLabels),
		"Documents":       options(intake.RequiredDocuments, documentLabels),
		"RequiredFields":  intake.RequiredFields,
	})
}

func (h *Handler) AdminIndex(c *gin.Context) {
	c.Redirect(http.StatusFound, "/admin/dashboard")
}

func (h *Handler) LoginPage(c *gin.Context) {
	c.HTML(http.StatusOK, "login.html", gin.H{
		"Title": "Acesso administrativo",
		"From":  safeRedirect(c.Query("from")),
	})
}

// DashboardPage renders the application list server side; actions go through
// the JSON API.
func (h *Handler) DashboardPage(c *gin.Context) {
	apps, err := h.review.List(c.Request.Context())
	if err != nil {
		slog.ErrorContext(c.Request.Context(), "rendering dashboard", "error", err)
		h.errorPage(c, http.StatusInternalServerError, "Erro ao carregar as aplicações.")
		return
	}
	c.HTML(http.StatusOK, "dashboard.html", gin.H{
		"Title":        "Painel de aplicações",
		"Admin":        currentAdmin(c),
		"Applications": apps,
	})
}

func (h *Handler) ApplicationPage(c *gin.Context) {
	id := c.Param("id")
	app, err := h.review.Get(c.Request.Context(), id)
	switch {
	case errors.Is(err, store.ErrNotFound):
		h.errorPage(c, http.StatusNotFound, "Aplicação não encontrada.")
	case err != nil:
		slog.ErrorContext(c.Request.Context(), "rendering application", "application_id", id, "error", err)
		h.errorPage(c, http.StatusInternalServerError, "Erro ao carregar a aplicação.")
	default:
		c.HTML(http.StatusOK, "application.html", gin.H{
			"Title":       "Aplicação de " + app.FullName,
			"Admin":       currentAdmin(c),
			"Application": app,
		})
	}
}

func (h *Handler) errorPage(c *gin.Context, code int, message string) {
	c.HTML(code, "error.html", gin.H{
		"Title":   "Erro",
		"Code":    code,
		"Message": message,
	})
}
