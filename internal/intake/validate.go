package intake

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// ErrValidation matches every *ValidationError.
var ErrValidation = errors.New("validation failed")

// ValidationError carries the user-facing message returned with a 400.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

func invalid(format string, args ...any) error {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// RequiredFields are the form fields every application must carry, in the
// order they are checked.
var RequiredFields = []string{
	"fullName", "address", "phone", "email", "profession", "maritalStatus",
	"bank", "agency", "accountNumber", "accountType", "offerId",
}

// RequiredDocuments are the multipart file fields, in upload order.
var RequiredDocuments = []string{
	"residenceProof", "idDocument", "taxClearance", "laborDebtsClearance", "tstCertificate",
}

// MaritalStatuses and AccountTypes list the accepted select values.
var (
	MaritalStatuses = []string{"solteiro", "casado", "divorciado", "viuvo", "uniao_estavel"}
	AccountTypes    = []string{"corrente", "poupanca"}
)

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

// validate checks sub in a fixed order and returns the first problem found.
func (s *Service) validate(sub Submission) error {
	for _, name := range RequiredFields {
		if strings.TrimSpace(sub.Fields[name]) == "" {
			return invalid("Campo obrigatório não preenchido: %s", name)
		}
	}
	for _, name := range RequiredDocuments {
		if _, ok := sub.Documents[name]; !ok {
			return invalid("Documento obrigatório não enviado: %s", name)
		}
	}
	if !contains(MaritalStatuses, sub.Fields["maritalStatus"]) {
		return invalid("Estado civil inválido: %s", sub.Fields["maritalStatus"])
	}
	if !contains(AccountTypes, sub.Fields["accountType"]) {
		return invalid("Tipo de conta inválido: %s", sub.Fields["accountType"])
	}
	for _, name := range RequiredDocuments {
		doc := sub.Documents[name]
		switch {
		case doc.Size <= 0:
			return invalid("Arquivo inválido ou ausente para o campo: %s", name)
		case s.maxFileSize > 0 && doc.Size > s.maxFileSize:
			return invalid("Arquivo excede o tamanho máximo de %d MB: %s", s.maxFileSize>>20, name)
		case !s.allowedExt[strings.ToLower(filepath.Ext(doc.Filename))]:
			return invalid("Formato de arquivo não permitido para o campo: %s", name)
		}
	}
	return nil
}

// sanitizeFilename keeps the base name and replaces anything outside
// [A-Za-z0-9._-] so the object key stays URL-safe.
func sanitizeFilename(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, `\`, "/"))
	clean := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			return r
		}
		return '_'
	}, name)
	if len(clean) > 100 {
		clean = clean[len(clean)-100:]
	}
	if strings.Trim(clean, "._") == "" {
		return "arquivo"
	}
	return clean
}
