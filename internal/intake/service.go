// Package intake implements the public side of the portal: matching a person
// to a pre-approved offer and accepting the application with its documents.
package intake

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/bavena95/portal-creditos/internal/events"
	"github.com/bavena95/portal-creditos/internal/metrics"
	"github.com/bavena95/portal-creditos/internal/store"
)

// Search types accepted by SearchOffer.
const (
	SearchByCaseNumber = "caseNumber"
	SearchByName       = "name"
)

var (
	// ErrOfferNotFound means no available offer matched the search.
	ErrOfferNotFound = errors.New("no available offer found")
	// ErrStorageNotConfigured means documents cannot be accepted because no
	// bucket is configured.
	ErrStorageNotConfigured = errors.New("document storage not configured")
)

// Store is the persistence used by the intake flow. *store.Store satisfies it.
type Store interface {
	FindOfferByCaseNumber(ctx context.Context, caseNumber string) (*store.Offer, error)
	FindAvailableOfferByName(ctx context.Context, name string) (*store.Offer, error)
	GetOffer(ctx context.Context, id string) (*store.Offer, error)
	CreateApplication(ctx context.Context, app store.Application, files []store.UploadedFile) (*store.Application, error)
}

// ObjectStore receives uploaded documents. *clients.ObjectStore satisfies it.
type ObjectStore interface {
	Configured() bool
	Put(ctx context.Context, key string, body io.ReadSeeker, size int64, contentType string) error
	Delete(ctx context.Context, key string) error
}

// File is an opened upload. multipart.File satisfies it.
type File interface {
	io.ReadSeeker
	io.Closer
}

// Document is one uploaded file of a submission.
type Document struct {
	Filename    string
	ContentType string
	Size        int64
	Open        func() (File, error)
}

// Submission is a parsed application form. Fields holds the text inputs and
// Documents the files, both keyed by form field name.
type Submission struct {
	Fields    map[string]string
	Documents map[string]Document
}

// OfferSummary is the public view of a matched offer.
type OfferSummary struct {
	ID          string `json:"id"`
	CaseNumber  string `json:"caseNumber"`
	Name        string `json:"name"`
	OfferAmount string `json:"offerAmount"`
	Status      string `json:"status"`
}

// Config tunes document handling.
type Config struct {
	KeyPrefix         string
	MaxFileSize       int64
	AllowedExtensions []string
}

type Service struct {
	store       Store
	objects     ObjectStore
	publisher   events.Publisher
	keyPrefix   string
	maxFileSize int64
	allowedExt  map[string]bool
	newID       func() string
	now         func() time.Time
}

// NewService wires the intake flow. A nil publisher discards events.
func NewService(st Store, objects ObjectStore, publisher events.Publisher, cfg Config) *Service {
	if publisher == nil {
		publisher = events.Noop{}
	}
	allowed := make(map[string]bool, len(cfg.AllowedExtensions))
	for _, ext := range cfg.AllowedExtensions {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext != "" && !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		allowed[ext] = true
	}
	return &Service{
		store:       st,
		objects:     objects,
		publisher:   publisher,
		keyPrefix:   strings.Trim(cfg.KeyPrefix, "/"),
		maxFileSize: cfg.MaxFileSize,
		allowedExt:  allowed,
		newID:       func() string { return uuid.NewString() },
		now:         time.Now,
	}
}

// SearchOffer finds an available offer by exact case number or by
// case-insensitive name. An offer found by case number but no longer
// available is reported as not found.
func (s *Service) SearchOffer(ctx context.Context, searchType, term string) (*OfferSummary, error) {
	term = strings.TrimSpace(term)
	typeLabel := metrics.SearchTypeLabel(searchType)
	if searchType == "" || term == "" {
		metrics.RecordOfferSearch(typeLabel, "invalid")
		return nil, invalid("Tipo de busca (searchType) e termo de busca (searchTerm) são obrigatórios.")
	}

	var (
		offer *store.Offer
		err   error
	)
	switch searchType {
	case SearchByCaseNumber:
		offer, err = s.store.FindOfferByCaseNumber(ctx, term)
		if err == nil && offer.Status != store.OfferAvailable {
			slog.InfoContext(ctx, "offer found but not available", "case_number", offer.CaseNumber, "status", offer.Status)
			offer, err = nil, store.ErrNotFound
		}
	case SearchByName:
		offer, err = s.store.FindAvailableOfferByName(ctx, term)
	default:
		metrics.RecordOfferSearch(typeLabel, "invalid")
		return nil, invalid(`Tipo de busca inválido. Use "caseNumber" ou "name".`)
	}

	switch {
	case errors.Is(err, store.ErrNotFound):
		metrics.RecordOfferSearch(typeLabel, "not_found")
		return nil, ErrOfferNotFound
	case err != nil:
		metrics.RecordOfferSearch(typeLabel, "error")
		return nil, fmt.Errorf("searching offer: %w", err)
	}

	metrics.RecordOfferSearch(typeLabel, "found")
	return &OfferSummary{
		ID:          offer.ID,
		CaseNumber:  offer.CaseNumber,
		Name:        offer.Name,
		OfferAmount: offer.OfferAmount,
		Status:      offer.Status,
	}, nil
}

// Submit validates sub, uploads every document and records the application
// with its file rows in one transaction. If anything fails after the first
// upload, the objects written so far are deleted.
func (s *Service) Submit(ctx context.Context, sub Submission) (app *store.Application, err error) {
	ctx, span := otel.Tracer("portal-creditos").Start(ctx, "intake.submit")
	defer span.End()
	defer func() {
		switch {
		case err == nil:
			metrics.RecordSubmission("created")
			span.SetStatus(codes.Ok, "")
		case errors.Is(err, ErrValidation):
			metrics.RecordSubmission("invalid")
		default:
			metrics.RecordSubmission("error")
			span.RecordError(err)
			span.SetStatus(codes.Error, "submission failed")
		}
	}()

	if err := s.validate(sub); err != nil {
		return nil, err
	}
	if s.objects == nil || !s.objects.Configured() {
		return nil, ErrStorageNotConfigured
	}

	offerID := strings.TrimSpace(sub.Fields["offerId"])
	span.SetAttributes(attribute.String("offer.id", offerID))

	offer, err := s.store.GetOffer(ctx, offerID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return nil, invalid("Oferta não encontrada ou indisponível.")
	case err != nil:
		return nil, fmt.Errorf("loading offer: %w", err)
	case offer.Status != store.OfferAvailable:
		return nil, invalid("Oferta não encontrada ou indisponível.")
	}

	files := make([]store.UploadedFile, 0, len(RequiredDocuments))
	defer func() {
		if err != nil {
			s.discard(ctx, files)
		}
	}()

	for _, field := range RequiredDocuments {
		doc := sub.Documents[field]
		key := fmt.Sprintf("%s/%s/%s-%s", s.keyPrefix, offerID, s.newID(), sanitizeFilename(doc.Filename))
		if err := s.upload(ctx, key, doc); err != nil {
			return nil, fmt.Errorf("uploading %s: %w", field, err)
		}
		files = append(files, store.UploadedFile{
			FieldName:        field,
			ObjectKey:        key,
			OriginalFilename: doc.Filename,
			Mimetype:         contentType(doc),
			Size:             doc.Size,
		})
		metrics.RecordUploadedBytes(doc.Size)
	}

	created, err := s.store.CreateApplication(ctx, store.Application{
		OfferID:       offerID,
		FullName:      strings.TrimSpace(sub.Fields["fullName"]),
		Address:       strings.TrimSpace(sub.Fields["address"]),
		Phone:         strings.TrimSpace(sub.Fields["phone"]),
		Email:         strings.TrimSpace(sub.Fields["email"]),
		Profession:    strings.TrimSpace(sub.Fields["profession"]),
		MaritalStatus: sub.Fields["maritalStatus"],
		Bank:          strings.TrimSpace(sub.Fields["bank"]),
		Agency:        strings.TrimSpace(sub.Fields["agency"]),
		AccountNumber: strings.TrimSpace(sub.Fields["accountNumber"]),
		AccountType:   sub.Fields["accountType"],
	}, files)
	if err != nil {
		return nil, fmt.Errorf("saving application: %w", err)
	}

	span.SetAttributes(attribute.String("application.id", created.ID))
	slog.InfoContext(ctx, "application submitted",
		"application_id", created.ID, "offer_id", offerID, "files", len(files))

	ev := events.Event{
		Type:          events.TypeApplicationSubmitted,
		ApplicationID: created.ID,
		OfferID:       offerID,
		Status:        created.Status,
		OccurredAt:    s.now().UTC(),
	}
	if pubErr := s.publisher.Publish(ctx, ev); pubErr != nil {
		slog.WarnContext(ctx, "publishing event failed", "type", ev.Type, "error", pubErr)
	}
	return created, nil
}

func (s *Service) upload(ctx context.Context, key string, doc Document) error {
	if doc.Open == nil {
		return errors.New("document has no content")
	}
	f, err := doc.Open()
	if err != nil {
		return err
	}
	defer f.Close()
	return s.objects.Put(ctx, key, f, doc.Size, contentType(doc))
}

// discard removes uploaded objects after a failed submission. It runs on a
// context detached from the request so a cancelled client still gets cleaned up.
func (s *Service) discard(ctx context.Context, files []store.UploadedFile) {
	if len(files) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()
	for _, f := range files {
		if err := s.objects.Delete(ctx, f.ObjectKey); err != nil {
			slog.WarnContext(ctx, "removing orphaned document failed", "key", f.ObjectKey, "error", err)
		}
	}
}

func contentType(doc Document) string {
	if doc.ContentType == "" {
		return "application/octet-stream"
	}
	return doc.ContentType
}
