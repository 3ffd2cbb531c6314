// Package review implements the admin side of the portal: signing in and
// working through submitted applications.
package review

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/crypto/bcrypt"

	"github.com/bavena95/portal-creditos/internal/events"
	"github.com/bavena95/portal-creditos/internal/metrics"
	"github.com/bavena95/portal-creditos/internal/session"
	"github.com/bavena95/portal-creditos/internal/store"
)

var (
	ErrInvalidCredentials   = errors.New("invalid credentials")
	ErrThrottled            = errors.New("too many failed login attempts")
	ErrInvalidStatus        = errors.New("invalid application status")
	ErrStorageNotConfigured = errors.New("document storage not configured")
)

// Store is the persistence used by reviewers. *store.Store satisfies it.
type Store interface {
	FindAdminByEmail(ctx context.Context, email string) (*store.AdminUser, error)
	ListApplications(ctx context.Context) ([]store.Application, error)
	GetApplication(ctx context.Context, id string) (*store.Application, error)
	UpdateApplicationStatus(ctx context.Context, id, status string) (*store.Application, error)
	GetUploadedFile(ctx context.Context, id string) (*store.UploadedFile, error)
}

// Throttle counts failed logins per email. *clients.RedisClient satisfies it.
type Throttle interface {
	LoginAllowed(ctx context.Context, email string) (bool, error)
	RecordLoginFailure(ctx context.Context, email string) error
	ResetLoginFailures(ctx context.Context, email string) error
}

// Downloads issues links to stored documents. *clients.ObjectStore satisfies it.
type Downloads interface {
	Configured() bool
	PresignDownload(ctx context.Context, key, filename string) (string, error)
}

type Service struct {
	store     Store
	throttle  Throttle
	downloads Downloads
	publisher events.Publisher
	now       func() time.Time
}

// NewService wires the review flow. throttle and publisher may be nil.
func NewService(st Store, throttle Throttle, downloads Downloads, publisher events.Publisher) *Service {
	if publisher == nil {
		publisher = events.Noop{}
	}
	return &Service{
		store:     st,
		throttle:  throttle,
		downloads: downloads,
		publisher: publisher,
		now:       time.Now,
	}
}

// Login checks email and password and returns the identity to put in the
// session. Throttle errors are logged and ignored so a Redis outage never
// locks admins out.
func (s *Service) Login(ctx context.Context, email, password string) (session.Admin, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	if s.throttle != nil {
		allowed, err := s.throttle.LoginAllowed(ctx, email)
		switch {
		case err != nil:
			slog.WarnContext(ctx, "login throttle unavailable", "error", err)
		case !allowed:
			metrics.RecordAdminLogin("throttled")
			slog.WarnContext(ctx, "login throttled", "email", email)
			return session.Admin{}, ErrThrottled
		}
	}

	user, err := s.store.FindAdminByEmail(ctx, email)
	switch {
	case errors.Is(err, store.ErrNotFound):
		slog.WarnContext(ctx, "login for unknown admin", "email", email)
		s.recordFailure(ctx, email)
		return session.Admin{}, ErrInvalidCredentials
	case err != nil:
		metrics.RecordAdminLogin("error")
		return session.Admin{}, fmt.Errorf("finding admin: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		slog.WarnContext(ctx, "login with wrong password", "admin_id", user.ID)
		s.recordFailure(ctx, email)
		return session.Admin{}, ErrInvalidCredentials
	}

	if s.throttle != nil {
		if err := s.throttle.ResetLoginFailures(ctx, email); err != nil {
			slog.WarnContext(ctx, "resetting login failures", "error", err)
		}
	}
	metrics.RecordAdminLogin("ok")
	slog.InfoContext(ctx, "admin logged in", "admin_id", user.ID)
	return session.Admin{ID: user.ID, Email: user.Email, Name: user.Name}, nil
}

func (s *Service) recordFailure(ctx context.Context, email string) {
	metrics.RecordAdminLogin("invalid")
	if s.throttle == nil {
		return
	}
	if err := s.throttle.RecordLoginFailure(ctx, email); err != nil {
		slog.WarnContext(ctx, "recording login failure", "error", err)
	}
}

// List returns every application, newest first.
func (s *Service) List(ctx context.Context) ([]store.Application, error) {
	apps, err := s.store.ListApplications(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing applications: %w", err)
	}
	return apps, nil
}

// Get returns one application with its offer and documents.
func (s *Service) Get(ctx context.Context, id string) (*store.Application, error) {
	app, err := s.store.GetApplication(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("getting application %s: %w", id, err)
	}
	return app, nil
}

// UpdateStatus moves an application to status on behalf of actor and
// publishes the change.
func (s *Service) UpdateStatus(ctx context.Context, id, status string, actor session.Admin) (*store.Application, error) {
	ctx, span := otel.Tracer("portal-creditos").Start(ctx, "review.update_status")
	defer span.End()
	span.SetAttributes(attribute.String("application.id", id), attribute.String("application.status", status))

	if !store.ValidApplicationStatus(status) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}

	app, err := s.store.UpdateApplicationStatus(ctx, id, status)
	if err != nil {
		return nil, fmt.Errorf("updating application %s: %w", id, err)
	}

	metrics.RecordStatusUpdate(status)
	slog.InfoContext(ctx, "application status updated",
		"application_id", id, "status", status, "admin_id", actor.ID)

	ev := events.Event{
		Type:          events.TypeApplicationStatusChanged,
		ApplicationID: app.ID,
		OfferID:       app.OfferID,
		Status:        app.Status,
		Actor:         actor.Email,
		OccurredAt:    s.now().UTC(),
	}
	if err := s.publisher.Publish(ctx, ev); err != nil {
		slog.WarnContext(ctx, "publishing event failed", "type", ev.Type, "error", err)
	}
	return app, nil
}

// DownloadURL returns a short-lived link to the document fileID.
func (s *Service) DownloadURL(ctx context.Context, fileID string) (string, error) {
	if s.downloads == nil || !s.downloads.Configured() {
		return "", ErrStorageNotConfigured
	}
	file, err := s.store.GetUploadedFile(ctx, fileID)
	if err != nil {
		return "", fmt.Errorf("getting file %s: %w", fileID, err)
	}
	if file.ObjectKey == "" {
		return "", fmt.Errorf("file %s has no object key: %w", fileID, store.ErrNotFound)
	}
	url, err := s.downloads.PresignDownload(ctx, file.ObjectKey, file.OriginalFilename)
	if err != nil {
		return "", err
	}
	return url, nil
}
