// Package events defines the domain events emitted when applications are
// submitted or reviewed.
package events

import (
	"context"
	"time"
)

const (
	TypeApplicationSubmitted     = "application.submitted"
	TypeApplicationStatusChanged = "application.status_changed"
)

// SubjectPrefix is the NATS subject namespace for application events.
const SubjectPrefix = "portal.applications"

type Event struct {
	Type          string    `json:"type"`
	ApplicationID string    `json:"applicationId"`
	OfferID       string    `json:"offerId,omitempty"`
	Status        string    `json:"status"`
	Actor         string    `json:"actor,omitempty"`
	OccurredAt    time.Time `json:"occurredAt"`
}

// Subject maps the event type onto its NATS subject,
// e.g. portal.applications.submitted.
func (e Event) Subject() string {
	switch e.Type {
	case TypeApplicationSubmitted:
		return SubjectPrefix + ".submitted"
	case TypeApplicationStatusChanged:
		return SubjectPrefix + ".status_changed"
	}
	return SubjectPrefix + ".other"
}

// Publisher delivers events. Delivery is best effort: callers log failures
// and never fail the request because of them.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// Noop discards events; used when no broker is configured.
type Noop struct{}

func (Noop) Publish(context.Context, Event) error { return nil }
