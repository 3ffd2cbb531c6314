package store

import "time"

// Offer status values. Only available offers can be matched by the public search.
const (
	OfferAvailable = "available"
)

// Application status values.
const (
	StatusPendingAnalysis = "pending_analysis"
	StatusApproved        = "approved"
	StatusRejected        = "rejected"
)

// ValidApplicationStatus reports whether s is an application status an admin may set.
func ValidApplicationStatus(s string) bool {
	switch s {
	case StatusPendingAnalysis, StatusApproved, StatusRejected:
		return true
	}
	return false
}

// Offer is a pre-approved credit offer. OfferAmount keeps the decimal text
// representation returned by Postgres so no precision is lost on the way to JSON.
type Offer struct {
	ID          string    `json:"id"`
	CaseNumber  string    `json:"caseNumber"`
	Name        string    `json:"name"`
	OfferAmount string    `json:"offerAmount"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// OfferRef is the slice of an offer embedded in application responses.
type OfferRef struct {
	CaseNumber  string `json:"caseNumber"`
	OfferAmount string `json:"offerAmount,omitempty"`
}

type Application struct {
	ID            string         `json:"id"`
	OfferID       string         `json:"offerId"`
	FullName      string         `json:"fullName"`
	Address       string         `json:"address"`
	Phone         string         `json:"phone"`
	Email         string         `json:"email"`
	Profession    string         `json:"profession"`
	MaritalStatus string         `json:"maritalStatus"`
	Bank          string         `json:"bank"`
	Agency        string         `json:"agency"`
	AccountNumber string         `json:"accountNumber"`
	AccountType   string         `json:"accountType"`
	Status        string         `json:"status"`
	CreatedAt     time.Time      `json:"createdAt"`
	UpdatedAt     time.Time      `json:"updatedAt"`
	Offer         *OfferRef      `json:"offer,omitempty"`
	UploadedFiles []UploadedFile `json:"uploadedFiles,omitempty"`
}

// UploadedFile describes one document stored in the object store.
// ObjectKey keeps the "r2Key" wire name used by the dashboard.
type UploadedFile struct {
	ID               string    `json:"id"`
	ApplicationID    string    `json:"applicationId"`
	FieldName        string    `json:"fieldName"`
	ObjectKey        string    `json:"r2Key"`
	OriginalFilename string    `json:"originalFilename"`
	Mimetype         string    `json:"mimetype"`
	Size             int64     `json:"size"`
	CreatedAt        time.Time `json:"createdAt"`
}

type AdminUser struct {
	ID           string
	Email        string
	Name         string
	PasswordHash string
}
