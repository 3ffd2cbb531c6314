// Package store is the relational access layer for offers, applications,
// uploaded documents and admin users. All queries go through pgx.
package store

import (
	"context"
	"embed"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Migrations holds the schema migrations applied by the bootstrap phase.
//
//go:embed migrations/*.sql
var Migrations embed.FS

// DB is the subset of *pgxpool.Pool used by Store. pgx.Tx satisfies it too.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Store implements every repository operation on top of a DB.
type Store struct {
	db  DB
	now func() time.Time
}

func New(db DB) *Store {
	return &Store{db: db, now: time.Now}
}

func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

const offerColumns = `id, case_number, name, offer_amount::text, status, created_at, updated_at`

func scanOffer(row pgx.Row) (*Offer, error) {
	var o Offer
	if err := row.Scan(&o.ID, &o.CaseNumber, &o.Name, &o.OfferAmount, &o.Status, &o.CreatedAt, &o.UpdatedAt); err != nil {
		return nil, translate(err)
	}
	return &o, nil
}

// FindOfferByCaseNumber returns the offer with the exact case number,
// whatever its status.
func (s *Store) FindOfferByCaseNumber(ctx context.Context, caseNumber string) (*Offer, error) {
	return scanOffer(s.db.QueryRow(ctx,
		`SELECT `+offerColumns+` FROM offers WHERE case_number = $1`, caseNumber))
}

// FindAvailableOfferByName matches the name case-insensitively among
// available offers and returns the oldest match.
func (s *Store) FindAvailableOfferByName(ctx context.Context, name string) (*Offer, error) {
	return scanOffer(s.db.QueryRow(ctx,
		`SELECT `+offerColumns+` FROM offers
		 WHERE lower(name) = lower($1) AND status = $2
		 ORDER BY created_at, id
		 LIMIT 1`, name, OfferAvailable))
}

func (s *Store) GetOffer(ctx context.Context, id string) (*Offer, error) {
	if !validID(id) {
		return nil, ErrNotFound
	}
	return scanOffer(s.db.QueryRow(ctx,
		`SELECT `+offerColumns+` FROM offers WHERE id = $1`, id))
}

// UpsertOffer inserts the offer or updates name, amount and status of the
// offer sharing its case number. The stored row is returned.
func (s *Store) UpsertOffer(ctx context.Context, o Offer) (*Offer, error) {
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	if o.Status == "" {
		o.Status = OfferAvailable
	}
	return scanOffer(s.db.QueryRow(ctx,
		`INSERT INTO offers (id, case_number, name, offer_amount, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4::numeric, $5, $6, $6)
		 ON CONFLICT (case_number) DO UPDATE
		 SET name = EXCLUDED.name,
		     offer_amount = EXCLUDED.offer_amount,
		     status = EXCLUDED.status,
		     updated_at = EXCLUDED.updated_at
		 RETURNING `+offerColumns,
		o.ID, o.CaseNumber, o.Name, o.OfferAmount, o.Status, s.now().UTC()))
}

// CreateApplication stores the application and all of its file records in a
// single transaction. Either everything is written or nothing is.
func (s *Store) CreateApplication(ctx context.Context, app Application, files []UploadedFile) (*Application, error) {
	if !validID(app.OfferID) {
		return nil, &ConstraintError{Code: "23503", Target: "offer_id", Err: fmt.Errorf("invalid offer id %q", app.OfferID)}
	}
	if app.ID == "" {
		app.ID = uuid.NewString()
	}
	now := s.now().UTC()
	app.Status = StatusPendingAnalysis
	app.CreatedAt = now
	app.UpdatedAt = now

	err := pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`INSERT INTO applications (id, offer_id, full_name, address, phone, email, profession,
			   marital_status, bank, agency, account_number, account_type, status, created_at, updated_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $14)`,
			app.ID, app.OfferID, app.FullName, app.Address, app.Phone, app.Email, app.Profession,
			app.MaritalStatus, app.Bank, app.Agency, app.AccountNumber, app.AccountType, app.Status, now,
		); err != nil {
			return fmt.Errorf("inserting application: %w", err)
		}

		rows := make([][]any, 0, len(files))
		for i := range files {
			if files[i].ID == "" {
				files[i].ID = uuid.NewString()
			}
			files[i].ApplicationID = app.ID
			files[i].CreatedAt = now
			f := files[i]
			rows = append(rows, []any{f.ID, f.ApplicationID, f.FieldName, f.ObjectKey, f.OriginalFilename, f.Mimetype, f.Size, f.CreatedAt})
		}
		n, err := tx.CopyFrom(ctx,
			pgx.Identifier{"uploaded_files"},
			[]string{"id", "application_id", "field_name", "object_key", "original_filename", "mimetype", "size", "created_at"},
			pgx.CopyFromRows(rows),
		)
		if err != nil {
			return fmt.Errorf("inserting uploaded files: %w", err)
		}
		if int(n) != len(rows) {
			return fmt.Errorf("inserted %d of %d uploaded files", n, len(rows))
		}
		return nil
	})
	if err != nil {
		return nil, translate(err)
	}

	app.UploadedFiles = files
	return &app, nil
}

const applicationColumns = `a.id, a.offer_id, a.full_name, a.address, a.phone, a.email, a.profession,
	a.marital_status, a.bank, a.agency, a.account_number, a.account_type, a.status, a.created_at, a.updated_at`

func applicationDest(a *Application) []any {
	return []any{
		&a.ID, &a.OfferID, &a.FullName, &a.Address, &a.Phone, &a.Email, &a.Profession,
		&a.MaritalStatus, &a.Bank, &a.Agency, &a.AccountNumber, &a.AccountType, &a.Status, &a.CreatedAt, &a.UpdatedAt,
	}
}

// ListApplications returns every application, newest first, with the case
// number of its offer.
func (s *Store) ListApplications(ctx context.Context) ([]Application, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+applicationColumns+`, o.case_number
		 FROM applications a JOIN offers o ON o.id = a.offer_id
		 ORDER BY a.created_at DESC, a.id`)
	if err != nil {
		return nil, fmt.Errorf("listing applications: %w", err)
	}
	defer rows.Close()

	apps := []Application{}
	for rows.Next() {
		var a Application
		ref := &OfferRef{}
		if err := rows.Scan(append(applicationDest(&a), &ref.CaseNumber)...); err != nil {
			return nil, fmt.Errorf("scanning application: %w", err)
		}
		a.Offer = ref
		apps = append(apps, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating applications: %w", err)
	}
	return apps, nil
}

// GetApplication returns the application with its offer reference and the
// uploaded files ordered by field name.
func (s *Store) GetApplication(ctx context.Context, id string) (*Application, error) {
	if !validID(id) {
		return nil, ErrNotFound
	}

	var a Application
	ref := &OfferRef{}
	err := s.db.QueryRow(ctx,
		`SELECT `+applicationColumns+`, o.case_number, o.offer_amount::text
		 FROM applications a JOIN offers o ON o.id = a.offer_id
		 WHERE a.id = $1`, id,
	).Scan(append(applicationDest(&a), &ref.CaseNumber, &ref.OfferAmount)...)
	if err != nil {
		return nil, translate(err)
	}
	a.Offer = ref

	rows, err := s.db.Query(ctx,
		`SELECT id, application_id, field_name, object_key, original_filename, mimetype, size, created_at
		 FROM uploaded_files WHERE application_id = $1
		 ORDER BY field_name, created_at`, id)
	if err != nil {
		return nil, fmt.Errorf("listing uploaded files: %w", err)
	}
	defer rows.Close()

	a.UploadedFiles = []UploadedFile{}
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, err
		}
		a.UploadedFiles = append(a.UploadedFiles, *f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating uploaded files: %w", err)
	}
	return &a, nil
}

// UpdateApplicationStatus sets the status and returns the updated row.
func (s *Store) UpdateApplicationStatus(ctx context.Context, id, status string) (*Application, error) {
	if !validID(id) {
		return nil, ErrNotFound
	}
	var a Application
	err := s.db.QueryRow(ctx,
		`UPDATE applications AS a SET status = $2, updated_at = $3
		 WHERE a.id = $1
		 RETURNING `+applicationColumns, id, status, s.now().UTC(),
	).Scan(applicationDest(&a)...)
	if err != nil {
		return nil, translate(err)
	}
	return &a, nil
}

func scanFile(row pgx.Row) (*UploadedFile, error) {
	var f UploadedFile
	if err := row.Scan(&f.ID, &f.ApplicationID, &f.FieldName, &f.ObjectKey, &f.OriginalFilename, &f.Mimetype, &f.Size, &f.CreatedAt); err != nil {
		return nil, translate(err)
	}
	return &f, nil
}

func (s *Store) GetUploadedFile(ctx context.Context, id string) (*UploadedFile, error) {
	if !validID(id) {
		return nil, ErrNotFound
	}
	return scanFile(s.db.QueryRow(ctx,
		`SELECT id, application_id, field_name, object_key, original_filename, mimetype, size, created_at
		 FROM uploaded_files WHERE id = $1`, id))
}

// FindAdminByEmail looks the admin up by lower-cased email.
func (s *Store) FindAdminByEmail(ctx context.Context, email string) (*AdminUser, error) {
	var u AdminUser
	err := s.db.QueryRow(ctx,
		`SELECT id, email, name, password_hash FROM admin_users WHERE email = $1`,
		strings.ToLower(strings.TrimSpace(email)),
	).Scan(&u.ID, &u.Email, &u.Name, &u.PasswordHash)
	if err != nil {
		return nil, translate(err)
	}
	return &u, nil
}

// UpsertAdmin creates the admin or replaces the name and password hash of an
// existing one with the same email.
func (s *Store) UpsertAdmin(ctx context.Context, u AdminUser) (*AdminUser, error) {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	var out AdminUser
	err := s.db.QueryRow(ctx,
		`INSERT INTO admin_users (id, email, name, password_hash, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $5)
		 ON CONFLICT (email) DO UPDATE
		 SET name = EXCLUDED.name, password_hash = EXCLUDED.password_hash, updated_at = EXCLUDED.updated_at
		 RETURNING id, email, name, password_hash`,
		u.ID, u.Email, u.Name, u.PasswordHash, s.now().UTC(),
	).Scan(&out.ID, &out.Email, &out.Name, &out.PasswordHash)
	if err != nil {
		return nil, translate(err)
	}
	return &out, nil
}
