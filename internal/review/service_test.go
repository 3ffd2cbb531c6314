package review

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/bavena95/portal-creditos/internal/events"
	"github.com/bavena95/portal-creditos/internal/session"
	"github.com/bavena95/portal-creditos/internal/store"
)

type fakeStore struct {
	admins map[string]*store.AdminUser
	apps   map[string]*store.Application
	files  map[string]*store.UploadedFile
	err    error
}

func (f *fakeStore) FindAdminByEmail(_ context.Context, email string) (*store.AdminUser, error) {
	if f.err != nil {
		return nil, f.err
	}
	if u, ok := f.admins[email]; ok {
		return u, nil
	}
	return nil, store.ErrNotFound
}

func (f *fakeStore) ListApplications(context.Context) ([]store.Application, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := []store.Application{}
	for _, a := range f.apps {
		out = append(out, *a)
	}
	return out, nil
}

func (f *fakeStore) GetApplication(_ context.Context, id string) (*store.Application, error) {
	if a, ok := f.apps[id]; ok {
		return a, nil
	}
	return nil, store.ErrNotFound
}

func (f *fakeStore) UpdateApplicationStatus(_ context.Context, id, status string) (*store.Application, error) {
	a, ok := f.apps[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	a.Status = status
	return a, nil
}

func (f *fakeStore) GetUploadedFile(_ context.Context, id string) (*store.UploadedFile, error) {
	if file, ok := f.files[id]; ok {
		return file, nil
	}
	return nil, store.ErrNotFound
}

type fakeThrottle struct {
	failures map[string]int
	max      int
	err      error
	resets   int
}

func (f *fakeThrottle) LoginAllowed(_ context.Context, email string) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	return f.failures[email] < f.max, nil
}

func (f *fakeThrottle) RecordLoginFailure(_ context.Context, email string) error {
	if f.err != nil {
		return f.err
	}
	f.failures[email]++
	return nil
}

func (f *fakeThrottle) ResetLoginFailures(_ context.Context, email string) error {
	if f.err != nil {
		return f.err
	}
	f.resets++
	delete(f.failures, email)
	return nil
}

type fakeDownloads struct {
	configured bool
	key, name  string
}

func (f *fakeDownloads) Configured() bool { return f.configured }

func (f *fakeDownloads) PresignDownload(_ context.Context, key, filename string) (string, error) {
	f.key, f.name = key, filename
	return "https://r2.example/" + key + "?X-Amz-Expires=300", nil
}

type recordingPublisher struct {
	events []events.Event
}

func (p *recordingPublisher) Publish(_ context.Context, e events.Event) error {
	p.events = append(p.events, e)
	return nil
}

func adminStore(t *testing.T) *fakeStore {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("s3nha-forte"), bcrypt.MinCost)
	require.NoError(t, err)
	return &fakeStore{
		admins: map[string]*store.AdminUser{
			"ana@example.com": {ID: "adm-1", Email: "ana@example.com", Name: "Ana", PasswordHash: string(hash)},
		},
	}
}

func TestLogin(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		email    string
		password string
		wantErr  error
	}{
		{name: "success", email: "ana@example.com", password: "s3nha-forte"},
		{name: "email is normalized", email: "  ANA@Example.com ", password: "s3nha-forte"},
		{name: "wrong password", email: "ana@example.com", password: "nope", wantErr: ErrInvalidCredentials},
		{name: "unknown user", email: "bob@example.com", password: "s3nha-forte", wantErr: ErrInvalidCredentials},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			svc := NewService(adminStore(t), nil, nil, nil)
			admin, err := svc.Login(context.Background(), tc.email, tc.password)
			if tc.wantErr != nil {
				assert.ErrorIs(t, err, tc.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, session.Admin{ID: "adm-1", Email: "ana@example.com", Name: "Ana"}, admin)
		})
	}
}

func TestLogin_StoreError(t *testing.T) {
	t.Parallel()

	svc := NewService(&fakeStore{err: errors.New("pool closed")}, nil, nil, nil)
	_, err := svc.Login(context.Background(), "ana@example.com", "x")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrInvalidCredentials)
}

func TestLogin_Throttle(t *testing.T) {
	t.Parallel()

	throttle := &fakeThrottle{failures: map[string]int{}, max: 2}
	svc := NewService(adminStore(t), throttle, nil, nil)
	ctx := context.Background()

	_, err := svc.Login(ctx, "ana@example.com", "bad-1")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = svc.Login(ctx, "Ana@example.com", "bad-2")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	assert.Equal(t, 2, throttle.failures["ana@example.com"])

	_, err = svc.Login(ctx, "ana@example.com", "s3nha-forte")
	assert.ErrorIs(t, err, ErrThrottled, "correct password is refused while throttled")

	throttle.failures["ana@example.com"] = 1
	_, err = svc.Login(ctx, "ana@example.com", "s3nha-forte")
	require.NoError(t, err)
	assert.Equal(t, 1, throttle.resets)
	assert.Zero(t, throttle.failures["ana@example.com"])
}

func TestLogin_ThrottleUnavailableFailsOpen(t *testing.T) {
	t.Parallel()

	svc := NewService(adminStore(t), &fakeThrottle{err: errors.New("redis down")}, nil, nil)

	_, err := svc.Login(context.Background(), "ana@example.com", "s3nha-forte")
	require.NoError(t, err)

	_, err = svc.Login(context.Background(), "ana@example.com", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func reviewStore() *fakeStore {
	return &fakeStore{
		apps: map[string]*store.Application{
			"app-1": {ID: "app-1", OfferID: "offer-1", FullName: "Maria", Status: store.StatusPendingAnalysis},
		},
		files: map[string]*store.UploadedFile{
			"file-1": {ID: "file-1", ObjectKey: "documentos/offer-1/x-rg.pdf", OriginalFilename: "rg.pdf"},
			"file-2": {ID: "file-2", ObjectKey: ""},
		},
	}
}

func TestListAndGet(t *testing.T) {
	t.Parallel()

	svc := NewService(reviewStore(), nil, nil, nil)

	apps, err := svc.List(context.Background())
	require.NoError(t, err)
	assert.Len(t, apps, 1)

	app, err := svc.Get(context.Background(), "app-1")
	require.NoError(t, err)
	assert.Equal(t, "Maria", app.FullName)

	_, err = svc.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestUpdateStatus(t *testing.T) {
	t.Parallel()

	pub := &recordingPublisher{}
	svc := NewService(reviewStore(), nil, nil, pub)
	actor := session.Admin{ID: "adm-1", Email: "ana@example.com"}

	app, err := svc.UpdateStatus(context.Background(), "app-1", store.StatusApproved, actor)
	require.NoError(t, err)
	assert.Equal(t, store.StatusApproved, app.Status)

	require.Len(t, pub.events, 1)
	assert.Equal(t, events.TypeApplicationStatusChanged, pub.events[0].Type)
	assert.Equal(t, store.StatusApproved, pub.events[0].Status)
	assert.Equal(t, "ana@example.com", pub.events[0].Actor)
	assert.Equal(t, "offer-1", pub.events[0].OfferID)
}

func TestUpdateStatus_Errors(t *testing.T) {
	t.Parallel()

	pub := &recordingPublisher{}
	svc := NewService(reviewStore(), nil, nil, pub)

	_, err := svc.UpdateStatus(context.Background(), "app-1", "archived", session.Admin{})
	assert.ErrorIs(t, err, ErrInvalidStatus)
	assert.True(t, strings.Contains(err.Error(), "archived"))

	_, err = svc.UpdateStatus(context.Background(), "missing", store.StatusRejected, session.Admin{})
	assert.ErrorIs(t, err, store.ErrNotFound)

	assert.Empty(t, pub.events)
}

func TestDownloadURL(t *testing.T) {
	t.Parallel()

	downloads := &fakeDownloads{configured: true}
	svc := NewService(reviewStore(), nil, downloads, nil)

	url, err := svc.DownloadURL(context.Background(), "file-1")
	require.NoError(t, err)
	assert.Contains(t, url, "documentos/offer-1/x-rg.pdf")
	assert.Equal(t, "rg.pdf", downloads.name)

	_, err = svc.DownloadURL(context.Background(), "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)

	_, err = svc.DownloadURL(context.Background(), "file-2")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestDownloadURL_NotConfigured(t *testing.T) {
	t.Parallel()

	svc := NewService(reviewStore(), nil, &fakeDownloads{}, nil)
	_, err := svc.DownloadURL(context.Background(), "file-1")
	assert.ErrorIs(t, err, ErrStorageNotConfigured)

	svc = NewService(reviewStore(), nil, nil, nil)
	_, err = svc.DownloadURL(context.Background(), "file-1")
	assert.ErrorIs(t, err, ErrStorageNotConfigured)
}
