package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"fotobox/eventhub/internal/cleanup"
	"fotobox/eventhub/internal/clock"
	"fotobox/eventhub/internal/model"
	"fotobox/eventhub/internal/repository"
	"fotobox/eventhub/internal/storage"
	"fotobox/eventhub/internal/testutil"
	jwtpkg "fotobox/eventhub/pkg/jwt"
)

var testNow = time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)

type fakeQR struct {
	err error
}

func (f fakeQR) Render(content string) ([]byte, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []byte("png:" + content), nil
}

type mirrorCall struct {
	EventID     uint
	EventName   string
	LocalPath   string
	DisplayName string
}

type fakeMirror struct {
	mu    sync.Mutex
	calls []mirrorCall
}

func (m *fakeMirror) Enqueue(eventID uint, eventName, localPath, displayName string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, mirrorCall{eventID, eventName, localPath, displayName})
}

type fixture struct {
	hostsRepo   repository.HostRepository
	eventsRepo  repository.EventRepository
	uploadsRepo repository.UploadRepository
	assets      *storage.AssetStore
	clock       *clock.Fake
	mirror      *fakeMirror
	events      EventService
	uploads     UploadService
	hosts       HostService
	jwt         *jwtpkg.Manager
}

func newFixture(t *testing.T) *fixture {
	return newFixtureWithQR(t, fakeQR{})
}

func newFixtureWithQR(t *testing.T, qr QRRenderer) *fixture {
	t.Helper()
	db := testutil.NewDB(t)
	assets, err := storage.NewAssetStore(t.TempDir(), nil)
	require.NoError(t, err)

	f := &fixture{
		hostsRepo:   repository.NewPGHostRepository(db),
		eventsRepo:  repository.NewPGEventRepository(db),
		uploadsRepo: repository.NewPGUploadRepository(db),
		assets:      assets,
		clock:       clock.NewFake(testNow),
		mirror:      &fakeMirror{},
		jwt:         jwtpkg.NewManager("test-secret", "eventhub", time.Hour, 24*time.Hour),
	}
	purger := cleanup.NewPurger(f.eventsRepo, f.uploadsRepo, assets, nil)
	f.events = NewEventService(f.hostsRepo, f.eventsRepo, repository.NewMemoryLockStore(), purger, qr, assets, f.clock,
		EventConfig{DefaultExpiryDays: 10, PublicBaseURL: "https://fotobox.example/"}, nil)
	f.uploads = NewUploadService(f.eventsRepo, f.uploadsRepo, assets, f.mirror, f.clock, nil)
	f.hosts = NewHostService(f.hostsRepo, f.eventsRepo, purger, f.jwt, 14, nil)
	return f
}

// host inserts a host directly, skipping password hashing.
func (f *fixture) host(t *testing.T, username string, mutate func(h *model.Host)) *model.Host {
	t.Helper()
	h := &model.Host{
		Username:      username,
		Email:         username + "@example.test",
		PasswordHash:  "x",
		Role:          model.RoleHost,
		ExpiresInDays: 14,
	}
	if mutate != nil {
		mutate(h)
	}
	require.NoError(t, f.hostsRepo.Create(context.Background(), h))
	return h
}

func (f *fixture) event(t *testing.T, h *model.Host, name string) *model.Event {
	t.Helper()
	e, err := f.events.CreateEvent(context.Background(), actorOf(h), CreateEventInput{Name: name})
	require.NoError(t, err)
	return e
}

func (f *fixture) stage(t *testing.T, name, contentType, body string) StagedUpload {
	t.Helper()
	s, err := f.uploads.StageFile(strings.NewReader(body), name, contentType)
	require.NoError(t, err)
	return *s
}

func actorOf(h *model.Host) Actor { return Actor{HostID: h.ID, Role: h.Role} }

var errBoom = errors.New("boom")

func intPtr(v int) *int { return &v }
func boolPtr(v bool) *bool { return &v }
func strPtr(v string) *string { return &v }
func timePtr(v time.Time) *time.Time { return &v }
