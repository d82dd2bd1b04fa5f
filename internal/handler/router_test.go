package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"fotobox/eventhub/internal/cleanup"
	"fotobox/eventhub/internal/clock"
	"fotobox/eventhub/internal/config"
	"fotobox/eventhub/internal/mirror"
	"fotobox/eventhub/internal/repository"
	"fotobox/eventhub/internal/service"
	"fotobox/eventhub/internal/storage"
	"fotobox/eventhub/internal/testutil"
	jwtpkg "fotobox/eventhub/pkg/jwt"
	"fotobox/eventhub/pkg/qrcode"
)

const (
	adminPassword = "admin-secret"
	hostPassword  = "host-secret"
)

type testServer struct {
	router *gin.Engine
	hosts  service.HostService
	assets *storage.AssetStore
	clock  *clock.Fake
}

func newTestServer(t *testing.T, maxFileBytes int64) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	logger := zap.NewNop()
	db := testutil.NewDB(t)
	assets, err := storage.NewAssetStore(t.TempDir(), logger)
	require.NoError(t, err)

	clk := clock.NewFake(time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC))
	locks := repository.NewMemoryLockStore()
	hostRepo := repository.NewPGHostRepository(db)
	eventRepo := repository.NewPGEventRepository(db)
	uploadRepo := repository.NewPGUploadRepository(db)
	jwtManager := jwtpkg.NewManager("test-secret", "eventhub", time.Hour, 24*time.Hour)

	purger := cleanup.NewPurger(eventRepo, uploadRepo, assets, logger)
	scheduler := cleanup.NewScheduler(eventRepo, purger, locks, clk, cleanup.Options{}, logger)

	hostService := service.NewHostService(hostRepo, eventRepo, purger, jwtManager, 14, logger)
	eventService := service.NewEventService(hostRepo, eventRepo, locks, purger, qrcode.NewRenderer(128), assets, clk,
		service.EventConfig{DefaultExpiryDays: 14, PublicBaseURL: "http://localhost:8080"}, logger)
	uploadService := service.NewUploadService(eventRepo, uploadRepo, assets, mirror.Disabled(), clk, logger)

	_, err = hostService.EnsureAdmin(context.Background(), adminPassword)
	require.NoError(t, err)

	cfg := &config.Config{
		Server:  config.ServerConfig{Mode: "test"},
		CORS:    config.CORSConfig{AllowedOrigins: []string{"*"}, AllowedMethods: []string{"GET", "POST"}},
		Storage: config.StorageConfig{Root: assets.Root()},
	}
	router := SetupRouter(cfg, logger, jwtManager,
		NewAuthHandler(hostService),
		NewEventHandler(eventService, uploadService),
		NewUploadHandler(uploadService, maxFileBytes),
		NewAdminHandler(hostService, eventService, scheduler),
	)

	return &testServer{router: router, hosts: hostService, assets: assets, clock: clk}
}

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func (s *testServer) do(t *testing.T, method, path, token string, body io.Reader, contentType string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	var env envelope
	if strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	}
	return w, env
}

func (s *testServer) doJSON(t *testing.T, method, path, token string, payload any) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		require.NoError(t, err)
		body = bytes.NewReader(raw)
	}
	return s.do(t, method, path, token, body, "application/json")
}

func (s *testServer) login(t *testing.T, login, password string) string {
	t.Helper()
	w, env := s.doJSON(t, http.MethodPost, "/api/v1/auth/login", "", gin.H{"login": login, "password": password})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var tokens service.TokenSet
	require.NoError(t, json.Unmarshal(env.Data, &tokens))
	return tokens.AccessToken
}

func (s *testServer) hostToken(t *testing.T, username string, maxEvents *int) string {
	t.Helper()
	_, err := s.hosts.CreateHost(context.Background(), service.CreateHostInput{
		Username:  username,
		Email:     username + "@example.test",
		Password:  hostPassword,
		MaxEvents: maxEvents,
	})
	require.NoError(t, err)
	return s.login(t, username, hostPassword)
}

type eventView struct {
	ID        uint       `json:"id"`
	Code      string     `json:"event_code"`
	QRCode    *string    `json:"qr_code"`
	ExpiresAt *time.Time `json:"expires_at"`
}

func (s *testServer) createEvent(t *testing.T, token string, payload gin.H) eventView {
	t.Helper()
	w, env := s.doJSON(t, http.MethodPost, "/api/v1/events", token, payload)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var ev eventView
	require.NoError(t, json.Unmarshal(env.Data, &ev))
	return ev
}

type formFile struct {
	field, name, body string
}

func multipartBody(t *testing.T, fields map[string]string, files ...formFile) (io.Reader, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	for _, f := range files {
		part, err := mw.CreateFormFile(f.field, f.name)
		require.NoError(t, err)
		_, err = part.Write([]byte(f.body))
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func TestRouter_Healthz(t *testing.T) {
	s := newTestServer(t, 0)
	w, _ := s.do(t, http.MethodGet, "/healthz", "", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRouter_LoginRejectsBadPassword(t *testing.T) {
	s := newTestServer(t, 0)
	w, _ := s.doJSON(t, http.MethodPost, "/api/v1/auth/login", "", gin.H{"login": "admin", "password": "nope"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w, _ = s.doJSON(t, http.MethodPost, "/api/v1/auth/login", "", gin.H{"login": "admin"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRouter_CreateEventAndLookupByCode(t *testing.T) {
	s := newTestServer(t, 0)
	token := s.hostToken(t, "alice", nil)

	ev := s.createEvent(t, token, gin.H{"name": "Wedding"})
	require.Len(t, ev.Code, 8)
	require.NotNil(t, ev.QRCode)
	require.NotNil(t, ev.ExpiresAt)
	assert.True(t, ev.ExpiresAt.Equal(s.clock.Now().AddDate(0, 0, 14)))

	_, err := os.Stat(filepath.Join(s.assets.Root(), *ev.QRCode))
	assert.NoError(t, err)

	w, env := s.do(t, http.MethodGet, "/api/v1/events/code/"+strings.ToLower(ev.Code), "", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	var got eventView
	require.NoError(t, json.Unmarshal(env.Data, &got))
	assert.Equal(t, ev.ID, got.ID)

	w, _ = s.do(t, http.MethodGet, "/api/v1/events/code/NOPE0000", "", nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, env = s.do(t, http.MethodGet, "/api/v1/events/mine", token, nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	var mine []eventView
	require.NoError(t, json.Unmarshal(env.Data, &mine))
	assert.Len(t, mine, 1)
}

func TestRouter_CreateEventRequiresAuth(t *testing.T) {
	s := newTestServer(t, 0)
	w, _ := s.doJSON(t, http.MethodPost, "/api/v1/events", "", gin.H{"name": "x"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w, _ = s.doJSON(t, http.MethodPost, "/api/v1/events", "garbage", gin.H{"name": "x"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRouter_QuotaExceededReportsLimit(t *testing.T) {
	s := newTestServer(t, 0)
	one := 1
	token := s.hostToken(t, "bob", &one)

	s.createEvent(t, token, gin.H{"name": "first"})

	w, env := s.doJSON(t, http.MethodPost, "/api/v1/events", token, gin.H{"name": "second"})
	require.Equal(t, http.StatusForbidden, w.Code)
	var data struct {
		Limit int `json:"limit"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &data))
	assert.Equal(t, 1, data.Limit)
}

func TestRouter_GuestUploadThenExpiry(t *testing.T) {
	s := newTestServer(t, 0)
	token := s.hostToken(t, "carol", nil)
	ev := s.createEvent(t, token, gin.H{"name": "Party"})

	body, ct := multipartBody(t, map[string]string{"event_code": ev.Code, "guest_name": "Dana"},
		formFile{"files", "a.jpg", "jpeg-bytes"},
		formFile{"files", "b.png", "png-bytes"},
	)
	w, env := s.do(t, http.MethodPost, "/api/v1/uploads", "", body, ct)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var result struct {
		Count int            `json:"count"`
		Files []uploadedFile `json:"files"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &result))
	require.Equal(t, 2, result.Count)
	assert.Equal(t, "a.jpg", result.Files[0].Filename)
	assert.Equal(t, "image/jpeg", result.Files[0].Type)

	raw, err := os.ReadFile(filepath.Join(s.assets.Root(), result.Files[0].Path))
	require.NoError(t, err)
	assert.Equal(t, "jpeg-bytes", string(raw))

	w, _ = s.do(t, http.MethodGet, "/uploads/"+result.Files[0].Path, "", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)

	s.clock.Advance(15 * 24 * time.Hour)

	body, ct = multipartBody(t, map[string]string{"event_code": ev.Code}, formFile{"files", "c.jpg", "late"})
	w, _ = s.do(t, http.MethodPost, "/api/v1/uploads", "", body, ct)
	assert.Equal(t, http.StatusGone, w.Code)

	w, _ = s.do(t, http.MethodGet, "/api/v1/events/code/"+ev.Code, "", nil, "")
	assert.Equal(t, http.StatusGone, w.Code)
}

func TestRouter_UploadRejections(t *testing.T) {
	s := newTestServer(t, 4)
	token := s.hostToken(t, "erin", nil)
	ev := s.createEvent(t, token, gin.H{"name": "Gala"})

	body, ct := multipartBody(t, map[string]string{"event_code": ev.Code}, formFile{"files", "tool.exe", "MZ"})
	w, _ := s.do(t, http.MethodPost, "/api/v1/uploads", "", body, ct)
	assert.Equal(t, http.StatusUnsupportedMediaType, w.Code)

	body, ct = multipartBody(t, map[string]string{"event_code": ev.Code}, formFile{"files", "big.jpg", "too many bytes"})
	w, _ = s.do(t, http.MethodPost, "/api/v1/uploads", "", body, ct)
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)

	body, ct = multipartBody(t, map[string]string{"event_code": ev.Code})
	w, _ = s.do(t, http.MethodPost, "/api/v1/uploads", "", body, ct)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	body, ct = multipartBody(t, map[string]string{"event_code": "MISSING1"}, formFile{"files", "a.jpg", "x"})
	w, _ = s.do(t, http.MethodPost, "/api/v1/uploads", "", body, ct)
	assert.Equal(t, http.StatusNotFound, w.Code)

	entries, err := os.ReadDir(s.assets.TempDir())
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestRouter_ListUploadsVisibility(t *testing.T) {
	s := newTestServer(t, 0)
	token := s.hostToken(t, "frank", nil)
	ev := s.createEvent(t, token, gin.H{"name": "Private", "allow_view": false})
	path := "/api/v1/events/" + strconv.FormatUint(uint64(ev.ID), 10) + "/uploads"

	w, _ := s.do(t, http.MethodGet, path, "", nil, "")
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, _ = s.do(t, http.MethodGet, path, "not-a-token", nil, "")
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, _ = s.do(t, http.MethodGet, path, token, nil, "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRouter_EventOwnership(t *testing.T) {
	s := newTestServer(t, 0)
	owner := s.hostToken(t, "gina", nil)
	other := s.hostToken(t, "hank", nil)
	ev := s.createEvent(t, owner, gin.H{"name": "Mine"})
	path := "/api/v1/events/" + strconv.FormatUint(uint64(ev.ID), 10)

	w, _ := s.do(t, http.MethodGet, path, other, nil, "")
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, _ = s.doJSON(t, http.MethodPut, path, owner, gin.H{"name": "Renamed"})
	assert.Equal(t, http.StatusOK, w.Code)

	w, _ = s.do(t, http.MethodDelete, path, other, nil, "")
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, _ = s.do(t, http.MethodDelete, path, owner, nil, "")
	assert.Equal(t, http.StatusOK, w.Code)

	w, _ = s.do(t, http.MethodGet, path, owner, nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, _ = s.do(t, http.MethodGet, "/api/v1/events/abc", owner, nil, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRouter_CoverUpload(t *testing.T) {
	s := newTestServer(t, 0)
	token := s.hostToken(t, "iris", nil)
	ev := s.createEvent(t, token, gin.H{"name": "Covered"})
	path := "/api/v1/events/" + strconv.FormatUint(uint64(ev.ID), 10) + "/cover"

	body, ct := multipartBody(t, nil, formFile{"cover", "cover.png", "png"})
	w, env := s.do(t, http.MethodPost, path, token, body, ct)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var got struct {
		CoverImage *string `json:"cover_image"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &got))
	require.NotNil(t, got.CoverImage)
	assert.FileExists(t, filepath.Join(s.assets.Root(), *got.CoverImage))

	body, ct = multipartBody(t, nil)
	w, _ = s.do(t, http.MethodPost, path, token, body, ct)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRouter_AdminRoutes(t *testing.T) {
	s := newTestServer(t, 0)
	hostToken := s.hostToken(t, "jack", nil)
	adminToken := s.login(t, "admin", adminPassword)

	w, _ := s.do(t, http.MethodGet, "/api/v1/admin/hosts", "", nil, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w, _ = s.do(t, http.MethodGet, "/api/v1/admin/hosts", hostToken, nil, "")
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, env := s.do(t, http.MethodGet, "/api/v1/admin/hosts", adminToken, nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	var hosts []struct {
		ID       uint   `json:"id"`
		Username string `json:"username"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &hosts))
	require.Len(t, hosts, 1)
	assert.Equal(t, "jack", hosts[0].Username)

	w, _ = s.doJSON(t, http.MethodPost, "/api/v1/admin/hosts", adminToken, gin.H{
		"username": "jack", "email": "other@example.test", "password": "pw",
	})
	assert.Equal(t, http.StatusConflict, w.Code)

	hostPath := "/api/v1/admin/hosts/" + strconv.FormatUint(uint64(hosts[0].ID), 10)
	w, _ = s.doJSON(t, http.MethodPut, hostPath, adminToken, gin.H{"max_events": -1})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = s.doJSON(t, http.MethodPut, hostPath, adminToken, gin.H{"max_events": 3})
	assert.Equal(t, http.StatusOK, w.Code)

	w, _ = s.do(t, http.MethodDelete, hostPath, adminToken, nil, "")
	assert.Equal(t, http.StatusOK, w.Code)

	w, _ = s.do(t, http.MethodDelete, hostPath, adminToken, nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRouter_AdminCleanup(t *testing.T) {
	s := newTestServer(t, 0)
	hostToken := s.hostToken(t, "kate", nil)
	adminToken := s.login(t, "admin", adminPassword)
	s.createEvent(t, hostToken, gin.H{"name": "Soon gone"})

	s.clock.Advance(15 * 24 * time.Hour)

	w, env := s.do(t, http.MethodPost, "/api/v1/admin/cleanup", adminToken, nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	var result cleanup.SweepResult
	require.NoError(t, json.Unmarshal(env.Data, &result))
	assert.Equal(t, 1, result.Found)
	assert.Equal(t, 1, result.Purged)

	w, env = s.do(t, http.MethodGet, "/api/v1/admin/events", adminToken, nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	var remaining []eventView
	require.NoError(t, json.Unmarshal(env.Data, &remaining))
	assert.Empty(t, remaining)
}
