package router

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	dbpkg "github.com/blinkportal/backend/internal/db"
	"github.com/blinkportal/backend/internal/handler"
	"github.com/blinkportal/backend/internal/model"
	"github.com/blinkportal/backend/internal/service"
	"github.com/blinkportal/backend/pkg/sharepoint"
	"github.com/blinkportal/backend/pkg/tokencache"
)

const secret = "router-test-secret"

type memDocs struct{ n int }

func (d *memDocs) Upload(_ context.Context, content io.Reader, filename, _ string) (*sharepoint.Item, error) {
	b, err := io.ReadAll(content)
	if err != nil {
		return nil, err
	}
	d.n++
	return &sharepoint.Item{ID: fmt.Sprintf("item-%d", d.n), Name: filename, Size: int64(len(b))}, nil
}

func (d *memDocs) DownloadURL(_ context.Context, id string) (string, error) {
	return "https://download.example.com/" + id, nil
}

func (d *memDocs) Delete(context.Context, string) error { return nil }

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type testServer struct {
	t      *testing.T
	engine *gin.Engine
	db     *gorm.DB
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := filepath.Join(t.TempDir(), "portal.db") + "?_pragma=busy_timeout(5000)"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, dbpkg.Migrate(db))

	bookings := service.NewBookingService(db, nil, nil, time.Second)
	auth := service.NewAuthService(db, bookings, secret, 15*time.Minute, time.Hour)
	calendar := service.NewCalendarService(db, service.NewCredentialStore(db, nil), nil, tokencache.NewMemoryStore())

	r := gin.New()
	Setup(r, Deps{
		DB:                 db,
		JWTSecret:          secret,
		CORSOrigins:        []string{"http://localhost:3000"},
		AuthHandler:        handler.NewAuthHandler(auth),
		UserHandler:        handler.NewUserHandler(auth),
		ProjectHandler:     handler.NewProjectHandler(service.NewProjectService(db, nil)),
		DocumentHandler:    handler.NewDocumentHandler(service.NewDocumentService(db, &memDocs{})),
		BookingHandler:     handler.NewBookingHandler(bookings),
		RequestHandler:     handler.NewRequestHandler(service.NewRequestService(db, nil)),
		DashboardHandler:   handler.NewDashboardHandler(service.NewDashboardService(db)),
		IntegrationHandler: handler.NewIntegrationHandler(calendar),
		HealthHandler:      handler.NewHealthHandler(db),
	})
	return &testServer{t: t, engine: r, db: db}
}

func (s *testServer) seedUser(email string, role model.Role) {
	s.t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("password1"), bcrypt.MinCost)
	require.NoError(s.t, err)
	require.NoError(s.t, s.db.Create(&model.User{
		Email: email, HashedPassword: string(hash), FullName: email, Role: role, IsActive: true,
	}).Error)
}

func (s *testServer) login(email string) string {
	s.t.Helper()
	form := url.Values{"username": {email}, "password": {"password1"}}
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)
	require.Equal(s.t, http.StatusOK, w.Code, w.Body.String())

	var env envelope
	require.NoError(s.t, json.Unmarshal(w.Body.Bytes(), &env))
	var data struct {
		AccessToken string `json:"access_token"`
	}
	require.NoError(s.t, json.Unmarshal(env.Data, &data))
	require.NotEmpty(s.t, data.AccessToken)
	return data.AccessToken
}

func (s *testServer) do(method, path, token string, body interface{}) (int, envelope) {
	s.t.Helper()
	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(s.t, err)
		rdr = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rdr)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)

	var env envelope
	require.NoError(s.t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return w.Code, env
}

func idOf(t *testing.T, env envelope) uint {
	t.Helper()
	var v struct {
		ID uint `json:"id"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &v))
	require.NotZero(t, v.ID)
	return v.ID
}

func TestAuthRequired(t *testing.T) {
	s := newTestServer(t)

	code, env := s.do(http.MethodGet, "/api/v1/projects", "", nil)
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, 40101, env.Code)

	code, env = s.do(http.MethodGet, "/api/v1/projects", "not-a-jwt", nil)
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, 40103, env.Code)
}

func TestLoginRejectsBadPassword(t *testing.T) {
	s := newTestServer(t)
	s.seedUser("client@example.com", model.RoleClient)

	code, env := s.do(http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"email": "client@example.com", "password": "wrong",
	})
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, 40101, env.Code)
}

func TestMeAndRefresh(t *testing.T) {
	s := newTestServer(t)
	s.seedUser("client@example.com", model.RoleClient)

	code, env := s.do(http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"email": "client@example.com", "password": "password1",
	})
	require.Equal(t, http.StatusOK, code)
	var pair struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &pair))

	code, env = s.do(http.MethodGet, "/api/v1/auth/me", pair.AccessToken, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(env.Data), `"email":"client@example.com"`)

	code, _ = s.do(http.MethodGet, "/api/v1/auth/me", pair.RefreshToken, nil)
	assert.Equal(t, http.StatusUnauthorized, code)

	code, env = s.do(http.MethodPost, "/api/v1/auth/refresh", "", map[string]string{"refresh_token": pair.RefreshToken})
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(env.Data), "access_token")
}

func TestAdminRoutesRejectClients(t *testing.T) {
	s := newTestServer(t)
	s.seedUser("client@example.com", model.RoleClient)
	token := s.login("client@example.com")

	code, env := s.do(http.MethodGet, "/api/v1/admin/users", token, nil)
	assert.Equal(t, http.StatusForbidden, code)
	assert.Equal(t, 40301, env.Code)

	code, env = s.do(http.MethodPost, "/api/v1/projects", token, map[string]string{"name": "Mine"})
	assert.Equal(t, http.StatusForbidden, code)
	assert.Equal(t, 40301, env.Code)
}

func TestBookingFlowOverHTTP(t *testing.T) {
	s := newTestServer(t)
	s.seedUser("admin@example.com", model.RoleAdmin)
	s.seedUser("u1@example.com", model.RoleClient)
	s.seedUser("u2@example.com", model.RoleClient)
	admin := s.login("admin@example.com")
	u1 := s.login("u1@example.com")
	u2 := s.login("u2@example.com")

	start := time.Now().UTC().Add(48 * time.Hour).Truncate(time.Hour)
	code, env := s.do(http.MethodPost, "/api/v1/bookings/slots", admin, map[string]interface{}{
		"start_time": start, "end_time": start.Add(time.Hour),
	})
	require.Equal(t, http.StatusCreated, code, env.Message)
	slotID := idOf(t, env)

	code, env = s.do(http.MethodGet, "/api/v1/bookings/slots", u1, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(env.Data), `"is_available":true`)

	code, env = s.do(http.MethodPost, "/api/v1/bookings", u1, map[string]interface{}{"slot_id": slotID, "title": "Kickoff"})
	require.Equal(t, http.StatusCreated, code, env.Message)
	assert.Contains(t, string(env.Data), `"status":"confirmed"`)
	bookingID := idOf(t, env)

	code, env = s.do(http.MethodPost, "/api/v1/bookings", u2, map[string]interface{}{"slot_id": slotID, "title": "Mine"})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, 40003, env.Code)

	code, _ = s.do(http.MethodGet, fmt.Sprintf("/api/v1/bookings/%d", bookingID), u2, nil)
	assert.Equal(t, http.StatusForbidden, code)

	code, env = s.do(http.MethodDelete, fmt.Sprintf("/api/v1/bookings/slots/%d", slotID), admin, nil)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, 40003, env.Code)

	code, _ = s.do(http.MethodDelete, fmt.Sprintf("/api/v1/bookings/%d", bookingID), u1, nil)
	require.Equal(t, http.StatusOK, code)

	code, env = s.do(http.MethodDelete, fmt.Sprintf("/api/v1/bookings/%d", bookingID), u1, nil)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, 40401, env.Code)

	code, _ = s.do(http.MethodDelete, fmt.Sprintf("/api/v1/bookings/slots/%d", slotID), admin, nil)
	assert.Equal(t, http.StatusOK, code)
}

func TestProjectRequestAndUploadOverHTTP(t *testing.T) {
	s := newTestServer(t)
	s.seedUser("admin@example.com", model.RoleAdmin)
	s.seedUser("u1@example.com", model.RoleClient)
	s.seedUser("u2@example.com", model.RoleClient)
	admin := s.login("admin@example.com")
	u1 := s.login("u1@example.com")
	u2 := s.login("u2@example.com")

	var u1User model.User
	require.NoError(t, s.db.Where("email = ?", "u1@example.com").First(&u1User).Error)

	code, env := s.do(http.MethodPost, "/api/v1/projects", admin, map[string]interface{}{
		"name": "Website", "user_ids": []uint{u1User.ID},
	})
	require.Equal(t, http.StatusCreated, code, env.Message)
	projectID := idOf(t, env)

	code, _ = s.do(http.MethodGet, fmt.Sprintf("/api/v1/projects/%d", projectID), u2, nil)
	assert.Equal(t, http.StatusForbidden, code)

	body := map[string]interface{}{"project_id": projectID, "title": "Change logo", "description": "bigger"}
	code, _ = s.do(http.MethodPost, "/api/v1/requests", u2, body)
	assert.Equal(t, http.StatusForbidden, code)
	code, env = s.do(http.MethodPost, "/api/v1/requests", u1, body)
	require.Equal(t, http.StatusCreated, code, env.Message)
	assert.Contains(t, string(env.Data), `"status":"open"`)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("project_id", fmt.Sprint(projectID)))
	require.NoError(t, mw.WriteField("title", "Kickoff call"))
	fw, err := mw.CreateFormFile("file", "kickoff.mp4")
	require.NoError(t, err)
	_, err = fw.Write([]byte("fake video"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/recordings", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+admin)
	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var rec envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rec))
	recID := idOf(t, rec)

	code, env = s.do(http.MethodGet, fmt.Sprintf("/api/v1/recordings/%d/download-url", recID), u1, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(env.Data), "https://download.example.com/item-1")

	code, _ = s.do(http.MethodGet, fmt.Sprintf("/api/v1/recordings/%d/download-url", recID), u2, nil)
	assert.Equal(t, http.StatusForbidden, code)
}

func TestGoogleIntegrationNotConfigured(t *testing.T) {
	s := newTestServer(t)
	s.seedUser("admin@example.com", model.RoleAdmin)
	admin := s.login("admin@example.com")

	code, env := s.do(http.MethodGet, "/api/v1/admin/integrations/google/login", admin, nil)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, 50301, env.Code)

	code, env = s.do(http.MethodGet, "/api/v1/admin/integrations/google/status", admin, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(env.Data), `"enabled":false`)
}

func TestHealthAndRequestID(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-Id", "abc-123")
	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"healthy"}`, w.Body.String())
	assert.Equal(t, "abc-123", w.Header().Get("X-Request-Id"))
}
