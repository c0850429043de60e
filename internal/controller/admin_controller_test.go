package controller

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nickcalamaro/DiceBastion-sub000/internal/config"
	"github.com/nickcalamaro/DiceBastion-sub000/internal/model"
	"github.com/nickcalamaro/DiceBastion-sub000/internal/repository"
	"github.com/nickcalamaro/DiceBastion-sub000/internal/service"
	"github.com/nickcalamaro/DiceBastion-sub000/internal/storage"
	"github.com/nickcalamaro/DiceBastion-sub000/internal/testutil"
)

type adminFixture struct {
	e      *echo.Echo
	auth   service.AuthService
	jobLog repository.JobLogRepository
}

func newAdminFixture(t *testing.T) *adminFixture {
	t.Helper()
	db := testutil.OpenDB(t)

	userRepo := repository.NewUserRepository(db)
	memberRepo := repository.NewMembershipRepository(db)
	instrumentRepo := repository.NewInstrumentRepository(db)
	adminRepo := repository.NewAdminRepository(db)
	emailLog := repository.NewEmailLogRepository(db)
	jobLog := repository.NewJobLogRepository(db)

	auth := service.NewAuthService(adminRepo, config.AuthConfig{
		JWTSecret:  "test-secret",
		AdminKey:   "cron-key",
		SessionTTL: time.Hour,
	})
	memberships := service.NewMembershipService(userRepo, memberRepo, instrumentRepo)
	events := service.NewEventService(repository.NewEventRepository(db))
	shop := service.NewShopService(repository.NewProductRepository(db), storage.DisabledUploader{})

	_, err := auth.CreateAdmin(context.Background(), "owner@dicebastion.com", "correct horse")
	require.NoError(t, err)

	e := echo.New()
	NewAdminController(auth, nil, memberships, events, shop,
		memberRepo, emailLog, jobLog, false).RegisterRoutes(e)
	return &adminFixture{e: e, auth: auth, jobLog: jobLog}
}

func (f *adminFixture) login(t *testing.T) string {
	t.Helper()
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/login",
		strings.NewReader(`{"email":"owner@dicebastion.com","password":"correct horse"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	f.e.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.NotEmpty(t, body["token"])
	return body["token"]
}

func TestAdminLoginAndVerify(t *testing.T) {
	f := newAdminFixture(t)
	token := f.login(t)

	req := httptest.NewRequest(http.MethodGet, "/admin/verify", nil)
	req.Header.Set("X-Session-Token", token)
	rec := httptest.NewRecorder()
	f.e.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, true, body["ok"])
	assert.NotEmpty(t, body["adminId"])
}

func TestAdminLoginRejectsWrongPassword(t *testing.T) {
	f := newAdminFixture(t)

	req := httptest.NewRequest(http.MethodPost, "/login",
		strings.NewReader(`{"email":"owner@dicebastion.com","password":"wrong"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	f.e.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAdminRoutesRequireAuth(t *testing.T) {
	f := newAdminFixture(t)

	for _, target := range []string{"/admin/verify", "/admin/memberships", "/admin/cron-logs"} {
		rec := get(f.e, target)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, target)
	}
}

func TestAdminCronLogsWithKey(t *testing.T) {
	f := newAdminFixture(t)
	ctx := context.Background()

	entry, err := f.jobLog.Start(ctx, "renewal_charges")
	require.NoError(t, err)
	entry.CompletedAt = sql.NullTime{Time: time.Now(), Valid: true}
	entry.Status = model.JobStatusCompleted
	entry.RecordsProcessed = 4
	entry.RecordsSucceeded = 4
	require.NoError(t, f.jobLog.Finish(ctx, entry))

	req := httptest.NewRequest(http.MethodGet, "/admin/cron-logs?page=1&limit=10", nil)
	req.Header.Set("X-Admin-Key", "cron-key")
	rec := httptest.NewRecorder()
	f.e.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Logs    []model.CronJobLog     `json:"logs"`
		Summary []model.CronJobSummary `json:"summary"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Logs, 1)
	assert.Equal(t, "renewal_charges", body.Logs[0].JobName)
	require.Len(t, body.Summary, 1)
	assert.Equal(t, 1, body.Summary[0].Completed)
}

func TestAdminLogout(t *testing.T) {
	f := newAdminFixture(t)

	req := httptest.NewRequest(http.MethodPost, "/logout", nil)
	rec := httptest.NewRecorder()
	f.e.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}
