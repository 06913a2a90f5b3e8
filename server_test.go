package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"ransomwatch/auth"
	"ransomwatch/database"
	"ransomwatch/models"
	"ransomwatch/reports"
)

func newTestAPI(t *testing.T) http.Handler {
	t.Helper()

	store, err := database.OpenBolt(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	now := time.Now().UTC()
	for _, p := range []*models.Post{
		{Title: "Acme", ThreatActor: "akira", Country: "TR", Enrichment: models.Enrichment{Sector: models.SectorFinance}, CreatedAt: now},
		{Title: "Globex", ThreatActor: "play", Country: "DE", Enrichment: models.Enrichment{Sector: models.SectorHealth}, CreatedAt: now},
	} {
		_, err := store.InsertPost(context.Background(), p)
		require.NoError(t, err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte("hunter2"), bcrypt.MinCost)
	require.NoError(t, err)
	svc, err := auth.NewService("test-secret", "admin", string(hash), time.Hour)
	require.NoError(t, err)

	return newAPIHandler(store, svc, zerolog.Nop())
}

func login(t *testing.T, h http.Handler) string {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/login", strings.NewReader(`{"username":"admin","password":"hunter2"}`))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp loginResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.NotEmpty(t, resp.Token)
	return resp.Token
}

func TestAPIRequiresToken(t *testing.T) {
	h := newTestAPI(t)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/stats", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAPIMetricsServesRuntimeCollectorsOnly(t *testing.T) {
	h := newTestAPI(t)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
	assert.NotContains(t, rec.Body.String(), "ransomwatch_run_duration_seconds")
}

func TestAPILoginRejectsWrongPassword(t *testing.T) {
	h := newTestAPI(t)
	req := httptest.NewRequest(http.MethodPost, "/api/login", strings.NewReader(`{"username":"admin","password":"nope"}`))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAPIStats(t *testing.T) {
	h := newTestAPI(t)
	token := login(t, h)

	req := httptest.NewRequest(http.MethodGet, "/api/stats?top=1", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var report reports.SummaryReport
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&report))
	assert.Equal(t, 2, report.Summary.TotalPosts)
	assert.Len(t, report.Summary.TopCountries, 1)
}

func TestAPIPostsFilters(t *testing.T) {
	h := newTestAPI(t)
	token := login(t, h)

	req := httptest.NewRequest(http.MethodGet, "/api/posts?sector=Healthcare", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var posts []models.Post
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&posts))
	require.Len(t, posts, 1)
	assert.Equal(t, "Globex", posts[0].Title)
}
