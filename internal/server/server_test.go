package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/insho/insho-api/internal/config"
	"github.com/insho/insho-api/internal/nutrition"
	"github.com/insho/insho-api/internal/repository/sqlstore"
	"github.com/insho/insho-api/internal/server"
)

// =========================================================================
// HELPERS
// =========================================================================

const testBarPayload = `{
	"status": 1,
	"product": {
		"product_name": "Test Bar",
		"nutriments": {"energy-kcal_100g": 250, "proteins_100g": 10}
	}
}`

// newCatalog fakes OpenFoodFacts: it knows one product and counts calls.
func newCatalog(t *testing.T) (*httptest.Server, *int) {
	t.Helper()
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Path == "/api/v0/product/0000000123.json" {
			_, _ = io.WriteString(w, testBarPayload)
			return
		}
		_, _ = io.WriteString(w, `{"status": 0, "status_verbose": "product not found"}`)
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func newTestServer(t *testing.T) (*httptest.Server, *int) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	db, err := sqlstore.New(context.Background(), ":memory:", logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	catalog, calls := newCatalog(t)
	cfg := &config.Config{
		Env:                  "test",
		JWTSecret:            "integration-secret-0123456789",
		AccessTokenTTL:       time.Hour,
		NutritionSource:      config.NutritionSourceOpenFoodFacts,
		OpenFoodFactsBaseURL: catalog.URL,
		NutritionTimeout:     2 * time.Second,
		MetricsEnabled:       true,
	}

	srv, err := server.New(cfg, db, nutrition.NewOpenFoodFacts(cfg.OpenFoodFactsBaseURL, cfg.NutritionTimeout, logger), logger)
	require.NoError(t, err)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts, calls
}

// call sends a JSON request and decodes a JSON response into out (if not nil).
func call(t *testing.T, ts *httptest.Server, method, path, token, body string, out any) int {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = bytes.NewBufferString(body)
	}
	req, err := http.NewRequest(method, ts.URL+path, rd)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func registerAndLogin(t *testing.T, ts *httptest.Server, email string) string {
	t.Helper()
	require.Equal(t, http.StatusCreated,
		call(t, ts, http.MethodPost, "/api/v1/auth/register", "", `{"email":"`+email+`","password":"correct-horse"}`, nil))

	var login struct {
		AccessToken string `json:"access_token"`
		TokenType   string `json:"token_type"`
	}
	require.Equal(t, http.StatusOK,
		call(t, ts, http.MethodPost, "/api/v1/auth/login", "", `{"email":"`+email+`","password":"correct-horse"}`, &login))
	require.Equal(t, "bearer", login.TokenType)
	require.NotEmpty(t, login.AccessToken)
	return login.AccessToken
}

// =========================================================================
// END TO END
// =========================================================================

func TestFoodFlow(t *testing.T) {
	ts, catalogCalls := newTestServer(t)
	token := registerAndLogin(t, ts, "ana@example.com")

	type lookup struct {
		Food   map[string]any `json:"food"`
		Source string         `json:"source"`
	}

	// 1. unknown locally → catalog, nothing stored
	var l lookup
	require.Equal(t, http.StatusOK, call(t, ts, http.MethodPost, "/api/v1/food/lookup", "", `{"barcode":"0000000123"}`, &l))
	assert.Equal(t, "external", l.Source)
	assert.Equal(t, "Test Bar", l.Food["name"])

	var hist struct {
		Items []map[string]any `json:"items"`
	}
	require.Equal(t, http.StatusOK, call(t, ts, http.MethodGet, "/api/v1/food/history", token, "", &hist))
	assert.Empty(t, hist.Items, "a lookup never writes")

	// 2. consume needs a token
	assert.Equal(t, http.StatusUnauthorized,
		call(t, ts, http.MethodPost, "/api/v1/food/consume", "", `{"barcode":"0000000123","grams":150}`, nil))

	var rec map[string]any
	require.Equal(t, http.StatusCreated,
		call(t, ts, http.MethodPost, "/api/v1/food/consume", token, `{"barcode":"0000000123","grams":150}`, &rec))
	assert.Equal(t, 250.0, rec["calories_per_100g"])
	assert.Equal(t, 150.0, rec["grams"])
	assert.Equal(t, "Test Bar", rec["name"])

	// 3. now the store answers and the catalog is not asked again
	before := *catalogCalls
	require.Equal(t, http.StatusOK, call(t, ts, http.MethodPost, "/api/v1/food/lookup", "", `{"barcode":"0000000123"}`, &l))
	assert.Equal(t, "db", l.Source)
	assert.Equal(t, "Test Bar", l.Food["name"])
	assert.Equal(t, 250.0, l.Food["calories_per_100g"])
	for _, key := range []string{"id", "user_id", "grams", "scanned_at"} {
		assert.NotContains(t, l.Food, key, "a lookup must not leak who logged the food")
	}
	assert.Equal(t, before, *catalogCalls)

	// 4. totals
	var totals map[string]float64
	require.Equal(t, http.StatusOK, call(t, ts, http.MethodGet, "/api/v1/food/totals", token, "", &totals))
	assert.InDelta(t, 375.0, totals["calories"], 1e-9)
	assert.InDelta(t, 15.0, totals["proteins"], 1e-9)
	assert.InDelta(t, 150.0, totals["grams"], 1e-9)

	require.Equal(t, http.StatusOK, call(t, ts, http.MethodGet, "/api/v1/food/totals?to=2000-01-01", token, "", &totals))
	assert.Zero(t, totals["grams"])

	// 5. unknown everywhere
	require.Equal(t, http.StatusOK, call(t, ts, http.MethodPost, "/api/v1/food/lookup", "", `{"barcode":"99999999"}`, &l))
	assert.Equal(t, "not_found", l.Source)
	assert.Nil(t, l.Food)

	var e map[string]string
	assert.Equal(t, http.StatusNotFound,
		call(t, ts, http.MethodPost, "/api/v1/food/consume", token, `{"barcode":"99999999","grams":10}`, &e))
	assert.Equal(t, "not_found", e["error"])

	// 6. dashboard reflects today's intake
	var dash struct {
		ShowOnboarding bool               `json:"show_onboarding"`
		Today          map[string]float64 `json:"today"`
	}
	require.Equal(t, http.StatusOK, call(t, ts, http.MethodGet, "/api/v1/dashboard", token, "", &dash))
	assert.True(t, dash.ShowOnboarding)
	assert.InDelta(t, 375.0, dash.Today["calories"], 1e-9)
}

func TestOwnersAreIsolated(t *testing.T) {
	ts, _ := newTestServer(t)
	ana := registerAndLogin(t, ts, "ana@example.com")
	ben := registerAndLogin(t, ts, "ben@example.com")

	require.Equal(t, http.StatusCreated,
		call(t, ts, http.MethodPost, "/api/v1/food/consume", ana, `{"barcode":"0000000123","grams":100}`, nil))

	var totals map[string]float64
	require.Equal(t, http.StatusOK, call(t, ts, http.MethodGet, "/api/v1/food/totals", ben, "", &totals))
	assert.Zero(t, totals["calories"])

	// ben still benefits from ana's record for lookups
	var l struct {
		Source string `json:"source"`
	}
	require.Equal(t, http.StatusOK, call(t, ts, http.MethodPost, "/api/v1/food/lookup", ben, `{"barcode":"0000000123"}`, &l))
	assert.Equal(t, "db", l.Source)
}

func TestProfileAndAccountDeletion(t *testing.T) {
	ts, _ := newTestServer(t)
	token := registerAndLogin(t, ts, "ana@example.com")

	var me map[string]any
	require.Equal(t, http.StatusOK,
		call(t, ts, http.MethodPatch, "/api/v1/users/me", token, `{"kcal_goal":2100,"is_onboarded":true}`, &me))
	assert.Equal(t, 2100.0, me["kcal_goal"])
	assert.NotContains(t, me, "hashed_password")

	require.Equal(t, http.StatusOK, call(t, ts, http.MethodGet, "/api/v1/auth/me", token, "", &me))
	assert.Equal(t, true, me["is_onboarded"])

	assert.Equal(t, http.StatusNoContent, call(t, ts, http.MethodDelete, "/api/v1/users/me", token, "", nil))
	assert.Equal(t, http.StatusNotFound, call(t, ts, http.MethodGet, "/api/v1/users/me", token, "", nil))
}

func TestHealthAndMetrics(t *testing.T) {
	ts, _ := newTestServer(t)

	var h map[string]string
	require.Equal(t, http.StatusOK, call(t, ts, http.MethodGet, "/api/v1/health", "", "", &h))
	assert.Equal(t, "ok", h["status"])
	assert.Equal(t, "test", h["env"])

	call(t, ts, http.MethodPost, "/api/v1/food/lookup", "", `{"barcode":"99999999"}`, nil)

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	text := string(body)
	assert.Contains(t, text, `insho_food_lookups_total{source="not_found"} 1`)
	assert.Contains(t, text, `route="/api/v1/food/lookup"`)
	assert.True(t, strings.Contains(text, `insho_nutrition_external_lookup_duration_seconds_count{outcome="not_found"} 1`))
}

func TestGitHubRoutesOnlyWhenConfigured(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/api/v1/auth/github/login")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
