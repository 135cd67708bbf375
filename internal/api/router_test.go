package api

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bess-impact/internal/api/models"
	"bess-impact/internal/backtest"
	"bess-impact/internal/data"
	"bess-impact/internal/repository"
)

const summerHours = 21 * 24

type fixture struct {
	router *gin.Engine
	repo   *repository.Repository
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dataDir, storageDir := t.TempDir(), t.TempDir()
	summer := data.Synthetic(data.SyntheticOptions{Days: 21, Start: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)})
	require.NoError(t, data.SaveHourlyJSON(filepath.Join(dataDir, "summer.json"), summer))
	require.NoError(t, data.SaveHourlyJSON(filepath.Join(dataDir, "oneday.json"), data.Synthetic(data.SyntheticOptions{Days: 1})))
	preset := "storage_name: Small\ncapacity_mwh: 1000\nduration_hours: 4\nround_trip_efficiency: 0.875\n"
	require.NoError(t, os.WriteFile(filepath.Join(storageDir, "small.yaml"), []byte(preset), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(storageDir, "broken.yaml"), []byte("capacity_mwh: [1"), 0o644))

	catalog := data.NewCatalog(dataDir, time.Minute)
	t.Cleanup(catalog.Close)
	repo, err := repository.New(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return &fixture{
		router: NewRouter(Options{Catalog: catalog, Repo: repo, StorageDir: storageDir, Logger: logger}),
		repo:   repo,
	}
}

func (f *fixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, r)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func baseConfig() map[string]any {
	return map[string]any{
		"name":                "api-test",
		"datasets":            []string{"summer"},
		"solar_scale":         1.3,
		"coal_capacity_mw":    2000,
		"coal_deregulated_mw": 600,
		"gas_capacity_mw":     1200,
		"storage_file":        "small",
	}
}

func with(cfg map[string]any, kv ...any) map[string]any {
	for i := 0; i+1 < len(kv); i += 2 {
		cfg[kv[i].(string)] = kv[i+1]
	}
	return cfg
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) models.ErrorDetail {
	t.Helper()
	var resp models.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return resp.Error
}

type runResponse struct {
	ID      string               `json:"id"`
	Status  string               `json:"status"`
	Saved   bool                 `json:"saved"`
	Summary models.RunSummary    `json:"summary"`
	Result  map[string]any       `json:"result"`
	Ledger  []backtest.LedgerRow `json:"ledger"`
}

func TestHealth(t *testing.T) {
	f := newFixture(t)
	w := f.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())

	w = f.do(t, http.MethodGet, "/api/v1/nope", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRunLifecycle(t *testing.T) {
	f := newFixture(t)
	cfg := with(baseConfig(),
		"sweep_start_mwh", 0, "sweep_step_mwh", 1000, "sweep_max_mwh", 2000,
		"equilibrium", true)

	w := f.do(t, http.MethodPost, "/api/v1/runs", models.RunRequest{Config: cfg, Options: models.RunOptions{IncludeLedger: true}})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var run runResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &run))
	assert.Equal(t, "completed", run.Status)
	assert.True(t, run.Saved)
	assert.Equal(t, "api-test", run.Summary.Name)
	assert.Equal(t, 1000.0, run.Summary.StorageMWh)
	assert.Equal(t, "carry", run.Summary.SOCPolicy)
	assert.Equal(t, 3, run.Summary.SweepSteps)
	assert.True(t, run.Summary.TheoreticalProfit.IsPositive())
	assert.True(t, run.Summary.RealizedProfit.LessThanOrEqual(run.Summary.TheoreticalProfit))
	assert.Len(t, run.Ledger, summerHours)
	assert.Equal(t, run.ID, run.Result["runId"])

	w = f.do(t, http.MethodGet, "/api/v1/runs/"+run.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var stored map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stored))
	assert.Equal(t, run.ID, stored["runId"])
	assert.Contains(t, stored, "equilibrium")

	w = f.do(t, http.MethodGet, "/api/v1/runs/"+run.ID+"/ledger", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var ledger struct {
		ID     string               `json:"id"`
		Ledger []backtest.LedgerRow `json:"ledger"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &ledger))
	require.Len(t, ledger.Ledger, summerHours)
	assert.InDelta(t, run.Ledger[summerHours-1].CumPNL, ledger.Ledger[summerHours-1].CumPNL, 1e-6)

	w = f.do(t, http.MethodGet, "/api/v1/runs/"+run.ID+"/ledger?format=csv", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/csv", w.Header().Get("Content-Type"))
	lines := strings.Split(strings.TrimSpace(w.Body.String()), "\n")
	assert.Len(t, lines, summerHours+1)
	assert.True(t, strings.HasPrefix(lines[0], "index,"))

	w = f.do(t, http.MethodGet, "/api/v1/runs/"+run.ID+"/ledger?format=xml", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_FORMAT", decodeError(t, w).Code)

	w = f.do(t, http.MethodGet, "/api/v1/runs/"+run.ID+"/sweep", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var sw models.SweepResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &sw))
	require.Len(t, sw.Steps, 3)
	assert.Zero(t, sw.Steps[0].CapacityMWh)
	assert.Equal(t, 2000.0, sw.Steps[2].CapacityMWh)

	w = f.do(t, http.MethodGet, "/api/v1/runs", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list models.ListRunsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Len(t, list.Runs, 1)
	assert.Equal(t, run.ID, list.Runs[0].ID)
	assert.True(t, list.Runs[0].TheoreticalProfit.Equal(run.Summary.TheoreticalProfit))

	w = f.do(t, http.MethodDelete, "/api/v1/runs/"+run.ID, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = f.do(t, http.MethodGet, "/api/v1/runs/"+run.ID, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "NOT_FOUND", decodeError(t, w).Code)
	w = f.do(t, http.MethodGet, "/api/v1/runs/"+run.ID+"/sweep", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRunDryRunIsNotSaved(t *testing.T) {
	f := newFixture(t)
	w := f.do(t, http.MethodPost, "/api/v1/runs", models.RunRequest{Config: baseConfig(), Options: models.RunOptions{DryRun: true}})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var run runResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &run))
	assert.False(t, run.Saved)
	assert.Empty(t, run.Ledger)

	runs, err := f.repo.ListRuns(10)
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestRunErrors(t *testing.T) {
	f := newFixture(t)
	tests := []struct {
		name   string
		body   any
		status int
		code   string
	}{
		{"missing config", map[string]any{}, http.StatusBadRequest, "INVALID_REQUEST"},
		{"unknown key", models.RunRequest{Config: with(baseConfig(), "no_such_key", 1)}, http.StatusBadRequest, "OVERRIDE"},
		{"bad efficiency", models.RunRequest{Config: with(baseConfig(), "round_trip_efficiency", 1.5)}, http.StatusBadRequest, "STORAGE"},
		{"bad preset name", models.RunRequest{Config: with(baseConfig(), "storage_file", "../small")}, http.StatusBadRequest, "STORAGE_FILE"},
		{"unreadable preset", models.RunRequest{Config: with(baseConfig(), "storage_file", "broken")}, http.StatusBadRequest, "STORAGE_FILE"},
		{"unknown dataset", models.RunRequest{Config: with(baseConfig(), "datasets", []string{"missing"})}, http.StatusNotFound, "NOT_FOUND"},
		{"unfittable", models.RunRequest{Config: with(baseConfig(), "datasets", []string{"oneday"})}, http.StatusUnprocessableEntity, "INSUFFICIENT_DATA"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := f.do(t, http.MethodPost, "/api/v1/runs", tt.body)
			require.Equal(t, tt.status, w.Code, w.Body.String())
			if tt.code == "INSUFFICIENT_DATA" {
				assert.Equal(t, "MODEL_FIT_ERROR", decodeError(t, w).Details["class"])
				return
			}
			assert.Equal(t, tt.code, decodeError(t, w).Code)
		})
	}
}

func TestCompare(t *testing.T) {
	f := newFixture(t)
	req := models.CompareRequest{
		BaseConfig: baseConfig(),
		Variations: []models.Variation{
			{Name: "small"},
			{Name: "big", Config: map[string]any{"capacity_mwh": 3000}},
			{Name: "broken", Config: map[string]any{"round_trip_efficiency": 1.5}},
		},
	}
	w := f.do(t, http.MethodPost, "/api/v1/compare", req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp models.CompareResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Rankings, 2)
	assert.Equal(t, 1, resp.Rankings[0].Rank)
	assert.GreaterOrEqual(t, resp.Rankings[0].GapPct, resp.Rankings[1].GapPct)
	names := []string{resp.Rankings[0].Name, resp.Rankings[1].Name}
	assert.ElementsMatch(t, []string{"small", "big"}, names)
	for _, r := range resp.Rankings {
		if r.Name == "big" {
			assert.Equal(t, 3000.0, r.StorageMWh)
		}
		assert.Zero(t, r.ExcludedDays, r.Name)
	}
	// the count is reported even when nothing was excluded
	assert.Contains(t, w.Body.String(), `"excludedDays":0`)

	require.Len(t, resp.Failed, 1)
	assert.Equal(t, "broken", resp.Failed[0].Name)
	assert.Equal(t, "STORAGE", resp.Failed[0].Error.Code)

	w = f.do(t, http.MethodPost, "/api/v1/compare", models.CompareRequest{BaseConfig: baseConfig()})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestFitMeritOrder(t *testing.T) {
	f := newFixture(t)
	w := f.do(t, http.MethodPost, "/api/v1/merit-order/fit", models.FitRequest{
		Datasets: []string{"summer"},
		Config:   map[string]any{"merit_order_segments": 2},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp models.FitResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "SYN", resp.Zone)
	assert.Equal(t, summerHours, resp.Hours)
	require.NotNil(t, resp.Model)
	assert.Len(t, resp.Model.Segments, 2)
	assert.Greater(t, resp.Model.R2, 0.0)

	w = f.do(t, http.MethodPost, "/api/v1/merit-order/fit", models.FitRequest{Datasets: []string{"oneday"}})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = f.do(t, http.MethodPost, "/api/v1/merit-order/fit", models.FitRequest{
		Datasets: []string{"summer"},
		Config:   map[string]any{"merit_order_mode": "bogus"},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCatalogEndpoints(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodGet, "/api/v1/datasets", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var ds struct {
		Datasets []data.DatasetInfo `json:"datasets"`
		Count    int                `json:"count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &ds))
	require.Equal(t, 2, ds.Count)
	assert.Equal(t, "oneday", ds.Datasets[0].Name)
	assert.Equal(t, summerHours, ds.Datasets[1].Hours)

	w = f.do(t, http.MethodGet, "/api/v1/storage", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var st struct {
		Storage []models.StorageInfo `json:"storage"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &st))
	require.Len(t, st.Storage, 1, "broken preset is skipped")
	assert.Equal(t, "small", st.Storage[0].ID)
	assert.Equal(t, "Small", st.Storage[0].Name)
	assert.Equal(t, 250.0, st.Storage[0].Specs.PowerMW)

	w = f.do(t, http.MethodGet, "/api/v1/policies", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var pol struct {
		Policies []models.PolicyInfo `json:"policies"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &pol))
	var names []string
	for _, p := range pol.Policies {
		names = append(names, p.Name)
	}
	assert.Equal(t, []string{"carry", "reset", "quantile", "fixed", "search"}, names)
}

func TestCORSPreflight(t *testing.T) {
	f := newFixture(t)
	req := httptest.NewRequest(http.MethodOptions, "/api/v1/runs", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestStreamRun(t *testing.T) {
	f := newFixture(t)
	server := httptest.NewServer(f.router)
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/api/v1/stream/runs"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	cfg := with(baseConfig(), "sweep_start_mwh", 0, "sweep_step_mwh", 500, "sweep_max_mwh", 1500)
	require.NoError(t, conn.WriteJSON(models.RunRequest{Config: cfg}))

	var steps int
	var complete models.RunSummary
	for {
		conn.SetReadDeadline(time.Now().Add(time.Minute))
		var env struct {
			Type    string          `json:"type"`
			Payload json.RawMessage `json:"payload"`
		}
		require.NoError(t, conn.ReadJSON(&env))
		if env.Type == models.StreamSweepStep {
			var p models.SweepPoint
			require.NoError(t, json.Unmarshal(env.Payload, &p))
			assert.Equal(t, steps, p.Index)
			steps++
			continue
		}
		require.Equal(t, models.StreamComplete, env.Type, string(env.Payload))
		require.NoError(t, json.Unmarshal(env.Payload, &complete))
		break
	}
	assert.Equal(t, 4, steps)
	assert.Equal(t, 4, complete.SweepSteps)

	_, err = f.repo.GetRun(complete.ID)
	assert.NoError(t, err)
}

func TestStreamRunError(t *testing.T) {
	f := newFixture(t)
	server := httptest.NewServer(f.router)
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/api/v1/stream/runs"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(models.RunRequest{Config: with(baseConfig(), "round_trip_efficiency", 2)}))
	conn.SetReadDeadline(time.Now().Add(10 * time.Second))
	var env struct {
		Type    string             `json:"type"`
		Payload models.ErrorDetail `json:"payload"`
	}
	require.NoError(t, conn.ReadJSON(&env))
	assert.Equal(t, models.StreamError, env.Type)
	assert.Equal(t, "STORAGE", env.Payload.Code)
}
