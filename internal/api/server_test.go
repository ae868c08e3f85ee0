package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/luke-wagner/PlantCare-Monitor/config"
	"github.com/luke-wagner/PlantCare-Monitor/internal/collector"
	"github.com/luke-wagner/PlantCare-Monitor/internal/database"
	"github.com/luke-wagner/PlantCare-Monitor/internal/greg"
	"github.com/luke-wagner/PlantCare-Monitor/internal/metrics"
	"github.com/luke-wagner/PlantCare-Monitor/internal/realtime"
	"github.com/luke-wagner/PlantCare-Monitor/models"
	"github.com/luke-wagner/PlantCare-Monitor/utils"
)

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type testEnv struct {
	srv   *Server
	cfg   *config.Config
	store *database.Store
	coll  *collector.Collector
}

func gregPages() http.Handler {
	page := func(name, water string) string {
		return fmt.Sprintf(`<article id="plant-profile"><h1>%s</h1><h3>Species</h3>
<div class="plant-detail"><img src="/i/water.svg"><span>%s</span></div></article>`, name, water)
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/luke/", func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/luke/":
			_, _ = w.Write([]byte(`<a href="/luke/plants/aaaa1111/"></a><a href="/luke/plants/bbbb2222/"></a>`))
		case "/luke/plants/aaaa1111/":
			_, _ = w.Write([]byte(page("Fern", "in 5 days")))
		case "/luke/plants/bbbb2222/":
			_, _ = w.Write([]byte(page("Aloe", "today")))
		default:
			http.NotFound(w, r)
		}
	})
	return mux
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	return newTestEnvFor(t, "luke")
}

// newTestEnvFor builds the server with the greg client pointed at username
func newTestEnvFor(t *testing.T, username string) *testEnv {
	t.Helper()
	utils.SetJWTSecret("test-secret")

	dir := t.TempDir()
	cfg, err := config.LoadFrom(filepath.Join(dir, "config.json"))
	require.NoError(t, err)
	cfg.Database.Path = filepath.Join(dir, "plants.db")

	store, err := database.Open(cfg.Database.Path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	gs := httptest.NewServer(gregPages())
	t.Cleanup(gs.Close)

	hub := realtime.NewHub()
	m := metrics.New()
	coll := collector.New(collector.Options{
		Store:   store,
		Greg:    greg.NewClient(greg.Config{BaseURL: gs.URL, Username: username, Timeout: 5 * time.Second}),
		Hub:     hub,
		Metrics: m,
	})
	t.Cleanup(func() { _ = coll.Close() })

	srv := NewServer(Deps{Config: cfg, Store: store, Collector: coll, Hub: hub, Metrics: m})
	return &testEnv{srv: srv, cfg: cfg, store: store, coll: coll}
}

func (e *testEnv) do(t *testing.T, method, path string, body interface{}, headers map[string]string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var rdr *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		rdr = bytes.NewReader(raw)
	} else {
		rdr = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, rdr)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	e.srv.Router().ServeHTTP(rec, req)

	var env envelope
	_ = json.Unmarshal(rec.Body.Bytes(), &env)
	return rec, env
}

func (e *testEnv) login(t *testing.T) map[string]string {
	t.Helper()
	rec, _ := e.do(t, http.MethodPost, "/api/v1/config/init", map[string]string{
		"admin_password": "hunter22",
		"greg_username":  "luke",
	}, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec, env := e.do(t, http.MethodPost, "/api/v1/auth/login", map[string]string{"username": "admin", "password": "hunter22"}, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var data struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &data))
	require.NotEmpty(t, data.Token)
	return map[string]string{"Authorization": "Bearer " + data.Token}
}

func TestHealthAndNotFound(t *testing.T) {
	e := newTestEnv(t)
	rec, env := e.do(t, http.MethodGet, "/healthz", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 0, env.Code)

	rec, env = e.do(t, http.MethodGet, "/api/v1/nope", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, 404, env.Code)
}

func TestSetupAndLogin(t *testing.T) {
	e := newTestEnv(t)

	rec, _ := e.do(t, http.MethodPost, "/api/v1/auth/login", map[string]string{"username": "admin", "password": "x"}, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec, env := e.do(t, http.MethodGet, "/api/v1/config/init/status", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"initialized":false,"greg_username":""}`, string(env.Data))

	rec, _ = e.do(t, http.MethodPost, "/api/v1/config/init", map[string]string{"admin_password": "123"}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	auth := e.login(t)
	assert.True(t, e.cfg.Initialized)
	assert.Equal(t, "luke", e.cfg.Greg.Username)

	rec, _ = e.do(t, http.MethodPost, "/api/v1/config/init", map[string]string{"admin_password": "another1"}, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec, _ = e.do(t, http.MethodPost, "/api/v1/auth/login", map[string]string{"username": "admin", "password": "wrong-pw"}, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, _ = e.do(t, http.MethodGet, "/api/v1/plants", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	rec, _ = e.do(t, http.MethodGet, "/api/v1/plants", nil, map[string]string{"Authorization": "Bearer garbage"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	rec, _ = e.do(t, http.MethodGet, "/api/v1/plants", nil, auth)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestChangePassword(t *testing.T) {
	e := newTestEnv(t)
	auth := e.login(t)

	rec, _ := e.do(t, http.MethodPost, "/api/v1/auth/change-password", map[string]string{
		"old_password": "hunter22", "new_password": "newpass1", "confirm_password": "different",
	}, auth)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = e.do(t, http.MethodPost, "/api/v1/auth/change-password", map[string]string{
		"old_password": "bad-old", "new_password": "newpass1", "confirm_password": "newpass1",
	}, auth)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = e.do(t, http.MethodPost, "/api/v1/auth/change-password", map[string]string{
		"old_password": "hunter22", "new_password": "newpass1", "confirm_password": "newpass1",
	}, auth)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec, _ = e.do(t, http.MethodPost, "/api/v1/auth/login", map[string]string{"username": "admin", "password": "newpass1"}, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCollectAndPlants(t *testing.T) {
	e := newTestEnv(t)
	auth := e.login(t)

	rec, env := e.do(t, http.MethodPost, "/api/v1/collect?wait=true", nil, auth)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var run models.CollectRun
	require.NoError(t, json.Unmarshal(env.Data, &run))
	assert.Equal(t, models.RunSuccess, run.Status)
	assert.Equal(t, 2, run.PlantsStored)

	rec, env = e.do(t, http.MethodGet, "/api/v1/plants", nil, auth)
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Plants []plantView `json:"plants"`
		Total  int         `json:"total"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &list))
	assert.Equal(t, 2, list.Total)
	assert.Equal(t, "Aloe", list.Plants[0].Name)
	assert.Equal(t, models.StatusNeedsWater, list.Plants[0].Display.Status)

	rec, env = e.do(t, http.MethodGet, "/api/v1/plants/aaaa1111", nil, auth)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, string(env.Data), `"latest_snapshot":{`)
	assert.Contains(t, string(env.Data), `"latest_insight":null`)

	rec, _ = e.do(t, http.MethodGet, "/api/v1/plants/zzzz9999", nil, auth)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, env = e.do(t, http.MethodGet, "/api/v1/plants/aaaa1111/history?limit=5", nil, auth)
	require.Equal(t, http.StatusOK, rec.Code)
	var hist struct {
		Snapshots []models.Snapshot `json:"snapshots"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &hist))
	require.Len(t, hist.Snapshots, 1)
	assert.Equal(t, "in 5 days", hist.Snapshots[0].Data["water"])

	rec, _ = e.do(t, http.MethodPost, "/api/v1/plants/aaaa1111/insight", nil, auth)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec, env = e.do(t, http.MethodGet, "/api/v1/collect/runs", nil, auth)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, string(env.Data), run.ID)

	rec, env = e.do(t, http.MethodGet, "/api/v1/collect/status", nil, auth)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, string(env.Data), `"running":false`)

	rec, env = e.do(t, http.MethodPost, "/api/v1/collect", nil, auth)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"queued":true}`, string(env.Data))
}

func TestExport(t *testing.T) {
	e := newTestEnv(t)
	auth := e.login(t)
	rec, _ := e.do(t, http.MethodPost, "/api/v1/collect?wait=1", nil, auth)
	require.Equal(t, http.StatusOK, rec.Code)

	rec, _ = e.do(t, http.MethodGet, "/api/v1/export", nil, auth)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "plant_data.json")

	var recs []models.LegacyRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &recs))
	require.Len(t, recs, 2)
	assert.Equal(t, "aaaa1111", recs[0].PlantID)
	_, err := time.ParseInLocation(models.LegacyTimeLayout, recs[0].Timestamp, time.Local)
	assert.NoError(t, err)
}

func TestDisplayDeviceKey(t *testing.T) {
	e := newTestEnv(t)
	auth := e.login(t)
	rec, _ := e.do(t, http.MethodPost, "/api/v1/collect?wait=true", nil, auth)
	require.Equal(t, http.StatusOK, rec.Code)

	rec, env := e.do(t, http.MethodGet, "/api/v1/display", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var payload models.DisplayPayload
	require.NoError(t, json.Unmarshal(env.Data, &payload))
	assert.Equal(t, models.DisplaySummary{Total: 2, NeedsWater: 1}, payload.Summary)

	rec, _ = e.do(t, http.MethodPost, "/api/v1/config", map[string]string{"display_key": "esp32-secret"}, auth)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec, _ = e.do(t, http.MethodGet, "/api/v1/display", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	rec, _ = e.do(t, http.MethodGet, "/api/v1/display", nil, map[string]string{DeviceKeyHeader: "wrong"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	rec, env = e.do(t, http.MethodGet, "/api/v1/display/plants/bbbb2222", nil, map[string]string{DeviceKeyHeader: "esp32-secret"})
	require.Equal(t, http.StatusOK, rec.Code)
	var entry models.DisplayEntry
	require.NoError(t, json.Unmarshal(env.Data, &entry))
	assert.Equal(t, "Aloe", entry.Name)
	assert.Equal(t, "today", entry.Watering)

	rec, _ = e.do(t, http.MethodGet, "/api/v1/display/plants/zzzz9999", nil, map[string]string{DeviceKeyHeader: "esp32-secret"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestConfigGetAndUpdate(t *testing.T) {
	e := newTestEnv(t)
	auth := e.login(t)
	e.cfg.Gemini.APIKey = "real-key"

	rec, env := e.do(t, http.MethodGet, "/api/v1/config", nil, auth)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, string(env.Data), `"api_key":"********"`)
	assert.NotContains(t, string(env.Data), "real-key")
	assert.NotContains(t, string(env.Data), e.cfg.Auth.PasswordHash)

	rec, _ = e.do(t, http.MethodPost, "/api/v1/config", map[string]interface{}{
		"gemini":    map[string]interface{}{"api_key": "********", "model": "gemini-2.0-flash"},
		"collector": map[string]interface{}{"interval_seconds": 600, "workers": 3},
	}, auth)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "real-key", e.cfg.Gemini.APIKey)
	assert.Equal(t, "gemini-2.0-flash", e.cfg.Gemini.Model)
	assert.Equal(t, 3, e.cfg.Collector.Workers)

	reloaded, err := config.LoadFrom(e.cfg.Path())
	require.NoError(t, err)
	assert.Equal(t, 600, reloaded.Collector.IntervalSeconds)

	rec, _ = e.do(t, http.MethodPost, "/api/v1/config", map[string]interface{}{
		"collector": map[string]interface{}{"workers": 0},
	}, auth)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = e.do(t, http.MethodPost, "/api/v1/config", map[string]interface{}{
		"log": map[string]interface{}{"level": "loud"},
	}, auth)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMQTTAndMetrics(t *testing.T) {
	e := newTestEnv(t)
	auth := e.login(t)

	rec, env := e.do(t, http.MethodGet, "/api/v1/mqtt/status", nil, auth)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"enabled":false,"connected":false}`, string(env.Data))

	rec, env = e.do(t, http.MethodGet, "/api/v1/mqtt/logs", nil, auth)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"logs":[]}`, string(env.Data))

	rec, _ = e.do(t, http.MethodGet, "/metrics", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `route="/api/v1/mqtt/logs"`)
}

func TestSystemInfo(t *testing.T) {
	e := newTestEnv(t)
	auth := e.login(t)

	rec, env := e.do(t, http.MethodGet, "/api/v1/system/info", nil, auth)
	require.Equal(t, http.StatusOK, rec.Code)
	var info map[string]interface{}
	require.NoError(t, json.Unmarshal(env.Data, &info))
	assert.Equal(t, e.cfg.Device.ID, info["device_id"])
	assert.Contains(t, info, "cpu_usage")
}

func TestWebSocketRequiresToken(t *testing.T) {
	e := newTestEnv(t)
	rec, _ := e.do(t, http.MethodGet, "/ws", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestInitEnablesCollectionWithoutRestart(t *testing.T) {
	e := newTestEnvFor(t, "")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		e.coll.Start(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	// no username yet: the scheduled run is skipped, nothing recorded
	time.Sleep(50 * time.Millisecond)
	_, err := e.store.LatestRun()
	assert.ErrorIs(t, err, database.ErrNotFound)

	rec, env := e.do(t, http.MethodPost, "/api/v1/config/init", map[string]string{
		"admin_password": "hunter22",
		"greg_username":  "luke",
	}, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var initResp struct {
		GregUsername  string `json:"greg_username"`
		CollectQueued bool   `json:"collect_queued"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &initResp))
	assert.Equal(t, "luke", initResp.GregUsername)
	assert.True(t, initResp.CollectQueued)
	assert.Equal(t, "luke", e.coll.Username())

	require.Eventually(t, func() bool {
		run, err := e.store.LatestRun()
		return err == nil && run.Status == models.RunSuccess && run.PlantsStored == 2
	}, 5*time.Second, 20*time.Millisecond)
}

func TestInitThenWaitCollect(t *testing.T) {
	e := newTestEnvFor(t, "")
	auth := e.login(t)

	rec, env := e.do(t, http.MethodPost, "/api/v1/collect?wait=true", nil, auth)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var run models.CollectRun
	require.NoError(t, json.Unmarshal(env.Data, &run))
	assert.Equal(t, models.RunSuccess, run.Status)
	assert.Empty(t, run.Error)
}
