package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/luke-wagner/PlantCare-Monitor/internal/export"
	"github.com/luke-wagner/PlantCare-Monitor/models"
	"github.com/luke-wagner/PlantCare-Monitor/utils"
)

const plantPage = `<html><body>
<article id="plant-profile">
  <h1>%s</h1>
  <h3><a href="/species/fern">Boston Fern</a></h3>
  <div class="plant-detail"><img src="/static/icons/water.svg" alt="water"><span>in 2 days</span></div>
  <div class="plant-detail"><img alt="last-watered"><span>5 days ago</span></div>
</article>
</body></html>`

func gregServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/luke/", func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/luke/":
			fmt.Fprint(w, `<a href="/luke/plants/abcd1234/">Fern</a> <a href="/luke/plants/wxyz9876/">Pothos</a>`)
		case "/luke/plants/abcd1234/":
			fmt.Fprintf(w, plantPage, "Fern")
		case "/luke/plants/wxyz9876/":
			http.Error(w, "gone", http.StatusInternalServerError)
		default:
			http.NotFound(w, r)
		}
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func writeConfig(t *testing.T, gregURL, geminiURL string) (string, string) {
	t.Helper()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "plants.db")
	raw := fmt.Sprintf(`
greg:
  username: Luke
  base_url: %s
gemini:
  api_key: test-key
  base_url: %s
database:
  path: %s
`, gregURL, geminiURL, dbPath)
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(raw), 0600))
	return path, dir
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	app := newApp(&out)
	app.ErrWriter = &bytes.Buffer{}
	err := app.RunContext(context.Background(), append([]string{"plantctl"}, args...))
	return out.String(), err
}

func TestScrapePrintsRecords(t *testing.T) {
	srv := gregServer(t)
	cfgPath, dir := writeConfig(t, srv.URL, "http://127.0.0.1:1")
	appendPath := filepath.Join(dir, "plant_data.json")

	out, err := run(t, "--config", cfgPath, "scrape", "--store", "--append", appendPath)
	require.NoError(t, err)

	var recs []models.LegacyRecord
	require.NoError(t, json.Unmarshal([]byte(out), &recs))
	require.Len(t, recs, 1)
	assert.Equal(t, "abcd1234", recs[0].PlantID)
	assert.Equal(t, "Fern", recs[0].Data.Name())
	assert.Equal(t, "Boston Fern", recs[0].Data.Species())
	assert.Equal(t, "in 2 days", recs[0].Data["water"])
	assert.Equal(t, "5 days ago", recs[0].Data["last_watered"])

	appended, err := export.ReadFile(appendPath)
	require.NoError(t, err)
	assert.Len(t, appended, 1)

	out, err = run(t, "--config", cfgPath, "export")
	require.NoError(t, err)
	recs = nil
	require.NoError(t, json.Unmarshal([]byte(out), &recs))
	require.Len(t, recs, 1)
	assert.Equal(t, "abcd1234", recs[0].PlantID)
}

func TestScrapeUnknownUser(t *testing.T) {
	srv := gregServer(t)
	cfgPath, _ := writeConfig(t, srv.URL, "http://127.0.0.1:1")

	_, err := run(t, "--config", cfgPath, "scrape", "--username", "nobody")
	assert.Error(t, err)
}

func TestExportEmptyStore(t *testing.T) {
	cfgPath, dir := writeConfig(t, "http://127.0.0.1:1", "http://127.0.0.1:1")
	outPath := filepath.Join(dir, "out.json")

	_, err := run(t, "--config", cfgPath, "export", "--out", outPath)
	require.NoError(t, err)
	raw, err := os.ReadFile(outPath)
	require.NoError(t, err)
	assert.Equal(t, "[]", strings.TrimSpace(string(raw)))
}

func TestAsk(t *testing.T) {
	var gotPrompt string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, ":generateContent"))
		assert.Equal(t, "test-key", r.URL.Query().Get("key"))
		var req struct {
			Contents []struct {
				Parts []struct {
					Text string `json:"text"`
				} `json:"parts"`
			} `json:"contents"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		if len(req.Contents) > 0 && len(req.Contents[0].Parts) > 0 {
			gotPrompt = req.Contents[0].Parts[0].Text
		}
		fmt.Fprint(w, `{"candidates":[{"content":{"parts":[{"text":"Mist the fronds."}]}}]}`)
	}))
	defer srv.Close()
	cfgPath, _ := writeConfig(t, "http://127.0.0.1:1", srv.URL)

	out, err := run(t, "--config", cfgPath, "ask", "how", "often", "to", "water?")
	require.NoError(t, err)
	assert.Equal(t, "Mist the fronds.", strings.TrimSpace(out))
	assert.Equal(t, "how often to water?", gotPrompt)

	_, err = run(t, "--config", cfgPath, "ask")
	assert.ErrorIs(t, err, errNoPrompt)
}

func TestHashPassword(t *testing.T) {
	out, err := run(t, "hash-password", "s3cret-pw")
	require.NoError(t, err)
	assert.True(t, utils.VerifyPassword("s3cret-pw", strings.TrimSpace(out)))

	_, err = run(t, "hash-password")
	assert.Error(t, err)
}
