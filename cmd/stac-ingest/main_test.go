package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robert-malhotra/go-stac-ingest/pkg/geocatalog/geocatalogtest"
)

func newSourceServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/collections/naip":
			json.NewEncoder(w).Encode(map[string]any{
				"type": "Collection", "stac_version": "1.0.0", "id": "naip",
				"description": "NAIP imagery", "license": "proprietary",
				"extent": map[string]any{
					"spatial":  map[string]any{"bbox": [][]float64{{-125, 24, -66, 50}}},
					"temporal": map[string]any{"interval": [][]any{{"2010-01-01T00:00:00Z", nil}}},
				},
				"links": []any{},
			})
		case r.Method == http.MethodPost && r.URL.Path == "/search":
			features := []any{}
			for _, id := range []string{"tile-1", "tile-2", "tile-3"} {
				features = append(features, map[string]any{
					"type": "Feature", "stac_version": "1.0.0", "id": id, "collection": "naip",
					"geometry":   map[string]any{"type": "Point", "coordinates": []float64{-100, 40}},
					"properties": map[string]any{"datetime": "2021-06-01T00:00:00Z"},
					"links":      []any{},
					"assets":     map[string]any{"image": map[string]any{"href": "https://example.com/" + id + ".tif"}},
				})
			}
			json.NewEncoder(w).Encode(map[string]any{"type": "FeatureCollection", "features": features, "links": []any{}})
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func runApp(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	app := newApp()
	var out, errOut bytes.Buffer
	app.Writer = &out
	app.ErrWriter = &errOut
	err := app.Run(context.Background(), append([]string{"stac-ingest"}, args...))
	return out.String(), errOut.String(), err
}

func TestRunMonitorVerify(t *testing.T) {
	src := newSourceServer(t)
	dest := geocatalogtest.NewServer()
	t.Cleanup(dest.Close)

	global := []string{
		"--geocatalog-url", dest.URL,
		"--auth", "token", "--token", "secret",
		"--log-level", "error",
	}

	out, _, err := runApp(t, append(global,
		"run",
		"--source-url", src.URL,
		"--source-collection", "naip",
		"--collection-id", "naip-copy",
		"--batch-size", "2",
		"--batch-delay", "0s",
		"--poll-interval", "1ms",
		"--verify-delay", "0s",
		"--sign=false",
	)...)
	require.NoError(t, err)
	assert.Contains(t, out, "naip-copy")
	assert.Contains(t, out, "Items submitted")
	assert.Equal(t, []int{2, 1}, dest.BatchSizes())
	assert.Len(t, dest.Items("naip-copy"), 3)
	assert.True(t, dest.SawAuthorization("Bearer secret"))

	out, _, err = runApp(t, append(global, "monitor", "--poll-interval", "1ms", "op-1", "op-2")...)
	require.NoError(t, err)
	assert.Contains(t, out, "op-1")
	assert.Contains(t, out, "Succeeded")

	out, _, err = runApp(t, append(global, "verify", "naip-copy")...)
	require.NoError(t, err)
	assert.Equal(t, "naip-copy\t3\n", out)
}

func TestRunReportsCollectionFailure(t *testing.T) {
	src := newSourceServer(t)
	dest := geocatalogtest.NewServer()
	dest.CollectionStatus = http.StatusForbidden
	t.Cleanup(dest.Close)

	out, _, err := runApp(t,
		"--geocatalog-url", dest.URL, "--auth", "token", "--token", "secret", "--log-level", "error",
		"run", "--source-url", src.URL, "--source-collection", "naip", "--id-suffix", "test", "--sign=false",
	)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "create collection")
	assert.Contains(t, out, "Source collection")
	assert.Empty(t, dest.BatchSizes())
}

func TestRunSendsEachBatchOnce(t *testing.T) {
	src := newSourceServer(t)
	dest := geocatalogtest.NewServer()
	dest.FailBatches = map[int]int{1: http.StatusServiceUnavailable}
	t.Cleanup(dest.Close)

	_, _, err := runApp(t,
		"--geocatalog-url", dest.URL, "--auth", "token", "--token", "secret", "--log-level", "error",
		"run", "--source-url", src.URL, "--source-collection", "naip", "--collection-id", "naip-copy",
		"--batch-size", "2", "--batch-delay", "0s", "--sign=false",
	)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "batch 1")
	assert.Equal(t, 1, dest.Requests(http.MethodPost, "/stac/collections/naip-copy/items"))
	assert.Equal(t, 1, dest.Requests(http.MethodPost, "/stac/collections"))
	assert.Equal(t, []int{2}, dest.BatchSizes())
}

func TestCommandArgumentErrors(t *testing.T) {
	global := []string{"--geocatalog-url", "https://example.com", "--auth", "none"}

	_, _, err := runApp(t, append(global, "verify")...)
	assert.ErrorContains(t, err, "expected 1 argument")

	_, _, err = runApp(t, append(global, "monitor")...)
	assert.ErrorContains(t, err, "expected at least 1 argument")

	_, _, err = runApp(t, append(global, "run")...)
	assert.ErrorContains(t, err, "--source-collection is required")

	_, _, err = runApp(t, append(global, "run", "--source-collection", "naip", "--bbox", "10,0,5,1")...)
	assert.ErrorContains(t, err, "--bbox must have 4 or 6 values")

	_, _, err = runApp(t, "--auth", "none", "verify", "naip")
	assert.ErrorContains(t, err, "--geocatalog-url is required")
}
