package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *config {
	return &config{
		GeoCatalogURL:    "https://example.geocatalog.spatio.azure.com",
		APIVersion:       "2025-04-30-preview",
		Auth:             "cli",
		LogLevel:         "info",
		LogFormat:        "text",
		SourceURL:        defaultSourceURL,
		SourceCollection: "modis-13Q1-061",
		BBox:             []float64{2.69, 4.27, 14.68, 13.89},
		Datetime:         "2023-01-01/2023-12-31",
		BatchSize:        100,
		BatchDelay:       time.Second,
		PollInterval:     30 * time.Second,
		PollTimeout:      30 * time.Minute,
		VerifyDelay:      10 * time.Second,
		Sign:             true,
		SASURL:           "https://planetarycomputer.microsoft.com/api/sas/v1/",
	}
}

func TestConfigValidate(t *testing.T) {
	require.NoError(t, validConfig().validate())

	tests := []struct {
		name   string
		mutate func(*config)
		want   string
	}{
		{"missing geocatalog", func(c *config) { c.GeoCatalogURL = "" }, "--geocatalog-url is required"},
		{"relative geocatalog", func(c *config) { c.GeoCatalogURL = "geocatalog" }, "--geocatalog-url must be an absolute URL"},
		{"auth mode", func(c *config) { c.Auth = "password" }, "--auth must be one of"},
		{"token mode without token", func(c *config) { c.Auth = "token" }, "--token is required"},
		{"bbox order", func(c *config) { c.BBox = []float64{10, 0, 5, 1} }, "--bbox must have 4 or 6 values"},
		{"bbox arity", func(c *config) { c.BBox = []float64{1, 2, 3} }, "--bbox must have 4 or 6 values"},
		{"datetime", func(c *config) { c.Datetime = "last tuesday" }, `--datetime "last tuesday" is not a valid`},
		{"batch size", func(c *config) { c.BatchSize = 0 }, "--batch-size failed gte=1"},
		{"poll interval", func(c *config) { c.PollInterval = 0 }, "--poll-interval failed gt=0"},
		{"sas url", func(c *config) { c.SASURL = "" }, "--sas-url is required"},
		{"collection id", func(c *config) { c.CollectionID = "my collection" }, `--collection-id "my collection" may only contain`},
		{"log format", func(c *config) { c.LogFormat = "xml" }, "--log-format must be one of"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestConfigValidateOptionalFields(t *testing.T) {
	cfg := validConfig()
	cfg.BBox = nil
	cfg.Datetime = ""
	cfg.Sign = false
	cfg.SASURL = ""
	cfg.Auth = "token"
	cfg.Token = "abc"
	assert.NoError(t, cfg.validate())
}

func TestParseBBox(t *testing.T) {
	bbox, err := parseBBox(" 2.69, 4.27,14.68 ,13.89 ")
	require.NoError(t, err)
	assert.Equal(t, []float64{2.69, 4.27, 14.68, 13.89}, bbox)

	bbox, err = parseBBox("")
	require.NoError(t, err)
	assert.Nil(t, bbox)

	_, err = parseBBox("1,2,x,4")
	assert.ErrorContains(t, err, "invalid bbox")
}

func TestLoadEnvFile(t *testing.T) {
	const key = "STAC_INGEST_TEST_ENV_FILE"
	t.Cleanup(func() { os.Unsetenv(key) })

	path := filepath.Join(t.TempDir(), "ingest.env")
	require.NoError(t, os.WriteFile(path, []byte(key+"=from-file\n"), 0o600))

	require.NoError(t, loadEnvFile([]string{"--log-level", "debug", "--env-file", path, "run"}))
	assert.Equal(t, "from-file", os.Getenv(key))

	os.Unsetenv(key)
	require.NoError(t, loadEnvFile([]string{"--env-file=" + path}))
	assert.Equal(t, "from-file", os.Getenv(key))

	err := loadEnvFile([]string{"--env-file", filepath.Join(t.TempDir(), "missing.env")})
	assert.ErrorContains(t, err, "load env file")

	// The default file is optional.
	assert.NoError(t, loadEnvFile(nil))
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	cfg := validConfig()
	cfg.LogFormat = "json"
	cfg.LogFile = filepath.Join(t.TempDir(), "ingest.log")

	log, closer, err := newLogger(cfg, &buf)
	require.NoError(t, err)
	log.WithField("collection", "c1").Info("collection created")
	log.Debug("hidden")
	require.NoError(t, closer.Close())

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "collection created", entry["message"])
	assert.Equal(t, "c1", entry["collection"])
	assert.NotEmpty(t, entry["run_id"])
	assert.Equal(t, "info", entry["level"])

	data, err := os.ReadFile(cfg.LogFile)
	require.NoError(t, err)
	assert.Equal(t, buf.String(), string(data))

	cfg.LogLevel = "loud"
	_, _, err = newLogger(cfg, &buf)
	assert.Error(t, err)
}
