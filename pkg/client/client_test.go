package client

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc, opts ...ClientOption) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	opts = append([]ClientOption{
		WithHTTPClient(server.Client()),
		WithRetryPolicy(LinearRetryPolicy(3, time.Millisecond)),
	}, opts...)
	c, err := NewClient(server.URL+"/api/stac/v1", opts...)
	require.NoError(t, err)
	return c
}

func TestNewClientRejectsRelativeURL(t *testing.T) {
	_, err := NewClient("/relative/path")
	assert.ErrorIs(t, err, ErrInvalidBaseURL)

	_, err = NewClient("::not a url")
	assert.ErrorIs(t, err, ErrInvalidBaseURL)
}

func TestResolve(t *testing.T) {
	c, err := NewClient("https://example.com/api/stac/v1")
	require.NoError(t, err)

	tests := []struct {
		ref  string
		want string
	}{
		{"search", "https://example.com/api/stac/v1/search"},
		{"/search", "https://example.com/api/stac/v1/search"},
		{"collections/a/items?limit=1", "https://example.com/api/stac/v1/collections/a/items?limit=1"},
		{"https://other.example.com/x", "https://other.example.com/x"},
	}
	for _, tt := range tests {
		t.Run(tt.ref, func(t *testing.T) {
			u, err := c.Resolve(tt.ref)
			require.NoError(t, err)
			assert.Equal(t, tt.want, u.String())
		})
	}
}

func TestDoAppliesMiddlewareAndQuery(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/stac/v1/things", r.URL.Path)
		assert.Equal(t, "2025-04-30-preview", r.URL.Query().Get("api-version"))
		assert.Equal(t, "Bearer abc", r.Header.Get("Authorization"))
		assert.Equal(t, "text/plain", r.Header.Get("Content-Type"))
		body, _ := io.ReadAll(r.Body)
		assert.Equal(t, "hello", string(body))
		w.WriteHeader(http.StatusAccepted)
	}, WithMiddleware(func(_ context.Context, r *http.Request) error {
		r.Header.Set("Authorization", "Bearer abc")
		return nil
	}))

	resp, err := c.Do(context.Background(), Request{
		Method:      http.MethodPost,
		Ref:         "things",
		Query:       url.Values{"api-version": {"2025-04-30-preview"}},
		Body:        []byte("hello"),
		ContentType: "text/plain",
	})
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
}

func TestDoMiddlewareError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("request should not be sent")
	}, WithMiddleware(func(context.Context, *http.Request) error {
		return errors.New("no token")
	}))

	_, err := c.Do(context.Background(), Request{Ref: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no token")
}

func TestDoRetriesServerErrorsWithReplayedBody(t *testing.T) {
	var calls int
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		body, _ := io.ReadAll(r.Body)
		assert.Equal(t, `{"a":1}`+"\n", string(body))
		if calls < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"ok":true}`))
	})

	var out struct {
		OK bool `json:"ok"`
	}
	err := c.DoJSON(context.Background(), http.MethodPost, "x", nil, map[string]int{"a": 1}, &out)
	require.NoError(t, err)
	assert.True(t, out.OK)
	assert.Equal(t, 3, calls)
}

func TestDoGivesUpAfterMaxRetries(t *testing.T) {
	var calls int
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusBadGateway)
	})

	err := c.DoJSON(context.Background(), http.MethodGet, "x", nil, nil, nil)
	require.Error(t, err)
	assert.True(t, IsStatus(err, http.StatusBadGateway))
	assert.Equal(t, 4, calls)
}

func TestDoDoesNotRetryClientErrors(t *testing.T) {
	var calls int
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error": {"code": "InvalidRequest", "message": "bad bbox"}}`))
	})

	err := c.DoJSON(context.Background(), http.MethodGet, "x", nil, nil, nil)
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 1, calls)
	assert.Equal(t, http.StatusBadRequest, apiErr.Status)
	assert.Equal(t, "InvalidRequest", apiErr.Code)
	assert.Equal(t, "bad bbox", apiErr.Message)
	assert.Contains(t, apiErr.Error(), "InvalidRequest: bad bbox")
}

func TestNewAPIErrorEnvelopes(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		code    string
		message string
	}{
		{"stac-fastapi", `{"code": "NotFoundError", "description": "missing"}`, "NotFoundError", "missing"},
		{"problem json", `{"title": "Conflict", "detail": "exists"}`, "Conflict", "exists"},
		{"azure", `{"error": {"code": "Forbidden", "message": "denied"}}`, "Forbidden", "denied"},
		{"plain text", "upstream timeout\n", "", "upstream timeout"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newAPIError(500, http.MethodGet, "https://example.com", []byte(tt.raw))
			assert.Equal(t, tt.code, e.Code)
			assert.Equal(t, tt.message, e.Message)
		})
	}
}
