// Package geocatalog is a client for the GeoCatalog management and ingestion
// API: collection creation, collection assets, batch item ingestion and
// ingestion operation status.
package geocatalog

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"time"

	"golang.org/x/oauth2"

	"github.com/robert-malhotra/go-stac-ingest/pkg/auth"
	"github.com/robert-malhotra/go-stac-ingest/pkg/client"
	"github.com/robert-malhotra/go-stac-ingest/pkg/stac"
)

// DefaultAPIVersion is sent as the api-version query parameter.
const DefaultAPIVersion = "2025-04-30-preview"

// Option configures a Client.
type Option func(*Client)

// WithAPIVersion overrides the api-version query parameter.
func WithAPIVersion(v string) Option {
	return func(c *Client) {
		if v != "" {
			c.apiVersion = v
		}
	}
}

// WithTokenSource authorizes every request with a bearer token from src.
func WithTokenSource(src oauth2.TokenSource) Option {
	return func(c *Client) { c.tokens = src }
}

// WithClientOptions passes options (HTTP client, timeout, retry policy,
// logger) to the underlying API clients. The retry policy only applies to
// STAC reads; collection, asset and item writes are sent once.
func WithClientOptions(opts ...client.ClientOption) Option {
	return func(c *Client) { c.clientOpts = append(c.clientOpts, opts...) }
}

// Client talks to one GeoCatalog instance.
type Client struct {
	// api is rooted at the GeoCatalog URL and never retries, stac at its
	// read-only /stac STAC API and uses the configured retry policy.
	api  *client.Client
	stac *client.Client

	apiVersion string
	tokens     oauth2.TokenSource
	clientOpts []client.ClientOption
}

// New creates a Client for the GeoCatalog at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	c := &Client{apiVersion: DefaultAPIVersion}
	for _, o := range opts {
		o(c)
	}

	clientOpts := append([]client.ClientOption{
		client.WithMiddleware(
			auth.QueryMiddleware("api-version", c.apiVersion),
			auth.Middleware(c.tokens),
		),
	}, c.clientOpts...)

	// Writes are never replayed: a resubmitted batch is a second ingestion
	// operation. Operation polling retries on its own schedule.
	apiOpts := append(slices.Clone(clientOpts), client.WithRetryPolicy(nil))
	api, err := client.NewClient(baseURL, apiOpts...)
	if err != nil {
		return nil, fmt.Errorf("geocatalog: %w", err)
	}
	stacAPI, err := client.NewClient(api.BaseURL().JoinPath("stac").String(), clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("geocatalog: %w", err)
	}
	c.api, c.stac = api, stacAPI
	return c, nil
}

// APIVersion returns the api-version sent with every request.
func (c *Client) APIVersion() string { return c.apiVersion }

// CreateCollection creates col. The service answers 201 or 202 and
// provisions the collection asynchronously; see WaitForCollection.
func (c *Client) CreateCollection(ctx context.Context, col *stac.Collection) error {
	if col == nil || col.ID == "" {
		return fmt.Errorf("create collection: %w", client.ErrEmptyID)
	}
	if err := c.api.DoJSON(ctx, http.MethodPost, "stac/collections", nil, col, nil); err != nil {
		return fmt.Errorf("create collection %q: %w", col.ID, err)
	}
	return nil
}

// GetCollection fetches a collection from the GeoCatalog STAC API.
func (c *Client) GetCollection(ctx context.Context, id string) (*stac.Collection, error) {
	return c.stac.GetCollection(ctx, id)
}

// WaitForCollection polls until the collection can be read, the timeout
// elapses, or a non-404 error occurs.
func (c *Client) WaitForCollection(ctx context.Context, id string, interval, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	for {
		_, err := c.GetCollection(ctx, id)
		switch {
		case err == nil:
			return nil
		case errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil:
			return fmt.Errorf("collection %q not available after %s", id, timeout)
		case !client.IsStatus(err, http.StatusNotFound):
			return err
		}
		if err := sleep(ctx, interval); err != nil {
			return fmt.Errorf("collection %q not available after %s", id, timeout)
		}
	}
}

// CountItems counts the items of a collection through the STAC search API.
func (c *Client) CountItems(ctx context.Context, collectionID string) (int, error) {
	if collectionID == "" {
		return 0, fmt.Errorf("count items: %w", client.ErrEmptyID)
	}
	var n int
	for _, err := range c.stac.Search(ctx, client.SearchParams{Collections: []string{collectionID}, Limit: 1000}) {
		if err != nil {
			return n, fmt.Errorf("count items in %q: %w", collectionID, err)
		}
		n++
	}
	return n, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
