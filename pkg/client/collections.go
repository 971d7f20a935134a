package client

import (
	"context"
	"fmt"
	"net/http"

	"github.com/robert-malhotra/go-stac-ingest/pkg/stac"
)

// GetCollection fetches a single collection document by ID.
func (c *Client) GetCollection(ctx context.Context, collectionID string) (*stac.Collection, error) {
	if collectionID == "" {
		return nil, fmt.Errorf("collection: %w", ErrEmptyID)
	}

	ref := c.baseURL.JoinPath("collections", collectionID).String()

	var col stac.Collection
	if err := c.DoJSON(ctx, http.MethodGet, ref, nil, nil, &col); err != nil {
		return nil, fmt.Errorf("get collection %q: %w", collectionID, err)
	}
	return &col, nil
}
