package geocatalog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"

	"github.com/robert-malhotra/go-stac-ingest/pkg/client"
)

// AssetSpec describes a collection asset uploaded as a file. Href is left
// empty; the service fills it with the stored file location.
type AssetSpec struct {
	Key   string   `json:"key"`
	Href  string   `json:"href"`
	Type  string   `json:"type,omitempty"`
	Roles []string `json:"roles,omitempty"`
	Title string   `json:"title,omitempty"`
}

// ThumbnailAsset is the asset description used for collection thumbnails.
func ThumbnailAsset(mediaType string) AssetSpec {
	if mediaType == "" {
		mediaType = "image/png"
	}
	return AssetSpec{Key: "thumbnail", Type: mediaType, Roles: []string{"thumbnail"}, Title: "Collection thumbnail"}
}

// AddCollectionAsset uploads content as a new asset of the collection using
// a multipart form with a "data" field (the JSON asset description) and a
// "file" field.
func (c *Client) AddCollectionAsset(ctx context.Context, collectionID string, spec AssetSpec, filename string, content io.Reader) error {
	if collectionID == "" {
		return fmt.Errorf("add collection asset: %w", client.ErrEmptyID)
	}
	body, contentType, err := assetForm(spec, filename, content)
	if err != nil {
		return fmt.Errorf("add collection asset %q: %w", spec.Key, err)
	}

	resp, err := c.api.Do(ctx, client.Request{
		Method:      http.MethodPost,
		Ref:         "stac/collections/" + url.PathEscape(collectionID) + "/assets",
		Body:        body,
		ContentType: contentType,
	})
	if err != nil {
		return fmt.Errorf("add collection asset %q to %q: %w", spec.Key, collectionID, err)
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	return nil
}

func assetForm(spec AssetSpec, filename string, content io.Reader) ([]byte, string, error) {
	data, err := json.Marshal(spec)
	if err != nil {
		return nil, "", err
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if err := w.WriteField("data", string(data)); err != nil {
		return nil, "", err
	}

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, filename))
	partType := spec.Type
	if partType == "" {
		partType = "application/octet-stream"
	}
	header.Set("Content-Type", partType)
	part, err := w.CreatePart(header)
	if err != nil {
		return nil, "", err
	}
	if _, err := io.Copy(part, content); err != nil {
		return nil, "", err
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}
