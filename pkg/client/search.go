package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"maps"
	"net/http"
	"strings"
	"time"

	"github.com/robert-malhotra/go-stac-ingest/pkg/stac"
)

// SearchParams represents the body of a STAC API item search.
type SearchParams struct {
	Collections []string  `json:"collections,omitempty"`
	IDs         []string  `json:"ids,omitempty"`
	BBox        []float64 `json:"bbox,omitempty"`
	// Datetime is a single instant or an interval "start/end"; either end may
	// be ".." or empty. Plain dates are expanded to whole days.
	Datetime string `json:"datetime,omitempty"`
	// Limit is the page size requested from the server.
	Limit int `json:"limit,omitempty"`
}

// Validate ensures the provided search parameters are usable.
func (p SearchParams) Validate() error {
	if err := ValidateBBox(p.BBox); err != nil {
		return err
	}
	if _, err := NormalizeDatetime(p.Datetime); err != nil {
		return err
	}
	if p.Limit < 0 {
		return fmt.Errorf("limit must not be negative")
	}
	return nil
}

func (p SearchParams) body() (map[string]any, error) {
	dt, err := NormalizeDatetime(p.Datetime)
	if err != nil {
		return nil, err
	}
	p.Datetime = dt

	data, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	var body map[string]any
	if err := json.Unmarshal(data, &body); err != nil {
		return nil, err
	}
	return body, nil
}

// ValidateBBox accepts an empty bbox or one with 4 or 6 coordinates whose
// latitude (and elevation) ranges are ordered. Longitudes may wrap the
// antimeridian.
func ValidateBBox(bbox []float64) error {
	switch len(bbox) {
	case 0:
		return nil
	case 4:
		if bbox[1] > bbox[3] {
			return fmt.Errorf("bbox south %v is greater than north %v", bbox[1], bbox[3])
		}
	case 6:
		if bbox[1] > bbox[4] {
			return fmt.Errorf("bbox south %v is greater than north %v", bbox[1], bbox[4])
		}
		if bbox[2] > bbox[5] {
			return fmt.Errorf("bbox min elevation %v is greater than max %v", bbox[2], bbox[5])
		}
	default:
		return fmt.Errorf("bbox must contain 4 or 6 coordinates, got %d", len(bbox))
	}
	for _, v := range bbox {
		if v != v {
			return fmt.Errorf("bbox contains NaN")
		}
	}
	return nil
}

const dateLayout = "2006-01-02"

// NormalizeDatetime turns a datetime search parameter into the RFC 3339 form
// STAC APIs require. A plain date as the start of an interval becomes
// midnight, as the end of an interval the last second of that day, and on
// its own the whole day. Open ends ("" or "..") are written as "..".
func NormalizeDatetime(value string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", nil
	}

	start, end, isInterval := strings.Cut(value, "/")
	if !isInterval {
		if d, err := time.Parse(dateLayout, start); err == nil {
			return formatInterval(d, endOfDay(d)), nil
		}
		t, err := time.Parse(time.RFC3339, start)
		if err != nil {
			return "", fmt.Errorf("invalid datetime %q", value)
		}
		return t.UTC().Format(time.RFC3339), nil
	}

	from, err := normalizeBound(start, false)
	if err != nil {
		return "", fmt.Errorf("invalid datetime %q: %w", value, err)
	}
	to, err := normalizeBound(end, true)
	if err != nil {
		return "", fmt.Errorf("invalid datetime %q: %w", value, err)
	}
	if from == ".." && to == ".." {
		return "", fmt.Errorf("invalid datetime %q: both ends are open", value)
	}
	if from != ".." && to != ".." && from > to {
		return "", fmt.Errorf("invalid datetime %q: start is after end", value)
	}
	return from + "/" + to, nil
}

func normalizeBound(s string, isEnd bool) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == ".." {
		return "..", nil
	}
	if d, err := time.Parse(dateLayout, s); err == nil {
		if isEnd {
			d = endOfDay(d)
		}
		return d.Format(time.RFC3339), nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return "", fmt.Errorf("%q is neither a date nor RFC 3339", s)
	}
	return t.UTC().Format(time.RFC3339), nil
}

func endOfDay(d time.Time) time.Time {
	return d.Add(24*time.Hour - time.Second)
}

func formatInterval(from, to time.Time) string {
	return from.Format(time.RFC3339) + "/" + to.Format(time.RFC3339)
}

// Search runs a POST /search and streams matching items, transparently
// following rel="next" links. Links carrying method "POST" are followed with
// their body (merged into the previous body when "merge" is set); other
// links are fetched with GET. Iteration stops when there is no next link,
// when the next request would repeat the current one, or when the consumer
// stops.
func (c *Client) Search(ctx context.Context, params SearchParams) iter.Seq2[*stac.Item, error] {
	return func(yield func(*stac.Item, error) bool) {
		if err := params.Validate(); err != nil {
			yield(nil, fmt.Errorf("invalid search parameters: %w", err))
			return
		}
		body, err := params.body()
		if err != nil {
			yield(nil, err)
			return
		}

		current := pageRequest{method: http.MethodPost, ref: "search", body: body}
		seen := map[string]bool{}
		for page := 1; ; page++ {
			key, err := current.key()
			if err != nil {
				yield(nil, err)
				return
			}
			if seen[key] {
				return
			}
			seen[key] = true

			var result stac.ItemCollection
			if err := c.DoJSON(ctx, current.method, current.ref, nil, current.payload(), &result); err != nil {
				yield(nil, fmt.Errorf("search page %d: %w", page, err))
				return
			}
			c.debugf("search page %d returned %d items", page, len(result.Features))

			for _, item := range result.Features {
				if item == nil {
					continue
				}
				if !yield(item, nil) {
					return // consumer stopped
				}
			}

			next := result.NextLink()
			if next == nil || next.Href == "" {
				return
			}
			current = current.follow(next)
		}
	}
}

type pageRequest struct {
	method string
	ref    string
	body   map[string]any
}

func (r pageRequest) follow(link *stac.Link) pageRequest {
	if !strings.EqualFold(link.Method, http.MethodPost) {
		return pageRequest{method: http.MethodGet, ref: link.Href}
	}
	body := link.Body
	if link.Merge {
		body = maps.Clone(r.body)
		if body == nil {
			body = map[string]any{}
		}
		maps.Copy(body, link.Body)
	}
	return pageRequest{method: http.MethodPost, ref: link.Href, body: body}
}

func (r pageRequest) payload() any {
	if r.body == nil {
		return nil
	}
	return r.body
}

func (r pageRequest) key() (string, error) {
	var buf bytes.Buffer
	buf.WriteString(r.method + " " + r.ref + " ")
	if r.body != nil {
		if err := json.NewEncoder(&buf).Encode(r.body); err != nil {
			return "", err
		}
	}
	return buf.String(), nil
}
