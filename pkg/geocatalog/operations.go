package geocatalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/robert-malhotra/go-stac-ingest/pkg/client"
	"github.com/robert-malhotra/go-stac-ingest/pkg/stac"
)

// OperationStatus is the state of an ingestion operation.
type OperationStatus string

const (
	StatusPending   OperationStatus = "Pending"
	StatusRunning   OperationStatus = "Running"
	StatusSucceeded OperationStatus = "Succeeded"
	StatusCompleted OperationStatus = "Completed"
	StatusFailed    OperationStatus = "Failed"
	StatusCanceled  OperationStatus = "Canceled"
	StatusCancelled OperationStatus = "Cancelled"
)

// Succeeded reports whether the status is a successful terminal state.
func (s OperationStatus) Succeeded() bool {
	return s == StatusSucceeded || s == StatusCompleted
}

// Failed reports whether the status is an unsuccessful terminal state.
func (s OperationStatus) Failed() bool {
	return s == StatusFailed || s == StatusCanceled || s == StatusCancelled
}

// Terminal reports whether the operation will not change state again.
func (s OperationStatus) Terminal() bool {
	return s.Succeeded() || s.Failed()
}

// Operation is an asynchronous ingestion operation.
type Operation struct {
	ID             string          `json:"id"`
	Status         OperationStatus `json:"status"`
	Type           string          `json:"type,omitempty"`
	CollectionID   string          `json:"collectionId,omitempty"`
	CreationTime   *time.Time      `json:"creationTime,omitempty"`
	StartTime      *time.Time      `json:"startTime,omitempty"`
	FinishTime     *time.Time      `json:"finishTime,omitempty"`
	AdditionalInfo map[string]any  `json:"additionalInformation,omitempty"`
	Error          *OperationError `json:"error,omitempty"`
}

// OperationError describes why an operation failed.
type OperationError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

var (
	// ErrNoOperation is returned when an ingestion request was accepted
	// without an operation handle.
	ErrNoOperation = errors.New("response carried no operation id")
	// ErrOperationTimeout is reported when operations are still pending when
	// polling gives up.
	ErrOperationTimeout = errors.New("timed out waiting for operations")
	// ErrOperationsFailed is reported when any operation ends unsuccessfully.
	ErrOperationsFailed = errors.New("ingestion operations failed")
)

// CreateItems submits items as one FeatureCollection to the collection and
// returns the ingestion operation handle. The service answers 200 or 202.
func (c *Client) CreateItems(ctx context.Context, collectionID string, items []*stac.Item) (*Operation, error) {
	if collectionID == "" {
		return nil, fmt.Errorf("create items: %w", client.ErrEmptyID)
	}
	body, err := json.Marshal(stac.NewItemCollection(items))
	if err != nil {
		return nil, fmt.Errorf("encode item collection: %w", err)
	}

	resp, err := c.api.Do(ctx, client.Request{
		Method: http.MethodPost,
		Ref:    "stac/collections/" + url.PathEscape(collectionID) + "/items",
		Body:   body,
	})
	if err != nil {
		return nil, fmt.Errorf("create %d items in %q: %w", len(items), collectionID, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read create items response: %w", err)
	}
	var op Operation
	if len(strings.TrimSpace(string(data))) > 0 {
		if err := json.Unmarshal(data, &op); err != nil {
			return nil, fmt.Errorf("decode create items response: %w", err)
		}
	}
	if op.ID == "" {
		op.ID = operationIDFromLocation(resp.Header.Get("Operation-Location"))
	}
	if op.ID == "" {
		return nil, fmt.Errorf("create items in %q: %w", collectionID, ErrNoOperation)
	}
	return &op, nil
}

func operationIDFromLocation(loc string) string {
	if loc == "" {
		return ""
	}
	u, err := url.Parse(loc)
	if err != nil {
		return ""
	}
	id := path.Base(u.Path)
	if id == "." || id == "/" {
		return ""
	}
	return id
}

// GetOperation fetches the current state of an operation.
func (c *Client) GetOperation(ctx context.Context, id string) (*Operation, error) {
	if id == "" {
		return nil, fmt.Errorf("get operation: %w", client.ErrEmptyID)
	}
	var op Operation
	if err := c.api.DoJSON(ctx, http.MethodGet, "inma/operations/"+url.PathEscape(id), nil, nil, &op); err != nil {
		return nil, fmt.Errorf("get operation %q: %w", id, err)
	}
	if op.ID == "" {
		op.ID = id
	}
	return &op, nil
}

// PollOptions controls WaitForOperations.
type PollOptions struct {
	// Interval between polling rounds. Defaults to 30s.
	Interval time.Duration
	// Timeout for the whole wait. Defaults to 30m.
	Timeout time.Duration
	// PerRound caps how many operations are checked per round. Defaults to 5.
	PerRound int
	// OnStatus is called with every successfully fetched status.
	OnStatus func(*Operation)
	// OnError is called when a status check fails; the operation is retried
	// next round.
	OnError func(id string, err error)
}

func (o PollOptions) withDefaults() PollOptions {
	if o.Interval <= 0 {
		o.Interval = 30 * time.Second
	}
	if o.Timeout <= 0 {
		o.Timeout = 30 * time.Minute
	}
	if o.PerRound <= 0 {
		o.PerRound = 5
	}
	return o
}

// PollResult is the outcome of WaitForOperations.
type PollResult struct {
	Succeeded []string
	Failed    []*Operation
	Pending   []string
	TimedOut  bool
}

// Err summarizes the result as an error: ErrOperationsFailed when any
// operation failed, ErrOperationTimeout when some are still pending.
func (r *PollResult) Err() error {
	var errs []error
	if len(r.Failed) > 0 {
		ids := make([]string, len(r.Failed))
		for i, op := range r.Failed {
			ids[i] = op.ID
		}
		errs = append(errs, fmt.Errorf("%w: %s", ErrOperationsFailed, strings.Join(ids, ", ")))
	}
	if r.TimedOut {
		errs = append(errs, fmt.Errorf("%w: %d still pending", ErrOperationTimeout, len(r.Pending)))
	}
	return errors.Join(errs...)
}

// WaitForOperations polls the given operations on a fixed interval until
// every one is terminal or the timeout elapses. Only context cancellation is
// returned as an error; failures and timeouts are reported in the result.
func (c *Client) WaitForOperations(ctx context.Context, ids []string, opts PollOptions) (*PollResult, error) {
	opts = opts.withDefaults()
	deadline := time.Now().Add(opts.Timeout)

	result := &PollResult{}
	done := make(map[string]bool, len(ids))
	for {
		var remaining []string
		for _, id := range ids {
			if !done[id] {
				remaining = append(remaining, id)
			}
		}
		if len(remaining) == 0 {
			return result, nil
		}
		if !time.Now().Before(deadline) {
			result.TimedOut = true
			result.Pending = remaining
			return result, nil
		}

		for _, id := range remaining[:min(opts.PerRound, len(remaining))] {
			op, err := c.GetOperation(ctx, id)
			if err != nil {
				if ctx.Err() != nil {
					return result, ctx.Err()
				}
				if opts.OnError != nil {
					opts.OnError(id, err)
				}
				continue
			}
			if opts.OnStatus != nil {
				opts.OnStatus(op)
			}
			switch {
			case op.Status.Succeeded():
				done[id] = true
				result.Succeeded = append(result.Succeeded, id)
			case op.Status.Failed():
				done[id] = true
				result.Failed = append(result.Failed, op)
			}
		}

		if len(result.Succeeded)+len(result.Failed) == len(ids) {
			continue
		}
		if err := sleep(ctx, min(opts.Interval, time.Until(deadline))); err != nil {
			return result, err
		}
	}
}
