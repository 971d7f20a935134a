package ingest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"maps"
	"math/rand/v2"
	"mime"
	"path"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/robert-malhotra/go-stac-ingest/pkg/client"
	"github.com/robert-malhotra/go-stac-ingest/pkg/geocatalog"
	"github.com/robert-malhotra/go-stac-ingest/pkg/stac"
)

// Source is the catalog items are copied from.
type Source interface {
	GetCollection(ctx context.Context, id string) (*stac.Collection, error)
	Search(ctx context.Context, params client.SearchParams) iter.Seq2[*stac.Item, error]
}

// Destination is the GeoCatalog items are copied into.
type Destination interface {
	CreateCollection(ctx context.Context, col *stac.Collection) error
	WaitForCollection(ctx context.Context, id string, interval, timeout time.Duration) error
	AddCollectionAsset(ctx context.Context, collectionID string, spec geocatalog.AssetSpec, filename string, content io.Reader) error
	CreateItems(ctx context.Context, collectionID string, items []*stac.Item) (*geocatalog.Operation, error)
	WaitForOperations(ctx context.Context, ids []string, opts geocatalog.PollOptions) (*geocatalog.PollResult, error)
	CountItems(ctx context.Context, collectionID string) (int, error)
}

// Signer makes item asset hrefs readable by the destination.
type Signer interface {
	SignItem(ctx context.Context, item *stac.Item) error
}

// Fetcher retrieves thumbnail bytes and their media type.
type Fetcher interface {
	Fetch(ctx context.Context, href string) ([]byte, string, error)
}

// Config describes one ingestion run.
type Config struct {
	SourceCollection string
	// CollectionID names the destination collection. When empty it is
	// derived from SourceCollection and IDSuffix.
	CollectionID string
	IDSuffix     string

	BBox     []float64
	Datetime string
	// IDPrefix keeps only items whose id starts with it.
	IDPrefix string
	// MaxItems caps how many matching items are submitted; 0 means no cap.
	MaxItems int
	// PageSize is the search page size requested from the source.
	PageSize int

	BatchSize       int
	BatchDelay      time.Duration
	ContinueOnError bool

	// DropAssets overrides DefaultDropAssets.
	DropAssets []string

	CollectionWait time.Duration
	Poll           geocatalog.PollOptions
	SkipMonitor    bool
	VerifyDelay    time.Duration
	SkipThumbnail  bool
}

// DefaultBatchSize is the number of items sent per ingestion request.
const DefaultBatchSize = 100

func (c Config) withDefaults() Config {
	if c.BatchSize == 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.PageSize <= 0 {
		c.PageSize = c.BatchSize
	}
	if c.CollectionWait <= 0 {
		c.CollectionWait = 2 * time.Minute
	}
	return c
}

func (c Config) searchParams() client.SearchParams {
	return client.SearchParams{
		Collections: []string{c.SourceCollection},
		BBox:        c.BBox,
		Datetime:    c.Datetime,
		Limit:       c.PageSize,
	}
}

// Pipeline copies a source collection and its matching items into a
// GeoCatalog.
type Pipeline struct {
	Source      Source
	Destination Destination
	// Signer is optional; when set, every item is signed before upload.
	Signer Signer
	// Fetcher is optional; without it the thumbnail is skipped.
	Fetcher Fetcher
	Log     logrus.FieldLogger
	Config  Config

	// Rand picks the numeric suffix of derived collection ids.
	Rand func() int
}

// CollectionID builds a destination collection id "{source}-{suffix}-{n}".
// An empty suffix is left out.
func CollectionID(source, suffix string, n int) string {
	parts := []string{source}
	if suffix != "" {
		parts = append(parts, suffix)
	}
	parts = append(parts, strconv.Itoa(n))
	return strings.Join(parts, "-")
}

// PrepareCollection turns a source collection into the destination
// collection: new id and title, no assets, class names filled. It returns
// the href of the source thumbnail, if any.
func PrepareCollection(col *stac.Collection, id string) (thumbnail string) {
	col.ID = id
	col.Title = id
	for _, key := range slices.Sorted(maps.Keys(col.Assets)) {
		if asset := col.Assets[key]; asset != nil && asset.HasRole("thumbnail") {
			thumbnail = asset.Href
			break
		}
	}
	if a, ok := col.Assets["thumbnail"]; ok && a != nil {
		thumbnail = a.Href
	}
	col.Assets = nil
	FillCollectionClassNames(col)
	return thumbnail
}

// Run executes every step in order and returns the run summary. The summary
// is returned alongside errors so partial progress can still be reported.
func (p *Pipeline) Run(ctx context.Context) (*Summary, error) {
	cfg := p.Config.withDefaults()
	log := p.logger()
	start := time.Now()

	sum := &Summary{SourceCollection: cfg.SourceCollection}
	defer func() { sum.Duration = time.Since(start) }()

	if cfg.SourceCollection == "" {
		return sum, errors.New("source collection is required")
	}
	if cfg.BatchSize < 1 {
		return sum, fmt.Errorf("%w: %d", ErrInvalidBatchSize, cfg.BatchSize)
	}
	if err := cfg.searchParams().Validate(); err != nil {
		return sum, fmt.Errorf("search parameters: %w", err)
	}

	log.WithField("collection", cfg.SourceCollection).Info("Step 1: fetching source collection")
	col, err := p.Source.GetCollection(ctx, cfg.SourceCollection)
	if err != nil {
		return sum, fmt.Errorf("get source collection %q: %w", cfg.SourceCollection, err)
	}

	id := cfg.CollectionID
	if id == "" {
		id = CollectionID(cfg.SourceCollection, cfg.IDSuffix, p.randSuffix())
	}
	sum.CollectionID = id
	log = log.WithField("collection", id)
	thumbnail := PrepareCollection(col, id)

	log.Info("Step 2: creating destination collection")
	if err := p.Destination.CreateCollection(ctx, col); err != nil {
		return sum, fmt.Errorf("create collection %q: %w", id, err)
	}
	if err := p.Destination.WaitForCollection(ctx, id, 2*time.Second, cfg.CollectionWait); err != nil {
		return sum, fmt.Errorf("wait for collection %q: %w", id, err)
	}
	log.Info("collection created")

	if !cfg.SkipThumbnail {
		sum.Thumbnail = p.addThumbnail(ctx, log, id, thumbnail)
	}

	log.Info("Step 3: searching and ingesting items")
	if err := p.ingest(ctx, log, cfg, id, sum); err != nil {
		return sum, err
	}
	log.WithFields(logrus.Fields{
		"submitted": sum.Submitted,
		"batches":   sum.Batches,
	}).Info("ingestion requests complete")

	if !cfg.SkipMonitor && len(sum.Operations) > 0 {
		log.Info("Step 4: monitoring ingestion operations")
		res, err := Monitor(ctx, p.Destination, sum.Operations, cfg.Poll, log)
		if err != nil {
			return sum, err
		}
		sum.Record(res)
	}

	if cfg.VerifyDelay > 0 {
		if err := sleep(ctx, cfg.VerifyDelay); err != nil {
			return sum, err
		}
	}
	log.Info("Step 5: verifying collection")
	if n, err := p.Destination.CountItems(ctx, id); err != nil {
		if ctx.Err() != nil {
			return sum, ctx.Err()
		}
		log.WithError(err).Warn("could not verify collection items")
	} else {
		sum.Verified = n
		sum.VerifiedOK = true
		log.WithField("items", n).Info("collection verified")
	}
	return sum, nil
}

func (p *Pipeline) logger() logrus.FieldLogger {
	if p.Log != nil {
		return p.Log
	}
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func (p *Pipeline) randSuffix() int {
	if p.Rand != nil {
		return p.Rand()
	}
	return rand.IntN(1001)
}

// addThumbnail copies the source thumbnail onto the new collection. Failures
// are logged and never stop the run.
func (p *Pipeline) addThumbnail(ctx context.Context, log logrus.FieldLogger, id, href string) bool {
	if href == "" || p.Fetcher == nil {
		log.Debug("no thumbnail to copy")
		return false
	}
	log = log.WithField("href", href)
	log.Info("adding collection thumbnail")

	data, mediaType, err := p.Fetcher.Fetch(ctx, href)
	if err != nil {
		log.WithError(err).Warn("could not fetch thumbnail")
		return false
	}
	spec := geocatalog.ThumbnailAsset(mediaType)
	err = p.Destination.AddCollectionAsset(ctx, id, spec, thumbnailName(href, spec.Type), bytes.NewReader(data))
	if err != nil {
		log.WithError(err).Warn("could not add thumbnail")
		return false
	}
	return true
}

func thumbnailName(href, mediaType string) string {
	name := path.Base(strings.SplitN(href, "?", 2)[0])
	if name != "" && name != "." && name != "/" && path.Ext(name) != "" {
		return name
	}
	if exts, _ := mime.ExtensionsByType(mediaType); len(exts) > 0 {
		return "thumbnail" + exts[0]
	}
	return "thumbnail"
}

// items streams the repaired source items that pass the id filter.
func (p *Pipeline) items(ctx context.Context, log logrus.FieldLogger, cfg Config, id string, sum *Summary) iter.Seq2[*stac.Item, error] {
	params := cfg.searchParams()
	repair := RepairOptions{Collection: id, DropAssets: cfg.DropAssets}

	return func(yield func(*stac.Item, error) bool) {
		for item, err := range p.Source.Search(ctx, params) {
			if err != nil {
				yield(nil, fmt.Errorf("search %q: %w", cfg.SourceCollection, err))
				return
			}
			sum.Searched++
			if cfg.IDPrefix != "" && !strings.HasPrefix(item.ID, cfg.IDPrefix) {
				sum.Skipped++
				continue
			}
			sum.Matched++

			if ch := Repair(item, repair); ch.ClassNames > 0 || ch.BBox {
				sum.Repaired++
				log.WithFields(logrus.Fields{"item": item.ID, "class_names": ch.ClassNames, "bbox": ch.BBox}).Debug("repaired item")
			}
			if p.Signer != nil {
				if err := p.Signer.SignItem(ctx, item); err != nil {
					yield(nil, fmt.Errorf("sign item %q: %w", item.ID, err))
					return
				}
			}
			if !yield(item, nil) {
				return
			}
			if cfg.MaxItems > 0 && sum.Matched >= cfg.MaxItems {
				return
			}
		}
	}
}

func (p *Pipeline) ingest(ctx context.Context, log logrus.FieldLogger, cfg Config, id string, sum *Summary) error {
	for batch, err := range Batch(p.items(ctx, log, cfg, id, sum), cfg.BatchSize) {
		if err != nil {
			if ctx.Err() != nil || !cfg.ContinueOnError {
				return err
			}
			log.WithError(err).Warnf("search interrupted, continuing with %d items in current batch", len(batch))
			sum.SearchInterrupted = true
		}
		if len(batch) == 0 {
			continue
		}
		if sum.Batches > 0 && cfg.BatchDelay > 0 {
			if err := sleep(ctx, cfg.BatchDelay); err != nil {
				return err
			}
		}
		if err := p.submit(ctx, log, cfg, id, batch, sum); err != nil {
			return err
		}
	}
	return nil
}

func (p *Pipeline) submit(ctx context.Context, log logrus.FieldLogger, cfg Config, id string, batch []*stac.Item, sum *Summary) error {
	sum.Batches++
	blog := log.WithFields(logrus.Fields{"batch": sum.Batches, "items": len(batch)})
	blog.Info("ingesting batch")

	op, err := p.Destination.CreateItems(ctx, id, batch)
	if err != nil {
		sum.FailedBatches++
		sum.Rejected += len(batch)
		if ctx.Err() != nil || !cfg.ContinueOnError {
			return fmt.Errorf("batch %d: %w", sum.Batches, err)
		}
		blog.WithError(err).Error("batch failed")
		return nil
	}
	sum.Submitted += len(batch)
	sum.Operations = append(sum.Operations, op.ID)
	blog.WithField("operation", op.ID).Info("batch accepted")
	return nil
}

// Monitor waits for ingestion operations, logging every status change, and
// returns the poll result.
func Monitor(ctx context.Context, dest Destination, ids []string, opts geocatalog.PollOptions, log logrus.FieldLogger) (*geocatalog.PollResult, error) {
	seen := make(map[string]geocatalog.OperationStatus, len(ids))
	onStatus, onError := opts.OnStatus, opts.OnError
	opts.OnStatus = func(op *geocatalog.Operation) {
		if seen[op.ID] != op.Status {
			seen[op.ID] = op.Status
			entry := log.WithFields(logrus.Fields{"operation": op.ID, "status": op.Status})
			switch {
			case op.Status.Failed():
				if op.Error != nil {
					entry = entry.WithField("reason", op.Error.Message)
				}
				entry.Error("operation failed")
			case op.Status.Succeeded():
				entry.Info("operation completed")
			default:
				entry.Info("operation in progress")
			}
		}
		if onStatus != nil {
			onStatus(op)
		}
	}
	opts.OnError = func(id string, err error) {
		log.WithField("operation", id).WithError(err).Warn("error checking status")
		if onError != nil {
			onError(id, err)
		}
	}

	res, err := dest.WaitForOperations(ctx, ids, opts)
	if err != nil {
		return res, fmt.Errorf("monitor operations: %w", err)
	}
	entry := log.WithFields(logrus.Fields{"succeeded": len(res.Succeeded), "failed": len(res.Failed)})
	if res.TimedOut {
		entry.WithField("pending", len(res.Pending)).Warn("timed out waiting for operations")
	} else {
		entry.Info("all operations completed")
	}
	return res, nil
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
