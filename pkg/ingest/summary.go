package ingest

import (
	"time"

	"github.com/robert-malhotra/go-stac-ingest/pkg/geocatalog"
)

// Summary counts what one run did.
type Summary struct {
	SourceCollection string
	CollectionID     string
	Thumbnail        bool

	// Searched counts items returned by the source search, Skipped those
	// dropped by the id filter and Matched those kept.
	Searched int
	Skipped  int
	Matched  int
	Repaired int

	Batches       int
	FailedBatches int
	Submitted     int
	Rejected      int
	Operations    []string

	SearchInterrupted bool

	Succeeded int
	Failed    []*geocatalog.Operation
	Pending   []string
	TimedOut  bool

	Verified   int
	VerifiedOK bool
	Duration   time.Duration
}

// Record copies the outcome of operation polling into the summary.
func (s *Summary) Record(res *geocatalog.PollResult) {
	if res == nil {
		return
	}
	s.Succeeded = len(res.Succeeded)
	s.Failed = res.Failed
	s.Pending = res.Pending
	s.TimedOut = res.TimedOut
}

// OK reports whether every batch was accepted and every operation succeeded.
func (s *Summary) OK() bool {
	return s.FailedBatches == 0 && len(s.Failed) == 0 && !s.TimedOut && !s.SearchInterrupted
}
