package main

import (
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/robert-malhotra/go-stac-ingest/pkg/geocatalog"
	"github.com/robert-malhotra/go-stac-ingest/pkg/ingest"
)

func newTable(w io.Writer, header ...string) *tablewriter.Table {
	tw := tablewriter.NewWriter(w)
	tw.SetHeader(header)
	tw.SetAutoWrapText(false)
	tw.SetAlignment(tablewriter.ALIGN_LEFT)
	return tw
}

// writeSummary renders the run summary as a two-column table.
func writeSummary(w io.Writer, sum *ingest.Summary) error {
	if sum == nil {
		return nil
	}
	verified := "n/a"
	if sum.VerifiedOK {
		verified = strconv.Itoa(sum.Verified)
	}
	failed := make([]string, len(sum.Failed))
	for i, op := range sum.Failed {
		failed[i] = op.ID
	}

	rows := [][]string{
		{"Source collection", sum.SourceCollection},
		{"Collection", sum.CollectionID},
		{"Thumbnail", yesNo(sum.Thumbnail)},
		{"Items searched", strconv.Itoa(sum.Searched)},
		{"Items skipped", strconv.Itoa(sum.Skipped)},
		{"Items repaired", strconv.Itoa(sum.Repaired)},
		{"Items submitted", strconv.Itoa(sum.Submitted)},
		{"Items rejected", strconv.Itoa(sum.Rejected)},
		{"Batches", strconv.Itoa(sum.Batches)},
		{"Failed batches", strconv.Itoa(sum.FailedBatches)},
		{"Operations succeeded", strconv.Itoa(sum.Succeeded)},
		{"Operations failed", strings.Join(failed, ", ")},
		{"Operations pending", strings.Join(sum.Pending, ", ")},
		{"Verified items", verified},
		{"Duration", sum.Duration.Round(time.Millisecond).String()},
	}
	if sum.SearchInterrupted {
		rows = append(rows, []string{"Search", "interrupted"})
	}

	tw := newTable(w, "Step", "Result")
	tw.AppendBulk(rows)
	tw.Render()
	return nil
}

// writeOperations renders the last known status of each operation.
func writeOperations(w io.Writer, ids []string, latest map[string]*geocatalog.Operation) error {
	tw := newTable(w, "Operation", "Status", "Detail")
	for _, id := range ids {
		op, ok := latest[id]
		if !ok {
			tw.Append([]string{id, "unknown", ""})
			continue
		}
		detail := ""
		if op.Error != nil {
			detail = op.Error.Message
		}
		tw.Append([]string{id, string(op.Status), detail})
	}
	tw.Render()
	return nil
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
