package refresh

import (
	goerrors "github.com/goliatone/go-errors"

	"github.com/goliatone/go-bgg-cache/thing"
)

// BatchFailure describes one batch that was not fully written.
type BatchFailure struct {
	Index int
	IDs   []string
	Err   error
}

// Report summarizes a refresh run.
type Report struct {
	// Refreshed holds every record written, in write order.
	Refreshed []*thing.Thing
	// Batches counts batches sent to the gateway.
	Batches       int
	FailedBatches []BatchFailure
	// RejectedRecords counts records that failed validation.
	RejectedRecords int
	RecordErrors    []*goerrors.Error
	// Interrupted is set when the context ended before all batches ran.
	Interrupted bool
}

// Partial reports whether any requested work was left undone.
func (r Report) Partial() bool {
	return r.Interrupted || len(r.FailedBatches) > 0 || r.RejectedRecords > 0
}

// RefreshedIDs returns the ids of the written records.
func (r Report) RefreshedIDs() []string {
	ids := make([]string, len(r.Refreshed))
	for i, t := range r.Refreshed {
		ids[i] = t.ID
	}
	return ids
}

// FailedIDs returns the ids of every failed batch, in batch order.
func (r Report) FailedIDs() []string {
	var ids []string
	for _, f := range r.FailedBatches {
		ids = append(ids, f.IDs...)
	}
	return ids
}
