package types

import "time"

// Change is the before/after rendering of one tracked attribute.
type Change struct {
	Old string `json:"old"`
	New string `json:"new"`
}

// ChangeSet maps attribute names to their change. A missing key means the
// attribute did not change.
type ChangeSet map[string]Change

// ChangedRecord pairs the stored and freshly fetched versions of a record.
type ChangedRecord struct {
	Previous Record    `json:"previous"`
	Current  Record    `json:"current"`
	Changes  ChangeSet `json:"changes"`
}

// Report is what a single run hands to the notifiers.
type Report struct {
	New     []Record        `json:"new"`
	Changed []ChangedRecord `json:"changed"`
	RunAt   time.Time       `json:"run_at"`
}

// Empty reports whether there is nothing to deliver.
func (r Report) Empty() bool {
	return len(r.New) == 0 && len(r.Changed) == 0
}
