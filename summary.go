package lake

import (
	"time"
)

// RunSummary describes what a run read, skipped and wrote.
type RunSummary struct {
	RunID    string    `json:"run_id"`
	Started  time.Time `json:"started"`
	Finished time.Time `json:"finished"`
	Input    string    `json:"input"`
	Output   string    `json:"output"`
	Timezone string    `json:"timezone"`

	SongRecords  int64 `json:"song_records"`
	EventRecords int64 `json:"event_records"`

	// Records skipped because they could not be decoded.
	ParseErrors int64 `json:"parse_errors"`
	// Song play events skipped from time and songplays for a bad timestamp.
	InvalidTimestamps int64 `json:"invalid_timestamps"`
	// Events which are not song plays.
	EventsFiltered int64 `json:"events_filtered"`
	// Song play events whose artist is not in the catalog.
	JoinMisses int64 `json:"join_misses"`

	Tables []TableSummary `json:"tables"`

	// Error is set if the run failed, naming the stage that failed.
	Error string `json:"error,omitempty"`
}

// TableSummary describes one written table.
type TableSummary struct {
	Name       string `json:"name"`
	Rows       int64  `json:"rows"`
	Partitions int    `json:"partitions"`
	Files      int    `json:"files"`
}

// Succeeded returns true if the run wrote all of its tables.
func (r *RunSummary) Succeeded() bool { return r.Error == "" }

// Table returns the summary for the named table, if it was written.
func (r *RunSummary) Table(name string) (TableSummary, bool) {
	for _, t := range r.Tables {
		if t.Name == name {
			return t, true
		}
	}
	return TableSummary{}, false
}
