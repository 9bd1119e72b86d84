package domain

import "time"

// Status is the dispatcher progress saved after every cycle.
type Status struct {
	// LastCycle is when the last cycle finished.
	LastCycle time.Time `json:"last_cycle"`

	// Cycles counts finished cycles.
	Cycles uint64 `json:"cycles"`

	// Appended counts records moved from the spool into the archive.
	Appended uint64 `json:"appended"`

	// Rejected counts submissions set aside because the archive could
	// never take one of their records.
	Rejected uint64 `json:"rejected"`

	// Executed counts records executed and removed.
	Executed uint64 `json:"executed"`

	// Failed counts executor failures.
	Failed uint64 `json:"failed"`

	// LastExecuted is the timestamp of the last executed record.
	LastExecuted time.Time `json:"last_executed,omitempty"`

	// ArchiveBytes is the archive size at the end of the last cycle.
	ArchiveBytes int64 `json:"archive_bytes"`

	// Faults is the archive fault count at the end of the last cycle.
	Faults uint64 `json:"faults"`

	// LastError is the error that ended the last failed cycle, if any.
	LastError string `json:"last_error,omitempty"`
}

// RecordCycle updates the status after a cycle.
func (s *Status) RecordCycle(at time.Time, err error) {
	s.LastCycle = at
	s.Cycles++
	s.LastError = ""
	if err != nil {
		s.LastError = err.Error()
	}
}
