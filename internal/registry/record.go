package registry

import (
	"sync"
	"time"
)

// Status is the health classification of a backend.
type Status string

const (
	// StatusHealthy means the most recent probe got a 2xx within the timeout.
	StatusHealthy Status = "healthy"
	// StatusUnhealthy means the most recent probe failed, timed out, or
	// returned a non-2xx status.
	StatusUnhealthy Status = "unhealthy"
	// StatusUnknown means no probe has completed yet.
	StatusUnknown Status = "unknown"
)

// HealthRecord is the outcome of the most recently completed probe for
// one backend.
type HealthRecord struct {
	Status           Status        `json:"status"`
	LastCheckedAt    time.Time     `json:"lastCheckedAt"`
	LastResponseTime time.Duration `json:"lastResponseTime"`
	LastError        string        `json:"lastError,omitempty"`
}

// recordCell owns the HealthRecord for a single backend. Writes carry a
// probe sequence number, claimed when the probe is launched; a probe
// that completes after a later-launched probe already wrote its result
// is discarded, so a slow probe can never overwrite a fresher outcome.
type recordCell struct {
	mu         sync.Mutex
	nextSeq    uint64
	writtenSeq uint64
	record     HealthRecord
}

func newRecordCell() *recordCell {
	return &recordCell{
		record: HealthRecord{Status: StatusUnknown},
	}
}

// claim reserves a sequence number for a probe about to launch.
func (c *recordCell) claim() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextSeq++
	return c.nextSeq
}

// store writes the probe result unless a newer probe already wrote.
// Returns whether the write was applied.
func (c *recordCell) store(seq uint64, record HealthRecord) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if seq <= c.writtenSeq {
		return false
	}
	c.writtenSeq = seq
	c.record = record
	return true
}

// load returns a copy of the current record.
func (c *recordCell) load() HealthRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.record
}
