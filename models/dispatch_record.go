package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// DispatchOutcome is the terminal state of a dispatch
type DispatchOutcome string

const (
	DispatchSucceeded   DispatchOutcome = "succeeded"
	DispatchAllFailed   DispatchOutcome = "all_failed"
	DispatchNoProvider  DispatchOutcome = "no_provider"
	DispatchCancelled   DispatchOutcome = "cancelled"
	DispatchDirectedErr DispatchOutcome = "directed_failed"
)

// DispatchMode distinguishes fallback routing from directed single-provider calls
type DispatchMode string

const (
	DispatchModeFallback DispatchMode = "fallback"
	DispatchModeDirected DispatchMode = "directed"
)

// DispatchRecord is an operational log entry for one dispatch.
// It records routing decisions only, never message content.
type DispatchRecord struct {
	ID         uuid.UUID       `json:"id" db:"id"`
	DispatchID string          `json:"dispatch_id" db:"dispatch_id"`
	RequestID  string          `json:"request_id" db:"request_id"`
	Mode       DispatchMode    `json:"mode" db:"mode"`
	Provider   *string         `json:"provider,omitempty" db:"provider"`
	Outcome    DispatchOutcome `json:"outcome" db:"outcome"`
	Attempts   json.RawMessage `json:"attempts" db:"attempts"` // JSONB [{provider, error}]
	Skipped    []string        `json:"skipped" db:"skipped"`
	LatencyMs  int             `json:"latency_ms" db:"latency_ms"`
	CreatedAt  time.Time       `json:"created_at" db:"created_at"`
}

// TableName returns the table name for the DispatchRecord model
func (DispatchRecord) TableName() string {
	return "ai_dispatch_log"
}

// NewDispatchRecord creates a new DispatchRecord instance
func NewDispatchRecord(dispatchID string, mode DispatchMode, outcome DispatchOutcome) *DispatchRecord {
	return &DispatchRecord{
		ID:         uuid.New(),
		DispatchID: dispatchID,
		Mode:       mode,
		Outcome:    outcome,
		Attempts:   json.RawMessage("[]"),
		Skipped:    []string{},
		CreatedAt:  time.Now(),
	}
}

// WithProvider sets the provider that served the request
func (d *DispatchRecord) WithProvider(provider string) *DispatchRecord {
	d.Provider = &provider
	return d
}

// WithRequestID sets the originating HTTP request id
func (d *DispatchRecord) WithRequestID(requestID string) *DispatchRecord {
	d.RequestID = requestID
	return d
}

// WithLatency sets the time spent selecting a provider
func (d *DispatchRecord) WithLatency(latency time.Duration) *DispatchRecord {
	d.LatencyMs = int(latency.Milliseconds())
	return d
}
