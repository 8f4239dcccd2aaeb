package entities

import (
	"time"

	"github.com/google/uuid"
)

// QueueItem is a pending optimization request. Items are immutable once
// enqueued; the queue only ever removes them.
type QueueItem struct {
	EventID    string    `json:"event_id"`
	SourceURL  string    `json:"source_url"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// OptimizationResult is what a completed transcode+upload produces.
type OptimizationResult struct {
	EventID          string  `json:"event_id"`
	OptimizedURL     string  `json:"optimized_url"`
	ThumbnailURL     string  `json:"thumbnail_url"`
	OriginalSize     int64   `json:"original_size"`
	OptimizedSize    int64   `json:"optimized_size"`
	CompressionRatio float64 `json:"compression_ratio"`
	OriginalWidth    int     `json:"original_width"`
	OriginalHeight   int     `json:"original_height"`
	Width            int     `json:"width"`
	Height           int     `json:"height"`
	Cached           bool    `json:"cached"`
}

type ItemState string

const (
	StatePending   ItemState = "pending"
	StateSucceeded ItemState = "succeeded"
	StateFailed    ItemState = "failed"
)

// ItemOutcome records what happened to an item after it left the queue,
// so status polling can distinguish "never processed" from "processed but
// failed".
type ItemOutcome struct {
	State      ItemState `json:"state"`
	Error      string    `json:"error,omitempty"`
	FinishedAt time.Time `json:"finished_at,omitempty"`
}

// EventStatus is the per-event view assembled from queue membership, the
// outcome record and the object store probe.
type EventStatus struct {
	EventID       string
	InQueue       bool
	QueuePosition *int
	Optimized     bool
	OptimizedURL  *string
	Failed        bool
	LastError     string
}

// QueueSnapshot is the aggregate view of the queue.
type QueueSnapshot struct {
	Length     int
	Processing bool
	NextItems  []QueueItem
}

// OptimizationJob is the persisted journal row for a single request.
// The journal is informational; queue semantics never depend on it.
type OptimizationJob struct {
	ID        uuid.UUID `json:"id"`
	EventID   string    `json:"event_id"`
	SourceURL string    `json:"source_url"`
	Priority  bool      `json:"priority"`
	Status    ItemState `json:"status"`
	LastError *string   `json:"last_error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
