package handler

import "time"

// OptimizeRequest is the POST /api/optimize body.
type OptimizeRequest struct {
	EventID  string `json:"eventId" validate:"required"`
	ImageURL string `json:"imageUrl" validate:"required,url"`
	Priority bool   `json:"priority"`
}

// QueuedResponse is returned when the request was appended to the queue.
type QueuedResponse struct {
	Success       bool `json:"success"`
	QueuePosition int  `json:"queuePosition"`
	EstimatedTime int  `json:"estimatedTime"` // seconds
}

// PriorityResponse is returned when the request was processed inline.
type PriorityResponse struct {
	Success          bool    `json:"success"`
	OptimizedURL     string  `json:"optimizedUrl"`
	ThumbnailURL     string  `json:"thumbnailUrl"`
	OriginalSize     int64   `json:"originalSize"`
	OptimizedSize    int64   `json:"optimizedSize"`
	CompressionRatio float64 `json:"compressionRatio"`
	Cached           bool    `json:"cached"`
}

// StatusResponse is the per-event view for GET /api/optimize?eventId=...
type StatusResponse struct {
	EventID       string  `json:"eventId"`
	InQueue       bool    `json:"inQueue"`
	QueuePosition *int    `json:"queuePosition"`
	Optimized     bool    `json:"optimized"`
	OptimizedURL  *string `json:"optimizedUrl"`
	Failed        bool    `json:"failed,omitempty"`
	LastError     string  `json:"lastError,omitempty"`

	// History lists the most recent journal rows for the event, newest
	// first. It is absent when the journal is unavailable.
	History []JobHistoryItem `json:"history,omitempty"`
}

// JobHistoryItem is one journal row in a StatusResponse.
type JobHistoryItem struct {
	ID        string    `json:"id"`
	Priority  bool      `json:"priority"`
	Status    string    `json:"status"`
	LastError string    `json:"lastError,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// QueueViewResponse is the aggregate view for GET /api/optimize.
type QueueViewResponse struct {
	QueueLength int               `json:"queueLength"`
	Processing  bool              `json:"processing"`
	NextItems   []QueuePreviewItem `json:"nextItems"`
}

type QueuePreviewItem struct {
	EventID   string    `json:"eventId"`
	Timestamp time.Time `json:"timestamp"`
}
