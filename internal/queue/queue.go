package queue

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/luismateoh/Aldebaran-sub001/internal/config"
	"github.com/luismateoh/Aldebaran-sub001/internal/entities"
	"github.com/luismateoh/Aldebaran-sub001/internal/log"
	"github.com/luismateoh/Aldebaran-sub001/internal/metrics"
)

type item struct {
	entities.QueueItem
	jobID uuid.UUID
}

// Queue holds pending optimization requests and serializes their
// processing through a single drain worker. The mutex guards the item
// slice and the outcome map; popping under the mutex is the real
// serialization point.
type Queue struct {
	mu       sync.Mutex
	items    []item
	outcomes map[string]entities.ItemOutcome

	running atomic.Bool
	wake    chan struct{}

	store      ObjectStore
	fetcher    Fetcher
	transcoder Transcoder
	journal    Journal
	metrics    *metrics.QueueMetrics
	logger     *log.Logger

	perItemEstimate int
	drainDelay      time.Duration
	processTimeout  time.Duration
	previewSize     int
}

func New(cfg config.QueueConfig, store ObjectStore, fetcher Fetcher, transcoder Transcoder, journal Journal, m *metrics.QueueMetrics, logger *log.Logger) *Queue {
	preview := cfg.PreviewSize
	if preview <= 0 {
		preview = 5
	}
	return &Queue{
		outcomes:        make(map[string]entities.ItemOutcome),
		wake:            make(chan struct{}, 1),
		store:           store,
		fetcher:         fetcher,
		transcoder:      transcoder,
		journal:         journal,
		metrics:         m,
		logger:          logger,
		perItemEstimate: cfg.EstimateSeconds(),
		drainDelay:      cfg.DrainDelay(),
		processTimeout:  cfg.ProcessTimeout(),
		previewSize:     preview,
	}
}

// Enqueue appends a request to the tail of the FIFO and wakes the drain
// worker. A second enqueue for an id already queued is coalesced: the
// existing position comes back and nothing is appended. Returns the
// 1-based position and the estimated wait in seconds.
func (q *Queue) Enqueue(ctx context.Context, eventID, sourceURL string) (int, int) {
	perItem := q.perItemEstimate

	q.mu.Lock()
	for i, it := range q.items {
		if it.EventID == eventID {
			q.mu.Unlock()
			q.kick()
			return i + 1, (i + 1) * perItem
		}
	}

	it := item{
		QueueItem: entities.QueueItem{
			EventID:    eventID,
			SourceURL:  sourceURL,
			EnqueuedAt: time.Now(),
		},
		jobID: uuid.New(),
	}
	q.items = append(q.items, it)
	q.outcomes[eventID] = entities.ItemOutcome{State: entities.StatePending}
	pos := len(q.items)
	q.mu.Unlock()

	if q.journal != nil {
		if err := q.journal.RecordEnqueue(ctx, entities.OptimizationJob{
			ID:        it.jobID,
			EventID:   eventID,
			SourceURL: sourceURL,
			Status:    entities.StatePending,
		}); err != nil {
			q.logger.Warnw("journal enqueue record failed", "event_id", eventID, "error", err)
		}
	}

	if q.metrics != nil {
		q.metrics.EnqueueTotal.WithLabelValues("queued").Inc()
	}

	q.kick()
	return pos, pos * perItem
}

// kick wakes the drain worker without blocking. The channel holds one
// pending wakeup; extra kicks while a drain is running are collapsed.
func (q *Queue) kick() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// Status assembles the per-event view: queue membership, the recorded
// outcome and the object store probe.
func (q *Queue) Status(ctx context.Context, eventID string) entities.EventStatus {
	st := entities.EventStatus{EventID: eventID}

	q.mu.Lock()
	for i, it := range q.items {
		if it.EventID == eventID {
			st.InQueue = true
			pos := i + 1
			st.QueuePosition = &pos
			break
		}
	}
	outcome, seen := q.outcomes[eventID]
	q.mu.Unlock()

	if seen && outcome.State == entities.StateFailed {
		st.Failed = true
		st.LastError = outcome.Error
	}

	key := q.store.OptimizedKey(eventID)
	exists, err := q.store.Exists(ctx, key)
	if err != nil {
		q.logger.Warnw("existence probe failed", "event_id", eventID, "error", err)
		return st
	}
	if exists {
		st.Optimized = true
		url := q.store.PublicURL(key)
		st.OptimizedURL = &url
	}
	return st
}

// Snapshot is the aggregate queue view: length, whether a drain is
// running and a bounded preview of the next pending items.
func (q *Queue) Snapshot() entities.QueueSnapshot {
	preview := q.previewSize

	q.mu.Lock()
	defer q.mu.Unlock()

	n := len(q.items)
	if n < preview {
		preview = n
	}
	next := make([]entities.QueueItem, 0, preview)
	for _, it := range q.items[:preview] {
		next = append(next, it.QueueItem)
	}

	return entities.QueueSnapshot{
		Length:     n,
		Processing: q.running.Load(),
		NextItems:  next,
	}
}

// Len reports the number of queued items.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func (q *Queue) pop() (item, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return item{}, false
	}
	it := q.items[0]
	q.items = q.items[1:]
	return it, true
}

func (q *Queue) recordOutcome(eventID string, state entities.ItemState, errMsg string) {
	q.mu.Lock()
	q.outcomes[eventID] = entities.ItemOutcome{
		State:      state,
		Error:      errMsg,
		FinishedAt: time.Now(),
	}
	q.mu.Unlock()
}
