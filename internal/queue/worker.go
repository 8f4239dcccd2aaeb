package queue

import (
	"context"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/google/uuid"

	"github.com/luismateoh/Aldebaran-sub001/internal/entities"
	"github.com/luismateoh/Aldebaran-sub001/internal/processor"
)

type ObjectStore interface {
	Upload(ctx context.Context, key string, contentType string, payload []byte) (string, error)
	Exists(ctx context.Context, key string) (bool, error)
	PublicURL(key string) string
	OptimizedKey(eventID string) string
	ThumbKey(eventID string) string
}

type Fetcher interface {
	Fetch(ctx context.Context, sourceURL string) ([]byte, error)
}

type Transcoder interface {
	Transcode(data []byte) (*processor.TranscodeOutput, error)
}

// Journal persists per-request records. Best-effort: the queue logs a
// failed write and moves on.
type Journal interface {
	RecordEnqueue(ctx context.Context, job entities.OptimizationJob) error
	RecordOutcome(ctx context.Context, id uuid.UUID, state entities.ItemState, lastError string) error
}

// Run is the single long-lived drain worker. It blocks until the context
// is cancelled; enqueues wake it through the trigger channel. Exactly one
// Run goroutine should exist per queue.
func (q *Queue) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-q.wake:
			q.drain(ctx)
		}
	}
}

// drain processes queued items one at a time until the queue is empty.
// Failures are recorded and reported, never retried: at-most-once.
func (q *Queue) drain(ctx context.Context) {
	q.running.Store(true)
	defer q.running.Store(false)

	for {
		it, ok := q.pop()
		if !ok {
			return
		}

		pctx, cancel := context.WithTimeout(ctx, q.processTimeout)
		res, err := q.ProcessOne(pctx, it.EventID, it.SourceURL)
		cancel()

		if err != nil {
			q.logger.Errorw("optimization failed", "event_id", it.EventID, "source_url", it.SourceURL, "error", err)
			sentry.CaptureException(err)
			q.recordOutcome(it.EventID, entities.StateFailed, err.Error())
			q.journalOutcome(ctx, it.jobID, entities.StateFailed, err.Error())
			if q.metrics != nil {
				q.metrics.ProcessedTotal.WithLabelValues("failed").Inc()
			}
		} else {
			q.logger.Infow("optimization done", "event_id", it.EventID, "cached", res.Cached)
			q.recordOutcome(it.EventID, entities.StateSucceeded, "")
			q.journalOutcome(ctx, it.jobID, entities.StateSucceeded, "")
			if q.metrics != nil {
				if res.Cached {
					q.metrics.ProcessedTotal.WithLabelValues("cached").Inc()
				} else {
					q.metrics.ProcessedTotal.WithLabelValues("succeeded").Inc()
				}
			}
		}

		select {
		case <-time.After(q.drainDelay):
		case <-ctx.Done():
			return
		}
	}
}

func (q *Queue) journalOutcome(ctx context.Context, id uuid.UUID, state entities.ItemState, lastError string) {
	if q.journal == nil {
		return
	}
	if err := q.journal.RecordOutcome(ctx, id, state, lastError); err != nil {
		q.logger.Warnw("journal outcome record failed", "job_id", id, "error", err)
	}
}

// ProcessOne optimizes a single event image. An asset already in the
// bucket short-circuits: no fetch, no transcode, result marked cached.
// Never touches queue state, so the priority path can call it directly.
func (q *Queue) ProcessOne(ctx context.Context, eventID, sourceURL string) (*entities.OptimizationResult, error) {
	optKey := q.store.OptimizedKey(eventID)
	thumbKey := q.store.ThumbKey(eventID)

	exists, err := q.store.Exists(ctx, optKey)
	if err != nil {
		return nil, err
	}
	if exists {
		return &entities.OptimizationResult{
			EventID:      eventID,
			OptimizedURL: q.store.PublicURL(optKey),
			ThumbnailURL: q.store.PublicURL(thumbKey),
			Cached:       true,
		}, nil
	}

	data, err := q.fetcher.Fetch(ctx, sourceURL)
	if err != nil {
		return nil, err
	}

	out, err := q.transcoder.Transcode(data)
	if err != nil {
		return nil, err
	}

	optimizedURL, err := q.store.Upload(ctx, optKey, out.ContentType, out.Main)
	if err != nil {
		return nil, err
	}
	thumbnailURL, err := q.store.Upload(ctx, thumbKey, out.ContentType, out.Thumb)
	if err != nil {
		return nil, err
	}

	return &entities.OptimizationResult{
		EventID:          eventID,
		OptimizedURL:     optimizedURL,
		ThumbnailURL:     thumbnailURL,
		OriginalSize:     int64(len(data)),
		OptimizedSize:    int64(len(out.Main)),
		CompressionRatio: compressionRatio(len(data), len(out.Main)),
		OriginalWidth:    out.OriginalWidth,
		OriginalHeight:   out.OriginalHeight,
		Width:            out.Width,
		Height:           out.Height,
	}, nil
}

// compressionRatio is the percentage of bytes saved, clamped to [0, 100].
func compressionRatio(original, optimized int) float64 {
	if original <= 0 {
		return 0
	}
	ratio := (1 - float64(optimized)/float64(original)) * 100
	if ratio < 0 {
		return 0
	}
	if ratio > 100 {
		return 100
	}
	return ratio
}
