package queue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/luismateoh/Aldebaran-sub001/internal/config"
	"github.com/luismateoh/Aldebaran-sub001/internal/fetcher"
	"github.com/luismateoh/Aldebaran-sub001/internal/log"
	"github.com/luismateoh/Aldebaran-sub001/internal/processor"
)

type stubStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	headErr error
}

func newStubStore() *stubStore {
	return &stubStore{objects: make(map[string][]byte)}
}

func (s *stubStore) OptimizedKey(eventID string) string {
	return "eventos/" + eventID + "_optimized.webp"
}

func (s *stubStore) ThumbKey(eventID string) string {
	return "eventos/" + eventID + "_thumb.webp"
}

func (s *stubStore) PublicURL(key string) string {
	return "https://cdn.test/" + key
}

func (s *stubStore) Exists(ctx context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.headErr != nil {
		return false, s.headErr
	}
	_, ok := s.objects[key]
	return ok, nil
}

func (s *stubStore) Upload(ctx context.Context, key string, contentType string, payload []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = payload
	return s.PublicURL(key), nil
}

type stubFetcher struct {
	mu    sync.Mutex
	calls int
	data  []byte
	err   error
}

func (f *stubFetcher) Fetch(ctx context.Context, sourceURL string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.data, nil
}

func (f *stubFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type stubTranscoder struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (t *stubTranscoder) Transcode(data []byte) (*processor.TranscodeOutput, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.calls++
	if t.err != nil {
		return nil, t.err
	}
	return &processor.TranscodeOutput{
		Main:           []byte("main"),
		Thumb:          []byte("th"),
		ContentType:    "image/webp",
		OriginalWidth:  2000,
		OriginalHeight: 1000,
		Width:          1200,
		Height:         600,
	}, nil
}

func (t *stubTranscoder) callCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.calls
}

func newTestQueue(store *stubStore, f *stubFetcher, t *stubTranscoder) *Queue {
	q := New(config.QueueConfig{PerItemEstimateSeconds: 30}, store, f, t, nil, nil, log.NewNop())
	q.drainDelay = time.Millisecond
	return q
}

func TestEnqueueEmptyQueueReturnsPositionOne(t *testing.T) {
	q := newTestQueue(newStubStore(), &stubFetcher{}, &stubTranscoder{})

	pos, estimate := q.Enqueue(context.Background(), "evt1", "https://example.com/a.jpg")
	if pos != 1 {
		t.Fatalf("expected position 1, got %d", pos)
	}
	if estimate > 30 {
		t.Fatalf("expected estimate <= 30, got %d", estimate)
	}
}

func TestEnqueuePositionsAreFIFO(t *testing.T) {
	q := newTestQueue(newStubStore(), &stubFetcher{}, &stubTranscoder{})

	ids := []string{"a", "b", "c", "d"}
	for i, id := range ids {
		pos, estimate := q.Enqueue(context.Background(), id, "https://example.com/"+id+".jpg")
		if pos != i+1 {
			t.Fatalf("enqueue %q: expected position %d, got %d", id, i+1, pos)
		}
		if estimate != (i+1)*30 {
			t.Fatalf("enqueue %q: expected estimate %d, got %d", id, (i+1)*30, estimate)
		}
	}
}

func TestEnqueueCoalescesDuplicates(t *testing.T) {
	q := newTestQueue(newStubStore(), &stubFetcher{}, &stubTranscoder{})

	q.Enqueue(context.Background(), "evt1", "https://example.com/a.jpg")
	q.Enqueue(context.Background(), "evt2", "https://example.com/b.jpg")

	pos, _ := q.Enqueue(context.Background(), "evt1", "https://example.com/a.jpg")
	if pos != 1 {
		t.Fatalf("expected duplicate enqueue to return existing position 1, got %d", pos)
	}
	if q.Len() != 2 {
		t.Fatalf("expected queue length 2 after duplicate enqueue, got %d", q.Len())
	}
}

func TestStatusUnknownEvent(t *testing.T) {
	q := newTestQueue(newStubStore(), &stubFetcher{}, &stubTranscoder{})

	st := q.Status(context.Background(), "nope")
	if st.InQueue || st.QueuePosition != nil || st.Optimized || st.OptimizedURL != nil || st.Failed {
		t.Fatalf("expected empty status for unknown event, got %+v", st)
	}
}

func TestStatusAfterEnqueue(t *testing.T) {
	q := newTestQueue(newStubStore(), &stubFetcher{}, &stubTranscoder{})

	q.Enqueue(context.Background(), "evt1", "https://example.com/a.jpg")

	st := q.Status(context.Background(), "evt1")
	if !st.InQueue {
		t.Fatal("expected event in queue")
	}
	if st.QueuePosition == nil || *st.QueuePosition != 1 {
		t.Fatalf("expected queue position 1, got %v", st.QueuePosition)
	}
	if st.Optimized {
		t.Fatal("expected not optimized before drain")
	}
}

func TestProcessOneCachedShortCircuit(t *testing.T) {
	store := newStubStore()
	f := &stubFetcher{data: []byte("imgdata")}
	tc := &stubTranscoder{}
	q := newTestQueue(store, f, tc)

	first, err := q.ProcessOne(context.Background(), "evt1", "https://example.com/a.jpg")
	if err != nil {
		t.Fatalf("first ProcessOne: %v", err)
	}
	if tc.callCount() != 1 {
		t.Fatalf("expected 1 transcode, got %d", tc.callCount())
	}

	second, err := q.ProcessOne(context.Background(), "evt1", "https://example.com/a.jpg")
	if err != nil {
		t.Fatalf("second ProcessOne: %v", err)
	}
	if !second.Cached {
		t.Fatal("expected second result to be cached")
	}
	if tc.callCount() != 1 {
		t.Fatalf("cached path should not transcode again, got %d calls", tc.callCount())
	}
	if first.OptimizedURL != second.OptimizedURL {
		t.Fatalf("expected same URL, got %q and %q", first.OptimizedURL, second.OptimizedURL)
	}
}

func TestDrainEmptiesQueueDespiteFailures(t *testing.T) {
	store := newStubStore()
	f := &stubFetcher{err: &fetcher.FetchError{URL: "https://example.com/a.jpg", Status: 503}}
	q := newTestQueue(store, f, &stubTranscoder{})

	q.Enqueue(context.Background(), "evt1", "https://example.com/a.jpg")
	q.Enqueue(context.Background(), "evt2", "https://example.com/b.jpg")

	q.drain(context.Background())

	if q.Len() != 0 {
		t.Fatalf("expected empty queue after drain, got %d", q.Len())
	}
	if q.running.Load() {
		t.Fatal("expected running flag false after drain")
	}
}

func TestFailedItemIsDroppedNotRetried(t *testing.T) {
	store := newStubStore()
	f := &stubFetcher{err: &fetcher.FetchError{URL: "https://example.com/c.jpg", Status: 500}}
	q := newTestQueue(store, f, &stubTranscoder{})

	q.Enqueue(context.Background(), "evt3", "https://example.com/c.jpg")
	q.drain(context.Background())

	if got := f.callCount(); got != 1 {
		t.Fatalf("expected exactly one fetch attempt, got %d", got)
	}

	st := q.Status(context.Background(), "evt3")
	if st.Optimized {
		t.Fatal("expected optimized false after failure")
	}
	if !st.Failed || st.LastError == "" {
		t.Fatalf("expected failure recorded in status, got %+v", st)
	}
	if q.Len() != 0 {
		t.Fatalf("expected item dropped, queue length %d", q.Len())
	}
}

func TestPriorityPathDoesNotTouchQueue(t *testing.T) {
	store := newStubStore()
	f := &stubFetcher{data: []byte("imgdata")}
	q := newTestQueue(store, f, &stubTranscoder{})

	q.Enqueue(context.Background(), "a", "https://example.com/a.jpg")
	q.Enqueue(context.Background(), "b", "https://example.com/b.jpg")
	q.Enqueue(context.Background(), "c", "https://example.com/c.jpg")

	if _, err := q.ProcessOne(context.Background(), "x", "https://example.com/x.jpg"); err != nil {
		t.Fatalf("priority ProcessOne: %v", err)
	}

	if q.Len() != 3 {
		t.Fatalf("expected queue length unchanged at 3, got %d", q.Len())
	}
}

func TestDrainWorkerProcessesEnqueuedItems(t *testing.T) {
	store := newStubStore()
	f := &stubFetcher{data: []byte("imgdata")}
	q := newTestQueue(store, f, &stubTranscoder{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		_ = q.Run(ctx)
		close(done)
	}()

	q.Enqueue(context.Background(), "evt1", "https://example.com/a.jpg")

	deadline := time.After(5 * time.Second)
	for {
		st := q.Status(context.Background(), "evt1")
		if st.Optimized {
			if st.OptimizedURL == nil || *st.OptimizedURL == "" {
				t.Fatal("expected optimized URL once processed")
			}
			break
		}
		select {
		case <-deadline:
			t.Fatal("timed out waiting for drain to process item")
		case <-time.After(10 * time.Millisecond):
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop on context cancel")
	}
}

func TestSnapshotPreviewIsBounded(t *testing.T) {
	q := newTestQueue(newStubStore(), &stubFetcher{}, &stubTranscoder{})

	for _, id := range []string{"a", "b", "c", "d", "e", "f", "g"} {
		q.Enqueue(context.Background(), id, "https://example.com/"+id+".jpg")
	}

	snap := q.Snapshot()
	if snap.Length != 7 {
		t.Fatalf("expected length 7, got %d", snap.Length)
	}
	if len(snap.NextItems) != 5 {
		t.Fatalf("expected preview of 5, got %d", len(snap.NextItems))
	}
	if snap.NextItems[0].EventID != "a" {
		t.Fatalf("expected FIFO preview head %q, got %q", "a", snap.NextItems[0].EventID)
	}
}

func TestStatusProbeErrorIsNotOptimized(t *testing.T) {
	store := newStubStore()
	store.headErr = errors.New("bucket unavailable")
	q := newTestQueue(store, &stubFetcher{}, &stubTranscoder{})

	st := q.Status(context.Background(), "evt1")
	if st.Optimized {
		t.Fatal("probe failure must not report optimized")
	}
}

func TestCompressionRatioBounds(t *testing.T) {
	cases := []struct {
		original, optimized int
		want                float64
	}{
		{1000, 250, 75},
		{0, 10, 0},
		{100, 200, 0},
		{100, 0, 100},
	}
	for _, c := range cases {
		if got := compressionRatio(c.original, c.optimized); got != c.want {
			t.Errorf("compressionRatio(%d, %d) = %v, want %v", c.original, c.optimized, got, c.want)
		}
	}
}

var _ Transcoder = (*stubTranscoder)(nil)
var _ Fetcher = (*stubFetcher)(nil)
var _ ObjectStore = (*stubStore)(nil)
