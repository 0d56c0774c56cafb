package capture

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"github.com/prometheus/client_golang/prometheus"
)

// TransmissionError is returned by Queue.Send after the retry budget for one
// snapshot is exhausted. The snapshot is retained in the pending list, never
// dropped: data loss is the worst failure mode for a fraud-signal pipeline.
type TransmissionError struct {
	Attempts int
	Err      error
}

func (e *TransmissionError) Error() string {
	return fmt.Sprintf("transmission failed after %d attempts: %s", e.Attempts, e.Err)
}

func (e *TransmissionError) Unwrap() error {
	return e.Err
}

// Queue serializes finalized BehaviorData snapshots and transmits them to the
// remote persistence endpoint with exactly-once enqueue semantics from the
// client's point of view: a snapshot ID already seen is never enqueued twice,
// even under flush retry.
type Queue struct {
	uploader    Uploader
	maxAttempts int

	mu      sync.Mutex
	pending []*BehaviorData
	// record IDs already accepted by Send; stops double-enqueue under retry
	seen *ttlcache.Cache[string, struct{}]

	// sleep between retries, swappable in tests
	sleep func(time.Duration)

	attemptsTotal prometheus.Counter
	pendingDepth  prometheus.Gauge
}

// NewQueue creates a flush queue. maxAttempts bounds the retry loop for a single
// Send call; exhausted snapshots move to the pending list and are retried on the
// next successful flush cycle.
func NewQueue(uploader Uploader, maxAttempts int, enablePrometheus bool) *Queue {
	q := &Queue{
		uploader:    uploader,
		maxAttempts: maxAttempts,
		seen: ttlcache.New[string, struct{}](
			ttlcache.WithTTL[string, struct{}](30*time.Minute),
			ttlcache.WithDisableTouchOnHit[string, struct{}](),
		),
		sleep: time.Sleep,
	}
	go q.seen.Start()
	if enablePrometheus {
		q.attemptsTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "behaviorsync",
			Subsystem: "capture",
			Name:      "flush_attempts_total",
			Help:      "Number of upload attempts made by the flush queue.",
		})
		q.pendingDepth = prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "behaviorsync",
			Subsystem: "capture",
			Name:      "flush_pending",
			Help:      "Snapshots retained after retry exhaustion, awaiting the next cycle.",
		})
		prometheus.MustRegister(q.attemptsTotal, q.pendingDepth)
	}
	return q
}

func (q *Queue) Stop() {
	q.seen.Stop()
	if q.attemptsTotal != nil {
		prometheus.Unregister(q.attemptsTotal)
		prometheus.Unregister(q.pendingDepth)
	}
}

// Send transmits one snapshot. On success it also drains the pending list. On
// retry exhaustion the snapshot joins the pending list and a TransmissionError
// is returned.
func (q *Queue) Send(ctx context.Context, data *BehaviorData) error {
	if data == nil {
		return nil
	}
	q.mu.Lock()
	if q.seen.Get(data.ID) != nil {
		q.mu.Unlock()
		logger.Debug().Str("record", data.ID).Msg("flush queue: snapshot already enqueued, skipping")
		return nil
	}
	q.seen.Set(data.ID, struct{}{}, ttlcache.DefaultTTL)
	q.mu.Unlock()

	if err := q.upload(ctx, data); err != nil {
		q.retain(data)
		return err
	}
	q.drainPending(ctx)
	return nil
}

// upload attempts one snapshot with exponential backoff, poller-style: wait
// 2^fails seconds between attempts.
func (q *Queue) upload(ctx context.Context, data *BehaviorData) error {
	var lastErr error
	for attempt := 0; attempt < q.maxAttempts; attempt++ {
		if attempt > 0 {
			waitTime := time.Duration(math.Pow(2, float64(attempt))) * time.Second
			logger.Warn().Str("duration", waitTime.String()).Str("record", data.ID).Msg("waiting before next upload attempt")
			q.sleep(waitTime)
		}
		if err := ctx.Err(); err != nil {
			return &TransmissionError{Attempts: attempt, Err: err}
		}
		if q.attemptsTotal != nil {
			q.attemptsTotal.Inc()
		}
		lastErr = q.uploader.Upload(ctx, data)
		if lastErr == nil {
			return nil
		}
		logger.Warn().Err(lastErr).Str("record", data.ID).Msg("upload attempt failed")
	}
	return &TransmissionError{Attempts: q.maxAttempts, Err: lastErr}
}

func (q *Queue) retain(data *BehaviorData) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pending = append(q.pending, data)
	if q.pendingDepth != nil {
		q.pendingDepth.Set(float64(len(q.pending)))
	}
	logger.Info().Str("record", data.ID).Int("pending", len(q.pending)).Msg("snapshot retained for next flush cycle")
}

// drainPending retries snapshots left over from exhausted cycles. Each gets a
// single attempt here; failures stay pending.
func (q *Queue) drainPending(ctx context.Context) {
	q.mu.Lock()
	queued := q.pending
	q.pending = nil
	q.mu.Unlock()

	var stillPending []*BehaviorData
	for _, data := range queued {
		if q.attemptsTotal != nil {
			q.attemptsTotal.Inc()
		}
		if err := q.uploader.Upload(ctx, data); err != nil {
			logger.Warn().Err(err).Str("record", data.ID).Msg("pending snapshot retry failed")
			stillPending = append(stillPending, data)
		}
	}
	q.mu.Lock()
	q.pending = append(stillPending, q.pending...)
	if q.pendingDepth != nil {
		q.pendingDepth.Set(float64(len(q.pending)))
	}
	q.mu.Unlock()
}

// PendingCount reports how many snapshots await the next successful cycle.
func (q *Queue) PendingCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Session ties a Recorder to a Queue: the complete capture pipeline for one
// session. Flush is triggered explicitly (e.g on onboarding step completion) or
// by a PeriodicFlusher.
type Session struct {
	Recorder *Recorder
	Queue    *Queue
}

func NewSession(rec *Recorder, q *Queue) *Session {
	return &Session{Recorder: rec, Queue: q}
}

// Flush snapshots the session and transmits the snapshot. On TransmissionError
// the snapshot is already retained by the queue: it is retried on the next
// cycle, not discarded. The returned BehaviorData is non-nil whenever a snapshot
// was taken, even if transmission failed.
func (s *Session) Flush(ctx context.Context) (*BehaviorData, error) {
	data := s.Recorder.Snapshot()
	if data == nil {
		return nil, nil
	}
	err := s.Queue.Send(ctx, data)
	s.Recorder.FlushDone()
	return data, err
}

// PeriodicFlusher invokes a flush callback every interval until stopped. A zero
// interval disables the ticker; Run returns immediately, which is useful for
// tests driving flushes manually.
type PeriodicFlusher struct {
	ticker *time.Ticker
	done   chan struct{}
	fn     func()
}

func NewPeriodicFlusher(d time.Duration, fn func()) *PeriodicFlusher {
	pf := &PeriodicFlusher{
		done: make(chan struct{}),
		fn:   fn,
	}
	if d != 0 {
		pf.ticker = time.NewTicker(d)
	}
	return pf
}

// Blocks until Stop() is called, flushing on every tick.
func (p *PeriodicFlusher) Run() {
	if p.ticker == nil {
		return
	}
	for {
		select {
		case <-p.done:
			return
		case <-p.ticker.C:
			p.fn()
		}
	}
}

// Stop ticking.
func (p *PeriodicFlusher) Stop() {
	if p.ticker != nil {
		p.ticker.Stop()
	}
	close(p.done)
}
