// Package analytics records the outcome of not-found requests.
package analytics

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/freewebtopdf/redirector/internal/domain"
)

const maxBatch = 100

// NopRecorder discards every record
type NopRecorder struct{}

// Record implements domain.AnalyticsRecorder
func (NopRecorder) Record(context.Context, domain.HitRecord) {}

// AsyncRecorder queues records for a single background writer. Record
// never blocks: when the queue is full the record is dropped and counted.
type AsyncRecorder struct {
	sink  Sink
	queue chan domain.HitRecord

	written int64
	dropped int64
	failed  int64

	started   atomic.Bool
	startOnce sync.Once
	stopOnce  sync.Once
	stopCh    chan struct{}
	done      chan struct{}
}

// NewAsyncRecorder creates a recorder with the given queue size
func NewAsyncRecorder(sink Sink, bufferSize int) *AsyncRecorder {
	if bufferSize <= 0 {
		bufferSize = 1024
	}
	return &AsyncRecorder{
		sink:   sink,
		queue:  make(chan domain.HitRecord, bufferSize),
		stopCh: make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// Record enqueues hit without blocking
func (r *AsyncRecorder) Record(_ context.Context, hit domain.HitRecord) {
	if hit.At.IsZero() {
		hit.At = time.Now()
	}
	select {
	case r.queue <- hit:
	default:
		if n := atomic.AddInt64(&r.dropped, 1); n%1000 == 1 {
			log.Warn().Int64("dropped", n).Msg("Analytics queue full, dropping records")
		}
	}
}

// Start launches the writer
func (r *AsyncRecorder) Start(ctx context.Context) {
	r.startOnce.Do(func() {
		r.started.Store(true)
		go r.run(ctx)
	})
}

// Stop flushes queued records and waits for the writer to exit
func (r *AsyncRecorder) Stop() {
	r.stopOnce.Do(func() {
		close(r.stopCh)
	})
	if r.started.Load() {
		<-r.done
	}
}

func (r *AsyncRecorder) run(ctx context.Context) {
	defer close(r.done)

	for {
		select {
		case hit := <-r.queue:
			r.flush(ctx, r.collect(hit))
		case <-ctx.Done():
			r.drain(context.Background())
			return
		case <-r.stopCh:
			r.drain(ctx)
			return
		}
	}
}

// collect gathers whatever else is already queued, up to maxBatch
func (r *AsyncRecorder) collect(first domain.HitRecord) []domain.HitRecord {
	batch := []domain.HitRecord{first}
	for len(batch) < maxBatch {
		select {
		case hit := <-r.queue:
			batch = append(batch, hit)
		default:
			return batch
		}
	}
	return batch
}

func (r *AsyncRecorder) drain(ctx context.Context) {
	for {
		select {
		case hit := <-r.queue:
			r.flush(ctx, r.collect(hit))
		default:
			return
		}
	}
}

func (r *AsyncRecorder) flush(ctx context.Context, batch []domain.HitRecord) {
	if err := r.sink.Write(ctx, batch); err != nil {
		atomic.AddInt64(&r.failed, int64(len(batch)))
		log.Error().Err(err).Int("records", len(batch)).Msg("Failed to write analytics")
		return
	}
	atomic.AddInt64(&r.written, int64(len(batch)))
}

// Stats returns recorder counters
func (r *AsyncRecorder) Stats() map[string]any {
	return map[string]any{
		"written":  atomic.LoadInt64(&r.written),
		"dropped":  atomic.LoadInt64(&r.dropped),
		"failed":   atomic.LoadInt64(&r.failed),
		"queued":   len(r.queue),
		"capacity": cap(r.queue),
	}
}

// HealthCheck reports degraded when the queue is nearly full or writes fail
func (r *AsyncRecorder) HealthCheck(_ context.Context) domain.HealthStatus {
	details := r.Stats()
	status := domain.HealthStatusHealthy
	message := "Analytics recorder is operating normally"

	if len(r.queue) >= int(float64(cap(r.queue))*0.9) {
		status = domain.HealthStatusDegraded
		message = "Analytics queue is near capacity"
	}
	if atomic.LoadInt64(&r.failed) > 0 && atomic.LoadInt64(&r.written) == 0 {
		status = domain.HealthStatusDegraded
		message = "Analytics writes are failing"
	}

	return domain.HealthStatus{
		Status:    status,
		Message:   message,
		Details:   details,
		Timestamp: time.Now(),
	}
}
