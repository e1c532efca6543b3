package analytics

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Trimmer periodically caps the stats table at a fixed number of rows
type Trimmer struct {
	sink     *GormSink
	limit    int
	interval time.Duration

	stopOnce sync.Once
	stopCh   chan struct{}
}

// NewTrimmer creates a trimmer keeping at most limit rows
func NewTrimmer(sink *GormSink, limit int, interval time.Duration) *Trimmer {
	if interval <= 0 {
		interval = time.Hour
	}
	return &Trimmer{
		sink:     sink,
		limit:    limit,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start begins the background trim loop
func (t *Trimmer) Start(ctx context.Context) {
	go t.loop(ctx)
}

// Stop stops the background trim loop
func (t *Trimmer) Stop() {
	t.stopOnce.Do(func() {
		close(t.stopCh)
	})
}

func (t *Trimmer) loop(ctx context.Context) {
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.stopCh:
			return
		case <-ticker.C:
			if _, err := t.Trim(ctx); err != nil {
				log.Warn().Err(err).Msg("Analytics trim failed")
			}
		}
	}
}

// Trim removes the least recently hit rows over the limit
func (t *Trimmer) Trim(ctx context.Context) (int64, error) {
	if t.limit <= 0 {
		return 0, nil
	}
	removed, err := t.sink.Trim(ctx, t.limit)
	if err != nil {
		return 0, err
	}
	if removed > 0 {
		log.Info().Int64("removed", removed).Int("limit", t.limit).Msg("Trimmed analytics rows")
	}
	return removed, nil
}
