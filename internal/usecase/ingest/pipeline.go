// Package ingest drives the report pipeline: watcher events fan out to a
// pool of extraction workers, and a single consumer classifies and upserts
// the results. One writer keeps same-document ordering strict and the
// counters consistent.
package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ishan121028/RadiologyAI/internal/domain"
	"github.com/ishan121028/RadiologyAI/internal/domain/alert"
	"github.com/ishan121028/RadiologyAI/internal/domain/report"
	"github.com/ishan121028/RadiologyAI/internal/domain/triage"
	"github.com/ishan121028/RadiologyAI/internal/metrics"
	"github.com/ishan121028/RadiologyAI/internal/usecase/alertbroker"
	"github.com/ishan121028/RadiologyAI/internal/usecase/index"
	"github.com/ishan121028/RadiologyAI/internal/watcher"
)

// DefaultWorkers is the extraction pool size when config leaves it zero.
const DefaultWorkers = 4

// Extractor turns a file observation into an extraction record.
type Extractor interface {
	Extract(ctx context.Context, path, fingerprint string, content []byte, observedAt time.Time) report.Record
}

// Upserter stores a classified record.
type Upserter interface {
	Upsert(ctx context.Context, rec report.Record, res triage.Result) error
}

// Pipeline connects the watcher to extraction and indexing.
type Pipeline struct {
	events    <-chan watcher.Event
	extractor Extractor
	upserter  Upserter
	workers   int
	logger    *zap.Logger
}

// New creates a pipeline. workers <= 0 selects the default pool size.
func New(events <-chan watcher.Event, extractor Extractor, upserter Upserter, workers int, logger *zap.Logger) *Pipeline {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	return &Pipeline{
		events:    events,
		extractor: extractor,
		upserter:  upserter,
		workers:   workers,
		logger:    logger,
	}
}

// Run processes events until ctx is cancelled and the events channel is
// drained or abandoned. It returns after all workers and the consumer stop.
func (p *Pipeline) Run(ctx context.Context) {
	records := make(chan report.Record, p.workers)

	var wg sync.WaitGroup
	wg.Add(p.workers)
	for i := 0; i < p.workers; i++ {
		go func() {
			defer wg.Done()
			p.worker(ctx, records)
		}()
	}

	go func() {
		wg.Wait()
		close(records)
	}()

	p.consume(ctx, records)
}

// worker pulls events and runs extraction. Each document gets its own
// timeout inside the extractor; one slow parse never stalls the others.
func (p *Pipeline) worker(ctx context.Context, records chan<- report.Record) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-p.events:
			if !ok {
				return
			}
			rec, ok := p.extract(ctx, ev)
			if !ok {
				continue
			}
			select {
			case records <- rec:
			case <-ctx.Done():
				return
			}
		}
	}
}

func (p *Pipeline) extract(ctx context.Context, ev watcher.Event) (report.Record, bool) {
	content, err := os.ReadFile(ev.Path)
	if err != nil {
		p.logger.Warn("Failed to read announced file", zap.String("path", ev.Path), zap.Error(err))
		metrics.DocumentsProcessedTotal.WithLabelValues("error").Inc()
		return report.Record{}, false
	}

	// The file may have changed between the announcement and this read;
	// fingerprint what was actually extracted.
	fp := ev.Fingerprint
	if sum := sha256.Sum256(content); hex.EncodeToString(sum[:]) != fp {
		fp = hex.EncodeToString(sum[:])
	}

	return p.extractor.Extract(ctx, ev.Path, fp, content, ev.ObservedAt), true
}

// consume is the single writer: classification and upsert stay serialized.
func (p *Pipeline) consume(ctx context.Context, records <-chan report.Record) {
	for rec := range records {
		res := rec.Classify()
		metrics.TriageClassificationsTotal.WithLabelValues(string(res.Severity)).Inc()

		err := p.upserter.Upsert(ctx, rec, res)
		switch {
		case err == nil:
			status := "indexed"
			if rec.Degraded {
				status = "degraded"
			}
			metrics.DocumentsProcessedTotal.WithLabelValues(status).Inc()
			metrics.DocumentProcessingDuration.Observe(rec.Duration.Seconds())
			p.logger.Info("Report indexed",
				zap.String("path", rec.Identity.Path),
				zap.String("severity", string(res.Severity)),
				zap.Bool("degraded", rec.Degraded))
		case errors.Is(err, domain.ErrNotIndexable), errors.Is(err, domain.ErrStaleRecord):
			metrics.DocumentsProcessedTotal.WithLabelValues("skipped").Inc()
			p.logger.Info("Report skipped", zap.String("path", rec.Identity.Path), zap.Error(err))
		default:
			metrics.DocumentsProcessedTotal.WithLabelValues("error").Inc()
			p.logger.Error("Failed to index report", zap.String("path", rec.Identity.Path), zap.Error(err))
		}
	}
}

// NotifyBroker adapts index notifications into broker publications. New
// documents and material severity changes raise alerts; a quiet re-upsert
// of unchanged content does not reach here at all.
func NotifyBroker(broker *alertbroker.Broker) index.Observer {
	return func(n index.Notification) {
		if !n.Created && !n.SeverityChanged {
			return
		}
		broker.Publish(alert.NewEvent(&n.Entry.Record, n.Entry.Classification, time.Now().UTC()))
	}
}
