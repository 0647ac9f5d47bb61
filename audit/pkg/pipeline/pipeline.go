// Package pipeline implements asynchronous audit record persistence.
// Producers never block: when the queue is full the newest event is
// dropped and counted.
package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog/log"

	"github.com/bl-hori/auth-platform-sub003/db/pkg/db/model"
)

const (
	// DefaultQueueSize bounds the in-flight queue.
	DefaultQueueSize = 10_000
	// DefaultWorkers is the number of batch writers.
	DefaultWorkers = 2
	// DefaultBatchSize is the max records per insert.
	DefaultBatchSize = 100
	// DefaultFlushInterval bounds how long a partial batch waits.
	DefaultFlushInterval = time.Second
	// writeTimeout is the per-batch insert budget.
	writeTimeout = 5 * time.Second
)

// RequestDigest hashes request identifying parts for correlation without
// storing payloads.
func RequestDigest(parts ...string) string {
	sum := sha256.Sum256([]byte(strings.Join(parts, "\x1f")))
	return hex.EncodeToString(sum[:])
}

// Sink persists batches of audit records. Satisfied by the audit record
// DAO.
type Sink interface {
	Write(ctx context.Context, records []model.AuditRecord) error
}

// DAOSink writes batches through the audit record DAO.
type DAOSink struct {
	dao model.AuditRecordDAO
}

// NewDAOSink creates a sink over the audit record DAO.
func NewDAOSink(dao model.AuditRecordDAO) *DAOSink {
	return &DAOSink{dao: dao}
}

// Write implements Sink.
func (s *DAOSink) Write(ctx context.Context, records []model.AuditRecord) error {
	return s.dao.CreateBatch(ctx, nil, records)
}

// Config tunes the pipeline. Zero values fall back to the defaults.
type Config struct {
	QueueSize     int
	Workers       int
	BatchSize     int
	FlushInterval time.Duration
}

// Pipeline is the async audit writer. Emit enqueues without blocking;
// workers drain the queue in batches. Close drains what is queued.
type Pipeline struct {
	sink Sink
	cfg  Config

	queue chan model.AuditRecord
	wg    sync.WaitGroup

	dropped prometheus.Counter
	written prometheus.Counter
	failed  prometheus.Counter

	// closeMu serializes Close against in-flight Emit calls so a late
	// Emit never hits a closed channel.
	closeMu  sync.RWMutex
	closed   bool
	stopOnce sync.Once
}

// New creates and starts a pipeline writing to sink. Metrics register
// against reg.
func New(cfg Config, sink Sink, reg prometheus.Registerer) *Pipeline {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = DefaultFlushInterval
	}

	factory := promauto.With(reg)
	p := &Pipeline{
		sink:  sink,
		cfg:   cfg,
		queue: make(chan model.AuditRecord, cfg.QueueSize),
		dropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "authzd_audit_dropped_total",
			Help: "Audit events dropped because the queue was full.",
		}),
		written: factory.NewCounter(prometheus.CounterOpts{
			Name: "authzd_audit_written_total",
			Help: "Audit records persisted.",
		}),
		failed: factory.NewCounter(prometheus.CounterOpts{
			Name: "authzd_audit_failed_total",
			Help: "Audit records lost to failed batch writes.",
		}),
	}
	for i := 0; i < cfg.Workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
	return p
}

// Emit enqueues one record. A full queue, like a closed pipeline, drops
// the record rather than stalling the decision path.
func (p *Pipeline) Emit(record model.AuditRecord) {
	p.closeMu.RLock()
	defer p.closeMu.RUnlock()
	if p.closed {
		p.dropped.Inc()
		return
	}
	select {
	case p.queue <- record:
	default:
		p.dropped.Inc()
	}
}

// Close stops intake and drains queued records. Blocks until workers
// finish or ctx expires.
func (p *Pipeline) Close(ctx context.Context) error {
	p.stopOnce.Do(func() {
		p.closeMu.Lock()
		p.closed = true
		close(p.queue)
		p.closeMu.Unlock()
	})

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Pipeline) worker() {
	defer p.wg.Done()

	batch := make([]model.AuditRecord, 0, p.cfg.BatchSize)
	ticker := time.NewTicker(p.cfg.FlushInterval)
	defer ticker.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		if err := p.sink.Write(ctx, batch); err != nil {
			p.failed.Add(float64(len(batch)))
			log.Error().Err(err).Int("batch", len(batch)).Msg("audit batch write failed")
		} else {
			p.written.Add(float64(len(batch)))
		}
		cancel()
		batch = batch[:0]
	}

	for {
		select {
		case record, ok := <-p.queue:
			if !ok {
				flush()
				return
			}
			batch = append(batch, record)
			if len(batch) >= p.cfg.BatchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}
