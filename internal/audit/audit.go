// Package audit turns committed case mutations into immutable facts and delivers them to a sink
// without ever blocking or failing the mutation that produced them.
package audit

import (
	"context"
	"sync"
	"time"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/and161185/docflow/internal/metrics"
	"github.com/and161185/docflow/internal/model"
)

// DefaultBuffer is the emitter queue size used when none is configured.
const DefaultBuffer = 1024

// Event is one audited mutation. CaseVer is the case version the mutation committed.
// One process emits a case's events in commit order, but several processes can interleave,
// so sinks and readers order a case's events by CaseVer, never by arrival.
type Event struct {
	ID        uuid.UUID
	CaseID    uuid.UUID
	CaseVer   int64
	ActorID   string
	Action    model.Action
	IP        string
	Metadata  map[string]any
	Timestamp time.Time
}

// Sink persists events. Implementations may fail; the emitter logs and moves on.
type Sink interface {
	Append(ctx context.Context, e Event) error
}

// Emitter queues events and delivers them from a single goroutine in emission order.
type Emitter struct {
	sink    Sink
	log     *zap.Logger
	metrics *metrics.Metrics

	queue chan Event
	done  chan struct{}

	mu     sync.RWMutex
	closed bool
}

// NewEmitter creates an emitter with a queue of the given size. Run must be started to deliver.
func NewEmitter(sink Sink, log *zap.Logger, m *metrics.Metrics, buffer int) *Emitter {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Emitter{
		sink:    sink,
		log:     log.Named("audit"),
		metrics: m,
		queue:   make(chan Event, buffer),
		done:    make(chan struct{}),
	}
}

// Emit enqueues e. It never blocks: when the queue is full the event is dropped with a warning.
func (em *Emitter) Emit(e Event) {
	if e.ID == uuid.Nil {
		e.ID = uuid.Must(uuid.NewV4())
	}
	em.mu.RLock()
	defer em.mu.RUnlock()
	if em.closed {
		em.log.Warn("emit after close", zap.String("case_id", e.CaseID.String()), zap.String("action", string(e.Action)))
		em.metrics.AuditDropped()
		return
	}
	select {
	case em.queue <- e:
	default:
		em.log.Warn("audit buffer full, event dropped",
			zap.String("case_id", e.CaseID.String()),
			zap.Int64("case_ver", e.CaseVer),
			zap.String("action", string(e.Action)))
		em.metrics.AuditDropped()
	}
}

// Run delivers queued events until Close is called and the queue is drained.
// ctx is passed to the sink; cancelling it does not stop the drain.
func (em *Emitter) Run(ctx context.Context) {
	defer close(em.done)
	for e := range em.queue {
		em.deliver(ctx, e)
	}
}

func (em *Emitter) deliver(ctx context.Context, e Event) {
	defer func() {
		if r := recover(); r != nil {
			em.log.Error("audit sink panic", zap.Any("panic", r), zap.String("case_id", e.CaseID.String()))
			em.metrics.AuditSinkFailure()
		}
	}()
	if err := em.sink.Append(context.WithoutCancel(ctx), e); err != nil {
		em.log.Warn("audit sink append failed",
			zap.Error(err),
			zap.String("case_id", e.CaseID.String()),
			zap.Int64("case_ver", e.CaseVer),
			zap.String("action", string(e.Action)))
		em.metrics.AuditSinkFailure()
	}
}

// Close stops accepting events and waits for Run to drain the queue or for ctx to expire.
func (em *Emitter) Close(ctx context.Context) error {
	em.mu.Lock()
	if !em.closed {
		em.closed = true
		close(em.queue)
	}
	em.mu.Unlock()
	select {
	case <-em.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// FromCase builds the event for a mutation that committed c at version c.Ver.
func FromCase(c *model.Case, actor model.Actor, action model.Action, meta map[string]any, at time.Time) Event {
	return Event{
		CaseID:    c.ID,
		CaseVer:   c.Ver,
		ActorID:   actor.ID,
		Action:    action,
		IP:        actor.IP,
		Metadata:  meta,
		Timestamp: at,
	}
}
