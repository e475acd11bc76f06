package outbox

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lucasdpb/satchel/internal/bus"
	"github.com/lucasdpb/satchel/internal/metrics"
	"github.com/lucasdpb/satchel/internal/store"
	"go.uber.org/zap"
)

// Submitter delivers one pending operation to its original server
// endpoint.
type Submitter interface {
	Submit(ctx context.Context, op *store.PendingOperation) error
}

// Failure records one operation that could not be delivered during a
// replay cycle. The operation stays queued for the next cycle.
type Failure struct {
	OpID   string `json:"operation_id"`
	Target string `json:"target"`
	Reason string `json:"reason"`
}

// ReplayReport summarizes one replay cycle.
type ReplayReport struct {
	Attempted int       `json:"attempted"`
	Delivered int       `json:"delivered"`
	Failures  []Failure `json:"failures,omitempty"`
}

// Queue is the durable pending-operation queue. Operations enqueued
// while offline are replayed sequentially, in enqueue order, when
// connectivity returns. Delivery is at-least-once: a crash between
// server acknowledgement and local delete causes a duplicate replay,
// which the server deduplicates by idempotency key.
type Queue struct {
	db        *store.DB
	submitter Submitter
	bus       *bus.Bus
	logger    *zap.Logger
	rec       *metrics.Recorder

	// replayMu serializes replay cycles; replay is sequential within
	// one queue.
	replayMu sync.Mutex
	cancel   context.CancelFunc
}

// NewQueue creates a pending-operation queue over the durable store.
func NewQueue(db *store.DB, submitter Submitter, b *bus.Bus, logger *zap.Logger, rec *metrics.Recorder) *Queue {
	return &Queue{
		db:        db,
		submitter: submitter,
		bus:       b,
		logger:    logger,
		rec:       rec,
	}
}

// Enqueue persists a not-yet-confirmed mutation and returns its assigned
// operation id. The payload is opaque and forwarded verbatim on replay.
// Satisfies the cache engine's Enqueuer.
func (q *Queue) Enqueue(_ context.Context, method, target string, headers map[string]string, body []byte) (string, error) {
	op := &store.PendingOperation{
		OpID:           uuid.NewString(),
		IdempotencyKey: uuid.NewString(),
		Method:         method,
		Target:         target,
		Headers:        headers,
		Body:           body,
		CreatedAt:      time.Now().UnixMilli(),
	}
	if err := q.db.EnqueueOperation(op); err != nil {
		return "", err
	}

	q.logger.Info("operation enqueued",
		zap.String("op_id", op.OpID),
		zap.String("method", method),
		zap.String("target", target))
	q.publishDepth()
	q.bus.Publish(bus.Event{
		Kind:      "outbox.enqueued",
		Timestamp: time.Now(),
		Payload:   map[string]string{"op_id": op.OpID, "target": target},
	})
	return op.OpID, nil
}

// Pending returns the queued operations in enqueue order.
func (q *Queue) Pending() ([]store.PendingOperation, error) {
	return q.db.PendingOperations()
}

// Depth returns the current queue depth.
func (q *Queue) Depth() (int, error) {
	return q.db.CountPendingOperations()
}

// Replay submits all pending operations sequentially, in enqueue order.
// A per-operation failure leaves that operation queued and continues to
// the next; no single failure blocks the rest of the batch. Concurrent
// replay triggers are serialized.
func (q *Queue) Replay(ctx context.Context) (*ReplayReport, error) {
	q.replayMu.Lock()
	defer q.replayMu.Unlock()
	return q.replayLocked(ctx)
}

// tryReplay runs a replay cycle unless one is already in flight, in
// which case the trigger coalesces into the running cycle.
func (q *Queue) tryReplay(ctx context.Context) {
	if !q.replayMu.TryLock() {
		return
	}
	defer q.replayMu.Unlock()
	if _, err := q.replayLocked(ctx); err != nil {
		q.logger.Error("replay cycle failed", zap.Error(err))
	}
}

func (q *Queue) replayLocked(ctx context.Context) (*ReplayReport, error) {
	ops, err := q.db.PendingOperations()
	if err != nil {
		return nil, err
	}

	report := &ReplayReport{Attempted: len(ops)}
	for i := range ops {
		op := &ops[i]
		if ctx.Err() != nil {
			report.Attempted = i
			break
		}
		if err := q.submitter.Submit(ctx, op); err != nil {
			// Left in place, retried on the next cycle.
			q.logger.Warn("replay submit failed",
				zap.Error(err),
				zap.String("op_id", op.OpID),
				zap.String("target", op.Target))
			q.rec.ObserveReplay(metrics.ReplayFailed)
			report.Failures = append(report.Failures, Failure{
				OpID:   op.OpID,
				Target: op.Target,
				Reason: err.Error(),
			})
			continue
		}
		// Delete only after the server acknowledged the round trip.
		if err := q.db.DeleteOperation(op.OpID); err != nil {
			q.logger.Error("failed to delete delivered operation",
				zap.Error(err), zap.String("op_id", op.OpID))
		}
		q.rec.ObserveReplay(metrics.ReplayDelivered)
		report.Delivered++
		q.logger.Info("operation delivered",
			zap.String("op_id", op.OpID),
			zap.String("target", op.Target))
	}

	q.publishDepth()
	if report.Attempted > 0 {
		q.bus.Publish(bus.Event{
			Kind:      "outbox.replayed",
			Timestamp: time.Now(),
			Payload:   report,
		})
	}
	return report, nil
}

// Start begins reacting to connectivity-restored events and draining the
// queue on an interval while online. Both triggers coalesce with any
// replay already in flight.
func (q *Queue) Start(ctx context.Context, drainEvery time.Duration) {
	ctx, q.cancel = context.WithCancel(ctx)
	events, unsub := q.bus.Subscribe("net.", 16)

	go func() {
		defer unsub()
		ticker := time.NewTicker(drainEvery)
		defer ticker.Stop()

		online := true
		for {
			select {
			case evt := <-events:
				switch evt.Kind {
				case "net.online":
					online = true
					q.tryReplay(ctx)
				case "net.offline":
					online = false
				}
			case <-ticker.C:
				if online {
					q.tryReplay(ctx)
				}
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop stops the drain loop.
func (q *Queue) Stop() {
	if q.cancel != nil {
		q.cancel()
	}
}

func (q *Queue) publishDepth() {
	depth, err := q.db.CountPendingOperations()
	if err != nil {
		return
	}
	q.rec.SetOutboxDepth(depth)
}
