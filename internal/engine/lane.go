package engine

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"spot-matching/internal/matching"
	"spot-matching/internal/metrics"
	"spot-matching/internal/pairspec"
	"spot-matching/internal/persistence"
)

const defaultIdempotencyCleanupInterval = time.Minute

// Lane owns the order book of one pair and executes its commands serially
type Lane struct {
	pair      pairspec.Pair
	cfg       EngineConfig
	book      *matching.OrderBook
	algorithm matching.Algorithm
	fees      *matching.FeeCalculator
	ledger    Ledger
	journal   Journal
	snapshots SnapshotSaver
	publisher Publisher
	logger    *zap.Logger
	now       func() time.Time

	cmdQueue  chan *commandRequest
	idemStore *IdempotencyStore

	// Owned by the lane goroutine (or by recovery before Start).
	replaying     bool
	haltErr       error
	sinceSnapshot int64

	halted   atomic.Bool
	submitMu sync.RWMutex
	stopped  bool
	wg       sync.WaitGroup
}

// commandRequest wraps a command with a response channel
type commandRequest struct {
	ctx      context.Context
	envelope *CommandEnvelope
	respChan chan *CommandExecResult
}

func newLane(pair pairspec.Pair, cfg EngineConfig, deps Dependencies) *Lane {
	book := matching.NewOrderBook(pair.Symbol)
	book.SetRetention(cfg.RetainTerminalOrders)
	return &Lane{
		pair:      pair,
		cfg:       cfg,
		book:      book,
		algorithm: deps.Algorithm,
		fees:      deps.Fees,
		ledger:    deps.Ledger,
		journal:   deps.Journal,
		snapshots: deps.Snapshots,
		publisher: deps.Publisher,
		logger:    deps.Logger.With(zap.String("pair", pair.Symbol)),
		now:       deps.Clock,
		cmdQueue:  make(chan *commandRequest, cfg.QueueSize),
		idemStore: NewIdempotencyStore(cfg.IdempotencyTTL, deps.Clock),
	}
}

// Pair returns the lane's trading pair.
func (l *Lane) Pair() pairspec.Pair {
	return l.pair
}

// Halted reports whether the lane stopped accepting commands after a fatal error.
func (l *Lane) Halted() bool {
	return l.halted.Load()
}

// Start starts the lane's event loop in a goroutine
func (l *Lane) Start() {
	metrics.LaneHalted.WithLabelValues(l.pair.Symbol).Set(0)
	l.wg.Add(1)
	go l.eventLoop()
}

// Stop gracefully stops the lane event loop. Queued commands are drained first.
func (l *Lane) Stop() {
	l.submitMu.Lock()
	if l.stopped {
		l.submitMu.Unlock()
		return
	}
	l.stopped = true
	close(l.cmdQueue)
	l.submitMu.Unlock()

	l.wg.Wait()
}

// Submit enqueues a command and waits for its result. Cancelling ctx stops the wait
// but never interrupts a command the lane already picked up.
func (l *Lane) Submit(ctx context.Context, envelope *CommandEnvelope) *CommandExecResult {
	if envelope == nil {
		return failed(fmt.Errorf("%w: command envelope is nil", matching.ErrValidation))
	}

	respChan := make(chan *CommandExecResult, 1)
	req := &commandRequest{
		ctx:      ctx,
		envelope: envelope,
		respChan: respChan,
	}

	l.submitMu.RLock()
	if l.stopped {
		l.submitMu.RUnlock()
		return failed(fmt.Errorf("%w: %s", ErrLaneStopped, l.pair.Symbol))
	}
	select {
	case l.cmdQueue <- req:
	case <-ctx.Done():
		l.submitMu.RUnlock()
		return failed(ctx.Err())
	}
	l.submitMu.RUnlock()
	metrics.LaneQueueDepth.WithLabelValues(l.pair.Symbol).Set(float64(len(l.cmdQueue)))

	select {
	case res := <-respChan:
		return res
	case <-ctx.Done():
		return failed(ctx.Err())
	}
}

// eventLoop is the main event loop that processes commands serially
func (l *Lane) eventLoop() {
	defer l.wg.Done()

	ticker := time.NewTicker(defaultIdempotencyCleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case req, ok := <-l.cmdQueue:
			if !ok {
				return
			}
			if req == nil {
				continue
			}
			result := l.processCommand(req.ctx, req.envelope)
			req.respChan <- result
		case <-ticker.C:
			l.idemStore.Cleanup()
		}
	}
}

// processCommand processes a single command
func (l *Lane) processCommand(ctx context.Context, envelope *CommandEnvelope) *CommandExecResult {
	if l.halted.Load() {
		return failed(fmt.Errorf("%w: %s: %v", ErrLaneHalted, l.pair.Symbol, l.haltErr))
	}
	start := time.Now()
	defer func() {
		metrics.CommandLatency.WithLabelValues(l.pair.Symbol, string(envelope.CommandType)).
			Observe(time.Since(start).Seconds())
	}()

	var idemKey IdempotencyKey
	if envelope.IdempotencyKey != "" {
		idemKey = IdempotencyKey{
			AccountID:      envelope.AccountID,
			Pair:           l.pair.Symbol,
			CommandType:    envelope.CommandType,
			IdempotencyKey: envelope.IdempotencyKey,
		}
		cached, err := l.idemStore.Check(idemKey, envelope.PayloadHash)
		if err != nil {
			return failed(err)
		}
		if cached != nil {
			return cached
		}
	}

	// The command runs to completion even if the caller gives up waiting.
	ctx = context.WithoutCancel(ctx)

	var result *CommandExecResult
	switch envelope.CommandType {
	case CommandTypePlace:
		result = l.executePlace(ctx, envelope)
	case CommandTypeCancel:
		result = l.executeCancel(ctx, envelope)
	case CommandTypeQuery:
		result = l.executeQuery(envelope)
	case CommandTypeSnapshot:
		result = l.executeSnapshot(envelope)
	default:
		result = failed(fmt.Errorf("%w: unknown command type: %s", matching.ErrValidation, envelope.CommandType))
	}

	if envelope.IdempotencyKey != "" && cacheable(result) {
		l.idemStore.Store(idemKey, envelope.PayloadHash, result)
	}
	return result
}

// cacheable reports whether a retry with the same key may be answered from the cache.
// Halted lanes and failed journal writes leave the command undecided.
func cacheable(result *CommandExecResult) bool {
	if result.ErrorCode == ErrorCodeLaneHalted {
		return false
	}
	return !errors.Is(result.Err, ErrJournal)
}

// executePlace executes a place order command
func (l *Lane) executePlace(ctx context.Context, envelope *CommandEnvelope) *CommandExecResult {
	req, ok := envelope.Payload.(*matching.PlaceOrderRequest)
	if !ok || req == nil {
		return failed(fmt.Errorf("%w: invalid payload type for PLACE command", matching.ErrValidation))
	}

	res, err := l.place(ctx, req)
	result := l.outcome(ctx, res, err)
	outcome := "accepted"
	if err != nil {
		outcome = "rejected"
	}
	metrics.OrdersTotal.WithLabelValues(l.pair.Symbol, string(req.Side), outcome).Inc()
	return result
}

// executeCancel executes a cancel order command
func (l *Lane) executeCancel(ctx context.Context, envelope *CommandEnvelope) *CommandExecResult {
	req, ok := envelope.Payload.(*matching.CancelOrderRequest)
	if !ok || req == nil {
		return failed(fmt.Errorf("%w: invalid payload type for CANCEL command", matching.ErrValidation))
	}

	res, err := l.cancel(ctx, req)
	return l.outcome(ctx, res, err)
}

// outcome publishes the events of a finished command and wraps its result.
func (l *Lane) outcome(ctx context.Context, res *matching.CommandResult, err error) *CommandExecResult {
	if res != nil && !l.halted.Load() {
		l.publish(ctx, res.Events)
	}
	var result any
	if res != nil {
		result = res
	}
	return &CommandExecResult{
		Result:    result,
		ErrorCode: ErrorCodeFor(err),
		Err:       err,
	}
}

func (l *Lane) executeQuery(envelope *CommandEnvelope) *CommandExecResult {
	req, ok := envelope.Payload.(*QueryRequest)
	if !ok || req == nil {
		return failed(fmt.Errorf("%w: invalid payload type for QUERY command", matching.ErrValidation))
	}
	order, ok := l.book.Lookup(req.OrderID)
	if !ok {
		return failed(fmt.Errorf("%w: %s", matching.ErrNotFound, req.OrderID))
	}
	if order.AccountID != req.AccountID {
		return failed(fmt.Errorf("%w: %s", matching.ErrForbidden, req.OrderID))
	}
	return &CommandExecResult{Result: order.Clone()}
}

func (l *Lane) executeSnapshot(envelope *CommandEnvelope) *CommandExecResult {
	req, ok := envelope.Payload.(*SnapshotRequest)
	if !ok || req == nil {
		return failed(fmt.Errorf("%w: invalid payload type for SNAPSHOT command", matching.ErrValidation))
	}
	return &CommandExecResult{Result: &matching.BookSnapshotEvent{
		EventHeader: matching.NewEventHeader(l.pair.Symbol, matching.EventBookSnapshot, l.book.Sequences().Event, l.now()),
		Depth:       l.book.Depth(req.Depth),
	}}
}

func (l *Lane) publish(ctx context.Context, events []matching.Event) {
	if l.publisher == nil || l.replaying || len(events) == 0 {
		return
	}
	if err := l.publisher.Publish(ctx, events); err != nil {
		l.logger.Warn("failed to publish events",
			zap.Int64("first_sequence", events[0].Sequence()),
			zap.Int("count", len(events)),
			zap.Error(err))
	}
}

// halt stops the lane for good. The book may be partially mutated by the failing
// command, so no further command is allowed to observe it.
func (l *Lane) halt(err error) error {
	l.haltErr = err
	l.halted.Store(true)
	metrics.LaneHalted.WithLabelValues(l.pair.Symbol).Set(1)
	l.logger.Error("lane halted", zap.Error(err))
	return fmt.Errorf("%w: %w", ErrLaneHalted, err)
}

// committed runs after every journaled command and takes periodic snapshots.
func (l *Lane) committed(ctx context.Context) {
	if l.replaying || l.snapshots == nil || l.cfg.SnapshotEvery <= 0 {
		return
	}
	l.sinceSnapshot++
	if l.sinceSnapshot < l.cfg.SnapshotEvery {
		return
	}
	l.sinceSnapshot = 0
	snap := l.snapshot()
	if err := l.snapshots.Save(ctx, snap); err != nil {
		l.logger.Error("failed to save snapshot", zap.Int64("sequence", snap.LastSequence), zap.Error(err))
		return
	}
	l.logger.Info("snapshot saved", zap.Int64("sequence", snap.LastSequence))
}

func (l *Lane) snapshot() *persistence.Snapshot {
	seqs := l.book.Sequences()
	return &persistence.Snapshot{
		Pair:         l.pair.Symbol,
		LastSequence: seqs.Journal,
		CapturedAt:   l.now(),
		Sequences:    seqs,
		Resting:      l.book.RestingOrders(),
		Retired:      l.book.RetiredOrders(),
	}
}

// ComputePayloadHash computes SHA256 hash of the payload
func ComputePayloadHash(payload any) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	hash := sha256.Sum256(data)
	return fmt.Sprintf("%x", hash), nil
}
