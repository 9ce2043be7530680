package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"spot-matching/internal/matching"
	"spot-matching/internal/pairspec"
	"spot-matching/internal/persistence"
)

// Engine owns one lane per trading pair and routes commands to them
type Engine struct {
	router *Router
	lanes  []*Lane
	logger *zap.Logger
	now    func() time.Time

	mu      sync.Mutex // guards started
	started bool
}

// EngineConfig holds configuration for the engine
type EngineConfig struct {
	QueueSize               int           // Command queue size per lane (default: 1024)
	IdempotencyTTL          time.Duration // Idempotency record TTL (default: 24h)
	RejectMarketOnEmptyBook bool          // Reject market orders when the opposite side is empty (default: true)
	SnapshotEvery           int64         // Journaled commands between snapshots, 0 disables (default: 1000)
	RetainTerminalOrders    int           // Terminal orders kept per pair for query and cancel, <= 0 keeps all (default: 10000)
}

// DefaultEngineConfig returns default engine configuration
func DefaultEngineConfig() *EngineConfig {
	return &EngineConfig{
		QueueSize:               1024,
		IdempotencyTTL:          24 * time.Hour,
		RejectMarketOnEmptyBook: true,
		SnapshotEvery:           1000,
		RetainTerminalOrders:    matching.DefaultRetention,
	}
}

// Dependencies are the collaborators shared by all lanes. Only Pairs is required;
// a nil Ledger disables funds checks and a nil Journal disables write-ahead logging.
type Dependencies struct {
	Pairs     *pairspec.Registry
	Algorithm matching.Algorithm      // default FIFO
	Fees      *matching.FeeCalculator // default 0.1% both legs
	Ledger    Ledger
	Journal   Journal
	Snapshots SnapshotSaver
	Publisher Publisher
	Logger    *zap.Logger
	Clock     func() time.Time // default time.Now in UTC
}

func (d Dependencies) withDefaults() (Dependencies, error) {
	if d.Algorithm == nil {
		d.Algorithm = matching.FIFO{}
	}
	if d.Fees == nil {
		fees, err := matching.NewFeeCalculator(matching.DefaultFeeSchedule())
		if err != nil {
			return d, err
		}
		d.Fees = fees
	}
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.Clock == nil {
		d.Clock = func() time.Time { return time.Now().UTC() }
	}
	return d, nil
}

// NewEngine creates an engine with one idle lane per pair. Call Recover (optionally)
// and then Start.
func NewEngine(config *EngineConfig, deps Dependencies) (*Engine, error) {
	if config == nil {
		config = DefaultEngineConfig()
	}
	if deps.Pairs == nil {
		return nil, errors.New("engine: pair registry is required")
	}
	if config.QueueSize <= 0 {
		return nil, fmt.Errorf("engine: queue size must be positive, got %d", config.QueueSize)
	}
	deps, err := deps.withDefaults()
	if err != nil {
		return nil, err
	}

	symbols := deps.Pairs.Symbols()
	lanes := make([]*Lane, 0, len(symbols))
	for _, s := range symbols {
		p, err := deps.Pairs.Get(s)
		if err != nil {
			return nil, err
		}
		lanes = append(lanes, newLane(p, *config, deps))
	}

	return &Engine{
		router: NewRouter(deps.Pairs, lanes),
		lanes:  lanes,
		logger: deps.Logger,
		now:    deps.Clock,
	}, nil
}

// Recover rebuilds every lane from its latest snapshot and journal. It must run
// before Start.
func (e *Engine) Recover(ctx context.Context, rs persistence.RecoveryService) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.started {
		return errors.New("engine: recover after start")
	}
	for _, l := range e.lanes {
		if err := l.recover(ctx, rs); err != nil {
			return fmt.Errorf("recover %s: %w", l.pair.Symbol, err)
		}
	}
	return nil
}

// Start starts all lanes
func (e *Engine) Start() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.started {
		return
	}
	e.started = true
	for _, l := range e.lanes {
		l.Start()
	}
	e.logger.Info("engine started", zap.Strings("pairs", e.Pairs()))
}

// Stop drains and stops all lanes
func (e *Engine) Stop() {
	for _, l := range e.lanes {
		l.Stop()
	}
	e.logger.Info("engine stopped")
}

// Pairs returns the symbols the engine serves
func (e *Engine) Pairs() []string {
	out := make([]string, 0, len(e.lanes))
	for _, l := range e.lanes {
		out = append(out, l.pair.Symbol)
	}
	return out
}

// Halted reports whether the lane of pair has halted
func (e *Engine) Halted(pair string) bool {
	l, err := e.router.Route(pair)
	return err == nil && l.Halted()
}

// Execute routes an envelope to its lane and returns the result
func (e *Engine) Execute(ctx context.Context, envelope *CommandEnvelope) *CommandExecResult {
	if envelope == nil {
		return failed(fmt.Errorf("%w: command envelope is nil", matching.ErrValidation))
	}
	lane, err := e.router.Route(envelope.Pair)
	if err != nil {
		return failed(err)
	}
	return lane.Submit(ctx, envelope)
}

// Submit places an order. Rejections return the rejected order with the error.
func (e *Engine) Submit(ctx context.Context, req *matching.PlaceOrderRequest) (*matching.CommandResult, error) {
	envelope, err := e.PlaceCommand(req)
	if err != nil {
		return nil, err
	}
	res := e.Execute(ctx, envelope)
	cr, _ := res.Result.(*matching.CommandResult)
	return cr, res.Err
}

// Cancel cancels a resting order owned by req.AccountID
func (e *Engine) Cancel(ctx context.Context, req *matching.CancelOrderRequest) (*matching.CommandResult, error) {
	envelope, err := e.CancelCommand(req)
	if err != nil {
		return nil, err
	}
	res := e.Execute(ctx, envelope)
	cr, _ := res.Result.(*matching.CommandResult)
	return cr, res.Err
}

// Query returns a copy of an order owned by accountID
func (e *Engine) Query(ctx context.Context, pair, orderID, accountID string) (*matching.Order, error) {
	res := e.Execute(ctx, &CommandEnvelope{
		CommandType: CommandTypeQuery,
		Pair:        pair,
		AccountID:   accountID,
		Payload:     &QueryRequest{OrderID: orderID, AccountID: accountID},
		CreatedAt:   e.now(),
	})
	if res.Err != nil {
		return nil, res.Err
	}
	order, _ := res.Result.(*matching.Order)
	return order, nil
}

// BookSnapshot returns the top depth levels of pair, taken inside its lane
func (e *Engine) BookSnapshot(ctx context.Context, pair string, depth int) (*matching.BookSnapshotEvent, error) {
	res := e.Execute(ctx, &CommandEnvelope{
		CommandType: CommandTypeSnapshot,
		Pair:        pair,
		Payload:     &SnapshotRequest{Depth: depth},
		CreatedAt:   e.now(),
	})
	if res.Err != nil {
		return nil, res.Err
	}
	snap, _ := res.Result.(*matching.BookSnapshotEvent)
	return snap, nil
}

// PlaceCommand wraps req in an envelope with its payload hash
func (e *Engine) PlaceCommand(req *matching.PlaceOrderRequest) (*CommandEnvelope, error) {
	if req == nil {
		return nil, fmt.Errorf("%w: place request is nil", matching.ErrValidation)
	}
	return e.envelope(CommandTypePlace, req.Pair, req.AccountID, req.IdempotencyKey, req)
}

// CancelCommand wraps req in an envelope with its payload hash
func (e *Engine) CancelCommand(req *matching.CancelOrderRequest) (*CommandEnvelope, error) {
	if req == nil {
		return nil, fmt.Errorf("%w: cancel request is nil", matching.ErrValidation)
	}
	return e.envelope(CommandTypeCancel, req.Pair, req.AccountID, req.IdempotencyKey, req)
}

func (e *Engine) envelope(typ CommandType, pair, accountID, idemKey string, payload any) (*CommandEnvelope, error) {
	hash, err := ComputePayloadHash(payload)
	if err != nil {
		return nil, fmt.Errorf("hash %s payload: %w", typ, err)
	}
	return &CommandEnvelope{
		CommandID:      uuid.NewString(),
		CommandType:    typ,
		IdempotencyKey: idemKey,
		Pair:           pair,
		AccountID:      accountID,
		PayloadHash:    hash,
		Payload:        payload,
		CreatedAt:      e.now(),
	}, nil
}
