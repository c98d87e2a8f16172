// Package engine is the role-gated control layer above the loan coordinator:
// strategy registration, exposure limits, batch execution and the emergency
// stop state machine.
package engine

import (
	"context"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/michaelpento.lv/arbx/access"
	"github.com/michaelpento.lv/arbx/flashloan"
	"github.com/michaelpento.lv/arbx/ledger"
	"github.com/michaelpento.lv/arbx/registry"
	"github.com/michaelpento.lv/arbx/risk"
	"github.com/michaelpento.lv/arbx/simulator"
	"github.com/michaelpento.lv/arbx/types"
)

// Options configures optional engine behavior.
type Options struct {
	// Limiter, when set, is consulted as an admission check before every
	// operation.
	Limiter *rate.Limiter
	// Sink receives emitted events. Defaults to a no-op sink.
	Sink Sink
}

// Engine gates arbitrage execution behind risk controls.
type Engine struct {
	store       *ledger.Ledger
	coordinator *flashloan.Coordinator
	registry    *registry.AdapterRegistry
	riskReg     *risk.Registry
	sim         *simulator.Simulator
	lender      flashloan.Lender
	auth        *access.Controller
	sink        Sink
	limiter     *rate.Limiter
	logger      *zap.Logger
	now         func() time.Time

	mu          sync.RWMutex
	state       types.EngineState
	pauseReason string
	pausedAt    time.Time
	strategies  map[string]*types.StrategyConfig

	metrics struct {
		operations prometheus.Counter
		batches    prometheus.Counter
		rejects    *prometheus.CounterVec
		paused     prometheus.Gauge
	}
}

// New wires the engine. The engine starts Active.
func New(store *ledger.Ledger, coordinator *flashloan.Coordinator, reg *registry.AdapterRegistry, riskReg *risk.Registry, sim *simulator.Simulator, lender flashloan.Lender, auth *access.Controller, logger *zap.Logger, opts Options) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	sink := opts.Sink
	if sink == nil {
		sink = nopSink{}
	}
	e := &Engine{
		store:       store,
		coordinator: coordinator,
		registry:    reg,
		riskReg:     riskReg,
		sim:         sim,
		lender:      lender,
		auth:        auth,
		sink:        sink,
		limiter:     opts.Limiter,
		logger:      logger,
		now:         time.Now,
		state:       types.EngineActive,
		strategies:  make(map[string]*types.StrategyConfig),
	}

	e.metrics.operations = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "arbx_engine_operations_total",
		Help: "Operations accepted by the engine",
	})
	e.metrics.batches = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "arbx_engine_batches_total",
		Help: "Batches settled by the engine",
	})
	e.metrics.rejects = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "arbx_engine_rejects_total",
		Help: "Operations rejected before execution, by gate",
	}, []string{"gate"})
	e.metrics.paused = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "arbx_engine_paused",
		Help: "1 while the emergency stop is active",
	})

	return e
}

// MustRegister registers the engine's collectors.
func (e *Engine) MustRegister(reg prometheus.Registerer) {
	reg.MustRegister(
		e.metrics.operations,
		e.metrics.batches,
		e.metrics.rejects,
		e.metrics.paused,
	)
}

// State returns the engine lifecycle state.
func (e *Engine) State() types.EngineState {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state
}

// PauseReason returns the reason recorded by the last emergency stop.
func (e *Engine) PauseReason() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.pauseReason
}

// requireActive rejects mutating entry points while stopped, before any side
// effect.
func (e *Engine) requireActive() error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.state == types.EnginePaused {
		return types.ErrEmergencyStopped
	}
	return nil
}

// ExecuteArbitrage re-validates the request against the risk layer and
// delegates to the coordinator. Exposure is recorded only after settlement.
func (e *Engine) ExecuteArbitrage(ctx context.Context, caller common.Address, req types.ArbitrageRequest) (*types.ArbitrageResult, error) {
	if err := e.admit(caller, req); err != nil {
		return nil, err
	}
	if err := e.preflight(ctx, e.store, req); err != nil {
		return nil, err
	}

	res, err := e.coordinator.ExecuteArbitrage(ctx, req)
	if err != nil {
		return nil, err
	}

	e.settle(res)
	e.metrics.operations.Inc()
	return res, nil
}

// ExecuteBatchArbitrage runs the operations in order inside one outer ledger
// transaction: a failure anywhere discards the whole batch, mirroring the
// single-operation atomicity contract.
func (e *Engine) ExecuteBatchArbitrage(ctx context.Context, caller common.Address, reqs []types.ArbitrageRequest) ([]*types.ArbitrageResult, error) {
	if err := e.requireActive(); err != nil {
		return nil, err
	}
	if err := e.auth.Require(caller, access.RoleOperator); err != nil {
		return nil, err
	}
	if len(reqs) == 0 {
		return nil, types.ErrEmptyBatch
	}
	if len(reqs) > types.MaxBatchSize {
		return nil, types.ErrTooManyOperations
	}
	if e.limiter != nil && !e.limiter.Allow() {
		e.metrics.rejects.WithLabelValues("rate_limit").Inc()
		return nil, types.ErrRateLimited
	}

	// Every operation is validated before the first one executes. Exposure
	// headroom is checked against the batch's own running total per asset:
	// operations that each fit individually must not collectively breach the
	// ceiling once the whole batch settles.
	pending := make(map[common.Address]*big.Int)
	for i := range reqs {
		if err := e.validate(reqs[i]); err != nil {
			return nil, err
		}
		total := new(big.Int).Set(reqs[i].Amount)
		if prev, ok := pending[reqs[i].Asset]; ok {
			total.Add(total, prev)
		}
		if err := e.riskReg.CheckExposure(reqs[i].Asset, total); err != nil {
			e.metrics.rejects.WithLabelValues("validation").Inc()
			return nil, err
		}
		pending[reqs[i].Asset] = total
	}

	outer := e.store.Begin()
	results := make([]*types.ArbitrageResult, 0, len(reqs))
	totalProfit := big.NewInt(0)

	for i := range reqs {
		if err := e.preflight(ctx, outer, reqs[i]); err != nil {
			outer.Discard()
			return nil, err
		}
		res, err := e.coordinator.ExecuteArbitrageIn(ctx, outer, reqs[i])
		if err != nil {
			outer.Discard()
			return nil, err
		}
		results = append(results, res)
		totalProfit.Add(totalProfit, res.Profit)
	}

	outer.Commit()
	for _, res := range results {
		e.settle(res)
	}

	e.metrics.batches.Inc()
	e.sink.Emit(Event{
		Kind:           EventBatchCompleted,
		Timestamp:      e.now(),
		OperationCount: len(results),
		TotalProfit:    totalProfit,
	})
	e.logger.Info("batch settled",
		zap.Int("operations", len(results)),
		zap.String("total_profit", totalProfit.String()),
	)
	return results, nil
}

// ExecuteStrategy runs a request under a registered strategy's configuration:
// the strategy must be active and off cooldown, and its own minimum profit
// floor applies on top of the global threshold.
func (e *Engine) ExecuteStrategy(ctx context.Context, caller common.Address, strategyID string, req types.ArbitrageRequest) (*types.ArbitrageResult, error) {
	if err := e.requireActive(); err != nil {
		return nil, err
	}
	if err := e.auth.Require(caller, access.RoleOperator); err != nil {
		return nil, err
	}

	e.mu.Lock()
	s, ok := e.strategies[strategyID]
	if !ok {
		e.mu.Unlock()
		return nil, types.ErrStrategyNotFound
	}
	if !s.Active {
		e.mu.Unlock()
		return nil, types.ErrStrategyInactive
	}
	if s.Cooldown > 0 && !s.Stats.LastRun.IsZero() && e.now().Before(s.Stats.LastRun.Add(s.Cooldown)) {
		e.mu.Unlock()
		return nil, types.ErrCooldownActive
	}
	if s.MinProfit != nil && (req.MinProfit == nil || req.MinProfit.Cmp(s.MinProfit) < 0) {
		req.MinProfit = s.MinProfit
	}
	e.mu.Unlock()

	res, err := e.ExecuteArbitrage(ctx, caller, req)

	e.mu.Lock()
	defer e.mu.Unlock()
	if s, ok := e.strategies[strategyID]; ok {
		s.Stats.LastRun = e.now()
		if err != nil {
			s.Stats.Failures++
		} else {
			s.Stats.Executions++
			if s.Stats.TotalProfit == nil {
				s.Stats.TotalProfit = big.NewInt(0)
			}
			s.Stats.TotalProfit.Add(s.Stats.TotalProfit, res.Profit)
		}
	}
	return res, err
}

// AddStrategy registers a new strategy. Strategist only; duplicate ids fail.
func (e *Engine) AddStrategy(caller common.Address, cfg types.StrategyConfig) error {
	if err := e.requireActive(); err != nil {
		return err
	}
	if err := e.auth.Require(caller, access.RoleStrategist); err != nil {
		return err
	}
	if cfg.ID == "" || cfg.Handler == (common.Address{}) {
		return types.ErrInvalidImplementation
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.strategies[cfg.ID]; ok {
		return types.ErrAlreadyExists
	}
	if cfg.Stats.TotalProfit == nil {
		cfg.Stats.TotalProfit = big.NewInt(0)
	}
	e.strategies[cfg.ID] = &cfg
	e.logger.Info("strategy registered", zap.String("strategy", cfg.ID))
	return nil
}

// UpdateStrategy replaces an existing strategy's configuration, preserving
// its running stats. Strategist only.
func (e *Engine) UpdateStrategy(caller common.Address, cfg types.StrategyConfig) error {
	if err := e.requireActive(); err != nil {
		return err
	}
	if err := e.auth.Require(caller, access.RoleStrategist); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	existing, ok := e.strategies[cfg.ID]
	if !ok {
		return types.ErrStrategyNotFound
	}
	cfg.Stats = existing.Stats
	e.strategies[cfg.ID] = &cfg
	return nil
}

// Strategy returns a copy of the registered strategy.
func (e *Engine) Strategy(id string) (types.StrategyConfig, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	s, ok := e.strategies[id]
	if !ok {
		return types.StrategyConfig{}, false
	}
	return *s, true
}

// UpdateRiskParams updates the global risk parameters, gated by the pause
// state ahead of the registry's own role check.
func (e *Engine) UpdateRiskParams(caller common.Address, params types.RiskParams) error {
	if err := e.requireActive(); err != nil {
		return err
	}
	return e.riskReg.UpdateParams(caller, params)
}

// UpdateTokenProfile updates a per-token risk profile.
func (e *Engine) UpdateTokenProfile(caller common.Address, profile types.TokenRiskProfile) error {
	if err := e.requireActive(); err != nil {
		return err
	}
	return e.riskReg.UpdateProfile(caller, profile)
}

// EmergencyStop pauses the engine. Emergency role only.
func (e *Engine) EmergencyStop(caller common.Address, reason string) error {
	if err := e.auth.Require(caller, access.RoleEmergency); err != nil {
		return err
	}
	e.mu.Lock()
	if e.state == types.EnginePaused {
		e.mu.Unlock()
		return types.ErrEmergencyStopped
	}
	e.state = types.EnginePaused
	e.pauseReason = reason
	e.pausedAt = e.now()
	e.mu.Unlock()

	e.metrics.paused.Set(1)
	e.sink.Emit(Event{
		Kind:      EventEmergencyStop,
		Timestamp: e.now(),
		Actor:     caller,
		Reason:    reason,
	})
	e.logger.Warn("emergency stop",
		zap.String("actor", caller.Hex()),
		zap.String("reason", reason),
	)
	return nil
}

// Resume reactivates a stopped engine. Emergency role only.
func (e *Engine) Resume(caller common.Address) error {
	if err := e.auth.Require(caller, access.RoleEmergency); err != nil {
		return err
	}
	e.mu.Lock()
	if e.state != types.EnginePaused {
		e.mu.Unlock()
		return types.ErrNotStopped
	}
	e.state = types.EngineActive
	e.pauseReason = ""
	e.mu.Unlock()

	e.metrics.paused.Set(0)
	e.sink.Emit(Event{
		Kind:      EventResume,
		Timestamp: e.now(),
		Actor:     caller,
	})
	e.logger.Info("engine resumed", zap.String("actor", caller.Hex()))
	return nil
}

// GrantRole grants a role and emits a role-change event. Admin only.
func (e *Engine) GrantRole(caller, subject common.Address, role access.Role) error {
	if err := e.auth.Grant(caller, subject, role); err != nil {
		return err
	}
	e.sink.Emit(Event{
		Kind:      EventRoleChange,
		Timestamp: e.now(),
		Actor:     caller,
		Subject:   subject,
		Role:      role.String(),
		Granted:   true,
	})
	return nil
}

// RevokeRole revokes a role and emits a role-change event. Admin only.
func (e *Engine) RevokeRole(caller, subject common.Address, role access.Role) error {
	if err := e.auth.Revoke(caller, subject, role); err != nil {
		return err
	}
	e.sink.Emit(Event{
		Kind:      EventRoleChange,
		Timestamp: e.now(),
		Actor:     caller,
		Subject:   subject,
		Role:      role.String(),
		Granted:   false,
	})
	return nil
}

// admit runs the gates that precede any execution work for a single
// operation: pause, role, admission rate, and static validation.
func (e *Engine) admit(caller common.Address, req types.ArbitrageRequest) error {
	if err := e.requireActive(); err != nil {
		e.metrics.rejects.WithLabelValues("paused").Inc()
		return err
	}
	if err := e.auth.Require(caller, access.RoleOperator); err != nil {
		e.metrics.rejects.WithLabelValues("role").Inc()
		return err
	}
	if e.limiter != nil && !e.limiter.Allow() {
		e.metrics.rejects.WithLabelValues("rate_limit").Inc()
		return types.ErrRateLimited
	}
	if err := e.validate(req); err != nil {
		e.metrics.rejects.WithLabelValues("validation").Inc()
		return err
	}
	return nil
}

// validate applies the risk layer's static checks.
func (e *Engine) validate(req types.ArbitrageRequest) error {
	if req.Amount == nil || req.Amount.Sign() <= 0 {
		return types.ErrInvalidAmount
	}
	if len(req.Steps) < 2 || len(req.Steps) > types.MaxSteps {
		return types.ErrInvalidRoutesLength
	}
	if err := e.registry.RequireWhitelisted(req.Asset); err != nil {
		return err
	}
	return e.riskReg.CheckExposure(req.Asset, req.Amount)
}

// preflight simulates the route and enforces the global minimum profit
// threshold before any funds move.
func (e *Engine) preflight(ctx context.Context, view ledger.View, req types.ArbitrageRequest) error {
	threshold := e.riskReg.Params().MinProfitThreshold
	if threshold == nil || threshold.Sign() <= 0 {
		return nil
	}
	expected, err := e.sim.EstimateProfit(ctx, view, req, e.lender)
	if err != nil {
		return err
	}
	if expected.Cmp(threshold) < 0 {
		e.metrics.rejects.WithLabelValues("profit_threshold").Inc()
		return types.ErrInsufficientProfit
	}
	return nil
}

// settle records exposure and emits events for one settled operation.
func (e *Engine) settle(res *types.ArbitrageResult) {
	e.riskReg.RecordExposure(res.Asset, res.Borrowed)
	for i := range res.Records {
		rec := res.Records[i]
		e.sink.Emit(Event{
			Kind:      EventSwapExecuted,
			Timestamp: e.now(),
			Swap:      &rec,
		})
	}
	e.sink.Emit(Event{
		Kind:      EventArbitrageExecuted,
		Timestamp: e.now(),
		Asset:     res.Asset,
		Amount:    res.Borrowed,
		Profit:    res.Profit,
	})
}
