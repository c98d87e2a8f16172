package flashloan

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"math/big"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"go.uber.org/zap"

	"github.com/michaelpento.lv/arbx/access"
	"github.com/michaelpento.lv/arbx/executor"
	"github.com/michaelpento.lv/arbx/ledger"
	"github.com/michaelpento.lv/arbx/registry"
	"github.com/michaelpento.lv/arbx/types"
)

// State is the coordinator's operation state machine. Any failure at any
// stage restores StateIdle as if the operation never started.
type State int

const (
	StateIdle State = iota
	StateLoanRequested
	StateCallbackExecuting
	StateRepaying
	StateSettled
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLoanRequested:
		return "loan_requested"
	case StateCallbackExecuting:
		return "callback_executing"
	case StateRepaying:
		return "repaying"
	case StateSettled:
		return "settled"
	default:
		return "unknown"
	}
}

type pendingOp struct {
	req     types.ArbitrageRequest
	records []types.SwapRecord
	profit  *big.Int
}

// Coordinator owns one arbitrage operation at a time: it borrows, receives
// the lender callback, runs the route, enforces the profit guard and
// guarantees repayment. It holds its own ledger account; borrowed funds and
// intermediate outputs pass through it.
type Coordinator struct {
	store    *ledger.Ledger
	registry *registry.AdapterRegistry
	exec     *executor.Executor
	lender   Lender
	guard    *ProfitGuard
	auth     *access.Controller
	logger   *zap.Logger

	account         common.Address
	profitRecipient common.Address

	inFlight atomic.Bool
	mu       sync.Mutex
	state    State
	pending  map[uint64]*pendingOp

	metrics struct {
		executionLatency prometheus.Histogram
		activeOps        prometheus.Gauge
		successCount     prometheus.Counter
		totalCount       prometheus.Counter
		successRate      prometheus.Gauge
		totalProfit      prometheus.Counter
		errors           *prometheus.CounterVec
	}
}

// NewCoordinator wires the coordinator. account is its ledger account, and
// profit is initially distributed to recipient.
func NewCoordinator(store *ledger.Ledger, reg *registry.AdapterRegistry, exec *executor.Executor, lender Lender, guard *ProfitGuard, auth *access.Controller, account, recipient common.Address, logger *zap.Logger) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Coordinator{
		store:           store,
		registry:        reg,
		exec:            exec,
		lender:          lender,
		guard:           guard,
		auth:            auth,
		logger:          logger,
		account:         account,
		profitRecipient: recipient,
		state:           StateIdle,
		pending:         make(map[uint64]*pendingOp),
	}

	c.metrics.executionLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "arbx_operation_latency_seconds",
		Help:    "Latency of arbitrage operations",
		Buckets: prometheus.DefBuckets,
	})
	c.metrics.activeOps = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "arbx_operations_active",
		Help: "Number of operations currently in flight",
	})
	c.metrics.successCount = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "arbx_operations_success_total",
		Help: "Number of settled arbitrage operations",
	})
	c.metrics.totalCount = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "arbx_operations_total",
		Help: "Total number of attempted arbitrage operations",
	})
	c.metrics.successRate = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "arbx_operations_success_rate",
		Help: "Success rate of arbitrage operations",
	})
	c.metrics.totalProfit = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "arbx_profit_total",
		Help: "Cumulative profit distributed",
	})
	c.metrics.errors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "arbx_operation_errors_total",
		Help: "Number of operation failures by reason",
	}, []string{"reason"})

	return c
}

// Account returns the coordinator's ledger account.
func (c *Coordinator) Account() common.Address { return c.account }

// MustRegister registers the coordinator's collectors.
func (c *Coordinator) MustRegister(reg prometheus.Registerer) {
	reg.MustRegister(
		c.metrics.executionLatency,
		c.metrics.activeOps,
		c.metrics.successCount,
		c.metrics.totalCount,
		c.metrics.successRate,
		c.metrics.totalProfit,
		c.metrics.errors,
	)
}

// State returns the current operation state.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// SetProfitRecipient updates where profit is distributed. Admin only.
func (c *Coordinator) SetProfitRecipient(caller, recipient common.Address) error {
	if err := c.auth.Require(caller, access.RoleAdmin); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.profitRecipient = recipient
	return nil
}

// ExecuteArbitrage runs one operation against the base ledger, committing
// only on full success.
func (c *Coordinator) ExecuteArbitrage(ctx context.Context, req types.ArbitrageRequest) (*types.ArbitrageResult, error) {
	txn := c.store.Begin()
	res, err := c.ExecuteArbitrageIn(ctx, txn, req)
	if err != nil {
		txn.Discard()
		return nil, err
	}
	txn.Commit()
	return res, nil
}

// ExecuteArbitrageIn runs one operation inside the caller's transaction. The
// operation's own staging is nested, so a failure leaves the caller's
// transaction untouched; commit/discard of the outer transaction stays with
// the caller. Used by batch execution.
func (c *Coordinator) ExecuteArbitrageIn(ctx context.Context, outer *ledger.Txn, req types.ArbitrageRequest) (*types.ArbitrageResult, error) {
	if !c.inFlight.CompareAndSwap(false, true) {
		c.metrics.errors.WithLabelValues("reentrancy").Inc()
		return nil, types.ErrReentrancy
	}
	defer c.inFlight.Store(false)

	start := time.Now()
	c.metrics.totalCount.Inc()
	c.metrics.activeOps.Inc()
	defer func() {
		c.metrics.activeOps.Dec()
		c.metrics.executionLatency.Observe(time.Since(start).Seconds())
		c.updateSuccessRate()
	}()

	res, err := c.execute(ctx, outer, req)
	if err != nil {
		c.metrics.errors.WithLabelValues(reason(err)).Inc()
		c.setState(StateIdle)
		return nil, err
	}
	c.metrics.successCount.Inc()
	c.metrics.totalProfit.Add(profitFloat(res.Profit))
	return res, nil
}

func (c *Coordinator) execute(ctx context.Context, outer *ledger.Txn, req types.ArbitrageRequest) (*types.ArbitrageResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if err := c.registry.RequireWhitelisted(req.Asset); err != nil {
		return nil, err
	}
	if err := c.registry.ValidateRoute(req.Steps); err != nil {
		return nil, err
	}

	opID := OperationID(req)
	params := make([]byte, 8)
	binary.BigEndian.PutUint64(params, opID)

	c.mu.Lock()
	c.pending[opID] = &pendingOp{req: req}
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pending, opID)
		c.mu.Unlock()
	}()

	txn := outer.Begin()
	c.setState(StateLoanRequested)

	err := c.lender.RequestLoan(ctx, txn, c,
		[]common.Address{req.Asset},
		[]*big.Int{req.Amount},
		params,
	)
	if err != nil {
		txn.Discard()
		c.logger.Warn("operation aborted",
			zap.Uint64("op_id", opID),
			zap.String("asset", req.Asset.Hex()),
			zap.Error(err),
		)
		return nil, err
	}

	c.mu.Lock()
	op := c.pending[opID]
	callbackRan := c.state == StateRepaying && op.profit != nil
	c.state = StateSettled
	c.mu.Unlock()

	// A lender that returns success without having driven the callback to
	// completion must not be trusted with a commit.
	if !callbackRan {
		txn.Discard()
		return nil, types.ErrInvalidCallback
	}

	txn.Commit()
	c.setState(StateIdle)

	c.logger.Info("arbitrage settled",
		zap.Uint64("op_id", opID),
		zap.String("asset", req.Asset.Hex()),
		zap.String("borrowed", req.Amount.String()),
		zap.String("profit", op.profit.String()),
	)

	return &types.ArbitrageResult{
		OperationID: opID,
		Asset:       req.Asset,
		Borrowed:    req.Amount,
		Premium:     c.lender.Premium(req.Asset, req.Amount),
		Profit:      op.profit,
		Records:     op.records,
	}, nil
}

// OnLoanReceived is the single lender callback. It reconstructs the request
// from the opaque params, runs the route chain, enforces the profit guard
// and distributes profit, leaving exactly principal plus premium behind.
func (c *Coordinator) OnLoanReceived(ctx context.Context, txn *ledger.Txn, cb types.LoanCallbackContext) error {
	if err := cb.Validate(); err != nil {
		return err
	}
	if cb.Initiator != c.account {
		return types.ErrUnauthorized
	}
	if len(cb.Params) != 8 {
		return types.ErrInvalidCallback
	}

	c.mu.Lock()
	if c.state != StateLoanRequested {
		c.mu.Unlock()
		return types.ErrReentrancy
	}
	c.state = StateCallbackExecuting
	opID := binary.BigEndian.Uint64(cb.Params)
	op, ok := c.pending[opID]
	c.mu.Unlock()
	if !ok {
		return types.ErrInvalidCallback
	}

	records, err := c.exec.ExecuteRoute(ctx, txn, op.req.Steps, c.account)
	if err != nil {
		return err
	}

	profit, err := c.guard.Check(txn, op.req.Asset, c.account, cb.Amounts[0], cb.Premiums[0], op.req.MinProfit)
	if err != nil {
		return err
	}

	if profit.Sign() > 0 {
		if err := txn.Transfer(op.req.Asset, c.account, c.profitRecipient, profit); err != nil {
			return fmt.Errorf("profit distribution: %w", err)
		}
	}

	c.mu.Lock()
	op.records = records
	op.profit = profit
	c.state = StateRepaying
	c.mu.Unlock()
	return nil
}

func (c *Coordinator) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// updateSuccessRate recomputes the success rate gauge from the counters.
func (c *Coordinator) updateSuccessRate() {
	success := counterValue(c.metrics.successCount)
	total := counterValue(c.metrics.totalCount)
	if total > 0 {
		c.metrics.successRate.Set(success / total)
	}
}

// profitFloat converts a profit to the metric's float domain without the
// modular wrap of a uint64 conversion; values beyond float64 range clamp to
// the maximum instead of poisoning the counter with +Inf.
func profitFloat(p *big.Int) float64 {
	f, _ := new(big.Float).SetInt(p).Float64()
	if math.IsInf(f, 1) {
		return math.MaxFloat64
	}
	return f
}

func counterValue(counter prometheus.Counter) float64 {
	m := &dto.Metric{}
	if err := counter.Write(m); err != nil || m.Counter == nil {
		return 0
	}
	return m.Counter.GetValue()
}

// OperationID derives a stable identifier for a request. Every field that
// changes the economics of a step participates, so requests differing only in
// amounts, fees or output floors never share an identity.
func OperationID(req types.ArbitrageRequest) uint64 {
	h := xxhash.New()
	h.Write(req.Asset.Bytes())
	h.Write(req.Amount.Bytes())
	sep := []byte{0xff}
	for i := range req.Steps {
		step := &req.Steps[i]
		h.WriteString(step.RouterID)
		h.Write(step.TokenIn.Bytes())
		h.Write(step.TokenOut.Bytes())
		h.Write(sep)
		if step.AmountIn != nil {
			h.Write(step.AmountIn.Bytes())
		}
		h.Write(sep)
		if step.MinAmountOut != nil {
			h.Write(step.MinAmountOut.Bytes())
		}
		var fee [2]byte
		binary.BigEndian.PutUint16(fee[:], step.FeeBps)
		h.Write(fee[:])
		for _, hop := range step.Path {
			h.Write(hop.Bytes())
		}
		h.Write(sep)
	}
	return h.Sum64()
}

// reason buckets an error into a bounded metric label.
func reason(err error) string {
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, types.ErrReentrancy):
		return "reentrancy"
	case errors.Is(err, types.ErrInsufficientProfit):
		return "insufficient_profit"
	case errors.Is(err, types.ErrGasPriceTooHigh):
		return "gas_price"
	case errors.Is(err, types.ErrSlippageExceeded):
		return "slippage"
	case errors.Is(err, types.ErrRouterNotFound):
		return "router_not_found"
	case errors.Is(err, types.ErrTokenNotWhitelisted):
		return "token_not_whitelisted"
	case errors.Is(err, types.ErrRepaymentFailed):
		return "repayment"
	case errors.Is(err, types.ErrDeadlineExceeded):
		return "deadline"
	case errors.Is(err, types.ErrInsufficientBalance), errors.Is(err, types.ErrInsufficientLiquidity):
		return "liquidity"
	case errors.Is(err, types.ErrInvalidAmount), errors.Is(err, types.ErrInvalidRoutesLength),
		errors.Is(err, types.ErrInvalidArbPath), errors.Is(err, types.ErrInvalidCallback):
		return "validation"
	default:
		return "external"
	}
}
