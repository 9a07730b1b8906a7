// Package ledger runs fund engine commands against the daemon's state store.
// Each command executes on a fresh overlay that is committed only when the
// command succeeds; events reach the sink after the commit.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"fundchain/core/events"
	"fundchain/core/state"
	"fundchain/crypto"
	"fundchain/native/bank"
	nativecommon "fundchain/native/common"
	"fundchain/native/fund"
	"fundchain/observability/metrics"
)

var (
	fundIndexKey = []byte("fundd/funds")
	quotaPrefix  = []byte("fundd/quota/")
)

// Collaborators are the external services handed to every engine instance.
type Collaborators struct {
	Fees   fund.FeeSchedule
	Roles  fund.RoleLookup
	Tokens fund.TokenWhitelist
	Oracle fund.PriceOracle
	Pauses nativecommon.PauseView
}

// Policy holds runner-wide tunables.
type Policy struct {
	MaxPriceAge time.Duration
	PriceBand   *uint256.Int
	Quota       nativecommon.Quota
}

// Command identifies one state-changing request.
type Command struct {
	Name   string
	Caller common.Address
	Fund   common.Address
	// Volume is the raw token amount charged against the caller's quota.
	Volume uint64
}

// Tx is the unit of work handed to a command body.
type Tx struct {
	Engine  *fund.Engine
	Bank    *bank.Ledger
	overlay *state.Overlay
}

// RegisterFund records addr in the daemon's fund index.
func (tx *Tx) RegisterFund(addr common.Address) error {
	return tx.overlay.KVAppend(fundIndexKey, addr.Bytes())
}

// Runner serializes commands over a single state manager. Token balances are
// shared across funds, so all writes take one lock; reads share it.
type Runner struct {
	mu     sync.RWMutex
	state  *state.Manager
	collab Collaborators
	policy Policy
	sink   events.Emitter
	logger *slog.Logger
	now    func() time.Time
}

// Option configures a Runner.
type Option func(*Runner)

// WithLogger installs a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Runner) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithSink receives committed events.
func WithSink(sink events.Emitter) Option {
	return func(r *Runner) { r.sink = sink }
}

// WithClock overrides the wall clock.
func WithClock(now func() time.Time) Option {
	return func(r *Runner) {
		if now != nil {
			r.now = now
		}
	}
}

// New constructs a runner.
func New(manager *state.Manager, collab Collaborators, policy Policy, opts ...Option) (*Runner, error) {
	if manager == nil {
		return nil, fmt.Errorf("state manager required")
	}
	if policy.PriceBand != nil && !policy.PriceBand.Lt(uint256.NewInt(fund.ScaledOne)) {
		return nil, fmt.Errorf("price band must be below one")
	}
	r := &Runner{
		state:  manager,
		collab: collab,
		policy: policy,
		sink:   events.NoopEmitter{},
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	if r.sink == nil {
		r.sink = events.NoopEmitter{}
	}
	return r, nil
}

// Now returns the runner's clock reading.
func (r *Runner) Now() time.Time { return r.now() }

func (r *Runner) engine(store *state.Overlay, emitter events.Emitter) (*fund.Engine, *bank.Ledger, error) {
	ledger := bank.NewLedger(store)
	eng := fund.NewEngine()
	eng.SetState(fund.NewStateStore(store))
	eng.SetTokenRail(ledger)
	eng.SetShareLedger(ledger)
	if r.collab.Fees != nil {
		eng.SetFeeSchedule(r.collab.Fees)
	}
	if r.collab.Roles != nil {
		eng.SetRoleLookup(r.collab.Roles)
	}
	if r.collab.Tokens != nil {
		eng.SetTokenWhitelist(r.collab.Tokens)
	}
	if r.collab.Oracle != nil {
		eng.SetPriceOracle(r.collab.Oracle)
	}
	if r.collab.Pauses != nil {
		eng.SetPauses(r.collab.Pauses)
	}
	eng.SetEmitter(emitter)
	eng.SetNowFunc(func() int64 { return r.now().Unix() })
	if r.policy.MaxPriceAge > 0 || r.policy.PriceBand != nil {
		maxAge := uint64(300)
		if r.policy.MaxPriceAge > 0 {
			maxAge = uint64(r.policy.MaxPriceAge / time.Second)
		}
		if err := eng.SetPricePolicy(maxAge, r.policy.PriceBand); err != nil {
			return nil, nil, err
		}
	}
	return eng, ledger, nil
}

// Execute runs body as cmd. The overlay is committed only when body returns
// nil; buffered events are then forwarded to the sink in emission order.
func (r *Runner) Execute(ctx context.Context, cmd Command, body func(tx *Tx) error) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}
	ctx, span := otel.Tracer("fundd/ledger").Start(ctx, "fund."+cmd.Name)
	span.SetAttributes(
		attribute.String("fund.command", cmd.Name),
		attribute.String("fund.address", crypto.Display(crypto.AccountPrefix, cmd.Fund)),
	)
	started := time.Now()
	defer func() {
		kind := ""
		if err != nil {
			kind = KindLabel(err)
			span.RecordError(err)
			span.SetStatus(codes.Error, kind)
		}
		span.End()
		metrics.Fund().ObserveCommand(cmd.Name, kind, time.Since(started))
	}()

	r.mu.Lock()
	defer r.mu.Unlock()

	overlay := r.state.Begin()
	defer overlay.Discard()

	if err := r.chargeQuota(overlay, cmd); err != nil {
		return err
	}
	buffer := &events.Buffer{}
	eng, ledger, err := r.engine(overlay, buffer)
	if err != nil {
		return err
	}
	if err := body(&Tx{Engine: eng, Bank: ledger, overlay: overlay}); err != nil {
		r.logger.DebugContext(ctx, "fund command rejected",
			"command", cmd.Name,
			"caller", crypto.Display(crypto.AccountPrefix, cmd.Caller),
			"kind", KindLabel(err),
			"error", err)
		return err
	}
	if err := overlay.Commit(); err != nil {
		return fmt.Errorf("commit %s: %w", cmd.Name, err)
	}
	flushed := buffer.Flush(r.sink)
	r.logger.InfoContext(ctx, "fund command applied",
		"command", cmd.Name,
		"fund", crypto.Display(crypto.AccountPrefix, cmd.Fund),
		"caller", crypto.Display(crypto.AccountPrefix, cmd.Caller),
		"events", flushed)
	return nil
}

// View runs body against a read-only overlay.
func (r *Runner) View(ctx context.Context, body func(eng *fund.Engine, ledger *bank.Ledger) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	overlay := r.state.Begin()
	defer overlay.Discard()
	eng, ledger, err := r.engine(overlay, events.NoopEmitter{})
	if err != nil {
		return err
	}
	return body(eng, ledger)
}

// Funds lists every fund initialized through this daemon.
func (r *Runner) Funds() ([]common.Address, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var raw [][]byte
	if err := r.state.KVGetList(fundIndexKey, &raw); err != nil {
		return nil, err
	}
	out := make([]common.Address, 0, len(raw))
	for _, b := range raw {
		out = append(out, common.BytesToAddress(b))
	}
	return out, nil
}

func quotaKey(command string, caller common.Address) []byte {
	key := make([]byte, 0, len(quotaPrefix)+len(command)+1+common.AddressLength)
	key = append(key, quotaPrefix...)
	key = append(key, command...)
	key = append(key, '/')
	return append(key, caller.Bytes()...)
}

func (r *Runner) chargeQuota(overlay *state.Overlay, cmd Command) error {
	q := r.policy.Quota
	if !q.Enabled() || cmd.Caller == (common.Address{}) {
		return nil
	}
	key := quotaKey(cmd.Name, cmd.Caller)
	var prev nativecommon.QuotaNow
	if _, err := overlay.KVGet(key, &prev); err != nil {
		return err
	}
	next, err := nativecommon.CheckQuota(q, q.EpochAt(r.now().Unix()), prev, 1, cmd.Volume)
	if err != nil {
		return err
	}
	return overlay.KVPut(key, next)
}

// KindLabel classifies err for metrics and HTTP mapping.
func KindLabel(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, nativecommon.ErrQuotaRequestsExceeded),
		errors.Is(err, nativecommon.ErrQuotaVolumeExceeded),
		errors.Is(err, nativecommon.ErrQuotaCounterOverflow):
		return "quota"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return fund.KindOf(err).String()
	}
}
