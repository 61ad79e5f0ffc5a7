package trader

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/tokenwatch/tokenwatch/internal/domain"
	"github.com/tokenwatch/tokenwatch/internal/observability"
)

// ---------------------------------------------------------------------------
// Action Dispatcher — maps status transitions to trade actions, exactly once
// ---------------------------------------------------------------------------

// Action is an outbound trade instruction.
type Action string

const (
	ActionBuy  Action = "buy"
	ActionSell Action = "sell"
)

// TradeExecutor places an order with the external trading collaborator.
type TradeExecutor interface {
	Execute(ctx context.Context, tokenAddress string, action Action) error
}

// Notifier sends a human-readable notice. Best-effort.
type Notifier interface {
	Notify(ctx context.Context, text string) error
}

// addressState is the per-address dedup record. Its mutex serializes
// concurrent dispatches for one address so a transition fires exactly once.
type addressState struct {
	mu   sync.Mutex
	last domain.Status
	seen bool
}

// Dispatcher fires trade actions on status transitions.
//
// Invariants:
//   - none -> pumped fires a buy, any -> rugged fires a sell.
//   - A repeat of the last-dispatched status for an address fires nothing,
//     even across concurrent evaluations of that address.
//   - Execution failure is reported, never propagated: the stored snapshot
//     and status stay as recorded.
type Dispatcher struct {
	executor TradeExecutor
	notifier Notifier // may be nil
	dryRun   bool

	mu    sync.Mutex
	state map[string]*addressState // token address -> dedup state

	buys     *observability.Counter
	sells    *observability.Counter
	failures *observability.Counter
}

// NewDispatcher creates an action dispatcher.
// If dryRun is true, actions are logged but never sent to the executor.
func NewDispatcher(executor TradeExecutor, notifier Notifier, dryRun bool, registry *observability.Registry) *Dispatcher {
	return &Dispatcher{
		executor: executor,
		notifier: notifier,
		dryRun:   dryRun,
		state:    make(map[string]*addressState),
		buys:     registry.NewCounter("tokenwatch_trades_buy_total", "Buy actions dispatched", nil),
		sells:    registry.NewCounter("tokenwatch_trades_sell_total", "Sell actions dispatched", nil),
		failures: registry.NewCounter("tokenwatch_trades_failed_total", "Trade executions that returned an error", nil),
	}
}

// Dispatch fires the action for a status transition, at most once per
// transition. previous is the status recorded before this evaluation; the
// dispatcher's own per-address state wins over it when the two disagree
// (a concurrent evaluation may already have acted).
func (d *Dispatcher) Dispatch(ctx context.Context, previous, next domain.Status, tokenAddress string) {
	st := d.addressState(tokenAddress)

	st.mu.Lock()
	if !st.seen {
		st.last = previous
		st.seen = true
	}
	action, ok := transitionAction(st.last, next)
	st.last = next
	st.mu.Unlock()

	if !ok {
		return
	}

	d.fire(ctx, tokenAddress, action)
}

// addressState returns the dedup record for an address, creating it on first use.
func (d *Dispatcher) addressState(tokenAddress string) *addressState {
	d.mu.Lock()
	defer d.mu.Unlock()
	st, ok := d.state[tokenAddress]
	if !ok {
		st = &addressState{}
		d.state[tokenAddress] = st
	}
	return st
}

// transitionAction maps a status transition to a trade action.
func transitionAction(last, next domain.Status) (Action, bool) {
	if next == last {
		return "", false
	}
	switch next {
	case domain.StatusPumped:
		if last == domain.StatusNone {
			return ActionBuy, true
		}
	case domain.StatusRugged:
		return ActionSell, true
	}
	return "", false
}

// fire executes the action and reports the outcome. Fire-and-forget from the
// pipeline's perspective: errors are logged and notified, not returned.
func (d *Dispatcher) fire(ctx context.Context, tokenAddress string, action Action) {
	tradeID := uuid.New().String()[:16]

	if d.dryRun {
		log.Info().
			Str("trade_id", tradeID).
			Str("token", tokenAddress).
			Str("action", string(action)).
			Msg("dispatcher: DRY RUN, would execute trade")
		return
	}

	if err := d.executor.Execute(ctx, tokenAddress, action); err != nil {
		d.failures.Inc()
		log.Error().Err(err).
			Str("trade_id", tradeID).
			Str("token", tokenAddress).
			Str("action", string(action)).
			Msg("dispatcher: trade execution failed")
		d.notify(ctx, fmt.Sprintf("Trade FAILED: %s %s (%v)", action, tokenAddress, err))
		return
	}

	switch action {
	case ActionBuy:
		d.buys.Inc()
	case ActionSell:
		d.sells.Inc()
	}

	log.Info().
		Str("trade_id", tradeID).
		Str("token", tokenAddress).
		Str("action", string(action)).
		Msg("dispatcher: trade executed")
	d.notify(ctx, fmt.Sprintf("%s order executed for token: %s", capitalize(string(action)), tokenAddress))
}

// notify sends a best-effort notice; failures are logged, never propagated.
func (d *Dispatcher) notify(ctx context.Context, text string) {
	if d.notifier == nil {
		return
	}
	if err := d.notifier.Notify(ctx, text); err != nil {
		log.Warn().Err(err).Msg("dispatcher: notification failed")
	}
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
