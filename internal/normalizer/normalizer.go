// Package normalizer implements the OrderEventNormalizer (spec component
// D): it folds each venue's raw order-lifecycle event into the one
// vocabulary the strategy state machine understands, tracking
// a zero fill baseline per order id from placement. Both venues report
// fills as cumulative totals, and each surfaced terminal event carries
// the order's cumulative filled quantity measured from that baseline.
package normalizer

import (
	"sync"

	"github.com/shopspring/decimal"

	"arbengine/pkg/types"
)

// Normalizer converts venue-native RawOrderEvent into NormalizedOrderEvent.
// One instance is shared across both venues; it keys its last-seen-fill
// table by (venue, order_id) so CEX and DEX order ids never collide.
type Normalizer struct {
	mu          sync.Mutex
	lastCumFill map[orderKey]decimal.Decimal
}

type orderKey struct {
	venue   types.Venue
	orderID string
}

// New creates an empty Normalizer.
func New() *Normalizer {
	return &Normalizer{lastCumFill: make(map[orderKey]decimal.Decimal)}
}

// cexTerminal and dexTerminal map each venue's raw status strings to the
// kind of terminal transition they represent. Non-terminal/partial
// progress statuses are intentionally absent: the strategy machine only
// reacts to an order reaching a final state, never to fill progress.
var cexTerminal = map[string]types.OrderEventKind{
	"FILLED":   types.AllFilled,
	"CANCELED": types.AllCanceled,
	"EXPIRED":  types.AllCanceled,
	"REJECTED": types.AllCanceled,
}

var dexTerminal = map[string]types.OrderEventKind{
	"filled":   types.AllFilled,
	"canceled": types.AllCanceled,
	"rejected": types.AllCanceled,
	"expired":  types.AllCanceled,
}

// Normalize converts one raw venue event. ok is false when the event
// carries no terminal state worth surfacing (e.g. a CEX PARTIALLY_FILLED
// progress tick, or a DEX "filled" status whose cumSz hasn't actually
// reached sz — the venue adapter already demotes that case to "partial").
// A canceled/expired/rejected terminal event with a positive cumulative
// fill is classified as PartialFilledCanceled, matching spec.md §4.D.
func (n *Normalizer) Normalize(raw types.RawOrderEvent) (types.NormalizedOrderEvent, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()

	key := orderKey{venue: raw.Venue, orderID: raw.OrderID}
	last, seen := n.lastCumFill[key]
	if !seen {
		last = decimal.Zero
	}
	inc := raw.CumFilledQty.Sub(last)
	if inc.IsNegative() {
		inc = decimal.Zero
	}

	var terminalMap map[string]types.OrderEventKind
	switch raw.Venue {
	case types.CEX:
		terminalMap = cexTerminal
	case types.DEX:
		terminalMap = dexTerminal
	}

	kind, terminal := terminalMap[raw.Status]
	if !terminal {
		// Progress event: neither surfaced nor recorded, so the eventual
		// terminal event still reports the order's whole cumulative fill.
		return types.NormalizedOrderEvent{}, false
	}

	delete(n.lastCumFill, key)

	if kind == types.AllCanceled && inc.IsPositive() {
		kind = types.PartialFilledCanceled
	}

	return types.NormalizedOrderEvent{
		Venue:        raw.Venue,
		OrderID:      raw.OrderID,
		Kind:         kind,
		CumFilledQty: inc,
	}, true
}

// Track records an order id as newly placed, so a later terminal event
// computes its incremental fill against zero rather than a stale entry
// from a previous order that reused an id space (defensive; venues don't
// reuse ids, but the table must not grow unbounded after an event is
// missed entirely). Called when the strategy machine places an order.
func (n *Normalizer) Track(venue types.Venue, orderID string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.lastCumFill[orderKey{venue: venue, orderID: orderID}] = decimal.Zero
}
