package scan

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/vetkas2023/smart-fridge-frontend/gateway"
	"github.com/vetkas2023/smart-fridge-frontend/internal/utils"
)

// ErrScanInFlight means a reconciliation is already running; the duplicate
// event is dropped, not queued.
var ErrScanInFlight = errors.New("scan already in flight")

// Inventory is the slice of the gateway the reconciler needs.
type Inventory interface {
	GetFridgeProducts(ctx context.Context, filter gateway.FridgeProductFilter) (*gateway.FridgeProductList, error)
	CreateFridgeProduct(ctx context.Context, req gateway.CreateFridgeProductRequest) (*gateway.FridgeProduct, error)
}

// ScanEvent is one decoded QR detection aimed at a fridge. Ephemeral; it
// lives for the duration of a single reconciliation attempt.
type ScanEvent struct {
	Payload  string
	FridgeID int64
}

// OutcomeKind is the terminal result of a reconciliation.
type OutcomeKind int

const (
	// OutcomeLinked means the scanned product already had a record in the
	// target fridge.
	OutcomeLinked OutcomeKind = iota + 1
	// OutcomeCreated means a new record was created for the scan.
	OutcomeCreated
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeLinked:
		return "linked"
	case OutcomeCreated:
		return "created"
	default:
		return "unknown"
	}
}

// Outcome is the single terminal result delivered per scan.
type Outcome struct {
	Kind   OutcomeKind
	Record gateway.FridgeProduct
}

// Reconciler decides link-or-create for scanned products. At most one
// reconciliation runs at a time; duplicate detections of the same code by a
// trigger-happy scanner are rejected while one is in flight.
type Reconciler struct {
	inventory Inventory
	logger    zerolog.Logger
	inFlight  atomic.Bool
}

// ReconcilerOption configures a Reconciler.
type ReconcilerOption func(*Reconciler)

// WithLogger sets the reconciler's logger.
func WithLogger(logger zerolog.Logger) ReconcilerOption {
	return func(r *Reconciler) { r.logger = logger }
}

// New initializes a Reconciler.
func New(inventory Inventory, options ...ReconcilerOption) (*Reconciler, error) {
	if inventory == nil {
		return nil, errors.New("[scan.New] inventory is required")
	}
	r := &Reconciler{inventory: inventory, logger: zerolog.Nop()}
	for _, opt := range options {
		opt(r)
	}
	return r, nil
}

// Resolve runs one reconciliation: decode the payload, query for an existing
// record in the target fridge, and either link to it or create a new one.
// The existence query strictly precedes any create call. A second Resolve
// while one is in flight returns ErrScanInFlight immediately; the guard
// re-arms on every terminal path.
func (r *Reconciler) Resolve(ctx context.Context, event ScanEvent) (*Outcome, error) {
	if !r.inFlight.CompareAndSwap(false, true) {
		return nil, ErrScanInFlight
	}
	defer r.inFlight.Store(false)

	productID, err := DecodePayload(event.Payload)
	if err != nil {
		return nil, fmt.Errorf("reconcile fridge %d: %w", event.FridgeID, err)
	}

	list, err := r.inventory.GetFridgeProducts(ctx, gateway.FridgeProductFilter{
		ProductIDEq: utils.Ptr(productID),
		FridgeIDEq:  utils.Ptr(event.FridgeID),
	})
	if err != nil {
		return nil, fmt.Errorf("reconcile fridge %d product %d: query: %w", event.FridgeID, productID, err)
	}

	if len(list.Items) > 0 {
		// The first match is authoritative; no create call is made.
		record := list.Items[0]
		r.logger.Info().Int64("fridge_id", event.FridgeID).Int64("product_id", productID).
			Int64("record_id", record.ID).Msg("scan linked to existing record")
		return &Outcome{Kind: OutcomeLinked, Record: record}, nil
	}

	record, err := r.inventory.CreateFridgeProduct(ctx, gateway.CreateFridgeProductRequest{
		FridgeID:  event.FridgeID,
		ProductID: productID,
	})
	if err != nil {
		return nil, fmt.Errorf("reconcile fridge %d product %d: create: %w", event.FridgeID, productID, err)
	}

	r.logger.Info().Int64("fridge_id", event.FridgeID).Int64("product_id", productID).
		Int64("record_id", record.ID).Msg("scan created new record")
	return &Outcome{Kind: OutcomeCreated, Record: *record}, nil
}
