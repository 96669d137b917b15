package scan_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/vetkas2023/smart-fridge-frontend/gateway"
	"github.com/vetkas2023/smart-fridge-frontend/scan"
)

// fakeInventory records calls; setting blockQuery makes GetFridgeProducts
// wait until the channel is closed, to hold a reconciliation in flight.
type fakeInventory struct {
	queryResp *gateway.FridgeProductList
	queryErr  error

	createResp *gateway.FridgeProduct
	createErr  error

	queryCalls  atomic.Int64
	createCalls atomic.Int64

	lastFilter gateway.FridgeProductFilter
	lastCreate gateway.CreateFridgeProductRequest

	blockQuery chan struct{}
}

func (f *fakeInventory) GetFridgeProducts(ctx context.Context, filter gateway.FridgeProductFilter) (*gateway.FridgeProductList, error) {
	f.queryCalls.Add(1)
	f.lastFilter = filter
	if f.blockQuery != nil {
		<-f.blockQuery
	}
	return f.queryResp, f.queryErr
}

func (f *fakeInventory) CreateFridgeProduct(ctx context.Context, req gateway.CreateFridgeProductRequest) (*gateway.FridgeProduct, error) {
	f.createCalls.Add(1)
	f.lastCreate = req
	return f.createResp, f.createErr
}

func TestNewRequiresInventory(t *testing.T) {
	_, err := scan.New(nil)
	require.Error(t, err)
}

func TestResolveLinksToExistingRecord(t *testing.T) {
	inv := &fakeInventory{
		queryResp: &gateway.FridgeProductList{Items: []gateway.FridgeProduct{
			{ID: 9, FridgeID: 7, ProductID: 42},
			{ID: 10, FridgeID: 7, ProductID: 42},
		}},
	}
	r, err := scan.New(inv)
	require.NoError(t, err)

	outcome, err := r.Resolve(context.Background(), scan.ScanEvent{Payload: `{"id": 42}`, FridgeID: 7})
	require.NoError(t, err)
	require.Equal(t, scan.OutcomeLinked, outcome.Kind)
	require.EqualValues(t, 9, outcome.Record.ID, "first match is authoritative")
	require.EqualValues(t, 1, inv.queryCalls.Load())
	require.EqualValues(t, 0, inv.createCalls.Load(), "no create call when a record exists")

	require.NotNil(t, inv.lastFilter.ProductIDEq)
	require.EqualValues(t, 42, *inv.lastFilter.ProductIDEq)
	require.NotNil(t, inv.lastFilter.FridgeIDEq)
	require.EqualValues(t, 7, *inv.lastFilter.FridgeIDEq)
}

func TestResolveCreatesWhenAbsent(t *testing.T) {
	inv := &fakeInventory{
		queryResp:  &gateway.FridgeProductList{Items: []gateway.FridgeProduct{}},
		createResp: &gateway.FridgeProduct{ID: 11, FridgeID: 7, ProductID: 42},
	}
	r, err := scan.New(inv)
	require.NoError(t, err)

	outcome, err := r.Resolve(context.Background(), scan.ScanEvent{Payload: "42", FridgeID: 7})
	require.NoError(t, err)
	require.Equal(t, scan.OutcomeCreated, outcome.Kind)
	require.EqualValues(t, 11, outcome.Record.ID)
	require.EqualValues(t, 1, inv.queryCalls.Load())
	require.EqualValues(t, 1, inv.createCalls.Load())
	require.EqualValues(t, 7, inv.lastCreate.FridgeID)
	require.EqualValues(t, 42, inv.lastCreate.ProductID)
}

func TestResolveDecodeFailureSkipsBackend(t *testing.T) {
	inv := &fakeInventory{}
	r, err := scan.New(inv)
	require.NoError(t, err)

	_, err = r.Resolve(context.Background(), scan.ScanEvent{Payload: "not-a-code", FridgeID: 7})
	require.ErrorIs(t, err, scan.ErrDecode)
	require.EqualValues(t, 0, inv.queryCalls.Load())
	require.EqualValues(t, 0, inv.createCalls.Load())
}

func TestResolveQueryFailure(t *testing.T) {
	inv := &fakeInventory{queryErr: gateway.ErrServerError}
	r, err := scan.New(inv)
	require.NoError(t, err)

	_, err = r.Resolve(context.Background(), scan.ScanEvent{Payload: "42", FridgeID: 7})
	require.ErrorIs(t, err, gateway.ErrServerError)
	require.Contains(t, err.Error(), "fridge 7")
	require.Contains(t, err.Error(), "product 42")
	require.EqualValues(t, 0, inv.createCalls.Load())
}

func TestResolveCreateFailure(t *testing.T) {
	inv := &fakeInventory{
		queryResp: &gateway.FridgeProductList{},
		createErr: errors.New("boom"),
	}
	r, err := scan.New(inv)
	require.NoError(t, err)

	_, err = r.Resolve(context.Background(), scan.ScanEvent{Payload: "42", FridgeID: 7})
	require.Error(t, err)
	require.Contains(t, err.Error(), "fridge 7")
	require.Contains(t, err.Error(), "product 42")
	require.Contains(t, err.Error(), "create")
}

func TestResolveDuplicateEventDropped(t *testing.T) {
	inv := &fakeInventory{
		queryResp:  &gateway.FridgeProductList{},
		createResp: &gateway.FridgeProduct{ID: 11, FridgeID: 7, ProductID: 42},
		blockQuery: make(chan struct{}),
	}
	r, err := scan.New(inv)
	require.NoError(t, err)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		outcome, err := r.Resolve(context.Background(), scan.ScanEvent{Payload: "42", FridgeID: 7})
		require.NoError(t, err)
		require.Equal(t, scan.OutcomeCreated, outcome.Kind)
	}()

	// Wait until the first reconciliation holds the guard inside the query.
	require.Eventually(t, func() bool { return inv.queryCalls.Load() == 1 }, 2*time.Second, 10*time.Millisecond)

	// The rapid duplicate detection of the same code is dropped, not queued.
	_, err = r.Resolve(context.Background(), scan.ScanEvent{Payload: "42", FridgeID: 7})
	require.ErrorIs(t, err, scan.ErrScanInFlight)

	close(inv.blockQuery)
	wg.Wait()

	require.EqualValues(t, 1, inv.queryCalls.Load(), "exactly one query for the pair of events")
	require.EqualValues(t, 1, inv.createCalls.Load(), "at most one create for the pair of events")
}

func TestResolveRearmsAfterCompletion(t *testing.T) {
	inv := &fakeInventory{
		queryResp: &gateway.FridgeProductList{Items: []gateway.FridgeProduct{{ID: 9, FridgeID: 7, ProductID: 42}}},
	}
	r, err := scan.New(inv)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		outcome, err := r.Resolve(context.Background(), scan.ScanEvent{Payload: "42", FridgeID: 7})
		require.NoError(t, err)
		require.Equal(t, scan.OutcomeLinked, outcome.Kind)
	}
	require.EqualValues(t, 3, inv.queryCalls.Load())
}

func TestResolveRearmsAfterDecodeFailure(t *testing.T) {
	inv := &fakeInventory{
		queryResp: &gateway.FridgeProductList{Items: []gateway.FridgeProduct{{ID: 9}}},
	}
	r, err := scan.New(inv)
	require.NoError(t, err)

	_, err = r.Resolve(context.Background(), scan.ScanEvent{Payload: "garbage", FridgeID: 7})
	require.ErrorIs(t, err, scan.ErrDecode)

	outcome, err := r.Resolve(context.Background(), scan.ScanEvent{Payload: "42", FridgeID: 7})
	require.NoError(t, err)
	require.Equal(t, scan.OutcomeLinked, outcome.Kind)
}
