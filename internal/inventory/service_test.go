package inventory

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func newTestService(t *testing.T, seed ...Product) (*Service, *MemStore) {
	t.Helper()
	store := NewMemStore(seed...)
	return NewService(store, zap.NewNop(), nil), store
}

func snapshot(t *testing.T, s Store) []Record {
	t.Helper()
	recs, err := s.Load(context.Background())
	require.NoError(t, err)
	return recs
}

var widget = Product{Name: "Widget", Category: "Tools", Quantity: 10, Price: 2.5}

func TestService_Add(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	p, err := svc.Add(ctx, "  Widget ", " Tools", "10", "2.50")
	require.NoError(t, err)
	assert.Equal(t, widget, p)

	all, err := svc.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []Product{widget}, all)
	assert.Equal(t, []Record{{Name: "Widget", Category: "Tools", Quantity: "10", Price: "2.5"}}, snapshot(t, store))
}

func TestService_AddValidation(t *testing.T) {
	testCases := []struct {
		name     string
		product  [4]string
		expected error
	}{
		{name: "quantity not a number", product: [4]string{"Gear", "Tools", "ten", "1"}, expected: ErrInvalidInput},
		{name: "quantity is a decimal", product: [4]string{"Gear", "Tools", "1.5", "1"}, expected: ErrInvalidInput},
		{name: "price not a number", product: [4]string{"Gear", "Tools", "1", "cheap"}, expected: ErrInvalidInput},
		{name: "price NaN", product: [4]string{"Gear", "Tools", "1", "NaN"}, expected: ErrInvalidInput},
		{name: "zero quantity", product: [4]string{"Gear", "Tools", "0", "1"}, expected: ErrInvalidRange},
		{name: "negative price", product: [4]string{"Gear", "Tools", "1", "-1"}, expected: ErrInvalidRange},
		{name: "blank name", product: [4]string{"   ", "Tools", "1", "1"}, expected: ErrMissingField},
		{name: "blank category", product: [4]string{"Gear", "", "1", "1"}, expected: ErrMissingField},
		{name: "duplicate ignoring case", product: [4]string{"widget", "Gadgets", "1", "1.00"}, expected: ErrDuplicateRecord},
		{name: "numbers checked before names", product: [4]string{"", "", "x", "1"}, expected: ErrInvalidInput},
		{name: "range checked before duplicates", product: [4]string{"Widget", "Tools", "-1", "1"}, expected: ErrInvalidRange},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			svc, store := newTestService(t, widget)
			before := snapshot(t, store)

			_, err := svc.Add(context.Background(), tc.product[0], tc.product[1], tc.product[2], tc.product[3])

			assert.ErrorIs(t, err, tc.expected)
			assert.Equal(t, before, snapshot(t, store))
		})
	}
}

func TestService_AdjustQuantity(t *testing.T) {
	testCases := []struct {
		name     string
		product  string
		delta    string
		expected error
		quantity int
	}{
		{name: "decrease", product: "Widget", delta: "-8", quantity: 2},
		{name: "increase by max", product: "Widget", delta: "100", quantity: 110},
		{name: "decrease to one", product: "Widget", delta: "-9", quantity: 1},
		{name: "name ignores case", product: "WIDGET", delta: "+5", quantity: 15},
		{name: "below zero", product: "Widget", delta: "-15", expected: ErrInvalidRange},
		{name: "exactly zero", product: "Widget", delta: "-10", expected: ErrInvalidRange},
		{name: "too large", product: "Widget", delta: "150", expected: ErrDeltaTooLarge},
		{name: "not a number", product: "Widget", delta: "lots", expected: ErrInvalidInput},
		{name: "unknown product", product: "Gizmo", delta: "1", expected: ErrNotFound},
		{name: "unknown product checked first", product: "Gizmo", delta: "lots", expected: ErrNotFound},
		{name: "just over max", product: "Widget", delta: "101", expected: ErrDeltaTooLarge},
		{name: "just under negative max", product: "Widget", delta: "-101", expected: ErrInvalidRange},
		{name: "max int64", product: "Widget", delta: "9223372036854775807", expected: ErrDeltaTooLarge},
		{name: "beyond int64", product: "Widget", delta: "9223372036854775808", expected: ErrDeltaTooLarge},
		{name: "beyond negative int64", product: "Widget", delta: "-99999999999999999999", expected: ErrInvalidRange},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			svc, store := newTestService(t, widget)
			before := snapshot(t, store)

			p, err := svc.AdjustQuantity(context.Background(), tc.product, tc.delta)

			if tc.expected != nil {
				assert.ErrorIs(t, err, tc.expected)
				assert.Equal(t, before, snapshot(t, store))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.quantity, p.Quantity)

			all, err := svc.List(context.Background())
			require.NoError(t, err)
			require.Len(t, all, 1)
			assert.Equal(t, tc.quantity, all[0].Quantity)
		})
	}
}

func TestService_AdjustQuantityLargeStock(t *testing.T) {
	crate := Product{Name: "Crate", Category: "Storage", Quantity: 500, Price: 12}
	svc, store := newTestService(t, crate)
	ctx := context.Background()
	before := snapshot(t, store)

	_, err := svc.AdjustQuantity(ctx, "Crate", "-101")
	assert.ErrorIs(t, err, ErrDeltaTooLarge)
	assert.Equal(t, before, snapshot(t, store))

	p, err := svc.AdjustQuantity(ctx, "Crate", "-100")
	require.NoError(t, err)
	assert.Equal(t, 400, p.Quantity)
}

func TestService_AdjustThenLowStock(t *testing.T) {
	bolt := Product{Name: "Bolt", Category: "Hardware", Quantity: 3, Price: 0.1}
	nut := Product{Name: "Nut", Category: "Hardware", Quantity: 5, Price: 0.05}
	svc, _ := newTestService(t, bolt, widget, nut)
	ctx := context.Background()

	low, err := svc.LowStock(ctx)
	require.NoError(t, err)
	assert.Equal(t, []Product{bolt}, low)

	_, err = svc.AdjustQuantity(ctx, "Widget", "-8")
	require.NoError(t, err)

	low, err = svc.LowStock(ctx)
	require.NoError(t, err)
	require.Len(t, low, 2)
	assert.Equal(t, "Bolt", low[0].Name)
	assert.Equal(t, "Widget", low[1].Name)
	assert.Equal(t, 2, low[1].Quantity)
}

func TestService_Remove(t *testing.T) {
	bolt := Product{Name: "Bolt", Category: "Hardware", Quantity: 3, Price: 0.1}
	svc, store := newTestService(t, widget, bolt)
	ctx := context.Background()

	require.NoError(t, svc.Remove(ctx, "Widget"))

	all, err := svc.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []Product{bolt}, all)

	before := snapshot(t, store)
	err = svc.Remove(ctx, "Widget")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, before, snapshot(t, store))
}

func TestService_RemoveStorageFailure(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	store := NewMemStore(widget)
	svc := NewService(store, zap.New(core), nil)

	store.Fail(errors.New("disk gone"))
	err := svc.Remove(context.Background(), "Widget")

	assert.ErrorIs(t, err, ErrOperationFailed)
	assert.NotErrorIs(t, err, ErrStorageUnavailable)
	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "remove product failed", logs.All()[0].Message)
}

func TestService_StorageFailurePropagates(t *testing.T) {
	svc, store := newTestService(t, widget)
	store.Fail(errors.New("disk gone"))
	ctx := context.Background()

	_, err := svc.List(ctx)
	assert.ErrorIs(t, err, ErrStorageUnavailable)

	_, err = svc.LowStock(ctx)
	assert.ErrorIs(t, err, ErrStorageUnavailable)

	_, err = svc.Add(ctx, "Gear", "Tools", "1", "1")
	assert.ErrorIs(t, err, ErrStorageUnavailable)

	_, err = svc.AdjustQuantity(ctx, "Widget", "1")
	assert.ErrorIs(t, err, ErrStorageUnavailable)
}

func TestService_MalformedStoredQuantity(t *testing.T) {
	store := NewMemStore()
	require.NoError(t, store.Save(context.Background(), []Record{{Name: "Widget", Category: "Tools", Quantity: "many", Price: "1"}}))
	svc := NewService(store, nil, nil)

	_, err := svc.List(context.Background())
	assert.ErrorIs(t, err, ErrStorageUnavailable)
	assert.ErrorIs(t, err, ErrMalformedRecord)
}

func TestService_WithFileStore(t *testing.T) {
	fs := NewFileStore(filepath.Join(t.TempDir(), "inventory.csv"))
	require.NoError(t, fs.EnsureExists())
	svc := NewService(fs, zap.NewNop(), nil)
	ctx := context.Background()

	_, err := svc.Add(ctx, "Widget", "Tools", "10", "2.50")
	require.NoError(t, err)
	_, err = svc.Add(ctx, "widget", "Gadgets", "1", "1.00")
	assert.ErrorIs(t, err, ErrDuplicateRecord)

	_, err = svc.AdjustQuantity(ctx, "Widget", "-15")
	assert.ErrorIs(t, err, ErrInvalidRange)
	_, err = svc.AdjustQuantity(ctx, "Widget", "150")
	assert.ErrorIs(t, err, ErrDeltaTooLarge)
	_, err = svc.AdjustQuantity(ctx, "Widget", "-8")
	require.NoError(t, err)

	low, err := svc.LowStock(ctx)
	require.NoError(t, err)
	assert.Equal(t, []Product{{Name: "Widget", Category: "Tools", Quantity: 2, Price: 2.5}}, low)

	require.NoError(t, svc.Remove(ctx, "Widget"))
	all, err := svc.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestService_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	svc := NewService(NewMemStore(widget), zap.NewNop(), m)
	ctx := context.Background()

	_, _ = svc.Add(ctx, "Bolt", "Hardware", "2", "0.1")
	_, _ = svc.Add(ctx, "Bolt", "Hardware", "2", "0.1")
	_, _ = svc.LowStock(ctx)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Operations.WithLabelValues("add", resultOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Operations.WithLabelValues("add", resultError)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.LowStock))

	err := testutil.GatherAndCompare(reg, strings.NewReader(`
# HELP inventory_low_stock_products Products below the low-stock threshold at the last listing
# TYPE inventory_low_stock_products gauge
inventory_low_stock_products 1
`), "inventory_low_stock_products")
	assert.NoError(t, err)
}

func TestService_ConcurrentAdjustmentsAreNotLost(t *testing.T) {
	const workers = 40

	fs := NewFileStore(filepath.Join(t.TempDir(), "inventory.csv"))
	require.NoError(t, fs.Save(context.Background(), []Record{widget.Record()}))
	svc := NewService(fs, zap.NewNop(), nil)

	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.AdjustQuantity(context.Background(), "Widget", "1")
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}

	all, err := svc.List(context.Background())
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, widget.Quantity+workers, all[0].Quantity)
}
