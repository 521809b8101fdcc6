package inventory

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"

	"go.uber.org/zap"
)

const (
	LowStockThreshold = 5
	MaxDelta          = 100
)

// Service implements the inventory operations on top of a Store. Every call
// loads the full collection. Mutations hold mu from load to save.
type Service struct {
	Store   Store
	Log     *zap.Logger
	Metrics *Metrics

	mu sync.Mutex
}

func NewService(store Store, log *zap.Logger, m *Metrics) *Service {
	return &Service{Store: store, Log: log, Metrics: m}
}

func (s *Service) List(ctx context.Context) ([]Product, error) {
	recs, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	return s.products(recs)
}

// LowStock returns products with quantity below LowStockThreshold, in store order.
func (s *Service) LowStock(ctx context.Context) ([]Product, error) {
	all, err := s.List(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]Product, 0, len(all))
	for _, p := range all {
		if p.Quantity < LowStockThreshold {
			out = append(out, p)
		}
	}
	s.Metrics.setLowStock(len(out))
	return out, nil
}

func (s *Service) Add(ctx context.Context, name, category, quantityText, priceText string) (p Product, err error) {
	defer func() { s.Metrics.observe("add", err) }()

	qty, err := strconv.Atoi(strings.TrimSpace(quantityText))
	if err != nil {
		return Product{}, fmt.Errorf("%w: quantity %q", ErrInvalidInput, quantityText)
	}
	price, err := strconv.ParseFloat(strings.TrimSpace(priceText), 64)
	if err != nil || math.IsNaN(price) || math.IsInf(price, 0) {
		return Product{}, fmt.Errorf("%w: price %q", ErrInvalidInput, priceText)
	}
	if qty <= 0 || price <= 0 {
		return Product{}, fmt.Errorf("%w: quantity and price must be greater than zero", ErrInvalidRange)
	}

	name = strings.TrimSpace(name)
	category = strings.TrimSpace(category)
	if name == "" || category == "" {
		return Product{}, fmt.Errorf("%w: name and category are required", ErrMissingField)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	recs, err := s.load(ctx)
	if err != nil {
		return Product{}, err
	}
	if i := indexOf(recs, name); i >= 0 {
		return Product{}, fmt.Errorf("%w: %q", ErrDuplicateRecord, recs[i].Name)
	}

	p = Product{Name: name, Category: category, Quantity: qty, Price: price}
	if err := s.save(ctx, append(recs, p.Record())); err != nil {
		return Product{}, err
	}

	s.logger().Info("product added", zap.String("name", p.Name), zap.Int("quantity", p.Quantity))
	return p, nil
}

// AdjustQuantity applies a signed delta to an existing product. The result
// must stay above zero and |delta| may not exceed MaxDelta.
func (s *Service) AdjustQuantity(ctx context.Context, name, deltaText string) (p Product, err error) {
	defer func() { s.Metrics.observe("adjust", err) }()

	s.mu.Lock()
	defer s.mu.Unlock()

	recs, err := s.load(ctx)
	if err != nil {
		return Product{}, err
	}
	i := indexOf(recs, name)
	if i < 0 {
		return Product{}, fmt.Errorf("%w: %q", ErrNotFound, name)
	}

	// ParseInt clamps out-of-range input to MinInt64/MaxInt64, which still
	// orders correctly against the bounds below.
	delta, err := strconv.ParseInt(strings.TrimSpace(deltaText), 10, 64)
	if err != nil && !errors.Is(err, strconv.ErrRange) {
		return Product{}, fmt.Errorf("%w: delta %q", ErrInvalidInput, deltaText)
	}

	p, err = recs[i].Product()
	if err != nil {
		return Product{}, fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
	}

	if delta <= -int64(p.Quantity) {
		return Product{}, fmt.Errorf("%w: quantity %d cannot drop by %s", ErrInvalidRange, p.Quantity, strings.TrimSpace(deltaText))
	}
	if delta > MaxDelta || delta < -MaxDelta {
		return Product{}, fmt.Errorf("%w: %s exceeds ±%d", ErrDeltaTooLarge, strings.TrimSpace(deltaText), MaxDelta)
	}

	qty := p.Quantity + int(delta)
	p.Quantity = qty
	recs[i].Quantity = strconv.Itoa(qty)
	if err := s.save(ctx, recs); err != nil {
		return Product{}, err
	}

	s.logger().Info("quantity updated",
		zap.String("name", p.Name),
		zap.Int64("delta", delta),
		zap.Int("quantity", p.Quantity),
	)
	return p, nil
}

// Remove deletes the product matching name. Storage failures are logged and
// reported as ErrOperationFailed.
func (s *Service) Remove(ctx context.Context, name string) (err error) {
	defer func() { s.Metrics.observe("remove", err) }()

	s.mu.Lock()
	defer s.mu.Unlock()

	recs, err := s.load(ctx)
	if err != nil {
		s.logger().Error("remove product failed", zap.String("name", name), zap.Error(err))
		return fmt.Errorf("%w: remove %q", ErrOperationFailed, name)
	}

	i := indexOf(recs, name)
	if i < 0 {
		return fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	removed := recs[i].Name
	kept := append(recs[:i:i], recs[i+1:]...)

	if err := s.save(ctx, kept); err != nil {
		s.logger().Error("remove product failed", zap.String("name", name), zap.Error(err))
		return fmt.Errorf("%w: remove %q", ErrOperationFailed, name)
	}

	s.logger().Info("product removed", zap.String("name", removed))
	return nil
}

func (s *Service) Ping(ctx context.Context) error {
	return s.Store.Ping(ctx)
}

func (s *Service) load(ctx context.Context) ([]Record, error) {
	recs, err := s.Store.Load(ctx)
	if err != nil {
		return nil, storageErr("load", err)
	}
	return recs, nil
}

func (s *Service) save(ctx context.Context, recs []Record) error {
	if err := s.Store.Save(ctx, recs); err != nil {
		return storageErr("save", err)
	}
	return nil
}

func (s *Service) products(recs []Record) ([]Product, error) {
	out, err := toProducts(recs)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
	}
	return out, nil
}

func storageErr(op string, err error) error {
	if errors.Is(err, ErrStorageUnavailable) {
		return fmt.Errorf("%s products: %w", op, err)
	}
	return fmt.Errorf("%s products: %w: %w", op, ErrStorageUnavailable, err)
}

// indexOf returns the position of the first record whose name matches,
// ignoring case and surrounding whitespace, or -1.
func indexOf(recs []Record, name string) int {
	for i, r := range recs {
		if sameName(r.Name, name) {
			return i
		}
	}
	return -1
}

func (s *Service) logger() *zap.Logger {
	if s.Log == nil {
		return zap.NewNop()
	}
	return s.Log
}
