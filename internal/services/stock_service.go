package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	domain "github.com/zenkart/admin-api/internal/domain"
	"github.com/zenkart/admin-api/internal/repositories"
)

var (
	// ErrStockInvalidInput signals the caller provided invalid arguments.
	ErrStockInvalidInput = errors.New("stock: invalid input")
	// ErrStockNotFound indicates the product record could not be located.
	ErrStockNotFound = errors.New("stock: product not found")
	// ErrStockInsufficient indicates a decrement would take the quantity below zero.
	ErrStockInsufficient = errors.New("stock: insufficient quantity")
)

// StockMetrics records individual ledger mutations.
type StockMetrics interface {
	RecordStockMutation(kind string, ok bool)
}

// StockServiceDeps bundles the collaborators required to construct a stock service.
type StockServiceDeps struct {
	Stock   repositories.StockRepository
	Clock   func() time.Time
	Metrics StockMetrics
	Logger  func(ctx context.Context, event string, fields map[string]any)
}

type stockService struct {
	repo    repositories.StockRepository
	clock   func() time.Time
	metrics StockMetrics
	logger  func(context.Context, string, map[string]any)
}

// NewStockService wires dependencies into a concrete StockService implementation.
func NewStockService(deps StockServiceDeps) (StockService, error) {
	if deps.Stock == nil {
		return nil, errors.New("stock service: stock repository is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &stockService{
		repo:    deps.Stock,
		clock:   func() time.Time { return clock().UTC() },
		metrics: deps.Metrics,
		logger:  logger,
	}, nil
}

func (s *stockService) GetStock(ctx context.Context, productID string) (StockRecord, error) {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return StockRecord{}, fmt.Errorf("%w: product id is required", ErrStockInvalidInput)
	}

	record, err := s.repo.Get(ctx, productID)
	if err != nil {
		return StockRecord{}, s.mapRepositoryError(err)
	}
	return record, nil
}

func (s *stockService) ListStock(ctx context.Context, query StockListQuery) (domain.CursorPage[StockRecord], error) {
	if query.MaxQuantity != nil && *query.MaxQuantity < 0 {
		return domain.CursorPage[StockRecord]{}, fmt.Errorf("%w: max quantity must not be negative", ErrStockInvalidInput)
	}

	page, err := s.repo.List(ctx, repositories.StockListQuery{
		MaxQuantity: query.MaxQuantity,
		PageSize:    query.Pagination.PageSize,
		PageToken:   strings.TrimSpace(query.Pagination.PageToken),
	})
	if err != nil {
		return domain.CursorPage[StockRecord]{}, s.mapRepositoryError(err)
	}
	return page, nil
}

// CheckStock reports whether a product can cover the requested quantity. A
// missing product record counts as insufficient with zero available.
func (s *stockService) CheckStock(ctx context.Context, productID string, requested int) (StockCheck, error) {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return StockCheck{}, fmt.Errorf("%w: product id is required", ErrStockInvalidInput)
	}
	if requested <= 0 {
		return StockCheck{}, fmt.Errorf("%w: requested quantity must be positive", ErrStockInvalidInput)
	}

	record, err := s.repo.Get(ctx, productID)
	if err != nil {
		if isNotFound(err) {
			return StockCheck{ProductID: productID, Sufficient: false, Available: 0}, nil
		}
		return StockCheck{}, s.mapRepositoryError(err)
	}

	return StockCheck{
		ProductID:  productID,
		Sufficient: record.Quantity >= requested,
		Available:  record.Quantity,
	}, nil
}

func (s *stockService) ReduceStock(ctx context.Context, productID string, quantity int) (StockRecord, error) {
	record, err := s.mutate(ctx, "reduce", productID, quantity, s.repo.Reduce)
	if s.metrics != nil {
		s.metrics.RecordStockMutation("reduce", err == nil)
	}
	return record, err
}

func (s *stockService) RestoreStock(ctx context.Context, productID string, quantity int) (StockRecord, error) {
	record, err := s.mutate(ctx, "restore", productID, quantity, s.repo.Restore)
	if s.metrics != nil {
		s.metrics.RecordStockMutation("restore", err == nil)
	}
	return record, err
}

// AdjustStock applies a signed delta for manual corrections from the
// dashboard. Positive deltas restore, negative deltas reduce.
func (s *stockService) AdjustStock(ctx context.Context, adjustment StockAdjustment) (StockRecord, error) {
	switch {
	case adjustment.Delta > 0:
		return s.RestoreStock(ctx, adjustment.ProductID, adjustment.Delta)
	case adjustment.Delta < 0:
		return s.ReduceStock(ctx, adjustment.ProductID, -adjustment.Delta)
	default:
		return StockRecord{}, fmt.Errorf("%w: delta must not be zero", ErrStockInvalidInput)
	}
}

// ReduceStockForOrder checks every line item's availability first and only
// applies reductions when all items pass. The reduction phase mutates each
// product independently; a failure partway through is recorded per product
// and already-applied reductions are NOT rolled back. That inconsistency is
// a documented limitation of the cross-product batch.
func (s *stockService) ReduceStockForOrder(ctx context.Context, order Order) BatchStockResult {
	var result BatchStockResult

	lines, err := orderStockLines(order)
	if err != nil {
		result.Errors = append(result.Errors, StockItemError{Message: err.Error()})
		return result
	}

	checks := s.checkAll(ctx, lines)
	for _, check := range checks {
		if check.err != nil {
			result.Errors = append(result.Errors, StockItemError{ProductID: check.productID, Message: check.err.Error()})
			continue
		}
		if !check.sufficient {
			result.Insufficient = append(result.Insufficient, StockShortage{
				ProductID: check.productID,
				Requested: check.requested,
				Available: check.available,
			})
		}
	}
	if len(result.Insufficient) > 0 || len(result.Errors) > 0 {
		return result
	}

	for _, line := range lines {
		if _, err := s.ReduceStock(ctx, line.productID, line.quantity); err != nil {
			result.Errors = append(result.Errors, StockItemError{ProductID: line.productID, Message: err.Error()})
			continue
		}
		result.Applied = append(result.Applied, line.productID)
	}
	return result
}

// RestoreStockForOrder is the cancellation counterpart of
// ReduceStockForOrder, with the same no-rollback caveat.
func (s *stockService) RestoreStockForOrder(ctx context.Context, order Order) BatchStockResult {
	var result BatchStockResult

	lines, err := orderStockLines(order)
	if err != nil {
		result.Errors = append(result.Errors, StockItemError{Message: err.Error()})
		return result
	}

	for _, line := range lines {
		if _, err := s.RestoreStock(ctx, line.productID, line.quantity); err != nil {
			result.Errors = append(result.Errors, StockItemError{ProductID: line.productID, Message: err.Error()})
			continue
		}
		result.Applied = append(result.Applied, line.productID)
	}
	return result
}

type stockLine struct {
	productID string
	quantity  int
}

// orderStockLines folds duplicate line items into per-product quantities.
func orderStockLines(order Order) ([]stockLine, error) {
	if len(order.Items) == 0 {
		return nil, fmt.Errorf("%w: order has no line items", ErrStockInvalidInput)
	}

	quantities := make(map[string]int, len(order.Items))
	for _, item := range order.Items {
		productID := strings.TrimSpace(item.ProductID)
		if productID == "" {
			return nil, fmt.Errorf("%w: line item without product id", ErrStockInvalidInput)
		}
		if item.Quantity < 1 {
			return nil, fmt.Errorf("%w: line item %s quantity must be at least 1", ErrStockInvalidInput, productID)
		}
		quantities[productID] += item.Quantity
	}

	lines := make([]stockLine, 0, len(quantities))
	for productID, quantity := range quantities {
		lines = append(lines, stockLine{productID: productID, quantity: quantity})
	}
	sort.Slice(lines, func(i, j int) bool { return lines[i].productID < lines[j].productID })
	return lines, nil
}

type stockCheckOutcome struct {
	productID  string
	requested  int
	available  int
	sufficient bool
	err        error
}

// checkAll runs the availability checks concurrently; there is no lock
// between a check and the later reduce, the per-product transaction in the
// repository is what finally rejects an overdraw.
func (s *stockService) checkAll(ctx context.Context, lines []stockLine) []stockCheckOutcome {
	outcomes := make([]stockCheckOutcome, len(lines))

	var group errgroup.Group
	for i, line := range lines {
		group.Go(func() error {
			check, err := s.CheckStock(ctx, line.productID, line.quantity)
			outcomes[i] = stockCheckOutcome{
				productID:  line.productID,
				requested:  line.quantity,
				available:  check.Available,
				sufficient: check.Sufficient,
				err:        err,
			}
			return nil
		})
	}
	_ = group.Wait()

	return outcomes
}

func (s *stockService) mutate(ctx context.Context, kind, productID string, quantity int, op func(context.Context, repositories.StockMutationRequest) (domain.StockRecord, error)) (StockRecord, error) {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return StockRecord{}, fmt.Errorf("%w: product id is required", ErrStockInvalidInput)
	}
	if quantity <= 0 {
		return StockRecord{}, fmt.Errorf("%w: quantity must be positive", ErrStockInvalidInput)
	}

	record, err := op(ctx, repositories.StockMutationRequest{
		ProductID: productID,
		Quantity:  quantity,
		Now:       s.clock(),
	})
	if err != nil {
		s.logger(ctx, "stock.mutation.failed", map[string]any{
			"kind":    kind,
			"product": productID,
			"error":   err.Error(),
		})
		return StockRecord{}, s.mapRepositoryError(err)
	}
	return record, nil
}

func (s *stockService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}

	var stockErr *repositories.StockError
	if errors.As(err, &stockErr) {
		switch stockErr.Code {
		case repositories.StockErrorNotFound:
			return fmt.Errorf("%w: %v", ErrStockNotFound, err)
		case repositories.StockErrorInsufficient:
			return fmt.Errorf("%w: %v", ErrStockInsufficient, err)
		case repositories.StockErrorInvalidQuantity:
			return fmt.Errorf("%w: %v", ErrStockInvalidInput, err)
		}
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrStockNotFound, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("stock: repository unavailable: %w", err)
		}
	}

	return err
}

func isNotFound(err error) bool {
	if errors.Is(err, ErrStockNotFound) {
		return true
	}

	var stockErr *repositories.StockError
	if errors.As(err, &stockErr) && stockErr.Code == repositories.StockErrorNotFound {
		return true
	}

	var repoErr repositories.RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsNotFound()
}
