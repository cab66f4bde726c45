package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	domain "github.com/zenkart/admin-api/internal/domain"
	"github.com/zenkart/admin-api/internal/repositories"
)

type fakeRepositoryError struct {
	notFound    bool
	conflict    bool
	unavailable bool
}

func (e fakeRepositoryError) Error() string       { return "repository error" }
func (e fakeRepositoryError) IsNotFound() bool    { return e.notFound }
func (e fakeRepositoryError) IsConflict() bool    { return e.conflict }
func (e fakeRepositoryError) IsUnavailable() bool { return e.unavailable }

// memStockRepository is an in-memory stand-in mirroring the Firestore
// repository's semantics: a reduce that would go negative fails without
// mutating the record.
type memStockRepository struct {
	mu      sync.Mutex
	records map[string]domain.StockRecord

	failReduce  map[string]error
	failRestore map[string]error
	getErr      error
}

func newMemStockRepository(records ...domain.StockRecord) *memStockRepository {
	repo := &memStockRepository{
		records:     make(map[string]domain.StockRecord),
		failReduce:  make(map[string]error),
		failRestore: make(map[string]error),
	}
	for _, record := range records {
		repo.records[record.ProductID] = record
	}
	return repo
}

func (r *memStockRepository) Get(_ context.Context, productID string) (domain.StockRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.getErr != nil {
		return domain.StockRecord{}, r.getErr
	}
	record, ok := r.records[productID]
	if !ok {
		return domain.StockRecord{}, repositories.NewStockError(repositories.StockErrorNotFound, "product "+productID+" not found", nil)
	}
	return record, nil
}

func (r *memStockRepository) Reduce(_ context.Context, req repositories.StockMutationRequest) (domain.StockRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.failReduce[req.ProductID]; err != nil {
		return domain.StockRecord{}, err
	}
	record, ok := r.records[req.ProductID]
	if !ok {
		return domain.StockRecord{}, repositories.NewStockError(repositories.StockErrorNotFound, "product "+req.ProductID+" not found", nil)
	}
	if record.Quantity < req.Quantity {
		return domain.StockRecord{}, repositories.NewStockError(repositories.StockErrorInsufficient,
			fmt.Sprintf("available %d, requested %d", record.Quantity, req.Quantity), nil)
	}

	record.Quantity -= req.Quantity
	record.Status = domain.StockStatusInStock
	if record.Quantity == 0 {
		record.Status = domain.StockStatusOutOfStock
	}
	record.UpdatedAt = req.Now
	r.records[req.ProductID] = record
	return record, nil
}

func (r *memStockRepository) Restore(_ context.Context, req repositories.StockMutationRequest) (domain.StockRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.failRestore[req.ProductID]; err != nil {
		return domain.StockRecord{}, err
	}
	record, ok := r.records[req.ProductID]
	if !ok {
		return domain.StockRecord{}, repositories.NewStockError(repositories.StockErrorNotFound, "product "+req.ProductID+" not found", nil)
	}

	record.Quantity += req.Quantity
	record.Status = domain.StockStatusInStock
	if record.Quantity == 0 {
		record.Status = domain.StockStatusOutOfStock
	}
	record.UpdatedAt = req.Now
	r.records[req.ProductID] = record
	return record, nil
}

func (r *memStockRepository) List(context.Context, repositories.StockListQuery) (domain.CursorPage[domain.StockRecord], error) {
	return domain.CursorPage[domain.StockRecord]{}, nil
}

func (r *memStockRepository) quantity(t *testing.T, productID string) int {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	record, ok := r.records[productID]
	if !ok {
		t.Fatalf("product %s not found", productID)
	}
	return record.Quantity
}

func newTestStockService(t *testing.T, repo repositories.StockRepository) StockService {
	t.Helper()

	svc, err := NewStockService(StockServiceDeps{
		Stock: repo,
		Clock: func() time.Time { return time.Date(2026, time.March, 14, 9, 0, 0, 0, time.UTC) },
	})
	if err != nil {
		t.Fatalf("NewStockService returned error: %v", err)
	}
	return svc
}

func stockOrder(items ...domain.LineItem) Order {
	return Order{ID: "order-1", UserID: "user-1", Items: items}
}

func TestCheckStockTreatsMissingProductAsInsufficient(t *testing.T) {
	svc := newTestStockService(t, newMemStockRepository())

	check, err := svc.CheckStock(context.Background(), "ghost", 3)
	if err != nil {
		t.Fatalf("CheckStock returned error: %v", err)
	}
	if check.Sufficient || check.Available != 0 {
		t.Fatalf("expected insufficient with zero available, got %+v", check)
	}
}

func TestReduceStockFailsWithoutMutationWhenInsufficient(t *testing.T) {
	repo := newMemStockRepository(domain.StockRecord{ProductID: "prod-1", Quantity: 2, Status: domain.StockStatusInStock})
	svc := newTestStockService(t, repo)

	_, err := svc.ReduceStock(context.Background(), "prod-1", 5)
	if !errors.Is(err, ErrStockInsufficient) {
		t.Fatalf("expected ErrStockInsufficient, got %v", err)
	}
	if got := repo.quantity(t, "prod-1"); got != 2 {
		t.Fatalf("expected quantity unchanged at 2, got %d", got)
	}
}

func TestReduceThenRestoreRoundTrip(t *testing.T) {
	repo := newMemStockRepository(domain.StockRecord{ProductID: "prod-1", Quantity: 10, Status: domain.StockStatusInStock})
	svc := newTestStockService(t, repo)

	if _, err := svc.ReduceStock(context.Background(), "prod-1", 7); err != nil {
		t.Fatalf("ReduceStock returned error: %v", err)
	}
	record, err := svc.RestoreStock(context.Background(), "prod-1", 7)
	if err != nil {
		t.Fatalf("RestoreStock returned error: %v", err)
	}
	if record.Quantity != 10 {
		t.Fatalf("expected round-trip back to 10, got %d", record.Quantity)
	}
	if record.Status != domain.StockStatusInStock {
		t.Fatalf("expected in_stock, got %s", record.Status)
	}
}

func TestReduceStockToZeroFlipsStatus(t *testing.T) {
	repo := newMemStockRepository(domain.StockRecord{ProductID: "prod-1", Quantity: 4, Status: domain.StockStatusInStock})
	svc := newTestStockService(t, repo)

	record, err := svc.ReduceStock(context.Background(), "prod-1", 4)
	if err != nil {
		t.Fatalf("ReduceStock returned error: %v", err)
	}
	if record.Quantity != 0 || record.Status != domain.StockStatusOutOfStock {
		t.Fatalf("expected zero out_of_stock, got %+v", record)
	}
}

func TestAdjustStock(t *testing.T) {
	repo := newMemStockRepository(domain.StockRecord{ProductID: "prod-1", Quantity: 5, Status: domain.StockStatusInStock})
	svc := newTestStockService(t, repo)

	if _, err := svc.AdjustStock(context.Background(), StockAdjustment{ProductID: "prod-1", Delta: -3}); err != nil {
		t.Fatalf("AdjustStock reduce returned error: %v", err)
	}
	if got := repo.quantity(t, "prod-1"); got != 2 {
		t.Fatalf("expected 2, got %d", got)
	}

	if _, err := svc.AdjustStock(context.Background(), StockAdjustment{ProductID: "prod-1", Delta: 4}); err != nil {
		t.Fatalf("AdjustStock restore returned error: %v", err)
	}
	if got := repo.quantity(t, "prod-1"); got != 6 {
		t.Fatalf("expected 6, got %d", got)
	}

	if _, err := svc.AdjustStock(context.Background(), StockAdjustment{ProductID: "prod-1", Delta: 0}); !errors.Is(err, ErrStockInvalidInput) {
		t.Fatalf("expected ErrStockInvalidInput for zero delta, got %v", err)
	}
}

func TestReduceStockForOrderAppliesAllItems(t *testing.T) {
	repo := newMemStockRepository(
		domain.StockRecord{ProductID: "prod-1", Quantity: 10, Status: domain.StockStatusInStock},
		domain.StockRecord{ProductID: "prod-2", Quantity: 3, Status: domain.StockStatusInStock},
	)
	svc := newTestStockService(t, repo)

	order := stockOrder(
		domain.LineItem{ProductID: "prod-1", Quantity: 5},
		domain.LineItem{ProductID: "prod-2", Quantity: 1},
	)

	result := svc.ReduceStockForOrder(context.Background(), order)
	if !result.OK() {
		t.Fatalf("expected success, got %+v", result)
	}
	if len(result.Applied) != 2 {
		t.Fatalf("expected two applied products, got %v", result.Applied)
	}
	if got := repo.quantity(t, "prod-1"); got != 5 {
		t.Fatalf("expected prod-1 at 5, got %d", got)
	}
	if got := repo.quantity(t, "prod-2"); got != 2 {
		t.Fatalf("expected prod-2 at 2, got %d", got)
	}
}

func TestReduceStockForOrderStopsOnInsufficiency(t *testing.T) {
	repo := newMemStockRepository(
		domain.StockRecord{ProductID: "prod-1", Quantity: 10, Status: domain.StockStatusInStock},
		domain.StockRecord{ProductID: "prod-2", Quantity: 2, Status: domain.StockStatusInStock},
	)
	svc := newTestStockService(t, repo)

	order := stockOrder(
		domain.LineItem{ProductID: "prod-1", Quantity: 5},
		domain.LineItem{ProductID: "prod-2", Quantity: 5},
	)

	result := svc.ReduceStockForOrder(context.Background(), order)
	if result.OK() {
		t.Fatalf("expected failure, got %+v", result)
	}
	if len(result.Insufficient) != 1 {
		t.Fatalf("expected one shortage, got %v", result.Insufficient)
	}
	shortage := result.Insufficient[0]
	if shortage.ProductID != "prod-2" || shortage.Requested != 5 || shortage.Available != 2 {
		t.Fatalf("unexpected shortage %+v", shortage)
	}

	// No reductions at all when any item fails the check phase.
	if len(result.Applied) != 0 {
		t.Fatalf("expected no applied reductions, got %v", result.Applied)
	}
	if got := repo.quantity(t, "prod-1"); got != 10 {
		t.Fatalf("expected prod-1 untouched at 10, got %d", got)
	}
}

func TestReduceStockForOrderDoesNotRollBackPartialFailure(t *testing.T) {
	repo := newMemStockRepository(
		domain.StockRecord{ProductID: "prod-1", Quantity: 10, Status: domain.StockStatusInStock},
		domain.StockRecord{ProductID: "prod-2", Quantity: 10, Status: domain.StockStatusInStock},
	)
	repo.failReduce["prod-2"] = fakeRepositoryError{unavailable: true}
	svc := newTestStockService(t, repo)

	order := stockOrder(
		domain.LineItem{ProductID: "prod-1", Quantity: 5},
		domain.LineItem{ProductID: "prod-2", Quantity: 5},
	)

	result := svc.ReduceStockForOrder(context.Background(), order)
	if result.OK() {
		t.Fatalf("expected failure, got %+v", result)
	}
	if len(result.Errors) != 1 || result.Errors[0].ProductID != "prod-2" {
		t.Fatalf("expected a prod-2 error, got %v", result.Errors)
	}

	// prod-1 stays reduced: the cross-product batch never rolls back.
	if len(result.Applied) != 1 || result.Applied[0] != "prod-1" {
		t.Fatalf("expected prod-1 applied, got %v", result.Applied)
	}
	if got := repo.quantity(t, "prod-1"); got != 5 {
		t.Fatalf("expected prod-1 reduced to 5, got %d", got)
	}
	if got := repo.quantity(t, "prod-2"); got != 10 {
		t.Fatalf("expected prod-2 untouched at 10, got %d", got)
	}
}

func TestReduceStockForOrderFoldsDuplicateLineItems(t *testing.T) {
	repo := newMemStockRepository(domain.StockRecord{ProductID: "prod-1", Quantity: 10, Status: domain.StockStatusInStock})
	svc := newTestStockService(t, repo)

	order := stockOrder(
		domain.LineItem{ProductID: "prod-1", Quantity: 3},
		domain.LineItem{ProductID: "prod-1", Quantity: 4},
	)

	result := svc.ReduceStockForOrder(context.Background(), order)
	if !result.OK() {
		t.Fatalf("expected success, got %+v", result)
	}
	if got := repo.quantity(t, "prod-1"); got != 3 {
		t.Fatalf("expected single folded reduction to 3, got %d", got)
	}
}

func TestRestoreStockForOrderAccumulatesPerItemErrors(t *testing.T) {
	repo := newMemStockRepository(
		domain.StockRecord{ProductID: "prod-1", Quantity: 0, Status: domain.StockStatusOutOfStock},
	)
	repo.failRestore["prod-2"] = fakeRepositoryError{unavailable: true}
	svc := newTestStockService(t, repo)

	order := stockOrder(
		domain.LineItem{ProductID: "prod-1", Quantity: 5},
		domain.LineItem{ProductID: "prod-2", Quantity: 1},
	)

	result := svc.RestoreStockForOrder(context.Background(), order)
	if result.OK() {
		t.Fatalf("expected failure, got %+v", result)
	}
	if len(result.Applied) != 1 || result.Applied[0] != "prod-1" {
		t.Fatalf("expected prod-1 applied, got %v", result.Applied)
	}
	if got := repo.quantity(t, "prod-1"); got != 5 {
		t.Fatalf("expected prod-1 restored to 5, got %d", got)
	}
}

func TestStockServiceValidatesInput(t *testing.T) {
	svc := newTestStockService(t, newMemStockRepository())

	if _, err := svc.ReduceStock(context.Background(), "", 1); !errors.Is(err, ErrStockInvalidInput) {
		t.Fatalf("expected ErrStockInvalidInput, got %v", err)
	}
	if _, err := svc.ReduceStock(context.Background(), "prod-1", 0); !errors.Is(err, ErrStockInvalidInput) {
		t.Fatalf("expected ErrStockInvalidInput, got %v", err)
	}
	if _, err := svc.CheckStock(context.Background(), "prod-1", -1); !errors.Is(err, ErrStockInvalidInput) {
		t.Fatalf("expected ErrStockInvalidInput, got %v", err)
	}

	result := svc.ReduceStockForOrder(context.Background(), Order{ID: "order-1"})
	if result.OK() || len(result.Errors) != 1 {
		t.Fatalf("expected a single batch error for empty order, got %+v", result)
	}
}
