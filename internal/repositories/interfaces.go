package repositories

import (
	"context"
	"time"

	domain "github.com/zenkart/admin-api/internal/domain"
)

// Registry exposes typed repository accessors and lifecycle hooks for dependency injection.
type Registry interface {
	Close(ctx context.Context) error

	Stock() StockRepository
	Orders() OrderRepository
	Coupons() CouponRepository
	TaxRules() TaxRuleRepository
	Posts() PostRepository
	Health() HealthRepository
	UnitOfWork
}

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// UnitOfWork allows grouping repository operations in a transactional boundary when supported.
type UnitOfWork interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// StockRepository manages per-product stock counters with transactional guarantees.
type StockRepository interface {
	Get(ctx context.Context, productID string) (domain.StockRecord, error)
	// Reduce atomically decrements the counter. Implementations must reject a
	// decrement that would take the quantity below zero without writing.
	Reduce(ctx context.Context, req StockMutationRequest) (domain.StockRecord, error)
	// Restore atomically increments the counter.
	Restore(ctx context.Context, req StockMutationRequest) (domain.StockRecord, error)
	List(ctx context.Context, query StockListQuery) (domain.CursorPage[domain.StockRecord], error)
}

// StockMutationRequest carries a single-product quantity change.
type StockMutationRequest struct {
	ProductID string
	Quantity  int
	Now       time.Time
}

// StockListQuery controls pagination and threshold filtering for stock listings.
type StockListQuery struct {
	MaxQuantity *int
	PageSize    int
	PageToken   string
}

// OrderRepository persists order documents under each customer.
type OrderRepository interface {
	FindByID(ctx context.Context, userID string, orderID string) (domain.Order, error)
	Update(ctx context.Context, order domain.Order) error
	UpdateStatus(ctx context.Context, userID string, orderID string, update OrderStatusUpdate) (domain.Order, error)
	List(ctx context.Context, filter OrderListFilter) (domain.CursorPage[domain.Order], error)
}

// OrderStatusUpdate carries the fields mutated during a status transition.
type OrderStatusUpdate struct {
	Status        domain.OrderStatus
	PaymentStatus *domain.PaymentStatus
	Carrier       *domain.CarrierInfo
	CancelReason  *string
	CancelledAt   *time.Time
	UpdatedAt     time.Time
}

// OrderListFilter narrows collection-group order queries.
type OrderListFilter struct {
	UserID     string
	Status     []domain.OrderStatus
	DateRange  domain.RangeQuery[time.Time]
	Pagination domain.Pagination
}

// CouponRepository maintains coupon definitions.
type CouponRepository interface {
	Insert(ctx context.Context, coupon domain.Coupon) error
	Update(ctx context.Context, coupon domain.Coupon) error
	Delete(ctx context.Context, couponID string) error
	FindByID(ctx context.Context, couponID string) (domain.Coupon, error)
	FindByCode(ctx context.Context, code string) (domain.Coupon, error)
	List(ctx context.Context, pager domain.Pagination) (domain.CursorPage[domain.Coupon], error)
}

// TaxRuleRepository maintains regional tax rules.
type TaxRuleRepository interface {
	Insert(ctx context.Context, rule domain.TaxRule) error
	Update(ctx context.Context, rule domain.TaxRule) error
	Delete(ctx context.Context, ruleID string) error
	FindByID(ctx context.Context, ruleID string) (domain.TaxRule, error)
	List(ctx context.Context, pager domain.Pagination) (domain.CursorPage[domain.TaxRule], error)
}

// PostRepository stores blog posts managed through the dashboard.
type PostRepository interface {
	Insert(ctx context.Context, post domain.Post) error
	Update(ctx context.Context, post domain.Post) error
	Delete(ctx context.Context, postID string) error
	FindByID(ctx context.Context, postID string) (domain.Post, error)
	FindBySlug(ctx context.Context, slug string) (domain.Post, error)
	List(ctx context.Context, filter PostListFilter) (domain.CursorPage[domain.Post], error)
}

// PostListFilter narrows post listings.
type PostListFilter struct {
	PublishedOnly bool
	CategoryID    *string
	Pagination    domain.Pagination
}

// HealthRepository exposes status of downstream dependencies for health checks.
type HealthRepository interface {
	Collect(ctx context.Context) (domain.SystemHealthReport, error)
}
