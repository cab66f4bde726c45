package services

import (
	"context"
	"time"

	domain "github.com/zenkart/admin-api/internal/domain"
	"github.com/zenkart/admin-api/internal/shipping"
)

// Type aliases expose domain models to the services package without reversing dependency direction.
type (
	Pagination  = domain.Pagination
	Order       = domain.Order
	OrderStatus = domain.OrderStatus
	LineItem    = domain.LineItem
	Address     = domain.Address
	StockRecord = domain.StockRecord
	Coupon      = domain.Coupon
	TaxRule     = domain.TaxRule
	Post        = domain.Post
)

// StockCheck reports availability for a single product.
type StockCheck struct {
	ProductID  string
	Sufficient bool
	Available  int
}

// StockShortage records one product that could not cover a requested quantity.
type StockShortage struct {
	ProductID string
	Requested int
	Available int
}

// StockItemError records a per-product persistence failure during a batch mutation.
type StockItemError struct {
	ProductID string
	Message   string
}

// BatchStockResult accumulates per-product outcomes of an order-wide stock
// mutation. Batch operations never fail as a whole; callers inspect the
// shortage and error lists.
type BatchStockResult struct {
	Applied      []string
	Insufficient []StockShortage
	Errors       []StockItemError
}

// OK reports whether every line item was mutated successfully.
func (r BatchStockResult) OK() bool {
	return len(r.Insufficient) == 0 && len(r.Errors) == 0
}

// StockListQuery narrows stock listings for the admin dashboard.
type StockListQuery struct {
	MaxQuantity *int
	Pagination  Pagination
}

// StockAdjustment applies a signed quantity delta to a product.
type StockAdjustment struct {
	ProductID string
	Delta     int
}

// StockService manages the per-product stock ledger.
type StockService interface {
	GetStock(ctx context.Context, productID string) (StockRecord, error)
	ListStock(ctx context.Context, query StockListQuery) (domain.CursorPage[StockRecord], error)
	CheckStock(ctx context.Context, productID string, requested int) (StockCheck, error)
	ReduceStock(ctx context.Context, productID string, quantity int) (StockRecord, error)
	RestoreStock(ctx context.Context, productID string, quantity int) (StockRecord, error)
	AdjustStock(ctx context.Context, adjustment StockAdjustment) (StockRecord, error)
	ReduceStockForOrder(ctx context.Context, order Order) BatchStockResult
	RestoreStockForOrder(ctx context.Context, order Order) BatchStockResult
}

// OrderListQuery narrows admin order listings.
type OrderListQuery struct {
	UserID     string
	Status     []OrderStatus
	From       *time.Time
	To         *time.Time
	Pagination Pagination
}

// OrderStatusTransitionCommand drives a guarded FSM transition.
type OrderStatusTransitionCommand struct {
	UserID  string
	OrderID string
	Target  OrderStatus
}

// OrderService exposes admin order reads and guarded status transitions.
// Confirmation and cancellation run through the FulfillmentService.
type OrderService interface {
	ListOrders(ctx context.Context, query OrderListQuery) (domain.CursorPage[Order], error)
	GetOrder(ctx context.Context, userID, orderID string) (Order, error)
	TransitionStatus(ctx context.Context, cmd OrderStatusTransitionCommand) (Order, error)
}

// FulfillmentStep identifies one stage of the fulfillment workflow for
// severity classification and metrics.
type FulfillmentStep string

const (
	StepStockReduce    FulfillmentStep = "stock_reduce"
	StepStockRestore   FulfillmentStep = "stock_restore"
	StepShipmentCreate FulfillmentStep = "shipment_create"
	StepInvoiceRender  FulfillmentStep = "invoice_render"
	StepEmailSend      FulfillmentStep = "email_send"
	StepCarrierCancel  FulfillmentStep = "carrier_cancel"
)

// Severity controls whether a step failure flags the whole run as failed.
type Severity string

const (
	// SeverityHard failures flag the run as unsuccessful.
	SeverityHard Severity = "hard"
	// SeveritySoft failures are recorded as warnings only.
	SeveritySoft Severity = "soft"
)

// SeverityPolicy maps workflow steps to failure severities. Stock
// correctness is load-bearing; shipment and notification are best-effort
// and retryable by hand.
type SeverityPolicy map[FulfillmentStep]Severity

// DefaultSeverityPolicy returns the stock-hard/rest-soft classification.
func DefaultSeverityPolicy() SeverityPolicy {
	return SeverityPolicy{
		StepStockReduce:    SeverityHard,
		StepStockRestore:   SeverityHard,
		StepShipmentCreate: SeveritySoft,
		StepInvoiceRender:  SeveritySoft,
		StepEmailSend:      SeveritySoft,
		StepCarrierCancel:  SeveritySoft,
	}
}

// ConfirmationResult aggregates per-step outcomes of an order confirmation.
// Invariant: Success == (len(Errors) == 0).
type ConfirmationResult struct {
	Success           bool
	StockReduced      bool
	ShipmentCreated   bool
	EmailSent         bool
	Errors            []string
	Warnings          []string
	InsufficientStock []StockShortage
	Carrier           *domain.CarrierInfo
	Order             Order
}

// CancellationResult aggregates per-step outcomes of an order cancellation.
// Invariant: Success == (len(Errors) == 0).
type CancellationResult struct {
	Success           bool
	StockRestored     bool
	ShipmentCancelled bool
	EmailSent         bool
	Errors            []string
	Warnings          []string
	Order             Order
}

// ProductStockView is a read-only stock snapshot inside an order status view.
type ProductStockView struct {
	ProductID string
	Quantity  int
	Status    domain.StockStatus
}

// OrderStatusView is the read-only aggregation returned by GetOrderStatus.
// Pieces that could not be fetched are simply absent.
type OrderStatusView struct {
	Order    Order
	Stock    []ProductStockView
	Tracking *shipping.TrackingResponse
}

// FulfillmentService sequences the order confirmation and cancellation
// workflows and reports per-step outcomes.
type FulfillmentService interface {
	ConfirmOrder(ctx context.Context, userID, orderID string) (ConfirmationResult, error)
	CancelOrder(ctx context.Context, userID, orderID, reason string) (CancellationResult, error)
	GetOrderStatus(ctx context.Context, userID, orderID string) (OrderStatusView, error)
}

// RequestBuilder projects an order into a carrier request.
type RequestBuilder interface {
	BuildRequest(ctx context.Context, order Order) (shipping.Request, []shipping.Warning, error)
}

// CarrierAPI is the subset of the carrier client the fulfillment workflow uses.
type CarrierAPI interface {
	CreateOrder(ctx context.Context, request shipping.Request) (shipping.CreateOrderResponse, error)
	CancelShipment(ctx context.Context, awbCodes []string) (shipping.CancelShipmentResponse, error)
	GetTracking(ctx context.Context, shipmentID string) (shipping.TrackingResponse, error)
}

// Notifier sends transactional order emails. Sends are best-effort and
// report success as a boolean, never an error.
type Notifier interface {
	SendOrderConfirmation(ctx context.Context, order Order, invoice []byte) bool
	SendOrderCancellation(ctx context.Context, order Order, reason string) bool
	SendShippingUpdate(ctx context.Context, order Order) bool
}

// InvoiceRenderer produces the invoice attachment for confirmation emails.
type InvoiceRenderer interface {
	RenderBytes(order Order) ([]byte, error)
}

// InvoiceArchiver stores rendered invoices for later retrieval.
type InvoiceArchiver interface {
	Archive(ctx context.Context, userID, orderID string, html []byte) (string, error)
}

// FulfillmentMetrics records workflow outcomes for observability.
type FulfillmentMetrics interface {
	RecordFulfillmentRun(operation string, success bool)
	RecordFulfillmentStepFailure(step, severity string)
}

// OrderEventMessage is the payload published for order lifecycle events.
type OrderEventMessage struct {
	EventID      string    `json:"event_id"`
	Type         string    `json:"type"`
	OrderID      string    `json:"order_id"`
	UserID       string    `json:"user_id"`
	ShipmentID   string    `json:"shipment_id,omitempty"`
	TrackingCode string    `json:"tracking_code,omitempty"`
	OccurredAt   time.Time `json:"occurred_at"`
}

// OrderEventPublisher publishes order lifecycle events for downstream consumers.
type OrderEventPublisher interface {
	PublishOrderEvent(ctx context.Context, message OrderEventMessage) (string, error)
}

// CouponCreateCommand carries the fields for a new coupon.
type CouponCreateCommand struct {
	Code       string
	Percentage int
	MinAmount  int64
	MaxUses    int
	Active     bool
	ExpiresAt  *time.Time
}

// CouponUpdateCommand mutates an existing coupon; nil fields are left unchanged.
type CouponUpdateCommand struct {
	Percentage *int
	MinAmount  *int64
	MaxUses    *int
	Active     *bool
	ExpiresAt  *time.Time
}

// TaxRuleCommand carries the fields for creating or replacing a tax rule.
type TaxRuleCommand struct {
	Name   string
	Rate   float64
	Region string
	Active bool
}

// CatalogService manages coupons and tax rules for the admin CRUD modules.
type CatalogService interface {
	CreateCoupon(ctx context.Context, cmd CouponCreateCommand) (Coupon, error)
	UpdateCoupon(ctx context.Context, couponID string, cmd CouponUpdateCommand) (Coupon, error)
	DeleteCoupon(ctx context.Context, couponID string) error
	GetCoupon(ctx context.Context, couponID string) (Coupon, error)
	GetCouponByCode(ctx context.Context, code string) (Coupon, error)
	ListCoupons(ctx context.Context, pager Pagination) (domain.CursorPage[Coupon], error)

	CreateTaxRule(ctx context.Context, cmd TaxRuleCommand) (TaxRule, error)
	UpdateTaxRule(ctx context.Context, ruleID string, cmd TaxRuleCommand) (TaxRule, error)
	DeleteTaxRule(ctx context.Context, ruleID string) error
	GetTaxRule(ctx context.Context, ruleID string) (TaxRule, error)
	ListTaxRules(ctx context.Context, pager Pagination) (domain.CursorPage[TaxRule], error)
}

// PostCreateCommand carries the fields for a new blog post.
type PostCreateCommand struct {
	Title      string
	Slug       string
	Body       string
	CategoryID string
	Tags       []string
	Published  bool
}

// PostUpdateCommand mutates an existing post; nil fields are left unchanged.
type PostUpdateCommand struct {
	Title      *string
	Body       *string
	CategoryID *string
	Tags       []string
	Published  *bool
}

// PostListQuery narrows post listings.
type PostListQuery struct {
	PublishedOnly bool
	CategoryID    *string
	Pagination    Pagination
}

// ContentService manages blog posts. Bodies are sanitized before storage.
type ContentService interface {
	CreatePost(ctx context.Context, cmd PostCreateCommand) (Post, error)
	UpdatePost(ctx context.Context, postID string, cmd PostUpdateCommand) (Post, error)
	DeletePost(ctx context.Context, postID string) error
	GetPost(ctx context.Context, postID string) (Post, error)
	GetPostBySlug(ctx context.Context, slug string) (Post, error)
	ListPosts(ctx context.Context, query PostListQuery) (domain.CursorPage[Post], error)
}
