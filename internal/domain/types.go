package domain

import (
	"time"
)

// Pagination defines standard cursor-based paging inputs for list operations.
type Pagination struct {
	PageSize  int
	PageToken string
}

// SortOrder indicates ascending or descending ordering for list queries.
type SortOrder string

const (
	// SortAsc sorts results in ascending order.
	SortAsc SortOrder = "asc"
	// SortDesc sorts results in descending order.
	SortDesc SortOrder = "desc"
)

// RangeQuery represents inclusive range filters for numeric or timestamp fields.
type RangeQuery[T comparable] struct {
	From *T
	To   *T
}

// CursorPage wraps paginated results with the next page token.
type CursorPage[T any] struct {
	Items         []T
	NextPageToken string
}

// OrderStatus enumerates valid lifecycle states for orders.
type OrderStatus string

const (
	// OrderStatusPending indicates the order has been placed but not yet confirmed.
	OrderStatusPending OrderStatus = "pending"
	// OrderStatusConfirmed indicates the order has been confirmed by an operator.
	OrderStatusConfirmed OrderStatus = "confirmed"
	// OrderStatusShipped indicates a carrier shipment with a tracking code exists.
	OrderStatusShipped OrderStatus = "shipped"
	// OrderStatusDelivered indicates the carrier reported delivery.
	OrderStatusDelivered OrderStatus = "delivered"
	// OrderStatusCancelled indicates the order has been cancelled.
	OrderStatusCancelled OrderStatus = "cancelled"
)

// PaymentMethod identifies how the customer paid for an order.
type PaymentMethod string

const (
	// PaymentMethodOnline indicates the order was paid through the online payment gateway.
	PaymentMethodOnline PaymentMethod = "online"
	// PaymentMethodCOD indicates cash on delivery.
	PaymentMethodCOD PaymentMethod = "cod"
)

// PaymentStatus tracks the settlement state of an order's payment.
type PaymentStatus string

const (
	// PaymentStatusPending indicates payment has not been captured yet.
	PaymentStatusPending PaymentStatus = "pending"
	// PaymentStatusPaid indicates payment has been captured.
	PaymentStatusPaid PaymentStatus = "paid"
	// PaymentStatusRefunded indicates the payment was refunded after cancellation.
	PaymentStatusRefunded PaymentStatus = "refunded"
)

// LineItem is a single ordered product entry.
type LineItem struct {
	ProductID string
	Name      string
	UnitPrice int64
	SalePrice *int64
	Quantity  int
}

// SellingPrice resolves the effective per-unit price: the sale price when
// present and not above the list price, else the list price.
func (l LineItem) SellingPrice() int64 {
	if l.SalePrice != nil && *l.SalePrice > 0 && *l.SalePrice <= l.UnitPrice {
		return *l.SalePrice
	}
	return l.UnitPrice
}

// Address captures the delivery destination for an order.
type Address struct {
	FirstName  string
	LastName   string
	Name       string
	Street     string
	City       string
	State      string
	Country    string
	PostalCode string
	Phone      string
}

// OrderTotals stores the monetary breakdown in minor currency units.
// Invariant: Total = Subtotal - Discount + Shipping + Commission.
type OrderTotals struct {
	Subtotal   int64
	Discount   int64
	Shipping   int64
	Commission int64
	Total      int64
}

// CarrierInfo holds identifiers assigned by the shipping carrier once a
// shipment has been created for the order.
type CarrierInfo struct {
	OrderID      string
	ShipmentID   string
	TrackingCode string
	CourierName  string
}

// Order is the admin-facing order aggregate persisted under
// customers/{userId}/orders/{orderId}.
type Order struct {
	ID            string
	UserID        string
	Email         string
	Items         []LineItem
	Address       Address
	PaymentMethod PaymentMethod
	PaymentStatus PaymentStatus
	Status        OrderStatus
	Totals        OrderTotals
	Carrier       CarrierInfo
	CancelReason  *string
	CreatedAt     time.Time
	UpdatedAt     time.Time
	CancelledAt   *time.Time
}

// StockStatus reflects whether a product can currently be ordered.
type StockStatus string

const (
	// StockStatusInStock indicates quantity > 0.
	StockStatusInStock StockStatus = "in_stock"
	// StockStatusOutOfStock indicates quantity == 0.
	StockStatusOutOfStock StockStatus = "out_of_stock"
)

// StockRecord is the per-product stock counter kept under products/{id}.
// Quantity never drops below zero; a decrement that would breach that is
// rejected before any write.
type StockRecord struct {
	ProductID       string
	Quantity        int
	Status          StockStatus
	Dimensions      string
	WeightGrams     float64
	DeadWeightGrams float64
	UpdatedAt       time.Time
}

// Coupon is a discount code managed through the admin dashboard.
type Coupon struct {
	ID         string
	Code       string
	Percentage int
	MinAmount  int64
	MaxUses    int
	Uses       int
	Active     bool
	ExpiresAt  *time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// TaxRule is a percentage tax applied to a region.
type TaxRule struct {
	ID        string
	Name      string
	Rate      float64
	Region    string
	Active    bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Post is a blog article managed through the admin dashboard. Body is stored
// sanitized.
type Post struct {
	ID          string
	Title       string
	Slug        string
	Body        string
	CategoryID  string
	Tags        []string
	Published   bool
	PublishedAt *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// HealthStatus summarises the state of a dependency probe.
type HealthStatus string

const (
	// HealthStatusOK indicates the dependency responded within its budget.
	HealthStatusOK HealthStatus = "ok"
	// HealthStatusDegraded indicates the dependency responded with an error.
	HealthStatusDegraded HealthStatus = "degraded"
	// HealthStatusError indicates the dependency timed out or was cancelled.
	HealthStatusError HealthStatus = "error"
)

// SystemHealthCheck records the outcome of a single dependency probe.
type SystemHealthCheck struct {
	Status    HealthStatus
	Detail    string
	Error     string
	Latency   time.Duration
	CheckedAt time.Time
}

// SystemHealthReport aggregates dependency probes for readiness endpoints.
type SystemHealthReport struct {
	Status      HealthStatus
	Checks      map[string]SystemHealthCheck
	GeneratedAt time.Time
}
