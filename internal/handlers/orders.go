package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/zenkart/admin-api/internal/domain"
	"github.com/zenkart/admin-api/internal/platform/auth"
	"github.com/zenkart/admin-api/internal/platform/httpx"
	"github.com/zenkart/admin-api/internal/services"
)

const maxOrderActionBodySize = 4 * 1024

var validOrderStatuses = map[domain.OrderStatus]struct{}{
	domain.OrderStatusPending:   {},
	domain.OrderStatusConfirmed: {},
	domain.OrderStatusShipped:   {},
	domain.OrderStatusDelivered: {},
	domain.OrderStatusCancelled: {},
}

// OrderHandlers exposes the admin order endpoints, including the
// confirmation and cancellation workflows.
type OrderHandlers struct {
	authn       *auth.Authenticator
	orders      services.OrderService
	fulfillment services.FulfillmentService
	limiter     rateLimiter
}

// OrderHandlersOption customises order handler construction.
type OrderHandlersOption func(*OrderHandlers)

// WithOrderRateLimiter throttles the confirm and cancel actions per operator.
func WithOrderRateLimiter(limiter rateLimiter) OrderHandlersOption {
	return func(h *OrderHandlers) {
		h.limiter = limiter
	}
}

// WithOrderRateLimit throttles the confirm and cancel actions to limit
// requests per window for each operator.
func WithOrderRateLimit(limit int, window time.Duration) OrderHandlersOption {
	return func(h *OrderHandlers) {
		h.limiter = newSimpleRateLimiter(limit, window, nil)
	}
}

// NewOrderHandlers constructs a new OrderHandlers instance.
func NewOrderHandlers(authn *auth.Authenticator, orders services.OrderService, fulfillment services.FulfillmentService, opts ...OrderHandlersOption) *OrderHandlers {
	h := &OrderHandlers{
		authn:       authn,
		orders:      orders,
		fulfillment: fulfillment,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Routes registers the /orders endpoints.
func (h *OrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth())
	}
	r.Get("/", h.listOrders)
	r.Get("/{orderID}", h.getOrder)
	r.Get("/{orderID}/status", h.getOrderStatus)
	r.Post("/{orderID}:confirm", h.confirmOrder)
	r.Post("/{orderID}:cancel", h.cancelOrder)
}

func (h *OrderHandlers) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	query := r.URL.Query()

	var statusFilters []domain.OrderStatus
	for _, raw := range query["status"] {
		for _, value := range strings.Split(raw, ",") {
			value = strings.TrimSpace(strings.ToLower(value))
			if value == "" {
				continue
			}
			status := domain.OrderStatus(value)
			if _, ok := validOrderStatuses[status]; !ok {
				httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "status must be a valid order status", http.StatusBadRequest))
				return
			}
			statusFilters = append(statusFilters, status)
		}
	}

	var from, to *time.Time
	if raw := strings.TrimSpace(query.Get("created_after")); raw != "" {
		ts, err := parseTimeParam(raw)
		if err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "created_after must be a valid RFC3339 timestamp", http.StatusBadRequest))
			return
		}
		from = &ts
	}
	if raw := strings.TrimSpace(query.Get("created_before")); raw != "" {
		ts, err := parseTimeParam(raw)
		if err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "created_before must be a valid RFC3339 timestamp", http.StatusBadRequest))
			return
		}
		to = &ts
	}

	pager, err := parsePagination(query)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	page, err := h.orders.ListOrders(ctx, services.OrderListQuery{
		UserID:     strings.TrimSpace(query.Get("user_id")),
		Status:     statusFilters,
		From:       from,
		To:         to,
		Pagination: pager,
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	items := make([]orderSummaryPayload, 0, len(page.Items))
	for _, order := range page.Items {
		items = append(items, buildOrderSummary(order))
	}
	writeJSONResponse(w, http.StatusOK, orderListResponse{
		Items:         items,
		NextPageToken: strings.TrimSpace(page.NextPageToken),
	})
}

func (h *OrderHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	userID, orderID, ok := orderIdentifiers(w, r)
	if !ok {
		return
	}

	order, err := h.orders.GetOrder(ctx, userID, orderID)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func (h *OrderHandlers) getOrderStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.fulfillment == nil {
		httpx.WriteError(ctx, w, httpx.NewError("fulfillment_unavailable", "fulfillment service unavailable", http.StatusServiceUnavailable))
		return
	}

	userID, orderID, ok := orderIdentifiers(w, r)
	if !ok {
		return
	}

	view, err := h.fulfillment.GetOrderStatus(ctx, userID, orderID)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	payload := orderStatusResponse{
		Order: buildOrderPayload(view.Order),
		Stock: make([]stockViewPayload, 0, len(view.Stock)),
	}
	for _, stock := range view.Stock {
		payload.Stock = append(payload.Stock, stockViewPayload{
			ProductID: stock.ProductID,
			Quantity:  stock.Quantity,
			Status:    string(stock.Status),
		})
	}
	if view.Tracking != nil {
		tracking := trackingPayload{
			AWBCode:          view.Tracking.AWBCode,
			CurrentStatus:    view.Tracking.CurrentStatus,
			DeliveredDate:    view.Tracking.DeliveredDate,
			ExpectedDelivery: view.Tracking.ExpectedDelivery,
		}
		for _, activity := range view.Tracking.Activities {
			tracking.Activities = append(tracking.Activities, trackingActivityPayload{
				Date:     activity.Date,
				Status:   activity.Status,
				Activity: activity.Activity,
				Location: activity.Location,
			})
		}
		payload.Tracking = &tracking
	}
	writeJSONResponse(w, http.StatusOK, payload)
}

type orderActionRequest struct {
	UserID string `json:"user_id"`
	Reason string `json:"reason"`
}

func (h *OrderHandlers) confirmOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.fulfillment == nil {
		httpx.WriteError(ctx, w, httpx.NewError("fulfillment_unavailable", "fulfillment service unavailable", http.StatusServiceUnavailable))
		return
	}

	req, orderID, ok := h.decodeOrderAction(w, r)
	if !ok {
		return
	}

	result, err := h.fulfillment.ConfirmOrder(ctx, req.UserID, orderID)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildConfirmationPayload(result))
}

func (h *OrderHandlers) cancelOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.fulfillment == nil {
		httpx.WriteError(ctx, w, httpx.NewError("fulfillment_unavailable", "fulfillment service unavailable", http.StatusServiceUnavailable))
		return
	}

	req, orderID, ok := h.decodeOrderAction(w, r)
	if !ok {
		return
	}

	result, err := h.fulfillment.CancelOrder(ctx, req.UserID, orderID, req.Reason)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildCancellationPayload(result))
}

// decodeOrderAction validates the shared confirm/cancel request shape and
// applies the per-operator rate limit.
func (h *OrderHandlers) decodeOrderAction(w http.ResponseWriter, r *http.Request) (orderActionRequest, string, bool) {
	ctx := r.Context()

	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	if orderID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order id is required", http.StatusBadRequest))
		return orderActionRequest{}, "", false
	}

	var req orderActionRequest
	if err := decodeJSONBody(r, maxOrderActionBodySize, &req); err != nil {
		switch {
		case errors.Is(err, errBodyTooLarge):
			httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "request body exceeds allowed size", http.StatusRequestEntityTooLarge))
		default:
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON body", http.StatusBadRequest))
		}
		return orderActionRequest{}, "", false
	}

	req.UserID = strings.TrimSpace(req.UserID)
	if req.UserID == "" {
		req.UserID = strings.TrimSpace(r.URL.Query().Get("user_id"))
	}
	if req.UserID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "user_id is required", http.StatusBadRequest))
		return orderActionRequest{}, "", false
	}

	if h.limiter != nil {
		key := req.UserID
		if identity, ok := auth.IdentityFromContext(ctx); ok && identity != nil && identity.UID != "" {
			key = identity.UID
		}
		if !h.limiter.Allow(key) {
			httpx.WriteError(ctx, w, httpx.NewError("rate_limited", "too many order actions, slow down", http.StatusTooManyRequests))
			return orderActionRequest{}, "", false
		}
	}

	return req, orderID, true
}

type orderListResponse struct {
	Items         []orderSummaryPayload `json:"items"`
	NextPageToken string                `json:"next_page_token,omitempty"`
}

type orderSummaryPayload struct {
	ID            string `json:"id"`
	UserID        string `json:"user_id"`
	Status        string `json:"status"`
	PaymentMethod string `json:"payment_method"`
	Total         int64  `json:"total"`
	CreatedAt     string `json:"created_at"`
}

type orderResponse struct {
	Order orderPayload `json:"order"`
}

type orderPayload struct {
	ID            string              `json:"id"`
	UserID        string              `json:"user_id"`
	Email         string              `json:"email,omitempty"`
	Status        string              `json:"status"`
	PaymentMethod string              `json:"payment_method"`
	PaymentStatus string              `json:"payment_status,omitempty"`
	Items         []orderItemPayload  `json:"items"`
	Address       *addressPayload     `json:"address,omitempty"`
	Totals        orderTotalsPayload  `json:"totals"`
	Carrier       *carrierInfoPayload `json:"carrier,omitempty"`
	CancelReason  *string             `json:"cancel_reason,omitempty"`
	CreatedAt     string              `json:"created_at"`
	UpdatedAt     string              `json:"updated_at,omitempty"`
	CancelledAt   string              `json:"cancelled_at,omitempty"`
}

type orderItemPayload struct {
	ProductID string `json:"product_id"`
	Name      string `json:"name,omitempty"`
	Quantity  int    `json:"quantity"`
	UnitPrice int64  `json:"unit_price"`
	SalePrice *int64 `json:"sale_price,omitempty"`
	Total     int64  `json:"total"`
}

type addressPayload struct {
	FirstName  string `json:"first_name,omitempty"`
	LastName   string `json:"last_name,omitempty"`
	Name       string `json:"name,omitempty"`
	Street     string `json:"street,omitempty"`
	City       string `json:"city,omitempty"`
	State      string `json:"state,omitempty"`
	Country    string `json:"country,omitempty"`
	PostalCode string `json:"postal_code,omitempty"`
	Phone      string `json:"phone,omitempty"`
}

type orderTotalsPayload struct {
	Subtotal   int64 `json:"subtotal"`
	Discount   int64 `json:"discount"`
	Shipping   int64 `json:"shipping"`
	Commission int64 `json:"commission"`
	Total      int64 `json:"total"`
}

type carrierInfoPayload struct {
	OrderID      string `json:"order_id,omitempty"`
	ShipmentID   string `json:"shipment_id,omitempty"`
	TrackingCode string `json:"tracking_code,omitempty"`
	CourierName  string `json:"courier_name,omitempty"`
}

type stockViewPayload struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
	Status    string `json:"status"`
}

type trackingActivityPayload struct {
	Date     string `json:"date,omitempty"`
	Status   string `json:"status,omitempty"`
	Activity string `json:"activity,omitempty"`
	Location string `json:"location,omitempty"`
}

type trackingPayload struct {
	AWBCode          string                    `json:"awb_code,omitempty"`
	CurrentStatus    string                    `json:"current_status,omitempty"`
	DeliveredDate    string                    `json:"delivered_date,omitempty"`
	ExpectedDelivery string                    `json:"expected_delivery,omitempty"`
	Activities       []trackingActivityPayload `json:"activities,omitempty"`
}

type orderStatusResponse struct {
	Order    orderPayload       `json:"order"`
	Stock    []stockViewPayload `json:"stock"`
	Tracking *trackingPayload   `json:"tracking,omitempty"`
}

type stockShortagePayload struct {
	ProductID string `json:"product_id"`
	Requested int    `json:"requested"`
	Available int    `json:"available"`
}

type confirmationResponse struct {
	Success           bool                   `json:"success"`
	StockReduced      bool                   `json:"stock_reduced"`
	ShipmentCreated   bool                   `json:"shipment_created"`
	EmailSent         bool                   `json:"email_sent"`
	Errors            []string               `json:"errors"`
	Warnings          []string               `json:"warnings"`
	InsufficientStock []stockShortagePayload `json:"insufficient_stock,omitempty"`
	Carrier           *carrierInfoPayload    `json:"carrier,omitempty"`
	Order             orderPayload           `json:"order"`
}

type cancellationResponse struct {
	Success           bool         `json:"success"`
	StockRestored     bool         `json:"stock_restored"`
	ShipmentCancelled bool         `json:"shipment_cancelled"`
	EmailSent         bool         `json:"email_sent"`
	Errors            []string     `json:"errors"`
	Warnings          []string     `json:"warnings"`
	Order             orderPayload `json:"order"`
}

func buildOrderSummary(order services.Order) orderSummaryPayload {
	return orderSummaryPayload{
		ID:            strings.TrimSpace(order.ID),
		UserID:        strings.TrimSpace(order.UserID),
		Status:        string(order.Status),
		PaymentMethod: string(order.PaymentMethod),
		Total:         order.Totals.Total,
		CreatedAt:     formatTime(order.CreatedAt),
	}
}

func buildOrderPayload(order services.Order) orderPayload {
	payload := orderPayload{
		ID:            strings.TrimSpace(order.ID),
		UserID:        strings.TrimSpace(order.UserID),
		Email:         strings.TrimSpace(order.Email),
		Status:        string(order.Status),
		PaymentMethod: string(order.PaymentMethod),
		PaymentStatus: string(order.PaymentStatus),
		Items:         make([]orderItemPayload, 0, len(order.Items)),
		Totals: orderTotalsPayload{
			Subtotal:   order.Totals.Subtotal,
			Discount:   order.Totals.Discount,
			Shipping:   order.Totals.Shipping,
			Commission: order.Totals.Commission,
			Total:      order.Totals.Total,
		},
		CancelReason: order.CancelReason,
		CreatedAt:    formatTime(order.CreatedAt),
		UpdatedAt:    formatTime(order.UpdatedAt),
	}
	if order.CancelledAt != nil {
		payload.CancelledAt = formatTimePointer(order.CancelledAt)
	}

	for _, item := range order.Items {
		payload.Items = append(payload.Items, orderItemPayload{
			ProductID: item.ProductID,
			Name:      item.Name,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
			SalePrice: item.SalePrice,
			Total:     item.SellingPrice() * int64(item.Quantity),
		})
	}

	if order.Address != (domain.Address{}) {
		payload.Address = &addressPayload{
			FirstName:  order.Address.FirstName,
			LastName:   order.Address.LastName,
			Name:       order.Address.Name,
			Street:     order.Address.Street,
			City:       order.Address.City,
			State:      order.Address.State,
			Country:    order.Address.Country,
			PostalCode: order.Address.PostalCode,
			Phone:      order.Address.Phone,
		}
	}
	if order.Carrier != (domain.CarrierInfo{}) {
		payload.Carrier = buildCarrierPayload(order.Carrier)
	}
	return payload
}

func buildCarrierPayload(carrier domain.CarrierInfo) *carrierInfoPayload {
	return &carrierInfoPayload{
		OrderID:      carrier.OrderID,
		ShipmentID:   carrier.ShipmentID,
		TrackingCode: carrier.TrackingCode,
		CourierName:  carrier.CourierName,
	}
}

func buildConfirmationPayload(result services.ConfirmationResult) confirmationResponse {
	response := confirmationResponse{
		Success:         result.Success,
		StockReduced:    result.StockReduced,
		ShipmentCreated: result.ShipmentCreated,
		EmailSent:       result.EmailSent,
		Errors:          emptyIfNil(result.Errors),
		Warnings:        emptyIfNil(result.Warnings),
		Order:           buildOrderPayload(result.Order),
	}
	for _, shortage := range result.InsufficientStock {
		response.InsufficientStock = append(response.InsufficientStock, stockShortagePayload{
			ProductID: shortage.ProductID,
			Requested: shortage.Requested,
			Available: shortage.Available,
		})
	}
	if result.Carrier != nil {
		response.Carrier = buildCarrierPayload(*result.Carrier)
	}
	return response
}

func buildCancellationPayload(result services.CancellationResult) cancellationResponse {
	return cancellationResponse{
		Success:           result.Success,
		StockRestored:     result.StockRestored,
		ShipmentCancelled: result.ShipmentCancelled,
		EmailSent:         result.EmailSent,
		Errors:            emptyIfNil(result.Errors),
		Warnings:          emptyIfNil(result.Warnings),
		Order:             buildOrderPayload(result.Order),
	}
}

func emptyIfNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}

func orderIdentifiers(w http.ResponseWriter, r *http.Request) (string, string, bool) {
	ctx := r.Context()
	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	if orderID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order id is required", http.StatusBadRequest))
		return "", "", false
	}
	userID := strings.TrimSpace(r.URL.Query().Get("user_id"))
	if userID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "user_id is required", http.StatusBadRequest))
		return "", "", false
	}
	return userID, orderID, true
}

func writeOrderError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrOrderInvalidInput) || errors.Is(err, services.ErrFulfillmentInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrOrderNotFound) || errors.Is(err, services.ErrFulfillmentOrderNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "order not found", http.StatusNotFound))
	case errors.Is(err, services.ErrOrderInvalidState) || errors.Is(err, services.ErrFulfillmentInvalidState):
		httpx.WriteError(ctx, w, httpx.NewError("order_invalid_state", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrOrderConflict):
		httpx.WriteError(ctx, w, httpx.NewError("order_conflict", err.Error(), http.StatusConflict))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("internal_error", "unexpected error", http.StatusInternalServerError))
	}
}
