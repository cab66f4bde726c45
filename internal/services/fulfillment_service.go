package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"golang.org/x/sync/errgroup"

	domain "github.com/zenkart/admin-api/internal/domain"
	"github.com/zenkart/admin-api/internal/repositories"
)

var (
	// ErrFulfillmentInvalidInput signals the caller provided invalid arguments.
	ErrFulfillmentInvalidInput = errors.New("fulfillment: invalid input")
	// ErrFulfillmentOrderNotFound indicates the order could not be located.
	ErrFulfillmentOrderNotFound = errors.New("fulfillment: order not found")
	// ErrFulfillmentInvalidState indicates the order cannot take the requested workflow.
	ErrFulfillmentInvalidState = errors.New("fulfillment: order state invalid")
)

// FulfillmentServiceDeps bundles collaborators required to construct the
// fulfillment service. Orders and Stock are mandatory; every other
// collaborator degrades to skipping its step with a warning.
type FulfillmentServiceDeps struct {
	Orders      repositories.OrderRepository
	Stock       StockService
	Builder     RequestBuilder
	Carrier     CarrierAPI
	Notifier    Notifier
	Invoices    InvoiceRenderer
	Archiver    InvoiceArchiver
	Events      OrderEventPublisher
	Metrics     FulfillmentMetrics
	Policy      SeverityPolicy
	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type fulfillmentService struct {
	orders   repositories.OrderRepository
	stock    StockService
	builder  RequestBuilder
	carrier  CarrierAPI
	notifier Notifier
	invoices InvoiceRenderer
	archiver InvoiceArchiver
	events   OrderEventPublisher
	metrics  FulfillmentMetrics
	policy   SeverityPolicy
	clock    func() time.Time
	newID    func() string
	logger   func(context.Context, string, map[string]any)
}

// NewFulfillmentService wires dependencies into a concrete FulfillmentService.
func NewFulfillmentService(deps FulfillmentServiceDeps) (FulfillmentService, error) {
	if deps.Orders == nil {
		return nil, errors.New("fulfillment service: order repository is required")
	}
	if deps.Stock == nil {
		return nil, errors.New("fulfillment service: stock service is required")
	}

	policy := DefaultSeverityPolicy()
	for step, severity := range deps.Policy {
		policy[step] = severity
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string {
			return ulid.Make().String()
		}
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &fulfillmentService{
		orders:   deps.Orders,
		stock:    deps.Stock,
		builder:  deps.Builder,
		carrier:  deps.Carrier,
		notifier: deps.Notifier,
		invoices: deps.Invoices,
		archiver: deps.Archiver,
		events:   deps.Events,
		metrics:  deps.Metrics,
		policy:   policy,
		clock:    func() time.Time { return clock().UTC() },
		newID:    idGen,
		logger:   logger,
	}, nil
}

// ConfirmOrder runs the confirmation workflow: persist the confirmed
// status, reduce stock, create the carrier shipment, then email the
// customer with a best-effort invoice attachment. Later steps run even
// when earlier ones fail; each failure lands in the result according to
// the severity policy. Success is true iff no hard errors accumulated.
func (s *fulfillmentService) ConfirmOrder(ctx context.Context, userID, orderID string) (ConfirmationResult, error) {
	order, err := s.loadOrder(ctx, userID, orderID)
	if err != nil {
		return ConfirmationResult{}, err
	}
	if order.Status == domain.OrderStatusCancelled || order.Status == domain.OrderStatusDelivered {
		return ConfirmationResult{}, fmt.Errorf("%w: cannot confirm a %s order", ErrFulfillmentInvalidState, order.Status)
	}

	now := s.clock()
	result := ConfirmationResult{Order: order}

	order, err = s.orders.UpdateStatus(ctx, order.UserID, order.ID, repositories.OrderStatusUpdate{
		Status:    domain.OrderStatusConfirmed,
		UpdatedAt: now,
	})
	if err != nil {
		// Nothing has happened yet; bail out rather than run the
		// workflow against an unconfirmed order.
		result.Errors = append(result.Errors, fmt.Sprintf("persist confirmed status: %v", err))
		result.Success = false
		s.finishRun(ctx, "confirm", &result.Order, result.Success)
		return result, nil
	}
	result.Order = order

	// Step: stock reduction.
	batch := s.stock.ReduceStockForOrder(ctx, order)
	result.StockReduced = batch.OK()
	result.InsufficientStock = batch.Insufficient
	for _, shortage := range batch.Insufficient {
		s.recordFailure(&result.Errors, &result.Warnings, StepStockReduce,
			fmt.Sprintf("insufficient stock for %s: requested %d, available %d", shortage.ProductID, shortage.Requested, shortage.Available))
	}
	for _, itemErr := range batch.Errors {
		s.recordFailure(&result.Errors, &result.Warnings, StepStockReduce,
			fmt.Sprintf("reduce stock %s: %s", itemErr.ProductID, itemErr.Message))
	}

	// Step: carrier shipment. Always attempted; a failed shipment can be
	// retried or created manually later.
	order = s.createShipment(ctx, order, &result)

	// Step: invoice + emails.
	s.sendConfirmationEmails(ctx, order, &result)

	result.Success = len(result.Errors) == 0
	result.Order = order

	s.publishEvent(ctx, orderEventConfirmed, order)
	if result.ShipmentCreated {
		s.publishEvent(ctx, orderEventShipped, order)
	}
	s.finishRun(ctx, "confirm", &order, result.Success)

	return result, nil
}

// CancelOrder sets the cancelled status, restores stock when the order had
// been confirmed or shipped, then best-effort cancels the carrier shipment
// and emails the customer.
func (s *fulfillmentService) CancelOrder(ctx context.Context, userID, orderID, reason string) (CancellationResult, error) {
	order, err := s.loadOrder(ctx, userID, orderID)
	if err != nil {
		return CancellationResult{}, err
	}
	if !cancellableStatuses[order.Status] {
		return CancellationResult{}, fmt.Errorf("%w: cannot cancel a %s order", ErrFulfillmentInvalidState, order.Status)
	}

	now := s.clock()
	priorStatus := order.Status
	result := CancellationResult{Order: order}

	reason = strings.TrimSpace(reason)
	update := repositories.OrderStatusUpdate{
		Status:      domain.OrderStatusCancelled,
		CancelledAt: &now,
		UpdatedAt:   now,
	}
	if reason != "" {
		update.CancelReason = &reason
	}

	order, err = s.orders.UpdateStatus(ctx, order.UserID, order.ID, update)
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("persist cancelled status: %v", err))
		result.Success = false
		s.finishRun(ctx, "cancel", &result.Order, result.Success)
		return result, nil
	}
	result.Order = order

	// Stock was only reduced once the order got confirmed.
	if priorStatus == domain.OrderStatusConfirmed || priorStatus == domain.OrderStatusShipped {
		batch := s.stock.RestoreStockForOrder(ctx, order)
		result.StockRestored = batch.OK()
		for _, itemErr := range batch.Errors {
			s.recordFailure(&result.Errors, &result.Warnings, StepStockRestore,
				fmt.Sprintf("restore stock %s: %s", itemErr.ProductID, itemErr.Message))
		}
	} else {
		result.StockRestored = true
	}

	if s.carrier != nil && order.Carrier.TrackingCode != "" {
		if _, err := s.carrier.CancelShipment(ctx, []string{order.Carrier.TrackingCode}); err != nil {
			s.recordFailure(&result.Errors, &result.Warnings, StepCarrierCancel,
				fmt.Sprintf("cancel carrier shipment: %v", err))
		} else {
			result.ShipmentCancelled = true
		}
	}

	if s.notifier != nil {
		result.EmailSent = s.notifier.SendOrderCancellation(ctx, order, reason)
		if !result.EmailSent {
			s.recordFailure(&result.Errors, &result.Warnings, StepEmailSend, "cancellation email not sent")
		}
	}

	result.Success = len(result.Errors) == 0

	s.publishEvent(ctx, orderEventCancelled, order)
	s.finishRun(ctx, "cancel", &order, result.Success)

	return result, nil
}

// GetOrderStatus is a read-only aggregation: the order, a stock snapshot
// per distinct line-item product, and carrier tracking when a tracking code
// exists. Fetch failures are swallowed and the piece simply omitted.
func (s *fulfillmentService) GetOrderStatus(ctx context.Context, userID, orderID string) (OrderStatusView, error) {
	order, err := s.loadOrder(ctx, userID, orderID)
	if err != nil {
		return OrderStatusView{}, err
	}

	view := OrderStatusView{Order: order}

	productIDs := distinctProductIDs(order)
	stocks := make([]*ProductStockView, len(productIDs))

	var group errgroup.Group
	var mu sync.Mutex

	for i, productID := range productIDs {
		group.Go(func() error {
			record, err := s.stock.GetStock(ctx, productID)
			if err != nil {
				return nil
			}
			stocks[i] = &ProductStockView{
				ProductID: record.ProductID,
				Quantity:  record.Quantity,
				Status:    record.Status,
			}
			return nil
		})
	}

	if s.carrier != nil && order.Carrier.TrackingCode != "" && order.Carrier.ShipmentID != "" {
		group.Go(func() error {
			tracking, err := s.carrier.GetTracking(ctx, order.Carrier.ShipmentID)
			if err != nil {
				return nil
			}
			mu.Lock()
			view.Tracking = &tracking
			mu.Unlock()
			return nil
		})
	}
	_ = group.Wait()

	for _, stock := range stocks {
		if stock != nil {
			view.Stock = append(view.Stock, *stock)
		}
	}

	return view, nil
}

// createShipment builds the carrier payload and submits it. A response
// carrying an order or shipment id counts as created even when the carrier
// has not auto-assigned a courier yet; a tracking code upgrades the order
// to shipped.
func (s *fulfillmentService) createShipment(ctx context.Context, order Order, result *ConfirmationResult) Order {
	if s.builder == nil || s.carrier == nil {
		s.recordFailure(&result.Errors, &result.Warnings, StepShipmentCreate, "carrier integration not configured")
		return order
	}

	request, warnings, err := s.builder.BuildRequest(ctx, order)
	for _, warning := range warnings {
		result.Warnings = append(result.Warnings, warning.String())
	}
	if err != nil {
		s.recordFailure(&result.Errors, &result.Warnings, StepShipmentCreate, fmt.Sprintf("build shipment request: %v", err))
		return order
	}

	response, err := s.carrier.CreateOrder(ctx, request)
	if err != nil {
		s.recordFailure(&result.Errors, &result.Warnings, StepShipmentCreate, fmt.Sprintf("create carrier order: %v", err))
		return order
	}

	if response.OrderID == "" && response.ShipmentID == "" {
		s.recordFailure(&result.Errors, &result.Warnings, StepShipmentCreate, "carrier response carried no order or shipment id")
		return order
	}

	result.ShipmentCreated = true
	carrier := domain.CarrierInfo{
		OrderID:      response.OrderID,
		ShipmentID:   response.ShipmentID,
		TrackingCode: response.AWBCode,
		CourierName:  response.CourierName,
	}
	result.Carrier = &carrier

	status := domain.OrderStatusConfirmed
	if response.AWBCode != "" {
		status = domain.OrderStatusShipped
	}

	updated, err := s.orders.UpdateStatus(ctx, order.UserID, order.ID, repositories.OrderStatusUpdate{
		Status:    status,
		Carrier:   &carrier,
		UpdatedAt: s.clock(),
	})
	if err != nil {
		s.recordFailure(&result.Errors, &result.Warnings, StepShipmentCreate, fmt.Sprintf("persist carrier assignment: %v", err))
		order.Carrier = carrier
		return order
	}
	return updated
}

func (s *fulfillmentService) sendConfirmationEmails(ctx context.Context, order Order, result *ConfirmationResult) {
	if s.notifier == nil {
		s.recordFailure(&result.Errors, &result.Warnings, StepEmailSend, "notifier not configured")
		return
	}

	var attachment []byte
	if s.invoices != nil {
		rendered, err := s.invoices.RenderBytes(order)
		if err != nil {
			// The email still goes out without the attachment.
			s.recordFailure(&result.Errors, &result.Warnings, StepInvoiceRender, fmt.Sprintf("render invoice: %v", err))
		} else {
			attachment = rendered
			s.archiveInvoice(ctx, order, rendered)
		}
	}

	result.EmailSent = s.notifier.SendOrderConfirmation(ctx, order, attachment)
	if !result.EmailSent {
		s.recordFailure(&result.Errors, &result.Warnings, StepEmailSend, "confirmation email not sent")
	}

	if order.Carrier.TrackingCode != "" {
		if ok := s.notifier.SendShippingUpdate(ctx, order); !ok {
			s.recordFailure(&result.Errors, &result.Warnings, StepEmailSend, "shipping update email not sent")
		}
	}
}

// archiveInvoice is best-effort and logged only; the archive is a
// convenience copy, not the workflow's output.
func (s *fulfillmentService) archiveInvoice(ctx context.Context, order Order, html []byte) {
	if s.archiver == nil {
		return
	}
	uri, err := s.archiver.Archive(ctx, order.UserID, order.ID, html)
	if err != nil {
		s.logger(ctx, "fulfillment.invoice.archive.failed", map[string]any{
			"order": order.ID,
			"error": err.Error(),
		})
		return
	}
	s.logger(ctx, "fulfillment.invoice.archived", map[string]any{
		"order": order.ID,
		"uri":   uri,
	})
}

func (s *fulfillmentService) recordFailure(hard *[]string, soft *[]string, step FulfillmentStep, message string) {
	severity := s.policy[step]
	if severity == "" {
		severity = SeverityHard
	}

	if severity == SeverityHard {
		*hard = append(*hard, message)
	} else {
		*soft = append(*soft, message)
	}

	if s.metrics != nil {
		s.metrics.RecordFulfillmentStepFailure(string(step), string(severity))
	}
}

func (s *fulfillmentService) loadOrder(ctx context.Context, userID, orderID string) (Order, error) {
	userID = strings.TrimSpace(userID)
	orderID = strings.TrimSpace(orderID)
	if userID == "" || orderID == "" {
		return Order{}, fmt.Errorf("%w: user id and order id are required", ErrFulfillmentInvalidInput)
	}

	order, err := s.orders.FindByID(ctx, userID, orderID)
	if err != nil {
		var repoErr repositories.RepositoryError
		if errors.As(err, &repoErr) && repoErr.IsNotFound() {
			return Order{}, fmt.Errorf("%w: %v", ErrFulfillmentOrderNotFound, err)
		}
		return Order{}, err
	}
	return order, nil
}

func (s *fulfillmentService) publishEvent(ctx context.Context, eventType string, order Order) {
	if s.events == nil {
		return
	}
	message := OrderEventMessage{
		EventID:      s.newID(),
		Type:         eventType,
		OrderID:      order.ID,
		UserID:       order.UserID,
		ShipmentID:   order.Carrier.ShipmentID,
		TrackingCode: order.Carrier.TrackingCode,
		OccurredAt:   s.clock(),
	}
	if _, err := s.events.PublishOrderEvent(ctx, message); err != nil {
		s.logger(ctx, "fulfillment.event.publish.failed", map[string]any{
			"type":  eventType,
			"order": order.ID,
			"error": err.Error(),
		})
	}
}

func (s *fulfillmentService) finishRun(ctx context.Context, operation string, order *Order, success bool) {
	if s.metrics != nil {
		s.metrics.RecordFulfillmentRun(operation, success)
	}
	s.logger(ctx, "fulfillment."+operation+".finished", map[string]any{
		"order":   order.ID,
		"success": success,
	})
}

func distinctProductIDs(order Order) []string {
	seen := make(map[string]bool, len(order.Items))
	ids := make([]string, 0, len(order.Items))
	for _, item := range order.Items {
		if item.ProductID == "" || seen[item.ProductID] {
			continue
		}
		seen[item.ProductID] = true
		ids = append(ids, item.ProductID)
	}
	sort.Strings(ids)
	return ids
}
