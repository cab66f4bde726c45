package services

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/zenkart/admin-api/internal/domain"
	"github.com/zenkart/admin-api/internal/repositories"
)

type stubOrderRepository struct {
	findFn         func(ctx context.Context, userID, orderID string) (domain.Order, error)
	updateFn       func(ctx context.Context, order domain.Order) error
	updateStatusFn func(ctx context.Context, userID, orderID string, update repositories.OrderStatusUpdate) (domain.Order, error)
	listFn         func(ctx context.Context, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error)
}

func (s *stubOrderRepository) FindByID(ctx context.Context, userID, orderID string) (domain.Order, error) {
	if s.findFn == nil {
		return domain.Order{}, fakeRepositoryError{notFound: true}
	}
	return s.findFn(ctx, userID, orderID)
}

func (s *stubOrderRepository) Update(ctx context.Context, order domain.Order) error {
	if s.updateFn == nil {
		return nil
	}
	return s.updateFn(ctx, order)
}

func (s *stubOrderRepository) UpdateStatus(ctx context.Context, userID, orderID string, update repositories.OrderStatusUpdate) (domain.Order, error) {
	if s.updateStatusFn == nil {
		return domain.Order{}, errors.New("unexpected UpdateStatus call")
	}
	return s.updateStatusFn(ctx, userID, orderID, update)
}

func (s *stubOrderRepository) List(ctx context.Context, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
	if s.listFn == nil {
		return domain.CursorPage[domain.Order]{}, nil
	}
	return s.listFn(ctx, filter)
}

type stubEventPublisher struct {
	messages []OrderEventMessage
	err      error
}

func (s *stubEventPublisher) PublishOrderEvent(_ context.Context, message OrderEventMessage) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	s.messages = append(s.messages, message)
	return "msg-" + message.EventID, nil
}

func pendingOrder() domain.Order {
	return domain.Order{
		ID:     "order-1",
		UserID: "user-1",
		Email:  "asha@example.com",
		Items: []domain.LineItem{
			{ProductID: "prod-1", Name: "Steel Bottle", UnitPrice: 80000, Quantity: 5},
		},
		Status:        domain.OrderStatusPending,
		PaymentMethod: domain.PaymentMethodOnline,
		CreatedAt:     time.Date(2026, time.March, 10, 12, 0, 0, 0, time.UTC),
	}
}

func newTestOrderService(t *testing.T, repo repositories.OrderRepository, events OrderEventPublisher) OrderService {
	t.Helper()

	svc, err := NewOrderService(OrderServiceDeps{
		Orders:      repo,
		Clock:       func() time.Time { return time.Date(2026, time.March, 14, 9, 0, 0, 0, time.UTC) },
		IDGenerator: func() string { return "evt-1" },
		Events:      events,
	})
	if err != nil {
		t.Fatalf("NewOrderService returned error: %v", err)
	}
	return svc
}

func TestGetOrderMapsNotFound(t *testing.T) {
	svc := newTestOrderService(t, &stubOrderRepository{}, nil)

	if _, err := svc.GetOrder(context.Background(), "user-1", "ghost"); !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound, got %v", err)
	}
	if _, err := svc.GetOrder(context.Background(), "", "order-1"); !errors.Is(err, ErrOrderInvalidInput) {
		t.Fatalf("expected ErrOrderInvalidInput, got %v", err)
	}
}

func TestTransitionStatusAllowsValidTransition(t *testing.T) {
	order := pendingOrder()
	order.Status = domain.OrderStatusShipped

	var captured repositories.OrderStatusUpdate
	repo := &stubOrderRepository{
		findFn: func(context.Context, string, string) (domain.Order, error) {
			return order, nil
		},
		updateStatusFn: func(_ context.Context, _, _ string, update repositories.OrderStatusUpdate) (domain.Order, error) {
			captured = update
			order.Status = update.Status
			return order, nil
		},
	}
	events := &stubEventPublisher{}
	svc := newTestOrderService(t, repo, events)

	updated, err := svc.TransitionStatus(context.Background(), OrderStatusTransitionCommand{
		UserID:  "user-1",
		OrderID: "order-1",
		Target:  domain.OrderStatusDelivered,
	})
	if err != nil {
		t.Fatalf("TransitionStatus returned error: %v", err)
	}
	if updated.Status != domain.OrderStatusDelivered {
		t.Fatalf("expected delivered, got %s", updated.Status)
	}
	if captured.Status != domain.OrderStatusDelivered || captured.CancelledAt != nil {
		t.Fatalf("unexpected update %+v", captured)
	}
	if len(events.messages) != 1 || events.messages[0].Type != orderEventStatusChanged {
		t.Fatalf("expected a status-changed event, got %v", events.messages)
	}
}

func TestTransitionStatusRejectsInvalidTransition(t *testing.T) {
	repo := &stubOrderRepository{
		findFn: func(context.Context, string, string) (domain.Order, error) {
			return pendingOrder(), nil
		},
	}
	svc := newTestOrderService(t, repo, nil)

	_, err := svc.TransitionStatus(context.Background(), OrderStatusTransitionCommand{
		UserID:  "user-1",
		OrderID: "order-1",
		Target:  domain.OrderStatusDelivered,
	})
	if !errors.Is(err, ErrOrderInvalidState) {
		t.Fatalf("expected ErrOrderInvalidState, got %v", err)
	}
}

func TestTransitionStatusToCancelledStampsTimestamp(t *testing.T) {
	var captured repositories.OrderStatusUpdate
	repo := &stubOrderRepository{
		findFn: func(context.Context, string, string) (domain.Order, error) {
			return pendingOrder(), nil
		},
		updateStatusFn: func(_ context.Context, _, _ string, update repositories.OrderStatusUpdate) (domain.Order, error) {
			captured = update
			order := pendingOrder()
			order.Status = update.Status
			return order, nil
		},
	}
	svc := newTestOrderService(t, repo, nil)

	if _, err := svc.TransitionStatus(context.Background(), OrderStatusTransitionCommand{
		UserID:  "user-1",
		OrderID: "order-1",
		Target:  domain.OrderStatusCancelled,
	}); err != nil {
		t.Fatalf("TransitionStatus returned error: %v", err)
	}
	if captured.CancelledAt == nil {
		t.Fatal("expected CancelledAt to be stamped")
	}
}

func TestListOrdersPassesFilterThrough(t *testing.T) {
	var captured repositories.OrderListFilter
	repo := &stubOrderRepository{
		listFn: func(_ context.Context, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
			captured = filter
			return domain.CursorPage[domain.Order]{Items: []domain.Order{pendingOrder()}, NextPageToken: "next"}, nil
		},
	}
	svc := newTestOrderService(t, repo, nil)

	from := time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC)
	page, err := svc.ListOrders(context.Background(), OrderListQuery{
		UserID:     " user-1 ",
		Status:     []domain.OrderStatus{domain.OrderStatusPending},
		From:       &from,
		Pagination: Pagination{PageSize: 20, PageToken: " tok "},
	})
	if err != nil {
		t.Fatalf("ListOrders returned error: %v", err)
	}
	if page.NextPageToken != "next" || len(page.Items) != 1 {
		t.Fatalf("unexpected page %+v", page)
	}
	if captured.UserID != "user-1" || captured.Pagination.PageToken != "tok" {
		t.Fatalf("expected trimmed filter values, got %+v", captured)
	}
	if captured.DateRange.From == nil || !captured.DateRange.From.Equal(from) {
		t.Fatalf("expected date range from %v, got %+v", from, captured.DateRange)
	}
}

func TestTransitionStatusPublishFailureDoesNotFail(t *testing.T) {
	repo := &stubOrderRepository{
		findFn: func(context.Context, string, string) (domain.Order, error) {
			return pendingOrder(), nil
		},
		updateStatusFn: func(_ context.Context, _, _ string, update repositories.OrderStatusUpdate) (domain.Order, error) {
			order := pendingOrder()
			order.Status = update.Status
			return order, nil
		},
	}
	events := &stubEventPublisher{err: errors.New("pubsub down")}
	svc := newTestOrderService(t, repo, events)

	if _, err := svc.TransitionStatus(context.Background(), OrderStatusTransitionCommand{
		UserID:  "user-1",
		OrderID: "order-1",
		Target:  domain.OrderStatusConfirmed,
	}); err != nil {
		t.Fatalf("expected publish failure to be swallowed, got %v", err)
	}
}
