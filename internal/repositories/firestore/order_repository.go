package firestore

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/zenkart/admin-api/internal/domain"
	pfirestore "github.com/zenkart/admin-api/internal/platform/firestore"
	"github.com/zenkart/admin-api/internal/repositories"
)

const (
	customersCollection = "customers"
	ordersCollection    = "orders"
)

// OrderRepository persists order documents under customers/{userId}/orders/{orderId}.
type OrderRepository struct {
	provider *pfirestore.Provider
}

// NewOrderRepository constructs a Firestore-backed order repository.
func NewOrderRepository(provider *pfirestore.Provider) (*OrderRepository, error) {
	if provider == nil {
		return nil, errors.New("order repository requires firestore provider")
	}
	return &OrderRepository{provider: provider}, nil
}

func (r *OrderRepository) docRef(client *firestore.Client, userID, orderID string) *firestore.DocumentRef {
	return client.Collection(customersCollection).Doc(userID).Collection(ordersCollection).Doc(orderID)
}

func (r *OrderRepository) FindByID(ctx context.Context, userID string, orderID string) (domain.Order, error) {
	if r == nil || r.provider == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	userID = strings.TrimSpace(userID)
	orderID = strings.TrimSpace(orderID)
	if userID == "" || orderID == "" {
		return domain.Order{}, pfirestore.WrapError("order.find", status.Error(codes.NotFound, "user id and order id are required"))
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return domain.Order{}, pfirestore.WrapError("order.find", err)
	}
	snap, err := r.docRef(client, userID, orderID).Get(ctx)
	if err != nil {
		return domain.Order{}, pfirestore.WrapError("order.find", err)
	}

	doc, err := decodeOrder(snap)
	if err != nil {
		return domain.Order{}, err
	}
	return doc.toDomain(snap.Ref.ID, userID), nil
}

func (r *OrderRepository) Update(ctx context.Context, order domain.Order) error {
	if r == nil || r.provider == nil {
		return errors.New("order repository not initialised")
	}
	if strings.TrimSpace(order.ID) == "" || strings.TrimSpace(order.UserID) == "" {
		return errors.New("order update: id and user id are required")
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return pfirestore.WrapError("order.update", err)
	}
	doc := newOrderDocument(order)
	if _, err := r.docRef(client, order.UserID, order.ID).Set(ctx, doc); err != nil {
		return pfirestore.WrapError("order.update", err)
	}
	return nil
}

// UpdateStatus mutates only the lifecycle fields so concurrent edits to other
// parts of the document are preserved.
func (r *OrderRepository) UpdateStatus(ctx context.Context, userID string, orderID string, update repositories.OrderStatusUpdate) (domain.Order, error) {
	if r == nil || r.provider == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	userID = strings.TrimSpace(userID)
	orderID = strings.TrimSpace(orderID)
	if userID == "" || orderID == "" {
		return domain.Order{}, pfirestore.WrapError("order.updateStatus", status.Error(codes.NotFound, "user id and order id are required"))
	}

	updatedAt := update.UpdatedAt.UTC()
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}

	var updated domain.Order
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		client, err := r.provider.Client(ctx)
		if err != nil {
			return err
		}
		ref := r.docRef(client, userID, orderID)
		snap, err := tx.Get(ref)
		if err != nil {
			return err
		}
		doc, err := decodeOrder(snap)
		if err != nil {
			return err
		}

		updates := []firestore.Update{
			{Path: "status", Value: string(update.Status)},
			{Path: "updatedAt", Value: updatedAt},
		}
		doc.Status = string(update.Status)
		doc.UpdatedAt = updatedAt
		if update.PaymentStatus != nil {
			doc.PaymentStatus = string(*update.PaymentStatus)
			updates = append(updates, firestore.Update{Path: "paymentStatus", Value: doc.PaymentStatus})
		}
		if update.Carrier != nil {
			carrier := newCarrierDocument(*update.Carrier)
			doc.Carrier = &carrier
			updates = append(updates, firestore.Update{Path: "carrier", Value: carrier})
		}
		if update.CancelReason != nil {
			doc.CancelReason = update.CancelReason
			updates = append(updates, firestore.Update{Path: "cancelReason", Value: *update.CancelReason})
		}
		if update.CancelledAt != nil {
			cancelled := update.CancelledAt.UTC()
			doc.CancelledAt = &cancelled
			updates = append(updates, firestore.Update{Path: "cancelledAt", Value: cancelled})
		}

		if err := tx.Update(ref, updates); err != nil {
			return err
		}
		updated = doc.toDomain(orderID, userID)
		return nil
	})
	if err != nil {
		return domain.Order{}, pfirestore.WrapError("order.updateStatus", err)
	}
	return updated, nil
}

func (r *OrderRepository) List(ctx context.Context, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
	if r == nil || r.provider == nil {
		return domain.CursorPage[domain.Order]{}, errors.New("order repository not initialised")
	}

	pageSize := filter.Pagination.PageSize
	if pageSize <= 0 {
		pageSize = 50
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return domain.CursorPage[domain.Order]{}, pfirestore.WrapError("order.list", err)
	}

	var q firestore.Query
	if userID := strings.TrimSpace(filter.UserID); userID != "" {
		q = client.Collection(customersCollection).Doc(userID).Collection(ordersCollection).Query
	} else {
		q = client.CollectionGroup(ordersCollection).Query
	}

	if len(filter.Status) > 0 {
		statuses := make([]string, 0, len(filter.Status))
		for _, s := range filter.Status {
			statuses = append(statuses, string(s))
		}
		q = q.Where("status", "in", statuses)
	}
	if filter.DateRange.From != nil {
		q = q.Where("createdAt", ">=", filter.DateRange.From.UTC())
	}
	if filter.DateRange.To != nil {
		q = q.Where("createdAt", "<=", filter.DateRange.To.UTC())
	}

	q = q.OrderBy("createdAt", firestore.Desc)
	if token := strings.TrimSpace(filter.Pagination.PageToken); token != "" {
		decoded, err := decodeOrderPageToken(token)
		if err != nil {
			return domain.CursorPage[domain.Order]{}, pfirestore.WrapError("order.list", err)
		}
		q = q.StartAfter(decoded.CreatedAt)
	}
	q = q.Limit(pageSize + 1)

	iter := q.Documents(ctx)
	defer iter.Stop()

	var orders []domain.Order
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return domain.CursorPage[domain.Order]{}, pfirestore.WrapError("order.list", err)
		}
		doc, err := decodeOrder(snap)
		if err != nil {
			return domain.CursorPage[domain.Order]{}, err
		}
		orders = append(orders, doc.toDomain(snap.Ref.ID, ownerIDFromRef(snap.Ref)))
	}

	hasMore := len(orders) > pageSize
	if hasMore {
		orders = orders[:pageSize]
	}
	var nextToken string
	if hasMore && len(orders) > 0 {
		last := orders[len(orders)-1]
		encoded, err := encodeOrderPageToken(orderPageToken{CreatedAt: last.CreatedAt})
		if err != nil {
			return domain.CursorPage[domain.Order]{}, pfirestore.WrapError("order.list", err)
		}
		nextToken = encoded
	}

	return domain.CursorPage[domain.Order]{
		Items:         orders,
		NextPageToken: nextToken,
	}, nil
}

// ownerIDFromRef extracts the customer id from customers/{id}/orders/{orderId}.
func ownerIDFromRef(ref *firestore.DocumentRef) string {
	if ref == nil || ref.Parent == nil || ref.Parent.Parent == nil {
		return ""
	}
	return ref.Parent.Parent.ID
}

// Helper structures ---------------------------------------------------------

type orderDocument struct {
	UserID        string              `firestore:"userId"`
	Email         string              `firestore:"email"`
	Items         []lineItemDocument  `firestore:"items"`
	Address       addressDocument     `firestore:"address"`
	PaymentMethod string              `firestore:"paymentMethod"`
	PaymentStatus string              `firestore:"paymentStatus"`
	Status        string              `firestore:"status"`
	Totals        orderTotalsDocument `firestore:"totals"`
	Carrier       *carrierDocument    `firestore:"carrier,omitempty"`
	CancelReason  *string             `firestore:"cancelReason,omitempty"`
	CreatedAt     time.Time           `firestore:"createdAt"`
	UpdatedAt     time.Time           `firestore:"updatedAt"`
	CancelledAt   *time.Time          `firestore:"cancelledAt,omitempty"`
}

type lineItemDocument struct {
	ProductID string `firestore:"productId"`
	Name      string `firestore:"name"`
	UnitPrice int64  `firestore:"price"`
	SalePrice *int64 `firestore:"salePrice,omitempty"`
	Quantity  int    `firestore:"qty"`
}

type addressDocument struct {
	FirstName  string `firestore:"firstName"`
	LastName   string `firestore:"lastName"`
	Name       string `firestore:"name,omitempty"`
	Street     string `firestore:"street"`
	City       string `firestore:"city"`
	State      string `firestore:"state"`
	Country    string `firestore:"country"`
	PostalCode string `firestore:"postalCode"`
	Phone      string `firestore:"phone"`
}

type orderTotalsDocument struct {
	Subtotal   int64 `firestore:"subtotal"`
	Discount   int64 `firestore:"discount"`
	Shipping   int64 `firestore:"shipping"`
	Commission int64 `firestore:"commission"`
	Total      int64 `firestore:"total"`
}

type carrierDocument struct {
	OrderID      string `firestore:"orderId"`
	ShipmentID   string `firestore:"shipmentId"`
	TrackingCode string `firestore:"trackingCode"`
	CourierName  string `firestore:"courierName"`
}

func newOrderDocument(order domain.Order) orderDocument {
	items := make([]lineItemDocument, len(order.Items))
	for i, item := range order.Items {
		items[i] = lineItemDocument{
			ProductID: strings.TrimSpace(item.ProductID),
			Name:      item.Name,
			UnitPrice: item.UnitPrice,
			SalePrice: item.SalePrice,
			Quantity:  item.Quantity,
		}
	}
	doc := orderDocument{
		UserID: strings.TrimSpace(order.UserID),
		Email:  strings.TrimSpace(order.Email),
		Items:  items,
		Address: addressDocument{
			FirstName:  order.Address.FirstName,
			LastName:   order.Address.LastName,
			Name:       order.Address.Name,
			Street:     order.Address.Street,
			City:       order.Address.City,
			State:      order.Address.State,
			Country:    order.Address.Country,
			PostalCode: order.Address.PostalCode,
			Phone:      order.Address.Phone,
		},
		PaymentMethod: string(order.PaymentMethod),
		PaymentStatus: string(order.PaymentStatus),
		Status:        string(order.Status),
		Totals: orderTotalsDocument{
			Subtotal:   order.Totals.Subtotal,
			Discount:   order.Totals.Discount,
			Shipping:   order.Totals.Shipping,
			Commission: order.Totals.Commission,
			Total:      order.Totals.Total,
		},
		CancelReason: order.CancelReason,
		CreatedAt:    order.CreatedAt.UTC(),
		UpdatedAt:    order.UpdatedAt.UTC(),
		CancelledAt:  order.CancelledAt,
	}
	if order.Carrier != (domain.CarrierInfo{}) {
		carrier := newCarrierDocument(order.Carrier)
		doc.Carrier = &carrier
	}
	return doc
}

func newCarrierDocument(info domain.CarrierInfo) carrierDocument {
	return carrierDocument{
		OrderID:      strings.TrimSpace(info.OrderID),
		ShipmentID:   strings.TrimSpace(info.ShipmentID),
		TrackingCode: strings.TrimSpace(info.TrackingCode),
		CourierName:  strings.TrimSpace(info.CourierName),
	}
}

func (d orderDocument) toDomain(id, userID string) domain.Order {
	items := make([]domain.LineItem, len(d.Items))
	for i, item := range d.Items {
		items[i] = domain.LineItem{
			ProductID: strings.TrimSpace(item.ProductID),
			Name:      item.Name,
			UnitPrice: item.UnitPrice,
			SalePrice: item.SalePrice,
			Quantity:  item.Quantity,
		}
	}
	owner := strings.TrimSpace(d.UserID)
	if owner == "" {
		owner = userID
	}
	order := domain.Order{
		ID:     id,
		UserID: owner,
		Email:  strings.TrimSpace(d.Email),
		Items:  items,
		Address: domain.Address{
			FirstName:  d.Address.FirstName,
			LastName:   d.Address.LastName,
			Name:       d.Address.Name,
			Street:     d.Address.Street,
			City:       d.Address.City,
			State:      d.Address.State,
			Country:    d.Address.Country,
			PostalCode: d.Address.PostalCode,
			Phone:      d.Address.Phone,
		},
		PaymentMethod: domain.PaymentMethod(d.PaymentMethod),
		PaymentStatus: domain.PaymentStatus(d.PaymentStatus),
		Status:        domain.OrderStatus(d.Status),
		Totals: domain.OrderTotals{
			Subtotal:   d.Totals.Subtotal,
			Discount:   d.Totals.Discount,
			Shipping:   d.Totals.Shipping,
			Commission: d.Totals.Commission,
			Total:      d.Totals.Total,
		},
		CancelReason: d.CancelReason,
		CreatedAt:    d.CreatedAt,
		UpdatedAt:    d.UpdatedAt,
		CancelledAt:  d.CancelledAt,
	}
	if d.Carrier != nil {
		order.Carrier = domain.CarrierInfo{
			OrderID:      strings.TrimSpace(d.Carrier.OrderID),
			ShipmentID:   strings.TrimSpace(d.Carrier.ShipmentID),
			TrackingCode: strings.TrimSpace(d.Carrier.TrackingCode),
			CourierName:  strings.TrimSpace(d.Carrier.CourierName),
		}
	}
	return order
}

func decodeOrder(snap *firestore.DocumentSnapshot) (orderDocument, error) {
	var doc orderDocument
	if err := snap.DataTo(&doc); err != nil {
		return orderDocument{}, fmt.Errorf("decode order %s: %w", snap.Ref.ID, err)
	}
	return doc, nil
}

type orderPageToken struct {
	CreatedAt time.Time
}

func encodeOrderPageToken(token orderPageToken) (string, error) {
	buf := &bytes.Buffer{}
	enc := json.NewEncoder(buf)
	if err := enc.Encode(token); err != nil {
		return "", fmt.Errorf("encode order page token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(bytes.TrimSpace(buf.Bytes())), nil
}

func decodeOrderPageToken(encoded string) (*orderPageToken, error) {
	data, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("decode order page token: %w", err)
	}
	var token orderPageToken
	if err := json.Unmarshal(data, &token); err != nil {
		return nil, fmt.Errorf("decode order page token json: %w", err)
	}
	return &token, nil
}
