package notifications

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	domain "github.com/zenkart/admin-api/internal/domain"
)

// Email type discriminators understood by the email endpoint.
const (
	emailTypeOrderConfirmation = "customer-order-confirmation"
	emailTypeOrderCancellation = "order-cancellation"
	emailTypeShippingUpdate    = "shipping-confirmation"
)

const defaultSendTimeout = 20 * time.Second

// DispatcherDeps bundles configuration and collaborators for the dispatcher.
type DispatcherDeps struct {
	Endpoint      string
	SenderAddress string
	HTTPClient    *http.Client
	IDGenerator   func() string
	Logger        func(ctx context.Context, event string, fields map[string]any)
}

// Dispatcher sends transactional order emails through the email endpoint.
// Sends are best-effort: any network or endpoint failure is logged and
// reported as false, never returned as an error.
type Dispatcher struct {
	endpoint   string
	sender     string
	httpClient *http.Client
	newID      func() string
	logger     func(context.Context, string, map[string]any)
}

// NewDispatcher wires dependencies into a dispatcher.
func NewDispatcher(deps DispatcherDeps) (*Dispatcher, error) {
	endpoint := strings.TrimSpace(deps.Endpoint)
	if endpoint == "" {
		return nil, errors.New("notifications: email endpoint is required")
	}

	httpClient := deps.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultSendTimeout}
	}

	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = uuid.NewString
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &Dispatcher{
		endpoint:   endpoint,
		sender:     strings.TrimSpace(deps.SenderAddress),
		httpClient: httpClient,
		newID:      idGen,
		logger:     logger,
	}, nil
}

type emailEnvelope struct {
	Type string    `json:"type"`
	Data emailData `json:"data"`
}

type emailData struct {
	MessageID     string          `json:"message_id"`
	Sender        string          `json:"sender,omitempty"`
	CustomerName  string          `json:"customer_name"`
	CustomerEmail string          `json:"customer_email"`
	OrderID       string          `json:"order_id"`
	OrderDate     string          `json:"order_date"`
	Items         []emailLineItem `json:"items"`
	Address       emailAddress    `json:"address"`
	Subtotal      int64           `json:"subtotal"`
	Discount      int64           `json:"discount"`
	Shipping      int64           `json:"shipping"`
	Total         int64           `json:"total"`
	PaymentMethod string          `json:"payment_method"`

	CancellationReason string `json:"cancellation_reason,omitempty"`
	TrackingCode       string `json:"tracking_code,omitempty"`
	CourierName        string `json:"courier_name,omitempty"`
	InvoiceBase64      string `json:"invoice_base64,omitempty"`
}

type emailLineItem struct {
	Name      string `json:"name"`
	Quantity  int    `json:"quantity"`
	UnitPrice int64  `json:"unit_price"`
	LineTotal int64  `json:"line_total"`
}

type emailAddress struct {
	Street     string `json:"street"`
	City       string `json:"city"`
	State      string `json:"state"`
	Country    string `json:"country"`
	PostalCode string `json:"postal_code"`
}

// SendOrderConfirmation emails the customer that their order was confirmed.
// A rendered invoice may be attached; pass nil to send without one.
func (d *Dispatcher) SendOrderConfirmation(ctx context.Context, order domain.Order, invoice []byte) bool {
	data := d.orderData(order)
	if len(invoice) > 0 {
		data.InvoiceBase64 = base64.StdEncoding.EncodeToString(invoice)
	}
	return d.send(ctx, emailTypeOrderConfirmation, data)
}

// SendOrderCancellation emails the customer that their order was cancelled.
func (d *Dispatcher) SendOrderCancellation(ctx context.Context, order domain.Order, reason string) bool {
	data := d.orderData(order)
	data.CancellationReason = strings.TrimSpace(reason)
	return d.send(ctx, emailTypeOrderCancellation, data)
}

// SendShippingUpdate emails the customer their shipment's tracking details.
func (d *Dispatcher) SendShippingUpdate(ctx context.Context, order domain.Order) bool {
	data := d.orderData(order)
	data.TrackingCode = order.Carrier.TrackingCode
	data.CourierName = order.Carrier.CourierName
	return d.send(ctx, emailTypeShippingUpdate, data)
}

func (d *Dispatcher) orderData(order domain.Order) emailData {
	items := make([]emailLineItem, 0, len(order.Items))
	for _, item := range order.Items {
		selling := item.SellingPrice()
		items = append(items, emailLineItem{
			Name:      item.Name,
			Quantity:  item.Quantity,
			UnitPrice: selling,
			LineTotal: selling * int64(item.Quantity),
		})
	}

	name := strings.TrimSpace(order.Address.FirstName + " " + order.Address.LastName)
	if name == "" {
		name = strings.TrimSpace(order.Address.Name)
	}

	return emailData{
		MessageID:     d.newID(),
		Sender:        d.sender,
		CustomerName:  name,
		CustomerEmail: order.Email,
		OrderID:       order.ID,
		OrderDate:     order.CreatedAt.UTC().Format("2006-01-02 15:04:05"),
		Items:         items,
		Address: emailAddress{
			Street:     order.Address.Street,
			City:       order.Address.City,
			State:      order.Address.State,
			Country:    order.Address.Country,
			PostalCode: order.Address.PostalCode,
		},
		Subtotal:      order.Totals.Subtotal,
		Discount:      order.Totals.Discount,
		Shipping:      order.Totals.Shipping,
		Total:         order.Totals.Total,
		PaymentMethod: string(order.PaymentMethod),
	}
}

func (d *Dispatcher) send(ctx context.Context, emailType string, data emailData) bool {
	payload, err := json.Marshal(emailEnvelope{Type: emailType, Data: data})
	if err != nil {
		d.logFailure(ctx, emailType, data.OrderID, fmt.Errorf("encode payload: %w", err))
		return false
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodPost, d.endpoint, bytes.NewReader(payload))
	if err != nil {
		d.logFailure(ctx, emailType, data.OrderID, fmt.Errorf("build request: %w", err))
		return false
	}
	request.Header.Set("Content-Type", "application/json")

	response, err := d.httpClient.Do(request)
	if err != nil {
		d.logFailure(ctx, emailType, data.OrderID, err)
		return false
	}
	defer func() {
		_ = response.Body.Close()
	}()

	body, err := io.ReadAll(response.Body)
	if err != nil {
		d.logFailure(ctx, emailType, data.OrderID, fmt.Errorf("read response: %w", err))
		return false
	}

	if response.StatusCode < 200 || response.StatusCode >= 300 {
		d.logFailure(ctx, emailType, data.OrderID, fmt.Errorf("endpoint returned status %d: %s", response.StatusCode, strings.TrimSpace(string(body))))
		return false
	}

	var result struct {
		Success bool   `json:"success"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		d.logFailure(ctx, emailType, data.OrderID, fmt.Errorf("decode response: %w", err))
		return false
	}
	if !result.Success {
		d.logFailure(ctx, emailType, data.OrderID, fmt.Errorf("endpoint reported failure: %s", result.Error))
		return false
	}

	return true
}

func (d *Dispatcher) logFailure(ctx context.Context, emailType, orderID string, err error) {
	d.logger(ctx, "notifications.send.failed", map[string]any{
		"type":  emailType,
		"order": orderID,
		"error": err.Error(),
	})
}
