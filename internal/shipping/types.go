package shipping

import "fmt"

// Payment type designations understood by the carrier.
const (
	PaymentTypePrepaid = "Prepaid"
	PaymentTypeCOD     = "COD"
)

// Request is the carrier-shaped projection of an order submitted to the
// adhoc order-creation endpoint. It is derived fresh per attempt and never
// persisted.
type Request struct {
	OrderID             string        `json:"order_id"`
	OrderDate           string        `json:"order_date"`
	PickupLocation      string        `json:"pickup_location"`
	BillingCustomerName string        `json:"billing_customer_name"`
	BillingLastName     string        `json:"billing_last_name"`
	BillingAddress      string        `json:"billing_address"`
	BillingCity         string        `json:"billing_city"`
	BillingPincode      string        `json:"billing_pincode"`
	BillingState        string        `json:"billing_state"`
	BillingCountry      string        `json:"billing_country"`
	BillingEmail        string        `json:"billing_email"`
	BillingPhone        string        `json:"billing_phone"`
	ShippingIsBilling   bool          `json:"shipping_is_billing"`
	OrderItems          []RequestItem `json:"order_items"`
	PaymentMethod       string        `json:"payment_method"`
	SubTotal            float64       `json:"sub_total"`
	Length              float64       `json:"length"`
	Breadth             float64       `json:"breadth"`
	Height              float64       `json:"height"`
	Weight              float64       `json:"weight"`
}

// RequestItem is a single carrier order line.
type RequestItem struct {
	Name         string  `json:"name"`
	SKU          string  `json:"sku"`
	Units        int     `json:"units"`
	SellingPrice float64 `json:"selling_price"`
	Discount     float64 `json:"discount"`
}

// Dimensions holds parsed package measurements in centimetres.
type Dimensions struct {
	Length  float64
	Breadth float64
	Height  float64
}

// Warning records a defensive substitution the builder applied while
// normalizing user-entered order data. Substitutions keep the legacy
// fallback behaviour; the warning channel makes them visible to callers.
type Warning struct {
	Field      string
	Original   string
	Substitute string
	Reason     string
}

func (w Warning) String() string {
	return fmt.Sprintf("%s: %s (%q -> %q)", w.Field, w.Reason, w.Original, w.Substitute)
}

// CreateOrderResponse is the carrier's reply to an adhoc order submission.
// AWBCode and CourierName are present only when the carrier auto-assigned a
// courier at creation time.
type CreateOrderResponse struct {
	OrderID     string `json:"order_id"`
	ShipmentID  string `json:"shipment_id"`
	Status      string `json:"status"`
	AWBCode     string `json:"awb_code,omitempty"`
	CourierName string `json:"courier_name,omitempty"`
}

// TrackingActivity is one scan event in a shipment's tracking history.
type TrackingActivity struct {
	Date     string `json:"date"`
	Status   string `json:"status"`
	Activity string `json:"activity"`
	Location string `json:"location"`
}

// TrackingResponse is the carrier's tracking payload for a shipment.
type TrackingResponse struct {
	AWBCode          string             `json:"awb_code"`
	CurrentStatus    string             `json:"current_status"`
	DeliveredDate    string             `json:"delivered_date,omitempty"`
	ExpectedDelivery string             `json:"etd,omitempty"`
	Activities       []TrackingActivity `json:"shipment_track_activities"`
}

// CourierService is one serviceable courier option for a route.
type CourierService struct {
	CourierID   int     `json:"courier_company_id"`
	CourierName string  `json:"courier_name"`
	Rate        float64 `json:"rate"`
	ETD         string  `json:"etd"`
	CODAllowed  bool    `json:"cod"`
}

// CourierServicesResponse lists courier options for a pickup/delivery pair.
type CourierServicesResponse struct {
	AvailableCouriers []CourierService `json:"available_courier_companies"`
	RecommendedID     int              `json:"recommended_courier_company_id"`
}

// OrderDetailsResponse is the carrier's full view of a previously created order.
type OrderDetailsResponse struct {
	OrderID     string `json:"order_id"`
	ShipmentID  string `json:"shipment_id"`
	Status      string `json:"status"`
	AWBCode     string `json:"awb_code,omitempty"`
	CourierName string `json:"courier_name,omitempty"`
}

// CancelShipmentResponse acknowledges a shipment cancellation request.
type CancelShipmentResponse struct {
	Message string `json:"message"`
}

// APIError is returned for any non-2xx carrier response.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("shipping: carrier returned status %d: %s", e.Status, e.Body)
}
