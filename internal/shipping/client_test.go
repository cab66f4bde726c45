package shipping

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

type carrierFixture struct {
	mu         sync.Mutex
	loginCalls int
	lastPath   string
	lastQuery  map[string]string
	lastBody   map[string]any

	createResponse CreateOrderResponse
	failStatus     int
	failBody       string
}

func newCarrierServer(t *testing.T, fx *carrierFixture) *httptest.Server {
	t.Helper()

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fx.mu.Lock()
		defer fx.mu.Unlock()

		fx.lastPath = r.URL.Path
		fx.lastQuery = map[string]string{}
		for key := range r.URL.Query() {
			fx.lastQuery[key] = r.URL.Query().Get(key)
		}

		if r.URL.Path == "/auth/login" {
			fx.loginCalls++
			var creds map[string]string
			if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
				t.Errorf("decode login body: %v", err)
			}
			if creds["email"] != "ops@zenkart.in" || creds["password"] != "hunter2" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			_ = json.NewEncoder(w).Encode(map[string]string{"token": "tok-1"})
			return
		}

		if r.Header.Get("Authorization") != "Bearer tok-1" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if fx.failStatus != 0 {
			w.WriteHeader(fx.failStatus)
			_, _ = w.Write([]byte(fx.failBody))
			return
		}

		switch {
		case r.URL.Path == "/orders/create/adhoc":
			fx.lastBody = map[string]any{}
			_ = json.NewDecoder(r.Body).Decode(&fx.lastBody)
			_ = json.NewEncoder(w).Encode(fx.createResponse)
		case r.URL.Path == "/courier/track/shipment/ship-9":
			_ = json.NewEncoder(w).Encode(TrackingResponse{AWBCode: "AWB123", CurrentStatus: "In Transit"})
		case r.URL.Path == "/orders/cancel/shipment/awbs":
			fx.lastBody = map[string]any{}
			_ = json.NewDecoder(r.Body).Decode(&fx.lastBody)
			_ = json.NewEncoder(w).Encode(CancelShipmentResponse{Message: "cancelled"})
		case r.URL.Path == "/courier/serviceability/":
			_ = json.NewEncoder(w).Encode(CourierServicesResponse{
				AvailableCouriers: []CourierService{{CourierID: 7, CourierName: "BlueDart", Rate: 120}},
				RecommendedID:     7,
			})
		case r.URL.Path == "/orders/show/car-55":
			_ = json.NewEncoder(w).Encode(OrderDetailsResponse{OrderID: "car-55", Status: "NEW"})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
}

func newTestClient(t *testing.T, serverURL string) *Client {
	t.Helper()

	client, err := NewClient(ClientDeps{
		BaseURL:  serverURL,
		Email:    "ops@zenkart.in",
		Password: "hunter2",
		Tokens:   NewTokenCache(DefaultTokenTTL, nil),
	})
	if err != nil {
		t.Fatalf("NewClient returned error: %v", err)
	}
	return client
}

func TestClientLoginCachesToken(t *testing.T) {
	fx := &carrierFixture{createResponse: CreateOrderResponse{OrderID: "car-1", ShipmentID: "ship-1", Status: "NEW"}}
	server := newCarrierServer(t, fx)
	defer server.Close()

	client := newTestClient(t, server.URL)

	request := Request{OrderID: "order-1", OrderItems: []RequestItem{{Name: "Bottle", SKU: "prod-1", Units: 1, SellingPrice: 800}}}
	if _, err := client.CreateOrder(context.Background(), request); err != nil {
		t.Fatalf("first CreateOrder returned error: %v", err)
	}
	if _, err := client.CreateOrder(context.Background(), request); err != nil {
		t.Fatalf("second CreateOrder returned error: %v", err)
	}

	if fx.loginCalls != 1 {
		t.Fatalf("expected a single login, got %d", fx.loginCalls)
	}
}

func TestClientCreateOrderReturnsCarrierAssignment(t *testing.T) {
	fx := &carrierFixture{createResponse: CreateOrderResponse{
		OrderID:     "car-1",
		ShipmentID:  "ship-1",
		Status:      "NEW",
		AWBCode:     "AWB777",
		CourierName: "Delhivery",
	}}
	server := newCarrierServer(t, fx)
	defer server.Close()

	client := newTestClient(t, server.URL)

	response, err := client.CreateOrder(context.Background(), Request{
		OrderID:    "order-1",
		OrderItems: []RequestItem{{Name: "Bottle", SKU: "prod-1", Units: 2, SellingPrice: 800}},
	})
	if err != nil {
		t.Fatalf("CreateOrder returned error: %v", err)
	}
	if response.AWBCode != "AWB777" || response.CourierName != "Delhivery" {
		t.Fatalf("unexpected response %+v", response)
	}
	if fx.lastBody["order_id"] != "order-1" {
		t.Fatalf("expected order id in payload, got %v", fx.lastBody)
	}
}

func TestClientCreateOrderSurfacesAPIError(t *testing.T) {
	fx := &carrierFixture{failStatus: http.StatusUnprocessableEntity, failBody: `{"message":"invalid pincode"}`}
	server := newCarrierServer(t, fx)
	defer server.Close()

	client := newTestClient(t, server.URL)

	_, err := client.CreateOrder(context.Background(), Request{
		OrderID:    "order-1",
		OrderItems: []RequestItem{{Name: "Bottle", SKU: "prod-1", Units: 1, SellingPrice: 800}},
	})

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.Status != http.StatusUnprocessableEntity {
		t.Fatalf("unexpected status %d", apiErr.Status)
	}
	if apiErr.Body != `{"message":"invalid pincode"}` {
		t.Fatalf("unexpected body %q", apiErr.Body)
	}
}

func TestClientGetTracking(t *testing.T) {
	fx := &carrierFixture{}
	server := newCarrierServer(t, fx)
	defer server.Close()

	client := newTestClient(t, server.URL)

	tracking, err := client.GetTracking(context.Background(), "ship-9")
	if err != nil {
		t.Fatalf("GetTracking returned error: %v", err)
	}
	if tracking.AWBCode != "AWB123" || tracking.CurrentStatus != "In Transit" {
		t.Fatalf("unexpected tracking %+v", tracking)
	}

	if _, err := client.GetTracking(context.Background(), "  "); !errors.Is(err, ErrClientInvalidInput) {
		t.Fatalf("expected ErrClientInvalidInput, got %v", err)
	}
}

func TestClientCancelShipment(t *testing.T) {
	fx := &carrierFixture{}
	server := newCarrierServer(t, fx)
	defer server.Close()

	client := newTestClient(t, server.URL)

	response, err := client.CancelShipment(context.Background(), []string{" AWB123 ", ""})
	if err != nil {
		t.Fatalf("CancelShipment returned error: %v", err)
	}
	if response.Message != "cancelled" {
		t.Fatalf("unexpected response %+v", response)
	}

	awbs, ok := fx.lastBody["awbs"].([]any)
	if !ok || len(awbs) != 1 || awbs[0] != "AWB123" {
		t.Fatalf("unexpected payload %v", fx.lastBody)
	}

	if _, err := client.CancelShipment(context.Background(), nil); !errors.Is(err, ErrClientInvalidInput) {
		t.Fatalf("expected ErrClientInvalidInput, got %v", err)
	}
}

func TestClientGetCourierServicesNormalizesQuery(t *testing.T) {
	fx := &carrierFixture{}
	server := newCarrierServer(t, fx)
	defer server.Close()

	client := newTestClient(t, server.URL)

	response, err := client.GetCourierServices(context.Background(), CourierServiceabilityQuery{
		PickupPincode:   "682 001",
		DeliveryPincode: "560-034",
		WeightKg:        0,
		COD:             true,
	})
	if err != nil {
		t.Fatalf("GetCourierServices returned error: %v", err)
	}
	if len(response.AvailableCouriers) != 1 || response.RecommendedID != 7 {
		t.Fatalf("unexpected response %+v", response)
	}

	if fx.lastQuery["pickup_postcode"] != "682001" || fx.lastQuery["delivery_postcode"] != "560034" {
		t.Fatalf("unexpected pincodes %v", fx.lastQuery)
	}
	if fx.lastQuery["weight"] != "0.5" {
		t.Fatalf("expected floored weight 0.5, got %q", fx.lastQuery["weight"])
	}
	if fx.lastQuery["cod"] != "1" {
		t.Fatalf("expected cod flag 1, got %q", fx.lastQuery["cod"])
	}

	if _, err := client.GetCourierServices(context.Background(), CourierServiceabilityQuery{PickupPincode: "12"}); !errors.Is(err, ErrClientInvalidInput) {
		t.Fatalf("expected ErrClientInvalidInput, got %v", err)
	}
}

func TestClientGetOrderDetails(t *testing.T) {
	fx := &carrierFixture{}
	server := newCarrierServer(t, fx)
	defer server.Close()

	client := newTestClient(t, server.URL)

	details, err := client.GetOrderDetails(context.Background(), "car-55")
	if err != nil {
		t.Fatalf("GetOrderDetails returned error: %v", err)
	}
	if details.OrderID != "car-55" || details.Status != "NEW" {
		t.Fatalf("unexpected details %+v", details)
	}
}

func TestTokenCacheSoftExpiry(t *testing.T) {
	now := time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC)
	cache := NewTokenCache(DefaultTokenTTL, func() time.Time { return now })

	if token := cache.Token(); token != "" {
		t.Fatalf("expected empty cache, got %q", token)
	}

	cache.Store("tok-1")
	if token := cache.Token(); token != "tok-1" {
		t.Fatalf("expected cached token, got %q", token)
	}

	now = now.Add(DefaultTokenTTL - time.Minute)
	if token := cache.Token(); token != "tok-1" {
		t.Fatalf("expected token valid before expiry, got %q", token)
	}

	now = now.Add(2 * time.Minute)
	if token := cache.Token(); token != "" {
		t.Fatalf("expected token expired, got %q", token)
	}
}

func TestTokenCacheInvalidate(t *testing.T) {
	cache := NewTokenCache(DefaultTokenTTL, nil)
	cache.Store("tok-1")
	cache.Invalidate()

	if token := cache.Token(); token != "" {
		t.Fatalf("expected empty cache after invalidate, got %q", token)
	}
}
