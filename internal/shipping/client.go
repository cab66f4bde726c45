package shipping

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const defaultRequestTimeout = 30 * time.Second

// ErrClientInvalidInput signals a carrier call was attempted with unusable arguments.
var ErrClientInvalidInput = errors.New("shipping: invalid input")

// ClientDeps bundles configuration and collaborators for the carrier client.
type ClientDeps struct {
	BaseURL    string
	Email      string
	Password   string
	HTTPClient *http.Client
	Tokens     *TokenCache
}

// Client is a thin authenticated wrapper over the carrier's HTTP API. Every
// call is attempted exactly once; callers own retry and timeout policy via
// the request context.
type Client struct {
	baseURL    string
	email      string
	password   string
	httpClient *http.Client
	tokens     *TokenCache
}

// NewClient wires dependencies into a carrier client.
func NewClient(deps ClientDeps) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(deps.BaseURL), "/")
	if baseURL == "" {
		return nil, errors.New("shipping client: base url is required")
	}
	if strings.TrimSpace(deps.Email) == "" || deps.Password == "" {
		return nil, errors.New("shipping client: credentials are required")
	}

	httpClient := deps.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultRequestTimeout}
	}

	tokens := deps.Tokens
	if tokens == nil {
		tokens = NewTokenCache(DefaultTokenTTL, nil)
	}

	return &Client{
		baseURL:    baseURL,
		email:      deps.Email,
		password:   deps.Password,
		httpClient: httpClient,
		tokens:     tokens,
	}, nil
}

// Login authenticates with the carrier and caches the returned token.
func (c *Client) Login(ctx context.Context) (string, error) {
	payload := map[string]string{
		"email":    c.email,
		"password": c.password,
	}

	var response struct {
		Token string `json:"token"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/auth/login", nil, payload, &response); err != nil {
		return "", err
	}
	if strings.TrimSpace(response.Token) == "" {
		return "", errors.New("shipping: login response carried no token")
	}

	c.tokens.Store(response.Token)
	return response.Token, nil
}

// CreateOrder submits an adhoc order to the carrier. The response may carry
// an auto-assigned AWB code and courier name; interpreting partial success
// is the caller's responsibility.
func (c *Client) CreateOrder(ctx context.Context, request Request) (CreateOrderResponse, error) {
	if strings.TrimSpace(request.OrderID) == "" {
		return CreateOrderResponse{}, fmt.Errorf("%w: order id is required", ErrClientInvalidInput)
	}
	if len(request.OrderItems) == 0 {
		return CreateOrderResponse{}, fmt.Errorf("%w: order items are required", ErrClientInvalidInput)
	}

	token, err := c.authToken(ctx)
	if err != nil {
		return CreateOrderResponse{}, err
	}

	var response CreateOrderResponse
	if err := c.doJSONAuthed(ctx, http.MethodPost, "/orders/create/adhoc", token, request, &response); err != nil {
		return CreateOrderResponse{}, err
	}
	return response, nil
}

// GetTracking fetches the tracking history for a shipment.
func (c *Client) GetTracking(ctx context.Context, shipmentID string) (TrackingResponse, error) {
	shipmentID = strings.TrimSpace(shipmentID)
	if shipmentID == "" {
		return TrackingResponse{}, fmt.Errorf("%w: shipment id is required", ErrClientInvalidInput)
	}

	token, err := c.authToken(ctx)
	if err != nil {
		return TrackingResponse{}, err
	}

	var response TrackingResponse
	path := "/courier/track/shipment/" + url.PathEscape(shipmentID)
	if err := c.doJSONAuthed(ctx, http.MethodGet, path, token, nil, &response); err != nil {
		return TrackingResponse{}, err
	}
	return response, nil
}

// CancelShipment asks the carrier to cancel the shipments behind the given AWB codes.
func (c *Client) CancelShipment(ctx context.Context, awbCodes []string) (CancelShipmentResponse, error) {
	codes := make([]string, 0, len(awbCodes))
	for _, code := range awbCodes {
		if trimmed := strings.TrimSpace(code); trimmed != "" {
			codes = append(codes, trimmed)
		}
	}
	if len(codes) == 0 {
		return CancelShipmentResponse{}, fmt.Errorf("%w: at least one awb code is required", ErrClientInvalidInput)
	}

	token, err := c.authToken(ctx)
	if err != nil {
		return CancelShipmentResponse{}, err
	}

	payload := map[string][]string{"awbs": codes}
	var response CancelShipmentResponse
	if err := c.doJSONAuthed(ctx, http.MethodPost, "/orders/cancel/shipment/awbs", token, payload, &response); err != nil {
		return CancelShipmentResponse{}, err
	}
	return response, nil
}

// CourierServiceabilityQuery describes a route for courier-option lookup.
type CourierServiceabilityQuery struct {
	PickupPincode   string
	DeliveryPincode string
	WeightKg        float64
	COD             bool
}

// GetCourierServices lists courier options able to serve a pickup/delivery route.
func (c *Client) GetCourierServices(ctx context.Context, query CourierServiceabilityQuery) (CourierServicesResponse, error) {
	pickup, err := requirePincode("pickup pincode", query.PickupPincode)
	if err != nil {
		return CourierServicesResponse{}, err
	}
	delivery, err := requirePincode("delivery pincode", query.DeliveryPincode)
	if err != nil {
		return CourierServicesResponse{}, err
	}

	weight := query.WeightKg
	if weight <= 0 {
		weight = defaultUnitWeightKg
	}

	token, err := c.authToken(ctx)
	if err != nil {
		return CourierServicesResponse{}, err
	}

	values := url.Values{}
	values.Set("pickup_postcode", pickup)
	values.Set("delivery_postcode", delivery)
	values.Set("weight", strconv.FormatFloat(weight, 'f', -1, 64))
	values.Set("cod", boolFlag(query.COD))

	var response CourierServicesResponse
	path := "/courier/serviceability/?" + values.Encode()
	if err := c.doJSONAuthed(ctx, http.MethodGet, path, token, nil, &response); err != nil {
		return CourierServicesResponse{}, err
	}
	return response, nil
}

// GetOrderDetails fetches the carrier's view of a previously created order.
func (c *Client) GetOrderDetails(ctx context.Context, carrierOrderID string) (OrderDetailsResponse, error) {
	carrierOrderID = strings.TrimSpace(carrierOrderID)
	if carrierOrderID == "" {
		return OrderDetailsResponse{}, fmt.Errorf("%w: carrier order id is required", ErrClientInvalidInput)
	}

	token, err := c.authToken(ctx)
	if err != nil {
		return OrderDetailsResponse{}, err
	}

	var response OrderDetailsResponse
	path := "/orders/show/" + url.PathEscape(carrierOrderID)
	if err := c.doJSONAuthed(ctx, http.MethodGet, path, token, nil, &response); err != nil {
		return OrderDetailsResponse{}, err
	}
	return response, nil
}

// authToken returns the cached token or re-authenticates when it is absent
// or past its soft expiry.
func (c *Client) authToken(ctx context.Context) (string, error) {
	if token := c.tokens.Token(); token != "" {
		return token, nil
	}
	return c.Login(ctx)
}

func (c *Client) doJSONAuthed(ctx context.Context, method, path, token string, body any, out any) error {
	err := c.doJSON(ctx, method, path, map[string]string{"Authorization": "Bearer " + token}, body, out)

	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Status == http.StatusUnauthorized {
		// Token rejected before its soft expiry. Drop it so the next
		// call re-authenticates; this call is not retried.
		c.tokens.Invalidate()
	}
	return err
}

func (c *Client) doJSON(ctx context.Context, method, path string, headers map[string]string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("shipping: encode request body: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	request, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("shipping: build request: %w", err)
	}
	request.Header.Set("Content-Type", "application/json")
	for key, value := range headers {
		request.Header.Set(key, value)
	}

	response, err := c.httpClient.Do(request)
	if err != nil {
		return fmt.Errorf("shipping: carrier request failed: %w", err)
	}
	defer func() {
		_ = response.Body.Close()
	}()

	payload, err := io.ReadAll(response.Body)
	if err != nil {
		return fmt.Errorf("shipping: read carrier response: %w", err)
	}

	if response.StatusCode < 200 || response.StatusCode >= 300 {
		return &APIError{Status: response.StatusCode, Body: strings.TrimSpace(string(payload))}
	}

	if out == nil || len(payload) == 0 {
		return nil
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return fmt.Errorf("shipping: decode carrier response: %w", err)
	}
	return nil
}

func requirePincode(name, raw string) (string, error) {
	digits := nonDigits.ReplaceAllString(raw, "")
	if len(digits) != 6 {
		return "", fmt.Errorf("%w: %s must be six digits", ErrClientInvalidInput, name)
	}
	return digits, nil
}

func boolFlag(value bool) string {
	if value {
		return "1"
	}
	return "0"
}
