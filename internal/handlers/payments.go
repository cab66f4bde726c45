package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/zenkart/admin-api/internal/payments"
	"github.com/zenkart/admin-api/internal/platform/auth"
	"github.com/zenkart/admin-api/internal/platform/httpx"
)

// PaymentHandlers exposes read-only payment analytics backed by the
// payment provider.
type PaymentHandlers struct {
	authn    *auth.Authenticator
	provider payments.Provider
}

// NewPaymentHandlers constructs a new PaymentHandlers instance.
func NewPaymentHandlers(authn *auth.Authenticator, provider payments.Provider) *PaymentHandlers {
	return &PaymentHandlers{authn: authn, provider: provider}
}

// Routes registers the /payments endpoints.
func (h *PaymentHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth())
	}
	r.Get("/", h.listCharges)
	r.Get("/{chargeID}", h.getCharge)
}

func (h *PaymentHandlers) listCharges(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.provider == nil {
		writePaymentsUnavailable(ctx, w)
		return
	}

	query := r.URL.Query()

	listQuery := payments.ChargeListQuery{}
	if raw := strings.TrimSpace(query.Get("limit")); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "limit must be a non-negative integer", http.StatusBadRequest))
			return
		}
		listQuery.Limit = limit
	}
	if raw := strings.TrimSpace(query.Get("from")); raw != "" {
		from, err := parseTimeParam(raw)
		if err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "from must be a valid RFC3339 timestamp", http.StatusBadRequest))
			return
		}
		listQuery.From = &from
	}

	charges, err := h.provider.ListRecentCharges(ctx, listQuery)
	if err != nil {
		writePaymentsError(ctx, w, err)
		return
	}

	items := make([]chargePayload, 0, len(charges))
	for _, charge := range charges {
		items = append(items, buildChargePayload(charge))
	}
	writeJSONResponse(w, http.StatusOK, chargeListResponse{Items: items})
}

func (h *PaymentHandlers) getCharge(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.provider == nil {
		writePaymentsUnavailable(ctx, w)
		return
	}

	chargeID := strings.TrimSpace(chi.URLParam(r, "chargeID"))
	if chargeID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "charge id is required", http.StatusBadRequest))
		return
	}

	charge, err := h.provider.GetCharge(ctx, chargeID)
	if err != nil {
		writePaymentsError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, chargeResponse{Charge: buildChargePayload(charge)})
}

type chargeListResponse struct {
	Items []chargePayload `json:"items"`
}

type chargeResponse struct {
	Charge chargePayload `json:"charge"`
}

type cardPayload struct {
	Brand    string `json:"brand,omitempty"`
	Last4    string `json:"last4,omitempty"`
	ExpMonth int    `json:"exp_month,omitempty"`
	ExpYear  int    `json:"exp_year,omitempty"`
}

type chargePayload struct {
	ID             string            `json:"id"`
	Amount         int64             `json:"amount"`
	AmountRefunded int64             `json:"amount_refunded,omitempty"`
	Currency       string            `json:"currency"`
	Status         string            `json:"status"`
	Paid           bool              `json:"paid"`
	Refunded       bool              `json:"refunded"`
	Captured       bool              `json:"captured"`
	Description    string            `json:"description,omitempty"`
	FailureCode    string            `json:"failure_code,omitempty"`
	FailureMessage string            `json:"failure_message,omitempty"`
	ReceiptURL     string            `json:"receipt_url,omitempty"`
	Card           *cardPayload      `json:"card,omitempty"`
	Metadata       map[string]string `json:"metadata,omitempty"`
	CreatedAt      string            `json:"created_at"`
}

func buildChargePayload(charge payments.ChargeDetails) chargePayload {
	payload := chargePayload{
		ID:             charge.ID,
		Amount:         charge.Amount,
		AmountRefunded: charge.AmountRefunded,
		Currency:       charge.Currency,
		Status:         charge.Status,
		Paid:           charge.Paid,
		Refunded:       charge.Refunded,
		Captured:       charge.Captured,
		Description:    charge.Description,
		FailureCode:    charge.FailureCode,
		FailureMessage: charge.FailureMessage,
		ReceiptURL:     charge.ReceiptURL,
		Metadata:       charge.Metadata,
	}
	if !charge.CreatedAt.IsZero() {
		payload.CreatedAt = charge.CreatedAt.UTC().Format(time.RFC3339)
	}
	if charge.Card != nil {
		payload.Card = &cardPayload{
			Brand:    charge.Card.Brand,
			Last4:    charge.Card.Last4,
			ExpMonth: charge.Card.ExpMonth,
			ExpYear:  charge.Card.ExpYear,
		}
	}
	return payload
}

func writePaymentsUnavailable(ctx context.Context, w http.ResponseWriter) {
	httpx.WriteError(ctx, w, httpx.NewError("payments_unavailable", "payment provider unavailable", http.StatusServiceUnavailable))
}

func writePaymentsError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, payments.ErrInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, payments.ErrChargeNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("charge_not_found", "charge not found", http.StatusNotFound))
	case errors.Is(err, payments.ErrProviderUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("payments_unavailable", "payment provider unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("internal_error", "unexpected error", http.StatusInternalServerError))
	}
}
