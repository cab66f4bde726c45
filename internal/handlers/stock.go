package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/zenkart/admin-api/internal/platform/auth"
	"github.com/zenkart/admin-api/internal/platform/httpx"
	"github.com/zenkart/admin-api/internal/services"
)

const maxStockAdjustBodySize = 4 * 1024

// StockHandlers exposes the stock ledger endpoints.
type StockHandlers struct {
	authn *auth.Authenticator
	stock services.StockService
}

// NewStockHandlers constructs a new StockHandlers instance.
func NewStockHandlers(authn *auth.Authenticator, stock services.StockService) *StockHandlers {
	return &StockHandlers{authn: authn, stock: stock}
}

// Routes registers the /stock endpoints.
func (h *StockHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth())
	}
	r.Get("/", h.listStock)
	r.Get("/{productID}", h.getStock)
	r.Post("/{productID}:adjust", h.adjustStock)
}

func (h *StockHandlers) listStock(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.stock == nil {
		httpx.WriteError(ctx, w, httpx.NewError("stock_service_unavailable", "stock service unavailable", http.StatusServiceUnavailable))
		return
	}

	query := r.URL.Query()

	var maxQuantity *int
	if raw := strings.TrimSpace(query.Get("max_quantity")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value < 0 {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "max_quantity must be a non-negative integer", http.StatusBadRequest))
			return
		}
		maxQuantity = &value
	}

	pager, err := parsePagination(query)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	page, err := h.stock.ListStock(ctx, services.StockListQuery{
		MaxQuantity: maxQuantity,
		Pagination:  pager,
	})
	if err != nil {
		writeStockError(ctx, w, err)
		return
	}

	items := make([]stockRecordPayload, 0, len(page.Items))
	for _, record := range page.Items {
		items = append(items, buildStockPayload(record))
	}
	writeJSONResponse(w, http.StatusOK, stockListResponse{
		Items:         items,
		NextPageToken: strings.TrimSpace(page.NextPageToken),
	})
}

func (h *StockHandlers) getStock(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.stock == nil {
		httpx.WriteError(ctx, w, httpx.NewError("stock_service_unavailable", "stock service unavailable", http.StatusServiceUnavailable))
		return
	}

	productID := strings.TrimSpace(chi.URLParam(r, "productID"))
	if productID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "product id is required", http.StatusBadRequest))
		return
	}

	record, err := h.stock.GetStock(ctx, productID)
	if err != nil {
		writeStockError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, stockResponse{Stock: buildStockPayload(record)})
}

type stockAdjustRequest struct {
	Delta int `json:"delta"`
}

func (h *StockHandlers) adjustStock(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.stock == nil {
		httpx.WriteError(ctx, w, httpx.NewError("stock_service_unavailable", "stock service unavailable", http.StatusServiceUnavailable))
		return
	}

	productID := strings.TrimSpace(chi.URLParam(r, "productID"))
	if productID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "product id is required", http.StatusBadRequest))
		return
	}

	var req stockAdjustRequest
	if err := decodeJSONBody(r, maxStockAdjustBodySize, &req); err != nil {
		switch {
		case errors.Is(err, errBodyTooLarge):
			httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "request body exceeds allowed size", http.StatusRequestEntityTooLarge))
		default:
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON body", http.StatusBadRequest))
		}
		return
	}

	record, err := h.stock.AdjustStock(ctx, services.StockAdjustment{
		ProductID: productID,
		Delta:     req.Delta,
	})
	if err != nil {
		writeStockError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, stockResponse{Stock: buildStockPayload(record)})
}

type stockListResponse struct {
	Items         []stockRecordPayload `json:"items"`
	NextPageToken string               `json:"next_page_token,omitempty"`
}

type stockResponse struct {
	Stock stockRecordPayload `json:"stock"`
}

type stockRecordPayload struct {
	ProductID       string  `json:"product_id"`
	Quantity        int     `json:"quantity"`
	Status          string  `json:"status"`
	Dimensions      string  `json:"dimensions,omitempty"`
	WeightGrams     float64 `json:"weight_grams,omitempty"`
	DeadWeightGrams float64 `json:"dead_weight_grams,omitempty"`
	UpdatedAt       string  `json:"updated_at,omitempty"`
}

func buildStockPayload(record services.StockRecord) stockRecordPayload {
	return stockRecordPayload{
		ProductID:       record.ProductID,
		Quantity:        record.Quantity,
		Status:          string(record.Status),
		Dimensions:      record.Dimensions,
		WeightGrams:     record.WeightGrams,
		DeadWeightGrams: record.DeadWeightGrams,
		UpdatedAt:       formatTime(record.UpdatedAt),
	}
}

func writeStockError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrStockInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrStockNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("stock_not_found", "stock record not found", http.StatusNotFound))
	case errors.Is(err, services.ErrStockInsufficient):
		httpx.WriteError(ctx, w, httpx.NewError("stock_insufficient", err.Error(), http.StatusConflict))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("internal_error", "unexpected error", http.StatusInternalServerError))
	}
}
