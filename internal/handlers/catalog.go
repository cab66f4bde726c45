package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/zenkart/admin-api/internal/platform/auth"
	"github.com/zenkart/admin-api/internal/platform/httpx"
	"github.com/zenkart/admin-api/internal/services"
)

const maxCatalogBodySize = 16 * 1024

// CouponHandlers exposes the coupon CRUD endpoints.
type CouponHandlers struct {
	authn   *auth.Authenticator
	catalog services.CatalogService
}

// NewCouponHandlers constructs a new CouponHandlers instance.
func NewCouponHandlers(authn *auth.Authenticator, catalog services.CatalogService) *CouponHandlers {
	return &CouponHandlers{authn: authn, catalog: catalog}
}

// Routes registers the /coupons endpoints.
func (h *CouponHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth())
	}
	r.Get("/", h.listCoupons)
	r.Post("/", h.createCoupon)
	r.Get("/{couponID}", h.getCoupon)
	r.Patch("/{couponID}", h.updateCoupon)
	r.Delete("/{couponID}", h.deleteCoupon)
}

func (h *CouponHandlers) listCoupons(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		writeCatalogUnavailable(ctx, w)
		return
	}

	if code := strings.TrimSpace(r.URL.Query().Get("code")); code != "" {
		coupon, err := h.catalog.GetCouponByCode(ctx, code)
		if err != nil {
			writeCatalogError(ctx, w, err)
			return
		}
		writeJSONResponse(w, http.StatusOK, couponListResponse{Items: []couponPayload{buildCouponPayload(coupon)}})
		return
	}

	pager, err := parsePagination(r.URL.Query())
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	page, err := h.catalog.ListCoupons(ctx, pager)
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}

	items := make([]couponPayload, 0, len(page.Items))
	for _, coupon := range page.Items {
		items = append(items, buildCouponPayload(coupon))
	}
	writeJSONResponse(w, http.StatusOK, couponListResponse{
		Items:         items,
		NextPageToken: strings.TrimSpace(page.NextPageToken),
	})
}

type couponCreateRequest struct {
	Code       string     `json:"code"`
	Percentage int        `json:"percentage"`
	MinAmount  int64      `json:"min_amount"`
	MaxUses    int        `json:"max_uses"`
	Active     *bool      `json:"active"`
	ExpiresAt  *time.Time `json:"expires_at"`
}

func (h *CouponHandlers) createCoupon(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		writeCatalogUnavailable(ctx, w)
		return
	}

	var req couponCreateRequest
	if err := decodeJSONBody(r, maxCatalogBodySize, &req); err != nil {
		writeCatalogBodyError(ctx, w, err)
		return
	}

	// New coupons default to active unless the request says otherwise.
	active := true
	if req.Active != nil {
		active = *req.Active
	}

	coupon, err := h.catalog.CreateCoupon(ctx, services.CouponCreateCommand{
		Code:       req.Code,
		Percentage: req.Percentage,
		MinAmount:  req.MinAmount,
		MaxUses:    req.MaxUses,
		Active:     active,
		ExpiresAt:  req.ExpiresAt,
	})
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, couponResponse{Coupon: buildCouponPayload(coupon)})
}

func (h *CouponHandlers) getCoupon(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		writeCatalogUnavailable(ctx, w)
		return
	}

	couponID := strings.TrimSpace(chi.URLParam(r, "couponID"))
	if couponID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "coupon id is required", http.StatusBadRequest))
		return
	}

	coupon, err := h.catalog.GetCoupon(ctx, couponID)
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, couponResponse{Coupon: buildCouponPayload(coupon)})
}

type couponUpdateRequest struct {
	Percentage *int       `json:"percentage"`
	MinAmount  *int64     `json:"min_amount"`
	MaxUses    *int       `json:"max_uses"`
	Active     *bool      `json:"active"`
	ExpiresAt  *time.Time `json:"expires_at"`
}

func (h *CouponHandlers) updateCoupon(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		writeCatalogUnavailable(ctx, w)
		return
	}

	couponID := strings.TrimSpace(chi.URLParam(r, "couponID"))
	if couponID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "coupon id is required", http.StatusBadRequest))
		return
	}

	var req couponUpdateRequest
	if err := decodeJSONBody(r, maxCatalogBodySize, &req); err != nil {
		writeCatalogBodyError(ctx, w, err)
		return
	}

	coupon, err := h.catalog.UpdateCoupon(ctx, couponID, services.CouponUpdateCommand{
		Percentage: req.Percentage,
		MinAmount:  req.MinAmount,
		MaxUses:    req.MaxUses,
		Active:     req.Active,
		ExpiresAt:  req.ExpiresAt,
	})
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, couponResponse{Coupon: buildCouponPayload(coupon)})
}

func (h *CouponHandlers) deleteCoupon(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		writeCatalogUnavailable(ctx, w)
		return
	}

	couponID := strings.TrimSpace(chi.URLParam(r, "couponID"))
	if couponID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "coupon id is required", http.StatusBadRequest))
		return
	}

	if err := h.catalog.DeleteCoupon(ctx, couponID); err != nil {
		writeCatalogError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// TaxRuleHandlers exposes the tax rule CRUD endpoints.
type TaxRuleHandlers struct {
	authn   *auth.Authenticator
	catalog services.CatalogService
}

// NewTaxRuleHandlers constructs a new TaxRuleHandlers instance.
func NewTaxRuleHandlers(authn *auth.Authenticator, catalog services.CatalogService) *TaxRuleHandlers {
	return &TaxRuleHandlers{authn: authn, catalog: catalog}
}

// Routes registers the /taxes endpoints.
func (h *TaxRuleHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth())
	}
	r.Get("/", h.listTaxRules)
	r.Post("/", h.createTaxRule)
	r.Get("/{taxID}", h.getTaxRule)
	r.Put("/{taxID}", h.updateTaxRule)
	r.Delete("/{taxID}", h.deleteTaxRule)
}

func (h *TaxRuleHandlers) listTaxRules(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		writeCatalogUnavailable(ctx, w)
		return
	}

	pager, err := parsePagination(r.URL.Query())
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	page, err := h.catalog.ListTaxRules(ctx, pager)
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}

	items := make([]taxRulePayload, 0, len(page.Items))
	for _, rule := range page.Items {
		items = append(items, buildTaxRulePayload(rule))
	}
	writeJSONResponse(w, http.StatusOK, taxRuleListResponse{
		Items:         items,
		NextPageToken: strings.TrimSpace(page.NextPageToken),
	})
}

type taxRuleRequest struct {
	Name   string  `json:"name"`
	Rate   float64 `json:"rate"`
	Region string  `json:"region"`
	Active *bool   `json:"active"`
}

func (req taxRuleRequest) command() services.TaxRuleCommand {
	active := true
	if req.Active != nil {
		active = *req.Active
	}
	return services.TaxRuleCommand{
		Name:   req.Name,
		Rate:   req.Rate,
		Region: req.Region,
		Active: active,
	}
}

func (h *TaxRuleHandlers) createTaxRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		writeCatalogUnavailable(ctx, w)
		return
	}

	var req taxRuleRequest
	if err := decodeJSONBody(r, maxCatalogBodySize, &req); err != nil {
		writeCatalogBodyError(ctx, w, err)
		return
	}

	rule, err := h.catalog.CreateTaxRule(ctx, req.command())
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, taxRuleResponse{TaxRule: buildTaxRulePayload(rule)})
}

func (h *TaxRuleHandlers) getTaxRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		writeCatalogUnavailable(ctx, w)
		return
	}

	taxID := strings.TrimSpace(chi.URLParam(r, "taxID"))
	if taxID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "tax rule id is required", http.StatusBadRequest))
		return
	}

	rule, err := h.catalog.GetTaxRule(ctx, taxID)
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, taxRuleResponse{TaxRule: buildTaxRulePayload(rule)})
}

func (h *TaxRuleHandlers) updateTaxRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		writeCatalogUnavailable(ctx, w)
		return
	}

	taxID := strings.TrimSpace(chi.URLParam(r, "taxID"))
	if taxID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "tax rule id is required", http.StatusBadRequest))
		return
	}

	var req taxRuleRequest
	if err := decodeJSONBody(r, maxCatalogBodySize, &req); err != nil {
		writeCatalogBodyError(ctx, w, err)
		return
	}

	rule, err := h.catalog.UpdateTaxRule(ctx, taxID, req.command())
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, taxRuleResponse{TaxRule: buildTaxRulePayload(rule)})
}

func (h *TaxRuleHandlers) deleteTaxRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		writeCatalogUnavailable(ctx, w)
		return
	}

	taxID := strings.TrimSpace(chi.URLParam(r, "taxID"))
	if taxID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "tax rule id is required", http.StatusBadRequest))
		return
	}

	if err := h.catalog.DeleteTaxRule(ctx, taxID); err != nil {
		writeCatalogError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type couponListResponse struct {
	Items         []couponPayload `json:"items"`
	NextPageToken string          `json:"next_page_token,omitempty"`
}

type couponResponse struct {
	Coupon couponPayload `json:"coupon"`
}

type couponPayload struct {
	ID         string `json:"id"`
	Code       string `json:"code"`
	Percentage int    `json:"percentage"`
	MinAmount  int64  `json:"min_amount"`
	MaxUses    int    `json:"max_uses"`
	Uses       int    `json:"uses"`
	Active     bool   `json:"active"`
	ExpiresAt  string `json:"expires_at,omitempty"`
	CreatedAt  string `json:"created_at"`
	UpdatedAt  string `json:"updated_at,omitempty"`
}

type taxRuleListResponse struct {
	Items         []taxRulePayload `json:"items"`
	NextPageToken string           `json:"next_page_token,omitempty"`
}

type taxRuleResponse struct {
	TaxRule taxRulePayload `json:"tax_rule"`
}

type taxRulePayload struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	Rate      float64 `json:"rate"`
	Region    string  `json:"region"`
	Active    bool    `json:"active"`
	CreatedAt string  `json:"created_at"`
	UpdatedAt string  `json:"updated_at,omitempty"`
}

func buildCouponPayload(coupon services.Coupon) couponPayload {
	return couponPayload{
		ID:         coupon.ID,
		Code:       coupon.Code,
		Percentage: coupon.Percentage,
		MinAmount:  coupon.MinAmount,
		MaxUses:    coupon.MaxUses,
		Uses:       coupon.Uses,
		Active:     coupon.Active,
		ExpiresAt:  formatTimePointer(coupon.ExpiresAt),
		CreatedAt:  formatTime(coupon.CreatedAt),
		UpdatedAt:  formatTime(coupon.UpdatedAt),
	}
}

func buildTaxRulePayload(rule services.TaxRule) taxRulePayload {
	return taxRulePayload{
		ID:        rule.ID,
		Name:      rule.Name,
		Rate:      rule.Rate,
		Region:    rule.Region,
		Active:    rule.Active,
		CreatedAt: formatTime(rule.CreatedAt),
		UpdatedAt: formatTime(rule.UpdatedAt),
	}
}

func writeCatalogUnavailable(ctx context.Context, w http.ResponseWriter) {
	httpx.WriteError(ctx, w, httpx.NewError("catalog_service_unavailable", "catalog service unavailable", http.StatusServiceUnavailable))
}

func writeCatalogBodyError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, errBodyTooLarge):
		httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "request body exceeds allowed size", http.StatusRequestEntityTooLarge))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON body", http.StatusBadRequest))
	}
}

func writeCatalogError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrCatalogInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrCatalogNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("catalog_not_found", "resource not found", http.StatusNotFound))
	case errors.Is(err, services.ErrCatalogConflict):
		httpx.WriteError(ctx, w, httpx.NewError("catalog_conflict", err.Error(), http.StatusConflict))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("internal_error", "unexpected error", http.StatusInternalServerError))
	}
}
