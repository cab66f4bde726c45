package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	domain "github.com/zenkart/admin-api/internal/domain"
	"github.com/zenkart/admin-api/internal/services"
)

type stubCatalogService struct {
	createCouponFn func(ctx context.Context, cmd services.CouponCreateCommand) (services.Coupon, error)
	updateCouponFn func(ctx context.Context, couponID string, cmd services.CouponUpdateCommand) (services.Coupon, error)
	deleteCouponFn func(ctx context.Context, couponID string) error
	getCouponFn    func(ctx context.Context, couponID string) (services.Coupon, error)
	getByCodeFn    func(ctx context.Context, code string) (services.Coupon, error)
	listCouponsFn  func(ctx context.Context, pager services.Pagination) (domain.CursorPage[services.Coupon], error)
	createTaxFn    func(ctx context.Context, cmd services.TaxRuleCommand) (services.TaxRule, error)
	updateTaxFn    func(ctx context.Context, ruleID string, cmd services.TaxRuleCommand) (services.TaxRule, error)
	deleteTaxFn    func(ctx context.Context, ruleID string) error
	getTaxFn       func(ctx context.Context, ruleID string) (services.TaxRule, error)
	listTaxRulesFn func(ctx context.Context, pager services.Pagination) (domain.CursorPage[services.TaxRule], error)
}

func (s *stubCatalogService) CreateCoupon(ctx context.Context, cmd services.CouponCreateCommand) (services.Coupon, error) {
	if s.createCouponFn != nil {
		return s.createCouponFn(ctx, cmd)
	}
	return services.Coupon{}, services.ErrCatalogInvalidInput
}

func (s *stubCatalogService) UpdateCoupon(ctx context.Context, couponID string, cmd services.CouponUpdateCommand) (services.Coupon, error) {
	if s.updateCouponFn != nil {
		return s.updateCouponFn(ctx, couponID, cmd)
	}
	return services.Coupon{}, services.ErrCatalogNotFound
}

func (s *stubCatalogService) DeleteCoupon(ctx context.Context, couponID string) error {
	if s.deleteCouponFn != nil {
		return s.deleteCouponFn(ctx, couponID)
	}
	return services.ErrCatalogNotFound
}

func (s *stubCatalogService) GetCoupon(ctx context.Context, couponID string) (services.Coupon, error) {
	if s.getCouponFn != nil {
		return s.getCouponFn(ctx, couponID)
	}
	return services.Coupon{}, services.ErrCatalogNotFound
}

func (s *stubCatalogService) GetCouponByCode(ctx context.Context, code string) (services.Coupon, error) {
	if s.getByCodeFn != nil {
		return s.getByCodeFn(ctx, code)
	}
	return services.Coupon{}, services.ErrCatalogNotFound
}

func (s *stubCatalogService) ListCoupons(ctx context.Context, pager services.Pagination) (domain.CursorPage[services.Coupon], error) {
	if s.listCouponsFn != nil {
		return s.listCouponsFn(ctx, pager)
	}
	return domain.CursorPage[services.Coupon]{}, nil
}

func (s *stubCatalogService) CreateTaxRule(ctx context.Context, cmd services.TaxRuleCommand) (services.TaxRule, error) {
	if s.createTaxFn != nil {
		return s.createTaxFn(ctx, cmd)
	}
	return services.TaxRule{}, services.ErrCatalogInvalidInput
}

func (s *stubCatalogService) UpdateTaxRule(ctx context.Context, ruleID string, cmd services.TaxRuleCommand) (services.TaxRule, error) {
	if s.updateTaxFn != nil {
		return s.updateTaxFn(ctx, ruleID, cmd)
	}
	return services.TaxRule{}, services.ErrCatalogNotFound
}

func (s *stubCatalogService) DeleteTaxRule(ctx context.Context, ruleID string) error {
	if s.deleteTaxFn != nil {
		return s.deleteTaxFn(ctx, ruleID)
	}
	return services.ErrCatalogNotFound
}

func (s *stubCatalogService) GetTaxRule(ctx context.Context, ruleID string) (services.TaxRule, error) {
	if s.getTaxFn != nil {
		return s.getTaxFn(ctx, ruleID)
	}
	return services.TaxRule{}, services.ErrCatalogNotFound
}

func (s *stubCatalogService) ListTaxRules(ctx context.Context, pager services.Pagination) (domain.CursorPage[services.TaxRule], error) {
	if s.listTaxRulesFn != nil {
		return s.listTaxRulesFn(ctx, pager)
	}
	return domain.CursorPage[services.TaxRule]{}, nil
}

func catalogTestRouter(catalog services.CatalogService) http.Handler {
	coupons := NewCouponHandlers(nil, catalog)
	taxes := NewTaxRuleHandlers(nil, catalog)
	return NewRouter(WithCouponRoutes(coupons.Routes), WithTaxRoutes(taxes.Routes))
}

func sampleCoupon() services.Coupon {
	return services.Coupon{
		ID:         "cpn_a",
		Code:       "WELCOME10",
		Percentage: 10,
		MinAmount:  500,
		MaxUses:    100,
		Active:     true,
		CreatedAt:  time.Date(2026, time.March, 14, 9, 0, 0, 0, time.UTC),
	}
}

func TestCreateCouponReturns201(t *testing.T) {
	var captured services.CouponCreateCommand
	catalog := &stubCatalogService{
		createCouponFn: func(_ context.Context, cmd services.CouponCreateCommand) (services.Coupon, error) {
			captured = cmd
			return sampleCoupon(), nil
		},
	}
	router := catalogTestRouter(catalog)

	body := strings.NewReader(`{"code":"welcome10","percentage":10,"min_amount":500,"max_uses":100}`)
	req := httptest.NewRequest(http.MethodPost, "/v1/coupons", body)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d: %s", rec.Code, http.StatusCreated, rec.Body.String())
	}
	if captured.Code != "welcome10" || captured.Percentage != 10 {
		t.Fatalf("command = %+v", captured)
	}
	if !captured.Active {
		t.Fatal("coupons should default to active")
	}
	var payload couponResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if payload.Coupon.Code != "WELCOME10" {
		t.Fatalf("code = %q, want WELCOME10", payload.Coupon.Code)
	}
}

func TestCreateCouponValidationFailureMapsTo400(t *testing.T) {
	router := catalogTestRouter(&stubCatalogService{})

	req := httptest.NewRequest(http.MethodPost, "/v1/coupons", strings.NewReader(`{"code":""}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestListCouponsByCodeUsesLookup(t *testing.T) {
	catalog := &stubCatalogService{
		getByCodeFn: func(_ context.Context, code string) (services.Coupon, error) {
			if code != "WELCOME10" {
				t.Fatalf("code = %q, want WELCOME10", code)
			}
			return sampleCoupon(), nil
		},
	}
	router := catalogTestRouter(catalog)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/coupons?code=WELCOME10", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	var payload couponListResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(payload.Items) != 1 || payload.Items[0].ID != "cpn_a" {
		t.Fatalf("items = %+v", payload.Items)
	}
}

func TestUpdateCouponMergesPartialFields(t *testing.T) {
	var captured services.CouponUpdateCommand
	catalog := &stubCatalogService{
		updateCouponFn: func(_ context.Context, couponID string, cmd services.CouponUpdateCommand) (services.Coupon, error) {
			if couponID != "cpn_a" {
				t.Fatalf("couponID = %q, want cpn_a", couponID)
			}
			captured = cmd
			coupon := sampleCoupon()
			coupon.Percentage = 15
			return coupon, nil
		},
	}
	router := catalogTestRouter(catalog)

	req := httptest.NewRequest(http.MethodPatch, "/v1/coupons/cpn_a", strings.NewReader(`{"percentage":15}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d: %s", rec.Code, http.StatusOK, rec.Body.String())
	}
	if captured.Percentage == nil || *captured.Percentage != 15 {
		t.Fatalf("Percentage = %v, want 15", captured.Percentage)
	}
	if captured.MinAmount != nil || captured.Active != nil {
		t.Fatalf("unset fields must stay nil: %+v", captured)
	}
}

func TestDeleteCouponReturns204(t *testing.T) {
	catalog := &stubCatalogService{
		deleteCouponFn: func(_ context.Context, couponID string) error {
			if couponID != "cpn_a" {
				t.Fatalf("couponID = %q, want cpn_a", couponID)
			}
			return nil
		},
	}
	router := catalogTestRouter(catalog)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/v1/coupons/cpn_a", nil))

	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusNoContent)
	}
}

func TestDeleteCouponNotFoundMapsTo404(t *testing.T) {
	router := catalogTestRouter(&stubCatalogService{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/v1/coupons/missing", nil))

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusNotFound)
	}
}

func TestCreateTaxRuleReturns201(t *testing.T) {
	var captured services.TaxRuleCommand
	catalog := &stubCatalogService{
		createTaxFn: func(_ context.Context, cmd services.TaxRuleCommand) (services.TaxRule, error) {
			captured = cmd
			return services.TaxRule{ID: "tax_a", Name: cmd.Name, Rate: cmd.Rate, Region: cmd.Region, Active: cmd.Active}, nil
		},
	}
	router := catalogTestRouter(catalog)

	body := strings.NewReader(`{"name":"GST 18","rate":18,"region":"IN"}`)
	req := httptest.NewRequest(http.MethodPost, "/v1/taxes", body)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d: %s", rec.Code, http.StatusCreated, rec.Body.String())
	}
	if captured.Name != "GST 18" || captured.Rate != 18 || captured.Region != "IN" {
		t.Fatalf("command = %+v", captured)
	}
	if !captured.Active {
		t.Fatal("tax rules should default to active")
	}
}

func TestUpdateTaxRuleReplacesFields(t *testing.T) {
	catalog := &stubCatalogService{
		updateTaxFn: func(_ context.Context, ruleID string, cmd services.TaxRuleCommand) (services.TaxRule, error) {
			if ruleID != "tax_a" {
				t.Fatalf("ruleID = %q, want tax_a", ruleID)
			}
			return services.TaxRule{ID: ruleID, Name: cmd.Name, Rate: cmd.Rate, Region: cmd.Region, Active: cmd.Active}, nil
		},
	}
	router := catalogTestRouter(catalog)

	body := strings.NewReader(`{"name":"GST 12","rate":12,"region":"IN","active":false}`)
	req := httptest.NewRequest(http.MethodPut, "/v1/taxes/tax_a", body)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d: %s", rec.Code, http.StatusOK, rec.Body.String())
	}
	var payload taxRuleResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if payload.TaxRule.Rate != 12 || payload.TaxRule.Active {
		t.Fatalf("tax rule payload = %+v", payload.TaxRule)
	}
}

func TestListTaxRules(t *testing.T) {
	catalog := &stubCatalogService{
		listTaxRulesFn: func(context.Context, services.Pagination) (domain.CursorPage[services.TaxRule], error) {
			return domain.CursorPage[services.TaxRule]{
				Items: []services.TaxRule{{ID: "tax_a", Name: "GST 18", Rate: 18, Region: "IN", Active: true}},
			}, nil
		},
	}
	router := catalogTestRouter(catalog)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/taxes", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	var payload taxRuleListResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(payload.Items) != 1 || payload.Items[0].Name != "GST 18" {
		t.Fatalf("items = %+v", payload.Items)
	}
}

func TestCatalogEndpointsWithoutServiceReturn503(t *testing.T) {
	router := catalogTestRouter(nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/coupons", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusServiceUnavailable)
	}
}
