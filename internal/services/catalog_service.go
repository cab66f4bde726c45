package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/zenkart/admin-api/internal/domain"
	"github.com/zenkart/admin-api/internal/repositories"
)

const (
	couponIDPrefix  = "cpn_"
	taxRuleIDPrefix = "tax_"
)

var (
	// ErrCatalogInvalidInput signals the caller provided invalid data.
	ErrCatalogInvalidInput = errors.New("catalog: invalid input")
	// ErrCatalogNotFound indicates the coupon or tax rule could not be located.
	ErrCatalogNotFound = errors.New("catalog: not found")
	// ErrCatalogConflict indicates a duplicate code or concurrent modification.
	ErrCatalogConflict = errors.New("catalog: conflict")
)

// CatalogServiceDeps bundles collaborators required to construct the catalog service.
type CatalogServiceDeps struct {
	Coupons     repositories.CouponRepository
	TaxRules    repositories.TaxRuleRepository
	Clock       func() time.Time
	IDGenerator func() string
}

type catalogService struct {
	coupons  repositories.CouponRepository
	taxRules repositories.TaxRuleRepository
	clock    func() time.Time
	newID    func() string
}

// NewCatalogService wires dependencies into a concrete CatalogService implementation.
func NewCatalogService(deps CatalogServiceDeps) (CatalogService, error) {
	if deps.Coupons == nil {
		return nil, errors.New("catalog service: coupon repository is required")
	}
	if deps.TaxRules == nil {
		return nil, errors.New("catalog service: tax rule repository is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string {
			return ulid.Make().String()
		}
	}

	return &catalogService{
		coupons:  deps.Coupons,
		taxRules: deps.TaxRules,
		clock:    func() time.Time { return clock().UTC() },
		newID:    idGen,
	}, nil
}

func (s *catalogService) CreateCoupon(ctx context.Context, cmd CouponCreateCommand) (Coupon, error) {
	code := strings.ToUpper(strings.TrimSpace(cmd.Code))
	if code == "" {
		return Coupon{}, fmt.Errorf("%w: code is required", ErrCatalogInvalidInput)
	}
	if cmd.Percentage < 1 || cmd.Percentage > 100 {
		return Coupon{}, fmt.Errorf("%w: percentage must be between 1 and 100", ErrCatalogInvalidInput)
	}
	if cmd.MinAmount < 0 {
		return Coupon{}, fmt.Errorf("%w: minimum amount must not be negative", ErrCatalogInvalidInput)
	}

	if _, err := s.coupons.FindByCode(ctx, code); err == nil {
		return Coupon{}, fmt.Errorf("%w: code %s already exists", ErrCatalogConflict, code)
	} else if !isRepoNotFound(err) {
		return Coupon{}, s.mapRepositoryError(err)
	}

	now := s.clock()
	coupon := domain.Coupon{
		ID:         couponIDPrefix + s.newID(),
		Code:       code,
		Percentage: cmd.Percentage,
		MinAmount:  cmd.MinAmount,
		MaxUses:    cmd.MaxUses,
		Active:     cmd.Active,
		ExpiresAt:  cmd.ExpiresAt,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if err := s.coupons.Insert(ctx, coupon); err != nil {
		return Coupon{}, s.mapRepositoryError(err)
	}
	return coupon, nil
}

func (s *catalogService) UpdateCoupon(ctx context.Context, couponID string, cmd CouponUpdateCommand) (Coupon, error) {
	coupon, err := s.GetCoupon(ctx, couponID)
	if err != nil {
		return Coupon{}, err
	}

	if cmd.Percentage != nil {
		if *cmd.Percentage < 1 || *cmd.Percentage > 100 {
			return Coupon{}, fmt.Errorf("%w: percentage must be between 1 and 100", ErrCatalogInvalidInput)
		}
		coupon.Percentage = *cmd.Percentage
	}
	if cmd.MinAmount != nil {
		if *cmd.MinAmount < 0 {
			return Coupon{}, fmt.Errorf("%w: minimum amount must not be negative", ErrCatalogInvalidInput)
		}
		coupon.MinAmount = *cmd.MinAmount
	}
	if cmd.MaxUses != nil {
		coupon.MaxUses = *cmd.MaxUses
	}
	if cmd.Active != nil {
		coupon.Active = *cmd.Active
	}
	if cmd.ExpiresAt != nil {
		coupon.ExpiresAt = cmd.ExpiresAt
	}
	coupon.UpdatedAt = s.clock()

	if err := s.coupons.Update(ctx, coupon); err != nil {
		return Coupon{}, s.mapRepositoryError(err)
	}
	return coupon, nil
}

func (s *catalogService) DeleteCoupon(ctx context.Context, couponID string) error {
	couponID = strings.TrimSpace(couponID)
	if couponID == "" {
		return fmt.Errorf("%w: coupon id is required", ErrCatalogInvalidInput)
	}
	if err := s.coupons.Delete(ctx, couponID); err != nil {
		return s.mapRepositoryError(err)
	}
	return nil
}

func (s *catalogService) GetCoupon(ctx context.Context, couponID string) (Coupon, error) {
	couponID = strings.TrimSpace(couponID)
	if couponID == "" {
		return Coupon{}, fmt.Errorf("%w: coupon id is required", ErrCatalogInvalidInput)
	}
	coupon, err := s.coupons.FindByID(ctx, couponID)
	if err != nil {
		return Coupon{}, s.mapRepositoryError(err)
	}
	return coupon, nil
}

func (s *catalogService) GetCouponByCode(ctx context.Context, code string) (Coupon, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return Coupon{}, fmt.Errorf("%w: code is required", ErrCatalogInvalidInput)
	}
	coupon, err := s.coupons.FindByCode(ctx, code)
	if err != nil {
		return Coupon{}, s.mapRepositoryError(err)
	}
	return coupon, nil
}

func (s *catalogService) ListCoupons(ctx context.Context, pager Pagination) (domain.CursorPage[Coupon], error) {
	page, err := s.coupons.List(ctx, pager)
	if err != nil {
		return domain.CursorPage[Coupon]{}, s.mapRepositoryError(err)
	}
	return page, nil
}

func (s *catalogService) CreateTaxRule(ctx context.Context, cmd TaxRuleCommand) (TaxRule, error) {
	if err := validateTaxRule(cmd); err != nil {
		return TaxRule{}, err
	}

	now := s.clock()
	rule := domain.TaxRule{
		ID:        taxRuleIDPrefix + s.newID(),
		Name:      strings.TrimSpace(cmd.Name),
		Rate:      cmd.Rate,
		Region:    strings.TrimSpace(cmd.Region),
		Active:    cmd.Active,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.taxRules.Insert(ctx, rule); err != nil {
		return TaxRule{}, s.mapRepositoryError(err)
	}
	return rule, nil
}

func (s *catalogService) UpdateTaxRule(ctx context.Context, ruleID string, cmd TaxRuleCommand) (TaxRule, error) {
	rule, err := s.GetTaxRule(ctx, ruleID)
	if err != nil {
		return TaxRule{}, err
	}
	if err := validateTaxRule(cmd); err != nil {
		return TaxRule{}, err
	}

	rule.Name = strings.TrimSpace(cmd.Name)
	rule.Rate = cmd.Rate
	rule.Region = strings.TrimSpace(cmd.Region)
	rule.Active = cmd.Active
	rule.UpdatedAt = s.clock()

	if err := s.taxRules.Update(ctx, rule); err != nil {
		return TaxRule{}, s.mapRepositoryError(err)
	}
	return rule, nil
}

func (s *catalogService) DeleteTaxRule(ctx context.Context, ruleID string) error {
	ruleID = strings.TrimSpace(ruleID)
	if ruleID == "" {
		return fmt.Errorf("%w: tax rule id is required", ErrCatalogInvalidInput)
	}
	if err := s.taxRules.Delete(ctx, ruleID); err != nil {
		return s.mapRepositoryError(err)
	}
	return nil
}

func (s *catalogService) GetTaxRule(ctx context.Context, ruleID string) (TaxRule, error) {
	ruleID = strings.TrimSpace(ruleID)
	if ruleID == "" {
		return TaxRule{}, fmt.Errorf("%w: tax rule id is required", ErrCatalogInvalidInput)
	}
	rule, err := s.taxRules.FindByID(ctx, ruleID)
	if err != nil {
		return TaxRule{}, s.mapRepositoryError(err)
	}
	return rule, nil
}

func (s *catalogService) ListTaxRules(ctx context.Context, pager Pagination) (domain.CursorPage[TaxRule], error) {
	page, err := s.taxRules.List(ctx, pager)
	if err != nil {
		return domain.CursorPage[TaxRule]{}, s.mapRepositoryError(err)
	}
	return page, nil
}

func validateTaxRule(cmd TaxRuleCommand) error {
	if strings.TrimSpace(cmd.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrCatalogInvalidInput)
	}
	if cmd.Rate < 0 || cmd.Rate > 100 {
		return fmt.Errorf("%w: rate must be between 0 and 100", ErrCatalogInvalidInput)
	}
	if strings.TrimSpace(cmd.Region) == "" {
		return fmt.Errorf("%w: region is required", ErrCatalogInvalidInput)
	}
	return nil
}

func (s *catalogService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrCatalogNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrCatalogConflict, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("catalog: repository unavailable: %w", err)
		}
	}

	return err
}

func isRepoNotFound(err error) bool {
	var repoErr repositories.RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsNotFound()
}
