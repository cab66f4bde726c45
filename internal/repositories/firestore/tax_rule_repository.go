package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/zenkart/admin-api/internal/domain"
	pfirestore "github.com/zenkart/admin-api/internal/platform/firestore"
	"github.com/zenkart/admin-api/internal/repositories"
)

const taxRulesCollection = "taxRules"

// TaxRuleRepository persists regional tax rules.
type TaxRuleRepository struct {
	provider *pfirestore.Provider
	base     *pfirestore.BaseRepository[domain.TaxRule]
}

// NewTaxRuleRepository constructs a Firestore-backed tax rule repository.
func NewTaxRuleRepository(provider *pfirestore.Provider) (*TaxRuleRepository, error) {
	if provider == nil {
		return nil, errors.New("tax rule repository: firestore provider is required")
	}

	encoder := func(ctx context.Context, value domain.TaxRule) (any, error) {
		return encodeTaxRuleDocument(value), nil
	}
	decoder := func(ctx context.Context, snap *firestore.DocumentSnapshot) (domain.TaxRule, error) {
		var doc taxRuleDocument
		if err := snap.DataTo(&doc); err != nil {
			return domain.TaxRule{}, err
		}
		return doc.toDomain(snap.Ref.ID), nil
	}

	base := pfirestore.NewBaseRepository[domain.TaxRule](provider, taxRulesCollection, encoder, decoder)
	return &TaxRuleRepository{provider: provider, base: base}, nil
}

// Insert stores a new tax rule document.
func (r *TaxRuleRepository) Insert(ctx context.Context, rule domain.TaxRule) error {
	if r == nil || r.base == nil {
		return errors.New("tax rule repository not initialised")
	}
	rule.ID = strings.TrimSpace(rule.ID)
	if rule.ID == "" {
		return errors.New("tax rule repository: id is required")
	}
	_, err := r.base.Set(ctx, rule.ID, rule)
	return err
}

// Update overwrites an existing tax rule document.
func (r *TaxRuleRepository) Update(ctx context.Context, rule domain.TaxRule) error {
	return r.Insert(ctx, rule)
}

// Delete removes the tax rule document.
func (r *TaxRuleRepository) Delete(ctx context.Context, ruleID string) error {
	if r == nil || r.provider == nil {
		return errors.New("tax rule repository not initialised")
	}
	ruleID = strings.TrimSpace(ruleID)
	if ruleID == "" {
		return errors.New("tax rule repository: id is required")
	}
	client, err := r.provider.Client(ctx)
	if err != nil {
		return pfirestore.WrapError("taxRule.delete", err)
	}
	if _, err := client.Collection(taxRulesCollection).Doc(ruleID).Delete(ctx); err != nil {
		return pfirestore.WrapError("taxRule.delete", err)
	}
	return nil
}

// FindByID fetches a tax rule by document id.
func (r *TaxRuleRepository) FindByID(ctx context.Context, ruleID string) (domain.TaxRule, error) {
	if r == nil || r.base == nil {
		return domain.TaxRule{}, errors.New("tax rule repository not initialised")
	}
	doc, err := r.base.Get(ctx, strings.TrimSpace(ruleID))
	if err != nil {
		return domain.TaxRule{}, err
	}
	return doc.Data, nil
}

// List returns tax rules ordered by creation time, newest first.
func (r *TaxRuleRepository) List(ctx context.Context, pager domain.Pagination) (domain.CursorPage[domain.TaxRule], error) {
	if r == nil || r.base == nil {
		return domain.CursorPage[domain.TaxRule]{}, errors.New("tax rule repository not initialised")
	}

	pageSize := pager.PageSize
	if pageSize <= 0 {
		pageSize = 50
	}

	var startAfter *time.Time
	if token := strings.TrimSpace(pager.PageToken); token != "" {
		decoded, err := decodeOrderPageToken(token)
		if err != nil {
			return domain.CursorPage[domain.TaxRule]{}, pfirestore.WrapError("taxRule.list", err)
		}
		startAfter = &decoded.CreatedAt
	}

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		q = q.OrderBy("createdAt", firestore.Desc)
		if startAfter != nil {
			q = q.StartAfter(*startAfter)
		}
		return q.Limit(pageSize + 1)
	})
	if err != nil {
		return domain.CursorPage[domain.TaxRule]{}, err
	}

	rules := make([]domain.TaxRule, 0, len(docs))
	for _, doc := range docs {
		rules = append(rules, doc.Data)
	}

	hasMore := len(rules) > pageSize
	if hasMore {
		rules = rules[:pageSize]
	}
	var nextToken string
	if hasMore && len(rules) > 0 {
		encoded, err := encodeOrderPageToken(orderPageToken{CreatedAt: rules[len(rules)-1].CreatedAt})
		if err != nil {
			return domain.CursorPage[domain.TaxRule]{}, pfirestore.WrapError("taxRule.list", err)
		}
		nextToken = encoded
	}

	return domain.CursorPage[domain.TaxRule]{Items: rules, NextPageToken: nextToken}, nil
}

type taxRuleDocument struct {
	Name      string    `firestore:"name"`
	Rate      float64   `firestore:"rate"`
	Region    string    `firestore:"region"`
	Active    bool      `firestore:"active"`
	CreatedAt time.Time `firestore:"createdAt"`
	UpdatedAt time.Time `firestore:"updatedAt"`
}

func encodeTaxRuleDocument(rule domain.TaxRule) taxRuleDocument {
	return taxRuleDocument{
		Name:      strings.TrimSpace(rule.Name),
		Rate:      rule.Rate,
		Region:    strings.TrimSpace(rule.Region),
		Active:    rule.Active,
		CreatedAt: rule.CreatedAt.UTC(),
		UpdatedAt: rule.UpdatedAt.UTC(),
	}
}

func (d taxRuleDocument) toDomain(id string) domain.TaxRule {
	return domain.TaxRule{
		ID:        id,
		Name:      d.Name,
		Rate:      d.Rate,
		Region:    d.Region,
		Active:    d.Active,
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
}

var _ repositories.TaxRuleRepository = (*TaxRuleRepository)(nil)
