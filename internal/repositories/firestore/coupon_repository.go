package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/zenkart/admin-api/internal/domain"
	pfirestore "github.com/zenkart/admin-api/internal/platform/firestore"
	"github.com/zenkart/admin-api/internal/repositories"
)

const couponsCollection = "coupons"

// CouponRepository persists coupon definitions.
type CouponRepository struct {
	provider *pfirestore.Provider
	base     *pfirestore.BaseRepository[domain.Coupon]
}

// NewCouponRepository constructs a Firestore-backed coupon repository.
func NewCouponRepository(provider *pfirestore.Provider) (*CouponRepository, error) {
	if provider == nil {
		return nil, errors.New("coupon repository: firestore provider is required")
	}

	encoder := func(ctx context.Context, value domain.Coupon) (any, error) {
		return encodeCouponDocument(value), nil
	}
	decoder := func(ctx context.Context, snap *firestore.DocumentSnapshot) (domain.Coupon, error) {
		var doc couponDocument
		if err := snap.DataTo(&doc); err != nil {
			return domain.Coupon{}, err
		}
		return doc.toDomain(snap.Ref.ID), nil
	}

	base := pfirestore.NewBaseRepository[domain.Coupon](provider, couponsCollection, encoder, decoder)
	return &CouponRepository{provider: provider, base: base}, nil
}

// Insert stores a new coupon document.
func (r *CouponRepository) Insert(ctx context.Context, coupon domain.Coupon) error {
	if r == nil || r.base == nil {
		return errors.New("coupon repository not initialised")
	}
	coupon.ID = strings.TrimSpace(coupon.ID)
	if coupon.ID == "" {
		return errors.New("coupon repository: id is required")
	}
	_, err := r.base.Set(ctx, coupon.ID, coupon)
	return err
}

// Update overwrites an existing coupon document.
func (r *CouponRepository) Update(ctx context.Context, coupon domain.Coupon) error {
	return r.Insert(ctx, coupon)
}

// Delete removes the coupon document.
func (r *CouponRepository) Delete(ctx context.Context, couponID string) error {
	if r == nil || r.provider == nil {
		return errors.New("coupon repository not initialised")
	}
	couponID = strings.TrimSpace(couponID)
	if couponID == "" {
		return errors.New("coupon repository: id is required")
	}
	client, err := r.provider.Client(ctx)
	if err != nil {
		return pfirestore.WrapError("coupon.delete", err)
	}
	if _, err := client.Collection(couponsCollection).Doc(couponID).Delete(ctx); err != nil {
		return pfirestore.WrapError("coupon.delete", err)
	}
	return nil
}

// FindByID fetches a coupon by document id.
func (r *CouponRepository) FindByID(ctx context.Context, couponID string) (domain.Coupon, error) {
	if r == nil || r.base == nil {
		return domain.Coupon{}, errors.New("coupon repository not initialised")
	}
	doc, err := r.base.Get(ctx, strings.TrimSpace(couponID))
	if err != nil {
		return domain.Coupon{}, err
	}
	return doc.Data, nil
}

// FindByCode fetches the coupon matching the normalised code.
func (r *CouponRepository) FindByCode(ctx context.Context, code string) (domain.Coupon, error) {
	if r == nil || r.base == nil {
		return domain.Coupon{}, errors.New("coupon repository not initialised")
	}
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return domain.Coupon{}, pfirestore.WrapError("coupon.findByCode", status.Error(codes.NotFound, "code is required"))
	}

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("code", "==", code).Limit(1)
	})
	if err != nil {
		return domain.Coupon{}, err
	}
	if len(docs) == 0 {
		return domain.Coupon{}, pfirestore.WrapError("coupon.findByCode", status.Error(codes.NotFound, "coupon not found"))
	}
	return docs[0].Data, nil
}

// List returns coupons ordered by creation time, newest first.
func (r *CouponRepository) List(ctx context.Context, pager domain.Pagination) (domain.CursorPage[domain.Coupon], error) {
	if r == nil || r.base == nil {
		return domain.CursorPage[domain.Coupon]{}, errors.New("coupon repository not initialised")
	}

	pageSize := pager.PageSize
	if pageSize <= 0 {
		pageSize = 50
	}

	var startAfter *time.Time
	if token := strings.TrimSpace(pager.PageToken); token != "" {
		decoded, err := decodeOrderPageToken(token)
		if err != nil {
			return domain.CursorPage[domain.Coupon]{}, pfirestore.WrapError("coupon.list", err)
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
		return domain.CursorPage[domain.Coupon]{}, err
	}

	coupons := make([]domain.Coupon, 0, len(docs))
	for _, doc := range docs {
		coupons = append(coupons, doc.Data)
	}

	hasMore := len(coupons) > pageSize
	if hasMore {
		coupons = coupons[:pageSize]
	}
	var nextToken string
	if hasMore && len(coupons) > 0 {
		encoded, err := encodeOrderPageToken(orderPageToken{CreatedAt: coupons[len(coupons)-1].CreatedAt})
		if err != nil {
			return domain.CursorPage[domain.Coupon]{}, pfirestore.WrapError("coupon.list", err)
		}
		nextToken = encoded
	}

	return domain.CursorPage[domain.Coupon]{Items: coupons, NextPageToken: nextToken}, nil
}

type couponDocument struct {
	Code       string     `firestore:"code"`
	Percentage int        `firestore:"percentage"`
	MinAmount  int64      `firestore:"minAmount"`
	MaxUses    int        `firestore:"maxUses"`
	Uses       int        `firestore:"uses"`
	Active     bool       `firestore:"active"`
	ExpiresAt  *time.Time `firestore:"expiresAt,omitempty"`
	CreatedAt  time.Time  `firestore:"createdAt"`
	UpdatedAt  time.Time  `firestore:"updatedAt"`
}

func encodeCouponDocument(coupon domain.Coupon) couponDocument {
	return couponDocument{
		Code:       strings.ToUpper(strings.TrimSpace(coupon.Code)),
		Percentage: coupon.Percentage,
		MinAmount:  coupon.MinAmount,
		MaxUses:    coupon.MaxUses,
		Uses:       coupon.Uses,
		Active:     coupon.Active,
		ExpiresAt:  coupon.ExpiresAt,
		CreatedAt:  coupon.CreatedAt.UTC(),
		UpdatedAt:  coupon.UpdatedAt.UTC(),
	}
}

func (d couponDocument) toDomain(id string) domain.Coupon {
	return domain.Coupon{
		ID:         id,
		Code:       d.Code,
		Percentage: d.Percentage,
		MinAmount:  d.MinAmount,
		MaxUses:    d.MaxUses,
		Uses:       d.Uses,
		Active:     d.Active,
		ExpiresAt:  d.ExpiresAt,
		CreatedAt:  d.CreatedAt,
		UpdatedAt:  d.UpdatedAt,
	}
}

var _ repositories.CouponRepository = (*CouponRepository)(nil)
