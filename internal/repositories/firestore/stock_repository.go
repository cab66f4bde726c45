package firestore

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/zenkart/admin-api/internal/domain"
	pfirestore "github.com/zenkart/admin-api/internal/platform/firestore"
	"github.com/zenkart/admin-api/internal/repositories"
)

const productsCollection = "products"

// StockRepository stores per-product stock counters on the product documents.
type StockRepository struct {
	provider *pfirestore.Provider
	products *pfirestore.BaseRepository[stockDocument]
}

// NewStockRepository constructs a Firestore-backed stock repository.
func NewStockRepository(provider *pfirestore.Provider) (*StockRepository, error) {
	if provider == nil {
		return nil, errors.New("stock repository requires firestore provider")
	}
	products := pfirestore.NewBaseRepository[stockDocument](provider, productsCollection, nil, nil)
	return &StockRepository{provider: provider, products: products}, nil
}

func (r *StockRepository) Get(ctx context.Context, productID string) (domain.StockRecord, error) {
	if r == nil || r.provider == nil {
		return domain.StockRecord{}, errors.New("stock repository not initialised")
	}
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return domain.StockRecord{}, repositories.NewStockError(repositories.StockErrorNotFound, "stock get: product id is required", nil)
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return domain.StockRecord{}, wrapStockError("stock.get", err)
	}
	snap, err := client.Collection(productsCollection).Doc(productID).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return domain.StockRecord{}, repositories.NewStockError(repositories.StockErrorNotFound, fmt.Sprintf("stock %s not found", productID), err)
		}
		return domain.StockRecord{}, wrapStockError("stock.get", err)
	}

	doc, err := decodeStock(snap)
	if err != nil {
		return domain.StockRecord{}, err
	}
	return doc.toDomain(productID), nil
}

// Reduce decrements the stock counter inside a transaction. A decrement that
// would drop the quantity below zero fails without writing.
func (r *StockRepository) Reduce(ctx context.Context, req repositories.StockMutationRequest) (domain.StockRecord, error) {
	return r.mutate(ctx, "stock.reduce", req, func(current int) (int, error) {
		if current < req.Quantity {
			return 0, repositories.NewStockError(repositories.StockErrorInsufficient, fmt.Sprintf("insufficient stock for %s", req.ProductID), nil)
		}
		return current - req.Quantity, nil
	})
}

// Restore increments the stock counter inside a transaction.
func (r *StockRepository) Restore(ctx context.Context, req repositories.StockMutationRequest) (domain.StockRecord, error) {
	return r.mutate(ctx, "stock.restore", req, func(current int) (int, error) {
		return current + req.Quantity, nil
	})
}

func (r *StockRepository) mutate(ctx context.Context, op string, req repositories.StockMutationRequest, apply func(current int) (int, error)) (domain.StockRecord, error) {
	if r == nil || r.provider == nil {
		return domain.StockRecord{}, errors.New("stock repository not initialised")
	}
	productID := strings.TrimSpace(req.ProductID)
	if productID == "" {
		return domain.StockRecord{}, repositories.NewStockError(repositories.StockErrorNotFound, "stock mutate: product id is required", nil)
	}
	if req.Quantity <= 0 {
		return domain.StockRecord{}, repositories.NewStockError(repositories.StockErrorInvalidQuantity, fmt.Sprintf("stock mutate: quantity for %s must be > 0", productID), nil)
	}

	now := req.Now.UTC()
	if now.IsZero() {
		now = time.Now().UTC()
	}

	var updated domain.StockRecord
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		ref, err := r.products.DocumentRef(ctx, productID)
		if err != nil {
			return err
		}
		snap, err := tx.Get(ref)
		if err != nil {
			if status.Code(err) == codes.NotFound {
				return repositories.NewStockError(repositories.StockErrorNotFound, fmt.Sprintf("stock %s not found", productID), err)
			}
			return err
		}
		doc, err := decodeStock(snap)
		if err != nil {
			return err
		}

		next, err := apply(doc.quantity())
		if err != nil {
			return err
		}

		doc.setQuantity(next)
		doc.UpdatedAt = now
		// Writes go through Update so unrelated product fields survive.
		if err := tx.Update(ref, doc.quantityUpdates()); err != nil {
			return err
		}
		updated = doc.toDomain(productID)
		return nil
	})
	if err != nil {
		return domain.StockRecord{}, wrapStockError(op, err)
	}
	return updated, nil
}

func (r *StockRepository) List(ctx context.Context, query repositories.StockListQuery) (domain.CursorPage[domain.StockRecord], error) {
	if r == nil || r.provider == nil {
		return domain.CursorPage[domain.StockRecord]{}, errors.New("stock repository not initialised")
	}

	pageSize := query.PageSize
	if pageSize <= 0 {
		pageSize = 50
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return domain.CursorPage[domain.StockRecord]{}, wrapStockError("stock.list", err)
	}

	q := client.Collection(productsCollection).
		OrderBy("quantity", firestore.Asc).
		OrderBy(firestore.DocumentID, firestore.Asc)
	if query.MaxQuantity != nil {
		q = q.Where("quantity", "<=", *query.MaxQuantity)
	}
	if token := strings.TrimSpace(query.PageToken); token != "" {
		decoded, err := decodeStockPageToken(token)
		if err != nil {
			return domain.CursorPage[domain.StockRecord]{}, wrapStockError("stock.list", err)
		}
		q = q.StartAfter(decoded.Quantity, decoded.ProductID)
	}
	q = q.Limit(pageSize + 1)

	iter := q.Documents(ctx)
	defer iter.Stop()

	var records []domain.StockRecord
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return domain.CursorPage[domain.StockRecord]{}, wrapStockError("stock.list", err)
		}
		doc, err := decodeStock(snap)
		if err != nil {
			return domain.CursorPage[domain.StockRecord]{}, err
		}
		records = append(records, doc.toDomain(snap.Ref.ID))
	}

	hasMore := len(records) > pageSize
	if hasMore {
		records = records[:pageSize]
	}
	var nextToken string
	if hasMore && len(records) > 0 {
		last := records[len(records)-1]
		encoded, err := encodeStockPageToken(stockPageToken{ProductID: last.ProductID, Quantity: last.Quantity})
		if err != nil {
			return domain.CursorPage[domain.StockRecord]{}, wrapStockError("stock.list", err)
		}
		nextToken = encoded
	}

	return domain.CursorPage[domain.StockRecord]{
		Items:         records,
		NextPageToken: nextToken,
	}, nil
}

// Helper structures ---------------------------------------------------------

// stockDocument mirrors the product document's stock fields. Older documents
// carry the counter under "stock" instead of "quantity"; both are kept in
// sync on every write so readers of either generation see the same value.
type stockDocument struct {
	Quantity   *int      `firestore:"quantity"`
	Stock      *int      `firestore:"stock"`
	Status     string    `firestore:"status"`
	Dimensions string    `firestore:"dimensions"`
	Weight     float64   `firestore:"weight"`
	DeadWeight float64   `firestore:"deadWeight"`
	UpdatedAt  time.Time `firestore:"updatedAt"`
}

func (s stockDocument) quantity() int {
	if s.Quantity != nil {
		return *s.Quantity
	}
	if s.Stock != nil {
		return *s.Stock
	}
	return 0
}

func (s *stockDocument) setQuantity(q int) {
	s.Quantity = &q
	s.Stock = &q
	if q > 0 {
		s.Status = string(domain.StockStatusInStock)
	} else {
		s.Status = string(domain.StockStatusOutOfStock)
	}
}

func (s stockDocument) quantityUpdates() []firestore.Update {
	return []firestore.Update{
		{Path: "quantity", Value: s.quantity()},
		{Path: "stock", Value: s.quantity()},
		{Path: "status", Value: s.Status},
		{Path: "updatedAt", Value: s.UpdatedAt},
	}
}

func (s stockDocument) toDomain(id string) domain.StockRecord {
	qty := s.quantity()
	statusValue := domain.StockStatus(strings.TrimSpace(s.Status))
	if statusValue == "" {
		if qty > 0 {
			statusValue = domain.StockStatusInStock
		} else {
			statusValue = domain.StockStatusOutOfStock
		}
	}
	return domain.StockRecord{
		ProductID:       id,
		Quantity:        qty,
		Status:          statusValue,
		Dimensions:      strings.TrimSpace(s.Dimensions),
		WeightGrams:     s.Weight,
		DeadWeightGrams: s.DeadWeight,
		UpdatedAt:       s.UpdatedAt,
	}
}

func decodeStock(snap *firestore.DocumentSnapshot) (stockDocument, error) {
	var doc stockDocument
	if err := snap.DataTo(&doc); err != nil {
		return stockDocument{}, fmt.Errorf("decode stock %s: %w", snap.Ref.ID, err)
	}
	return doc, nil
}

type stockPageToken struct {
	ProductID string
	Quantity  int
}

func encodeStockPageToken(token stockPageToken) (string, error) {
	buf := &bytes.Buffer{}
	enc := json.NewEncoder(buf)
	if err := enc.Encode(token); err != nil {
		return "", fmt.Errorf("encode stock page token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(bytes.TrimSpace(buf.Bytes())), nil
}

func decodeStockPageToken(encoded string) (*stockPageToken, error) {
	data, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("decode stock page token: %w", err)
	}
	var token stockPageToken
	if err := json.Unmarshal(data, &token); err != nil {
		return nil, fmt.Errorf("decode stock page token json: %w", err)
	}
	return &token, nil
}

func wrapStockError(op string, err error) error {
	if err == nil {
		return nil
	}
	var stockErr *repositories.StockError
	if errors.As(err, &stockErr) {
		if stockErr.Op == "" {
			stockErr.Op = op
		}
		return stockErr
	}
	return pfirestore.WrapError(op, err)
}
