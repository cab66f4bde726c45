package firestore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"

	pfirestore "github.com/zenkart/admin-api/internal/platform/firestore"
	"github.com/zenkart/admin-api/internal/repositories"
)

// Registry bundles the Firestore-backed repositories behind the
// repositories.Registry contract. All repositories share one provider, so
// RunInTx spans every collection the registry serves.
type Registry struct {
	provider *pfirestore.Provider

	stock    *StockRepository
	orders   *OrderRepository
	coupons  *CouponRepository
	taxRules *TaxRuleRepository
	posts    *PostRepository
	health   repositories.HealthRepository
}

var _ repositories.Registry = (*Registry)(nil)

// RegistryOption customises registry construction.
type RegistryOption func(*registryOptions)

type registryOptions struct {
	health       repositories.HealthRepository
	extraChecks  []repositories.DependencyCheck
	pingDocument string
}

// WithHealthRepository replaces the default Firestore-probing health repository.
func WithHealthRepository(health repositories.HealthRepository) RegistryOption {
	return func(o *registryOptions) {
		o.health = health
	}
}

// WithDependencyChecks adds readiness probes beyond the built-in Firestore one.
func WithDependencyChecks(checks ...repositories.DependencyCheck) RegistryOption {
	return func(o *registryOptions) {
		o.extraChecks = append(o.extraChecks, checks...)
	}
}

// NewRegistry wires the Firestore repositories onto the shared provider.
func NewRegistry(provider *pfirestore.Provider, opts ...RegistryOption) (*Registry, error) {
	if provider == nil {
		return nil, errors.New("registry requires firestore provider")
	}

	options := registryOptions{}
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}

	stock, err := NewStockRepository(provider)
	if err != nil {
		return nil, fmt.Errorf("build stock repository: %w", err)
	}
	orders, err := NewOrderRepository(provider)
	if err != nil {
		return nil, fmt.Errorf("build order repository: %w", err)
	}
	coupons, err := NewCouponRepository(provider)
	if err != nil {
		return nil, fmt.Errorf("build coupon repository: %w", err)
	}
	taxRules, err := NewTaxRuleRepository(provider)
	if err != nil {
		return nil, fmt.Errorf("build tax rule repository: %w", err)
	}
	posts, err := NewPostRepository(provider)
	if err != nil {
		return nil, fmt.Errorf("build post repository: %w", err)
	}

	health := options.health
	if health == nil {
		checks := append([]repositories.DependencyCheck{{
			Name:    "firestore",
			Timeout: 2 * time.Second,
			Check:   firestorePing(provider),
		}}, options.extraChecks...)
		health, err = repositories.NewDependencyHealthRepository(checks)
		if err != nil {
			return nil, fmt.Errorf("build health repository: %w", err)
		}
	}

	return &Registry{
		provider: provider,
		stock:    stock,
		orders:   orders,
		coupons:  coupons,
		taxRules: taxRules,
		posts:    posts,
		health:   health,
	}, nil
}

// Close releases the underlying Firestore client.
func (r *Registry) Close(ctx context.Context) error {
	if r == nil || r.provider == nil {
		return nil
	}
	return r.provider.Close(ctx)
}

func (r *Registry) Stock() repositories.StockRepository {
	return r.stock
}

func (r *Registry) Orders() repositories.OrderRepository {
	return r.orders
}

func (r *Registry) Coupons() repositories.CouponRepository {
	return r.coupons
}

func (r *Registry) TaxRules() repositories.TaxRuleRepository {
	return r.taxRules
}

func (r *Registry) Posts() repositories.PostRepository {
	return r.posts
}

func (r *Registry) Health() repositories.HealthRepository {
	return r.health
}

// RunInTx executes fn inside a single Firestore transaction with the
// provider's retry and timeout defaults applied.
func (r *Registry) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if r == nil || r.provider == nil {
		return errors.New("registry not initialised")
	}
	if fn == nil {
		return errors.New("registry: transaction function is nil")
	}
	return r.provider.RunTransaction(ctx, func(ctx context.Context, _ *firestore.Transaction) error {
		return fn(ctx)
	})
}

// firestorePing verifies the client can be constructed and the backend
// answers a metadata-only read.
func firestorePing(provider *pfirestore.Provider) func(context.Context) error {
	return func(ctx context.Context) error {
		client, err := provider.Client(ctx)
		if err != nil {
			return err
		}
		iter := client.Collections(ctx)
		if _, err := iter.Next(); err != nil && !errors.Is(err, iterator.Done) {
			return err
		}
		return nil
	}
}
