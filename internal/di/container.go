package di

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/zenkart/admin-api/internal/platform/config"
	"github.com/zenkart/admin-api/internal/repositories"
	"github.com/zenkart/admin-api/internal/services"
)

// Services bundles the service-layer contracts that handlers rely upon. Concrete implementations
// are assembled via dependency injection in NewContainer.
type Services struct {
	Stock       services.StockService
	Orders      services.OrderService
	Fulfillment services.FulfillmentService
	Catalog     services.CatalogService
	Content     services.ContentService
	System      services.SystemService
}

// Collaborators carries the externally-constructed dependencies of the service
// layer: carrier and email clients, invoice tooling, event publishing, and
// observability hooks. Nil fields disable the corresponding concern.
type Collaborators struct {
	Carrier  services.CarrierAPI
	Builder  services.RequestBuilder
	Notifier services.Notifier
	Invoices services.InvoiceRenderer
	Archiver services.InvoiceArchiver
	Events   services.OrderEventPublisher

	StockMetrics       services.StockMetrics
	FulfillmentMetrics services.FulfillmentMetrics

	Logger func(ctx context.Context, event string, fields map[string]any)
	Build  services.BuildInfo
}

// Container wires repositories, services, and background infrastructure for runtime use.
type Container struct {
	Config       config.Config
	Repositories repositories.Registry
	Services     Services
}

// NewContainer constructs the runtime dependencies. Production wiring provides real
// implementations, while tests can supply in-memory registries and stubs.
func NewContainer(ctx context.Context, cfg config.Config, reg repositories.Registry, collab Collaborators) (*Container, error) {
	if reg == nil {
		return nil, errors.New("repositories registry is required")
	}

	svc, err := buildServices(ctx, reg, cfg, collab)
	if err != nil {
		return nil, err
	}

	return &Container{
		Config:       cfg,
		Repositories: reg,
		Services:     svc,
	}, nil
}

// Close releases resources such as repository clients, background workers, or caches.
func (c *Container) Close(ctx context.Context) error {
	if c == nil || c.Repositories == nil {
		return nil
	}
	return c.Repositories.Close(ctx)
}

func buildServices(_ context.Context, reg repositories.Registry, cfg config.Config, collab Collaborators) (Services, error) {
	var svc Services

	// Feature flags drop optional collaborators before wiring.
	if !cfg.Features.EnableInvoiceArchive {
		collab.Archiver = nil
	}
	if !cfg.Features.EnableOrderEvents {
		collab.Events = nil
	}

	if stockRepo := reg.Stock(); stockRepo != nil {
		stockSvc, err := services.NewStockService(services.StockServiceDeps{
			Stock:   stockRepo,
			Clock:   time.Now,
			Metrics: collab.StockMetrics,
			Logger:  collab.Logger,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build stock service: %w", err)
		}
		svc.Stock = stockSvc
	}

	ordersRepo := reg.Orders()
	if ordersRepo != nil {
		orderSvc, err := services.NewOrderService(services.OrderServiceDeps{
			Orders: ordersRepo,
			Clock:  time.Now,
			Events: collab.Events,
			Logger: collab.Logger,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build order service: %w", err)
		}
		svc.Orders = orderSvc
	}

	if ordersRepo != nil && svc.Stock != nil {
		fulfillmentSvc, err := services.NewFulfillmentService(services.FulfillmentServiceDeps{
			Orders:   ordersRepo,
			Stock:    svc.Stock,
			Builder:  collab.Builder,
			Carrier:  collab.Carrier,
			Notifier: collab.Notifier,
			Invoices: collab.Invoices,
			Archiver: collab.Archiver,
			Events:   collab.Events,
			Metrics:  collab.FulfillmentMetrics,
			Clock:    time.Now,
			Logger:   collab.Logger,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build fulfillment service: %w", err)
		}
		svc.Fulfillment = fulfillmentSvc
	}

	if couponsRepo, taxRepo := reg.Coupons(), reg.TaxRules(); couponsRepo != nil && taxRepo != nil {
		catalogSvc, err := services.NewCatalogService(services.CatalogServiceDeps{
			Coupons:  couponsRepo,
			TaxRules: taxRepo,
			Clock:    time.Now,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build catalog service: %w", err)
		}
		svc.Catalog = catalogSvc
	}

	if postsRepo := reg.Posts(); postsRepo != nil {
		contentSvc, err := services.NewContentService(services.ContentServiceDeps{
			Posts: postsRepo,
			Clock: time.Now,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build content service: %w", err)
		}
		svc.Content = contentSvc
	}

	if healthRepo := reg.Health(); healthRepo != nil {
		systemSvc, err := services.NewSystemService(services.SystemServiceDeps{
			Health: healthRepo,
			Build:  collab.Build,
			Clock:  time.Now,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build system service: %w", err)
		}
		svc.System = systemSvc
	}

	return svc, nil
}
