package payments

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/charge"
	"github.com/stripe/stripe-go/v78/client"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

// StripeLogger defines the logging contract for Stripe provider operations.
type StripeLogger func(ctx context.Context, event string, fields map[string]any)

type stripeChargeAPI interface {
	Get(id string, params *stripe.ChargeParams) (*stripe.Charge, error)
	List(listParams *stripe.ChargeListParams) ([]*stripe.Charge, error)
}

type stripeClients struct {
	charges stripeChargeAPI
}

// chargeClient adapts the SDK charge client, draining its list iterator
// into a slice.
type chargeClient struct {
	api *charge.Client
}

func (c chargeClient) Get(id string, params *stripe.ChargeParams) (*stripe.Charge, error) {
	return c.api.Get(id, params)
}

func (c chargeClient) List(listParams *stripe.ChargeListParams) ([]*stripe.Charge, error) {
	iter := c.api.List(listParams)
	var charges []*stripe.Charge
	for iter.Next() {
		charges = append(charges, iter.Charge())
	}
	return charges, iter.Err()
}

// StripeProviderConfig configures the StripeProvider.
type StripeProviderConfig struct {
	APIKey    string
	AccountID string
	Backends  *stripe.Backends
	Logger    StripeLogger
	Clients   *stripeClients
}

// StripeProvider implements read-only charge lookups against the Stripe API.
type StripeProvider struct {
	api     stripeClients
	account string
	logger  StripeLogger
}

var _ Provider = (*StripeProvider)(nil)

// NewStripeProvider constructs a Stripe Provider using the given configuration.
func NewStripeProvider(cfg StripeProviderConfig) (*StripeProvider, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" && cfg.Clients == nil {
		return nil, errors.New("stripe: api key is required")
	}

	var clients stripeClients
	if cfg.Clients != nil {
		clients = *cfg.Clients
	} else {
		sc := client.New(apiKey, cfg.Backends)
		clients = stripeClients{charges: chargeClient{api: sc.Charges}}
	}
	if clients.charges == nil {
		return nil, errors.New("stripe: charge client is nil")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &StripeProvider{
		api:     clients,
		account: strings.TrimSpace(cfg.AccountID),
		logger:  logger,
	}, nil
}

// GetCharge fetches a single charge by its Stripe identifier.
func (p *StripeProvider) GetCharge(ctx context.Context, chargeID string) (ChargeDetails, error) {
	if p == nil {
		return ChargeDetails{}, errors.New("stripe: provider is nil")
	}
	chargeID = strings.TrimSpace(chargeID)
	if chargeID == "" {
		return ChargeDetails{}, fmt.Errorf("%w: charge id is required", ErrInvalidInput)
	}

	params := &stripe.ChargeParams{}
	params.Context = ctx
	if p.account != "" {
		params.SetStripeAccount(p.account)
	}

	ch, err := p.api.charges.Get(chargeID, params)
	if err != nil {
		p.logger(ctx, "payments.stripe.get_charge.failed", map[string]any{
			"charge": chargeID,
			"error":  err.Error(),
		})
		return ChargeDetails{}, mapStripeError(err)
	}
	return toChargeDetails(ch), nil
}

// ListRecentCharges returns the most recent charges, newest first, capped
// at 100 per Stripe's list limit.
func (p *StripeProvider) ListRecentCharges(ctx context.Context, query ChargeListQuery) ([]ChargeDetails, error) {
	if p == nil {
		return nil, errors.New("stripe: provider is nil")
	}

	limit := query.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}

	params := &stripe.ChargeListParams{}
	params.Context = ctx
	params.Limit = stripe.Int64(int64(limit))
	if p.account != "" {
		params.SetStripeAccount(p.account)
	}
	if query.From != nil {
		params.CreatedRange = &stripe.RangeQueryParams{GreaterThanOrEqual: query.From.Unix()}
	}

	charges, err := p.api.charges.List(params)
	if err != nil {
		p.logger(ctx, "payments.stripe.list_charges.failed", map[string]any{
			"error": err.Error(),
		})
		return nil, mapStripeError(err)
	}

	details := make([]ChargeDetails, 0, len(charges))
	for _, ch := range charges {
		details = append(details, toChargeDetails(ch))
	}
	return details, nil
}

func toChargeDetails(ch *stripe.Charge) ChargeDetails {
	if ch == nil {
		return ChargeDetails{}
	}

	details := ChargeDetails{
		ID:             ch.ID,
		Amount:         ch.Amount,
		AmountRefunded: ch.AmountRefunded,
		Currency:       strings.ToUpper(string(ch.Currency)),
		Status:         string(ch.Status),
		Paid:           ch.Paid,
		Refunded:       ch.Refunded,
		Captured:       ch.Captured,
		Description:    ch.Description,
		FailureCode:    ch.FailureCode,
		FailureMessage: ch.FailureMessage,
		ReceiptURL:     ch.ReceiptURL,
		Metadata:       ch.Metadata,
		CreatedAt:      time.Unix(ch.Created, 0).UTC(),
	}

	if ch.PaymentMethodDetails != nil && ch.PaymentMethodDetails.Card != nil {
		card := ch.PaymentMethodDetails.Card
		details.Card = &CardDetails{
			Brand:    string(card.Brand),
			Last4:    card.Last4,
			ExpMonth: int(card.ExpMonth),
			ExpYear:  int(card.ExpYear),
		}
	}
	return details
}

func mapStripeError(err error) error {
	if err == nil {
		return nil
	}

	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		switch {
		case stripeErr.Code == stripe.ErrorCodeResourceMissing || stripeErr.HTTPStatusCode == http.StatusNotFound:
			return fmt.Errorf("%w: %s", ErrChargeNotFound, stripeErr.Msg)
		case stripeErr.HTTPStatusCode >= http.StatusInternalServerError:
			return fmt.Errorf("%w: %s", ErrProviderUnavailable, stripeErr.Msg)
		}
	}
	return err
}
