package payments

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrInvalidInput signals the caller provided invalid arguments.
	ErrInvalidInput = errors.New("payments: invalid input")
	// ErrChargeNotFound indicates the charge does not exist at the PSP.
	ErrChargeNotFound = errors.New("payments: charge not found")
	// ErrProviderUnavailable indicates the PSP could not be reached.
	ErrProviderUnavailable = errors.New("payments: provider unavailable")
)

// CardDetails captures the instrument metadata attached to a charge.
type CardDetails struct {
	Brand    string `json:"brand,omitempty"`
	Last4    string `json:"last4,omitempty"`
	ExpMonth int    `json:"exp_month,omitempty"`
	ExpYear  int    `json:"exp_year,omitempty"`
}

// ChargeDetails is the PSP-agnostic view of a single charge used by the
// payments analytics endpoints.
type ChargeDetails struct {
	ID             string            `json:"id"`
	Amount         int64             `json:"amount"`
	AmountRefunded int64             `json:"amount_refunded,omitempty"`
	Currency       string            `json:"currency"`
	Status         string            `json:"status"`
	Paid           bool              `json:"paid"`
	Refunded       bool              `json:"refunded"`
	Captured       bool              `json:"captured"`
	Description    string            `json:"description,omitempty"`
	FailureCode    string            `json:"failure_code,omitempty"`
	FailureMessage string            `json:"failure_message,omitempty"`
	ReceiptURL     string            `json:"receipt_url,omitempty"`
	Card           *CardDetails      `json:"card,omitempty"`
	Metadata       map[string]string `json:"metadata,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
}

// ChargeListQuery narrows recent-charge listings.
type ChargeListQuery struct {
	Limit int
	// From filters out charges created before the given instant.
	From *time.Time
}

// Provider exposes read-only charge lookups against a PSP.
type Provider interface {
	GetCharge(ctx context.Context, chargeID string) (ChargeDetails, error)
	ListRecentCharges(ctx context.Context, query ChargeListQuery) ([]ChargeDetails, error)
}
