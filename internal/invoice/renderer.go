package invoice

import (
	"errors"
	"fmt"
	"html/template"
	"strings"
	"time"

	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	domain "github.com/zenkart/admin-api/internal/domain"
)

const defaultCurrencyCode = "INR"

// ErrRendererInvalidOrder signals the order cannot be rendered into an invoice.
var ErrRendererInvalidOrder = errors.New("invoice: invalid order")

// RendererDeps configures the invoice renderer.
type RendererDeps struct {
	// CurrencyCode is the ISO 4217 code used for amount formatting.
	// Defaults to INR.
	CurrencyCode string
	// Locale controls digit grouping. Defaults to en-IN.
	Locale string
}

// Renderer produces static HTML invoices for orders. It is a pure
// projection: no business logic beyond formatting.
type Renderer struct {
	tmpl    *template.Template
	printer *message.Printer
	unit    currency.Unit
}

// NewRenderer builds a renderer with the supplied formatting options.
func NewRenderer(deps RendererDeps) (*Renderer, error) {
	code := strings.TrimSpace(deps.CurrencyCode)
	if code == "" {
		code = defaultCurrencyCode
	}
	unit, err := currency.ParseISO(code)
	if err != nil {
		return nil, fmt.Errorf("invoice: invalid currency code %q: %w", code, err)
	}

	locale := strings.TrimSpace(deps.Locale)
	if locale == "" {
		locale = "en-IN"
	}
	tag, err := language.Parse(locale)
	if err != nil {
		return nil, fmt.Errorf("invoice: invalid locale %q: %w", locale, err)
	}

	tmpl, err := template.New("invoice").Parse(invoiceTemplate)
	if err != nil {
		return nil, fmt.Errorf("invoice: parse template: %w", err)
	}

	return &Renderer{
		tmpl:    tmpl,
		printer: message.NewPrinter(tag),
		unit:    unit,
	}, nil
}

type invoiceView struct {
	OrderID       string
	IssuedAt      string
	CustomerName  string
	CustomerEmail string
	AddressLines  []string
	Items         []invoiceItemView
	Subtotal      string
	Discount      string
	Shipping      string
	Total         string
	PaymentMethod string
	PaymentStatus string
}

type invoiceItemView struct {
	Name      string
	Quantity  int
	UnitPrice string
	LineTotal string
}

// RenderHTML renders the order as a standalone HTML document.
func (r *Renderer) RenderHTML(order domain.Order) (string, error) {
	if strings.TrimSpace(order.ID) == "" {
		return "", fmt.Errorf("%w: order id is required", ErrRendererInvalidOrder)
	}
	if len(order.Items) == 0 {
		return "", fmt.Errorf("%w: order has no line items", ErrRendererInvalidOrder)
	}

	view := r.buildView(order)

	var out strings.Builder
	if err := r.tmpl.Execute(&out, view); err != nil {
		return "", fmt.Errorf("invoice: execute template: %w", err)
	}
	return out.String(), nil
}

// RenderBytes wraps RenderHTML for attachment use.
func (r *Renderer) RenderBytes(order domain.Order) ([]byte, error) {
	html, err := r.RenderHTML(order)
	if err != nil {
		return nil, err
	}
	return []byte(html), nil
}

func (r *Renderer) buildView(order domain.Order) invoiceView {
	items := make([]invoiceItemView, 0, len(order.Items))
	for _, item := range order.Items {
		selling := item.SellingPrice()
		items = append(items, invoiceItemView{
			Name:      item.Name,
			Quantity:  item.Quantity,
			UnitPrice: r.formatAmount(selling),
			LineTotal: r.formatAmount(selling * int64(item.Quantity)),
		})
	}

	name := strings.TrimSpace(order.Address.FirstName + " " + order.Address.LastName)
	if name == "" {
		name = strings.TrimSpace(order.Address.Name)
	}

	issuedAt := order.CreatedAt
	if issuedAt.IsZero() {
		issuedAt = time.Now()
	}

	return invoiceView{
		OrderID:       order.ID,
		IssuedAt:      issuedAt.UTC().Format("02 Jan 2006"),
		CustomerName:  name,
		CustomerEmail: order.Email,
		AddressLines:  addressLines(order.Address),
		Items:         items,
		Subtotal:      r.formatAmount(order.Totals.Subtotal),
		Discount:      r.formatAmount(order.Totals.Discount),
		Shipping:      r.formatAmount(order.Totals.Shipping),
		Total:         r.formatAmount(order.Totals.Total),
		PaymentMethod: string(order.PaymentMethod),
		PaymentStatus: string(order.PaymentStatus),
	}
}

// formatAmount renders a minor-unit amount with the configured currency
// symbol and locale digit grouping.
func (r *Renderer) formatAmount(minor int64) string {
	amount := r.unit.Amount(float64(minor) / 100)
	return r.printer.Sprint(currency.Symbol(amount))
}

func addressLines(address domain.Address) []string {
	lines := make([]string, 0, 3)
	if street := strings.TrimSpace(address.Street); street != "" {
		lines = append(lines, street)
	}
	cityState := strings.TrimSpace(strings.Join(nonEmpty(address.City, address.State), ", "))
	if address.PostalCode != "" {
		cityState = strings.TrimSpace(cityState + " " + address.PostalCode)
	}
	if cityState != "" {
		lines = append(lines, cityState)
	}
	if country := strings.TrimSpace(address.Country); country != "" {
		lines = append(lines, country)
	}
	return lines
}

func nonEmpty(values ...string) []string {
	out := make([]string, 0, len(values))
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

const invoiceTemplate = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>Invoice {{.OrderID}}</title>
<style>
body { font-family: Arial, sans-serif; color: #222; margin: 40px; }
h1 { font-size: 20px; border-bottom: 2px solid #222; padding-bottom: 8px; }
table { width: 100%; border-collapse: collapse; margin-top: 16px; }
th, td { text-align: left; padding: 6px 8px; border-bottom: 1px solid #ddd; }
td.amount, th.amount { text-align: right; }
.totals td { border: none; padding: 3px 8px; }
.totals .grand td { font-weight: bold; border-top: 2px solid #222; }
.meta { margin-top: 12px; font-size: 13px; color: #555; }
</style>
</head>
<body>
<h1>Invoice &mdash; Order {{.OrderID}}</h1>
<p class="meta">Issued {{.IssuedAt}}</p>
<p>
{{.CustomerName}}<br>
{{.CustomerEmail}}<br>
{{range .AddressLines}}{{.}}<br>{{end}}
</p>
<table>
<thead>
<tr><th>Item</th><th>Qty</th><th class="amount">Unit Price</th><th class="amount">Total</th></tr>
</thead>
<tbody>
{{range .Items}}
<tr><td>{{.Name}}</td><td>{{.Quantity}}</td><td class="amount">{{.UnitPrice}}</td><td class="amount">{{.LineTotal}}</td></tr>
{{end}}
</tbody>
</table>
<table class="totals">
<tr><td>Subtotal</td><td class="amount">{{.Subtotal}}</td></tr>
<tr><td>Discount</td><td class="amount">{{.Discount}}</td></tr>
<tr><td>Shipping</td><td class="amount">{{.Shipping}}</td></tr>
<tr class="grand"><td>Total</td><td class="amount">{{.Total}}</td></tr>
</table>
<p class="meta">Payment: {{.PaymentMethod}} ({{.PaymentStatus}})</p>
</body>
</html>
`
