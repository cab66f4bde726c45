package shipping

import (
	"context"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	domain "github.com/zenkart/admin-api/internal/domain"
)

const (
	defaultDimensionCm    = 10.0
	minParsedDimensionCm  = 1.0
	minPackageDimensionCm = 10.0
	defaultUnitWeightKg   = 0.5

	maxNameLength = 50

	fallbackFirstName = "Customer"
	fallbackLastName  = "Name"

	placeholderPhone  = "9999999999"
	defaultPostalCode = "682001"
	placeholderEmail  = "orders@zenkart.in"

	carrierDateLayout = "2006-01-02 15:04:05"
)

// ErrBuilderInvalidOrder signals the order cannot be projected into a carrier request.
var ErrBuilderInvalidOrder = errors.New("shipping: invalid order")

var (
	emailPattern  = regexp.MustCompile(`^[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}$`)
	nonDigits     = regexp.MustCompile(`\D`)
	labeledHeight = regexp.MustCompile(`(?i)h\s*(\d+(?:\.\d+)?)`)
	labeledWidth  = regexp.MustCompile(`(?i)w\s*(\d+(?:\.\d+)?)`)
	labeledDepth  = regexp.MustCompile(`(?i)d\s*(\d+(?:\.\d+)?)`)
	bareTriple    = regexp.MustCompile(`^\s*(\d+(?:\.\d+)?)\s*[x×]\s*(\d+(?:\.\d+)?)\s*[x×]\s*(\d+(?:\.\d+)?)\s*$`)
)

// StockReader provides the per-product dimension metadata the builder needs.
type StockReader interface {
	Get(ctx context.Context, productID string) (domain.StockRecord, error)
}

// BuilderDeps bundles collaborators required to construct a request builder.
type BuilderDeps struct {
	Stock          StockReader
	PickupLocation string
	Clock          func() time.Time
}

// Builder derives carrier order payloads from orders, defensively
// normalizing every user-entered field.
type Builder struct {
	stock  StockReader
	pickup string
	clock  func() time.Time
}

// NewBuilder wires dependencies into a request builder.
func NewBuilder(deps BuilderDeps) (*Builder, error) {
	if deps.Stock == nil {
		return nil, errors.New("shipping builder: stock reader is required")
	}
	pickup := strings.TrimSpace(deps.PickupLocation)
	if pickup == "" {
		return nil, errors.New("shipping builder: pickup location is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Builder{
		stock:  deps.Stock,
		pickup: pickup,
		clock:  func() time.Time { return clock().UTC() },
	}, nil
}

// BuildRequest projects an order into a carrier request. Every silent
// fallback substitution is reported through the returned warnings so
// callers can surface data-quality issues alongside the payload.
func (b *Builder) BuildRequest(ctx context.Context, order domain.Order) (Request, []Warning, error) {
	if strings.TrimSpace(order.ID) == "" {
		return Request{}, nil, fmt.Errorf("%w: order id is required", ErrBuilderInvalidOrder)
	}
	if len(order.Items) == 0 {
		return Request{}, nil, fmt.Errorf("%w: order has no line items", ErrBuilderInvalidOrder)
	}

	var warnings []Warning

	firstName, lastName, nameWarning := normalizeName(order.Address)
	if nameWarning != nil {
		warnings = append(warnings, *nameWarning)
	}

	phone, phoneWarning := normalizePhone(order.Address.Phone)
	if phoneWarning != nil {
		warnings = append(warnings, *phoneWarning)
	}

	pincode, pincodeWarning := normalizePostalCode(order.Address.PostalCode)
	if pincodeWarning != nil {
		warnings = append(warnings, *pincodeWarning)
	}

	email, emailWarning := normalizeEmail(order.Email)
	if emailWarning != nil {
		warnings = append(warnings, *emailWarning)
	}

	orderDate, dateWarning := b.normalizeOrderDate(order.CreatedAt)
	if dateWarning != nil {
		warnings = append(warnings, *dateWarning)
	}

	items, subTotal, err := buildRequestItems(order.Items)
	if err != nil {
		return Request{}, warnings, err
	}

	pkg, weightKg, dimensionWarnings := b.computePackage(ctx, order.Items)
	warnings = append(warnings, dimensionWarnings...)

	return Request{
		OrderID:             order.ID,
		OrderDate:           orderDate,
		PickupLocation:      b.pickup,
		BillingCustomerName: firstName,
		BillingLastName:     lastName,
		BillingAddress:      strings.TrimSpace(order.Address.Street),
		BillingCity:         strings.TrimSpace(order.Address.City),
		BillingPincode:      pincode,
		BillingState:        strings.TrimSpace(order.Address.State),
		BillingCountry:      strings.TrimSpace(order.Address.Country),
		BillingEmail:        email,
		BillingPhone:        phone,
		ShippingIsBilling:   true,
		OrderItems:          items,
		PaymentMethod:       paymentType(order.PaymentMethod),
		SubTotal:            subTotal,
		Length:              pkg.Length,
		Breadth:             pkg.Breadth,
		Height:              pkg.Height,
		Weight:              weightKg,
	}, warnings, nil
}

func normalizeName(address domain.Address) (string, string, *Warning) {
	first := strings.TrimSpace(address.FirstName)
	last := strings.TrimSpace(address.LastName)

	if first == "" {
		if full := strings.Fields(strings.TrimSpace(address.Name)); len(full) > 0 {
			first = full[0]
			if len(full) > 1 {
				last = strings.Join(full[1:], " ")
			}
		}
	}

	var warning *Warning
	if first == "" {
		warning = &Warning{
			Field:      "name",
			Original:   address.Name,
			Substitute: fallbackFirstName + " " + fallbackLastName,
			Reason:     "no customer name on order",
		}
		first = fallbackFirstName
		last = fallbackLastName
	}
	if last == "" {
		last = fallbackLastName
	}

	return truncate(first, maxNameLength), truncate(last, maxNameLength), warning
}

// normalizePhone accepts a bare 10-digit Indian mobile number, strips a 91
// country-code prefix from 12-digit inputs, and falls back to the last ten
// digits of anything longer. Unusable values become a placeholder so the
// carrier call still goes through.
func normalizePhone(raw string) (string, *Warning) {
	digits := nonDigits.ReplaceAllString(raw, "")

	switch {
	case isIndianMobile(digits):
		return digits, nil
	case len(digits) == 12 && strings.HasPrefix(digits, "91") && isIndianMobile(digits[2:]):
		return digits[2:], nil
	case len(digits) > 10 && isIndianMobile(digits[len(digits)-10:]):
		return digits[len(digits)-10:], nil
	}

	return placeholderPhone, &Warning{
		Field:      "phone",
		Original:   raw,
		Substitute: placeholderPhone,
		Reason:     "not a valid mobile number",
	}
}

func isIndianMobile(digits string) bool {
	return len(digits) == 10 && digits[0] >= '6' && digits[0] <= '9'
}

func normalizePostalCode(raw string) (string, *Warning) {
	digits := nonDigits.ReplaceAllString(raw, "")
	if len(digits) == 6 {
		return digits, nil
	}
	return defaultPostalCode, &Warning{
		Field:      "postal_code",
		Original:   raw,
		Substitute: defaultPostalCode,
		Reason:     "not a six-digit postal code",
	}
}

func normalizeEmail(raw string) (string, *Warning) {
	email := strings.TrimSpace(raw)
	if emailPattern.MatchString(email) {
		return email, nil
	}
	return placeholderEmail, &Warning{
		Field:      "email",
		Original:   raw,
		Substitute: placeholderEmail,
		Reason:     "not a valid email address",
	}
}

func (b *Builder) normalizeOrderDate(createdAt time.Time) (string, *Warning) {
	if createdAt.IsZero() {
		now := b.clock()
		return now.Format(carrierDateLayout), &Warning{
			Field:      "order_date",
			Original:   "",
			Substitute: now.Format(carrierDateLayout),
			Reason:     "order has no creation timestamp",
		}
	}
	return createdAt.UTC().Format(carrierDateLayout), nil
}

func buildRequestItems(items []domain.LineItem) ([]RequestItem, float64, error) {
	out := make([]RequestItem, 0, len(items))
	var subTotal float64

	for _, item := range items {
		selling := item.SellingPrice()
		if selling <= 0 {
			return nil, 0, fmt.Errorf("%w: line item %s resolves to a non-positive selling price", ErrBuilderInvalidOrder, item.ProductID)
		}

		discount := item.UnitPrice - selling
		if discount < 0 {
			discount = 0
		}
		if discount > selling {
			discount = selling
		}

		quantity := item.Quantity
		if quantity < 1 {
			quantity = 1
		}

		out = append(out, RequestItem{
			Name:         item.Name,
			SKU:          item.ProductID,
			Units:        quantity,
			SellingPrice: minorToMajor(selling),
			Discount:     minorToMajor(discount),
		})
		subTotal += minorToMajor(selling) * float64(quantity)
	}

	return out, subTotal, nil
}

// computePackage estimates a single package from the order's per-product
// dimension metadata: total volume is collapsed to a cube, then stretched
// by fixed aspect ratios. Deliberately simpler than bin-packing.
func (b *Builder) computePackage(ctx context.Context, items []domain.LineItem) (Dimensions, float64, []Warning) {
	var (
		warnings    []Warning
		totalVolume float64
		totalWeight float64
	)

	records := make(map[string]domain.StockRecord, len(items))
	for _, item := range items {
		if _, ok := records[item.ProductID]; ok {
			continue
		}
		record, err := b.stock.Get(ctx, item.ProductID)
		if err != nil {
			warnings = append(warnings, Warning{
				Field:      "dimensions",
				Original:   item.ProductID,
				Substitute: "defaults",
				Reason:     "product metadata unavailable",
			})
			record = domain.StockRecord{ProductID: item.ProductID}
		}
		records[item.ProductID] = record
	}

	for _, item := range items {
		record := records[item.ProductID]
		dims := ParseDimensions(record.Dimensions)

		quantity := item.Quantity
		if quantity < 1 {
			quantity = 1
		}

		totalVolume += dims.Length * dims.Breadth * dims.Height * float64(quantity)
		totalWeight += unitWeightKg(record) * float64(quantity)
	}

	side := math.Cbrt(totalVolume)
	pkg := Dimensions{
		Length:  math.Max(minPackageDimensionCm, side*1.2),
		Breadth: math.Max(minPackageDimensionCm, side*1.0),
		Height:  math.Max(minPackageDimensionCm, side*0.8),
	}

	return pkg, totalWeight, warnings
}

// ParseDimensions understands the two legacy encodings of the product
// dimension string: labeled "H 29 x W 20 x D 21" (missing axes default to
// 10) and bare "120 x 80 x 75" meaning length x breadth x height. Anything
// else yields the default cube.
func ParseDimensions(raw string) Dimensions {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return Dimensions{Length: defaultDimensionCm, Breadth: defaultDimensionCm, Height: defaultDimensionCm}
	}

	if match := bareTriple.FindStringSubmatch(trimmed); match != nil {
		return Dimensions{
			Length:  clampDimension(parseFloat(match[1])),
			Breadth: clampDimension(parseFloat(match[2])),
			Height:  clampDimension(parseFloat(match[3])),
		}
	}

	height := labeledMatch(labeledHeight, trimmed)
	width := labeledMatch(labeledWidth, trimmed)
	depth := labeledMatch(labeledDepth, trimmed)
	if height > 0 || width > 0 || depth > 0 {
		return Dimensions{
			Length:  clampDimension(defaultIfZero(depth)),
			Breadth: clampDimension(defaultIfZero(width)),
			Height:  clampDimension(defaultIfZero(height)),
		}
	}

	return Dimensions{Length: defaultDimensionCm, Breadth: defaultDimensionCm, Height: defaultDimensionCm}
}

func labeledMatch(pattern *regexp.Regexp, value string) float64 {
	match := pattern.FindStringSubmatch(value)
	if match == nil {
		return 0
	}
	return parseFloat(match[1])
}

func defaultIfZero(value float64) float64 {
	if value <= 0 {
		return defaultDimensionCm
	}
	return value
}

func clampDimension(value float64) float64 {
	if value < minParsedDimensionCm {
		return minParsedDimensionCm
	}
	return value
}

func unitWeightKg(record domain.StockRecord) float64 {
	grams := record.DeadWeightGrams
	if record.WeightGrams > grams {
		grams = record.WeightGrams
	}
	if grams <= 0 {
		return defaultUnitWeightKg
	}
	return grams / 1000
}

func paymentType(method domain.PaymentMethod) string {
	if method == domain.PaymentMethodOnline {
		return PaymentTypePrepaid
	}
	return PaymentTypeCOD
}

func minorToMajor(value int64) float64 {
	return float64(value) / 100
}

// truncate limits value to max runes so a cut never splits a multi-byte
// character.
func truncate(value string, max int) string {
	if utf8.RuneCountInString(value) <= max {
		return value
	}
	runes := []rune(value)
	return string(runes[:max])
}

func parseFloat(value string) float64 {
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0
	}
	return parsed
}
