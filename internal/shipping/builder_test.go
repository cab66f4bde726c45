package shipping

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	domain "github.com/zenkart/admin-api/internal/domain"
)

type stubStockReader struct {
	getFn func(ctx context.Context, productID string) (domain.StockRecord, error)
}

func (s *stubStockReader) Get(ctx context.Context, productID string) (domain.StockRecord, error) {
	if s.getFn == nil {
		return domain.StockRecord{ProductID: productID}, nil
	}
	return s.getFn(ctx, productID)
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func testBuilder(t *testing.T, stock StockReader) *Builder {
	t.Helper()

	builder, err := NewBuilder(BuilderDeps{
		Stock:          stock,
		PickupLocation: "Primary",
		Clock:          fixedClock(time.Date(2026, time.March, 14, 9, 30, 0, 0, time.UTC)),
	})
	if err != nil {
		t.Fatalf("NewBuilder returned error: %v", err)
	}
	return builder
}

func baseOrder() domain.Order {
	sale := int64(80000)
	return domain.Order{
		ID:     "order-1",
		UserID: "user-1",
		Email:  "asha@example.com",
		Items: []domain.LineItem{
			{ProductID: "prod-1", Name: "Steel Bottle", UnitPrice: 100000, SalePrice: &sale, Quantity: 2},
		},
		Address: domain.Address{
			FirstName:  "Asha",
			LastName:   "Nair",
			Street:     "12 Marine Drive",
			City:       "Kochi",
			State:      "Kerala",
			Country:    "India",
			PostalCode: "682 001",
			Phone:      "+91-98765-43210",
		},
		PaymentMethod: domain.PaymentMethodOnline,
		CreatedAt:     time.Date(2026, time.March, 10, 14, 45, 12, 0, time.UTC),
	}
}

func TestBuildRequestNormalizesOrderFields(t *testing.T) {
	builder := testBuilder(t, &stubStockReader{})

	request, warnings, err := builder.BuildRequest(context.Background(), baseOrder())
	if err != nil {
		t.Fatalf("BuildRequest returned error: %v", err)
	}
	if len(warnings) != 0 {
		t.Fatalf("expected no warnings, got %v", warnings)
	}

	if request.BillingPhone != "9876543210" {
		t.Fatalf("expected phone 9876543210, got %q", request.BillingPhone)
	}
	if request.BillingPincode != "682001" {
		t.Fatalf("expected pincode 682001, got %q", request.BillingPincode)
	}
	if request.BillingEmail != "asha@example.com" {
		t.Fatalf("unexpected email %q", request.BillingEmail)
	}
	if request.OrderDate != "2026-03-10 14:45:12" {
		t.Fatalf("unexpected order date %q", request.OrderDate)
	}
	if request.PaymentMethod != PaymentTypePrepaid {
		t.Fatalf("expected Prepaid, got %q", request.PaymentMethod)
	}
	if request.PickupLocation != "Primary" {
		t.Fatalf("unexpected pickup location %q", request.PickupLocation)
	}
}

func TestBuildRequestSubstitutesPlaceholdersWithWarnings(t *testing.T) {
	order := baseOrder()
	order.Address.FirstName = ""
	order.Address.LastName = ""
	order.Address.Name = ""
	order.Address.Phone = "12345"
	order.Address.PostalCode = "abc"
	order.Email = "not-an-email"

	builder := testBuilder(t, &stubStockReader{})

	request, warnings, err := builder.BuildRequest(context.Background(), order)
	if err != nil {
		t.Fatalf("BuildRequest returned error: %v", err)
	}

	if request.BillingCustomerName != "Customer" || request.BillingLastName != "Name" {
		t.Fatalf("expected fallback name, got %q %q", request.BillingCustomerName, request.BillingLastName)
	}
	if request.BillingPhone != "9999999999" {
		t.Fatalf("expected placeholder phone, got %q", request.BillingPhone)
	}
	if request.BillingPincode != "682001" {
		t.Fatalf("expected default pincode, got %q", request.BillingPincode)
	}
	if request.BillingEmail == order.Email {
		t.Fatalf("expected email substitution, got %q", request.BillingEmail)
	}

	fields := make(map[string]bool, len(warnings))
	for _, warning := range warnings {
		fields[warning.Field] = true
	}
	for _, field := range []string{"name", "phone", "postal_code", "email"} {
		if !fields[field] {
			t.Fatalf("expected warning for %s, got %v", field, warnings)
		}
	}
}

func TestBuildRequestUsesAddressNameFallback(t *testing.T) {
	order := baseOrder()
	order.Address.FirstName = ""
	order.Address.LastName = ""
	order.Address.Name = "Ravi Chandran Menon"

	builder := testBuilder(t, &stubStockReader{})

	request, warnings, err := builder.BuildRequest(context.Background(), order)
	if err != nil {
		t.Fatalf("BuildRequest returned error: %v", err)
	}
	if len(warnings) != 0 {
		t.Fatalf("expected no warnings, got %v", warnings)
	}
	if request.BillingCustomerName != "Ravi" {
		t.Fatalf("expected first name Ravi, got %q", request.BillingCustomerName)
	}
	if request.BillingLastName != "Chandran Menon" {
		t.Fatalf("expected remainder as last name, got %q", request.BillingLastName)
	}
}

func TestBuildRequestPricing(t *testing.T) {
	builder := testBuilder(t, &stubStockReader{})

	request, _, err := builder.BuildRequest(context.Background(), baseOrder())
	if err != nil {
		t.Fatalf("BuildRequest returned error: %v", err)
	}

	if len(request.OrderItems) != 1 {
		t.Fatalf("expected one order item, got %d", len(request.OrderItems))
	}
	item := request.OrderItems[0]
	if item.SellingPrice != 800 {
		t.Fatalf("expected selling price 800, got %v", item.SellingPrice)
	}
	if item.Discount != 200 {
		t.Fatalf("expected discount 200, got %v", item.Discount)
	}
	if request.SubTotal != 1600 {
		t.Fatalf("expected sub total 1600, got %v", request.SubTotal)
	}
}

func TestBuildRequestRejectsNonPositiveSellingPrice(t *testing.T) {
	order := baseOrder()
	order.Items[0].UnitPrice = 0
	order.Items[0].SalePrice = nil

	builder := testBuilder(t, &stubStockReader{})

	if _, _, err := builder.BuildRequest(context.Background(), order); !errors.Is(err, ErrBuilderInvalidOrder) {
		t.Fatalf("expected ErrBuilderInvalidOrder, got %v", err)
	}
}

func TestParseDimensions(t *testing.T) {
	cases := []struct {
		name  string
		input string
		want  Dimensions
	}{
		{
			name:  "labeled form",
			input: "H 29 x W 20 x D 21",
			want:  Dimensions{Length: 21, Breadth: 20, Height: 29},
		},
		{
			name:  "bare triple",
			input: "120 x 80 x 75",
			want:  Dimensions{Length: 120, Breadth: 80, Height: 75},
		},
		{
			name:  "labeled with missing axes",
			input: "H 29",
			want:  Dimensions{Length: 10, Breadth: 10, Height: 29},
		},
		{
			name:  "empty",
			input: "",
			want:  Dimensions{Length: 10, Breadth: 10, Height: 10},
		},
		{
			name:  "unparseable",
			input: "roughly a shoebox",
			want:  Dimensions{Length: 10, Breadth: 10, Height: 10},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ParseDimensions(tc.input); got != tc.want {
				t.Fatalf("ParseDimensions(%q) = %+v, want %+v", tc.input, got, tc.want)
			}
		})
	}
}

func TestTruncateCutsOnRuneBoundaries(t *testing.T) {
	cases := []struct {
		name  string
		input string
		max   int
		want  string
	}{
		{name: "short value untouched", input: "Asha", max: 50, want: "Asha"},
		{name: "ascii cut", input: "abcdef", max: 3, want: "abc"},
		{name: "devanagari cut", input: strings.Repeat("अ", 60), max: 50, want: strings.Repeat("अ", 50)},
		{name: "multibyte under limit", input: strings.Repeat("अ", 30), max: 50, want: strings.Repeat("अ", 30)},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := truncate(tc.input, tc.max)
			if got != tc.want {
				t.Fatalf("truncate(%q, %d) = %q, want %q", tc.input, tc.max, got, tc.want)
			}
			if !utf8.ValidString(got) {
				t.Fatalf("truncate returned invalid UTF-8: %q", got)
			}
		})
	}
}

func TestBuildRequestPackageEstimate(t *testing.T) {
	stock := &stubStockReader{
		getFn: func(_ context.Context, productID string) (domain.StockRecord, error) {
			return domain.StockRecord{
				ProductID:       productID,
				Dimensions:      "120 x 80 x 75",
				WeightGrams:     400,
				DeadWeightGrams: 700,
			}, nil
		},
	}
	builder := testBuilder(t, stock)

	order := baseOrder()
	order.Items[0].Quantity = 1

	request, _, err := builder.BuildRequest(context.Background(), order)
	if err != nil {
		t.Fatalf("BuildRequest returned error: %v", err)
	}

	side := math.Cbrt(120 * 80 * 75)
	approx := func(got, want float64) {
		t.Helper()
		if math.Abs(got-want) > 0.001 {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
	approx(request.Length, side*1.2)
	approx(request.Breadth, side)
	approx(request.Height, side*0.8)
	approx(request.Weight, 0.7)
}

func TestBuildRequestPackageFloorsAndWeightDefault(t *testing.T) {
	builder := testBuilder(t, &stubStockReader{})

	order := baseOrder()
	order.Items[0].Quantity = 1

	request, _, err := builder.BuildRequest(context.Background(), order)
	if err != nil {
		t.Fatalf("BuildRequest returned error: %v", err)
	}

	// Default 10cm cube: cube root of 1000 is 10, so the shorter axes hit
	// the 10cm floor.
	if request.Length != 12 {
		t.Fatalf("expected length 12, got %v", request.Length)
	}
	if request.Breadth != 10 || request.Height != 10 {
		t.Fatalf("expected floored breadth/height of 10, got %v %v", request.Breadth, request.Height)
	}
	if request.Weight != 0.5 {
		t.Fatalf("expected default weight 0.5, got %v", request.Weight)
	}
}

func TestBuildRequestWarnsWhenProductMetadataUnavailable(t *testing.T) {
	stock := &stubStockReader{
		getFn: func(context.Context, string) (domain.StockRecord, error) {
			return domain.StockRecord{}, errors.New("firestore unavailable")
		},
	}
	builder := testBuilder(t, stock)

	_, warnings, err := builder.BuildRequest(context.Background(), baseOrder())
	if err != nil {
		t.Fatalf("BuildRequest returned error: %v", err)
	}

	found := false
	for _, warning := range warnings {
		if warning.Field == "dimensions" && strings.Contains(warning.Reason, "unavailable") {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected dimensions warning, got %v", warnings)
	}
}
