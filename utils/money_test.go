package utils

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
)

func TestToMinorUnits(t *testing.T) {
	cases := []struct {
		in   string
		want int64
	}{
		{"425", 42500},
		{"90.00", 9000},
		{"10.005", 1001},
		{"0.01", 1},
		{"1234.56", 123456},
	}
	for _, tc := range cases {
		got := ToMinorUnits(decimal.RequireFromString(tc.in))
		if got != tc.want {
			t.Errorf("ToMinorUnits(%s) = %d, want %d", tc.in, got, tc.want)
		}
	}
}

func TestFromMinorUnits(t *testing.T) {
	if got := FromMinorUnits(42500); !got.Equal(decimal.NewFromInt(425)) {
		t.Errorf("FromMinorUnits(42500) = %s", got)
	}
}

func TestCurrencyHelpers(t *testing.T) {
	if NormalizeCurrency(" EUR ") != "eur" {
		t.Error("expected eur")
	}
	for _, ok := range []string{"EUR", "usd", "Chf"} {
		if !IsCurrencyCode(ok) {
			t.Errorf("%q should be a currency code", ok)
		}
	}
	for _, bad := range []string{"", "EU", "EURO", "E1R"} {
		if IsCurrencyCode(bad) {
			t.Errorf("%q should not be a currency code", bad)
		}
	}
}

func TestWithinChargeLimit(t *testing.T) {
	cases := []struct {
		in   string
		want bool
	}{
		{"999999.99", true},
		{"1000000", false},
		{"100000000000000000000", false},
	}
	for _, tc := range cases {
		if got := WithinChargeLimit(decimal.RequireFromString(tc.in)); got != tc.want {
			t.Errorf("WithinChargeLimit(%s) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestMoneyMarshalsAsNumber(t *testing.T) {
	raw, err := json.Marshal(struct {
		Amount decimal.Decimal `json:"amount"`
	}{decimal.RequireFromString("75.00")})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(raw) != `{"amount":75}` {
		t.Errorf("got %s", raw)
	}
}
