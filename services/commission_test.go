package services

import (
	"testing"

	"github.com/shopspring/decimal"

	"luxe-escrow-server/models"
)

func TestCommissionRate(t *testing.T) {
	tests := []struct {
		serviceType string
		want        string
	}{
		{"taxi", "0.1"},
		{"luxury-car", "0.12"},
		{"auto", "0.12"},
		{"limousine", "0.12"},
		{"adventure", "0.15"},
		{"  Adventure ", "0.15"},
		{"LIMOUSINE", "0.12"},
		{"yacht", "0.1"},
		{"", "0.1"},
	}

	for _, tt := range tests {
		t.Run(tt.serviceType, func(t *testing.T) {
			got := CommissionRate(tt.serviceType)
			if !got.Equal(decimal.RequireFromString(tt.want)) {
				t.Errorf("CommissionRate(%q) = %s, want %s", tt.serviceType, got, tt.want)
			}
		})
	}
}

func TestCalculateCommission(t *testing.T) {
	tests := []struct {
		name        string
		total       string
		serviceType string
		wantFee     string
		wantPartner string
		wantCents   int64
	}{
		{"taxi round number", "100", "taxi", "10.00", "90.00", 9000},
		{"adventure", "500", "adventure", "75.00", "425.00", 42500},
		{"limousine with cents", "249.99", "limousine", "30.00", "219.99", 21999},
		{"half cent rounds away from zero", "0.05", "taxi", "0.01", "0.04", 4},
		{"unknown type uses default", "33.33", "helicopter", "3.33", "30.00", 3000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := CalculateCommission(decimal.RequireFromString(tt.total), tt.serviceType)
			if !c.Amount.Equal(decimal.RequireFromString(tt.wantFee)) {
				t.Errorf("Amount = %s, want %s", c.Amount, tt.wantFee)
			}
			if !c.PartnerEarnings.Equal(decimal.RequireFromString(tt.wantPartner)) {
				t.Errorf("PartnerEarnings = %s, want %s", c.PartnerEarnings, tt.wantPartner)
			}
			if !c.Amount.Add(c.PartnerEarnings).Equal(c.Total) {
				t.Errorf("split %s + %s does not add up to %s", c.Amount, c.PartnerEarnings, c.Total)
			}
			if got := c.TransferCents(); got != tt.wantCents {
				t.Errorf("TransferCents = %d, want %d", got, tt.wantCents)
			}
		})
	}
}

func TestBookingCommissionUsesStoredSplit(t *testing.T) {
	b := &models.PartnerBooking{
		TotalAmount:      decimal.RequireFromString("500"),
		CommissionRate:   decimal.RequireFromString("0.15"),
		CommissionAmount: decimal.RequireFromString("75"),
		PartnerEarnings:  decimal.RequireFromString("425"),
	}
	c := bookingCommission(b)
	if !c.Total.Equal(b.TotalAmount) || !c.Amount.Equal(b.CommissionAmount) {
		t.Errorf("split = %+v", c)
	}
	if got := c.TransferCents(); got != 42500 {
		t.Errorf("TransferCents = %d, want 42500", got)
	}
}
