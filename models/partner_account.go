package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// PartnerStripeAccount holds the connected account a partner is paid out to,
// with capability flags mirrored from the payment gateway on every sync.
type PartnerStripeAccount struct {
	ID               string                      `json:"id" gorm:"type:uuid;primaryKey"`
	PartnerID        string                      `json:"partner_id" gorm:"type:uuid;uniqueIndex;not null"`
	StripeAccountID  string                      `json:"stripe_account_id" gorm:"type:varchar(255);uniqueIndex;not null"`
	Email            string                      `json:"email" gorm:"size:255"`
	Country          string                      `json:"country" gorm:"type:varchar(2)"`
	BusinessType     string                      `json:"business_type" gorm:"type:varchar(30)"`
	ChargesEnabled   bool                        `json:"charges_enabled" gorm:"default:false"`
	PayoutsEnabled   bool                        `json:"payouts_enabled" gorm:"default:false"`
	DetailsSubmitted bool                        `json:"details_submitted" gorm:"default:false"`
	RequirementsDue  datatypes.JSONSlice[string] `json:"requirements_due"`
	LastSyncedAt     *time.Time                  `json:"last_synced_at"`
	CreatedAt        time.Time                   `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt        time.Time                   `json:"updated_at" gorm:"autoUpdateTime"`
}

// TableName specifies the table name for the PartnerStripeAccount model
func (PartnerStripeAccount) TableName() string {
	return "partner_stripe_accounts"
}

func (a *PartnerStripeAccount) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	return nil
}

// OnboardingComplete reports whether the partner can both take payments and receive payouts.
func (a *PartnerStripeAccount) OnboardingComplete() bool {
	return a.DetailsSubmitted && a.ChargesEnabled && a.PayoutsEnabled
}

type DocumentStatus string

const (
	DocumentStatusSubmitted DocumentStatus = "submitted"
	DocumentStatusApproved  DocumentStatus = "approved"
	DocumentStatusRejected  DocumentStatus = "rejected"
)

// PartnerDocument is a verification document (licence, insurance, registration) uploaded by a partner.
type PartnerDocument struct {
	ID           string         `json:"id" gorm:"type:uuid;primaryKey"`
	PartnerID    string         `json:"partner_id" gorm:"type:uuid;not null;index"`
	DocumentType string         `json:"document_type" gorm:"type:varchar(50);not null"`
	URL          string         `json:"url" gorm:"type:varchar(500);not null"`
	PublicID     string         `json:"public_id" gorm:"type:varchar(255)"`
	Status       DocumentStatus `json:"status" gorm:"type:varchar(20);not null;default:'submitted'"`
	CreatedAt    time.Time      `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt    time.Time      `json:"updated_at" gorm:"autoUpdateTime"`
}

// TableName specifies the table name for the PartnerDocument model
func (PartnerDocument) TableName() string {
	return "partner_documents"
}

func (d *PartnerDocument) BeforeCreate(tx *gorm.DB) error {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	if d.Status == "" {
		d.Status = DocumentStatusSubmitted
	}
	return nil
}
