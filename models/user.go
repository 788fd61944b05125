package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type UserRole string

const (
	RoleCustomer UserRole = "customer"
	RolePartner  UserRole = "partner"
	RoleAdmin    UserRole = "admin"
)

// User mirrors the public users table; ID equals the Supabase auth user id.
type User struct {
	ID                   string    `json:"id" gorm:"type:uuid;primaryKey"`
	Email                string    `json:"email" gorm:"size:255"`
	FullName             string    `json:"full_name" gorm:"size:255"`
	Role                 UserRole  `json:"role" gorm:"type:varchar(20);not null;default:'customer'"`
	StripeAccountID      *string   `json:"stripe_account_id" gorm:"type:varchar(255);index"`
	StripeChargesEnabled bool      `json:"stripe_charges_enabled" gorm:"default:false"`
	StripePayoutsEnabled bool      `json:"stripe_payouts_enabled" gorm:"default:false"`
	CreatedAt            time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt            time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

// TableName specifies the table name for the User model
func (User) TableName() string {
	return "users"
}

// BeforeCreate is a GORM hook that runs before creating a user
func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if u.Role == "" {
		u.Role = RoleCustomer
	}
	return nil
}

// IsValidRole checks if the user role is valid
func (u *User) IsValidRole() bool {
	switch u.Role {
	case RoleCustomer, RolePartner, RoleAdmin:
		return true
	default:
		return false
	}
}

// IsAdmin checks if the user is an admin
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// IsPartner checks if the user is a partner
func (u *User) IsPartner() bool {
	return u.Role == RolePartner
}
