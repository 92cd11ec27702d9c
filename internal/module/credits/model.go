package credits

import (
	"time"

	"github.com/google/uuid"
)

// Plan is the spending plan of an account.
type Plan string

const (
	PlanFree       Plan = "free"
	PlanSubscribed Plan = "subscribed"
)

// Account is the credit view over a user record.
type Account struct {
	ID                    uuid.UUID  `gorm:"type:uuid;primaryKey"`
	Email                 string     `gorm:"not null"`
	Plan                  Plan       `gorm:"not null;default:free"`
	Credits               int        `gorm:"not null;default:0"`
	CreditsPeriodEnd      *time.Time `gorm:"column:credits_period_end"`
	BillingCustomerID     *string    `gorm:"column:billing_customer_id"`
	ProviderKeyCiphertext []byte     `gorm:"column:provider_key_ciphertext"`
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// TableName returns the database table name.
func (Account) TableName() string {
	return "users"
}

// HasProviderCredential reports whether a self-supplied provider key is stored.
func (a *Account) HasProviderCredential() bool {
	return len(a.ProviderKeyCiphertext) > 0
}

// PeriodActive reports whether the stored credit period is still running at now.
func (a *Account) PeriodActive(now time.Time) bool {
	return a.CreditsPeriodEnd != nil && now.Before(*a.CreditsPeriodEnd)
}

// EntryKind classifies a ledger audit row.
type EntryKind string

const (
	EntryDebit  EntryKind = "debit"
	EntryRefund EntryKind = "refund"
	EntryGrant  EntryKind = "grant"
	EntryReset  EntryKind = "reset"
	EntryDemote EntryKind = "demote"
)

// Entry is one audit row per balance mutation. Amount is the signed delta for
// debit, refund and grant; for reset and demote it is the balance that was set.
type Entry struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	UserID    uuid.UUID `gorm:"type:uuid;not null;index"`
	Kind      EntryKind `gorm:"not null"`
	Amount    int       `gorm:"not null"`
	Reference *string
	CreatedAt time.Time
}

// TableName returns the database table name.
func (Entry) TableName() string {
	return "credit_entries"
}

// Eligibility is the outcome of a spend check.
type Eligibility struct {
	Eligible              bool
	Balance               int
	Plan                  Plan
	HasProviderCredential bool
}
