package credits

import (
	"time"

	"github.com/google/uuid"

	"github.com/artboard/server/internal/utils/pagination"
)

// AccountResponse is the credit summary returned to the owner. The provider
// key itself is never returned.
type AccountResponse struct {
	Plan             Plan       `json:"plan"`
	Balance          int        `json:"balance"`
	CreditsPeriodEnd *time.Time `json:"credits_period_end,omitempty"`
	HasProviderKey   bool       `json:"has_provider_key"`
	Eligible         bool       `json:"eligible"`
}

// ToResponse converts an account to its API form.
func (a *Account) ToResponse() *AccountResponse {
	return &AccountResponse{
		Plan:             a.Plan,
		Balance:          a.Credits,
		CreditsPeriodEnd: a.CreditsPeriodEnd,
		HasProviderKey:   a.HasProviderCredential(),
		Eligible:         a.Plan == PlanSubscribed && a.Credits > 0,
	}
}

// SetProviderKeyRequest stores a self-supplied provider key.
type SetProviderKeyRequest struct {
	Key string `json:"key" binding:"required,min=8,max=512"`
}

// EntryResponse is one audit row.
type EntryResponse struct {
	ID        uuid.UUID `json:"id"`
	Kind      EntryKind `json:"kind"`
	Amount    int       `json:"amount"`
	Reference string    `json:"reference,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// ListEntriesResponse is a page of audit rows.
type ListEntriesResponse struct {
	Entries    []*EntryResponse    `json:"entries"`
	Pagination pagination.PageInfo `json:"pagination"`
}

// ToResponse converts an entry to its API form.
func (e *Entry) ToResponse() *EntryResponse {
	resp := &EntryResponse{
		ID:        e.ID,
		Kind:      e.Kind,
		Amount:    e.Amount,
		CreatedAt: e.CreatedAt,
	}
	if e.Reference != nil {
		resp.Reference = *e.Reference
	}
	return resp
}
