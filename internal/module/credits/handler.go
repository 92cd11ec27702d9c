package credits

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/artboard/server/internal/shared/response"
	"github.com/artboard/server/internal/utils/middleware"
	"github.com/artboard/server/internal/utils/pagination"
)

// Handler handles HTTP requests for the credit ledger.
type Handler struct {
	ledger *Ledger
}

// NewHandler creates a new credits handler.
func NewHandler(ledger *Ledger) *Handler {
	return &Handler{ledger: ledger}
}

// RegisterProtectedRoutes registers credit routes that require authentication.
func (h *Handler) RegisterProtectedRoutes(r *gin.RouterGroup) {
	credits := r.Group("/credits")
	{
		credits.GET("", h.GetAccount)
		credits.GET("/entries", h.ListEntries)
		credits.POST("/sync", h.Sync)
		credits.PUT("/provider-key", h.SetProviderKey)
		credits.DELETE("/provider-key", h.ClearProviderKey)
	}
}

// ErrorMappings maps ledger errors to responses.
var ErrorMappings = []response.ErrorMapping{
	{Err: ErrAccountNotFound, Status: http.StatusNotFound, Code: "ACCOUNT_NOT_FOUND"},
	{Err: ErrInsufficientCredits, Status: http.StatusPaymentRequired, Code: "INSUFFICIENT_CREDITS"},
	{Err: ErrBillingUnavailable, Status: http.StatusServiceUnavailable, Code: "BILLING_UNAVAILABLE"},
	{Err: ErrCredentialsDisabled, Status: http.StatusNotImplemented, Code: "PROVIDER_KEYS_DISABLED"},
	{Err: ErrInvalidCredential, Status: http.StatusBadRequest, Code: "INVALID_PROVIDER_KEY"},
	{Err: ErrInvalidAmount, Status: http.StatusBadRequest, Code: "INVALID_AMOUNT"},
}

// GetAccount returns the caller's credit account, reconciling if due.
//
//	@Summary		Get credit account
//	@Description	Returns plan, balance and period end. Reconciles with billing when the period has elapsed.
//	@Tags			Credits
//	@Produce		json
//	@Security		BearerAuth
//	@Success		200	{object}	AccountResponse
//	@Failure		401	{object}	map[string]interface{}
//	@Failure		503	{object}	map[string]interface{}
//	@Router			/credits [get]
func (h *Handler) GetAccount(c *gin.Context) {
	userID := middleware.GetUserID(c)
	if userID == uuid.Nil {
		response.Unauthorized(c, "")
		return
	}

	if _, err := h.ledger.CheckSpendEligibility(c.Request.Context(), userID); err != nil {
		response.HandleErrorWithDefault(c, err, ErrorMappings)
		return
	}
	account, err := h.ledger.Account(c.Request.Context(), userID)
	if err != nil {
		response.HandleErrorWithDefault(c, err, ErrorMappings)
		return
	}

	c.JSON(http.StatusOK, account.ToResponse())
}

// ListEntries returns the caller's ledger audit trail.
//
//	@Summary		List credit entries
//	@Tags			Credits
//	@Produce		json
//	@Security		BearerAuth
//	@Param			page		query		int	false	"Page"
//	@Param			page_size	query		int	false	"Page size"
//	@Success		200			{object}	ListEntriesResponse
//	@Router			/credits/entries [get]
func (h *Handler) ListEntries(c *gin.Context) {
	userID := middleware.GetUserID(c)
	if userID == uuid.Nil {
		response.Unauthorized(c, "")
		return
	}

	page := pagination.New()
	if err := c.ShouldBindQuery(page); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	entries, total, err := h.ledger.Entries(c.Request.Context(), userID, page.Limit(), page.Offset())
	if err != nil {
		response.HandleErrorWithDefault(c, err, ErrorMappings)
		return
	}

	out := make([]*EntryResponse, len(entries))
	for i, e := range entries {
		out[i] = e.ToResponse()
	}
	c.JSON(http.StatusOK, ListEntriesResponse{Entries: out, Pagination: page.Info(total)})
}

// Sync pulls the subscription state from billing, e.g. after checkout.
//
//	@Summary		Sync subscription
//	@Tags			Credits
//	@Produce		json
//	@Security		BearerAuth
//	@Success		200	{object}	AccountResponse
//	@Failure		503	{object}	map[string]interface{}
//	@Router			/credits/sync [post]
func (h *Handler) Sync(c *gin.Context) {
	userID := middleware.GetUserID(c)
	if userID == uuid.Nil {
		response.Unauthorized(c, "")
		return
	}

	account, err := h.ledger.Sync(c.Request.Context(), userID)
	if err != nil {
		response.HandleErrorWithDefault(c, err, ErrorMappings)
		return
	}
	c.JSON(http.StatusOK, account.ToResponse())
}

// SetProviderKey stores the caller's own provider key.
//
//	@Summary		Set own provider key
//	@Tags			Credits
//	@Accept			json
//	@Security		BearerAuth
//	@Param			request	body	SetProviderKeyRequest	true	"Provider key"
//	@Success		204
//	@Failure		400	{object}	map[string]interface{}
//	@Router			/credits/provider-key [put]
func (h *Handler) SetProviderKey(c *gin.Context) {
	userID := middleware.GetUserID(c)
	if userID == uuid.Nil {
		response.Unauthorized(c, "")
		return
	}

	var req SetProviderKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	if err := h.ledger.SetProviderCredential(c.Request.Context(), userID, req.Key); err != nil {
		response.HandleErrorWithDefault(c, err, ErrorMappings)
		return
	}
	c.Status(http.StatusNoContent)
}

// ClearProviderKey removes the caller's own provider key.
//
//	@Summary		Remove own provider key
//	@Tags			Credits
//	@Security		BearerAuth
//	@Success		204
//	@Router			/credits/provider-key [delete]
func (h *Handler) ClearProviderKey(c *gin.Context) {
	userID := middleware.GetUserID(c)
	if userID == uuid.Nil {
		response.Unauthorized(c, "")
		return
	}

	if err := h.ledger.ClearProviderCredential(c.Request.Context(), userID); err != nil {
		response.HandleErrorWithDefault(c, err, ErrorMappings)
		return
	}
	c.Status(http.StatusNoContent)
}
