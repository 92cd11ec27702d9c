package credits

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/artboard/server/internal/utils/middleware"
)

func setupRouter(l *Ledger, userID uuid.UUID) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	api := r.Group("/api/v1")
	api.Use(func(c *gin.Context) {
		if userID != uuid.Nil {
			c.Set(middleware.UserIDKey, userID)
		}
		c.Next()
	})
	NewHandler(l).RegisterProtectedRoutes(api)
	return r
}

func TestHandler_GetAccount(t *testing.T) {
	account := subscribedAccount(9, testNow.Add(48*time.Hour), "cus_1")
	l, _ := newTestLedger(newMemoryRepo(account), &fakeBilling{}, nil)
	r := setupRouter(l, account.ID)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/credits", nil))

	require.Equal(t, http.StatusOK, w.Code)
	var resp AccountResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, PlanSubscribed, resp.Plan)
	assert.Equal(t, 9, resp.Balance)
	assert.True(t, resp.Eligible)
	assert.False(t, resp.HasProviderKey)
}

func TestHandler_Unauthorized(t *testing.T) {
	l, _ := newTestLedger(newMemoryRepo(), &fakeBilling{}, nil)
	r := setupRouter(l, uuid.Nil)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/credits", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestHandler_BillingUnavailable(t *testing.T) {
	account := subscribedAccount(9, testNow.Add(-time.Hour), "cus_1")
	l, _ := newTestLedger(newMemoryRepo(account), &fakeBilling{err: assert.AnError}, nil)
	r := setupRouter(l, account.ID)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/credits/sync", nil))

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "BILLING_UNAVAILABLE")
}

func TestHandler_ProviderKey(t *testing.T) {
	sealer, err := NewSealer(make([]byte, 32))
	require.NoError(t, err)
	account := &Account{ID: uuid.New(), Plan: PlanFree}
	l, _ := newTestLedger(newMemoryRepo(account), &fakeBilling{}, sealer)
	r := setupRouter(l, account.ID)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPut, "/api/v1/credits/provider-key", strings.NewReader(`{"key":"r8_0123456789"}`))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusNoContent, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/credits", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"has_provider_key":true`)
	assert.NotContains(t, w.Body.String(), "r8_0123456789")

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/api/v1/credits/provider-key", nil))
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPut, "/api/v1/credits/provider-key", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandler_ListEntries(t *testing.T) {
	account := subscribedAccount(3, testNow.Add(time.Hour), "cus_1")
	l, _ := newTestLedger(newMemoryRepo(account), &fakeBilling{}, nil)
	r := setupRouter(l, account.ID)

	for i := 0; i < 3; i++ {
		require.NoError(t, l.Debit(t.Context(), account.ID, uuid.NewString()))
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/credits/entries?page=1&page_size=2", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var resp ListEntriesResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Len(t, resp.Entries, 2)
	assert.EqualValues(t, 3, resp.Pagination.Total)
	assert.Equal(t, 2, resp.Pagination.TotalPages)
	assert.Equal(t, EntryDebit, resp.Entries[0].Kind)
	assert.Equal(t, -1, resp.Entries[0].Amount)
}
