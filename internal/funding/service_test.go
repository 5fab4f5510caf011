package funding

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"tradesim/internal/apperr"
	"tradesim/internal/ledger"
	"tradesim/internal/types"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestValidateAmount(t *testing.T) {
	s := &Service{maxAmount: decimal.NewFromInt(1000)}
	assert.NoError(t, s.validateAmount(decimal.RequireFromString("999.99")))
	assert.ErrorIs(t, s.validateAmount(decimal.Zero), ledger.ErrNonPositiveAmount)
	assert.ErrorIs(t, s.validateAmount(decimal.NewFromInt(-5)), ledger.ErrNonPositiveAmount)
	assert.ErrorIs(t, s.validateAmount(decimal.NewFromInt(1001)), ErrAmountTooLarge)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(s.validateAmount(decimal.RequireFromString("1.123456789"))))
}

func TestFilterWhere(t *testing.T) {
	clause, args := Filter{}.where()
	assert.Equal(t, " order by created_at desc limit 100", clause)
	assert.Empty(t, args)

	clause, args = Filter{UserID: "u1", Status: types.RequestStatusPending, Limit: 10}.where()
	assert.Equal(t, " where user_id = $1 and status = $2 order by created_at desc limit 10", clause)
	assert.Equal(t, []any{"u1", "pending"}, args)

	clause, args = Filter{Status: types.RequestStatusApproved, Limit: 10000}.where()
	assert.Equal(t, " where status = $1 order by created_at desc limit 100", clause)
	assert.Equal(t, []any{"approved"}, args)
}

func TestDecisionStatus(t *testing.T) {
	assert.Equal(t, types.RequestStatusApproved, Decision{Approve: true}.status())
	assert.Equal(t, types.RequestStatusRejected, Decision{}.status())
	assert.Equal(t, "rejected", Decision{}.label())
}

func TestErrorKinds(t *testing.T) {
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(ErrNotFound))
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(ErrInvalidState))
}

func TestHandlerRejectsBadInput(t *testing.T) {
	h := NewHandler(nil)
	cases := []struct {
		name string
		call func(w http.ResponseWriter, r *http.Request, userID string)
		body string
	}{
		{"deposit zero", h.RequestDeposit, `{"amount":"0","method":"visa"}`},
		{"deposit garbage", h.RequestDeposit, `{"amount":"ten","method":"visa"}`},
		{"deposit unknown field", h.RequestDeposit, `{"amount":"10","method":"visa","bonus":true}`},
		{"withdrawal negative", h.RequestWithdrawal, `{"amount":"-1","method":"visa","payout_details":"4111111111111111"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			tc.call(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tc.body)), "u1")
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestListRejectsUnknownStatus(t *testing.T) {
	h := NewHandler(nil)
	rec := httptest.NewRecorder()
	h.ListDeposits(rec, httptest.NewRequest(http.MethodGet, "/?status=done", nil), "u1")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
