package depositmethods

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookup(t *testing.T) {
	m, err := Lookup(" PayPal ")
	require.NoError(t, err)
	assert.Equal(t, "paypal", m.ID)
	_, err = Lookup("wire_fraud")
	assert.ErrorIs(t, err, ErrUnknownMethod)
	assert.Equal(t, "Bank transfer", TitleByID("bank_transfer"))
	assert.Equal(t, "GIFT CARD", TitleByID("gift_card"))
}

func TestNormalizeAndValidateDetails(t *testing.T) {
	card, err := NormalizeAndValidateDetails("visa", "4111 1111 1111 1111")
	require.NoError(t, err)
	assert.Equal(t, "4111111111111111", card)

	_, err = NormalizeAndValidateDetails("visa", "4111 1111 1111 1112")
	assert.ErrorIs(t, err, ErrInvalidDetails)

	iban, err := NormalizeAndValidateDetails("bank_transfer", "de89 3704 0044 0532 0130 00")
	require.NoError(t, err)
	assert.Equal(t, "DE89370400440532013000", iban)

	email, err := NormalizeAndValidateDetails("paypal", "Trader@Example.com")
	require.NoError(t, err)
	assert.Equal(t, "trader@example.com", email)

	_, err = NormalizeAndValidateDetails("paypal", "not-an-email")
	assert.ErrorIs(t, err, ErrInvalidDetails)

	_, err = NormalizeAndValidateDetails("usdt", "TXYZ1234567890abcdefghijkLMNOP")
	assert.NoError(t, err)

	_, err = NormalizeAndValidateDetails("cash_desk", "anything")
	assert.ErrorIs(t, err, ErrNoWithdrawals)

	_, err = NormalizeAndValidateDetails("btc", "   ")
	assert.Error(t, err)
}

func TestMaskPayoutDetails(t *testing.T) {
	assert.Equal(t, "**** **** **** 1111", MaskPayoutDetails("visa", "4111111111111111"))
	assert.Equal(t, "t***@example.com", MaskPayoutDetails("paypal", "trader@example.com"))
	assert.Equal(t, "DE89****3000", MaskPayoutDetails("bank_transfer", "DE89370400440532013000"))
	assert.Equal(t, "TXYZ12...MNOP", MaskPayoutDetails("usdt", "TXYZ1234567890abcdefghijkLMNOP"))
	assert.Equal(t, "", MaskPayoutDetails("visa", " "))
}
