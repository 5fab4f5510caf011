package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanTransition(t *testing.T) {
	allowed := []struct{ from, to OrderStatus }{
		{OrderStatusPending, OrderStatusOpen},
		{OrderStatusPending, OrderStatusRejected},
		{OrderStatusPending, OrderStatusCanceled},
		{OrderStatusOpen, OrderStatusPendingSell},
		{OrderStatusPendingSell, OrderStatusClosed},
		{OrderStatusPendingSell, OrderStatusOpen},
	}
	for _, tc := range allowed {
		assert.True(t, CanTransition(tc.from, tc.to), "%s -> %s", tc.from, tc.to)
	}

	denied := []struct{ from, to OrderStatus }{
		{OrderStatusPending, OrderStatusClosed},
		{OrderStatusPending, OrderStatusPendingSell},
		{OrderStatusOpen, OrderStatusClosed},
		{OrderStatusOpen, OrderStatusCanceled},
		{OrderStatusClosed, OrderStatusOpen},
		{OrderStatusRejected, OrderStatusPending},
		{OrderStatusCanceled, OrderStatusOpen},
	}
	for _, tc := range denied {
		assert.False(t, CanTransition(tc.from, tc.to), "%s -> %s", tc.from, tc.to)
	}
}

func TestTerminalStatuses(t *testing.T) {
	assert.True(t, OrderStatusClosed.Terminal())
	assert.True(t, OrderStatusRejected.Terminal())
	assert.True(t, OrderStatusCanceled.Terminal())
	assert.False(t, OrderStatusPending.Terminal())
	assert.False(t, OrderStatusOpen.Terminal())
	assert.False(t, OrderStatusPendingSell.Terminal())
}

func TestValid(t *testing.T) {
	assert.True(t, OrderSideBuy.Valid())
	assert.False(t, OrderSide("hold").Valid())
	assert.True(t, OrderStatus("pending_sell").Valid())
	assert.False(t, OrderStatus("filled").Valid())
	assert.True(t, RequestStatusRepaid.Valid())
	assert.False(t, RequestStatus("done").Valid())
}
