package types

type OrderSide string

type OrderStatus string

type RequestStatus string

type AccountKind string

type LedgerEntryType string

type InstrumentKind string

const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"
)

const (
	OrderStatusPending     OrderStatus = "pending"
	OrderStatusOpen        OrderStatus = "open"
	OrderStatusPendingSell OrderStatus = "pending_sell"
	OrderStatusClosed      OrderStatus = "closed"
	OrderStatusRejected    OrderStatus = "rejected"
	OrderStatusCanceled    OrderStatus = "canceled"
)

const (
	RequestStatusPending  RequestStatus = "pending"
	RequestStatusApproved RequestStatus = "approved"
	RequestStatusRejected RequestStatus = "rejected"
	RequestStatusRepaid   RequestStatus = "repaid"
)

const (
	AccountKindAvailable AccountKind = "available"
	AccountKindReserved  AccountKind = "reserved"
)

const (
	LedgerEntryTypeDeposit  LedgerEntryType = "deposit"
	LedgerEntryTypeWithdraw LedgerEntryType = "withdraw"
	LedgerEntryTypeReserve  LedgerEntryType = "reserve"
	LedgerEntryTypeRelease  LedgerEntryType = "release"
	LedgerEntryTypeTrade    LedgerEntryType = "trade"
	LedgerEntryTypeSettle   LedgerEntryType = "settle"
	LedgerEntryTypeLoan     LedgerEntryType = "loan"
	LedgerEntryTypeRepay    LedgerEntryType = "repay"
	LedgerEntryTypeInterest LedgerEntryType = "interest"
)

const (
	InstrumentKindForex  InstrumentKind = "forex"
	InstrumentKindCrypto InstrumentKind = "crypto"
)

// orderTransitions lists every legal order status move. Terminal states have no entry.
var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:     {OrderStatusOpen, OrderStatusRejected, OrderStatusCanceled},
	OrderStatusOpen:        {OrderStatusPendingSell},
	OrderStatusPendingSell: {OrderStatusClosed, OrderStatusOpen},
}

func CanTransition(from, to OrderStatus) bool {
	for _, next := range orderTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

func (s OrderStatus) Terminal() bool {
	return len(orderTransitions[s]) == 0
}

func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPending, OrderStatusOpen, OrderStatusPendingSell, OrderStatusClosed, OrderStatusRejected, OrderStatusCanceled:
		return true
	}
	return false
}

func (s OrderSide) Valid() bool {
	return s == OrderSideBuy || s == OrderSideSell
}

func (s RequestStatus) Valid() bool {
	switch s {
	case RequestStatusPending, RequestStatusApproved, RequestStatusRejected, RequestStatusRepaid:
		return true
	}
	return false
}
