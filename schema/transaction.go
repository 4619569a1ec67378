package schema

// TransactionState represents one payment queue transaction lifecycle state.
type TransactionState int

const (
	TransactionPurchasing TransactionState = iota
	TransactionPurchased
	TransactionFailed
	TransactionRestored
	TransactionDeferred
)

// Terminal reports whether the state admits no further updates for the same
// native transaction. Deferred is not terminal: a later notification for the
// same handle supersedes it.
func (s TransactionState) Terminal() bool {
	switch s {
	case TransactionPurchased, TransactionFailed, TransactionRestored:
		return true
	}
	return false
}

func (s TransactionState) String() string {
	switch s {
	case TransactionPurchasing:
		return "purchasing"
	case TransactionPurchased:
		return "purchased"
	case TransactionFailed:
		return "failed"
	case TransactionRestored:
		return "restored"
	case TransactionDeferred:
		return "deferred"
	}
	return "unknown"
}

// SKErrorPaymentCancelled is the StoreKit error code reported when the user
// declined the purchase dialog.
const SKErrorPaymentCancelled = 2

// TransactionError describes a failed transaction.
type TransactionError struct {
	Code    int    `json:"code"`
	Domain  string `json:"domain,omitempty"`
	Message string `json:"message,omitempty"`
}

// Cancelled reports whether the error represents a user declined purchase.
func (e *TransactionError) Cancelled() bool {
	return e != nil && e.Code == SKErrorPaymentCancelled
}

func (e *TransactionError) Error() string {
	return e.Message
}

// Transaction represents one purchase lifecycle record reported by the native
// payment queue. Handle identifies the native transaction object for a later
// finish request; it is assigned native side and never reused.
type Transaction struct {
	Handle                uint64            `json:"handle"`
	State                 TransactionState  `json:"transactionState"`
	Payment               *Payment          `json:"payment,omitempty"`
	TransactionIdentifier string            `json:"transactionIdentifier,omitempty"`
	TransactionDate       int64             `json:"transactionDate,omitempty"`
	Original              *Transaction      `json:"original,omitempty"`
	Error                 *TransactionError `json:"error,omitempty"`
}

// FinishTransactionParams holds the PaymentQueue#finishTransaction payload.
type FinishTransactionParams struct {
	Handle uint64 `json:"handle"`
}

// TransactionsRemovedParams holds the PaymentQueue#transactionsRemoved payload.
type TransactionsRemovedParams struct {
	Transactions []*Transaction `json:"transactions"`
}
