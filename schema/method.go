package schema

// Channel method names, app to native. The naming follows the native bridge
// convention of Component#operation on the flutter.memspace.io/iap channel.
const (
	MethodProductsQuery          = "Products#query"
	MethodReceiptRead            = "Receipt#read"
	MethodReceiptRefresh         = "Receipt#refresh"
	MethodQueueCanMakePayments   = "PaymentQueue#canMakePayments"
	MethodQueueAddPayment        = "PaymentQueue#addPayment"
	MethodQueueFinishTransaction = "PaymentQueue#finishTransaction"
	MethodQueueRestore           = "PaymentQueue#restoreCompletedTransactions"
	MethodQueueEnableObserver    = "PaymentQueue#enableObserver"
	MethodQueueDisableObserver   = "PaymentQueue#disableObserver"

	MethodClientStartConnection    = "BillingClient#startConnection"
	MethodClientEndConnection      = "BillingClient#endConnection"
	MethodClientIsReady            = "BillingClient#isReady"
	MethodClientIsFeatureSupported = "BillingClient#isFeatureSupported"
	MethodClientConsume            = "BillingClient#consume"
	MethodClientQueryPurchases     = "BillingClient#queryPurchases"
	MethodClientQueryHistory       = "BillingClient#queryPurchaseHistory"
	MethodClientQuerySkuDetails    = "BillingClient#querySkuDetails"
	MethodClientLaunchBillingFlow  = "BillingClient#launchBillingFlow"
	MethodClientLaunchPriceChange  = "BillingClient#launchPriceChangeConfirmationFlow"
	MethodClientLoadRewardedSku    = "BillingClient#loadRewardedSku"
	MethodClientSetChildDirected   = "BillingClient#setChildDirected"
)

// Channel event names, native to app. EventStorePaymentReceived is the only
// request/reply event; the remaining ones arrive as notifications.
const (
	EventTransactionsUpdated  = "PaymentQueue#transactionsUpdated"
	EventTransactionsRemoved  = "PaymentQueue#transactionsRemoved"
	EventRestoreFailed        = "PaymentQueue#restoreFailed"
	EventRestoreFinished      = "PaymentQueue#restoreFinished"
	EventStorePaymentReceived = "PaymentQueue#storePaymentReceived"

	EventPurchasesUpdated   = "BillingClient#purchasesUpdated"
	EventClientDisconnected = "BillingClient#disconnected"
)
