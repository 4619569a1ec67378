package schema

import "fmt"

// BillingResponse is a Billing Library response code.
type BillingResponse int

const (
	ResponseCodeFeatureNotSupported BillingResponse = -2
	ResponseCodeServiceDisconnected BillingResponse = -1
	ResponseCodeOK                  BillingResponse = 0
	ResponseCodeUserCanceled        BillingResponse = 1
	ResponseCodeServiceUnavailable  BillingResponse = 2
	ResponseCodeBillingUnavailable  BillingResponse = 3
	ResponseCodeItemUnavailable     BillingResponse = 4
	ResponseCodeDeveloperError      BillingResponse = 5
	ResponseCodeError               BillingResponse = 6
	ResponseCodeItemAlreadyOwned    BillingResponse = 7
	ResponseCodeItemNotOwned        BillingResponse = 8
)

// Sku types accepted by query and purchase operations.
const (
	SkuTypeInApp = "inapp"
	SkuTypeSubs  = "subs"
)

// ResponseError carries a non success billing response code back to the
// caller; the caller decides whether the code warrants a retry.
type ResponseError struct {
	Code    BillingResponse `json:"responseCode"`
	Message string          `json:"message,omitempty"`
}

func (e *ResponseError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("billing response %v: %v", int(e.Code), e.Message)
	}
	return fmt.Sprintf("billing response %v", int(e.Code))
}

// NewResponseError creates a ResponseError for the supplied code.
func NewResponseError(code BillingResponse) *ResponseError {
	return &ResponseError{Code: code}
}

// SkuDetails represents one purchasable catalog entry returned by
// BillingClient#querySkuDetails. Handle identifies the native SkuDetails
// object and is assigned native side per observer.
type SkuDetails struct {
	Handle                        uint64 `json:"_handle"`
	Description                   string `json:"description,omitempty"`
	FreeTrialPeriod               string `json:"freeTrialPeriod,omitempty"`
	IntroductoryPrice             string `json:"introductoryPrice,omitempty"`
	IntroductoryPriceAmountMicros int64  `json:"introductoryPriceAmountMicros,omitempty"`
	IntroductoryPriceCycles       string `json:"introductoryPriceCycles,omitempty"`
	IntroductoryPricePeriod       string `json:"introductoryPricePeriod,omitempty"`
	Price                         string `json:"price,omitempty"`
	PriceAmountMicros             int64  `json:"priceAmountMicros,omitempty"`
	PriceCurrencyCode             string `json:"priceCurrencyCode,omitempty"`
	Sku                           string `json:"sku"`
	SubscriptionPeriod            string `json:"subscriptionPeriod,omitempty"`
	Title                         string `json:"title,omitempty"`
	Type                          string `json:"type,omitempty"`
	IsRewarded                    bool   `json:"isRewarded,omitempty"`
}

// Purchase represents one Billing Library purchase record.
type Purchase struct {
	OrderID        string `json:"orderId,omitempty"`
	OriginalJSON   string `json:"originalJson,omitempty"`
	PackageName    string `json:"packageName,omitempty"`
	PurchaseTime   int64  `json:"purchaseTime,omitempty"`
	PurchaseToken  string `json:"purchaseToken,omitempty"`
	Signature      string `json:"signature,omitempty"`
	Sku            string `json:"sku"`
	IsAutoRenewing bool   `json:"isAutoRenewing,omitempty"`
}

// ConsumeParams holds the BillingClient#consume payload.
type ConsumeParams struct {
	Handle        uint64 `json:"handle"`
	PurchaseToken string `json:"purchaseToken"`
}

// FeatureParams holds the BillingClient#isFeatureSupported payload.
type FeatureParams struct {
	Handle  uint64 `json:"handle"`
	Feature string `json:"feature"`
}

// QueryPurchasesParams holds the queryPurchases and queryPurchaseHistory
// payloads.
type QueryPurchasesParams struct {
	Handle  uint64 `json:"handle"`
	SkuType string `json:"skuType"`
}

// PurchasesResult holds the queryPurchases and queryPurchaseHistory replies.
type PurchasesResult struct {
	ResponseCode BillingResponse `json:"responseCode"`
	Purchases    []*Purchase     `json:"purchases,omitempty"`
}

// QuerySkuDetailsParams holds the BillingClient#querySkuDetails payload.
type QuerySkuDetailsParams struct {
	Handle  uint64   `json:"handle"`
	SkuType string   `json:"skuType"`
	Skus    []string `json:"skus"`
}

// SkuDetailsResult holds the BillingClient#querySkuDetails reply.
type SkuDetailsResult struct {
	ResponseCode BillingResponse `json:"responseCode"`
	SkuDetails   []*SkuDetails   `json:"skuDetails,omitempty"`
}

// BillingFlowParams selects the sku details record, by handle, that a billing
// flow is launched for.
type BillingFlowParams struct {
	SkuDetails uint64 `json:"skuDetails"`
	AccountID  string `json:"accountId,omitempty"`
}

// LaunchBillingFlowParams holds the BillingClient#launchBillingFlow payload.
type LaunchBillingFlowParams struct {
	Handle uint64            `json:"handle"`
	Params BillingFlowParams `json:"params"`
}

// PriceChangeParams holds the launchPriceChangeConfirmationFlow and
// loadRewardedSku payloads.
type PriceChangeParams struct {
	Handle     uint64 `json:"handle"`
	SkuDetails uint64 `json:"skuDetails"`
}

// SetChildDirectedParams holds the BillingClient#setChildDirected payload.
type SetChildDirectedParams struct {
	Handle        uint64 `json:"handle"`
	ChildDirected int    `json:"childDirected"`
}

// PurchasesUpdatedParams holds the BillingClient#purchasesUpdated event
// payload; the update channel is shared across every outstanding operation of
// the client identified by Handle.
type PurchasesUpdatedParams struct {
	Handle       uint64          `json:"handle"`
	ResponseCode BillingResponse `json:"responseCode"`
	Purchases    []*Purchase     `json:"purchases,omitempty"`
}
