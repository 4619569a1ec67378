package schema

// Product represents a StoreKit product record.
type Product struct {
	ProductIdentifier    string `json:"productIdentifier"`
	LocalizedTitle       string `json:"localizedTitle,omitempty"`
	LocalizedDescription string `json:"localizedDescription,omitempty"`
	Price                string `json:"price,omitempty"`
	PriceLocale          string `json:"priceLocale,omitempty"`
	SubscriptionPeriod   string `json:"subscriptionPeriod,omitempty"`
}

// Payment represents a payment descriptor submitted to the payment queue.
// ID is assigned by the library before submission and echoed back by the
// native layer inside transaction records; it carries payment identity across
// the channel so that concurrent purchases of the same product stay distinct.
type Payment struct {
	ID                  string `json:"paymentId,omitempty"`
	ProductIdentifier   string `json:"productIdentifier"`
	Quantity            int    `json:"quantity,omitempty"`
	ApplicationUsername string `json:"applicationUsername,omitempty"`
}

// ProductsQueryParams holds the Products#query request payload.
type ProductsQueryParams struct {
	ProductIdentifiers []string `json:"productIdentifiers"`
}

// ProductsResult holds the Products#query reply.
type ProductsResult struct {
	Products                  []*Product `json:"products,omitempty"`
	InvalidProductIdentifiers []string   `json:"invalidProductIdentifiers,omitempty"`
}

// ReceiptResult holds the Receipt#read reply; Location is empty when no
// receipt is present on the device.
type ReceiptResult struct {
	Location string `json:"location,omitempty"`
}

// StorePayment represents a store initiated payment intent together with the
// product it targets.
type StorePayment struct {
	Payment *Payment `json:"payment"`
	Product *Product `json:"product"`
}

// RestoreParams holds the PaymentQueue#restoreCompletedTransactions payload.
type RestoreParams struct {
	ApplicationUsername string `json:"applicationUsername,omitempty"`
}
