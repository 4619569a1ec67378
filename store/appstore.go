package store

import (
	"context"
	"crypto/ecdsa"
	"encoding/base64"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/memspace/iap"
)

const (
	appStoreProductionURL = "https://buy.itunes.apple.com"
	appStoreSandboxURL    = "https://sandbox.itunes.apple.com"

	appStoreTokenAudience = "appstoreconnect-v1"
	appStoreTokenTTL      = 20 * time.Minute
)

// AppStoreConfig carries the App Store Connect credentials used to sign
// verification requests.
type AppStoreConfig struct {
	KeyID        string `yaml:"keyID" json:"keyID"`
	IssuerID     string `yaml:"issuerID" json:"issuerID"`
	BundleID     string `yaml:"bundleID" json:"bundleID"`
	SharedSecret string `yaml:"sharedSecret,omitempty" json:"sharedSecret,omitempty"`
	Sandbox      bool   `yaml:"sandbox,omitempty" json:"sandbox,omitempty"`
}

// AppStoreVerifier verifies StoreKit receipts with the App Store backend,
// authenticating with an ES256 signed App Store Connect token.
type AppStoreVerifier struct {
	config *AppStoreConfig
	key    *ecdsa.PrivateKey
	client *resty.Client
}

// AppStoreOption customizes an AppStoreVerifier.
type AppStoreOption func(v *AppStoreVerifier)

// WithAppStoreBaseURL overrides the verification endpoint; used by tests.
func WithAppStoreBaseURL(baseURL string) AppStoreOption {
	return func(v *AppStoreVerifier) {
		v.client.SetBaseURL(baseURL)
	}
}

// NewAppStoreVerifier creates an App Store receipt verifier.
func NewAppStoreVerifier(config *AppStoreConfig, key *ecdsa.PrivateKey, options ...AppStoreOption) *AppStoreVerifier {
	baseURL := appStoreProductionURL
	if config.Sandbox {
		baseURL = appStoreSandboxURL
	}
	ret := &AppStoreVerifier{
		config: config,
		key:    key,
		client: resty.New().SetBaseURL(baseURL),
	}
	for _, opt := range options {
		opt(ret)
	}
	return ret
}

type receiptInfo struct {
	ProductID    string `json:"product_id"`
	ExpiresDate  string `json:"expires_date_ms"`
	PurchaseDate string `json:"purchase_date_ms"`
}

type receiptResponse struct {
	Status            int           `json:"status"`
	LatestReceiptInfo []receiptInfo `json:"latest_receipt_info"`
}

// Verify posts the raw device receipt to the verification endpoint and maps
// the latest receipt records to entitlements.
func (v *AppStoreVerifier) Verify(ctx context.Context, credentials *iap.Credentials) ([]*Entitlement, error) {
	if credentials.Platform != iap.PlatformStoreKit {
		return nil, errors.Errorf("unsupported credential platform: %v", credentials.Platform)
	}
	token, err := v.token()
	if err != nil {
		return nil, errors.Wrap(err, "failed to sign app store token")
	}
	body := map[string]interface{}{
		"receipt-data":             base64.StdEncoding.EncodeToString(credentials.Receipt),
		"exclude-old-transactions": true,
	}
	if v.config.SharedSecret != "" {
		body["password"] = v.config.SharedSecret
	}
	result := &receiptResponse{}
	response, err := v.client.R().
		SetContext(ctx).
		SetHeader("Authorization", "Bearer "+token).
		SetHeader("X-Request-Id", uuid.NewString()).
		SetBody(body).
		SetResult(result).
		Post("/verifyReceipt")
	if err != nil {
		return nil, errors.Wrap(err, "failed to call verification endpoint")
	}
	if response.IsError() {
		return nil, errors.Errorf("verification endpoint returned %v", response.Status())
	}
	if result.Status != 0 {
		return nil, errors.Errorf("receipt rejected with status %v", result.Status)
	}
	now := time.Now()
	ret := make([]*Entitlement, 0, len(result.LatestReceiptInfo))
	for _, info := range result.LatestReceiptInfo {
		entitlement := &Entitlement{ProductID: info.ProductID}
		if info.ExpiresDate != "" {
			millis, err := strconv.ParseInt(info.ExpiresDate, 10, 64)
			if err != nil {
				return nil, errors.Wrapf(err, "malformed expiry for %v", info.ProductID)
			}
			entitlement.ExpiresAt = time.UnixMilli(millis)
			entitlement.Active = entitlement.ExpiresAt.After(now)
		} else {
			// non expiring product
			entitlement.Active = true
		}
		ret = append(ret, entitlement)
	}
	return ret, nil
}

func (v *AppStoreVerifier) token() (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"iss": v.config.IssuerID,
		"iat": now.Unix(),
		"exp": now.Add(appStoreTokenTTL).Unix(),
		"aud": appStoreTokenAudience,
		"bid": v.config.BundleID,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodES256, claims)
	token.Header["kid"] = v.config.KeyID
	return token.SignedString(v.key)
}

var _ Verifier = (*AppStoreVerifier)(nil)
