package store

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"
	"golang.org/x/oauth2"

	"github.com/memspace/iap"
)

const playPublisherURL = "https://androidpublisher.googleapis.com"

// PlayConfig identifies the application whose purchases are verified.
type PlayConfig struct {
	PackageName string `yaml:"packageName" json:"packageName"`
}

// PlayVerifier verifies billing purchase tokens with the Play Developer API,
// authenticating through an oauth2 token source (typically a service
// account).
type PlayVerifier struct {
	config *PlayConfig
	tokens oauth2.TokenSource
	client *resty.Client
}

// PlayOption customizes a PlayVerifier.
type PlayOption func(v *PlayVerifier)

// WithPlayBaseURL overrides the publisher endpoint; used by tests.
func WithPlayBaseURL(baseURL string) PlayOption {
	return func(v *PlayVerifier) {
		v.client.SetBaseURL(baseURL)
	}
}

// NewPlayVerifier creates a Play purchase verifier.
func NewPlayVerifier(config *PlayConfig, tokens oauth2.TokenSource, options ...PlayOption) *PlayVerifier {
	ret := &PlayVerifier{
		config: config,
		tokens: tokens,
		client: resty.New().SetBaseURL(playPublisherURL),
	}
	for _, opt := range options {
		opt(ret)
	}
	return ret
}

type subscriptionResource struct {
	ExpiryTimeMillis string `json:"expiryTimeMillis"`
	AutoRenewing     bool   `json:"autoRenewing"`
}

// Verify checks every owned purchase token with the publisher API.
func (v *PlayVerifier) Verify(ctx context.Context, credentials *iap.Credentials) ([]*Entitlement, error) {
	if credentials.Platform != iap.PlatformBilling {
		return nil, errors.Errorf("unsupported credential platform: %v", credentials.Platform)
	}
	token, err := v.tokens.Token()
	if err != nil {
		return nil, errors.Wrap(err, "failed to obtain publisher token")
	}
	now := time.Now()
	ret := make([]*Entitlement, 0, len(credentials.Purchases))
	for _, purchase := range credentials.Purchases {
		result := &subscriptionResource{}
		response, err := v.client.R().
			SetContext(ctx).
			SetAuthToken(token.AccessToken).
			SetResult(result).
			Get(fmt.Sprintf("/androidpublisher/v3/applications/%v/purchases/subscriptions/%v/tokens/%v",
				v.config.PackageName, purchase.Sku, purchase.PurchaseToken))
		if err != nil {
			return nil, errors.Wrapf(err, "failed to verify %v", purchase.Sku)
		}
		if response.IsError() {
			return nil, errors.Errorf("publisher API returned %v for %v", response.Status(), purchase.Sku)
		}
		entitlement := &Entitlement{ProductID: purchase.Sku, Active: true}
		if result.ExpiryTimeMillis != "" {
			millis, err := strconv.ParseInt(result.ExpiryTimeMillis, 10, 64)
			if err != nil {
				return nil, errors.Wrapf(err, "malformed expiry for %v", purchase.Sku)
			}
			entitlement.ExpiresAt = time.UnixMilli(millis)
			entitlement.Active = entitlement.ExpiresAt.After(now)
		}
		ret = append(ret, entitlement)
	}
	return ret, nil
}

var _ Verifier = (*PlayVerifier)(nil)
