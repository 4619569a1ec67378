package store

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memspace/iap"
)

func testKey(t *testing.T) *ecdsa.PrivateKey {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	return key
}

func TestAppStoreVerifier_Verify(t *testing.T) {
	key := testKey(t)
	expires := time.Now().Add(24 * time.Hour)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/verifyReceipt", r.URL.Path)

		// the request must carry a valid ES256 token signed with our key
		authorization := r.Header.Get("Authorization")
		require.True(t, strings.HasPrefix(authorization, "Bearer "))
		token, err := jwt.Parse(strings.TrimPrefix(authorization, "Bearer "), func(token *jwt.Token) (interface{}, error) {
			return &key.PublicKey, nil
		})
		require.NoError(t, err)
		assert.Equal(t, "key-1", token.Header["kid"])

		body := map[string]interface{}{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, base64.StdEncoding.EncodeToString([]byte("opaque-receipt")), body["receipt-data"])
		assert.Equal(t, "secret", body["password"])

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"status":0,"latest_receipt_info":[
			{"product_id":"sub_monthly","expires_date_ms":"%v"},
			{"product_id":"coins"}
		]}`, expires.UnixMilli())
	}))
	defer server.Close()

	verifier := NewAppStoreVerifier(&AppStoreConfig{
		KeyID:        "key-1",
		IssuerID:     "issuer-1",
		BundleID:     "io.memspace.app",
		SharedSecret: "secret",
	}, key, WithAppStoreBaseURL(server.URL))

	entitlements, err := verifier.Verify(context.Background(), &iap.Credentials{
		Platform: iap.PlatformStoreKit,
		Receipt:  []byte("opaque-receipt"),
	})
	require.NoError(t, err)
	require.Len(t, entitlements, 2)
	assert.Equal(t, "sub_monthly", entitlements[0].ProductID)
	assert.True(t, entitlements[0].Active)
	assert.Equal(t, expires.UnixMilli(), entitlements[0].ExpiresAt.UnixMilli())
	assert.Equal(t, "coins", entitlements[1].ProductID)
	assert.True(t, entitlements[1].Active)
}

func TestAppStoreVerifier_ExpiredSubscription(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"status":0,"latest_receipt_info":[{"product_id":"sub_monthly","expires_date_ms":"%v"}]}`,
			time.Now().Add(-time.Hour).UnixMilli())
	}))
	defer server.Close()

	verifier := NewAppStoreVerifier(&AppStoreConfig{KeyID: "key-1"}, testKey(t), WithAppStoreBaseURL(server.URL))
	entitlements, err := verifier.Verify(context.Background(), &iap.Credentials{
		Platform: iap.PlatformStoreKit,
		Receipt:  []byte("receipt"),
	})
	require.NoError(t, err)
	require.Len(t, entitlements, 1)
	assert.False(t, entitlements[0].Active)
}

func TestAppStoreVerifier_RejectedReceipt(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"status":21003}`)
	}))
	defer server.Close()

	verifier := NewAppStoreVerifier(&AppStoreConfig{KeyID: "key-1"}, testKey(t), WithAppStoreBaseURL(server.URL))
	_, err := verifier.Verify(context.Background(), &iap.Credentials{
		Platform: iap.PlatformStoreKit,
		Receipt:  []byte("receipt"),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "21003")
}

func TestAppStoreVerifier_PlatformMismatch(t *testing.T) {
	verifier := NewAppStoreVerifier(&AppStoreConfig{}, testKey(t))
	_, err := verifier.Verify(context.Background(), &iap.Credentials{Platform: iap.PlatformBilling})
	require.Error(t, err)
}
