package signer

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TaroHarado/copytrade-key/internal/config"
)

func makeJWT(t *testing.T, claims map[string]string) string {
	t.Helper()
	payload, err := json.Marshal(claims)
	require.NoError(t, err)
	header := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"ES256"}`))
	body := base64.RawURLEncoding.EncodeToString(payload)
	return header + "." + body + ".sig"
}

func TestJWTSubject(t *testing.T) {
	token := makeJWT(t, map[string]string{"sub": "did:privy:user1"})
	sub, err := jwtSubject(token)
	require.NoError(t, err)
	assert.Equal(t, "did:privy:user1", sub)

	// userId claim as fallback.
	token = makeJWT(t, map[string]string{"userId": "did:privy:user2"})
	sub, err = jwtSubject(token)
	require.NoError(t, err)
	assert.Equal(t, "did:privy:user2", sub)

	_, err = jwtSubject("not-a-jwt")
	assert.Error(t, err)

	_, err = jwtSubject(makeJWT(t, map[string]string{"aud": "nobody"}))
	assert.Error(t, err)
}

func newTestClient(baseURL string) *PrivyClient {
	return NewPrivyClient(config.PrivyConfig{
		BaseURL:   baseURL,
		AppID:     "app-1",
		AppSecret: "secret-1",
		TimeoutMs: 2000,
	})
}

func TestSignTypedData(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/wallets/wallet-abc/rpc", r.URL.Path)
		assert.Equal(t, "app-1", r.Header.Get("privy-app-id"))
		assert.Contains(t, r.Header.Get("Authorization"), "Basic ")

		var req signRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "eth_signTypedData_v4", req.Method)

		json.NewEncoder(w).Encode(map[string]any{
			"method": "eth_signTypedData_v4",
			"data":   map[string]string{"signature": "0xSIGNED", "encoding": "hex"},
		})
	}))
	defer srv.Close()

	client := newTestClient(srv.URL)
	sig, err := client.SignTypedData(context.Background(), "wallet-abc", TypedData{"primaryType": "Order"})
	require.NoError(t, err)
	assert.Equal(t, "0xSIGNED", sig)
}

func TestSignTypedDataRawStringResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"data": "0xRAW"})
	}))
	defer srv.Close()

	client := newTestClient(srv.URL)
	sig, err := client.SignTypedData(context.Background(), "wallet-abc", TypedData{})
	require.NoError(t, err)
	assert.Equal(t, "0xRAW", sig)
}

func TestSignTypedDataAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"error":"not allowed"}`))
	}))
	defer srv.Close()

	client := newTestClient(srv.URL)
	_, err := client.SignTypedData(context.Background(), "wallet-abc", TypedData{})
	assert.Error(t, err)
}

func TestResolveLegacyWalletID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/users/did:privy:user1":
			json.NewEncoder(w).Encode(privyUser{
				ID: "did:privy:user1",
				LinkedAccounts: []privyAccount{
					{ID: "email-1", Type: "email"},
					{ID: "real-wallet-id", Type: "wallet", WalletClient: "privy", ChainType: "ethereum", WalletIndex: 0},
				},
			})
		case "/v1/wallets/real-wallet-id/rpc":
			json.NewEncoder(w).Encode(map[string]any{
				"data": map[string]string{"signature": "0xRESOLVED"},
			})
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	client := newTestClient(srv.URL)
	sig, err := client.SignTypedData(context.Background(), "did:privy:user1:wallet:0", TypedData{})
	require.NoError(t, err)
	assert.Equal(t, "0xRESOLVED", sig)
}

func TestVerifyToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/users/did:privy:user1", r.URL.Path)
		json.NewEncoder(w).Encode(privyUser{
			ID: "did:privy:user1",
			LinkedAccounts: []privyAccount{
				{ID: "wallet-1", Type: "wallet", WalletClient: "privy", ChainType: "ethereum", Address: "0xabc"},
			},
		})
	}))
	defer srv.Close()

	client := newTestClient(srv.URL)
	token := makeJWT(t, map[string]string{"sub": "did:privy:user1"})

	ident, err := client.VerifyToken(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, "did:privy:user1", ident.UserID)
	assert.Equal(t, "0xabc", ident.WalletAddress)
	assert.Equal(t, "wallet-1", ident.WalletID)
}

func TestVerifyTokenUserMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(privyUser{ID: "did:privy:someone-else"})
	}))
	defer srv.Close()

	client := newTestClient(srv.URL)
	token := makeJWT(t, map[string]string{"sub": "did:privy:user1"})

	_, err := client.VerifyToken(context.Background(), token)
	assert.Error(t, err)
}
