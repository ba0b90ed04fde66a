package signer

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/TaroHarado/copytrade-key/internal/config"
	"github.com/TaroHarado/copytrade-key/internal/pkg/logger"
)

// PrivyClient talks to the Privy wallet API: identity verification and
// delegated signing. The private key never enters this process; the client
// is an opaque capability that returns a signature or fails within a
// bounded timeout.
type PrivyClient struct {
	baseURL    string
	appID      string
	basicAuth  string
	httpClient *http.Client
}

// Identity is the verified owner of a Privy access token, with the single
// embedded wallet usable for signing.
type Identity struct {
	UserID        string
	WalletAddress string
	WalletID      string
}

func NewPrivyClient(cfg config.PrivyConfig) *PrivyClient {
	timeout := time.Duration(cfg.TimeoutMs) * time.Millisecond
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	creds := cfg.AppID + ":" + cfg.AppSecret
	return &PrivyClient{
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		appID:     cfg.AppID,
		basicAuth: base64.StdEncoding.EncodeToString([]byte(creds)),
		httpClient: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 100,
				IdleConnTimeout:     90 * time.Second,
			},
			Timeout: timeout,
		},
	}
}

type signRequest struct {
	Method string     `json:"method"`
	Params signParams `json:"params"`
}

type signParams struct {
	TypedData TypedData `json:"typed_data"`
}

type signResponse struct {
	Method string          `json:"method"`
	Data   json.RawMessage `json:"data"`
}

type signResponseData struct {
	Signature string `json:"signature"`
	Encoding  string `json:"encoding"`
}

// SignTypedData submits the payload to the wallet RPC endpoint and returns
// the hex signature.
func (c *PrivyClient) SignTypedData(ctx context.Context, walletID string, typedData TypedData) (string, error) {
	walletID = c.resolveWalletID(ctx, walletID)

	body, err := json.Marshal(signRequest{
		Method: "eth_signTypedData_v4",
		Params: signParams{TypedData: typedData},
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode signing payload: %w", err)
	}

	url := fmt.Sprintf("%s/v1/wallets/%s/rpc", c.baseURL, walletID)
	respBody, status, err := c.do(ctx, http.MethodPost, url, body)
	if err != nil {
		return "", fmt.Errorf("privy request failed: %w", err)
	}
	if status != http.StatusOK {
		return "", fmt.Errorf("privy api error (%d): %s", status, truncate(string(respBody), 200))
	}

	var resp signResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return "", fmt.Errorf("invalid privy response: %w", err)
	}

	var data signResponseData
	if err := json.Unmarshal(resp.Data, &data); err == nil && data.Signature != "" {
		return data.Signature, nil
	}
	// Fallback: data may be the signature string directly.
	var raw string
	if err := json.Unmarshal(resp.Data, &raw); err == nil && raw != "" {
		return raw, nil
	}
	return "", fmt.Errorf("privy api did not return a signature")
}

// VerifyToken decodes the access token's subject locally, then fetches the
// user record and picks the embedded ethereum wallet.
func (c *PrivyClient) VerifyToken(ctx context.Context, token string) (*Identity, error) {
	userID, err := jwtSubject(token)
	if err != nil {
		return nil, fmt.Errorf("invalid privy token: %w", err)
	}

	user, err := c.fetchUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.ID != userID {
		return nil, fmt.Errorf("user id mismatch: token=%s api=%s", userID, user.ID)
	}

	ident := &Identity{UserID: userID}
	for _, acct := range user.LinkedAccounts {
		if acct.Type == "wallet" && acct.WalletClient == "privy" && acct.ChainType == "ethereum" {
			ident.WalletAddress = acct.Address
			ident.WalletID = acct.ID
			break
		}
	}
	return ident, nil
}

type privyUser struct {
	ID             string         `json:"id"`
	LinkedAccounts []privyAccount `json:"linked_accounts"`
}

type privyAccount struct {
	ID           string `json:"id"`
	Type         string `json:"type"`
	WalletClient string `json:"wallet_client"`
	ChainType    string `json:"chain_type"`
	Address      string `json:"address"`
	WalletIndex  int    `json:"wallet_index"`
}

func (c *PrivyClient) fetchUser(ctx context.Context, userID string) (*privyUser, error) {
	url := fmt.Sprintf("%s/v1/users/%s", c.baseURL, userID)
	body, status, err := c.do(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("privy request failed: %w", err)
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("failed to fetch user data (%d): %s", status, truncate(string(body), 200))
	}
	var user privyUser
	if err := json.Unmarshal(body, &user); err != nil {
		return nil, fmt.Errorf("invalid privy user response: %w", err)
	}
	return &user, nil
}

// resolveWalletID maps the legacy "did:privy:<user>:wallet:<index>" id
// still present in old database rows onto the real wallet id via the
// user's linked accounts. Current-format ids pass through untouched; this
// quirk stays inside the client and never leaks into orchestration.
func (c *PrivyClient) resolveWalletID(ctx context.Context, walletID string) string {
	parts := strings.Split(walletID, ":")
	if len(parts) != 5 || parts[0] != "did" || parts[1] != "privy" || parts[3] != "wallet" {
		return walletID
	}

	logger.Warn("legacy privy wallet id detected, resolving via linked accounts",
		"wallet_id", walletID)

	userID := "did:privy:" + parts[2]
	index, err := strconv.Atoi(parts[4])
	if err != nil {
		return walletID
	}

	user, err := c.fetchUser(ctx, userID)
	if err != nil {
		logger.Error("failed to resolve legacy wallet id", "error", err)
		return walletID
	}
	for _, acct := range user.LinkedAccounts {
		if acct.Type == "wallet" && acct.WalletClient == "privy" &&
			acct.ChainType == "ethereum" && acct.WalletIndex == index && acct.ID != "" {
			return acct.ID
		}
	}
	return walletID
}

func (c *PrivyClient) do(ctx context.Context, method, url string, body []byte) ([]byte, int, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Authorization", "Basic "+c.basicAuth)
	req.Header.Set("privy-app-id", c.appID)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, err
	}
	return respBody, resp.StatusCode, nil
}

// jwtSubject extracts the subject claim from a JWT without verifying the
// signature; the follow-up user fetch is authenticated with app
// credentials and confirms the id.
func jwtSubject(token string) (string, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return "", fmt.Errorf("not a JWT")
	}
	payload, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return "", fmt.Errorf("invalid payload encoding: %w", err)
	}
	var claims struct {
		Sub    string `json:"sub"`
		UserID string `json:"userId"`
	}
	if err := json.Unmarshal(payload, &claims); err != nil {
		return "", fmt.Errorf("invalid payload: %w", err)
	}
	if claims.Sub != "" {
		return claims.Sub, nil
	}
	if claims.UserID != "" {
		return claims.UserID, nil
	}
	return "", fmt.Errorf("no subject in token")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
