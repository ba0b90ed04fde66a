package model

import "strings"

// Operation kinds, recorded verbatim in audit rows.
const (
	SignatureTypeOrder     = "order"
	SignatureTypeAllowance = "allowance"
	SignatureTypeTransfer  = "transfer"
)

// Order sides on the wire: 0=BUY, 1=SELL. The activity ledger stores the
// string form.
const (
	SideBuy  = 0
	SideSell = 1
)

func SideString(side int) string {
	if side == SideSell {
		return "SELL"
	}
	return "BUY"
}

const usdcDecimals = 1e6

// SignOrderRequest asks for a signature over a Polymarket CTF exchange
// order. The target activity anchors replay protection and parameter
// matching; schema-level constraints live in the binding tags, whitelist
// membership is re-checked by the authorizer.
type SignOrderRequest struct {
	UserID        int64  `json:"user_id" binding:"required,gt=0"`
	PrivyWalletID string `json:"privy_wallet_id" binding:"required,min=10"`
	WalletAddress string `json:"wallet_address" binding:"required,len=42"`

	TokenID     string `json:"token_id" binding:"required"`
	Side        int    `json:"side" binding:"oneof=0 1"`
	MakerAmount int64  `json:"maker_amount" binding:"required,gt=0"`
	TakerAmount int64  `json:"taker_amount" binding:"required,gt=0"`

	TargetActivityID int64 `json:"target_activity_id" binding:"required,gt=0"`

	FeeRateBps int    `json:"fee_rate_bps" binding:"gte=0,lte=1000"`
	Nonce      *int64 `json:"nonce,omitempty"`
	Expiration *int64 `json:"expiration,omitempty"`

	VerifyingContract string `json:"verifying_contract" binding:"required"`
	ChainID           int64  `json:"chain_id" binding:"required"`
}

// USDCAmount is the order's USDC notional: the maker pays USDC on a BUY,
// receives it on a SELL.
func (r SignOrderRequest) USDCAmount() float64 {
	wei := r.MakerAmount
	if r.Side == SideSell {
		wei = r.TakerAmount
	}
	return float64(wei) / usdcDecimals
}

// SignAllowanceRequest asks for an ERC-20 permit signature. Allowances are
// not anchored to an activity; only the rate and block gates apply.
type SignAllowanceRequest struct {
	UserID        int64  `json:"user_id" binding:"required,gt=0"`
	PrivyWalletID string `json:"privy_wallet_id" binding:"required,min=10"`
	WalletAddress string `json:"wallet_address" binding:"required,len=42"`

	TokenAddress   string `json:"token_address" binding:"required"`
	SpenderAddress string `json:"spender_address" binding:"required"`
	Amount         int64  `json:"amount" binding:"required,gt=0"`

	ChainID int64 `json:"chain_id" binding:"required"`
}

func (r SignAllowanceRequest) USDCAmount() float64 {
	return float64(r.Amount) / usdcDecimals
}

// SignTransferRequest asks for a signed ERC-20 transfer moving the platform
// commission to a team wallet. The amount is cross-checked against the
// recorded trade notional.
type SignTransferRequest struct {
	UserID        int64  `json:"user_id" binding:"required,gt=0"`
	PrivyWalletID string `json:"privy_wallet_id" binding:"required,min=10"`
	WalletAddress string `json:"wallet_address" binding:"required,len=42"`

	TokenAddress     string `json:"token_address" binding:"required"`
	RecipientAddress string `json:"recipient_address" binding:"required"`
	Amount           int64  `json:"amount" binding:"required,gt=0"`

	TargetActivityID int64 `json:"target_activity_id" binding:"required,gt=0"`

	ChainID int64 `json:"chain_id" binding:"required"`
}

func (r SignTransferRequest) USDCAmount() float64 {
	return float64(r.Amount) / usdcDecimals
}

// SignatureResponse is the wire form of an orchestrator outcome.
type SignatureResponse struct {
	Success   bool   `json:"success"`
	Signature string `json:"signature,omitempty"`
	Error     string `json:"error,omitempty"`
	AuditID   int64  `json:"audit_id"`
	Timestamp string `json:"timestamp"`
}

// VerifyTokenRequest carries a Privy access token from the frontend for
// backend-side identity verification.
type VerifyTokenRequest struct {
	PrivyToken string `json:"privy_token" binding:"required,min=10"`
}

type VerifyTokenResponse struct {
	Success       bool   `json:"success"`
	Error         string `json:"error,omitempty"`
	PrivyUserID   string `json:"privy_user_id,omitempty"`
	WalletAddress string `json:"internal_wallet_address,omitempty"`
	WalletID      string `json:"wallet_id,omitempty"`
}

// NormalizeAddress lower-cases a hex address; canonical form everywhere in
// this service is lower-case.
func NormalizeAddress(addr string) string {
	return strings.ToLower(strings.TrimSpace(addr))
}
