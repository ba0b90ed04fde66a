package signer

import (
	"crypto/rand"
	"math/big"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// TypedData is an EIP-712 payload (or a raw transaction payload for plain
// transfers) in the JSON shape the remote signer expects.
type TypedData map[string]any

const (
	polygonChainID = 137
	zeroAddress    = "0x0000000000000000000000000000000000000000"
)

var maxSalt = new(big.Int).Lsh(big.NewInt(1), 128)

// OrderParams describes a CTF exchange order to be signed.
type OrderParams struct {
	MakerAddress      string
	TokenID           string
	MakerAmount       int64
	TakerAmount       int64
	Side              int
	VerifyingContract string
	FeeRateBps        int
	Nonce             *int64
	Expiration        *int64
}

// BuildOrderTypedData assembles the Polymarket CTF Exchange order domain.
// Field order and naming follow the exchange contract; uint256 values are
// stringified for the wire.
func BuildOrderTypedData(p OrderParams) TypedData {
	nonce := time.Now().UnixMilli()
	if p.Nonce != nil {
		nonce = *p.Nonce
	}
	expiration := time.Now().Unix() + 3600
	if p.Expiration != nil {
		expiration = *p.Expiration
	}

	salt, _ := rand.Int(rand.Reader, maxSalt)

	return TypedData{
		"domain": map[string]any{
			"name":              "Polymarket CTF Exchange",
			"version":           "1",
			"chainId":           polygonChainID,
			"verifyingContract": p.VerifyingContract,
		},
		"types": map[string]any{
			"Order": []map[string]string{
				{"name": "salt", "type": "uint256"},
				{"name": "maker", "type": "address"},
				{"name": "signer", "type": "address"},
				{"name": "taker", "type": "address"},
				{"name": "tokenId", "type": "uint256"},
				{"name": "makerAmount", "type": "uint256"},
				{"name": "takerAmount", "type": "uint256"},
				{"name": "expiration", "type": "uint256"},
				{"name": "nonce", "type": "uint256"},
				{"name": "feeRateBps", "type": "uint256"},
				{"name": "side", "type": "uint8"},
				{"name": "signatureType", "type": "uint8"},
			},
		},
		"primaryType": "Order",
		"message": map[string]any{
			"salt":          salt.String(),
			"maker":         p.MakerAddress,
			"signer":        p.MakerAddress,
			"taker":         zeroAddress,
			"tokenId":       p.TokenID,
			"makerAmount":   strconv.FormatInt(p.MakerAmount, 10),
			"takerAmount":   strconv.FormatInt(p.TakerAmount, 10),
			"expiration":    strconv.FormatInt(expiration, 10),
			"nonce":         strconv.FormatInt(nonce, 10),
			"feeRateBps":    strconv.Itoa(p.FeeRateBps),
			"side":          p.Side,
			"signatureType": 0, // EOA
		},
	}
}

// BuildPermitTypedData assembles an EIP-2612 permit for a stable token
// allowance.
func BuildPermitTypedData(ownerAddress, spenderAddress, tokenAddress string, amount int64) TypedData {
	nonce := time.Now().UnixMilli()
	deadline := time.Now().Unix() + 3600

	return TypedData{
		"domain": map[string]any{
			"name":              "USD Coin",
			"version":           "2",
			"chainId":           polygonChainID,
			"verifyingContract": tokenAddress,
		},
		"types": map[string]any{
			"Permit": []map[string]string{
				{"name": "owner", "type": "address"},
				{"name": "spender", "type": "address"},
				{"name": "value", "type": "uint256"},
				{"name": "nonce", "type": "uint256"},
				{"name": "deadline", "type": "uint256"},
			},
		},
		"primaryType": "Permit",
		"message": map[string]any{
			"owner":    ownerAddress,
			"spender":  spenderAddress,
			"value":    strconv.FormatInt(amount, 10),
			"nonce":    strconv.FormatInt(nonce, 10),
			"deadline": strconv.FormatInt(deadline, 10),
		},
	}
}

// BuildTransferPayload assembles the raw transaction for an ERC-20
// transfer(address,uint256) call. Transfers are signed as transactions,
// not typed data.
func BuildTransferPayload(fromAddress, toAddress, tokenAddress string, amount int64) TypedData {
	return TypedData{
		"from":     fromAddress,
		"to":       tokenAddress,
		"data":     encodeTransferCall(toAddress, amount),
		"value":    "0x0",
		"chainId":  polygonChainID,
		"gasLimit": hexutil.EncodeUint64(100000),
	}
}

func encodeTransferCall(toAddress string, amount int64) string {
	// transfer(address,uint256) selector.
	data := make([]byte, 0, 4+32+32)
	data = append(data, 0xa9, 0x05, 0x9c, 0xbb)
	data = append(data, common.LeftPadBytes(common.HexToAddress(toAddress).Bytes(), 32)...)
	data = append(data, common.LeftPadBytes(big.NewInt(amount).Bytes(), 32)...)
	return hexutil.Encode(data)
}
