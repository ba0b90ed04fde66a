package signer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildOrderTypedData(t *testing.T) {
	nonce := int64(12345)
	expiration := int64(1800000000)
	td := BuildOrderTypedData(OrderParams{
		MakerAddress:      "0x4444444444444444444444444444444444444444",
		TokenID:           "999",
		MakerAmount:       1000000,
		TakerAmount:       500000,
		Side:              1,
		VerifyingContract: "0x4bFb41d5B3570DeFd03C39a9A4D8dE6Bd8B8982E",
		FeeRateBps:        0,
		Nonce:             &nonce,
		Expiration:        &expiration,
	})

	domain := td["domain"].(map[string]any)
	assert.Equal(t, "Polymarket CTF Exchange", domain["name"])
	assert.Equal(t, 137, domain["chainId"])
	assert.Equal(t, "0x4bFb41d5B3570DeFd03C39a9A4D8dE6Bd8B8982E", domain["verifyingContract"])
	assert.Equal(t, "Order", td["primaryType"])

	msg := td["message"].(map[string]any)
	assert.Equal(t, "0x4444444444444444444444444444444444444444", msg["maker"])
	assert.Equal(t, msg["maker"], msg["signer"])
	assert.Equal(t, zeroAddress, msg["taker"])
	assert.Equal(t, "1000000", msg["makerAmount"])
	assert.Equal(t, "500000", msg["takerAmount"])
	assert.Equal(t, "12345", msg["nonce"])
	assert.Equal(t, "1800000000", msg["expiration"])
	assert.Equal(t, 1, msg["side"])
	assert.Equal(t, 0, msg["signatureType"])
	assert.NotEmpty(t, msg["salt"])
}

func TestBuildOrderTypedDataDefaults(t *testing.T) {
	td := BuildOrderTypedData(OrderParams{
		MakerAddress:      "0x4444444444444444444444444444444444444444",
		TokenID:           "999",
		MakerAmount:       1,
		TakerAmount:       1,
		VerifyingContract: "0x4bFb41d5B3570DeFd03C39a9A4D8dE6Bd8B8982E",
	})

	msg := td["message"].(map[string]any)
	assert.NotEmpty(t, msg["nonce"])
	assert.NotEmpty(t, msg["expiration"])

	// Salts must not repeat across builds.
	other := BuildOrderTypedData(OrderParams{
		MakerAddress:      "0x4444444444444444444444444444444444444444",
		TokenID:           "999",
		MakerAmount:       1,
		TakerAmount:       1,
		VerifyingContract: "0x4bFb41d5B3570DeFd03C39a9A4D8dE6Bd8B8982E",
	})
	assert.NotEqual(t, msg["salt"], other["message"].(map[string]any)["salt"])
}

func TestBuildPermitTypedData(t *testing.T) {
	td := BuildPermitTypedData(
		"0x4444444444444444444444444444444444444444",
		"0x4bFb41d5B3570DeFd03C39a9A4D8dE6Bd8B8982E",
		"0x3c499c542cEF5E3811e1192ce70d8cC03d5c3359",
		1000000000,
	)

	domain := td["domain"].(map[string]any)
	assert.Equal(t, "USD Coin", domain["name"])
	assert.Equal(t, "2", domain["version"])
	assert.Equal(t, "0x3c499c542cEF5E3811e1192ce70d8cC03d5c3359", domain["verifyingContract"])
	assert.Equal(t, "Permit", td["primaryType"])

	msg := td["message"].(map[string]any)
	assert.Equal(t, "1000000000", msg["value"])
	assert.Equal(t, "0x4bFb41d5B3570DeFd03C39a9A4D8dE6Bd8B8982E", msg["spender"])
}

func TestBuildTransferPayload(t *testing.T) {
	td := BuildTransferPayload(
		"0x4444444444444444444444444444444444444444",
		"0x1111111111111111111111111111111111111111",
		"0x3c499c542cEF5E3811e1192ce70d8cC03d5c3359",
		1000000,
	)

	assert.Equal(t, "0x4444444444444444444444444444444444444444", td["from"])
	// The transaction goes to the token contract, not the recipient.
	assert.Equal(t, "0x3c499c542cEF5E3811e1192ce70d8cC03d5c3359", td["to"])
	assert.Equal(t, "0x0", td["value"])
	assert.Equal(t, 137, td["chainId"])

	data, ok := td["data"].(string)
	require.True(t, ok)
	// 4-byte selector + two 32-byte words, hex encoded with 0x prefix.
	assert.Len(t, data, 2+2*(4+32+32))
	assert.Equal(t, "0xa9059cbb", data[:10])
	assert.Contains(t, data, "1111111111111111111111111111111111111111")
}

func TestEncodeTransferCall(t *testing.T) {
	data := encodeTransferCall("0x1111111111111111111111111111111111111111", 1000000)
	assert.Equal(t,
		"0xa9059cbb"+
			"0000000000000000000000001111111111111111111111111111111111111111"+
			"00000000000000000000000000000000000000000000000000000000000f4240",
		data)
}
