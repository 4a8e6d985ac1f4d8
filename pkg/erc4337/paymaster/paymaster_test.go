package paymaster

import (
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LumenWallet/lumen-core/pkg/erc4337/userop"
)

var (
	testEntrypoint = common.HexToAddress("0x5FF137D4b0FDCD49DcA30c7CF57E578a026d2789")
	testToken      = common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48")
)

func draftOp() *userop.UserOperation {
	return &userop.UserOperation{
		Sender:    common.HexToAddress("0x5aF108D23C1c7c6d04820f73B7aCB9a3F95f0d3e"),
		Nonce:     big.NewInt(0),
		InitCode:  []byte{},
		CallData:  common.FromHex("0xb61d27f6"),
		Signature: append([]byte{}, userop.DummySignature...),
	}
}

// fakeService captures the last pm_sponsorUserOperation request and returns a
// canned JSON-RPC body.
type fakeService struct {
	response   string
	lastParams []json.RawMessage
}

func newFakeService(t *testing.T, response string) (*fakeService, *Client) {
	fs := &fakeService{response: response}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Method string            `json:"method"`
			Params []json.RawMessage `json:"params"`
			Id     int64             `json:"id"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, "pm_sponsorUserOperation", req.Method)
		fs.lastParams = req.Params

		w.Header().Set("Content-Type", "application/json")
		body := `{"jsonrpc":"2.0","id":` + jsonInt(req.Id) + `,` + fs.response + `}`
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)

	return fs, NewClient(srv.URL, nil)
}

func jsonInt(v int64) string {
	b, _ := json.Marshal(v)
	return string(b)
}

func TestSponsorAccepted(t *testing.T) {
	paymasterAndData := "0x1234567890abcdef1234567890abcdef12345678" + "00000000000000000000000000000000000000000000000000000000deadbeef"
	fs, client := newFakeService(t, `"result":{
		"paymasterAndData":"`+paymasterAndData+`",
		"preVerificationGas":"0x5208",
		"verificationGasLimit":"0x11170",
		"callGasLimit":"0x8ae0"
	}`)

	got, err := client.Sponsor(context.Background(), draftOp(), testEntrypoint, big.NewInt(1), ModeSponsored, nil)
	require.NoError(t, err)

	assert.Equal(t, common.FromHex(paymasterAndData), got.PaymasterAndData)
	assert.Equal(t, big.NewInt(21000), got.PreVerificationGas)
	assert.Equal(t, big.NewInt(70000), got.VerificationGasLimit)
	assert.Equal(t, big.NewInt(35552), got.CallGasLimit)
	assert.Nil(t, got.TokenQuote)

	// Params carry the draft, the entrypoint, the chain and the context.
	require.Len(t, fs.lastParams, 4)
	var chainID string
	require.NoError(t, json.Unmarshal(fs.lastParams[2], &chainID))
	assert.Equal(t, "0x1", chainID)
	var sponsorCtx map[string]string
	require.NoError(t, json.Unmarshal(fs.lastParams[3], &sponsorCtx))
	assert.Equal(t, "sponsored", sponsorCtx["mode"])
}

func TestSponsorERC20Quote(t *testing.T) {
	fs, client := newFakeService(t, `"result":{
		"paymasterAndData":"0x1234567890abcdef1234567890abcdef12345678ff",
		"tokenQuote":{
			"token":"`+testToken.Hex()+`",
			"symbol":"USDC",
			"decimals":6,
			"exchangeRate":"3100.25"
		}
	}`)

	got, err := client.Sponsor(context.Background(), draftOp(), testEntrypoint, big.NewInt(1), ModeERC20, &testToken)
	require.NoError(t, err)

	require.NotNil(t, got.TokenQuote)
	assert.Equal(t, testToken, got.TokenQuote.Token)
	assert.Equal(t, "USDC", got.TokenQuote.Symbol)
	assert.Equal(t, 6, got.TokenQuote.Decimals)
	assert.True(t, got.TokenQuote.ExchangeRate.Equal(decimal.RequireFromString("3100.25")))

	// Gas fields left to the caller's own estimation.
	assert.Nil(t, got.CallGasLimit)

	var sponsorCtx map[string]string
	require.NoError(t, json.Unmarshal(fs.lastParams[3], &sponsorCtx))
	assert.Equal(t, "erc20", sponsorCtx["mode"])
	assert.Equal(t, testToken.Hex(), sponsorCtx["token"])
}

func TestSponsorPolicyDeclineIsRecoverable(t *testing.T) {
	_, client := newFakeService(t, `"error":{"code":-32004,"message":"sender not in allowlist"}`)

	_, err := client.Sponsor(context.Background(), draftOp(), testEntrypoint, big.NewInt(1), ModeSponsored, nil)
	require.Error(t, err)

	var pmErr *PaymasterError
	require.ErrorAs(t, err, &pmErr)
	assert.True(t, pmErr.Recoverable())
	assert.Equal(t, -32004, pmErr.Code)
}

func TestSponsorUnreachableIsNotRecoverable(t *testing.T) {
	client := NewClient("http://127.0.0.1:1", nil)

	_, err := client.Sponsor(context.Background(), draftOp(), testEntrypoint, big.NewInt(1), ModeSponsored, nil)
	require.Error(t, err)

	var pmErr *PaymasterError
	require.ErrorAs(t, err, &pmErr)
	assert.False(t, pmErr.Recoverable())
}

func TestSponsorHTTPErrorIsNotRecoverable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, nil)
	_, err := client.Sponsor(context.Background(), draftOp(), testEntrypoint, big.NewInt(1), ModeSponsored, nil)

	var pmErr *PaymasterError
	require.ErrorAs(t, err, &pmErr)
	assert.False(t, pmErr.Recoverable())
}

func TestSponsorModeValidation(t *testing.T) {
	client := NewClient("http://unused.invalid", nil)

	_, err := client.Sponsor(context.Background(), draftOp(), testEntrypoint, big.NewInt(1), ModeNone, nil)
	assert.Error(t, err)

	_, err = client.Sponsor(context.Background(), draftOp(), testEntrypoint, big.NewInt(1), ModeERC20, nil)
	assert.Error(t, err)
}

func TestSponsorMalformedPayload(t *testing.T) {
	_, client := newFakeService(t, `"result":{"paymasterAndData":"0x12"}`)

	_, err := client.Sponsor(context.Background(), draftOp(), testEntrypoint, big.NewInt(1), ModeSponsored, nil)

	var pmErr *PaymasterError
	require.ErrorAs(t, err, &pmErr)
	assert.False(t, pmErr.Recoverable())
}

func TestTokenQuoteMaxCost(t *testing.T) {
	quote := &TokenQuote{
		Token:        testToken,
		Symbol:       "USDC",
		Decimals:     6,
		ExchangeRate: decimal.RequireFromString("3000"),
	}

	op := draftOp()
	op.CallGasLimit = big.NewInt(50000)
	op.VerificationGasLimit = big.NewInt(100000)
	op.PreVerificationGas = big.NewInt(50000)
	op.MaxFeePerGas = big.NewInt(10_000_000_000) // 10 gwei

	// 200k gas at 10 gwei is 0.002 native, at 3000 tokens per native = 6.
	cost := quote.MaxCost(op)
	assert.True(t, cost.Equal(decimal.RequireFromString("6")), "got %s", cost)
}

func TestTokenQuoteMaxCostNilFields(t *testing.T) {
	quote := &TokenQuote{ExchangeRate: decimal.RequireFromString("3000")}
	assert.True(t, quote.MaxCost(draftOp()).IsZero())
}
