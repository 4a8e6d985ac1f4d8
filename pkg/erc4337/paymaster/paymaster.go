// Package paymaster negotiates gas sponsorship for UserOperations with an
// ERC-7677 style paymaster service over pm_sponsorUserOperation. The service
// is advisory: a decline never fails the pipeline, the caller falls back to
// self-funded gas.
package paymaster

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-resty/resty/v2"
	"github.com/mitchellh/mapstructure"
	"github.com/shopspring/decimal"

	"github.com/LumenWallet/lumen-core/pkg/erc4337/userop"
	"github.com/LumenWallet/lumen-core/pkg/logger"
)

// Mode selects how gas for an operation is paid.
type Mode string

const (
	// ModeNone pays gas from the account's native balance. No paymaster call.
	ModeNone Mode = "none"
	// ModeSponsored asks the service to cover gas under its own policy.
	ModeSponsored Mode = "sponsored"
	// ModeERC20 pays gas in an ERC-20 token at the service's quoted rate.
	ModeERC20 Mode = "erc20"
)

// PaymasterError is any failure to obtain sponsorship. Recoverable
// distinguishes a policy decline, where falling back to self-funded gas is
// correct, from a transport fault where the service's answer is unknown.
type PaymasterError struct {
	Code    int
	Message string

	recoverable bool
}

func (e *PaymasterError) Error() string {
	if e.recoverable {
		return fmt.Sprintf("paymaster declined sponsorship (code %d): %s", e.Code, e.Message)
	}
	return fmt.Sprintf("paymaster unreachable: %s", e.Message)
}

// Recoverable reports whether the decline is a deliberate policy answer. The
// caller may proceed without sponsorship; a false value means the service
// never answered and the caller decides whether unsponsored gas is acceptable.
func (e *PaymasterError) Recoverable() bool {
	return e.recoverable
}

// TokenQuote is the ERC-20 pricing attached to an erc20-mode sponsorship.
// ExchangeRate is token units per one native token.
type TokenQuote struct {
	Token        common.Address
	Symbol       string
	Decimals     int
	ExchangeRate decimal.Decimal
}

// MaxCost returns the worst-case fee in token units for an operation carrying
// this quote: total gas limit times maxFeePerGas, converted at the quoted
// rate.
func (q *TokenQuote) MaxCost(op *userop.UserOperation) decimal.Decimal {
	gas := new(big.Int)
	for _, v := range []*big.Int{op.CallGasLimit, op.VerificationGasLimit, op.PreVerificationGas} {
		if v != nil {
			gas.Add(gas, v)
		}
	}
	if op.MaxFeePerGas != nil {
		gas.Mul(gas, op.MaxFeePerGas)
	} else {
		gas.SetInt64(0)
	}

	// gas is now worst-case wei; one native token is 1e18 wei.
	return decimal.NewFromBigInt(gas, 0).Mul(q.ExchangeRate).Div(decimal.New(1, 18))
}

// SponsorshipResult is the service's accepted terms. The gas fields are the
// service's own simulation results and replace the draft's; the operation must
// still be re-estimated with the new paymasterAndData before signing.
type SponsorshipResult struct {
	PaymasterAndData     []byte
	PreVerificationGas   *big.Int
	VerificationGasLimit *big.Int
	CallGasLimit         *big.Int

	// TokenQuote is set only for ModeERC20.
	TokenQuote *TokenQuote
}

type jsonRPCRequest struct {
	Jsonrpc string        `json:"jsonrpc"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
	Id      int64         `json:"id"`
}

type jsonRPCResponse struct {
	Jsonrpc string                 `json:"jsonrpc"`
	Id      int64                  `json:"id"`
	Result  map[string]interface{} `json:"result,omitempty"`
	Error   *rpcError              `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// sponsorshipWire is the pm_sponsorUserOperation result payload before
// decoding into native types.
type sponsorshipWire struct {
	PaymasterAndData     string `mapstructure:"paymasterAndData"`
	PreVerificationGas   string `mapstructure:"preVerificationGas"`
	VerificationGasLimit string `mapstructure:"verificationGasLimit"`
	CallGasLimit         string `mapstructure:"callGasLimit"`

	TokenQuote *struct {
		Token        string `mapstructure:"token"`
		Symbol       string `mapstructure:"symbol"`
		Decimals     int    `mapstructure:"decimals"`
		ExchangeRate string `mapstructure:"exchangeRate"`
	} `mapstructure:"tokenQuote"`
}

// Client talks to one paymaster service endpoint.
type Client struct {
	httpClient *resty.Client
	url        string
	logger     logger.Logger

	requestID atomic.Int64
}

func NewClient(url string, log logger.Logger) *Client {
	httpClient := resty.New()
	httpClient.SetTimeout(30 * time.Second)
	httpClient.SetHeader("Content-Type", "application/json")

	return &Client{
		httpClient: httpClient,
		url:        url,
		logger:     logger.EnsureLogger(log),
	}
}

// Sponsor asks the service to take over gas payment for the draft operation.
// The draft must carry its callData, nonce and initCode; gas fields may be
// zero since the service runs its own simulation. ModeNone is the caller's
// decision, not a negotiation, and is rejected here.
func (c *Client) Sponsor(
	ctx context.Context,
	op *userop.UserOperation,
	entrypoint common.Address,
	chainID *big.Int,
	mode Mode,
	// Token the fee is paid in; required for ModeERC20, ignored otherwise.
	token *common.Address,
) (*SponsorshipResult, error) {
	if mode == ModeNone || mode == "" {
		return nil, fmt.Errorf("sponsorship mode %q requires no paymaster exchange", mode)
	}
	if mode == ModeERC20 && token == nil {
		return nil, fmt.Errorf("erc20 sponsorship requires a fee token")
	}

	sponsorCtx := map[string]interface{}{"mode": string(mode)}
	if mode == ModeERC20 {
		sponsorCtx["token"] = token.Hex()
	}

	request := jsonRPCRequest{
		Jsonrpc: "2.0",
		Method:  "pm_sponsorUserOperation",
		Params: []interface{}{
			op.ToMap(),
			entrypoint.Hex(),
			fmt.Sprintf("0x%x", chainID),
			sponsorCtx,
		},
		Id: c.requestID.Add(1),
	}

	var response jsonRPCResponse
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetBody(request).
		SetResult(&response).
		Post(c.url)
	if err != nil {
		return nil, &PaymasterError{Message: err.Error()}
	}
	if resp.IsError() {
		return nil, &PaymasterError{Code: resp.StatusCode(), Message: fmt.Sprintf("http status %s", resp.Status())}
	}

	if response.Error != nil {
		c.logger.Debug("paymaster declined operation",
			"sender", op.Sender.Hex(),
			"mode", string(mode),
			"code", response.Error.Code,
			"message", response.Error.Message)
		return nil, &PaymasterError{
			Code:        response.Error.Code,
			Message:     response.Error.Message,
			recoverable: true,
		}
	}

	return decodeSponsorship(response.Result)
}

func decodeSponsorship(result map[string]interface{}) (*SponsorshipResult, error) {
	var wire sponsorshipWire
	if err := mapstructure.Decode(result, &wire); err != nil {
		return nil, &PaymasterError{Message: fmt.Sprintf("malformed sponsorship payload: %v", err)}
	}
	if !strings.HasPrefix(wire.PaymasterAndData, "0x") || len(wire.PaymasterAndData) < 2+2*common.AddressLength {
		return nil, &PaymasterError{Message: fmt.Sprintf("sponsorship missing paymasterAndData: %q", wire.PaymasterAndData)}
	}

	out := &SponsorshipResult{
		PaymasterAndData: common.FromHex(wire.PaymasterAndData),
	}

	for _, q := range []struct {
		name  string
		field string
		dst   **big.Int
	}{
		{"preVerificationGas", wire.PreVerificationGas, &out.PreVerificationGas},
		{"verificationGasLimit", wire.VerificationGasLimit, &out.VerificationGasLimit},
		{"callGasLimit", wire.CallGasLimit, &out.CallGasLimit},
	} {
		// Gas fields are optional; a service may leave estimation to the caller.
		if q.field == "" {
			continue
		}
		v, err := parseQuantity(q.field)
		if err != nil {
			return nil, &PaymasterError{Message: fmt.Sprintf("malformed %s in sponsorship: %v", q.name, err)}
		}
		*q.dst = v
	}

	if wire.TokenQuote != nil {
		rate, err := decimal.NewFromString(wire.TokenQuote.ExchangeRate)
		if err != nil {
			return nil, &PaymasterError{Message: fmt.Sprintf("malformed exchange rate %q: %v", wire.TokenQuote.ExchangeRate, err)}
		}
		if !common.IsHexAddress(wire.TokenQuote.Token) {
			return nil, &PaymasterError{Message: fmt.Sprintf("malformed quote token %q", wire.TokenQuote.Token)}
		}
		out.TokenQuote = &TokenQuote{
			Token:        common.HexToAddress(wire.TokenQuote.Token),
			Symbol:       wire.TokenQuote.Symbol,
			Decimals:     wire.TokenQuote.Decimals,
			ExchangeRate: rate,
		}
	}

	return out, nil
}

func parseQuantity(s string) (*big.Int, error) {
	if !strings.HasPrefix(s, "0x") || len(s) < 3 {
		return nil, fmt.Errorf("not a hex quantity: %q", s)
	}
	v, ok := new(big.Int).SetString(s[2:], 16)
	if !ok {
		return nil, fmt.Errorf("not a hex quantity: %q", s)
	}
	return v, nil
}
