// Package bundler is the client side of the ERC-4337 bundler JSON-RPC
// convention: gas estimation, submission and receipt retrieval. The bundler
// RPC is stateless; every call stands on its own.
package bundler

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/LumenWallet/lumen-core/pkg/erc4337/userop"
)

// Receipt polling schedule: exponential backoff, capped. Bundlers typically
// include within 2-5s; the cap keeps late polls cheap.
const (
	DefaultReceiptTimeout = 60 * time.Second

	pollInitialInterval = 1 * time.Second
	pollMaxInterval     = 5 * time.Second
	pollBackoffFactor   = 1.5
)

// BundlerClient talks to one ERC-4337 bundler endpoint.
type BundlerClient struct {
	client *rpc.Client
	url    string
}

// NewBundlerClient connects to the given URL. DialHTTP also supports
// WebSocket endpoints.
func NewBundlerClient(url string) (*BundlerClient, error) {
	c, err := rpc.DialHTTP(url)
	if err != nil {
		return nil, fmt.Errorf("error creating bundler client: %w", err)
	}
	return &BundlerClient{client: c, url: url}, nil
}

func (bc *BundlerClient) Close() {
	bc.client.Close()
}

func (bc *BundlerClient) URL() string {
	return bc.url
}

// EstimateUserOperationGas simulates a draft operation and returns the gas
// triple. The draft's signature field is ignored by validation but its length
// is not, so callers pass a dummy signature of the final size.
// https://eips.ethereum.org/EIPS/eip-4337#rpc-methods-eth-namespace
func (bc *BundlerClient) EstimateUserOperationGas(
	ctx context.Context,
	op *userop.UserOperation,
	entrypoint common.Address,
	// State override set, same semantics as eth_call's. Usually empty.
	override map[string]any,
) (*GasEstimation, error) {
	var result struct {
		PreVerificationGas   string `json:"preVerificationGas"`
		VerificationGasLimit string `json:"verificationGasLimit"`
		CallGasLimit         string `json:"callGasLimit"`
	}

	if override == nil {
		override = map[string]any{}
	}

	err := bc.client.CallContext(ctx, &result, "eth_estimateUserOperationGas", toWire(op), entrypoint.Hex(), override)
	if err != nil {
		return nil, wrapRPCError("eth_estimateUserOperationGas", err)
	}

	estimation := &GasEstimation{
		PreVerificationGas:   new(big.Int),
		VerificationGasLimit: new(big.Int),
		CallGasLimit:         new(big.Int),
	}

	for _, q := range []struct {
		field string
		dst   *big.Int
	}{
		{result.PreVerificationGas, estimation.PreVerificationGas},
		{result.VerificationGasLimit, estimation.VerificationGasLimit},
		{result.CallGasLimit, estimation.CallGasLimit},
	} {
		if len(q.field) < 3 || q.field[:2] != "0x" {
			return nil, &EstimationError{Message: fmt.Sprintf("bundler returned malformed gas quantity %q", q.field)}
		}
		if _, ok := q.dst.SetString(q.field[2:], 16); !ok {
			return nil, &EstimationError{Message: fmt.Sprintf("bundler returned malformed gas quantity %q", q.field)}
		}
	}

	return estimation, nil
}

// SendUserOperation submits a signed operation and returns the bundler's
// userOpHash. A returned hash means the bundler accepted the operation into
// its mempool; only then is the operation considered submitted.
func (bc *BundlerClient) SendUserOperation(
	ctx context.Context,
	op *userop.UserOperation,
	entrypoint common.Address,
) (common.Hash, error) {
	var userOpHash string
	err := bc.client.CallContext(ctx, &userOpHash, "eth_sendUserOperation", toWire(op), entrypoint.Hex())
	if err != nil {
		return common.Hash{}, wrapRPCError("eth_sendUserOperation", err)
	}
	if userOpHash == "" {
		return common.Hash{}, &TransportError{Op: "eth_sendUserOperation", Err: fmt.Errorf("bundler returned empty hash")}
	}
	return common.HexToHash(userOpHash), nil
}

// GetUserOperationReceipt fetches a receipt. A nil receipt with nil error
// means the operation is not yet included.
func (bc *BundlerClient) GetUserOperationReceipt(ctx context.Context, hash common.Hash) (*Receipt, error) {
	var receipt *Receipt
	err := bc.client.CallContext(ctx, &receipt, "eth_getUserOperationReceipt", hash.Hex())
	if err != nil {
		return nil, wrapRPCError("eth_getUserOperationReceipt", err)
	}
	return receipt, nil
}

// WaitForReceipt polls until a receipt appears or the window elapses. Timeout
// yields ErrReceiptPending, not a failure: the operation may still mine, and
// the caller re-polls later with the same hash. Transient poll errors are
// tolerated; the loop keeps going until the window closes.
func (bc *BundlerClient) WaitForReceipt(ctx context.Context, hash common.Hash, timeout time.Duration) (*Receipt, error) {
	if timeout <= 0 {
		timeout = DefaultReceiptTimeout
	}

	deadline := time.Now().Add(timeout)
	interval := pollInitialInterval

	for {
		receipt, err := bc.GetUserOperationReceipt(ctx, hash)
		if err == nil && receipt != nil {
			return receipt, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		if time.Now().After(deadline) {
			return nil, ErrReceiptPending
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(interval):
		}

		interval = time.Duration(float64(interval) * pollBackoffFactor)
		if interval > pollMaxInterval {
			interval = pollMaxInterval
		}
	}
}
