// Package aa holds the pure encoding layer of the smart-account pipeline:
// call-data packing for the account contract, initCode construction, CREATE2
// address derivation and the canonical on-chain nonce read.
package aa

import (
	"context"
	"fmt"
	"math/big"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/samber/lo"

	"github.com/LumenWallet/lumen-core/model"
)

// ChainReader is the subset of an Ethereum RPC client the codec needs.
// *ethclient.Client satisfies it.
type ChainReader interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error)
}

// EncodingError reports malformed input to the codec. It is a programmer
// error: fatal to the current build and never retried.
type EncodingError struct {
	Field  string
	Reason string
}

func (e *EncodingError) Error() string {
	return fmt.Sprintf("encoding error: %s: %s", e.Field, e.Reason)
}

// PackExecute encodes execute(dest, value, func) for the account contract.
func PackExecute(target common.Address, ethValue *big.Int, calldata []byte) ([]byte, error) {
	if ethValue == nil {
		ethValue = big.NewInt(0)
	}
	if calldata == nil {
		// the ABI encoder mis-handles nil dynamic bytes
		calldata = make([]byte, 0)
	}
	return accountABI.Pack("execute", target, ethValue, calldata)
}

// PackExecuteBatch encodes executeBatch(dest[], value[], func[]) preserving
// call order.
func PackExecuteBatch(calls []model.Call) ([]byte, error) {
	if len(calls) == 0 {
		return nil, &EncodingError{Field: "calls", Reason: "empty batch"}
	}

	targets := lo.Map(calls, func(c model.Call, _ int) common.Address { return c.To })
	values := lo.Map(calls, func(c model.Call, _ int) *big.Int {
		if c.Value == nil {
			return big.NewInt(0)
		}
		return c.Value
	})
	calldatas := lo.Map(calls, func(c model.Call, _ int) []byte {
		if c.Data == nil {
			return make([]byte, 0)
		}
		return c.Data
	})

	return accountABI.Pack("executeBatch", targets, values, calldatas)
}

// PackCalls encodes a call batch the way the account contract expects it:
// execute for a single call, executeBatch otherwise.
func PackCalls(calls []model.Call) ([]byte, error) {
	switch len(calls) {
	case 0:
		return nil, &EncodingError{Field: "calls", Reason: "empty batch"}
	case 1:
		return PackExecute(calls[0].To, calls[0].Value, calls[0].Data)
	default:
		return PackExecuteBatch(calls)
	}
}

// UnpackCalls is the inverse of PackCalls. Used by tests and by callers that
// need to display what an operation will do.
func UnpackCalls(callData []byte) ([]model.Call, error) {
	if len(callData) < 4 {
		return nil, &EncodingError{Field: "callData", Reason: "shorter than a selector"}
	}

	method, err := accountABI.MethodById(callData[:4])
	if err != nil {
		return nil, &EncodingError{Field: "callData", Reason: "unknown selector"}
	}

	args, err := method.Inputs.Unpack(callData[4:])
	if err != nil {
		return nil, &EncodingError{Field: "callData", Reason: err.Error()}
	}

	switch method.Name {
	case "execute":
		return []model.Call{model.NewCall(
			args[0].(common.Address),
			args[1].(*big.Int),
			args[2].([]byte),
		)}, nil
	case "executeBatch":
		targets := args[0].([]common.Address)
		values := args[1].([]*big.Int)
		calldatas := args[2].([][]byte)
		if len(targets) != len(values) || len(targets) != len(calldatas) {
			return nil, &EncodingError{Field: "callData", Reason: "batch arrays disagree on length"}
		}
		calls := make([]model.Call, len(targets))
		for i := range targets {
			calls[i] = model.NewCall(targets[i], values[i], calldatas[i])
		}
		return calls, nil
	default:
		return nil, &EncodingError{Field: "callData", Reason: "not an execute call"}
	}
}

// GetInitCode returns factory address ++ createAccount(owner, salt) calldata,
// the initCode field of a deploying UserOperation.
func GetInitCode(owner common.Address, salt *big.Int) ([]byte, error) {
	return GetInitCodeForFactory(owner, factoryAddress, salt)
}

func GetInitCodeForFactory(owner common.Address, factory common.Address, salt *big.Int) ([]byte, error) {
	if salt == nil {
		return nil, &EncodingError{Field: "salt", Reason: "nil"}
	}

	calldata, err := factoryABI.Pack("createAccount", owner, salt)
	if err != nil {
		return nil, err
	}

	data := make([]byte, 0, len(factory)+len(calldata))
	data = append(data, factory.Bytes()...)
	data = append(data, calldata...)
	return data, nil
}

// ComputeCounterfactualAddress derives the account address the factory will
// deploy to: keccak256(0xff ++ factory ++ salt ++ keccak256(initCode))[12:].
// Pure; must match the on-chain factory bit for bit.
func ComputeCounterfactualAddress(factory common.Address, owner common.Address, salt *big.Int) (common.Address, error) {
	if salt == nil {
		return common.Address{}, &EncodingError{Field: "salt", Reason: "nil"}
	}

	initCode, err := GetInitCodeForFactory(owner, factory, salt)
	if err != nil {
		return common.Address{}, err
	}
	initCodeHash := crypto.Keccak256(initCode)

	saltBytes := make([]byte, 32)
	salt.FillBytes(saltBytes)

	var b []byte
	b = append(b, 0xff)
	b = append(b, factory.Bytes()...)
	b = append(b, saltBytes...)
	b = append(b, initCodeHash...)

	return common.BytesToAddress(crypto.Keccak256(b)[12:]), nil
}

// GetSenderAddress asks the factory for the account address via eth_call.
// This is the authoritative derivation; ComputeCounterfactualAddress is the
// offline equivalent.
func GetSenderAddress(ctx context.Context, reader ChainReader, owner common.Address, salt *big.Int) (*common.Address, error) {
	if salt == nil {
		return nil, &EncodingError{Field: "salt", Reason: "nil"}
	}

	calldata, err := factoryABI.Pack("getAddress", owner, salt)
	if err != nil {
		return nil, err
	}

	out, err := reader.CallContract(ctx, ethereum.CallMsg{To: &factoryAddress, Data: calldata}, nil)
	if err != nil {
		return nil, fmt.Errorf("factory getAddress call failed: %w", err)
	}

	results, err := factoryABI.Unpack("getAddress", out)
	if err != nil {
		return nil, fmt.Errorf("factory getAddress returned malformed data: %w", err)
	}

	sender := results[0].(common.Address)
	return &sender, nil
}

// GetNonce reads the account's current nonce from the EntryPoint nonce
// manager. This is the only nonce source the pipeline trusts; it is fetched
// fresh on every build.
func GetNonce(ctx context.Context, reader ChainReader, sender common.Address) (*big.Int, error) {
	calldata, err := entrypointABI.Pack("getNonce", sender, big.NewInt(0))
	if err != nil {
		return nil, err
	}

	out, err := reader.CallContract(ctx, ethereum.CallMsg{To: &EntrypointAddress, Data: calldata}, nil)
	if err != nil {
		return nil, fmt.Errorf("entrypoint getNonce call failed: %w", err)
	}

	results, err := entrypointABI.Unpack("getNonce", out)
	if err != nil {
		return nil, fmt.Errorf("entrypoint getNonce returned malformed data: %w", err)
	}

	return results[0].(*big.Int), nil
}

// IsDeployed checks for contract code at the account address. Receipts are
// the authority for flipping deployment state; this is the secondary check.
func IsDeployed(ctx context.Context, reader ChainReader, account common.Address) (bool, error) {
	code, err := reader.CodeAt(ctx, account, nil)
	if err != nil {
		return false, err
	}
	return len(code) > 0, nil
}
