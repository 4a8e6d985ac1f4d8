// Package userop defines the ERC-4337 v0.6 UserOperation and its canonical
// signing hash. The hash layout is fixed by the EntryPoint contract; nothing
// in this package has creative freedom.
package userop

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// UserOperation is the wire/signing unit submitted to a bundler in place of a
// normal transaction.
type UserOperation struct {
	Sender               common.Address `json:"sender"`
	Nonce                *big.Int       `json:"nonce"`
	InitCode             []byte         `json:"initCode"`
	CallData             []byte         `json:"callData"`
	CallGasLimit         *big.Int       `json:"callGasLimit"`
	VerificationGasLimit *big.Int       `json:"verificationGasLimit"`
	PreVerificationGas   *big.Int       `json:"preVerificationGas"`
	MaxFeePerGas         *big.Int       `json:"maxFeePerGas"`
	MaxPriorityFeePerGas *big.Int       `json:"maxPriorityFeePerGas"`
	PaymasterAndData     []byte         `json:"paymasterAndData"`
	Signature            []byte         `json:"signature"`
}

// DummySignature is a semi-valid 65-byte placeholder used during gas
// estimation: verification cost depends on signature length, so the draft must
// carry a signature of the exact final size. The bytes are the placeholder
// convention bundlers accept for simulation.
var DummySignature = common.FromHex("0xfffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffff7aaf9bc18d46abfb495542ad30ce17ccc5da9c9ead9fdb3feeb36f1240fa4e61b")

var (
	addressTy = mustNewType("address")
	uint256Ty = mustNewType("uint256")
	bytes32Ty = mustNewType("bytes32")

	packArgs = abi.Arguments{
		{Name: "sender", Type: addressTy},
		{Name: "nonce", Type: uint256Ty},
		{Name: "hashInitCode", Type: bytes32Ty},
		{Name: "hashCallData", Type: bytes32Ty},
		{Name: "callGasLimit", Type: uint256Ty},
		{Name: "verificationGasLimit", Type: uint256Ty},
		{Name: "preVerificationGas", Type: uint256Ty},
		{Name: "maxFeePerGas", Type: uint256Ty},
		{Name: "maxPriorityFeePerGas", Type: uint256Ty},
		{Name: "hashPaymasterAndData", Type: bytes32Ty},
	}

	hashArgs = abi.Arguments{
		{Name: "userOpHash", Type: bytes32Ty},
		{Name: "entryPoint", Type: addressTy},
		{Name: "chainId", Type: uint256Ty},
	}
)

func mustNewType(t string) abi.Type {
	ty, err := abi.NewType(t, "", nil)
	if err != nil {
		panic(err)
	}
	return ty
}

func orZero(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return v
}

// PackForSignature ABI-encodes the operation without its signature, with the
// dynamic byte blobs replaced by their keccak256 hashes, exactly as the
// EntryPoint's getUserOpHash does.
func (op *UserOperation) PackForSignature() []byte {
	packed, err := packArgs.Pack(
		op.Sender,
		orZero(op.Nonce),
		crypto.Keccak256Hash(op.InitCode),
		crypto.Keccak256Hash(op.CallData),
		orZero(op.CallGasLimit),
		orZero(op.VerificationGasLimit),
		orZero(op.PreVerificationGas),
		orZero(op.MaxFeePerGas),
		orZero(op.MaxPriorityFeePerGas),
		crypto.Keccak256Hash(op.PaymasterAndData),
	)
	if err != nil {
		// static-typed arguments cannot fail to pack
		panic(err)
	}
	return packed
}

// GetUserOpHash returns the hash the owner key signs:
// keccak256(abi.encode(keccak256(pack(op)), entryPoint, chainID)).
// Any deviation produces a hash the account contract will never accept.
func (op *UserOperation) GetUserOpHash(entryPoint common.Address, chainID *big.Int) common.Hash {
	inner := crypto.Keccak256Hash(op.PackForSignature())

	packed, err := hashArgs.Pack(inner, entryPoint, orZero(chainID))
	if err != nil {
		panic(err)
	}
	return crypto.Keccak256Hash(packed)
}

// WithDummySignature returns a copy carrying the estimation placeholder.
func (op *UserOperation) WithDummySignature() *UserOperation {
	dup := op.Copy()
	dup.Signature = append([]byte{}, DummySignature...)
	return dup
}

// Copy returns a deep copy; big.Ints and byte slices are not shared.
func (op *UserOperation) Copy() *UserOperation {
	dup := &UserOperation{
		Sender:           op.Sender,
		InitCode:         append([]byte{}, op.InitCode...),
		CallData:         append([]byte{}, op.CallData...),
		PaymasterAndData: append([]byte{}, op.PaymasterAndData...),
		Signature:        append([]byte{}, op.Signature...),
	}
	for dst, src := range map[**big.Int]*big.Int{
		&dup.Nonce:                op.Nonce,
		&dup.CallGasLimit:         op.CallGasLimit,
		&dup.VerificationGasLimit: op.VerificationGasLimit,
		&dup.PreVerificationGas:   op.PreVerificationGas,
		&dup.MaxFeePerGas:         op.MaxFeePerGas,
		&dup.MaxPriorityFeePerGas: op.MaxPriorityFeePerGas,
	} {
		if src != nil {
			*dst = new(big.Int).Set(src)
		}
	}
	return dup
}

// ToMap renders the operation in the hex-string form ERC-4337 RPC methods
// expect for params. Nil quantities serialize as "0x0" so drafts can go
// through estimation endpoints.
func (op *UserOperation) ToMap() map[string]any {
	quantity := func(v *big.Int) string {
		if v == nil {
			return "0x0"
		}
		return fmt.Sprintf("0x%x", v)
	}
	blob := func(b []byte) string {
		return fmt.Sprintf("0x%x", b)
	}
	return map[string]any{
		"sender":               op.Sender.Hex(),
		"nonce":                quantity(op.Nonce),
		"initCode":             blob(op.InitCode),
		"callData":             blob(op.CallData),
		"callGasLimit":         quantity(op.CallGasLimit),
		"verificationGasLimit": quantity(op.VerificationGasLimit),
		"preVerificationGas":   quantity(op.PreVerificationGas),
		"maxFeePerGas":         quantity(op.MaxFeePerGas),
		"maxPriorityFeePerGas": quantity(op.MaxPriorityFeePerGas),
		"paymasterAndData":     blob(op.PaymasterAndData),
		"signature":            blob(op.Signature),
	}
}

// Submittable reports whether every gas and fee field is populated and a
// signature is attached. Pure simulation drafts are exempt from this check.
func (op *UserOperation) Submittable() bool {
	for _, v := range []*big.Int{
		op.CallGasLimit, op.VerificationGasLimit, op.PreVerificationGas,
		op.MaxFeePerGas, op.MaxPriorityFeePerGas,
	} {
		if v == nil || v.Sign() <= 0 {
			return false
		}
	}
	return op.Nonce != nil && len(op.Signature) > 0
}
