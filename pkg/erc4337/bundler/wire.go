package bundler

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/LumenWallet/lumen-core/pkg/erc4337/userop"
)

// wireUserOperation is the JSON form bundlers expect: every quantity and blob
// as 0x-prefixed hex strings.
type wireUserOperation struct {
	Sender               common.Address `json:"sender"`
	Nonce                string         `json:"nonce"`
	InitCode             string         `json:"initCode"`
	CallData             string         `json:"callData"`
	CallGasLimit         string         `json:"callGasLimit"`
	VerificationGasLimit string         `json:"verificationGasLimit"`
	PreVerificationGas   string         `json:"preVerificationGas"`
	MaxFeePerGas         string         `json:"maxFeePerGas"`
	MaxPriorityFeePerGas string         `json:"maxPriorityFeePerGas"`
	PaymasterAndData     string         `json:"paymasterAndData"`
	Signature            string         `json:"signature"`
}

func hexQuantity(v *big.Int) string {
	if v == nil {
		return "0x0"
	}
	return fmt.Sprintf("0x%x", v)
}

func hexBlob(b []byte) string {
	return fmt.Sprintf("0x%x", b)
}

func toWire(op *userop.UserOperation) wireUserOperation {
	return wireUserOperation{
		Sender:               op.Sender,
		Nonce:                hexQuantity(op.Nonce),
		InitCode:             hexBlob(op.InitCode),
		CallData:             hexBlob(op.CallData),
		CallGasLimit:         hexQuantity(op.CallGasLimit),
		VerificationGasLimit: hexQuantity(op.VerificationGasLimit),
		PreVerificationGas:   hexQuantity(op.PreVerificationGas),
		MaxFeePerGas:         hexQuantity(op.MaxFeePerGas),
		MaxPriorityFeePerGas: hexQuantity(op.MaxPriorityFeePerGas),
		PaymasterAndData:     hexBlob(op.PaymasterAndData),
		Signature:            hexBlob(op.Signature),
	}
}
