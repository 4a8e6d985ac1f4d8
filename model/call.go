package model

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Call is one contract invocation inside a user action. A user action batches
// 1..N calls; order is preserved and significant, calls execute sequentially
// inside a single UserOperation.
type Call struct {
	To    common.Address `json:"to"`
	Value *big.Int       `json:"value"`
	Data  []byte         `json:"data"`
}

// NewCall normalizes nil Value/Data so downstream ABI packing never sees nil.
func NewCall(to common.Address, value *big.Int, data []byte) Call {
	if value == nil {
		value = big.NewInt(0)
	}
	if data == nil {
		data = make([]byte, 0)
	}
	return Call{To: to, Value: value, Data: data}
}
