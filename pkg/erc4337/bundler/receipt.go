package bundler

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
)

// Receipt is the terminal record for a UserOperation, keyed by the
// bundler-assigned userOpHash. It is the only authority for flipping an
// account's deployment state.
type Receipt struct {
	UserOpHash    common.Hash    `json:"userOpHash"`
	Sender        common.Address `json:"sender"`
	Nonce         *hexutil.Big   `json:"nonce"`
	Paymaster     common.Address `json:"paymaster,omitempty"`
	ActualGasUsed *hexutil.Big   `json:"actualGasUsed"`
	ActualGasCost *hexutil.Big   `json:"actualGasCost"`
	Success       bool           `json:"success"`
	Reason        string         `json:"reason,omitempty"`
	Logs          []*types.Log   `json:"logs,omitempty"`

	TxReceipt *TxReceipt `json:"receipt,omitempty"`
}

// TxReceipt references the bundle transaction the operation was included in.
type TxReceipt struct {
	TransactionHash common.Hash  `json:"transactionHash"`
	BlockHash       common.Hash  `json:"blockHash"`
	BlockNumber     *hexutil.Big `json:"blockNumber"`
	GasUsed         *hexutil.Big `json:"gasUsed"`
}
