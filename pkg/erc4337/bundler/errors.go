package bundler

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rpc"
)

// ErrReceiptPending is returned by WaitForReceipt when the polling window
// elapses without a receipt. It is not a failure: the operation may still
// land, and the caller should re-poll later with the same hash.
var ErrReceiptPending = errors.New("bundler: receipt not yet available")

// RejectReason classifies why a bundler refused an operation.
type RejectReason string

const (
	ReasonUnknown              RejectReason = "unknown"
	ReasonInvalidSignature     RejectReason = "invalid_signature"
	ReasonInvalidNonce         RejectReason = "invalid_nonce"
	ReasonInsufficientPrefund  RejectReason = "insufficient_prefund"
	ReasonSimulationRevert     RejectReason = "simulation_revert"
	ReasonPaymasterRejected    RejectReason = "paymaster_rejected"
	ReasonInvalidFields        RejectReason = "invalid_fields"
	ReasonExpiresTooSoon       RejectReason = "expires_too_soon"
	ReasonReplacementUnderpaid RejectReason = "replacement_underpriced"
)

// SubmissionError is a bundler rejection of a signed operation. It is fatal
// to this operation: the caller rebuilds from scratch with a fresh nonce and
// fresh gas, never resubmits the same payload.
type SubmissionError struct {
	Code    int
	Message string
	Reason  RejectReason
}

func (e *SubmissionError) Error() string {
	return fmt.Sprintf("bundler rejected operation (%s, code %d): %s", e.Reason, e.Code, e.Message)
}

// EstimationError is a simulation failure during gas estimation. The build
// aborts; no nonce is consumed.
type EstimationError struct {
	Code         int
	Message      string
	RevertReason string
}

func (e *EstimationError) Error() string {
	if e.RevertReason != "" {
		return fmt.Sprintf("gas estimation reverted: %s (%s)", e.RevertReason, e.Message)
	}
	return fmt.Sprintf("gas estimation failed (code %d): %s", e.Code, e.Message)
}

// TransportError is a network failure before any bundler acknowledgment.
// Nothing changed on-chain, so the same request may be retried a bounded
// number of times.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("bundler transport failure during %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// classifyReject maps ERC-4337 bundler error codes and AAxx entrypoint reason
// strings onto the closed reject taxonomy.
func classifyReject(code int, message string) RejectReason {
	msg := strings.ToLower(message)

	switch {
	case strings.Contains(message, "AA25") || strings.Contains(msg, "invalid account nonce"):
		return ReasonInvalidNonce
	case strings.Contains(message, "AA24") || strings.Contains(msg, "signature error") || strings.Contains(msg, "invalid signature"):
		return ReasonInvalidSignature
	case strings.Contains(message, "AA21") || strings.Contains(msg, "didn't pay prefund") || strings.Contains(msg, "prefund"):
		return ReasonInsufficientPrefund
	case strings.Contains(message, "AA31") || strings.Contains(message, "AA33") || strings.Contains(message, "AA34"):
		return ReasonPaymasterRejected
	case strings.Contains(message, "AA23") || strings.Contains(msg, "reverted"):
		return ReasonSimulationRevert
	}

	switch code {
	case -32500, -32501:
		return ReasonSimulationRevert
	case -32502, -32505:
		return ReasonInvalidFields
	case -32503:
		return ReasonExpiresTooSoon
	case -32504:
		return ReasonPaymasterRejected
	case -32507:
		return ReasonInvalidSignature
	case -32602:
		return ReasonInvalidFields
	}

	return ReasonUnknown
}

// decodeRevertReason extracts a readable reason from Error(string) revert
// data when a bundler attaches it to a JSON-RPC error.
func decodeRevertReason(data interface{}) string {
	hexStr, ok := data.(string)
	if !ok || !strings.HasPrefix(hexStr, "0x") {
		return ""
	}

	raw := common.FromHex(hexStr)
	// Error(string) selector
	if len(raw) < 4 || raw[0] != 0x08 || raw[1] != 0xc3 || raw[2] != 0x79 || raw[3] != 0xa0 {
		return ""
	}

	stringTy, err := abi.NewType("string", "", nil)
	if err != nil {
		return ""
	}
	out, err := abi.Arguments{{Type: stringTy}}.Unpack(raw[4:])
	if err != nil || len(out) == 0 {
		return ""
	}
	reason, _ := out[0].(string)
	return reason
}

// wrapRPCError sorts an error from the RPC layer into the taxonomy: JSON-RPC
// error responses become typed rejections, anything else is transport.
func wrapRPCError(op string, err error) error {
	var rpcErr rpc.Error
	if !errors.As(err, &rpcErr) {
		return &TransportError{Op: op, Err: err}
	}

	code := rpcErr.ErrorCode()
	message := rpcErr.Error()

	if op == "eth_estimateUserOperationGas" {
		reason := ""
		var dataErr rpc.DataError
		if errors.As(err, &dataErr) {
			reason = decodeRevertReason(dataErr.ErrorData())
		}
		return &EstimationError{Code: code, Message: message, RevertReason: reason}
	}

	return &SubmissionError{Code: code, Message: message, Reason: classifyReject(code, message)}
}
