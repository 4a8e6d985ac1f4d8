// Package preset assembles complete UserOperations from user intent and
// drives them through signing, submission and confirmation. It owns the
// ordering rules: fresh nonce per build, estimation before sponsorship,
// re-estimation after sponsorship, signature last.
package preset

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/LumenWallet/lumen-core/core/chainio/aa"
	"github.com/LumenWallet/lumen-core/model"
	"github.com/LumenWallet/lumen-core/pkg/erc4337/bundler"
	"github.com/LumenWallet/lumen-core/pkg/erc4337/paymaster"
	"github.com/LumenWallet/lumen-core/pkg/erc4337/userop"
	"github.com/LumenWallet/lumen-core/pkg/logger"
)

// FeeOracle supplies the EIP-1559 fee pair for the builder's chain.
// *eip1559.CachedOracle satisfies it.
type FeeOracle interface {
	SuggestFee(ctx context.Context) (maxFeePerGas *big.Int, maxPriorityFeePerGas *big.Int, err error)
}

// BundlerService is the part of the bundler client the pipeline drives.
type BundlerService interface {
	EstimateUserOperationGas(ctx context.Context, op *userop.UserOperation, entrypoint common.Address, override map[string]any) (*bundler.GasEstimation, error)
	SendUserOperation(ctx context.Context, op *userop.UserOperation, entrypoint common.Address) (common.Hash, error)
	WaitForReceipt(ctx context.Context, hash common.Hash, timeout time.Duration) (*bundler.Receipt, error)
}

// SponsorshipService negotiates paymaster coverage. *paymaster.Client
// satisfies it.
type SponsorshipService interface {
	Sponsor(ctx context.Context, op *userop.UserOperation, entrypoint common.Address, chainID *big.Int, mode paymaster.Mode, token *common.Address) (*paymaster.SponsorshipResult, error)
}

// UnsignedOp is a fully built operation awaiting its owner signature. Every
// field except the signature is final; any later mutation invalidates the
// gas estimates it carries.
type UnsignedOp struct {
	Op      *userop.UserOperation
	ChainID *big.Int

	// Sponsorship is set when a paymaster accepted the operation.
	Sponsorship *paymaster.SponsorshipResult
}

// Builder constructs UserOperations for one chain. Builds for the same
// account serialize on a per-account mutex; different accounts proceed in
// parallel.
type Builder struct {
	chain      aa.ChainReader
	bundler    BundlerService
	sponsor    SponsorshipService
	fees       FeeOracle
	entrypoint common.Address
	logger     logger.Logger

	locks sync.Map // "chainID:sender" -> *sync.Mutex
}

// NewBuilder wires a builder. sponsor may be nil when no paymaster service is
// configured; sponsored builds then fail fast.
func NewBuilder(
	chain aa.ChainReader,
	bundlerClient BundlerService,
	sponsor SponsorshipService,
	fees FeeOracle,
	entrypoint common.Address,
	log logger.Logger,
) *Builder {
	return &Builder{
		chain:      chain,
		bundler:    bundlerClient,
		sponsor:    sponsor,
		fees:       fees,
		entrypoint: entrypoint,
		logger:     logger.EnsureLogger(log),
	}
}

func (b *Builder) accountLock(chainID *big.Int, sender common.Address) *sync.Mutex {
	key := fmt.Sprintf("%s:%s", chainID.String(), sender.Hex())
	mu, _ := b.locks.LoadOrStore(key, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// Build assembles a complete unsigned operation for the account. The account
// lock is held only for the duration of the build; the pipeline holds it
// across signing and submission instead.
func (b *Builder) Build(
	ctx context.Context,
	account *model.SmartAccount,
	calls []model.Call,
	mode paymaster.Mode,
	feeToken *common.Address,
) (*UnsignedOp, error) {
	mu := b.accountLock(account.ChainID, account.Address)
	mu.Lock()
	defer mu.Unlock()

	return b.buildLocked(ctx, account, calls, mode, feeToken)
}

// buildLocked runs the build with the account lock already held.
func (b *Builder) buildLocked(
	ctx context.Context,
	account *model.SmartAccount,
	calls []model.Call,
	mode paymaster.Mode,
	feeToken *common.Address,
) (*UnsignedOp, error) {
	if account.ChainID == nil {
		return nil, &aa.EncodingError{Field: "chainID", Reason: "nil"}
	}
	if mode != paymaster.ModeNone && b.sponsor == nil {
		return nil, fmt.Errorf("sponsorship mode %q requested but no paymaster service configured", mode)
	}

	callData, err := aa.PackCalls(calls)
	if err != nil {
		return nil, err
	}

	initCode, err := b.resolveInitCode(ctx, account)
	if err != nil {
		return nil, err
	}

	// Nonce is read from the EntryPoint on every build. A locally tracked
	// nonce would go stale the moment any other device submits for this
	// account.
	nonce, err := aa.GetNonce(ctx, b.chain, account.Address)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch account nonce: %w", err)
	}

	maxFeePerGas, maxPriorityFeePerGas, err := b.fees.SuggestFee(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to suggest gas fees: %w", err)
	}

	op := &userop.UserOperation{
		Sender:               account.Address,
		Nonce:                nonce,
		InitCode:             initCode,
		CallData:             callData,
		MaxFeePerGas:         maxFeePerGas,
		MaxPriorityFeePerGas: maxPriorityFeePerGas,
		PaymasterAndData:     make([]byte, 0),
	}

	if err := b.estimate(ctx, op); err != nil {
		return nil, err
	}

	var sponsorship *paymaster.SponsorshipResult
	if mode != paymaster.ModeNone {
		sponsorship, err = b.sponsor.Sponsor(ctx, op.WithDummySignature(), b.entrypoint, account.ChainID, mode, feeToken)
		if err != nil {
			// A decline is surfaced, not silently downgraded to self-funded
			// gas: paying gas from the account without the caller's say-so is
			// a spend decision.
			return nil, err
		}

		op.PaymasterAndData = sponsorship.PaymasterAndData
		applyGas(op, sponsorship)

		// paymasterAndData changed the verification work; earlier estimates
		// are void.
		if err := b.estimate(ctx, op); err != nil {
			return nil, err
		}
	}

	op.Signature = nil

	b.logger.Debug("built user operation",
		"sender", op.Sender.Hex(),
		"nonce", op.Nonce.String(),
		"deploying", len(op.InitCode) > 0,
		"sponsored", sponsorship != nil)

	return &UnsignedOp{Op: op, ChainID: new(big.Int).Set(account.ChainID), Sponsorship: sponsorship}, nil
}

// resolveInitCode returns the deployment initCode for a counterfactual
// account and nothing for a deployed one. The tracker's IsDeployed flag is
// trusted when set; when unset the chain is consulted, since the flag may lag
// a deployment made from another device.
func (b *Builder) resolveInitCode(ctx context.Context, account *model.SmartAccount) ([]byte, error) {
	if account.IsDeployed {
		return make([]byte, 0), nil
	}

	deployed, err := aa.IsDeployed(ctx, b.chain, account.Address)
	if err != nil {
		return nil, fmt.Errorf("failed to check account deployment: %w", err)
	}
	if deployed {
		return make([]byte, 0), nil
	}

	return aa.GetInitCodeForFactory(account.Owner, account.Factory, account.Salt)
}

// estimate runs bundler gas estimation with the dummy signature and writes
// the result into op.
func (b *Builder) estimate(ctx context.Context, op *userop.UserOperation) error {
	gas, err := b.bundler.EstimateUserOperationGas(ctx, op.WithDummySignature(), b.entrypoint, nil)
	if err != nil {
		return err
	}

	op.PreVerificationGas = gas.PreVerificationGas
	op.VerificationGasLimit = gas.VerificationGasLimit
	op.CallGasLimit = gas.CallGasLimit
	return nil
}

// applyGas adopts the sponsor's own simulation results where it provided
// them. They are starting points; the mandatory re-estimation still follows.
func applyGas(op *userop.UserOperation, s *paymaster.SponsorshipResult) {
	if s.PreVerificationGas != nil {
		op.PreVerificationGas = s.PreVerificationGas
	}
	if s.VerificationGasLimit != nil {
		op.VerificationGasLimit = s.VerificationGasLimit
	}
	if s.CallGasLimit != nil {
		op.CallGasLimit = s.CallGasLimit
	}
}
