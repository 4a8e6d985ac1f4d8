package preset

import (
	"context"
	"errors"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/oklog/ulid/v2"

	"github.com/LumenWallet/lumen-core/core/chainio/signer"
	"github.com/LumenWallet/lumen-core/metrics"
	"github.com/LumenWallet/lumen-core/model"
	"github.com/LumenWallet/lumen-core/pkg/erc4337/bundler"
	"github.com/LumenWallet/lumen-core/pkg/erc4337/paymaster"
	"github.com/LumenWallet/lumen-core/pkg/logger"
)

// EventKind is one stage of an operation's lifecycle.
type EventKind string

const (
	EventEstimating        EventKind = "estimating"
	EventAwaitingSignature EventKind = "awaiting_signature"
	EventSubmitted         EventKind = "submitted"
	EventConfirmed         EventKind = "confirmed"
	EventReverted          EventKind = "reverted"
	// EventPending means the polling window closed without a receipt. The
	// operation may still land; re-poll later with the same hash.
	EventPending EventKind = "pending"
	EventFailed  EventKind = "failed"
)

// Terminal reports whether the kind ends the event stream.
func (k EventKind) Terminal() bool {
	switch k {
	case EventConfirmed, EventReverted, EventPending, EventFailed:
		return true
	}
	return false
}

// PipelineEvent is one progress report for a submission. ID correlates every
// event of one run across logs and metrics.
type PipelineEvent struct {
	ID   ulid.ULID
	Kind EventKind

	// UserOpHash is set from EventSubmitted onward.
	UserOpHash common.Hash
	// Receipt is set on EventConfirmed and EventReverted.
	Receipt *bundler.Receipt
	// Reason carries the revert reason on EventReverted.
	Reason string
	// Err is set on EventFailed.
	Err error
}

const (
	defaultSubmitAttempts   = 3
	defaultSubmitRetryDelay = 2 * time.Second
)

// Pipeline runs the full lifecycle: build, sign, submit, confirm. One call to
// BuildAndSubmit is one operation; the pipeline never retries a definitively
// rejected operation, it reports and lets the caller rebuild.
type Pipeline struct {
	builder *Builder
	oracle  signer.SigningOracle
	metrics metrics.PipelineMetrics
	logger  logger.Logger

	receiptTimeout   time.Duration
	submitAttempts   int
	submitRetryDelay time.Duration

	// onReceipt, when set, observes confirmed and reverted receipts.
	onReceipt func(receipt *bundler.Receipt)
}

func NewPipeline(builder *Builder, oracle signer.SigningOracle, m metrics.PipelineMetrics, log logger.Logger) *Pipeline {
	if m == nil {
		m = metrics.NoopMetrics{}
	}
	return &Pipeline{
		builder:          builder,
		oracle:           oracle,
		metrics:          m,
		logger:           logger.EnsureLogger(log),
		receiptTimeout:   bundler.DefaultReceiptTimeout,
		submitAttempts:   defaultSubmitAttempts,
		submitRetryDelay: defaultSubmitRetryDelay,
	}
}

// SetReceiptTimeout overrides the confirmation polling window.
func (p *Pipeline) SetReceiptTimeout(d time.Duration) {
	if d > 0 {
		p.receiptTimeout = d
	}
}

// OnReceipt registers a receipt callback, invoked before the terminal event
// is emitted.
func (p *Pipeline) OnReceipt(fn func(receipt *bundler.Receipt)) {
	p.onReceipt = fn
}

// BuildAndSubmit runs one operation end to end and streams progress events.
// The channel is buffered for the whole lifecycle and closed after exactly
// one terminal event, so a slow consumer never stalls the pipeline.
func (p *Pipeline) BuildAndSubmit(
	ctx context.Context,
	account *model.SmartAccount,
	calls []model.Call,
	mode paymaster.Mode,
	feeToken *common.Address,
) <-chan PipelineEvent {
	events := make(chan PipelineEvent, 8)
	id := ulid.Make()

	go p.run(ctx, id, events, account, calls, mode, feeToken)

	return events
}

func (p *Pipeline) run(
	ctx context.Context,
	id ulid.ULID,
	events chan<- PipelineEvent,
	account *model.SmartAccount,
	calls []model.Call,
	mode paymaster.Mode,
	feeToken *common.Address,
) {
	defer close(events)

	emit := func(e PipelineEvent) {
		e.ID = id
		events <- e
	}
	fail := func(stage string, err error) {
		p.metrics.IncOpsFailed(stage)
		p.logger.Error("pipeline run failed", "id", id.String(), "stage", stage, "error", err)
		emit(PipelineEvent{Kind: EventFailed, Err: err})
	}

	// The account lock spans build through submission acknowledgment, so two
	// runs on one account cannot fetch the same nonce.
	mu := p.builder.accountLock(account.ChainID, account.Address)
	mu.Lock()
	locked := true
	unlock := func() {
		if locked {
			locked = false
			mu.Unlock()
		}
	}
	defer unlock()

	emit(PipelineEvent{Kind: EventEstimating})

	unsigned, err := p.builder.buildLocked(ctx, account, calls, mode, feeToken)
	if err != nil {
		var pmErr *paymaster.PaymasterError
		if errors.As(err, &pmErr) {
			p.metrics.IncPaymasterDeclined()
		}
		fail("build", err)
		return
	}
	p.metrics.IncOpsBuilt(string(mode))

	emit(PipelineEvent{Kind: EventAwaitingSignature})

	opHash := unsigned.Op.GetUserOpHash(p.builder.entrypoint, unsigned.ChainID)
	sig, err := p.oracle.SignUserOpHash(ctx, opHash)
	if err != nil {
		// Covers ErrUserCancelled: the unsigned draft is dropped, the lock
		// released, nothing was submitted.
		fail("sign", err)
		return
	}
	unsigned.Op.Signature = sig

	userOpHash, err := p.submit(ctx, unsigned)
	if err != nil {
		fail("submit", err)
		return
	}
	p.metrics.IncOpsSubmitted()
	p.logger.Info("user operation submitted",
		"id", id.String(),
		"userOpHash", userOpHash.Hex(),
		"sender", unsigned.Op.Sender.Hex(),
		"nonce", unsigned.Op.Nonce.String())

	emit(PipelineEvent{Kind: EventSubmitted, UserOpHash: userOpHash})

	// The nonce slot is consumed; holding the lock through receipt polling
	// would only block unrelated builds.
	unlock()

	receipt, err := p.builder.bundler.WaitForReceipt(ctx, userOpHash, p.receiptTimeout)
	switch {
	case errors.Is(err, bundler.ErrReceiptPending):
		emit(PipelineEvent{Kind: EventPending, UserOpHash: userOpHash})
	case err != nil:
		fail("receipt", err)
	case receipt.Success:
		p.metrics.IncOpsConfirmed()
		if p.onReceipt != nil {
			p.onReceipt(receipt)
		}
		emit(PipelineEvent{Kind: EventConfirmed, UserOpHash: userOpHash, Receipt: receipt})
	default:
		p.metrics.IncOpsReverted()
		if p.onReceipt != nil {
			p.onReceipt(receipt)
		}
		emit(PipelineEvent{Kind: EventReverted, UserOpHash: userOpHash, Receipt: receipt, Reason: receipt.Reason})
	}
}

// submit sends the signed operation, retrying only transport failures. A
// bundler rejection is definitive for this payload: the nonce slot may
// already be spoken for, so the caller must rebuild, never resubmit.
func (p *Pipeline) submit(ctx context.Context, unsigned *UnsignedOp) (common.Hash, error) {
	var lastErr error

	for attempt := 0; attempt < p.submitAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return common.Hash{}, ctx.Err()
			case <-time.After(p.submitRetryDelay):
			}
		}

		hash, err := p.builder.bundler.SendUserOperation(ctx, unsigned.Op, p.builder.entrypoint)
		if err == nil {
			return hash, nil
		}
		lastErr = err

		var transportErr *bundler.TransportError
		if !errors.As(err, &transportErr) {
			return common.Hash{}, err
		}
		p.logger.Warn("submission transport failure, retrying",
			"attempt", attempt+1,
			"error", err)
	}

	return common.Hash{}, lastErr
}
