// Package eip1559 suggests fee caps for UserOperations from pending-block
// chain state. The headroom constants are deliberate configuration, not
// protocol requirements; they keep an operation includable for a few blocks
// of base-fee drift.
package eip1559

import (
	"context"
	"encoding/json"
	"math/big"
	"time"

	"github.com/allegro/bigcache/v3"
	"github.com/ethereum/go-ethereum/core/types"
)

var (
	// Tip is buffered 13% with a 2 gwei floor so bundlers keep picking us up.
	tipBufferPercent = big.NewInt(13)
	minTip           = big.NewInt(2_000_000_000)

	// maxFeePerGas = 2*baseFee + tip, floored at 20 gwei for high-basefee
	// chains. The 2x multiplier survives a 100% base-fee increase.
	baseFeeMultiplier = big.NewInt(2)
	minMaxFee         = big.NewInt(20_000_000_000)
)

// FeeReader is the subset of an RPC client the oracle reads from.
// *ethclient.Client satisfies it.
type FeeReader interface {
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
}

// SuggestFee returns (maxFeePerGas, maxPriorityFeePerGas) for the next few
// blocks. Read-only; no chain state is mutated.
func SuggestFee(ctx context.Context, reader FeeReader) (*big.Int, *big.Int, error) {
	tipCap, err := reader.SuggestGasTipCap(ctx)
	if err != nil {
		return nil, nil, err
	}

	header, err := reader.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, nil, err
	}

	buffer := new(big.Int).Div(tipCap, big.NewInt(100))
	buffer.Mul(buffer, tipBufferPercent)
	maxPriorityFeePerGas := new(big.Int).Add(tipCap, buffer)

	if maxPriorityFeePerGas.Cmp(minTip) < 0 {
		maxPriorityFeePerGas = new(big.Int).Set(minTip)
	}

	var maxFeePerGas *big.Int
	if header.BaseFee != nil {
		maxFeePerGas = new(big.Int).Add(
			new(big.Int).Mul(header.BaseFee, baseFeeMultiplier),
			maxPriorityFeePerGas,
		)
		if maxFeePerGas.Cmp(minMaxFee) < 0 {
			maxFeePerGas = new(big.Int).Set(minMaxFee)
		}
	} else {
		// pre-EIP-1559 chain
		maxFeePerGas = new(big.Int).Set(maxPriorityFeePerGas)
	}

	return maxFeePerGas, maxPriorityFeePerGas, nil
}

type cachedFees struct {
	MaxFeePerGas         *big.Int `json:"max_fee_per_gas"`
	MaxPriorityFeePerGas *big.Int `json:"max_priority_fee_per_gas"`
}

// CachedOracle memoizes SuggestFee for a short TTL so one build (or a burst
// of preview builds) does not hammer the RPC. Entries expire on their own;
// the cache is never the authority for longer than the TTL.
type CachedOracle struct {
	reader FeeReader
	cache  *bigcache.BigCache
	key    string
}

const DefaultFeeCacheTTL = 12 * time.Second

func NewCachedOracle(reader FeeReader, chainID *big.Int, ttl time.Duration) (*CachedOracle, error) {
	if ttl <= 0 {
		ttl = DefaultFeeCacheTTL
	}

	cache, err := bigcache.New(context.Background(), bigcache.DefaultConfig(ttl))
	if err != nil {
		return nil, err
	}

	return &CachedOracle{
		reader: reader,
		cache:  cache,
		key:    "fees:" + chainID.String(),
	}, nil
}

func (o *CachedOracle) SuggestFee(ctx context.Context) (*big.Int, *big.Int, error) {
	if raw, err := o.cache.Get(o.key); err == nil {
		var fees cachedFees
		if err := json.Unmarshal(raw, &fees); err == nil && fees.MaxFeePerGas != nil && fees.MaxPriorityFeePerGas != nil {
			return fees.MaxFeePerGas, fees.MaxPriorityFeePerGas, nil
		}
	}

	maxFee, maxPriority, err := SuggestFee(ctx, o.reader)
	if err != nil {
		return nil, nil, err
	}

	if raw, err := json.Marshal(cachedFees{MaxFeePerGas: maxFee, MaxPriorityFeePerGas: maxPriority}); err == nil {
		_ = o.cache.Set(o.key, raw)
	}

	return maxFee, maxPriority, nil
}
