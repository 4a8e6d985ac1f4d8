package eip1559

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubFeeReader struct {
	tip     *big.Int
	baseFee *big.Int
	calls   int
}

func (s *stubFeeReader) SuggestGasTipCap(ctx context.Context) (*big.Int, error) {
	s.calls++
	return new(big.Int).Set(s.tip), nil
}

func (s *stubFeeReader) HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error) {
	h := &types.Header{Number: big.NewInt(100)}
	if s.baseFee != nil {
		h.BaseFee = new(big.Int).Set(s.baseFee)
	}
	return h, nil
}

func TestSuggestFee_Headroom(t *testing.T) {
	reader := &stubFeeReader{
		tip:     big.NewInt(3_000_000_000),  // 3 gwei
		baseFee: big.NewInt(40_000_000_000), // 40 gwei
	}

	maxFee, maxPriority, err := SuggestFee(context.Background(), reader)
	require.NoError(t, err)

	// tip buffered 13%: 3 gwei * 1.13 = 3.39 gwei
	assert.Equal(t, big.NewInt(3_390_000_000), maxPriority)
	// maxFee = 2*baseFee + tip = 83.39 gwei
	assert.Equal(t, big.NewInt(83_390_000_000), maxFee)
}

func TestSuggestFee_TipFloor(t *testing.T) {
	reader := &stubFeeReader{
		tip:     big.NewInt(100_000_000), // 0.1 gwei, below floor
		baseFee: big.NewInt(1_000_000_000),
	}

	maxFee, maxPriority, err := SuggestFee(context.Background(), reader)
	require.NoError(t, err)

	assert.Equal(t, big.NewInt(2_000_000_000), maxPriority, "tip should be floored at 2 gwei")
	assert.Equal(t, big.NewInt(20_000_000_000), maxFee, "maxFee should be floored at 20 gwei")
}

func TestSuggestFee_LegacyChain(t *testing.T) {
	reader := &stubFeeReader{tip: big.NewInt(5_000_000_000)}

	maxFee, maxPriority, err := SuggestFee(context.Background(), reader)
	require.NoError(t, err)

	assert.Equal(t, maxPriority, maxFee, "without a base fee, maxFee falls back to the tip")
}

func TestCachedOracle_AvoidsRedundantCalls(t *testing.T) {
	reader := &stubFeeReader{
		tip:     big.NewInt(3_000_000_000),
		baseFee: big.NewInt(40_000_000_000),
	}

	oracle, err := NewCachedOracle(reader, big.NewInt(11155111), time.Minute)
	require.NoError(t, err)

	first, _, err := oracle.SuggestFee(context.Background())
	require.NoError(t, err)

	second, _, err := oracle.SuggestFee(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, reader.calls, "second read within the TTL should hit the cache")
	assert.Zero(t, first.Cmp(second))
}
