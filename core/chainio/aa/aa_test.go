package aa

import (
	"bytes"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LumenWallet/lumen-core/model"
)

func TestComputeCounterfactualAddress_CREATE2Formula(t *testing.T) {
	// The derivation must follow CREATE2 exactly:
	// keccak256(0xff || factory || salt || keccak256(initCode))[12:]
	factoryAddr := common.HexToAddress("0xB99BC2E399e06CddCF5E725c0ea341E8f0322834")
	ownerAddr := common.HexToAddress("0x804e49e8C4eDb560AE7c48B554f6d2e27Bb81557")
	salt := big.NewInt(0)

	computedAddr, err := ComputeCounterfactualAddress(factoryAddr, ownerAddr, salt)
	require.NoError(t, err)
	require.NotEqual(t, common.Address{}, computedAddr)

	// Deterministic: same inputs, same output.
	computedAddr2, err := ComputeCounterfactualAddress(factoryAddr, ownerAddr, salt)
	require.NoError(t, err)
	assert.Equal(t, computedAddr, computedAddr2)

	// Re-derive manually from the init code.
	initCode, err := GetInitCodeForFactory(ownerAddr, factoryAddr, salt)
	require.NoError(t, err)
	initCodeHash := crypto.Keccak256(initCode)

	saltBytes := make([]byte, 32)
	salt.FillBytes(saltBytes)

	var b []byte
	b = append(b, 0xff)
	b = append(b, factoryAddr.Bytes()...)
	b = append(b, saltBytes...)
	b = append(b, initCodeHash...)
	expectedAddr := common.BytesToAddress(crypto.Keccak256(b)[12:])

	assert.Equal(t, expectedAddr, computedAddr)
}

func TestComputeCounterfactualAddress_InputSensitivity(t *testing.T) {
	factory1 := common.HexToAddress("0xB99BC2E399e06CddCF5E725c0ea341E8f0322834")
	factory2 := common.HexToAddress("0x0000000000000000000000000000000000000001")
	owner1 := common.HexToAddress("0x804e49e8C4eDb560AE7c48B554f6d2e27Bb81557")
	owner2 := common.HexToAddress("0x578B110b0a7c06e66b7B1a33C39635304aaF733c")

	base, err := ComputeCounterfactualAddress(factory1, owner1, big.NewInt(0))
	require.NoError(t, err)

	bySalt, err := ComputeCounterfactualAddress(factory1, owner1, big.NewInt(1))
	require.NoError(t, err)
	assert.NotEqual(t, base, bySalt, "different salts should produce different addresses")

	byOwner, err := ComputeCounterfactualAddress(factory1, owner2, big.NewInt(0))
	require.NoError(t, err)
	assert.NotEqual(t, base, byOwner, "different owners should produce different addresses")

	byFactory, err := ComputeCounterfactualAddress(factory2, owner1, big.NewInt(0))
	require.NoError(t, err)
	assert.NotEqual(t, base, byFactory, "different factories should produce different addresses")
}

func TestComputeCounterfactualAddress_NilSalt(t *testing.T) {
	factoryAddr := common.HexToAddress("0xB99BC2E399e06CddCF5E725c0ea341E8f0322834")
	ownerAddr := common.HexToAddress("0x804e49e8C4eDb560AE7c48B554f6d2e27Bb81557")

	_, err := ComputeCounterfactualAddress(factoryAddr, ownerAddr, nil)
	var encErr *EncodingError
	require.ErrorAs(t, err, &encErr)
	assert.Equal(t, "salt", encErr.Field)
}

func TestGetInitCode_Layout(t *testing.T) {
	owner := common.HexToAddress("0x804e49e8C4eDb560AE7c48B554f6d2e27Bb81557")
	factory := common.HexToAddress("0xB99BC2E399e06CddCF5E725c0ea341E8f0322834")

	initCode, err := GetInitCodeForFactory(owner, factory, big.NewInt(7))
	require.NoError(t, err)

	// factory address (20) ++ selector (4) ++ owner (32) ++ salt (32)
	require.Len(t, initCode, 20+4+32+32)
	assert.True(t, bytes.Equal(initCode[:20], factory.Bytes()))
	assert.True(t, bytes.Equal(initCode[20+4+12:20+4+32], owner.Bytes()), "owner should be right-aligned in its word")
	assert.Equal(t, byte(7), initCode[len(initCode)-1])
}

func TestPackExecute_Selector(t *testing.T) {
	target := common.HexToAddress("0x69256ca54e6296e460dec7b29b7dcd97b81a3d55")
	calldata, err := PackExecute(target, big.NewInt(0), common.FromHex("0xa9059cbb"))
	require.NoError(t, err)

	// execute(address,uint256,bytes)
	assert.Equal(t, common.FromHex("0xb61d27f6"), calldata[:4])
}

func TestPackCalls_RoundTrip(t *testing.T) {
	mkCall := func(i int, payload []byte) model.Call {
		return model.NewCall(
			common.BigToAddress(big.NewInt(int64(i+0x1000))),
			big.NewInt(int64(i)*1e15),
			payload,
		)
	}

	for _, n := range []int{1, 2, 3, 5, 10} {
		calls := make([]model.Call, n)
		for i := range calls {
			payload := bytes.Repeat([]byte{byte(i + 1)}, i*37)
			calls[i] = mkCall(i, payload)
		}

		packed, err := PackCalls(calls)
		require.NoError(t, err, "n=%d", n)

		decoded, err := UnpackCalls(packed)
		require.NoError(t, err, "n=%d", n)
		require.Len(t, decoded, n)

		for i := range calls {
			assert.Equal(t, calls[i].To, decoded[i].To, "n=%d call=%d", n, i)
			assert.Zero(t, calls[i].Value.Cmp(decoded[i].Value), "n=%d call=%d", n, i)
			assert.Equal(t, calls[i].Data, decoded[i].Data, "n=%d call=%d", n, i)
		}
	}
}

func TestPackCalls_EmptyBatch(t *testing.T) {
	_, err := PackCalls(nil)
	var encErr *EncodingError
	require.ErrorAs(t, err, &encErr)
}

func TestUnpackCalls_Malformed(t *testing.T) {
	_, err := UnpackCalls([]byte{0x01, 0x02})
	var encErr *EncodingError
	require.ErrorAs(t, err, &encErr)

	_, err = UnpackCalls(common.FromHex("0xdeadbeef00000000"))
	require.ErrorAs(t, err, &encErr)
}
