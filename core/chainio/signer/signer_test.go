package signer

import (
	"context"
	"fmt"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignMessageRecoversToSigner(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	data := common.HexToHash("0x15fa6f8c855db1dccbb8a42eef3a7b83f11d29758e84aed37312527165d5eec5").Bytes()

	sig, err := SignMessage(key, data)
	require.NoError(t, err)
	require.Len(t, sig, 65)
	assert.Contains(t, []byte{27, 28}, sig[64])

	// Recover against the prefixed digest the account contract checks.
	prefixed := append([]byte(fmt.Sprintf("%s%d", eip191Prefix, len(data))), data...)
	digest := crypto.Keccak256Hash(prefixed)

	recoverSig := append([]byte{}, sig...)
	recoverSig[64] -= 27
	pub, err := crypto.SigToPub(digest.Bytes(), recoverSig)
	require.NoError(t, err)
	assert.Equal(t, crypto.PubkeyToAddress(key.PublicKey), crypto.PubkeyToAddress(*pub))
}

func TestLocalSignerAddress(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	s := NewLocalSigner(key)
	assert.Equal(t, crypto.PubkeyToAddress(key.PublicKey), s.Address())

	fromHex, err := NewLocalSignerFromHex("0x" + common.Bytes2Hex(crypto.FromECDSA(key)))
	require.NoError(t, err)
	assert.Equal(t, s.Address(), fromHex.Address())
}

func TestLocalSignerCancelledContext(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	s := NewLocalSigner(key)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = s.SignUserOpHash(ctx, common.Hash{})
	assert.ErrorIs(t, err, ErrUserCancelled)
}
