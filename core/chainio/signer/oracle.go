package signer

import (
	"context"
	"crypto/ecdsa"
	"errors"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// ErrUserCancelled is returned by a SigningOracle when the key holder denies
// the signing request (for example a rejected biometric prompt). The build in
// flight is discarded; nothing was submitted.
var ErrUserCancelled = errors.New("signer: user cancelled signing request")

// SigningOracle abstracts EOA key custody. Implementations may require
// user-interactive authorization; the pipeline only sees a signature or a
// cancellation.
type SigningOracle interface {
	// SignUserOpHash signs the 32-byte userOp hash and returns a 65-byte
	// EIP-191 signature, or ErrUserCancelled.
	SignUserOpHash(ctx context.Context, hash common.Hash) ([]byte, error)

	// Address is the owner address signatures recover to.
	Address() common.Address
}

// LocalSigner is a SigningOracle over an in-process private key. Production
// hosts wrap their platform keystore instead; this implementation backs the
// CLI and tests.
type LocalSigner struct {
	key     *ecdsa.PrivateKey
	address common.Address
}

func NewLocalSigner(key *ecdsa.PrivateKey) *LocalSigner {
	return &LocalSigner{
		key:     key,
		address: crypto.PubkeyToAddress(key.PublicKey),
	}
}

func NewLocalSignerFromHex(privateKeyHex string) (*LocalSigner, error) {
	if len(privateKeyHex) >= 2 && privateKeyHex[:2] == "0x" {
		privateKeyHex = privateKeyHex[2:]
	}
	key, err := crypto.HexToECDSA(privateKeyHex)
	if err != nil {
		return nil, err
	}
	return NewLocalSigner(key), nil
}

func (s *LocalSigner) SignUserOpHash(ctx context.Context, hash common.Hash) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, ErrUserCancelled
	}
	return SignMessage(s.key, hash.Bytes())
}

func (s *LocalSigner) Address() common.Address {
	return s.address
}
