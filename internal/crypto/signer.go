package crypto

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// Signer signs vault and token transactions with the operator's secp256k1
// key using the EIP-155 replay-protected scheme for the configured chain.
type Signer struct {
	privateKey *ecdsa.PrivateKey
	address    common.Address
	chainID    *big.Int
	ethSigner  types.Signer
}

// NewSigner creates a Signer from a hex-encoded private key and chain ID.
func NewSigner(privateKeyHex string, chainID int64) (*Signer, error) {
	pk, err := ethcrypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("crypto/signer: invalid private key: %w", err)
	}

	id := big.NewInt(chainID)
	return &Signer{
		privateKey: pk,
		address:    ethcrypto.PubkeyToAddress(pk.PublicKey),
		chainID:    id,
		ethSigner:  types.LatestSignerForChainID(id),
	}, nil
}

// Address returns the operator address derived from the private key.
func (s *Signer) Address() common.Address {
	return s.address
}

// ChainID returns the chain the signer is bound to.
func (s *Signer) ChainID() *big.Int {
	return new(big.Int).Set(s.chainID)
}

// SignTx signs an unsigned transaction for the signer's chain.
func (s *Signer) SignTx(tx *types.Transaction) (*types.Transaction, error) {
	signed, err := types.SignTx(tx, s.ethSigner, s.privateKey)
	if err != nil {
		return nil, fmt.Errorf("crypto/signer: signing tx: %w", err)
	}
	return signed, nil
}

// String returns a redacted representation suitable for logging.
func (s *Signer) String() string {
	return fmt.Sprintf("Signer(address=%s, chain=%s)", s.address.Hex(), s.chainID)
}
