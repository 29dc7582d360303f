package wallets

import (
	"crypto/ecdsa"
	"log/slog"
	"math/big"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	gethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// Signer signs transactions on behalf of one address. The secret never leaves the implementation.
type Signer interface {
	Address() common.Address
	SignTx(tx *types.Transaction, chainID *big.Int) (*types.Transaction, error)
}

// KeySigner signs with an in-memory secp256k1 key.
type KeySigner struct {
	key  *ecdsa.PrivateKey
	addr common.Address
}

// NewKeySigner parses a hex private key (with / without 0x).
func NewKeySigner(hexKey string) (*KeySigner, error) {
	h := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(hexKey), "0x"))
	if h == "" {
		return nil, errors.New("empty private key")
	}
	prv, err := gethcrypto.HexToECDSA(h)
	if err != nil {
		// the underlying message may echo key material
		return nil, errors.New("malformed private key")
	}
	return &KeySigner{key: prv, addr: gethcrypto.PubkeyToAddress(prv.PublicKey)}, nil
}

func (s *KeySigner) Address() common.Address { return s.addr }

// SignTx signs with the latest signer for chainID.
func (s *KeySigner) SignTx(tx *types.Transaction, chainID *big.Int) (*types.Transaction, error) {
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(chainID), s.key)
	if err != nil {
		return nil, errors.Wrap(err, "sign transaction")
	}
	return signed, nil
}

func (s *KeySigner) String() string { return "KeySigner(" + s.addr.Hex() + ")" }

// LogValue keeps the key out of structured logs.
func (s *KeySigner) LogValue() slog.Value { return slog.StringValue(s.addr.Hex()) }
