package naming

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/canfetch/adapter/pkg/canclient/contract"
)

// AnchorConfig configures the optional on-chain naming anchor. A zero
// value (empty RPCURL) leaves the anchor disabled.
type AnchorConfig struct {
	RPCURL          string
	ContractAddress string
	PrivateKeyHex   string
	ChainID         int64
}

func (c AnchorConfig) enabled() bool {
	return c.RPCURL != "" && c.ContractAddress != ""
}

// AnchorClient is a best-effort secondary publish target: after a local
// Publish succeeds, Registry tries to mirror the mapping on-chain,
// logging rather than failing the request if the anchor is unavailable.
type AnchorClient struct {
	client *contract.Client
	auth   *bind.TransactOpts
}

// NewAnchorClient connects to the configured chain and contract. It
// returns (nil, nil) when cfg is not enabled.
func NewAnchorClient(cfg AnchorConfig) (*AnchorClient, error) {
	if !cfg.enabled() {
		return nil, nil
	}
	client, err := contract.NewClient(cfg.RPCURL, cfg.ContractAddress)
	if err != nil {
		return nil, fmt.Errorf("connect naming anchor: %w", err)
	}
	priv, err := crypto.HexToECDSA(trimHexPrefix(cfg.PrivateKeyHex))
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("parse naming anchor private key: %w", err)
	}
	chainID := cfg.ChainID
	if chainID == 0 {
		chainID = 1
	}
	auth, err := bind.NewKeyedTransactorWithChainID(priv, big.NewInt(chainID))
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("build naming anchor signer: %w", err)
	}
	return &AnchorClient{client: client, auth: auth}, nil
}

func trimHexPrefix(s string) string {
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		return s[2:]
	}
	return s
}

// Publish registers name -> targetPath on-chain, updating in place if
// name is already registered to an owned address (adapted from the
// teacher's Resolver.UpdateMapping ownership check).
func (a *AnchorClient) Publish(ctx context.Context, name, targetPath string) error {
	owner, err := a.client.GetOwner(name)
	if err == nil && owner != (common.Address{}) {
		if owner != a.auth.From {
			return errors.New("naming anchor: not authorized to update this name")
		}
		return a.client.UpdateCID(a.auth, name, targetPath)
	}
	return a.client.RegisterName(a.auth, name, targetPath)
}

// Resolve looks up name's currently anchored target path.
func (a *AnchorClient) Resolve(ctx context.Context, name string) (string, error) {
	target, err := a.client.ResolveCID(name)
	if err != nil {
		return "", err
	}
	if target == "" {
		return "", errors.New("naming anchor: no mapping for name")
	}
	return target, nil
}

// Close releases the underlying Ethereum client connection.
func (a *AnchorClient) Close() {
	a.client.Close()
}
