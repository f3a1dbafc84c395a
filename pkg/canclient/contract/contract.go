// Package contract binds the optional on-chain naming anchor (§4.6
// supplement): a minimal name-registry smart contract mapping a string
// name to a CID, used as a best-effort secondary publish target behind
// canclient/naming.AnchorClient.
package contract

import (
	"context"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
)

// Client manages interactions with the naming-anchor smart contract.
type Client struct {
	client   *ethclient.Client
	contract *NamingAnchor
}

// NewClient connects to an Ethereum RPC endpoint and binds the contract
// at contractAddress.
func NewClient(rpcURL, contractAddress string) (*Client, error) {
	client, err := ethclient.Dial(rpcURL)
	if err != nil {
		return nil, err
	}
	bound, err := NewNamingAnchor(common.HexToAddress(contractAddress), client)
	if err != nil {
		client.Close()
		return nil, err
	}
	return &Client{client: client, contract: bound}, nil
}

// Close closes the Ethereum client connection.
func (c *Client) Close() {
	c.client.Close()
}

// RegisterName registers a name and CID in the smart contract.
func (c *Client) RegisterName(auth *bind.TransactOpts, name, cid string) error {
	tx, err := c.contract.Register(auth, name, cid)
	if err != nil {
		return err
	}
	_, err = bind.WaitMined(context.Background(), c.client, tx)
	return err
}

// ResolveCID resolves a name to its CID.
func (c *Client) ResolveCID(name string) (string, error) {
	return c.contract.ResolveCID(&bind.CallOpts{}, name)
}

// UpdateCID updates the CID for a name in the smart contract.
func (c *Client) UpdateCID(auth *bind.TransactOpts, name, newCID string) error {
	tx, err := c.contract.UpdateCID(auth, name, newCID)
	if err != nil {
		return err
	}
	_, err = bind.WaitMined(context.Background(), c.client, tx)
	return err
}

// GetOwner retrieves the owner of a name.
func (c *Client) GetOwner(name string) (common.Address, error) {
	return c.contract.GetOwner(&bind.CallOpts{}, name)
}
