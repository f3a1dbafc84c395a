package contract

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// NamingAnchor is a Go binding for the on-chain naming-anchor contract.
type NamingAnchor struct {
	*bind.BoundContract
}

const abiJSON = `[
    {
      "inputs": [
        {"internalType": "string", "name": "name", "type": "string"},
        {"internalType": "string", "name": "cid", "type": "string"}
      ],
      "name": "register",
      "outputs": [],
      "stateMutability": "nonpayable",
      "type": "function"
    },
    {
      "inputs": [
        {"internalType": "string", "name": "name", "type": "string"},
        {"internalType": "string", "name": "newCID", "type": "string"}
      ],
      "name": "updateCID",
      "outputs": [],
      "stateMutability": "nonpayable",
      "type": "function"
    },
    {
      "inputs": [{"internalType": "string", "name": "name", "type": "string"}],
      "name": "resolveCID",
      "outputs": [{"internalType": "string", "name": "", "type": "string"}],
      "stateMutability": "view",
      "type": "function",
      "constant": true
    },
    {
      "inputs": [{"internalType": "string", "name": "name", "type": "string"}],
      "name": "getOwner",
      "outputs": [{"internalType": "address", "name": "", "type": "address"}],
      "stateMutability": "view",
      "type": "function",
      "constant": true
    }
  ]`

// NewNamingAnchor creates a contract binding for address backed by backend.
func NewNamingAnchor(address common.Address, backend bind.ContractBackend) (*NamingAnchor, error) {
	parsedABI, err := abi.JSON(strings.NewReader(abiJSON))
	if err != nil {
		return nil, err
	}
	bound := bind.NewBoundContract(address, parsedABI, backend, backend, backend)
	return &NamingAnchor{BoundContract: bound}, nil
}

// Register calls the register function on the contract.
func (c *NamingAnchor) Register(opts *bind.TransactOpts, name, cid string) (*types.Transaction, error) {
	return c.Transact(opts, "register", name, cid)
}

// ResolveCID calls the resolveCID function on the contract.
func (c *NamingAnchor) ResolveCID(opts *bind.CallOpts, name string) (string, error) {
	var out []interface{}
	if err := c.Call(opts, &out, "resolveCID", name); err != nil {
		return "", err
	}
	return out[0].(string), nil
}

// UpdateCID calls the updateCID function on the contract.
func (c *NamingAnchor) UpdateCID(opts *bind.TransactOpts, name, newCID string) (*types.Transaction, error) {
	return c.Transact(opts, "updateCID", name, newCID)
}

// GetOwner calls the getOwner function on the contract.
func (c *NamingAnchor) GetOwner(opts *bind.CallOpts, name string) (common.Address, error) {
	var out []interface{}
	if err := c.Call(opts, &out, "getOwner", name); err != nil {
		return common.Address{}, err
	}
	return out[0].(common.Address), nil
}
