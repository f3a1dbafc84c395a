// Package naming implements the Naming Subsystem (§4.6): key lifecycle,
// local publication records, and resolution, with an optional on-chain
// anchor backed by the NamingAnchor contract client (package contract).
package naming

import (
	"crypto/ecdsa"
	"fmt"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"
)

// multicodecLibp2pKey tags a CID that wraps a serialized public key,
// the convention IPNS names use for "key" CIDs.
const multicodecLibp2pKey = 0x72

// Key is a generated keypair and its derived public identifier.
type Key struct {
	Alias      string
	PublicID   cid.Cid
	PrivateKey *ecdsa.PrivateKey
}

// GenerateKey creates a new keypair, reusing go-ethereum's secp256k1
// implementation, and derives its public-id CID.
func GenerateKey(alias string) (*Key, error) {
	priv, err := crypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("generate keypair: %w", err)
	}
	pub, err := PublicIDFor(&priv.PublicKey)
	if err != nil {
		return nil, err
	}
	return &Key{Alias: alias, PublicID: pub, PrivateKey: priv}, nil
}

// PublicIDFor derives the base36 CIDv1 a public key publishes under
// (invariant 2 renders it in base36 via fetch.EncodeKeyCID).
func PublicIDFor(pub *ecdsa.PublicKey) (cid.Cid, error) {
	raw := crypto.FromECDSAPub(pub)
	mh, err := multihash.Sum(raw, multihash.SHA2_256, -1)
	if err != nil {
		return cid.Undef, fmt.Errorf("hash public key: %w", err)
	}
	return cid.NewCidV1(multicodecLibp2pKey, mh), nil
}
