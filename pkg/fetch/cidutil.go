package fetch

import (
	"github.com/ipfs/go-cid"
	mbase "github.com/multiformats/go-multibase"
)

// CID is the self-verifying content identifier entity from the data
// model (§3). It's a thin alias over go-cid's type so every package in
// this module speaks the same wire-accurate identifier.
type CID = cid.Cid

// UndefCID is the zero value of CID, used as a sentinel "no root yet".
var UndefCID = cid.Undef

// SentinelEmptyDirCID is the well-known inline-block CID for an empty
// directory that spec.md §6 calls out as a base callers and tests may
// build writes on top of.
const SentinelEmptyDirCID = "bafyaabakaieac"

// ParseCID decodes a multibase-encoded CID string.
func ParseCID(s string) (CID, error) {
	return cid.Decode(s)
}

// EncodeContentCID renders a content-root CID with go-cid's default
// string form: base32 for a version-1 CID. A version-0 CID is not
// converted and keeps its base58 version-0 form.
func EncodeContentCID(c CID) string {
	return c.String()
}

var base36Encoder, _ = mbase.NewEncoder(mbase.Base36)

// EncodeKeyCID renders a mutable-name public-key CID in base36, per
// invariant 2.
func EncodeKeyCID(c CID) string {
	return c.Encode(base36Encoder)
}

// IsSentinelEmptyDir reports whether c is the well-known empty
// directory CID.
func IsSentinelEmptyDir(c CID) bool {
	if !c.Defined() {
		return false
	}
	return c.String() == SentinelEmptyDirCID
}
