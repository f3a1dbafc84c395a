package naming

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/crypto"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/ipfs/go-cid"
	logging "github.com/ipfs/go-log/v2"

	"github.com/canfetch/adapter/pkg/canclient/storage"
	"github.com/canfetch/adapter/pkg/fetch"
)

var log = logging.Logger("canclient/naming")

var (
	indexKey = []byte("name/index")
)

func keyRecordKey(alias string) []byte { return []byte("name/key/" + alias) }
func publishRecordKey(alias string) []byte { return []byte("name/record/" + alias) }

type keyRecord struct {
	Alias         string `json:"alias"`
	PrivateKeyHex string `json:"private_key_hex"`
	PublicID      string `json:"public_id"`
}

// Registry is the Naming Subsystem (§4.6): key lifecycle, local
// publication records, and resolution, fronted by an LRU cache so
// repeated resolves of a hot alias don't hit the block store.
type Registry struct {
	store  storage.Store
	cache  *lru.Cache[string, string]
	anchor *AnchorClient

	mu      sync.RWMutex
	byAlias map[string]*Key
}

// NewRegistry opens (or initializes) a Registry backed by store, with
// an LRU cache of cacheSize entries. anchor may be nil.
func NewRegistry(store storage.Store, cacheSize int, anchor *AnchorClient) (*Registry, error) {
	cache, err := lru.New[string, string](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("create name cache: %w", err)
	}
	r := &Registry{store: store, cache: cache, anchor: anchor, byAlias: map[string]*Key{}}
	if err := r.loadKeys(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Registry) loadKeys() error {
	data, err := r.store.Get(indexKey)
	if err != nil {
		if errors.Is(err, storage.ErrBlockNotFound) {
			return nil
		}
		return err
	}
	var aliases []string
	if err := json.Unmarshal(data, &aliases); err != nil {
		return fmt.Errorf("decode key index: %w", err)
	}
	for _, alias := range aliases {
		k, err := r.loadKey(alias)
		if err != nil {
			return err
		}
		r.byAlias[alias] = k
	}
	return nil
}

func (r *Registry) loadKey(alias string) (*Key, error) {
	data, err := r.store.Get(keyRecordKey(alias))
	if err != nil {
		return nil, fmt.Errorf("load key %q: %w", alias, err)
	}
	var rec keyRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decode key %q: %w", alias, err)
	}
	priv, err := crypto.HexToECDSA(rec.PrivateKeyHex)
	if err != nil {
		return nil, fmt.Errorf("decode private key for %q: %w", alias, err)
	}
	pub, err := cid.Decode(rec.PublicID)
	if err != nil {
		return nil, fmt.Errorf("decode public id for %q: %w", alias, err)
	}
	return &Key{Alias: alias, PublicID: pub, PrivateKey: priv}, nil
}

func (r *Registry) persistKey(k *Key) error {
	rec := keyRecord{
		Alias:         k.Alias,
		PrivateKeyHex: fmt.Sprintf("%x", crypto.FromECDSA(k.PrivateKey)),
		PublicID:      k.PublicID.String(),
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode key %q: %w", k.Alias, err)
	}
	if err := r.store.Put(keyRecordKey(k.Alias), data); err != nil {
		return fmt.Errorf("persist key %q: %w", k.Alias, err)
	}
	return r.appendIndex(k.Alias)
}

func (r *Registry) appendIndex(alias string) error {
	aliases := make([]string, 0, len(r.byAlias)+1)
	for a := range r.byAlias {
		aliases = append(aliases, a)
	}
	aliases = append(aliases, alias)
	return r.saveIndexLocked(aliases)
}

func (r *Registry) saveIndex() error {
	aliases := make([]string, 0, len(r.byAlias))
	for a := range r.byAlias {
		aliases = append(aliases, a)
	}
	return r.saveIndexLocked(aliases)
}

func (r *Registry) saveIndexLocked(aliases []string) error {
	data, err := json.Marshal(aliases)
	if err != nil {
		return fmt.Errorf("encode key index: %w", err)
	}
	return r.store.Put(indexKey, data)
}

// resolveAliasLocked finds a key by its alias or by its base36 public id.
func (r *Registry) resolveAliasLocked(token string) (*Key, bool) {
	if k, ok := r.byAlias[token]; ok {
		return k, true
	}
	c, err := cid.Decode(token)
	if err != nil {
		return nil, false
	}
	for _, k := range r.byAlias {
		if k.PublicID.Equals(c) {
			return k, true
		}
	}
	return nil, false
}

// HasKey implements fetch.NameAPI.
func (r *Registry) HasKey(ctx context.Context, alias string) (fetch.KeyInfo, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	k, ok := r.resolveAliasLocked(alias)
	if !ok {
		return fetch.KeyInfo{}, false, nil
	}
	return fetch.KeyInfo{Alias: k.Alias, PublicID: k.PublicID}, true, nil
}

// GenKey implements fetch.NameAPI: idempotent, and publishes an initial
// empty-directory record so the key has a navigable root from the
// start.
func (r *Registry) GenKey(ctx context.Context, alias string) (fetch.KeyInfo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if k, ok := r.byAlias[alias]; ok {
		return fetch.KeyInfo{Alias: alias, PublicID: k.PublicID}, nil
	}
	k, err := GenerateKey(alias)
	if err != nil {
		return fetch.KeyInfo{}, err
	}
	if err := r.persistKey(k); err != nil {
		return fetch.KeyInfo{}, err
	}
	r.byAlias[alias] = k
	if err := r.publishLocked(ctx, alias, "/content/"+fetch.SentinelEmptyDirCID+"/"); err != nil {
		return fetch.KeyInfo{}, err
	}
	return fetch.KeyInfo{Alias: alias, PublicID: k.PublicID}, nil
}

// RemoveKey implements fetch.NameAPI.
func (r *Registry) RemoveKey(ctx context.Context, alias string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byAlias[alias]; !ok {
		return fetch.NewNotFound("no such key %q", alias)
	}
	delete(r.byAlias, alias)
	r.cache.Remove(alias)
	return r.saveIndex()
}

// Publish implements fetch.NameAPI.
func (r *Registry) Publish(ctx context.Context, alias, targetPath string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.publishLocked(ctx, alias, targetPath)
}

func (r *Registry) publishLocked(ctx context.Context, alias, targetPath string) error {
	k, ok := r.resolveAliasLocked(alias)
	if !ok {
		return fetch.NewNotFound("no such key %q", alias)
	}
	if err := r.store.Put(publishRecordKey(k.Alias), []byte(targetPath)); err != nil {
		return fmt.Errorf("persist publication record: %w", err)
	}
	r.cache.Add(k.Alias, targetPath)
	r.cache.Add(k.PublicID.String(), targetPath)
	if r.anchor != nil {
		if err := r.anchor.Publish(ctx, k.Alias, targetPath); err != nil {
			log.Warnw("on-chain naming anchor publish failed", "alias", k.Alias, "err", err)
		}
	}
	return nil
}

// Resolve implements fetch.NameAPI: alias or base36 public-id lookups
// hit the local record store; dotted hosts fall through to the
// optional on-chain anchor.
func (r *Registry) Resolve(ctx context.Context, host string) (string, error) {
	if target, ok := r.cache.Get(host); ok {
		return target, nil
	}

	if strings.Contains(host, ".") {
		if r.anchor == nil {
			return "", fetch.NewNotFound("dns-style name %q not resolvable: no naming anchor configured", host)
		}
		target, err := r.anchor.Resolve(ctx, host)
		if err != nil {
			return "", fetch.NewNotFound("dns-style name %q not resolvable: %v", host, err)
		}
		r.cache.Add(host, target)
		return target, nil
	}

	r.mu.RLock()
	k, ok := r.resolveAliasLocked(host)
	r.mu.RUnlock()
	if !ok {
		return "", fetch.NewNotFound("no such key %q", host)
	}
	data, err := r.store.Get(publishRecordKey(k.Alias))
	if err != nil {
		if errors.Is(err, storage.ErrBlockNotFound) {
			return "", fetch.NewNotFound("key %q has never been published", k.Alias)
		}
		return "", err
	}
	target := string(data)
	r.cache.Add(host, target)
	return target, nil
}
