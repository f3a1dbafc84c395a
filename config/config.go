// Package config loads canfetchd's runtime configuration from the
// environment, falling back to development defaults.
package config

import (
	"os"
	"path/filepath"
	"strconv"

	logging "github.com/ipfs/go-log/v2"

	"github.com/canfetch/adapter/pkg/canclient"
	"github.com/canfetch/adapter/pkg/canclient/naming"
)

var log = logging.Logger("config")

// Config holds canfetchd's construction parameters.
type Config struct {
	BlockStorePath string
	ListenAddr     string
	ChunkSize      int
	NameCacheSize  int
	NATSURL        string
	Writable       bool

	// EthereumRPC/ContractAddress/PrivateKey/ChainID configure the
	// optional naming anchor; an empty RPC URL or contract address
	// leaves it disabled.
	EthereumRPC     string
	ContractAddress string
	PrivateKey      string
	ChainID         int64
}

// LoadConfig loads configuration from the environment, falling back to
// development defaults. An unset LISTEN_ADDR or NATS_URL and an invalid
// CHUNK_SIZE log a warning; WRITABLE and CHAIN_ID fall back silently.
// The block store path is always ./data/badger.
func LoadConfig() *Config {
	dbPath := filepath.Join(".", "data", "badger")
	if err := os.MkdirAll(dbPath, 0755); err != nil {
		log.Fatalf("failed to create block store directory %s: %v", dbPath, err)
	}

	listenAddr := os.Getenv("LISTEN_ADDR")
	if listenAddr == "" {
		listenAddr = ":8080"
		log.Warn("LISTEN_ADDR not set, using default :8080")
	}

	chunkSize := 256 * 1024
	if v := os.Getenv("CHUNK_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			chunkSize = n
		} else {
			log.Warnw("invalid CHUNK_SIZE, using default", "default", chunkSize)
		}
	}

	natsURL := os.Getenv("NATS_URL")
	if natsURL == "" {
		natsURL = "nats://127.0.0.1:4222"
		log.Warn("NATS_URL not set, using default nats://127.0.0.1:4222")
	}

	writable := true
	if v := os.Getenv("WRITABLE"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			writable = b
		}
	}

	chainID := int64(1337)
	if v := os.Getenv("CHAIN_ID"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n != 0 {
			chainID = n
		}
	}

	return &Config{
		BlockStorePath:  dbPath,
		ListenAddr:      listenAddr,
		ChunkSize:       chunkSize,
		NameCacheSize:   4096,
		NATSURL:         natsURL,
		Writable:        writable,
		EthereumRPC:     os.Getenv("ETHEREUM_RPC"),
		ContractAddress: os.Getenv("CONTRACT_ADDRESS"),
		PrivateKey:      os.Getenv("PRIVATE_KEY"),
		ChainID:         chainID,
	}
}

// CANClientConfig projects Config into canclient.Config. The naming
// anchor only activates when both an RPC endpoint and contract address
// are configured.
func (c *Config) CANClientConfig() canclient.Config {
	cfg := canclient.Config{
		BlockStorePath: c.BlockStorePath,
		ChunkSize:      c.ChunkSize,
		NameCacheSize:  c.NameCacheSize,
		NATSURL:        c.NATSURL,
	}
	if c.EthereumRPC != "" && c.ContractAddress != "" {
		cfg.Anchor = naming.AnchorConfig{
			RPCURL:          c.EthereumRPC,
			ContractAddress: c.ContractAddress,
			PrivateKeyHex:   c.PrivateKey,
			ChainID:         c.ChainID,
		}
	}
	return cfg
}
