// Copyright (c) 2024 The MeshChain developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package config parses and validates node configuration (spec.md §6
// Configuration).
package config

import (
	"fmt"
	"os"

	flags "github.com/jessevdk/go-flags"
)

// Role gates a node's consensus participation (spec.md §6 role).
type Role string

const (
	RoleValidator Role = "validator"
	RoleRelay     Role = "relay"
	RoleLight     Role = "light"
)

// NetworkType selects the mesh network a node joins (spec.md §6
// network_type).
type NetworkType string

const (
	NetworkTestnet NetworkType = "testnet"
	NetworkMainnet NetworkType = "mainnet"
	NetworkLocal   NetworkType = "local"
)

// Config holds every recognized option (spec.md §6), with the
// jessevdk/go-flags struct tags that let it double as a CLI/ini
// config surface for cmd/meshnoded.
type Config struct {
	NodeID string `long:"nodeid" description:"8-byte hex node id" required:"true"`
	Role   string `long:"role" description:"validator, relay, or light" default:"relay"`
	Stake  uint64 `long:"stake" description:"validator stake, ignored for non-validator roles"`

	MaxPeers         int `long:"maxpeers" description:"peer table bound" default:"100"`
	BlockTime        int `long:"blocktime" description:"target block interval, seconds" default:"60"`
	MaxBlockSize     int `long:"maxblocksize" description:"reject blocks larger than this, bytes" default:"217"`
	MaxTxPerBlock    int `long:"maxtxperblock" description:"cap enforced on block proposal" default:"5"`
	ConsensusTimeout int `long:"consensustimeout" description:"sync/abort bound, seconds" default:"300"`
	SyncBatchSize    int `long:"syncbatchsize" description:"blocks requested per sync round" default:"10"`

	CacheSizeKB      int `long:"cachesizekb" description:"memory cache bound, KiB" default:"256"`
	MaxMemoryMB      int `long:"maxmemorymb" description:"soft RAM cap, MiB" default:"4"`
	EventLoopTimeout int `long:"eventlooptimeout" description:"queue wait, milliseconds" default:"1000"`
	TaskQueueSize    int `long:"taskqueuesize" description:"message queue bound" default:"256"`

	PinLength       int `long:"pinlength" description:"required PIN digit count" default:"4"`
	PinAttempts     int `long:"pinattempts" description:"failed attempts before lockout" default:"3"`
	PinLockDuration int `long:"pinlockduration" description:"lockout duration, seconds" default:"300"`

	StoragePath string `long:"storagepath" description:"block/tx/UTXO store directory" required:"true"`
	WalletPath  string `long:"walletpath" description:"wallet keystore directory" required:"true"`

	NetworkType string `long:"networktype" description:"testnet, mainnet, or local" default:"testnet"`
	Port        int    `long:"port" description:"listen port" default:"4403"`
}

// Default returns a Config populated with every option's documented
// default, still requiring NodeID/StoragePath/WalletPath to be filled
// in before Validate will accept it.
func Default() *Config {
	return &Config{
		Role:             string(RoleRelay),
		MaxPeers:         100,
		BlockTime:        60,
		MaxBlockSize:     217,
		MaxTxPerBlock:    5,
		ConsensusTimeout: 300,
		SyncBatchSize:    10,
		CacheSizeKB:      256,
		MaxMemoryMB:      4,
		EventLoopTimeout: 1000,
		TaskQueueSize:    256,
		PinLength:        4,
		PinAttempts:      3,
		PinLockDuration:  300,
		NetworkType:      string(NetworkTestnet),
		Port:             4403,
	}
}

// Load parses args (typically os.Args[1:]) against Default, the
// jessevdk/go-flags convention the EXCCoin daemon's own command-line
// surface uses.
func Load(args []string) (*Config, error) {
	cfg := Default()
	parser := flags.NewParser(cfg, flags.Default)
	if _, err := parser.ParseArgs(args); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ValidationWarning is a non-fatal configuration issue (spec.md §6:
// "consensus_timeout < block_time (warning, not fatal)").
type ValidationWarning struct {
	Message string
}

func (w ValidationWarning) Error() string { return w.Message }

// Validate checks cfg against spec.md §6's required-option and range
// rules. Returns warnings for non-fatal issues even when err is nil.
func Validate(cfg *Config) (warnings []ValidationWarning, err error) {
	if cfg.NodeID == "" {
		return nil, fmt.Errorf("config: node_id is required")
	}
	if cfg.StoragePath == "" {
		return nil, fmt.Errorf("config: storage_path is required")
	}
	if cfg.WalletPath == "" {
		return nil, fmt.Errorf("config: wallet_path is required")
	}

	switch Role(cfg.Role) {
	case RoleValidator, RoleRelay, RoleLight:
	default:
		return nil, fmt.Errorf("config: role %q is not one of validator, relay, light", cfg.Role)
	}
	switch NetworkType(cfg.NetworkType) {
	case NetworkTestnet, NetworkMainnet, NetworkLocal:
	default:
		return nil, fmt.Errorf("config: network_type %q is not one of testnet, mainnet, local", cfg.NetworkType)
	}

	if cfg.PinLength < 4 || cfg.PinLength > 6 {
		return nil, fmt.Errorf("config: pin_length %d out of range [4,6]", cfg.PinLength)
	}
	if cfg.PinAttempts < 1 || cfg.PinAttempts > 10 {
		return nil, fmt.Errorf("config: pin_attempts %d out of range [1,10]", cfg.PinAttempts)
	}
	if cfg.PinLockDuration < 60 || cfg.PinLockDuration > 3600 {
		return nil, fmt.Errorf("config: pin_lock_duration %d out of range [60,3600]", cfg.PinLockDuration)
	}
	if cfg.Port < 1024 || cfg.Port > 65535 {
		return nil, fmt.Errorf("config: port %d out of range [1024,65535]", cfg.Port)
	}
	if cfg.MaxPeers <= 0 {
		return nil, fmt.Errorf("config: max_peers must be positive")
	}
	if cfg.BlockTime <= 0 {
		return nil, fmt.Errorf("config: block_time must be positive")
	}
	if cfg.MaxBlockSize <= 0 {
		return nil, fmt.Errorf("config: max_block_size must be positive")
	}
	if cfg.MaxTxPerBlock <= 0 {
		return nil, fmt.Errorf("config: max_tx_per_block must be positive")
	}
	if cfg.ConsensusTimeout <= 0 {
		return nil, fmt.Errorf("config: consensus_timeout must be positive")
	}
	if cfg.SyncBatchSize <= 0 {
		return nil, fmt.Errorf("config: sync_batch_size must be positive")
	}

	if cfg.ConsensusTimeout < cfg.BlockTime {
		warnings = append(warnings, ValidationWarning{
			Message: fmt.Sprintf("config: consensus_timeout (%ds) is less than block_time (%ds)", cfg.ConsensusTimeout, cfg.BlockTime),
		})
	}
	return warnings, nil
}

// FileExists reports whether path can be stat'ed, e.g. to tell an
// existing storage or wallet directory from a fresh one.
func FileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
