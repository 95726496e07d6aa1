// Copyright (c) 2024 The MeshChain developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// meshnoded runs a single MeshChain mesh node: it loads configuration,
// composes a Node (which opens storage), and drives its event loop
// until an interrupt signal arrives. No wallet is attached.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/meshchain/meshchain/chain"
	"github.com/meshchain/meshchain/config"
	"github.com/meshchain/meshchain/node"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "meshnoded:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	warnings, err := config.Validate(cfg)
	if err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	for _, w := range warnings {
		fmt.Fprintln(os.Stderr, "meshnoded: warning:", w.Error())
	}

	now := time.Now()
	var nodeID chain.NodeID
	copy(nodeID[:], cfg.NodeID)
	genesis := chain.NewGenesisBlock(nodeID, uint16(now.Unix()))

	n, err := node.New(cfg, genesis, now)
	if err != nil {
		return fmt.Errorf("compose node: %w", err)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		n.Stop()
	}()

	for !n.Stopped() {
		n.RunOnce(250*time.Millisecond, time.Now())
	}
	signal.Stop(sigCh)
	return n.Shutdown()
}
