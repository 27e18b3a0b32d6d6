// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

package main

import (
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/aplane-ton/custody/internal/approval"
	"github.com/aplane-ton/custody/internal/bridge"
	"github.com/aplane-ton/custody/internal/hardware"
	"github.com/aplane-ton/custody/internal/keys"
	"github.com/aplane-ton/custody/internal/keystore"
	"github.com/aplane-ton/custody/internal/multisig"
	"github.com/aplane-ton/custody/internal/proof"
	"github.com/aplane-ton/custody/internal/signing"
	"github.com/aplane-ton/custody/internal/util"
)

// runtime is the session side of the wallet assembled from the config file.
type runtime struct {
	tracker *multisig.Tracker
	bridge  *bridge.Bridge
	proofs  *proof.Builder
	signing *signing.Backend
}

// newRuntime wires the tracker and bridge from cfg over the keys of store.
func newRuntime(cfg *util.Config, store *keystore.Store) (*runtime, error) {
	mcfg, err := multisig.ConfigFromUtil(cfg, util.Logger)
	if err != nil {
		return nil, err
	}
	tracker, err := multisig.NewTracker(mcfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create tracker: %w", err)
	}

	proofs := proof.NewBuilder(proof.WithLogger(util.Logger))
	opts := bridge.OptionsFromConfig(cfg)
	opts.Proofs = proofs
	opts.Logger = util.Logger
	backend := signing.NewBackend(store, hardware.NewRegistry(), util.Logger)
	opts.Flows = approval.Deps{
		Passwords: store,
		Authority: keys.NewAuthority(store),
		Signing:   backend,
		Tracker:   tracker,
		Logger:    util.Logger,
	}
	return &runtime{tracker: tracker, bridge: bridge.New(opts), proofs: proofs, signing: backend}, nil
}

func cmdConfig() error {
	store, err := keystore.Open(config.KeystoreDir)
	if err != nil {
		return err
	}
	rt, err := newRuntime(&config, store)
	if err != nil {
		return err
	}
	printRuntime(os.Stdout, &config, rt)
	return nil
}

// printRuntime reports the settings the running components ended up with.
func printRuntime(w io.Writer, cfg *util.Config, rt *runtime) {
	dev := rt.bridge.DeviceInfo()
	fmt.Fprintf(w, "keystore:           %s\n", cfg.KeystoreDir)
	fmt.Fprintf(w, "device:             %s %s (%s)\n", dev.AppName, dev.AppVersion, dev.Platform)
	fmt.Fprintf(w, "protocol version:   %d\n", dev.MaxProtocolVersion)
	for _, f := range dev.Features {
		if f.MaxMessages > 0 {
			fmt.Fprintf(w, "max messages:       %d\n", f.MaxMessages)
		}
	}
	fmt.Fprintf(w, "approval timeout:   %s\n", cfg.ApprovalTimeoutDuration())

	tc := rt.tracker.Config()
	fmt.Fprintf(w, "finalized cache:    %d\n", tc.FinalizedCacheSize)
	fmt.Fprintf(w, "subscriber buffer:  %d\n", tc.SubscriberBuffer)

	contracts := make([]string, 0, len(tc.Expirations))
	for c := range tc.Expirations {
		contracts = append(contracts, c)
	}
	sort.Strings(contracts)
	for _, c := range contracts {
		fmt.Fprintf(w, "expiration %-20s %s\n", c+":", rt.tracker.Expiration(c))
	}
}
