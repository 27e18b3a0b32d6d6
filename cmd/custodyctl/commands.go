// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/aplane-ton/custody/internal/crypto"
	"github.com/aplane-ton/custody/internal/keys"
	"github.com/aplane-ton/custody/internal/keystore"
	"github.com/aplane-ton/custody/internal/signing"
)

func cmdInit() error {
	password, err := promptPassword("New passphrase: ")
	if err != nil {
		return err
	}
	confirm, err := promptPassword("Confirm passphrase: ")
	if err != nil {
		return err
	}
	if password != confirm {
		return fmt.Errorf("passphrases do not match")
	}
	if password == "" {
		return fmt.Errorf("passphrase cannot be empty")
	}

	pw := []byte(password)
	defer crypto.ZeroBytes(pw)
	store, err := keystore.Create(config.KeystoreDir, pw)
	if err != nil {
		return err
	}
	fmt.Printf("Keystore initialized at %s\n", store.Dir())
	return nil
}

func cmdAddKey(args []string) error {
	fs := flag.NewFlagSet("add-key", flag.ContinueOnError)
	encrypted := fs.Bool("encrypted", false, "Seal the key with its own password check instead of the master key")
	seedHex := fs.String("seed", "", "32-byte ed25519 seed as hex (random when empty)")
	hardwarePub := fs.String("hardware", "", "Public key held by a hardware device")
	deviceID := fs.String("device", "", "Hardware device identifier")
	if err := fs.Parse(args); err != nil {
		return err
	}

	store, err := keystore.Open(config.KeystoreDir)
	if err != nil {
		return err
	}

	if *hardwarePub != "" {
		if *deviceID == "" {
			return fmt.Errorf("-device is required with -hardware")
		}
		desc, err := store.AddHardware(*hardwarePub, *deviceID)
		if err != nil {
			return err
		}
		printKey(os.Stdout, desc)
		return nil
	}

	seed, err := parseSeed(*seedHex)
	if err != nil {
		return err
	}
	defer crypto.ZeroBytes(seed)

	password, err := promptPassword("Passphrase: ")
	if err != nil {
		return err
	}
	secret := crypto.NewSecretString(password)
	defer secret.Wipe()

	var desc keys.KeyDescriptor
	if *encrypted {
		desc, err = store.AddEncrypted(seed, secret)
	} else {
		desc, err = store.AddSoftwareMaster(seed, secret)
	}
	if err != nil {
		return err
	}
	printKey(os.Stdout, desc)
	return nil
}

func cmdRemoveKey(pub, kind string) error {
	k := keys.Kind(kind)
	if !k.Valid() {
		return fmt.Errorf("unknown key kind %q", kind)
	}
	store, err := keystore.Open(config.KeystoreDir)
	if err != nil {
		return err
	}
	if err := store.Remove(pub, k); err != nil {
		return err
	}
	fmt.Printf("Removed %s key %s\n", k, pub)
	return nil
}

func cmdKeys(args []string) error {
	fs := flag.NewFlagSet("keys", flag.ContinueOnError)
	watch := fs.Bool("watch", false, "Keep running and print the key list whenever it changes")
	if err := fs.Parse(args); err != nil {
		return err
	}

	store, err := keystore.Open(config.KeystoreDir)
	if err != nil {
		return err
	}
	printKeys(os.Stdout, store.Keys())
	if !*watch {
		return nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	err = store.Watch(ctx, func(list []keys.KeyDescriptor) {
		fmt.Println("--- keys changed ---")
		printKeys(os.Stdout, list)
	})
	if err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}

func cmdProof(args []string) error {
	fs := flag.NewFlagSet("proof", flag.ContinueOnError)
	pub := fs.String("key", "", "Public key to sign with")
	address := fs.String("address", "", "Account address (raw or user-friendly)")
	origin := fs.String("origin", "", "Requesting app origin, e.g. https://example.com")
	payload := fs.String("payload", "", "Server-provided nonce")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *pub == "" || *address == "" || *origin == "" {
		return fmt.Errorf("-key, -address and -origin are required")
	}

	store, err := keystore.Open(config.KeystoreDir)
	if err != nil {
		return err
	}
	desc, err := findKey(store.Keys(), *pub)
	if err != nil {
		return err
	}
	signer, err := signing.ForKey(desc)
	if err != nil {
		return err
	}

	secret := &crypto.Secret{}
	if signing.NeedsPassword(signer) {
		password, err := promptPassword("Passphrase: ")
		if err != nil {
			return err
		}
		secret = crypto.NewSecretString(password)
	}
	defer secret.Wipe()

	rt, err := newRuntime(&config, store)
	if err != nil {
		return err
	}
	p, err := rt.proofs.BuildOwnershipProof(context.Background(), *address, *origin, *payload, rt.signing.Bind(signer, secret))
	if err != nil {
		return err
	}

	out := struct {
		Name      string      `json:"name"`
		Proof     interface{} `json:"proof"`
		PublicKey string      `json:"public_key"`
	}{Name: "ton_proof", Proof: p.Wire(), PublicKey: desc.PublicKey}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

// parseSeed decodes a hex seed, or draws a fresh one when s is empty.
func parseSeed(s string) ([]byte, error) {
	if s == "" {
		seed := make([]byte, 32)
		if _, err := rand.Read(seed); err != nil {
			return nil, fmt.Errorf("failed to generate seed: %w", err)
		}
		return seed, nil
	}
	seed, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid seed hex: %w", err)
	}
	if len(seed) != 32 {
		crypto.ZeroBytes(seed)
		return nil, fmt.Errorf("seed must be 32 bytes, got %d", len(seed))
	}
	return seed, nil
}

// findKey picks the key with the given public key. A key present under
// several kinds resolves to the earliest added.
func findKey(list []keys.KeyDescriptor, pub string) (keys.KeyDescriptor, error) {
	want, err := keys.NormalizePublicKey(pub)
	if err != nil {
		return keys.KeyDescriptor{}, err
	}
	var (
		found keys.KeyDescriptor
		ok    bool
	)
	for _, d := range list {
		if d.PublicKey != want {
			continue
		}
		if !ok || d.Seq < found.Seq {
			found, ok = d, true
		}
	}
	if !ok {
		return keys.KeyDescriptor{}, keystore.ErrKeyNotFound
	}
	return found, nil
}

func printKey(w io.Writer, d keys.KeyDescriptor) {
	if d.DeviceID != "" {
		fmt.Fprintf(w, "%4d  %-18s  %s  (device %s)\n", d.Seq, d.Kind, d.PublicKey, d.DeviceID)
		return
	}
	fmt.Fprintf(w, "%4d  %-18s  %s\n", d.Seq, d.Kind, d.PublicKey)
}

func printKeys(w io.Writer, list []keys.KeyDescriptor) {
	if len(list) == 0 {
		fmt.Fprintln(w, "No keys.")
		return
	}
	for _, d := range list {
		printKey(w, d)
	}
}
