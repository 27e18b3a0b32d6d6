// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/aplane-ton/custody/internal/crypto"
	"github.com/aplane-ton/custody/internal/security"
	"github.com/aplane-ton/custody/internal/util"
	"github.com/aplane-ton/custody/internal/version"
	"golang.org/x/term"
)

// Global config for commands that need it
var config util.Config

// stdinReader is a shared reader for non-terminal stdin
var stdinReader *bufio.Reader

func main() {
	for _, arg := range os.Args[1:] {
		if arg == "--version" || arg == "-version" {
			fmt.Printf("custodyctl %s\n", version.String())
			os.Exit(0)
		}
	}

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "custodyctl - Wallet key custody and session proofs\n\n")
		fmt.Fprintf(os.Stderr, "Usage:\n")
		fmt.Fprintf(os.Stderr, "  custodyctl [-d path] init\n")
		fmt.Fprintf(os.Stderr, "  custodyctl [-d path] add-key [-encrypted] [-seed HEX]\n")
		fmt.Fprintf(os.Stderr, "  custodyctl [-d path] add-key -hardware PUBKEY -device ID\n")
		fmt.Fprintf(os.Stderr, "  custodyctl [-d path] remove-key PUBKEY KIND\n")
		fmt.Fprintf(os.Stderr, "  custodyctl [-d path] keys [-watch]\n")
		fmt.Fprintf(os.Stderr, "  custodyctl [-d path] proof -key PUBKEY -address ADDR -origin URL [-payload TEXT]\n")
		fmt.Fprintf(os.Stderr, "  custodyctl [-d path] config\n")
		fmt.Fprintf(os.Stderr, "\nOptions:\n")
		fmt.Fprintf(os.Stderr, "  -d path              Data directory (or set CUSTODY_DATA env var)\n")
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  custodyctl init\n")
		fmt.Fprintf(os.Stderr, "  custodyctl add-key -encrypted\n")
		fmt.Fprintf(os.Stderr, "  custodyctl keys -watch\n")
		fmt.Fprintf(os.Stderr, "  custodyctl proof -key 8a88e3... -address 0:0001... -origin https://example.com -payload nonce\n")
	}

	dataDir := flag.String("d", "", "Data directory (or set CUSTODY_DATA)")
	flag.Parse()

	util.InitLogger()

	var err error
	config, err = util.LoadConfig(util.GetDataDir(*dataDir))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if err := security.Harden(util.Logger); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	args := flag.Args()
	if len(args) < 1 {
		flag.Usage()
		os.Exit(1)
	}

	command, rest := args[0], args[1:]

	switch command {
	case "init":
		err = cmdInit()
	case "add-key":
		err = cmdAddKey(rest)
	case "remove-key":
		if len(rest) < 2 {
			fmt.Fprintf(os.Stderr, "Usage: custodyctl remove-key PUBKEY KIND\n")
			os.Exit(1)
		}
		err = cmdRemoveKey(rest[0], rest[1])
	case "keys":
		err = cmdKeys(rest)
	case "proof":
		err = cmdProof(rest)
	case "config":
		err = cmdConfig()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", command)
		flag.Usage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func readPassword() (string, error) {
	fd := int(os.Stdin.Fd()) // #nosec G115 - file descriptors are small integers
	if term.IsTerminal(fd) {
		bytePassword, err := term.ReadPassword(fd)
		if err != nil {
			return "", err
		}
		return string(bytePassword), nil
	}

	// Not a terminal - read plaintext line using shared reader
	if stdinReader == nil {
		stdinReader = bufio.NewReader(os.Stdin)
	}
	line, err := stdinReader.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// promptPassword reads from the configured password helper when there is
// one, otherwise from the terminal.
func promptPassword(prompt string) (string, error) {
	if helper := config.PasswordCommand(); helper.Configured() {
		pw, err := helper.Run(context.Background())
		if err != nil {
			return "", err
		}
		defer crypto.ZeroBytes(pw)
		return string(pw), nil
	}
	fmt.Fprint(os.Stderr, prompt)
	pw, err := readPassword()
	fmt.Fprintln(os.Stderr)
	return pw, err
}
