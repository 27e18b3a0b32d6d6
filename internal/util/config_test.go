// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

package util

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, dir, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	dir := t.TempDir()

	cfg, err := LoadConfig(dir)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.ProtocolVersion != 2 {
		t.Errorf("ProtocolVersion = %d, want 2", cfg.ProtocolVersion)
	}
	if cfg.KeystoreDir != filepath.Join(dir, "keystore") {
		t.Errorf("KeystoreDir = %q, want resolved under data dir", cfg.KeystoreDir)
	}
	if got := cfg.ApprovalTimeoutDuration(); got != 5*time.Minute {
		t.Errorf("ApprovalTimeoutDuration() = %v, want 5m", got)
	}
}

func TestLoadConfigOverrides(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, `
keystore: /var/lib/custody/keys
max_messages: 255
approval_timeout: "0"
device:
  app_name: vault
contract_expirations:
  multisig_v1: 30m
`)

	cfg, err := LoadConfig(dir)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.KeystoreDir != "/var/lib/custody/keys" {
		t.Errorf("KeystoreDir = %q", cfg.KeystoreDir)
	}
	if cfg.MaxMessages != 255 {
		t.Errorf("MaxMessages = %d, want 255", cfg.MaxMessages)
	}
	if cfg.ApprovalTimeoutDuration() != 0 {
		t.Errorf("ApprovalTimeoutDuration() = %v, want 0", cfg.ApprovalTimeoutDuration())
	}
	if cfg.Device.AppName != "vault" || cfg.Device.Platform != "linux" {
		t.Errorf("Device = %+v, want app_name override and default platform", cfg.Device)
	}

	exp, err := cfg.Expirations()
	if err != nil {
		t.Fatalf("Expirations() error = %v", err)
	}
	if exp["multisig_v1"] != 30*time.Minute {
		t.Errorf("multisig_v1 = %v, want 30m", exp["multisig_v1"])
	}
	if _, ok := exp["multisig_2"]; ok {
		t.Error("explicit contract_expirations should replace the defaults")
	}
}

func TestLoadConfigErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"malformed yaml", "max_messages: [1, 2"},
		{"bad expiration", "contract_expirations:\n  multisig_v1: soon\n"},
		{"negative expiration", "contract_expirations:\n  multisig_v1: -1h\n"},
		{"negative timeout", "approval_timeout: -5m\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			writeConfig(t, dir, tt.content)
			if _, err := LoadConfig(dir); err == nil {
				t.Error("LoadConfig() expected error")
			}
		})
	}
}

func TestParseTimeout(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Duration
		wantErr bool
	}{
		{"", 0, false},
		{"0", 0, false},
		{"15m", 15 * time.Minute, false},
		{"1h", time.Hour, false},
		{"abc", 0, true},
		{"-1s", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseTimeout(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseTimeout(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseTimeout(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestGetDataDir(t *testing.T) {
	t.Setenv("CUSTODY_DATA", "/from/env")
	if got := GetDataDir("/from/flag"); got != "/from/flag" {
		t.Errorf("GetDataDir(flag) = %q", got)
	}
	if got := GetDataDir(""); got != "/from/env" {
		t.Errorf("GetDataDir(\"\") = %q", got)
	}
}

func TestResolvePath(t *testing.T) {
	if got := ResolvePath("keys", "/data"); got != "/data/keys" {
		t.Errorf("ResolvePath relative = %q", got)
	}
	if got := ResolvePath("/abs", "/data"); got != "/abs" {
		t.Errorf("ResolvePath absolute = %q", got)
	}
	if got := ResolvePath("", "/data"); got != "" {
		t.Errorf("ResolvePath empty = %q", got)
	}
}

func TestLoadConfigPasswordCommand(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, `
password_command_argv: ["bin/pass-helper", "--vault", "custody"]
password_command_env:
  VAULT_ADDR: http://127.0.0.1:8200
`)

	cfg, err := LoadConfig(dir)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	cmd := cfg.PasswordCommand()
	if !cmd.Configured() {
		t.Fatal("PasswordCommand() not configured")
	}
	if cmd.Argv[0] != filepath.Join(dir, "bin/pass-helper") {
		t.Errorf("Argv[0] = %q, want resolved under data dir", cmd.Argv[0])
	}
	if cmd.Env["VAULT_ADDR"] != "http://127.0.0.1:8200" {
		t.Errorf("Env = %v", cmd.Env)
	}
}
