// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

package crypto

import (
	"bytes"
	"os"
	"testing"

	"github.com/aplane-ton/custody/internal/errors"
)

func TestMain(m *testing.M) {
	// Keep Argon2id cheap in tests; parameters are persisted with each salt.
	DefaultKDF = KDFParams{Time: 1, Memory: 1024, Threads: 1}
	os.Exit(m.Run())
}

func TestMetadataUnlock(t *testing.T) {
	meta, masterKey, err := NewMetadata([]byte("correct horse"))
	if err != nil {
		t.Fatalf("NewMetadata() error = %v", err)
	}
	if len(masterKey) != keyLen {
		t.Fatalf("master key length = %d, want %d", len(masterKey), keyLen)
	}

	again, err := meta.Unlock([]byte("correct horse"))
	if err != nil {
		t.Fatalf("Unlock(correct) error = %v", err)
	}
	if !bytes.Equal(again, masterKey) {
		t.Error("Unlock should derive the same master key")
	}

	_, err = meta.Unlock([]byte("battery staple"))
	if !errors.ErrWrongPassword.Is(err) {
		t.Errorf("Unlock(wrong) error = %v, want ErrWrongPassword", err)
	}

	if !meta.Verify([]byte("correct horse")) {
		t.Error("Verify(correct) = false")
	}
	if meta.Verify(nil) {
		t.Error("Verify(nil) = true")
	}
}

func TestMetadataKeepsItsKDF(t *testing.T) {
	meta, _, err := NewMetadata([]byte("pw"))
	if err != nil {
		t.Fatal(err)
	}

	saved := DefaultKDF
	DefaultKDF = KDFParams{Time: 2, Memory: 2048, Threads: 2}
	defer func() { DefaultKDF = saved }()

	if !meta.Verify([]byte("pw")) {
		t.Error("changing DefaultKDF must not break existing metadata")
	}
}

func TestSealWithKeyRoundTrip(t *testing.T) {
	_, masterKey, err := NewMetadata([]byte("pw"))
	if err != nil {
		t.Fatal(err)
	}
	seed := bytes.Repeat([]byte{7}, 32)

	env, err := SealWithKey(seed, masterKey)
	if err != nil {
		t.Fatalf("SealWithKey() error = %v", err)
	}
	if env.Version != envelopeMasterKey || env.Salt != "" {
		t.Errorf("unexpected envelope %+v", env)
	}

	got, err := OpenWithKey(env, masterKey)
	if err != nil {
		t.Fatalf("OpenWithKey() error = %v", err)
	}
	if !bytes.Equal(got, seed) {
		t.Error("round trip mismatch")
	}

	wrong := bytes.Repeat([]byte{1}, keyLen)
	if _, err := OpenWithKey(env, wrong); !errors.ErrWrongPassword.Is(err) {
		t.Errorf("OpenWithKey(wrong) error = %v", err)
	}
	if _, err := OpenWithPassword(env, []byte("pw")); err == nil {
		t.Error("a master-key envelope must not open with a password")
	}
}

func TestSealWithPasswordRoundTrip(t *testing.T) {
	env, err := SealWithPassword([]byte("seed material"), []byte("pw"))
	if err != nil {
		t.Fatalf("SealWithPassword() error = %v", err)
	}
	if env.Version != envelopePassword || env.KDF == nil || env.Salt == "" {
		t.Errorf("unexpected envelope %+v", env)
	}

	got, err := OpenWithPassword(env, []byte("pw"))
	if err != nil {
		t.Fatalf("OpenWithPassword() error = %v", err)
	}
	if string(got) != "seed material" {
		t.Errorf("OpenWithPassword() = %q", got)
	}

	if _, err := OpenWithPassword(env, []byte("nope")); !errors.ErrWrongPassword.Is(err) {
		t.Errorf("OpenWithPassword(wrong) error = %v", err)
	}
}

func TestSealRandomness(t *testing.T) {
	a, err := SealWithPassword([]byte("same"), []byte("pw"))
	if err != nil {
		t.Fatal(err)
	}
	b, err := SealWithPassword([]byte("same"), []byte("pw"))
	if err != nil {
		t.Fatal(err)
	}
	if a.Salt == b.Salt || a.Nonce == b.Nonce || a.Ciphertext == b.Ciphertext {
		t.Error("two seals of the same plaintext must differ")
	}
}

func TestEnvelopeCorrupt(t *testing.T) {
	env, err := SealWithPassword([]byte("x"), []byte("pw"))
	if err != nil {
		t.Fatal(err)
	}
	env.Nonce = "!!not base64"
	if _, err := OpenWithPassword(env, []byte("pw")); err == nil {
		t.Error("expected decode error")
	}
}
