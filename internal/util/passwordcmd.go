// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

package util

import (
	"bytes"
	"context"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"
	"time"
)

const (
	// passwordCommandTimeout bounds a single helper run.
	passwordCommandTimeout = 5 * time.Second

	// maxPasswordOutputBytes caps helper stdout.
	maxPasswordOutputBytes = 8 * 1024
)

// PasswordCommand is an external helper that prints the keystore password
// on stdout, for unattended use.
//
// Output contract:
//   - exactly one trailing newline is stripped
//   - NUL bytes are rejected
//   - "base64:" and "hex:" prefixes are decoded
type PasswordCommand struct {
	Argv []string          // argv[0] must be absolute
	Env  map[string]string // the only variables the helper sees
}

// Configured reports whether a helper is set.
func (c PasswordCommand) Configured() bool {
	return len(c.Argv) > 0
}

// Validate checks argv[0] without running it.
func (c PasswordCommand) Validate() error {
	_, err := c.binary()
	return err
}

// Run executes the helper and returns the password. The caller zeroes the
// result.
func (c PasswordCommand) Run(ctx context.Context) ([]byte, error) {
	path, err := c.binary()
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, passwordCommandTimeout)
	defer cancel()

	// Own process group so a shell helper's children die with it.
	cmd := exec.Command(path, c.Argv[1:]...) //nolint:gosec // validated above
	cmd.Env = c.environ()
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	var stdout bytes.Buffer
	defer zeroBuffer(&stdout)
	lw := &limitedWriter{w: &stdout, remaining: maxPasswordOutputBytes}
	cmd.Stdout = lw
	// A misbehaving helper may print secrets on stderr.
	cmd.Stderr = io.Discard

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("password_command: failed to start: %w", err)
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	select {
	case err = <-done:
	case <-ctx.Done():
		_ = syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
		<-done
		return nil, fmt.Errorf("password_command: %w", ctx.Err())
	}
	if err != nil {
		return nil, fmt.Errorf("password_command: command failed: %w", err)
	}
	if lw.truncated {
		return nil, fmt.Errorf("password_command: stdout exceeded %d bytes", maxPasswordOutputBytes)
	}

	out := stdout.Bytes()
	if n := len(out); n > 0 && out[n-1] == '\n' {
		out = out[:n-1]
		if n := len(out); n > 0 && out[n-1] == '\r' {
			out = out[:n-1]
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("password_command: empty output")
	}
	if bytes.IndexByte(out, 0) >= 0 {
		return nil, fmt.Errorf("password_command: output contains NUL bytes")
	}
	return decodePassword(out)
}

func (c PasswordCommand) binary() (string, error) {
	if len(c.Argv) == 0 {
		return "", fmt.Errorf("password_command: must be non-empty")
	}
	path := c.Argv[0]
	if !filepath.IsAbs(path) {
		return "", fmt.Errorf("password_command: %q is not an absolute path", path)
	}
	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("password_command: %w", err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("password_command: %s is a directory", path)
	}
	perm := info.Mode().Perm()
	if perm&0111 == 0 {
		return "", fmt.Errorf("password_command: %s is not executable (mode %04o)", path, perm)
	}
	if perm&0022 != 0 {
		return "", fmt.Errorf("password_command: %s is group or world writable (mode %04o)", path, perm)
	}
	return path, nil
}

// environ never inherits the process environment.
func (c PasswordCommand) environ() []string {
	env := make([]string, 0, len(c.Env))
	for k, v := range c.Env {
		env = append(env, k+"="+v)
	}
	return env
}

// decodePassword copies out so the caller may zero the helper buffer.
func decodePassword(out []byte) ([]byte, error) {
	switch {
	case bytes.HasPrefix(out, []byte("base64:")):
		enc := out[len("base64:"):]
		dec := make([]byte, base64.StdEncoding.DecodedLen(len(enc)))
		n, err := base64.StdEncoding.Decode(dec, enc)
		if err != nil {
			zeroBytes(dec)
			return nil, fmt.Errorf("password_command: invalid base64 output: %w", err)
		}
		return dec[:n], nil
	case bytes.HasPrefix(out, []byte("hex:")):
		enc := out[len("hex:"):]
		dec := make([]byte, hex.DecodedLen(len(enc)))
		n, err := hex.Decode(dec, enc)
		if err != nil {
			zeroBytes(dec)
			return nil, fmt.Errorf("password_command: invalid hex output: %w", err)
		}
		return dec[:n], nil
	}
	return bytes.Clone(out), nil
}

func zeroBytes(b []byte) {
	if len(b) == 0 {
		return
	}
	subtle.ConstantTimeCopy(1, b, make([]byte, len(b)))
}

func zeroBuffer(buf *bytes.Buffer) {
	zeroBytes(buf.Bytes())
	buf.Reset()
}

// limitedWriter drops output past remaining and remembers that it did.
type limitedWriter struct {
	w         io.Writer
	remaining int64
	truncated bool
}

func (lw *limitedWriter) Write(p []byte) (int, error) {
	n := len(p)
	if int64(n) > lw.remaining {
		p = p[:lw.remaining]
		lw.truncated = true
	}
	if len(p) > 0 {
		written, err := lw.w.Write(p)
		lw.remaining -= int64(written)
		if err != nil {
			return written, err
		}
	}
	// Report the full length so the helper never sees a short write.
	return n, nil
}
