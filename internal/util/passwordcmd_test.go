// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

package util

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeScript(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "helper.sh")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\nPATH=/usr/bin:/bin\n"+content+"\n"), 0700))
	return path
}

func TestPasswordCommand_Run(t *testing.T) {
	tests := []struct {
		name    string
		script  string
		want    string
		wantErr string
	}{
		{name: "echo", script: "echo mysecret", want: "mysecret"},
		{name: "no trailing newline", script: "printf 'notrail'", want: "notrail"},
		{name: "strips one newline only", script: `printf 'secret\n\n'`, want: "secret\n"},
		{name: "crlf", script: `printf 'secret\r\n'`, want: "secret"},
		{name: "keeps spaces", script: "printf '  secret  '", want: "  secret  "},
		{name: "base64", script: "printf 'base64:" + base64.StdEncoding.EncodeToString([]byte("decoded")) + "'", want: "decoded"},
		{name: "hex", script: "printf 'hex:" + hex.EncodeToString([]byte("hexval")) + "'", want: "hexval"},
		{name: "empty", script: "", wantErr: "empty output"},
		{name: "nul", script: `printf 'a\000b'`, wantErr: "NUL"},
		{name: "bad base64", script: "printf 'base64:!!'", wantErr: "invalid base64"},
		{name: "exit status", script: "exit 3", wantErr: "command failed"},
		{name: "too long", script: "head -c 9000 /dev/zero | tr '\\0' a", wantErr: "exceeded"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := PasswordCommand{Argv: []string{makeScript(t, tt.script)}}
			got, err := cmd.Run(context.Background())
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(got))
		})
	}
}

func TestPasswordCommand_ArgsAndEnv(t *testing.T) {
	cmd := PasswordCommand{
		Argv: []string{makeScript(t, `printf '%s-%s-%s' "$1" "$SECRET_NAME" "${HOME:-unset}"`), "first"},
		Env:  map[string]string{"SECRET_NAME": "vault"},
	}
	got, err := cmd.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "first-vault-unset", string(got))
}

func TestPasswordCommand_Cancelled(t *testing.T) {
	cmd := PasswordCommand{Argv: []string{makeScript(t, "sleep 10")}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := cmd.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPasswordCommand_Validate(t *testing.T) {
	assert.False(t, PasswordCommand{}.Configured())
	assert.Error(t, PasswordCommand{}.Validate())
	assert.Error(t, PasswordCommand{Argv: []string{"relative/helper"}}.Validate())
	assert.Error(t, PasswordCommand{Argv: []string{t.TempDir()}}.Validate())

	missing := filepath.Join(t.TempDir(), "missing")
	assert.Error(t, PasswordCommand{Argv: []string{missing}}.Validate())

	plain := filepath.Join(t.TempDir(), "plain")
	require.NoError(t, os.WriteFile(plain, []byte("x"), 0600))
	err := PasswordCommand{Argv: []string{plain}}.Validate()
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "not executable"))

	writable := makeScript(t, "echo x")
	require.NoError(t, os.Chmod(writable, 0777))
	assert.Error(t, PasswordCommand{Argv: []string{writable}}.Validate())

	ok := PasswordCommand{Argv: []string{makeScript(t, "echo x")}}
	assert.True(t, ok.Configured())
	assert.NoError(t, ok.Validate())
}
